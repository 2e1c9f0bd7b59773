package validator

import "testing"

func TestValidateRegister(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		email     string
		username  string
		display   string
		password  string
		wantField string
	}{
		{"valid", "a@example.com", "alice", "Alice", "hunter2abc", ""},
		{"missing email", "", "alice", "Alice", "hunter2abc", "email"},
		{"bad email", "not-an-email", "alice", "Alice", "hunter2abc", "email"},
		{"short username", "a@example.com", "ab", "Alice", "hunter2abc", "username"},
		{"bad username chars", "a@example.com", "al ice!", "Alice", "hunter2abc", "username"},
		{"missing display name", "a@example.com", "alice", "", "hunter2abc", "displayName"},
		{"short password", "a@example.com", "alice", "Alice", "ab1", "password"},
		{"letters only password", "a@example.com", "alice", "Alice", "abcdefgh", "password"},
		{"digits only password", "a@example.com", "alice", "Alice", "12345678", "password"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			errs := ValidateRegister(tt.email, tt.username, tt.display, tt.password)
			if tt.wantField == "" {
				if errs.HasErrors() {
					t.Errorf("unexpected errors: %v", errs)
				}
				return
			}
			if _, ok := errs[tt.wantField]; !ok {
				t.Errorf("missing error for %q, got %v", tt.wantField, errs)
			}
		})
	}
}

func TestValidateMessage(t *testing.T) {
	t.Parallel()
	if errs := ValidateMessage("", false); !errs.HasErrors() {
		t.Error("empty message without file accepted")
	}
	// A file attachment stands in for empty content.
	if errs := ValidateMessage("", true); errs.HasErrors() {
		t.Errorf("empty message with file rejected: %v", errs)
	}
	long := make([]byte, 10001)
	for i := range long {
		long[i] = 'x'
	}
	if errs := ValidateMessage(string(long), false); !errs.HasErrors() {
		t.Error("overlong message accepted")
	}
}

func TestValidateChannel(t *testing.T) {
	t.Parallel()
	if errs := ValidateChannel("general"); errs.HasErrors() {
		t.Errorf("valid name rejected: %v", errs)
	}
	if errs := ValidateChannel("  "); !errs.HasErrors() {
		t.Error("blank name accepted")
	}
}
