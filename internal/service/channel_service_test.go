package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/jasonhq/relay/internal/access"
	"github.com/jasonhq/relay/internal/domain"
)

type recordingSink struct {
	mu     sync.Mutex
	subs   [][2]string
	unsubs [][2]string
}

func (s *recordingSink) Subscribe(userID, channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, [2]string{userID, channelID})
}

func (s *recordingSink) Unsubscribe(userID, channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unsubs = append(s.unsubs, [2]string{userID, channelID})
}

func testUser(id string) *domain.User {
	return &domain.User{ID: id, Username: id, DisplayName: id}
}

func adminUser(id string) *domain.User {
	u := testUser(id)
	u.IsAdmin = true
	return u
}

func publicChannel(id string) *domain.Channel {
	return &domain.Channel{ID: id, Name: id, Tier: domain.TierNonLicensed}
}

func newChannelFixture(channels []*domain.Channel, users ...*domain.User) (*ChannelService, *memChannelRepo, *memJoinRequestRepo, *recordingSink) {
	channelRepo := newMemChannelRepo(channels...)
	requestRepo := newMemJoinRequestRepo()
	svc := NewChannelService(channelRepo, requestRepo, newMemUserRepo(users...))
	sink := &recordingSink{}
	svc.SetSubscriptions(sink)
	return svc, channelRepo, requestRepo, sink
}

func TestJoinPublicChannelIsImmediate(t *testing.T) {
	t.Parallel()
	svc, channelRepo, _, sink := newChannelFixture(
		[]*domain.Channel{publicChannel("general")}, testUser("alice"))

	res, err := svc.Join(context.Background(), "alice", "general", "")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !res.Joined || res.Request != nil {
		t.Fatalf("result = %+v, want immediate membership", res)
	}
	member, _ := channelRepo.GetMember(context.Background(), "general", "alice")
	if member == nil || member.Role != "member" {
		t.Errorf("membership not recorded: %+v", member)
	}
	if len(sink.subs) != 1 || sink.subs[0] != [2]string{"alice", "general"} {
		t.Errorf("live subscription not updated: %v", sink.subs)
	}
}

func TestJoinPrivateChannelFilesRequest(t *testing.T) {
	t.Parallel()
	private := publicChannel("vault")
	private.IsPrivate = true
	svc, channelRepo, requestRepo, sink := newChannelFixture(
		[]*domain.Channel{private}, testUser("alice"))

	res, err := svc.Join(context.Background(), "alice", "vault", "let me in")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if res.Joined || res.Request == nil {
		t.Fatalf("result = %+v, want pending request", res)
	}
	if res.Request.Status != domain.JoinRequestPending || res.Request.Message != "let me in" {
		t.Errorf("request = %+v", res.Request)
	}
	if member, _ := channelRepo.GetMember(context.Background(), "vault", "alice"); member != nil {
		t.Errorf("membership granted without approval")
	}
	if len(sink.subs) != 0 {
		t.Errorf("subscribed before approval")
	}

	// Joining again reuses the pending request instead of stacking a second.
	again, err := svc.Join(context.Background(), "alice", "vault", "please")
	if err != nil {
		t.Fatalf("second Join: %v", err)
	}
	if again.Request == nil || again.Request.ID != res.Request.ID {
		t.Errorf("second join did not reuse the request: %+v", again.Request)
	}
	pending, _ := requestRepo.ListPending(context.Background(), "vault")
	if len(pending) != 1 {
		t.Errorf("%d pending requests, want 1", len(pending))
	}
}

func TestJoinArchivedChannelRejected(t *testing.T) {
	t.Parallel()
	archived := publicChannel("old")
	archived.IsArchived = true
	svc, _, _, _ := newChannelFixture(
		[]*domain.Channel{archived}, testUser("alice"), adminUser("root"))

	if _, err := svc.Join(context.Background(), "alice", "old", ""); !errors.Is(err, access.ErrChannelArchived) {
		t.Errorf("err = %v, want ErrChannelArchived", err)
	}
	// Admin override does not extend to archived channels.
	if _, err := svc.Join(context.Background(), "root", "old", ""); !errors.Is(err, access.ErrChannelArchived) {
		t.Errorf("admin err = %v, want ErrChannelArchived", err)
	}
}

func TestJoinTierGate(t *testing.T) {
	t.Parallel()
	gated := publicChannel("fl-only")
	gated.Tier = domain.TierFLLicensed
	licensed := testUser("bob")
	licensed.HasFLLicense = true
	svc, _, _, _ := newChannelFixture(
		[]*domain.Channel{gated}, testUser("alice"), licensed)

	if _, err := svc.Join(context.Background(), "alice", "fl-only", ""); !errors.Is(err, access.ErrAccessDenied) {
		t.Errorf("unlicensed err = %v, want ErrAccessDenied", err)
	}
	res, err := svc.Join(context.Background(), "bob", "fl-only", "")
	if err != nil || !res.Joined {
		t.Errorf("licensed join = %+v, %v", res, err)
	}
}

func TestJoinAlreadyMember(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newChannelFixture(
		[]*domain.Channel{publicChannel("general")}, testUser("alice"))

	if _, err := svc.Join(context.Background(), "alice", "general", ""); err != nil {
		t.Fatalf("first Join: %v", err)
	}
	if _, err := svc.Join(context.Background(), "alice", "general", ""); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("err = %v, want ErrAlreadyMember", err)
	}
}

func TestJoinUnknownChannel(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newChannelFixture(nil, testUser("alice"))
	if _, err := svc.Join(context.Background(), "alice", "nope", ""); !errors.Is(err, ErrChannelNotFound) {
		t.Errorf("err = %v, want ErrChannelNotFound", err)
	}
}

func TestLeaveRequiresMembership(t *testing.T) {
	t.Parallel()
	svc, channelRepo, _, sink := newChannelFixture(
		[]*domain.Channel{publicChannel("general")}, testUser("alice"))

	if err := svc.Leave(context.Background(), "alice", "general"); !errors.Is(err, ErrNotChannelMember) {
		t.Fatalf("err = %v, want ErrNotChannelMember", err)
	}

	if _, err := svc.Join(context.Background(), "alice", "general", ""); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := svc.Leave(context.Background(), "alice", "general"); err != nil {
		t.Fatalf("Leave: %v", err)
	}
	if member, _ := channelRepo.GetMember(context.Background(), "general", "alice"); member != nil {
		t.Errorf("membership survived leave")
	}
	if len(sink.unsubs) != 1 || sink.unsubs[0] != [2]string{"alice", "general"} {
		t.Errorf("live subscription not dropped: %v", sink.unsubs)
	}
}

func TestCreateRequiresAdmin(t *testing.T) {
	t.Parallel()
	svc, channelRepo, _, _ := newChannelFixture(nil, testUser("alice"), adminUser("root"))

	if _, err := svc.Create(context.Background(), "alice", CreateChannelInput{Name: "x"}); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("err = %v, want ErrNotAdmin", err)
	}

	ch, err := svc.Create(context.Background(), "root", CreateChannelInput{Name: "announcements", Tier: domain.TierMultiState})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ch.Tier != domain.TierMultiState || ch.CreatedBy != "root" {
		t.Errorf("channel = %+v", ch)
	}
	// The creator becomes a channel admin.
	member, _ := channelRepo.GetMember(context.Background(), ch.ID, "root")
	if member == nil || member.Role != "admin" {
		t.Errorf("creator membership = %+v", member)
	}
}

func TestCreateDefaultsAndRejectsTier(t *testing.T) {
	t.Parallel()
	svc, _, _, _ := newChannelFixture(nil, adminUser("root"))

	ch, err := svc.Create(context.Background(), "root", CreateChannelInput{Name: "open"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ch.Tier != domain.TierNonLicensed {
		t.Errorf("default tier = %s", ch.Tier)
	}
	if _, err := svc.Create(context.Background(), "root", CreateChannelInput{Name: "bad", Tier: "PLATINUM"}); err == nil {
		t.Errorf("unknown tier accepted")
	}
}

func TestArchiveRequiresAdmin(t *testing.T) {
	t.Parallel()
	svc, channelRepo, _, _ := newChannelFixture(
		[]*domain.Channel{publicChannel("general")}, testUser("alice"), adminUser("root"))

	if err := svc.Archive(context.Background(), "alice", "general"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("err = %v, want ErrNotAdmin", err)
	}
	if err := svc.Archive(context.Background(), "root", "missing"); !errors.Is(err, ErrChannelNotFound) {
		t.Fatalf("err = %v, want ErrChannelNotFound", err)
	}
	if err := svc.Archive(context.Background(), "root", "general"); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	ch, _ := channelRepo.GetByID(context.Background(), "general")
	if !ch.IsArchived {
		t.Errorf("channel not archived")
	}
}

func TestResolveRequestApprove(t *testing.T) {
	t.Parallel()
	private := publicChannel("vault")
	private.IsPrivate = true
	svc, channelRepo, requestRepo, sink := newChannelFixture(
		[]*domain.Channel{private}, testUser("alice"), adminUser("root"))

	res, err := svc.Join(context.Background(), "alice", "vault", "")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}

	if err := svc.ResolveRequest(context.Background(), "alice", res.Request.ID, true); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("non-admin resolve err = %v", err)
	}
	if err := svc.ResolveRequest(context.Background(), "root", res.Request.ID, true); err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}

	member, _ := channelRepo.GetMember(context.Background(), "vault", "alice")
	if member == nil {
		t.Fatalf("approval did not add the member")
	}
	if len(sink.subs) != 1 || sink.subs[0] != [2]string{"alice", "vault"} {
		t.Errorf("approval did not subscribe the live session: %v", sink.subs)
	}
	req, _ := requestRepo.GetByID(context.Background(), res.Request.ID)
	if req.Status != domain.JoinRequestApproved {
		t.Errorf("request status = %s", req.Status)
	}

	// A resolved request cannot be resolved again.
	if err := svc.ResolveRequest(context.Background(), "root", res.Request.ID, false); !errors.Is(err, ErrJoinRequestNotFound) {
		t.Errorf("re-resolve err = %v, want ErrJoinRequestNotFound", err)
	}
}

func TestResolveRequestDeny(t *testing.T) {
	t.Parallel()
	private := publicChannel("vault")
	private.IsPrivate = true
	svc, channelRepo, requestRepo, sink := newChannelFixture(
		[]*domain.Channel{private}, testUser("alice"), adminUser("root"))

	res, err := svc.Join(context.Background(), "alice", "vault", "")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := svc.ResolveRequest(context.Background(), "root", res.Request.ID, false); err != nil {
		t.Fatalf("ResolveRequest: %v", err)
	}
	if member, _ := channelRepo.GetMember(context.Background(), "vault", "alice"); member != nil {
		t.Errorf("denial added a member")
	}
	if len(sink.subs) != 0 {
		t.Errorf("denial subscribed the session")
	}
	req, _ := requestRepo.GetByID(context.Background(), res.Request.ID)
	if req.Status != domain.JoinRequestDenied {
		t.Errorf("request status = %s", req.Status)
	}
}

func TestListFiltersByTier(t *testing.T) {
	t.Parallel()
	fl := publicChannel("fl-only")
	fl.Tier = domain.TierFLLicensed
	svc, _, _, _ := newChannelFixture(
		[]*domain.Channel{publicChannel("general"), fl},
		testUser("alice"), adminUser("root"))

	visible, err := svc.List(context.Background(), "alice", domain.ChannelFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != "general" {
		t.Errorf("unlicensed user sees %v", visible)
	}

	all, err := svc.List(context.Background(), "root", domain.ChannelFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("admin sees %d channels, want 2", len(all))
	}
}

func TestListMembersAccessCheck(t *testing.T) {
	t.Parallel()
	private := publicChannel("vault")
	private.IsPrivate = true
	svc, channelRepo, _, _ := newChannelFixture(
		[]*domain.Channel{private}, testUser("alice"), testUser("bob"))
	channelRepo.AddMember(context.Background(), &domain.ChannelMember{ChannelID: "vault", UserID: "bob", Role: "member"})

	if _, err := svc.ListMembers(context.Background(), "alice", "vault"); !errors.Is(err, ErrNotChannelMember) {
		t.Fatalf("outsider err = %v", err)
	}
	members, err := svc.ListMembers(context.Background(), "bob", "vault")
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 1 || members[0].UserID != "bob" {
		t.Errorf("members = %v", members)
	}
}

func TestAccessibleIDsCoverArchivedAndPrivate(t *testing.T) {
	t.Parallel()
	archived := publicChannel("old")
	archived.IsArchived = true
	private := publicChannel("vault")
	private.IsPrivate = true
	svc, channelRepo, _, _ := newChannelFixture(
		[]*domain.Channel{publicChannel("general"), archived, private}, testUser("alice"))
	channelRepo.AddMember(context.Background(), &domain.ChannelMember{ChannelID: "vault", UserID: "alice", Role: "member"})

	ids, err := svc.AccessibleIDs(context.Background(), "alice")
	if err != nil {
		t.Fatalf("AccessibleIDs: %v", err)
	}
	got := make(map[string]bool, len(ids))
	for _, id := range ids {
		got[id] = true
	}
	// A session subscribes to everything the tier allows, archived and
	// private included, so history stays readable.
	for _, want := range []string{"general", "old", "vault"} {
		if !got[want] {
			t.Errorf("missing %q in %v", want, ids)
		}
	}
}
