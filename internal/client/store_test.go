package client

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/protocol"
)

func TestSendOptimisticAppend(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	sender := &fakeSender{userID: "me"}
	store := newTestStore(api, sender, time.Minute)

	id, err := store.Send(context.Background(), "general", "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	msgs := store.CurrentMessages("general")
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(msgs))
	}
	if msgs[0].ID != id || msgs[0].Content != "hello" || msgs[0].SenderID != "me" {
		t.Errorf("unexpected optimistic entry: %+v", msgs[0])
	}
	if store.Status(id) != SendPending {
		t.Errorf("status = %v, want SendPending", store.Status(id))
	}
	if sender.sentCount() != 1 {
		t.Errorf("sent %d events, want 1", sender.sentCount())
	}
}

func TestSendEchoReconciliation(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	sender := &fakeSender{userID: "me"}
	store := newTestStore(api, sender, time.Minute)

	provisional, err := store.Send(context.Background(), "general", "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	echo := msgAt("srv-1", "general", "me", "hello", time.Now())
	echo.Nonce = provisional
	store.ApplyNewMessage(echo)

	msgs := store.CurrentMessages("general")
	if len(msgs) != 1 {
		t.Fatalf("echo duplicated the entry: %d messages", len(msgs))
	}
	if msgs[0].ID != "srv-1" {
		t.Errorf("id = %s, want server id", msgs[0].ID)
	}
	if store.Status("srv-1") != SendConfirmed {
		t.Errorf("status = %v, want SendConfirmed", store.Status("srv-1"))
	}
	if store.Status(provisional) != SendUnknown {
		t.Errorf("provisional id still tracked")
	}
}

func TestSendEchoReordersBySenderClockSkew(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	store := newTestStore(api, &fakeSender{userID: "me"}, time.Minute)
	if err := store.SetActiveChannel(context.Background(), "general"); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	store.ApplyNewMessage(msgAt("m1", "general", "peer", "earlier", time.Now().Add(-time.Minute)))

	provisional, err := store.Send(context.Background(), "general", "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Server clock runs behind ours: the confirmed timestamp lands before
	// the neighbor the provisional entry trailed.
	echo := msgAt("srv-1", "general", "me", "hello", time.Now().Add(-2*time.Minute))
	echo.Nonce = provisional
	store.ApplyNewMessage(echo)

	msgs := store.CurrentMessages("general")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].ID != "srv-1" || msgs[1].ID != "m1" {
		t.Errorf("order = [%s %s], want the echo re-slotted first", msgs[0].ID, msgs[1].ID)
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].CreatedAt.Before(msgs[i-1].CreatedAt) {
			t.Errorf("CreatedAt decreases at %d", i)
		}
	}
}

func TestDMEchoReordersBySenderClockSkew(t *testing.T) {
	t.Parallel()
	store := newTestStore(newFakeAPI(), &fakeSender{userID: "me"}, time.Minute)
	store.ApplyNewDirectMessage(domain.DirectMessage{
		ID: "d1", SenderID: "peer", ReceiverID: "me",
		Content: "earlier", CreatedAt: time.Now().Add(-time.Minute),
	})

	provisional, err := store.SendDM(context.Background(), "peer", "hello", nil)
	if err != nil {
		t.Fatalf("SendDM: %v", err)
	}

	echo := domain.DirectMessage{
		ID: "srv-d1", SenderID: "me", ReceiverID: "peer",
		Content: "hello", CreatedAt: time.Now().Add(-2 * time.Minute), Nonce: provisional,
	}
	store.ApplyDirectMessageSent(echo)

	msgs := store.ThreadMessages("peer")
	if len(msgs) != 2 || msgs[0].ID != "srv-d1" || msgs[1].ID != "d1" {
		t.Errorf("thread order = %v, want the echo re-slotted first", msgs)
	}
}

func TestApplyNewMessageDedupesByID(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	store := newTestStore(api, &fakeSender{userID: "me"}, time.Minute)

	if err := store.SetActiveChannel(context.Background(), "general"); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	msg := msgAt("m1", "general", "peer", "hi", time.Now())
	store.ApplyNewMessage(msg)
	store.ApplyNewMessage(msg)

	if got := len(store.CurrentMessages("general")); got != 1 {
		t.Errorf("got %d messages, want 1", got)
	}
}

func TestApplyNewMessageUntrackedChannelIgnored(t *testing.T) {
	t.Parallel()
	store := newTestStore(newFakeAPI(), &fakeSender{userID: "me"}, time.Minute)

	store.ApplyNewMessage(msgAt("m1", "never-opened", "peer", "hi", time.Now()))

	if got := len(store.CurrentMessages("never-opened")); got != 0 {
		t.Errorf("untracked channel was populated: %d messages", got)
	}
}

func TestMessagesStayOrdered(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	api.messages["general"] = []domain.Message{
		msgAt("m3", "general", "a", "third", base.Add(2*time.Second)),
		msgAt("m1", "general", "a", "first", base),
	}
	store := newTestStore(api, &fakeSender{userID: "me"}, time.Minute)

	if err := store.SetActiveChannel(context.Background(), "general"); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}
	store.ApplyNewMessage(msgAt("m2", "general", "b", "second", base.Add(time.Second)))

	msgs := store.CurrentMessages("general")
	want := []string{"m1", "m2", "m3"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, id := range want {
		if msgs[i].ID != id {
			t.Errorf("msgs[%d].ID = %s, want %s", i, msgs[i].ID, id)
		}
	}
}

func TestSendFailFastWhenDisconnected(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{userID: "me", err: ErrNotConnected}
	store := newTestStore(newFakeAPI(), sender, time.Minute)

	id, err := store.Send(context.Background(), "general", "hello", nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("err = %v, want ErrNotConnected", err)
	}
	// The entry stays visible and marked failed, never silently dropped.
	if got := len(store.CurrentMessages("general")); got != 1 {
		t.Fatalf("got %d messages, want 1", got)
	}
	if store.Status(id) != SendFailed {
		t.Errorf("status = %v, want SendFailed", store.Status(id))
	}
}

func TestSendDeadlineMarksFailed(t *testing.T) {
	t.Parallel()
	store := newTestStore(newFakeAPI(), &fakeSender{userID: "me"}, 10*time.Millisecond)

	id, err := store.Send(context.Background(), "general", "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for store.Status(id) != SendFailed {
		if time.Now().After(deadline) {
			t.Fatalf("send never marked failed, status = %v", store.Status(id))
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRetryResubmitsUnderOriginalNonce(t *testing.T) {
	t.Parallel()
	sender := &fakeSender{userID: "me", err: ErrNotConnected}
	store := newTestStore(newFakeAPI(), sender, time.Minute)

	id, _ := store.Send(context.Background(), "general", "hello", nil)
	if store.Status(id) != SendFailed {
		t.Fatalf("setup: status = %v, want SendFailed", store.Status(id))
	}

	sender.setErr(nil)
	if err := store.Retry(context.Background(), id); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if store.Status(id) != SendPending {
		t.Errorf("status = %v, want SendPending", store.Status(id))
	}

	var payload protocol.MessagePayload
	if err := unmarshalPayload(sender.lastSent(), &payload); err != nil {
		t.Fatalf("decoding resubmitted event: %v", err)
	}
	if payload.Nonce != id {
		t.Errorf("resubmitted nonce = %s, want original %s", payload.Nonce, id)
	}

	// Only failed sends are retryable.
	if err := store.Retry(context.Background(), id); !errors.Is(err, ErrUnknownMessage) {
		t.Errorf("retry of pending send: err = %v, want ErrUnknownMessage", err)
	}
}

func TestDisconnectFailsInFlightSends(t *testing.T) {
	t.Parallel()
	store := newTestStore(newFakeAPI(), &fakeSender{userID: "me"}, time.Minute)

	id, err := store.Send(context.Background(), "general", "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	store.SessionStateChanged(Disconnected)

	if store.Status(id) != SendFailed {
		t.Errorf("status = %v, want SendFailed after disconnect", store.Status(id))
	}
	if got := len(store.CurrentMessages("general")); got != 1 {
		t.Errorf("failed send dropped from view: %d messages", got)
	}
}

func TestPendingSendSurvivesRefetch(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	store := newTestStore(api, &fakeSender{userID: "me"}, time.Minute)

	id, err := store.Send(context.Background(), "general", "hello", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}

	// Server history does not know the unacknowledged send yet.
	api.mu.Lock()
	api.messages["general"] = []domain.Message{msgAt("m1", "general", "peer", "earlier", time.Now().Add(-time.Hour))}
	api.mu.Unlock()

	if err := store.SetActiveChannel(context.Background(), "general"); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}

	msgs := store.CurrentMessages("general")
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want refetched + pending", len(msgs))
	}
	if msgs[1].ID != id {
		t.Errorf("pending optimistic entry missing after refetch")
	}
}

func TestEditRequiresOwnership(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	api.messages["general"] = []domain.Message{
		msgAt("mine", "general", "me", "draft", time.Now().Add(-2*time.Minute)),
		msgAt("theirs", "general", "peer", "hi", time.Now().Add(-time.Minute)),
	}
	sender := &fakeSender{userID: "me"}
	store := newTestStore(api, sender, time.Minute)
	if err := store.SetActiveChannel(context.Background(), "general"); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}

	if err := store.Edit(context.Background(), "theirs", "hacked"); !errors.Is(err, ErrMutationRejected) {
		t.Fatalf("editing someone else's message: err = %v, want ErrMutationRejected", err)
	}
	if sender.sentCount() != 0 {
		t.Fatalf("rejected edit still sent an event")
	}

	if err := store.Edit(context.Background(), "mine", "final"); err != nil {
		t.Fatalf("Edit: %v", err)
	}
	msgs := store.CurrentMessages("general")
	if msgs[0].Content != "final" || !msgs[0].IsEdited {
		t.Errorf("optimistic edit not applied: %+v", msgs[0])
	}
	if sender.lastSent().Type != protocol.TypeEditMessage {
		t.Errorf("sent %s, want edit_message", sender.lastSent().Type)
	}
}

func TestDeleteRequiresOwnership(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	api.messages["general"] = []domain.Message{
		msgAt("mine", "general", "me", "oops", time.Now().Add(-2*time.Minute)),
		msgAt("theirs", "general", "peer", "hi", time.Now().Add(-time.Minute)),
	}
	sender := &fakeSender{userID: "me"}
	store := newTestStore(api, sender, time.Minute)
	if err := store.SetActiveChannel(context.Background(), "general"); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}

	if err := store.Delete(context.Background(), "theirs"); !errors.Is(err, ErrMutationRejected) {
		t.Fatalf("deleting someone else's message: err = %v, want ErrMutationRejected", err)
	}

	if err := store.Delete(context.Background(), "mine"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if containsMessage(store.CurrentMessages("general"), "mine") {
		t.Errorf("deleted message still visible")
	}
}

func TestApplyMessageEditedAndDeleted(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	api.messages["general"] = []domain.Message{
		msgAt("m1", "general", "peer", "original", time.Now()),
	}
	store := newTestStore(api, &fakeSender{userID: "me"}, time.Minute)
	if err := store.SetActiveChannel(context.Background(), "general"); err != nil {
		t.Fatalf("SetActiveChannel: %v", err)
	}

	edited := msgAt("m1", "general", "peer", "revised", time.Now())
	edited.IsEdited = true
	store.ApplyMessageEdited(edited)
	if got := store.CurrentMessages("general")[0]; got.Content != "revised" || !got.IsEdited {
		t.Errorf("edit broadcast not applied: %+v", got)
	}

	store.ApplyMessageDeleted("general", "m1")
	if got := len(store.CurrentMessages("general")); got != 0 {
		t.Errorf("delete broadcast not applied: %d messages", got)
	}
}

func TestInboundDMBumpsUnread(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	store := newTestStore(api, &fakeSender{userID: "me"}, time.Minute)

	dm := domain.DirectMessage{ID: "d1", SenderID: "peer", ReceiverID: "me", Content: "hey", CreatedAt: time.Now()}
	store.ApplyNewDirectMessage(dm)

	convs := store.Conversations()
	if len(convs) != 1 || convs[0].OtherUserID != "peer" {
		t.Fatalf("rollup missing: %v", convs)
	}
	if convs[0].UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", convs[0].UnreadCount)
	}

	// Opening the thread marks it read and zeroes the badge.
	api.mu.Lock()
	api.threads["peer"] = []domain.DirectMessage{dm}
	api.mu.Unlock()
	if err := store.OpenThread(context.Background(), "peer"); err != nil {
		t.Fatalf("OpenThread: %v", err)
	}
	if api.count("MarkThreadRead") != 1 {
		t.Errorf("MarkThreadRead called %d times, want 1", api.count("MarkThreadRead"))
	}
	if got := store.Conversations()[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d after open, want 0", got)
	}

	// With the thread active, further inbound DMs do not bump the badge.
	store.ApplyNewDirectMessage(domain.DirectMessage{ID: "d2", SenderID: "peer", ReceiverID: "me", Content: "again", CreatedAt: time.Now()})
	if got := store.Conversations()[0].UnreadCount; got != 0 {
		t.Errorf("unread = %d with thread active, want 0", got)
	}
}

func TestDMEchoReconciliation(t *testing.T) {
	t.Parallel()
	store := newTestStore(newFakeAPI(), &fakeSender{userID: "me"}, time.Minute)

	provisional, err := store.SendDM(context.Background(), "peer", "hello", nil)
	if err != nil {
		t.Fatalf("SendDM: %v", err)
	}

	echo := domain.DirectMessage{
		ID: "srv-d1", SenderID: "me", ReceiverID: "peer",
		Content: "hello", CreatedAt: time.Now(), Nonce: provisional,
	}
	store.ApplyDirectMessageSent(echo)

	msgs := store.ThreadMessages("peer")
	if len(msgs) != 1 || msgs[0].ID != "srv-d1" {
		t.Fatalf("echo not reconciled: %v", msgs)
	}
	if store.Status("srv-d1") != SendConfirmed {
		t.Errorf("status = %v, want SendConfirmed", store.Status("srv-d1"))
	}
	// Our own outbound echo must not bump unread.
	if convs := store.Conversations(); len(convs) == 1 && convs[0].UnreadCount != 0 {
		t.Errorf("own echo bumped unread: %d", convs[0].UnreadCount)
	}
}

func TestApplyUnreadCountsOverwrites(t *testing.T) {
	t.Parallel()
	store := newTestStore(newFakeAPI(), &fakeSender{userID: "me"}, time.Minute)
	store.ApplyNewDirectMessage(domain.DirectMessage{ID: "d1", SenderID: "peer", ReceiverID: "me", Content: "a", CreatedAt: time.Now()})
	store.ApplyNewDirectMessage(domain.DirectMessage{ID: "d2", SenderID: "other", ReceiverID: "me", Content: "b", CreatedAt: time.Now()})

	store.ApplyUnreadCounts(map[string]int{"peer": 5})

	for _, conv := range store.Conversations() {
		switch conv.OtherUserID {
		case "peer":
			if conv.UnreadCount != 5 {
				t.Errorf("peer unread = %d, want 5", conv.UnreadCount)
			}
		case "other":
			if conv.UnreadCount != 0 {
				t.Errorf("other unread = %d, want 0", conv.UnreadCount)
			}
		}
	}
}

func TestJoinCachesPendingRequest(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	api.joinResult = &JoinResult{Request: &domain.JoinRequest{ID: "r1", ChannelID: "private", Status: domain.JoinRequestPending}}
	store := newTestStore(api, &fakeSender{userID: "me"}, time.Minute)

	result, err := store.Join(context.Background(), "private", "let me in")
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if result.Joined {
		t.Errorf("private join reported immediate membership")
	}
	if req := store.JoinRequestFor("private"); req == nil || req.ID != "r1" {
		t.Errorf("pending request not cached: %v", req)
	}
}

func TestJoinArchivedSurfacesError(t *testing.T) {
	t.Parallel()
	api := newFakeAPI()
	api.joinErr = ErrChannelArchived
	store := newTestStore(api, &fakeSender{userID: "me"}, time.Minute)

	if _, err := store.Join(context.Background(), "old", ""); !errors.Is(err, ErrChannelArchived) {
		t.Errorf("err = %v, want ErrChannelArchived", err)
	}
}
