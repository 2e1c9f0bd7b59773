package client

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/protocol"
)

// fakeAPI is an in-memory API the sync core refetches from.
type fakeAPI struct {
	mu sync.Mutex

	channelsList []domain.Channel
	messages     map[string][]domain.Message
	threads      map[string][]domain.DirectMessage
	convs        []domain.DMConversation
	presence     []domain.PresenceRecord
	uploads      []domain.Upload

	joinResult *JoinResult
	joinErr    error
	uploadErr  error
	nextUpload *domain.Upload

	calls map[string]int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		messages: make(map[string][]domain.Message),
		threads:  make(map[string][]domain.DirectMessage),
		calls:    make(map[string]int),
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) ListChannels(ctx context.Context, filter domain.ChannelFilter) ([]domain.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ListChannels"]++
	return f.channelsList, nil
}

func (f *fakeAPI) JoinChannel(ctx context.Context, channelID, message string) (*JoinResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["JoinChannel"]++
	if f.joinErr != nil {
		return nil, f.joinErr
	}
	if f.joinResult != nil {
		return f.joinResult, nil
	}
	return &JoinResult{Joined: true}, nil
}

func (f *fakeAPI) LeaveChannel(ctx context.Context, channelID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["LeaveChannel"]++
	return nil
}

func (f *fakeAPI) ChannelMessages(ctx context.Context, channelID string) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ChannelMessages"]++
	return append([]domain.Message(nil), f.messages[channelID]...), nil
}

func (f *fakeAPI) Thread(ctx context.Context, otherUserID string) ([]domain.DirectMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Thread"]++
	return append([]domain.DirectMessage(nil), f.threads[otherUserID]...), nil
}

func (f *fakeAPI) Conversations(ctx context.Context) ([]domain.DMConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Conversations"]++
	return append([]domain.DMConversation(nil), f.convs...), nil
}

func (f *fakeAPI) MarkThreadRead(ctx context.Context, otherUserID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["MarkThreadRead"]++
	return nil
}

func (f *fakeAPI) Presence(ctx context.Context) ([]domain.PresenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Presence"]++
	return append([]domain.PresenceRecord(nil), f.presence...), nil
}

func (f *fakeAPI) Uploads(ctx context.Context) ([]domain.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Uploads"]++
	return append([]domain.Upload(nil), f.uploads...), nil
}

func (f *fakeAPI) UploadFile(ctx context.Context, fileName string, r io.Reader) (*domain.Upload, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["UploadFile"]++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	io.Copy(io.Discard, r)
	if f.nextUpload != nil {
		return f.nextUpload, nil
	}
	return &domain.Upload{ID: "up-1", FileName: fileName, FileURL: "/files/up-1"}, nil
}

// fakeSender records outbound events in place of a live connection.
type fakeSender struct {
	mu     sync.Mutex
	userID string
	err    error
	sent   []*protocol.Event
}

func (f *fakeSender) Send(ctx context.Context, ev *protocol.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, ev)
	return nil
}

func (f *fakeSender) UserID() string { return f.userID }

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeSender) lastSent() *protocol.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

func (f *fakeSender) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func newTestStore(api *fakeAPI, sender *fakeSender, timeout time.Duration) *Store {
	return NewStore(api, sender, StoreOptions{SendTimeout: timeout})
}

func msgAt(id, channelID, senderID, content string, at time.Time) domain.Message {
	return domain.Message{ID: id, ChannelID: channelID, SenderID: senderID, Content: content, CreatedAt: at}
}

func uploadBody() io.Reader {
	return bytes.NewReader([]byte("file-bytes"))
}
