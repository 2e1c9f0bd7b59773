package service

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/jasonhq/relay/internal/domain"
)

// In-memory repositories for service tests.

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*domain.User
}

func newMemUserRepo(users ...*domain.User) *memUserRepo {
	r := &memUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memUserRepo) Create(ctx context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[id], nil
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) List(ctx context.Context) ([]domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	return out, nil
}

type memberKey struct{ channelID, userID string }

type memChannelRepo struct {
	mu       sync.Mutex
	channels map[string]*domain.Channel
	members  map[memberKey]*domain.ChannelMember
}

func newMemChannelRepo(channels ...*domain.Channel) *memChannelRepo {
	r := &memChannelRepo{
		channels: make(map[string]*domain.Channel),
		members:  make(map[memberKey]*domain.ChannelMember),
	}
	for _, ch := range channels {
		r.channels[ch.ID] = ch
	}
	return r
}

func (r *memChannelRepo) Create(ctx context.Context, ch *domain.Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.channels[ch.ID] = ch
	return nil
}

func (r *memChannelRepo) GetByID(ctx context.Context, id string) (*domain.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[id]
	if !ok {
		return nil, nil
	}
	out := *ch
	return &out, nil
}

func (r *memChannelRepo) List(ctx context.Context, forUserID string, filter domain.ChannelFilter) ([]domain.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		if ch.IsArchived && !filter.ShowArchived {
			continue
		}
		if ch.IsPrivate && !filter.ShowPrivate {
			continue
		}
		if filter.Tier != nil && ch.Tier != *filter.Tier {
			continue
		}
		c := *ch
		if m, ok := r.members[memberKey{ch.ID, forUserID}]; ok {
			c.IsMember = true
			c.MemberRole = m.Role
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *memChannelRepo) Archive(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[id]; ok {
		ch.IsArchived = true
	}
	return nil
}

func (r *memChannelRepo) AddMember(ctx context.Context, member *domain.ChannelMember) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[memberKey{member.ChannelID, member.UserID}] = member
	return nil
}

func (r *memChannelRepo) RemoveMember(ctx context.Context, channelID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, memberKey{channelID, userID})
	return nil
}

func (r *memChannelRepo) GetMember(ctx context.Context, channelID, userID string) (*domain.ChannelMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.members[memberKey{channelID, userID}], nil
}

func (r *memChannelRepo) ListMembers(ctx context.Context, channelID string) ([]domain.ChannelMember, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ChannelMember
	for key, m := range r.members {
		if key.channelID == channelID {
			out = append(out, *m)
		}
	}
	return out, nil
}

type memMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*domain.Message
}

func newMemMessageRepo() *memMessageRepo {
	return &memMessageRepo{messages: make(map[string]*domain.Message)}
}

func (r *memMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *msg
	r.messages[msg.ID] = &cp
	return nil
}

func (r *memMessageRepo) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	msg, ok := r.messages[id]
	if !ok || msg.DeletedAt != nil {
		return nil, nil
	}
	out := *msg
	return &out, nil
}

func (r *memMessageRepo) ListByChannel(ctx context.Context, channelID string, limit int) ([]domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Message
	for _, msg := range r.messages {
		if msg.ChannelID == channelID && msg.DeletedAt == nil {
			out = append(out, *msg)
		}
	}
	return out, nil
}

func (r *memMessageRepo) Update(ctx context.Context, msg *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.messages[msg.ID]; ok {
		existing.Content = msg.Content
		existing.IsEdited = true
	}
	return nil
}

func (r *memMessageRepo) SoftDelete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if msg, ok := r.messages[id]; ok {
		now := msg.CreatedAt
		msg.DeletedAt = &now
	}
	return nil
}

type memDMRepo struct {
	mu  sync.Mutex
	dms map[string]*domain.DirectMessage
}

func newMemDMRepo() *memDMRepo {
	return &memDMRepo{dms: make(map[string]*domain.DirectMessage)}
}

func (r *memDMRepo) Create(ctx context.Context, dm *domain.DirectMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *dm
	r.dms[dm.ID] = &cp
	return nil
}

func (r *memDMRepo) GetByID(ctx context.Context, id string) (*domain.DirectMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	dm, ok := r.dms[id]
	if !ok {
		return nil, nil
	}
	out := *dm
	return &out, nil
}

func (r *memDMRepo) ListBetween(ctx context.Context, userA, userB string, limit int) ([]domain.DirectMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.DirectMessage
	for _, dm := range r.dms {
		if (dm.SenderID == userA && dm.ReceiverID == userB) || (dm.SenderID == userB && dm.ReceiverID == userA) {
			out = append(out, *dm)
		}
	}
	return out, nil
}

func (r *memDMRepo) MarkRead(ctx context.Context, readerID, senderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, dm := range r.dms {
		if dm.ReceiverID == readerID && dm.SenderID == senderID {
			dm.IsRead = true
		}
	}
	return nil
}

func (r *memDMRepo) Conversations(ctx context.Context, userID string) ([]domain.DMConversation, error) {
	return nil, nil
}

func (r *memDMRepo) UnreadCounts(ctx context.Context, userID string) (map[string]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := make(map[string]int)
	for _, dm := range r.dms {
		if dm.ReceiverID == userID && !dm.IsRead {
			counts[dm.SenderID]++
		}
	}
	return counts, nil
}

type memJoinRequestRepo struct {
	mu       sync.Mutex
	requests map[string]*domain.JoinRequest
}

func newMemJoinRequestRepo() *memJoinRequestRepo {
	return &memJoinRequestRepo{requests: make(map[string]*domain.JoinRequest)}
}

func (r *memJoinRequestRepo) Create(ctx context.Context, req *domain.JoinRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *req
	r.requests[req.ID] = &cp
	return nil
}

func (r *memJoinRequestRepo) GetByID(ctx context.Context, id string) (*domain.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.requests[id]
	if !ok {
		return nil, nil
	}
	out := *req
	return &out, nil
}

func (r *memJoinRequestRepo) GetPending(ctx context.Context, channelID, userID string) (*domain.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, req := range r.requests {
		if req.ChannelID == channelID && req.UserID == userID && req.Status == domain.JoinRequestPending {
			out := *req
			return &out, nil
		}
	}
	return nil, nil
}

func (r *memJoinRequestRepo) ListPending(ctx context.Context, channelID string) ([]domain.JoinRequest, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.JoinRequest
	for _, req := range r.requests {
		if req.ChannelID == channelID && req.Status == domain.JoinRequestPending {
			out = append(out, *req)
		}
	}
	return out, nil
}

func (r *memJoinRequestRepo) UpdateStatus(ctx context.Context, id string, status domain.JoinRequestStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.requests[id]; ok {
		req.Status = status
	}
	return nil
}

// recordingNotifier captures notifier calls for assertions.
type recordingNotifier struct {
	mu           sync.Mutex
	newMessages  []*domain.Message
	edited       []*domain.Message
	deleted      []string
	dms          []*domain.DirectMessage
	dmUnread     []map[string]int
	dmReads      [][2]string
	uploaded     []*domain.Upload
	parsedFiles  []string
	parsedFailed []bool
}

func (n *recordingNotifier) NewMessage(msg *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.newMessages = append(n.newMessages, msg)
}

func (n *recordingNotifier) MessageEdited(msg *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.edited = append(n.edited, msg)
}

func (n *recordingNotifier) MessageDeleted(channelID, messageID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deleted = append(n.deleted, messageID)
}

func (n *recordingNotifier) NewDirectMessage(dm *domain.DirectMessage, receiverUnread map[string]int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dms = append(n.dms, dm)
	n.dmUnread = append(n.dmUnread, receiverUnread)
}

func (n *recordingNotifier) DMRead(readerID, senderID string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dmReads = append(n.dmReads, [2]string{readerID, senderID})
}

func (n *recordingNotifier) FileUploaded(up *domain.Upload) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.uploaded = append(n.uploaded, up)
}

func (n *recordingNotifier) ResumeParsed(userID, fileID string, data json.RawMessage, failed bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.parsedFiles = append(n.parsedFiles, fileID)
	n.parsedFailed = append(n.parsedFailed, failed)
}
