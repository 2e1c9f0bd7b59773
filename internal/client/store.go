package client

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/logger"
	"github.com/jasonhq/relay/internal/protocol"
)

// SendStatus tracks an optimistic send through its lifecycle.
type SendStatus int

const (
	// SendUnknown means the id is not an in-flight or failed send.
	SendUnknown SendStatus = iota
	// SendPending means the optimistic entry awaits its server echo.
	SendPending
	// SendConfirmed means the echo arrived and the entry carries the
	// server-assigned id.
	SendConfirmed
	// SendFailed means no echo arrived before the deadline, or the
	// session dropped while the send was in flight. The entry stays
	// visible; retry is user-initiated.
	SendFailed
)

// Sender is the outbound half of the session, satisfied by *Conn.
type Sender interface {
	Send(ctx context.Context, ev *protocol.Event) error
	UserID() string
}

// Attachment is a previously uploaded file reference carried on a send.
type Attachment struct {
	FileURL  string
	FileName string
}

// StoreOptions tunes the conversation store.
type StoreOptions struct {
	// SendTimeout bounds the wait for a send's server echo.
	SendTimeout time.Duration
	Logger      *zap.SugaredLogger
}

const defaultSendTimeout = 10 * time.Second

type pendingSend struct {
	nonce     string
	channelID string // set for channel sends
	dmUserID  string // set for DM sends (the other user)
	ev        *protocol.Event
	timer     *time.Timer
}

// Store is the client-side authoritative cache of channel messages, DM
// threads, join-request state, and DM conversation rollups. Sends append
// optimistically under a provisional uuid carried as the wire nonce and
// are reconciled against the server echo; edits and deletes apply locally
// and are confirmed by the triggered events. All event-driven mutation
// arrives on the router's single sequential path; the mutex only guards
// reads from other goroutines.
type Store struct {
	api  API
	conn Sender
	log  *zap.SugaredLogger

	sendTimeout time.Duration

	mu            sync.RWMutex
	channels      map[string][]domain.Message
	threads       map[string][]domain.DirectMessage
	conversations []domain.DMConversation
	joinRequests  map[string]*domain.JoinRequest
	activeChannel string
	activeThread  string
	pending       map[string]*pendingSend
	status        map[string]SendStatus
}

func NewStore(api API, conn Sender, opts StoreOptions) *Store {
	if opts.SendTimeout <= 0 {
		opts.SendTimeout = defaultSendTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Store{
		api:          api,
		conn:         conn,
		log:          log,
		sendTimeout:  opts.SendTimeout,
		channels:     make(map[string][]domain.Message),
		threads:      make(map[string][]domain.DirectMessage),
		joinRequests: make(map[string]*domain.JoinRequest),
		pending:      make(map[string]*pendingSend),
		status:       make(map[string]SendStatus),
	}
}

// --- Reads ---

// CurrentMessages returns the cached messages of a channel in order.
func (s *Store) CurrentMessages(channelID string) []domain.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Message, len(s.channels[channelID]))
	copy(out, s.channels[channelID])
	return out
}

// ThreadMessages returns the cached DM thread with another user in order.
func (s *Store) ThreadMessages(otherUserID string) []domain.DirectMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DirectMessage, len(s.threads[otherUserID]))
	copy(out, s.threads[otherUserID])
	return out
}

// Conversations returns the DM rollups.
func (s *Store) Conversations() []domain.DMConversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.DMConversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// JoinRequestFor returns the cached pending join request for a channel.
func (s *Store) JoinRequestFor(channelID string) *domain.JoinRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.joinRequests[channelID]
}

// Status reports the send lifecycle of a message id (provisional or
// confirmed).
func (s *Store) Status(messageID string) SendStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status[messageID]
}

// --- Navigation ---

// SetActiveChannel fetches the channel's messages and makes it current.
// Pending optimistic entries for the channel survive the refetch.
func (s *Store) SetActiveChannel(ctx context.Context, channelID string) error {
	msgs, err := s.api.ChannelMessages(ctx, channelID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeChannel = channelID
	s.channels[channelID] = s.mergePending(channelID, sortMessages(msgs))
	return nil
}

// OpenThread fetches the DM thread with another user, makes it current,
// and marks it read.
func (s *Store) OpenThread(ctx context.Context, otherUserID string) error {
	msgs, err := s.api.Thread(ctx, otherUserID)
	if err != nil {
		return err
	}
	if err := s.api.MarkThreadRead(ctx, otherUserID); err != nil {
		s.log.Warnw("mark thread read failed", "userId", otherUserID, "error", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeThread = otherUserID
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(&msgs[j]) })
	s.threads[otherUserID] = msgs
	s.zeroUnreadLocked(otherUserID)
	return nil
}

// CloseThread leaves the active DM thread.
func (s *Store) CloseThread() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activeThread = ""
}

// --- Channel membership ---

// Join attempts to join a channel. Public non-archived channels join
// immediately; private ones produce a pending JoinRequest, cached here.
// Archived channels surface ErrChannelArchived.
func (s *Store) Join(ctx context.Context, channelID, message string) (*JoinResult, error) {
	result, err := s.api.JoinChannel(ctx, channelID, message)
	if err != nil {
		return nil, err
	}
	if result.Request != nil {
		s.mu.Lock()
		s.joinRequests[channelID] = result.Request
		s.mu.Unlock()
	}
	return result, nil
}

// Leave leaves a channel and drops its cache.
func (s *Store) Leave(ctx context.Context, channelID string) error {
	if err := s.api.LeaveChannel(ctx, channelID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.channels, channelID)
	if s.activeChannel == channelID {
		s.activeChannel = ""
	}
	return nil
}

// --- Mutations ---

// Send optimistically appends to the channel and submits the message.
// The returned id is provisional until the echo arrives.
func (s *Store) Send(ctx context.Context, channelID, content string, att *Attachment) (string, error) {
	return s.sendChannel(ctx, s.conn.UserID(), channelID, content, att, false)
}

// SendAs submits on behalf of a synthetic sender; used by the bot
// injector so AI replies travel the identical path as human messages.
func (s *Store) SendAs(ctx context.Context, senderID, channelID, content string, aiGenerated bool) (string, error) {
	return s.sendChannel(ctx, senderID, channelID, content, nil, aiGenerated)
}

func (s *Store) sendChannel(ctx context.Context, senderID, channelID, content string, att *Attachment, aiGenerated bool) (string, error) {
	provisional := uuid.NewString()
	payload := protocol.MessagePayload{
		ChannelID:     channelID,
		UserID:        senderID,
		Content:       content,
		IsAiGenerated: aiGenerated,
		Nonce:         provisional,
	}
	msg := domain.Message{
		ID:            provisional,
		ChannelID:     channelID,
		SenderID:      senderID,
		Content:       content,
		IsAiGenerated: aiGenerated,
		CreatedAt:     time.Now(),
		Nonce:         provisional,
	}
	if att != nil {
		payload.FileURL = &att.FileURL
		payload.FileName = &att.FileName
		msg.FileURL = &att.FileURL
		msg.FileName = &att.FileName
	}
	ev, err := protocol.NewEvent(protocol.TypeMessage, payload)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.channels[channelID] = insertMessage(s.channels[channelID], msg)
	s.trackPendingLocked(&pendingSend{nonce: provisional, channelID: channelID, ev: ev})
	s.mu.Unlock()

	if err := s.conn.Send(ctx, ev); err != nil {
		s.failSend(provisional)
		return provisional, err
	}
	return provisional, nil
}

// SendDM optimistically appends to the thread and submits the DM.
func (s *Store) SendDM(ctx context.Context, receiverID, content string, att *Attachment) (string, error) {
	return s.sendDM(ctx, s.conn.UserID(), receiverID, content, att, false)
}

// SendDMAs is the bot-injection variant of SendDM.
func (s *Store) SendDMAs(ctx context.Context, senderID, receiverID, content string, aiGenerated bool) (string, error) {
	return s.sendDM(ctx, senderID, receiverID, content, nil, aiGenerated)
}

func (s *Store) sendDM(ctx context.Context, senderID, receiverID, content string, att *Attachment, aiGenerated bool) (string, error) {
	provisional := uuid.NewString()
	payload := protocol.DirectMessagePayload{
		ReceiverID:    receiverID,
		Content:       content,
		IsAiGenerated: aiGenerated,
		Nonce:         provisional,
	}
	if senderID != s.conn.UserID() {
		payload.SenderID = senderID
	}
	dm := domain.DirectMessage{
		ID:            provisional,
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Content:       content,
		IsAiGenerated: aiGenerated,
		CreatedAt:     time.Now(),
		Nonce:         provisional,
	}
	if att != nil {
		payload.FileURL = &att.FileURL
		payload.FileName = &att.FileName
		dm.FileURL = &att.FileURL
		dm.FileName = &att.FileName
	}
	ev, err := protocol.NewEvent(protocol.TypeDirectMessage, payload)
	if err != nil {
		return "", err
	}

	// The thread is keyed by the other participant. A bot reply injected
	// into our own thread keys by its receiver.
	threadKey := receiverID
	if receiverID == s.conn.UserID() {
		threadKey = senderID
	}

	s.mu.Lock()
	s.threads[threadKey] = insertDM(s.threads[threadKey], dm)
	s.trackPendingLocked(&pendingSend{nonce: provisional, dmUserID: threadKey, ev: ev})
	s.mu.Unlock()

	if err := s.conn.Send(ctx, ev); err != nil {
		s.failSend(provisional)
		return provisional, err
	}
	return provisional, nil
}

// Edit updates one of the caller's own messages. The change applies
// optimistically; the server's message_edited echo reconciles.
func (s *Store) Edit(ctx context.Context, messageID, content string) error {
	s.mu.Lock()
	msg := s.findMessageLocked(messageID)
	if msg == nil {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	if msg.SenderID != s.conn.UserID() {
		s.mu.Unlock()
		return ErrMutationRejected
	}
	msg.Content = content
	msg.IsEdited = true
	s.mu.Unlock()

	ev, err := protocol.NewEvent(protocol.TypeEditMessage, protocol.EditMessagePayload{
		MessageID: messageID,
		Content:   content,
	})
	if err != nil {
		return err
	}
	return s.conn.Send(ctx, ev)
}

// Delete removes one of the caller's own messages. Optimistic tombstone;
// message_deleted confirms.
func (s *Store) Delete(ctx context.Context, messageID string) error {
	s.mu.Lock()
	msg := s.findMessageLocked(messageID)
	if msg == nil {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	if msg.SenderID != s.conn.UserID() {
		s.mu.Unlock()
		return ErrMutationRejected
	}
	channelID := msg.ChannelID
	s.channels[channelID] = removeMessage(s.channels[channelID], messageID)
	s.mu.Unlock()

	ev, err := protocol.NewEvent(protocol.TypeDeleteMessage, protocol.DeleteMessagePayload{
		MessageID: messageID,
	})
	if err != nil {
		return err
	}
	return s.conn.Send(ctx, ev)
}

// Retry resubmits a failed send under its original nonce. User-initiated
// only; the store never resubmits by itself.
func (s *Store) Retry(ctx context.Context, provisionalID string) error {
	s.mu.Lock()
	p, ok := s.pending[provisionalID]
	if !ok || s.status[provisionalID] != SendFailed {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	s.status[provisionalID] = SendPending
	p.timer = time.AfterFunc(s.sendTimeout, func() { s.failSend(provisionalID) })
	s.mu.Unlock()

	if err := s.conn.Send(ctx, p.ev); err != nil {
		s.failSend(provisionalID)
		return err
	}
	return nil
}

// --- Event application (router's sequential path) ---

// ApplyNewMessage merges a new_message broadcast: reconcile our own echo
// by nonce, dedupe by id, otherwise insert in order.
func (s *Store) ApplyNewMessage(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Nonce != "" {
		if p, ok := s.pending[msg.Nonce]; ok && p.channelID != "" {
			s.confirmLocked(p, msg.Nonce, msg.ID)
			// The provisional entry sits at its client-clock slot; the
			// confirmed message reinserts at the server timestamp's.
			list := removeMessage(s.channels[p.channelID], msg.Nonce)
			list = removeMessage(list, msg.ID)
			s.channels[p.channelID] = insertMessage(list, msg)
			return
		}
	}
	list, tracked := s.channels[msg.ChannelID]
	if !tracked {
		// Not a channel we hold; it will be fetched on open.
		return
	}
	if containsMessage(list, msg.ID) {
		return
	}
	s.channels[msg.ChannelID] = insertMessage(list, msg)
}

// ApplyMessageEdited replaces the edited message in place.
func (s *Store) ApplyMessageEdited(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.channels[msg.ChannelID]
	for i := range list {
		if list[i].ID == msg.ID {
			list[i] = msg
			return
		}
	}
}

// ApplyMessageDeleted tombstones the message out of the active view.
func (s *Store) ApplyMessageDeleted(channelID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[channelID] = removeMessage(s.channels[channelID], messageID)
}

// ApplyNewDirectMessage merges an inbound DM and bumps the rollup. When
// the thread is not the active one the unread count increments; the
// router separately surfaces the audio cue.
func (s *Store) ApplyNewDirectMessage(dm domain.DirectMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	other := dm.SenderID
	if other == s.conn.UserID() {
		other = dm.ReceiverID
	}
	if dm.Nonce != "" {
		if p, ok := s.pending[dm.Nonce]; ok && p.dmUserID != "" {
			s.confirmLocked(p, dm.Nonce, dm.ID)
			thread := removeDM(s.threads[p.dmUserID], dm.Nonce)
			thread = removeDM(thread, dm.ID)
			s.threads[p.dmUserID] = insertDM(thread, dm)
			s.bumpConversationLocked(other, dm, false)
			return
		}
	}
	if containsDM(s.threads[other], dm.ID) {
		return
	}
	s.threads[other] = insertDM(s.threads[other], dm)
	s.bumpConversationLocked(other, dm, s.activeThread != other && dm.SenderID == other)
}

// ApplyDirectMessageSent reconciles our own outbound DM echo.
func (s *Store) ApplyDirectMessageSent(dm domain.DirectMessage) {
	s.ApplyNewDirectMessage(dm)
}

// ApplyUnreadCounts overwrites the rollup unread counts with the
// server's numbers.
func (s *Store) ApplyUnreadCounts(counts map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.conversations {
		if n, ok := counts[s.conversations[i].OtherUserID]; ok {
			s.conversations[i].UnreadCount = n
		} else {
			s.conversations[i].UnreadCount = 0
		}
	}
}

// RefreshConversations refetches the DM rollups.
func (s *Store) RefreshConversations(ctx context.Context) error {
	convs, err := s.api.Conversations(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.conversations = convs
	s.mu.Unlock()
	return nil
}

// Resync refetches everything the store currently tracks. The router
// calls this when it detects a sequence gap.
func (s *Store) Resync(ctx context.Context) error {
	s.mu.RLock()
	channel := s.activeChannel
	thread := s.activeThread
	s.mu.RUnlock()

	if channel != "" {
		if err := s.SetActiveChannel(ctx, channel); err != nil {
			return err
		}
	}
	if thread != "" {
		if err := s.OpenThread(ctx, thread); err != nil {
			return err
		}
	}
	return s.RefreshConversations(ctx)
}

// SessionStateChanged lets the store react to connection transitions.
// On Disconnected every in-flight send is marked failed: never silently
// dropped, never auto-resubmitted.
func (s *Store) SessionStateChanged(state State) {
	if state != Disconnected {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for nonce, st := range s.status {
		if st == SendPending {
			s.status[nonce] = SendFailed
			if p, ok := s.pending[nonce]; ok && p.timer != nil {
				p.timer.Stop()
			}
		}
	}
}

// --- internals ---

func (s *Store) trackPendingLocked(p *pendingSend) {
	s.pending[p.nonce] = p
	s.status[p.nonce] = SendPending
	nonce := p.nonce
	p.timer = time.AfterFunc(s.sendTimeout, func() { s.failSend(nonce) })
}

func (s *Store) failSend(nonce string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status[nonce] != SendPending {
		return
	}
	s.status[nonce] = SendFailed
	if p, ok := s.pending[nonce]; ok && p.timer != nil {
		p.timer.Stop()
	}
	s.log.Warnw("send not acknowledged", "id", nonce)
}

func (s *Store) confirmLocked(p *pendingSend, nonce, serverID string) {
	if p.timer != nil {
		p.timer.Stop()
	}
	delete(s.pending, nonce)
	delete(s.status, nonce)
	s.status[serverID] = SendConfirmed
}

func (s *Store) findMessageLocked(messageID string) *domain.Message {
	for id := range s.channels {
		list := s.channels[id]
		for i := range list {
			if list[i].ID == messageID {
				return &list[i]
			}
		}
	}
	return nil
}

// mergePending re-applies still-pending optimistic entries after a
// refetch so an unacknowledged send does not vanish from the view.
func (s *Store) mergePending(channelID string, msgs []domain.Message) []domain.Message {
	for nonce, p := range s.pending {
		if p.channelID != channelID {
			continue
		}
		if s.status[nonce] != SendPending && s.status[nonce] != SendFailed {
			continue
		}
		var payload protocol.MessagePayload
		if err := unmarshalPayload(p.ev, &payload); err != nil {
			continue
		}
		if containsNonce(msgs, nonce) || containsMessage(msgs, nonce) {
			continue
		}
		msg := domain.Message{
			ID:            nonce,
			ChannelID:     channelID,
			SenderID:      payload.UserID,
			Content:       payload.Content,
			FileURL:       payload.FileURL,
			FileName:      payload.FileName,
			IsAiGenerated: payload.IsAiGenerated,
			CreatedAt:     time.Now(),
			Nonce:         nonce,
		}
		msgs = insertMessage(msgs, msg)
	}
	return msgs
}

func (s *Store) bumpConversationLocked(other string, dm domain.DirectMessage, unread bool) {
	for i := range s.conversations {
		if s.conversations[i].OtherUserID == other {
			if dm.CreatedAt.After(s.conversations[i].LastMessageAt) {
				s.conversations[i].LastMessage = dm.Content
				s.conversations[i].LastMessageAt = dm.CreatedAt
			}
			if unread {
				s.conversations[i].UnreadCount++
			}
			return
		}
	}
	conv := domain.DMConversation{
		OtherUserID:   other,
		LastMessage:   dm.Content,
		LastMessageAt: dm.CreatedAt,
	}
	if unread {
		conv.UnreadCount = 1
	}
	s.conversations = append(s.conversations, conv)
}

func (s *Store) zeroUnreadLocked(other string) {
	for i := range s.conversations {
		if s.conversations[i].OtherUserID == other {
			s.conversations[i].UnreadCount = 0
			return
		}
	}
}

// --- slice helpers ---

func sortMessages(msgs []domain.Message) []domain.Message {
	sort.Slice(msgs, func(i, j int) bool { return msgs[i].Before(&msgs[j]) })
	return msgs
}

func insertMessage(list []domain.Message, msg domain.Message) []domain.Message {
	i := sort.Search(len(list), func(i int) bool { return msg.Before(&list[i]) })
	list = append(list, domain.Message{})
	copy(list[i+1:], list[i:])
	list[i] = msg
	return list
}

func removeMessage(list []domain.Message, id string) []domain.Message {
	for i := range list {
		if list[i].ID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func containsMessage(list []domain.Message, id string) bool {
	for i := range list {
		if list[i].ID == id {
			return true
		}
	}
	return false
}

func containsNonce(list []domain.Message, nonce string) bool {
	for i := range list {
		if list[i].Nonce == nonce {
			return true
		}
	}
	return false
}

func insertDM(list []domain.DirectMessage, dm domain.DirectMessage) []domain.DirectMessage {
	i := sort.Search(len(list), func(i int) bool { return dm.Before(&list[i]) })
	list = append(list, domain.DirectMessage{})
	copy(list[i+1:], list[i:])
	list[i] = dm
	return list
}

func containsDM(list []domain.DirectMessage, id string) bool {
	for i := range list {
		if list[i].ID == id {
			return true
		}
	}
	return false
}

func removeDM(list []domain.DirectMessage, id string) []domain.DirectMessage {
	for i := range list {
		if list[i].ID == id {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func unmarshalPayload(ev *protocol.Event, out any) error {
	if ev.Payload == nil {
		return nil
	}
	return json.Unmarshal(ev.Payload, out)
}
