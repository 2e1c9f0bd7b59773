package client

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/logger"
	"github.com/jasonhq/relay/internal/protocol"
)

// RouterOptions tunes the event router.
type RouterOptions struct {
	// OnSound fires for notification_sound events. Out-of-band audio cue
	// only; no state is mutated.
	OnSound func()
	Logger  *zap.SugaredLogger
}

// Router demultiplexes inbound transport events into the store, presence
// tracker, and upload coordinator. All dispatch happens on one sequential
// path in arrival order, at most once per event. Server sequence numbers
// guard against gaps: a skipped seq triggers a full resync instead of
// silently applying out-of-order state.
type Router struct {
	store    *Store
	presence *Presence
	uploads  *Uploads
	onSound  func()
	log      *zap.SugaredLogger

	// seq tracking is touched from two goroutines: Dispatch runs on the
	// router's path, SessionStateChanged on the connection's.
	mu       sync.Mutex
	lastSeq  uint64
	sessions int
}

func NewRouter(store *Store, presence *Presence, uploads *Uploads, opts RouterOptions) *Router {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Router{
		store:    store,
		presence: presence,
		uploads:  uploads,
		onSound:  opts.OnSound,
		log:      log,
	}
}

// Run consumes events until the channel closes or ctx is done.
func (r *Router) Run(ctx context.Context, events <-chan *protocol.Event) {
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			r.Dispatch(ctx, ev)
		case <-ctx.Done():
			return
		}
	}
}

// SessionStateChanged resets sequence tracking when a session becomes
// Active. Every session after the first resyncs: events broadcast while
// disconnected are gone for good.
func (r *Router) SessionStateChanged(ctx context.Context, state State) {
	if state != Active {
		return
	}
	r.mu.Lock()
	r.lastSeq = 0
	r.sessions++
	reconnected := r.sessions > 1
	r.mu.Unlock()
	if reconnected {
		r.resync(ctx)
	}
}

type seqVerdict int

const (
	seqApply seqVerdict = iota
	seqStale
	seqGap
)

// observeSeq advances the per-session counter and classifies the event.
func (r *Router) observeSeq(seq uint64) (seqVerdict, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.lastSeq
	if prev != 0 && seq <= prev {
		return seqStale, prev
	}
	r.lastSeq = seq
	if prev != 0 && seq > prev+1 {
		return seqGap, prev
	}
	return seqApply, prev
}

// Dispatch applies a single event.
func (r *Router) Dispatch(ctx context.Context, ev *protocol.Event) {
	if ev.Seq != 0 {
		switch verdict, prev := r.observeSeq(ev.Seq); verdict {
		case seqStale:
			r.log.Debugw("dropping stale event", "type", ev.Type, "seq", ev.Seq)
			return
		case seqGap:
			r.log.Warnw("sequence gap, resyncing", "have", prev, "got", ev.Seq)
			r.resync(ctx)
			return
		}
	}

	switch ev.Type {
	case protocol.TypeNewMessage:
		var p protocol.NewMessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.log.Warnw("bad new_message payload", "error", err)
			return
		}
		r.store.ApplyNewMessage(p.Message)

	case protocol.TypeMessageEdited:
		var p protocol.NewMessagePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.log.Warnw("bad message_edited payload", "error", err)
			return
		}
		r.store.ApplyMessageEdited(p.Message)

	case protocol.TypeMessageDeleted:
		var p protocol.MessageDeletedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.log.Warnw("bad message_deleted payload", "error", err)
			return
		}
		r.store.ApplyMessageDeleted(p.ChannelID, p.MessageID)

	case protocol.TypeNewDirectMessage:
		var p protocol.DirectMessageEventPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.log.Warnw("bad new_direct_message payload", "error", err)
			return
		}
		r.store.ApplyNewDirectMessage(p.DirectMessage)

	case protocol.TypeDirectMessageSent:
		var p protocol.DirectMessageEventPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.log.Warnw("bad direct_message_sent payload", "error", err)
			return
		}
		r.store.ApplyDirectMessageSent(p.DirectMessage)

	case protocol.TypeUserStatusChange, protocol.TypeUserOnlineStatus:
		var p protocol.StatusChangePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.log.Warnw("bad presence payload", "error", err)
			return
		}
		r.presence.Apply(p.UserID, p.Status)

	case protocol.TypeFileUploaded:
		var p protocol.FileUploadedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.log.Warnw("bad file_uploaded payload", "error", err)
			return
		}
		r.uploads.ApplyUploaded(p.Upload)

	case protocol.TypeResumeParsed:
		var p protocol.ResumeParsedPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.log.Warnw("bad resume_parsed payload", "error", err)
			return
		}
		r.uploads.ApplyResumeParsed(p.FileID, p.ParsedData, p.Failed)

	case protocol.TypeDMRead:
		if err := r.store.RefreshConversations(ctx); err != nil {
			r.log.Warnw("conversation refresh failed", "error", err)
		}

	case protocol.TypeUnreadCountsUpdated:
		var p protocol.UnreadCountsPayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			r.log.Warnw("bad unread_counts payload", "error", err)
			return
		}
		r.store.ApplyUnreadCounts(p.Counts)

	case protocol.TypeNotificationSound:
		if r.onSound != nil {
			r.onSound()
		}

	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := json.Unmarshal(ev.Payload, &p); err == nil {
			r.log.Warnw("server error event", "code", p.Code, "message", p.Message)
		}

	default:
		r.log.Debugw("ignoring unknown event type", "type", ev.Type)
	}
}

func (r *Router) resync(ctx context.Context) {
	if err := r.store.Resync(ctx); err != nil {
		r.log.Warnw("store resync failed", "error", err)
	}
	if err := r.presence.Poll(ctx); err != nil {
		r.log.Warnw("presence poll failed", "error", err)
	}
	if err := r.uploads.Refresh(ctx); err != nil {
		r.log.Warnw("upload refresh failed", "error", err)
	}
}
