package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/logger"
)

const defaultPollInterval = 30 * time.Second

// Presence maintains online/offline status per user. Push events are the
// low-latency path; the fixed-interval poll is the correctness backstop
// against missed events. The set is keyed by userId; last-seen wins.
type Presence struct {
	api      API
	interval time.Duration
	log      *zap.SugaredLogger

	mu      sync.RWMutex
	records map[string]domain.PresenceRecord
}

func NewPresence(api API, interval time.Duration, log *zap.SugaredLogger) *Presence {
	if interval <= 0 {
		interval = defaultPollInterval
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Presence{
		api:      api,
		interval: interval,
		log:      log,
		records:  make(map[string]domain.PresenceRecord),
	}
}

// Apply is the push path for user_status_change events.
func (p *Presence) Apply(userID, status string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records[userID] = domain.PresenceRecord{
		UserID:   userID,
		Status:   status,
		LastSeen: time.Now(),
	}
}

// Poll is the pull path; it overwrites the set with the server's view.
func (p *Presence) Poll(ctx context.Context) error {
	records, err := p.api.Presence(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.records = make(map[string]domain.PresenceRecord, len(records))
	for _, rec := range records {
		p.records[rec.UserID] = rec
	}
	return nil
}

// Run polls on the fixed interval until ctx is done.
func (p *Presence) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.log.Warnw("presence poll failed", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// StatusOf returns a user's last known status, offline when unknown.
func (p *Presence) StatusOf(userID string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if rec, ok := p.records[userID]; ok {
		return rec.Status
	}
	return domain.StatusOffline
}

// List returns the presence set ordered by user id.
func (p *Presence) List() []domain.PresenceRecord {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.PresenceRecord, 0, len(p.records))
	for _, rec := range p.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
