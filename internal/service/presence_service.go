package service

import (
	"context"
	"sync"
	"time"

	"github.com/jasonhq/relay/internal/domain"
	"github.com/jasonhq/relay/internal/repository"
)

// PresenceService tracks who currently holds a live session. The hub
// flips users online/offline; the REST poll endpoint reads the full set.
type PresenceService struct {
	userRepo repository.UserRepository

	mu     sync.RWMutex
	online map[string]time.Time
}

func NewPresenceService(userRepo repository.UserRepository) *PresenceService {
	return &PresenceService{
		userRepo: userRepo,
		online:   make(map[string]time.Time),
	}
}

func (s *PresenceService) SetOnline(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.online[userID] = time.Now()
}

func (s *PresenceService) SetOffline(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.online, userID)
}

func (s *PresenceService) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.online[userID]
	return ok
}

// List returns a presence record for every known user, keyed by user id
// with no duplicates.
func (s *PresenceService) List(ctx context.Context) ([]domain.PresenceRecord, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	records := make([]domain.PresenceRecord, 0, len(users))
	for _, u := range users {
		rec := domain.PresenceRecord{UserID: u.ID, Status: domain.StatusOffline}
		if seen, ok := s.online[u.ID]; ok {
			rec.Status = domain.StatusOnline
			rec.LastSeen = seen
		}
		records = append(records, rec)
	}
	return records, nil
}
