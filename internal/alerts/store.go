// Package alerts owns the emergency alert lifecycle on the write side: the
// store that pairs durable writes with change events, and the submission flow.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/garnizeh/campuscare/internal/models"
	"github.com/garnizeh/campuscare/internal/realtime"
	"github.com/garnizeh/campuscare/pkg/repository"
)

// Store is the only writer of alert rows. Every committed mutation is published
// on the feed, in commit order, and nothing is published for no-op mutations.
type Store struct {
	mu     sync.Mutex
	repo   repository.AlertRepo
	feed   *realtime.Feed
	logger *slog.Logger
	now    func() time.Time
}

func NewStore(repo repository.AlertRepo, feed *realtime.Feed, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{repo: repo, feed: feed, logger: logger, now: time.Now}
}

// Insert writes a and publishes INSERT. A missing id or created_at is filled
// in; timestamps are kept at millisecond precision to match storage.
func (s *Store) Insert(ctx context.Context, a models.Alert) (models.Alert, error) {
	a = a.Clone()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Status == "" {
		a.Status = models.StatusActive
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now()
	}
	a.CreatedAt = a.CreatedAt.UTC().Truncate(time.Millisecond)
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	a.UpdatedAt = a.UpdatedAt.UTC().Truncate(time.Millisecond)
	if strings.TrimSpace(a.DisplayName) == "" {
		a.DisplayName = models.UnknownName
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.InsertAlert(ctx, &a); err != nil {
		s.logger.Error("insert alert failed", "alert_id", a.ID, "user_id", a.UserID, "err", err)
		return models.Alert{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	published := a.Clone()
	s.publish(models.ChangeEvent{Type: models.EventInsert, New: &published})
	return a, nil
}

// Get returns the alert or nil when it does not exist.
func (s *Store) Get(ctx context.Context, id string) (*models.Alert, error) {
	a, err := s.repo.GetAlert(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return a, nil
}

// Recent returns at most limit alerts, newest first.
func (s *Store) Recent(ctx context.Context, limit int, activeOnly bool) ([]models.Alert, error) {
	list, err := s.repo.ListRecentAlerts(ctx, limit, activeOnly)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	models.SortNewestFirst(list)
	return list, nil
}

// Resolve marks an active alert resolved by `by` and publishes UPDATE. Absent
// or already resolved alerts return nil without error.
func (s *Store) Resolve(ctx context.Context, id, by string) (*models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at := s.now().UTC().Truncate(time.Millisecond)
	old, updated, err := s.repo.ResolveAlert(ctx, id, by, at)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if updated == nil {
		return nil, nil
	}
	s.publish(models.ChangeEvent{Type: models.EventUpdate, New: updated, Old: old})
	out := updated.Clone()
	return &out, nil
}

// Delete removes the alert and publishes DELETE. It reports whether a row was
// actually removed; deleting an absent id is not an error.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, err := s.repo.DeleteAlert(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if old == nil {
		return false, nil
	}
	s.publish(models.ChangeEvent{Type: models.EventDelete, Old: old})
	return true, nil
}

// Prune removes non-active alerts last touched before the cutoff. Pruned rows
// are already gone from every console, so nothing is published.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	n, err := s.repo.PruneResolved(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// Subscribe registers a change-feed subscriber.
func (s *Store) Subscribe(buffer int) *realtime.Subscription {
	return s.feed.Subscribe(buffer)
}

func (s *Store) publish(ev models.ChangeEvent) {
	if s.feed == nil {
		return
	}
	s.feed.Publish(ev)
}
