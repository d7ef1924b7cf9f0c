package mock

import (
	"context"
	"sync"
	"time"

	"github.com/garnizeh/campuscare/internal/models"
	pubmodels "github.com/garnizeh/campuscare/pkg/models"
)

// AlertRepo is an in-memory repository.AlertRepo with failure injection.
type AlertRepo struct {
	mu      sync.Mutex
	rows    map[string]models.Alert
	Inserts int

	InsertErr  error
	ListErr    error
	DeleteErr  error
	ResolveErr error

	// InsertDelay blocks inserts to widen race windows in tests.
	InsertDelay time.Duration
}

func NewAlertRepo() *AlertRepo {
	return &AlertRepo{rows: make(map[string]models.Alert)}
}

// SetInsertErr swaps the injected insert error under the lock.
func (m *AlertRepo) SetInsertErr(err error) {
	m.mu.Lock()
	m.InsertErr = err
	m.mu.Unlock()
}

// SetListErr swaps the injected list error under the lock.
func (m *AlertRepo) SetListErr(err error) {
	m.mu.Lock()
	m.ListErr = err
	m.mu.Unlock()
}

// SetResolveErr swaps the injected resolve error under the lock.
func (m *AlertRepo) SetResolveErr(err error) {
	m.mu.Lock()
	m.ResolveErr = err
	m.mu.Unlock()
}

// Put stores a row directly, bypassing any change feed.
func (m *AlertRepo) Put(a models.Alert) {
	m.mu.Lock()
	m.rows[a.ID] = a.Clone()
	m.mu.Unlock()
}

// Len returns the number of stored rows.
func (m *AlertRepo) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

// InsertCount returns the number of successful inserts.
func (m *AlertRepo) InsertCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Inserts
}

func (m *AlertRepo) InsertAlert(ctx context.Context, a *models.Alert) error {
	if m.InsertDelay > 0 {
		select {
		case <-time.After(m.InsertDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.rows[a.ID] = a.Clone()
	m.Inserts++
	return nil
}

func (m *AlertRepo) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	c := a.Clone()
	return &c, nil
}

func (m *AlertRepo) ListRecentAlerts(ctx context.Context, limit int, activeOnly bool) ([]models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]models.Alert, 0, len(m.rows))
	for _, a := range m.rows {
		if activeOnly && !a.Active() {
			continue
		}
		out = append(out, a.Clone())
	}
	models.SortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *AlertRepo) DeleteAlert(ctx context.Context, id string) (*models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeleteErr != nil {
		return nil, m.DeleteErr
	}
	a, ok := m.rows[id]
	if !ok {
		return nil, nil
	}
	delete(m.rows, id)
	return &a, nil
}

func (m *AlertRepo) ResolveAlert(ctx context.Context, id, by string, at time.Time) (*models.Alert, *models.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ResolveErr != nil {
		return nil, nil, m.ResolveErr
	}
	a, ok := m.rows[id]
	if !ok || !a.Active() {
		return nil, nil, nil
	}
	old := a.Clone()
	a.Status = models.StatusResolved
	a.ResolvedAt = &at
	a.ResolvedBy = by
	a.UpdatedAt = at
	m.rows[id] = a
	updated := a.Clone()
	return &old, &updated, nil
}

func (m *AlertRepo) PruneResolved(ctx context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, a := range m.rows {
		if !a.Active() && a.UpdatedAt.Before(before) {
			delete(m.rows, id)
			n++
		}
	}
	return n, nil
}

// ProfileRepo is an in-memory repository.ProfileRepo.
type ProfileRepo struct {
	mu       sync.Mutex
	profiles map[string]pubmodels.Profile
	Gets     int
	GetErr   error
}

func NewProfileRepo(profiles ...pubmodels.Profile) *ProfileRepo {
	m := &ProfileRepo{profiles: make(map[string]pubmodels.Profile)}
	for _, p := range profiles {
		m.profiles[p.UserID] = p
	}
	return m
}

func (m *ProfileRepo) UpsertProfile(ctx context.Context, p *pubmodels.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = *p
	return nil
}

func (m *ProfileRepo) GetProfile(ctx context.Context, userID string) (*pubmodels.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	p, ok := m.profiles[userID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

// GetCount returns how many lookups reached the repository.
func (m *ProfileRepo) GetCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gets
}
