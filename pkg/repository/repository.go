package repository

import (
	"context"
	"time"

	"github.com/garnizeh/campuscare/internal/models"
	pubmodels "github.com/garnizeh/campuscare/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.

type AlertRepo interface {
	InsertAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	// ListRecentAlerts returns at most limit alerts, newest first.
	ListRecentAlerts(ctx context.Context, limit int, activeOnly bool) ([]models.Alert, error)
	// DeleteAlert removes the row and returns it, or nil when it was already gone.
	DeleteAlert(ctx context.Context, id string) (*models.Alert, error)
	// ResolveAlert flips an active alert to resolved and returns the old and
	// new rows. Both are nil when the alert is absent or no longer active.
	ResolveAlert(ctx context.Context, id, by string, at time.Time) (old, updated *models.Alert, err error)
	PruneResolved(ctx context.Context, before time.Time) (int64, error)
}

type ProfileRepo interface {
	UpsertProfile(ctx context.Context, p *pubmodels.Profile) error
	GetProfile(ctx context.Context, userID string) (*pubmodels.Profile, error)
}

type PreferenceRepo interface {
	GetPreference(ctx context.Context, userID, key string) (*pubmodels.Preference, error)
	PutPreference(ctx context.Context, p *pubmodels.Preference) error
}

type JobRepo interface {
	Enqueue(ctx context.Context, j *models.BackgroundJob) (int64, error)
	FetchNext(ctx context.Context) (*models.BackgroundJob, error)
	UpdateJob(ctx context.Context, j *models.BackgroundJob) error
	MoveToDeadLetter(ctx context.Context, j *models.BackgroundJob) error
}
