package alerts

import (
	"context"
	"log/slog"
	"time"

	gocache "github.com/patrickmn/go-cache"

	pubmodels "github.com/garnizeh/campuscare/pkg/models"
	"github.com/garnizeh/campuscare/pkg/repository"
)

// ProfileLookup reads identity annotations for alert labelling. Lookups are
// best-effort: a failure only degrades the label, it never blocks a submission.
type ProfileLookup struct {
	repo   repository.ProfileRepo
	cache  *gocache.Cache
	logger *slog.Logger
}

func NewProfileLookup(repo repository.ProfileRepo, ttl time.Duration, logger *slog.Logger) *ProfileLookup {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileLookup{repo: repo, cache: gocache.New(ttl, 2*ttl), logger: logger}
}

// Lookup returns the profile for userID, or nil when unknown or unreachable.
func (p *ProfileLookup) Lookup(ctx context.Context, userID string) *pubmodels.Profile {
	if p == nil || p.repo == nil {
		return nil
	}
	if v, ok := p.cache.Get(userID); ok {
		prof := v.(pubmodels.Profile)
		return &prof
	}
	prof, err := p.repo.GetProfile(ctx, userID)
	if err != nil {
		p.logger.Warn("profile lookup failed", "user_id", userID, "err", err)
		return nil
	}
	if prof == nil {
		return nil
	}
	p.cache.SetDefault(userID, *prof)
	return prof
}
