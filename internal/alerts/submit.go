package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/garnizeh/campuscare/internal/geo"
	"github.com/garnizeh/campuscare/internal/metrics"
	"github.com/garnizeh/campuscare/internal/models"
)

// SubmitRequest is what a client sends when the SOS button is pressed.
type SubmitRequest struct {
	Location *geo.Reading `json:"location,omitempty"`
	Address  string       `json:"address,omitempty" validate:"max=512"`
	Note     string       `json:"note,omitempty" validate:"max=1024"`

	// IdempotencyKey lets a client retry without creating a second alert.
	IdempotencyKey string `json:"-" validate:"max=128"`
}

// SubmitResult is returned only after the alert is durably stored.
type SubmitResult struct {
	Alert         models.Alert     `json:"alert"`
	Call          *CallInstruction `json:"call,omitempty"`
	LocationError string           `json:"location_error,omitempty"`
	Replayed      bool             `json:"replayed,omitempty"`
}

// AlertNotifier hands a saved alert to responders out of band.
type AlertNotifier interface {
	NotifyAlert(ctx context.Context, a models.Alert) error
}

type SubmitterOptions struct {
	Profiles *ProfileLookup
	Dialer   Dialer
	Notifier AlertNotifier
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	// ReplayWindow is how long an idempotency key replays its first result.
	ReplayWindow time.Duration
	// WriteTimeout bounds the store write, which outlives client cancellation.
	WriteTimeout time.Duration
}

// Submitter turns an SOS press into exactly one stored alert and, only then, a
// call instruction.
type Submitter struct {
	store    *Store
	profiles *ProfileLookup
	dialer   Dialer
	notifier AlertNotifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
	validate *validator.Validate
	timeout  time.Duration

	inflight singleflight.Group
	replays  *gocache.Cache
}

func NewSubmitter(store *Store, opts SubmitterOptions) *Submitter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.ReplayWindow <= 0 {
		opts.ReplayWindow = 10 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	return &Submitter{
		store:    store,
		profiles: opts.Profiles,
		dialer:   opts.Dialer,
		notifier: opts.Notifier,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		validate: validator.New(),
		timeout:  opts.WriteTimeout,
		replays:  gocache.New(opts.ReplayWindow, 2*opts.ReplayWindow),
	}
}

// Submit stores an alert for the user on ctx. Concurrent submissions by the
// same user share one write and one result. The call instruction is present
// only when the write succeeded.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (SubmitResult, error) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		s.metrics.Submission("unauthenticated")
		return SubmitResult{}, ErrNotAuthenticated
	}
	if err := s.validate.Struct(req); err != nil {
		s.metrics.Submission("invalid")
		return SubmitResult{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	replayKey := ""
	if req.IdempotencyKey != "" {
		replayKey = id.UserID + "\x00" + req.IdempotencyKey
		if v, ok := s.replays.Get(replayKey); ok {
			res := v.(SubmitResult)
			res.Replayed = true
			s.metrics.Submission("replayed")
			return res, nil
		}
	}

	v, err, shared := s.inflight.Do(id.UserID, func() (any, error) {
		return s.submit(ctx, id, req)
	})
	if err != nil {
		return SubmitResult{}, err
	}
	res := v.(SubmitResult)
	if shared {
		s.logger.Info("duplicate submission collapsed", "user_id", id.UserID, "alert_id", res.Alert.ID)
	}
	if replayKey != "" {
		s.replays.SetDefault(replayKey, res)
	}
	return res, nil
}

func (s *Submitter) submit(ctx context.Context, id Identity, req SubmitRequest) (SubmitResult, error) {
	a := s.assemble(ctx, id, req)

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()
	saved, err := s.store.Insert(wctx, a)
	if err != nil {
		s.metrics.Submission("store_error")
		return SubmitResult{}, err
	}

	res := SubmitResult{Alert: saved}
	if msg, ok := saved.AdditionalInfo["location_error"].(string); ok {
		res.LocationError = msg
	}
	if s.dialer != nil {
		call, err := s.dialer.Dial(ctx, saved)
		if err != nil {
			s.logger.Error("no call instruction for saved alert", "alert_id", saved.ID, "err", err)
		} else {
			res.Call = &call
		}
	}
	if s.notifier != nil {
		if err := s.notifier.NotifyAlert(wctx, saved); err != nil {
			s.logger.Warn("responder notification not queued", "alert_id", saved.ID, "err", err)
		}
	}
	s.metrics.Submission("ok")
	s.logger.Info("alert submitted", "alert_id", saved.ID, "user_id", saved.UserID, "has_location", saved.Latitude != nil)
	return res, nil
}

// assemble builds the alert row: identity snapshot, best-effort position and
// the additional info used by responders.
func (s *Submitter) assemble(ctx context.Context, id Identity, req SubmitRequest) models.Alert {
	name, roll, userType := id.Name, id.RollNumber, id.UserType
	if prof := s.profiles.Lookup(ctx, id.UserID); prof != nil {
		name = firstNonEmpty(prof.FullName, name)
		roll = firstNonEmpty(prof.RollNumber, roll)
		userType = firstNonEmpty(prof.UserType, userType)
	}
	name = firstNonEmpty(name, models.UnknownName)

	info := map[string]any{"full_name": name}
	if id.Email != "" {
		info["email"] = id.Email
	}
	if roll != "" {
		info["roll_number"] = roll
	}
	if addr := strings.TrimSpace(req.Address); addr != "" {
		info["address"] = addr
	}
	if note := strings.TrimSpace(req.Note); note != "" {
		info["note"] = note
	}

	a := models.Alert{
		UserID:         id.UserID,
		DisplayName:    name,
		RollOrID:       roll,
		UserType:       userType,
		Status:         models.StatusActive,
		AdditionalInfo: info,
	}

	pos, err := geo.Capture(req.Location)
	if err != nil {
		info["location_error"] = strings.TrimPrefix(err.Error(), geo.ErrLocationUnavailable.Error()+": ")
		a.Location = geo.Label(nil)
		if !errors.Is(err, geo.ErrLocationUnavailable) {
			s.logger.Warn("unexpected capture error", "err", err)
		}
		return a
	}
	lat, lon := pos.Latitude, pos.Longitude
	a.Latitude, a.Longitude = &lat, &lon
	a.Location = geo.Label(&pos)
	if pos.Accuracy > 0 {
		info["accuracy"] = pos.Accuracy
	}
	return a
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
