package alerts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garnizeh/campuscare/internal/alerts"
	"github.com/garnizeh/campuscare/internal/models"
	"github.com/garnizeh/campuscare/internal/realtime"
	"github.com/garnizeh/campuscare/pkg/repository/mock"
)

func newStore(t *testing.T) (*alerts.Store, *mock.AlertRepo, *realtime.Subscription) {
	t.Helper()
	repo := mock.NewAlertRepo()
	feed := realtime.NewFeed("test", nil, nil)
	sub := feed.Subscribe(16)
	t.Cleanup(sub.Close)
	return alerts.NewStore(repo, feed, nil), repo, sub
}

func nextEvent(t *testing.T, sub *realtime.Subscription) models.ChangeEvent {
	t.Helper()
	select {
	case ev := <-sub.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatalf("no event published")
	}
	return models.ChangeEvent{}
}

func noEvent(t *testing.T, sub *realtime.Subscription) {
	t.Helper()
	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %s for %s", ev.Type, ev.AlertID())
	default:
	}
}

func TestStore_InsertAssignsIDAndPublishes(t *testing.T) {
	s, repo, sub := newStore(t)
	ctx := context.Background()

	created := time.Date(2026, 3, 1, 10, 0, 0, 123456789, time.UTC)
	a, err := s.Insert(ctx, models.Alert{UserID: "u1", DisplayName: "", CreatedAt: created})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if a.ID == "" || a.Status != models.StatusActive || a.DisplayName != models.UnknownName {
		t.Fatalf("defaults not applied: %+v", a)
	}
	if a.CreatedAt.Nanosecond() != 123000000 {
		t.Fatalf("created_at not truncated to ms: %v", a.CreatedAt)
	}
	if repo.Len() != 1 {
		t.Fatalf("row not written")
	}
	ev := nextEvent(t, sub)
	if ev.Type != models.EventInsert || ev.AlertID() != a.ID || ev.Old != nil {
		t.Fatalf("unexpected event %+v", ev)
	}
}

func TestStore_InsertFailurePublishesNothing(t *testing.T) {
	s, repo, sub := newStore(t)
	repo.SetInsertErr(errors.New("disk full"))

	if _, err := s.Insert(context.Background(), models.Alert{UserID: "u1"}); !errors.Is(err, alerts.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	noEvent(t, sub)
}

func TestStore_ResolveAndDeleteAreIdempotent(t *testing.T) {
	s, repo, sub := newStore(t)
	ctx := context.Background()
	a, err := s.Insert(ctx, models.Alert{UserID: "u1", DisplayName: "Asha"})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	nextEvent(t, sub)

	updated, err := s.Resolve(ctx, a.ID, "admin-1")
	if err != nil || updated == nil {
		t.Fatalf("Resolve: %v %v", updated, err)
	}
	if updated.Status != models.StatusResolved || updated.ResolvedBy != "admin-1" || updated.ResolvedAt == nil {
		t.Fatalf("audit fields missing: %+v", updated)
	}
	ev := nextEvent(t, sub)
	if ev.Type != models.EventUpdate || ev.New.Active() || ev.Old == nil || !ev.Old.Active() {
		t.Fatalf("unexpected update event %+v", ev)
	}

	again, err := s.Resolve(ctx, a.ID, "admin-2")
	if err != nil || again != nil {
		t.Fatalf("second resolve should be a silent no-op: %v %v", again, err)
	}
	noEvent(t, sub)

	removed, err := s.Delete(ctx, a.ID)
	if err != nil || !removed {
		t.Fatalf("Delete: %v %v", removed, err)
	}
	if ev := nextEvent(t, sub); ev.Type != models.EventDelete || ev.AlertID() != a.ID {
		t.Fatalf("unexpected delete event %+v", ev)
	}
	removed, err = s.Delete(ctx, a.ID)
	if err != nil || removed {
		t.Fatalf("second delete should be a no-op: %v %v", removed, err)
	}
	if _, err := s.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("delete of unknown id: %v", err)
	}
	noEvent(t, sub)
	if repo.Len() != 0 {
		t.Fatalf("row still present")
	}
}

func TestStore_RecentIsNewestFirst(t *testing.T) {
	s, repo, _ := newStore(t)
	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		repo.Put(models.Alert{ID: id, UserID: "u", Status: models.StatusActive, CreatedAt: t0.Add(time.Duration(i) * time.Minute)})
	}
	repo.Put(models.Alert{ID: "r", UserID: "u", Status: models.StatusResolved, CreatedAt: t0.Add(time.Hour)})

	list, err := s.Recent(context.Background(), 2, true)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Fatalf("unexpected list %v", list)
	}

	repo.SetListErr(errors.New("locked"))
	if _, err := s.Recent(context.Background(), 2, true); !errors.Is(err, alerts.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}
