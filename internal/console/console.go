// Package console keeps the admin view of active alerts: a bounded, newest-first
// list fed by the change feed and reconciled against the store on a fixed
// interval, so a silent push channel delays the view by at most one interval.
package console

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/garnizeh/campuscare/internal/metrics"
	"github.com/garnizeh/campuscare/internal/models"
	"github.com/garnizeh/campuscare/internal/realtime"
)

// Source is the alert store as seen by a console.
type Source interface {
	Recent(ctx context.Context, limit int, activeOnly bool) ([]models.Alert, error)
	Resolve(ctx context.Context, id, by string) (*models.Alert, error)
	Delete(ctx context.Context, id string) (bool, error)
	Subscribe(buffer int) *realtime.Subscription
}

// Notifier is told about every new alert pushed to the console.
type Notifier interface {
	Tone(a models.Alert)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(models.Alert)

func (f NotifierFunc) Tone(a models.Alert) { f(a) }

type Options struct {
	Limit        int
	PollInterval time.Duration
	FeedBuffer   int
	Notifier     Notifier
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
}

// Snapshot is an immutable copy of the console list. Version grows with every
// change so observers can discard stale copies.
type Snapshot struct {
	Alerts  []models.Alert `json:"alerts"`
	Version uint64         `json:"version"`
}

var ErrAlreadyMounted = errors.New("console already mounted")

type Console struct {
	src  Source
	opts Options

	mu        sync.Mutex
	list      []models.Alert
	removing  map[string]int
	toned     map[string]struct{}
	tonedFIFO []string
	version   uint64
	observers []func(Snapshot)

	notifyMu sync.Mutex
	notified uint64

	mounted   bool
	unmounted bool
	sub       *realtime.Subscription
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(src Source, opts Options) *Console {
	if opts.Limit <= 0 {
		opts.Limit = 25
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 12 * time.Second
	}
	if opts.FeedBuffer <= 0 {
		opts.FeedBuffer = 64
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Console{src: src, opts: opts, removing: make(map[string]int), toned: make(map[string]struct{})}
}

// Mount subscribes to the feed, loads the initial list and starts the event
// and reconciliation loop. A failed initial load leaves the list empty until
// the next poll.
func (c *Console) Mount(ctx context.Context) error {
	c.mu.Lock()
	if c.mounted || c.unmounted {
		c.mu.Unlock()
		return ErrAlreadyMounted
	}
	c.mounted = true
	// subscribe first so nothing committed during the initial load is missed
	sub := c.src.Subscribe(c.opts.FeedBuffer)
	loopCtx, cancel := context.WithCancel(ctx)
	c.sub = sub
	c.cancel = cancel
	c.wg.Add(1)
	c.mu.Unlock()

	c.opts.Metrics.ConsoleMounted()
	c.reconcile(loopCtx)
	go func() {
		defer c.wg.Done()
		c.run(loopCtx, sub.Events())
	}()
	return nil
}

// Unmount stops the loop and releases the subscription. Safe to call more than
// once and before Mount.
func (c *Console) Unmount() {
	c.mu.Lock()
	if !c.mounted || c.unmounted {
		c.unmounted = true
		c.mu.Unlock()
		return
	}
	c.unmounted = true
	cancel, sub := c.cancel, c.sub
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	sub.Close()
	c.opts.Metrics.ConsoleUnmounted()
}

func (c *Console) run(ctx context.Context, events <-chan models.ChangeEvent) {
	ticker := time.NewTicker(c.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				c.opts.Logger.Warn("console feed closed, relying on polling")
				events = nil
				continue
			}
			c.apply(ev)
		case <-ticker.C:
			c.reconcile(ctx)
		}
	}
}

// reconcile replaces the list with the store's view. Failures are logged and
// counted; the list is kept as is.
func (c *Console) reconcile(ctx context.Context) {
	list, err := c.src.Recent(ctx, c.opts.Limit, true)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.opts.Metrics.PollFailed()
		c.opts.Logger.Warn("console reconcile failed", "err", err)
		return
	}

	c.mu.Lock()
	next := make([]models.Alert, 0, len(list))
	for _, a := range list {
		if !a.Active() || c.removing[a.ID] > 0 {
			continue
		}
		next = append(next, a.Clone())
	}
	models.SortNewestFirst(next)
	c.list = next
	snap := c.changedLocked()
	c.mu.Unlock()
	c.notify(snap)
}

func (c *Console) apply(ev models.ChangeEvent) {
	var toned *models.Alert

	c.mu.Lock()
	changed := false
	switch ev.Type {
	case models.EventInsert:
		if ev.New == nil || !ev.New.Active() || c.removing[ev.New.ID] > 0 {
			break
		}
		// a poll may have listed the row before its insert arrived; it still
		// gets its tone, once
		a := ev.New.Clone()
		if c.markTonedLocked(a.ID) {
			toned = &a
		}
		if i := c.indexLocked(a.ID); i >= 0 {
			c.list[i] = a
			models.SortNewestFirst(c.list)
		} else {
			c.insertLocked(a)
		}
		changed = true
	case models.EventUpdate:
		if ev.New == nil {
			break
		}
		i := c.indexLocked(ev.New.ID)
		switch {
		case !ev.New.Active():
			changed = c.removeLocked(ev.New.ID)
		case i >= 0:
			c.list[i] = ev.New.Clone()
			models.SortNewestFirst(c.list)
			changed = true
		case c.removing[ev.New.ID] == 0:
			c.insertLocked(ev.New.Clone())
			changed = true
		}
	case models.EventDelete:
		changed = c.removeLocked(ev.AlertID())
	}
	var snap Snapshot
	if changed {
		snap = c.changedLocked()
	}
	c.mu.Unlock()

	if toned != nil && c.opts.Notifier != nil {
		c.opts.Notifier.Tone(*toned)
	}
	if changed {
		c.notify(snap)
	}
}

// Resolve marks the alert resolved. The row leaves the list immediately and
// comes back only if the store call fails. Alerts that are already gone are
// not an error.
func (c *Console) Resolve(ctx context.Context, id, by string) error {
	return c.remove(ctx, "resolve", id, func(ctx context.Context) (bool, error) {
		updated, err := c.src.Resolve(ctx, id, by)
		return updated != nil, err
	})
}

// Dismiss deletes the alert outright, with the same semantics as Resolve.
func (c *Console) Dismiss(ctx context.Context, id string) error {
	return c.remove(ctx, "dismiss", id, func(ctx context.Context) (bool, error) {
		return c.src.Delete(ctx, id)
	})
}

func (c *Console) remove(ctx context.Context, action, id string, call func(context.Context) (bool, error)) error {
	c.mu.Lock()
	var removed *models.Alert
	if i := c.indexLocked(id); i >= 0 {
		a := c.list[i]
		removed = &a
		c.list = append(c.list[:i], c.list[i+1:]...)
	}
	c.removing[id]++
	var snap Snapshot
	if removed != nil {
		snap = c.changedLocked()
	}
	c.mu.Unlock()
	if removed != nil {
		c.notify(snap)
	}

	did, err := call(ctx)

	c.mu.Lock()
	c.removing[id]--
	if c.removing[id] <= 0 {
		delete(c.removing, id)
	}
	restored := false
	if err != nil && removed != nil && c.indexLocked(id) < 0 {
		c.insertLocked(*removed)
		restored = true
	}
	if restored {
		snap = c.changedLocked()
	}
	c.mu.Unlock()
	if restored {
		c.notify(snap)
	}

	switch {
	case err != nil:
		c.opts.Metrics.Resolution(action, "error")
		c.opts.Logger.Error("console "+action+" failed", "alert_id", id, "err", err)
		return err
	case did:
		c.opts.Metrics.Resolution(action, "ok")
	default:
		c.opts.Metrics.Resolution(action, "noop")
	}
	return nil
}

// Snapshot returns a copy of the current list.
func (c *Console) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// OnChange registers fn to receive a snapshot after every change. Calls are
// serialized and never carry an older version than a previous call.
func (c *Console) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	c.observers = append(c.observers, fn)
	c.mu.Unlock()
}

func (c *Console) notify(snap Snapshot) {
	c.mu.Lock()
	observers := append([]func(Snapshot){}, c.observers...)
	c.mu.Unlock()

	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Version <= c.notified {
		return
	}
	c.notified = snap.Version
	for _, fn := range observers {
		fn(snap)
	}
}

func (c *Console) changedLocked() Snapshot {
	c.version++
	return c.snapshotLocked()
}

func (c *Console) snapshotLocked() Snapshot {
	out := make([]models.Alert, len(c.list))
	for i, a := range c.list {
		out[i] = a.Clone()
	}
	return Snapshot{Alerts: out, Version: c.version}
}

func (c *Console) indexLocked(id string) int {
	for i := range c.list {
		if c.list[i].ID == id {
			return i
		}
	}
	return -1
}

func (c *Console) insertLocked(a models.Alert) {
	c.list = append(c.list, a)
	models.SortNewestFirst(c.list)
	if len(c.list) > c.opts.Limit {
		c.list = c.list[:c.opts.Limit]
	}
}

// markTonedLocked records id as toned and reports whether it was new. Only the
// most recent ids are remembered; an insert event is never redelivered, so an
// evicted id cannot ring again.
func (c *Console) markTonedLocked(id string) bool {
	if _, ok := c.toned[id]; ok {
		return false
	}
	c.toned[id] = struct{}{}
	c.tonedFIFO = append(c.tonedFIFO, id)
	if keep := 4 * c.opts.Limit; len(c.tonedFIFO) > keep {
		delete(c.toned, c.tonedFIFO[0])
		c.tonedFIFO = c.tonedFIFO[1:]
	}
	return true
}

func (c *Console) removeLocked(id string) bool {
	i := c.indexLocked(id)
	if i < 0 {
		return false
	}
	c.list = append(c.list[:i], c.list[i+1:]...)
	return true
}
