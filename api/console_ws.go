package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"log/slog"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/garnizeh/campuscare/internal/console"
	"github.com/garnizeh/campuscare/internal/geo"
	"github.com/garnizeh/campuscare/internal/models"
	"github.com/garnizeh/campuscare/internal/realtime"
)

// Frame types pushed to and accepted from admin dashboards.
const (
	FrameSnapshot = "snapshot"
	FrameTone     = "tone"
	FrameMap      = "map"
	FrameError    = "error"

	CommandResolve = "resolve"
	CommandDismiss = "dismiss"
	CommandFocus   = "focus"
	CommandResize  = "resize"
)

// ConsoleHandler upgrades admin dashboards to a websocket and runs one console
// session per connection for as long as the socket stays open.
type ConsoleHandler struct {
	source   console.Source
	hub      *realtime.Hub
	planner  *geo.Planner
	opts     console.Options
	upgrader websocket.Upgrader
}

func NewConsoleHandler(source console.Source, hub *realtime.Hub, planner *geo.Planner, opts console.Options) *ConsoleHandler {
	return &ConsoleHandler{
		source:  source,
		hub:     hub,
		planner: planner,
		opts:    opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// dashboards are served from other origins; the bearer token is the gate
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type alertCommand struct {
	ID string `json:"id"`
}

// consoleSession carries the per-connection map state.
type consoleSession struct {
	client  *realtime.Client
	planner *geo.Planner

	mu       sync.Mutex
	alerts   []models.Alert
	focus    string
	viewport geo.Viewport
	view     *geo.MapView
}

func (s *consoleSession) pushSnapshot(snap console.Snapshot) {
	s.client.Send(realtime.Frame{Type: FrameSnapshot, Data: snap})
	s.mu.Lock()
	s.alerts = snap.Alerts
	s.mu.Unlock()
	s.pushMap()
}

func (s *consoleSession) pushMap() {
	s.mu.Lock()
	var focus *geo.Focus
	if s.focus != "" {
		focus = &geo.Focus{AlertID: s.focus}
	}
	view := s.planner.Plan(s.alerts, focus, s.viewport)
	s.view = &view
	s.mu.Unlock()
	s.client.Send(realtime.Frame{Type: FrameMap, Data: view})
}

func (s *consoleSession) resize(vp geo.Viewport) {
	s.mu.Lock()
	if s.view == nil || vp.Width <= 0 || vp.Height <= 0 {
		s.mu.Unlock()
		return
	}
	s.viewport = vp
	view := s.planner.Resize(*s.view, vp)
	s.view = &view
	s.mu.Unlock()
	s.client.Send(realtime.Frame{Type: FrameMap, Data: view})
}

func (h *ConsoleHandler) Serve(w http.ResponseWriter, r *http.Request) {
	by := actor(r)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		logger.Warn("console upgrade failed", slog.Any("err", err))
		return
	}
	client, err := h.hub.Attach(conn, uuid.NewString())
	if err != nil {
		_ = conn.Close()
		return
	}

	sess := &consoleSession{client: client, planner: h.planner}
	opts := h.opts
	opts.Notifier = console.NotifierFunc(func(a models.Alert) {
		client.Send(realtime.Frame{Type: FrameTone, Data: a})
	})
	c := console.New(h.source, opts)
	c.OnChange(sess.pushSnapshot)

	ctx := r.Context()
	if err := c.Mount(ctx); err != nil {
		client.Close()
		return
	}
	defer c.Unmount()
	if c.Snapshot().Version == 0 {
		// initial load failed; show an empty console until the next poll
		sess.pushSnapshot(c.Snapshot())
	}

	logger.Info("admin console connected", slog.String("client", client.ID), slog.String("admin", by))
	client.Run(ctx, func(f realtime.Frame) {
		h.command(ctx, c, sess, by, f)
	})
	logger.Info("admin console disconnected", slog.String("client", client.ID))
}

func (h *ConsoleHandler) command(ctx context.Context, c *console.Console, sess *consoleSession, by string, f realtime.Frame) {
	sendErr := func(id string, err error) {
		sess.client.Send(realtime.Frame{Type: FrameError, Data: map[string]string{"command": f.Type, "id": id, "message": err.Error()}})
	}
	switch f.Type {
	case CommandResolve, CommandDismiss:
		var cmd alertCommand
		if err := json.Unmarshal(f.Raw, &cmd); err != nil || cmd.ID == "" {
			sess.client.Send(realtime.Frame{Type: FrameError, Data: map[string]string{"command": f.Type, "message": "alert id required"}})
			return
		}
		var err error
		if f.Type == CommandResolve {
			err = c.Resolve(ctx, cmd.ID, by)
		} else {
			err = c.Dismiss(ctx, cmd.ID)
		}
		if err != nil {
			sendErr(cmd.ID, err)
		}
	case CommandFocus:
		var cmd alertCommand
		_ = json.Unmarshal(f.Raw, &cmd)
		sess.mu.Lock()
		sess.focus = cmd.ID
		sess.mu.Unlock()
		sess.pushMap()
	case CommandResize:
		var vp geo.Viewport
		if err := json.Unmarshal(f.Raw, &vp); err != nil {
			sendErr("", err)
			return
		}
		sess.resize(vp)
	default:
		logger.Warn("unknown console command", slog.String("type", f.Type))
	}
}
