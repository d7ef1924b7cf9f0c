package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type hubFixture struct {
	hub      *Hub
	srv      *httptest.Server
	clients  chan *Client
	frames   chan Frame
	finished chan struct{}
	cancel   context.CancelFunc
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	fx := &hubFixture{
		hub:      NewHub(HubConfig{PingInterval: time.Second, WriteTimeout: time.Second}, nil),
		clients:  make(chan *Client, 1),
		frames:   make(chan Frame, 8),
		finished: make(chan struct{}),
		cancel:   cancel,
	}
	up := websocket.Upgrader{}
	fx.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c, err := fx.hub.Attach(conn, "admin-1")
		if err != nil {
			_ = conn.Close()
			return
		}
		fx.clients <- c
		c.Run(ctx, func(f Frame) { fx.frames <- f })
		close(fx.finished)
	}))
	return fx
}

func (fx *hubFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(fx.srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHubSendAndReceive(t *testing.T) {
	fx := newHubFixture(t)
	defer fx.srv.Close()
	defer fx.cancel()

	conn := fx.dial(t)
	defer conn.Close()
	waitFor(t, func() bool { return fx.hub.Count() == 1 })

	c := <-fx.clients
	c.Send(Frame{Type: "tone"})
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Frame
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Type != "tone" || got.Timestamp == 0 {
		t.Fatalf("unexpected frame %+v", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"resolve","data":{"id":"a1"}}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case f := <-fx.frames:
		if f.Type != "resolve" || string(f.Raw) != `{"id":"a1"}` {
			t.Fatalf("unexpected inbound frame %+v raw=%s", f, f.Raw)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("inbound frame not received")
	}

	_ = conn.Close()
	select {
	case <-fx.finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("client run did not return after disconnect")
	}
	if fx.hub.Count() != 0 {
		t.Fatalf("client not removed, count=%d", fx.hub.Count())
	}
}

func TestHubCloseDisconnectsClients(t *testing.T) {
	fx := newHubFixture(t)
	defer fx.srv.Close()
	defer fx.cancel()

	conn := fx.dial(t)
	defer conn.Close()
	waitFor(t, func() bool { return fx.hub.Count() == 1 })

	fx.hub.Close()
	select {
	case <-fx.finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("client run did not return after hub close")
	}
	if _, err := fx.hub.Attach(nil, "late"); err != ErrHubClosed {
		t.Fatalf("expected ErrHubClosed, got %v", err)
	}
}

func TestClientRunStopsOnContextCancel(t *testing.T) {
	fx := newHubFixture(t)
	defer fx.srv.Close()

	conn := fx.dial(t)
	defer conn.Close()
	waitFor(t, func() bool { return fx.hub.Count() == 1 })

	fx.cancel()
	select {
	case <-fx.finished:
	case <-time.After(2 * time.Second):
		t.Fatalf("client run did not return after cancel")
	}
}
