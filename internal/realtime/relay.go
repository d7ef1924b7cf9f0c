package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/garnizeh/campuscare/internal/models"
)

// RedisRelay joins the feeds of several server instances through a Redis
// pub/sub channel: local events are published, remote events are injected into
// the local feed. Events carry their origin so an instance never re-injects its
// own publications.
type RedisRelay struct {
	client  redis.UniversalClient
	channel string
	feed    *Feed
	logger  *slog.Logger

	out    chan models.ChangeEvent
	pubsub *redis.PubSub
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewRedisRelay(client redis.UniversalClient, channel string, feed *Feed, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{client: client, channel: channel, feed: feed, logger: logger, out: make(chan models.ChangeEvent, 256)}
}

// Start subscribes to the channel and begins relaying in both directions.
func (r *RedisRelay) Start(ctx context.Context) error {
	ps := r.client.Subscribe(ctx, r.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.pubsub = ps

	ctx, r.cancel = context.WithCancel(ctx)
	r.feed.OnPublish(r.enqueue)

	r.wg.Add(2)
	go func() {
		defer r.wg.Done()
		r.publishLoop(ctx)
	}()
	go func() {
		defer r.wg.Done()
		r.receiveLoop(ctx, ps.Channel())
	}()
	return nil
}

// Close stops both loops and releases the subscription.
func (r *RedisRelay) Close() error {
	if r.cancel != nil {
		r.cancel()
	}
	var err error
	if r.pubsub != nil {
		err = r.pubsub.Close()
	}
	r.wg.Wait()
	return err
}

func (r *RedisRelay) enqueue(ev models.ChangeEvent) {
	select {
	case r.out <- ev:
	default:
		r.logger.Warn("redis relay queue full, event not forwarded", "alert_id", ev.AlertID())
	}
}

func (r *RedisRelay) publishLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-r.out:
			b, err := encodeWire(ev)
			if err != nil {
				r.logger.Error("encode relay event", "err", err)
				continue
			}
			pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			if err := r.client.Publish(pctx, r.channel, b).Err(); err != nil {
				r.logger.Warn("redis publish failed", "alert_id", ev.AlertID(), "err", err)
			}
			cancel()
		}
	}
}

func (r *RedisRelay) receiveLoop(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleMessage(ctx, []byte(msg.Payload))
		}
	}
}

// handleMessage injects a remote event into the local feed. Malformed payloads
// and events that originated here are ignored.
func (r *RedisRelay) handleMessage(ctx context.Context, payload []byte) bool {
	ev, err := models.DecodeWireEvent(ctx, payload)
	if err != nil {
		r.logger.Warn("dropping malformed relay event", "err", err)
		return false
	}
	if ev.Origin == "" || ev.Origin == r.feed.Origin() {
		return false
	}
	r.feed.deliver(ev, false)
	return true
}

func encodeWire(ev models.ChangeEvent) ([]byte, error) {
	return json.Marshal(ev.ToWire())
}
