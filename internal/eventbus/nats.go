// Package eventbus implements C6: a fire-and-forget publish/subscribe plane
// with no persistence and no delivery guarantee, grounded on
// go-server/pkg/nats/client.go's connection and subscription management.
package eventbus

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/echo-chat/realtime-core/internal/apperr"
)

// Subjects builds the three topic shapes of spec §4.6: workspace-wide,
// channel-scoped, and user-targeted.
type Subjects struct{}

func (Subjects) Workspace(workspaceID string) string {
	return fmt.Sprintf("echo.workspace.%s", workspaceID)
}

func (Subjects) Channel(workspaceID, channelID string) string {
	return fmt.Sprintf("echo.workspace.%s.channel.%s", workspaceID, channelID)
}

func (Subjects) User(userID string) string {
	return fmt.Sprintf("echo.user.%s", userID)
}

// Bus wraps a NATS core connection. Messages are not persisted: a subscriber
// that is not connected when a message publishes never sees it (spec §4.6,
// Non-goals: no replay-from-bus, resync reads from C4/C5 instead).
type Bus struct {
	conn     *nats.Conn
	logger   zerolog.Logger
	mu       sync.RWMutex
	subs     map[string]*nats.Subscription
	Subjects Subjects
}

type Config struct {
	URL             string
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectJitter time.Duration
}

func Connect(cfg Config, logger zerolog.Logger) (*Bus, error) {
	b := &Bus{logger: logger, subs: make(map[string]*nats.Subscription)}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(cfg.ReconnectJitter, cfg.ReconnectJitter),
		nats.ConnectHandler(func(c *nats.Conn) {
			b.logger.Info().Str("url", c.ConnectedUrl()).Msg("event bus connected")
		}),
		nats.DisconnectErrHandler(func(c *nats.Conn, err error) {
			b.logger.Warn().Err(err).Msg("event bus disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			b.logger.Info().Str("url", c.ConnectedUrl()).Msg("event bus reconnected")
		}),
		nats.ErrorHandler(func(c *nats.Conn, s *nats.Subscription, err error) {
			b.logger.Error().Err(err).Msg("event bus error")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to connect to event bus", err)
	}
	b.conn = conn
	return b, nil
}

func (b *Bus) Close() {
	b.conn.Drain()
}

// Publish fires payload to subject. Best-effort: returns Unavailable if the
// bus connection is down, but never blocks waiting for a subscriber.
func (b *Bus) Publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return apperr.Wrap(apperr.Internal, "failed to encode event payload", err)
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return apperr.Wrap(apperr.Unavailable, "failed to publish event", err)
	}
	return nil
}

// Subscribe registers handler for subject. handler is invoked on the
// subscription's own delivery goroutine; callers that need backpressure must
// hand off to their own queue, since a slow handler here delays every later
// message on this subscription (spec §7, SlowConsumer is the caller's
// concern, not the bus's).
func (b *Bus) Subscribe(subject string, handler func(data []byte)) (func() error, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to subscribe", err)
	}

	b.mu.Lock()
	b.subs[subject] = sub
	b.mu.Unlock()

	return func() error {
		b.mu.Lock()
		delete(b.subs, subject)
		b.mu.Unlock()
		return sub.Unsubscribe()
	}, nil
}
