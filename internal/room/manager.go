package room

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/echo-chat/realtime-core/internal/apperr"
)

// Bus is the subset of eventbus.Bus the Room Manager needs to bridge C6 into
// local fan-out: one subscription per topic that currently has at least one
// local subscriber, torn down once the last local subscriber leaves.
type Bus interface {
	Subscribe(subject string, handler func(data []byte)) (func() error, error)
}

// Manager owns the shard pool and routes topic operations to the shard that
// owns that topic's hash bucket. When bus is non-nil, Join/Leave also manage
// a ref-counted NATS subscription per topic so that events published by any
// process on the bus reach this process's locally connected sockets (spec
// §4.7: "join/leave (un)subscribe the bus as local interest appears").
type Manager struct {
	shards []*shard
	bus    Bus

	mu       sync.Mutex
	busSubs  map[string]func() error
	refCount map[string]int
}

func NewManager(shardCount int, logger zerolog.Logger, bus Bus) *Manager {
	m := &Manager{
		shards:   make([]*shard, shardCount),
		bus:      bus,
		busSubs:  make(map[string]func() error),
		refCount: make(map[string]int),
	}
	for i := 0; i < shardCount; i++ {
		s := newShard(i, logger.With().Int("shard", i).Logger())
		m.shards[i] = s
		go s.run()
	}
	return m
}

func (m *Manager) shardFor(topic string) *shard {
	return m.shards[shardIndex(topic, len(m.shards))]
}

// Join subscribes sub to topic, bridging the bus in for this topic if sub is
// the first local interest in it.
func (m *Manager) Join(topic string, sub *Subscriber) {
	m.shardFor(topic).join <- joinCmd{topic: topic, sub: sub}
	m.bridgeIn(topic)
}

// Leave unsubscribes subID from topic, tearing down the bus bridge once no
// local subscriber remains interested in topic.
func (m *Manager) Leave(topic, subID string) {
	m.shardFor(topic).leave <- leaveCmd{topic: topic, subID: subID}
	m.bridgeOut(topic)
}

// Publish fans payload out to every current subscriber of topic. Delivery is
// best-effort: a subscriber joining after Publish returns never sees it
// (spec §4.7, no message retained at the room layer).
func (m *Manager) Publish(topic string, payload []byte) error {
	shard := m.shardFor(topic)
	select {
	case shard.publish <- publishCmd{topic: topic, payload: payload}:
		return nil
	default:
		return apperr.New(apperr.Unavailable, "room shard publish queue full")
	}
}

// Stop halts every shard goroutine and every bridged bus subscription. Used
// only at process shutdown.
func (m *Manager) Stop() {
	for _, s := range m.shards {
		s.stop()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for topic, unsub := range m.busSubs {
		_ = unsub()
		delete(m.busSubs, topic)
	}
}

func (m *Manager) bridgeIn(topic string) {
	if m.bus == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.refCount[topic]++
	if m.refCount[topic] > 1 {
		return
	}

	unsub, err := m.bus.Subscribe(topic, func(payload []byte) {
		_ = m.Publish(topic, payload)
	})
	if err != nil {
		m.refCount[topic]--
		return
	}
	m.busSubs[topic] = unsub
}

func (m *Manager) bridgeOut(topic string) {
	if m.bus == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refCount[topic] == 0 {
		return
	}
	m.refCount[topic]--
	if m.refCount[topic] > 0 {
		return
	}

	delete(m.refCount, topic)
	if unsub, ok := m.busSubs[topic]; ok {
		_ = unsub()
		delete(m.busSubs, topic)
	}
}
