// Package room implements C7, the Room Manager: in-process fan-out of
// published events to the sockets subscribed to a topic, sharded across a
// fixed set of single-goroutine workers to avoid lock contention on the
// subscriber map, grounded on src/sharded/shard.go.
package room

import (
	"hash/fnv"

	"github.com/rs/zerolog"
)

// Subscriber is the shard's view of a connected socket session: an outbound
// queue and an identity used for bookkeeping and slow-consumer eviction.
type Subscriber struct {
	ID      string
	Outbox  chan []byte
	Dropped func()
}

type joinCmd struct {
	topic string
	sub   *Subscriber
}

type leaveCmd struct {
	topic string
	subID string
}

type publishCmd struct {
	topic   string
	payload []byte
}

// shard owns a partition of topics and their subscribers. All state below is
// touched only by run(), so no lock guards it.
type shard struct {
	id            int
	subscribers   map[string]map[string]*Subscriber // topic -> subID -> Subscriber
	join          chan joinCmd
	leave         chan leaveCmd
	publish       chan publishCmd
	quit          chan struct{}
	logger        zerolog.Logger
	slowThreshold int
	failCounts    map[string]int // subID -> consecutive full-outbox failures
}

func newShard(id int, logger zerolog.Logger) *shard {
	return &shard{
		id:            id,
		subscribers:   make(map[string]map[string]*Subscriber),
		join:          make(chan joinCmd, 256),
		leave:         make(chan leaveCmd, 256),
		publish:       make(chan publishCmd, 2048),
		quit:          make(chan struct{}),
		logger:        logger,
		slowThreshold: 3,
		failCounts:    make(map[string]int),
	}
}

func (s *shard) run() {
	for {
		select {
		case <-s.quit:
			return
		case cmd := <-s.join:
			s.handleJoin(cmd)
		case cmd := <-s.leave:
			s.handleLeave(cmd)
		case cmd := <-s.publish:
			s.handlePublish(cmd)
		}
	}
}

func (s *shard) handleJoin(cmd joinCmd) {
	subs, ok := s.subscribers[cmd.topic]
	if !ok {
		subs = make(map[string]*Subscriber)
		s.subscribers[cmd.topic] = subs
	}
	subs[cmd.sub.ID] = cmd.sub
}

func (s *shard) handleLeave(cmd leaveCmd) {
	if subs, ok := s.subscribers[cmd.topic]; ok {
		delete(subs, cmd.subID)
		if len(subs) == 0 {
			delete(s.subscribers, cmd.topic)
		}
	}
	delete(s.failCounts, cmd.subID)
}

// handlePublish fans payload out to every subscriber of topic. A subscriber
// whose outbox is full is counted as a dropped send; after slowThreshold
// consecutive drops it is evicted so one slow socket cannot back up the
// shard's delivery to everyone else (spec §7, SlowConsumer, P7).
func (s *shard) handlePublish(cmd publishCmd) {
	subs := s.subscribers[cmd.topic]
	for id, sub := range subs {
		select {
		case sub.Outbox <- cmd.payload:
			s.failCounts[id] = 0
		default:
			s.failCounts[id]++
			if s.failCounts[id] >= s.slowThreshold {
				s.logger.Warn().Str("subscriberId", id).Str("topic", cmd.topic).Msg("evicting slow consumer")
				delete(subs, id)
				delete(s.failCounts, id)
				if sub.Dropped != nil {
					sub.Dropped()
				}
			}
		}
	}
	if len(subs) == 0 {
		delete(s.subscribers, cmd.topic)
	}
}

func (s *shard) stop() {
	close(s.quit)
}

func shardIndex(topic string, count int) int {
	h := fnv.New32a()
	h.Write([]byte(topic))
	return int(h.Sum32()) % count
}
