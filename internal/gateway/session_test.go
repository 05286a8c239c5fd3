package gateway

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/echo-chat/realtime-core/internal/room"
)

func newTestSession() *Session {
	return NewSession("s1", nil, Deps{
		Logger:                 zerolog.Nop(),
		HeartbeatInterval:      time.Minute,
		HeartbeatMissThreshold: 3,
		OutboundQueueCapacity:  4,
	})
}

func TestDisconnectIsSafeToCallConcurrentlyMoreThanOnce(t *testing.T) {
	s := newTestSession()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NotPanics(t, func() { s.Disconnect("SlowConsumer") })
		}()
	}
	wg.Wait()

	select {
	case <-s.closed:
	default:
		t.Fatal("closed channel should be closed after Disconnect")
	}
	assert.Equal(t, StateClosing, s.State())
}

func TestSendDropsWhenOutboxIsFull(t *testing.T) {
	s := newTestSession()
	for i := 0; i < cap(s.outbox); i++ {
		s.outbox <- []byte("x")
	}

	assert.NotPanics(t, func() { s.send(Envelope{Name: "event"}) })
	assert.Equal(t, cap(s.outbox), len(s.outbox))
}

func TestReadyPayloadIncludesAuthenticatedUserID(t *testing.T) {
	s := newTestSession()
	s.userID = "u1"

	var got map[string]any
	require := assert.New(t)
	err := json.Unmarshal(s.readyPayload(), &got)
	require.NoError(err)
	require.Equal("u1", got["userId"])
	require.NotEmpty(got["serverTime"])
}

func TestInterceptMembershipLeftForcesWorkspaceLeaveForOwnUser(t *testing.T) {
	s := newTestSession()
	s.deps.Rooms = room.NewManager(1, zerolog.Nop(), nil)
	defer s.deps.Rooms.Stop()
	s.userID = "u1"
	s.topics["echo.workspace.w1"] = true
	s.topics["echo.workspace.w1.channel.c1"] = true
	s.topics["echo.workspace.w2"] = true

	payload, err := json.Marshal(Envelope{
		Name:    "workspace:member:left",
		Payload: mustJSON(map[string]any{"userId": "u1", "workspaceId": "w1"}),
	})
	assert.NoError(t, err)

	s.interceptMembershipLeft(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.False(t, s.topics["echo.workspace.w1"])
	assert.False(t, s.topics["echo.workspace.w1.channel.c1"])
	assert.True(t, s.topics["echo.workspace.w2"])
}

func TestInterceptMembershipLeftForcesChannelLeaveForOwnUser(t *testing.T) {
	s := newTestSession()
	s.deps.Rooms = room.NewManager(1, zerolog.Nop(), nil)
	defer s.deps.Rooms.Stop()
	s.userID = "u1"
	s.topics["echo.workspace.w1.channel.c1"] = true

	payload, err := json.Marshal(Envelope{
		Name:    "channel:member:left",
		Payload: mustJSON(map[string]any{"userId": "u1", "workspaceId": "w1", "channelId": "c1"}),
	})
	assert.NoError(t, err)

	s.interceptMembershipLeft(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.False(t, s.topics["echo.workspace.w1.channel.c1"])
}

func TestInterceptMembershipLeftIgnoresEventsAboutOtherUsers(t *testing.T) {
	s := newTestSession()
	s.deps.Rooms = room.NewManager(1, zerolog.Nop(), nil)
	defer s.deps.Rooms.Stop()
	s.userID = "u1"
	s.topics["echo.workspace.w1"] = true

	payload, err := json.Marshal(Envelope{
		Name:    "workspace:member:left",
		Payload: mustJSON(map[string]any{"userId": "someone-else", "workspaceId": "w1"}),
	})
	assert.NoError(t, err)

	s.interceptMembershipLeft(payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.True(t, s.topics["echo.workspace.w1"])
}
