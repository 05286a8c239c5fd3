// Package gateway implements C8, the Gateway/Socket Session: the duplex
// connection state machine between a client and one Gateway process,
// grounded on go-server/pkg/websocket/client.go's read/write pump split.
package gateway

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/echo-chat/realtime-core/internal/apperr"
	"github.com/echo-chat/realtime-core/internal/auth"
	"github.com/echo-chat/realtime-core/internal/membership"
	"github.com/echo-chat/realtime-core/internal/room"
)

// State is a session's position in the Handshaking -> Authenticated ->
// Active -> Closing -> Closed lifecycle (spec §4.8).
type State int

const (
	StateHandshaking State = iota
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Envelope is the wire shape of every inbound command and outbound event:
// a name and a JSON payload (spec §6.2).
type Envelope struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Deps are the components a Session needs to authorize and act on commands.
type Deps struct {
	Verifier     *auth.Verifier
	Membership   *membership.Oracle
	Rooms        *room.Manager
	Logger       zerolog.Logger

	HeartbeatInterval      time.Duration
	HeartbeatMissThreshold int
	OutboundQueueCapacity  int
}

// Session is one socket's server-side state: its joined topics, its outbound
// queue, and its auth principal once handshake completes.
type Session struct {
	ID     string
	conn   *websocket.Conn
	deps   Deps
	logger zerolog.Logger

	mu     sync.Mutex
	state  State
	userID string
	topics map[string]bool // topic -> joined

	outbox    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func NewSession(id string, conn *websocket.Conn, deps Deps) *Session {
	return &Session{
		ID:     id,
		conn:   conn,
		deps:   deps,
		logger: deps.Logger.With().Str("sessionId", id).Logger(),
		state:  StateHandshaking,
		topics: make(map[string]bool),
		outbox: make(chan []byte, deps.OutboundQueueCapacity),
		closed: make(chan struct{}),
	}
}

// Upgrade promotes an HTTP request to a websocket connection and constructs
// the Session around it.
func Upgrade(w http.ResponseWriter, r *http.Request, id string, deps Deps) (*Session, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.Internal, "failed to upgrade connection", err)
	}
	return NewSession(id, conn, deps), nil
}

// Run drives the session until the connection closes: handshake, then the
// read/write pump pair, matching the teacher's split between a blocking read
// goroutine and a select-driven write/control loop.
func (s *Session) Run() {
	defer s.teardown()

	if err := s.handshake(); err != nil {
		s.sendError("", err)
		return
	}

	readErrs := make(chan error, 1)
	inbound := make(chan Envelope, 32)
	go s.readPump(inbound, readErrs)

	s.setState(StateActive)
	s.send(Envelope{Name: "ready", Payload: s.readyPayload()})

	heartbeat := time.NewTicker(s.deps.HeartbeatInterval)
	defer heartbeat.Stop()
	misses := 0

	for {
		select {
		case <-s.closed:
			return
		case payload, ok := <-s.outbox:
			if !ok {
				return
			}
			s.interceptMembershipLeft(payload)
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case env := <-inbound:
			misses = 0
			s.handleCommand(env)
		case err := <-readErrs:
			if err != nil {
				s.logger.Debug().Err(err).Msg("session read loop ended")
			}
			return
		case <-heartbeat.C:
			misses++
			if misses > s.deps.HeartbeatMissThreshold {
				s.logger.Warn().Msg("heartbeat missed threshold, closing session")
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) readPump(out chan<- Envelope, errs chan<- error) {
	s.conn.SetReadLimit(64 * 1024)
	s.conn.SetPongHandler(func(string) error { return nil })

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			errs <- err
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.sendError("", apperr.New(apperr.InvalidArgument, "malformed command envelope"))
			continue
		}
		out <- env
	}
}

// send enqueues an outbound event. A full outbox means this session is a
// slow consumer; the caller (room.Manager) is what actually evicts it, so
// send itself simply never blocks.
func (s *Session) send(env Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		return
	}
	select {
	case s.outbox <- data:
	default:
		s.logger.Warn().Str("event", env.Name).Msg("session outbox full, dropping event")
	}
}

func (s *Session) sendError(code string, err error) {
	s.send(Envelope{Name: "error", Payload: mustJSON(map[string]any{
		"code":      apperr.KindOf(err),
		"message":   err.Error(),
		"retryable": apperr.IsRetryable(err),
	})})
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Disconnect forcibly ends the session, used when the room manager evicts a
// slow consumer (a revoked membership only leaves the affected topics, via
// ForceLeaveWorkspace/ForceLeaveChannel, and does not call it). Safe to call concurrently and more than once: a session joined to several
// topics can have its Dropped callback fire from more than one shard.
func (s *Session) Disconnect(reason string) {
	s.closeOnce.Do(func() {
		s.setState(StateClosing)
		s.send(Envelope{Name: "server:disconnect", Payload: mustJSON(map[string]any{"reason": reason})})
		close(s.closed)
	})
}

func (s *Session) teardown() {
	s.setState(StateClosed)
	s.mu.Lock()
	topics := make([]string, 0, len(s.topics))
	for t := range s.topics {
		topics = append(topics, t)
	}
	s.mu.Unlock()

	for _, t := range topics {
		s.deps.Rooms.Leave(t, s.ID)
	}
	s.conn.Close()
}

// readyPayload carries the server time and the principal this connection
// authenticated as, so the client can confirm which account it is live under
// without a separate round trip (spec §4.8, scenario 1).
func (s *Session) readyPayload() json.RawMessage {
	s.mu.Lock()
	userID := s.userID
	s.mu.Unlock()
	return mustJSON(map[string]any{"serverTime": time.Now().UTC(), "userId": userID})
}

// membershipLeftPayload is the shape of the "workspace:member:left" and
// "channel:member:left" events published to a user's own inbox (see
// router.MemberLeftWorkspace / router.MemberLeftChannel).
type membershipLeftPayload struct {
	UserID      string `json:"userId"`
	WorkspaceID string `json:"workspaceId"`
	ChannelID   string `json:"channelId"`
}

// interceptMembershipLeft inspects a payload about to be relayed to the
// client over this session's own inbox topic. When it names this session's
// own user as having left a workspace or channel, the Gateway forces the
// matching room topics closed here rather than waiting for the client to
// act on it, since authorization is bound to the joined room, not the
// connection (spec §4.8).
func (s *Session) interceptMembershipLeft(payload []byte) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return
	}

	switch env.Name {
	case "workspace:member:left":
		var p membershipLeftPayload
		if json.Unmarshal(env.Payload, &p) == nil && p.UserID == s.userID {
			s.ForceLeaveWorkspace(p.WorkspaceID)
		}
	case "channel:member:left":
		var p membershipLeftPayload
		if json.Unmarshal(env.Payload, &p) == nil && p.UserID == s.userID {
			s.ForceLeaveChannel(p.WorkspaceID, p.ChannelID)
		}
	}
}

func mustJSON(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}
