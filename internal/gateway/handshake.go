package gateway

import (
	"encoding/json"
	"time"

	"github.com/echo-chat/realtime-core/internal/apperr"
)

type handshakePayload struct {
	Token string `json:"token"`
}

// handshake reads the first envelope on the connection, verifies its bearer
// token via C1, and binds the session to the resulting principal (spec
// §4.8, §6.2: "Handshake carries the bearer credential").
func (s *Session) handshake() error {
	s.conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		return apperr.Wrap(apperr.AuthInvalid, "handshake not received", err)
	}
	s.conn.SetReadDeadline(time.Time{})

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Name != "auth" {
		return apperr.New(apperr.AuthInvalid, "expected auth handshake envelope")
	}

	var hs handshakePayload
	if err := json.Unmarshal(env.Payload, &hs); err != nil {
		return apperr.New(apperr.AuthInvalid, "malformed handshake payload")
	}

	claims, err := s.deps.Verifier.Verify(hs.Token)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.userID = claims.UserID
	s.mu.Unlock()
	s.setState(StateAuthenticated)

	topic := userTopic(s.userID)
	s.deps.Rooms.Join(topic, s.asSubscriber())
	s.mu.Lock()
	s.topics[topic] = true
	s.mu.Unlock()

	return nil
}
