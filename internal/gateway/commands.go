package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/echo-chat/realtime-core/internal/apperr"
	"github.com/echo-chat/realtime-core/internal/room"
)

func workspaceTopic(workspaceID string) string { return fmt.Sprintf("echo.workspace.%s", workspaceID) }
func channelTopic(workspaceID, channelID string) string {
	return fmt.Sprintf("echo.workspace.%s.channel.%s", workspaceID, channelID)
}
func userTopic(userID string) string { return fmt.Sprintf("echo.user.%s", userID) }

// asSubscriber adapts the session to room.Manager's Subscriber shape; a
// dropped callback disconnects the session with SlowConsumer (spec §4.7, P7).
func (s *Session) asSubscriber() *room.Subscriber {
	return &room.Subscriber{
		ID:     s.ID,
		Outbox: s.outbox,
		Dropped: func() {
			s.Disconnect("SlowConsumer")
		},
	}
}

type joinWorkspacePayload struct {
	WorkspaceID string `json:"workspaceId"`
}

type joinChannelPayload struct {
	WorkspaceID string `json:"workspaceId"`
	ChannelID   string `json:"channelId"`
}

func (s *Session) handleCommand(env Envelope) {
	if s.State() != StateActive {
		s.sendError(env.Name, apperr.New(apperr.InvalidArgument, "command received before session is active"))
		return
	}

	switch env.Name {
	case "join_workspace":
		s.handleJoinWorkspace(env)
	case "leave_workspace":
		s.handleLeaveWorkspace(env)
	case "join_channel":
		s.handleJoinChannel(env)
	case "leave_channel":
		s.handleLeaveChannel(env)
	case "ping":
		s.send(Envelope{Name: "pong"})
	default:
		s.sendError(env.Name, apperr.New(apperr.InvalidArgument, "unrecognized command"))
	}
}

func (s *Session) handleJoinWorkspace(env Envelope) {
	var p joinWorkspacePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendError(env.Name, apperr.New(apperr.InvalidArgument, "malformed join_workspace payload"))
		return
	}

	result, err := s.deps.Membership.IsWorkspaceMember(context.Background(), p.WorkspaceID, s.userID)
	if err != nil {
		s.sendError(env.Name, err)
		return
	}
	if !result.IsMember {
		s.sendError(env.Name, apperr.New(apperr.Forbidden, "not a member of this workspace"))
		return
	}

	topic := workspaceTopic(p.WorkspaceID)
	s.deps.Rooms.Join(topic, s.asSubscriber())
	s.mu.Lock()
	s.topics[topic] = true
	s.mu.Unlock()

	s.send(Envelope{Name: "workspace:joined", Payload: mustJSON(map[string]any{"workspaceId": p.WorkspaceID})})
}

func (s *Session) handleLeaveWorkspace(env Envelope) {
	var p joinWorkspacePayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendError(env.Name, apperr.New(apperr.InvalidArgument, "malformed leave_workspace payload"))
		return
	}
	s.leaveTopic(workspaceTopic(p.WorkspaceID))
	s.send(Envelope{Name: "workspace:left", Payload: mustJSON(map[string]any{"workspaceId": p.WorkspaceID})})
}

func (s *Session) handleJoinChannel(env Envelope) {
	var p joinChannelPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendError(env.Name, apperr.New(apperr.InvalidArgument, "malformed join_channel payload"))
		return
	}

	result, err := s.deps.Membership.IsChannelMember(context.Background(), p.ChannelID, s.userID)
	if err != nil {
		s.sendError(env.Name, err)
		return
	}
	if !result.IsMember {
		s.sendError(env.Name, apperr.New(apperr.Forbidden, "not a member of this channel"))
		return
	}

	topic := channelTopic(p.WorkspaceID, p.ChannelID)
	s.deps.Rooms.Join(topic, s.asSubscriber())
	s.mu.Lock()
	s.topics[topic] = true
	s.mu.Unlock()

	// currentHead resolution (C10) is the caller's responsibility via the
	// HTTP history endpoint; the Gateway here only acks the join itself.
	s.send(Envelope{Name: "channel:joined", Payload: mustJSON(map[string]any{
		"workspaceId": p.WorkspaceID, "channelId": p.ChannelID,
	})})
}

func (s *Session) handleLeaveChannel(env Envelope) {
	var p joinChannelPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		s.sendError(env.Name, apperr.New(apperr.InvalidArgument, "malformed leave_channel payload"))
		return
	}
	s.leaveTopic(channelTopic(p.WorkspaceID, p.ChannelID))
	s.send(Envelope{Name: "channel:left", Payload: mustJSON(map[string]any{
		"workspaceId": p.WorkspaceID, "channelId": p.ChannelID,
	})})
}

func (s *Session) leaveTopic(topic string) {
	s.deps.Rooms.Leave(topic, s.ID)
	s.mu.Lock()
	delete(s.topics, topic)
	s.mu.Unlock()
}

// ForceLeaveChannel is invoked from interceptMembershipLeft when a
// channel:member:left event on this session's own inbox names its user
// (spec §4.8: "authorization is bound to the joined room, not the
// connection").
func (s *Session) ForceLeaveChannel(workspaceID, channelID string) {
	s.leaveTopic(channelTopic(workspaceID, channelID))
}

// ForceLeaveWorkspace leaves the workspace topic and every channel topic
// under it, used on workspace:member:left.
func (s *Session) ForceLeaveWorkspace(workspaceID string) {
	prefix := workspaceTopic(workspaceID)
	s.mu.Lock()
	var toLeave []string
	for t := range s.topics {
		if t == prefix || strings.HasPrefix(t, prefix+".channel.") {
			toLeave = append(toLeave, t)
		}
	}
	s.mu.Unlock()
	for _, t := range toLeave {
		s.leaveTopic(t)
	}
}
