// Package router implements C9, the Event Router: a pure mapping from
// committed domain events to the (topic, payload) publications the Gateway
// expects, per spec §4.9's table. It does not publish itself; callers pass
// the returned publications to an eventbus.Bus.
package router

import (
	"time"

	"github.com/echo-chat/realtime-core/internal/domain"
	"github.com/echo-chat/realtime-core/internal/eventbus"
)

// Publication is one (topic, eventName, payload) triple to hand to the bus.
type Publication struct {
	Topic   string
	Event   string
	Payload any
}

var subjects eventbus.Subjects

// MessageCreated routes a newly committed message to its channel topic.
func MessageCreated(msg *domain.Message, author *domain.User) []Publication {
	return []Publication{{
		Topic: subjects.Channel(msg.WorkspaceID, msg.ChannelID),
		Event: "message:created",
		Payload: map[string]any{
			"message":                    msg,
			"author":                     author,
			"clientMessageCorrelationId": msg.ClientCorrelationID,
		},
	}}
}

// ChannelCreated fans a new channel out to the workspace topic when public,
// or to each member's inbox when private or a DM (spec §4.9).
func ChannelCreated(ch *domain.Channel, members []domain.User, createdBy string) []Publication {
	payload := map[string]any{"channel": ch, "members": members, "createdBy": createdBy}

	if ch.Type == domain.ChannelPublic {
		return []Publication{{Topic: subjects.Workspace(ch.WorkspaceID), Event: "channel:created", Payload: payload}}
	}

	pubs := make([]Publication, 0, len(members))
	for _, u := range members {
		pubs = append(pubs, Publication{Topic: subjects.User(u.ID), Event: "channel:created", Payload: payload})
	}
	return pubs
}

// ChannelDeleted fans out to the workspace topic.
func ChannelDeleted(workspaceID, channelID, channelName, deletedBy string) []Publication {
	return []Publication{{
		Topic: subjects.Workspace(workspaceID),
		Event: "channel:deleted",
		Payload: map[string]any{
			"channelId": channelID, "channelName": channelName, "deletedBy": deletedBy,
		},
	}}
}

// WorkspaceDeleted fans out to the workspace topic and every member's inbox,
// so a connected member that has not joined the workspace topic still learns
// of the deletion via their own topic (spec §4.9, §9 redesign note on
// authoritative eviction).
func WorkspaceDeleted(workspaceID string, channelIDs []string, memberIDs []string, deletedBy string) []Publication {
	payload := map[string]any{"workspaceId": workspaceID, "channelIds": channelIDs, "deletedBy": deletedBy}

	pubs := []Publication{{Topic: subjects.Workspace(workspaceID), Event: "workspace:deleted", Payload: payload}}
	for _, u := range memberIDs {
		pubs = append(pubs, Publication{Topic: subjects.User(u), Event: "workspace:deleted", Payload: payload})
	}
	return pubs
}

// MemberJoinedWorkspace fans out to the workspace topic and the new member's inbox.
func MemberJoinedWorkspace(workspaceID string, user *domain.User, role domain.Role) []Publication {
	payload := map[string]any{"user": user, "role": role}
	return []Publication{
		{Topic: subjects.Workspace(workspaceID), Event: "workspace:member:joined", Payload: payload},
		{Topic: subjects.User(user.ID), Event: "workspace:member:joined", Payload: payload},
	}
}

// MemberLeftWorkspace fans out to the workspace topic and the former
// member's inbox. The inbox copy carries workspaceId so the former member's
// own Gateway can force-unsubscribe every topic under that workspace (spec
// §4.8: "authorization is bound to the joined room, not the connection").
func MemberLeftWorkspace(workspaceID, userID string) []Publication {
	payload := map[string]any{"userId": userID, "workspaceId": workspaceID}
	return []Publication{
		{Topic: subjects.Workspace(workspaceID), Event: "workspace:member:left", Payload: payload},
		{Topic: subjects.User(userID), Event: "workspace:member:left", Payload: payload},
	}
}

// MemberJoinedChannel fans out to the channel topic, plus the new member's
// inbox when the channel is private (so their Gateway can join the topic
// before the next bus message arrives).
func MemberJoinedChannel(workspaceID, channelID string, isPrivate bool, user *domain.User, role domain.Role) []Publication {
	payload := map[string]any{"user": user, "role": role}
	pubs := []Publication{{Topic: subjects.Channel(workspaceID, channelID), Event: "channel:member:joined", Payload: payload}}
	if isPrivate {
		pubs = append(pubs, Publication{Topic: subjects.User(user.ID), Event: "channel:member:joined", Payload: payload})
	}
	return pubs
}

// MemberLeftChannel fans out to the channel topic and the former member's
// inbox. The inbox copy carries workspaceId and channelId so the former
// member's own Gateway can force-unsubscribe that channel topic (spec §4.8).
func MemberLeftChannel(workspaceID, channelID, userID string) []Publication {
	payload := map[string]any{"userId": userID, "workspaceId": workspaceID, "channelId": channelID}
	return []Publication{
		{Topic: subjects.Channel(workspaceID, channelID), Event: "channel:member:left", Payload: payload},
		{Topic: subjects.User(userID), Event: "channel:member:left", Payload: payload},
	}
}

// ReadReceiptUpdated routes to the user's own inbox so other devices of the
// same account reconcile (spec §4.5).
func ReadReceiptUpdated(userID string, receipt *domain.ReadReceipt, at time.Time) []Publication {
	return []Publication{{
		Topic: subjects.User(userID),
		Event: "read-receipt:updated",
		Payload: map[string]any{
			"workspaceId":       receipt.WorkspaceID,
			"channelId":         receipt.ChannelID,
			"lastReadMessageNo": receipt.LastReadMessageNo,
			"lastReadAt":        at,
		},
	}}
}
