package router

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echo-chat/realtime-core/internal/domain"
)

func TestMessageCreatedRoutesToChannelTopic(t *testing.T) {
	msg := &domain.Message{WorkspaceID: "w1", ChannelID: "c1", MessageNo: 42}
	pubs := MessageCreated(msg, &domain.User{ID: "u1"})

	require.Len(t, pubs, 1)
	assert.Equal(t, "echo.workspace.w1.channel.c1", pubs[0].Topic)
	assert.Equal(t, "message:created", pubs[0].Event)
}

func TestChannelCreatedPublicGoesToWorkspaceTopic(t *testing.T) {
	ch := &domain.Channel{WorkspaceID: "w1", Type: domain.ChannelPublic}
	pubs := ChannelCreated(ch, []domain.User{{ID: "u1"}, {ID: "u2"}}, "u1")

	require.Len(t, pubs, 1)
	assert.Equal(t, "echo.workspace.w1", pubs[0].Topic)
}

func TestChannelCreatedPrivateFansOutToEachMemberInbox(t *testing.T) {
	ch := &domain.Channel{WorkspaceID: "w1", Type: domain.ChannelPrivate}
	pubs := ChannelCreated(ch, []domain.User{{ID: "u1"}, {ID: "u2"}}, "u1")

	require.Len(t, pubs, 2)
	assert.Equal(t, "echo.user.u1", pubs[0].Topic)
	assert.Equal(t, "echo.user.u2", pubs[1].Topic)
}

func TestWorkspaceDeletedFansOutToWorkspaceAndEveryMember(t *testing.T) {
	pubs := WorkspaceDeleted("w1", []string{"c1", "c2"}, []string{"u1", "u2"}, "owner")

	require.Len(t, pubs, 3)
	assert.Equal(t, "echo.workspace.w1", pubs[0].Topic)
	assert.Equal(t, "echo.user.u1", pubs[1].Topic)
	assert.Equal(t, "echo.user.u2", pubs[2].Topic)
	for _, p := range pubs {
		assert.Equal(t, "workspace:deleted", p.Event)
	}
}

func TestMemberJoinedChannelOnlyNotifiesInboxWhenPrivate(t *testing.T) {
	public := MemberJoinedChannel("w1", "c1", false, &domain.User{ID: "u1"}, domain.RoleMember)
	require.Len(t, public, 1)

	private := MemberJoinedChannel("w1", "c1", true, &domain.User{ID: "u1"}, domain.RoleMember)
	require.Len(t, private, 2)
	assert.Equal(t, "echo.user.u1", private[1].Topic)
}

func TestMemberLeftWorkspaceInboxPayloadCarriesWorkspaceID(t *testing.T) {
	pubs := MemberLeftWorkspace("w1", "u1")

	require.Len(t, pubs, 2)
	inbox := pubs[1]
	assert.Equal(t, "echo.user.u1", inbox.Topic)
	payload := inbox.Payload.(map[string]any)
	assert.Equal(t, "w1", payload["workspaceId"])
	assert.Equal(t, "u1", payload["userId"])
}

func TestMemberLeftChannelInboxPayloadCarriesChannelAndWorkspaceID(t *testing.T) {
	pubs := MemberLeftChannel("w1", "c1", "u1")

	require.Len(t, pubs, 2)
	inbox := pubs[1]
	assert.Equal(t, "echo.user.u1", inbox.Topic)
	payload := inbox.Payload.(map[string]any)
	assert.Equal(t, "w1", payload["workspaceId"])
	assert.Equal(t, "c1", payload["channelId"])
	assert.Equal(t, "u1", payload["userId"])
}

func TestReadReceiptUpdatedRoutesToOwnInbox(t *testing.T) {
	receipt := &domain.ReadReceipt{WorkspaceID: "w1", ChannelID: "c1", LastReadMessageNo: 10}
	pubs := ReadReceiptUpdated("u1", receipt, receipt.LastReadAt)

	require.Len(t, pubs, 1)
	assert.Equal(t, "echo.user.u1", pubs[0].Topic)
	assert.Equal(t, "read-receipt:updated", pubs[0].Event)
}
