// Package domain holds the entities of spec §3: User, Workspace, Channel,
// WorkspaceMembership, ChannelMembership, Message, ReadReceipt, and Invite.
package domain

import "time"

// Role is a membership role, shared by WorkspaceMembership and ChannelMembership.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// ChannelType distinguishes the four channel shapes.
type ChannelType string

const (
	ChannelPublic  ChannelType = "public"
	ChannelPrivate ChannelType = "private"
	ChannelDirect  ChannelType = "direct"
	ChannelGroupDM ChannelType = "group_dm"
)

// ContentType is the kind of payload a Message carries.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentFile  ContentType = "file"
	ContentVideo ContentType = "video"
	ContentAudio ContentType = "audio"
)

// GeneralChannelName is the undeletable default channel of every workspace.
const GeneralChannelName = "general"

type User struct {
	ID          string
	Username    string
	DisplayName string
	AvatarURL   *string
}

type Workspace struct {
	ID          string
	Name        string
	DisplayName *string
	OwnerID     string
	IsArchived  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Channel struct {
	ID           string
	WorkspaceID  string
	Name         string
	DisplayName  *string
	Type         ChannelType
	IsArchived   bool
	IsReadOnly   bool
	CreatedBy    string
	MemberCount  int
	LastActivity *time.Time
	CreatedAt    time.Time
}

type WorkspaceMembership struct {
	WorkspaceID string
	UserID      string
	Role        Role
	JoinedAt    time.Time
}

type ChannelMembership struct {
	ChannelID string
	UserID    string
	Role      Role
	JoinedAt  time.Time
	IsMuted   bool
}

type Message struct {
	ID                     string
	WorkspaceID            string
	ChannelID              string
	MessageNo              int64
	UserID                 string
	Content                string
	ContentType            ContentType
	IsEdited               bool
	EditCount              int
	ParentMessageID        *string
	ThreadRootID           *string
	ThreadDepth            int
	ClientCorrelationID    string
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

type ReadReceipt struct {
	UserID            string
	WorkspaceID       string
	ChannelID         string
	LastReadMessageNo int64
	LastReadMessageID *string
	LastReadAt        time.Time
}

type Invite struct {
	Token      string
	WorkspaceID string
	Email      string
	Role       Role
	ExpiresAt  time.Time
	AcceptedBy *string
	AcceptedAt *time.Time
}

// MembershipResult is the answer to a membership lookup: either a role (and,
// for channels, a mute flag) or NotMember.
type MembershipResult struct {
	IsMember bool
	Role     Role
	Muted    bool
}

// NotMember is the zero-value "not a member" answer.
var NotMember = MembershipResult{}
