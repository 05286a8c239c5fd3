package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/echo-chat/realtime-core/internal/domain"
)

// MembershipStore is the durable backing store queried by C2's Oracle on a
// cache miss. It never caches itself; that is the Oracle's job.
type MembershipStore struct {
	pool *Pool
}

func NewMembershipStore(pool *Pool) *MembershipStore {
	return &MembershipStore{pool: pool}
}

// WorkspaceMembership returns NotMember (no error) when userID has no row,
// distinguishing absence from failure so the Oracle can tell "not a member"
// from "store unavailable".
func (s *MembershipStore) WorkspaceMembership(ctx context.Context, workspaceID, userID string) (domain.MembershipResult, error) {
	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	var role domain.Role
	err := s.pool.db.QueryRow(ctx, `
		SELECT role FROM workspace_memberships WHERE workspace_id = $1 AND user_id = $2`, workspaceID, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotMember, nil
	}
	if err != nil {
		return domain.NotMember, deadlineErr(ctx, err)
	}
	return domain.MembershipResult{IsMember: true, Role: role}, nil
}

// ChannelMembership returns NotMember when userID has no row in channelID.
func (s *MembershipStore) ChannelMembership(ctx context.Context, channelID, userID string) (domain.MembershipResult, error) {
	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	var role domain.Role
	var muted bool
	err := s.pool.db.QueryRow(ctx, `
		SELECT role, is_muted FROM channel_memberships WHERE channel_id = $1 AND user_id = $2`, channelID, userID).Scan(&role, &muted)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.NotMember, nil
	}
	if err != nil {
		return domain.NotMember, deadlineErr(ctx, err)
	}
	return domain.MembershipResult{IsMember: true, Role: role, Muted: muted}, nil
}

// ChannelsOfUserInWorkspace lists every channelID userID belongs to within workspaceID.
func (s *MembershipStore) ChannelsOfUserInWorkspace(ctx context.Context, workspaceID, userID string) ([]string, error) {
	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	rows, err := s.pool.db.Query(ctx, `
		SELECT cm.channel_id FROM channel_memberships cm
		JOIN channels c ON c.id = cm.channel_id
		WHERE cm.user_id = $1 AND c.workspace_id = $2`, userID, workspaceID)
	if err != nil {
		return nil, deadlineErr(ctx, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, deadlineErr(ctx, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, deadlineErr(ctx, err)
	}
	return ids, nil
}
