package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/echo-chat/realtime-core/internal/apperr"
	"github.com/echo-chat/realtime-core/internal/domain"
)

// ReadPositionStore implements C5: per-user, per-channel read receipts that
// only ever advance (spec §4.5, P2).
type ReadPositionStore struct {
	pool *Pool
}

func NewReadPositionStore(pool *Pool) *ReadPositionStore {
	return &ReadPositionStore{pool: pool}
}

// Advance moves userID's read position in channelID forward to messageNo,
// never backward. Idempotent: calling it twice with the same or an older
// messageNo is a no-op on the second call. messageID is the id of the
// message at messageNo, recorded for convenience.
func (s *ReadPositionStore) Advance(ctx context.Context, workspaceID, channelID, userID string, messageNo int64, messageID string) (*domain.ReadReceipt, error) {
	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	now := time.Now().UTC()
	_, err := s.pool.db.Exec(ctx, `
		INSERT INTO read_receipts (user_id, workspace_id, channel_id, last_read_message_no, last_read_message_id, last_read_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (user_id, channel_id) DO UPDATE SET
			last_read_message_no = GREATEST(read_receipts.last_read_message_no, EXCLUDED.last_read_message_no),
			last_read_message_id = CASE WHEN EXCLUDED.last_read_message_no > read_receipts.last_read_message_no
			                            THEN EXCLUDED.last_read_message_id ELSE read_receipts.last_read_message_id END,
			last_read_at = CASE WHEN EXCLUDED.last_read_message_no > read_receipts.last_read_message_no
			                    THEN EXCLUDED.last_read_at ELSE read_receipts.last_read_at END`,
		userID, workspaceID, channelID, messageNo, messageID, now)
	if err != nil {
		return nil, deadlineErr(ctx, err)
	}

	return s.Get(ctx, channelID, userID)
}

// Get returns the current read receipt for userID in channelID, or a
// zero-valued receipt (lastReadMessageNo=0) if the user has never read it.
func (s *ReadPositionStore) Get(ctx context.Context, channelID, userID string) (*domain.ReadReceipt, error) {
	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	row := s.pool.db.QueryRow(ctx, `
		SELECT user_id, workspace_id, channel_id, last_read_message_no, last_read_message_id, last_read_at
		FROM read_receipts WHERE user_id = $1 AND channel_id = $2`, userID, channelID)

	var r domain.ReadReceipt
	var messageID *string
	err := row.Scan(&r.UserID, &r.WorkspaceID, &r.ChannelID, &r.LastReadMessageNo, &messageID, &r.LastReadAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return &domain.ReadReceipt{UserID: userID, ChannelID: channelID, LastReadMessageNo: 0}, nil
	}
	if err != nil {
		return nil, deadlineErr(ctx, err)
	}
	r.LastReadMessageID = messageID
	return &r, nil
}

// UnreadCount returns max(0, channelHead - lastReadMessageNo) for userID in channelID.
func (s *ReadPositionStore) UnreadCount(ctx context.Context, channelID, userID string) (int64, error) {
	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	var unread int64
	err := s.pool.db.QueryRow(ctx, `
		SELECT GREATEST(0, COALESCE((SELECT MAX(message_no) FROM messages WHERE channel_id = $1), 0)
		                  - COALESCE((SELECT last_read_message_no FROM read_receipts WHERE channel_id = $1 AND user_id = $2), 0))`,
		channelID, userID).Scan(&unread)
	if err != nil {
		return 0, deadlineErr(ctx, err)
	}
	return unread, nil
}

// UnreadCounts returns the unread count for every channel userID belongs to
// in workspaceID, keyed by channelID (spec §5, bulk unread-counts endpoint).
func (s *ReadPositionStore) UnreadCounts(ctx context.Context, workspaceID, userID string) (map[string]int64, error) {
	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	rows, err := s.pool.db.Query(ctx, `
		SELECT cm.channel_id,
		       GREATEST(0, COALESCE((SELECT MAX(m.message_no) FROM messages m WHERE m.channel_id = cm.channel_id), 0)
		                  - COALESCE((SELECT rr.last_read_message_no FROM read_receipts rr
		                              WHERE rr.channel_id = cm.channel_id AND rr.user_id = cm.user_id), 0))
		FROM channel_memberships cm
		JOIN channels c ON c.id = cm.channel_id
		WHERE cm.user_id = $1 AND c.workspace_id = $2`, userID, workspaceID)
	if err != nil {
		return nil, deadlineErr(ctx, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var channelID string
		var count int64
		if err := rows.Scan(&channelID, &count); err != nil {
			return nil, deadlineErr(ctx, err)
		}
		out[channelID] = count
	}
	if err := rows.Err(); err != nil {
		return nil, deadlineErr(ctx, err)
	}
	return out, nil
}
