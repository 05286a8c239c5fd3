package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/echo-chat/realtime-core/internal/apperr"
	"github.com/echo-chat/realtime-core/internal/domain"
)

// MessageStore implements C3 (Sequence Allocator) and C4 (Message Store).
// Append couples allocation and commit in one transaction per spec §4.3:
// messageNo := MAX(messageNo)+1 WHERE channelId = C, under a row lock, with
// the insert in the same transaction so a crash after allocation but before
// commit leaves no gap.
type MessageStore struct {
	pool                *Pool
	allocatorMaxRetries int
	contentMaxLength    int
	dedupeWindow        time.Duration
}

func NewMessageStore(pool *Pool, allocatorMaxRetries, contentMaxLength int, dedupeWindow time.Duration) *MessageStore {
	return &MessageStore{
		pool:                pool,
		allocatorMaxRetries: allocatorMaxRetries,
		contentMaxLength:    contentMaxLength,
		dedupeWindow:        dedupeWindow,
	}
}

// Append allocates the next messageNo for channelID and persists the
// message, atomically, retrying on unique-constraint collisions up to
// allocatorMaxRetries before returning Contended (spec §4.3). A duplicate
// clientCorrelationID submitted by the same user within the dedupe window
// returns the original message instead of creating a new one (spec §7, P4).
func (s *MessageStore) Append(ctx context.Context, channelID, workspaceID, userID, content string, contentType domain.ContentType, parentMessageID *string, clientCorrelationID string) (*domain.Message, error) {
	if len(content) == 0 || len(content) > s.contentMaxLength {
		return nil, apperr.New(apperr.InvalidArgument, "content length out of range")
	}

	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	if clientCorrelationID != "" {
		if existing, err := s.findByCorrelation(ctx, channelID, userID, clientCorrelationID); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}

	var lastErr error
	for attempt := 0; attempt < s.allocatorMaxRetries; attempt++ {
		msg, err := s.appendOnce(ctx, channelID, workspaceID, userID, content, contentType, parentMessageID, clientCorrelationID)
		if err == nil {
			return msg, nil
		}
		if isUniqueViolation(err) {
			lastErr = err
			continue
		}
		return nil, deadlineErr(ctx, err)
	}
	return nil, apperr.Wrap(apperr.Contended, "sequence allocator exhausted retries", lastErr)
}

func (s *MessageStore) findByCorrelation(ctx context.Context, channelID, userID, correlationID string) (*domain.Message, error) {
	cutoff := time.Now().Add(-s.dedupeWindow)
	row := s.pool.db.QueryRow(ctx, `
		SELECT id, workspace_id, channel_id, message_no, user_id, content, content_type,
		       is_edited, edit_count, parent_message_id, thread_root_id, thread_depth,
		       client_correlation_id, created_at, updated_at
		FROM messages
		WHERE channel_id = $1 AND user_id = $2 AND client_correlation_id = $3 AND created_at >= $4
		ORDER BY message_no ASC LIMIT 1`, channelID, userID, correlationID, cutoff)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, deadlineErr(ctx, err)
	}
	return msg, nil
}

func (s *MessageStore) appendOnce(ctx context.Context, channelID, workspaceID, userID, content string, contentType domain.ContentType, parentMessageID *string, clientCorrelationID string) (*domain.Message, error) {
	tx, err := s.pool.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	if parentMessageID != nil {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM messages WHERE id = $1 AND channel_id = $2)`, *parentMessageID, channelID).Scan(&exists); err != nil {
			return nil, err
		}
		if !exists {
			return nil, apperr.New(apperr.InvalidArgument, "parentMessageId does not refer to a message in this channel")
		}
	}

	// Row-lock the channel record, then read the channel's current max
	// messageNo and insert the next one in the same transaction. A concurrent
	// allocator racing on the same (channelId, messageNo) collides on the
	// unique constraint and retries.
	if _, err := tx.Exec(ctx, `SELECT 1 FROM channels WHERE id = $1 FOR UPDATE`, channelID); err != nil {
		return nil, err
	}
	var nextNo int64
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(MAX(message_no), 0) + 1
		FROM messages WHERE channel_id = $1`, channelID).Scan(&nextNo)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	now := time.Now().UTC()

	_, err = tx.Exec(ctx, `
		INSERT INTO messages (id, workspace_id, channel_id, message_no, user_id, content, content_type,
		                       is_edited, edit_count, parent_message_id, thread_depth, client_correlation_id,
		                       created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,false,0,$8,0,$9,$10,$10)`,
		id, workspaceID, channelID, nextNo, userID, content, contentType, parentMessageID, clientCorrelationID, now)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return &domain.Message{
		ID: id, WorkspaceID: workspaceID, ChannelID: channelID, MessageNo: nextNo,
		UserID: userID, Content: content, ContentType: contentType,
		ParentMessageID: parentMessageID, ClientCorrelationID: clientCorrelationID,
		CreatedAt: now, UpdatedAt: now,
	}, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// GetByID returns a single message, NotFound if absent.
func (s *MessageStore) GetByID(ctx context.Context, workspaceID, channelID, messageID string) (*domain.Message, error) {
	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	row := s.pool.db.QueryRow(ctx, `
		SELECT id, workspace_id, channel_id, message_no, user_id, content, content_type,
		       is_edited, edit_count, parent_message_id, thread_root_id, thread_depth,
		       client_correlation_id, created_at, updated_at
		FROM messages WHERE workspace_id = $1 AND channel_id = $2 AND id = $3`, workspaceID, channelID, messageID)

	msg, err := scanMessage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "message not found")
	}
	if err != nil {
		return nil, deadlineErr(ctx, err)
	}
	return msg, nil
}

// HistoryDirection is the paging direction for History.
type HistoryDirection string

const (
	DirectionBefore HistoryDirection = "before"
	DirectionAfter  HistoryDirection = "after"
)

// HistoryPage is the result of a cursor-paged history read (spec §4.4).
type HistoryPage struct {
	Messages   []*domain.Message
	PrevCursor *int64
	NextCursor *int64
}

// History returns a page of messages ordered by messageNo ascending. With
// direction=before, messages with messageNo < cursor are selected (newest
// first) then returned in ascending order; with direction=after, messages
// with messageNo > cursor are selected directly in ascending order.
func (s *MessageStore) History(ctx context.Context, workspaceID, channelID string, cursor *int64, limit int, direction HistoryDirection) (*HistoryPage, error) {
	if limit <= 0 {
		return nil, apperr.New(apperr.InvalidArgument, "limit must be positive")
	}

	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	var rows pgx.Rows
	var err error
	switch direction {
	case DirectionBefore:
		c := int64(1 << 62)
		if cursor != nil {
			c = *cursor
		}
		rows, err = s.pool.db.Query(ctx, `
			SELECT id, workspace_id, channel_id, message_no, user_id, content, content_type,
			       is_edited, edit_count, parent_message_id, thread_root_id, thread_depth,
			       client_correlation_id, created_at, updated_at
			FROM messages WHERE workspace_id = $1 AND channel_id = $2 AND message_no < $3
			ORDER BY message_no DESC LIMIT $4`, workspaceID, channelID, c, limit)
	case DirectionAfter:
		c := int64(0)
		if cursor != nil {
			c = *cursor
		}
		rows, err = s.pool.db.Query(ctx, `
			SELECT id, workspace_id, channel_id, message_no, user_id, content, content_type,
			       is_edited, edit_count, parent_message_id, thread_root_id, thread_depth,
			       client_correlation_id, created_at, updated_at
			FROM messages WHERE workspace_id = $1 AND channel_id = $2 AND message_no > $3
			ORDER BY message_no ASC LIMIT $4`, workspaceID, channelID, c, limit)
	default:
		return nil, apperr.New(apperr.InvalidArgument, "direction must be before or after")
	}
	if err != nil {
		return nil, deadlineErr(ctx, err)
	}
	defer rows.Close()

	var msgs []*domain.Message
	for rows.Next() {
		msg, err := scanMessageRow(rows)
		if err != nil {
			return nil, deadlineErr(ctx, err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, deadlineErr(ctx, err)
	}

	// "before" selects newest-first; the page itself is returned ascending.
	if direction == DirectionBefore {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}

	page := &HistoryPage{Messages: msgs}
	if len(msgs) > 0 {
		oldest := msgs[0].MessageNo
		newest := msgs[len(msgs)-1].MessageNo

		// A cursor is only returned when a further page actually exists in
		// that direction; otherwise the client has reached the end of
		// history and must see null, not a cursor it can page forever with
		// (spec §4.4).
		var hasOlder, hasNewer bool
		if err := s.pool.db.QueryRow(ctx, `
			SELECT EXISTS(SELECT 1 FROM messages WHERE channel_id = $1 AND message_no < $2),
			       EXISTS(SELECT 1 FROM messages WHERE channel_id = $1 AND message_no > $3)`,
			channelID, oldest, newest).Scan(&hasOlder, &hasNewer); err != nil {
			return nil, deadlineErr(ctx, err)
		}

		if hasOlder {
			page.PrevCursor = &oldest
		}
		if hasNewer {
			page.NextCursor = &newest
		}
	}
	return page, nil
}

// Head returns the current channel head (max messageNo), 0 if the channel is empty.
func (s *MessageStore) Head(ctx context.Context, channelID string) (int64, error) {
	ctx, cancel := s.pool.withDeadline(ctx)
	defer cancel()

	var head int64
	err := s.pool.db.QueryRow(ctx, `SELECT COALESCE(MAX(message_no), 0) FROM messages WHERE channel_id = $1`, channelID).Scan(&head)
	if err != nil {
		return 0, deadlineErr(ctx, err)
	}
	return head, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row pgx.Row) (*domain.Message, error) {
	return scanMessageRow(row)
}

func scanMessageRow(row rowScanner) (*domain.Message, error) {
	var m domain.Message
	var parentID, threadRootID *string
	if err := row.Scan(&m.ID, &m.WorkspaceID, &m.ChannelID, &m.MessageNo, &m.UserID, &m.Content, &m.ContentType,
		&m.IsEdited, &m.EditCount, &parentID, &threadRootID, &m.ThreadDepth,
		&m.ClientCorrelationID, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.ParentMessageID = parentID
	m.ThreadRootID = threadRootID
	return &m, nil
}
