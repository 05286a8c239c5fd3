// Package resync implements C10: the pull-based reconnect contract. The core
// never buffers events for a disconnected client; catching up is strictly a
// matter of reading C4 history forward from the client's last known cursor.
package resync

import (
	"context"

	"github.com/echo-chat/realtime-core/internal/apperr"
	"github.com/echo-chat/realtime-core/internal/store"
)

// MessageStore is the subset of store.MessageStore resync depends on.
type MessageStore interface {
	Head(ctx context.Context, channelID string) (int64, error)
	History(ctx context.Context, workspaceID, channelID string, cursor *int64, limit int, direction store.HistoryDirection) (*store.HistoryPage, error)
}

// CurrentHead returns the channel head (max messageNo, 0 when empty). The
// gateway's join_channel ack does not include this value.
func CurrentHead(ctx context.Context, messages MessageStore, channelID string) (int64, error) {
	return messages.Head(ctx, channelID)
}

// Catchup pages forward from the client's lastKnownMessageNo toward head,
// returning one page at a time; callers loop until the returned page's
// NextCursor reaches head or the page is short of limit. limit is clamped
// to historyMaxLimit by the caller.
func Catchup(ctx context.Context, messages MessageStore, workspaceID, channelID string, lastKnownMessageNo int64, limit int) (*store.HistoryPage, error) {
	if limit <= 0 {
		return nil, apperr.New(apperr.InvalidArgument, "limit must be positive")
	}
	cursor := lastKnownMessageNo
	return messages.History(ctx, workspaceID, channelID, &cursor, limit, store.DirectionAfter)
}
