package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/echo-chat/realtime-core/internal/apperr"
	"github.com/echo-chat/realtime-core/internal/auth"
	"github.com/echo-chat/realtime-core/internal/domain"
	"github.com/echo-chat/realtime-core/internal/membership"
	"github.com/echo-chat/realtime-core/internal/router"
	"github.com/echo-chat/realtime-core/internal/store"
)

// Publisher is the subset of eventbus.Bus the HTTP layer needs: publishing
// the C9-derived events produced by a committed mutation.
type Publisher interface {
	Publish(subject string, payload any) error
}

// Handlers wires the HTTP surface of spec §6.1 to the stores and oracle
// behind it. Deps are injected rather than constructed here; only Bus is an
// interface, so it is the one dependency a test can replace with a fake.
type Handlers struct {
	Verifier    *auth.Verifier
	Membership  *membership.Oracle
	Messages    *store.MessageStore
	ReadReceipt *store.ReadPositionStore
	Bus         Publisher
	Logger      zerolog.Logger

	HistoryMaxLimit int
}

// Mux builds the net/http.ServeMux carrying every core-owned route. No
// third-party router is wired here: the pack's HTTP-serving repos reach for
// gorilla/websocket and gorilla/mux interchangeably only when a project
// already depended on gorilla for transport; ours only needs gorilla for the
// duplex socket (C8), so the plain method+pattern ServeMux (Go 1.22+)
// covers this surface without adding an unused dependency.
func (h *Handlers) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /workspaces/{workspaceId}/channels/{channelId}/messages", h.withAuth(h.postMessage))
	mux.HandleFunc("GET /workspaces/{workspaceId}/channels/{channelId}/messages", h.withAuth(h.listMessages))
	mux.HandleFunc("GET /workspaces/{workspaceId}/channels/{channelId}/messages/{messageId}", h.withAuth(h.getMessage))
	mux.HandleFunc("POST /workspaces/{workspaceId}/channels/{channelId}/read-receipt", h.withAuth(h.postReadReceipt))
	mux.HandleFunc("GET /workspaces/{workspaceId}/channels/{channelId}/read-receipt", h.withAuth(h.getReadReceipt))
	mux.HandleFunc("GET /workspaces/{workspaceId}/unread-counts", h.withAuth(h.unreadCounts))
	return mux
}

// withAuth verifies the bearer credential (C1) before the wrapped handler runs.
func (h *Handlers) withAuth(next func(w http.ResponseWriter, r *http.Request, userID string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractToken(r)
		if err != nil {
			writeError(w, err)
			return
		}
		claims, err := h.Verifier.Verify(token)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, claims.UserID)
	}
}

// requireChannelMember returns Forbidden rendered as NotFound (spec §6.1:
// "404 when the resource exists but the caller cannot see it, same shape as
// non-existent, to avoid membership probing").
func (h *Handlers) requireChannelMember(ctx context.Context, w http.ResponseWriter, channelID, userID string) bool {
	result, err := h.Membership.IsChannelMember(ctx, channelID, userID)
	if err != nil {
		writeError(w, err)
		return false
	}
	if !result.IsMember {
		writeError(w, apperr.New(apperr.NotFound, "channel not found"))
		return false
	}
	return true
}

type postMessageBody struct {
	Content             string  `json:"content"`
	ClientCorrelationID string  `json:"clientMessageCorrelationId"`
	ParentMessageID     *string `json:"parentMessageId,omitempty"`
}

func (h *Handlers) postMessage(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	workspaceID := r.PathValue("workspaceId")
	channelID := r.PathValue("channelId")

	if !h.requireChannelMember(ctx, w, channelID, userID) {
		return
	}

	var body postMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "malformed request body"))
		return
	}

	msg, err := h.Messages.Append(ctx, channelID, workspaceID, userID, body.Content, domain.ContentText, body.ParentMessageID, body.ClientCorrelationID)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, pub := range router.MessageCreated(msg, &domain.User{ID: userID}) {
		if err := h.Bus.Publish(pub.Topic, envelopeFor(pub)); err != nil {
			h.Logger.Warn().Err(err).Str("topic", pub.Topic).Msg("failed to publish message:created")
		}
	}

	writeSuccess(w, http.StatusCreated, msg)
}

func (h *Handlers) listMessages(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	workspaceID := r.PathValue("workspaceId")
	channelID := r.PathValue("channelId")

	if !h.requireChannelMember(ctx, w, channelID, userID) {
		return
	}

	q := r.URL.Query()
	limit := h.HistoryMaxLimit
	if l := q.Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed <= 0 {
			writeError(w, apperr.New(apperr.InvalidArgument, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	if limit > h.HistoryMaxLimit {
		limit = h.HistoryMaxLimit
	}

	var cursor *int64
	if c := q.Get("cursor"); c != "" {
		parsed, err := strconv.ParseInt(c, 10, 64)
		if err != nil {
			writeError(w, apperr.New(apperr.InvalidArgument, "cursor must be an integer"))
			return
		}
		cursor = &parsed
	}

	direction := store.DirectionBefore
	if d := q.Get("direction"); d != "" {
		direction = store.HistoryDirection(d)
	}

	page, err := h.Messages.History(ctx, workspaceID, channelID, cursor, limit, direction)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]any{
		"messages":   page.Messages,
		"prevCursor": page.PrevCursor,
		"nextCursor": page.NextCursor,
	})
}

func (h *Handlers) getMessage(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	workspaceID := r.PathValue("workspaceId")
	channelID := r.PathValue("channelId")
	messageID := r.PathValue("messageId")

	if !h.requireChannelMember(ctx, w, channelID, userID) {
		return
	}

	msg, err := h.Messages.GetByID(ctx, workspaceID, channelID, messageID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, msg)
}

type postReadReceiptBody struct {
	MessageNo int64   `json:"messageNo"`
	MessageID *string `json:"messageId,omitempty"`
}

func (h *Handlers) postReadReceipt(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	workspaceID := r.PathValue("workspaceId")
	channelID := r.PathValue("channelId")

	if !h.requireChannelMember(ctx, w, channelID, userID) {
		return
	}

	var body postReadReceiptBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, apperr.New(apperr.InvalidArgument, "malformed request body"))
		return
	}

	var messageID string
	if body.MessageID != nil {
		messageID = *body.MessageID
	}

	receipt, err := h.ReadReceipt.Advance(ctx, workspaceID, channelID, userID, body.MessageNo, messageID)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, pub := range router.ReadReceiptUpdated(userID, receipt, receipt.LastReadAt) {
		if err := h.Bus.Publish(pub.Topic, envelopeFor(pub)); err != nil {
			h.Logger.Warn().Err(err).Str("topic", pub.Topic).Msg("failed to publish read-receipt:updated")
		}
	}

	writeSuccess(w, http.StatusOK, receipt)
}

func (h *Handlers) getReadReceipt(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	channelID := r.PathValue("channelId")

	if !h.requireChannelMember(ctx, w, channelID, userID) {
		return
	}

	receipt, err := h.ReadReceipt.Get(ctx, channelID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeSuccess(w, http.StatusOK, receipt)
}

func (h *Handlers) unreadCounts(w http.ResponseWriter, r *http.Request, userID string) {
	ctx := r.Context()
	workspaceID := r.PathValue("workspaceId")

	result, err := h.Membership.IsWorkspaceMember(ctx, workspaceID, userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !result.IsMember {
		writeError(w, apperr.New(apperr.NotFound, "workspace not found"))
		return
	}

	counts, err := h.ReadReceipt.UnreadCounts(ctx, workspaceID, userID)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := map[string]bool{}
	if raw := r.URL.Query().Get("channelIds"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			filter[id] = true
		}
	}

	var total int64
	channels := make([]map[string]any, 0, len(counts))
	for channelID, unread := range counts {
		if len(filter) > 0 && !filter[channelID] {
			continue
		}
		total += unread
		channels = append(channels, map[string]any{"channelId": channelID, "unreadCount": unread})
	}

	writeSuccess(w, http.StatusOK, map[string]any{"channels": channels, "totalUnread": total})
}

func envelopeFor(pub router.Publication) map[string]any {
	return map[string]any{"name": pub.Event, "payload": pub.Payload}
}
