// Package membership implements C2, the Membership Oracle: a read-through
// cache in front of the durable membership store, grounded on
// streamspace-dev-streamspace's api/internal/cache/cache.go Redis wrapper.
package membership

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/echo-chat/realtime-core/internal/apperr"
	"github.com/echo-chat/realtime-core/internal/domain"
)

// Store is the durable backing interface the Oracle reads through, satisfied
// by internal/store.MembershipStore.
type Store interface {
	WorkspaceMembership(ctx context.Context, workspaceID, userID string) (domain.MembershipResult, error)
	ChannelMembership(ctx context.Context, channelID, userID string) (domain.MembershipResult, error)
	ChannelsOfUserInWorkspace(ctx context.Context, workspaceID, userID string) ([]string, error)
}

// Oracle answers "is user U a member of workspace/channel X" with a bounded
// staleness window (spec §4.2: MembershipFreshness). Only positive answers
// are cached; a NotMember answer, whether read from the store or produced by
// a store failure, is never written to the cache, so a just-added member is
// not told "not a member" by a stale cache entry.
type Oracle struct {
	store  Store
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

func NewOracle(store Store, redisClient *redis.Client, ttl time.Duration, logger zerolog.Logger) *Oracle {
	return &Oracle{store: store, redis: redisClient, ttl: ttl, logger: logger}
}

func workspaceKey(workspaceID, userID string) string {
	return fmt.Sprintf("echo:membership:ws:%s:%s", workspaceID, userID)
}

func channelKey(channelID, userID string) string {
	return fmt.Sprintf("echo:membership:ch:%s:%s", channelID, userID)
}

// IsWorkspaceMember answers the workspace membership question, checking the
// cache first and falling through to the store on miss.
func (o *Oracle) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (domain.MembershipResult, error) {
	key := workspaceKey(workspaceID, userID)
	if cached, ok := o.readCache(ctx, key); ok {
		return cached, nil
	}

	result, err := o.store.WorkspaceMembership(ctx, workspaceID, userID)
	if err != nil {
		// Store is down: answer NotMember without caching it, so a later
		// healthy read isn't shadowed by a failure-derived negative.
		o.logger.Warn().Err(err).Str("workspaceId", workspaceID).Str("userId", userID).Msg("membership store unavailable, answering not-member")
		return domain.NotMember, nil
	}

	o.writeCache(ctx, key, result)
	return result, nil
}

// IsChannelMember answers the channel membership question the same way.
func (o *Oracle) IsChannelMember(ctx context.Context, channelID, userID string) (domain.MembershipResult, error) {
	key := channelKey(channelID, userID)
	if cached, ok := o.readCache(ctx, key); ok {
		return cached, nil
	}

	result, err := o.store.ChannelMembership(ctx, channelID, userID)
	if err != nil {
		o.logger.Warn().Err(err).Str("channelId", channelID).Str("userId", userID).Msg("membership store unavailable, answering not-member")
		return domain.NotMember, nil
	}

	o.writeCache(ctx, key, result)
	return result, nil
}

// ChannelsOfUserInWorkspace bypasses the single-entity cache and reads the
// store directly on every call.
func (o *Oracle) ChannelsOfUserInWorkspace(ctx context.Context, workspaceID, userID string) ([]string, error) {
	ids, err := o.store.ChannelsOfUserInWorkspace(ctx, workspaceID, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unavailable, "failed to list channels of user", err)
	}
	return ids, nil
}

// Invalidate drops the cached answer for (workspaceID/channelID, userID)
// immediately. Nothing in this module calls it when a membership-changed
// event is published or delivered; without an explicit call, a cached entry
// lives until its TTL expires.
func (o *Oracle) Invalidate(ctx context.Context, workspaceID, channelID, userID string) {
	if workspaceID != "" {
		o.redis.Del(ctx, workspaceKey(workspaceID, userID))
	}
	if channelID != "" {
		o.redis.Del(ctx, channelKey(channelID, userID))
	}
}

func (o *Oracle) readCache(ctx context.Context, key string) (domain.MembershipResult, bool) {
	raw, err := o.redis.Get(ctx, key).Result()
	if err != nil {
		return domain.MembershipResult{}, false
	}
	var result domain.MembershipResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		o.logger.Warn().Err(err).Str("key", key).Msg("failed to decode cached membership entry")
		return domain.MembershipResult{}, false
	}
	return result, true
}

func (o *Oracle) writeCache(ctx context.Context, key string, result domain.MembershipResult) {
	if !result.IsMember {
		return
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return
	}
	if err := o.redis.Set(ctx, key, raw, o.ttl).Err(); err != nil {
		o.logger.Warn().Err(err).Str("key", key).Msg("failed to populate membership cache")
	}
}
