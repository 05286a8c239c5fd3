package membership

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/echo-chat/realtime-core/internal/domain"
)

type fakeStore struct {
	workspaceResult domain.MembershipResult
	workspaceErr    error
	workspaceCalls  int

	channelResult domain.MembershipResult
	channelErr    error
	channelCalls  int
}

func (f *fakeStore) WorkspaceMembership(ctx context.Context, workspaceID, userID string) (domain.MembershipResult, error) {
	f.workspaceCalls++
	return f.workspaceResult, f.workspaceErr
}

func (f *fakeStore) ChannelMembership(ctx context.Context, channelID, userID string) (domain.MembershipResult, error) {
	f.channelCalls++
	return f.channelResult, f.channelErr
}

func (f *fakeStore) ChannelsOfUserInWorkspace(ctx context.Context, workspaceID, userID string) ([]string, error) {
	return nil, nil
}

func newTestOracle(t *testing.T, store Store) (*Oracle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewOracle(store, client, time.Minute, zerolog.Nop()), mr
}

func TestIsWorkspaceMemberCachesPositiveResult(t *testing.T) {
	store := &fakeStore{workspaceResult: domain.MembershipResult{IsMember: true, Role: domain.RoleMember}}
	oracle, _ := newTestOracle(t, store)

	result, err := oracle.IsWorkspaceMember(context.Background(), "w1", "u1")
	require.NoError(t, err)
	assert.True(t, result.IsMember)

	_, err = oracle.IsWorkspaceMember(context.Background(), "w1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, store.workspaceCalls, "second call should be served from cache")
}

func TestIsWorkspaceMemberAnswersNotMemberOnStoreFailureWithoutCaching(t *testing.T) {
	store := &fakeStore{workspaceErr: errors.New("store down")}
	oracle, _ := newTestOracle(t, store)

	result, err := oracle.IsWorkspaceMember(context.Background(), "w1", "u1")
	require.NoError(t, err, "store failure must not leak to the caller")
	assert.False(t, result.IsMember)

	store.workspaceErr = nil
	store.workspaceResult = domain.MembershipResult{IsMember: true, Role: domain.RoleOwner}
	result, err = oracle.IsWorkspaceMember(context.Background(), "w1", "u1")
	require.NoError(t, err)
	assert.True(t, result.IsMember, "a failure answer must never be cached as a negative")
}

func TestIsChannelMemberCachesAcrossCalls(t *testing.T) {
	store := &fakeStore{channelResult: domain.MembershipResult{IsMember: true, Role: domain.RoleMember}}
	oracle, _ := newTestOracle(t, store)

	_, err := oracle.IsChannelMember(context.Background(), "c1", "u1")
	require.NoError(t, err)
	_, err = oracle.IsChannelMember(context.Background(), "c1", "u1")
	require.NoError(t, err)

	assert.Equal(t, 1, store.channelCalls)
}

func TestInvalidateDropsCachedEntries(t *testing.T) {
	store := &fakeStore{workspaceResult: domain.MembershipResult{IsMember: true, Role: domain.RoleMember}}
	oracle, _ := newTestOracle(t, store)

	_, err := oracle.IsWorkspaceMember(context.Background(), "w1", "u1")
	require.NoError(t, err)

	oracle.Invalidate(context.Background(), "w1", "", "u1")

	_, err = oracle.IsWorkspaceMember(context.Background(), "w1", "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, store.workspaceCalls, "invalidated entry must be re-fetched")
}
