package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewSetsDefaultRetryAdvice(t *testing.T) {
	cases := []struct {
		kind      Kind
		retryable bool
	}{
		{Timeout, true},
		{Unavailable, true},
		{Contended, true},
		{NotFound, false},
		{Forbidden, false},
		{InvalidArgument, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			err := New(tc.kind, "boom")
			assert.Equal(t, tc.retryable, err.Retryable)
		})
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("driver exploded")
	err := Wrap(Unavailable, "store call failed", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "store call failed")
	assert.Contains(t, err.Error(), "driver exploded")
}

func TestAsUnwrapsNestedError(t *testing.T) {
	inner := New(Forbidden, "not allowed")
	outer := errors.Join(errors.New("wrapper"), inner)

	got, ok := As(outer)
	require := assert.New(t)
	require.True(ok)
	require.Equal(Forbidden, got.Kind)
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("plain error")))
	assert.Equal(t, NotFound, KindOf(New(NotFound, "missing")))
}

func TestIsRetryableDefaultsFalseForPlainErrors(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.True(t, IsRetryable(New(Timeout, "slow")))
}
