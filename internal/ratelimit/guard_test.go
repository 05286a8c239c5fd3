package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGuardRejectsAtMaxConnections(t *testing.T) {
	g := NewGuard(2, 100)
	defer g.Close()

	release1 := g.Track()
	defer release1()
	release2 := g.Track()
	defer release2()

	admitted, reason := g.Admit()
	assert.False(t, admitted)
	assert.Equal(t, "max_connections", reason)
}

func TestGuardAdmitsBelowLimit(t *testing.T) {
	g := NewGuard(5, 100)
	defer g.Close()

	release := g.Track()
	defer release()

	admitted, _ := g.Admit()
	assert.True(t, admitted)
}

func TestGuardTrackReleaseFreesSlot(t *testing.T) {
	g := NewGuard(1, 100)
	defer g.Close()

	release := g.Track()
	admitted, _ := g.Admit()
	assert.False(t, admitted)

	release()
	admitted, _ = g.Admit()
	assert.True(t, admitted)
}

func TestConnectionRateLimiterBlocksBurstOverflow(t *testing.T) {
	l := NewConnectionRateLimiter(1, 2, 1000, 1000)

	allowed := 0
	for i := 0; i < 5; i++ {
		if l.Allow("1.2.3.4") {
			allowed++
		}
	}
	assert.LessOrEqual(t, allowed, 2)
}

func TestConnectionRateLimiterTracksIndependentIPs(t *testing.T) {
	l := NewConnectionRateLimiter(1, 1, 1000, 1000)

	assert.True(t, l.Allow("1.1.1.1"))
	assert.True(t, l.Allow("2.2.2.2"))
}
