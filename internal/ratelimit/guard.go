// Package ratelimit implements connection admission control: a CPU-aware
// circuit breaker plus a per-IP connect-rate limiter, grounded on the
// teacher's ws/internal/shared/limits/resource_guard.go and
// connection_rate_limiter.go. This sits in front of C8 and is not itself a
// named spec component; it is the ambient safety valve every variant of the
// teacher carries.
package ratelimit

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"golang.org/x/time/rate"
)

// Guard enforces a max-connections ceiling and a CPU-percent reject
// threshold, sampled periodically in the background so Admit never blocks
// on a syscall.
type Guard struct {
	maxConnections     int64
	cpuRejectThreshold float64
	currentConns       atomic.Int64
	currentCPU         atomic.Uint64 // float64 bits

	stop chan struct{}
}

func NewGuard(maxConnections int, cpuRejectThreshold float64) *Guard {
	g := &Guard{
		maxConnections:     int64(maxConnections),
		cpuRejectThreshold: cpuRejectThreshold,
		stop:               make(chan struct{}),
	}
	g.currentCPU.Store(0)
	go g.sampleLoop()
	return g
}

func (g *Guard) sampleLoop() {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-g.stop:
			return
		case <-ticker.C:
			percents, err := cpu.Percent(0, false)
			if err != nil || len(percents) == 0 {
				continue
			}
			g.currentCPU.Store(math.Float64bits(percents[0]))
		}
	}
}

func (g *Guard) Close() {
	close(g.stop)
}

// Admit reports whether a new connection should be accepted, and a reason
// string set when it is rejected ("max_connections" or "cpu_overload").
func (g *Guard) Admit() (bool, string) {
	if g.currentConns.Load() >= g.maxConnections {
		return false, "max_connections"
	}
	if math.Float64frombits(g.currentCPU.Load()) >= g.cpuRejectThreshold {
		return false, "cpu_overload"
	}
	return true, ""
}

// Track is called once a connection is actually accepted; the returned
// func releases the slot when the connection closes.
func (g *Guard) Track() func() {
	g.currentConns.Add(1)
	return func() { g.currentConns.Add(-1) }
}

// ConnectionRateLimiter bounds new-connection rate per source IP plus a
// global ceiling, grounded on connection_rate_limiter.go's ipLimiters map
// with TTL-based cleanup.
type ConnectionRateLimiter struct {
	mu       sync.Mutex
	perIP    map[string]*ipEntry
	global   *rate.Limiter
	perIPQPS rate.Limit
	burst    int
	ttl      time.Duration
}

type ipEntry struct {
	limiter    *rate.Limiter
	lastSeenAt time.Time
}

func NewConnectionRateLimiter(perIPQPS float64, burst int, globalQPS float64, globalBurst int) *ConnectionRateLimiter {
	l := &ConnectionRateLimiter{
		perIP:    make(map[string]*ipEntry),
		global:   rate.NewLimiter(rate.Limit(globalQPS), globalBurst),
		perIPQPS: rate.Limit(perIPQPS),
		burst:    burst,
		ttl:      10 * time.Minute,
	}
	go l.cleanupLoop()
	return l
}

// Allow reports whether a new connection attempt from ip should proceed.
func (l *ConnectionRateLimiter) Allow(ip string) bool {
	if !l.global.Allow() {
		return false
	}

	l.mu.Lock()
	entry, ok := l.perIP[ip]
	if !ok {
		entry = &ipEntry{limiter: rate.NewLimiter(l.perIPQPS, l.burst)}
		l.perIP[ip] = entry
	}
	entry.lastSeenAt = time.Now()
	limiter := entry.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

func (l *ConnectionRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.ttl)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-l.ttl)
		l.mu.Lock()
		for ip, entry := range l.perIP {
			if entry.lastSeenAt.Before(cutoff) {
				delete(l.perIP, ip)
			}
		}
		l.mu.Unlock()
	}
}
