package room

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type seqEntry int64

func (e seqEntry) SeqNo() int64 { return int64(e) }

func TestReorderReleasesInOrderArrivals(t *testing.T) {
	var released []int64
	r := NewReorder("c1", 0, 8, 250*time.Millisecond, func(e Ordered) {
		released = append(released, e.SeqNo())
	}, nil)

	r.Push(seqEntry(1))
	r.Push(seqEntry(2))
	r.Push(seqEntry(3))

	assert.Equal(t, []int64{1, 2, 3}, released)
}

func TestReorderBuffersOutOfOrderThenDrains(t *testing.T) {
	var released []int64
	r := NewReorder("c1", 0, 8, 250*time.Millisecond, func(e Ordered) {
		released = append(released, e.SeqNo())
	}, nil)

	r.Push(seqEntry(2))
	r.Push(seqEntry(3))
	assert.Empty(t, released, "out-of-order entries should be held")

	r.Push(seqEntry(1))
	assert.Equal(t, []int64{1, 2, 3}, released)
}

func TestReorderIgnoresStaleDuplicates(t *testing.T) {
	var released []int64
	r := NewReorder("c1", 0, 8, 250*time.Millisecond, func(e Ordered) {
		released = append(released, e.SeqNo())
	}, nil)

	r.Push(seqEntry(1))
	r.Push(seqEntry(1))

	assert.Equal(t, []int64{1}, released)
}

func TestReorderSweepForceAdvancesPastExpiredGap(t *testing.T) {
	var released []int64
	var gapped []int64
	r := NewReorder("c1", 0, 8, 10*time.Millisecond, func(e Ordered) {
		released = append(released, e.SeqNo())
	}, func(channelID string, from, to int64) {
		gapped = append(gapped, from, to)
	})

	r.Push(seqEntry(5)) // seq 1-4 never arrive
	time.Sleep(20 * time.Millisecond)
	r.Sweep()

	assert.Equal(t, []int64{5}, released)
	assert.Equal(t, []int64{1, 5}, gapped)
}
