// =============================
// File: internal/core/clock.go
// =============================
package core

import (
	"sync/atomic"
	"time"
)

// Clock supplies block height and wall time to the engine. Block height backs
// the per-address same-block guard; wall time backs router deadlines.
type Clock interface {
	BlockNumber() uint64
	Now() time.Time
}

// SystemClock maps wall time onto synthetic block heights at a fixed block
// interval, anchored at a genesis instant.
type SystemClock struct {
	genesis   time.Time
	blockTime time.Duration
}

func NewSystemClock(blockTime time.Duration) *SystemClock {
	if blockTime <= 0 {
		blockTime = time.Second
	}
	return &SystemClock{genesis: time.Now(), blockTime: blockTime}
}

func (c *SystemClock) BlockNumber() uint64 {
	return uint64(time.Since(c.genesis) / c.blockTime)
}

func (c *SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a test clock advanced explicitly.
type ManualClock struct {
	block uint64
	now   atomic.Int64
}

func NewManualClock() *ManualClock {
	c := &ManualClock{}
	c.now.Store(time.Now().UnixNano())
	return c
}

func (c *ManualClock) BlockNumber() uint64 { return atomic.LoadUint64(&c.block) }

func (c *ManualClock) Now() time.Time { return time.Unix(0, c.now.Load()) }

// NextBlock advances the height by one.
func (c *ManualClock) NextBlock() { atomic.AddUint64(&c.block, 1) }

// SetTime pins wall time, for deadline tests.
func (c *ManualClock) SetTime(t time.Time) { c.now.Store(t.UnixNano()) }
