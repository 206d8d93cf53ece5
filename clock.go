// clock.go: monotonic and wall-clock sources
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rtslog

import (
	"time"

	timecache "github.com/agilira/go-timecache"
)

// Clock is the monotonic nanosecond-elapsed-since-start source every event
// timestamp is drawn from. The platform time source is an explicitly
// excluded external collaborator (spec §1); EventLog only ever consumes it
// through this interface.
type Clock interface {
	// Now returns nanoseconds elapsed since the clock was created.
	Now() uint64
}

// WallClock is the paired wall-clock source consulted by
// PostWallClockTime. Kept separate from Clock because the two must be
// sampled back-to-back, not derived from one another.
type WallClock interface {
	// Now returns the current wall-clock time as (seconds, nanoseconds)
	// since the Unix epoch.
	Now() (sec int64, nsec uint32)
}

// monotonicClock is the default Clock, anchored at construction time. It
// relies on the monotonic reading carried inside time.Time rather than
// reimplementing one, which is the same trick the wall-clock cache below
// uses at coarser resolution.
type monotonicClock struct {
	start time.Time
}

// NewMonotonicClock returns a Clock whose Now() reports nanoseconds elapsed
// since this call.
func NewMonotonicClock() Clock {
	return &monotonicClock{start: time.Now()}
}

func (c *monotonicClock) Now() uint64 {
	d := time.Since(c.start)
	if d < 0 {
		return 0
	}
	return uint64(d.Nanoseconds())
}

// cachedWallClock backs WallClock with go-timecache, the same
// low-overhead cached-time source the teacher uses for its own
// timestamping. A microsecond resolution is requested so the wall/mono
// pair PostWallClockTime captures stays within the few-microsecond bound
// the round-trip scenario expects, while still avoiding a syscall on every
// call the way an uncached time.Now() would.
type cachedWallClock struct {
	tc *timecache.TimeCache
}

// NewCachedWallClock returns a WallClock backed by a go-timecache instance
// refreshed at microsecond resolution. Callers own the returned clock and
// should call Stop when the hosting EventLog shuts down.
func NewCachedWallClock() *cachedWallClockHandle {
	return &cachedWallClockHandle{cachedWallClock{tc: timecache.NewWithResolution(time.Microsecond)}}
}

func (c cachedWallClock) Now() (int64, uint32) {
	t := c.tc.CachedTime()
	return t.Unix(), uint32(t.Nanosecond()) // #nosec G115 -- Nanosecond() is always in [0, 1e9)
}

// cachedWallClockHandle exposes Stop in addition to the WallClock
// interface so EventLog.End/Close can release the background refresher.
type cachedWallClockHandle struct {
	cachedWallClock
}

// Stop releases the underlying time cache's background refresher.
func (h *cachedWallClockHandle) Stop() {
	if h.tc != nil {
		h.tc.Stop()
	}
}
