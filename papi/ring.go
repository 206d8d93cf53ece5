// ring.go: signal-safe per-task instruction-pointer ring and event-set lookup
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package papi

import (
	"sync"
	"sync/atomic"
)

// ringMax bounds how many instruction pointers a task's ring holds before
// further overflow samples are silently dropped (spec: "silent" severity
// — a lost sample beats corrupting the ring).
const ringMax = 1024

// ringMin is the minimum fill level StopMutator requires before it drains
// the ring into a sample event; below it the ring is left alone so a
// short mutator burst doesn't emit a near-empty sample.
const ringMin = 256

// EventSetTaskMapSize bounds the direct-indexed fast path of taskMap: an
// event-set id at or above this falls back to a slower, still signal-safe,
// sync.Map lookup.
const EventSetTaskMapSize = 128

// ipRing is the "hot" half of a task's sampling state: append is called
// from overflow-handler (signal) context and must not allocate, block, or
// take a lock. It reserves a slot with a CAS on pos exactly the way the
// teacher's lock-free ringBuffer.push reserves a tail slot, then writes the
// value into the preallocated slot and publishes it through that slot's
// own atomic ready flag so a concurrent drain never observes a
// reserved-but-not-yet-written slot as if it held data.
type ipRing struct {
	pos   atomic.Int64
	vals  [ringMax]uint64
	ready [ringMax]atomic.Bool
}

// append reserves the next slot via CAS and publishes ip into it, or
// reports false if the ring is already full. No lock is ever taken: the
// CAS loop is the same "reserve first, write after" discipline the
// teacher's ringBuffer.push uses to let producers and a consumer run
// without a shared mutex.
func (r *ipRing) append(ip uint64) bool {
	for {
		p := r.pos.Load()
		if p >= ringMax {
			return false
		}
		if r.pos.CompareAndSwap(p, p+1) {
			r.vals[p] = ip
			r.ready[p].Store(true)
			return true
		}
	}
}

// drainIfReady returns a copy of the ring's published region and resets
// it, if and only if at least ringMin samples have accumulated. Called
// only from StopMutator. A slot whose reservation has not yet been
// published (its ready flag still false) stops the drain short rather than
// reading torn data, mirroring ringBuffer.pop's nil-pointer guard.
func (r *ipRing) drainIfReady() ([]uint64, bool) {
	n := r.pos.Load()
	if n < ringMin {
		return nil, false
	}
	if n > ringMax {
		n = ringMax
	}
	out := make([]uint64, 0, n)
	for i := int64(0); i < n; i++ {
		if !r.ready[i].Load() {
			break
		}
		out = append(out, r.vals[i])
		r.ready[i].Store(false)
	}
	r.pos.Store(0)
	return out, true
}

// taskMap maps an event-set id to the Task that owns it, the lookup the
// overflow handler performs before it can find a ring to append into.
// EventSetTaskMapSize direct-indexed entries cover the common case of
// small, densely allocated event-set ids; ids allocated beyond that bound
// (e.g. a host recycling ids sparsely) fall back to the map.
type taskMap struct {
	direct   [EventSetTaskMapSize]atomic.Pointer[Task]
	fallback sync.Map // EventSetID -> *Task
}

func (m *taskMap) register(id EventSetID, t *Task) {
	if id >= 0 && int(id) < EventSetTaskMapSize {
		m.direct[id].Store(t)
		return
	}
	m.fallback.Store(id, t)
}

func (m *taskMap) unregister(id EventSetID) {
	if id >= 0 && int(id) < EventSetTaskMapSize {
		m.direct[id].Store(nil)
		return
	}
	m.fallback.Delete(id)
}

// lookup returns the task owning id, or nil if none is registered — the
// silent-no-op case the overflow handler falls into on a miss.
func (m *taskMap) lookup(id EventSetID) *Task {
	if id >= 0 && int(id) < EventSetTaskMapSize {
		return m.direct[id].Load()
	}
	v, ok := m.fallback.Load(id)
	if !ok {
		return nil
	}
	return v.(*Task)
}
