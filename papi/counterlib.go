// counterlib.go: the excluded hardware-counter library boundary
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package papi

import "fmt"

// EventSetID identifies one programmed set of hardware counters, as
// handed back by CreateEventSet.
type EventSetID int32

// OverflowHandler is invoked when a sampling counter crosses its period.
// Implementations must be signal-safe: no allocation, no locks, touching
// only the per-task ring reachable from set via the task map.
type OverflowHandler func(set EventSetID, ip uint64, overflowCount int64)

// CounterLibrary is the hardware-performance-counter library Sampler
// depends on but does not implement: an excluded external collaborator
// (the platform PAPI-equivalent), provided by the host.
type CounterLibrary interface {
	// CreateEventSet programs counters into a new event set for the
	// calling worker and returns its id.
	CreateEventSet(counters []CounterSpec) (EventSetID, error)
	// Start begins counting on set.
	Start(set EventSetID) error
	// Stop halts counting on set and writes the accumulated counter
	// values into values, which must have len(counters) capacity.
	Stop(set EventSetID, values []int64) error
	// Accumulate reads the current counter values into values without
	// stopping the set.
	Accumulate(set EventSetID, values []int64) error
	// RegisterOverflow arms an overflow handler on set for counter,
	// firing roughly every period counter events.
	RegisterOverflow(set EventSetID, counter CounterSpec, period uint64, handler OverflowHandler) error
}

// FakeCounterLibrary is a CounterLibrary test double, following the same
// interface-plus-default shape as rotation.go's FileSystem/DefaultFileSystem
// pair: a real implementation talks to a platform library this module
// deliberately excludes, so tests substitute this instead.
type FakeCounterLibrary struct {
	nextSet   EventSetID
	Started   []EventSetID
	Stopped   []EventSetID
	Overflows map[EventSetID]struct {
		Counter CounterSpec
		Period  uint64
		Handler OverflowHandler
	}
}

// NewFakeCounterLibrary returns an empty FakeCounterLibrary ready to use.
func NewFakeCounterLibrary() *FakeCounterLibrary {
	return &FakeCounterLibrary{
		Overflows: make(map[EventSetID]struct {
			Counter CounterSpec
			Period  uint64
			Handler OverflowHandler
		}),
	}
}

func (f *FakeCounterLibrary) CreateEventSet(_ []CounterSpec) (EventSetID, error) {
	f.nextSet++
	return f.nextSet, nil
}

func (f *FakeCounterLibrary) Start(set EventSetID) error {
	f.Started = append(f.Started, set)
	return nil
}

func (f *FakeCounterLibrary) Stop(set EventSetID, values []int64) error {
	f.Stopped = append(f.Stopped, set)
	for i := range values {
		values[i] = 0
	}
	return nil
}

func (f *FakeCounterLibrary) Accumulate(_ EventSetID, values []int64) error {
	for i := range values {
		values[i] = 0
	}
	return nil
}

func (f *FakeCounterLibrary) RegisterOverflow(set EventSetID, counter CounterSpec, period uint64, handler OverflowHandler) error {
	f.Overflows[set] = struct {
		Counter CounterSpec
		Period  uint64
		Handler OverflowHandler
	}{counter, period, handler}
	return nil
}

// Fire invokes the overflow handler registered for set, as a test would
// to simulate the counter library delivering an overflow. Returns an
// error if no handler was registered.
func (f *FakeCounterLibrary) Fire(set EventSetID, ip uint64, overflowCount int64) error {
	entry, ok := f.Overflows[set]
	if !ok {
		return fmt.Errorf("papi: no overflow handler registered for event set %d", set)
	}
	entry.Handler(set, ip, overflowCount)
	return nil
}
