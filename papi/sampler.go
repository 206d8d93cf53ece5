// sampler.go: per-worker counter lifecycle and overflow-driven sampling
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package papi

import (
	"fmt"
	"sync"
)

// Clock is the monotonic nanosecond-since-start source Sampler needs for
// phase-cycle bookkeeping. Structurally identical to rtslog.Clock so an
// rtslog.EventLog's configured clock satisfies it with no adapter.
type Clock interface {
	Now() uint64
}

// SampleSink receives drained instruction-pointer samples. rtslog.EventLog
// satisfies this directly via its PostInstrPtrSample method.
type SampleSink interface {
	PostInstrPtrSample(capno int32, ips []uint64) error
}

// Task is one worker's counter state: the mutator and GC event sets, their
// accumulator vectors, phase-cycle counters, and the instruction-pointer
// ring an overflow handler on the mutator set feeds.
type Task struct {
	capNo int32

	mutatorSet EventSetID
	gcSet      EventSetID

	mutatorAccum [MaxPapiEvents]int64
	gcAccum      [MaxPapiEvents]int64

	mutatorCycles uint64
	gc0Cycles     uint64
	gc1Cycles     uint64
	phaseStart    uint64

	ring ipRing
}

// Sampler owns the counter library, the configured counter list, and the
// registered tasks. One Sampler serves every worker in a process.
type Sampler struct {
	lib   CounterLibrary
	cfg   SamplerConfig
	sink  SampleSink
	clock Clock

	mu      sync.Mutex
	tasks   map[int32]*Task
	taskMap taskMap
}

// NewSampler constructs a Sampler. lib is the host's hardware-counter
// library (or a FakeCounterLibrary in tests); sink is where drained
// instruction-pointer samples are posted.
func NewSampler(cfg SamplerConfig, lib CounterLibrary, sink SampleSink, clock Clock) *Sampler {
	cfg.applyDefaults()
	return &Sampler{
		lib:   lib,
		cfg:   cfg,
		sink:  sink,
		clock: clock,
		tasks: make(map[int32]*Task),
	}
}

func (s *Sampler) counterList() []CounterSpec {
	switch s.cfg.EventType {
	case EventUserEvents, EventCbEvents:
		return s.cfg.UserEvents
	case EventBranch:
		return []CounterSpec{{Name: "PAPI_BR_INS", Native: false}, {Name: "PAPI_BR_MSP", Native: false}}
	case EventStalls:
		return []CounterSpec{{Name: "PAPI_RES_STL", Native: false}}
	case EventCacheL1:
		return []CounterSpec{{Name: "PAPI_L1_DCM", Native: false}}
	case EventCacheL2:
		return []CounterSpec{{Name: "PAPI_L2_DCM", Native: false}}
	default:
		return []CounterSpec{{Name: "PAPI_TOT_CYC", Native: false}, {Name: "PAPI_TOT_INS", Native: false}}
	}
}

func (s *Sampler) overflowCounter() (CounterSpec, bool) {
	switch s.cfg.SampleType {
	case SampleByCycle:
		return CounterSpec{Name: "PAPI_TOT_CYC", Native: false}, true
	case SampleByL1Miss:
		return CounterSpec{Name: "PAPI_L1_DCM", Native: false}, true
	case SampleByL2Miss:
		return CounterSpec{Name: "PAPI_L2_DCM", Native: false}, true
	default:
		return CounterSpec{}, false
	}
}

// InitTask registers capNo as a worker, creating its mutator and GC event
// sets and, if configured, arming the overflow-based instruction-pointer
// sampler on the mutator set. Fatal per spec §7: a CreateEventSet or
// thread_init failure here is returned rather than reported, since a
// sampler a host can't initialize for a worker cannot safely be used for
// that worker at all.
func (s *Sampler) InitTask(capNo int32) (*Task, error) {
	counters := s.counterList()
	mutatorSet, err := s.lib.CreateEventSet(counters)
	if err != nil {
		return nil, fmt.Errorf("papi: create mutator event set for cap %d: %w", capNo, err)
	}
	gcSet, err := s.lib.CreateEventSet(counters)
	if err != nil {
		return nil, fmt.Errorf("papi: create gc event set for cap %d: %w", capNo, err)
	}

	t := &Task{capNo: capNo, mutatorSet: mutatorSet, gcSet: gcSet}

	if counter, ok := s.overflowCounter(); ok {
		if err := s.lib.RegisterOverflow(mutatorSet, counter, s.cfg.SamplePeriod, s.makeOverflowHandler()); err != nil {
			return nil, fmt.Errorf("papi: register overflow for cap %d: %w", capNo, err)
		}
	}

	s.mu.Lock()
	s.tasks[capNo] = t
	s.taskMap.register(mutatorSet, t)
	s.taskMap.register(gcSet, t)
	s.mu.Unlock()

	return t, nil
}

// makeOverflowHandler returns the signal-context callback RegisterOverflow
// arms: it may only touch the event-set→task lookup array and the
// resolved task's ring, per spec §5's signal-safety rule. A lookup miss
// is a silent no-op — a lost sample beats corrupting shared state.
func (s *Sampler) makeOverflowHandler() OverflowHandler {
	return func(set EventSetID, ip uint64, _ int64) {
		t := s.taskMap.lookup(set)
		if t == nil {
			return
		}
		t.ring.append(ip)
	}
}

// StartMutator begins the mutator-phase counting window for t.
func (s *Sampler) StartMutator(t *Task) error {
	t.phaseStart = s.clock.Now()
	return s.lib.Start(t.mutatorSet)
}

// StopMutator ends the mutator-phase window: it stops and accumulates the
// mutator counters, folds elapsed time into MutatorCycles, and — if the
// task's ring has reached ringMin — drains it into one InstrPtrSample
// event on the sink.
func (s *Sampler) StopMutator(t *Task) error {
	now := s.clock.Now()
	t.mutatorCycles += now - t.phaseStart

	if err := s.lib.Stop(t.mutatorSet, t.mutatorAccum[:]); err != nil {
		return fmt.Errorf("papi: stop mutator set for cap %d: %w", t.capNo, err)
	}
	if err := s.lib.Start(t.mutatorSet); err != nil {
		return fmt.Errorf("papi: restart mutator set for cap %d: %w", t.capNo, err)
	}

	if ips, ready := t.ring.drainIfReady(); ready {
		if err := s.sink.PostInstrPtrSample(t.capNo, ips); err != nil {
			return err
		}
	}
	return nil
}

// StartGc begins the GC-phase counting window for t.
func (s *Sampler) StartGc(t *Task) error {
	t.phaseStart = s.clock.Now()
	return s.lib.Start(t.gcSet)
}

// StopGc0 ends a minor-GC counting window: stop, accumulate, fold elapsed
// time into Gc0Cycles.
func (s *Sampler) StopGc0(t *Task) error {
	return s.stopGc(t, &t.gc0Cycles)
}

// StopGc1 ends a major-GC counting window: stop, accumulate, fold elapsed
// time into Gc1Cycles.
func (s *Sampler) StopGc1(t *Task) error {
	return s.stopGc(t, &t.gc1Cycles)
}

func (s *Sampler) stopGc(t *Task, cycles *uint64) error {
	now := s.clock.Now()
	*cycles += now - t.phaseStart
	if err := s.lib.Stop(t.gcSet, t.gcAccum[:]); err != nil {
		return fmt.Errorf("papi: stop gc set for cap %d: %w", t.capNo, err)
	}
	return s.lib.Start(t.gcSet)
}

// Stats reports a task's accumulated phase-cycle counters, a
// papi_stats_report analogue.
type Stats struct {
	MutatorCycles, Gc0Cycles, Gc1Cycles uint64
	MutatorCounters, GcCounters         [MaxPapiEvents]int64
}

// StatsReport snapshots t's phase-cycle and accumulator state.
func (s *Sampler) StatsReport(t *Task) Stats {
	return Stats{
		MutatorCycles:   t.mutatorCycles,
		Gc0Cycles:       t.gc0Cycles,
		Gc1Cycles:       t.gc1Cycles,
		MutatorCounters: t.mutatorAccum,
		GcCounters:      t.gcAccum,
	}
}
