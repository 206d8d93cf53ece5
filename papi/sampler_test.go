// sampler_test.go: task lifecycle, overflow-driven sampling, GC phases
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package papi

import "testing"

type fakeClock struct{ t uint64 }

func (c *fakeClock) Now() uint64 { c.t++; return c.t }

type fakeSink struct {
	capno int32
	ips   []uint64
	calls int
}

func (s *fakeSink) PostInstrPtrSample(capno int32, ips []uint64) error {
	s.capno = capno
	s.ips = ips
	s.calls++
	return nil
}

func TestSamplerDrainOnStopMutator(t *testing.T) {
	lib := NewFakeCounterLibrary()
	sink := &fakeSink{}
	clock := &fakeClock{}
	s := NewSampler(SamplerConfig{SampleType: SampleByCycle, SamplePeriod: 1000}, lib, sink, clock)

	task, err := s.InitTask(3)
	if err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	if err := s.StartMutator(task); err != nil {
		t.Fatalf("StartMutator: %v", err)
	}

	for i := 0; i < ringMin; i++ {
		if err := lib.Fire(task.mutatorSet, uint64(0x1000+i), 1); err != nil {
			t.Fatalf("Fire #%d: %v", i, err)
		}
	}

	if err := s.StopMutator(task); err != nil {
		t.Fatalf("StopMutator: %v", err)
	}

	if sink.calls != 1 {
		t.Fatalf("sink.calls = %d, want 1", sink.calls)
	}
	if sink.capno != 3 {
		t.Fatalf("sink.capno = %d, want 3", sink.capno)
	}
	if len(sink.ips) != ringMin {
		t.Fatalf("len(sink.ips) = %d, want %d", len(sink.ips), ringMin)
	}
	if task.mutatorCycles == 0 {
		t.Fatalf("expected mutatorCycles to advance")
	}
}

func TestSamplerDoesNotDrainBelowMin(t *testing.T) {
	lib := NewFakeCounterLibrary()
	sink := &fakeSink{}
	s := NewSampler(SamplerConfig{SampleType: SampleByCycle}, lib, sink, &fakeClock{})

	task, err := s.InitTask(0)
	if err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	if err := s.StartMutator(task); err != nil {
		t.Fatalf("StartMutator: %v", err)
	}
	for i := 0; i < ringMin-1; i++ {
		lib.Fire(task.mutatorSet, uint64(i), 1)
	}
	if err := s.StopMutator(task); err != nil {
		t.Fatalf("StopMutator: %v", err)
	}
	if sink.calls != 0 {
		t.Fatalf("sink.calls = %d, want 0 below ringMin", sink.calls)
	}
}

func TestSamplerGcPhasesAccumulateCycles(t *testing.T) {
	lib := NewFakeCounterLibrary()
	sink := &fakeSink{}
	s := NewSampler(SamplerConfig{}, lib, sink, &fakeClock{})

	task, err := s.InitTask(0)
	if err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	if err := s.StartGc(task); err != nil {
		t.Fatalf("StartGc: %v", err)
	}
	if err := s.StopGc0(task); err != nil {
		t.Fatalf("StopGc0: %v", err)
	}
	if task.gc0Cycles == 0 {
		t.Fatalf("expected gc0Cycles to advance")
	}

	if err := s.StartGc(task); err != nil {
		t.Fatalf("StartGc: %v", err)
	}
	if err := s.StopGc1(task); err != nil {
		t.Fatalf("StopGc1: %v", err)
	}
	if task.gc1Cycles == 0 {
		t.Fatalf("expected gc1Cycles to advance")
	}
}

func TestOverflowHandlerMissIsSilentNoop(t *testing.T) {
	lib := NewFakeCounterLibrary()
	sink := &fakeSink{}
	s := NewSampler(SamplerConfig{SampleType: SampleByCycle}, lib, sink, &fakeClock{})

	if _, err := s.InitTask(0); err != nil {
		t.Fatalf("InitTask: %v", err)
	}

	// Firing an overflow for an event set that was never registered must
	// not panic; the handler silently drops it.
	handler := s.makeOverflowHandler()
	handler(EventSetID(999999), 0xdead, 1)
}

func TestStatsReportReflectsAccumulators(t *testing.T) {
	lib := NewFakeCounterLibrary()
	sink := &fakeSink{}
	s := NewSampler(SamplerConfig{}, lib, sink, &fakeClock{})

	task, err := s.InitTask(0)
	if err != nil {
		t.Fatalf("InitTask: %v", err)
	}
	s.StartMutator(task)
	s.StopMutator(task)

	stats := s.StatsReport(task)
	if stats.MutatorCycles == 0 {
		t.Fatalf("expected MutatorCycles > 0")
	}
}
