// config.go: counter-set selection and sampler configuration
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package papi samples hardware performance counters per worker and feeds
// instruction-pointer overflow samples back into an event log, without
// perturbing the producer-side post path it feeds. It has no dependency
// on the rtslog root package; a host wires the two together by passing an
// rtslog.EventLog (which already implements SampleSink) into NewSampler.
package papi

// MaxPapiEvents bounds how many concrete hardware counters one event set
// may carry, keeping the accumulator arrays allocation-free.
const MaxPapiEvents = 10

// EventType selects which family of counters StartMutator/StartGc
// programs into the mutator and GC event sets.
type EventType int

const (
	EventBranch EventType = iota
	EventStalls
	EventCacheL1
	EventCacheL2
	EventCbEvents
	EventUserEvents
	EventDefault
)

// SampleType selects the counter an overflow-based instruction-pointer
// sampler triggers on. SampleNone disables sampling entirely.
type SampleType int

const (
	SampleNone SampleType = iota
	SampleByCycle
	SampleByL1Miss
	SampleByL2Miss
)

// CounterSpec names one hardware counter, resolved by the host's
// CounterLibrary implementation: Native counters are hex/raw codes, non-
// native are preset names the library maps to a code itself.
type CounterSpec struct {
	Name   string
	Code   uint32
	Native bool
}

// SamplerConfig configures one Sampler. EventType selects a built-in
// counter list; UserEvents overrides it when EventType is EventUserEvents
// or EventCbEvents. SampleType/SamplePeriod configure the overflow-based
// instruction-pointer sampler; SampleType == SampleNone disables it.
type SamplerConfig struct {
	EventType    EventType
	UserEvents   []CounterSpec
	SampleType   SampleType
	SamplePeriod uint64
}

func (c *SamplerConfig) applyDefaults() {
	if c.SamplePeriod == 0 {
		c.SamplePeriod = 1_000_000
	}
}
