// sampler.go: wiring for the papi hardware-counter sampler
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rtslog

import "github.com/agilira/rtslog/papi"

// NewSampler builds a papi.Sampler wired to post drained instruction-
// pointer samples onto this EventLog and to use this EventLog's
// configured Clock for phase-cycle timing. lib is the host's hardware-
// counter library; rtslog ships none (see papi.CounterLibrary).
func (el *EventLog) NewSampler(cfg papi.SamplerConfig, lib papi.CounterLibrary) *papi.Sampler {
	return papi.NewSampler(cfg, lib, el, el.cfg.Clock)
}
