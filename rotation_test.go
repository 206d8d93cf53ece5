// rotation_test.go: size-triggered and manual rotation
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rtslog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agilira/rtslog/internal/wire"
)

func TestManualRotateProducesNewSelfDescribingFile(t *testing.T) {
	cfg := newTestConfig(t, 4096)
	el, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer el.Close()

	if err := el.PostSchedEvent(0, wire.TagCreateThread, 1); err != nil {
		t.Fatalf("PostSchedEvent: %v", err)
	}

	seqBefore := el.rotationSeq.Load()
	if err := el.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if el.rotationSeq.Load() != seqBefore+1 {
		t.Fatalf("rotationSeq = %d, want %d", el.rotationSeq.Load(), seqBefore+1)
	}

	matches, err := filepath.Glob(cfg.ProgName + ".eventlog.*")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one rotated-away backup file, found %d", len(matches))
	}

	if _, err := os.Stat(el.path); err != nil {
		t.Fatalf("expected a fresh active file at %s: %v", el.path, err)
	}

	// The buffer must still accept posts after rotation: header/blocks
	// were replayed correctly onto the new file.
	if err := el.PostSchedEvent(0, wire.TagCreateThread, 2); err != nil {
		t.Fatalf("PostSchedEvent after rotation: %v", err)
	}
}

func TestSizeTriggeredRotation(t *testing.T) {
	cfg := newTestConfig(t, 4096)
	cfg.MaxSizeStr = "2KB"
	el, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer el.Close()

	seqBefore := el.rotationSeq.Load()
	for i := 0; i < 400 && el.rotationSeq.Load() == seqBefore; i++ {
		if err := el.PostSchedEvent(0, wire.TagCreateThread, uint32(i)); err != nil {
			t.Fatalf("PostSchedEvent #%d: %v", i, err)
		}
		if err := el.FlushBuf(0); err != nil {
			t.Fatalf("FlushBuf #%d: %v", i, err)
		}
	}

	if el.rotationSeq.Load() == seqBefore {
		t.Fatalf("expected size-triggered rotation after enough flushed bytes")
	}
}

func TestRotateWithBackgroundCompressionAndChecksum(t *testing.T) {
	cfg := newTestConfig(t, 4096)
	cfg.Compress = true
	cfg.Checksum = true
	el, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatalf("NewWithConfig: %v", err)
	}
	defer el.Close()

	if err := el.Rotate(); err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	el.WaitForBackgroundTasks()

	matches, _ := filepath.Glob(cfg.ProgName + ".eventlog.*.gz")
	if len(matches) != 1 {
		t.Fatalf("expected one compressed backup, found %d", len(matches))
	}
	sums, _ := filepath.Glob(cfg.ProgName + ".eventlog.*.sha256")
	if len(sums) != 1 {
		t.Fatalf("expected one checksum sidecar, found %d", len(sums))
	}
}
