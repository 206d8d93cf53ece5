// buffer_test.go: EventsBuf block-framing and oversize-drop behavior
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rtslog

import (
	"testing"

	"github.com/agilira/rtslog/internal/wire"
)

func TestEventsBufOpenCloseBlockPatchesFields(t *testing.T) {
	b := newEventsBuf(0, 256)
	b.openBlock(100)
	if b.marker != 0 {
		t.Fatalf("marker = %d, want 0", b.marker)
	}

	b.enc.PutUint32(42) // pretend payload bytes

	b.closeBlock(200)
	if b.marker != -1 {
		t.Fatalf("marker after close = %d, want -1", b.marker)
	}

	dec := wire.NewDecoder(b.bytes())
	tag := dec.Uint16()
	if tag != wire.TagBlockMarker {
		t.Fatalf("tag = %d, want TagBlockMarker", tag)
	}
	startTS := dec.Uint64()
	if startTS != 100 {
		t.Fatalf("start_ts = %d, want 100", startTS)
	}
	size := dec.Uint32()
	if int(size) != b.enc.Pos() {
		t.Fatalf("block_size = %d, want %d", size, b.enc.Pos())
	}
	endTS := dec.Uint64()
	if endTS != 200 {
		t.Fatalf("end_ts = %d, want 200", endTS)
	}
}

func TestEventsBufEnsureRoomFlushesWhenFull(t *testing.T) {
	b := newEventsBuf(0, 64)
	b.openBlock(0)

	flushCalls := 0
	flush := func() error {
		flushCalls++
		b.reset()
		b.openBlock(1)
		return nil
	}

	// Fill the buffer close to capacity with CREATE_THREAD events (14 bytes
	// each: 2 tag + 8 ts + 4 payload).
	for i := 0; i < 3; i++ {
		ok, err := b.ensureRoom(wire.TagCreateThread, 0, flush)
		if err != nil || !ok {
			t.Fatalf("ensureRoom #%d: ok=%v err=%v", i, ok, err)
		}
		b.enc.PutUint16(wire.TagCreateThread)
		b.enc.PutUint64(0)
		b.enc.PutUint32(0)
	}

	if flushCalls == 0 {
		t.Fatalf("expected ensureRoom to trigger at least one flush in a 64-byte buffer")
	}
}

func TestEventsBufOversizeDropsSilently(t *testing.T) {
	b := newEventsBuf(0, 32)
	b.openBlock(0)

	called := false
	flush := func() error { called = true; return nil }

	ok, err := b.ensureRoom(wire.TagLogMsg, 1000, flush)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected ok=false for an event structurally too large for the buffer")
	}
	if called {
		t.Fatalf("ensureRoom should not attempt a flush for a structurally oversize event")
	}
}

func TestEventsBufResetMarksFlushed(t *testing.T) {
	b := newEventsBuf(0, 64)
	b.openBlock(0)
	b.enc.PutUint16(1)
	b.reset()

	if !b.empty() {
		t.Fatalf("expected buffer empty after reset")
	}
	if b.state != stateFlushed {
		t.Fatalf("state = %v, want stateFlushed", b.state)
	}
	if b.marker != -1 {
		t.Fatalf("marker after reset = %d, want -1", b.marker)
	}
}

func TestEventsBufFreeIsTerminal(t *testing.T) {
	b := newEventsBuf(0, 16)
	b.free()
	if b.state != stateFreed {
		t.Fatalf("state = %v, want stateFreed", b.state)
	}
}
