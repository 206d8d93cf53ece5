// buffer.go: per-producer event buffer and block framer
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rtslog

import (
	"fmt"

	"github.com/agilira/rtslog/internal/wire"
)

// SharedCapNo is the producer identity used by the one buffer that is not
// owned by a single capability: capset, wall-clock, user-log and debug
// events all target it under a mutex.
const SharedCapNo int32 = -1

// DefaultBufferCapacity is the per-worker buffer size used when Config
// does not override it: 2 MiB, matching the source runtime's fixed
// per-capability allocation.
const DefaultBufferCapacity = 2 * 1024 * 1024

// bufState is the per-buffer lifecycle state from spec §4.6.
type bufState int

const (
	stateEmpty bufState = iota
	stateInBlock
	stateFlushed
	stateFreed
)

// EventsBuf is a fixed-capacity byte region with a write cursor and an
// optional open block marker. A capability's buffer has exactly one
// writer (that capability); the shared buffer is guarded by EventLog's
// mutex. EventsBuf itself holds no lock — concurrency safety is the
// caller's responsibility, by construction of who is allowed to touch
// which buffer (spec §5).
type EventsBuf struct {
	capNo  int32
	enc    *wire.Encoder
	marker int // offset of the open block's first byte, -1 if none
	state  bufState

	// flushed is not updated by the flush path; size-based rotation is
	// driven by EventLog.flushedTotal, which counts every buffer's bytes.
	flushed uint64
}

// newEventsBuf allocates a buffer of capacity bytes for the given
// producer. The backing region is allocated once here and lives until
// Free; no further allocation occurs on the post path.
func newEventsBuf(capNo int32, capacity int) *EventsBuf {
	return &EventsBuf{
		capNo:  capNo,
		enc:    wire.NewEncoder(make([]byte, capacity)),
		marker: -1,
		state:  stateEmpty,
	}
}

// capNumber reports the producer identity this buffer belongs to.
func (b *EventsBuf) capNumber() int32 { return b.capNo }

// bytes returns the written region [0, pos) of the buffer, valid until the
// next mutating call.
func (b *EventsBuf) bytes() []byte { return b.enc.Buf[:b.enc.Pos()] }

// empty reports whether the buffer currently holds no unflushed bytes.
func (b *EventsBuf) empty() bool { return b.enc.Pos() == 0 }

// eventSize returns the total wire size of an event with the given tag,
// and whether that size could ever be written into a buffer of this
// capacity. varLen is only consulted for variable-payload tags.
func (b *EventsBuf) eventSize(tag uint16, varLen int) (size int, fits bool) {
	const headerSize = 2 + 8 // tag:16, timestamp:64

	if fixed, ok := wire.FixedSize(tag); ok {
		size = headerSize + fixed
		return size, size <= len(b.enc.Buf)
	}

	if !wire.IsVariable(tag) {
		return 0, false
	}
	if varLen > 0xFFFF {
		return 0, false
	}
	size = headerSize + 2 + varLen // + payload_size:16
	return size, size <= len(b.enc.Buf)
}

// hasRoom reports whether an event of the given size still fits before the
// buffer's capacity is exhausted.
func (b *EventsBuf) hasRoom(size int) bool {
	return b.enc.Remaining() >= size
}

// ensureRoom makes room for an event of the given wire size, flushing via
// the supplied callback if necessary. It returns ok=false (with nil error)
// when the event is structurally too large to ever fit and must be
// silently dropped per spec §4.8 — flush is never attempted for that case
// since no amount of flushing creates more capacity than the buffer has.
func (b *EventsBuf) ensureRoom(tag uint16, varLen int, flush func() error) (ok bool, err error) {
	size, fits := b.eventSize(tag, varLen)
	if !fits {
		return false, nil
	}
	if b.hasRoom(size) {
		return true, nil
	}
	if err := flush(); err != nil {
		return false, err
	}
	return b.hasRoom(size), nil
}

// openBlock starts a new block: it writes a BLOCK_MARKER with placeholder
// size/end_ts fields and remembers where they are so closeBlock can patch
// them in place.
func (b *EventsBuf) openBlock(now uint64) {
	b.marker = b.enc.Pos()
	b.enc.PutUint16(wire.TagBlockMarker)
	b.enc.PutUint64(now) // start_ts
	b.enc.PutUint32(0)   // block_size placeholder
	b.enc.PutUint64(0)   // end_ts placeholder
	b.enc.PutInt16(int16(b.capNo))
	b.state = stateInBlock
}

// closeBlock patches the current block's size and end_ts fields in place
// and clears the marker. It is a no-op if no block is open.
func (b *EventsBuf) closeBlock(now uint64) {
	if b.marker < 0 {
		return
	}
	blockSize := uint32(b.enc.Pos() - b.marker)

	cur := b.enc.Pos()
	b.enc.Seek(b.marker + 2 + 8) // past tag + start_ts
	b.enc.PutUint32(blockSize)
	b.enc.PutUint64(now)
	b.enc.Seek(cur)

	b.marker = -1
}

// reset rewinds the cursor to the start of the buffer, discarding whatever
// was written (the caller is expected to have already copied it out to
// disk). It does not reopen a block; callers call openBlock explicitly,
// except End and performRotation, which close the stream and skip it.
func (b *EventsBuf) reset() {
	b.enc.Seek(0)
	b.marker = -1
	b.state = stateFlushed
}

// free transitions the buffer to its terminal state. Its backing array is
// left for the garbage collector.
func (b *EventsBuf) free() {
	b.state = stateFreed
}

func (b *EventsBuf) diagnosticOversize(tag uint16, varLen int) error {
	return fmt.Errorf("eventlog: event tag %d (%s) payload %d bytes exceeds buffer capacity %d, dropped",
		tag, wire.Describe(tag), varLen, len(b.enc.Buf))
}
