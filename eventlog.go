// eventlog.go: lifecycle and buffer-pool management
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rtslog

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/agilira/rtslog/internal/wire"
)

// EventLog is the global lifecycle state from spec §3: the output file,
// the per-capability buffer array, the shared buffer and its lock, and
// bookkeeping for rotation. Construct one with NewWithDefaults or
// NewWithConfig; never via a bare EventLog{}.
type EventLog struct {
	cfg  Config
	path string

	file        atomic.Pointer[os.File]
	fileCreated atomic.Int64 // unix seconds, bookkeeping only (not on the wire)

	capMu  sync.RWMutex // guards perCap during MoreCapEventBufs
	perCap []*EventsBuf

	sharedMu sync.Mutex
	shared   *EventsBuf

	flushedTotal atomic.Uint64 // cumulative bytes flushed, drives size rotation
	rotationSeq  atomic.Uint64
	rotationFlag atomic.Bool
	maxSizeBytes int64

	bgWorkers atomic.Pointer[BackgroundWorkers]

	initMutex sync.Mutex
	closeOnce sync.Once
	running   atomic.Bool

	wallClockStop *cachedWallClockHandle // non-nil only if we created the default
}

// NewWithDefaults creates an EventLog for progName with numCaps initial
// per-capability buffers and production-sensible rotation defaults: no
// size limit, daily age-based rotation, gzip compression of rotated
// files, 5 backups retained.
func NewWithDefaults(progName string, numCaps int) (*EventLog, error) {
	return NewWithConfig(&Config{
		ProgName:   progName,
		NumCaps:    numCaps,
		MaxAgeStr:  "24h",
		MaxBackups: 5,
		Compress:   true,
	})
}

// NewWithConfig creates and initializes an EventLog from a fully specified
// Config. It returns an error (rather than exiting the process) on any of
// the conditions spec §7 classifies as fatal for initEventLogging: the
// caller decides how to treat that.
func NewWithConfig(cfg *Config) (*EventLog, error) {
	if cfg == nil {
		return nil, fmt.Errorf("eventlog: config must not be nil")
	}
	cfgCopy := *cfg
	if err := cfgCopy.applyDefaults(); err != nil {
		return nil, err
	}

	el := &EventLog{cfg: cfgCopy}
	if wc, ok := cfgCopy.WallClock.(*cachedWallClockHandle); ok {
		el.wallClockStop = wc
	}

	if err := el.Init(); err != nil {
		return nil, err
	}
	return el, nil
}

// Init opens the output file, allocates the per-capability and shared
// buffers, and emits the self-describing header. NewWithConfig calls it
// once; calling it again while the log is running returns
// errAlreadyRunning. It mirrors the source runtime's separate
// initEventLogging entry point.
func (el *EventLog) Init() error {
	el.initMutex.Lock()
	defer el.initMutex.Unlock()

	if el.running.Load() {
		return errAlreadyRunning
	}
	if len(wire.Schema) == 0 {
		return errSchemaMismatch
	}

	if err := el.initFile(); err != nil {
		return err
	}

	el.perCap = make([]*EventsBuf, el.cfg.NumCaps)
	for i := range el.perCap {
		el.perCap[i] = newEventsBuf(int32(i), el.cfg.BufferSize)
	}
	el.shared = newEventsBuf(SharedCapNo, el.cfg.BufferSize)

	if err := el.writeHeader(); err != nil {
		return err
	}

	now := el.cfg.Clock.Now()
	el.shared.openBlock(now)
	for _, b := range el.perCap {
		b.openBlock(now)
	}

	el.running.Store(true)
	return nil
}

// writeHeader emits HEADER_BEGIN .. HET .. HEADER_END .. DATA_BEGIN
// directly into the shared buffer (ahead of any block marker, per the
// grammar in spec §6), then flushes it so the header occupies its own
// leading region of the file.
func (el *EventLog) writeHeader() error {
	b := el.shared
	enc := b.enc

	headerBytes := 4 + 4 // HEADER_BEGIN, HET_BEGIN
	for _, e := range wire.Schema {
		headerBytes += 4 + 2 + 2 + 4 + len(e.Desc) + 4 + 4
	}
	headerBytes += 4 + 4 + 4 // HET_END, HEADER_END, DATA_BEGIN
	if headerBytes > len(enc.Buf) {
		return fmt.Errorf("eventlog: schema header (%d bytes) exceeds buffer capacity %d; increase Config.BufferSize", headerBytes, len(enc.Buf))
	}

	enc.PutUint32(wire.HeaderBegin)
	enc.PutUint32(wire.HetBegin)
	for _, e := range wire.Schema {
		enc.PutUint32(wire.EtBegin)
		enc.PutUint16(e.Tag)
		enc.PutUint16(uint16(e.Size))
		desc := []byte(e.Desc)
		enc.PutUint32(uint32(len(desc)))
		enc.PutBytes(desc)
		enc.PutUint32(0) // ext_len, always 0: no extension fields defined
		enc.PutUint32(wire.EtEnd)
	}
	enc.PutUint32(wire.HetEnd)
	enc.PutUint32(wire.HeaderEnd)
	enc.PutUint32(wire.DataBegin)

	return el.writeRaw(b)
}

// writeRaw writes a buffer's current bytes straight to the file and resets
// the cursor, without touching any block marker. Used for the header
// (which precedes any block) and by flush once the block has already
// been closed. The bytes go out in a single os.File.Write (repeated only
// when an attempt wrote nothing); no file lock is taken, so flushes from
// different capabilities rely on the OS keeping each write contiguous.
func (el *EventLog) writeRaw(b *EventsBuf) error {
	data := b.bytes()
	if len(data) == 0 {
		b.reset()
		return nil
	}

	file := el.file.Load()
	if file == nil {
		return errNoCurrentFile
	}

	n, err := retryWrite(file, data, el.cfg.RetryCount, el.cfg.RetryDelay)
	if n > 0 {
		el.flushedTotal.Add(uint64(n))
	}
	if err != nil {
		el.reportError("flush_write", err)
		// Per spec §4.8: skip reset-and-reopen for this cycle so the
		// unflushed bytes are retried on the next flush instead of torn.
		return err
	}

	b.reset()
	return nil
}

// flush closes b's current block, writes it to the file, resets the
// cursor and reopens a fresh block — except when reopen is false, which
// End and performRotation pass for every buffer as they close the stream.
func (el *EventLog) flush(b *EventsBuf, reopen bool) error {
	now := el.cfg.Clock.Now()
	b.closeBlock(now)

	if err := el.writeRaw(b); err != nil {
		// writeRaw already reported; the block stays logically closed so
		// the next flush will simply emit a fresh (empty) one rather than
		// re-patch stale offsets.
		return err
	}

	if reopen {
		b.openBlock(now)
	}

	if newTotal := el.flushedTotal.Load(); el.shouldRotate(newTotal) {
		el.triggerRotation()
	}
	return nil
}

// FlushBuf flushes a single capability's buffer, e.g. from a periodic
// timer driven by the hosting scheduler. Safe to call only from the
// capability that owns buf (spec §5's single-producer rule).
func (el *EventLog) FlushBuf(capno int32) error {
	b, err := el.bufFor(capno)
	if err != nil {
		return err
	}
	return el.flush(b, true)
}

// FlushAll flushes every per-capability buffer and the shared buffer, in
// that order, reopening a fresh block on each. End and the rotation path
// do their own flushing without reopening and do not call it.
func (el *EventLog) FlushAll() error {
	el.capMu.RLock()
	bufs := make([]*EventsBuf, len(el.perCap))
	copy(bufs, el.perCap)
	el.capMu.RUnlock()

	for _, b := range bufs {
		if err := el.flush(b, true); err != nil {
			return err
		}
	}

	el.sharedMu.Lock()
	defer el.sharedMu.Unlock()
	return el.flush(el.shared, true)
}

// bufFor returns the per-capability buffer for capno. A capability beyond
// the current allocation is an error; the array grows only through an
// explicit MoreCapEventBufs call.
func (el *EventLog) bufFor(capno int32) (*EventsBuf, error) {
	el.capMu.RLock()
	if int(capno) < len(el.perCap) {
		b := el.perCap[capno]
		el.capMu.RUnlock()
		return b, nil
	}
	el.capMu.RUnlock()
	return nil, fmt.Errorf("eventlog: capability %d not allocated", capno)
}

// MoreCapEventBufs grows the per-capability buffer array in place from
// `from` to `to` capabilities when the runtime's worker pool scales up.
// Existing buffers are retained unchanged.
func (el *EventLog) MoreCapEventBufs(from, to int) error {
	if to <= from {
		return fmt.Errorf("eventlog: MoreCapEventBufs(%d, %d): to must be > from", from, to)
	}

	el.capMu.Lock()
	defer el.capMu.Unlock()

	if from != len(el.perCap) {
		return fmt.Errorf("eventlog: MoreCapEventBufs(%d, %d): from does not match current size %d", from, to, len(el.perCap))
	}

	grown := make([]*EventsBuf, to)
	copy(grown, el.perCap)
	now := el.cfg.Clock.Now()
	for i := from; i < to; i++ {
		b := newEventsBuf(int32(i), el.cfg.BufferSize)
		b.openBlock(now)
		grown[i] = b
	}
	el.perCap = grown
	return nil
}

// End flushes every buffer, resets (without reopening) the shared buffer,
// emits the DATA_END sentinel, flushes once more and closes the file. This
// is the clean shutdown path; see Abort for the unclean one.
func (el *EventLog) End() error {
	if !el.running.CompareAndSwap(true, false) {
		return errNotRunning
	}

	for _, b := range el.perCap {
		if err := el.flush(b, false); err != nil {
			el.reportError("end_flush_cap", err)
		}
	}

	el.sharedMu.Lock()
	err := el.flush(el.shared, false)
	if err != nil {
		el.reportError("end_flush_shared", err)
	}

	el.shared.enc.PutUint16(wire.DataEnd)
	err = el.writeRaw(el.shared)
	el.sharedMu.Unlock()
	if err != nil {
		el.reportError("end_write_trailer", err)
	}

	return el.closeFile()
}

// Abort frees buffers and closes the file without writing a clean
// DATA_END trailer: the unclean shutdown path (process crash, panic
// recovery) where flushing further could itself fail.
func (el *EventLog) Abort() error {
	el.running.Store(false)
	for _, b := range el.perCap {
		b.free()
	}
	if el.shared != nil {
		el.shared.free()
	}
	return el.closeFile()
}

// Free releases the buffers without touching the file; callers that have
// already closed the file via End/Abort can use this to drop buffer
// references sooner.
func (el *EventLog) Free() {
	for _, b := range el.perCap {
		b.free()
	}
	if el.shared != nil {
		el.shared.free()
	}
}

func (el *EventLog) closeFile() error {
	var closeErr error
	el.closeOnce.Do(func() {
		if workers := el.bgWorkers.Load(); workers != nil {
			workers.stop()
		}
		if el.wallClockStop != nil {
			el.wallClockStop.Stop()
		}
		if f := el.file.Load(); f != nil {
			closeErr = f.Close()
		}
	})
	return closeErr
}

// Close is an alias for End, for callers that prefer the io.Closer-shaped
// name. Both are idempotent.
func (el *EventLog) Close() error {
	if el.running.Load() {
		return el.End()
	}
	return el.closeFile()
}

// WaitForBackgroundTasks blocks until every rotation cleanup, compression
// or checksum task submitted so far, including ones still queued, has
// completed, or until the background workers have been stopped. Intended
// for tests.
func (el *EventLog) WaitForBackgroundTasks() {
	if workers := el.bgWorkers.Load(); workers != nil {
		workers.waitForCompletion()
	}
}

// reportError invokes Config.ErrorCallback if set.
func (el *EventLog) reportError(operation string, err error) {
	if el.cfg.ErrorCallback != nil {
		el.cfg.ErrorCallback(operation, err)
	}
}
