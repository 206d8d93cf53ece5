// post.go: typed post-event entry points
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package rtslog

import (
	"encoding/binary"
	"fmt"

	"github.com/agilira/rtslog/internal/wire"
)

// acquireBuf returns the buffer a post call for capno should write into,
// along with an unlock function that must be called (even on error) once
// the write is complete. Per-capability buffers need no lock (spec §5's
// single-producer rule); the shared buffer is locked for the whole
// header-plus-payload write.
func (el *EventLog) acquireBuf(capno int32) (*EventsBuf, func(), error) {
	if capno == SharedCapNo {
		el.sharedMu.Lock()
		return el.shared, el.sharedMu.Unlock, nil
	}
	b, err := el.bufFor(capno)
	if err != nil {
		return nil, func() {}, err
	}
	return b, func() {}, nil
}

func (el *EventLog) flushFuncFor(b *EventsBuf) func() error {
	return func() error { return el.flush(b, true) }
}

// postFixed writes a fixed-payload event: tag, timestamp, then whatever
// write appends. write must emit exactly FixedSize(tag) bytes.
func (el *EventLog) postFixed(capno int32, tag uint16, write func(enc *wire.Encoder)) error {
	if !el.running.Load() {
		return errNotRunning
	}
	b, unlock, err := el.acquireBuf(capno)
	if err != nil {
		return err
	}
	defer unlock()

	ok, err := b.ensureRoom(tag, 0, el.flushFuncFor(b))
	if err != nil {
		return err
	}
	if !ok {
		el.reportError("oversize_drop", b.diagnosticOversize(tag, 0))
		return nil
	}

	b.enc.PutUint16(tag)
	b.enc.PutUint64(el.cfg.Clock.Now())
	write(b.enc)
	return nil
}

// postVariable writes a length-prefixed variable-payload event.
func (el *EventLog) postVariable(capno int32, tag uint16, payload []byte) error {
	if !el.running.Load() {
		return errNotRunning
	}
	b, unlock, err := el.acquireBuf(capno)
	if err != nil {
		return err
	}
	defer unlock()

	ok, err := b.ensureRoom(tag, len(payload), el.flushFuncFor(b))
	if err != nil {
		return err
	}
	if !ok {
		el.reportError("oversize_drop", b.diagnosticOversize(tag, len(payload)))
		return nil
	}

	b.enc.PutUint16(tag)
	b.enc.PutUint64(el.cfg.Clock.Now())
	b.enc.PutUint16(uint16(len(payload)))
	b.enc.PutBytes(payload)
	return nil
}

// PostEvent posts a zero-payload event (SHUTDOWN, GC phase markers, spark
// phase markers, ...) on the given capability's buffer.
func (el *EventLog) PostEvent(capno int32, tag uint16) error {
	if size, fixed := wire.FixedSize(tag); !fixed || size != 0 {
		return fmt.Errorf("eventlog: tag %d is not a zero-payload event", tag)
	}
	return el.postFixed(capno, tag, func(*wire.Encoder) {})
}

// PostSchedEvent posts one of CREATE_THREAD / RUN_THREAD / THREAD_RUNNABLE
// / CREATE_SPARK_THREAD, whose payload is just tid:32.
func (el *EventLog) PostSchedEvent(capno int32, tag uint16, tid uint32) error {
	switch tag {
	case wire.TagCreateThread, wire.TagRunThread, wire.TagThreadRunnable, wire.TagCreateSparkThread:
	default:
		return fmt.Errorf("eventlog: tag %d is not a tid-only sched event", tag)
	}
	return el.postFixed(capno, tag, func(enc *wire.Encoder) {
		enc.PutUint32(tid)
	})
}

// PostMigrateThread posts MIGRATE_THREAD or THREAD_WAKEUP: tid:32,
// capno:16 (the destination/waking capability).
func (el *EventLog) PostMigrateThread(capno int32, tag uint16, tid uint32, otherCap uint16) error {
	switch tag {
	case wire.TagMigrateThread, wire.TagThreadWakeup:
	default:
		return fmt.Errorf("eventlog: tag %d is not a migrate/wakeup event", tag)
	}
	return el.postFixed(capno, tag, func(enc *wire.Encoder) {
		enc.PutUint32(tid)
		enc.PutUint16(otherCap)
	})
}

// PostStopThread posts STOP_THREAD: tid:32, status:16, blocker_tid:32.
func (el *EventLog) PostStopThread(capno int32, tid uint32, status uint16, blockerTid uint32) error {
	return el.postFixed(capno, wire.TagStopThread, func(enc *wire.Encoder) {
		enc.PutUint32(tid)
		enc.PutUint16(status)
		enc.PutUint32(blockerTid)
	})
}

// PostSparkSteal posts SPARK_STEAL: victim_cap:16.
func (el *EventLog) PostSparkSteal(capno int32, victimCap uint16) error {
	return el.postFixed(capno, wire.TagSparkSteal, func(enc *wire.Encoder) {
		enc.PutUint16(victimCap)
	})
}

// PostSparkEvent posts one of the zero-payload spark phase events
// (SPARK_CREATE/DUD/OVERFLOW/RUN/FIZZLE/GC).
func (el *EventLog) PostSparkEvent(capno int32, tag uint16) error {
	switch tag {
	case wire.TagSparkCreate, wire.TagSparkDud, wire.TagSparkOverflow,
		wire.TagSparkRun, wire.TagSparkFizzle, wire.TagSparkGc:
	default:
		return fmt.Errorf("eventlog: tag %d is not a spark phase event", tag)
	}
	return el.PostEvent(capno, tag)
}

// SparkCounters mirrors the seven accumulator fields of a SPARK_COUNTERS
// event.
type SparkCounters struct {
	Created, Dud, Overflowed, Converted, GCd, Fizzled, Remaining uint64
}

// PostSparkCounters posts SPARK_COUNTERS: seven u64 fields.
func (el *EventLog) PostSparkCounters(capno int32, c SparkCounters) error {
	return el.postFixed(capno, wire.TagSparkCounters, func(enc *wire.Encoder) {
		enc.PutUint64(c.Created)
		enc.PutUint64(c.Dud)
		enc.PutUint64(c.Overflowed)
		enc.PutUint64(c.Converted)
		enc.PutUint64(c.GCd)
		enc.PutUint64(c.Fizzled)
		enc.PutUint64(c.Remaining)
	})
}

// PostStartup posts STARTUP: n_caps:16, once the worker-pool size is
// known. Targets the shared buffer.
func (el *EventLog) PostStartup(nCaps uint16) error {
	return el.postFixed(SharedCapNo, wire.TagStartup, func(enc *wire.Encoder) {
		enc.PutUint16(nCaps)
	})
}

// PostCapsetCreate posts CAPSET_CREATE: capset:32, type:16. Targets the
// shared buffer.
func (el *EventLog) PostCapsetCreate(capset uint32, capsetType uint16) error {
	return el.postFixed(SharedCapNo, wire.TagCapsetCreate, func(enc *wire.Encoder) {
		enc.PutUint32(capset)
		enc.PutUint16(capsetType)
	})
}

// PostCapsetDelete posts CAPSET_DELETE: capset:32.
func (el *EventLog) PostCapsetDelete(capset uint32) error {
	return el.postFixed(SharedCapNo, wire.TagCapsetDelete, func(enc *wire.Encoder) {
		enc.PutUint32(capset)
	})
}

// PostCapsetEvent posts CAPSET_ASSIGN_CAP or CAPSET_REMOVE_CAP: capset:32,
// capno:16.
func (el *EventLog) PostCapsetEvent(tag uint16, capset uint32, capno uint16) error {
	switch tag {
	case wire.TagCapsetAssignCap, wire.TagCapsetRemoveCap:
	default:
		return fmt.Errorf("eventlog: tag %d is not a capset assign/remove event", tag)
	}
	return el.postFixed(SharedCapNo, tag, func(enc *wire.Encoder) {
		enc.PutUint32(capset)
		enc.PutUint16(capno)
	})
}

// PostOsProcess posts OSPROCESS_PID or OSPROCESS_PPID: capset:32, pid:32.
func (el *EventLog) PostOsProcess(tag uint16, capset uint32, pid uint32) error {
	switch tag {
	case wire.TagOsprocessPid, wire.TagOsprocessPpid:
	default:
		return fmt.Errorf("eventlog: tag %d is not an osprocess event", tag)
	}
	return el.postFixed(SharedCapNo, tag, func(enc *wire.Encoder) {
		enc.PutUint32(capset)
		enc.PutUint32(pid)
	})
}

// PostWallClockTime snapshots the wall clock and the monotonic eventlog
// clock back-to-back, then writes the tag and the captured monotonic
// timestamp directly — bypassing postFixed's own Clock.Now() call — so the
// wall/mono pair recorded is the one actually sampled together, per spec
// §4.5. Targets the shared buffer, payload capset:32, sec:64, nsec:32.
func (el *EventLog) PostWallClockTime(capset uint32) error {
	if !el.running.Load() {
		return errNotRunning
	}
	sec, nsec := el.cfg.WallClock.Now()
	ts := el.cfg.Clock.Now()

	el.sharedMu.Lock()
	defer el.sharedMu.Unlock()

	b := el.shared
	ok, err := b.ensureRoom(wire.TagWallClockTime, 0, el.flushFuncFor(b))
	if err != nil {
		return err
	}
	if !ok {
		el.reportError("oversize_drop", b.diagnosticOversize(wire.TagWallClockTime, 0))
		return nil
	}

	b.enc.PutUint16(wire.TagWallClockTime)
	b.enc.PutUint64(ts)
	b.enc.PutUint32(capset)
	b.enc.PutUint64(uint64(sec))
	b.enc.PutUint32(nsec)
	return nil
}

// PostLogMsg formats msg into a 512-byte scratch buffer (truncating, never
// emitting a continuation record — see SPEC_FULL's Open Question decision)
// and posts it as LOG_MSG on capno's buffer.
func (el *EventLog) PostLogMsg(capno int32, format string, args ...interface{}) error {
	const scratchSize = 512
	msg := fmt.Sprintf(format, args...)
	if len(msg) > scratchSize {
		msg = msg[:scratchSize]
	}
	return el.postVariable(capno, wire.TagLogMsg, []byte(msg))
}

// PostUserMsg posts USER_MSG with msg verbatim (no truncation: user
// messages are explicit application events, not the internal diagnostic
// channel PostLogMsg serves).
func (el *EventLog) PostUserMsg(capno int32, msg string) error {
	return el.postVariable(capno, wire.TagUserMsg, []byte(msg))
}

// PostThreadLabel posts THREAD_LABEL: tid:32 followed by the label bytes,
// as a variable payload on capno's buffer.
func (el *EventLog) PostThreadLabel(capno int32, tid uint32, label string) error {
	payload := make([]byte, 4+len(label))
	binary.BigEndian.PutUint32(payload, tid)
	copy(payload[4:], label)
	return el.postVariable(capno, wire.TagThreadLabel, payload)
}

// PostRtsIdentifier, PostProgramArgs and PostProgramEnv post their
// respective variable, process-wide metadata events on the shared buffer.
func (el *EventLog) PostRtsIdentifier(identifier string) error {
	return el.postVariable(SharedCapNo, wire.TagRtsIdentifier, []byte(identifier))
}

func (el *EventLog) PostProgramArgs(args []string) error {
	return el.postVariable(SharedCapNo, wire.TagProgramArgs, joinNulTerminated(args))
}

func (el *EventLog) PostProgramEnv(env []string) error {
	return el.postVariable(SharedCapNo, wire.TagProgramEnv, joinNulTerminated(env))
}

func joinNulTerminated(items []string) []byte {
	n := 0
	for _, s := range items {
		n += len(s) + 1
	}
	out := make([]byte, 0, n)
	for _, s := range items {
		out = append(out, s...)
		out = append(out, 0)
	}
	return out
}

// PostModule posts HPC_MODULE metadata: name, a tick count, and a hash,
// serialized as a variable payload (supplemented from the coverage
// instrumentation in the source runtime; see SPEC_FULL §5).
func (el *EventLog) PostModule(name string, count uint32, hash uint64) error {
	payload := make([]byte, 0, 4+len(name)+4+8)
	payload = binary.BigEndian.AppendUint32(payload, uint32(len(name)))
	payload = append(payload, name...)
	payload = binary.BigEndian.AppendUint32(payload, count)
	payload = binary.BigEndian.AppendUint64(payload, hash)
	return el.postVariable(SharedCapNo, wire.TagHpcModule, payload)
}

// PostDebugData posts a debug/coverage tag with an already-encoded
// payload. For a fixed-size debug tag it asserts the payload matches the
// declared size exactly; a variable tag is accepted as-is.
func (el *EventLog) PostDebugData(capno int32, tag uint16, payload []byte) error {
	if size, fixed := wire.FixedSize(tag); fixed {
		if len(payload) != size {
			return fmt.Errorf("eventlog: tag %d declares fixed size %d, got payload of %d bytes", tag, size, len(payload))
		}
		return el.postFixed(capno, tag, func(enc *wire.Encoder) {
			enc.PutBytes(payload)
		})
	}
	if !wire.IsVariable(tag) {
		return fmt.Errorf("eventlog: tag %d is deprecated or unknown", tag)
	}
	return el.postVariable(capno, tag, payload)
}

// PostDebugModule, PostDebugProc and PostProcPtrRange are thin, named
// wrappers over postVariable/postFixed for the debug-metadata tags.
func (el *EventLog) PostDebugModule(name string) error {
	return el.postVariable(SharedCapNo, wire.TagDebugModule, []byte(name))
}

func (el *EventLog) PostDebugProc(name string) error {
	return el.postVariable(SharedCapNo, wire.TagDebugProcedure, []byte(name))
}

func (el *EventLog) PostProcPtrRange(capno int32, low, high uint64) error {
	return el.postFixed(capno, wire.TagDebugPtrRange, func(enc *wire.Encoder) {
		enc.PutUint64(low)
		enc.PutUint64(high)
	})
}

// PostInstrPtrSample posts INSTR_PTR_SAMPLE: capno:16 followed by the
// sampled instruction pointers, 64-bit each (SPEC_FULL's Open Question
// decision — see §6). Called by the papi sampler when it drains a
// capability's ring.
func (el *EventLog) PostInstrPtrSample(capno int32, ips []uint64) error {
	payload := make([]byte, 2, 2+8*len(ips))
	binary.BigEndian.PutUint16(payload, uint16(capno))
	for _, ip := range ips {
		payload = binary.BigEndian.AppendUint64(payload, ip)
	}
	return el.postVariable(capno, wire.TagInstrPtrSample, payload)
}
