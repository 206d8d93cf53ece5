package wire

import (
	"bytes"
	"testing"
)

func TestEncoderRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	enc := NewEncoder(buf)

	enc.PutUint16(TagCreateThread)
	enc.PutUint64(123456789)
	enc.PutUint32(42)

	dec := NewDecoder(buf)
	if got := dec.Uint16(); got != TagCreateThread {
		t.Fatalf("tag = %d, want %d", got, TagCreateThread)
	}
	if got := dec.Uint64(); got != 123456789 {
		t.Fatalf("timestamp = %d, want 123456789", got)
	}
	if got := dec.Uint32(); got != 42 {
		t.Fatalf("tid = %d, want 42", got)
	}
}

func TestEncoderBigEndian(t *testing.T) {
	buf := make([]byte, 8)
	enc := NewEncoder(buf)
	enc.PutUint64(0x0102030405060708)

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if !bytes.Equal(buf, want) {
		t.Fatalf("buf = %x, want %x", buf, want)
	}
}

func TestEncoderSeekPatchesBlockMarker(t *testing.T) {
	buf := make([]byte, 64)
	enc := NewEncoder(buf)

	markerStart := enc.Pos()
	enc.PutUint16(TagBlockMarker)
	enc.PutUint64(1000) // start_ts
	sizeOff := enc.Pos()
	enc.PutUint32(0) // placeholder block_size
	endTsOff := enc.Pos()
	enc.PutUint64(0) // placeholder end_ts
	enc.PutUint16(0) // capno

	// simulate writing one event inside the block
	enc.PutUint16(TagShutdown)
	enc.PutUint64(2000)

	blockSize := uint32(enc.Pos() - markerStart)
	end := enc.Pos()

	enc.Seek(sizeOff)
	enc.PutUint32(blockSize)
	enc.Seek(endTsOff)
	enc.PutUint64(2000)
	enc.Seek(end)

	dec := NewDecoder(buf)
	if tag := dec.Uint16(); tag != TagBlockMarker {
		t.Fatalf("tag = %d, want BLOCK_MARKER", tag)
	}
	if ts := dec.Uint64(); ts != 1000 {
		t.Fatalf("start_ts = %d, want 1000", ts)
	}
	if sz := dec.Uint32(); sz != blockSize {
		t.Fatalf("block_size = %d, want %d", sz, blockSize)
	}
	if ets := dec.Uint64(); ets != 2000 {
		t.Fatalf("end_ts = %d, want 2000", ets)
	}
}

func TestEncoderPutBytesVariable(t *testing.T) {
	buf := make([]byte, 32)
	enc := NewEncoder(buf)

	payload := []byte("hello 7")
	enc.PutUint16(TagLogMsg)
	enc.PutUint64(99)
	enc.PutUint16(uint16(len(payload)))
	enc.PutBytes(payload)

	dec := NewDecoder(buf)
	dec.Uint16()
	dec.Uint64()
	n := dec.Uint16()
	got := dec.Bytes(int(n))
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload = %q, want %q", got, payload)
	}
}

func TestEncoderOverrunPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on overrun, got none")
		}
	}()
	buf := make([]byte, 1)
	enc := NewEncoder(buf)
	enc.PutUint64(1)
}
