// codec.go: big-endian wire codec over a caller-owned byte span
//
// Copyright (c) 2025 AGILira
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package wire

import "encoding/binary"

// Encoder writes big-endian primitives into a caller-supplied byte slice,
// advancing an internal cursor. It never allocates and never grows its
// backing slice: the caller (an event buffer that has already run
// hasRoom/ensureRoom) is responsible for sizing Buf so every Put call has
// room. Put calls beyond the end of Buf panic rather than silently
// corrupting adjacent memory, since that indicates a room-check bug.
type Encoder struct {
	Buf []byte
	pos int
}

// NewEncoder returns an Encoder writing into buf starting at offset 0.
func NewEncoder(buf []byte) *Encoder {
	return &Encoder{Buf: buf}
}

// Pos returns the current cursor offset.
func (e *Encoder) Pos() int { return e.pos }

// Seek repositions the cursor, used to patch a block marker's size/end_ts
// fields after the fact.
func (e *Encoder) Seek(pos int) { e.pos = pos }

// Remaining reports how many bytes are left before Buf is exhausted.
func (e *Encoder) Remaining() int { return len(e.Buf) - e.pos }

func (e *Encoder) advance(n int) []byte {
	s := e.Buf[e.pos : e.pos+n]
	e.pos += n
	return s
}

// PutUint8 appends a single byte.
func (e *Encoder) PutUint8(v uint8) {
	e.advance(1)[0] = v
}

// PutUint16 appends v as big-endian u16.
func (e *Encoder) PutUint16(v uint16) {
	binary.BigEndian.PutUint16(e.advance(2), v)
}

// PutUint32 appends v as big-endian u32.
func (e *Encoder) PutUint32(v uint32) {
	binary.BigEndian.PutUint32(e.advance(4), v)
}

// PutUint64 appends v as big-endian u64.
func (e *Encoder) PutUint64(v uint64) {
	binary.BigEndian.PutUint64(e.advance(8), v)
}

// PutInt16 appends v under two's-complement reinterpretation.
func (e *Encoder) PutInt16(v int16) { e.PutUint16(uint16(v)) }

// PutInt32 appends v under two's-complement reinterpretation.
func (e *Encoder) PutInt32(v int32) { e.PutUint32(uint32(v)) }

// PutInt64 appends v under two's-complement reinterpretation.
func (e *Encoder) PutInt64(v int64) { e.PutUint64(uint64(v)) }

// PutBytes appends an arbitrary raw span verbatim.
func (e *Encoder) PutBytes(b []byte) {
	copy(e.advance(len(b)), b)
}

// Decoder reads big-endian primitives back out of a byte slice. It backs
// the round-trip tests that check the codec against its own output and
// rotation's check of a rotated file's trailing DATA_END; rtslog ships no
// full log reader (reading the log is out of scope).
type Decoder struct {
	Buf []byte
	pos int
}

// NewDecoder returns a Decoder reading buf from offset 0.
func NewDecoder(buf []byte) *Decoder { return &Decoder{Buf: buf} }

// Pos returns the current read cursor.
func (d *Decoder) Pos() int { return d.pos }

func (d *Decoder) take(n int) []byte {
	s := d.Buf[d.pos : d.pos+n]
	d.pos += n
	return s
}

// Uint8 reads a single byte.
func (d *Decoder) Uint8() uint8 { return d.take(1)[0] }

// Uint16 reads a big-endian u16.
func (d *Decoder) Uint16() uint16 { return binary.BigEndian.Uint16(d.take(2)) }

// Uint32 reads a big-endian u32.
func (d *Decoder) Uint32() uint32 { return binary.BigEndian.Uint32(d.take(4)) }

// Uint64 reads a big-endian u64.
func (d *Decoder) Uint64() uint64 { return binary.BigEndian.Uint64(d.take(8)) }

// Bytes reads n raw bytes.
func (d *Decoder) Bytes(n int) []byte { return d.take(n) }
