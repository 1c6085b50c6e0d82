// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package modbus

import (
	"fmt"
	"math"
	"strings"
)

// ByteOrder selects how multi-byte values are laid out on the wire.
// Letters name the bytes of the big-endian representation.
type ByteOrder uint8

const (
	BigEndian            ByteOrder = iota // ABCD
	LittleEndian                          // DCBA
	BigEndianByteSwap                     // BADC
	LittleEndianByteSwap                  // CDAB
)

var byteOrderNames = map[ByteOrder]string{
	BigEndian:            "big-endian",
	LittleEndian:         "little-endian",
	BigEndianByteSwap:    "big-endian-byte-swap",
	LittleEndianByteSwap: "little-endian-byte-swap",
}

func (o ByteOrder) String() string {
	if name, ok := byteOrderNames[o]; ok {
		return name
	}
	return fmt.Sprintf("byte-order(%d)", o)
}

// ParseByteOrder accepts the names returned by String as well as the
// ABCD / DCBA / BADC / CDAB shorthands.
func ParseByteOrder(s string) (ByteOrder, error) {
	switch strings.ToLower(s) {
	case "big-endian", "big", "be", "abcd":
		return BigEndian, nil
	case "little-endian", "little", "le", "dcba":
		return LittleEndian, nil
	case "big-endian-byte-swap", "badc":
		return BigEndianByteSwap, nil
	case "little-endian-byte-swap", "cdab":
		return LittleEndianByteSwap, nil
	}
	return BigEndian, fmt.Errorf("%w: unknown byte order %q", ErrInvalidValue, s)
}

// arrange converts b in place between big-endian and o. Every
// arrangement is its own inverse so the same call serves both directions.
func (o ByteOrder) arrange(b []byte) {
	switch o {
	case LittleEndian:
		for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
			b[i], b[j] = b[j], b[i]
		}
	case BigEndianByteSwap:
		for i := 0; i+1 < len(b); i += 2 {
			b[i], b[i+1] = b[i+1], b[i]
		}
	case LittleEndianByteSwap:
		words := len(b) / 2
		for i, j := 0, words-1; i < j; i, j = i+1, j-1 {
			b[2*i], b[2*j] = b[2*j], b[2*i]
			b[2*i+1], b[2*j+1] = b[2*j+1], b[2*i+1]
		}
	}
}

// contextStack names the nested structures a buffer is currently inside.
// It only serves diagnostics; an unbalanced pop is a programming error.
type contextStack []string

func (s *contextStack) push(name string) {
	*s = append(*s, name)
}

func (s *contextStack) pop(name string) {
	n := len(*s)
	if n == 0 || (*s)[n-1] != name {
		panic(fmt.Sprintf("modbus: unbalanced context pop %q (stack %v)", name, []string(*s)))
	}
	*s = (*s)[:n-1]
}

func (s contextStack) String() string {
	return strings.Join(s, "/")
}

func pickOrder(def ByteOrder, override []ByteOrder) ByteOrder {
	if len(override) > 0 {
		return override[0]
	}
	return def
}

// ReadBuffer is a bit-addressed reader over a byte slice.
//
// Whole-byte values that start on a byte boundary honour the buffer's byte
// order (or a per-call override). Sub-byte and unaligned values are read
// MSB-first.
type ReadBuffer struct {
	data  []byte
	pos   int
	order ByteOrder
	ctx   contextStack
}

// NewReadBuffer creates a reader positioned at bit 0.
func NewReadBuffer(data []byte, order ByteOrder) *ReadBuffer {
	return &ReadBuffer{data: data, order: order}
}

// Pos returns the current position in bits.
func (rb *ReadBuffer) Pos() int { return rb.pos }

// BytePos returns the current position in whole bytes.
func (rb *ReadBuffer) BytePos() int { return rb.pos / 8 }

// Len returns the total size of the underlying data in bits.
func (rb *ReadBuffer) Len() int { return len(rb.data) * 8 }

// HasMore reports whether at least bits bits remain.
func (rb *ReadBuffer) HasMore(bits int) bool {
	return rb.pos+bits <= len(rb.data)*8
}

func (rb *ReadBuffer) ByteOrder() ByteOrder     { return rb.order }
func (rb *ReadBuffer) SetByteOrder(o ByteOrder) { rb.order = o }

// PushContext enters a named structure.
func (rb *ReadBuffer) PushContext(name string) { rb.ctx.push(name) }

// PopContext leaves a named structure. It panics if name is not the
// innermost open context.
func (rb *ReadBuffer) PopContext(name string) { rb.ctx.pop(name) }

// Context returns the open contexts joined by "/".
func (rb *ReadBuffer) Context() string { return rb.ctx.String() }

func (rb *ReadBuffer) fail(field string, err error) error {
	return &CodecError{Context: rb.ctx.String(), Field: field, Err: err}
}

func (rb *ReadBuffer) readUint(name string, bits int, order ByteOrder) (uint64, error) {
	if bits < 1 || bits > 64 {
		return 0, rb.fail(name, fmt.Errorf("%w: width %d", ErrInvalidValue, bits))
	}
	if !rb.HasMore(bits) {
		return 0, rb.fail(name, ErrBufferUnderflow)
	}
	if rb.pos%8 == 0 && bits%8 == 0 {
		start := rb.pos / 8
		var tmp [8]byte
		b := tmp[:bits/8]
		copy(b, rb.data[start:start+bits/8])
		order.arrange(b)
		var v uint64
		for _, x := range b {
			v = v<<8 | uint64(x)
		}
		rb.pos += bits
		return v, nil
	}
	var v uint64
	for i := 0; i < bits; i++ {
		byteIdx := rb.pos / 8
		bit := (rb.data[byteIdx] >> (7 - uint(rb.pos%8))) & 1
		v = v<<1 | uint64(bit)
		rb.pos++
	}
	return v, nil
}

// ReadBit reads a single bit.
func (rb *ReadBuffer) ReadBit(name string) (bool, error) {
	v, err := rb.readUint(name, 1, rb.order)
	return v == 1, err
}

func (rb *ReadBuffer) ReadUint8(name string, bits int) (uint8, error) {
	v, err := rb.readUint(name, bits, rb.order)
	return uint8(v), err
}

func (rb *ReadBuffer) ReadUint16(name string, bits int, order ...ByteOrder) (uint16, error) {
	v, err := rb.readUint(name, bits, pickOrder(rb.order, order))
	return uint16(v), err
}

func (rb *ReadBuffer) ReadUint32(name string, bits int, order ...ByteOrder) (uint32, error) {
	v, err := rb.readUint(name, bits, pickOrder(rb.order, order))
	return uint32(v), err
}

func (rb *ReadBuffer) ReadUint64(name string, bits int, order ...ByteOrder) (uint64, error) {
	return rb.readUint(name, bits, pickOrder(rb.order, order))
}

// ReadInt reads a two's complement value of the given width and sign-extends it.
func (rb *ReadBuffer) ReadInt(name string, bits int, order ...ByteOrder) (int64, error) {
	v, err := rb.readUint(name, bits, pickOrder(rb.order, order))
	if err != nil {
		return 0, err
	}
	if bits < 64 && v&(1<<(bits-1)) != 0 {
		v |= ^uint64(0) << bits
	}
	return int64(v), nil
}

func (rb *ReadBuffer) ReadFloat32(name string, order ...ByteOrder) (float32, error) {
	v, err := rb.readUint(name, 32, pickOrder(rb.order, order))
	return math.Float32frombits(uint32(v)), err
}

func (rb *ReadBuffer) ReadFloat64(name string, order ...ByteOrder) (float64, error) {
	v, err := rb.readUint(name, 64, pickOrder(rb.order, order))
	return math.Float64frombits(v), err
}

// ReadBytes reads n raw bytes. Byte order does not apply.
func (rb *ReadBuffer) ReadBytes(name string, n int) ([]byte, error) {
	if n < 0 {
		return nil, rb.fail(name, fmt.Errorf("%w: negative length %d", ErrInvalidValue, n))
	}
	if !rb.HasMore(n * 8) {
		return nil, rb.fail(name, ErrBufferUnderflow)
	}
	out := make([]byte, n)
	if rb.pos%8 == 0 {
		copy(out, rb.data[rb.pos/8:])
		rb.pos += n * 8
		return out, nil
	}
	for i := range out {
		v, _ := rb.readUint(name, 8, BigEndian)
		out[i] = uint8(v)
	}
	return out, nil
}

// ReadString reads a fixed-size string of bits length. Trailing NUL bytes
// are dropped.
func (rb *ReadBuffer) ReadString(name string, bits int) (string, error) {
	b, err := rb.ReadBytes(name, bits/8)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(b), "\x00"), nil
}

// ReadArray reads exactly count elements with read, inside a context named name.
func ReadArray[T any](rb *ReadBuffer, name string, count int, read func(*ReadBuffer) (T, error)) ([]T, error) {
	if count < 0 {
		return nil, rb.fail(name, fmt.Errorf("%w: negative count %d", ErrInvalidValue, count))
	}
	rb.PushContext(name)
	out := make([]T, 0, count)
	for i := 0; i < count; i++ {
		v, err := read(rb)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	rb.PopContext(name)
	return out, nil
}

// ReadComplex reads a nested structure inside a context named name.
func ReadComplex[T any](rb *ReadBuffer, name string, read func(*ReadBuffer) (T, error)) (T, error) {
	rb.PushContext(name)
	v, err := read(rb)
	if err != nil {
		return v, err
	}
	rb.PopContext(name)
	return v, nil
}

// WriteBuffer is a bit-addressed writer over a preallocated byte slice.
// Writes past the allocated size fail with ErrBufferOverflow.
type WriteBuffer struct {
	data  []byte
	pos   int
	order ByteOrder
	ctx   contextStack
}

// NewWriteBuffer allocates size bytes. The size is normally the value
// computed by the message's length function.
func NewWriteBuffer(size int, order ByteOrder) *WriteBuffer {
	return &WriteBuffer{data: make([]byte, size), order: order}
}

func (wb *WriteBuffer) Pos() int                 { return wb.pos }
func (wb *WriteBuffer) ByteOrder() ByteOrder     { return wb.order }
func (wb *WriteBuffer) SetByteOrder(o ByteOrder) { wb.order = o }
func (wb *WriteBuffer) PushContext(name string)  { wb.ctx.push(name) }
func (wb *WriteBuffer) PopContext(name string)   { wb.ctx.pop(name) }
func (wb *WriteBuffer) Context() string          { return wb.ctx.String() }

func (wb *WriteBuffer) fail(field string, err error) error {
	return &CodecError{Context: wb.ctx.String(), Field: field, Err: err}
}

// Bytes returns the underlying buffer, written or not.
func (wb *WriteBuffer) Bytes() []byte { return wb.data }

// Finish returns the written bytes and checks that every allocated bit
// was written.
func (wb *WriteBuffer) Finish() ([]byte, error) {
	if wb.pos != len(wb.data)*8 {
		return nil, fmt.Errorf("%w: wrote %d of %d bits", ErrLengthMismatch, wb.pos, len(wb.data)*8)
	}
	return wb.data, nil
}

func (wb *WriteBuffer) writeUint(name string, bits int, v uint64, order ByteOrder) error {
	if bits < 1 || bits > 64 {
		return wb.fail(name, fmt.Errorf("%w: width %d", ErrInvalidValue, bits))
	}
	if bits < 64 && v>>uint(bits) != 0 {
		return wb.fail(name, fmt.Errorf("%w: %d does not fit %d bits", ErrInvalidValue, v, bits))
	}
	if wb.pos+bits > len(wb.data)*8 {
		return wb.fail(name, ErrBufferOverflow)
	}
	if wb.pos%8 == 0 && bits%8 == 0 {
		n := bits / 8
		var tmp [8]byte
		b := tmp[:n]
		for i := n - 1; i >= 0; i-- {
			b[i] = byte(v)
			v >>= 8
		}
		order.arrange(b)
		copy(wb.data[wb.pos/8:], b)
		wb.pos += bits
		return nil
	}
	for i := bits - 1; i >= 0; i-- {
		byteIdx := wb.pos / 8
		shift := 7 - uint(wb.pos%8)
		if (v>>uint(i))&1 == 1 {
			wb.data[byteIdx] |= 1 << shift
		} else {
			wb.data[byteIdx] &^= 1 << shift
		}
		wb.pos++
	}
	return nil
}

func (wb *WriteBuffer) WriteBit(name string, v bool) error {
	var x uint64
	if v {
		x = 1
	}
	return wb.writeUint(name, 1, x, wb.order)
}

func (wb *WriteBuffer) WriteUint8(name string, bits int, v uint8) error {
	return wb.writeUint(name, bits, uint64(v), wb.order)
}

func (wb *WriteBuffer) WriteUint16(name string, bits int, v uint16, order ...ByteOrder) error {
	return wb.writeUint(name, bits, uint64(v), pickOrder(wb.order, order))
}

func (wb *WriteBuffer) WriteUint32(name string, bits int, v uint32, order ...ByteOrder) error {
	return wb.writeUint(name, bits, uint64(v), pickOrder(wb.order, order))
}

func (wb *WriteBuffer) WriteUint64(name string, bits int, v uint64, order ...ByteOrder) error {
	return wb.writeUint(name, bits, v, pickOrder(wb.order, order))
}

// WriteInt writes the low bits of v in two's complement.
func (wb *WriteBuffer) WriteInt(name string, bits int, v int64, order ...ByteOrder) error {
	u := uint64(v)
	if bits < 64 {
		u &= (1 << bits) - 1
	}
	return wb.writeUint(name, bits, u, pickOrder(wb.order, order))
}

func (wb *WriteBuffer) WriteFloat32(name string, v float32, order ...ByteOrder) error {
	return wb.writeUint(name, 32, uint64(math.Float32bits(v)), pickOrder(wb.order, order))
}

func (wb *WriteBuffer) WriteFloat64(name string, v float64, order ...ByteOrder) error {
	return wb.writeUint(name, 64, math.Float64bits(v), pickOrder(wb.order, order))
}

// WriteBytes writes raw bytes. Byte order does not apply.
func (wb *WriteBuffer) WriteBytes(name string, b []byte) error {
	if wb.pos+len(b)*8 > len(wb.data)*8 {
		return wb.fail(name, ErrBufferOverflow)
	}
	if wb.pos%8 == 0 {
		copy(wb.data[wb.pos/8:], b)
		wb.pos += len(b) * 8
		return nil
	}
	for _, x := range b {
		if err := wb.writeUint(name, 8, uint64(x), BigEndian); err != nil {
			return err
		}
	}
	return nil
}

// WriteString writes s into a fixed field of bits length, NUL padded.
func (wb *WriteBuffer) WriteString(name string, bits int, s string) error {
	n := bits / 8
	if len(s) > n {
		return wb.fail(name, fmt.Errorf("%w: string of %d bytes exceeds %d", ErrInvalidValue, len(s), n))
	}
	b := make([]byte, n)
	copy(b, s)
	return wb.WriteBytes(name, b)
}

// WriteManual runs fn inside a context named name.
func (wb *WriteBuffer) WriteManual(name string, fn func(*WriteBuffer) error) error {
	wb.PushContext(name)
	if err := fn(wb); err != nil {
		return err
	}
	wb.PopContext(name)
	return nil
}

// WriteArray writes every element of seq with write, inside a context named name.
func WriteArray[T any](wb *WriteBuffer, name string, seq []T, write func(*WriteBuffer, T) error) error {
	wb.PushContext(name)
	for _, v := range seq {
		if err := write(wb, v); err != nil {
			return err
		}
	}
	wb.PopContext(name)
	return nil
}
