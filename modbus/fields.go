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
	"bytes"
	"fmt"
)

// A message describes its wire shape once, as a layout: an ordered list of
// fields bound to the message's own storage. Length computation,
// serialization and parsing all walk the same layout, so the three cannot
// drift apart.
type field interface {
	bits() int
	encode(wb *WriteBuffer) error
	decode(rb *ReadBuffer) error
}

type layout []field

func (l layout) bits() int {
	n := 0
	for _, f := range l {
		n += f.bits()
	}
	return n
}

func (l layout) encode(wb *WriteBuffer, name string) error {
	wb.PushContext(name)
	for _, f := range l {
		if err := f.encode(wb); err != nil {
			return err
		}
	}
	wb.PopContext(name)
	return nil
}

func (l layout) decode(rb *ReadBuffer, name string) error {
	rb.PushContext(name)
	for _, f := range l {
		if err := f.decode(rb); err != nil {
			return err
		}
	}
	rb.PopContext(name)
	return nil
}

type unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// uintField is an unsigned integer of width bits.
type uintField[T unsigned] struct {
	name  string
	width int
	p     *T
}

func uintF[T unsigned](name string, width int, p *T) field {
	return uintField[T]{name: name, width: width, p: p}
}

func (f uintField[T]) bits() int { return f.width }

func (f uintField[T]) encode(wb *WriteBuffer) error {
	return wb.WriteUint64(f.name, f.width, uint64(*f.p))
}

func (f uintField[T]) decode(rb *ReadBuffer) error {
	v, err := rb.ReadUint64(f.name, f.width)
	*f.p = T(v)
	return err
}

type bitField struct {
	name string
	p    *bool
}

func bitF(name string, p *bool) field { return bitField{name: name, p: p} }

func (f bitField) bits() int                    { return 1 }
func (f bitField) encode(wb *WriteBuffer) error { return wb.WriteBit(f.name, *f.p) }

func (f bitField) decode(rb *ReadBuffer) (err error) {
	*f.p, err = rb.ReadBit(f.name)
	return err
}

// constField carries a fixed value; parsing any other value fails.
type constField struct {
	name  string
	width int
	value uint64
}

func constF(name string, width int, value uint64) field {
	return constField{name: name, width: width, value: value}
}

func (f constField) bits() int { return f.width }

func (f constField) encode(wb *WriteBuffer) error {
	return wb.WriteUint64(f.name, f.width, f.value)
}

func (f constField) decode(rb *ReadBuffer) error {
	v, err := rb.ReadUint64(f.name, f.width)
	if err != nil {
		return err
	}
	if v != f.value {
		return &CodecError{
			Context: rb.Context(),
			Field:   f.name,
			Err:     fmt.Errorf("%w: got 0x%X, want 0x%X", ErrConstMismatch, v, f.value),
		}
	}
	return nil
}

// implicitField is computed from sibling fields when encoding. When decoding
// the read value lands in store, where later fields of the same layout can
// use it as a count or length.
type implicitField struct {
	name    string
	width   int
	compute func() uint64
	store   *uint64
}

func implicitF(name string, width int, compute func() uint64, store *uint64) field {
	return implicitField{name: name, width: width, compute: compute, store: store}
}

func (f implicitField) bits() int { return f.width }

func (f implicitField) encode(wb *WriteBuffer) error {
	return wb.WriteUint64(f.name, f.width, f.compute())
}

func (f implicitField) decode(rb *ReadBuffer) error {
	v, err := rb.ReadUint64(f.name, f.width)
	if f.store != nil {
		*f.store = v
	}
	return err
}

// bytesField is a raw byte array. The count only matters when decoding.
type bytesField struct {
	name  string
	p     *[]byte
	count func() int
}

func bytesF(name string, p *[]byte, count func() int) field {
	return bytesField{name: name, p: p, count: count}
}

func (f bytesField) bits() int                    { return len(*f.p) * 8 }
func (f bytesField) encode(wb *WriteBuffer) error { return wb.WriteBytes(f.name, *f.p) }

func (f bytesField) decode(rb *ReadBuffer) (err error) {
	*f.p, err = rb.ReadBytes(f.name, f.count())
	return err
}

// stringField is a string of count bytes with no terminator.
type stringField struct {
	name  string
	p     *string
	count func() int
}

func stringF(name string, p *string, count func() int) field {
	return stringField{name: name, p: p, count: count}
}

func (f stringField) bits() int                    { return len(*f.p) * 8 }
func (f stringField) encode(wb *WriteBuffer) error { return wb.WriteBytes(f.name, []byte(*f.p)) }

func (f stringField) decode(rb *ReadBuffer) error {
	b, err := rb.ReadBytes(f.name, f.count())
	*f.p = string(b)
	return err
}

// cstringField is a NUL-terminated string occupying count bytes on the
// wire, terminator included.
type cstringField struct {
	name  string
	p     *string
	count func() int
}

func cstringF(name string, p *string, count func() int) field {
	return cstringField{name: name, p: p, count: count}
}

func (f cstringField) bits() int { return (len(*f.p) + 1) * 8 }

func (f cstringField) encode(wb *WriteBuffer) error {
	b := append([]byte(*f.p), 0)
	return wb.WriteBytes(f.name, b)
}

func (f cstringField) decode(rb *ReadBuffer) error {
	b, err := rb.ReadBytes(f.name, f.count())
	if err != nil {
		return err
	}
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	*f.p = string(b)
	return nil
}

// uintsField is an array of fixed-width unsigned integers.
type uintsField[T unsigned] struct {
	name  string
	width int
	p     *[]T
	count func() int
}

func uintsF[T unsigned](name string, width int, p *[]T, count func() int) field {
	return uintsField[T]{name: name, width: width, p: p, count: count}
}

func (f uintsField[T]) bits() int { return len(*f.p) * f.width }

func (f uintsField[T]) encode(wb *WriteBuffer) error {
	return WriteArray(wb, f.name, *f.p, func(wb *WriteBuffer, v T) error {
		return wb.WriteUint64("value", f.width, uint64(v))
	})
}

func (f uintsField[T]) decode(rb *ReadBuffer) (err error) {
	*f.p, err = ReadArray(rb, f.name, f.count(), func(rb *ReadBuffer) (T, error) {
		v, err := rb.ReadUint64("value", f.width)
		return T(v), err
	})
	return err
}

// listField is an array of nested structures, each with its own layout.
// Decoding stops after count elements, or once byteLength bytes have been
// consumed when count is nil.
type listField[T any] struct {
	name       string
	p          *[]T
	elem       func(*T) layout
	count      func() int
	byteLength func() int
}

func listF[T any](name string, p *[]T, elem func(*T) layout, count func() int) field {
	return listField[T]{name: name, p: p, elem: elem, count: count}
}

func listBytesF[T any](name string, p *[]T, elem func(*T) layout, byteLength func() int) field {
	return listField[T]{name: name, p: p, elem: elem, byteLength: byteLength}
}

func (f listField[T]) bits() int {
	n := 0
	for i := range *f.p {
		n += f.elem(&(*f.p)[i]).bits()
	}
	return n
}

func (f listField[T]) encode(wb *WriteBuffer) error {
	wb.PushContext(f.name)
	for i := range *f.p {
		if err := f.elem(&(*f.p)[i]).encode(wb, "item"); err != nil {
			return err
		}
	}
	wb.PopContext(f.name)
	return nil
}

func (f listField[T]) decode(rb *ReadBuffer) error {
	rb.PushContext(f.name)
	var out []T
	if f.count != nil {
		n := f.count()
		out = make([]T, 0, n)
		for i := 0; i < n; i++ {
			var v T
			if err := f.elem(&v).decode(rb, "item"); err != nil {
				return err
			}
			out = append(out, v)
		}
	} else {
		end := rb.Pos() + f.byteLength()*8
		if end > rb.Len() {
			return &CodecError{Context: rb.Context(), Field: f.name, Err: ErrBufferUnderflow}
		}
		for rb.Pos() < end {
			var v T
			if err := f.elem(&v).decode(rb, "item"); err != nil {
				return err
			}
			out = append(out, v)
		}
		if rb.Pos() != end {
			return &CodecError{Context: rb.Context(), Field: f.name, Err: ErrLengthMismatch}
		}
	}
	*f.p = out
	rb.PopContext(f.name)
	return nil
}

// optionalField is present on the wire only while cond holds.
type optionalField struct {
	cond  func() bool
	inner field
}

func optionalF(cond func() bool, inner field) field {
	return optionalField{cond: cond, inner: inner}
}

func (f optionalField) bits() int {
	if !f.cond() {
		return 0
	}
	return f.inner.bits()
}

func (f optionalField) encode(wb *WriteBuffer) error {
	if !f.cond() {
		return nil
	}
	return f.inner.encode(wb)
}

func (f optionalField) decode(rb *ReadBuffer) error {
	if !f.cond() {
		return nil
	}
	return f.inner.decode(rb)
}

// manualField hands encoding and decoding to custom functions.
type manualField struct {
	size func() int
	enc  func(*WriteBuffer) error
	dec  func(*ReadBuffer) error
}

func manualF(size func() int, enc func(*WriteBuffer) error, dec func(*ReadBuffer) error) field {
	return manualField{size: size, enc: enc, dec: dec}
}

func (f manualField) bits() int                    { return f.size() }
func (f manualField) encode(wb *WriteBuffer) error { return f.enc(wb) }
func (f manualField) decode(rb *ReadBuffer) error  { return f.dec(rb) }

// orderedField switches the buffer's default byte order for a nested layout.
type orderedField struct {
	name  string
	order ByteOrder
	inner layout
}

func orderedF(name string, order ByteOrder, inner layout) field {
	return orderedField{name: name, order: order, inner: inner}
}

func (f orderedField) bits() int { return f.inner.bits() }

func (f orderedField) encode(wb *WriteBuffer) error {
	prev := wb.ByteOrder()
	wb.SetByteOrder(f.order)
	err := f.inner.encode(wb, f.name)
	wb.SetByteOrder(prev)
	return err
}

func (f orderedField) decode(rb *ReadBuffer) error {
	prev := rb.ByteOrder()
	rb.SetByteOrder(f.order)
	err := f.inner.decode(rb, f.name)
	rb.SetByteOrder(prev)
	return err
}

// nestedField embeds another layout under its own context name.
type nestedField struct {
	name  string
	inner func() layout
}

func nestedF(name string, inner func() layout) field {
	return nestedField{name: name, inner: inner}
}

func (f nestedField) bits() int                    { return f.inner().bits() }
func (f nestedField) encode(wb *WriteBuffer) error { return f.inner().encode(wb, f.name) }
func (f nestedField) decode(rb *ReadBuffer) error  { return f.inner().decode(rb, f.name) }

// encodeLayout serializes a layout into a buffer of exactly its computed size.
func encodeLayout(l layout, name string, order ByteOrder) ([]byte, error) {
	wb := NewWriteBuffer((l.bits()+7)/8, order)
	if err := l.encode(wb, name); err != nil {
		return nil, err
	}
	return wb.Finish()
}
