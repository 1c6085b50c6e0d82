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
	"errors"
	"testing"

	"gotest.tools/v3/assert"
)

func TestByteOrders(t *testing.T) {
	tests := []struct {
		order ByteOrder
		want  []byte
	}{
		{BigEndian, []byte{0x01, 0x02, 0x03, 0x04}},
		{LittleEndian, []byte{0x04, 0x03, 0x02, 0x01}},
		{BigEndianByteSwap, []byte{0x02, 0x01, 0x04, 0x03}},
		{LittleEndianByteSwap, []byte{0x03, 0x04, 0x01, 0x02}},
	}
	for _, tt := range tests {
		t.Run(tt.order.String(), func(t *testing.T) {
			wb := NewWriteBuffer(4, tt.order)
			assert.NilError(t, wb.WriteUint32("value", 32, 0x01020304))
			out, err := wb.Finish()
			assert.NilError(t, err)
			assert.DeepEqual(t, out, tt.want)

			rb := NewReadBuffer(out, tt.order)
			v, err := rb.ReadUint32("value", 32)
			assert.NilError(t, err)
			assert.Equal(t, v, uint32(0x01020304))
			assert.Assert(t, !rb.HasMore(1))
		})
	}
}

func TestParseByteOrder(t *testing.T) {
	for _, s := range []string{"ABCD", "big-endian", "be"} {
		o, err := ParseByteOrder(s)
		assert.NilError(t, err)
		assert.Equal(t, o, BigEndian)
	}
	o, err := ParseByteOrder("cdab")
	assert.NilError(t, err)
	assert.Equal(t, o, LittleEndianByteSwap)

	_, err = ParseByteOrder("middle")
	assert.Assert(t, errors.Is(err, ErrInvalidValue))
}

func TestByteOrderOverride(t *testing.T) {
	wb := NewWriteBuffer(4, BigEndian)
	assert.NilError(t, wb.WriteUint16("a", 16, 0x1234))
	assert.NilError(t, wb.WriteUint16("b", 16, 0x1234, LittleEndian))
	out, err := wb.Finish()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x12, 0x34, 0x34, 0x12})
}

func TestSubByteFields(t *testing.T) {
	wb := NewWriteBuffer(2, BigEndian)
	assert.NilError(t, wb.WriteBit("flag", true))
	assert.NilError(t, wb.WriteUint8("level", 7, 0x03))
	assert.NilError(t, wb.WriteUint8("next", 8, 0xAB))
	out, err := wb.Finish()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x83, 0xAB})

	rb := NewReadBuffer(out, BigEndian)
	flag, err := rb.ReadBit("flag")
	assert.NilError(t, err)
	assert.Assert(t, flag)
	level, err := rb.ReadUint8("level", 7)
	assert.NilError(t, err)
	assert.Equal(t, level, uint8(3))
	assert.Equal(t, rb.Pos(), 8)
}

func TestSignedValues(t *testing.T) {
	wb := NewWriteBuffer(3, BigEndian)
	assert.NilError(t, wb.WriteInt("a", 16, -2))
	assert.NilError(t, wb.WriteInt("b", 8, -128))
	out, err := wb.Finish()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0xFF, 0xFE, 0x80})

	rb := NewReadBuffer(out, BigEndian)
	a, err := rb.ReadInt("a", 16)
	assert.NilError(t, err)
	assert.Equal(t, a, int64(-2))
	b, err := rb.ReadInt("b", 8)
	assert.NilError(t, err)
	assert.Equal(t, b, int64(-128))
}

func TestFloats(t *testing.T) {
	wb := NewWriteBuffer(4, BigEndian)
	assert.NilError(t, wb.WriteFloat32("value", 1.5))
	out, err := wb.Finish()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x3F, 0xC0, 0x00, 0x00})

	v, err := NewReadBuffer(out, BigEndian).ReadFloat32("value")
	assert.NilError(t, err)
	assert.Equal(t, v, float32(1.5))
}

func TestReadUnderflow(t *testing.T) {
	rb := NewReadBuffer([]byte{0x01}, BigEndian)
	rb.PushContext("Outer")
	_, err := rb.ReadUint16("value", 16)
	assert.Assert(t, errors.Is(err, ErrBufferUnderflow))

	var codecErr *CodecError
	assert.Assert(t, errors.As(err, &codecErr))
	assert.Equal(t, codecErr.Context, "Outer")
	assert.Equal(t, codecErr.Field, "value")
}

func TestWriteOverflow(t *testing.T) {
	wb := NewWriteBuffer(1, BigEndian)
	err := wb.WriteUint16("value", 16, 1)
	assert.Assert(t, errors.Is(err, ErrBufferOverflow))

	err = wb.WriteBytes("raw", []byte{1, 2})
	assert.Assert(t, errors.Is(err, ErrBufferOverflow))
}

func TestWriteRejectsValuesWiderThanField(t *testing.T) {
	wb := NewWriteBuffer(2, BigEndian)
	wb.PushContext("Outer")
	err := wb.WriteUint64("byteCount", 8, 256)
	assert.Assert(t, errors.Is(err, ErrInvalidValue))
	var codecErr *CodecError
	assert.Assert(t, errors.As(err, &codecErr))
	assert.Equal(t, codecErr.Field, "byteCount")
	assert.Equal(t, wb.Pos(), 0)

	assert.NilError(t, wb.WriteBit("flag", false))
	err = wb.WriteUint8("level", 7, 0x81)
	assert.Assert(t, errors.Is(err, ErrInvalidValue))
	assert.NilError(t, wb.WriteUint8("level", 7, 0x7F))
	assert.DeepEqual(t, wb.Bytes()[:1], []byte{0x7F})
}

func TestFinishChecksLength(t *testing.T) {
	wb := NewWriteBuffer(2, BigEndian)
	assert.NilError(t, wb.WriteUint8("value", 8, 1))
	_, err := wb.Finish()
	assert.Assert(t, errors.Is(err, ErrLengthMismatch))
}

func TestStrings(t *testing.T) {
	wb := NewWriteBuffer(6, BigEndian)
	assert.NilError(t, wb.WriteString("name", 48, "abc"))
	out, err := wb.Finish()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{'a', 'b', 'c', 0, 0, 0})

	s, err := NewReadBuffer(out, BigEndian).ReadString("name", 48)
	assert.NilError(t, err)
	assert.Equal(t, s, "abc")
}

func TestArrays(t *testing.T) {
	wb := NewWriteBuffer(6, BigEndian)
	err := WriteArray(wb, "values", []uint16{1, 2, 3}, func(wb *WriteBuffer, v uint16) error {
		return wb.WriteUint16("value", 16, v)
	})
	assert.NilError(t, err)
	out, err := wb.Finish()
	assert.NilError(t, err)

	rb := NewReadBuffer(out, BigEndian)
	values, err := ReadArray(rb, "values", 3, func(rb *ReadBuffer) (uint16, error) {
		return rb.ReadUint16("value", 16)
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, values, []uint16{1, 2, 3})
	assert.Equal(t, rb.Context(), "")
}

func TestUnbalancedContextPanics(t *testing.T) {
	defer func() {
		assert.Assert(t, recover() != nil)
	}()
	rb := NewReadBuffer(nil, BigEndian)
	rb.PushContext("A")
	rb.PopContext("B")
}
