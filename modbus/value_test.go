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
	"time"

	"gotest.tools/v3/assert"
)

func TestCoils(t *testing.T) {
	v, err := DecodeCoils([]byte{0xCD, 0x01}, 10)
	assert.NilError(t, err)
	want := []interface{}{true, false, true, true, false, false, true, true, true, false}
	assert.DeepEqual(t, v, want)

	out, err := EncodeCoils(want, 10)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0xCD, 0x01})

	single, err := DecodeCoils([]byte{0x01}, 1)
	assert.NilError(t, err)
	assert.Equal(t, single, true)

	_, err = DecodeCoils([]byte{0x01}, 9)
	assert.Assert(t, errors.Is(err, ErrBufferUnderflow))
}

func TestRegisters(t *testing.T) {
	v, err := DecodeRegisters([]byte{0x00, 0x01, 0xFF, 0xFF, 0x00, 0x7B}, ModbusINT, 3, BigEndian)
	assert.NilError(t, err)
	assert.DeepEqual(t, v, []interface{}{int16(1), int16(-1), int16(123)})

	out, err := EncodeRegisters([]int{1, -1, 123}, ModbusINT, 3, BigEndian)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x00, 0x01, 0xFF, 0xFF, 0x00, 0x7B})
}

func TestRegistersWordOrder(t *testing.T) {
	out, err := EncodeRegisters(1.5, ModbusREAL, 1, LittleEndianByteSwap)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x00, 0x00, 0x3F, 0xC0})

	v, err := DecodeRegisters(out, ModbusREAL, 1, LittleEndianByteSwap)
	assert.NilError(t, err)
	assert.Equal(t, v, float32(1.5))
}

func TestRegistersSingleByteTypes(t *testing.T) {
	out, err := EncodeRegisters(uint8(7), ModbusBYTE, 1, BigEndian)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x00, 0x07})
	v, err := DecodeRegisters(out, ModbusBYTE, 1, BigEndian)
	assert.NilError(t, err)
	assert.Equal(t, v, uint8(7))

	out, err = EncodeRegisters([]int{1, 2, 3}, ModbusUSINT, 3, BigEndian)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x01, 0x02, 0x03, 0x00})

	v, err = DecodeRegisters([]byte{0xFF, 0x00}, ModbusSINT, 1, BigEndian)
	assert.NilError(t, err)
	assert.Equal(t, v, int8(0))
}

func TestRegistersStrings(t *testing.T) {
	out, err := EncodeRegisters("AB", ModbusSTRING, 4, BigEndian)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{'A', 'B', 0, 0})

	v, err := DecodeRegisters(out, ModbusSTRING, 4, BigEndian)
	assert.NilError(t, err)
	assert.Equal(t, v, "AB")

	out, err = EncodeRegisters("hé", ModbusWCHAR, 3, BigEndian)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x00, 'h', 0x00, 0xE9, 0x00, 0x00})
	v, err = DecodeRegisters(out, ModbusWCHAR, 3, BigEndian)
	assert.NilError(t, err)
	assert.Equal(t, v, "hé")

	_, err = EncodeRegisters("toolong", ModbusSTRING, 2, BigEndian)
	assert.Assert(t, errors.Is(err, ErrInvalidValue))
}

func TestRegistersInvalidValues(t *testing.T) {
	_, err := EncodeRegisters(70000, ModbusINT, 1, BigEndian)
	assert.Assert(t, errors.Is(err, ErrInvalidValue))

	_, err = EncodeRegisters(-1, ModbusUINT, 1, BigEndian)
	assert.Assert(t, errors.Is(err, ErrInvalidValue))

	_, err = EncodeRegisters([]int{1, 2}, ModbusINT, 3, BigEndian)
	assert.Assert(t, errors.Is(err, ErrInvalidValue))

	_, err = EncodeRegisters("abc", ModbusINT, 1, BigEndian)
	assert.Assert(t, errors.Is(err, ErrInvalidValue))

	out, err := EncodeRegisters("0x10", ModbusUINT, 1, BigEndian)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x00, 0x10})
}

func TestUmasValues(t *testing.T) {
	out, err := EncodeUmasValue(int16(0x1234), UmasINT, 1)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x34, 0x12})

	v, err := DecodeUmasValue([]byte{0xFE, 0xFF, 0xFF, 0xFF}, UmasDINT, 1)
	assert.NilError(t, err)
	assert.Equal(t, v, int32(-2))

	out, err = EncodeUmasValue([]bool{true, false, true}, UmasEBOOL, 3)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x01, 0x00, 0x01})

	out, err = EncodeUmasValue(1500*time.Millisecond, UmasTIME, 1)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0xDC, 0x05, 0x00, 0x00})
	v, err = DecodeUmasValue(out, UmasTIME, 1)
	assert.NilError(t, err)
	assert.Equal(t, v, 1500*time.Millisecond)

	_, err = EncodeUmasValue(1, UmasDataType(99), 1)
	assert.Assert(t, errors.Is(err, ErrUnsupportedDataType))
}

func TestUmasDates(t *testing.T) {
	date := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)
	out, err := EncodeUmasValue(date, UmasDATE, 1)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x15, 0x03, 0x24, 0x20})

	v, err := DecodeUmasValue(out, UmasDATE, 1)
	assert.NilError(t, err)
	assert.Assert(t, v.(time.Time).Equal(date))

	dt := time.Date(2023, time.December, 31, 23, 59, 58, 0, time.UTC)
	out, err = EncodeUmasValue(dt, UmasDT, 1)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x00, 0x58, 0x59, 0x23, 0x31, 0x12, 0x23, 0x20})

	v, err = DecodeUmasValue(out, UmasDT, 1)
	assert.NilError(t, err)
	assert.Assert(t, v.(time.Time).Equal(dt))
}

func TestUmasStrings(t *testing.T) {
	out, err := EncodeUmasValue("PUMP", UmasSTRING, 6)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{'P', 'U', 'M', 'P', 0, 0})

	v, err := DecodeUmasValue(out, UmasSTRING, 6)
	assert.NilError(t, err)
	assert.Equal(t, v, "PUMP")
}

func TestDataTypeNames(t *testing.T) {
	dt, ok := ParseModbusDataType("real")
	assert.Assert(t, ok)
	assert.Equal(t, dt, ModbusREAL)

	_, ok = ParseUmasDataType("real")
	assert.Assert(t, !ok)

	assert.Equal(t, UmasDT.Size(), 8)
	assert.Equal(t, UmasDT.RequestSize(), uint8(4))
	assert.Equal(t, UmasINT.RequestSize(), uint8(2))
}
