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

func TestParseModbusTag(t *testing.T) {
	tests := []struct {
		address  string
		name     string
		area     Area
		addr     uint32
		dataType ModbusDataType
		quantity int
	}{
		{"4x00001:INT:5", "4x00001", AreaHoldingRegister, 0, ModbusINT, 5},
		{"4x00001[5]:INT", "4x00001", AreaHoldingRegister, 0, ModbusINT, 5},
		{"400010:REAL", "400010", AreaHoldingRegister, 9, ModbusREAL, 1},
		{"40010", "40010", AreaHoldingRegister, 9, ModbusINT, 1},
		{"00010", "00010", AreaCoil, 9, ModbusBOOL, 1},
		{"1x00003:BOOL:8", "1x00003", AreaDiscreteInput, 2, ModbusBOOL, 8},
		{"3x00100:udint", "3x00100", AreaInputRegister, 99, ModbusUDINT, 1},
		{"holding-register:1:LREAL:2", "holding-register:1", AreaHoldingRegister, 0, ModbusLREAL, 2},
		{"coil:65536", "coil:65536", AreaCoil, 65535, ModbusBOOL, 1},
		{"6x10001:INT", "6x10001", AreaExtendedRegister, 10000, ModbusINT, 1},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Assert(t, MatchModbusTag(tt.address))
			tag, err := ParseModbusTag(tt.address)
			assert.NilError(t, err)
			assert.Equal(t, tag.Name, tt.name)
			assert.Equal(t, tag.Area, tt.area)
			assert.Equal(t, tag.Address, tt.addr)
			assert.Equal(t, tag.DataType, tt.dataType)
			assert.Equal(t, tag.Quantity, tt.quantity)
		})
	}
}

func TestParseModbusTagErrors(t *testing.T) {
	tests := []struct {
		address string
		wantErr error
	}{
		{"", nil},
		{"4x", nil},
		{"4x00000", nil},
		{"5x00001", nil},
		{"4x00001:FLOAT", ErrUnsupportedDataType},
		{"0x00001:INT", ErrUnsupportedDataType},
		{"4x00001:INT:0", nil},
		{"4x00001:INT:200", nil},
		{"4x65536:DINT", nil},
		{"coil:0", nil},
		{"4x00001[2]:INT:3", nil},
	}
	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			assert.Assert(t, !MatchModbusTag(tt.address))
			_, err := ParseModbusTag(tt.address)
			var parseErr *FieldParseError
			assert.Assert(t, errors.As(err, &parseErr), "got %v", err)
			assert.Equal(t, parseErr.Address, tt.address)
			if tt.wantErr != nil {
				assert.Assert(t, errors.Is(err, tt.wantErr))
			}
		})
	}
}

func TestModbusTagSize(t *testing.T) {
	tag, err := ParseModbusTag("4x00001:REAL:3")
	assert.NilError(t, err)
	assert.Equal(t, tag.RegisterCount(), 6)
	assert.Equal(t, tag.Size(), 6)
	assert.Equal(t, tag.String(), "holding-register:1:REAL:3")

	tag, err = ParseModbusTag("4x00001:BYTE")
	assert.NilError(t, err)
	assert.Equal(t, tag.RegisterCount(), 1)

	tag, err = ParseModbusTag("4x00001:STRING:5")
	assert.NilError(t, err)
	assert.Equal(t, tag.RegisterCount(), 3)

	tag, err = ParseModbusTag("0x00001:BOOL:20")
	assert.NilError(t, err)
	assert.Equal(t, tag.Size(), 20)
}

func TestExtendedRecord(t *testing.T) {
	tag, err := ParseModbusTag("6x00001")
	assert.NilError(t, err)
	file, record := tag.extendedRecord()
	assert.Equal(t, file, uint16(1))
	assert.Equal(t, record, uint16(0))

	tag, err = ParseModbusTag("6x25001")
	assert.NilError(t, err)
	file, record = tag.extendedRecord()
	assert.Equal(t, file, uint16(3))
	assert.Equal(t, record, uint16(5000))
}

func TestParseUmasTag(t *testing.T) {
	tag, err := ParseUmasTag("TAG")
	assert.NilError(t, err)
	assert.Equal(t, tag.Name, "TAG")
	assert.Equal(t, tag.DataType, UmasINT)
	assert.Equal(t, tag.Quantity, 1)
	assert.Assert(t, tag.ElementIndex == nil)

	tag, err = ParseUmasTag("MOTOR.SPEED[3]:REAL:2")
	assert.NilError(t, err)
	assert.Equal(t, tag.Name, "MOTOR.SPEED")
	assert.Assert(t, tag.ElementIndex != nil)
	assert.Equal(t, *tag.ElementIndex, uint32(3))
	assert.Equal(t, tag.DataType, UmasREAL)
	assert.Equal(t, tag.Quantity, 2)
	assert.Equal(t, tag.String(), "MOTOR.SPEED[3]:REAL:2")

	tag, err = ParseUmasTag("%MW100:UINT")
	assert.NilError(t, err)
	assert.Equal(t, tag.Name, "%MW100")
	assert.Equal(t, tag.DataType, UmasUINT)
}

func TestParseUmasTagErrors(t *testing.T) {
	for _, address := range []string{"", ":INT", "TAG:FLOAT", "TAG[x]", "TAG:INT:0", "TAG:int", "TAG WITH SPACE"} {
		t.Run(address, func(t *testing.T) {
			assert.Assert(t, !MatchUmasTag(address))
			_, err := ParseUmasTag(address)
			var parseErr *FieldParseError
			assert.Assert(t, errors.As(err, &parseErr))
		})
	}
}

func TestParseUmasTagIsDeterministic(t *testing.T) {
	a, err := ParseUmasTag("ARR[1]:DINT:4")
	assert.NilError(t, err)
	b, err := ParseUmasTag("ARR[1]:DINT:4")
	assert.NilError(t, err)
	assert.DeepEqual(t, a, b)
}
