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
	"strings"
)

// ModbusDataType is the interpretation of register or coil data
type ModbusDataType uint8

const (
	ModbusBOOL   ModbusDataType = 1
	ModbusBYTE   ModbusDataType = 2
	ModbusWORD   ModbusDataType = 3
	ModbusDWORD  ModbusDataType = 4
	ModbusLWORD  ModbusDataType = 5
	ModbusSINT   ModbusDataType = 6
	ModbusINT    ModbusDataType = 7
	ModbusDINT   ModbusDataType = 8
	ModbusLINT   ModbusDataType = 9
	ModbusUSINT  ModbusDataType = 10
	ModbusUINT   ModbusDataType = 11
	ModbusUDINT  ModbusDataType = 12
	ModbusULINT  ModbusDataType = 13
	ModbusREAL   ModbusDataType = 14
	ModbusLREAL  ModbusDataType = 15
	ModbusCHAR   ModbusDataType = 24
	ModbusWCHAR  ModbusDataType = 25
	ModbusSTRING ModbusDataType = 26
)

var modbusDataTypeNames = map[ModbusDataType]string{
	ModbusBOOL:   "BOOL",
	ModbusBYTE:   "BYTE",
	ModbusWORD:   "WORD",
	ModbusDWORD:  "DWORD",
	ModbusLWORD:  "LWORD",
	ModbusSINT:   "SINT",
	ModbusINT:    "INT",
	ModbusDINT:   "DINT",
	ModbusLINT:   "LINT",
	ModbusUSINT:  "USINT",
	ModbusUINT:   "UINT",
	ModbusUDINT:  "UDINT",
	ModbusULINT:  "ULINT",
	ModbusREAL:   "REAL",
	ModbusLREAL:  "LREAL",
	ModbusCHAR:   "CHAR",
	ModbusWCHAR:  "WCHAR",
	ModbusSTRING: "STRING",
}

func (t ModbusDataType) String() string {
	if name, ok := modbusDataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("datatype(%d)", t)
}

// ParseModbusDataType parses an upper or lower case type name
func ParseModbusDataType(s string) (ModbusDataType, bool) {
	s = strings.ToUpper(s)
	for t, name := range modbusDataTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// elementSize is the number of bytes one element occupies in a register
// area. Single byte types pack two per register.
func (t ModbusDataType) elementSize() int {
	switch t {
	case ModbusBYTE, ModbusSINT, ModbusUSINT, ModbusCHAR, ModbusSTRING:
		return 1
	case ModbusBOOL, ModbusWORD, ModbusINT, ModbusUINT, ModbusWCHAR:
		return 2
	case ModbusDWORD, ModbusDINT, ModbusUDINT, ModbusREAL:
		return 4
	case ModbusLWORD, ModbusLINT, ModbusULINT, ModbusLREAL:
		return 8
	}
	return 0
}

// RegisterCount returns the number of 16-bit registers quantity elements
// of t occupy.
func RegisterCount(t ModbusDataType, quantity int) int {
	n := t.elementSize() * quantity
	if quantity == 1 && t.elementSize() == 1 && t != ModbusSTRING && t != ModbusCHAR {
		n = 2
	}
	return (n + 1) / 2
}

// UmasDataType is the type code of a UMAS variable
type UmasDataType uint8

const (
	UmasBOOL   UmasDataType = 1
	UmasINT    UmasDataType = 4
	UmasUINT   UmasDataType = 5
	UmasDINT   UmasDataType = 6
	UmasUDINT  UmasDataType = 7
	UmasREAL   UmasDataType = 8
	UmasSTRING UmasDataType = 9
	UmasTIME   UmasDataType = 10
	UmasDATE   UmasDataType = 14
	UmasTOD    UmasDataType = 15
	UmasDT     UmasDataType = 16
	UmasBYTE   UmasDataType = 21
	UmasWORD   UmasDataType = 22
	UmasDWORD  UmasDataType = 23
	UmasEBOOL  UmasDataType = 25
)

var umasDataTypeNames = map[UmasDataType]string{
	UmasBOOL:   "BOOL",
	UmasINT:    "INT",
	UmasUINT:   "UINT",
	UmasDINT:   "DINT",
	UmasUDINT:  "UDINT",
	UmasREAL:   "REAL",
	UmasSTRING: "STRING",
	UmasTIME:   "TIME",
	UmasDATE:   "DATE",
	UmasTOD:    "TOD",
	UmasDT:     "DT",
	UmasBYTE:   "BYTE",
	UmasWORD:   "WORD",
	UmasDWORD:  "DWORD",
	UmasEBOOL:  "EBOOL",
}

func (t UmasDataType) String() string {
	if name, ok := umasDataTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("umas-datatype(%d)", t)
}

// ParseUmasDataType parses an upper case type name
func ParseUmasDataType(s string) (UmasDataType, bool) {
	for t, name := range umasDataTypeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// Size is the number of bytes one element occupies. STRING is counted per
// character.
func (t UmasDataType) Size() int {
	switch t {
	case UmasBOOL, UmasEBOOL, UmasBYTE, UmasSTRING:
		return 1
	case UmasINT, UmasUINT, UmasWORD:
		return 2
	case UmasDINT, UmasUDINT, UmasDWORD, UmasREAL, UmasTIME, UmasDATE, UmasTOD:
		return 4
	case UmasDT:
		return 8
	}
	return 0
}

// RequestSize is the data size index quoted in variable requests.
func (t UmasDataType) RequestSize() uint8 {
	switch t.Size() {
	case 1:
		return 1
	case 2:
		return 2
	case 4:
		return 3
	case 8:
		return 4
	}
	return 0
}

func umasDataSizeForIndex(index uint8) int {
	switch index {
	case 1:
		return 1
	case 2:
		return 2
	case 3:
		return 4
	case 4:
		return 8
	}
	return 0
}
