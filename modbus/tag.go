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
	"regexp"
	"strconv"
)

// Area is a Modbus data table.
type Area uint8

const (
	AreaCoil Area = iota + 1
	AreaDiscreteInput
	AreaInputRegister
	AreaHoldingRegister
	AreaExtendedRegister
)

var areaNames = map[Area]string{
	AreaCoil:             "coil",
	AreaDiscreteInput:    "discrete-input",
	AreaInputRegister:    "input-register",
	AreaHoldingRegister:  "holding-register",
	AreaExtendedRegister: "extended-register",
}

func (a Area) String() string {
	if name, ok := areaNames[a]; ok {
		return name
	}
	return fmt.Sprintf("Area(%d)", uint8(a))
}

// IsBit reports whether the area holds single bits.
func (a Area) IsBit() bool {
	return a == AreaCoil || a == AreaDiscreteInput
}

// Writable reports whether the area accepts writes.
func (a Area) Writable() bool {
	return a == AreaCoil || a == AreaHoldingRegister || a == AreaExtendedRegister
}

// areaPrefixes maps the classic reference digit to its table.
var areaPrefixes = map[string]Area{
	"0": AreaCoil,
	"1": AreaDiscreteInput,
	"3": AreaInputRegister,
	"4": AreaHoldingRegister,
	"6": AreaExtendedRegister,
}

func areaByName(name string) (Area, bool) {
	for a, n := range areaNames {
		if n == name {
			return a, true
		}
	}
	return 0, false
}

// Addresses are 1-based in tag strings. The extended register area spans
// file records, see extendedRecord.
const (
	maxTableAddress    = 65536
	maxExtendedAddress = 655360
)

var modbusTagPattern = regexp.MustCompile(`^(?P<ref>` +
	`(?P<area>coil|discrete-input|input-register|holding-register|extended-register):(?P<address>[0-9]+)` +
	`|(?P<xarea>[01346])x(?P<xaddress>[0-9]{1,6})` +
	`|(?P<narea>[01346])(?P<naddress>[0-9]{4,5})` +
	`)(?:\[(?P<bquantity>[0-9]+)\])?(?::(?P<dataType>[A-Za-z]+))?(?::(?P<quantity>[0-9]+))?$`)

var umasTagPattern = regexp.MustCompile(
	`^(?P<name>[%a-zA-Z_.0-9]+)(\[(?P<index>[0-9]+)\])?(:(?P<dataType>[A-Z]+))?(:(?P<quantity>[0-9]+))?$`)

func namedGroups(re *regexp.Regexp, s string) (map[string]string, bool) {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil, false
	}
	groups := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" && m[i] != "" {
			groups[name] = m[i]
		}
	}
	return groups, true
}

// ModbusTag addresses a run of elements in one Modbus table.
type ModbusTag struct {
	// Name is the reference part of the address, without type or quantity.
	Name     string
	Area     Area
	Address  uint32 // zero-based
	Quantity int
	DataType ModbusDataType
}

// MatchModbusTag reports whether s is a valid Modbus tag address.
func MatchModbusTag(s string) bool {
	_, err := ParseModbusTag(s)
	return err == nil
}

// ParseModbusTag parses addresses such as "4x00001:INT:5", "4x00001[5]:INT",
// "holding-register:1:REAL" or "00010". Bit areas default to BOOL,
// register areas to INT; the quantity defaults to 1.
func ParseModbusTag(s string) (*ModbusTag, error) {
	g, ok := namedGroups(modbusTagPattern, s)
	if !ok {
		return nil, &FieldParseError{Address: s, Reason: "does not match the modbus address grammar"}
	}

	var area Area
	var digits string
	switch {
	case g["area"] != "":
		area, _ = areaByName(g["area"])
		digits = g["address"]
	case g["xarea"] != "":
		area = areaPrefixes[g["xarea"]]
		digits = g["xaddress"]
	default:
		area = areaPrefixes[g["narea"]]
		digits = g["naddress"]
	}

	addr, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return nil, &FieldParseError{Address: s, Reason: "bad address", Err: err}
	}
	limit := uint64(maxTableAddress)
	if area == AreaExtendedRegister {
		limit = maxExtendedAddress
	}
	if addr < 1 || addr > limit {
		return nil, &FieldParseError{Address: s, Reason: fmt.Sprintf("address %d outside 1..%d", addr, limit)}
	}

	tag := &ModbusTag{Name: g["ref"], Area: area, Address: uint32(addr - 1), Quantity: 1, DataType: ModbusINT}
	if area.IsBit() {
		tag.DataType = ModbusBOOL
	}
	if name := g["dataType"]; name != "" {
		dt, ok := ParseModbusDataType(name)
		if !ok {
			return nil, &FieldParseError{Address: s, Reason: "unknown data type " + name, Err: ErrUnsupportedDataType}
		}
		if area.IsBit() && dt != ModbusBOOL {
			return nil, &FieldParseError{Address: s, Reason: fmt.Sprintf("%s holds BOOL only", area), Err: ErrUnsupportedDataType}
		}
		tag.DataType = dt
	}
	q := g["quantity"]
	if bq := g["bquantity"]; bq != "" {
		if q != "" && q != bq {
			return nil, &FieldParseError{Address: s, Reason: "conflicting quantities"}
		}
		q = bq
	}
	if q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 {
			return nil, &FieldParseError{Address: s, Reason: "quantity must be at least 1", Err: err}
		}
		tag.Quantity = n
	}

	if area.IsBit() {
		if tag.Quantity > MaxReadBits {
			return nil, &FieldParseError{Address: s, Reason: fmt.Sprintf("at most %d bits per request", MaxReadBits)}
		}
	} else if tag.RegisterCount() > MaxReadRegisters {
		return nil, &FieldParseError{Address: s, Reason: fmt.Sprintf("at most %d registers per request", MaxReadRegisters)}
	}
	if area != AreaExtendedRegister && uint64(tag.Address)+uint64(tag.Size()) > maxTableAddress {
		return nil, &FieldParseError{Address: s, Reason: "range runs past the end of the table"}
	}
	return tag, nil
}

// RegisterCount returns the number of registers the tag spans.
func (t *ModbusTag) RegisterCount() int {
	return RegisterCount(t.DataType, t.Quantity)
}

// Size returns the number of table entries the tag spans.
func (t *ModbusTag) Size() int {
	if t.Area.IsBit() {
		return t.Quantity
	}
	return t.RegisterCount()
}

// extendedRecord maps an extended register address onto file records of
// 10000 registers each, starting at file 1.
func (t *ModbusTag) extendedRecord() (file, record uint16) {
	return uint16(t.Address/10000 + 1), uint16(t.Address % 10000)
}

func (t *ModbusTag) String() string {
	return fmt.Sprintf("%s:%d:%s:%d", t.Area, t.Address+1, t.DataType, t.Quantity)
}

// UmasTag addresses a named PLC variable, optionally one element of an
// array variable.
type UmasTag struct {
	Name         string
	ElementIndex *uint32
	DataType     UmasDataType
	Quantity     int
}

// MatchUmasTag reports whether s is a valid UMAS tag address.
func MatchUmasTag(s string) bool {
	_, err := ParseUmasTag(s)
	return err == nil
}

// ParseUmasTag parses addresses such as "TAG", "MOTOR.SPEED:REAL" or
// "TAG[3]:INT:5". The data type defaults to INT and the quantity to 1.
func ParseUmasTag(s string) (*UmasTag, error) {
	g, ok := namedGroups(umasTagPattern, s)
	if !ok {
		return nil, &FieldParseError{Address: s, Reason: "does not match the umas address grammar"}
	}
	tag := &UmasTag{Name: g["name"], DataType: UmasINT, Quantity: 1}
	if idx := g["index"]; idx != "" {
		n, err := strconv.ParseUint(idx, 10, 32)
		if err != nil {
			return nil, &FieldParseError{Address: s, Reason: "bad element index", Err: err}
		}
		i := uint32(n)
		tag.ElementIndex = &i
	}
	if name := g["dataType"]; name != "" {
		dt, ok := ParseUmasDataType(name)
		if !ok {
			return nil, &FieldParseError{Address: s, Reason: "unknown data type " + name, Err: ErrUnsupportedDataType}
		}
		tag.DataType = dt
	}
	if q := g["quantity"]; q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 1 || n > 0xFFFF {
			return nil, &FieldParseError{Address: s, Reason: "quantity must be within 1..65535", Err: err}
		}
		tag.Quantity = n
	}
	return tag, nil
}

func (t *UmasTag) String() string {
	s := t.Name
	if t.ElementIndex != nil {
		s += fmt.Sprintf("[%d]", *t.ElementIndex)
	}
	return fmt.Sprintf("%s:%s:%d", s, t.DataType, t.Quantity)
}
