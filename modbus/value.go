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
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"
)

// DecodeCoils unpacks quantity bits, least significant bit first. A single
// coil decodes to bool, more to []interface{} of bool.
func DecodeCoils(data []byte, quantity int) (interface{}, error) {
	if len(data)*8 < quantity {
		return nil, fmt.Errorf("%w: %d coils in %d bytes", ErrBufferUnderflow, quantity, len(data))
	}
	values := make([]interface{}, quantity)
	for i := 0; i < quantity; i++ {
		values[i] = data[i/8]&(1<<uint(i%8)) != 0
	}
	if quantity == 1 {
		return values[0], nil
	}
	return values, nil
}

// EncodeCoils packs coil states, least significant bit first.
func EncodeCoils(value interface{}, quantity int) ([]byte, error) {
	elems, err := elements(value, quantity)
	if err != nil {
		return nil, err
	}
	out := make([]byte, (quantity+7)/8)
	for i, e := range elems {
		on, err := toBool(e)
		if err != nil {
			return nil, err
		}
		if on {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out, nil
}

// DecodeRegisters interprets register data as quantity elements of t.
func DecodeRegisters(data []byte, t ModbusDataType, quantity int, order ByteOrder) (interface{}, error) {
	rb := NewReadBuffer(data, order)
	switch t {
	case ModbusCHAR, ModbusSTRING:
		return rb.ReadString("value", quantity*8)
	case ModbusWCHAR:
		units, err := ReadArray(rb, "value", quantity, func(rb *ReadBuffer) (uint16, error) {
			return rb.ReadUint16("char", 16)
		})
		if err != nil {
			return nil, err
		}
		return strings.TrimRight(string(utf16.Decode(units)), "\x00"), nil
	}
	if t.elementSize() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, t)
	}
	if quantity == 1 {
		return readRegisterElement(rb, t, true)
	}
	return ReadArray(rb, "value", quantity, func(rb *ReadBuffer) (interface{}, error) {
		return readRegisterElement(rb, t, false)
	})
}

func readRegisterElement(rb *ReadBuffer, t ModbusDataType, scalar bool) (interface{}, error) {
	switch t {
	case ModbusBOOL:
		v, err := rb.ReadUint16("value", 16)
		return v&1 == 1, err
	case ModbusBYTE, ModbusUSINT, ModbusSINT:
		var v uint8
		if scalar {
			w, err := rb.ReadUint16("value", 16)
			if err != nil {
				return nil, err
			}
			v = uint8(w)
		} else {
			b, err := rb.ReadUint8("value", 8)
			if err != nil {
				return nil, err
			}
			v = b
		}
		if t == ModbusSINT {
			return int8(v), nil
		}
		return v, nil
	case ModbusWORD, ModbusUINT:
		return rb.ReadUint16("value", 16)
	case ModbusINT:
		v, err := rb.ReadInt("value", 16)
		return int16(v), err
	case ModbusDWORD, ModbusUDINT:
		return rb.ReadUint32("value", 32)
	case ModbusDINT:
		v, err := rb.ReadInt("value", 32)
		return int32(v), err
	case ModbusLWORD, ModbusULINT:
		return rb.ReadUint64("value", 64)
	case ModbusLINT:
		return rb.ReadInt("value", 64)
	case ModbusREAL:
		return rb.ReadFloat32("value")
	case ModbusLREAL:
		return rb.ReadFloat64("value")
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, t)
}

// EncodeRegisters is the inverse of DecodeRegisters.
func EncodeRegisters(value interface{}, t ModbusDataType, quantity int, order ByteOrder) ([]byte, error) {
	wb := NewWriteBuffer(RegisterCount(t, quantity)*2, order)
	switch t {
	case ModbusCHAR, ModbusSTRING:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a string, got %T", ErrInvalidValue, t, value)
		}
		if err := wb.WriteString("value", len(wb.Bytes())*8, s); err != nil {
			return nil, err
		}
		return wb.Finish()
	case ModbusWCHAR:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a string, got %T", ErrInvalidValue, t, value)
		}
		units := utf16.Encode([]rune(s))
		if len(units) > quantity {
			return nil, fmt.Errorf("%w: %d characters exceed %d", ErrInvalidValue, len(units), quantity)
		}
		units = append(units, make([]uint16, quantity-len(units))...)
		if err := WriteArray(wb, "value", units, func(wb *WriteBuffer, u uint16) error {
			return wb.WriteUint16("char", 16, u)
		}); err != nil {
			return nil, err
		}
		return wb.Finish()
	}
	if t.elementSize() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, t)
	}
	elems, err := elements(value, quantity)
	if err != nil {
		return nil, err
	}
	scalar := quantity == 1
	if err := WriteArray(wb, "value", elems, func(wb *WriteBuffer, v interface{}) error {
		return writeRegisterElement(wb, t, v, scalar)
	}); err != nil {
		return nil, err
	}
	// odd number of packed bytes
	if rest := len(wb.Bytes())*8 - wb.Pos(); rest > 0 {
		if err := wb.WriteUint8("padding", rest, 0); err != nil {
			return nil, err
		}
	}
	return wb.Finish()
}

func writeRegisterElement(wb *WriteBuffer, t ModbusDataType, v interface{}, scalar bool) error {
	switch t {
	case ModbusBOOL:
		on, err := toBool(v)
		if err != nil {
			return err
		}
		var w uint16
		if on {
			w = 1
		}
		return wb.WriteUint16("value", 16, w)
	case ModbusREAL, ModbusLREAL:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		if t == ModbusREAL {
			return wb.WriteFloat32("value", float32(f))
		}
		return wb.WriteFloat64("value", f)
	}
	n, err := toInt64(v)
	if err != nil {
		return err
	}
	size := t.elementSize()
	if err := checkRange(t, n); err != nil {
		return err
	}
	if size == 1 {
		if scalar {
			return wb.WriteUint16("value", 16, uint16(uint8(n)))
		}
		return wb.WriteUint8("value", 8, uint8(n))
	}
	return wb.WriteInt("value", size*8, n)
}

func checkRange(t ModbusDataType, n int64) error {
	var lo, hi int64
	switch t {
	case ModbusSINT:
		lo, hi = math.MinInt8, math.MaxInt8
	case ModbusBYTE, ModbusUSINT:
		lo, hi = 0, math.MaxUint8
	case ModbusINT:
		lo, hi = math.MinInt16, math.MaxInt16
	case ModbusWORD, ModbusUINT:
		lo, hi = 0, math.MaxUint16
	case ModbusDINT:
		lo, hi = math.MinInt32, math.MaxInt32
	case ModbusDWORD, ModbusUDINT:
		lo, hi = 0, math.MaxUint32
	default:
		return nil
	}
	if n < lo || n > hi {
		return fmt.Errorf("%w: %d out of range for %s", ErrInvalidValue, n, t)
	}
	return nil
}

// DecodeUmasValue interprets little-endian variable data as quantity
// elements of t.
func DecodeUmasValue(data []byte, t UmasDataType, quantity int) (interface{}, error) {
	rb := NewReadBuffer(data, LittleEndian)
	if t == UmasSTRING {
		return rb.ReadString("value", quantity*8)
	}
	if t.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, t)
	}
	if quantity == 1 {
		return readUmasElement(rb, t)
	}
	return ReadArray(rb, "value", quantity, func(rb *ReadBuffer) (interface{}, error) {
		return readUmasElement(rb, t)
	})
}

func readUmasElement(rb *ReadBuffer, t UmasDataType) (interface{}, error) {
	switch t {
	case UmasBOOL, UmasEBOOL:
		v, err := rb.ReadUint8("value", 8)
		return v&1 == 1, err
	case UmasBYTE:
		return rb.ReadUint8("value", 8)
	case UmasINT:
		v, err := rb.ReadInt("value", 16)
		return int16(v), err
	case UmasUINT, UmasWORD:
		return rb.ReadUint16("value", 16)
	case UmasDINT:
		v, err := rb.ReadInt("value", 32)
		return int32(v), err
	case UmasUDINT, UmasDWORD:
		return rb.ReadUint32("value", 32)
	case UmasREAL:
		return rb.ReadFloat32("value")
	case UmasTIME, UmasTOD:
		v, err := rb.ReadUint32("value", 32)
		return time.Duration(v) * time.Millisecond, err
	case UmasDATE:
		return readUmasDate(rb)
	case UmasDT:
		return readUmasDateTime(rb)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, t)
}

func readBCD(rb *ReadBuffer, name string, bits int) (int, error) {
	v, err := rb.ReadUint16(name, bits)
	if err != nil {
		return 0, err
	}
	n := 0
	for shift := bits - 4; shift >= 0; shift -= 4 {
		n = n*10 + int((v>>uint(shift))&0x0F)
	}
	return n, nil
}

func writeBCD(wb *WriteBuffer, name string, bits, n int) error {
	var v uint16
	for shift := 0; shift < bits; shift += 4 {
		v |= uint16(n%10) << uint(shift)
		n /= 10
	}
	return wb.WriteUint16(name, bits, v)
}

func readUmasDate(rb *ReadBuffer) (interface{}, error) {
	day, err := readBCD(rb, "day", 8)
	if err != nil {
		return nil, err
	}
	month, err := readBCD(rb, "month", 8)
	if err != nil {
		return nil, err
	}
	year, err := readBCD(rb, "year", 16)
	if err != nil {
		return nil, err
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
}

func readUmasDateTime(rb *ReadBuffer) (interface{}, error) {
	if _, err := rb.ReadUint8("unused", 8); err != nil {
		return nil, err
	}
	var parts [5]int
	for i, name := range []string{"seconds", "minutes", "hour", "day", "month"} {
		v, err := readBCD(rb, name, 8)
		if err != nil {
			return nil, err
		}
		parts[i] = v
	}
	year, err := readBCD(rb, "year", 16)
	if err != nil {
		return nil, err
	}
	return time.Date(year, time.Month(parts[4]), parts[3], parts[2], parts[1], parts[0], 0, time.UTC), nil
}

// EncodeUmasValue is the inverse of DecodeUmasValue.
func EncodeUmasValue(value interface{}, t UmasDataType, quantity int) ([]byte, error) {
	wb := NewWriteBuffer(t.Size()*quantity, LittleEndian)
	if t == UmasSTRING {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("%w: STRING needs a string, got %T", ErrInvalidValue, value)
		}
		if err := wb.WriteString("value", quantity*8, s); err != nil {
			return nil, err
		}
		return wb.Finish()
	}
	if t.Size() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDataType, t)
	}
	elems, err := elements(value, quantity)
	if err != nil {
		return nil, err
	}
	if err := WriteArray(wb, "value", elems, func(wb *WriteBuffer, v interface{}) error {
		return writeUmasElement(wb, t, v)
	}); err != nil {
		return nil, err
	}
	return wb.Finish()
}

func writeUmasElement(wb *WriteBuffer, t UmasDataType, v interface{}) error {
	switch t {
	case UmasBOOL, UmasEBOOL:
		on, err := toBool(v)
		if err != nil {
			return err
		}
		var b uint8
		if on {
			b = 1
		}
		return wb.WriteUint8("value", 8, b)
	case UmasREAL:
		f, err := toFloat64(v)
		if err != nil {
			return err
		}
		return wb.WriteFloat32("value", float32(f))
	case UmasTIME, UmasTOD:
		d, ok := v.(time.Duration)
		if !ok {
			n, err := toInt64(v)
			if err != nil {
				return err
			}
			d = time.Duration(n) * time.Millisecond
		}
		return wb.WriteUint32("value", 32, uint32(d/time.Millisecond))
	case UmasDATE, UmasDT:
		ts, ok := v.(time.Time)
		if !ok {
			return fmt.Errorf("%w: %s needs a time.Time, got %T", ErrInvalidValue, t, v)
		}
		if t == UmasDT {
			if err := wb.WriteUint8("unused", 8, 0); err != nil {
				return err
			}
			for _, p := range []struct {
				name string
				v    int
			}{{"seconds", ts.Second()}, {"minutes", ts.Minute()}, {"hour", ts.Hour()}} {
				if err := writeBCD(wb, p.name, 8, p.v); err != nil {
					return err
				}
			}
		}
		if err := writeBCD(wb, "day", 8, ts.Day()); err != nil {
			return err
		}
		if err := writeBCD(wb, "month", 8, int(ts.Month())); err != nil {
			return err
		}
		return writeBCD(wb, "year", 16, ts.Year())
	}
	n, err := toInt64(v)
	if err != nil {
		return err
	}
	return wb.WriteInt("value", t.Size()*8, n)
}

// elements flattens a scalar or slice value into exactly quantity elements.
func elements(value interface{}, quantity int) ([]interface{}, error) {
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		if quantity != 1 {
			return nil, fmt.Errorf("%w: expected %d values, got a scalar", ErrInvalidValue, quantity)
		}
		return []interface{}{value}, nil
	}
	if rv.Len() != quantity {
		return nil, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidValue, quantity, rv.Len())
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func toBool(v interface{}) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(x)
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidValue, x)
		}
		return b, nil
	}
	n, err := toInt64(v)
	return n != 0, err
}

func toInt64(v interface{}) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case uint:
		return int64(x), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return int64(x), nil
	case float32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		n, err := strconv.ParseInt(x, 0, 64)
		if err != nil {
			u, uerr := strconv.ParseUint(x, 0, 64)
			if uerr != nil {
				return 0, fmt.Errorf("%w: %q is not an integer", ErrInvalidValue, x)
			}
			return int64(u), nil
		}
		return n, nil
	}
	return 0, fmt.Errorf("%w: cannot convert %T to integer", ErrInvalidValue, v)
}

func toFloat64(v interface{}) (float64, error) {
	switch x := v.(type) {
	case float32:
		return float64(x), nil
	case float64:
		return x, nil
	case string:
		f, err := strconv.ParseFloat(x, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrInvalidValue, x)
		}
		return f, nil
	}
	n, err := toInt64(v)
	return float64(n), err
}
