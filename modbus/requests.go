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
	"context"
	"fmt"
)

func checkQuantity(q, max uint16) error {
	if q == 0 || q > max {
		return fmt.Errorf("%w: quantity %d outside 1..%d", ErrInvalidValue, q, max)
	}
	return nil
}

func unpackBits(data []byte, quantity uint16) ([]bool, error) {
	if len(data)*8 < int(quantity) {
		return nil, fmt.Errorf("%w: %d bits in %d bytes", ErrBufferUnderflow, quantity, len(data))
	}
	out := make([]bool, quantity)
	for i := range out {
		out[i] = data[i/8]&(1<<uint(i%8)) != 0
	}
	return out, nil
}

func packBits(values []bool) []byte {
	out := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	out := make([]uint16, len(data)/2)
	for i := range out {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

func packRegisters(values []uint16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		out[2*i] = byte(v >> 8)
		out[2*i+1] = byte(v)
	}
	return out
}

// ReadCoils reads coil states (function 0x01)
func (c *Client) ReadCoils(ctx context.Context, address, quantity uint16) ([]bool, error) {
	if err := checkQuantity(quantity, MaxReadBits); err != nil {
		return nil, err
	}
	resp, err := doAs[*ReadCoilsResponse](ctx, c, &ReadCoilsRequest{StartingAddress: address, Quantity: quantity})
	if err != nil {
		return nil, err
	}
	return unpackBits(resp.Value, quantity)
}

// ReadDiscreteInputs reads discrete input states (function 0x02)
func (c *Client) ReadDiscreteInputs(ctx context.Context, address, quantity uint16) ([]bool, error) {
	if err := checkQuantity(quantity, MaxReadBits); err != nil {
		return nil, err
	}
	resp, err := doAs[*ReadDiscreteInputsResponse](ctx, c, &ReadDiscreteInputsRequest{StartingAddress: address, Quantity: quantity})
	if err != nil {
		return nil, err
	}
	return unpackBits(resp.Value, quantity)
}

func (c *Client) readHoldingBytes(ctx context.Context, address, quantity uint16) ([]byte, error) {
	if err := checkQuantity(quantity, MaxReadRegisters); err != nil {
		return nil, err
	}
	resp, err := doAs[*ReadHoldingRegistersResponse](ctx, c, &ReadHoldingRegistersRequest{StartingAddress: address, Quantity: quantity})
	if err != nil {
		return nil, err
	}
	if len(resp.Value) != 2*int(quantity) {
		return nil, fmt.Errorf("%w: %d bytes for %d registers", ErrUnexpectedResponse, len(resp.Value), quantity)
	}
	return resp.Value, nil
}

func (c *Client) readInputBytes(ctx context.Context, address, quantity uint16) ([]byte, error) {
	if err := checkQuantity(quantity, MaxReadRegisters); err != nil {
		return nil, err
	}
	resp, err := doAs[*ReadInputRegistersResponse](ctx, c, &ReadInputRegistersRequest{StartingAddress: address, Quantity: quantity})
	if err != nil {
		return nil, err
	}
	if len(resp.Value) != 2*int(quantity) {
		return nil, fmt.Errorf("%w: %d bytes for %d registers", ErrUnexpectedResponse, len(resp.Value), quantity)
	}
	return resp.Value, nil
}

// ReadHoldingRegisters reads holding registers (function 0x03)
func (c *Client) ReadHoldingRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	data, err := c.readHoldingBytes(ctx, address, quantity)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(data), nil
}

// ReadInputRegisters reads input registers (function 0x04)
func (c *Client) ReadInputRegisters(ctx context.Context, address, quantity uint16) ([]uint16, error) {
	data, err := c.readInputBytes(ctx, address, quantity)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(data), nil
}

// WriteSingleCoil writes one coil (function 0x05)
func (c *Client) WriteSingleCoil(ctx context.Context, address uint16, on bool) error {
	value := CoilOff
	if on {
		value = CoilOn
	}
	resp, err := doAs[*WriteSingleCoilResponse](ctx, c, &WriteSingleCoilRequest{Address: address, Value: value})
	if err != nil {
		return err
	}
	if resp.Address != address || resp.Value != value {
		return fmt.Errorf("%w: echo mismatch", ErrUnexpectedResponse)
	}
	return nil
}

// WriteSingleRegister writes one holding register (function 0x06)
func (c *Client) WriteSingleRegister(ctx context.Context, address, value uint16) error {
	resp, err := doAs[*WriteSingleRegisterResponse](ctx, c, &WriteSingleRegisterRequest{Address: address, Value: value})
	if err != nil {
		return err
	}
	if resp.Address != address || resp.Value != value {
		return fmt.Errorf("%w: echo mismatch", ErrUnexpectedResponse)
	}
	return nil
}

// WriteMultipleCoils writes a run of coils (function 0x0F)
func (c *Client) WriteMultipleCoils(ctx context.Context, address uint16, values []bool) error {
	if len(values) == 0 || len(values) > MaxWriteBits {
		return fmt.Errorf("%w: %d coils", ErrInvalidValue, len(values))
	}
	return c.writeCoilBytes(ctx, address, uint16(len(values)), packBits(values))
}

func (c *Client) writeCoilBytes(ctx context.Context, address, quantity uint16, data []byte) error {
	resp, err := doAs[*WriteMultipleCoilsResponse](ctx, c, &WriteMultipleCoilsRequest{
		StartingAddress: address,
		Quantity:        quantity,
		Value:           data,
	})
	if err != nil {
		return err
	}
	if resp.StartingAddress != address || resp.Quantity != quantity {
		return fmt.Errorf("%w: echo mismatch", ErrUnexpectedResponse)
	}
	return nil
}

// WriteMultipleRegisters writes a run of holding registers (function 0x10)
func (c *Client) WriteMultipleRegisters(ctx context.Context, address uint16, values []uint16) error {
	if len(values) == 0 || len(values) > MaxWriteRegisters {
		return fmt.Errorf("%w: %d registers", ErrInvalidValue, len(values))
	}
	return c.writeRegisterBytes(ctx, address, packRegisters(values))
}

func (c *Client) writeRegisterBytes(ctx context.Context, address uint16, data []byte) error {
	quantity := uint16(len(data) / 2)
	resp, err := doAs[*WriteMultipleRegistersResponse](ctx, c, &WriteMultipleRegistersRequest{
		StartingAddress: address,
		Quantity:        quantity,
		Value:           data,
	})
	if err != nil {
		return err
	}
	if resp.StartingAddress != address || resp.Quantity != quantity {
		return fmt.Errorf("%w: echo mismatch", ErrUnexpectedResponse)
	}
	return nil
}

// MaskWriteRegister applies (current AND andMask) OR (orMask AND NOT
// andMask) to one holding register (function 0x16)
func (c *Client) MaskWriteRegister(ctx context.Context, address, andMask, orMask uint16) error {
	_, err := doAs[*MaskWriteRegisterResponse](ctx, c, &MaskWriteRegisterRequest{
		ReferenceAddress: address,
		AndMask:          andMask,
		OrMask:           orMask,
	})
	return err
}

// ReadWriteMultipleRegisters writes then reads holding registers in one
// transaction (function 0x17)
func (c *Client) ReadWriteMultipleRegisters(ctx context.Context, readAddress, readQuantity, writeAddress uint16, values []uint16) ([]uint16, error) {
	if err := checkQuantity(readQuantity, MaxReadRegisters); err != nil {
		return nil, err
	}
	if len(values) == 0 || len(values) > 121 {
		return nil, fmt.Errorf("%w: %d registers to write", ErrInvalidValue, len(values))
	}
	resp, err := doAs[*ReadWriteMultipleRegistersResponse](ctx, c, &ReadWriteMultipleRegistersRequest{
		ReadStartingAddress:  readAddress,
		ReadQuantity:         readQuantity,
		WriteStartingAddress: writeAddress,
		WriteQuantity:        uint16(len(values)),
		Value:                packRegisters(values),
	})
	if err != nil {
		return nil, err
	}
	return unpackRegisters(resp.Value), nil
}

// ReadFIFOQueue reads a FIFO queue of registers (function 0x18)
func (c *Client) ReadFIFOQueue(ctx context.Context, address uint16) ([]uint16, error) {
	resp, err := doAs[*ReadFIFOQueueResponse](ctx, c, &ReadFIFOQueueRequest{FIFOPointerAddress: address})
	if err != nil {
		return nil, err
	}
	return resp.FIFOValues, nil
}

// ReadExceptionStatus reads the eight exception status outputs (function
// 0x07, serial line only)
func (c *Client) ReadExceptionStatus(ctx context.Context) (uint8, error) {
	resp, err := doAs[*ReadExceptionStatusResponse](ctx, c, &ReadExceptionStatusRequest{})
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// Diagnostic runs a diagnostic sub-function (function 0x08)
func (c *Client) Diagnostic(ctx context.Context, subFunction, data uint16) (uint16, error) {
	resp, err := doAs[*DiagnosticResponse](ctx, c, &DiagnosticRequest{SubFunction: subFunction, Data: data})
	if err != nil {
		return 0, err
	}
	if resp.SubFunction != subFunction {
		return 0, fmt.Errorf("%w: sub-function %d answered with %d", ErrUnexpectedResponse, subFunction, resp.SubFunction)
	}
	return resp.Data, nil
}

// GetComEventCounter reads the communication event counter (function 0x0B)
func (c *Client) GetComEventCounter(ctx context.Context) (status, count uint16, err error) {
	resp, err := doAs[*GetComEventCounterResponse](ctx, c, &GetComEventCounterRequest{})
	if err != nil {
		return 0, 0, err
	}
	return resp.Status, resp.EventCount, nil
}

// GetComEventLog reads the communication event log (function 0x0C)
func (c *Client) GetComEventLog(ctx context.Context) (*GetComEventLogResponse, error) {
	return doAs[*GetComEventLogResponse](ctx, c, &GetComEventLogRequest{})
}

// ReportServerID reads the server description (function 0x11)
func (c *Client) ReportServerID(ctx context.Context) ([]byte, error) {
	resp, err := doAs[*ReportServerIDResponse](ctx, c, &ReportServerIDRequest{})
	if err != nil {
		return nil, err
	}
	return resp.Value, nil
}

// ReadFileRecord reads file records (function 0x14). Each returned slice
// holds the registers of the matching request item.
func (c *Client) ReadFileRecord(ctx context.Context, items ...FileRecordRequestItem) ([][]byte, error) {
	for i := range items {
		items[i].ReferenceType = FileRecordReferenceType
	}
	resp, err := doAs[*ReadFileRecordResponse](ctx, c, &ReadFileRecordRequest{Items: items})
	if err != nil {
		return nil, err
	}
	if len(resp.Items) != len(items) {
		return nil, fmt.Errorf("%w: %d records for %d requests", ErrUnexpectedResponse, len(resp.Items), len(items))
	}
	out := make([][]byte, len(resp.Items))
	for i, item := range resp.Items {
		out[i] = item.Data
	}
	return out, nil
}

// WriteFileRecord writes file records (function 0x15)
func (c *Client) WriteFileRecord(ctx context.Context, items ...FileRecordWriteItem) error {
	for i := range items {
		items[i].ReferenceType = FileRecordReferenceType
		if len(items[i].Data)%2 != 0 {
			return fmt.Errorf("%w: record data must hold whole registers", ErrInvalidValue)
		}
	}
	_, err := doAs[*WriteFileRecordResponse](ctx, c, &WriteFileRecordRequest{Items: items})
	return err
}

// DeviceIdentification holds the objects returned by a device.
type DeviceIdentification struct {
	ConformityLevel uint8
	Objects         map[uint8]string
}

// VendorName returns object 0x00
func (d *DeviceIdentification) VendorName() string {
	return d.Objects[DeviceObjectVendorName]
}

// ProductCode returns object 0x01
func (d *DeviceIdentification) ProductCode() string {
	return d.Objects[DeviceObjectProductCode]
}

// Revision returns object 0x02
func (d *DeviceIdentification) Revision() string {
	return d.Objects[DeviceObjectMajorMinorRevision]
}

// ReadDeviceIdentification reads identification objects (function 0x2B /
// MEI 0x0E). Responses that announce more objects are followed up until
// the device reports the end of the list.
func (c *Client) ReadDeviceIdentification(ctx context.Context, level DeviceIDCode) (*DeviceIdentification, error) {
	ident := &DeviceIdentification{Objects: make(map[uint8]string)}
	next := uint8(0)
	for rounds := 0; rounds < 256; rounds++ {
		resp, err := doAs[*ReadDeviceIdentificationResponse](ctx, c, &ReadDeviceIdentificationRequest{Level: level, ObjectID: next})
		if err != nil {
			return nil, err
		}
		ident.ConformityLevel = resp.ConformityLevel
		for _, obj := range resp.Objects {
			ident.Objects[obj.ObjectID] = string(obj.Value)
		}
		if resp.MoreFollows == 0 || level == DeviceIDIndividual {
			return ident, nil
		}
		next = resp.NextObjectID
	}
	return nil, fmt.Errorf("%w: device identification does not terminate", ErrUnexpectedResponse)
}

// ReadTag reads the value a Modbus tag address refers to, see
// ParseModbusTag. A quantity of 1 yields a scalar, more a slice.
func (c *Client) ReadTag(ctx context.Context, address string) (interface{}, error) {
	tag, err := ParseModbusTag(address)
	if err != nil {
		return nil, err
	}
	return c.ReadModbusTag(ctx, tag)
}

// WriteTag writes value to a Modbus tag address.
func (c *Client) WriteTag(ctx context.Context, address string, value interface{}) error {
	tag, err := ParseModbusTag(address)
	if err != nil {
		return err
	}
	return c.WriteModbusTag(ctx, tag, value)
}

// ReadModbusTag reads a parsed tag.
func (c *Client) ReadModbusTag(ctx context.Context, tag *ModbusTag) (interface{}, error) {
	start := uint16(tag.Address)
	switch tag.Area {
	case AreaCoil, AreaDiscreteInput:
		q := uint16(tag.Quantity)
		var bits []bool
		var err error
		if tag.Area == AreaCoil {
			bits, err = c.ReadCoils(ctx, start, q)
		} else {
			bits, err = c.ReadDiscreteInputs(ctx, start, q)
		}
		if err != nil {
			return nil, err
		}
		return DecodeCoils(packBits(bits), tag.Quantity)
	}

	count := uint16(tag.RegisterCount())
	var data []byte
	var err error
	switch tag.Area {
	case AreaInputRegister:
		data, err = c.readInputBytes(ctx, start, count)
	case AreaHoldingRegister:
		data, err = c.readHoldingBytes(ctx, start, count)
	case AreaExtendedRegister:
		file, record := tag.extendedRecord()
		var records [][]byte
		records, err = c.ReadFileRecord(ctx, FileRecordRequestItem{FileNumber: file, RecordNumber: record, RecordLength: count})
		if err == nil {
			data = records[0]
		}
	default:
		return nil, fmt.Errorf("%w: area %s", ErrInvalidValue, tag.Area)
	}
	if err != nil {
		return nil, err
	}
	return DecodeRegisters(data, tag.DataType, tag.Quantity, c.opts.byteOrder)
}

// WriteModbusTag writes a parsed tag.
func (c *Client) WriteModbusTag(ctx context.Context, tag *ModbusTag, value interface{}) error {
	if !tag.Area.Writable() {
		return fmt.Errorf("%w: %s is read-only", ErrInvalidValue, tag.Area)
	}
	start := uint16(tag.Address)
	if tag.Area == AreaCoil {
		data, err := EncodeCoils(value, tag.Quantity)
		if err != nil {
			return err
		}
		if tag.Quantity == 1 {
			return c.WriteSingleCoil(ctx, start, data[0]&1 != 0)
		}
		return c.writeCoilBytes(ctx, start, uint16(tag.Quantity), data)
	}

	data, err := EncodeRegisters(value, tag.DataType, tag.Quantity, c.opts.byteOrder)
	if err != nil {
		return err
	}
	if tag.Area == AreaExtendedRegister {
		file, record := tag.extendedRecord()
		return c.WriteFileRecord(ctx, FileRecordWriteItem{FileNumber: file, RecordNumber: record, Data: data})
	}
	if len(data) == 2 {
		return c.WriteSingleRegister(ctx, start, uint16(data[0])<<8|uint16(data[1]))
	}
	if len(data)/2 > MaxWriteRegisters {
		return fmt.Errorf("%w: %d registers exceed a single write", ErrInvalidValue, len(data)/2)
	}
	return c.writeRegisterBytes(ctx, start, data)
}
