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
)

// PDU is a Modbus protocol data unit. The concrete types in this package
// are the only implementations.
type PDU interface {
	// FunctionCode is the 7-bit discriminator written after the error flag.
	FunctionCode() FunctionCode
	// ErrorFlag is set on exception responses.
	ErrorFlag() bool
	// Response selects the response grammar for the function code.
	Response() bool

	layout() layout
}

type request struct{}

func (request) ErrorFlag() bool { return false }
func (request) Response() bool  { return false }

type response struct{}

func (response) ErrorFlag() bool { return false }
func (response) Response() bool  { return true }

// ParseArgs carries what a PDU parse needs from its surroundings.
type ParseArgs struct {
	// Response selects the response grammar.
	Response bool
	// UmasRequestFunctionKey is the function key of the UMAS request a
	// response answers. Only UMAS responses use it.
	UmasRequestFunctionKey UmasFunction
	// ByteLength is the PDU length implied by the enclosing frame,
	// function code byte included.
	ByteLength int
}

type pduKey struct {
	function FunctionCode
	response bool
}

type pduEntry struct {
	name string
	new  func(args ParseArgs) PDU
}

// pduTable maps (function code, response) to a variant. Every error-flag
// PDU decodes as ExceptionResponse regardless of its function code.
var pduTable = map[pduKey]pduEntry{
	{FunctionReadCoils, false}:                      {"ReadCoilsRequest", func(ParseArgs) PDU { return &ReadCoilsRequest{} }},
	{FunctionReadCoils, true}:                       {"ReadCoilsResponse", func(ParseArgs) PDU { return &ReadCoilsResponse{} }},
	{FunctionReadDiscreteInputs, false}:             {"ReadDiscreteInputsRequest", func(ParseArgs) PDU { return &ReadDiscreteInputsRequest{} }},
	{FunctionReadDiscreteInputs, true}:              {"ReadDiscreteInputsResponse", func(ParseArgs) PDU { return &ReadDiscreteInputsResponse{} }},
	{FunctionReadHoldingRegisters, false}:           {"ReadHoldingRegistersRequest", func(ParseArgs) PDU { return &ReadHoldingRegistersRequest{} }},
	{FunctionReadHoldingRegisters, true}:            {"ReadHoldingRegistersResponse", func(ParseArgs) PDU { return &ReadHoldingRegistersResponse{} }},
	{FunctionReadInputRegisters, false}:             {"ReadInputRegistersRequest", func(ParseArgs) PDU { return &ReadInputRegistersRequest{} }},
	{FunctionReadInputRegisters, true}:              {"ReadInputRegistersResponse", func(ParseArgs) PDU { return &ReadInputRegistersResponse{} }},
	{FunctionWriteSingleCoil, false}:                {"WriteSingleCoilRequest", func(ParseArgs) PDU { return &WriteSingleCoilRequest{} }},
	{FunctionWriteSingleCoil, true}:                 {"WriteSingleCoilResponse", func(ParseArgs) PDU { return &WriteSingleCoilResponse{} }},
	{FunctionWriteSingleRegister, false}:            {"WriteSingleRegisterRequest", func(ParseArgs) PDU { return &WriteSingleRegisterRequest{} }},
	{FunctionWriteSingleRegister, true}:             {"WriteSingleRegisterResponse", func(ParseArgs) PDU { return &WriteSingleRegisterResponse{} }},
	{FunctionReadExceptionStatus, false}:            {"ReadExceptionStatusRequest", func(ParseArgs) PDU { return &ReadExceptionStatusRequest{} }},
	{FunctionReadExceptionStatus, true}:             {"ReadExceptionStatusResponse", func(ParseArgs) PDU { return &ReadExceptionStatusResponse{} }},
	{FunctionDiagnostics, false}:                    {"DiagnosticRequest", func(ParseArgs) PDU { return &DiagnosticRequest{} }},
	{FunctionDiagnostics, true}:                     {"DiagnosticResponse", func(ParseArgs) PDU { return &DiagnosticResponse{} }},
	{FunctionGetComEventCounter, false}:             {"GetComEventCounterRequest", func(ParseArgs) PDU { return &GetComEventCounterRequest{} }},
	{FunctionGetComEventCounter, true}:              {"GetComEventCounterResponse", func(ParseArgs) PDU { return &GetComEventCounterResponse{} }},
	{FunctionGetComEventLog, false}:                 {"GetComEventLogRequest", func(ParseArgs) PDU { return &GetComEventLogRequest{} }},
	{FunctionGetComEventLog, true}:                  {"GetComEventLogResponse", func(ParseArgs) PDU { return &GetComEventLogResponse{} }},
	{FunctionWriteMultipleCoils, false}:             {"WriteMultipleCoilsRequest", func(ParseArgs) PDU { return &WriteMultipleCoilsRequest{} }},
	{FunctionWriteMultipleCoils, true}:              {"WriteMultipleCoilsResponse", func(ParseArgs) PDU { return &WriteMultipleCoilsResponse{} }},
	{FunctionWriteMultipleRegisters, false}:         {"WriteMultipleRegistersRequest", func(ParseArgs) PDU { return &WriteMultipleRegistersRequest{} }},
	{FunctionWriteMultipleRegisters, true}:          {"WriteMultipleRegistersResponse", func(ParseArgs) PDU { return &WriteMultipleRegistersResponse{} }},
	{FunctionReportServerID, false}:                 {"ReportServerIDRequest", func(ParseArgs) PDU { return &ReportServerIDRequest{} }},
	{FunctionReportServerID, true}:                  {"ReportServerIDResponse", func(ParseArgs) PDU { return &ReportServerIDResponse{} }},
	{FunctionReadFileRecord, false}:                 {"ReadFileRecordRequest", func(ParseArgs) PDU { return &ReadFileRecordRequest{} }},
	{FunctionReadFileRecord, true}:                  {"ReadFileRecordResponse", func(ParseArgs) PDU { return &ReadFileRecordResponse{} }},
	{FunctionWriteFileRecord, false}:                {"WriteFileRecordRequest", func(ParseArgs) PDU { return &WriteFileRecordRequest{} }},
	{FunctionWriteFileRecord, true}:                 {"WriteFileRecordResponse", func(ParseArgs) PDU { return &WriteFileRecordResponse{} }},
	{FunctionMaskWriteRegister, false}:              {"MaskWriteRegisterRequest", func(ParseArgs) PDU { return &MaskWriteRegisterRequest{} }},
	{FunctionMaskWriteRegister, true}:               {"MaskWriteRegisterResponse", func(ParseArgs) PDU { return &MaskWriteRegisterResponse{} }},
	{FunctionReadWriteMultipleRegisters, false}:     {"ReadWriteMultipleRegistersRequest", func(ParseArgs) PDU { return &ReadWriteMultipleRegistersRequest{} }},
	{FunctionReadWriteMultipleRegisters, true}:      {"ReadWriteMultipleRegistersResponse", func(ParseArgs) PDU { return &ReadWriteMultipleRegistersResponse{} }},
	{FunctionReadFIFOQueue, false}:                  {"ReadFIFOQueueRequest", func(ParseArgs) PDU { return &ReadFIFOQueueRequest{} }},
	{FunctionReadFIFOQueue, true}:                   {"ReadFIFOQueueResponse", func(ParseArgs) PDU { return &ReadFIFOQueueResponse{} }},
	{FunctionEncapsulatedInterfaceTransport, false}: {"ReadDeviceIdentificationRequest", func(ParseArgs) PDU { return &ReadDeviceIdentificationRequest{} }},
	{FunctionEncapsulatedInterfaceTransport, true}:  {"ReadDeviceIdentificationResponse", func(ParseArgs) PDU { return &ReadDeviceIdentificationResponse{} }},
	{FunctionUmas, false}:                           {"UmasPDU", func(a ParseArgs) PDU { return &UmasPDU{args: a} }},
	{FunctionUmas, true}:                            {"UmasPDU", func(a ParseArgs) PDU { return &UmasPDU{args: a} }},
}

func lookupPDU(errorFlag bool, fc FunctionCode, resp bool) (pduEntry, bool) {
	if errorFlag {
		return pduEntry{"ExceptionResponse", func(ParseArgs) PDU { return &ExceptionResponse{Function: fc} }}, true
	}
	e, ok := pduTable[pduKey{fc, resp}]
	return e, ok
}

func pduName(p PDU) string {
	if e, ok := lookupPDU(p.ErrorFlag(), p.FunctionCode(), p.Response()); ok {
		return e.name
	}
	return fmt.Sprintf("PDU(0x%02X)", uint8(p.FunctionCode()))
}

// PDULengthInBits returns the encoded size of p including the function code byte.
func PDULengthInBits(p PDU) int {
	return 8 + p.layout().bits()
}

// PDULengthInBytes returns the encoded size of p in whole bytes.
func PDULengthInBytes(p PDU) int {
	return (PDULengthInBits(p) + 7) / 8
}

// SerializePDU writes p at the writer's position.
func SerializePDU(wb *WriteBuffer, p PDU) error {
	wb.PushContext("ModbusPDU")
	if err := wb.WriteBit("errorFlag", p.ErrorFlag()); err != nil {
		return err
	}
	if err := wb.WriteUint8("functionFlag", 7, uint8(p.FunctionCode())); err != nil {
		return err
	}
	if err := p.layout().encode(wb, pduName(p)); err != nil {
		return err
	}
	wb.PopContext("ModbusPDU")
	return nil
}

// ParsePDU reads one PDU, selecting the variant from the error flag, the
// function code and args.Response.
func ParsePDU(rb *ReadBuffer, args ParseArgs) (PDU, error) {
	rb.PushContext("ModbusPDU")
	errorFlag, err := rb.ReadBit("errorFlag")
	if err != nil {
		return nil, err
	}
	fc, err := rb.ReadUint8("functionFlag", 7)
	if err != nil {
		return nil, err
	}
	entry, ok := lookupPDU(errorFlag, FunctionCode(fc), args.Response)
	if !ok {
		return nil, &CodecError{
			Context: rb.Context(),
			Field:   "functionFlag",
			Err:     fmt.Errorf("%w: 0x%02X (response=%t)", ErrUnsupportedFunctionCode, fc, args.Response),
		}
	}
	p := entry.new(args)
	if err := p.layout().decode(rb, entry.name); err != nil {
		return nil, err
	}
	rb.PopContext("ModbusPDU")
	return p, nil
}

// EncodePDU serializes p into a buffer of exactly PDULengthInBytes(p).
func EncodePDU(p PDU) ([]byte, error) {
	wb := NewWriteBuffer(PDULengthInBytes(p), BigEndian)
	if err := SerializePDU(wb, p); err != nil {
		return nil, err
	}
	return wb.Finish()
}

// DecodePDU parses data as a single PDU. Trailing bytes are an error.
func DecodePDU(data []byte, args ParseArgs) (PDU, error) {
	if args.ByteLength == 0 {
		args.ByteLength = len(data)
	}
	rb := NewReadBuffer(data, BigEndian)
	p, err := ParsePDU(rb, args)
	if err != nil {
		return nil, err
	}
	if rb.BytePos() != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes after %s", ErrInvalidFrame, len(data)-rb.BytePos(), pduName(p))
	}
	return p, nil
}

// ExceptionResponse is the error-flag PDU a device returns instead of a
// regular response.
type ExceptionResponse struct {
	Function      FunctionCode
	ExceptionCode ExceptionCode
}

func (p *ExceptionResponse) FunctionCode() FunctionCode { return p.Function }
func (p *ExceptionResponse) ErrorFlag() bool            { return true }
func (p *ExceptionResponse) Response() bool             { return true }

func (p *ExceptionResponse) layout() layout {
	return layout{uintF("exceptionCode", 8, &p.ExceptionCode)}
}
