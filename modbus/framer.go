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

// tcpHeaderLength is the MBAP header up to and including the length field.
const tcpHeaderLength = 6

// framer delimits ADUs in a byte stream and decodes them.
type framer interface {
	// frameLength returns the size of the first frame in buf, or 0 when buf
	// does not hold a complete frame yet. It never consumes buf.
	frameLength(buf []byte) (int, error)
	transactionID(frame []byte) uint16
	decode(frame []byte, args ParseArgs) (ADU, error)
}

// newFramer returns the framer for a driver. response selects whether the
// stream carries responses (client side) or requests (device side).
// maxFrameSize bounds the TCP length field; 0 picks the driver default.
func newFramer(d DriverType, response bool, maxFrameSize int) (framer, error) {
	switch d {
	case DriverTCP, DriverUMAS:
		if maxFrameSize <= 0 {
			maxFrameSize = MaxPDULength + 1
			if d == DriverUMAS {
				maxFrameSize = 0xFFFF
			}
		}
		return tcpFramer{maxLength: maxFrameSize}, nil
	case DriverRTU:
		return rtuFramer{response: response}, nil
	case DriverASCII:
		return asciiFramer{}, nil
	}
	return nil, fmt.Errorf("%w: no framing for %s", ErrInvalidValue, d)
}

type tcpFramer struct {
	maxLength int
}

func (f tcpFramer) frameLength(buf []byte) (int, error) {
	if len(buf) < tcpHeaderLength {
		return 0, nil
	}
	rb := NewReadBuffer(buf[:tcpHeaderLength], BigEndian)
	rb.PushContext("ModbusTcpADU")
	if _, err := rb.ReadUint16("transactionIdentifier", 16); err != nil {
		return 0, err
	}
	protocol, err := rb.ReadUint16("protocolIdentifier", 16)
	if err != nil {
		return 0, err
	}
	length, err := rb.ReadUint16("length", 16)
	if err != nil {
		return 0, err
	}
	if protocol != 0 || length < 2 || int(length) > f.maxLength {
		return 0, fmt.Errorf("%w: protocol %d, length %d", ErrInvalidFrame, protocol, length)
	}
	total := tcpHeaderLength + int(length)
	if len(buf) < total {
		return 0, nil
	}
	return total, nil
}

func (tcpFramer) transactionID(frame []byte) uint16 {
	return uint16(frame[0])<<8 | uint16(frame[1])
}

func (tcpFramer) decode(frame []byte, args ParseArgs) (ADU, error) {
	return DecodeTCPADU(frame, args)
}

// rtuFramer estimates frame sizes from the function code since RTU frames
// carry no length field.
type rtuFramer struct {
	response bool
}

func (f rtuFramer) frameLength(buf []byte) (int, error) {
	if len(buf) < 2 {
		return 0, nil
	}
	var n int
	var err error
	if f.response {
		n, err = rtuResponseLength(buf)
	} else {
		n, err = rtuRequestLength(buf)
	}
	if err != nil || n == 0 || len(buf) < n {
		return 0, err
	}
	return n, nil
}

// byteCountAt returns header+count+crc once the count byte at offset is
// buffered.
func byteCountAt(buf []byte, offset int) int {
	if len(buf) <= offset {
		return 0
	}
	return offset + 1 + int(buf[offset]) + 2
}

func rtuResponseLength(buf []byte) (int, error) {
	fc := buf[1]
	if fc&0x80 != 0 {
		return 5, nil
	}
	switch FunctionCode(fc) {
	case FunctionReadCoils, FunctionReadDiscreteInputs, FunctionReadHoldingRegisters,
		FunctionReadInputRegisters, FunctionGetComEventLog, FunctionReportServerID,
		FunctionReadWriteMultipleRegisters, FunctionReadFileRecord, FunctionWriteFileRecord:
		return byteCountAt(buf, 2), nil
	case FunctionWriteSingleCoil, FunctionWriteSingleRegister, FunctionDiagnostics,
		FunctionWriteMultipleCoils, FunctionWriteMultipleRegisters, FunctionGetComEventCounter:
		return 8, nil
	case FunctionReadExceptionStatus:
		return 5, nil
	case FunctionMaskWriteRegister:
		return 10, nil
	case FunctionReadFIFOQueue:
		if len(buf) < 4 {
			return 0, nil
		}
		return 4 + (int(buf[2])<<8 | int(buf[3])) + 2, nil
	case FunctionEncapsulatedInterfaceTransport:
		return deviceIdentificationLength(buf)
	}
	return 0, fmt.Errorf("%w: cannot delimit rtu response 0x%02X", ErrUnsupportedFunctionCode, fc)
}

// deviceIdentificationLength walks the object list of a 0x2B response.
func deviceIdentificationLength(buf []byte) (int, error) {
	const header = 8
	if len(buf) < header {
		return 0, nil
	}
	n := header
	for i := 0; i < int(buf[7]); i++ {
		if len(buf) < n+2 {
			return 0, nil
		}
		n += 2 + int(buf[n+1])
	}
	return n + 2, nil
}

func rtuRequestLength(buf []byte) (int, error) {
	fc := FunctionCode(buf[1])
	switch fc {
	case FunctionReadCoils, FunctionReadDiscreteInputs, FunctionReadHoldingRegisters,
		FunctionReadInputRegisters, FunctionWriteSingleCoil, FunctionWriteSingleRegister,
		FunctionDiagnostics:
		return 8, nil
	case FunctionReadExceptionStatus, FunctionGetComEventCounter, FunctionGetComEventLog,
		FunctionReportServerID:
		return 4, nil
	case FunctionWriteMultipleCoils, FunctionWriteMultipleRegisters:
		return byteCountAt(buf, 6), nil
	case FunctionReadFileRecord, FunctionWriteFileRecord:
		return byteCountAt(buf, 2), nil
	case FunctionMaskWriteRegister:
		return 10, nil
	case FunctionReadWriteMultipleRegisters:
		return byteCountAt(buf, 10), nil
	case FunctionReadFIFOQueue:
		return 6, nil
	case FunctionEncapsulatedInterfaceTransport:
		return 7, nil
	}
	return 0, fmt.Errorf("%w: cannot delimit rtu request 0x%02X", ErrUnsupportedFunctionCode, uint8(fc))
}

// Serial lines carry one transaction at a time.
func (rtuFramer) transactionID([]byte) uint16 { return 0 }

func (rtuFramer) decode(frame []byte, args ParseArgs) (ADU, error) {
	return DecodeRTUADU(frame, args)
}

type asciiFramer struct{}

func (asciiFramer) frameLength(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if buf[0] != ':' {
		return 0, fmt.Errorf("%w: ascii frame starts with 0x%02X", ErrInvalidFrame, buf[0])
	}
	i := bytes.Index(buf, []byte("\r\n"))
	if i < 0 {
		return 0, nil
	}
	return i + 2, nil
}

func (asciiFramer) transactionID([]byte) uint16 { return 0 }

func (asciiFramer) decode(frame []byte, args ParseArgs) (ADU, error) {
	return DecodeASCIIADU(frame, args)
}

// streamState is the framing state of a receive stream
type streamState int

const (
	streamIdle streamState = iota
	streamAccumulating
	streamFrameReady
)

func (s streamState) String() string {
	switch s {
	case streamIdle:
		return "idle"
	case streamAccumulating:
		return "accumulating"
	case streamFrameReady:
		return "frame-ready"
	default:
		return "unknown"
	}
}

// frameReader accumulates stream bytes and hands out one frame at a time.
type frameReader struct {
	framer framer
	buf    []byte
}

func (r *frameReader) feed(p []byte) {
	r.buf = append(r.buf, p...)
}

func (r *frameReader) state() streamState {
	if len(r.buf) == 0 {
		return streamIdle
	}
	if n, err := r.framer.frameLength(r.buf); err == nil && n > 0 {
		return streamFrameReady
	}
	return streamAccumulating
}

// next removes and returns the first complete frame, or nil if none is
// buffered yet.
func (r *frameReader) next() ([]byte, error) {
	n, err := r.framer.frameLength(r.buf)
	if err != nil || n == 0 {
		return nil, err
	}
	frame := make([]byte, n)
	copy(frame, r.buf)
	r.buf = r.buf[n:]
	if len(r.buf) == 0 {
		r.buf = nil
	}
	return frame, nil
}
