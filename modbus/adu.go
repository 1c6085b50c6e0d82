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
	"encoding/hex"
	"fmt"
)

// ADU is a framed PDU as it travels on the wire.
type ADU interface {
	DriverType() DriverType
	Message() PDU
	LengthInBytes() int
	Encode() ([]byte, error)
}

// pduField embeds a PDU. The parse arguments are resolved lazily so that
// header fields read earlier in the same layout can feed them.
type pduField struct {
	p    *PDU
	args func() ParseArgs
}

func (f pduField) bits() int                    { return PDULengthInBits(*f.p) }
func (f pduField) encode(wb *WriteBuffer) error { return SerializePDU(wb, *f.p) }

func (f pduField) decode(rb *ReadBuffer) (err error) {
	*f.p, err = ParsePDU(rb, f.args())
	return err
}

// markF records the current bit position without consuming anything.
func markF(pos *int) field {
	return manualF(
		func() int { return 0 },
		func(wb *WriteBuffer) error { *pos = wb.Pos(); return nil },
		func(rb *ReadBuffer) error { *pos = rb.Pos(); return nil },
	)
}

// checksumField covers the bytes between a mark and itself. It is written
// little-endian as Modbus serial lines expect.
type checksumField struct {
	name  string
	width int
	start *int
	sum   func([]byte) uint16
}

func (f checksumField) bits() int { return f.width }

func (f checksumField) encode(wb *WriteBuffer) error {
	v := f.sum(wb.data[*f.start/8 : wb.pos/8])
	return wb.WriteUint16(f.name, f.width, v, LittleEndian)
}

func (f checksumField) decode(rb *ReadBuffer) error {
	want := f.sum(rb.data[*f.start/8 : rb.pos/8])
	got, err := rb.ReadUint16(f.name, f.width, LittleEndian)
	if err != nil {
		return err
	}
	if got != want {
		return &CodecError{
			Context: rb.Context(),
			Field:   f.name,
			Err:     fmt.Errorf("%w: got 0x%04X, want 0x%04X", ErrChecksumMismatch, got, want),
		}
	}
	return nil
}

// TCPADU is a Modbus TCP frame: MBAP header followed by the PDU.
type TCPADU struct {
	TransactionIdentifier uint16
	UnitIdentifier        uint8
	PDU                   PDU
	Response              bool
}

func (a *TCPADU) DriverType() DriverType { return DriverTCP }
func (a *TCPADU) Message() PDU           { return a.PDU }

func (a *TCPADU) layout(args ParseArgs) layout {
	var length uint64
	return layout{
		uintF("transactionIdentifier", 16, &a.TransactionIdentifier),
		constF("protocolIdentifier", 16, 0x0000),
		implicitF("length", 16, func() uint64 { return uint64(PDULengthInBytes(a.PDU) + 1) }, &length),
		uintF("unitIdentifier", 8, &a.UnitIdentifier),
		pduField{p: &a.PDU, args: func() ParseArgs {
			args.Response = a.Response
			args.ByteLength = int(length) - 1
			return args
		}},
	}
}

func (a *TCPADU) LengthInBytes() int { return (a.layout(ParseArgs{}).bits() + 7) / 8 }

func (a *TCPADU) Encode() ([]byte, error) {
	return encodeLayout(a.layout(ParseArgs{}), "ModbusTcpADU", BigEndian)
}

// ParseTCPADU reads one TCP frame. args.Response selects the PDU grammar.
func ParseTCPADU(rb *ReadBuffer, args ParseArgs) (*TCPADU, error) {
	a := &TCPADU{Response: args.Response}
	if err := a.layout(args).decode(rb, "ModbusTcpADU"); err != nil {
		return nil, err
	}
	return a, nil
}

// RTUADU is a Modbus RTU frame: address, PDU and CRC-16.
type RTUADU struct {
	Address  uint8
	PDU      PDU
	Response bool
}

func (a *RTUADU) DriverType() DriverType { return DriverRTU }
func (a *RTUADU) Message() PDU           { return a.PDU }

func (a *RTUADU) layout(args ParseArgs, frameLength int) layout {
	var start int
	return layout{
		markF(&start),
		uintF("address", 8, &a.Address),
		pduField{p: &a.PDU, args: func() ParseArgs {
			args.Response = a.Response
			args.ByteLength = frameLength - 3
			return args
		}},
		checksumField{name: "crc", width: 16, start: &start, sum: crc16},
	}
}

func (a *RTUADU) LengthInBytes() int { return (a.layout(ParseArgs{}, 0).bits() + 7) / 8 }

func (a *RTUADU) Encode() ([]byte, error) {
	return encodeLayout(a.layout(ParseArgs{}, 0), "ModbusRtuADU", BigEndian)
}

// ParseRTUADU reads one RTU frame of frameLength bytes.
func ParseRTUADU(rb *ReadBuffer, args ParseArgs, frameLength int) (*RTUADU, error) {
	a := &RTUADU{Response: args.Response}
	if err := a.layout(args, frameLength).decode(rb, "ModbusRtuADU"); err != nil {
		return nil, err
	}
	return a, nil
}

// ASCIIADU is a Modbus ASCII frame. Its binary form is address, PDU and
// LRC; on the wire it is hex encoded between ':' and CRLF.
type ASCIIADU struct {
	Address  uint8
	PDU      PDU
	Response bool
}

func (a *ASCIIADU) DriverType() DriverType { return DriverASCII }
func (a *ASCIIADU) Message() PDU           { return a.PDU }

func (a *ASCIIADU) layout(args ParseArgs, binaryLength int) layout {
	var start int
	return layout{
		markF(&start),
		uintF("address", 8, &a.Address),
		pduField{p: &a.PDU, args: func() ParseArgs {
			args.Response = a.Response
			args.ByteLength = binaryLength - 2
			return args
		}},
		checksumField{name: "lrc", width: 8, start: &start, sum: lrc},
	}
}

// LengthInBytes is the length on the wire, framing characters included.
func (a *ASCIIADU) LengthInBytes() int {
	return 1 + 2*((a.layout(ParseArgs{}, 0).bits()+7)/8) + 2
}

func (a *ASCIIADU) Encode() ([]byte, error) {
	bin, err := encodeLayout(a.layout(ParseArgs{}, 0), "ModbusAsciiADU", BigEndian)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 1+2*len(bin)+2)
	out = append(out, ':')
	out = append(out, bytes.ToUpper([]byte(hex.EncodeToString(bin)))...)
	return append(out, '\r', '\n'), nil
}

// DecodeASCIIADU decodes one complete ASCII frame, delimiters included.
func DecodeASCIIADU(frame []byte, args ParseArgs) (*ASCIIADU, error) {
	if len(frame) < 3 || frame[0] != ':' || !bytes.HasSuffix(frame, []byte("\r\n")) {
		return nil, fmt.Errorf("%w: missing ascii delimiters", ErrInvalidFrame)
	}
	bin := make([]byte, hex.DecodedLen(len(frame)-3))
	if _, err := hex.Decode(bin, frame[1:len(frame)-2]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	a := &ASCIIADU{Response: args.Response}
	rb := NewReadBuffer(bin, BigEndian)
	if err := a.layout(args, len(bin)).decode(rb, "ModbusAsciiADU"); err != nil {
		return nil, err
	}
	if rb.BytePos() != len(bin) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidFrame, len(bin)-rb.BytePos())
	}
	return a, nil
}

// DecodeTCPADU decodes exactly one TCP frame.
func DecodeTCPADU(frame []byte, args ParseArgs) (*TCPADU, error) {
	rb := NewReadBuffer(frame, BigEndian)
	a, err := ParseTCPADU(rb, args)
	if err != nil {
		return nil, err
	}
	if rb.BytePos() != len(frame) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidFrame, len(frame)-rb.BytePos())
	}
	return a, nil
}

// DecodeRTUADU decodes exactly one RTU frame.
func DecodeRTUADU(frame []byte, args ParseArgs) (*RTUADU, error) {
	rb := NewReadBuffer(frame, BigEndian)
	a, err := ParseRTUADU(rb, args, len(frame))
	if err != nil {
		return nil, err
	}
	if rb.BytePos() != len(frame) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidFrame, len(frame)-rb.BytePos())
	}
	return a, nil
}

// crc16 is CRC-16/MODBUS (poly 0xA001 reflected, init 0xFFFF).
func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&1 != 0 {
				crc = crc>>1 ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// lrc is the two's complement of the byte sum.
func lrc(data []byte) uint16 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return uint16(-sum)
}
