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

	goburrow "github.com/goburrow/modbus"
	"gotest.tools/v3/assert"
)

func TestTCPADUEncode(t *testing.T) {
	adu := &TCPADU{
		TransactionIdentifier: 1,
		UnitIdentifier:        0x11,
		PDU:                   &ReadHoldingRegistersRequest{StartingAddress: 0x006B, Quantity: 3},
	}
	out, err := adu.Encode()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x11, 0x03, 0x00, 0x6B, 0x00, 0x03})
	assert.Equal(t, adu.LengthInBytes(), len(out))
}

func TestTCPADUBadProtocolIdentifier(t *testing.T) {
	_, err := DecodeTCPADU([]byte{0x00, 0x01, 0x00, 0x01, 0x00, 0x02, 0x11, 0x07}, ParseArgs{})
	assert.Assert(t, errors.Is(err, ErrConstMismatch))
}

func TestRTUADUEncode(t *testing.T) {
	adu := &RTUADU{Address: 0x01, PDU: &ReadHoldingRegistersRequest{Quantity: 10}}
	out, err := adu.Encode()
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCD})
	assert.Equal(t, adu.LengthInBytes(), 8)
}

func TestRTUADUChecksumMismatch(t *testing.T) {
	_, err := DecodeRTUADU([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A, 0xC5, 0xCE}, ParseArgs{})
	assert.Assert(t, errors.Is(err, ErrChecksumMismatch))
}

func TestASCIIADUEncode(t *testing.T) {
	adu := &ASCIIADU{Address: 0x01, PDU: &ReadHoldingRegistersRequest{Quantity: 1}}
	out, err := adu.Encode()
	assert.NilError(t, err)
	assert.Equal(t, string(out), ":010300000001FB\r\n")
	assert.Equal(t, adu.LengthInBytes(), len(out))

	back, err := DecodeASCIIADU(out, ParseArgs{})
	assert.NilError(t, err)
	assert.Equal(t, back.Address, uint8(1))
	req := back.PDU.(*ReadHoldingRegistersRequest)
	assert.Equal(t, req.Quantity, uint16(1))
}

func TestASCIIADUErrors(t *testing.T) {
	_, err := DecodeASCIIADU([]byte("010300000001FB\r\n"), ParseArgs{})
	assert.Assert(t, errors.Is(err, ErrInvalidFrame))

	_, err = DecodeASCIIADU([]byte(":0103000000ZZFB\r\n"), ParseArgs{})
	assert.Assert(t, errors.Is(err, ErrInvalidFrame))

	_, err = DecodeASCIIADU([]byte(":010300000001FC\r\n"), ParseArgs{})
	assert.Assert(t, errors.Is(err, ErrChecksumMismatch))
}

func TestChecksums(t *testing.T) {
	assert.Equal(t, crc16([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A}), uint16(0xCDC5))
	assert.Equal(t, lrc([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x01}), uint16(0xFB))
	assert.Equal(t, lrc(nil), uint16(0))
}

// The frames must match what an independent implementation produces.
func TestADUsMatchGoburrowPackagers(t *testing.T) {
	pdu := &goburrow.ProtocolDataUnit{
		FunctionCode: byte(FunctionWriteMultipleRegisters),
		Data:         []byte{0x00, 0x10, 0x00, 0x02, 0x04, 0x12, 0x34, 0xAB, 0xCD},
	}
	ours := &WriteMultipleRegistersRequest{
		StartingAddress: 0x0010,
		Quantity:        2,
		Value:           []byte{0x12, 0x34, 0xAB, 0xCD},
	}

	t.Run("tcp", func(t *testing.T) {
		h := goburrow.NewTCPClientHandler("localhost:502")
		h.SlaveId = 0x07
		want, err := h.Encode(pdu)
		assert.NilError(t, err)

		decoded, err := DecodeTCPADU(want, ParseArgs{})
		assert.NilError(t, err)
		assert.Equal(t, decoded.UnitIdentifier, uint8(0x07))

		got, err := (&TCPADU{
			TransactionIdentifier: decoded.TransactionIdentifier,
			UnitIdentifier:        0x07,
			PDU:                   ours,
		}).Encode()
		assert.NilError(t, err)
		assert.DeepEqual(t, got, want)
	})

	t.Run("rtu", func(t *testing.T) {
		h := goburrow.NewRTUClientHandler("/dev/null")
		h.SlaveId = 0x07
		want, err := h.Encode(pdu)
		assert.NilError(t, err)

		got, err := (&RTUADU{Address: 0x07, PDU: ours}).Encode()
		assert.NilError(t, err)
		assert.DeepEqual(t, got, want)

		decoded, err := h.Decode(got)
		assert.NilError(t, err)
		assert.DeepEqual(t, decoded.Data, pdu.Data)
	})

	t.Run("ascii", func(t *testing.T) {
		h := goburrow.NewASCIIClientHandler("/dev/null")
		h.SlaveId = 0x07
		want, err := h.Encode(pdu)
		assert.NilError(t, err)

		got, err := (&ASCIIADU{Address: 0x07, PDU: ours}).Encode()
		assert.NilError(t, err)
		assert.Equal(t, string(got), string(want))
	})
}

func TestRTUResponseRoundTrip(t *testing.T) {
	adu := &RTUADU{Address: 0x11, Response: true, PDU: &ReadInputRegistersResponse{Value: []byte{0x00, 0x0A}}}
	out, err := adu.Encode()
	assert.NilError(t, err)

	back, err := DecodeRTUADU(out, ParseArgs{Response: true})
	assert.NilError(t, err)
	resp := back.PDU.(*ReadInputRegistersResponse)
	assert.DeepEqual(t, resp.Value, []byte{0x00, 0x0A})
}
