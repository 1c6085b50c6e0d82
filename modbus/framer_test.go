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

func TestTCPFrameReader(t *testing.T) {
	f, err := newFramer(DriverTCP, true, 0)
	assert.NilError(t, err)
	r := &frameReader{framer: f}
	assert.Equal(t, r.state(), streamIdle)

	first := []byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x05, 0x01, 0x03, 0x02, 0x00, 0x07}
	second := []byte{0x00, 0x02, 0x00, 0x00, 0x00, 0x03, 0x01, 0x83, 0x02}

	r.feed(first[:4])
	assert.Equal(t, r.state(), streamAccumulating)
	frame, err := r.next()
	assert.NilError(t, err)
	assert.Assert(t, frame == nil)

	r.feed(first[4:])
	r.feed(second)
	assert.Equal(t, r.state(), streamFrameReady)

	frame, err = r.next()
	assert.NilError(t, err)
	assert.DeepEqual(t, frame, first)
	assert.Equal(t, f.transactionID(frame), uint16(1))

	frame, err = r.next()
	assert.NilError(t, err)
	assert.DeepEqual(t, frame, second)
	assert.Equal(t, f.transactionID(frame), uint16(2))
	assert.Equal(t, r.state(), streamIdle)
}

func TestTCPFramerRejectsOversizedLength(t *testing.T) {
	f, err := newFramer(DriverTCP, true, 0)
	assert.NilError(t, err)
	_, err = f.frameLength([]byte{0x00, 0x01, 0x00, 0x00, 0x01, 0x00})
	assert.Assert(t, errors.Is(err, ErrInvalidFrame))

	umas, err := newFramer(DriverUMAS, true, 0)
	assert.NilError(t, err)
	n, err := umas.frameLength([]byte{0x00, 0x01, 0x00, 0x00, 0x01, 0x00})
	assert.NilError(t, err)
	assert.Equal(t, n, 0)
}

func TestRTUFrameLengths(t *testing.T) {
	resp, err := newFramer(DriverRTU, true, 0)
	assert.NilError(t, err)
	req, err := newFramer(DriverRTU, false, 0)
	assert.NilError(t, err)

	tests := []struct {
		name   string
		framer framer
		buf    []byte
		want   int
	}{
		{"read request", req, []byte{0x01, 0x03}, 8},
		{"write multiple request pending count", req, []byte{0x01, 0x10, 0x00, 0x00, 0x00, 0x02}, 0},
		{"write multiple request", req, []byte{0x01, 0x10, 0x00, 0x00, 0x00, 0x02, 0x04, 0, 0, 0, 0, 0, 0}, 13},
		{"read response", resp, []byte{0x01, 0x03, 0x04, 0, 0, 0, 0, 0, 0}, 9},
		{"exception response", resp, []byte{0x01, 0x83, 0x02, 0, 0}, 5},
		{"fifo response", resp, []byte{0x01, 0x18, 0x00, 0x04, 0x00, 0x01, 0x00, 0x05, 0, 0}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := tt.framer.frameLength(tt.buf)
			assert.NilError(t, err)
			assert.Equal(t, n, tt.want)
		})
	}

	_, err = resp.frameLength([]byte{0x01, 0x41})
	assert.Assert(t, errors.Is(err, ErrUnsupportedFunctionCode))
}

func TestDeviceIdentificationFrameLength(t *testing.T) {
	adu := &RTUADU{Address: 1, Response: true, PDU: &ReadDeviceIdentificationResponse{
		Level:           DeviceIDBasic,
		ConformityLevel: 0x01,
		Objects: []DeviceIdentificationObject{
			{ObjectID: 0, Value: []byte("Edgeo")},
			{ObjectID: 1, Value: []byte("MOCK")},
		},
	}}
	out, err := adu.Encode()
	assert.NilError(t, err)

	f, err := newFramer(DriverRTU, true, 0)
	assert.NilError(t, err)
	n, err := f.frameLength(out[:len(out)-1])
	assert.NilError(t, err)
	assert.Equal(t, n, 0)
	n, err = f.frameLength(out)
	assert.NilError(t, err)
	assert.Equal(t, n, len(out))
}

func TestASCIIFrameReader(t *testing.T) {
	f, err := newFramer(DriverASCII, true, 0)
	assert.NilError(t, err)
	r := &frameReader{framer: f}

	r.feed([]byte(":010300000001"))
	assert.Equal(t, r.state(), streamAccumulating)
	r.feed([]byte("FB\r\n"))
	frame, err := r.next()
	assert.NilError(t, err)
	assert.Equal(t, string(frame), ":010300000001FB\r\n")

	r.feed([]byte("garbage"))
	_, err = r.next()
	assert.Assert(t, errors.Is(err, ErrInvalidFrame))
}
