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
	"io"
	"net"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func encodeTCP(t *testing.T, id uint16, p PDU) []byte {
	t.Helper()
	out, err := (&TCPADU{TransactionIdentifier: id, UnitIdentifier: 1, PDU: p, Response: p.Response()}).Encode()
	assert.NilError(t, err)
	return out
}

func waitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no result")
		return Result{}
	}
}

func TestHandlerCorrelatesOutOfOrderResponses(t *testing.T) {
	client, server := net.Pipe()
	h, err := NewHandler(client, DriverTCP, nil, nil, 0)
	assert.NilError(t, err)
	h.Start()
	defer h.Close()

	// Answer both requests in reverse order, echoing the transaction id
	// as register content.
	go func() {
		var frames [][]byte
		for i := 0; i < 2; i++ {
			buf := make([]byte, 12)
			if _, err := io.ReadFull(server, buf); err != nil {
				return
			}
			frames = append(frames, buf)
		}
		for i := len(frames) - 1; i >= 0; i-- {
			req, err := DecodeTCPADU(frames[i], ParseArgs{})
			if err != nil {
				return
			}
			id := req.TransactionIdentifier
			resp, _ := (&TCPADU{
				TransactionIdentifier: id,
				UnitIdentifier:        1,
				Response:              true,
				PDU:                   &ReadHoldingRegistersResponse{Value: []byte{0x00, byte(id)}},
			}).Encode()
			if _, err := server.Write(resp); err != nil {
				return
			}
		}
	}()

	args := ParseArgs{Response: true}
	id1 := h.NextTransactionID()
	id2 := h.NextTransactionID()
	assert.Assert(t, id1 != id2)

	ch1, err := h.WriteWaitForResponse(encodeTCP(t, id1, &ReadHoldingRegistersRequest{Quantity: 1}), id1, args)
	assert.NilError(t, err)
	ch2, err := h.WriteWaitForResponse(encodeTCP(t, id2, &ReadHoldingRegistersRequest{Quantity: 1}), id2, args)
	assert.NilError(t, err)

	for _, c := range []struct {
		ch <-chan Result
		id uint16
	}{{ch2, id2}, {ch1, id1}} {
		r := waitResult(t, c.ch)
		assert.NilError(t, r.Err)
		adu := r.ADU.(*TCPADU)
		assert.Equal(t, adu.TransactionIdentifier, c.id)
		resp := adu.PDU.(*ReadHoldingRegistersResponse)
		assert.DeepEqual(t, resp.Value, []byte{0x00, byte(c.id)})
	}
	assert.Equal(t, h.Pending(), 0)
}

func TestHandlerUnsolicitedFrameClosesConnection(t *testing.T) {
	client, server := net.Pipe()
	metrics := NewMetrics()
	h, err := NewHandler(client, DriverTCP, nil, metrics, 0)
	assert.NilError(t, err)
	h.Start()

	go server.Write(encodeTCP(t, 7, &ReadHoldingRegistersResponse{Value: []byte{0, 1}}))

	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed")
	}
	assert.Assert(t, errors.Is(h.Err(), ErrUnsolicitedMessage))
	assert.Equal(t, metrics.UnsolicitedFrames.Value(), int64(1))

	_, err = h.WriteWaitForResponse([]byte{0}, 1, ParseArgs{})
	assert.Assert(t, errors.Is(err, ErrUnsolicitedMessage))
}

func TestHandlerCloseFailsPendingTransactions(t *testing.T) {
	client, server := net.Pipe()
	h, err := NewHandler(client, DriverTCP, nil, nil, 0)
	assert.NilError(t, err)
	h.Start()
	go io.Copy(io.Discard, server)

	ch, err := h.WriteWaitForResponse(encodeTCP(t, 1, &ReadCoilsRequest{Quantity: 1}), 1, ParseArgs{Response: true})
	assert.NilError(t, err)
	assert.Equal(t, h.Pending(), 1)

	assert.NilError(t, h.Close())
	r := waitResult(t, ch)
	assert.Assert(t, errors.Is(r.Err, ErrConnectionClosed))
	assert.Equal(t, h.Pending(), 0)
}

func TestHandlerRejectsDuplicateTransactionID(t *testing.T) {
	client, server := net.Pipe()
	h, err := NewHandler(client, DriverTCP, nil, nil, 0)
	assert.NilError(t, err)
	h.Start()
	defer h.Close()
	go io.Copy(io.Discard, server)

	payload := encodeTCP(t, 9, &ReadCoilsRequest{Quantity: 1})
	_, err = h.WriteWaitForResponse(payload, 9, ParseArgs{Response: true})
	assert.NilError(t, err)
	_, err = h.WriteWaitForResponse(payload, 9, ParseArgs{Response: true})
	assert.Assert(t, errors.Is(err, ErrTransactionInUse))

	h.Cancel(9)
	assert.Equal(t, h.Pending(), 0)
}

func TestHandlerDecodeFailureClosesConnection(t *testing.T) {
	client, server := net.Pipe()
	h, err := NewHandler(client, DriverTCP, nil, nil, 0)
	assert.NilError(t, err)
	h.Start()

	go func() {
		buf := make([]byte, 12)
		if _, err := io.ReadFull(server, buf); err != nil {
			return
		}
		// Byte count claims four bytes, only two follow.
		server.Write([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x05, 0x01, 0x03, 0x04, 0x00, 0x01})
	}()

	ch, err := h.WriteWaitForResponse(encodeTCP(t, 1, &ReadHoldingRegistersRequest{Quantity: 2}), 1, ParseArgs{Response: true})
	assert.NilError(t, err)
	r := waitResult(t, ch)
	assert.Assert(t, errors.Is(r.Err, ErrBufferUnderflow))

	<-h.Done()
	assert.Assert(t, errors.Is(h.Err(), ErrConnectionClosed))
}

func TestHandlerCountsTruncatedFrame(t *testing.T) {
	client, server := net.Pipe()
	m := NewMetrics()
	h, err := NewHandler(client, DriverTCP, quietLogger(), m, 0)
	assert.NilError(t, err)
	h.Start()

	go func() {
		// MBAP header promises five more bytes; the peer hangs up first.
		server.Write([]byte{0x00, 0x01, 0x00, 0x00, 0x00, 0x05, 0x01})
		server.Close()
	}()

	<-h.Done()
	assert.Assert(t, errors.Is(h.Err(), ErrConnectionClosed))
	assert.Equal(t, m.Snapshot().DecodeErrors, int64(1))
}

func TestHandlerCleanCloseIsNotADecodeError(t *testing.T) {
	client, server := net.Pipe()
	m := NewMetrics()
	h, err := NewHandler(client, DriverTCP, quietLogger(), m, 0)
	assert.NilError(t, err)
	h.Start()

	server.Close()
	<-h.Done()
	assert.Equal(t, m.Snapshot().DecodeErrors, int64(0))
}

func TestSerialHandlerUsesTransactionZero(t *testing.T) {
	client, _ := net.Pipe()
	h, err := NewHandler(client, DriverRTU, nil, nil, 0)
	assert.NilError(t, err)
	defer h.Close()
	assert.Equal(t, h.NextTransactionID(), uint16(0))
	assert.Equal(t, h.NextTransactionID(), uint16(0))
}
