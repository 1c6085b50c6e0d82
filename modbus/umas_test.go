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

func TestUmasInitCommsRequest(t *testing.T) {
	out, err := EncodePDU(NewUmasRequest(0, &UmasInitCommsRequest{UnknownObject: 0x01}))
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x5A, 0x00, 0x01, 0x01})

	p, err := DecodePDU(out, ParseArgs{})
	assert.NilError(t, err)
	umas := p.(*UmasPDU)
	assert.Assert(t, !umas.Response())
	assert.Equal(t, umas.Item.RequestFunctionKey, UmasInitComms)
	assert.Equal(t, umas.Item.ByteLength, 3)
	body := umas.Item.Body.(*UmasInitCommsRequest)
	assert.Equal(t, body.UnknownObject, uint8(1))
}

func TestUmasReadVariableRequestIsLittleEndian(t *testing.T) {
	req := NewUmasRequest(0, &UmasReadVariableRequest{
		CRC: 0x5EED0001,
		Variables: []VariableReadRequestReference{
			{DataSizeIndex: 2, Block: 0x0010, Offset: 4},
			{IsArray: 1, DataSizeIndex: 3, Block: 0x0010, BaseOffset: 0x0100, Offset: 8, ArrayLength: 3},
		},
	})
	out, err := EncodePDU(req)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{
		0x5A, 0x00, 0x22,
		0x01, 0x00, 0xED, 0x5E,
		0x02,
		0x00, 0x02, 0x10, 0x00, 0x01, 0x00, 0x00, 0x04,
		0x01, 0x03, 0x10, 0x00, 0x01, 0x00, 0x01, 0x08, 0x03, 0x00,
	})
	assert.Equal(t, PDULengthInBytes(req), len(out))

	p, err := DecodePDU(out, ParseArgs{})
	assert.NilError(t, err)
	body := p.(*UmasPDU).Item.Body.(*UmasReadVariableRequest)
	assert.Equal(t, body.CRC, uint32(0x5EED0001))
	assert.Equal(t, len(body.Variables), 2)
	assert.Equal(t, body.Variables[1].ArrayLength, uint16(3))
	assert.Equal(t, body.Variables[1].BaseOffset, uint16(0x0100))
}

func TestUmasReadVariableResponseUsesFrameLength(t *testing.T) {
	data := []byte{0x5A, 0x00, 0xFE, 0x01, 0x02, 0x03}
	p, err := DecodePDU(data, ParseArgs{Response: true, UmasRequestFunctionKey: UmasReadVariables})
	assert.NilError(t, err)

	umas := p.(*UmasPDU)
	assert.Assert(t, umas.Response())
	assert.Equal(t, umas.Item.RequestFunctionKey, UmasReadVariables)
	body := umas.Item.Body.(*UmasReadVariableResponse)
	assert.DeepEqual(t, body.Block, []byte{0x01, 0x02, 0x03})

	out, err := EncodePDU(umas)
	assert.NilError(t, err)
	assert.DeepEqual(t, out, data)
}

func TestUmasResponseNeedsRequestKey(t *testing.T) {
	_, err := DecodePDU([]byte{0x5A, 0x00, 0xFE, 0x01}, ParseArgs{Response: true})
	assert.Assert(t, errors.Is(err, ErrUnsupportedFunctionCode))
}

func TestUmasErrorResponse(t *testing.T) {
	p, err := DecodePDU([]byte{0x5A, 0x07, 0xFD, 0x81}, ParseArgs{Response: true, UmasRequestFunctionKey: UmasWriteVariables})
	assert.NilError(t, err)
	item := p.(*UmasPDU).Item
	assert.Equal(t, item.PairingKey, uint8(0x07))
	assert.Equal(t, item.RequestFunctionKey, UmasWriteVariables)
	body := item.Body.(*UmasErrorResponse)
	assert.DeepEqual(t, body.Data, []byte{0x81})
}

func TestUmasResponsesRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		request UmasFunction
		body    UmasBody
	}{
		{"init comms", UmasInitComms, &UmasInitCommsResponse{
			MaxFrameSize: 0x03FE, FirmwareVersion: 0x0201, InternalCode: 7, Hostname: "MOCKPLC",
		}},
		{"plc ident", UmasReadID, &UmasPlcIdentResponse{
			Range: 1, Ident: 0x0A0B0C0D, Model: 0x0108, Hostname: "MOCKPLC",
			MemoryIdents: []PlcMemoryBlockIdent{{BlockType: 1, MemoryLength: 0x10000}, {BlockType: 2, Folio: 1}},
		}},
		{"plc status", UmasReadPlcStatus, &UmasPlcStatusResponse{Blocks: []uint32{1, 2, 3, 0x5EED0001}}},
		{"memory block", UmasReadMemoryBlock, &UmasReadMemoryBlockResponse{Range: 1, Block: []byte{0xAA, 0xBB}}},
		{"write variables", UmasWriteVariables, &UmasWriteVariableResponse{}},
		{"unlocated variable names", UmasReadUnlocatedVariableNames, &UmasReadUnlocatedVariableNamesResponse{
			Range: 1, NextAddress: 0x0002,
			Records: []UmasUnlocatedVariableReference{
				{DataType: uint16(UmasINT), Block: 0x10, Offset: 2, Value: "SPEED"},
				{DataType: uint16(UmasREAL), Block: 0x10, Offset: 4, BaseOffset: 0x100, Value: "TEMP"},
			},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item := &UmasItem{PairingKey: 0, RequestFunctionKey: tt.request, Body: tt.body}
			out, err := EncodePDU(&UmasPDU{Item: item})
			assert.NilError(t, err)
			assert.Equal(t, len(out), item.LengthInBytes()+1)

			p, err := DecodePDU(out, ParseArgs{Response: true, UmasRequestFunctionKey: tt.request})
			assert.NilError(t, err)
			back := p.(*UmasPDU).Item
			assert.Equal(t, umasBodyName(back.Body), umasBodyName(tt.body))
			assert.Equal(t, back.ByteLength, len(out)-1)

			again, err := EncodePDU(p)
			assert.NilError(t, err)
			assert.DeepEqual(t, again, out)
		})
	}
}

func TestUmasVariableNamesRecordDecodes(t *testing.T) {
	resp := &UmasReadUnlocatedVariableNamesResponse{
		Records: []UmasUnlocatedVariableReference{{DataType: uint16(UmasDINT), Block: 3, Offset: 6, Value: "COUNT"}},
	}
	out, err := EncodePDU(&UmasPDU{Item: &UmasItem{Body: resp}})
	assert.NilError(t, err)

	p, err := DecodePDU(out, ParseArgs{Response: true, UmasRequestFunctionKey: UmasReadUnlocatedVariableNames})
	assert.NilError(t, err)
	back := p.(*UmasPDU).Item.Body.(*UmasReadUnlocatedVariableNamesResponse)
	assert.Equal(t, len(back.Records), 1)
	assert.Equal(t, back.Records[0].Value, "COUNT")
	assert.Equal(t, back.Records[0].Offset, uint16(6))
	assert.Equal(t, UmasDataType(back.Records[0].DataType), UmasDINT)
}

func TestUmasPlcStatusProjectCRC(t *testing.T) {
	assert.Equal(t, (&UmasPlcStatusResponse{Blocks: []uint32{1, 2, 3, 4}}).ProjectCRC(), uint32(4))
	assert.Equal(t, (&UmasPlcStatusResponse{Blocks: []uint32{1}}).ProjectCRC(), uint32(0))
}

func TestUmasWriteVariableRecordLength(t *testing.T) {
	req := NewUmasRequest(0, &UmasWriteVariableRequest{
		CRC: 1,
		Variables: []VariableWriteRequestReference{{
			VariableReadRequestReference: VariableReadRequestReference{IsArray: 1, DataSizeIndex: 2, Block: 1, ArrayLength: 2},
			RecordData:                   []byte{0x01, 0x00, 0x02, 0x00},
		}},
	})
	out, err := EncodePDU(req)
	assert.NilError(t, err)

	p, err := DecodePDU(out, ParseArgs{})
	assert.NilError(t, err)
	body := p.(*UmasPDU).Item.Body.(*UmasWriteVariableRequest)
	assert.DeepEqual(t, body.Variables[0].RecordData, []byte{0x01, 0x00, 0x02, 0x00})
}
