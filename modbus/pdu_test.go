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
	"reflect"
	"testing"

	"gotest.tools/v3/assert"
)

func TestDecodeReadDiscreteInputsRequest(t *testing.T) {
	p, err := DecodePDU([]byte{0x02, 0x00, 0x05, 0x00, 0x02}, ParseArgs{})
	assert.NilError(t, err)

	req, ok := p.(*ReadDiscreteInputsRequest)
	assert.Assert(t, ok, "got %T", p)
	assert.Equal(t, req.StartingAddress, uint16(5))
	assert.Equal(t, req.Quantity, uint16(2))
	assert.Equal(t, PDULengthInBytes(req), 5)
}

func TestExceptionResponse(t *testing.T) {
	out, err := EncodePDU(&ExceptionResponse{
		Function:      FunctionReadHoldingRegisters,
		ExceptionCode: ExceptionServerDeviceFailure,
	})
	assert.NilError(t, err)
	assert.DeepEqual(t, out, []byte{0x83, 0x04})

	p, err := DecodePDU(out, ParseArgs{Response: true})
	assert.NilError(t, err)
	exc, ok := p.(*ExceptionResponse)
	assert.Assert(t, ok, "got %T", p)
	assert.Equal(t, exc.Function, FunctionReadHoldingRegisters)
	assert.Equal(t, exc.ExceptionCode, ExceptionServerDeviceFailure)
	assert.Assert(t, exc.ErrorFlag())
}

func TestErrorFlagIgnoresFunctionTable(t *testing.T) {
	// 0x41 has no grammar, yet the error flag still selects an exception.
	p, err := DecodePDU([]byte{0xC1, 0x01}, ParseArgs{Response: true})
	assert.NilError(t, err)
	exc := p.(*ExceptionResponse)
	assert.Equal(t, exc.Function, FunctionCode(0x41))
	assert.Equal(t, exc.ExceptionCode, ExceptionIllegalFunction)
}

func TestDecodeUnsupportedFunction(t *testing.T) {
	_, err := DecodePDU([]byte{0x41, 0x00}, ParseArgs{})
	assert.Assert(t, errors.Is(err, ErrUnsupportedFunctionCode))
}

func TestDecodeTrailingBytes(t *testing.T) {
	_, err := DecodePDU([]byte{0x03, 0x00, 0x00, 0x00, 0x01, 0xFF}, ParseArgs{})
	assert.Assert(t, errors.Is(err, ErrInvalidFrame))
}

func TestDecodeTruncated(t *testing.T) {
	_, err := DecodePDU([]byte{0x03, 0x02, 0x00}, ParseArgs{Response: true})
	assert.Assert(t, errors.Is(err, ErrBufferUnderflow))
}

func TestPDUFixtures(t *testing.T) {
	tests := []struct {
		name string
		pdu  PDU
		want []byte
	}{
		{
			name: "read coils response",
			pdu:  &ReadCoilsResponse{Value: []byte{0xCD, 0x6B, 0x05}},
			want: []byte{0x01, 0x03, 0xCD, 0x6B, 0x05},
		},
		{
			name: "write single coil",
			pdu:  &WriteSingleCoilRequest{Address: 0x00AC, Value: CoilOn},
			want: []byte{0x05, 0x00, 0xAC, 0xFF, 0x00},
		},
		{
			name: "write multiple registers",
			pdu: &WriteMultipleRegistersRequest{
				StartingAddress: 0x0001,
				Quantity:        2,
				Value:           []byte{0x00, 0x0A, 0x01, 0x02},
			},
			want: []byte{0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02},
		},
		{
			name: "mask write register",
			pdu:  &MaskWriteRegisterRequest{ReferenceAddress: 0x0004, AndMask: 0x00F2, OrMask: 0x0025},
			want: []byte{0x16, 0x00, 0x04, 0x00, 0xF2, 0x00, 0x25},
		},
		{
			name: "read fifo queue response",
			pdu:  &ReadFIFOQueueResponse{FIFOValues: []uint16{0x01B8, 0x1284}},
			want: []byte{0x18, 0x00, 0x06, 0x00, 0x02, 0x01, 0xB8, 0x12, 0x84},
		},
		{
			name: "read file record request",
			pdu: &ReadFileRecordRequest{Items: []FileRecordRequestItem{
				{ReferenceType: FileRecordReferenceType, FileNumber: 4, RecordNumber: 1, RecordLength: 2},
				{ReferenceType: FileRecordReferenceType, FileNumber: 3, RecordNumber: 9, RecordLength: 2},
			}},
			want: []byte{
				0x14, 0x0E,
				0x06, 0x00, 0x04, 0x00, 0x01, 0x00, 0x02,
				0x06, 0x00, 0x03, 0x00, 0x09, 0x00, 0x02,
			},
		},
		{
			name: "write file record request",
			pdu: &WriteFileRecordRequest{Items: []FileRecordWriteItem{
				{ReferenceType: FileRecordReferenceType, FileNumber: 4, RecordNumber: 7, Data: []byte{0x06, 0xAF, 0x04, 0xBE, 0x10, 0x0D}},
			}},
			want: []byte{
				0x15, 0x0D,
				0x06, 0x00, 0x04, 0x00, 0x07, 0x00, 0x03,
				0x06, 0xAF, 0x04, 0xBE, 0x10, 0x0D,
			},
		},
		{
			name: "read device identification request",
			pdu:  &ReadDeviceIdentificationRequest{Level: DeviceIDBasic, ObjectID: 0},
			want: []byte{0x2B, 0x0E, 0x01, 0x00},
		},
		{
			name: "read device identification response",
			pdu: &ReadDeviceIdentificationResponse{
				Level:            DeviceIDBasic,
				IndividualAccess: true,
				ConformityLevel:  0x01,
				Objects: []DeviceIdentificationObject{
					{ObjectID: DeviceObjectVendorName, Value: []byte("Edgeo")},
				},
			},
			want: []byte{0x2B, 0x0E, 0x01, 0x81, 0x00, 0x00, 0x01, 0x00, 0x05, 'E', 'd', 'g', 'e', 'o'},
		},
		{
			name: "com event log response",
			pdu: &GetComEventLogResponse{
				Status:       0x0000,
				EventCount:   0x0108,
				MessageCount: 0x0121,
				Events:       []byte{0x20, 0x00},
			},
			want: []byte{0x0C, 0x08, 0x00, 0x00, 0x01, 0x08, 0x01, 0x21, 0x20, 0x00},
		},
		{
			name: "read exception status request",
			pdu:  &ReadExceptionStatusRequest{},
			want: []byte{0x07},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := EncodePDU(tt.pdu)
			assert.NilError(t, err)
			assert.DeepEqual(t, out, tt.want)
			assert.Equal(t, PDULengthInBytes(tt.pdu), len(tt.want))

			p, err := DecodePDU(tt.want, ParseArgs{Response: tt.pdu.Response()})
			assert.NilError(t, err)
			again, err := EncodePDU(p)
			assert.NilError(t, err)
			assert.DeepEqual(t, again, tt.want)
		})
	}
}

func TestEncodeRejectsOverflowingFields(t *testing.T) {
	_, err := EncodePDU(&ReadHoldingRegistersResponse{Value: make([]byte, 256)})
	assert.Assert(t, errors.Is(err, ErrInvalidValue))

	_, err = EncodePDU(&ReadDeviceIdentificationResponse{Level: DeviceIDBasic, ConformityLevel: 0x81})
	assert.Assert(t, errors.Is(err, ErrInvalidValue))

	_, err = EncodePDU(&WriteFileRecordRequest{Items: []FileRecordWriteItem{
		{ReferenceType: FileRecordReferenceType, FileNumber: 1, Data: []byte{0x01, 0x02, 0x03}},
	}})
	assert.Assert(t, errors.Is(err, ErrInvalidValue))
}

// samplePDUs holds one populated PDU per function table entry.
func samplePDUs() []PDU {
	items := []FileRecordWriteItem{
		{ReferenceType: FileRecordReferenceType, FileNumber: 4, RecordNumber: 7, Data: []byte{0x06, 0xAF}},
	}
	return []PDU{
		&ReadCoilsRequest{StartingAddress: 0x13, Quantity: 19},
		&ReadCoilsResponse{Value: []byte{0xCD, 0x6B, 0x05}},
		&ReadDiscreteInputsRequest{StartingAddress: 0xC4, Quantity: 22},
		&ReadDiscreteInputsResponse{Value: []byte{0xAC, 0xDB, 0x35}},
		&ReadHoldingRegistersRequest{StartingAddress: 0x6B, Quantity: 3},
		&ReadHoldingRegistersResponse{Value: []byte{0x02, 0x2B, 0x00, 0x00, 0x00, 0x64}},
		&ReadInputRegistersRequest{StartingAddress: 0x08, Quantity: 1},
		&ReadInputRegistersResponse{Value: []byte{0x00, 0x0A}},
		&WriteSingleCoilRequest{Address: 0xAC, Value: CoilOn},
		&WriteSingleCoilResponse{Address: 0xAC, Value: CoilOn},
		&WriteSingleRegisterRequest{Address: 0x01, Value: 0x03},
		&WriteSingleRegisterResponse{Address: 0x01, Value: 0x03},
		&ReadExceptionStatusRequest{},
		&ReadExceptionStatusResponse{Value: 0x6D},
		&DiagnosticRequest{SubFunction: 0x0000, Data: 0xA537},
		&DiagnosticResponse{SubFunction: 0x0000, Data: 0xA537},
		&GetComEventCounterRequest{},
		&GetComEventCounterResponse{Status: 0xFFFF, EventCount: 0x0108},
		&GetComEventLogRequest{},
		&GetComEventLogResponse{EventCount: 0x0108, MessageCount: 0x0121, Events: []byte{0x20, 0x00}},
		&WriteMultipleCoilsRequest{StartingAddress: 0x13, Quantity: 10, Value: []byte{0xCD, 0x01}},
		&WriteMultipleCoilsResponse{StartingAddress: 0x13, Quantity: 10},
		&WriteMultipleRegistersRequest{StartingAddress: 0x01, Quantity: 2, Value: []byte{0x00, 0x0A, 0x01, 0x02}},
		&WriteMultipleRegistersResponse{StartingAddress: 0x01, Quantity: 2},
		&ReportServerIDRequest{},
		&ReportServerIDResponse{Value: []byte{0x42, 0xFF}},
		&ReadFileRecordRequest{Items: []FileRecordRequestItem{
			{ReferenceType: FileRecordReferenceType, FileNumber: 4, RecordNumber: 1, RecordLength: 2},
		}},
		&ReadFileRecordResponse{Items: []FileRecordResponseItem{
			{ReferenceType: FileRecordReferenceType, Data: []byte{0x0D, 0xFE, 0x00, 0x20}},
		}},
		&WriteFileRecordRequest{Items: items},
		&WriteFileRecordResponse{Items: items},
		&MaskWriteRegisterRequest{ReferenceAddress: 0x04, AndMask: 0xF2, OrMask: 0x25},
		&MaskWriteRegisterResponse{ReferenceAddress: 0x04, AndMask: 0xF2, OrMask: 0x25},
		&ReadWriteMultipleRegistersRequest{
			ReadStartingAddress: 0x03, ReadQuantity: 6,
			WriteStartingAddress: 0x0E, WriteQuantity: 1, Value: []byte{0x00, 0xFF},
		},
		&ReadWriteMultipleRegistersResponse{Value: []byte{0x00, 0xFE, 0x0A, 0xCD}},
		&ReadFIFOQueueRequest{FIFOPointerAddress: 0x04DE},
		&ReadFIFOQueueResponse{FIFOValues: []uint16{0x01B8, 0x1284}},
		&ReadDeviceIdentificationRequest{Level: DeviceIDRegular, ObjectID: 0x03},
		&ReadDeviceIdentificationResponse{
			Level:           DeviceIDRegular,
			ConformityLevel: 0x02,
			MoreFollows:     0xFF,
			NextObjectID:    0x04,
			Objects:         []DeviceIdentificationObject{{ObjectID: 0x03, Value: []byte("edgeo")}},
		},
	}
}

func TestEveryFunctionEncodesAndDispatches(t *testing.T) {
	covered := make(map[pduKey]bool)
	for _, p := range samplePDUs() {
		key := pduKey{p.FunctionCode(), p.Response()}
		covered[key] = true
		name := pduName(p)
		t.Run(name, func(t *testing.T) {
			out, err := EncodePDU(p)
			assert.NilError(t, err)
			assert.Equal(t, len(out), PDULengthInBytes(p))

			back, err := DecodePDU(out, ParseArgs{Response: p.Response()})
			assert.NilError(t, err)
			assert.Equal(t, pduName(back), name)
			assert.Equal(t, reflect.TypeOf(back), reflect.TypeOf(p))

			again, err := EncodePDU(back)
			assert.NilError(t, err)
			assert.DeepEqual(t, again, out)
		})
	}

	for key, entry := range pduTable {
		if key.function == FunctionUmas {
			continue
		}
		assert.Assert(t, covered[key], "no sample for %s", entry.name)
	}
}

func TestRequestResponseGrammars(t *testing.T) {
	// The same bytes parse differently depending on direction.
	data := []byte{0x03, 0x02, 0x00, 0x07}

	p, err := DecodePDU(data, ParseArgs{Response: true})
	assert.NilError(t, err)
	resp := p.(*ReadHoldingRegistersResponse)
	assert.DeepEqual(t, resp.Value, []byte{0x00, 0x07})

	_, err = DecodePDU(data, ParseArgs{Response: false})
	assert.Assert(t, errors.Is(err, ErrBufferUnderflow))
}

func TestDeviceIdentificationConstMismatch(t *testing.T) {
	_, err := DecodePDU([]byte{0x2B, 0x0D, 0x01, 0x00}, ParseArgs{})
	assert.Assert(t, errors.Is(err, ErrConstMismatch))
}

func TestFileRecordByteCountMismatch(t *testing.T) {
	// byteCount claims 8 bytes but the item only covers 7.
	_, err := DecodePDU([]byte{0x14, 0x08, 0x06, 0x00, 0x04, 0x00, 0x01, 0x00, 0x02, 0x00}, ParseArgs{})
	assert.Assert(t, err != nil)
}

func TestFunctionCodeString(t *testing.T) {
	assert.Equal(t, FunctionReadHoldingRegisters.String(), "ReadHoldingRegisters")
	assert.Equal(t, FunctionCode(0x41).String(), "function(0x41)")
	assert.Equal(t, ExceptionIllegalDataAddress.Error(), "modbus exception: illegal-data-address")
}
