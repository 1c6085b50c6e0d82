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

// Coil values for WriteSingleCoil
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// byteCounted is the common "byteCount u8, value u8[byteCount]" tail.
func byteCounted(value *[]byte) layout {
	var byteCount uint64
	return layout{
		implicitF("byteCount", 8, func() uint64 { return uint64(len(*value)) }, &byteCount),
		bytesF("value", value, func() int { return int(byteCount) }),
	}
}

func rangeLayout(start, quantity *uint16) layout {
	return layout{
		uintF("startingAddress", 16, start),
		uintF("quantity", 16, quantity),
	}
}

type ReadCoilsRequest struct {
	request
	StartingAddress uint16
	Quantity        uint16
}

func (*ReadCoilsRequest) FunctionCode() FunctionCode { return FunctionReadCoils }
func (p *ReadCoilsRequest) layout() layout           { return rangeLayout(&p.StartingAddress, &p.Quantity) }

type ReadCoilsResponse struct {
	response
	Value []byte
}

func (*ReadCoilsResponse) FunctionCode() FunctionCode { return FunctionReadCoils }
func (p *ReadCoilsResponse) layout() layout           { return byteCounted(&p.Value) }

type ReadDiscreteInputsRequest struct {
	request
	StartingAddress uint16
	Quantity        uint16
}

func (*ReadDiscreteInputsRequest) FunctionCode() FunctionCode { return FunctionReadDiscreteInputs }
func (p *ReadDiscreteInputsRequest) layout() layout           { return rangeLayout(&p.StartingAddress, &p.Quantity) }

type ReadDiscreteInputsResponse struct {
	response
	Value []byte
}

func (*ReadDiscreteInputsResponse) FunctionCode() FunctionCode { return FunctionReadDiscreteInputs }
func (p *ReadDiscreteInputsResponse) layout() layout           { return byteCounted(&p.Value) }

type ReadHoldingRegistersRequest struct {
	request
	StartingAddress uint16
	Quantity        uint16
}

func (*ReadHoldingRegistersRequest) FunctionCode() FunctionCode { return FunctionReadHoldingRegisters }
func (p *ReadHoldingRegistersRequest) layout() layout           { return rangeLayout(&p.StartingAddress, &p.Quantity) }

type ReadHoldingRegistersResponse struct {
	response
	Value []byte
}

func (*ReadHoldingRegistersResponse) FunctionCode() FunctionCode { return FunctionReadHoldingRegisters }
func (p *ReadHoldingRegistersResponse) layout() layout           { return byteCounted(&p.Value) }

type ReadInputRegistersRequest struct {
	request
	StartingAddress uint16
	Quantity        uint16
}

func (*ReadInputRegistersRequest) FunctionCode() FunctionCode { return FunctionReadInputRegisters }
func (p *ReadInputRegistersRequest) layout() layout           { return rangeLayout(&p.StartingAddress, &p.Quantity) }

type ReadInputRegistersResponse struct {
	response
	Value []byte
}

func (*ReadInputRegistersResponse) FunctionCode() FunctionCode { return FunctionReadInputRegisters }
func (p *ReadInputRegistersResponse) layout() layout           { return byteCounted(&p.Value) }

type WriteSingleCoilRequest struct {
	request
	Address uint16
	Value   uint16
}

func (*WriteSingleCoilRequest) FunctionCode() FunctionCode { return FunctionWriteSingleCoil }

func (p *WriteSingleCoilRequest) layout() layout {
	return layout{uintF("address", 16, &p.Address), uintF("value", 16, &p.Value)}
}

type WriteSingleCoilResponse struct {
	response
	Address uint16
	Value   uint16
}

func (*WriteSingleCoilResponse) FunctionCode() FunctionCode { return FunctionWriteSingleCoil }

func (p *WriteSingleCoilResponse) layout() layout {
	return layout{uintF("address", 16, &p.Address), uintF("value", 16, &p.Value)}
}

type WriteSingleRegisterRequest struct {
	request
	Address uint16
	Value   uint16
}

func (*WriteSingleRegisterRequest) FunctionCode() FunctionCode { return FunctionWriteSingleRegister }

func (p *WriteSingleRegisterRequest) layout() layout {
	return layout{uintF("address", 16, &p.Address), uintF("value", 16, &p.Value)}
}

type WriteSingleRegisterResponse struct {
	response
	Address uint16
	Value   uint16
}

func (*WriteSingleRegisterResponse) FunctionCode() FunctionCode { return FunctionWriteSingleRegister }

func (p *WriteSingleRegisterResponse) layout() layout {
	return layout{uintF("address", 16, &p.Address), uintF("value", 16, &p.Value)}
}

// WriteMultipleCoilsRequest carries packed coil states, LSB first.
type WriteMultipleCoilsRequest struct {
	request
	StartingAddress uint16
	Quantity        uint16
	Value           []byte
}

func (*WriteMultipleCoilsRequest) FunctionCode() FunctionCode { return FunctionWriteMultipleCoils }

func (p *WriteMultipleCoilsRequest) layout() layout {
	return append(rangeLayout(&p.StartingAddress, &p.Quantity), byteCounted(&p.Value)...)
}

type WriteMultipleCoilsResponse struct {
	response
	StartingAddress uint16
	Quantity        uint16
}

func (*WriteMultipleCoilsResponse) FunctionCode() FunctionCode { return FunctionWriteMultipleCoils }
func (p *WriteMultipleCoilsResponse) layout() layout           { return rangeLayout(&p.StartingAddress, &p.Quantity) }

type WriteMultipleRegistersRequest struct {
	request
	StartingAddress uint16
	Quantity        uint16
	Value           []byte
}

func (*WriteMultipleRegistersRequest) FunctionCode() FunctionCode {
	return FunctionWriteMultipleRegisters
}

func (p *WriteMultipleRegistersRequest) layout() layout {
	return append(rangeLayout(&p.StartingAddress, &p.Quantity), byteCounted(&p.Value)...)
}

type WriteMultipleRegistersResponse struct {
	response
	StartingAddress uint16
	Quantity        uint16
}

func (*WriteMultipleRegistersResponse) FunctionCode() FunctionCode {
	return FunctionWriteMultipleRegisters
}

func (p *WriteMultipleRegistersResponse) layout() layout {
	return rangeLayout(&p.StartingAddress, &p.Quantity)
}

// MaskWriteRegisterRequest sets register = (register AND AndMask) OR (OrMask AND NOT AndMask).
type MaskWriteRegisterRequest struct {
	request
	ReferenceAddress uint16
	AndMask          uint16
	OrMask           uint16
}

func (*MaskWriteRegisterRequest) FunctionCode() FunctionCode { return FunctionMaskWriteRegister }

func (p *MaskWriteRegisterRequest) layout() layout {
	return maskLayout(&p.ReferenceAddress, &p.AndMask, &p.OrMask)
}

type MaskWriteRegisterResponse struct {
	response
	ReferenceAddress uint16
	AndMask          uint16
	OrMask           uint16
}

func (*MaskWriteRegisterResponse) FunctionCode() FunctionCode { return FunctionMaskWriteRegister }

func (p *MaskWriteRegisterResponse) layout() layout {
	return maskLayout(&p.ReferenceAddress, &p.AndMask, &p.OrMask)
}

func maskLayout(ref, and, or *uint16) layout {
	return layout{
		uintF("referenceAddress", 16, ref),
		uintF("andMask", 16, and),
		uintF("orMask", 16, or),
	}
}

type ReadWriteMultipleRegistersRequest struct {
	request
	ReadStartingAddress  uint16
	ReadQuantity         uint16
	WriteStartingAddress uint16
	WriteQuantity        uint16
	Value                []byte
}

func (*ReadWriteMultipleRegistersRequest) FunctionCode() FunctionCode {
	return FunctionReadWriteMultipleRegisters
}

func (p *ReadWriteMultipleRegistersRequest) layout() layout {
	return append(layout{
		uintF("readStartingAddress", 16, &p.ReadStartingAddress),
		uintF("readQuantity", 16, &p.ReadQuantity),
		uintF("writeStartingAddress", 16, &p.WriteStartingAddress),
		uintF("writeQuantity", 16, &p.WriteQuantity),
	}, byteCounted(&p.Value)...)
}

type ReadWriteMultipleRegistersResponse struct {
	response
	Value []byte
}

func (*ReadWriteMultipleRegistersResponse) FunctionCode() FunctionCode {
	return FunctionReadWriteMultipleRegisters
}

func (p *ReadWriteMultipleRegistersResponse) layout() layout { return byteCounted(&p.Value) }

type ReadFIFOQueueRequest struct {
	request
	FIFOPointerAddress uint16
}

func (*ReadFIFOQueueRequest) FunctionCode() FunctionCode { return FunctionReadFIFOQueue }

func (p *ReadFIFOQueueRequest) layout() layout {
	return layout{uintF("fifoPointerAddress", 16, &p.FIFOPointerAddress)}
}

type ReadFIFOQueueResponse struct {
	response
	FIFOValues []uint16
}

func (*ReadFIFOQueueResponse) FunctionCode() FunctionCode { return FunctionReadFIFOQueue }

func (p *ReadFIFOQueueResponse) layout() layout {
	var fifoCount uint64
	return layout{
		implicitF("byteCount", 16, func() uint64 { return uint64(len(p.FIFOValues)*2 + 2) }, nil),
		implicitF("fifoCount", 16, func() uint64 { return uint64(len(p.FIFOValues)) }, &fifoCount),
		uintsF("fifoValue", 16, &p.FIFOValues, func() int { return int(fifoCount) }),
	}
}
