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

// UmasUnlocatedVariableNamesRecordType requests the symbol table
const UmasUnlocatedVariableNamesRecordType uint16 = 0xDD02

type UmasInitCommsRequest struct {
	UnknownObject uint8
}

func (*UmasInitCommsRequest) UmasFunctionKey() UmasFunction { return UmasInitComms }

func (b *UmasInitCommsRequest) layout() layout {
	return layout{uintF("unknownObject", 8, &b.UnknownObject)}
}

type UmasInitCommsResponse struct {
	MaxFrameSize    uint16
	FirmwareVersion uint16
	NotSure         uint32
	InternalCode    uint32
	Hostname        string
}

func (*UmasInitCommsResponse) UmasFunctionKey() UmasFunction { return UmasResponseOK }

func (b *UmasInitCommsResponse) layout() layout {
	var hostnameLength uint64
	return layout{
		uintF("maxFrameSize", 16, &b.MaxFrameSize),
		uintF("firmwareVersion", 16, &b.FirmwareVersion),
		uintF("notSure", 32, &b.NotSure),
		uintF("internalCode", 32, &b.InternalCode),
		implicitF("hostnameLength", 8, func() uint64 { return uint64(len(b.Hostname)) }, &hostnameLength),
		stringF("hostname", &b.Hostname, func() int { return int(hostnameLength) }),
	}
}

type UmasPlcIdentRequest struct{}

func (*UmasPlcIdentRequest) UmasFunctionKey() UmasFunction { return UmasReadID }
func (*UmasPlcIdentRequest) layout() layout                { return nil }

// PlcMemoryBlockIdent describes one memory bank of the controller.
type PlcMemoryBlockIdent struct {
	BlockType    uint8
	Folio        uint8
	Status       uint16
	MemoryLength uint32
}

func (m *PlcMemoryBlockIdent) layout() layout {
	return layout{
		uintF("blockType", 8, &m.BlockType),
		uintF("folio", 8, &m.Folio),
		uintF("status", 16, &m.Status),
		uintF("memoryLength", 32, &m.MemoryLength),
	}
}

type UmasPlcIdentResponse struct {
	Range           uint16
	Ident           uint32
	Model           uint16
	ComVersion      uint16
	ComPatch        uint16
	IntVersion      uint16
	HardwareVersion uint16
	CrashCode       uint32
	Hostname        string
	MemoryIdents    []PlcMemoryBlockIdent
}

func (*UmasPlcIdentResponse) UmasFunctionKey() UmasFunction { return UmasResponseOK }

func (b *UmasPlcIdentResponse) layout() layout {
	var hostnameLength, numberOfMemoryBanks uint64
	return layout{
		uintF("range", 16, &b.Range),
		uintF("ident", 32, &b.Ident),
		uintF("model", 16, &b.Model),
		uintF("comVersion", 16, &b.ComVersion),
		uintF("comPatch", 16, &b.ComPatch),
		uintF("intVersion", 16, &b.IntVersion),
		uintF("hardwareVersion", 16, &b.HardwareVersion),
		uintF("crashCode", 32, &b.CrashCode),
		implicitF("hostnameLength", 32, func() uint64 { return uint64(len(b.Hostname)) }, &hostnameLength),
		stringF("hostname", &b.Hostname, func() int { return int(hostnameLength) }),
		implicitF("numberOfMemoryBanks", 8, func() uint64 { return uint64(len(b.MemoryIdents)) }, &numberOfMemoryBanks),
		listF("memoryIdents", &b.MemoryIdents, (*PlcMemoryBlockIdent).layout, func() int { return int(numberOfMemoryBanks) }),
	}
}

type UmasPlcStatusRequest struct{}

func (*UmasPlcStatusRequest) UmasFunctionKey() UmasFunction { return UmasReadPlcStatus }
func (*UmasPlcStatusRequest) layout() layout                { return nil }

type UmasPlcStatusResponse struct {
	NotUsed1 uint8
	NotUsed2 uint16
	Blocks   []uint32
}

func (*UmasPlcStatusResponse) UmasFunctionKey() UmasFunction { return UmasResponseOK }

func (b *UmasPlcStatusResponse) layout() layout {
	var numberOfBlocks uint64
	return layout{
		uintF("notUsed1", 8, &b.NotUsed1),
		uintF("notUsed2", 16, &b.NotUsed2),
		implicitF("numberOfBlocks", 8, func() uint64 { return uint64(len(b.Blocks)) }, &numberOfBlocks),
		uintsF("blocks", 32, &b.Blocks, func() int { return int(numberOfBlocks) }),
	}
}

// ProjectCRC returns the CRC a variable request must quote, or 0 when the
// controller did not report enough blocks.
func (b *UmasPlcStatusResponse) ProjectCRC() uint32 {
	if len(b.Blocks) > 3 {
		return b.Blocks[3]
	}
	return 0
}

type UmasReadMemoryBlockRequest struct {
	Range          uint8
	BlockNumber    uint16
	Offset         uint16
	UnknownObject1 uint16
	NumberOfBytes  uint16
}

func (*UmasReadMemoryBlockRequest) UmasFunctionKey() UmasFunction { return UmasReadMemoryBlock }

func (b *UmasReadMemoryBlockRequest) layout() layout {
	return layout{
		uintF("range", 8, &b.Range),
		uintF("blockNumber", 16, &b.BlockNumber),
		uintF("offset", 16, &b.Offset),
		uintF("unknownObject1", 16, &b.UnknownObject1),
		uintF("numberOfBytes", 16, &b.NumberOfBytes),
	}
}

type UmasReadMemoryBlockResponse struct {
	Range uint8
	Block []byte
}

func (*UmasReadMemoryBlockResponse) UmasFunctionKey() UmasFunction { return UmasResponseOK }

func (b *UmasReadMemoryBlockResponse) layout() layout {
	var numberOfBytes uint64
	return layout{
		uintF("range", 8, &b.Range),
		implicitF("numberOfBytes", 16, func() uint64 { return uint64(len(b.Block)) }, &numberOfBytes),
		bytesF("block", &b.Block, func() int { return int(numberOfBytes) }),
	}
}

// VariableReadRequestReference locates one variable in controller memory.
type VariableReadRequestReference struct {
	IsArray       uint8
	DataSizeIndex uint8
	Block         uint16
	BaseOffset    uint16
	Offset        uint8
	ArrayLength   uint16
}

func (r *VariableReadRequestReference) layout() layout {
	return layout{
		uintF("isArray", 8, &r.IsArray),
		uintF("dataSizeIndex", 8, &r.DataSizeIndex),
		uintF("block", 16, &r.Block),
		constF("unknown1", 8, 0x01),
		uintF("baseOffset", 16, &r.BaseOffset),
		uintF("offset", 8, &r.Offset),
		optionalF(func() bool { return r.IsArray != 0 }, uintF("arrayLength", 16, &r.ArrayLength)),
	}
}

// elementCount is the number of elements the reference covers.
func (r *VariableReadRequestReference) elementCount() int {
	if r.IsArray != 0 {
		return int(r.ArrayLength)
	}
	return 1
}

type UmasReadVariableRequest struct {
	CRC       uint32
	Variables []VariableReadRequestReference
}

func (*UmasReadVariableRequest) UmasFunctionKey() UmasFunction { return UmasReadVariables }

func (b *UmasReadVariableRequest) layout() layout {
	var variableCount uint64
	return layout{
		uintF("crc", 32, &b.CRC),
		implicitF("variableCount", 8, func() uint64 { return uint64(len(b.Variables)) }, &variableCount),
		listF("variables", &b.Variables, (*VariableReadRequestReference).layout, func() int { return int(variableCount) }),
	}
}

// UmasReadVariableResponse carries the concatenated values of the
// requested variables. Its size comes from the enclosing frame.
type UmasReadVariableResponse struct {
	Block      []byte
	byteLength int
}

func (*UmasReadVariableResponse) UmasFunctionKey() UmasFunction { return UmasResponseOK }

func (b *UmasReadVariableResponse) layout() layout {
	return layout{bytesF("block", &b.Block, func() int { return b.byteLength - 2 })}
}

// VariableWriteRequestReference locates one variable and carries its new value.
type VariableWriteRequestReference struct {
	VariableReadRequestReference
	RecordData []byte
}

func (r *VariableWriteRequestReference) layout() layout {
	return append(r.VariableReadRequestReference.layout(),
		bytesF("recordData", &r.RecordData, func() int {
			return umasDataSizeForIndex(r.DataSizeIndex) * r.elementCount()
		}),
	)
}

type UmasWriteVariableRequest struct {
	CRC       uint32
	Variables []VariableWriteRequestReference
}

func (*UmasWriteVariableRequest) UmasFunctionKey() UmasFunction { return UmasWriteVariables }

func (b *UmasWriteVariableRequest) layout() layout {
	var variableCount uint64
	return layout{
		uintF("crc", 32, &b.CRC),
		implicitF("variableCount", 8, func() uint64 { return uint64(len(b.Variables)) }, &variableCount),
		listF("variables", &b.Variables, (*VariableWriteRequestReference).layout, func() int { return int(variableCount) }),
	}
}

type UmasWriteVariableResponse struct{}

func (*UmasWriteVariableResponse) UmasFunctionKey() UmasFunction { return UmasResponseOK }
func (*UmasWriteVariableResponse) layout() layout                { return nil }

type UmasReadUnlocatedVariableNamesRequest struct {
	RecordType uint16
	Index      uint8
	HardwareID uint32
	BlockNo    uint16
	Offset     uint16
}

func (*UmasReadUnlocatedVariableNamesRequest) UmasFunctionKey() UmasFunction {
	return UmasReadUnlocatedVariableNames
}

func (b *UmasReadUnlocatedVariableNamesRequest) layout() layout {
	return layout{
		uintF("recordType", 16, &b.RecordType),
		uintF("index", 8, &b.Index),
		uintF("hardwareId", 32, &b.HardwareID),
		uintF("blockNo", 16, &b.BlockNo),
		uintF("offset", 16, &b.Offset),
		constF("blank", 16, 0),
	}
}

// UmasUnlocatedVariableReference is one symbol table entry.
type UmasUnlocatedVariableReference struct {
	DataType   uint16
	Block      uint16
	Offset     uint16
	BaseOffset uint16
	Unknown4   uint16
	Value      string
}

func (r *UmasUnlocatedVariableReference) layout() layout {
	var stringLength uint64
	return layout{
		uintF("dataType", 16, &r.DataType),
		uintF("block", 16, &r.Block),
		uintF("offset", 16, &r.Offset),
		uintF("baseOffset", 16, &r.BaseOffset),
		uintF("unknown4", 16, &r.Unknown4),
		implicitF("stringLength", 16, func() uint64 { return uint64(len(r.Value) + 1) }, &stringLength),
		cstringF("value", &r.Value, func() int { return int(stringLength) }),
	}
}

type UmasReadUnlocatedVariableNamesResponse struct {
	Range       uint8
	NextAddress uint16
	Unknown1    uint16
	Records     []UmasUnlocatedVariableReference
}

func (*UmasReadUnlocatedVariableNamesResponse) UmasFunctionKey() UmasFunction { return UmasResponseOK }

func (b *UmasReadUnlocatedVariableNamesResponse) layout() layout {
	var noOfRecords uint64
	return layout{
		uintF("range", 8, &b.Range),
		uintF("nextAddress", 16, &b.NextAddress),
		uintF("unknown1", 16, &b.Unknown1),
		implicitF("noOfRecords", 16, func() uint64 { return uint64(len(b.Records)) }, &noOfRecords),
		listF("records", &b.Records, (*UmasUnlocatedVariableReference).layout, func() int { return int(noOfRecords) }),
	}
}

// UmasErrorResponse is a 0xFD answer. Its size comes from the enclosing frame.
type UmasErrorResponse struct {
	Data       []byte
	byteLength int
}

func (*UmasErrorResponse) UmasFunctionKey() UmasFunction { return UmasResponseError }

func (b *UmasErrorResponse) layout() layout {
	return layout{bytesF("data", &b.Data, func() int { return b.byteLength - 2 })}
}
