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

import "fmt"

// FileRecordReferenceType is the only reference type defined for file records
const FileRecordReferenceType uint8 = 0x06

// byteCountedList is a "byteCount u8" prefix followed by list items that
// fill exactly byteCount bytes.
func byteCountedList[T any](name string, items *[]T, elem func(*T) layout) layout {
	var byteCount uint64
	list := listBytesF(name, items, elem, func() int { return int(byteCount) })
	return layout{
		implicitF("byteCount", 8, func() uint64 { return uint64(list.bits() / 8) }, &byteCount),
		list,
	}
}

type FileRecordRequestItem struct {
	ReferenceType uint8
	FileNumber    uint16
	RecordNumber  uint16
	RecordLength  uint16
}

func (i *FileRecordRequestItem) layout() layout {
	return layout{
		uintF("referenceType", 8, &i.ReferenceType),
		uintF("fileNumber", 16, &i.FileNumber),
		uintF("recordNumber", 16, &i.RecordNumber),
		uintF("recordLength", 16, &i.RecordLength),
	}
}

type ReadFileRecordRequest struct {
	request
	Items []FileRecordRequestItem
}

func (*ReadFileRecordRequest) FunctionCode() FunctionCode { return FunctionReadFileRecord }

func (p *ReadFileRecordRequest) layout() layout {
	return byteCountedList("items", &p.Items, (*FileRecordRequestItem).layout)
}

type FileRecordResponseItem struct {
	ReferenceType uint8
	Data          []byte
}

func (i *FileRecordResponseItem) layout() layout {
	var dataLength uint64
	return layout{
		implicitF("dataLength", 8, func() uint64 { return uint64(len(i.Data) + 1) }, &dataLength),
		uintF("referenceType", 8, &i.ReferenceType),
		bytesF("data", &i.Data, func() int { return int(dataLength) - 1 }),
	}
}

type ReadFileRecordResponse struct {
	response
	Items []FileRecordResponseItem
}

func (*ReadFileRecordResponse) FunctionCode() FunctionCode { return FunctionReadFileRecord }

func (p *ReadFileRecordResponse) layout() layout {
	return byteCountedList("items", &p.Items, (*FileRecordResponseItem).layout)
}

// FileRecordWriteItem is a record to write. Data holds whole registers.
type FileRecordWriteItem struct {
	ReferenceType uint8
	FileNumber    uint16
	RecordNumber  uint16
	Data          []byte
}

func (i *FileRecordWriteItem) layout() layout {
	var recordLength uint64
	return layout{
		uintF("referenceType", 8, &i.ReferenceType),
		uintF("fileNumber", 16, &i.FileNumber),
		uintF("recordNumber", 16, &i.RecordNumber),
		manualF(func() int { return 16 }, func(wb *WriteBuffer) error {
			if len(i.Data)%2 != 0 {
				return wb.fail("recordLength", fmt.Errorf("%w: record data of %d bytes is not whole registers", ErrInvalidValue, len(i.Data)))
			}
			return wb.WriteUint64("recordLength", 16, uint64(len(i.Data)/2))
		}, func(rb *ReadBuffer) (err error) {
			recordLength, err = rb.ReadUint64("recordLength", 16)
			return err
		}),
		bytesF("recordData", &i.Data, func() int { return int(recordLength) * 2 }),
	}
}

type WriteFileRecordRequest struct {
	request
	Items []FileRecordWriteItem
}

func (*WriteFileRecordRequest) FunctionCode() FunctionCode { return FunctionWriteFileRecord }

func (p *WriteFileRecordRequest) layout() layout {
	return byteCountedList("items", &p.Items, (*FileRecordWriteItem).layout)
}

// WriteFileRecordResponse echoes the request.
type WriteFileRecordResponse struct {
	response
	Items []FileRecordWriteItem
}

func (*WriteFileRecordResponse) FunctionCode() FunctionCode { return FunctionWriteFileRecord }

func (p *WriteFileRecordResponse) layout() layout {
	return byteCountedList("items", &p.Items, (*FileRecordWriteItem).layout)
}
