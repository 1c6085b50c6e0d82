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

type ReadExceptionStatusRequest struct{ request }

func (*ReadExceptionStatusRequest) FunctionCode() FunctionCode { return FunctionReadExceptionStatus }
func (*ReadExceptionStatusRequest) layout() layout             { return nil }

type ReadExceptionStatusResponse struct {
	response
	Value uint8
}

func (*ReadExceptionStatusResponse) FunctionCode() FunctionCode { return FunctionReadExceptionStatus }

func (p *ReadExceptionStatusResponse) layout() layout {
	return layout{uintF("value", 8, &p.Value)}
}

// DiagnosticRequest is a serial line diagnostic (function 0x08). The
// response echoes the sub-function.
type DiagnosticRequest struct {
	request
	SubFunction uint16
	Data        uint16
}

func (*DiagnosticRequest) FunctionCode() FunctionCode { return FunctionDiagnostics }

func (p *DiagnosticRequest) layout() layout {
	return layout{uintF("subFunction", 16, &p.SubFunction), uintF("data", 16, &p.Data)}
}

type DiagnosticResponse struct {
	response
	SubFunction uint16
	Data        uint16
}

func (*DiagnosticResponse) FunctionCode() FunctionCode { return FunctionDiagnostics }

func (p *DiagnosticResponse) layout() layout {
	return layout{uintF("subFunction", 16, &p.SubFunction), uintF("data", 16, &p.Data)}
}

type GetComEventCounterRequest struct{ request }

func (*GetComEventCounterRequest) FunctionCode() FunctionCode { return FunctionGetComEventCounter }
func (*GetComEventCounterRequest) layout() layout             { return nil }

type GetComEventCounterResponse struct {
	response
	Status     uint16
	EventCount uint16
}

func (*GetComEventCounterResponse) FunctionCode() FunctionCode { return FunctionGetComEventCounter }

func (p *GetComEventCounterResponse) layout() layout {
	return layout{uintF("status", 16, &p.Status), uintF("eventCount", 16, &p.EventCount)}
}

type GetComEventLogRequest struct{ request }

func (*GetComEventLogRequest) FunctionCode() FunctionCode { return FunctionGetComEventLog }
func (*GetComEventLogRequest) layout() layout             { return nil }

type GetComEventLogResponse struct {
	response
	Status       uint16
	EventCount   uint16
	MessageCount uint16
	Events       []byte
}

func (*GetComEventLogResponse) FunctionCode() FunctionCode { return FunctionGetComEventLog }

func (p *GetComEventLogResponse) layout() layout {
	var byteCount uint64
	return layout{
		implicitF("byteCount", 8, func() uint64 { return uint64(len(p.Events) + 6) }, &byteCount),
		uintF("status", 16, &p.Status),
		uintF("eventCount", 16, &p.EventCount),
		uintF("messageCount", 16, &p.MessageCount),
		bytesF("events", &p.Events, func() int { return int(byteCount) - 6 }),
	}
}

type ReportServerIDRequest struct{ request }

func (*ReportServerIDRequest) FunctionCode() FunctionCode { return FunctionReportServerID }
func (*ReportServerIDRequest) layout() layout             { return nil }

type ReportServerIDResponse struct {
	response
	Value []byte
}

func (*ReportServerIDResponse) FunctionCode() FunctionCode { return FunctionReportServerID }
func (p *ReportServerIDResponse) layout() layout           { return byteCounted(&p.Value) }

type ReadDeviceIdentificationRequest struct {
	request
	Level    DeviceIDCode
	ObjectID uint8
}

func (*ReadDeviceIdentificationRequest) FunctionCode() FunctionCode {
	return FunctionEncapsulatedInterfaceTransport
}

func (p *ReadDeviceIdentificationRequest) layout() layout {
	return layout{
		constF("meiType", 8, meiReadDeviceIdentification),
		uintF("level", 8, &p.Level),
		uintF("objectId", 8, &p.ObjectID),
	}
}

// DeviceIdentificationObject is one identification object of a device.
type DeviceIdentificationObject struct {
	ObjectID uint8
	Value    []byte
}

func (o *DeviceIdentificationObject) layout() layout {
	var length uint64
	return layout{
		uintF("objectId", 8, &o.ObjectID),
		implicitF("objectLength", 8, func() uint64 { return uint64(len(o.Value)) }, &length),
		bytesF("data", &o.Value, func() int { return int(length) }),
	}
}

type ReadDeviceIdentificationResponse struct {
	response
	Level            DeviceIDCode
	IndividualAccess bool
	ConformityLevel  uint8
	MoreFollows      uint8
	NextObjectID     uint8
	Objects          []DeviceIdentificationObject
}

func (*ReadDeviceIdentificationResponse) FunctionCode() FunctionCode {
	return FunctionEncapsulatedInterfaceTransport
}

func (p *ReadDeviceIdentificationResponse) layout() layout {
	var numberOfObjects uint64
	return layout{
		constF("meiType", 8, meiReadDeviceIdentification),
		uintF("level", 8, &p.Level),
		bitF("individualAccess", &p.IndividualAccess),
		uintF("conformityLevel", 7, &p.ConformityLevel),
		uintF("moreFollows", 8, &p.MoreFollows),
		uintF("nextObjectId", 8, &p.NextObjectID),
		implicitF("numberOfObjects", 8, func() uint64 { return uint64(len(p.Objects)) }, &numberOfObjects),
		listF("objects", &p.Objects, (*DeviceIdentificationObject).layout, func() int { return int(numberOfObjects) }),
	}
}
