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

// Package modbus provides Modbus TCP/RTU/ASCII and Schneider UMAS codecs
// together with a correlating client for industrial controllers.
package modbus

import (
	"fmt"
	"strings"
)

// DefaultPort is the standard Modbus TCP port
const DefaultPort = 502

// MaxPDULength is the largest PDU allowed by the Modbus application protocol
const MaxPDULength = 253

// Protocol limits on quantities per request
const (
	MaxReadBits       = 2000
	MaxWriteBits      = 1968
	MaxReadRegisters  = 125
	MaxWriteRegisters = 123
)

// FunctionCode is the 7-bit Modbus function code
type FunctionCode uint8

const (
	FunctionReadCoils                      FunctionCode = 0x01
	FunctionReadDiscreteInputs             FunctionCode = 0x02
	FunctionReadHoldingRegisters           FunctionCode = 0x03
	FunctionReadInputRegisters             FunctionCode = 0x04
	FunctionWriteSingleCoil                FunctionCode = 0x05
	FunctionWriteSingleRegister            FunctionCode = 0x06
	FunctionReadExceptionStatus            FunctionCode = 0x07
	FunctionDiagnostics                    FunctionCode = 0x08
	FunctionGetComEventCounter             FunctionCode = 0x0B
	FunctionGetComEventLog                 FunctionCode = 0x0C
	FunctionWriteMultipleCoils             FunctionCode = 0x0F
	FunctionWriteMultipleRegisters         FunctionCode = 0x10
	FunctionReportServerID                 FunctionCode = 0x11
	FunctionReadFileRecord                 FunctionCode = 0x14
	FunctionWriteFileRecord                FunctionCode = 0x15
	FunctionMaskWriteRegister              FunctionCode = 0x16
	FunctionReadWriteMultipleRegisters     FunctionCode = 0x17
	FunctionReadFIFOQueue                  FunctionCode = 0x18
	FunctionEncapsulatedInterfaceTransport FunctionCode = 0x2B
	FunctionUmas                           FunctionCode = 0x5A
)

var functionNames = map[FunctionCode]string{
	FunctionReadCoils:                      "ReadCoils",
	FunctionReadDiscreteInputs:             "ReadDiscreteInputs",
	FunctionReadHoldingRegisters:           "ReadHoldingRegisters",
	FunctionReadInputRegisters:             "ReadInputRegisters",
	FunctionWriteSingleCoil:                "WriteSingleCoil",
	FunctionWriteSingleRegister:            "WriteSingleRegister",
	FunctionReadExceptionStatus:            "ReadExceptionStatus",
	FunctionDiagnostics:                    "Diagnostics",
	FunctionGetComEventCounter:             "GetComEventCounter",
	FunctionGetComEventLog:                 "GetComEventLog",
	FunctionWriteMultipleCoils:             "WriteMultipleCoils",
	FunctionWriteMultipleRegisters:         "WriteMultipleRegisters",
	FunctionReportServerID:                 "ReportServerID",
	FunctionReadFileRecord:                 "ReadFileRecord",
	FunctionWriteFileRecord:                "WriteFileRecord",
	FunctionMaskWriteRegister:              "MaskWriteRegister",
	FunctionReadWriteMultipleRegisters:     "ReadWriteMultipleRegisters",
	FunctionReadFIFOQueue:                  "ReadFIFOQueue",
	FunctionEncapsulatedInterfaceTransport: "ReadDeviceIdentification",
	FunctionUmas:                           "Umas",
}

func (f FunctionCode) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return fmt.Sprintf("function(0x%02X)", uint8(f))
}

// DriverType selects the ADU framing
type DriverType uint8

const (
	DriverTCP   DriverType = 1
	DriverRTU   DriverType = 2
	DriverASCII DriverType = 3
	DriverUMAS  DriverType = 4
)

func (d DriverType) String() string {
	switch d {
	case DriverTCP:
		return "tcp"
	case DriverRTU:
		return "rtu"
	case DriverASCII:
		return "ascii"
	case DriverUMAS:
		return "umas"
	default:
		return fmt.Sprintf("driver(%d)", d)
	}
}

// ParseDriverType parses a protocol name to DriverType
func ParseDriverType(s string) (DriverType, bool) {
	types := map[string]DriverType{
		"tcp":          DriverTCP,
		"modbus-tcp":   DriverTCP,
		"rtu":          DriverRTU,
		"modbus-rtu":   DriverRTU,
		"ascii":        DriverASCII,
		"modbus-ascii": DriverASCII,
		"umas":         DriverUMAS,
	}
	d, ok := types[strings.ToLower(s)]
	return d, ok
}

// streamBased reports whether frames carry a transaction identifier that
// allows several requests in flight.
func (d DriverType) streamBased() bool {
	return d == DriverTCP || d == DriverUMAS
}

// DeviceIDCode selects the object category for Read Device Identification
type DeviceIDCode uint8

const (
	DeviceIDBasic      DeviceIDCode = 0x01
	DeviceIDRegular    DeviceIDCode = 0x02
	DeviceIDExtended   DeviceIDCode = 0x03
	DeviceIDIndividual DeviceIDCode = 0x04
)

// Well-known device identification objects
const (
	DeviceObjectVendorName          uint8 = 0x00
	DeviceObjectProductCode         uint8 = 0x01
	DeviceObjectMajorMinorRevision  uint8 = 0x02
	DeviceObjectVendorURL           uint8 = 0x03
	DeviceObjectProductName         uint8 = 0x04
	DeviceObjectModelName           uint8 = 0x05
	DeviceObjectUserApplicationName uint8 = 0x06
)

// DeviceObjectName returns a display name for a device identification object
func DeviceObjectName(id uint8) string {
	switch id {
	case DeviceObjectVendorName:
		return "VendorName"
	case DeviceObjectProductCode:
		return "ProductCode"
	case DeviceObjectMajorMinorRevision:
		return "MajorMinorRevision"
	case DeviceObjectVendorURL:
		return "VendorUrl"
	case DeviceObjectProductName:
		return "ProductName"
	case DeviceObjectModelName:
		return "ModelName"
	case DeviceObjectUserApplicationName:
		return "UserApplicationName"
	default:
		return fmt.Sprintf("Object(0x%02X)", id)
	}
}

// meiReadDeviceIdentification is the MEI type carried by function 0x2B
const meiReadDeviceIdentification = 0x0E
