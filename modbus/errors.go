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
	"fmt"
)

// Sentinel errors
var (
	ErrBufferUnderflow         = errors.New("modbus: buffer underflow")
	ErrBufferOverflow          = errors.New("modbus: buffer overflow")
	ErrLengthMismatch          = errors.New("modbus: serialized length differs from computed length")
	ErrConstMismatch           = errors.New("modbus: unexpected constant value")
	ErrChecksumMismatch        = errors.New("modbus: checksum mismatch")
	ErrInvalidFrame            = errors.New("modbus: invalid frame")
	ErrUnsupportedFunctionCode = errors.New("modbus: unsupported function code")
	ErrUnsupportedDataType     = errors.New("modbus: unsupported data type")
	ErrUnsolicitedMessage      = errors.New("modbus: unsolicited message")
	ErrTransactionInUse        = errors.New("modbus: transaction identifier already pending")
	ErrTimeout                 = errors.New("modbus: request timeout")
	ErrConnectionClosed        = errors.New("modbus: connection closed")
	ErrNotConnected            = errors.New("modbus: not connected")
	ErrAlreadyConnected        = errors.New("modbus: already connected")
	ErrInvalidValue            = errors.New("modbus: invalid value")
	ErrTagNotFound             = errors.New("modbus: tag not found")
	ErrUnexpectedResponse      = errors.New("modbus: unexpected response")
)

// CodecError locates a codec failure inside a message.
type CodecError struct {
	Context string
	Field   string
	Err     error
}

func (e *CodecError) Error() string {
	if e.Context == "" {
		return fmt.Sprintf("%v (field %q)", e.Err, e.Field)
	}
	return fmt.Sprintf("%v (%s.%s)", e.Err, e.Context, e.Field)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

// FieldParseError is returned when a tag address string cannot be parsed.
type FieldParseError struct {
	Address string
	Reason  string
	Err     error
}

func (e *FieldParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("modbus: invalid tag address %q: %s: %v", e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("modbus: invalid tag address %q: %s", e.Address, e.Reason)
}

func (e *FieldParseError) Unwrap() error {
	return e.Err
}

// ExceptionCode is the exception code carried by a Modbus exception response.
type ExceptionCode uint8

const (
	ExceptionIllegalFunction                    ExceptionCode = 0x01
	ExceptionIllegalDataAddress                 ExceptionCode = 0x02
	ExceptionIllegalDataValue                   ExceptionCode = 0x03
	ExceptionServerDeviceFailure                ExceptionCode = 0x04
	ExceptionAcknowledge                        ExceptionCode = 0x05
	ExceptionServerDeviceBusy                   ExceptionCode = 0x06
	ExceptionNegativeAcknowledge                ExceptionCode = 0x07
	ExceptionMemoryParityError                  ExceptionCode = 0x08
	ExceptionGatewayPathUnavailable             ExceptionCode = 0x0A
	ExceptionGatewayTargetDeviceFailedToRespond ExceptionCode = 0x0B
)

var exceptionNames = map[ExceptionCode]string{
	ExceptionIllegalFunction:                    "illegal-function",
	ExceptionIllegalDataAddress:                 "illegal-data-address",
	ExceptionIllegalDataValue:                   "illegal-data-value",
	ExceptionServerDeviceFailure:                "server-device-failure",
	ExceptionAcknowledge:                        "acknowledge",
	ExceptionServerDeviceBusy:                   "server-device-busy",
	ExceptionNegativeAcknowledge:                "negative-acknowledge",
	ExceptionMemoryParityError:                  "memory-parity-error",
	ExceptionGatewayPathUnavailable:             "gateway-path-unavailable",
	ExceptionGatewayTargetDeviceFailedToRespond: "gateway-target-device-failed-to-respond",
}

func (e ExceptionCode) String() string {
	if name, ok := exceptionNames[e]; ok {
		return name
	}
	return fmt.Sprintf("exception(%d)", e)
}

// Error implements error so a device exception can be returned directly.
func (e ExceptionCode) Error() string {
	return "modbus exception: " + e.String()
}

// UmasError represents a UMAS error answer (function key 0xFD).
type UmasError struct {
	RequestFunctionKey UmasFunction
	Data               []byte
}

func (e *UmasError) Error() string {
	return fmt.Sprintf("umas error: request=%s, data=%x", e.RequestFunctionKey, e.Data)
}

// IsTimeout returns true if the error is a timeout error
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsException returns true if the device answered with a Modbus exception
func IsException(err error) bool {
	var code ExceptionCode
	return errors.As(err, &code)
}

// IsConnectionError returns true if the error left the connection unusable
func IsConnectionError(err error) bool {
	return errors.Is(err, ErrConnectionClosed) ||
		errors.Is(err, ErrUnsolicitedMessage) ||
		errors.Is(err, ErrNotConnected)
}
