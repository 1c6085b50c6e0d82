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
	"fmt"
	"strings"
)

// UmasFunction is the function key of a UMAS item.
type UmasFunction uint8

const (
	UmasInitComms                  UmasFunction = 0x01
	UmasReadID                     UmasFunction = 0x02
	UmasReadPlcStatus              UmasFunction = 0x04
	UmasReadMemoryBlock            UmasFunction = 0x20
	UmasReadVariables              UmasFunction = 0x22
	UmasWriteVariables             UmasFunction = 0x23
	UmasReadUnlocatedVariableNames UmasFunction = 0x26
	UmasResponseError              UmasFunction = 0xFD
	UmasResponseOK                 UmasFunction = 0xFE
)

func (f UmasFunction) String() string {
	switch f {
	case UmasInitComms:
		return "InitComms"
	case UmasReadID:
		return "ReadId"
	case UmasReadPlcStatus:
		return "ReadPlcStatus"
	case UmasReadMemoryBlock:
		return "ReadMemoryBlock"
	case UmasReadVariables:
		return "ReadVariables"
	case UmasWriteVariables:
		return "WriteVariables"
	case UmasReadUnlocatedVariableNames:
		return "ReadUnlocatedVariableNames"
	case UmasResponseError:
		return "Error"
	case UmasResponseOK:
		return "OK"
	default:
		return fmt.Sprintf("umas(0x%02X)", uint8(f))
	}
}

// UmasBody is the payload of a UMAS item. Item bodies are encoded
// little-endian.
type UmasBody interface {
	UmasFunctionKey() UmasFunction
	layout() layout
}

// UmasItem is the content of a Modbus function 0x5A PDU.
type UmasItem struct {
	PairingKey uint8
	// RequestFunctionKey is the key of the request this item answers, or
	// the item's own key for requests.
	RequestFunctionKey UmasFunction
	// ByteLength is the item size implied by the enclosing frame.
	ByteLength int
	Body       UmasBody
}

// NewUmasItem builds a request item.
func NewUmasItem(pairingKey uint8, body UmasBody) *UmasItem {
	item := &UmasItem{PairingKey: pairingKey, RequestFunctionKey: body.UmasFunctionKey(), Body: body}
	item.ByteLength = item.LengthInBytes()
	return item
}

// IsResponse reports whether the body is an OK or error answer.
func (i *UmasItem) IsResponse() bool {
	k := i.Body.UmasFunctionKey()
	return k == UmasResponseOK || k == UmasResponseError
}

func (i *UmasItem) layout() layout {
	return layout{
		uintF("pairingKey", 8, &i.PairingKey),
		constF("umasFunctionKey", 8, uint64(i.Body.UmasFunctionKey())),
		orderedF(umasBodyName(i.Body), LittleEndian, i.Body.layout()),
	}
}

func (i *UmasItem) LengthInBits() int  { return i.layout().bits() }
func (i *UmasItem) LengthInBytes() int { return (i.LengthInBits() + 7) / 8 }

// Serialize writes the item at the writer's position.
func (i *UmasItem) Serialize(wb *WriteBuffer) error {
	return i.layout().encode(wb, "UmasPDUItem")
}

// UmasItemBuilder holds a parsed item body whose frame context is still
// pending: the pairing key, the request function key and the byte length
// come from the enclosing frame and the pending transaction.
type UmasItemBuilder struct {
	body UmasBody
}

// Build completes the item with its frame context.
func (b UmasItemBuilder) Build(pairingKey uint8, requestFunctionKey UmasFunction, byteLength int) *UmasItem {
	return &UmasItem{
		PairingKey:         pairingKey,
		RequestFunctionKey: requestFunctionKey,
		ByteLength:         byteLength,
		Body:               b.body,
	}
}

type umasKey struct {
	function UmasFunction
	request  UmasFunction
}

type umasEntry struct {
	name string
	new  func(byteLength int) UmasBody
}

// umasTable selects a body grammar. Requests are keyed by their own
// function key; OK responses by the key of the request they answer.
var umasTable = map[umasKey]umasEntry{
	{UmasInitComms, 0}:                               {"UmasInitCommsRequest", func(int) UmasBody { return &UmasInitCommsRequest{} }},
	{UmasResponseOK, UmasInitComms}:                  {"UmasInitCommsResponse", func(int) UmasBody { return &UmasInitCommsResponse{} }},
	{UmasReadID, 0}:                                  {"UmasPlcIdentRequest", func(int) UmasBody { return &UmasPlcIdentRequest{} }},
	{UmasResponseOK, UmasReadID}:                     {"UmasPlcIdentResponse", func(int) UmasBody { return &UmasPlcIdentResponse{} }},
	{UmasReadPlcStatus, 0}:                           {"UmasPlcStatusRequest", func(int) UmasBody { return &UmasPlcStatusRequest{} }},
	{UmasResponseOK, UmasReadPlcStatus}:              {"UmasPlcStatusResponse", func(int) UmasBody { return &UmasPlcStatusResponse{} }},
	{UmasReadMemoryBlock, 0}:                         {"UmasReadMemoryBlockRequest", func(int) UmasBody { return &UmasReadMemoryBlockRequest{} }},
	{UmasResponseOK, UmasReadMemoryBlock}:            {"UmasReadMemoryBlockResponse", func(int) UmasBody { return &UmasReadMemoryBlockResponse{} }},
	{UmasReadVariables, 0}:                           {"UmasReadVariableRequest", func(int) UmasBody { return &UmasReadVariableRequest{} }},
	{UmasResponseOK, UmasReadVariables}:              {"UmasReadVariableResponse", func(n int) UmasBody { return &UmasReadVariableResponse{byteLength: n} }},
	{UmasWriteVariables, 0}:                          {"UmasWriteVariableRequest", func(int) UmasBody { return &UmasWriteVariableRequest{} }},
	{UmasResponseOK, UmasWriteVariables}:             {"UmasWriteVariableResponse", func(int) UmasBody { return &UmasWriteVariableResponse{} }},
	{UmasReadUnlocatedVariableNames, 0}:              {"UmasReadUnlocatedVariableNamesRequest", func(int) UmasBody { return &UmasReadUnlocatedVariableNamesRequest{} }},
	{UmasResponseOK, UmasReadUnlocatedVariableNames}: {"UmasReadUnlocatedVariableNamesResponse", func(int) UmasBody { return &UmasReadUnlocatedVariableNamesResponse{} }},
	{UmasResponseError, 0}:                           {"UmasErrorResponse", func(n int) UmasBody { return &UmasErrorResponse{byteLength: n} }},
}

func lookupUmas(function, request UmasFunction) (umasEntry, bool) {
	key := umasKey{function: function}
	if function == UmasResponseOK {
		key.request = request
	}
	e, ok := umasTable[key]
	return e, ok
}

func umasBodyName(b UmasBody) string {
	return strings.TrimPrefix(fmt.Sprintf("%T", b), "*modbus.")
}

// ParseUmasItemBuilder reads a body of the given function key. The caller
// has already consumed the item header.
func ParseUmasItemBuilder(rb *ReadBuffer, function, request UmasFunction, byteLength int) (UmasItemBuilder, error) {
	entry, ok := lookupUmas(function, request)
	if !ok {
		return UmasItemBuilder{}, &CodecError{
			Context: rb.Context(),
			Field:   "umasFunctionKey",
			Err:     fmt.Errorf("%w: umas 0x%02X (request 0x%02X)", ErrUnsupportedFunctionCode, uint8(function), uint8(request)),
		}
	}
	body := entry.new(byteLength)
	if err := orderedF(entry.name, LittleEndian, body.layout()).decode(rb); err != nil {
		return UmasItemBuilder{}, err
	}
	return UmasItemBuilder{body: body}, nil
}

// ParseUmasItem reads a complete item. For responses request names the
// function key of the pending request.
func ParseUmasItem(rb *ReadBuffer, request UmasFunction, byteLength int) (*UmasItem, error) {
	rb.PushContext("UmasPDUItem")
	pairingKey, err := rb.ReadUint8("pairingKey", 8)
	if err != nil {
		return nil, err
	}
	function, err := rb.ReadUint8("umasFunctionKey", 8)
	if err != nil {
		return nil, err
	}
	fn := UmasFunction(function)
	builder, err := ParseUmasItemBuilder(rb, fn, request, byteLength)
	if err != nil {
		return nil, err
	}
	rb.PopContext("UmasPDUItem")
	if fn != UmasResponseOK && fn != UmasResponseError {
		request = fn
	}
	return builder.Build(pairingKey, request, byteLength), nil
}

// UmasPDU is a Modbus function 0x5A PDU carrying one UMAS item.
type UmasPDU struct {
	Item *UmasItem
	args ParseArgs
}

// NewUmasRequest wraps a request body.
func NewUmasRequest(pairingKey uint8, body UmasBody) *UmasPDU {
	return &UmasPDU{Item: NewUmasItem(pairingKey, body)}
}

func (*UmasPDU) FunctionCode() FunctionCode { return FunctionUmas }
func (*UmasPDU) ErrorFlag() bool            { return false }

func (p *UmasPDU) Response() bool {
	if p.Item == nil {
		return p.args.Response
	}
	return p.Item.IsResponse()
}

func (p *UmasPDU) layout() layout {
	return layout{manualF(
		func() int {
			if p.Item == nil {
				return 0
			}
			return p.Item.LengthInBits()
		},
		func(wb *WriteBuffer) error {
			if p.Item == nil {
				return wb.fail("item", fmt.Errorf("%w: empty umas pdu", ErrInvalidValue))
			}
			return p.Item.Serialize(wb)
		},
		func(rb *ReadBuffer) (err error) {
			p.Item, err = ParseUmasItem(rb, p.args.UmasRequestFunctionKey, p.args.ByteLength-1)
			return err
		},
	)}
}
