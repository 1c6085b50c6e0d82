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
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// UmasVariable is one entry of the controller symbol table.
type UmasVariable struct {
	Name       string
	DataType   UmasDataType
	Block      uint16
	Offset     uint16
	BaseOffset uint16
}

// UmasSession drives the UMAS exchange with a Schneider controller over a
// client configured with DriverUMAS.
type UmasSession struct {
	client     *Client
	logger     *slog.Logger
	pairingKey uint8

	mu        sync.RWMutex
	comms     *UmasInitCommsResponse
	ident     *UmasPlcIdentResponse
	crc       uint32
	variables map[string]UmasVariable
}

// NewUmasSession binds a session to a connected client.
func NewUmasSession(c *Client) *UmasSession {
	return &UmasSession{
		client:    c,
		logger:    c.logger,
		variables: make(map[string]UmasVariable),
	}
}

func (s *UmasSession) request(ctx context.Context, body UmasBody) (UmasBody, error) {
	resp, err := s.client.Do(ctx, NewUmasRequest(s.pairingKey, body))
	if err != nil {
		return nil, err
	}
	u, ok := resp.(*UmasPDU)
	if !ok || u.Item == nil {
		return nil, fmt.Errorf("%w: got %s", ErrUnexpectedResponse, pduName(resp))
	}
	if e, ok := u.Item.Body.(*UmasErrorResponse); ok {
		return nil, &UmasError{RequestFunctionKey: body.UmasFunctionKey(), Data: e.Data}
	}
	return u.Item.Body, nil
}

func umasRequestAs[T UmasBody](ctx context.Context, s *UmasSession, body UmasBody) (T, error) {
	var zero T
	resp, err := s.request(ctx, body)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s answered with %s", ErrUnexpectedResponse, body.UmasFunctionKey(), umasBodyName(resp))
	}
	return typed, nil
}

// Open runs the usual start-up sequence: init comms, identification,
// status (for the project CRC) and the symbol table.
func (s *UmasSession) Open(ctx context.Context) error {
	if _, err := s.Init(ctx); err != nil {
		return fmt.Errorf("init comms: %w", err)
	}
	if _, err := s.Ident(ctx); err != nil {
		return fmt.Errorf("read id: %w", err)
	}
	if _, err := s.Status(ctx); err != nil {
		return fmt.Errorf("read status: %w", err)
	}
	if _, err := s.Browse(ctx); err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	return nil
}

// Init negotiates the communication parameters (UMAS 0x01).
func (s *UmasSession) Init(ctx context.Context) (*UmasInitCommsResponse, error) {
	resp, err := umasRequestAs[*UmasInitCommsResponse](ctx, s, &UmasInitCommsRequest{})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.comms = resp
	s.mu.Unlock()
	s.logger.Debug("umas comms initialised",
		slog.Uint64("max_frame_size", uint64(resp.MaxFrameSize)),
		slog.String("hostname", resp.Hostname),
	)
	return resp, nil
}

// Ident reads the controller identification (UMAS 0x02).
func (s *UmasSession) Ident(ctx context.Context) (*UmasPlcIdentResponse, error) {
	resp, err := umasRequestAs[*UmasPlcIdentResponse](ctx, s, &UmasPlcIdentRequest{})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.ident = resp
	s.mu.Unlock()
	return resp, nil
}

// Status reads the controller status (UMAS 0x04) and remembers the project
// CRC quoted in variable requests.
func (s *UmasSession) Status(ctx context.Context) (*UmasPlcStatusResponse, error) {
	resp, err := umasRequestAs[*UmasPlcStatusResponse](ctx, s, &UmasPlcStatusRequest{})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.crc = resp.ProjectCRC()
	s.mu.Unlock()
	return resp, nil
}

// ReadMemoryBlock reads raw bytes of a memory block (UMAS 0x20).
func (s *UmasSession) ReadMemoryBlock(ctx context.Context, block, offset, numberOfBytes uint16) ([]byte, error) {
	resp, err := umasRequestAs[*UmasReadMemoryBlockResponse](ctx, s, &UmasReadMemoryBlockRequest{
		BlockNumber:   block,
		Offset:        offset,
		NumberOfBytes: numberOfBytes,
	})
	if err != nil {
		return nil, err
	}
	return resp.Block, nil
}

// Browse downloads the unlocated variable names (UMAS 0x26), following the
// next address until the controller reports the end of the table. Ident
// must have run first.
func (s *UmasSession) Browse(ctx context.Context) ([]UmasVariable, error) {
	s.mu.RLock()
	ident := s.ident
	s.mu.RUnlock()
	if ident == nil {
		var err error
		if ident, err = s.Ident(ctx); err != nil {
			return nil, err
		}
	}

	var vars []UmasVariable
	var offset uint16
	for page := 0; page < 0x10000; page++ {
		resp, err := umasRequestAs[*UmasReadUnlocatedVariableNamesResponse](ctx, s, &UmasReadUnlocatedVariableNamesRequest{
			RecordType: UmasUnlocatedVariableNamesRecordType,
			Index:      uint8(ident.Range),
			HardwareID: ident.Ident,
			BlockNo:    0xFFFF,
			Offset:     offset,
		})
		if err != nil {
			return nil, err
		}
		for _, r := range resp.Records {
			vars = append(vars, UmasVariable{
				Name:       r.Value,
				DataType:   UmasDataType(r.DataType),
				Block:      r.Block,
				Offset:     r.Offset,
				BaseOffset: r.BaseOffset,
			})
		}
		if resp.NextAddress == 0 {
			break
		}
		offset = resp.NextAddress
	}

	s.mu.Lock()
	s.variables = make(map[string]UmasVariable, len(vars))
	for _, v := range vars {
		s.variables[v.Name] = v
	}
	s.mu.Unlock()

	sort.Slice(vars, func(i, j int) bool { return vars[i].Name < vars[j].Name })
	s.logger.Debug("umas symbol table loaded", slog.Int("variables", len(vars)))
	return vars, nil
}

// Variable looks up a symbol loaded by Browse.
func (s *UmasSession) Variable(name string) (UmasVariable, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.variables[name]
	return v, ok
}

// ProjectCRC returns the CRC remembered by Status.
func (s *UmasSession) ProjectCRC() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.crc
}

// ReadVariables reads located variables (UMAS 0x22) and returns their
// concatenated little-endian values.
func (s *UmasSession) ReadVariables(ctx context.Context, refs ...VariableReadRequestReference) ([]byte, error) {
	resp, err := umasRequestAs[*UmasReadVariableResponse](ctx, s, &UmasReadVariableRequest{
		CRC:       s.ProjectCRC(),
		Variables: refs,
	})
	if err != nil {
		return nil, err
	}
	return resp.Block, nil
}

// WriteVariables writes located variables (UMAS 0x23).
func (s *UmasSession) WriteVariables(ctx context.Context, refs ...VariableWriteRequestReference) error {
	for i, r := range refs {
		if want := umasDataSizeForIndex(r.DataSizeIndex) * r.elementCount(); len(r.RecordData) != want {
			return fmt.Errorf("%w: variable %d carries %d bytes, want %d", ErrInvalidValue, i, len(r.RecordData), want)
		}
	}
	_, err := umasRequestAs[*UmasWriteVariableResponse](ctx, s, &UmasWriteVariableRequest{
		CRC:       s.ProjectCRC(),
		Variables: refs,
	})
	return err
}

// Reference resolves a tag against the symbol table. An element index
// advances the offset by whole elements; the result must stay within the
// 8-bit offset of the request.
func (s *UmasSession) Reference(tag *UmasTag) (VariableReadRequestReference, error) {
	v, ok := s.Variable(tag.Name)
	if !ok {
		return VariableReadRequestReference{}, fmt.Errorf("%w: %s", ErrTagNotFound, tag.Name)
	}
	size := tag.DataType.RequestSize()
	if size == 0 {
		return VariableReadRequestReference{}, fmt.Errorf("%w: %s", ErrUnsupportedDataType, tag.DataType)
	}
	offset := uint32(v.Offset)
	if tag.ElementIndex != nil {
		offset += *tag.ElementIndex * uint32(tag.DataType.Size())
	}
	if offset > 0xFF {
		return VariableReadRequestReference{}, fmt.Errorf("%w: offset %d of %s exceeds a single request", ErrInvalidValue, offset, tag.Name)
	}
	ref := VariableReadRequestReference{
		DataSizeIndex: size,
		Block:         v.Block,
		BaseOffset:    v.BaseOffset,
		Offset:        uint8(offset),
	}
	if tag.Quantity > 1 {
		ref.IsArray = 1
		ref.ArrayLength = uint16(tag.Quantity)
	}
	return ref, nil
}

// ReadTag reads a variable by UMAS tag address, see ParseUmasTag.
func (s *UmasSession) ReadTag(ctx context.Context, address string) (interface{}, error) {
	tag, err := ParseUmasTag(address)
	if err != nil {
		return nil, err
	}
	ref, err := s.Reference(tag)
	if err != nil {
		return nil, err
	}
	data, err := s.ReadVariables(ctx, ref)
	if err != nil {
		return nil, err
	}
	return DecodeUmasValue(data, tag.DataType, tag.Quantity)
}

// WriteTag writes a variable by UMAS tag address.
func (s *UmasSession) WriteTag(ctx context.Context, address string, value interface{}) error {
	tag, err := ParseUmasTag(address)
	if err != nil {
		return err
	}
	ref, err := s.Reference(tag)
	if err != nil {
		return err
	}
	data, err := EncodeUmasValue(value, tag.DataType, tag.Quantity)
	if err != nil {
		return err
	}
	return s.WriteVariables(ctx, VariableWriteRequestReference{VariableReadRequestReference: ref, RecordData: data})
}
