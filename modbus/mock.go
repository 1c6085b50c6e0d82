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
	"io"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/TheCount/go-multilocker/multilocker"
)

const (
	mockTableSize      = 0x10000
	mockBlockSize      = 256
	mockRecordsPerFile = 10000
	mockFIFOCapacity   = 31
	mockEventLogSize   = 64
	mockUmasPageSize   = 8
)

// UMAS error payload the mock answers with
const mockUmasRefused = 0x81

type mockBlock struct {
	mu   sync.RWMutex
	vals []uint16
}

// mockTable is one data table split into independently locked blocks. An
// access spanning several blocks locks all of them at once.
type mockTable struct {
	blocks []*mockBlock
}

type span struct {
	start, count int
}

func newMockTable() *mockTable {
	t := &mockTable{blocks: make([]*mockBlock, mockTableSize/mockBlockSize)}
	for i := range t.blocks {
		t.blocks[i] = &mockBlock{vals: make([]uint16, mockBlockSize)}
	}
	return t
}

func (t *mockTable) locker(write bool, spans ...span) (sync.Locker, error) {
	seen := make(map[*mockBlock]bool)
	var lockers []sync.Locker
	for _, s := range spans {
		if s.start < 0 || s.count < 1 || s.start+s.count > mockTableSize {
			return nil, ExceptionIllegalDataAddress
		}
		for i := s.start / mockBlockSize; i <= (s.start+s.count-1)/mockBlockSize; i++ {
			b := t.blocks[i]
			if seen[b] {
				continue
			}
			seen[b] = true
			if write {
				lockers = append(lockers, &b.mu)
			} else {
				lockers = append(lockers, b.mu.RLocker())
			}
		}
	}
	return multilocker.New(lockers...), nil
}

func (t *mockTable) get(i int) uint16    { return t.blocks[i/mockBlockSize].vals[i%mockBlockSize] }
func (t *mockTable) set(i int, v uint16) { t.blocks[i/mockBlockSize].vals[i%mockBlockSize] = v }

func (t *mockTable) readLocked(start, count int) []uint16 {
	out := make([]uint16, count)
	for i := range out {
		out[i] = t.get(start + i)
	}
	return out
}

func (t *mockTable) writeLocked(start int, values []uint16) {
	for i, v := range values {
		t.set(start+i, v)
	}
}

func (t *mockTable) read(start, count int) ([]uint16, error) {
	l, err := t.locker(false, span{start, count})
	if err != nil {
		return nil, err
	}
	l.Lock()
	defer l.Unlock()
	return t.readLocked(start, count), nil
}

func (t *mockTable) write(start int, values []uint16) error {
	l, err := t.locker(true, span{start, len(values)})
	if err != nil {
		return err
	}
	l.Lock()
	defer l.Unlock()
	t.writeLocked(start, values)
	return nil
}

func (t *mockTable) readBits(start, count int) ([]bool, error) {
	vals, err := t.read(start, count)
	if err != nil {
		return nil, err
	}
	out := make([]bool, len(vals))
	for i, v := range vals {
		out[i] = v != 0
	}
	return out, nil
}

func (t *mockTable) writeBits(start int, values []bool) error {
	vals := make([]uint16, len(values))
	for i, on := range values {
		if on {
			vals[i] = 1
		}
	}
	return t.write(start, vals)
}

type mockUmas struct {
	hostname  string
	ident     uint32
	crc       uint32
	blocks    map[uint16][]byte
	variables []UmasUnlocatedVariableReference
}

// MockDevice is an in-memory Modbus server. It answers request PDUs from
// its data tables and can be served over a pipe (see WithMockDevice) or any
// net.Listener.
type MockDevice struct {
	coils            *mockTable
	discreteInputs   *mockTable
	inputRegisters   *mockTable
	holdingRegisters *mockTable

	mu              sync.Mutex
	unitID          uint8
	files           map[uint16][]uint16
	fifos           map[uint16][]uint16
	exceptionStatus uint8
	eventCount      uint16
	events          []byte
	serverID        []byte
	identity        map[uint8]string
	umas            mockUmas

	logger *slog.Logger
}

// NewMockDevice creates a device with zeroed tables that answers every
// unit identifier.
func NewMockDevice() *MockDevice {
	return &MockDevice{
		coils:            newMockTable(),
		discreteInputs:   newMockTable(),
		inputRegisters:   newMockTable(),
		holdingRegisters: newMockTable(),
		files:            make(map[uint16][]uint16),
		fifos:            make(map[uint16][]uint16),
		serverID:         []byte("edgeo-mock"),
		identity: map[uint8]string{
			DeviceObjectVendorName:         "Edgeo",
			DeviceObjectProductCode:        "MOCK",
			DeviceObjectMajorMinorRevision: "1.0",
		},
		umas: mockUmas{
			hostname: "MOCKPLC",
			ident:    0x0A0B0C0D,
			crc:      0x5EED0001,
			blocks:   make(map[uint16][]byte),
		},
		logger: slog.Default(),
	}
}

// SetLogger sets the logger used while serving connections
func (d *MockDevice) SetLogger(l *slog.Logger) { d.logger = l }

// SetUnitID restricts the device to one unit identifier; 0 answers all.
func (d *MockDevice) SetUnitID(id uint8) {
	d.mu.Lock()
	d.unitID = id
	d.mu.Unlock()
}

// SetCoil sets a coil, address is zero-based
func (d *MockDevice) SetCoil(address uint16, on bool) {
	d.coils.writeBits(int(address), []bool{on})
}

// Coil returns a coil state
func (d *MockDevice) Coil(address uint16) bool {
	v, _ := d.coils.readBits(int(address), 1)
	return v[0]
}

// SetDiscreteInput sets a discrete input
func (d *MockDevice) SetDiscreteInput(address uint16, on bool) {
	d.discreteInputs.writeBits(int(address), []bool{on})
}

// SetInputRegisters sets input registers starting at address
func (d *MockDevice) SetInputRegisters(address uint16, values ...uint16) error {
	return d.inputRegisters.write(int(address), values)
}

// SetHoldingRegisters sets holding registers starting at address
func (d *MockDevice) SetHoldingRegisters(address uint16, values ...uint16) error {
	return d.holdingRegisters.write(int(address), values)
}

// HoldingRegisters returns count holding registers starting at address
func (d *MockDevice) HoldingRegisters(address uint16, count int) ([]uint16, error) {
	return d.holdingRegisters.read(int(address), count)
}

// SetFIFO installs a FIFO queue behind a pointer address
func (d *MockDevice) SetFIFO(address uint16, values ...uint16) {
	d.mu.Lock()
	d.fifos[address] = append([]uint16(nil), values...)
	d.mu.Unlock()
}

// SetExceptionStatus sets the eight exception status outputs
func (d *MockDevice) SetExceptionStatus(v uint8) {
	d.mu.Lock()
	d.exceptionStatus = v
	d.mu.Unlock()
}

// SetIdentification sets a device identification object
func (d *MockDevice) SetIdentification(id uint8, value string) {
	d.mu.Lock()
	d.identity[id] = value
	d.mu.Unlock()
}

// SetServerID sets the Report Server ID payload
func (d *MockDevice) SetServerID(b []byte) {
	d.mu.Lock()
	d.serverID = append([]byte(nil), b...)
	d.mu.Unlock()
}

// SetFileRecord writes registers into a file starting at record
func (d *MockDevice) SetFileRecord(file, record uint16, values ...uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(record)+len(values) > mockRecordsPerFile {
		return ExceptionIllegalDataAddress
	}
	copy(d.fileLocked(file)[record:], values)
	return nil
}

func (d *MockDevice) fileLocked(file uint16) []uint16 {
	f, ok := d.files[file]
	if !ok {
		f = make([]uint16, mockRecordsPerFile)
		d.files[file] = f
	}
	return f
}

// SetProjectCRC sets the CRC reported by the UMAS status request
func (d *MockDevice) SetProjectCRC(crc uint32) {
	d.mu.Lock()
	d.umas.crc = crc
	d.mu.Unlock()
}

// AddUmasVariable publishes a symbol and stores its initial value in the
// given memory block at offset.
func (d *MockDevice) AddUmasVariable(name string, t UmasDataType, block, offset uint16, value []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	mem := d.umas.blocks[block]
	if end := int(offset) + len(value); end > len(mem) {
		mem = append(mem, make([]byte, end-len(mem))...)
	}
	copy(mem[offset:], value)
	d.umas.blocks[block] = mem
	d.umas.variables = append(d.umas.variables, UmasUnlocatedVariableReference{
		DataType: uint16(t),
		Block:    block,
		Offset:   offset,
		Value:    name,
	})
}

// UmasMemory returns a copy of a memory block
func (d *MockDevice) UmasMemory(block uint16) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.umas.blocks[block]...)
}

// Handle answers one request PDU with a response or exception PDU.
func (d *MockDevice) Handle(req PDU) PDU {
	resp, err := d.handle(req)
	if err != nil {
		var code ExceptionCode
		if !errors.As(err, &code) {
			d.logger.Warn("mock device failure", slog.String("error", err.Error()))
			code = ExceptionServerDeviceFailure
		}
		return &ExceptionResponse{Function: req.FunctionCode(), ExceptionCode: code}
	}
	if _, counter := req.(*GetComEventCounterRequest); !counter {
		d.recordEvent()
	}
	return resp
}

func (d *MockDevice) recordEvent() {
	d.mu.Lock()
	d.eventCount++
	d.events = append([]byte{0x40}, d.events...)
	if len(d.events) > mockEventLogSize {
		d.events = d.events[:mockEventLogSize]
	}
	d.mu.Unlock()
}

func quantityIn(q uint16, max int) error {
	if q < 1 || int(q) > max {
		return ExceptionIllegalDataValue
	}
	return nil
}

func (d *MockDevice) handle(req PDU) (PDU, error) {
	switch r := req.(type) {
	case *ReadCoilsRequest:
		if err := quantityIn(r.Quantity, MaxReadBits); err != nil {
			return nil, err
		}
		bits, err := d.coils.readBits(int(r.StartingAddress), int(r.Quantity))
		if err != nil {
			return nil, err
		}
		return &ReadCoilsResponse{Value: packBits(bits)}, nil

	case *ReadDiscreteInputsRequest:
		if err := quantityIn(r.Quantity, MaxReadBits); err != nil {
			return nil, err
		}
		bits, err := d.discreteInputs.readBits(int(r.StartingAddress), int(r.Quantity))
		if err != nil {
			return nil, err
		}
		return &ReadDiscreteInputsResponse{Value: packBits(bits)}, nil

	case *ReadHoldingRegistersRequest:
		if err := quantityIn(r.Quantity, MaxReadRegisters); err != nil {
			return nil, err
		}
		regs, err := d.holdingRegisters.read(int(r.StartingAddress), int(r.Quantity))
		if err != nil {
			return nil, err
		}
		return &ReadHoldingRegistersResponse{Value: packRegisters(regs)}, nil

	case *ReadInputRegistersRequest:
		if err := quantityIn(r.Quantity, MaxReadRegisters); err != nil {
			return nil, err
		}
		regs, err := d.inputRegisters.read(int(r.StartingAddress), int(r.Quantity))
		if err != nil {
			return nil, err
		}
		return &ReadInputRegistersResponse{Value: packRegisters(regs)}, nil

	case *WriteSingleCoilRequest:
		if r.Value != CoilOn && r.Value != CoilOff {
			return nil, ExceptionIllegalDataValue
		}
		if err := d.coils.writeBits(int(r.Address), []bool{r.Value == CoilOn}); err != nil {
			return nil, err
		}
		return &WriteSingleCoilResponse{Address: r.Address, Value: r.Value}, nil

	case *WriteSingleRegisterRequest:
		if err := d.holdingRegisters.write(int(r.Address), []uint16{r.Value}); err != nil {
			return nil, err
		}
		return &WriteSingleRegisterResponse{Address: r.Address, Value: r.Value}, nil

	case *WriteMultipleCoilsRequest:
		if err := quantityIn(r.Quantity, MaxWriteBits); err != nil {
			return nil, err
		}
		if len(r.Value) != (int(r.Quantity)+7)/8 {
			return nil, ExceptionIllegalDataValue
		}
		bits, err := unpackBits(r.Value, r.Quantity)
		if err != nil {
			return nil, ExceptionIllegalDataValue
		}
		if err := d.coils.writeBits(int(r.StartingAddress), bits); err != nil {
			return nil, err
		}
		return &WriteMultipleCoilsResponse{StartingAddress: r.StartingAddress, Quantity: r.Quantity}, nil

	case *WriteMultipleRegistersRequest:
		if err := quantityIn(r.Quantity, MaxWriteRegisters); err != nil {
			return nil, err
		}
		if len(r.Value) != 2*int(r.Quantity) {
			return nil, ExceptionIllegalDataValue
		}
		if err := d.holdingRegisters.write(int(r.StartingAddress), unpackRegisters(r.Value)); err != nil {
			return nil, err
		}
		return &WriteMultipleRegistersResponse{StartingAddress: r.StartingAddress, Quantity: r.Quantity}, nil

	case *MaskWriteRegisterRequest:
		addr := int(r.ReferenceAddress)
		l, err := d.holdingRegisters.locker(true, span{addr, 1})
		if err != nil {
			return nil, err
		}
		l.Lock()
		current := d.holdingRegisters.get(addr)
		d.holdingRegisters.set(addr, (current&r.AndMask)|(r.OrMask&^r.AndMask))
		l.Unlock()
		return &MaskWriteRegisterResponse{ReferenceAddress: r.ReferenceAddress, AndMask: r.AndMask, OrMask: r.OrMask}, nil

	case *ReadWriteMultipleRegistersRequest:
		if err := quantityIn(r.ReadQuantity, MaxReadRegisters); err != nil {
			return nil, err
		}
		if err := quantityIn(r.WriteQuantity, 121); err != nil {
			return nil, err
		}
		if len(r.Value) != 2*int(r.WriteQuantity) {
			return nil, ExceptionIllegalDataValue
		}
		l, err := d.holdingRegisters.locker(true,
			span{int(r.WriteStartingAddress), int(r.WriteQuantity)},
			span{int(r.ReadStartingAddress), int(r.ReadQuantity)},
		)
		if err != nil {
			return nil, err
		}
		l.Lock()
		d.holdingRegisters.writeLocked(int(r.WriteStartingAddress), unpackRegisters(r.Value))
		regs := d.holdingRegisters.readLocked(int(r.ReadStartingAddress), int(r.ReadQuantity))
		l.Unlock()
		return &ReadWriteMultipleRegistersResponse{Value: packRegisters(regs)}, nil

	case *ReadFIFOQueueRequest:
		d.mu.Lock()
		fifo, ok := d.fifos[r.FIFOPointerAddress]
		values := append([]uint16(nil), fifo...)
		d.mu.Unlock()
		if !ok {
			return nil, ExceptionIllegalDataAddress
		}
		if len(values) > mockFIFOCapacity {
			return nil, ExceptionIllegalDataValue
		}
		return &ReadFIFOQueueResponse{FIFOValues: values}, nil

	case *ReadExceptionStatusRequest:
		d.mu.Lock()
		defer d.mu.Unlock()
		return &ReadExceptionStatusResponse{Value: d.exceptionStatus}, nil

	case *DiagnosticRequest:
		switch r.SubFunction {
		case 0x00: // return query data
		case 0x0A: // clear counters
			d.mu.Lock()
			d.eventCount = 0
			d.mu.Unlock()
		default:
			return nil, ExceptionIllegalFunction
		}
		return &DiagnosticResponse{SubFunction: r.SubFunction, Data: r.Data}, nil

	case *GetComEventCounterRequest:
		d.mu.Lock()
		defer d.mu.Unlock()
		return &GetComEventCounterResponse{EventCount: d.eventCount}, nil

	case *GetComEventLogRequest:
		d.mu.Lock()
		defer d.mu.Unlock()
		return &GetComEventLogResponse{
			EventCount:   d.eventCount,
			MessageCount: d.eventCount,
			Events:       append([]byte(nil), d.events...),
		}, nil

	case *ReportServerIDRequest:
		d.mu.Lock()
		defer d.mu.Unlock()
		return &ReportServerIDResponse{Value: append([]byte(nil), d.serverID...)}, nil

	case *ReadDeviceIdentificationRequest:
		return d.identify(r)

	case *ReadFileRecordRequest:
		d.mu.Lock()
		defer d.mu.Unlock()
		items := make([]FileRecordResponseItem, 0, len(r.Items))
		for _, it := range r.Items {
			f, ok := d.files[it.FileNumber]
			if it.ReferenceType != FileRecordReferenceType {
				return nil, ExceptionIllegalDataValue
			}
			if !ok || int(it.RecordNumber)+int(it.RecordLength) > mockRecordsPerFile {
				return nil, ExceptionIllegalDataAddress
			}
			regs := f[it.RecordNumber : int(it.RecordNumber)+int(it.RecordLength)]
			items = append(items, FileRecordResponseItem{ReferenceType: FileRecordReferenceType, Data: packRegisters(regs)})
		}
		return &ReadFileRecordResponse{Items: items}, nil

	case *WriteFileRecordRequest:
		d.mu.Lock()
		defer d.mu.Unlock()
		for _, it := range r.Items {
			if it.ReferenceType != FileRecordReferenceType {
				return nil, ExceptionIllegalDataValue
			}
			if int(it.RecordNumber)+len(it.Data)/2 > mockRecordsPerFile {
				return nil, ExceptionIllegalDataAddress
			}
		}
		for _, it := range r.Items {
			copy(d.fileLocked(it.FileNumber)[it.RecordNumber:], unpackRegisters(it.Data))
		}
		return &WriteFileRecordResponse{Items: r.Items}, nil

	case *UmasPDU:
		return d.handleUmas(r)
	}
	return nil, ExceptionIllegalFunction
}

// deviceIDCategory returns the access level an object belongs to.
func deviceIDCategory(id uint8) DeviceIDCode {
	switch {
	case id <= DeviceObjectMajorMinorRevision:
		return DeviceIDBasic
	case id < 0x80:
		return DeviceIDRegular
	default:
		return DeviceIDExtended
	}
}

func (d *MockDevice) identify(r *ReadDeviceIdentificationRequest) (PDU, error) {
	if r.Level < DeviceIDBasic || r.Level > DeviceIDIndividual {
		return nil, ExceptionIllegalDataValue
	}

	d.mu.Lock()
	ids := make([]int, 0, len(d.identity))
	conformity := DeviceIDBasic
	for id := range d.identity {
		ids = append(ids, int(id))
		if c := deviceIDCategory(id); c > conformity {
			conformity = c
		}
	}
	identity := make(map[uint8]string, len(d.identity))
	for k, v := range d.identity {
		identity[k] = v
	}
	d.mu.Unlock()
	sort.Ints(ids)

	resp := &ReadDeviceIdentificationResponse{
		Level:            r.Level,
		IndividualAccess: true,
		ConformityLevel:  uint8(conformity),
	}

	if r.Level == DeviceIDIndividual {
		v, ok := identity[r.ObjectID]
		if !ok {
			return nil, ExceptionIllegalDataAddress
		}
		resp.Objects = []DeviceIdentificationObject{{ObjectID: r.ObjectID, Value: []byte(v)}}
		return resp, nil
	}

	var selected []uint8
	for _, id := range ids {
		if deviceIDCategory(uint8(id)) <= r.Level {
			selected = append(selected, uint8(id))
		}
	}
	start := 0
	for start < len(selected) && selected[start] < r.ObjectID {
		start++
	}
	if start == len(selected) {
		start = 0
	}

	// function code, MEI type, level, conformity, more follows, next id and
	// object count precede the objects
	budget := MaxPDULength - 7
	for i := start; i < len(selected); i++ {
		v := identity[selected[i]]
		if 2+len(v) > budget && len(resp.Objects) > 0 {
			resp.MoreFollows = 0xFF
			resp.NextObjectID = selected[i]
			break
		}
		budget -= 2 + len(v)
		resp.Objects = append(resp.Objects, DeviceIdentificationObject{ObjectID: selected[i], Value: []byte(v)})
	}
	return resp, nil
}

func umasRefused() UmasBody {
	return &UmasErrorResponse{Data: []byte{mockUmasRefused}}
}

func (d *MockDevice) handleUmas(req *UmasPDU) (PDU, error) {
	if req.Item == nil {
		return nil, ExceptionIllegalDataValue
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var body UmasBody
	switch b := req.Item.Body.(type) {
	case *UmasInitCommsRequest:
		body = &UmasInitCommsResponse{
			MaxFrameSize:    1024,
			FirmwareVersion: 0x0301,
			Hostname:        d.umas.hostname,
		}

	case *UmasPlcIdentRequest:
		idents := make([]PlcMemoryBlockIdent, 0, len(d.umas.blocks))
		for n, mem := range d.umas.blocks {
			idents = append(idents, PlcMemoryBlockIdent{BlockType: uint8(n), MemoryLength: uint32(len(mem))})
		}
		sort.Slice(idents, func(i, j int) bool { return idents[i].BlockType < idents[j].BlockType })
		body = &UmasPlcIdentResponse{
			Ident:        d.umas.ident,
			Model:        0x0104,
			Hostname:     d.umas.hostname,
			MemoryIdents: idents,
		}

	case *UmasPlcStatusRequest:
		body = &UmasPlcStatusResponse{Blocks: []uint32{0, 0, 0, d.umas.crc}}

	case *UmasReadMemoryBlockRequest:
		mem := d.umas.blocks[b.BlockNumber]
		end := int(b.Offset) + int(b.NumberOfBytes)
		if end > len(mem) {
			body = umasRefused()
			break
		}
		body = &UmasReadMemoryBlockResponse{Range: b.Range, Block: append([]byte(nil), mem[b.Offset:end]...)}

	case *UmasReadUnlocatedVariableNamesRequest:
		if b.HardwareID != d.umas.ident {
			body = umasRefused()
			break
		}
		start := int(b.Offset)
		if start > len(d.umas.variables) {
			start = len(d.umas.variables)
		}
		end := start + mockUmasPageSize
		next := uint16(end)
		if end >= len(d.umas.variables) {
			end = len(d.umas.variables)
			next = 0
		}
		body = &UmasReadUnlocatedVariableNamesResponse{
			NextAddress: next,
			Records:     append([]UmasUnlocatedVariableReference(nil), d.umas.variables[start:end]...),
		}

	case *UmasReadVariableRequest:
		if b.CRC != d.umas.crc {
			body = umasRefused()
			break
		}
		var out []byte
		for _, v := range b.Variables {
			data, ok := d.umasLocation(&v)
			if !ok {
				out = nil
				break
			}
			out = append(out, data...)
		}
		if out == nil {
			body = umasRefused()
			break
		}
		body = &UmasReadVariableResponse{Block: out}

	case *UmasWriteVariableRequest:
		if b.CRC != d.umas.crc {
			body = umasRefused()
			break
		}
		for i := range b.Variables {
			if _, ok := d.umasLocation(&b.Variables[i].VariableReadRequestReference); !ok {
				body = umasRefused()
				break
			}
		}
		if body != nil {
			break
		}
		for i := range b.Variables {
			data, _ := d.umasLocation(&b.Variables[i].VariableReadRequestReference)
			copy(data, b.Variables[i].RecordData)
		}
		body = &UmasWriteVariableResponse{}

	default:
		body = umasRefused()
	}

	return &UmasPDU{Item: &UmasItem{
		PairingKey:         req.Item.PairingKey,
		RequestFunctionKey: req.Item.RequestFunctionKey,
		Body:               body,
	}}, nil
}

// umasLocation returns the memory a variable reference covers.
func (d *MockDevice) umasLocation(r *VariableReadRequestReference) ([]byte, bool) {
	size := umasDataSizeForIndex(r.DataSizeIndex)
	if size == 0 {
		return nil, false
	}
	mem := d.umas.blocks[r.Block]
	start := int(r.BaseOffset) + int(r.Offset)
	end := start + size*r.elementCount()
	if end > len(mem) {
		return nil, false
	}
	return mem[start:end], true
}

func (d *MockDevice) accepts(unit uint8, stream bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.unitID == 0 || unit == d.unitID {
		return true
	}
	return stream && (unit == 0 || unit == 0xFF)
}

// reply decodes one request frame and encodes the answer, or returns nil
// when no answer is due.
func (d *MockDevice) reply(f framer, frame []byte) ([]byte, error) {
	adu, err := f.decode(frame, ParseArgs{})
	if err != nil {
		if _, tcp := f.(tcpFramer); tcp && errors.Is(err, ErrUnsupportedFunctionCode) && len(frame) > tcpHeaderLength+1 {
			return (&TCPADU{
				TransactionIdentifier: f.transactionID(frame),
				UnitIdentifier:        frame[tcpHeaderLength],
				PDU:                   &ExceptionResponse{Function: FunctionCode(frame[tcpHeaderLength+1] & 0x7F), ExceptionCode: ExceptionIllegalFunction},
				Response:              true,
			}).Encode()
		}
		return nil, err
	}

	switch a := adu.(type) {
	case *TCPADU:
		if !d.accepts(a.UnitIdentifier, true) {
			return nil, nil
		}
		return (&TCPADU{
			TransactionIdentifier: a.TransactionIdentifier,
			UnitIdentifier:        a.UnitIdentifier,
			PDU:                   d.Handle(a.PDU),
			Response:              true,
		}).Encode()
	case *RTUADU:
		if a.Address == 0 {
			d.Handle(a.PDU)
			return nil, nil
		}
		if !d.accepts(a.Address, false) {
			return nil, nil
		}
		return (&RTUADU{Address: a.Address, PDU: d.Handle(a.PDU), Response: true}).Encode()
	case *ASCIIADU:
		if a.Address == 0 {
			d.Handle(a.PDU)
			return nil, nil
		}
		if !d.accepts(a.Address, false) {
			return nil, nil
		}
		return (&ASCIIADU{Address: a.Address, PDU: d.Handle(a.PDU), Response: true}).Encode()
	}
	return nil, nil
}

// ServeConn answers requests on conn until it closes. driver selects the
// framing.
func (d *MockDevice) ServeConn(conn io.ReadWriteCloser, driver DriverType) error {
	defer conn.Close()

	f, err := newFramer(driver, false, 0)
	if err != nil {
		return err
	}
	reader := frameReader{framer: f}
	buf := make([]byte, 1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			reader.feed(buf[:n])
			for {
				frame, ferr := reader.next()
				if ferr != nil {
					d.logger.Warn("mock cannot delimit request", slog.String("error", ferr.Error()))
					return ferr
				}
				if frame == nil {
					break
				}
				out, rerr := d.reply(f, frame)
				if rerr != nil {
					d.logger.Warn("mock dropped request", slog.String("error", rerr.Error()))
					continue
				}
				if out == nil {
					continue
				}
				if _, werr := conn.Write(out); werr != nil {
					return werr
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
	}
}

// Dial returns the client end of an in-memory connection served with the
// given framing.
func (d *MockDevice) Dial(driver DriverType) io.ReadWriteCloser {
	client, server := net.Pipe()
	go d.ServeConn(server, driver)
	return client
}

// Serve accepts Modbus TCP (and UMAS) connections until ln is closed.
func (d *MockDevice) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}
		d.logger.Debug("mock connection accepted", slog.String("remote_addr", conn.RemoteAddr().String()))
		go func() {
			if err := d.ServeConn(conn, DriverUMAS); err != nil {
				d.logger.Warn("mock connection failed", slog.String("error", err.Error()))
			}
		}()
	}
}
