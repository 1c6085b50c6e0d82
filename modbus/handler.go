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
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Result is the outcome of one transaction.
type Result struct {
	ADU ADU
	Err error
}

type transaction struct {
	args ParseArgs
	sent time.Time
	done chan Result
}

// Handler correlates requests and responses on one stream connection.
//
// Senders register a transaction identifier before writing. The receive
// loop delimits frames, decodes each with the parse arguments registered
// for its identifier and resolves the waiting caller. A frame nobody waits
// for, or one that fails to decode, closes the connection: the stream can
// no longer be trusted to be in sync.
type Handler struct {
	conn    io.ReadWriteCloser
	driver  DriverType
	reader  frameReader
	logger  *slog.Logger
	metrics *Metrics

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint16]*transaction
	nextID    atomic.Uint32

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

// NewHandler wraps an open stream. Call Start to launch the receive loop.
func NewHandler(conn io.ReadWriteCloser, driver DriverType, logger *slog.Logger, metrics *Metrics, maxFrameSize int) (*Handler, error) {
	f, err := newFramer(driver, true, maxFrameSize)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Handler{
		conn:    conn,
		driver:  driver,
		reader:  frameReader{framer: f},
		logger:  logger,
		metrics: metrics,
		pending: make(map[uint16]*transaction),
		closed:  make(chan struct{}),
	}, nil
}

// Start launches the receive loop.
func (h *Handler) Start() {
	go h.receive()
}

// NextTransactionID returns a fresh identifier, wrapping at 16 bits.
// Serial drivers always use 0.
func (h *Handler) NextTransactionID() uint16 {
	if !h.driver.streamBased() {
		return 0
	}
	return uint16(h.nextID.Add(1))
}

// WriteWaitForResponse registers id with the arguments needed to decode its
// response, then writes payload. The returned channel yields exactly one
// Result, either the response or the reason the connection closed.
func (h *Handler) WriteWaitForResponse(payload []byte, id uint16, args ParseArgs) (<-chan Result, error) {
	tx := &transaction{args: args, sent: time.Now(), done: make(chan Result, 1)}

	h.pendingMu.Lock()
	select {
	case <-h.closed:
		h.pendingMu.Unlock()
		return nil, h.Err()
	default:
	}
	if _, busy := h.pending[id]; busy {
		h.pendingMu.Unlock()
		return nil, fmt.Errorf("%w: %d", ErrTransactionInUse, id)
	}
	h.pending[id] = tx
	h.pendingMu.Unlock()
	h.metrics.ActiveRequests.Inc()

	h.writeMu.Lock()
	_, err := h.conn.Write(payload)
	h.writeMu.Unlock()
	if err != nil {
		h.Cancel(id)
		h.fail(fmt.Errorf("%w: write: %v", ErrConnectionClosed, err))
		return nil, fmt.Errorf("write request: %w", err)
	}
	h.metrics.BytesSent.Add(int64(len(payload)))
	h.metrics.RecordActivity()
	return tx.done, nil
}

// Cancel forgets a pending transaction, typically after the caller gave up
// waiting. A response arriving later is treated as unsolicited.
func (h *Handler) Cancel(id uint16) {
	h.pendingMu.Lock()
	if _, ok := h.pending[id]; ok {
		delete(h.pending, id)
		h.metrics.ActiveRequests.Dec()
	}
	h.pendingMu.Unlock()
}

// Pending returns the number of transactions awaiting a response.
func (h *Handler) Pending() int {
	h.pendingMu.Lock()
	defer h.pendingMu.Unlock()
	return len(h.pending)
}

// Done is closed once the connection is closed.
func (h *Handler) Done() <-chan struct{} {
	return h.closed
}

// Err returns why the connection closed, or nil while it is open.
func (h *Handler) Err() error {
	select {
	case <-h.closed:
		return h.closeErr
	default:
		return nil
	}
}

// Close shuts the connection and fails every pending transaction.
func (h *Handler) Close() error {
	h.fail(ErrConnectionClosed)
	return nil
}

func (h *Handler) fail(cause error) {
	h.closeOnce.Do(func() {
		h.pendingMu.Lock()
		h.closeErr = cause
		close(h.closed)
		pending := h.pending
		h.pending = make(map[uint16]*transaction)
		h.pendingMu.Unlock()

		if err := h.conn.Close(); err != nil {
			h.logger.Debug("close transport", slog.String("error", err.Error()))
		}
		for _, tx := range pending {
			tx.done <- Result{Err: cause}
			h.metrics.ActiveRequests.Dec()
		}
	})
}

func (h *Handler) receive() {
	buf := make([]byte, 1024)
	for {
		n, err := h.conn.Read(buf)
		if n > 0 {
			h.metrics.BytesReceived.Add(int64(n))
			h.metrics.RecordActivity()
			h.reader.feed(buf[:n])
			if !h.drain() {
				return
			}
		}
		if err != nil {
			if h.reader.state() == streamAccumulating {
				h.metrics.DecodeErrors.Inc()
				h.logger.Warn("connection ended mid-frame", slog.Int("buffered", len(h.reader.buf)))
			}
			if errors.Is(err, io.EOF) {
				h.fail(ErrConnectionClosed)
			} else {
				h.fail(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			}
			return
		}
	}
}

// drain dispatches every complete buffered frame. It returns false once
// the connection has been closed.
func (h *Handler) drain() bool {
	for {
		frame, err := h.reader.next()
		if err != nil {
			h.metrics.DecodeErrors.Inc()
			h.logger.Warn("cannot delimit frame, closing connection", slog.String("error", err.Error()))
			h.fail(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
			return false
		}
		if frame == nil {
			return true
		}
		if !h.dispatch(frame) {
			return false
		}
	}
}

func (h *Handler) dispatch(frame []byte) bool {
	id := h.reader.framer.transactionID(frame)

	h.pendingMu.Lock()
	tx, ok := h.pending[id]
	if ok {
		delete(h.pending, id)
	}
	h.pendingMu.Unlock()

	if !ok {
		h.metrics.UnsolicitedFrames.Inc()
		h.logger.Warn("unsolicited frame, closing connection",
			slog.Uint64("transaction_id", uint64(id)),
			slog.Int("length", len(frame)),
		)
		h.fail(fmt.Errorf("%w: transaction %d", ErrUnsolicitedMessage, id))
		return false
	}
	h.metrics.ActiveRequests.Dec()

	adu, err := h.reader.framer.decode(frame, tx.args)
	if err != nil {
		h.metrics.DecodeErrors.Inc()
		h.logger.Warn("cannot decode frame, closing connection",
			slog.Uint64("transaction_id", uint64(id)),
			slog.String("error", err.Error()),
		)
		tx.done <- Result{Err: err}
		h.fail(fmt.Errorf("%w: %v", ErrConnectionClosed, err))
		return false
	}

	h.metrics.ResponsesReceived.Inc()
	h.metrics.RequestLatency.Record(time.Since(tx.sent))
	tx.done <- Result{ADU: adu}
	return true
}
