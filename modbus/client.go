package modbus

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/edgeo/drivers/modbus/modbus/internal/transport"
)

// ConnectionState represents the client connection state
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Client is a Modbus client. It speaks TCP, RTU, ASCII or UMAS depending
// on the configured protocol.
type Client struct {
	address string
	opts    *clientOptions

	state atomic.Int32

	mu      sync.Mutex
	handler *Handler
	connID  string

	// Serial lines carry one request at a time
	serialMu sync.Mutex

	metrics *Metrics
	logger  *slog.Logger
}

// NewClient creates a new Modbus client. address is host[:port] for TCP
// and UMAS, or a serial device path for RTU and ASCII.
func NewClient(address string, opts ...Option) (*Client, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.protocol < DriverTCP || options.protocol > DriverUMAS {
		return nil, fmt.Errorf("%w: protocol %d", ErrInvalidValue, options.protocol)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}
	if options.protocol.streamBased() && options.dialer == nil && options.mock == nil {
		address = withDefaultPort(address)
	}

	return &Client{
		address: address,
		opts:    options,
		metrics: NewMetrics(),
		logger:  options.logger.With(slog.String("protocol", options.protocol.String())),
	}, nil
}

func withDefaultPort(address string) string {
	if _, _, err := net.SplitHostPort(address); err == nil {
		return address
	}
	return net.JoinHostPort(address, strconv.Itoa(DefaultPort))
}

// Connect opens the transport and starts the receive loop
func (c *Client) Connect(ctx context.Context) error {
	if !c.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}

	c.metrics.ConnectAttempts.Inc()

	conn, err := c.dial(ctx)
	if err != nil {
		c.state.Store(int32(StateDisconnected))
		c.metrics.ConnectFailures.Inc()
		return fmt.Errorf("open transport: %w", err)
	}

	h, err := NewHandler(conn, c.opts.protocol, c.logger, c.metrics, c.opts.maxFrameSize)
	if err != nil {
		conn.Close()
		c.state.Store(int32(StateDisconnected))
		c.metrics.ConnectFailures.Inc()
		return err
	}

	connID := uuid.New().String()
	c.mu.Lock()
	c.handler = h
	c.connID = connID
	c.mu.Unlock()

	h.Start()
	go c.watch(h)

	c.state.Store(int32(StateConnected))
	c.metrics.ConnectSuccesses.Inc()

	c.logger.Info("connected",
		slog.String("address", c.address),
		slog.String("conn_id", connID),
	)
	return nil
}

func (c *Client) dial(ctx context.Context) (io.ReadWriteCloser, error) {
	if c.opts.mock != nil {
		return c.opts.mock.Dial(c.opts.protocol), nil
	}
	if c.opts.dialer != nil {
		return c.opts.dialer(ctx)
	}
	switch c.opts.protocol {
	case DriverRTU, DriverASCII:
		return transport.OpenSerial(transport.SerialConfig{
			Address:  c.address,
			BaudRate: c.opts.serial.BaudRate,
			DataBits: c.opts.serial.DataBits,
			StopBits: c.opts.serial.StopBits,
			Parity:   c.opts.serial.Parity,
			Timeout:  c.opts.timeout,
		})
	default:
		return transport.DialTCP(ctx, c.address, c.opts.dialTimeout)
	}
}

// watch notices a connection closed by the receive loop
func (c *Client) watch(h *Handler) {
	<-h.Done()

	c.mu.Lock()
	lost := c.handler == h
	if lost {
		c.handler = nil
	}
	connID := c.connID
	c.mu.Unlock()

	if !lost {
		return
	}
	c.state.Store(int32(StateDisconnected))
	c.metrics.Disconnects.Inc()
	c.logger.Warn("connection lost",
		slog.String("conn_id", connID),
		slog.String("error", errString(h.Err())),
	)
}

// Close closes the connection. Requests in flight fail with
// ErrConnectionClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	h := c.handler
	c.handler = nil
	connID := c.connID
	c.mu.Unlock()

	if h == nil {
		return nil
	}

	c.state.Store(int32(StateDisconnected))
	c.metrics.Disconnects.Inc()

	if err := h.Close(); err != nil {
		return fmt.Errorf("close transport: %w", err)
	}

	c.logger.Info("disconnected", slog.String("conn_id", connID))
	return nil
}

// State returns the current connection state
func (c *Client) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Metrics returns the client metrics
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// Protocol returns the configured protocol
func (c *Client) Protocol() DriverType {
	return c.opts.protocol
}

// ByteOrder returns the configured register byte order
func (c *Client) ByteOrder() ByteOrder {
	return c.opts.byteOrder
}

func (c *Client) currentHandler() *Handler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handler
}

func (c *Client) wrap(id uint16, p PDU) ADU {
	switch c.opts.protocol {
	case DriverRTU:
		return &RTUADU{Address: c.opts.unitID, PDU: p}
	case DriverASCII:
		return &ASCIIADU{Address: c.opts.unitID, PDU: p}
	default:
		return &TCPADU{TransactionIdentifier: id, UnitIdentifier: c.opts.unitID, PDU: p}
	}
}

// Do sends a request PDU and returns the response PDU. Exception
// responses are returned as an error wrapping the ExceptionCode.
func (c *Client) Do(ctx context.Context, req PDU) (PDU, error) {
	if req.Response() {
		return nil, fmt.Errorf("%w: %s is not a request", ErrInvalidValue, pduName(req))
	}
	h := c.currentHandler()
	if h == nil {
		return nil, ErrNotConnected
	}

	args := ParseArgs{Response: true}
	if u, ok := req.(*UmasPDU); ok && u.Item != nil {
		args.UmasRequestFunctionKey = u.Item.RequestFunctionKey
	}

	if !c.opts.protocol.streamBased() {
		c.serialMu.Lock()
		defer c.serialMu.Unlock()
	}

	c.metrics.RequestsSent.Inc()
	start := time.Now()

	var resp PDU
	var err error
	for attempt := 0; attempt <= c.opts.retries; attempt++ {
		if attempt > 0 {
			c.metrics.Retries.Inc()
			c.logger.Debug("retrying request",
				slog.String("function", req.FunctionCode().String()),
				slog.Int("attempt", attempt),
			)
			select {
			case <-ctx.Done():
				c.metrics.RequestsFailed.Inc()
				return nil, ctx.Err()
			case <-time.After(c.opts.retryDelay):
			}
		}
		resp, err = c.roundTrip(ctx, h, req, args)
		if !errors.Is(err, ErrTimeout) {
			break
		}
	}
	if err != nil {
		c.metrics.RequestsFailed.Inc()
		return nil, err
	}

	if ex, ok := resp.(*ExceptionResponse); ok {
		c.metrics.ExceptionsReceived.Inc()
		c.metrics.RequestsFailed.Inc()
		return nil, fmt.Errorf("%s: %w", req.FunctionCode(), ex.ExceptionCode)
	}
	if resp.FunctionCode() != req.FunctionCode() {
		c.metrics.RequestsFailed.Inc()
		return nil, fmt.Errorf("%w: %s answered with %s", ErrUnexpectedResponse, req.FunctionCode(), resp.FunctionCode())
	}

	c.metrics.RequestsSucceeded.Inc()
	c.logger.Debug("request completed",
		slog.String("function", req.FunctionCode().String()),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

func (c *Client) roundTrip(ctx context.Context, h *Handler, req PDU, args ParseArgs) (PDU, error) {
	id := h.NextTransactionID()
	payload, err := c.wrap(id, req).Encode()
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", pduName(req), err)
	}

	done, err := h.WriteWaitForResponse(payload, id, args)
	if err != nil {
		return nil, err
	}

	timer := time.NewTimer(c.opts.timeout)
	defer timer.Stop()

	select {
	case res := <-done:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.ADU.Message(), nil
	case <-timer.C:
		h.Cancel(id)
		c.metrics.RequestsTimedOut.Inc()
		return nil, ErrTimeout
	case <-ctx.Done():
		h.Cancel(id)
		return nil, ctx.Err()
	}
}

// doAs sends req and asserts the response type.
func doAs[T PDU](ctx context.Context, c *Client, req PDU) (T, error) {
	var zero T
	resp, err := c.Do(ctx, req)
	if err != nil {
		return zero, err
	}
	typed, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("%w: got %s", ErrUnexpectedResponse, pduName(resp))
	}
	return typed, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
