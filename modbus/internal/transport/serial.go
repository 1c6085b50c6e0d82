package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

// SerialConfig describes a serial line
type SerialConfig struct {
	Address  string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string
	// Timeout bounds a single read of the port; reads that time out are
	// retried until data arrives or the port closes.
	Timeout time.Duration
}

// SerialTransport is an RTU or ASCII serial line. Writes wait for the
// 3.5 character inter-frame gap since the last line activity.
type SerialTransport struct {
	port serial.Port

	mu           sync.Mutex
	closed       bool
	charTime     time.Duration
	frameGap     time.Duration
	lastActivity time.Time
}

// OpenSerial opens the serial port
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	if cfg.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", cfg.BaudRate)
	}
	timeout := cfg.Timeout
	if timeout <= 0 || timeout > 500*time.Millisecond {
		timeout = 500 * time.Millisecond
	}
	port, err := serial.Open(&serial.Config{
		Address:  cfg.Address,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Address, err)
	}
	t := &SerialTransport{
		port:     port,
		charTime: CharTime(cfg.BaudRate),
		frameGap: FrameGap(cfg.BaudRate),
	}
	return t, nil
}

// CharTime is how long one 11-bit character occupies the line
func CharTime(baud int) time.Duration {
	return 11 * time.Second / time.Duration(baud)
}

// FrameGap is the silent interval separating RTU frames. Above 19200 baud
// it is fixed at 1750µs.
func FrameGap(baud int) time.Duration {
	if baud >= 19200 {
		return 1750 * time.Microsecond
	}
	return CharTime(baud) * 35 / 10
}

// Read blocks until data arrives or the port closes
func (t *SerialTransport) Read(p []byte) (int, error) {
	for {
		n, err := t.port.Read(p)
		if n > 0 {
			t.mu.Lock()
			t.lastActivity = time.Now()
			t.mu.Unlock()
			if errors.Is(err, serial.ErrTimeout) {
				err = nil
			}
			return n, err
		}
		if err == nil || errors.Is(err, serial.ErrTimeout) {
			if t.IsClosed() {
				return 0, io.EOF
			}
			continue
		}
		if t.IsClosed() {
			return 0, io.EOF
		}
		return 0, err
	}
}

// Write sends a frame after the inter-frame gap
func (t *SerialTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return 0, ErrClosed
	}
	if wait := time.Until(t.lastActivity.Add(t.frameGap)); wait > 0 {
		time.Sleep(wait)
	}
	start := time.Now()
	n, err := t.port.Write(p)
	t.lastActivity = start.Add(time.Duration(n) * t.charTime)
	if err != nil {
		return n, fmt.Errorf("write serial: %w", err)
	}
	return n, nil
}

// Close closes the port
func (t *SerialTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	return t.port.Close()
}

// IsClosed returns true if the transport is closed
func (t *SerialTransport) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
