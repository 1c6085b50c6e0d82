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
	"io"
	"log/slog"
	"time"
)

// SerialConfig holds serial line settings for RTU and ASCII
type SerialConfig struct {
	BaudRate int
	DataBits int
	StopBits int
	Parity   string // "N", "E" or "O"
}

// Dialer opens the byte stream a client talks over
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// clientOptions holds configuration for the Modbus client
type clientOptions struct {
	protocol DriverType
	unitID   uint8

	// Timeouts
	timeout     time.Duration
	dialTimeout time.Duration
	retries     int
	retryDelay  time.Duration

	byteOrder    ByteOrder
	serial       SerialConfig
	maxFrameSize int

	// Stream overrides
	dialer Dialer
	mock   *MockDevice

	logger *slog.Logger
}

// defaultOptions returns the default client options
func defaultOptions() *clientOptions {
	return &clientOptions{
		protocol:    DriverTCP,
		unitID:      1,
		timeout:     3 * time.Second,
		dialTimeout: 5 * time.Second,
		retries:     0,
		retryDelay:  200 * time.Millisecond,
		byteOrder:   BigEndian,
		serial: SerialConfig{
			BaudRate: 19200,
			DataBits: 8,
			StopBits: 1,
			Parity:   "E",
		},
		logger: slog.Default(),
	}
}

// Option is a functional option for configuring the client
type Option func(*clientOptions)

// WithProtocol selects TCP, RTU, ASCII or UMAS framing
func WithProtocol(d DriverType) Option {
	return func(o *clientOptions) {
		o.protocol = d
	}
}

// WithUnitID sets the unit identifier (slave address on serial lines)
func WithUnitID(id uint8) Option {
	return func(o *clientOptions) {
		o.unitID = id
	}
}

// WithTimeout sets the per-attempt request timeout
func WithTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.timeout = d
	}
}

// WithDialTimeout sets the connection timeout
func WithDialTimeout(d time.Duration) Option {
	return func(o *clientOptions) {
		o.dialTimeout = d
	}
}

// WithRetries sets how often a timed out request is repeated
func WithRetries(n int) Option {
	return func(o *clientOptions) {
		o.retries = n
	}
}

// WithRetryDelay sets the delay between retries
func WithRetryDelay(d time.Duration) Option {
	return func(o *clientOptions) {
		o.retryDelay = d
	}
}

// WithByteOrder sets how multi-register values are laid out
func WithByteOrder(order ByteOrder) Option {
	return func(o *clientOptions) {
		o.byteOrder = order
	}
}

// WithSerial sets the serial line parameters for RTU and ASCII
func WithSerial(cfg SerialConfig) Option {
	return func(o *clientOptions) {
		o.serial = cfg
	}
}

// WithMaxFrameSize bounds the length field accepted in TCP frames
func WithMaxFrameSize(n int) Option {
	return func(o *clientOptions) {
		o.maxFrameSize = n
	}
}

// WithDialer replaces the network or serial transport
func WithDialer(d Dialer) Option {
	return func(o *clientOptions) {
		o.dialer = d
	}
}

// WithTransport makes the client talk over an already open stream. The
// stream cannot be reopened once closed.
func WithTransport(conn io.ReadWriteCloser) Option {
	return func(o *clientOptions) {
		used := false
		o.dialer = func(context.Context) (io.ReadWriteCloser, error) {
			if used {
				return nil, ErrConnectionClosed
			}
			used = true
			return conn, nil
		}
	}
}

// WithMockDevice connects the client to an in-memory device
func WithMockDevice(dev *MockDevice) Option {
	return func(o *clientOptions) {
		o.mock = dev
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) Option {
	return func(o *clientOptions) {
		o.logger = logger
	}
}
