package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestTCPTransportRoundTrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		io.Copy(conn, conn)
	}()

	tr, err := DialTCP(context.Background(), ln.Addr().String(), time.Second)
	assert.NilError(t, err)

	_, err = tr.Write([]byte{0x00, 0x01, 0x02})
	assert.NilError(t, err)

	buf := make([]byte, 3)
	_, err = io.ReadFull(tr, buf)
	assert.NilError(t, err)
	assert.DeepEqual(t, buf, []byte{0x00, 0x01, 0x02})

	assert.NilError(t, tr.Close())
	assert.Assert(t, tr.IsClosed())
	assert.NilError(t, tr.Close())

	_, err = tr.Write([]byte{0x00})
	assert.Assert(t, errors.Is(err, ErrClosed))
}

func TestDialTCPRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	assert.NilError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	_, err = DialTCP(context.Background(), addr, time.Second)
	assert.ErrorContains(t, err, "dial TCP")
}
