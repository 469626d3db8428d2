package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/ValerySidorin/rill/internal/pool"
	"github.com/ValerySidorin/rill/internal/wire"
)

// Frames larger than this are treated as protocol corruption rather
// than read to completion.
const maxFrameSize = 64 << 20

// Transport carries whole frames between client and server. A frame on
// the wire is a 4-byte little-endian length followed by that many
// bytes; implementations add and strip the prefix so the dispatcher
// deals in frame bodies only.
//
// Buffers returned by ReadFrame come from internal/pool and must be
// returned there exactly once.
type Transport interface {
	WriteFrame(body []byte) error
	ReadFrame() ([]byte, error)
	Close() error
}

type tcpTransport struct {
	conn net.Conn
	br   *bufio.Reader
}

func dialTCP(ctx context.Context, addr string, tlsConf *tls.Config) (*tcpTransport, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("tcp: dial: %w", err)
	}

	if tlsConf != nil {
		tc := tls.Client(conn, tlsConf)
		if err := tc.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("tls: handshake: %w", err)
		}
		conn = tc
	}

	return &tcpTransport{
		conn: conn,
		br:   bufio.NewReader(conn),
	}, nil
}

func (t *tcpTransport) WriteFrame(body []byte) error {
	buf := pool.Get(wire.Uint32Len + len(body))
	defer pool.Put(buf)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)

	// One logical write per frame.
	if _, err := t.conn.Write(buf); err != nil {
		return fmt.Errorf("tcp: write frame: %w", err)
	}
	return nil
}

func (t *tcpTransport) ReadFrame() ([]byte, error) {
	return readFrame(t.br)
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

func readFrame(r io.Reader) ([]byte, error) {
	var hdr [wire.Uint32Len]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("read frame length: %w", err)
	}

	n := binary.LittleEndian.Uint32(hdr[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("frame length %d: %w", n, wire.ErrMalformed)
	}

	buf := pool.Get(int(n))[:n]
	if _, err := io.ReadFull(r, buf); err != nil {
		pool.Put(buf)
		return nil, fmt.Errorf("read frame body: %w", err)
	}
	return buf, nil
}
