package client

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/binary"
	"fmt"

	"github.com/ValerySidorin/rill/internal/pool"
	"github.com/ValerySidorin/rill/internal/wire"
	"github.com/quic-go/quic-go"
)

// quicTransport frames exchanges over a single bidirectional stream of
// one QUIC connection.
type quicTransport struct {
	qconn *quic.Conn
	str   *quic.Stream
	br    *bufio.Reader
}

func dialQUIC(ctx context.Context, addr string, tlsConf *tls.Config, quicConf *quic.Config) (*quicTransport, error) {
	conn, err := quic.DialAddr(ctx, addr, tlsConf, quicConf)
	if err != nil {
		return nil, fmt.Errorf("quic: dial addr: %w", err)
	}

	str, err := conn.OpenStreamSync(ctx)
	if err != nil {
		conn.CloseWithError(0x0, "")
		return nil, fmt.Errorf("quic: open stream: %w", err)
	}

	return &quicTransport{
		qconn: conn,
		str:   str,
		br:    bufio.NewReader(str),
	}, nil
}

func (t *quicTransport) WriteFrame(body []byte) error {
	buf := pool.Get(wire.Uint32Len + len(body))
	defer pool.Put(buf)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(body)))
	buf = append(buf, body...)

	if _, err := t.str.Write(buf); err != nil {
		return fmt.Errorf("quic: write frame: %w", err)
	}
	return nil
}

func (t *quicTransport) ReadFrame() ([]byte, error) {
	return readFrame(t.br)
}

func (t *quicTransport) Close() error {
	t.str.Close()
	if err := t.qconn.CloseWithError(0x0, ""); err != nil {
		return fmt.Errorf("quic: close: %w", err)
	}
	return nil
}
