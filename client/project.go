package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValerySidorin/rill/internal/pool"
	"github.com/ValerySidorin/rill/internal/proto/command"
	"github.com/ValerySidorin/rill/internal/wire"
)

// Result projectors: decoding policies layered on Conn.send. Each one
// makes exactly one decode pass over the response payload and returns
// the buffer to the pool on every path.

// exchangeOptional treats an empty payload as a legitimate miss and
// returns nil without invoking read.
func exchangeOptional[T any](ctx context.Context, c *Conn, code command.Code, payload []byte, read func(*wire.Reader) (T, error)) (*T, error) {
	buf, err := c.send(ctx, code, payload)
	if err != nil {
		return nil, err
	}
	defer pool.Put(buf)

	if len(buf) == 0 {
		return nil, nil
	}

	v, err := read(wire.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode %s response: %w", code, err)
	}
	return &v, nil
}

// exchangeList decodes concatenated entities until the payload is
// exhausted exactly, preserving server order. A partial trailing
// record is a protocol error.
func exchangeList[T any](ctx context.Context, c *Conn, code command.Code, payload []byte, read func(*wire.Reader) (T, error)) ([]T, error) {
	buf, err := c.send(ctx, code, payload)
	if err != nil {
		return nil, err
	}
	defer pool.Put(buf)

	var out []T
	r := wire.NewReader(buf)
	for !r.Empty() {
		v, err := read(r)
		if err != nil {
			if errors.Is(err, wire.ErrMalformed) {
				return nil, fmt.Errorf("decode %s response entity %d: %w: %w", code, len(out), ErrTrailingBytes, err)
			}
			return nil, fmt.Errorf("decode %s response entity %d: %w", code, len(out), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// exchangeEntity decodes exactly one entity; the payload must be
// consumed to its end.
func exchangeEntity[T any](ctx context.Context, c *Conn, code command.Code, payload []byte, read func(*wire.Reader) (T, error)) (T, error) {
	var zero T

	buf, err := c.send(ctx, code, payload)
	if err != nil {
		return zero, err
	}
	defer pool.Put(buf)

	r := wire.NewReader(buf)
	v, err := read(r)
	if err != nil {
		return zero, fmt.Errorf("decode %s response: %w", code, err)
	}
	if !r.Empty() {
		return zero, fmt.Errorf("decode %s response: %d leftover: %w", code, r.Remaining(), ErrTrailingBytes)
	}
	return v, nil
}
