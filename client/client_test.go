package client

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/ValerySidorin/rill/internal/proto/command"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okFrame() []byte {
	return binary.LittleEndian.AppendUint32(nil, 0)
}

func waitWrites(t *testing.T, tr *fakeTransport, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(tr.writes()) >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d writes, got %d", n, len(tr.writes()))
}

// A send issued while another is in flight must queue behind it and be
// observed strictly after the first response, never interleaved.
func TestConcurrentSendsQueueInOrder(t *testing.T) {
	tr := newFakeTransport()
	tr.manual = true
	c := NewConn(tr)
	defer c.Close()

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- c.sendAndRelease(context.Background(), command.GET_USERS, nil)
	}()
	waitWrites(t, tr, 1)

	secondDone := make(chan error, 1)
	go func() {
		secondDone <- c.Ping(context.Background())
	}()

	// The second request must not hit the wire while the first
	// response is outstanding.
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, tr.writes(), 1)
	select {
	case <-secondDone:
		t.Fatal("second send completed before the first response")
	default:
	}

	tr.push(okFrame())
	require.NoError(t, <-firstDone)

	waitWrites(t, tr, 2)
	tr.push(okFrame())
	require.NoError(t, <-secondDone)

	wrote := tr.writes()
	require.Len(t, wrote, 2)
	assert.Equal(t, uint32(command.GET_USERS), binary.LittleEndian.Uint32(wrote[0]))
	assert.Equal(t, uint32(command.PING), binary.LittleEndian.Uint32(wrote[1]))
}

// Cancelling a caller after the frame is written must not corrupt the
// dispatcher: the stale response is discarded and the next exchange
// gets its own.
func TestCancelledExchangeDoesNotLeakResponse(t *testing.T) {
	tr := newFakeTransport()
	tr.manual = true
	c := NewConn(tr)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Ping(ctx)
	}()
	waitWrites(t, tr, 1)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	// The response of the cancelled exchange arrives late.
	tr.push(okFrame())

	go func() {
		for len(tr.writes()) < 2 {
			time.Sleep(time.Millisecond)
		}
		tr.push(okFrame())
	}()
	require.NoError(t, c.Ping(context.Background()))
}

func TestTimeoutOption(t *testing.T) {
	tr := newFakeTransport()
	tr.manual = true
	c := NewConn(tr, WithTimeout(20*time.Millisecond))
	defer c.Close()

	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSendAfterClose(t *testing.T) {
	tr := newFakeTransport()
	c := NewConn(tr)
	require.NoError(t, c.Close())

	err := c.Ping(context.Background())
	assert.ErrorIs(t, err, ErrConnClosed)
}

func TestCloseUnblocksInFlightSend(t *testing.T) {
	tr := newFakeTransport()
	tr.manual = true
	c := NewConn(tr)

	done := make(chan error, 1)
	go func() {
		done <- c.Ping(context.Background())
	}()
	waitWrites(t, tr, 1)

	require.NoError(t, c.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("send not unblocked by close")
	}
}

func TestCloseIdempotent(t *testing.T) {
	tr := newFakeTransport()
	c := NewConn(tr)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}
