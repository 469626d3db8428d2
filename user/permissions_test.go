package user

import (
	"testing"

	"github.com/ValerySidorin/rill/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGlobalPermissionsWireOrder(t *testing.T) {
	p := Permissions{Global: GlobalPermissions{ManageServers: true, SendMessages: true}}
	b := p.AppendTo(nil)

	// 10 global flag bytes in field order, then the stream map
	// presence byte.
	require.Len(t, b, 11)
	assert.Equal(t, []byte{1, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0}, b)
}

func TestPermissionsRoundTripGlobalOnly(t *testing.T) {
	p := Permissions{Global: GlobalPermissions{ReadServers: true, PollMessages: true}}

	got, err := ReadPermissions(wire.NewReader(p.AppendTo(nil)))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPermissionsRoundTripNested(t *testing.T) {
	p := Permissions{
		Global: GlobalPermissions{ManageStreams: true, ReadStreams: true},
		Streams: map[uint32]StreamPermissions{
			1: {
				ReadStream:   true,
				PollMessages: true,
				Topics: map[uint32]TopicPermissions{
					10: {ReadTopic: true, PollMessages: true},
					11: {ManageTopic: true},
				},
			},
			7: {ManageStream: true},
		},
	}

	got, err := ReadPermissions(wire.NewReader(p.AppendTo(nil)))
	require.NoError(t, err)
	assert.Equal(t, p, got)
}

func TestPermissionsEncodingDeterministic(t *testing.T) {
	p := Permissions{
		Streams: map[uint32]StreamPermissions{
			3: {}, 1: {}, 2: {},
		},
	}

	first := p.AppendTo(nil)
	for range 16 {
		assert.Equal(t, first, p.AppendTo(nil))
	}
}

func TestReadPermissionsTruncated(t *testing.T) {
	p := Permissions{
		Global:  GlobalPermissions{ManageUsers: true},
		Streams: map[uint32]StreamPermissions{5: {ReadStream: true}},
	}
	b := p.AppendTo(nil)

	for n := range len(b) {
		_, err := ReadPermissions(wire.NewReader(b[:n]))
		assert.ErrorIs(t, err, wire.ErrMalformed, "truncated at %d", n)
	}
}
