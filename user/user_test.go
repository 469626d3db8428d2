package user

import (
	"testing"

	"github.com/ValerySidorin/rill/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInfoRoundTrip(t *testing.T) {
	u := Info{
		ID:        42,
		CreatedAt: 1700000000000,
		Status:    StatusActive,
		Username:  "foo",
	}

	r := wire.NewReader(u.AppendTo(nil))
	got, err := ReadInfo(r)
	require.NoError(t, err)
	assert.Equal(t, u, got)
	assert.True(t, r.Empty())
}

func TestInfoWireLayout(t *testing.T) {
	u := Info{ID: 1, CreatedAt: 2, Status: StatusInactive, Username: "ab"}
	b := u.AppendTo(nil)

	assert.Equal(t, []byte{
		1, 0, 0, 0, // id
		2, 0, 0, 0, 0, 0, 0, 0, // created at
		2,              // status code
		2, 'a', 'b', // username
	}, b)
}

func TestDetailsRoundTripWithoutPermissions(t *testing.T) {
	d := Details{Info: Info{ID: 7, CreatedAt: 1, Status: StatusActive, Username: "bar"}}

	got, err := ReadDetails(wire.NewReader(d.AppendTo(nil)))
	require.NoError(t, err)
	assert.Equal(t, d, got)
	assert.Nil(t, got.Permissions)
}

func TestDetailsRoundTripWithPermissions(t *testing.T) {
	d := Details{
		Info: Info{ID: 7, CreatedAt: 1, Status: StatusActive, Username: "bar"},
		Permissions: &Permissions{
			Global:  GlobalPermissions{ManageServers: true},
			Streams: map[uint32]StreamPermissions{1: {ReadStream: true}},
		},
	}

	got, err := ReadDetails(wire.NewReader(d.AppendTo(nil)))
	require.NoError(t, err)
	assert.Equal(t, d, got)
}

func TestDetailsPermissionsLengthPrefix(t *testing.T) {
	d := Details{
		Info:        Info{ID: 1, Status: StatusActive, Username: "u"},
		Permissions: &Permissions{},
	}
	b := d.AppendTo(nil)

	// Info is 15 bytes here; then presence byte, then a 4-byte LE
	// length covering the 11-byte permissions body.
	require.Len(t, b, 15+1+4+11)
	assert.EqualValues(t, 1, b[15])
	assert.Equal(t, []byte{11, 0, 0, 0}, b[16:20])
}

func TestReadDetailsTruncatedPermissions(t *testing.T) {
	d := Details{
		Info:        Info{ID: 1, Status: StatusActive, Username: "u"},
		Permissions: &Permissions{},
	}
	b := d.AppendTo(nil)

	_, err := ReadDetails(wire.NewReader(b[:len(b)-1]))
	assert.ErrorIs(t, err, wire.ErrMalformed)
}

func TestReadStatusUnknownCode(t *testing.T) {
	_, err := ReadStatus(wire.NewReader([]byte{9}))
	assert.ErrorIs(t, err, wire.ErrMalformed)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "active", StatusActive.String())
	assert.Equal(t, "inactive", StatusInactive.String())

	s, err := ParseStatus("inactive")
	require.NoError(t, err)
	assert.Equal(t, StatusInactive, s)

	_, err = ParseStatus("frozen")
	assert.Error(t, err)
}
