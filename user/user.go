// Package user holds the Rill user-management domain types and their
// wire encodings. Entities are constructed by decoding server
// responses, never speculatively by the client.
package user

import (
	"encoding/binary"

	"github.com/ValerySidorin/rill/internal/wire"
)

// Info is the summary projection of a user returned by list calls.
type Info struct {
	ID        uint32
	CreatedAt uint64
	Status    Status
	Username  string
}

// Details is Info plus the optional permission set, returned by
// lookups and create.
type Details struct {
	Info
	Permissions *Permissions
}

// Identity is the result of a successful login exchange. Token is
// supplementary info the server may return; it holds no secret
// material beyond that.
type Identity struct {
	UserID uint32
	Token  *string
}

// AppendTo appends the wire form of the summary projection: 4-byte LE
// id, 8-byte LE creation timestamp, status code byte, then the
// username with a 1-byte length.
func (u Info) AppendTo(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, u.ID)
	b = binary.LittleEndian.AppendUint64(b, u.CreatedAt)
	b = append(b, byte(u.Status))
	b = append(b, byte(len(u.Username)))
	return append(b, u.Username...)
}

// AppendTo appends Info followed by a permission presence byte and,
// when present, a 4-byte LE length prefix and the permissions body.
// The length prefix lets a decoder skip the value without parsing it.
func (u Details) AppendTo(b []byte) []byte {
	b = u.Info.AppendTo(b)
	if u.Permissions == nil {
		return append(b, 0)
	}
	b = append(b, 1)
	body := u.Permissions.AppendTo(nil)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(body)))
	return append(b, body...)
}

func ReadInfo(r *wire.Reader) (Info, error) {
	var u Info
	var err error

	if u.ID, err = r.Uint32(); err != nil {
		return Info{}, err
	}
	if u.CreatedAt, err = r.Uint64(); err != nil {
		return Info{}, err
	}
	if u.Status, err = ReadStatus(r); err != nil {
		return Info{}, err
	}
	if u.Username, err = r.ShortString(); err != nil {
		return Info{}, err
	}
	return u, nil
}

func ReadDetails(r *wire.Reader) (Details, error) {
	info, err := ReadInfo(r)
	if err != nil {
		return Details{}, err
	}

	d := Details{Info: info}
	present, err := r.Bool()
	if err != nil {
		return Details{}, err
	}
	if !present {
		return d, nil
	}

	n, err := r.Uint32()
	if err != nil {
		return Details{}, err
	}
	body, err := r.Bytes(int(n))
	if err != nil {
		return Details{}, err
	}

	perms, err := ReadPermissions(wire.NewReader(body))
	if err != nil {
		return Details{}, err
	}
	d.Permissions = &perms
	return d, nil
}
