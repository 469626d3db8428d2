package user

import (
	"encoding/binary"
	"fmt"

	"github.com/ValerySidorin/rill/internal/wire"
)

const (
	kindNumeric byte = 0
	kindNamed   byte = 1
)

// Identifier addresses a user either by numeric id or by name. It is a
// closed sum with exactly two constructors, ID and Name; both forms
// encode to the same discriminated union on the wire, so there is no
// third silently-unencodable shape.
type Identifier struct {
	kind byte
	id   uint32
	name string
}

// ID constructs a numeric identifier.
func ID(id uint32) Identifier {
	return Identifier{kind: kindNumeric, id: id}
}

// Name constructs a named identifier. The name must be at most 255
// bytes, the wire format carries its length in a single byte.
func Name(name string) Identifier {
	return Identifier{kind: kindNamed, name: name}
}

// Numeric reports the id when the identifier is the numeric form.
func (i Identifier) Numeric() (uint32, bool) {
	return i.id, i.kind == kindNumeric
}

// Named reports the name when the identifier is the named form.
func (i Identifier) Named() (string, bool) {
	return i.name, i.kind == kindNamed
}

func (i Identifier) Validate() error {
	if i.kind == kindNamed && len(i.name) > 255 {
		return fmt.Errorf("named identifier longer than 255 bytes: %q", i.name)
	}
	return nil
}

func (i Identifier) String() string {
	if i.kind == kindNamed {
		return i.name
	}
	return fmt.Sprintf("#%d", i.id)
}

// AppendTo appends the wire form: a 1-byte kind discriminator followed
// by a 4-byte little-endian id or a 1-byte length and the name bytes.
func (i Identifier) AppendTo(b []byte) []byte {
	b = append(b, i.kind)
	if i.kind == kindNamed {
		b = append(b, byte(len(i.name)))
		return append(b, i.name...)
	}
	return binary.LittleEndian.AppendUint32(b, i.id)
}

func ReadIdentifier(r *wire.Reader) (Identifier, error) {
	kind, err := r.Byte()
	if err != nil {
		return Identifier{}, err
	}
	switch kind {
	case kindNumeric:
		id, err := r.Uint32()
		if err != nil {
			return Identifier{}, err
		}
		return ID(id), nil
	case kindNamed:
		name, err := r.ShortString()
		if err != nil {
			return Identifier{}, err
		}
		return Name(name), nil
	default:
		return Identifier{}, fmt.Errorf("identifier kind %d: %w", kind, wire.ErrMalformed)
	}
}
