package client

import (
	"context"
	"encoding/binary"

	"github.com/ValerySidorin/rill/internal/pool"
	"github.com/ValerySidorin/rill/internal/proto/command"
	"github.com/ValerySidorin/rill/internal/wire"
	"github.com/ValerySidorin/rill/user"
)

// Users is the user-management and session command surface. Every
// operation is a fixed composition of a command code, a request
// encoder and a result projector over the owning Conn.
type Users struct {
	c *Conn
}

// Get looks up a user. A miss yields (nil, nil), not an error.
func (u *Users) Get(ctx context.Context, id user.Identifier) (*user.Details, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}

	payload := pool.Get(16)
	defer pool.Put(payload)
	payload = id.AppendTo(payload)

	return exchangeOptional(ctx, u.c, command.GET_USER, payload, user.ReadDetails)
}

// List returns the summary of every registered user in server order.
func (u *Users) List(ctx context.Context) ([]user.Info, error) {
	return exchangeList(ctx, u.c, command.GET_USERS, nil, user.ReadInfo)
}

func (u *Users) Create(ctx context.Context, username, password string, status user.Status, permissions *user.Permissions) (user.Details, error) {
	payload := pool.Get(len(username) + len(password) + 16)
	defer pool.Put(payload)

	payload = wire.AppendString(payload, username)
	payload = wire.AppendString(payload, password)
	payload = append(payload, byte(status))
	payload = appendOptionalPermissions(payload, permissions)

	return exchangeEntity(ctx, u.c, command.CREATE_USER, payload, user.ReadDetails)
}

func (u *Users) Delete(ctx context.Context, id user.Identifier) error {
	if err := id.Validate(); err != nil {
		return err
	}

	payload := pool.Get(16)
	defer pool.Put(payload)
	payload = id.AppendTo(payload)

	return u.c.sendAndRelease(ctx, command.DELETE_USER, payload)
}

// Update sets the username and/or status of a user. Nil fields are
// left untouched by the server.
func (u *Users) Update(ctx context.Context, id user.Identifier, username *string, status *user.Status) error {
	if err := id.Validate(); err != nil {
		return err
	}

	payload := pool.Get(32)
	defer pool.Put(payload)

	payload = id.AppendTo(payload)
	if username != nil {
		payload = append(payload, 1)
		payload = wire.AppendString(payload, *username)
	} else {
		payload = append(payload, 0)
	}
	if status != nil {
		payload = append(payload, 1, byte(*status))
	} else {
		payload = append(payload, 0)
	}

	return u.c.sendAndRelease(ctx, command.UPDATE_USER, payload)
}

// UpdatePermissions replaces the permission set of a user; nil clears
// it.
func (u *Users) UpdatePermissions(ctx context.Context, id user.Identifier, permissions *user.Permissions) error {
	if err := id.Validate(); err != nil {
		return err
	}

	payload := pool.Get(32)
	defer pool.Put(payload)

	payload = id.AppendTo(payload)
	payload = appendOptionalPermissions(payload, permissions)

	return u.c.sendAndRelease(ctx, command.UPDATE_PERMISSIONS, payload)
}

func (u *Users) ChangePassword(ctx context.Context, id user.Identifier, currentPassword, newPassword string) error {
	if err := id.Validate(); err != nil {
		return err
	}

	payload := pool.Get(len(currentPassword) + len(newPassword) + 16)
	defer pool.Put(payload)

	payload = id.AppendTo(payload)
	payload = wire.AppendString(payload, currentPassword)
	payload = wire.AppendString(payload, newPassword)

	return u.c.sendAndRelease(ctx, command.CHANGE_PASSWORD, payload)
}

// Login authenticates this connection. The SDK version and build
// context strings ride along with the credentials.
//
// The response is a bare 4-byte little-endian user id, not an encoded
// entity; this asymmetry is part of the wire format.
func (u *Users) Login(ctx context.Context, username, password string) (user.Identity, error) {
	payload := pool.Get(len(username) + len(password) + 64)
	defer pool.Put(payload)

	payload = wire.AppendString(payload, username)
	payload = wire.AppendString(payload, password)
	payload = wire.AppendString(payload, UserAgent())
	payload = wire.AppendString(payload, versionContext())

	u.c.l.Debug("logging in user", "username", username)

	buf, err := u.c.send(ctx, command.LOGIN_USER, payload)
	if err != nil {
		return user.Identity{}, err
	}
	defer pool.Put(buf)

	id, err := wire.NewReader(buf).Uint32()
	if err != nil {
		return user.Identity{}, err
	}
	return user.Identity{UserID: id}, nil
}

// Logout invalidates the session; the connection stays open.
func (u *Users) Logout(ctx context.Context) error {
	u.c.l.Debug("logging out")

	if err := u.c.sendAndRelease(ctx, command.LOGOUT_USER, nil); err != nil {
		return err
	}

	u.c.l.Debug("logged out")
	return nil
}

// appendOptionalPermissions writes a presence byte and, when present,
// the permissions body behind a 4-byte little-endian length prefix so
// a decoder can skip it without parsing.
func appendOptionalPermissions(b []byte, p *user.Permissions) []byte {
	if p == nil {
		return append(b, 0)
	}
	b = append(b, 1)
	body := p.AppendTo(nil)
	b = binary.LittleEndian.AppendUint32(b, uint32(len(body)))
	return append(b, body...)
}
