// Package test runs an in-process Rill server speaking the real wire
// protocol against an in-memory user store. It exists for the client
// integration tests and implements only the user and session command
// family.
package test

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/ValerySidorin/rill/internal/proto/command"
	"github.com/ValerySidorin/rill/internal/wire"
	"github.com/ValerySidorin/rill/user"
	"github.com/panjf2000/ants/v2"
	"golang.org/x/sync/errgroup"
)

const (
	RootUsername = "rill"
	RootPassword = "rill"
	RootUserID   = 0
)

// Non-zero status codes reported by the in-memory server. The client
// core treats them as opaque.
const (
	StatusUnknownCommand     uint32 = 1
	StatusUnauthenticated    uint32 = 40
	StatusInvalidCredentials uint32 = 42
	StatusUserNotFound       uint32 = 44
	StatusUserAlreadyExists  uint32 = 45
	StatusBadRequest         uint32 = 46
)

type record struct {
	id          uint32
	username    string
	password    string
	status      user.Status
	createdAt   uint64
	permissions *user.Permissions
}

type store struct {
	mu     sync.Mutex
	users  map[uint32]*record
	nextID uint32
}

// Server is the in-process test server. Run it with RunServer and dial
// Addr with the client under test.
type Server struct {
	ln     net.Listener
	st     *store
	g      *errgroup.Group
	cancel context.CancelFunc
	conns  *ants.Pool
	l      *slog.Logger
}

func RunServer(ctx context.Context) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}

	conns, err := ants.NewPool(64)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("ants: new pool: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	g, ctx := errgroup.WithContext(ctx)

	s := &Server{
		ln:     ln,
		cancel: cancel,
		conns:  conns,
		l:      slog.Default(),
		st: &store{
			users: map[uint32]*record{
				RootUserID: {
					id:        RootUserID,
					username:  RootUsername,
					password:  RootPassword,
					status:    user.StatusActive,
					createdAt: uint64(time.Now().UnixMilli()),
				},
			},
			nextID: RootUserID + 1,
		},
	}

	g.Go(func() error {
		<-ctx.Done()
		return ln.Close()
	})
	g.Go(func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("accept: %w", err)
			}
			if err := s.conns.Submit(func() { s.handleConn(conn) }); err != nil {
				conn.Close()
			}
		}
	})
	s.g = g

	return s, nil
}

func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Close() {
	s.cancel()
	_ = s.g.Wait()
	s.conns.Release()
}

type session struct {
	loggedIn bool
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	var sess session
	for {
		body, err := readFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.l.Debug("test server: read frame", "err", err)
			}
			return
		}

		r := wire.NewReader(body)
		code, err := r.Uint32()
		if err != nil {
			return
		}

		status, payload := s.handle(&sess, command.Code(code), r)
		if err := writeResponse(conn, status, payload); err != nil {
			return
		}
	}
}

func (s *Server) handle(sess *session, code command.Code, r *wire.Reader) (uint32, []byte) {
	switch code {
	case command.PING:
		return 0, nil
	case command.LOGIN_USER:
		return s.login(sess, r)
	}

	if !sess.loggedIn {
		return StatusUnauthenticated, nil
	}

	switch code {
	case command.LOGOUT_USER:
		sess.loggedIn = false
		return 0, nil
	case command.GET_USER:
		return s.getUser(r)
	case command.GET_USERS:
		return s.getUsers()
	case command.CREATE_USER:
		return s.createUser(r)
	case command.DELETE_USER:
		return s.deleteUser(r)
	case command.UPDATE_USER:
		return s.updateUser(r)
	case command.UPDATE_PERMISSIONS:
		return s.updatePermissions(r)
	case command.CHANGE_PASSWORD:
		return s.changePassword(r)
	default:
		return StatusUnknownCommand, nil
	}
}

func (s *Server) login(sess *session, r *wire.Reader) (uint32, []byte) {
	username, err := r.String()
	if err != nil {
		return StatusBadRequest, nil
	}
	password, err := r.String()
	if err != nil {
		return StatusBadRequest, nil
	}
	// Client version and context strings are accepted and ignored.
	if _, err := r.String(); err != nil {
		return StatusBadRequest, nil
	}
	if _, err := r.String(); err != nil {
		return StatusBadRequest, nil
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	rec := s.st.findByName(username)
	if rec == nil || rec.password != password {
		return StatusInvalidCredentials, nil
	}

	sess.loggedIn = true
	return 0, binary.LittleEndian.AppendUint32(nil, rec.id)
}

func (s *Server) getUser(r *wire.Reader) (uint32, []byte) {
	id, err := user.ReadIdentifier(r)
	if err != nil {
		return StatusBadRequest, nil
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	rec := s.st.find(id)
	if rec == nil {
		return 0, nil // a miss is an empty success payload
	}
	return 0, rec.details().AppendTo(nil)
}

func (s *Server) getUsers() (uint32, []byte) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	var payload []byte
	for _, rec := range s.st.sorted() {
		payload = rec.info().AppendTo(payload)
	}
	return 0, payload
}

func (s *Server) createUser(r *wire.Reader) (uint32, []byte) {
	username, err := r.String()
	if err != nil {
		return StatusBadRequest, nil
	}
	password, err := r.String()
	if err != nil {
		return StatusBadRequest, nil
	}
	status, err := user.ReadStatus(r)
	if err != nil {
		return StatusBadRequest, nil
	}
	perms, err := readOptionalPermissions(r)
	if err != nil {
		return StatusBadRequest, nil
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	if s.st.findByName(username) != nil {
		return StatusUserAlreadyExists, nil
	}

	rec := &record{
		id:          s.st.nextID,
		username:    username,
		password:    password,
		status:      status,
		createdAt:   uint64(time.Now().UnixMilli()),
		permissions: perms,
	}
	s.st.nextID++
	s.st.users[rec.id] = rec

	return 0, rec.details().AppendTo(nil)
}

func (s *Server) deleteUser(r *wire.Reader) (uint32, []byte) {
	id, err := user.ReadIdentifier(r)
	if err != nil {
		return StatusBadRequest, nil
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	rec := s.st.find(id)
	if rec == nil {
		return StatusUserNotFound, nil
	}
	delete(s.st.users, rec.id)
	return 0, nil
}

func (s *Server) updateUser(r *wire.Reader) (uint32, []byte) {
	id, err := user.ReadIdentifier(r)
	if err != nil {
		return StatusBadRequest, nil
	}

	var username *string
	present, err := r.Bool()
	if err != nil {
		return StatusBadRequest, nil
	}
	if present {
		v, err := r.String()
		if err != nil {
			return StatusBadRequest, nil
		}
		username = &v
	}

	var status *user.Status
	if present, err = r.Bool(); err != nil {
		return StatusBadRequest, nil
	}
	if present {
		v, err := user.ReadStatus(r)
		if err != nil {
			return StatusBadRequest, nil
		}
		status = &v
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	rec := s.st.find(id)
	if rec == nil {
		return StatusUserNotFound, nil
	}
	if username != nil {
		rec.username = *username
	}
	if status != nil {
		rec.status = *status
	}
	return 0, nil
}

func (s *Server) updatePermissions(r *wire.Reader) (uint32, []byte) {
	id, err := user.ReadIdentifier(r)
	if err != nil {
		return StatusBadRequest, nil
	}
	perms, err := readOptionalPermissions(r)
	if err != nil {
		return StatusBadRequest, nil
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	rec := s.st.find(id)
	if rec == nil {
		return StatusUserNotFound, nil
	}
	rec.permissions = perms
	return 0, nil
}

func (s *Server) changePassword(r *wire.Reader) (uint32, []byte) {
	id, err := user.ReadIdentifier(r)
	if err != nil {
		return StatusBadRequest, nil
	}
	current, err := r.String()
	if err != nil {
		return StatusBadRequest, nil
	}
	newPassword, err := r.String()
	if err != nil {
		return StatusBadRequest, nil
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	rec := s.st.find(id)
	if rec == nil {
		return StatusUserNotFound, nil
	}
	if rec.password != current {
		return StatusInvalidCredentials, nil
	}
	rec.password = newPassword
	return 0, nil
}

func (st *store) find(id user.Identifier) *record {
	if n, ok := id.Numeric(); ok {
		return st.users[n]
	}
	name, _ := id.Named()
	return st.findByName(name)
}

func (st *store) findByName(name string) *record {
	for _, rec := range st.users {
		if rec.username == name {
			return rec
		}
	}
	return nil
}

func (st *store) sorted() []*record {
	out := make([]*record, 0, len(st.users))
	for id := uint32(0); id < st.nextID; id++ {
		if rec, ok := st.users[id]; ok {
			out = append(out, rec)
		}
	}
	return out
}

func (rec *record) info() user.Info {
	return user.Info{
		ID:        rec.id,
		CreatedAt: rec.createdAt,
		Status:    rec.status,
		Username:  rec.username,
	}
}

func (rec *record) details() user.Details {
	return user.Details{
		Info:        rec.info(),
		Permissions: rec.permissions,
	}
}

func readOptionalPermissions(r *wire.Reader) (*user.Permissions, error) {
	present, err := r.Bool()
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, nil
	}

	n, err := r.Uint32()
	if err != nil {
		return nil, err
	}
	body, err := r.Bytes(int(n))
	if err != nil {
		return nil, err
	}

	perms, err := user.ReadPermissions(wire.NewReader(body))
	if err != nil {
		return nil, err
	}
	return &perms, nil
}

func readFrame(conn net.Conn) ([]byte, error) {
	var hdr [wire.Uint32Len]byte
	if _, err := io.ReadFull(conn, hdr[:]); err != nil {
		return nil, err
	}

	n := binary.LittleEndian.Uint32(hdr[:])
	body := make([]byte, n)
	if _, err := io.ReadFull(conn, body); err != nil {
		return nil, err
	}
	return body, nil
}

func writeResponse(conn net.Conn, status uint32, payload []byte) error {
	buf := make([]byte, 0, 2*wire.Uint32Len+len(payload))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(wire.Uint32Len+len(payload)))
	buf = binary.LittleEndian.AppendUint32(buf, status)
	buf = append(buf, payload...)

	_, err := conn.Write(buf)
	return err
}
