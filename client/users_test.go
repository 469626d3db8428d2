package client_test

import (
	"context"
	"testing"
	"time"

	"github.com/ValerySidorin/rill/client"
	"github.com/ValerySidorin/rill/test"
	"github.com/ValerySidorin/rill/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runServer(t *testing.T) *test.Server {
	t.Helper()

	srv, err := test.RunServer(context.Background())
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *test.Server) *client.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := client.Connect(ctx, srv.Addr(), nil, client.WithTimeout(5*time.Second))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func dialAndLogin(t *testing.T, srv *test.Server) *client.Conn {
	t.Helper()

	conn := dial(t, srv)
	identity, err := conn.Users().Login(context.Background(), test.RootUsername, test.RootPassword)
	require.NoError(t, err)
	require.EqualValues(t, test.RootUserID, identity.UserID)
	return conn
}

func TestPingWithoutLogin(t *testing.T) {
	conn := dial(t, runServer(t))
	assert.NoError(t, conn.Ping(context.Background()))
}

func TestLoginWrongPassword(t *testing.T) {
	conn := dial(t, runServer(t))

	_, err := conn.Users().Login(context.Background(), test.RootUsername, "nope")

	var srvErr client.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, test.StatusInvalidCredentials, srvErr.Code)
}

func TestOperationsRequireLogin(t *testing.T) {
	conn := dial(t, runServer(t))

	_, err := conn.Users().List(context.Background())

	var srvErr client.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, test.StatusUnauthenticated, srvErr.Code)
}

func TestGetUserWhenUserExists(t *testing.T) {
	conn := dialAndLogin(t, runServer(t))

	details, err := conn.Users().Get(context.Background(), user.ID(test.RootUserID))
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.EqualValues(t, test.RootUserID, details.ID)
	assert.Equal(t, test.RootUsername, details.Username)
}

func TestGetUserByName(t *testing.T) {
	conn := dialAndLogin(t, runServer(t))

	details, err := conn.Users().Get(context.Background(), user.Name(test.RootUsername))
	require.NoError(t, err)
	require.NotNil(t, details)
	assert.EqualValues(t, test.RootUserID, details.ID)
}

func TestGetUserWhenUserDoesNotExist(t *testing.T) {
	conn := dialAndLogin(t, runServer(t))

	details, err := conn.Users().Get(context.Background(), user.ID(123456))
	require.NoError(t, err)
	assert.Nil(t, details)
}

func TestGetUsers(t *testing.T) {
	conn := dialAndLogin(t, runServer(t))

	users, err := conn.Users().List(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, test.RootUsername, users[0].Username)
}

func TestCreateAndDeleteUsers(t *testing.T) {
	ctx := context.Background()
	conn := dialAndLogin(t, runServer(t))
	users := conn.Users()

	perms := &user.Permissions{
		Global: user.GlobalPermissions{ManageServers: true},
	}

	foo, err := users.Create(ctx, "foo", "foo", user.StatusActive, perms)
	require.NoError(t, err)
	assert.Equal(t, "foo", foo.Username)
	require.NotNil(t, foo.Permissions)
	assert.Equal(t, perms.Global, foo.Permissions.Global)

	bar, err := users.Create(ctx, "bar", "bar", user.StatusActive, perms)
	require.NoError(t, err)

	all, err := users.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)

	names := make([]string, 0, len(all))
	for _, u := range all {
		names = append(names, u.Username)
	}
	assert.ElementsMatch(t, []string{test.RootUsername, "foo", "bar"}, names)

	require.NoError(t, users.Delete(ctx, user.ID(foo.ID)))
	all, err = users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	require.NoError(t, users.Delete(ctx, user.Name(bar.Username)))
	all, err = users.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestCreateDuplicateUsername(t *testing.T) {
	ctx := context.Background()
	conn := dialAndLogin(t, runServer(t))

	_, err := conn.Users().Create(ctx, "foo", "foo", user.StatusActive, nil)
	require.NoError(t, err)

	_, err = conn.Users().Create(ctx, "foo", "other", user.StatusActive, nil)

	var srvErr client.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, test.StatusUserAlreadyExists, srvErr.Code)
}

func TestUpdateUser(t *testing.T) {
	ctx := context.Background()
	conn := dialAndLogin(t, runServer(t))
	users := conn.Users()

	created, err := users.Create(ctx, "test", "test", user.StatusActive, nil)
	require.NoError(t, err)

	newName := "bar"
	inactive := user.StatusInactive
	require.NoError(t, users.Update(ctx, user.ID(created.ID), &newName, &inactive))

	got, err := users.Get(ctx, user.ID(created.ID))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bar", got.Username)
	assert.Equal(t, user.StatusInactive, got.Status)

	// Absent fields stay untouched.
	active := user.StatusActive
	require.NoError(t, users.Update(ctx, user.ID(created.ID), nil, &active))

	got, err = users.Get(ctx, user.ID(created.ID))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "bar", got.Username)
	assert.Equal(t, user.StatusActive, got.Status)
}

func TestUpdatePermissions(t *testing.T) {
	ctx := context.Background()
	conn := dialAndLogin(t, runServer(t))
	users := conn.Users()

	created, err := users.Create(ctx, "test", "test", user.StatusActive, nil)
	require.NoError(t, err)
	assert.Nil(t, created.Permissions)

	perms := &user.Permissions{
		Global: user.GlobalPermissions{ReadStreams: true, PollMessages: true},
		Streams: map[uint32]user.StreamPermissions{
			1: {ReadStream: true, PollMessages: true},
		},
	}
	require.NoError(t, users.UpdatePermissions(ctx, user.ID(created.ID), perms))

	got, err := users.Get(ctx, user.ID(created.ID))
	require.NoError(t, err)
	require.NotNil(t, got)
	require.NotNil(t, got.Permissions)
	assert.Equal(t, *perms, *got.Permissions)

	require.NoError(t, users.UpdatePermissions(ctx, user.ID(created.ID), nil))

	got, err = users.Get(ctx, user.ID(created.ID))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Permissions)
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	srv := runServer(t)
	conn := dialAndLogin(t, srv)
	users := conn.Users()

	created, err := users.Create(ctx, "test", "old", user.StatusActive, nil)
	require.NoError(t, err)

	err = users.ChangePassword(ctx, user.ID(created.ID), "wrong", "new")
	var srvErr client.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, test.StatusInvalidCredentials, srvErr.Code)

	require.NoError(t, users.ChangePassword(ctx, user.ID(created.ID), "old", "new"))

	other := dial(t, srv)
	_, err = other.Users().Login(ctx, "test", "old")
	require.ErrorAs(t, err, &srvErr)

	identity, err := other.Users().Login(ctx, "test", "new")
	require.NoError(t, err)
	assert.Equal(t, created.ID, identity.UserID)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	conn := dialAndLogin(t, runServer(t))

	require.NoError(t, conn.Users().Logout(ctx))

	_, err := conn.Users().List(ctx)
	var srvErr client.ServerError
	require.ErrorAs(t, err, &srvErr)
	assert.Equal(t, test.StatusUnauthenticated, srvErr.Code)

	// The connection stays open; logging in again restores access.
	_, err = conn.Users().Login(ctx, test.RootUsername, test.RootPassword)
	require.NoError(t, err)

	_, err = conn.Users().List(ctx)
	assert.NoError(t, err)
}
