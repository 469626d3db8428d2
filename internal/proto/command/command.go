// Package command holds the closed registry of Rill command codes.
// Only the numeric code crosses the wire; names exist for logs.
package command

import "strconv"

type Code uint32

const (
	PING Code = 1

	GET_USER           Code = 31
	GET_USERS          Code = 32
	CREATE_USER        Code = 33
	DELETE_USER        Code = 34
	UPDATE_USER        Code = 35
	UPDATE_PERMISSIONS Code = 36
	CHANGE_PASSWORD    Code = 37
	LOGIN_USER         Code = 38
	LOGOUT_USER        Code = 39
)

func (c Code) String() string {
	switch c {
	case PING:
		return "ping"
	case GET_USER:
		return "user.get"
	case GET_USERS:
		return "user.get_all"
	case CREATE_USER:
		return "user.create"
	case DELETE_USER:
		return "user.delete"
	case UPDATE_USER:
		return "user.update"
	case UPDATE_PERMISSIONS:
		return "user.update_permissions"
	case CHANGE_PASSWORD:
		return "user.change_password"
	case LOGIN_USER:
		return "user.login"
	case LOGOUT_USER:
		return "user.logout"
	default:
		return "unknown(" + strconv.FormatUint(uint64(c), 10) + ")"
	}
}
