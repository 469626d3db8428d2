package client

import (
	"fmt"
	"runtime"
)

// Version is the SDK release version reported to the server at login.
const Version = "0.3.1"

func UserAgent() string {
	return "rill-go/" + Version
}

// versionContext is the free-form context string sent with login.
func versionContext() string {
	return fmt.Sprintf("%s %s/%s %s", UserAgent(), runtime.GOOS, runtime.GOARCH, runtime.Version())
}
