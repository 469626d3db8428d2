package client

import (
	"log/slog"
	"time"
)

type Option func(c *Conn)

func WithLogger(l *slog.Logger) Option {
	return func(c *Conn) {
		c.l = l
	}
}

// WithTimeout bounds every exchange with a deadline. Zero (the
// default) means exchanges wait as long as their context allows.
func WithTimeout(d time.Duration) Option {
	return func(c *Conn) {
		c.timeout = d
	}
}
