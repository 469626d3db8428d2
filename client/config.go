package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	tls_config "github.com/ValerySidorin/rill/config/tls"
	"github.com/ValerySidorin/rill/observability"
	"github.com/quic-go/quic-go"
)

// Config is the YAML-loadable client configuration used by rillctl and
// embedding applications.
type Config struct {
	Addr      string        `yaml:"addr"`
	Transport string        `yaml:"transport"` // "tcp" or "quic"
	Timeout   time.Duration `yaml:"timeout"`

	Username string `yaml:"username"`
	Password string `yaml:"password"`

	TLS  tls_config.Config `yaml:"tls"`
	QUIC QUICConfig        `yaml:"quic"`

	Log           LogConfig            `yaml:"log"`
	Observability observability.Config `yaml:"observability"`
}

type QUICConfig struct {
	KeepAlivePeriod      time.Duration `yaml:"keepalive_period"`
	HandshakeIdleTimeout time.Duration `yaml:"handshake_idle_timeout"`
	MaxIdleTimeout       time.Duration `yaml:"max_idle_timeout"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Type  string `yaml:"type"`
}

func (c *Config) SetDefaults() {
	if c.Addr == "" {
		c.Addr = "127.0.0.1:8090"
	}

	if c.Transport == "" {
		c.Transport = "tcp"
	}

	if c.Log.Level == "" {
		c.Log.Level = "INFO"
	}
}

func (c *Config) Validate() error {
	switch c.Transport {
	case "tcp", "quic":
	default:
		return fmt.Errorf("unknown transport: %q", c.Transport)
	}

	if c.Transport == "quic" && !c.TLS.Enabled {
		return errors.New("quic transport requires TLS")
	}

	return c.TLS.Validate()
}

// Dial connects with the configured transport, TLS and timeout.
func (c *Config) Dial(ctx context.Context, opts ...Option) (*Conn, error) {
	tlsConf, err := c.TLS.Parse()
	if err != nil {
		return nil, fmt.Errorf("parse TLS conf: %w", err)
	}

	if c.Timeout > 0 {
		opts = append(opts, WithTimeout(c.Timeout))
	}

	switch c.Transport {
	case "quic":
		return ConnectQUIC(ctx, c.Addr, tlsConf, c.QUIC.Parse(), opts...)
	default:
		return Connect(ctx, c.Addr, tlsConf, opts...)
	}
}

func (c *QUICConfig) Parse() *quic.Config {
	return &quic.Config{
		KeepAlivePeriod:      c.KeepAlivePeriod,
		HandshakeIdleTimeout: c.HandshakeIdleTimeout,
		MaxIdleTimeout:       c.MaxIdleTimeout,
	}
}
