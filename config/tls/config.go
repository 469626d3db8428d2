package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config describes the client side of a TLS connection to a Rill
// server.
type Config struct {
	Enabled            bool   `yaml:"enabled"`
	CACertPEMPath      string `yaml:"ca_cert_pem_path"`
	ClientCertPEMPath  string `yaml:"client_cert_pem_path"`
	ClientKeyPEMPath   string `yaml:"client_key_pem_path"`
	ServerName         string `yaml:"server_name"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
}

func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.CACertPEMPath == "" && !c.InsecureSkipVerify {
		return errors.New("CA cert path not specified, while verification enabled")
	}

	if (c.ClientCertPEMPath == "") != (c.ClientKeyPEMPath == "") {
		return errors.New("client cert and key must be specified together")
	}

	return nil
}

// Parse builds the *tls.Config, or nil when TLS is disabled.
func (c *Config) Parse() (*tls.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate: %w", err)
	}

	if !c.Enabled {
		return nil, nil
	}

	conf := &tls.Config{
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
		NextProtos:         []string{"rill"},
	}

	if c.CACertPEMPath != "" {
		caCert, err := os.ReadFile(c.CACertPEMPath)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, errors.New("parse CA cert")
		}
		conf.RootCAs = caCertPool
	}

	if c.ClientCertPEMPath != "" {
		cert, err := tls.LoadX509KeyPair(c.ClientCertPEMPath, c.ClientKeyPEMPath)
		if err != nil {
			return nil, fmt.Errorf("load x509 key pair: %w", err)
		}
		conf.Certificates = []tls.Certificate{cert}
	}

	return conf, nil
}
