// Package config handles configuration loading for application wiring around
// the protocol clients.
//
// Configuration is loaded from a YAML file with environment variable
// expansion (${VAR} or $VAR syntax), so credentials paths and the CUIT can be
// injected at runtime. The protocol packages themselves take explicit
// arguments; only integration entrypoints read this.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	// Environment selects the endpoints: "testing" (homologation) or
	// "production".
	Environment string `yaml:"environment"`
	// Cuit is the taxpayer id the invoicing calls run under.
	Cuit string `yaml:"cuit"`
	// Service is the service name to request tickets for.
	Service     string            `yaml:"service"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Transport   TransportConfig   `yaml:"transport"`
}

// CredentialsConfig points at the PEM credential files.
type CredentialsConfig struct {
	CertFile string `yaml:"certFile"`
	KeyFile  string `yaml:"keyFile"`
}

// TransportConfig holds HTTP transport settings.
type TransportConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// InsecureSkipVerify disables TLS certificate verification; see the
	// transport package for when that is warranted.
	InsecureSkipVerify bool `yaml:"insecureSkipVerify"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Testing reports whether the homologation endpoints should be used.
func (c *Config) Testing() bool {
	return c.Environment == "testing"
}

func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "testing"
	}
	if c.Service == "" {
		c.Service = "wsfe"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 30 * time.Second
	}
}

func (c *Config) validate() error {
	if c.Environment != "testing" && c.Environment != "production" {
		return fmt.Errorf("environment must be \"testing\" or \"production\", got %q", c.Environment)
	}
	if c.Cuit == "" {
		return fmt.Errorf("cuit is required")
	}
	if c.Credentials.CertFile == "" {
		return fmt.Errorf("credentials.certFile is required")
	}
	if c.Credentials.KeyFile == "" {
		return fmt.Errorf("credentials.keyFile is required")
	}
	return nil
}
