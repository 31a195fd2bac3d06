package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultStatusHost keeps the status bridge on loopback.
	DefaultStatusHost = "127.0.0.1"
	// DefaultStatusPort matches the port written by InitDir.
	DefaultStatusPort = 7420
	// DefaultStatusMaxBodyBytes limits override payloads to 64 KB.
	DefaultStatusMaxBodyBytes int64 = 64 << 10
)

// StatusConfig configures the HTTP status bridge. Environment variables
// CHAINFORGE_STATUS_ENABLED, CHAINFORGE_STATUS_HOST and
// CHAINFORGE_STATUS_PORT override the file.
type StatusConfig struct {
	Enabled      *bool         `yaml:"enabled,omitempty"`
	Host         string        `yaml:"host,omitempty"`
	Port         int           `yaml:"port,omitempty" validate:"gte=1,lte=65535"`
	MaxBodyBytes int64         `yaml:"max_body_bytes,omitempty" validate:"gte=1"`
	ReadTimeout  time.Duration `yaml:"read_timeout,omitempty" validate:"gte=0"`
	WriteTimeout time.Duration `yaml:"write_timeout,omitempty" validate:"gte=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout,omitempty" validate:"gte=0"`
}

// Resolved returns s with every unset field defaulted.
func (s StatusConfig) Resolved() StatusConfig {
	s.applyDefaults()
	if strings.TrimSpace(s.Host) == "" {
		s.Host = DefaultStatusHost
	}
	return s
}

// IsEnabled reports whether the bridge should listen. Unset means yes.
func (s StatusConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

func (s *StatusConfig) applyDefaults() {
	if s.Enabled == nil {
		s.Enabled = boolPtr(true)
	}
	if s.Port == 0 {
		s.Port = DefaultStatusPort
	}
	if s.MaxBodyBytes == 0 {
		s.MaxBodyBytes = DefaultStatusMaxBodyBytes
	}
	if s.ReadTimeout == 0 {
		s.ReadTimeout = 15 * time.Second
	}
	if s.WriteTimeout == 0 {
		s.WriteTimeout = 15 * time.Second
	}
	if s.IdleTimeout == 0 {
		s.IdleTimeout = time.Minute
	}
}

func (s *StatusConfig) applyEnv() error {
	if value := strings.TrimSpace(os.Getenv("CHAINFORGE_STATUS_ENABLED")); value != "" {
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("CHAINFORGE_STATUS_ENABLED: %w", err)
		}
		s.Enabled = boolPtr(enabled)
	}
	if host := strings.TrimSpace(os.Getenv("CHAINFORGE_STATUS_HOST")); host != "" {
		s.Host = host
	}
	if value := strings.TrimSpace(os.Getenv("CHAINFORGE_STATUS_PORT")); value != "" {
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("CHAINFORGE_STATUS_PORT: %w", err)
		}
		s.Port = port
	}
	return nil
}
