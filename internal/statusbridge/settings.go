package statusbridge

import (
	"net"
	"strconv"
	"time"

	"github.com/kingrea/chainforge/internal/config"
)

// Settings is the resolved status section of the project config.
type Settings struct {
	Enabled      bool
	Host         string
	Port         int
	MaxBodyBytes int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// SettingsFromConfig reads cfg's status section. A nil config gives the
// settings of a freshly initialized project.
func SettingsFromConfig(cfg *config.Config) Settings {
	var status config.StatusConfig
	if cfg != nil {
		status = cfg.Project.Status
	}
	status = status.Resolved()
	return Settings{
		Enabled:      status.IsEnabled(),
		Host:         status.Host,
		Port:         status.Port,
		MaxBodyBytes: status.MaxBodyBytes,
		ReadTimeout:  status.ReadTimeout,
		WriteTimeout: status.WriteTimeout,
		IdleTimeout:  status.IdleTimeout,
	}
}

// Address returns the TCP bind address in host:port form.
func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the HTTP base URL for the server.
func (s Settings) URL() string {
	return "http://" + s.Address()
}
