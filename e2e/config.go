package e2e

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
	// E2E_EVENT_TIMEOUT bounds how long a client waits for one event
	EventTimeout time.Duration `envconfig:"E2E_EVENT_TIMEOUT" default:"3s"`
	// E2E_HEARTBEAT_INTERVAL drives the in-process heartbeat worker
	HeartbeatInterval time.Duration `envconfig:"E2E_HEARTBEAT_INTERVAL" default:"200ms"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
