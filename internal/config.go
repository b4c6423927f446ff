package internal

import (
	"fmt"
	"time"
)

type Config struct {
	Host string `env:"HOST,required=true"`
	Port int    `env:"PORT,required=true"`

	AuthTokenSecret   string        `env:"AUTH_TOKEN_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,required=true"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`

	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,required=true"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,required=true"`
	SinkTimeout          time.Duration `env:"SINK_TIMEOUT,required=true"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,required=true"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,required=true"`
	MetricInterval    time.Duration `env:"METRIC_INTERVAL,required=true"`

	CharReplacement  string `env:"CHARACTER_REPLACEMENT,required=true"`
	MaxContentLength int    `env:"MAX_CONTENT_LENGTH,required=true"`

	LimitMessages *int `env:"LIMIT_MESSAGES"`
	DebugPort     int  `env:"DEBUG_PORT,required=true"`
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
