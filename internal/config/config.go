// Package config loads the relay settings from the environment.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/samber/lo"
)

var ErrInvalidCensorCharacter = errors.New("CENSOR_CHARACTER must be a single character")

var validate = validator.New()

type Config struct {
	Host                    string        `env:"HOST,default=127.0.0.1"`
	Port                    int           `env:"PORT,default=8081" validate:"min=1,max=65535"`
	WebSocketAddr           string        `env:"WEBSOCKET_ADDR"`
	WebSocketAllowedOrigins string        `env:"WEBSOCKET_ALLOWED_ORIGINS"`
	OutboundCapacity        int           `env:"OUTBOUND_CAPACITY,default=128" validate:"min=1"`
	MaxLineLength           int           `env:"MAX_LINE_LENGTH,default=65536" validate:"min=1"`
	WriteTimeout            time.Duration `env:"WRITE_TIMEOUT,default=10s" validate:"gte=0"`
	IdleTimeout             time.Duration `env:"IDLE_TIMEOUT,default=0s" validate:"gte=0"`
	EnqueueTimeout          time.Duration `env:"ENQUEUE_TIMEOUT,default=0s" validate:"gte=0"`
	FanoutConcurrency       int           `env:"FANOUT_CONCURRENCY,default=0" validate:"gte=0"`
	StatsInterval           time.Duration `env:"STATS_INTERVAL,default=0s" validate:"gte=0"`
	CensoredWords           string        `env:"CENSORED_WORDS"`
	CensorCharacter         string        `env:"CENSOR_CHARACTER,default=*"`
	LogLevel                string        `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`
}

// Load reads an optional .env file, then the process environment.
func Load() (Config, error) {
	// A missing .env is the normal case outside local development.
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.CensorRune(); err != nil {
		return err
	}
	return nil
}

// Address is the TCP listen address.
func (c Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// CensorRune returns CENSOR_CHARACTER as a rune.
func (c Config) CensorRune() (rune, error) {
	r := []rune(c.CensorCharacter)
	if len(r) != 1 {
		return 0, fmt.Errorf("%w, got %q", ErrInvalidCensorCharacter, c.CensorCharacter)
	}
	return r[0], nil
}

// Words returns the censored dictionary, blanks removed.
func (c Config) Words() []string {
	return splitList(c.CensoredWords)
}

// AllowedOrigins returns the WebSocket origin allow list.
func (c Config) AllowedOrigins() []string {
	return splitList(c.WebSocketAllowedOrigins)
}

func splitList(s string) []string {
	parts := lo.Map(strings.Split(s, ","), func(item string, _ int) string {
		return strings.TrimSpace(item)
	})
	return lo.Compact(parts)
}
