package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	req := require.New(t)

	cfg, err := Load()
	req.NoError(err)

	req.Equal("127.0.0.1:8081", cfg.Address())
	req.Equal(128, cfg.OutboundCapacity)
	req.Equal(65536, cfg.MaxLineLength)
	req.Equal(10*time.Second, cfg.WriteTimeout)
	req.Zero(cfg.IdleTimeout)
	req.Zero(cfg.EnqueueTimeout)
	req.Zero(cfg.FanoutConcurrency)
	req.Empty(cfg.WebSocketAddr)
	req.Empty(cfg.Words())
	req.Equal("INFO", cfg.LogLevel)

	r, err := cfg.CensorRune()
	req.NoError(err)
	req.Equal('*', r)
}

func TestLoad_FromEnvironment(t *testing.T) {
	req := require.New(t)

	// Given a fully specified environment
	t.Setenv("HOST", "0.0.0.0")
	t.Setenv("PORT", "9000")
	t.Setenv("WEBSOCKET_ADDR", ":9001")
	t.Setenv("WEBSOCKET_ALLOWED_ORIGINS", "http://a.example, ,http://b.example")
	t.Setenv("OUTBOUND_CAPACITY", "4")
	t.Setenv("ENQUEUE_TIMEOUT", "250ms")
	t.Setenv("CENSORED_WORDS", "badger, snake")
	t.Setenv("CENSOR_CHARACTER", "#")
	t.Setenv("LOG_LEVEL", "debug")

	// When the configuration is loaded
	cfg, err := Load()
	req.NoError(err)

	// Then every value is picked up
	req.Equal("0.0.0.0:9000", cfg.Address())
	req.Equal(":9001", cfg.WebSocketAddr)
	req.Equal([]string{"http://a.example", "http://b.example"}, cfg.AllowedOrigins())
	req.Equal(4, cfg.OutboundCapacity)
	req.Equal(250*time.Millisecond, cfg.EnqueueTimeout)
	req.Equal([]string{"badger", "snake"}, cfg.Words())
	req.Equal("DEBUG", cfg.LogLevel)
	r, err := cfg.CensorRune()
	req.NoError(err)
	req.Equal('#', r)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "port out of range", key: "PORT", value: "70000"},
		{name: "zero capacity", key: "OUTBOUND_CAPACITY", value: "0"},
		{name: "unknown log level", key: "LOG_LEVEL", value: "TRACE"},
		{name: "negative fanout", key: "FANOUT_CONCURRENCY", value: "-1"},
		{name: "multi rune censor", key: "CENSOR_CHARACTER", value: "**"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
		})
	}
}
