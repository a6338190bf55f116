package internal

import (
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", "/tmp/badger")
	t.Setenv("BLUGE_FILEPATH", "/tmp/bluge")
	t.Setenv("JWT_SECRET", "0123456789abcdef")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)
	req.NoError(config.Validate())

	req.Equal(5001, config.Port)
	req.Equal("0.0.0.0:5001", config.Address())
	req.Equal(int64(50*1024*1024), config.MaxUploadBytes())
	req.Equal(time.Hour, config.PartialUploadTTL)
	req.Equal([]string{"*"}, config.Origins())
}

func TestConfig_Missing_Required(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", "/tmp/badger")
	t.Setenv("BLUGE_FILEPATH", "/tmp/bluge")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	var missing *env.ErrMissingRequiredValue
	req.ErrorAs(err, &missing)
	req.Equal("JWT_SECRET", missing.Value)
}

func TestConfig_Origins_Are_Split(t *testing.T) {
	req := require.New(t)
	t.Setenv("BADGER_FILEPATH", "/tmp/badger")
	t.Setenv("BLUGE_FILEPATH", "/tmp/bluge")
	t.Setenv("JWT_SECRET", "0123456789abcdef")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173| https://chat.example.com |")

	var config Config
	_, err := env.UnmarshalFromEnviron(&config)
	req.NoError(err)
	req.Equal([]string{"http://localhost:5173", "https://chat.example.com"}, config.Origins())
}

func TestConfig_Validate(t *testing.T) {
	valid := Config{
		Port: 5001, HealthPort: 5002, DebugPort: 8081, LogLevel: "INFO",
		BadgerFilepath: "b", BlugeFilepath: "i", UploadDir: "u", MaxUploadSize: 50,
		JWTSecret: "0123456789abcdef", ConnectionBufferSize: 8,
		MetricInterval: time.Minute, PartialUploadTTL: time.Hour, JanitorInterval: time.Minute,
		RestartInterval: time.Second, ShutdownTimeout: time.Second,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"Short secret", func(c *Config) { c.JWTSecret = "short" }},
		{"Same ports", func(c *Config) { c.HealthPort = c.Port }},
		{"Unknown log level", func(c *Config) { c.LogLevel = "TRACE" }},
		{"No upload cap", func(c *Config) { c.MaxUploadSize = 0 }},
		{"No janitor interval", func(c *Config) { c.JanitorInterval = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			require.Error(t, config.Validate())
		})
	}
}
