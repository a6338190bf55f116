package internal

import (
	"duo-chat/domain"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Host       string `env:"HOST,default=0.0.0.0"`
	Port       int    `env:"PORT,default=5001" validate:"min=1,max=65535"`
	HealthPort int    `env:"HEALTH_PORT,default=5002" validate:"min=1,max=65535,nefield=Port"`
	DebugPort  int    `env:"DEBUG_PORT,default=8081" validate:"min=1,max=65535"`
	LogLevel   string `env:"LOG_LEVEL,default=INFO" validate:"oneof=DEBUG INFO WARN ERROR"`

	BadgerFilepath string `env:"BADGER_FILEPATH,required=true" validate:"required"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true" validate:"required"`
	UploadDir      string `env:"UPLOAD_DIR,default=uploads" validate:"required"`
	MaxUploadSize  int64  `env:"MAX_UPLOAD_SIZE_MB,default=50" validate:"min=1"`

	JWTSecret            string   `env:"JWT_SECRET,required=true" validate:"min=16"`
	ConnectionBufferSize int      `env:"CONNECTION_BUFFER_SIZE,default=64" validate:"min=1"`
	AllowedOrigins       []string `env:"ALLOWED_ORIGINS,default=*"`

	MetricInterval   time.Duration `env:"METRIC_INTERVAL,default=1m" validate:"gt=0"`
	PartialUploadTTL time.Duration `env:"PARTIAL_UPLOAD_TTL,default=1h" validate:"gt=0"`
	JanitorInterval  time.Duration `env:"JANITOR_INTERVAL,default=10m" validate:"gt=0"`
	RestartInterval  time.Duration `env:"RESTART_INTERVAL,default=2s" validate:"gt=0"`
	ShutdownTimeout  time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s" validate:"gt=0"`
}

// Validate checks ranges the env tags cannot express.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// MaxUploadBytes converts the configured cap to bytes.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadSize * domain.MB
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Origins trims the pipe separated list, dropping blank entries.
func (c Config) Origins() []string {
	var origins []string
	for _, o := range c.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
