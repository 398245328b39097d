package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	_ "github.com/joho/godotenv/autoload"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "ORCHESTRATOR_"

type DatabaseConfig struct {
	Host            string `koanf:"host" validate:"required"`
	Port            int    `koanf:"port" validate:"required"`
	User            string `koanf:"user" validate:"required"`
	Password        string `koanf:"password"`
	Name            string `koanf:"name" validate:"required"`
	SSLMode         string `koanf:"ssl_mode" validate:"required"`
	MaxOpenConns    int    `koanf:"max_open_conns" validate:"required"`
	MaxIdleConns    int    `koanf:"max_idle_conns" validate:"required"`
	ConnMaxLifetime int    `koanf:"conn_max_lifetime" validate:"required"`
	ConnMaxIdleTime int    `koanf:"conn_max_idle_time" validate:"required"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `koanf:"address" validate:"required"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db"`
}

type RabbitMQConfig struct {
	URL          string `koanf:"url" validate:"required"`
	ExchangeName string `koanf:"exchange_name" validate:"required"`
	ExchangeType string `koanf:"exchange_type" validate:"required"`
	QueueName    string `koanf:"queue_name"`
	RoutingKey   string `koanf:"routing_key"`
}

type ServerConfig struct {
	Port               string        `koanf:"port" validate:"required"`
	ReadTimeout        time.Duration `koanf:"read_timeout" validate:"required"`
	WriteTimeout       time.Duration `koanf:"write_timeout" validate:"required"`
	IdleTimeout        time.Duration `koanf:"idle_timeout" validate:"required"`
	CORSAllowedOrigins []string      `koanf:"cors_allowed_origins"`
}

type ExternalServicesConfig struct {
	UserServiceAddress     string `koanf:"user_service_name" validate:"required"`
	TemplateServiceAddress string `koanf:"template_service_name" validate:"required"`
}

type Config struct {
	Database     DatabaseConfig         `koanf:"database"`
	Redis        RedisConfig            `koanf:"redis"`
	RabbitMQ     RabbitMQConfig         `koanf:"rabbitmq"`
	Server       ServerConfig           `koanf:"server"`
	External     ExternalServicesConfig `koanf:"external_services"`
	LogLevel     string                 `koanf:"log_level"`
	OTLPEndpoint string                 `koanf:"otlp_endpoint"`
}

// Load reads ORCHESTRATOR_-prefixed environment variables into an immutable
// Config. Double underscores separate sections so single underscores survive
// inside key names: ORCHESTRATOR_DATABASE__MAX_OPEN_CONNS -> database.max_open_conns.
func Load() (*Config, error) {
	k := koanf.New(".")

	err := k.Load(env.Provider(envPrefix, ".", func(key string) string {
		return strings.ReplaceAll(
			strings.ToLower(strings.TrimPrefix(key, envPrefix)), "__", ".",
		)
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{
		LogLevel:     "info",
		OTLPEndpoint: "http://localhost:4318",
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}
