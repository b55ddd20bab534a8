package config

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env        string `yaml:"env" env:"ENV" env-default:"local"`
	BaseURL    string `yaml:"base_url" env:"BASE_URL" env-default:"http://localhost:8080"`
	Tokens     `yaml:"tokens"`
	RateLimits `yaml:"rate_limits"`
	RabbitMQ   `yaml:"rabbitmq"`
	Postgres   `yaml:"postgres"`
	Redis      `yaml:"redis"`
	HTTPServer `yaml:"http_server"`
}

type HTTPServer struct {
	Address     string        `yaml:"address" env-default:"localhost:8080"`
	Timeout     time.Duration `yaml:"timeout" env-default:"4s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

type Postgres struct {
	Host     string `yaml:"host" env-default:"postgres"`
	Port     int    `yaml:"port" env-default:"5432"`
	User     string `yaml:"user" env-required:"true"`
	Password string `yaml:"password" env-required:"true"`
	DBName   string `yaml:"dbname" env-required:"true"`
	SSLMode  string `yaml:"sslmode" env-default:"disable"`
}

type Redis struct {
	Addr     string `yaml:"addr" env-default:"localhost:6379"`
	Password string `yaml:"password" env-default:""`
	DB       int    `yaml:"db" env-default:"0"`
}

type Tokens struct {
	AccessTokenTTL    time.Duration `yaml:"access_token_ttl" env-default:"15m"`
	AccessTokenSecret string        `yaml:"access_token_secret" env-required:"true"`
	RefreshTokenTTL   time.Duration `yaml:"refresh_token_ttl" env-default:"720h"`
	OneTimeTokenTTL   time.Duration `yaml:"one_time_token_ttl" env-default:"15m"`
}

// RateLimits configures the redis-backed fixed-window limits for the
// email-keyed flows. Route-level per-IP limits live in the middleware.
type RateLimits struct {
	MagicLinkPerIP      int           `yaml:"magic_link_per_ip" env-default:"10"`
	MagicLinkPerEmail   int           `yaml:"magic_link_per_email" env-default:"5"`
	PasswordResetPerIP  int           `yaml:"password_reset_per_ip" env-default:"5"`
	PasswordResetPerEmail int         `yaml:"password_reset_per_email" env-default:"3"`
	Window              time.Duration `yaml:"window" env-default:"1h"`
}

type RabbitMQ struct {
	URL       string `yaml:"url" env-required:"true"`
	QueueName string `yaml:"queue_name" env-required:"true"`
}

func MustLoad(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("Config file does not exist" + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("Failed to read config" + err.Error())
	}

	return &cfg
}
