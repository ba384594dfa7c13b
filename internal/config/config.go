package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	APIAddr          string `env:"API_ADDR" envDefault:":8080"`
	PostgresDSN      string `env:"POSTGRES_DSN,notEmpty"`
	RedisAddr        string `env:"REDIS_ADDR"`
	RedisPassword    string `env:"REDIS_PASSWORD"`
	AMQPURL          string `env:"AMQP_URL"`
	BackendBaseURL   string `env:"BACKEND_BASE_URL,notEmpty"`
	BackendAuthKey   string `env:"BACKEND_AUTH_KEY"`
	PollIntervalSec  int    `env:"POLL_INTERVAL_SEC" envDefault:"5"`
	SitesCacheTTLSec int    `env:"SITES_CACHE_TTL_SEC" envDefault:"600"`
}

func Load() Config {
	var c Config
	if err := env.Parse(&c); err != nil {
		log.Fatal(err)
	}
	return c
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSec) * time.Second
}

func (c Config) SitesCacheTTL() time.Duration {
	return time.Duration(c.SitesCacheTTLSec) * time.Second
}
