// Package config содержит логику чтения конфигурации сервиса приёма заказов.
package config

import (
	"flag"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress     = "0.0.0.0:5002"
	defaultLedgerURL      = "http://ledger-service-java:8080"
	defaultScenarioConfig = "scenario_config.json"
	defaultWorkers        = 4
)

// Postgres содержит параметры подключения к справочнику пользователей по отдельности.
// Используются, если DATABASE_URI не задан.
type Postgres struct {
	Host     string `env:"PGHOST" envDefault:"localhost"`
	Port     string `env:"PGPORT" envDefault:"5432"`
	Database string `env:"PGDATABASE" envDefault:"emartdb"`
	User     string `env:"PGUSER" envDefault:"emartuser"`
	Password string `env:"PGPASSWORD" envDefault:"emartpass"`
}

// DSN собирает строку подключения к PostgreSQL.
func (p Postgres) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     net.JoinHostPort(p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// Config содержит параметры конфигурации сервиса приёма заказов.
type Config struct {
	RunAddress  string `env:"RUN_ADDRESS"`
	DatabaseURI string `env:"DATABASE_URI"`
	Postgres    Postgres

	LedgerURL             string        `env:"LEDGER_URL"`
	LedgerTimeout         time.Duration `env:"LEDGER_TIMEOUT" envDefault:"5s"`
	LedgerTrailingBackoff bool          `env:"LEDGER_TRAILING_BACKOFF" envDefault:"true"`
	LedgerRateLimit       float64       `env:"LEDGER_RATE_LIMIT" envDefault:"0"`
	DispatchWorkers       int           `env:"DISPATCH_WORKERS"`

	ScenarioConfig string `env:"SCENARIO_CONFIG"`

	RedisAddr string        `env:"REDIS_ADDR"`
	RedisTTL  time.Duration `env:"REDIS_TTL" envDefault:"30s"`

	AMQPURL string `env:"AMQP_URL"`

	MetricsEnabled bool `env:"METRICS_ENABLED" envDefault:"true"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Значения из окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	envRunAddress := cfg.RunAddress
	envDatabaseURI := cfg.DatabaseURI
	envLedgerURL := cfg.LedgerURL
	envWorkers := cfg.DispatchWorkers
	envScenario := cfg.ScenarioConfig

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI")
	flag.StringVar(&cfg.LedgerURL, "l", defaultLedgerURL, "ledger service address")
	flag.IntVar(&cfg.DispatchWorkers, "w", defaultWorkers, "concurrent item dispatches per order")
	flag.StringVar(&cfg.ScenarioConfig, "s", defaultScenarioConfig, "path to scenario config file")

	flag.Parse()

	if envRunAddress != "" {
		cfg.RunAddress = envRunAddress
	}
	if envDatabaseURI != "" {
		cfg.DatabaseURI = envDatabaseURI
	}
	if envLedgerURL != "" {
		cfg.LedgerURL = envLedgerURL
	}
	if envWorkers != 0 {
		cfg.DispatchWorkers = envWorkers
	}
	if envScenario != "" {
		cfg.ScenarioConfig = envScenario
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.DatabaseURI == "" {
		cfg.DatabaseURI = cfg.Postgres.DSN()
	}
	if cfg.LedgerURL == "" {
		cfg.LedgerURL = defaultLedgerURL
	}
	if cfg.DispatchWorkers <= 0 {
		cfg.DispatchWorkers = defaultWorkers
	}
	if cfg.LedgerTimeout <= 0 {
		return nil, fmt.Errorf("ledger timeout must be positive, got %s", cfg.LedgerTimeout)
	}

	return cfg, nil
}
