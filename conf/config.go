// Package conf reads the environment configuration shared by the binaries.
package conf

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/akawula/QualityMatic/sonarqube/client"
)

const defaultSonarURL = "https://sonarcloud.io"

var (
	configValidator = newConfigValidator()
	numberRegex     = regexp.MustCompile(`^\d+$`)
)

type Config struct {
	Sonar    SonarConf
	Postgres PostgresConf
	Server   ServerConf
	Slack    SlackConf
}

type SonarConf struct {
	URL            string `validate:"required,url"`
	Token          string
	BatchSize      int `validate:"min=1,max=100"`
	PageSize       int `validate:"min=1,max=500"`
	MaxConcurrency int `validate:"min=1,max=32"`
	TimeoutSeconds int `validate:"min=1"`
}

type PostgresConf struct {
	User     string `validate:"required"`
	Password string
	DB       string `validate:"required"`
	Host     string `validate:"required"`
	Port     string `validate:"required,is-number"`
}

// DSN returns a key/value connection string for pgx.
func (p PostgresConf) DSN() string {
	return fmt.Sprintf("user=%s dbname=%s sslmode=disable password=%s host=%s port=%s", p.User, p.DB, p.Password, p.Host, p.Port)
}

// URL returns a postgres:// URL for golang-migrate.
func (p PostgresConf) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", p.User, p.Password, p.Host, p.Port, p.DB)
}

type ServerConf struct {
	Addr      string `validate:"required"`
	JWTSecret string `validate:"required,min=16"`
}

type SlackConf struct {
	Token   string
	Channel string
}

// Enabled reports whether both Slack settings are present.
func (s SlackConf) Enabled() bool {
	return s.Token != "" && s.Channel != ""
}

// Load reads the environment and validates the SonarQube section. The other sections are
// checked by the binaries that need them.
func Load() (*Config, error) {
	cfg := &Config{
		Sonar: SonarConf{
			URL:   getenv("SONAR_URL", defaultSonarURL),
			Token: os.Getenv("SONAR_TOKEN"),
		},
		Postgres: PostgresConf{
			User:     os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			DB:       os.Getenv("POSTGRES_DB"),
			Host:     os.Getenv("POSTGRES_SERVICE_HOST"),
			Port:     getenv("POSTGRES_SERVICE_PORT", "5432"),
		},
		Server: ServerConf{
			Addr:      getenv("HTTP_ADDR", ":2137"),
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		Slack: SlackConf{
			Token:   os.Getenv("SLACK_TOKEN"),
			Channel: os.Getenv("SLACK_CHANNEL"),
		},
	}

	var err error
	if cfg.Sonar.BatchSize, err = getenvInt("SONAR_BATCH_SIZE", client.MaxBatchSize); err != nil {
		return nil, err
	}
	if cfg.Sonar.PageSize, err = getenvInt("SONAR_PAGE_SIZE", client.MaxPageSize); err != nil {
		return nil, err
	}
	if cfg.Sonar.MaxConcurrency, err = getenvInt("SONAR_MAX_CONCURRENCY", 1); err != nil {
		return nil, err
	}
	if cfg.Sonar.TimeoutSeconds, err = getenvInt("SONAR_TIMEOUT_SECONDS", 30); err != nil {
		return nil, err
	}

	if err := configValidator.Struct(cfg.Sonar); err != nil {
		return nil, fmt.Errorf("invalid sonar config: %w", err)
	}
	return cfg, nil
}

// ValidatePostgres checks the database section.
func (c *Config) ValidatePostgres() error {
	if err := configValidator.Struct(c.Postgres); err != nil {
		return fmt.Errorf("invalid postgres config: %w", err)
	}
	return nil
}

// ValidateServer checks the HTTP server section.
func (c *Config) ValidateServer() error {
	if err := configValidator.Struct(c.Server); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	return nil
}

// ClientConfig maps the SonarQube section onto a client configuration.
func (c *Config) ClientConfig() client.Config {
	cfg := client.DefaultConfig(c.Sonar.URL, c.Sonar.Token)
	cfg.BatchSize = c.Sonar.BatchSize
	cfg.PageSize = c.Sonar.PageSize
	cfg.MaxConcurrency = c.Sonar.MaxConcurrency
	cfg.Timeout = time.Duration(c.Sonar.TimeoutSeconds) * time.Second
	return cfg
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func newConfigValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("is-number", func(fl validator.FieldLevel) bool {
		return numberRegex.MatchString(fl.Field().String())
	}); err != nil {
		panic("failed to register is-number validation: " + err.Error())
	}
	return v
}
