package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

type Config struct {
	Server struct {
		Port           int               `yaml:"port"`
		AllowedOrigins []string          `yaml:"allowedOrigins"`
		APIKeys        map[string]string `yaml:"apiKeys"`
		RateLimit      struct {
			Capacity        int `yaml:"capacity"`
			RefillPerSecond int `yaml:"refillPerSecond"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Database struct {
		Driver   string `yaml:"driver"`
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
		SSLMode  string `yaml:"sslMode"`
	} `yaml:"database"`

	Redis struct {
		URL             string        `yaml:"url"`
		OrganizationTTL time.Duration `yaml:"organizationTTL"`
	} `yaml:"redis"`

	Minio struct {
		Enabled    bool   `yaml:"enabled"`
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	LLM struct {
		Provider           string        `yaml:"provider"`
		APIKey             string        `yaml:"apiKey"`
		Model              string        `yaml:"model"`
		BaseURL            string        `yaml:"baseURL"`
		MaxTokens          int           `yaml:"maxTokens"`
		CallTimeout        time.Duration `yaml:"callTimeout"`
		EvaluationDeadline time.Duration `yaml:"evaluationDeadline"`
		Summarize          bool          `yaml:"summarize"`
	} `yaml:"llm"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
}

// Path returns CONFIG_PATH or config.yaml
func Path() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config.yaml"
}

// Load baca file config.yaml, lalu override secret dari env
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data, os.Getenv)
}

// Parse dipisah dari Load supaya gampang ditest
func Parse(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyEnv(getenv)
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if getenv == nil {
		return
	}
	if v := getenv("DATABASE_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := getenv("MINIO_SECRET_KEY"); v != "" {
		c.Minio.SecretKey = v
	}
	if v := getenv("REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	// provider key only overrides the provider actually selected
	switch strings.ToLower(c.LLM.Provider) {
	case ProviderAnthropic:
		if v := getenv("ANTHROPIC_API_KEY"); v != "" {
			c.LLM.APIKey = v
		}
	default:
		if v := getenv("OPENAI_API_KEY"); v != "" {
			c.LLM.APIKey = v
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RateLimit.Capacity == 0 {
		c.Server.RateLimit.Capacity = 60
	}
	if c.Server.RateLimit.RefillPerSecond == 0 {
		c.Server.RateLimit.RefillPerSecond = 1
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverPostgres
	}
	c.Database.Driver = strings.ToLower(c.Database.Driver)
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Redis.OrganizationTTL == 0 {
		c.Redis.OrganizationTTL = 5 * time.Minute
	}
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	if c.LLM.CallTimeout == 0 {
		c.LLM.CallTimeout = 120 * time.Second
	}
	if c.LLM.EvaluationDeadline == 0 {
		c.LLM.EvaluationDeadline = 600 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the loaded config before anything is dialed.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverPostgres, DriverMySQL:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q not supported", c.Database.Driver))
	}
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q not supported", c.LLM.Provider))
	}
	if c.LLM.APIKey == "" {
		errs = append(errs, errors.New("llm.apiKey is required"))
	}
	if c.LLM.CallTimeout <= 0 {
		errs = append(errs, errors.New("llm.callTimeout must be positive"))
	}
	if c.LLM.EvaluationDeadline <= 0 {
		errs = append(errs, errors.New("llm.evaluationDeadline must be positive"))
	}
	if c.LLM.MaxTokens < 0 {
		errs = append(errs, errors.New("llm.maxTokens must not be negative"))
	}
	if c.Minio.Enabled && (c.Minio.Endpoint == "" || c.Minio.BucketName == "") {
		errs = append(errs, errors.New("minio.endpoint and minio.bucketName are required when minio is enabled"))
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq URL DSN
func (c *Config) PostgresDSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.Database.User, c.Database.Password),
		Host:     fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:     "/" + c.Database.Name,
		RawQuery: url.Values{"sslmode": {c.Database.SSLMode}}.Encode(),
	}
	return u.String()
}

// DSN picks the DSN for the configured driver
func (c *Config) DSN() string {
	if c.Database.Driver == DriverMySQL {
		return c.MySQLDSN()
	}
	return c.PostgresDSN()
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
