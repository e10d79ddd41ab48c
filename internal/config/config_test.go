package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
server:
  port: 9090
  allowedOrigins: ["https://portal.example.org"]
  apiKeys:
    portal: k-1
database:
  driver: MySQL
  host: db
  port: 3306
  user: evaluator
  password: from-file
  name: tor
redis:
  url: redis://cache:6379/0
  organizationTTL: 2m
llm:
  provider: anthropic
  apiKey: file-key
  model: claude-sonnet-4-5
  callTimeout: 90s
log:
  level: debug
`

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sample), nil)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "k-1", cfg.Server.APIKeys["portal"])
	assert.Equal(t, DriverMySQL, cfg.Database.Driver)
	assert.Equal(t, 2*time.Minute, cfg.Redis.OrganizationTTL)
	assert.Equal(t, 90*time.Second, cfg.LLM.CallTimeout)
	assert.Equal(t, 600*time.Second, cfg.LLM.EvaluationDeadline)
	assert.Equal(t, 60, cfg.Server.RateLimit.Capacity)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "evaluator:from-file@tcp(db:3306)/tor?parseTime=true&charset=utf8mb4&loc=UTC", cfg.DSN())
	assert.NoError(t, cfg.Validate())
}

func TestParseEnvOverrides(t *testing.T) {
	cfg, err := Parse([]byte(sample), env(map[string]string{
		"DATABASE_PASSWORD": "from-env",
		"ANTHROPIC_API_KEY": "anthropic-env",
		"OPENAI_API_KEY":    "ignored",
		"REDIS_URL":         "redis://other:6379/1",
		"MINIO_SECRET_KEY":  "minio-env",
	}))
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Database.Password)
	assert.Equal(t, "anthropic-env", cfg.LLM.APIKey)
	assert.Equal(t, "redis://other:6379/1", cfg.Redis.URL)
	assert.Equal(t, "minio-env", cfg.Minio.SecretKey)
}

func TestDefaults(t *testing.T) {
	cfg, err := Parse([]byte("database:\n  host: pg\n  port: 5432\n  user: u\n  password: p w\n  name: tor\n"), env(map[string]string{"OPENAI_API_KEY": "sk"}))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, ":8080", cfg.Addr())
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, ProviderOpenAI, cfg.LLM.Provider)
	assert.Equal(t, "sk", cfg.LLM.APIKey)
	assert.Equal(t, 120*time.Second, cfg.LLM.CallTimeout)
	assert.Equal(t, "postgres://u:p%20w@pg:5432/tor?sslmode=disable", cfg.DSN())
	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{name: "driver", mutate: func(c *Config) { c.Database.Driver = "sqlite" }, want: "database.driver"},
		{name: "provider", mutate: func(c *Config) { c.LLM.Provider = "mystery" }, want: "llm.provider"},
		{name: "api key", mutate: func(c *Config) { c.LLM.APIKey = "" }, want: "llm.apiKey"},
		{name: "call timeout", mutate: func(c *Config) { c.LLM.CallTimeout = -time.Second }, want: "callTimeout"},
		{name: "deadline", mutate: func(c *Config) { c.LLM.EvaluationDeadline = -time.Second }, want: "evaluationDeadline"},
		{name: "minio", mutate: func(c *Config) { c.Minio.Enabled = true }, want: "minio.endpoint"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Parse([]byte(sample), nil)
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))
	t.Setenv("CONFIG_PATH", path)

	assert.Equal(t, path, Path())
	cfg, err := Load(Path())
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestExampleConfigParses(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	cfg, err := Parse(data, env(map[string]string{"OPENAI_API_KEY": "sk-test"}))
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 600*time.Second, cfg.LLM.EvaluationDeadline)
	assert.NoError(t, cfg.Validate())
}
