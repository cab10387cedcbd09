package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
elasticsearch:
  url: http://localhost:9200
  index: logs-ise
axonius:
  instance_url: axonius.example.com
`

func TestLoadMinimal(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:9200", cfg.Elasticsearch.URL)
	assert.Equal(t, "logs-ise", cfg.Elasticsearch.Index)
	assert.Equal(t, "axonius.example.com", cfg.Axonius.InstanceURL)

	// Defaults fill in everything else.
	assert.Equal(t, 100, cfg.Pipeline.BatchSize)
	assert.Equal(t, 1000, cfg.Pipeline.MaxRecords)
	assert.Equal(t, 4, cfg.Pipeline.Workers)
	assert.Equal(t, 15*time.Minute, cfg.Pipeline.Window())
	assert.Equal(t, 60*time.Second, cfg.Pipeline.RequestTimeout())
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval())
	assert.Equal(t, 8096, cfg.Server.Port)
	assert.Equal(t, DefaultDeviceFields, cfg.Axonius.DeviceFields)
	assert.Equal(t, DefaultUserFields, cfg.Axonius.UserFields)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.NATS.Enabled)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
elasticsearch:
  url: https://es.internal:9200
  index: logs-ise-auth
  pipeline: ise-syslog
  api_key: abc123
  insecure: true
axonius:
  instance_url: https://axonius.internal
  api_key: axkey
  api_secret: axsecret
  page_limit: 500
pipeline:
  batch_size: 200
  max_records: 5000
  workers: 8
  window_minutes: 30
scheduler:
  interval_minutes: 30
nats:
  enabled: true
  url: nats://broker:4222
  subject: pipeline.reports
redis:
  enabled: true
  addr: redis:6379
logging:
  level: debug
  format: text
`))
	require.NoError(t, err)

	assert.Equal(t, "ise-syslog", cfg.Elasticsearch.Pipeline)
	assert.True(t, cfg.Elasticsearch.Insecure)
	assert.Equal(t, 500, cfg.Axonius.PageLimit)
	assert.Equal(t, 200, cfg.Pipeline.BatchSize)
	assert.Equal(t, 5000, cfg.Pipeline.MaxRecords)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.Window())
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.Interval())
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "pipeline.reports", cfg.NATS.Subject)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ES_URL", "http://override:9200")
	t.Setenv("ES_INDEX", "logs-override")
	t.Setenv("AX_INSTANCE_URL", "axonius.override")
	t.Setenv("MAX_RECORDS", "250")
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "http://override:9200", cfg.Elasticsearch.URL)
	assert.Equal(t, "logs-override", cfg.Elasticsearch.Index)
	assert.Equal(t, "axonius.override", cfg.Axonius.InstanceURL)
	assert.Equal(t, 250, cfg.Pipeline.MaxRecords)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadPrefixedEnvOverride(t *testing.T) {
	t.Setenv("ISE_ENRICH_PIPELINE_WORKERS", "16")

	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Pipeline.Workers)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Elasticsearch: ElasticsearchConfig{URL: "http://localhost:9200", Index: "logs-ise"},
			Axonius:       AxoniusConfig{InstanceURL: "axonius.example.com", PageLimit: 100},
			Pipeline: PipelineConfig{
				BatchSize:             100,
				MaxRecords:            1000,
				Workers:               4,
				WindowMinutes:         15,
				RequestTimeoutSeconds: 60,
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(_ *Config) {}, ""},
		{"missing es url", func(c *Config) { c.Elasticsearch.URL = "" }, "ES_URL"},
		{"missing es index", func(c *Config) { c.Elasticsearch.Index = "" }, "ES_INDEX"},
		{"missing instance url", func(c *Config) { c.Axonius.InstanceURL = "" }, "AX_INSTANCE_URL"},
		{"zero batch size", func(c *Config) { c.Pipeline.BatchSize = 0 }, "batch_size"},
		{"negative max records", func(c *Config) { c.Pipeline.MaxRecords = -1 }, "max_records"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "workers"},
		{"zero window", func(c *Config) { c.Pipeline.WindowMinutes = 0 }, "window_minutes"},
		{"zero timeout", func(c *Config) { c.Pipeline.RequestTimeoutSeconds = 0 }, "request_timeout"},
		{"zero page limit", func(c *Config) { c.Axonius.PageLimit = 0 }, "page_limit"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadInvalidConfigFails(t *testing.T) {
	_, err := Load(writeConfig(t, `
elasticsearch:
  url: http://localhost:9200
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ES_INDEX")
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "elasticsearch: ["))
	require.Error(t, err)
}

func TestRedacted(t *testing.T) {
	cfg := Config{
		Elasticsearch: ElasticsearchConfig{APIKey: "es-key", Password: "es-pass"},
		Axonius:       AxoniusConfig{APIKey: "ax-key", APISecret: "ax-secret"},
		Redis:         RedisConfig{Password: "redis-pass"},
	}

	red := cfg.Redacted()
	assert.Equal(t, "********", red.Elasticsearch.APIKey)
	assert.Equal(t, "********", red.Elasticsearch.Password)
	assert.Equal(t, "********", red.Axonius.APIKey)
	assert.Equal(t, "********", red.Axonius.APISecret)
	assert.Equal(t, "********", red.Redis.Password)

	// Originals untouched.
	assert.Equal(t, "es-key", cfg.Elasticsearch.APIKey)
}

func TestRedactedLeavesEmptyEmpty(t *testing.T) {
	red := (&Config{}).Redacted()
	assert.Empty(t, red.Elasticsearch.APIKey)
	assert.Empty(t, red.Axonius.APISecret)
}
