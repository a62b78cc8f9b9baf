package bootstrap

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "recall.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
app:
  port: 9000
  recall_ttl: 48h
database:
  host: yaml-host
  acquire_timeout: 2s
sms:
  tpl_id: "123"
`), 0o600))

	t.Setenv("DB_HOST", "env-host")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("PUBLIC_BASE_URL", "https://recall.example.com/")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.App.Port)
	assert.Equal(t, 48*time.Hour, cfg.App.RecallTTL)
	assert.Equal(t, "env-host", cfg.Database.Host)
	assert.Equal(t, 2*time.Second, cfg.Database.AcquireTimeout)
	assert.Equal(t, "123", cfg.SMS.TplID)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Infra.Kafka.Brokers)
	assert.Equal(t, "https://recall.example.com", cfg.App.PublicBaseURL)
	// 未出现在文件中的字段保留默认值
	assert.Equal(t, 30*24*time.Hour, cfg.App.CleanupRetention)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 7*24*time.Hour, cfg.App.RecallTTL)
	assert.False(t, cfg.Infra.Nacos.Enabled)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveDurations(t *testing.T) {
	cases := map[string]string{
		"zero cleanup interval":     "app:\n  cleanup_interval: 0s\n",
		"negative cleanup interval": "app:\n  cleanup_interval: -1m\n",
		"zero recall ttl":           "app:\n  recall_ttl: 0s\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "recall.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoadFunnelSettingsFromEnv(t *testing.T) {
	t.Setenv("FUNNEL_WS_KEY", "k")
	t.Setenv("FUNNEL_WS_ORIGINS", "https://a.example.com, https://b.example.com")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.App.FunnelKey)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.App.FunnelOrigins)
}
