package bootstrap

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"recall/internal/pkg/database"
	"recall/internal/pkg/logger"
	"recall/internal/pkg/mq"
	"recall/internal/pkg/nacos"
	"recall/internal/pkg/redis"
	"recall/internal/pkg/zookeeper"
)

const defaultConfigPath = "config/recall.yaml"

type Config struct {
	App      AppConfig       `yaml:"app"`
	Log      logger.Config   `yaml:"log"`
	Database database.Config `yaml:"database"`
	SMS      SMSConfig       `yaml:"sms"`
	Infra    InfraConfig     `yaml:"infra"`
}

type AppConfig struct {
	Name             string        `yaml:"name"`
	Port             int           `yaml:"port"`
	PublicBaseURL    string        `yaml:"public_base_url"`
	RecallTTL        time.Duration `yaml:"recall_ttl"`
	CleanupRetention time.Duration `yaml:"cleanup_retention"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	// FunnelKey 非空时订阅 /ws/funnel 需要带上它
	FunnelKey     string   `yaml:"funnel_key"`
	FunnelOrigins []string `yaml:"funnel_origins"`
}

type SMSConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	TplID   string `yaml:"tpl_id"`
	// TplContent 为空时按 TplID 查询模板正文
	TplContent string        `yaml:"tpl_content"`
	Timeout    time.Duration `yaml:"timeout"`
}

type InfraConfig struct {
	Jaeger    JaegerConfig     `yaml:"jaeger"`
	Redis     redis.Config     `yaml:"redis"`
	Kafka     mq.Config        `yaml:"kafka"`
	Nacos     nacos.Config     `yaml:"nacos"`
	Zookeeper zookeeper.Config `yaml:"zookeeper"`
}

type JaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

var (
	currentMu     sync.RWMutex
	currentConfig = defaultConfig()
)

// GetCurrentConfig 返回最近一次 Init 加载的配置。
func GetCurrentConfig() *Config {
	currentMu.RLock()
	defer currentMu.RUnlock()
	return currentConfig
}

// Init 从 $RECALL_CONFIG (默认 config/recall.yaml) 加载配置并设为当前配置。
// 文件不存在时只使用默认值和环境变量。
func Init() (*Config, error) {
	path := getEnv("RECALL_CONFIG", defaultConfigPath)
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	currentMu.Lock()
	currentConfig = cfg
	currentMu.Unlock()
	return cfg, nil
}

// Load 读取 YAML 文件，再用环境变量覆盖。
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", path)
		}
	case os.IsNotExist(err):
	default:
		return nil, errors.Wrapf(err, "read config %s", path)
	}
	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.App.CleanupInterval <= 0 {
		return errors.Errorf("app.cleanup_interval must be positive, got %s", c.App.CleanupInterval)
	}
	if c.App.RecallTTL <= 0 {
		return errors.Errorf("app.recall_ttl must be positive, got %s", c.App.RecallTTL)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:             "recall-service",
			Port:             8000,
			PublicBaseURL:    "http://localhost:8000",
			RecallTTL:        7 * 24 * time.Hour,
			CleanupRetention: 30 * 24 * time.Hour,
			CleanupInterval:  time.Hour,
		},
		Log: logger.Config{Level: "info", Format: "json"},
		Database: database.Config{
			Host:            "localhost",
			Port:            3306,
			User:            "root",
			Name:            "user_recall",
			Charset:         "utf8mb4",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxIdleTime: 5 * time.Minute,
			ConnMaxLifetime: time.Hour,
			AcquireTimeout:  5 * time.Second,
		},
		SMS: SMSConfig{
			BaseURL: "https://sms.yunpian.com",
			Timeout: 10 * time.Second,
		},
		Infra: InfraConfig{
			Kafka: mq.Config{FunnelTopic: "recall-funnel-events"},
			Nacos: nacos.Config{Group: "DEFAULT_GROUP"},
		},
	}
}

func applyEnv(cfg *Config) {
	cfg.Database.Host = getEnv("DB_HOST", cfg.Database.Host)
	cfg.Database.Port = getEnvInt("DB_PORT", cfg.Database.Port)
	cfg.Database.User = getEnv("DB_USER", cfg.Database.User)
	cfg.Database.Password = getEnv("DB_PASSWORD", cfg.Database.Password)
	cfg.Database.Name = getEnv("DB_NAME", cfg.Database.Name)
	cfg.Database.Charset = getEnv("DB_CHARSET", cfg.Database.Charset)

	cfg.SMS.APIKey = getEnv("SMS_API_KEY", cfg.SMS.APIKey)
	cfg.SMS.TplID = getEnv("SMS_TPL_ID", cfg.SMS.TplID)
	cfg.SMS.TplContent = getEnv("SMS_TPL_CONTENT", cfg.SMS.TplContent)

	cfg.App.PublicBaseURL = strings.TrimRight(getEnv("PUBLIC_BASE_URL", cfg.App.PublicBaseURL), "/")
	cfg.App.FunnelKey = getEnv("FUNNEL_WS_KEY", cfg.App.FunnelKey)
	if v := getEnv("FUNNEL_WS_ORIGINS", ""); v != "" {
		cfg.App.FunnelOrigins = splitList(v)
	}
	cfg.Infra.Jaeger.Endpoint = getEnv("JAEGER_ENDPOINT", cfg.Infra.Jaeger.Endpoint)
	cfg.Infra.Redis.Addr = getEnv("REDIS_ADDR", cfg.Infra.Redis.Addr)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.Infra.Kafka.Brokers = splitList(v)
	}
	if v := getEnv("NACOS_SERVER_ADDRS", ""); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
		cfg.Infra.Nacos.Enabled = true
	}
	cfg.Infra.Nacos.Namespace = getEnv("NACOS_NAMESPACE", cfg.Infra.Nacos.Namespace)
	if v := getEnv("ZK_SERVERS", ""); v != "" {
		cfg.Infra.Zookeeper.Servers = splitList(v)
	}
}

// getEnv 从环境变量中读取配置。
func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
