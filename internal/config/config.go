package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every runtime setting of the gateway
type Config struct {
	Environment  string             `mapstructure:"environment"`
	Server       ServerConfig       `mapstructure:"server"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Backend      BackendConfig      `mapstructure:"backend"`
	Verification VerificationConfig `mapstructure:"verification"`
	Session      SessionConfig      `mapstructure:"session"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Kafka        KafkaConfig        `mapstructure:"kafka"`
	Hashing      HashingConfig      `mapstructure:"hashing"`
	Bucketing    BucketingConfig    `mapstructure:"bucketing"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	TLS             TLSConfig     `mapstructure:"tls"`
}

// TLSConfig serves HTTPS from certificate files or ACME autocert
type TLSConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	CertFile    string `mapstructure:"cert_file"`
	KeyFile     string `mapstructure:"key_file"`
	AutoCert    bool   `mapstructure:"autocert"`
	Domain      string `mapstructure:"domain"`
	AutoCertDir string `mapstructure:"autocert_dir"`
	Email       string `mapstructure:"email"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// BackendConfig points at the EatFlow API
type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// FlowConfig is the policy of a single verification flow
type FlowConfig struct {
	TTL        time.Duration `mapstructure:"ttl"`
	MaxResends int           `mapstructure:"max_resends"`
}

type VerificationConfig struct {
	FindID        FlowConfig    `mapstructure:"find_id"`
	Signup        FlowConfig    `mapstructure:"signup"`
	PasswordReset FlowConfig    `mapstructure:"password_reset"`
	TickInterval  time.Duration `mapstructure:"tick_interval"`
	CallTimeout   time.Duration `mapstructure:"call_timeout"`
	IdleTimeout   time.Duration `mapstructure:"session_idle_timeout"`
	IssueWindow   time.Duration `mapstructure:"issue_window"`
	IssueMax      int           `mapstructure:"issue_max"`
}

// Flows returns the configured flows keyed by name
func (v VerificationConfig) Flows() map[string]FlowConfig {
	return map[string]FlowConfig{
		"find_id":        v.FindID,
		"signup":         v.Signup,
		"password_reset": v.PasswordReset,
	}
}

type SessionConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
	Prefix   string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Enabled    bool     `mapstructure:"enabled"`
	Brokers    []string `mapstructure:"brokers"`
	EventTopic string   `mapstructure:"event_topic"`
	BufferSize int      `mapstructure:"buffer_size"`
}

type HashingConfig struct {
	TargetKey string `mapstructure:"target_key"`
}

type BucketingConfig struct {
	RegistryShards int `mapstructure:"registry_shards"`
}

var (
	current *Config
	mu      sync.RWMutex
)

// LoadConfig reads .env, an optional config file and the environment
func LoadConfig() *Config {
	cfg, err := Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		panic(fmt.Errorf("failed to load config: %w", err))
	}
	return cfg
}

// Load resolves configuration; file may be empty
func Load(file string) (*Config, error) {
	// .env is optional, a missing file is not an error
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Kafka.Brokers = splitList(cfg.Kafka.Brokers)
	cfg.Server.AllowedOrigins = splitList(cfg.Server.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mu.Lock()
	current = &cfg
	mu.Unlock()
	return &cfg, nil
}

// Get returns the last loaded config or defaults
func Get() *Config {
	mu.RLock()
	cfg := current
	mu.RUnlock()
	if cfg != nil {
		return cfg
	}
	return Default()
}

// Default returns a config populated only with defaults
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.tls.enabled", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.autocert", false)
	v.SetDefault("server.tls.domain", "")
	v.SetDefault("server.tls.autocert_dir", "./certs")
	v.SetDefault("server.tls.email", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 7)
	v.SetDefault("logging.max_age_days", 30)

	v.SetDefault("backend.base_url", "http://10.0.2.2:8000/api/v1")
	v.SetDefault("backend.timeout", 15*time.Second)

	v.SetDefault("verification.find_id.ttl", 180*time.Second)
	v.SetDefault("verification.find_id.max_resends", 5)
	v.SetDefault("verification.signup.ttl", 180*time.Second)
	v.SetDefault("verification.signup.max_resends", 5)
	v.SetDefault("verification.password_reset.ttl", 300*time.Second)
	v.SetDefault("verification.password_reset.max_resends", 5)
	v.SetDefault("verification.tick_interval", time.Second)
	v.SetDefault("verification.call_timeout", 15*time.Second)
	v.SetDefault("verification.session_idle_timeout", 15*time.Minute)
	v.SetDefault("verification.issue_window", time.Hour)
	v.SetDefault("verification.issue_max", 10)

	v.SetDefault("session.ttl", 24*time.Hour)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.prefix", "eatflow")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.event_topic", "eatflow.verification.events")
	v.SetDefault("kafka.buffer_size", 256)

	v.SetDefault("hashing.target_key", "")

	v.SetDefault("bucketing.registry_shards", 16)
}

// Validate rejects settings the gateway cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.BaseURL) == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	for name, flow := range c.Verification.Flows() {
		if flow.TTL <= 0 {
			return fmt.Errorf("verification.%s.ttl must be positive", name)
		}
		if flow.MaxResends < 0 {
			return fmt.Errorf("verification.%s.max_resends must not be negative", name)
		}
	}
	if c.Verification.CallTimeout <= 0 {
		return fmt.Errorf("verification.call_timeout must be positive")
	}
	if c.Session.TTL <= 0 {
		return fmt.Errorf("session.ttl must be positive")
	}
	if t := c.Server.TLS; t.Enabled {
		if t.AutoCert && t.Domain == "" {
			return fmt.Errorf("server.tls.domain is required for autocert")
		}
		if !t.AutoCert && (t.CertFile == "" || t.KeyFile == "") {
			return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required")
		}
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.IsProduction() && c.Hashing.TargetKey == "" {
		return fmt.Errorf("hashing.target_key is required in production")
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == ""
}

// GetServerAddress returns host:port for the HTTP listener
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// env lists arrive as a single comma separated string
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
