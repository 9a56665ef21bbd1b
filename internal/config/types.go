package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Filter  FilterConfig  `yaml:"filter" mapstructure:"filter"`
	Oracle  OracleConfig  `yaml:"oracle" mapstructure:"oracle"`
	Cache   CacheConfig   `yaml:"cache" mapstructure:"cache"`
	Audit   AuditConfig   `yaml:"audit" mapstructure:"audit"`
	Events  EventsConfig  `yaml:"events" mapstructure:"events"`
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
}

// FilterConfig contains the rule engine configuration
type FilterConfig struct {
	Enabled bool         `yaml:"enabled" mapstructure:"enabled"`
	Rules   []RuleConfig `yaml:"rules" mapstructure:"rules"`
}

// RuleConfig is one rule record as it appears in configuration. Probability
// and Enabled are pointers so an omitted field can be told apart from an
// explicit zero; they default to 1.0 and true.
type RuleConfig struct {
	Pattern     string   `yaml:"pattern" mapstructure:"pattern"`
	Stage       string   `yaml:"stage" mapstructure:"stage"`
	Action      string   `yaml:"action" mapstructure:"action"`
	Replacement string   `yaml:"replacement" mapstructure:"replacement"`
	Probability *float64 `yaml:"probability" mapstructure:"probability"`
	Enabled     *bool    `yaml:"enabled" mapstructure:"enabled"`
	Description string   `yaml:"description" mapstructure:"description"`
}

// ProbabilityOrDefault returns the configured trigger probability, defaulting to 1.
func (r RuleConfig) ProbabilityOrDefault() float64 {
	if r.Probability == nil {
		return 1.0
	}
	return *r.Probability
}

// EnabledOrDefault returns whether the rule is enabled, defaulting to true.
func (r RuleConfig) EnabledOrDefault() bool {
	if r.Enabled == nil {
		return true
	}
	return *r.Enabled
}

// OracleConfig contains the external judgment service configuration
type OracleConfig struct {
	Endpoint       string        `yaml:"endpoint" mapstructure:"endpoint"`
	Model          string        `yaml:"model" mapstructure:"model"`
	APIKey         string        `yaml:"api_key" mapstructure:"api_key"`
	PromptTemplate string        `yaml:"prompt_template" mapstructure:"prompt_template"`
	Affirmative    string        `yaml:"affirmative" mapstructure:"affirmative"`
	Timeout        time.Duration `yaml:"timeout" mapstructure:"timeout"`
	RequestsPerSec float64       `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst          int           `yaml:"burst" mapstructure:"burst"`
}

// CacheConfig contains the oracle verdict cache configuration
type CacheConfig struct {
	Enabled        bool          `yaml:"enabled" mapstructure:"enabled"`
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// AuditConfig contains the disposition audit store configuration
type AuditConfig struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// EventsConfig contains WebSocket event hub configuration
type EventsConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	Path           string   `yaml:"path" mapstructure:"path"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	Broadcast      struct {
		RuleFires     bool `yaml:"rule_fires" mapstructure:"rule_fires"`
		Cancellations bool `yaml:"cancellations" mapstructure:"cancellations"`
		Verdicts      bool `yaml:"verdicts" mapstructure:"verdicts"`
	} `yaml:"broadcast" mapstructure:"broadcast"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"` // json or console
	File   struct {
		Enabled  bool   `yaml:"enabled" mapstructure:"enabled"`
		Path     string `yaml:"path" mapstructure:"path"`
		MaxSize  int    `yaml:"max_size" mapstructure:"max_size"`
		MaxAge   int    `yaml:"max_age" mapstructure:"max_age"`
		Compress bool   `yaml:"compress" mapstructure:"compress"`
	} `yaml:"file" mapstructure:"file"`
}

// GetDefaults returns a configuration with sensible defaults. The default
// rule set mirrors the filters the original deployment shipped with.
func GetDefaults() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Filter: FilterConfig{
			Enabled: true,
			Rules: []RuleConfig{
				{
					Pattern:     "RESOURCE_EXHAUSTED",
					Stage:       "before_send",
					Action:      "block",
					Description: "Intercept relay error payloads leaking into chat",
				},
				{
					Pattern:     "傻逼",
					Stage:       "before_send",
					Action:      "replace",
					Replacement: "[filtered]",
					Description: "Replace abusive language",
				},
				{
					Pattern:     "。$",
					Stage:       "before_send",
					Action:      "replace",
					Replacement: "",
					Description: "Strip trailing full stop",
				},
				{
					Pattern:     `\[回复.+]\s*`,
					Stage:       "before_send",
					Action:      "replace",
					Replacement: "",
					Description: "Strip quoted-reply markers echoed by the model",
				},
			},
		},
		Oracle: OracleConfig{
			Model:          "gpt-4o-mini",
			PromptTemplate: "以下是最近的对话：\n{{context}}\n\n待发送的消息：\n{{message}}\n\n这条消息是否适合发送？只回答“发送”或“不发送”。",
			Affirmative:    "发送",
			Timeout:        10 * time.Second,
			RequestsPerSec: 1,
			Burst:          5,
		},
		Cache: CacheConfig{
			Enabled:        false,
			RedisURL:       "redis://localhost:6379/0",
			MaxConnections: 10,
			MinIdleConns:   2,
			DefaultTTL:     5 * time.Minute,
			KeyPrefix:      "msgguard:verdict:",
		},
		Audit: AuditConfig{
			Enabled:         false,
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Hour,
			ConnMaxIdleTime: 15 * time.Minute,
		},
		Events: EventsConfig{
			Enabled:        true,
			Path:           "/ws",
			AllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
	cfg.Events.Broadcast.RuleFires = true
	cfg.Events.Broadcast.Cancellations = true
	cfg.Events.Broadcast.Verdicts = true
	return cfg
}
