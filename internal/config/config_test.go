package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetDefaults(t *testing.T) {
	cfg := GetDefaults()

	if err := validateConfig(cfg); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
	if !cfg.Filter.Enabled {
		t.Error("filtering should be enabled by default")
	}
	if len(cfg.Filter.Rules) == 0 {
		t.Error("defaults should ship a starter rule set")
	}
	for i, rule := range cfg.Filter.Rules {
		if rule.Stage != "before_send" {
			t.Errorf("default rule %d: expected before_send stage, got %q", i, rule.Stage)
		}
	}
	if cfg.Oracle.Affirmative == "" {
		t.Error("defaults must define the affirmative token")
	}
}

func TestRuleConfigDefaults(t *testing.T) {
	rule := RuleConfig{Pattern: "x"}
	if rule.ProbabilityOrDefault() != 1.0 {
		t.Errorf("expected default probability 1, got %v", rule.ProbabilityOrDefault())
	}
	if !rule.EnabledOrDefault() {
		t.Error("rules should default to enabled")
	}

	zero := 0.0
	off := false
	rule = RuleConfig{Pattern: "x", Probability: &zero, Enabled: &off}
	if rule.ProbabilityOrDefault() != 0 {
		t.Errorf("explicit zero probability lost: %v", rule.ProbabilityOrDefault())
	}
	if rule.EnabledOrDefault() {
		t.Error("explicit enabled=false lost")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config { return GetDefaults() }

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"BadPort", func(c *Config) { c.Server.Port = 0 }},
		{"BadLogLevel", func(c *Config) { c.Logging.Level = "verbose" }},
		{"BadLogFormat", func(c *Config) { c.Logging.Format = "xml" }},
		{"OracleWithoutTemplate", func(c *Config) {
			c.Oracle.Endpoint = "http://localhost:9999"
			c.Oracle.PromptTemplate = ""
		}},
		{"OracleWithoutToken", func(c *Config) {
			c.Oracle.Endpoint = "http://localhost:9999"
			c.Oracle.Affirmative = ""
		}},
		{"OracleBadTimeout", func(c *Config) {
			c.Oracle.Endpoint = "http://localhost:9999"
			c.Oracle.Timeout = 0
		}},
		{"CacheWithoutURL", func(c *Config) {
			c.Cache.Enabled = true
			c.Cache.RedisURL = ""
		}},
		{"AuditWithoutURL", func(c *Config) {
			c.Audit.Enabled = true
			c.Audit.DatabaseURL = ""
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			if err := validateConfig(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9090
filter:
  enabled: true
  rules:
    - pattern: "敏感词"
      stage: before_send
      action: block
    - pattern: "笨蛋"
      stage: before_send
      action: replace
      replacement: "朋友"
      probability: 0.5
      enabled: false
logging:
  level: debug
  format: console
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.Port)
	}
	if len(cfg.Filter.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(cfg.Filter.Rules))
	}

	first := cfg.Filter.Rules[0]
	if first.Pattern != "敏感词" || first.Action != "block" {
		t.Errorf("unexpected first rule: %+v", first)
	}
	if first.ProbabilityOrDefault() != 1.0 {
		t.Errorf("omitted probability should default to 1, got %v", first.ProbabilityOrDefault())
	}
	if !first.EnabledOrDefault() {
		t.Error("omitted enabled should default to true")
	}

	second := cfg.Filter.Rules[1]
	if second.ProbabilityOrDefault() != 0.5 {
		t.Errorf("expected probability 0.5, got %v", second.ProbabilityOrDefault())
	}
	if second.EnabledOrDefault() {
		t.Error("explicit enabled=false lost in load")
	}
	if second.Replacement != "朋友" {
		t.Errorf("expected replacement 朋友, got %q", second.Replacement)
	}

	// Defaults still apply to untouched sections
	if cfg.Oracle.Timeout != 10*time.Second {
		t.Errorf("expected default oracle timeout, got %v", cfg.Oracle.Timeout)
	}
}
