package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadParsesAllSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payguard.toml")
	contents := `[service]
env = "prod"
listen = ":9090"

[policy]
daily_limit = "5000"
velocity_window_seconds = 120
velocity_max = 6
new_device_cap = "150"
min_merchant_reputation = 0.25
fraud_report_threshold = 3
new_payee_high_value = "750"
trust_score_floor = 0.5

[risk]
min_trusted_txns = 10
min_trusted_days = 14
max_refund_rate_trusted = 0.15
max_refund_rate_watchlist = 0.4

[execution]
failure_rate = 0.1
idempotency_ttl_seconds = 3600
data_dir = "/var/lib/payguard"

[brand]
registry_path = "/etc/payguard/brands.json"

[intel]
dsn = "postgres://payguard:secret@db:5432/intel"

[audit]
dsn = "/var/lib/payguard/audit.db"
archive_dir = "/var/lib/payguard/archive"
archive_enabled = true
archive_interval_seconds = 600

[gateway]
requests_per_minute = 60
burst = 5

[logging]
level = "debug"
file = "/var/log/payguard/payguardd.log"
max_size_mb = 50
max_backups = 5
max_age_days = 7

[telemetry]
enabled = true
endpoint = "collector:4318"
insecure = false
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Service.Env != "prod" || cfg.Service.ListenAddress != ":9090" {
		t.Fatalf("unexpected service section: %+v", cfg.Service)
	}
	if cfg.Policy.DailyLimit != "5000" || cfg.Policy.VelocityMax != 6 {
		t.Fatalf("unexpected policy section: %+v", cfg.Policy)
	}
	if cfg.Policy.FraudReportThreshold != 3 {
		t.Fatalf("unexpected fraud threshold: %d", cfg.Policy.FraudReportThreshold)
	}
	if cfg.Risk.MinTrustedTxns != 10 || cfg.Risk.MinTrustedDays != 14 {
		t.Fatalf("unexpected risk section: %+v", cfg.Risk)
	}
	if cfg.Execution.FailureRate != 0.1 || cfg.Execution.DataDir != "/var/lib/payguard" {
		t.Fatalf("unexpected execution section: %+v", cfg.Execution)
	}
	if cfg.Intel.DSN != "postgres://payguard:secret@db:5432/intel" {
		t.Fatalf("unexpected intel dsn: %s", cfg.Intel.DSN)
	}
	if !cfg.Audit.ArchiveEnabled || cfg.Audit.ArchiveIntervalSeconds != 600 {
		t.Fatalf("unexpected audit section: %+v", cfg.Audit)
	}
	if cfg.Gateway.RequestsPerMinute != 60 || cfg.Gateway.Burst != 5 {
		t.Fatalf("unexpected gateway section: %+v", cfg.Gateway)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.MaxSizeMB != 50 {
		t.Fatalf("unexpected logging section: %+v", cfg.Logging)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "collector:4318" || cfg.Telemetry.Insecure {
		t.Fatalf("unexpected telemetry section: %+v", cfg.Telemetry)
	}
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payguard.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default config to be persisted: %v", err)
	}
	want := defaultConfig()
	if cfg.Policy != want.Policy {
		t.Fatalf("unexpected default policy: %+v", cfg.Policy)
	}
	if cfg.Risk != want.Risk {
		t.Fatalf("unexpected default risk: %+v", cfg.Risk)
	}
	if cfg.Execution != want.Execution {
		t.Fatalf("unexpected default execution: %+v", cfg.Execution)
	}

	// Loading the persisted file round-trips to the same configuration.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	if *reloaded != *cfg {
		t.Fatalf("persisted defaults do not round-trip: %+v", reloaded)
	}
}

func TestLoadFillsMissingSections(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payguard.toml")
	contents := `[service]
env = "staging"

[policy]
daily_limit = "3000"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Policy.DailyLimit != "3000" {
		t.Fatalf("explicit value overridden: %s", cfg.Policy.DailyLimit)
	}
	if cfg.Policy.VelocityMax != 10 {
		t.Fatalf("velocity default not applied: %d", cfg.Policy.VelocityMax)
	}
	if cfg.Service.ListenAddress != ":8090" {
		t.Fatalf("listen default not applied: %s", cfg.Service.ListenAddress)
	}
	if cfg.Risk.MinTrustedTxns != 5 {
		t.Fatalf("risk default not applied: %d", cfg.Risk.MinTrustedTxns)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payguard.toml")
	contents := `[policy]
daily_limt = "2000"
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for misspelled key")
	}
}

func TestPolicyLimitsParsing(t *testing.T) {
	section := Policy{
		DailyLimit:            "2000",
		VelocityWindowSeconds: 300,
		VelocityMax:           10,
		NewDeviceCap:          "200",
		MinMerchantReputation: 0.3,
		FraudReportThreshold:  5,
		NewPayeeHighValue:     "500",
		TrustScoreFloor:       0.4,
	}
	limits, err := section.Limits()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !limits.DailyLimit.Equal(decimal.NewFromInt(2000)) {
		t.Fatalf("unexpected daily limit: %s", limits.DailyLimit)
	}
	if limits.VelocityWindow != 5*time.Minute {
		t.Fatalf("unexpected velocity window: %s", limits.VelocityWindow)
	}
	if !limits.NewPayeeHighValue.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("unexpected high value threshold: %s", limits.NewPayeeHighValue)
	}

	section.DailyLimit = "-5"
	if _, err := section.Limits(); err == nil {
		t.Fatalf("expected error for negative daily limit")
	}
	section.DailyLimit = "abc"
	if _, err := section.Limits(); err == nil {
		t.Fatalf("expected error for unparseable daily limit")
	}
}

func TestValidateConfigRejectsBadThresholds(t *testing.T) {
	base := defaultConfig()
	if err := ValidateConfig(base); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero velocity window", func(c *Config) { c.Policy.VelocityWindowSeconds = 0 }},
		{"reputation above one", func(c *Config) { c.Policy.MinMerchantReputation = 1.5 }},
		{"watchlist below trusted", func(c *Config) { c.Risk.MaxRefundRateWatchlist = 0.1 }},
		{"failure rate above one", func(c *Config) { c.Execution.FailureRate = 1.2 }},
		{"zero idempotency ttl", func(c *Config) { c.Execution.IdempotencyTTLSeconds = 0 }},
		{"zero admission rate", func(c *Config) { c.Gateway.RequestsPerMinute = 0 }},
	}
	for _, tc := range cases {
		cfg := defaultConfig()
		tc.mutate(cfg)
		if err := ValidateConfig(cfg); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestRiskThresholds(t *testing.T) {
	section := Risk{MinTrustedTxns: 5, MinTrustedDays: 7, MaxRefundRateTrusted: 0.2, MaxRefundRateWatchlist: 0.5}
	thresholds := section.Thresholds()
	if thresholds.MinTrustedAge != 7*24*time.Hour {
		t.Fatalf("unexpected trusted age: %s", thresholds.MinTrustedAge)
	}
	if thresholds.MinTrustedTxns != 5 {
		t.Fatalf("unexpected trusted txns: %d", thresholds.MinTrustedTxns)
	}
}
