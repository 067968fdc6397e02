package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load loads the configuration from the given path. A missing file is
// populated with defaults and persisted so operators have a starting point to
// edit.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := defaultConfig()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s contains unknown key %s", path, undecoded[0].String())
	}

	applyDefaults(cfg)
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns the configuration shipped with a fresh install.
func defaultConfig() *Config {
	return &Config{
		Service: Service{
			Env:           "dev",
			ListenAddress: ":8090",
		},
		Policy: Policy{
			DailyLimit:            "2000",
			VelocityWindowSeconds: 300,
			VelocityMax:           10,
			NewDeviceCap:          "200",
			MinMerchantReputation: 0.3,
			FraudReportThreshold:  5,
			NewPayeeHighValue:     "500",
			TrustScoreFloor:       0.4,
		},
		Risk: Risk{
			MinTrustedTxns:         5,
			MinTrustedDays:         7,
			MaxRefundRateTrusted:   0.2,
			MaxRefundRateWatchlist: 0.5,
		},
		Execution: Execution{
			FailureRate:           0.05,
			IdempotencyTTLSeconds: 86400,
			DataDir:               "./payguard-data",
		},
		Brand: Brand{
			RegistryPath: "./brands.json",
		},
		Intel: Intel{
			DSN: "./payguard-data/intel.db",
		},
		Audit: Audit{
			DSN:                    "./payguard-data/audit.db",
			ArchiveDir:             "./payguard-data/archive",
			ArchiveEnabled:         false,
			ArchiveIntervalSeconds: 3600,
		},
		Gateway: Gateway{
			RequestsPerMinute: 120,
			Burst:             10,
		},
		Logging: Logging{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Telemetry: Telemetry{
			Enabled:  false,
			Endpoint: "localhost:4318",
			Insecure: true,
		},
	}
}

// applyDefaults fills gaps an operator left in a hand-edited file.
func applyDefaults(cfg *Config) {
	defaults := defaultConfig()
	if cfg.Service.Env == "" {
		cfg.Service.Env = defaults.Service.Env
	}
	if cfg.Service.ListenAddress == "" {
		cfg.Service.ListenAddress = defaults.Service.ListenAddress
	}
	if cfg.Policy.DailyLimit == "" {
		cfg.Policy.DailyLimit = defaults.Policy.DailyLimit
	}
	if cfg.Policy.VelocityWindowSeconds == 0 {
		cfg.Policy.VelocityWindowSeconds = defaults.Policy.VelocityWindowSeconds
	}
	if cfg.Policy.VelocityMax == 0 {
		cfg.Policy.VelocityMax = defaults.Policy.VelocityMax
	}
	if cfg.Policy.NewDeviceCap == "" {
		cfg.Policy.NewDeviceCap = defaults.Policy.NewDeviceCap
	}
	if cfg.Policy.NewPayeeHighValue == "" {
		cfg.Policy.NewPayeeHighValue = defaults.Policy.NewPayeeHighValue
	}
	if cfg.Risk.MinTrustedTxns == 0 {
		cfg.Risk.MinTrustedTxns = defaults.Risk.MinTrustedTxns
	}
	if cfg.Risk.MinTrustedDays == 0 {
		cfg.Risk.MinTrustedDays = defaults.Risk.MinTrustedDays
	}
	if cfg.Risk.MaxRefundRateTrusted == 0 {
		cfg.Risk.MaxRefundRateTrusted = defaults.Risk.MaxRefundRateTrusted
	}
	if cfg.Risk.MaxRefundRateWatchlist == 0 {
		cfg.Risk.MaxRefundRateWatchlist = defaults.Risk.MaxRefundRateWatchlist
	}
	if cfg.Execution.IdempotencyTTLSeconds == 0 {
		cfg.Execution.IdempotencyTTLSeconds = defaults.Execution.IdempotencyTTLSeconds
	}
	if cfg.Execution.DataDir == "" {
		cfg.Execution.DataDir = defaults.Execution.DataDir
	}
	if cfg.Brand.RegistryPath == "" {
		cfg.Brand.RegistryPath = defaults.Brand.RegistryPath
	}
	if cfg.Intel.DSN == "" {
		cfg.Intel.DSN = defaults.Intel.DSN
	}
	if cfg.Audit.DSN == "" {
		cfg.Audit.DSN = defaults.Audit.DSN
	}
	if cfg.Audit.ArchiveDir == "" {
		cfg.Audit.ArchiveDir = defaults.Audit.ArchiveDir
	}
	if cfg.Audit.ArchiveIntervalSeconds == 0 {
		cfg.Audit.ArchiveIntervalSeconds = defaults.Audit.ArchiveIntervalSeconds
	}
	if cfg.Gateway.RequestsPerMinute == 0 {
		cfg.Gateway.RequestsPerMinute = defaults.Gateway.RequestsPerMinute
	}
	if cfg.Gateway.Burst == 0 {
		cfg.Gateway.Burst = defaults.Gateway.Burst
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaults.Logging.Level
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = defaults.Logging.MaxBackups
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = defaults.Logging.MaxAgeDays
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = defaults.Telemetry.Endpoint
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := defaultConfig()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
