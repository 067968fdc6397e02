package config

// Service identifies the deployment and the ops listen address.
type Service struct {
	Env           string `toml:"env"`
	ListenAddress string `toml:"listen"`
}

// Policy captures the rule thresholds enforced by the policy engine. Monetary
// values are strings so operators can write exact decimal amounts.
type Policy struct {
	DailyLimit            string  `toml:"daily_limit"`
	VelocityWindowSeconds int     `toml:"velocity_window_seconds"`
	VelocityMax           int     `toml:"velocity_max"`
	NewDeviceCap          string  `toml:"new_device_cap"`
	MinMerchantReputation float64 `toml:"min_merchant_reputation"`
	FraudReportThreshold  uint64  `toml:"fraud_report_threshold"`
	NewPayeeHighValue     string  `toml:"new_payee_high_value"`
	TrustScoreFloor       float64 `toml:"trust_score_floor"`
}

// Risk defines the merchant lifecycle thresholds used by the risk state
// machine.
type Risk struct {
	MinTrustedTxns         uint64  `toml:"min_trusted_txns"`
	MinTrustedDays         int     `toml:"min_trusted_days"`
	MaxRefundRateTrusted   float64 `toml:"max_refund_rate_trusted"`
	MaxRefundRateWatchlist float64 `toml:"max_refund_rate_watchlist"`
}

// Execution controls settlement behaviour and the transaction ledger location.
type Execution struct {
	FailureRate           float64 `toml:"failure_rate"`
	IdempotencyTTLSeconds int     `toml:"idempotency_ttl_seconds"`
	DataDir               string  `toml:"data_dir"`
}

// Brand points at the protected brand registry file.
type Brand struct {
	RegistryPath string `toml:"registry_path"`
}

// Intel configures the merchant intelligence store. File paths open an
// embedded sqlite database; postgres:// DSNs open a shared server.
type Intel struct {
	DSN string `toml:"dsn"`
}

// Audit configures the append-only event ledger and its archive exports.
type Audit struct {
	DSN                    string `toml:"dsn"`
	ArchiveDir             string `toml:"archive_dir"`
	ArchiveEnabled         bool   `toml:"archive_enabled"`
	ArchiveIntervalSeconds int    `toml:"archive_interval_seconds"`
}

// Gateway bounds per-user intent admission.
type Gateway struct {
	RequestsPerMinute float64 `toml:"requests_per_minute"`
	Burst             int     `toml:"burst"`
}

// Logging controls the structured log output.
type Logging struct {
	Level      string `toml:"level"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
}

// Telemetry configures the optional OTLP exporters.
type Telemetry struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
	Insecure bool   `toml:"insecure"`
}

// Config bundles every section of the payguard daemon configuration.
type Config struct {
	Service   Service   `toml:"service"`
	Policy    Policy    `toml:"policy"`
	Risk      Risk      `toml:"risk"`
	Execution Execution `toml:"execution"`
	Brand     Brand     `toml:"brand"`
	Intel     Intel     `toml:"intel"`
	Audit     Audit     `toml:"audit"`
	Gateway   Gateway   `toml:"gateway"`
	Logging   Logging   `toml:"logging"`
	Telemetry Telemetry `toml:"telemetry"`
}
