// Package config loads the engine's configuration via viper, the way the
// teacher's cmd/server/main.go and internal/core/config.LoadConfig do:
// defaults set first, a config file layered on top, environment variables
// (prefixed HIPS_) overriding both.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level engine configuration.
type Config struct {
	Logging       LoggingConfig       `mapstructure:"logging"`
	RuleStore     RuleStoreConfig     `mapstructure:"rule_store"`
	Correlation   CorrelationConfig   `mapstructure:"correlation"`
	SelfProtect   SelfProtectConfig   `mapstructure:"self_protection"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// LoggingConfig controls the logsink.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Console    bool   `mapstructure:"console"`
	Dev        bool   `mapstructure:"dev"`
}

// RuleStoreConfig controls rule-store bootstrapping.
type RuleStoreConfig struct {
	LoadDefaults bool `mapstructure:"load_defaults"`
}

// CorrelationConfig mirrors correlation.Config for viper binding.
type CorrelationConfig struct {
	TimeWindowSeconds       int     `mapstructure:"time_window_seconds"`
	MinEventsForCorrelation int     `mapstructure:"min_events_for_correlation"`
	MinCorrelationScore     float64 `mapstructure:"min_correlation_score"`
	MaxEventsPerProcess     int     `mapstructure:"max_events_per_process"`
	MaxCorrelationGroups    int     `mapstructure:"max_correlation_groups"`

	EnableProcessBased     bool `mapstructure:"enable_process_based"`
	EnableTimeBased        bool `mapstructure:"enable_time_based"`
	EnableTargetBased      bool `mapstructure:"enable_target_based"`
	EnableSequenceBased    bool `mapstructure:"enable_sequence_based"`
	EnableThreatEscalation bool `mapstructure:"enable_threat_escalation"`
}

// SelfProtectConfig mirrors selfprotect.Config for viper binding.
type SelfProtectConfig struct {
	SafeModeEnabled         bool `mapstructure:"safe_mode_enabled"`
	GracefulDegradation     bool `mapstructure:"graceful_degradation"`
	MaxAPIRetryAttempts     int  `mapstructure:"max_api_retry_attempts"`
	APITimeoutMs            int  `mapstructure:"api_timeout_ms"`
	ValidateHandles         bool `mapstructure:"validate_handles"`
	CheckThreadIntegrity    bool `mapstructure:"check_thread_integrity"`
	MonitorCriticalSections bool `mapstructure:"monitor_critical_sections"`
}

// TelemetryConfig controls the alert store and tracer.
type TelemetryConfig struct {
	AlertStorePath  string        `mapstructure:"alert_store_path"`
	TracingEnabled  bool          `mapstructure:"tracing_enabled"`
	TracingEndpoint string        `mapstructure:"tracing_endpoint"`
	FlushInterval   time.Duration `mapstructure:"flush_interval"`
}

// Load reads configuration from configPath (if non-empty), layering
// environment variables (prefixed HIPS_) over file values over defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("HIPS")

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.output_path", "")
	v.SetDefault("logging.console", true)
	v.SetDefault("logging.dev", false)

	v.SetDefault("rule_store.load_defaults", true)

	v.SetDefault("correlation.time_window_seconds", 60)
	v.SetDefault("correlation.min_events_for_correlation", 3)
	v.SetDefault("correlation.min_correlation_score", 0.6)
	v.SetDefault("correlation.max_events_per_process", 100)
	v.SetDefault("correlation.max_correlation_groups", 1000)
	v.SetDefault("correlation.enable_process_based", true)
	v.SetDefault("correlation.enable_time_based", true)
	v.SetDefault("correlation.enable_target_based", true)
	v.SetDefault("correlation.enable_sequence_based", true)
	v.SetDefault("correlation.enable_threat_escalation", true)

	v.SetDefault("self_protection.safe_mode_enabled", true)
	v.SetDefault("self_protection.graceful_degradation", true)
	v.SetDefault("self_protection.max_api_retry_attempts", 3)
	v.SetDefault("self_protection.api_timeout_ms", 5000)
	v.SetDefault("self_protection.validate_handles", true)
	v.SetDefault("self_protection.check_thread_integrity", true)
	v.SetDefault("self_protection.monitor_critical_sections", true)

	v.SetDefault("telemetry.alert_store_path", "hips-alerts.db")
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.tracing_endpoint", "localhost:4317")
	v.SetDefault("telemetry.flush_interval", 15*time.Second)
}
