/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables used to configure the guard engine
	EnvPrefix = "APIP_GW_"
)

type Config struct {
	GuardEngine   GuardEngine   `koanf:"guard_engine"`
	TracingConfig TracingConfig `koanf:"tracing"`
}

// GuardEngine represents the complete guard engine configuration
type GuardEngine struct {
	Admin      AdminConfig      `koanf:"admin"`
	Metrics    MetricsConfig    `koanf:"metrics"`
	ChainsFile ChainsFileConfig `koanf:"chains_file"`
	Logging    LoggingConfig    `koanf:"logging"`
	Debug      DebugConfig      `koanf:"debug"`
	Benchmark  BenchmarkConfig  `koanf:"benchmark"`
	Audit      AuditConfig      `koanf:"audit"`
	License    LicenseConfig    `koanf:"license"`

	// TracingServiceName is the service name reported to the tracing backend
	TracingServiceName string `koanf:"tracing_service_name"`

	// RawConfig holds the complete raw configuration map including custom
	// fields, exposed read-only to plugins at registration time.
	// Note: No struct tag - populated manually via k.Raw()
	RawConfig map[string]interface{}
}

// AdminConfig holds admin HTTP server configuration
type AdminConfig struct {
	// Enabled indicates whether the admin server should be started
	Enabled bool `koanf:"enabled"`

	// Port is the port for the admin HTTP server
	Port int `koanf:"port"`

	// AllowedIPs is a list of IP addresses allowed to access the admin API
	AllowedIPs []string `koanf:"allowed_ips"`
}

// MetricsConfig holds Prometheus metrics server configuration
type MetricsConfig struct {
	// Enabled indicates whether the metrics server should be started
	Enabled bool `koanf:"enabled"`

	// Port is the port for the metrics HTTP server
	Port int `koanf:"port"`
}

// ChainsFileConfig holds file-based chain configuration settings
type ChainsFileConfig struct {
	// Path is the path to the chain definitions YAML file. Empty means no
	// file-based chains; callers register chains programmatically.
	Path string `koanf:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	// Level can be "debug", "info", "warn", "error"
	Level string `koanf:"level"`

	// Format can be "json" or "text"
	Format string `koanf:"format"`
}

// DebugConfig holds debug recorder configuration
type DebugConfig struct {
	// Enabled toggles sanitized execution recording on/off
	Enabled bool `koanf:"enabled"`

	// BufferSize is the number of chain records kept in memory
	BufferSize int `koanf:"buffer_size"`

	// SensitiveFields extends the built-in redaction key set
	SensitiveFields []string `koanf:"sensitive_fields"`

	// MaxDepth bounds snapshot traversal of nested context values
	MaxDepth int `koanf:"max_depth"`
}

// BenchmarkConfig holds duration threshold monitoring configuration
type BenchmarkConfig struct {
	// Enabled toggles threshold monitoring on/off
	Enabled bool `koanf:"enabled"`

	// UnitThreshold is the per-unit duration warning threshold
	UnitThreshold time.Duration `koanf:"unit_threshold"`

	// ChainThreshold is the per-chain duration warning threshold
	ChainThreshold time.Duration `koanf:"chain_threshold"`
}

// AuditConfig holds audit dispatcher configuration
type AuditConfig struct {
	// Enabled toggles audit record dispatching on/off
	Enabled bool `koanf:"enabled"`

	// BufferSize is the dispatcher channel capacity
	BufferSize int `koanf:"buffer_size"`

	// DropIfFull drops records instead of blocking when the buffer is full
	DropIfFull bool `koanf:"drop_if_full"`

	// Output is an optional JSON-lines file path; empty logs via slog only
	Output string `koanf:"output"`
}

// LicenseConfig holds optional license verification settings
type LicenseConfig struct {
	// Key is the license key handed to the verifier hook, if one is set
	Key string `koanf:"key"`
}

// TracingConfig holds OpenTelemetry tracing configuration
type TracingConfig struct {
	// Enabled toggles tracing on/off
	Enabled bool `koanf:"enabled"`

	// Endpoint is the OTLP gRPC endpoint (host:port)
	Endpoint string `koanf:"endpoint"`

	// Insecure indicates whether to use an insecure connection (no TLS)
	Insecure bool `koanf:"insecure"`

	// ServiceVersion is the service version reported to the tracing backend
	ServiceVersion string `koanf:"service_version"`

	// BatchTimeout is the export batch timeout
	BatchTimeout time.Duration `koanf:"batch_timeout"`

	// MaxExportBatchSize is the maximum batch size for exports
	MaxExportBatchSize int `koanf:"max_export_batch_size"`

	// SamplingRate is the ratio of runs to sample (0.0 to 1.0)
	SamplingRate float64 `koanf:"sampling_rate"`
}

// Load loads configuration from file, environment variables, and defaults
// Priority: Environment variables > Config file > Defaults
//
// The configuration supports Go-style duration strings (e.g., "10s", "5m")
// for all duration fields. The DecodeHook automatically converts string
// durations to time.Duration values before assignment.
func Load(configPath string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	// Load config file if path is provided
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// Load environment variables with the prefix
	// Double underscores (__) preserve literal underscores in field names
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)

		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		s = strings.ReplaceAll(s, "%UNDERSCORE%", "_")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Unmarshal into pre-populated config struct with defaults
	// Koanf merges: fields from file/env overwrite defaults, unset fields keep defaults
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Capture complete raw config for plugin Setting() lookups
	cfg.GuardEngine.RawConfig = k.Raw()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config struct with default configuration values
func defaultConfig() *Config {
	return &Config{
		GuardEngine: GuardEngine{
			Admin: AdminConfig{
				Enabled:    true,
				Port:       9002,
				AllowedIPs: []string{"127.0.0.1", "::1"},
			},
			Metrics: MetricsConfig{
				Enabled: false,
				Port:    9003,
			},
			ChainsFile: ChainsFileConfig{
				Path: "",
			},
			Logging: LoggingConfig{
				Level:  "info",
				Format: "text",
			},
			Debug: DebugConfig{
				Enabled:         false,
				BufferSize:      100,
				SensitiveFields: nil,
				MaxDepth:        8,
			},
			Benchmark: BenchmarkConfig{
				Enabled:        false,
				UnitThreshold:  100 * time.Millisecond,
				ChainThreshold: 500 * time.Millisecond,
			},
			Audit: AuditConfig{
				Enabled:    false,
				BufferSize: 1024,
				DropIfFull: true,
				Output:     "",
			},
			License: LicenseConfig{
				Key: "",
			},
			TracingServiceName: "guard-engine",
		},
		TracingConfig: TracingConfig{
			Enabled:            false,
			Endpoint:           "otel-collector:4317",
			Insecure:           true,
			ServiceVersion:     "1.0.0",
			BatchTimeout:       1 * time.Second,
			MaxExportBatchSize: 512,
			SamplingRate:       1.0,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	ge := &c.GuardEngine

	if ge.Admin.Enabled {
		if ge.Admin.Port <= 0 || ge.Admin.Port > 65535 {
			return fmt.Errorf("invalid admin.port: %d (must be 1-65535)", ge.Admin.Port)
		}
		if len(ge.Admin.AllowedIPs) == 0 {
			return fmt.Errorf("admin.allowed_ips cannot be empty when admin is enabled")
		}
	}

	if ge.Metrics.Enabled {
		if ge.Metrics.Port <= 0 || ge.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics.port: %d (must be 1-65535)", ge.Metrics.Port)
		}
		if ge.Admin.Enabled && ge.Metrics.Port == ge.Admin.Port {
			return fmt.Errorf("metrics.port cannot be same as admin.port")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[ge.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", ge.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[ge.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", ge.Logging.Format)
	}

	if ge.Debug.Enabled {
		if ge.Debug.BufferSize <= 0 {
			return fmt.Errorf("debug.buffer_size must be positive, got %d", ge.Debug.BufferSize)
		}
		if ge.Debug.MaxDepth <= 0 {
			return fmt.Errorf("debug.max_depth must be positive, got %d", ge.Debug.MaxDepth)
		}
	}

	if ge.Benchmark.Enabled {
		if ge.Benchmark.UnitThreshold <= 0 {
			return fmt.Errorf("benchmark.unit_threshold must be positive, got %s", ge.Benchmark.UnitThreshold)
		}
		if ge.Benchmark.ChainThreshold <= 0 {
			return fmt.Errorf("benchmark.chain_threshold must be positive, got %s", ge.Benchmark.ChainThreshold)
		}
	}

	if ge.Audit.Enabled {
		if ge.Audit.BufferSize <= 0 {
			return fmt.Errorf("audit.buffer_size must be positive, got %d", ge.Audit.BufferSize)
		}
	}

	if c.TracingConfig.Enabled {
		if c.TracingConfig.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
		}
		if c.TracingConfig.BatchTimeout <= 0 {
			return fmt.Errorf("tracing.batch_timeout must be positive")
		}
		if c.TracingConfig.MaxExportBatchSize <= 0 {
			return fmt.Errorf("tracing.max_export_batch_size must be positive")
		}
		if c.TracingConfig.SamplingRate <= 0.0 || c.TracingConfig.SamplingRate > 1.0 {
			return fmt.Errorf("tracing.sampling_rate must be > 0.0 and <= 1.0, got %f", c.TracingConfig.SamplingRate)
		}
	}

	return nil
}
