package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/yndnr/trustm-go/internal/telemetry/logger"
)

// Backend names.
const (
	BackendEmulator = "emulator"
	BackendPKCS11   = "pkcs11"
)

// CLIConfig is the configuration for trustm-rsa-enc.
type CLIConfig struct {
	// Backend selects the element driver: emulator or pkcs11.
	Backend string `koanf:"backend" json:"backend" yaml:"backend"`

	// Timeout bounds each wait for a command completion.
	Timeout time.Duration `koanf:"timeout" json:"timeout" yaml:"timeout"`

	// KeySize declares the size of the on-chip key (1024 or 2048).
	// Zero reads it from the key's metadata.
	KeySize int `koanf:"key_size" json:"key_size" yaml:"key_size"`

	// MetricsFile receives a Prometheus text dump on exit when set.
	MetricsFile string `koanf:"metrics_file" json:"metrics_file" yaml:"metrics_file"`

	// Quiet suppresses the banner and hexdump.
	Quiet bool `koanf:"quiet" json:"quiet" yaml:"quiet"`

	Log      LogConfig      `koanf:"log" json:"log" yaml:"log"`
	Emulator EmulatorConfig `koanf:"emulator" json:"emulator" yaml:"emulator"`
	PKCS11   PKCS11Config   `koanf:"pkcs11" json:"pkcs11" yaml:"pkcs11"`
	Rate     RateConfig     `koanf:"rate" json:"rate" yaml:"rate"`
}

// LogConfig configures diagnostics on stderr.
type LogConfig struct {
	Level  string `koanf:"level" json:"level" yaml:"level"`
	Format string `koanf:"format" json:"format" yaml:"format"`
}

// EmulatorConfig configures the software element.
type EmulatorConfig struct {
	// Dir holds the object store. Empty keeps objects in memory.
	Dir string `koanf:"dir" json:"dir" yaml:"dir"`
	// Secret seals stored keys; required with Dir.
	Secret string `koanf:"secret" json:"secret" yaml:"secret"`
	// Latency delays each command completion.
	Latency time.Duration `koanf:"latency" json:"latency" yaml:"latency"`
}

// PKCS11Config configures the PKCS#11 token backend.
type PKCS11Config struct {
	ModulePath string `koanf:"module_path" json:"module_path" yaml:"module_path"`
	TokenLabel string `koanf:"token_label" json:"token_label" yaml:"token_label"`
	Pin        string `koanf:"pin" json:"pin" yaml:"pin"`
}

// RateConfig paces commands sent to the element. Zero PerSecond is unlimited.
type RateConfig struct {
	PerSecond float64 `koanf:"per_second" json:"per_second" yaml:"per_second"`
	Burst     int     `koanf:"burst" json:"burst" yaml:"burst"`
}

// Default returns the default CLI configuration.
func Default() *CLIConfig {
	lc := logger.DefaultConfig()
	return &CLIConfig{
		Backend: BackendEmulator,
		Timeout: 5 * time.Second,
		Log: LogConfig{
			Level:  lc.Level,
			Format: lc.Format,
		},
		Rate: RateConfig{Burst: 1},
	}
}

// Validate checks the configuration for consistency.
func (c *CLIConfig) Validate() error {
	var errs []string

	switch c.Backend {
	case BackendEmulator:
		if c.Emulator.Dir != "" && c.Emulator.Secret == "" {
			errs = append(errs, "emulator.secret is required with emulator.dir")
		}
		if c.Emulator.Latency < 0 {
			errs = append(errs, "emulator.latency must not be negative")
		}
	case BackendPKCS11:
		if c.PKCS11.ModulePath == "" {
			errs = append(errs, "pkcs11.module_path is required")
		}
		if c.PKCS11.TokenLabel == "" {
			errs = append(errs, "pkcs11.token_label is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("backend must be %s or %s, got %q", BackendEmulator, BackendPKCS11, c.Backend))
	}

	if c.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}
	if c.KeySize != 0 && c.KeySize != 1024 && c.KeySize != 2048 {
		errs = append(errs, fmt.Sprintf("key_size must be 1024 or 2048, got %d", c.KeySize))
	}
	if !logger.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Sprintf("log.level %q is not valid", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Sprintf("log.format must be text or json, got %q", c.Log.Format))
	}
	if c.Rate.PerSecond < 0 {
		errs = append(errs, "rate.per_second must not be negative")
	}
	if c.Rate.PerSecond > 0 && c.Rate.Burst < 1 {
		errs = append(errs, "rate.burst must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// redactedValue replaces secrets in Redacted.
const redactedValue = "[REDACTED]"

// Redacted returns a copy with the PIN and sealing secret masked.
func (c *CLIConfig) Redacted() *CLIConfig {
	r := *c
	if r.PKCS11.Pin != "" {
		r.PKCS11.Pin = redactedValue
	}
	if r.Emulator.Secret != "" {
		r.Emulator.Secret = redactedValue
	}
	return &r
}
