// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-enclave.
//
// go-enclave is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/jeremyhahn/go-enclave/pkg/backend/software"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// EnvPrefix prefixes environment overrides, e.g. ENCLAVE_BACKEND_TYPE or
// ENCLAVE_BACKEND_PKCS11_PIN.
const EnvPrefix = "ENCLAVE"

// Storage types
const (
	StorageMemory = "memory"
	StorageFile   = "file"
	StorageBolt   = "bolt"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the enclave configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
	Backend BackendConfig `yaml:"backend" mapstructure:"backend"`
	Storage StorageConfig `yaml:"storage" mapstructure:"storage"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// MetricsConfig controls Prometheus collection
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// BackendConfig selects and configures the secure element.
type BackendConfig struct {
	Type     string         `yaml:"type" mapstructure:"type"`
	Software SoftwareConfig `yaml:"software" mapstructure:"software"`
	PKCS11   PKCS11Config   `yaml:"pkcs11" mapstructure:"pkcs11"`
	TPM2     TPM2Config     `yaml:"tpm2" mapstructure:"tpm2"`
}

// SoftwareConfig contains software element settings. Without a master
// secret, key references only load for the life of the process.
type SoftwareConfig struct {
	// MasterSecret is hex encoded.
	MasterSecret string `yaml:"master_secret,omitempty" mapstructure:"master_secret"`

	// MasterSecretFile holds the raw secret. It is created with a random
	// secret on first use.
	MasterSecretFile string `yaml:"master_secret_file,omitempty" mapstructure:"master_secret_file"`

	ElementID string `yaml:"element_id,omitempty" mapstructure:"element_id"`
}

// PKCS11Config contains PKCS#11 element settings
type PKCS11Config struct {
	Library    string `yaml:"library,omitempty" mapstructure:"library"`
	TokenLabel string `yaml:"label,omitempty" mapstructure:"label"`
	Slot       *int   `yaml:"slot,omitempty" mapstructure:"slot"`
	PIN        string `yaml:"pin,omitempty" mapstructure:"pin"`
}

// TPM2Config contains TPM 2.0 element settings
type TPM2Config struct {
	Device    string `yaml:"device,omitempty" mapstructure:"device"`
	Simulator bool   `yaml:"simulator" mapstructure:"simulator"`
}

// StorageConfig selects the credential store backend. Path is a directory
// for file storage and a database file for bolt.
type StorageConfig struct {
	Type string `yaml:"type" mapstructure:"type"`
	Path string `yaml:"path,omitempty" mapstructure:"path"`
}

// Default returns a configuration using the software element and memory
// storage.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Backend: BackendConfig{Type: types.BackendTypeSoftware.String()},
		Storage: StorageConfig{Type: StorageMemory},
	}
}

// setDefaults registers every key so environment overrides apply even when
// the file omits a section.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("backend.type", d.Backend.Type)
	v.SetDefault("backend.software.master_secret", "")
	v.SetDefault("backend.software.master_secret_file", "")
	v.SetDefault("backend.software.element_id", "")
	v.SetDefault("backend.pkcs11.library", "")
	v.SetDefault("backend.pkcs11.label", "")
	v.SetDefault("backend.pkcs11.pin", "")
	v.SetDefault("backend.tpm2.device", "")
	v.SetDefault("backend.tpm2.simulator", false)
	v.SetDefault("storage.type", d.Storage.Type)
	v.SetDefault("storage.path", "")
}

// Load reads a YAML configuration file and applies ENCLAVE_* environment
// overrides. An empty path loads defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// The file may hold a PIN or master secret.
	return os.WriteFile(path, data, 0600)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: invalid log level %q (must be debug, info, warn or error)",
			ErrInvalidConfig, c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("%w: invalid log format %q (must be text or json)",
			ErrInvalidConfig, c.Logging.Format)
	}

	switch types.BackendType(c.Backend.Type) {
	case types.BackendTypeSoftware:
		sw := c.Backend.Software
		if sw.MasterSecret != "" && sw.MasterSecretFile != "" {
			return fmt.Errorf("%w: master_secret and master_secret_file are mutually exclusive",
				ErrInvalidConfig)
		}
		secret, err := software.ParseMasterSecret(sw.MasterSecret)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if err := (&software.Config{MasterSecret: secret}).Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	case types.BackendTypePKCS11:
		if c.Backend.PKCS11.Library == "" {
			return fmt.Errorf("%w: pkcs11 library is required", ErrInvalidConfig)
		}
		if c.Backend.PKCS11.TokenLabel == "" && c.Backend.PKCS11.Slot == nil {
			return fmt.Errorf("%w: pkcs11 label or slot is required", ErrInvalidConfig)
		}
	case types.BackendTypeTPM2:
	default:
		return fmt.Errorf("%w: unknown backend type %q", ErrInvalidConfig, c.Backend.Type)
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageFile, StorageBolt:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: %s storage path is required", ErrInvalidConfig, c.Storage.Type)
		}
	default:
		return fmt.Errorf("%w: unknown storage type %q", ErrInvalidConfig, c.Storage.Type)
	}
	return nil
}
