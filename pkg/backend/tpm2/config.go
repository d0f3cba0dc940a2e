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


package tpm2

import (
	"fmt"

	"github.com/jeremyhahn/go-enclave/pkg/logging"
)

// DefaultDevice is the kernel resource manager device.
const DefaultDevice = "/dev/tpmrm0"

// Config contains configuration for the TPM 2.0 secure element.
type Config struct {
	// Device is the TPM character device or a Unix domain socket ending
	// in ".sock" (swtpm). Defaults to /dev/tpmrm0.
	Device string `yaml:"device" json:"device" mapstructure:"device"`

	// UseSimulator runs against the embedded TPM simulator instead of a
	// device. Keys do not survive process restarts.
	UseSimulator bool `yaml:"simulator" json:"simulator" mapstructure:"simulator"`

	Logger *logging.Logger `yaml:"-" json:"-" mapstructure:"-"`
}

// Validate checks the configuration and applies defaults.
func (c *Config) Validate() error {
	if c == nil {
		return ErrInvalidConfig
	}
	if !c.UseSimulator && c.Device == "" {
		c.Device = DefaultDevice
	}
	return nil
}

// String returns a string representation of the config.
func (c *Config) String() string {
	if c.UseSimulator {
		return "TPM2 Config{Simulator: true}"
	}
	return fmt.Sprintf("TPM2 Config{Device: %s}", c.Device)
}
