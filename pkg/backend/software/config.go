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

package software

import (
	"encoding/hex"
	"fmt"

	"github.com/jeremyhahn/go-enclave/pkg/logging"
)

// MinMasterSecretSize is the minimum length of a configured master secret.
const MinMasterSecretSize = 32

// Config contains configuration for the software secure element.
type Config struct {
	// MasterSecret is the root secret the key encryption key is derived
	// from. References sealed under one secret cannot be loaded under
	// another. When empty, a random secret is generated and references
	// only survive for the life of the element.
	MasterSecret []byte

	// ElementID binds sealed references to this element instance.
	// Defaults to "default".
	ElementID string

	Logger *logging.Logger
}

// Validate checks if the Config is valid.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}
	if len(c.MasterSecret) > 0 && len(c.MasterSecret) < MinMasterSecretSize {
		return fmt.Errorf("master secret must be at least %d bytes, got %d",
			MinMasterSecretSize, len(c.MasterSecret))
	}
	return nil
}

// ParseMasterSecret decodes a hex encoded master secret.
func ParseMasterSecret(s string) ([]byte, error) {
	if s == "" {
		return nil, nil
	}
	secret, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("master secret is not valid hex: %w", err)
	}
	return secret, nil
}
