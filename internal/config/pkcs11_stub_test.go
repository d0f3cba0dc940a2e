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

//go:build !pkcs11

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jeremyhahn/go-enclave/pkg/logging"
)

func TestNewSecureElement_PKCS11NotCompiled(t *testing.T) {
	cfg := Default()
	cfg.Backend.Type = "pkcs11"
	cfg.Backend.PKCS11 = PKCS11Config{Library: "/usr/lib/softhsm/libsofthsm2.so", TokenLabel: "enclave"}

	_, err := cfg.NewSecureElement(logging.Discard())
	assert.ErrorIs(t, err, ErrPKCS11NotCompiled)
}
