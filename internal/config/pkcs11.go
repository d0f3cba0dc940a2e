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

//go:build pkcs11

package config

import (
	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/backend/pkcs11"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
)

func newPKCS11(c *PKCS11Config, logger *logging.Logger) (backend.SecureElement, error) {
	return pkcs11.NewBackend(&pkcs11.Config{
		Library:    c.Library,
		TokenLabel: c.TokenLabel,
		Slot:       c.Slot,
		PIN:        c.PIN,
		Logger:     logger,
	})
}
