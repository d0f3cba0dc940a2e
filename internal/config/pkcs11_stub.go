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
	"errors"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
)

// ErrPKCS11NotCompiled is returned when the pkcs11 element is configured in
// a binary built without the pkcs11 tag.
var ErrPKCS11NotCompiled = errors.New("config: pkcs11 backend not compiled in (use -tags pkcs11)")

func newPKCS11(_ *PKCS11Config, _ *logging.Logger) (backend.SecureElement, error) {
	return nil, ErrPKCS11NotCompiled
}
