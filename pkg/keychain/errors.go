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

package keychain

import (
	"errors"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// ErrInvalidConfig indicates the engine was constructed without a key store.
var ErrInvalidConfig = errors.New("keychain: invalid configuration")

// ErrInvalidEncoding indicates a ciphertext or signature is not well-formed
// standard base64.
var ErrInvalidEncoding = errors.New("keychain: invalid base64 encoding")

// operationError tags err with the kind of op. Errors that already carry a
// resolver or key store kind keep it.
func operationError(op types.Operation, err error, format string, args ...any) error {
	switch types.KindOf(err) {
	case types.KindUnsupportedKeyType,
		types.KindUnsupportedAlgorithmOrHash,
		types.KindLoadKeyError,
		types.KindInitializationError:
		return err
	}
	return types.WrapError(types.KindForOperation(op), err, format, args...)
}

// unsupported is the fault returned when the capability check fails.
func unsupported(op types.Operation, spec *types.AlgorithmSpec) error {
	return types.WrapError(types.KindForOperation(op), backend.ErrOperationNotSupported,
		"%s is not supported for %s", spec.Algorithm, op)
}
