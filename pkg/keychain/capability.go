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
	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// checkSupported asks se whether handle can run spec. The handle passed
// must be the one the operation executes against: the public handle for
// encrypt and verify, the private handle for decrypt and sign.
func checkSupported(se backend.SecureElement, handle types.KeyHandle, spec *types.AlgorithmSpec) error {
	if handle == nil {
		return unsupported(spec.Operation, spec)
	}
	if handle.KeyType() != spec.KeyType {
		return types.WrapError(types.KindForOperation(spec.Operation), backend.ErrKeyTypeMismatch,
			"%s key cannot run %s", handle.KeyType(), spec.Algorithm)
	}
	if !se.Supports(handle, spec.Operation, spec.Algorithm) {
		return unsupported(spec.Operation, spec)
	}
	return nil
}
