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

package backend

import (
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// Availability is the result of probing a secure element once at module
// initialization. The zero value is unavailable, so a key store that was
// never handed a probed token refuses to create keys.
type Availability struct {
	backend   types.BackendType
	available bool
}

// Probe asks se whether its hardware is usable.
func Probe(se SecureElement) Availability {
	if se == nil {
		return Availability{}
	}
	return Availability{
		backend:   se.Type(),
		available: se.Available(),
	}
}

// Available reports whether the probe succeeded.
func (a Availability) Available() bool { return a.available }

// Backend returns the probed backend type.
func (a Availability) Backend() types.BackendType { return a.backend }

// Err returns an InitializationError when the element is unavailable.
func (a Availability) Err() error {
	if a.available {
		return nil
	}
	if a.backend == "" {
		return types.WrapError(types.KindInitializationError, ErrNotAvailable,
			"secure element has not been initialized")
	}
	return types.WrapError(types.KindInitializationError, ErrNotAvailable,
		"%s secure element is not available", a.backend)
}
