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

package health

import (
	"context"
	"fmt"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/storage"
)

// probeKey is looked up, never written, by StorageCheck.
const probeKey = "health/probe"

// SecureElementCheck reports whether se is usable now.
func SecureElementCheck(se backend.SecureElement) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if se.Available() {
			return CheckResult{
				Status:  StatusHealthy,
				Message: fmt.Sprintf("%s secure element is available", se.Type()),
			}
		}
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: fmt.Sprintf("%s secure element is not available", se.Type()),
		}
	}
}

// StorageCheck reports whether the storage backend answers lookups.
func StorageCheck(store storage.Backend) CheckFunc {
	return func(ctx context.Context) CheckResult {
		if _, err := store.Exists(probeKey); err != nil {
			return CheckResult{
				Status:  StatusUnhealthy,
				Message: "credential store is not readable",
				Error:   err.Error(),
			}
		}
		return CheckResult{Status: StatusHealthy, Message: "credential store is readable"}
	}
}
