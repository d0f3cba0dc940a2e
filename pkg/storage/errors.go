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


package storage

import "errors"

// Sentinels shared by every Backend. Callers match them with errors.Is.
var (
	// ErrClosed means the backend was used after Close.
	ErrClosed = errors.New("storage: closed")

	// ErrNotFound means no record is stored under the key.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyExists means Create lost to an existing record. The
	// credential store turns it into a duplicate-record failure.
	ErrAlreadyExists = errors.New("storage: already exists")

	// ErrInvalidID rejects an empty or malformed record key.
	ErrInvalidID = errors.New("storage: invalid ID")
)
