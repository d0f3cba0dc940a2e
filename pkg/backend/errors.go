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

import "errors"

var (
	// ErrNotAvailable is returned when the secure hardware cannot be reached.
	ErrNotAvailable = errors.New("backend: secure element not available")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("backend: secure element is closed")

	// ErrKeyNotFound is returned when a reference does not resolve to a key
	// inside the element.
	ErrKeyNotFound = errors.New("backend: key not found")

	// ErrInvalidKeyParams is returned for unsupported key type / size pairs.
	ErrInvalidKeyParams = errors.New("backend: invalid key parameters")

	// ErrInvalidReference is returned when a persisted reference cannot be
	// decoded or belongs to another element.
	ErrInvalidReference = errors.New("backend: invalid key reference")

	// ErrInvalidHandle is returned when a handle was not created by the
	// element it is passed to.
	ErrInvalidHandle = errors.New("backend: invalid key handle")

	// ErrKeyTypeMismatch is returned when a reference describes a key of a
	// different type than requested.
	ErrKeyTypeMismatch = errors.New("backend: key type mismatch")

	// ErrInvalidAlgorithm is returned when an algorithm token does not apply
	// to the key or operation.
	ErrInvalidAlgorithm = errors.New("backend: invalid algorithm")

	// ErrKeyNotExportable is returned when anything attempts to serialize a
	// private key handle. Private keys are created non-extractable
	// (CKA_EXTRACTABLE=false, FixedTPM) and their handles fail closed.
	ErrKeyNotExportable = errors.New("backend: key is not exportable")

	// ErrOperationNotSupported is returned when the element refuses the
	// key / algorithm / operation combination.
	ErrOperationNotSupported = errors.New("backend: operation not supported by this backend")

	// ErrInvalidAccessPolicy is returned when an access policy cannot be
	// applied to a new key.
	ErrInvalidAccessPolicy = errors.New("backend: invalid access policy")
)
