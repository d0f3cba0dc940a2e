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


package tpm2

import "errors"

var (
	// ErrInvalidConfig indicates the configuration is invalid
	ErrInvalidConfig = errors.New("tpm2: invalid configuration")

	// ErrOpeningDevice indicates the TPM device could not be opened
	ErrOpeningDevice = errors.New("tpm2: error opening TPM device")

	// ErrUnsupportedHash indicates the TPM has no algorithm ID for the hash
	ErrUnsupportedHash = errors.New("tpm2: hash not implemented by TPM")

	// ErrUnsupportedCurve indicates the key size does not map to a TPM curve
	ErrUnsupportedCurve = errors.New("tpm2: unsupported curve")

	// ErrUnexpectedPublicArea indicates a public area of the wrong type
	ErrUnexpectedPublicArea = errors.New("tpm2: unexpected public area")
)
