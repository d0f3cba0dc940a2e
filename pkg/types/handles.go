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

package types

import (
	"crypto"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
)

// KeyHandle is the common part of public and private key handles.
type KeyHandle interface {
	// KeyType returns the key type the handle was created or loaded as.
	KeyType() KeyType

	// KeySize returns the modulus length (RSA) or curve size (ECDSA) in bits.
	KeySize() int

	// Fingerprint returns the non-secret fingerprint of the key pair.
	Fingerprint() string
}

// PublicKeyHandle is an exportable handle to a public key.
type PublicKeyHandle interface {
	KeyHandle

	// Public returns the public key.
	Public() crypto.PublicKey
}

// PrivateKeyHandle is an opaque capability handle to a private key held by
// a secure element. Implementations never expose key material and refuse
// every serialization interface.
type PrivateKeyHandle interface {
	KeyHandle

	// Reference returns the element-specific reference persisted in the
	// credential store. It is not key material: the element must be
	// present to turn a reference back into a usable handle.
	Reference() []byte
}

// Fingerprint returns the hex encoded SHA-256 digest of the PKIX encoding
// of pub. It identifies a key pair without revealing anything secret.
func Fingerprint(pub crypto.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	sum := sha256.Sum256(der)
	return hex.EncodeToString(sum[:]), nil
}
