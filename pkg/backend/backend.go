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

// SecureElement is an isolated subsystem that generates and holds private
// key material. Private keys never leave the element; callers hold opaque
// handles and persistable references only.
//
// Implementations must be safe for concurrent use.
type SecureElement interface {
	// Type returns the backend type identifier.
	Type() types.BackendType

	// Available reports whether the underlying hardware can be used.
	Available() bool

	// GenerateKeyPair creates a fresh key pair inside the element. The
	// policy is applied to the private key at creation time.
	GenerateKeyPair(params *types.KeyParams, policy *types.AccessPolicy) (*types.KeyPair, error)

	// LoadPrivateKey turns a persisted reference back into a handle. It fails
	// when the reference was not produced by this element or does not
	// describe a keyType key.
	LoadPrivateKey(keyType types.KeyType, reference []byte) (types.PrivateKeyHandle, error)

	// PublicKey derives the public handle of a private handle.
	PublicKey(priv types.PrivateKeyHandle) (types.PublicKeyHandle, error)

	// Supports is the runtime capability oracle. It must be asked with the
	// same handle that will execute the operation.
	Supports(handle types.KeyHandle, op types.Operation, alg types.Algorithm) bool

	// Encrypt encrypts plaintext with the public key.
	Encrypt(pub types.PublicKeyHandle, alg types.Algorithm, plaintext []byte) ([]byte, error)

	// Decrypt decrypts ciphertext with the private key.
	Decrypt(priv types.PrivateKeyHandle, alg types.Algorithm, ciphertext []byte) ([]byte, error)

	// Sign signs the full message. ECDSA signatures are ASN.1 DER.
	Sign(priv types.PrivateKeyHandle, alg types.Algorithm, message []byte) ([]byte, error)

	// Verify checks a signature over the full message. A well-formed but
	// wrong signature returns (false, nil).
	Verify(pub types.PublicKeyHandle, alg types.Algorithm, message, signature []byte) (bool, error)

	// DestroyKey removes a key from the element. It is used to roll back a
	// key whose reference could not be persisted.
	DestroyKey(priv types.PrivateKeyHandle) error

	// Close releases the element.
	Close() error
}

// AlgorithmApplies reports whether alg is the accepted token for op on
// handles of the given key type. Backends call it before consulting the
// hardware in Supports.
func AlgorithmApplies(handle types.KeyHandle, op types.Operation, alg types.Algorithm) bool {
	if handle == nil || !alg.IsValid() {
		return false
	}
	want, ok := types.AlgorithmFor(handle.KeyType(), op, alg.Hash())
	return ok && want == alg
}
