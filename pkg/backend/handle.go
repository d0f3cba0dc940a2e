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
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"fmt"

	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// =============================================================================
// Private handles
// =============================================================================

// OpaqueHandle carries the non-secret metadata of a private key handle.
// Backends embed it in their private handle types; every serialization path
// of the embedding type fails with ErrKeyNotExportable and formatting
// renders the fingerprint only.
type OpaqueHandle struct {
	keyType     types.KeyType
	keySize     int
	fingerprint string
}

// NewOpaqueHandle returns the metadata for a private handle whose public
// half is pub.
func NewOpaqueHandle(keyType types.KeyType, pub crypto.PublicKey) (OpaqueHandle, error) {
	fp, err := types.Fingerprint(pub)
	if err != nil {
		return OpaqueHandle{}, err
	}
	return OpaqueHandle{
		keyType:     keyType,
		keySize:     PublicKeySize(pub),
		fingerprint: fp,
	}, nil
}

// KeyType returns the key type.
func (h OpaqueHandle) KeyType() types.KeyType { return h.keyType }

// KeySize returns the key size in bits.
func (h OpaqueHandle) KeySize() int { return h.keySize }

// Fingerprint returns the hex SHA-256 of the PKIX public key.
func (h OpaqueHandle) Fingerprint() string { return h.fingerprint }

func (h OpaqueHandle) String() string {
	return fmt.Sprintf("PrivateKeyHandle{%s;%d %s}", h.keyType, h.keySize, h.fingerprint)
}

// GoString keeps %#v from printing the embedding struct's fields.
func (h OpaqueHandle) GoString() string { return h.String() }

func (h OpaqueHandle) MarshalJSON() ([]byte, error)   { return nil, ErrKeyNotExportable }
func (h OpaqueHandle) MarshalText() ([]byte, error)   { return nil, ErrKeyNotExportable }
func (h OpaqueHandle) MarshalBinary() ([]byte, error) { return nil, ErrKeyNotExportable }
func (h OpaqueHandle) GobEncode() ([]byte, error)     { return nil, ErrKeyNotExportable }

// =============================================================================
// Public handles
// =============================================================================

// PublicHandle is a public key handle. Public keys are safe to export, so
// backends share this implementation.
type PublicHandle struct {
	keyType     types.KeyType
	keySize     int
	fingerprint string
	pub         crypto.PublicKey
}

// NewPublicHandle wraps pub, checking that it matches keyType.
func NewPublicHandle(keyType types.KeyType, pub crypto.PublicKey) (*PublicHandle, error) {
	switch pub.(type) {
	case *rsa.PublicKey:
		if keyType != types.KeyTypeRSA {
			return nil, fmt.Errorf("%w: RSA public key for %s handle", ErrKeyTypeMismatch, keyType)
		}
	case *ecdsa.PublicKey:
		if keyType != types.KeyTypeECDSA {
			return nil, fmt.Errorf("%w: ECDSA public key for %s handle", ErrKeyTypeMismatch, keyType)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported public key %T", ErrInvalidHandle, pub)
	}
	fp, err := types.Fingerprint(pub)
	if err != nil {
		return nil, err
	}
	return &PublicHandle{
		keyType:     keyType,
		keySize:     PublicKeySize(pub),
		fingerprint: fp,
		pub:         pub,
	}, nil
}

func (h *PublicHandle) KeyType() types.KeyType   { return h.keyType }
func (h *PublicHandle) KeySize() int             { return h.keySize }
func (h *PublicHandle) Fingerprint() string      { return h.fingerprint }
func (h *PublicHandle) Public() crypto.PublicKey { return h.pub }

func (h *PublicHandle) String() string {
	return fmt.Sprintf("PublicKeyHandle{%s;%d %s}", h.keyType, h.keySize, h.fingerprint)
}

// PublicKeySize returns the modulus length or curve size of pub in bits.
func PublicKeySize(pub crypto.PublicKey) int {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		return k.N.BitLen()
	case *ecdsa.PublicKey:
		return k.Curve.Params().BitSize
	default:
		return 0
	}
}
