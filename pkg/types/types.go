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

// Package types contains the shared data model of the enclave: key types,
// operations, hash functions, algorithm tokens, access policies, key
// handles and the error taxonomy. It has no dependencies on the backend,
// storage or keychain packages to prevent import cycles.
package types

import (
	"crypto"
	"crypto/elliptic"
	"fmt"
	"strings"
)

// =============================================================================
// Backend Type
// =============================================================================

// BackendType identifies the secure element implementation.
type BackendType string

const (
	BackendTypeSoftware BackendType = "software" // In-process element, keys sealed under a KEK
	BackendTypePKCS11   BackendType = "pkcs11"   // PKCS#11 token / hardware security module
	BackendTypeTPM2     BackendType = "tpm2"     // TPM 2.0
)

// String returns the string representation of the backend type.
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is recognized.
func (bt BackendType) IsValid() bool {
	switch bt {
	case BackendTypeSoftware, BackendTypePKCS11, BackendTypeTPM2:
		return true
	default:
		return false
	}
}

// ParseBackendType converts a string to a BackendType. Unknown values are
// returned as-is and fail IsValid.
func ParseBackendType(s string) BackendType {
	return BackendType(strings.ToLower(strings.TrimSpace(s)))
}

// =============================================================================
// Key Type
// =============================================================================

// KeyType is the closed enumeration of asymmetric key types the enclave
// can create and load.
type KeyType uint8

const (
	// KeyTypeRSA is an RSA key pair.
	KeyTypeRSA KeyType = 1 + iota

	// KeyTypeECDSA is a NIST prime curve key pair (random-prime "secp"
	// family). The deprecated legacy EC descriptor is never produced.
	KeyTypeECDSA
)

// String returns the protocol name of the key type.
func (kt KeyType) String() string {
	switch kt {
	case KeyTypeRSA:
		return "RSA"
	case KeyTypeECDSA:
		return "ECDSA"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", kt)
	}
}

// IsValid returns true if the key type is a member of the enumeration.
func (kt KeyType) IsValid() bool {
	return kt == KeyTypeRSA || kt == KeyTypeECDSA
}

// =============================================================================
// Operation
// =============================================================================

// Operation is one of the four key operations.
type Operation uint8

const (
	OperationEncrypt Operation = 1 + iota
	OperationDecrypt
	OperationSign
	OperationVerify
)

// Operations lists every operation, in declaration order.
var Operations = []Operation{
	OperationEncrypt,
	OperationDecrypt,
	OperationSign,
	OperationVerify,
}

// String returns the lower case name of the operation.
func (op Operation) String() string {
	switch op {
	case OperationEncrypt:
		return "encrypt"
	case OperationDecrypt:
		return "decrypt"
	case OperationSign:
		return "sign"
	case OperationVerify:
		return "verify"
	default:
		return fmt.Sprintf("unknown(%d)", op)
	}
}

// UsesPrivateKey returns true if the operation executes against the
// private key handle (decrypt, sign). Encrypt and verify use the public key.
func (op Operation) UsesPrivateKey() bool {
	return op == OperationDecrypt || op == OperationSign
}

// =============================================================================
// Hash
// =============================================================================

// Hash is one of the hash functions accepted at the boundary.
type Hash uint8

const (
	HashSHA1 Hash = 1 + iota
	HashSHA224
	HashSHA256
	HashSHA384
)

// Hashes lists every hash function, in declaration order.
var Hashes = []Hash{HashSHA1, HashSHA224, HashSHA256, HashSHA384}

// String returns the protocol name of the hash.
func (h Hash) String() string {
	switch h {
	case HashSHA1:
		return "SHA1"
	case HashSHA224:
		return "SHA224"
	case HashSHA256:
		return "SHA256"
	case HashSHA384:
		return "SHA384"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", h)
	}
}

// CryptoHash returns the standard library hash identifier.
func (h Hash) CryptoHash() crypto.Hash {
	switch h {
	case HashSHA1:
		return crypto.SHA1
	case HashSHA224:
		return crypto.SHA224
	case HashSHA256:
		return crypto.SHA256
	case HashSHA384:
		return crypto.SHA384
	default:
		return 0
	}
}

// Digest hashes data with h.
func (h Hash) Digest(data []byte) ([]byte, error) {
	ch := h.CryptoHash()
	if ch == 0 || !ch.Available() {
		return nil, fmt.Errorf("hash %s is not available", h)
	}
	hasher := ch.New()
	hasher.Write(data)
	return hasher.Sum(nil), nil
}

// Size returns the digest length in bytes.
func (h Hash) Size() int {
	ch := h.CryptoHash()
	if ch == 0 {
		return 0
	}
	return ch.Size()
}

// =============================================================================
// Key Parameters
// =============================================================================

// Supported key sizes, in bits.
const (
	RSAKeySize2048 = 2048
	RSAKeySize3072 = 3072
	RSAKeySize4096 = 4096

	ECDSAKeySize256 = 256
	ECDSAKeySize384 = 384
	ECDSAKeySize521 = 521
)

// KeyParams describes a key pair to generate.
type KeyParams struct {
	// Identifier is the logical key identifier the pair will be stored under.
	// Backends that label objects (PKCS#11) use it as the object label.
	Identifier string

	KeyType KeyType
	KeySize int
}

// Validate checks the key type and size against the closed size tables.
func (p *KeyParams) Validate() error {
	if p == nil {
		return fmt.Errorf("key params are nil")
	}
	switch p.KeyType {
	case KeyTypeRSA:
		switch p.KeySize {
		case RSAKeySize2048, RSAKeySize3072, RSAKeySize4096:
			return nil
		}
	case KeyTypeECDSA:
		if _, err := CurveForSize(p.KeySize); err == nil {
			return nil
		}
	default:
		return fmt.Errorf("invalid key type: %s", p.KeyType)
	}
	return fmt.Errorf("invalid %s key size: %d", p.KeyType, p.KeySize)
}

// Curve returns the elliptic curve for ECDSA params.
func (p *KeyParams) Curve() (elliptic.Curve, error) {
	if p.KeyType != KeyTypeECDSA {
		return nil, fmt.Errorf("%s keys have no curve", p.KeyType)
	}
	return CurveForSize(p.KeySize)
}

// String returns the "TYPE;SIZE" form of the params.
func (p KeyParams) String() string {
	return fmt.Sprintf("%s;%d", p.KeyType, p.KeySize)
}

// CurveForSize maps an ECDSA key size to its NIST prime curve.
func CurveForSize(size int) (elliptic.Curve, error) {
	switch size {
	case ECDSAKeySize256:
		return elliptic.P256(), nil
	case ECDSAKeySize384:
		return elliptic.P384(), nil
	case ECDSAKeySize521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("unsupported curve size: %d", size)
	}
}

// =============================================================================
// Access Policy
// =============================================================================

// AccessPolicy restricts when and how a stored private key may be used.
type AccessPolicy struct {
	// WhenUnlocked allows use only while the element is unlocked
	// (logged in token, authorized TPM object, open software element).
	WhenUnlocked bool `cbor:"1,keyasint" json:"when_unlocked"`

	// NonExportable forbids extracting private key material.
	NonExportable bool `cbor:"2,keyasint" json:"non_exportable"`

	// ThisDeviceOnly binds the key to the element that created it.
	ThisDeviceOnly bool `cbor:"3,keyasint" json:"this_device_only"`
}

// AccessFlag is an option for NewAccessPolicy.
type AccessFlag func(*AccessPolicy)

// AccessWhenUnlocked sets AccessPolicy.WhenUnlocked.
func AccessWhenUnlocked() AccessFlag {
	return func(p *AccessPolicy) { p.WhenUnlocked = true }
}

// AccessNonExportable sets AccessPolicy.NonExportable.
func AccessNonExportable() AccessFlag {
	return func(p *AccessPolicy) { p.NonExportable = true }
}

// AccessThisDeviceOnly sets AccessPolicy.ThisDeviceOnly.
func AccessThisDeviceOnly() AccessFlag {
	return func(p *AccessPolicy) { p.ThisDeviceOnly = true }
}

// NewAccessPolicy builds and validates an access policy.
func NewAccessPolicy(flags ...AccessFlag) (*AccessPolicy, error) {
	policy := &AccessPolicy{}
	for _, flag := range flags {
		flag(policy)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return policy, nil
}

// DefaultAccessPolicy returns the policy applied to every created key:
// usable only while unlocked, non-exportable and device-local.
func DefaultAccessPolicy() *AccessPolicy {
	return &AccessPolicy{
		WhenUnlocked:   true,
		NonExportable:  true,
		ThisDeviceOnly: true,
	}
}

// Validate rejects policies that would allow private key export.
func (p *AccessPolicy) Validate() error {
	if p == nil {
		return fmt.Errorf("access policy is nil")
	}
	if !p.NonExportable {
		return fmt.Errorf("access policy must forbid private key export")
	}
	return nil
}

// String returns a compact representation of the policy.
func (p AccessPolicy) String() string {
	var flags []string
	if p.WhenUnlocked {
		flags = append(flags, "when-unlocked")
	}
	if p.NonExportable {
		flags = append(flags, "non-exportable")
	}
	if p.ThisDeviceOnly {
		flags = append(flags, "this-device-only")
	}
	return "AccessPolicy{" + strings.Join(flags, ",") + "}"
}

// =============================================================================
// Key Pair
// =============================================================================

// KeyPair relates a public and a private handle 1:1. The private handle is
// owned by the secure element; the public handle is safe to export.
type KeyPair struct {
	Public  PublicKeyHandle
	Private PrivateKeyHandle
}
