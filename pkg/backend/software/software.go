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

// Package software implements a secure element in process memory. Private
// keys are held only inside the element; the references it hands out are
// AES-256-GCM sealed PKCS#8 blobs that only the same element can open.
//
// It is intended for development and tests where no PKCS#11 token or TPM is
// present. It offers none of the physical protections of hardware.
package software

import (
	"crypto"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// ErrClosed is returned when the element has been closed
var ErrClosed = backend.ErrClosed

// Backend is the software secure element.
//
// Thread-safe: Yes, uses a read-write mutex for concurrent access.
type Backend struct {
	elementID string
	aead      cipher.AEAD
	logger    *logging.Logger
	destroyed map[string]struct{}
	closed    bool
	mu        sync.RWMutex
}

// privateKey is the software private handle.
type privateKey struct {
	backend.OpaqueHandle
	signer crypto.Signer
	ref    []byte
	owner  *Backend
}

func (k *privateKey) Reference() []byte {
	ref := make([]byte, len(k.ref))
	copy(ref, k.ref)
	return ref
}

// NewBackend creates a software secure element.
func NewBackend(config *Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	secret := config.MasterSecret
	if len(secret) == 0 {
		secret = make([]byte, MinMasterSecretSize)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("failed to generate master secret: %w", err)
		}
		defer clearBytes(secret)
	}

	elementID := config.ElementID
	if elementID == "" {
		elementID = "default"
	}

	kek, err := deriveKEK(secret, elementID)
	if err != nil {
		return nil, err
	}
	defer clearBytes(kek)

	aead, err := newAEAD(kek)
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	return &Backend{
		elementID: elementID,
		aead:      aead,
		logger:    logger,
		destroyed: make(map[string]struct{}),
	}, nil
}

// Type returns the backend type.
func (b *Backend) Type() types.BackendType {
	return types.BackendTypeSoftware
}

// Available reports whether the element is open.
func (b *Backend) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.closed
}

// GenerateKeyPair generates a key pair and seals its private half into a
// reference.
func (b *Backend) GenerateKeyPair(params *types.KeyParams, policy *types.AccessPolicy) (*types.KeyPair, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidKeyParams, err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidAccessPolicy, err)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	var signer crypto.Signer
	switch params.KeyType {
	case types.KeyTypeRSA:
		key, err := rsa.GenerateKey(rand.Reader, params.KeySize)
		if err != nil {
			return nil, fmt.Errorf("failed to generate RSA key: %w", err)
		}
		signer = key
	case types.KeyTypeECDSA:
		curve, err := params.Curve()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", backend.ErrInvalidKeyParams, err)
		}
		key, err := ecdsa.GenerateKey(curve, rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("failed to generate ECDSA key: %w", err)
		}
		signer = key
	}

	der, err := x509.MarshalPKCS8PrivateKey(signer)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	defer clearBytes(der)

	ref, err := b.seal(params.KeyType, der)
	if err != nil {
		return nil, fmt.Errorf("failed to seal private key: %w", err)
	}

	priv, err := b.newPrivateKey(params.KeyType, signer, ref)
	if err != nil {
		return nil, err
	}
	pub, err := backend.NewPublicHandle(params.KeyType, signer.Public())
	if err != nil {
		return nil, err
	}

	b.logger.Debug("generated software key", "key_spec", params.String(), "fingerprint", priv.Fingerprint())
	return &types.KeyPair{Public: pub, Private: priv}, nil
}

// LoadPrivateKey unseals a reference produced by this element.
func (b *Backend) LoadPrivateKey(keyType types.KeyType, reference []byte) (types.PrivateKeyHandle, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	sealedType, der, err := b.unseal(reference)
	if err != nil {
		return nil, err
	}
	defer clearBytes(der)

	if sealedType != keyType {
		return nil, fmt.Errorf("%w: reference holds a %s key, want %s",
			backend.ErrKeyTypeMismatch, sealedType, keyType)
	}

	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidReference, err)
	}
	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("%w: unsupported key %T", backend.ErrInvalidReference, key)
	}

	priv, err := b.newPrivateKey(keyType, signer, reference)
	if err != nil {
		return nil, err
	}
	if _, gone := b.destroyed[priv.Fingerprint()]; gone {
		return nil, backend.ErrKeyNotFound
	}
	return priv, nil
}

// PublicKey derives the public handle of priv.
func (b *Backend) PublicKey(priv types.PrivateKeyHandle) (types.PublicKeyHandle, error) {
	k, err := b.own(priv)
	if err != nil {
		return nil, err
	}
	return backend.NewPublicHandle(k.KeyType(), k.signer.Public())
}

// Supports reports whether the handle can perform op with alg. Private
// handles must belong to this element.
func (b *Backend) Supports(handle types.KeyHandle, op types.Operation, alg types.Algorithm) bool {
	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed || !backend.AlgorithmApplies(handle, op, alg) {
		return false
	}
	if op.UsesPrivateKey() {
		priv, ok := handle.(types.PrivateKeyHandle)
		if !ok {
			return false
		}
		_, err := b.own(priv)
		return err == nil
	}
	_, ok := handle.(types.PublicKeyHandle)
	return ok
}

// Encrypt encrypts plaintext with RSA-OAEP.
func (b *Backend) Encrypt(pub types.PublicKeyHandle, alg types.Algorithm, plaintext []byte) ([]byte, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	if !backend.AlgorithmApplies(pub, types.OperationEncrypt, alg) {
		return nil, backend.ErrInvalidAlgorithm
	}
	rsaPub, ok := pub.Public().(*rsa.PublicKey)
	if !ok {
		return nil, backend.ErrInvalidHandle
	}
	return rsa.EncryptOAEP(alg.Hash().CryptoHash().New(), rand.Reader, rsaPub, plaintext, nil)
}

// Decrypt decrypts RSA-OAEP ciphertext.
func (b *Backend) Decrypt(priv types.PrivateKeyHandle, alg types.Algorithm, ciphertext []byte) ([]byte, error) {
	k, err := b.own(priv)
	if err != nil {
		return nil, err
	}
	if !backend.AlgorithmApplies(k, types.OperationDecrypt, alg) {
		return nil, backend.ErrInvalidAlgorithm
	}
	rsaKey, ok := k.signer.(*rsa.PrivateKey)
	if !ok {
		return nil, backend.ErrInvalidHandle
	}
	return rsa.DecryptOAEP(alg.Hash().CryptoHash().New(), nil, rsaKey, ciphertext, nil)
}

// Sign hashes message and signs the digest with RSA-PSS or ECDSA.
func (b *Backend) Sign(priv types.PrivateKeyHandle, alg types.Algorithm, message []byte) ([]byte, error) {
	k, err := b.own(priv)
	if err != nil {
		return nil, err
	}
	if !backend.AlgorithmApplies(k, types.OperationSign, alg) {
		return nil, backend.ErrInvalidAlgorithm
	}
	digest, err := alg.Hash().Digest(message)
	if err != nil {
		return nil, err
	}
	switch key := k.signer.(type) {
	case *rsa.PrivateKey:
		return rsa.SignPSS(rand.Reader, key, alg.Hash().CryptoHash(), digest, pssOptions(alg))
	case *ecdsa.PrivateKey:
		return ecdsa.SignASN1(rand.Reader, key, digest)
	default:
		return nil, backend.ErrInvalidHandle
	}
}

// Verify checks an RSA-PSS or ECDSA signature over message.
func (b *Backend) Verify(pub types.PublicKeyHandle, alg types.Algorithm, message, signature []byte) (bool, error) {
	if err := b.checkOpen(); err != nil {
		return false, err
	}
	if !backend.AlgorithmApplies(pub, types.OperationVerify, alg) {
		return false, backend.ErrInvalidAlgorithm
	}
	digest, err := alg.Hash().Digest(message)
	if err != nil {
		return false, err
	}
	switch key := pub.Public().(type) {
	case *rsa.PublicKey:
		// VerifyPSS only fails on the signature bytes, including values
		// that overflow the modulus.
		return rsa.VerifyPSS(key, alg.Hash().CryptoHash(), digest, signature, pssOptions(alg)) == nil, nil
	case *ecdsa.PublicKey:
		return ecdsa.VerifyASN1(key, digest, signature), nil
	default:
		return false, backend.ErrInvalidHandle
	}
}

// DestroyKey forgets the key. References to it will no longer load.
func (b *Backend) DestroyKey(priv types.PrivateKeyHandle) error {
	k, err := b.own(priv)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed[k.Fingerprint()] = struct{}{}
	return nil
}

// Close releases the element. Handles created by it stop working.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.aead = nil
	return nil
}

func (b *Backend) newPrivateKey(keyType types.KeyType, signer crypto.Signer, ref []byte) (*privateKey, error) {
	h, err := backend.NewOpaqueHandle(keyType, signer.Public())
	if err != nil {
		return nil, err
	}
	return &privateKey{OpaqueHandle: h, signer: signer, ref: ref, owner: b}, nil
}

// own checks that priv was created by this element and that the element
// is still open.
func (b *Backend) own(priv types.PrivateKeyHandle) (*privateKey, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}
	k, ok := priv.(*privateKey)
	if !ok || k.owner != b {
		return nil, backend.ErrInvalidHandle
	}
	b.mu.RLock()
	_, gone := b.destroyed[k.Fingerprint()]
	b.mu.RUnlock()
	if gone {
		return nil, backend.ErrKeyNotFound
	}
	return k, nil
}

func (b *Backend) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return nil
}

func pssOptions(alg types.Algorithm) *rsa.PSSOptions {
	return &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       alg.Hash().CryptoHash(),
	}
}

// Verify interface compliance at compile time
var _ backend.SecureElement = (*Backend)(nil)
