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

package software

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/hkdf"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

const (
	// kekInfo is the HKDF info string for deriving the key encryption key
	kekInfo = "go-enclave-software-kek-v1"

	referenceVersion = 1
)

// sealedReference is the persisted form of a software key. The private key
// is PKCS#8 encrypted under the element's KEK; the key type and element ID
// are authenticated as AAD.
type sealedReference struct {
	Version    uint8  `cbor:"1,keyasint"`
	KeyType    uint8  `cbor:"2,keyasint"`
	Nonce      []byte `cbor:"3,keyasint"`
	Ciphertext []byte `cbor:"4,keyasint"`
}

// deriveKEK derives a 256-bit AES key from the master secret using HKDF.
func deriveKEK(secret []byte, elementID string) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, []byte(elementID), []byte(kekInfo))
	kek := make([]byte, 32)
	if _, err := io.ReadFull(r, kek); err != nil {
		return nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}
	return kek, nil
}

func (b *Backend) aad(keyType types.KeyType) []byte {
	return []byte(fmt.Sprintf("%s|%s|%d", kekInfo, b.elementID, keyType))
}

// seal encrypts PKCS#8 key material into a reference.
func (b *Backend) seal(keyType types.KeyType, pkcs8 []byte) ([]byte, error) {
	nonce := make([]byte, b.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	ref := sealedReference{
		Version:    referenceVersion,
		KeyType:    uint8(keyType),
		Nonce:      nonce,
		Ciphertext: b.aead.Seal(nil, nonce, pkcs8, b.aad(keyType)),
	}
	return cbor.Marshal(ref)
}

// unseal decrypts a reference, returning the key type it was sealed as and
// the PKCS#8 key material.
func (b *Backend) unseal(reference []byte) (types.KeyType, []byte, error) {
	var ref sealedReference
	if err := cbor.Unmarshal(reference, &ref); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", backend.ErrInvalidReference, err)
	}
	if ref.Version != referenceVersion {
		return 0, nil, fmt.Errorf("%w: unsupported version %d", backend.ErrInvalidReference, ref.Version)
	}
	if len(ref.Nonce) != b.aead.NonceSize() {
		return 0, nil, fmt.Errorf("%w: invalid nonce size", backend.ErrInvalidReference)
	}
	keyType := types.KeyType(ref.KeyType)
	pkcs8, err := b.aead.Open(nil, ref.Nonce, ref.Ciphertext, b.aad(keyType))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reference was not sealed by this element", backend.ErrInvalidReference)
	}
	return keyType, pkcs8, nil
}

func newAEAD(kek []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(kek)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// clearBytes zeros out a byte slice
func clearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
