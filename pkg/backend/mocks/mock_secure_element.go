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

package mocks

import (
	"crypto"

	"github.com/stretchr/testify/mock"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// SecureElement is a testify mock of backend.SecureElement used for fault
// injection in keystore, keychain and bridge tests.
type SecureElement struct {
	mock.Mock
}

var _ backend.SecureElement = (*SecureElement)(nil)

func (m *SecureElement) Type() types.BackendType {
	args := m.Called()
	return args.Get(0).(types.BackendType)
}

func (m *SecureElement) Available() bool {
	return m.Called().Bool(0)
}

func (m *SecureElement) GenerateKeyPair(params *types.KeyParams, policy *types.AccessPolicy) (*types.KeyPair, error) {
	args := m.Called(params, policy)
	kp, _ := args.Get(0).(*types.KeyPair)
	return kp, args.Error(1)
}

func (m *SecureElement) LoadPrivateKey(keyType types.KeyType, reference []byte) (types.PrivateKeyHandle, error) {
	args := m.Called(keyType, reference)
	h, _ := args.Get(0).(types.PrivateKeyHandle)
	return h, args.Error(1)
}

func (m *SecureElement) PublicKey(priv types.PrivateKeyHandle) (types.PublicKeyHandle, error) {
	args := m.Called(priv)
	h, _ := args.Get(0).(types.PublicKeyHandle)
	return h, args.Error(1)
}

func (m *SecureElement) Supports(handle types.KeyHandle, op types.Operation, alg types.Algorithm) bool {
	return m.Called(handle, op, alg).Bool(0)
}

func (m *SecureElement) Encrypt(pub types.PublicKeyHandle, alg types.Algorithm, plaintext []byte) ([]byte, error) {
	args := m.Called(pub, alg, plaintext)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *SecureElement) Decrypt(priv types.PrivateKeyHandle, alg types.Algorithm, ciphertext []byte) ([]byte, error) {
	args := m.Called(priv, alg, ciphertext)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *SecureElement) Sign(priv types.PrivateKeyHandle, alg types.Algorithm, message []byte) ([]byte, error) {
	args := m.Called(priv, alg, message)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

func (m *SecureElement) Verify(pub types.PublicKeyHandle, alg types.Algorithm, message, signature []byte) (bool, error) {
	args := m.Called(pub, alg, message, signature)
	return args.Bool(0), args.Error(1)
}

func (m *SecureElement) DestroyKey(priv types.PrivateKeyHandle) error {
	return m.Called(priv).Error(0)
}

func (m *SecureElement) Close() error {
	return m.Called().Error(0)
}

// PrivateKey is a private handle for mocked elements.
type PrivateKey struct {
	backend.OpaqueHandle
	Ref []byte
}

// NewPrivateKey returns a private handle whose public half is pub.
func NewPrivateKey(keyType types.KeyType, pub crypto.PublicKey, ref []byte) (*PrivateKey, error) {
	h, err := backend.NewOpaqueHandle(keyType, pub)
	if err != nil {
		return nil, err
	}
	return &PrivateKey{OpaqueHandle: h, Ref: ref}, nil
}

// Reference returns the configured reference.
func (k *PrivateKey) Reference() []byte {
	return k.Ref
}
