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


//go:build tpm_simulator

package tpm2

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

func newSimulatorBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend(&Config{UseSimulator: true, Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func generate(t *testing.T, b *Backend, kt types.KeyType, size int) *types.KeyPair {
	t.Helper()
	kp, err := b.GenerateKeyPair(&types.KeyParams{KeyType: kt, KeySize: size}, types.DefaultAccessPolicy())
	require.NoError(t, err)
	return kp
}

func TestSimulator_GenerateAndLoad(t *testing.T) {
	b := newSimulatorBackend(t)
	assert.True(t, b.Available())
	assert.Equal(t, types.BackendTypeTPM2, b.Type())

	kp := generate(t, b, types.KeyTypeECDSA, 256)
	assert.Equal(t, kp.Public.Fingerprint(), kp.Private.Fingerprint())

	_, err := json.Marshal(kp.Private)
	assert.ErrorIs(t, err, backend.ErrKeyNotExportable)

	loaded, err := b.LoadPrivateKey(types.KeyTypeECDSA, kp.Private.Reference())
	require.NoError(t, err)
	assert.Equal(t, kp.Private.Fingerprint(), loaded.Fingerprint())

	_, err = b.LoadPrivateKey(types.KeyTypeRSA, kp.Private.Reference())
	assert.ErrorIs(t, err, backend.ErrKeyTypeMismatch)

	pub, err := b.PublicKey(loaded)
	require.NoError(t, err)
	assert.Equal(t, kp.Public.Fingerprint(), pub.Fingerprint())
}

func TestSimulator_SignVerifyECDSA(t *testing.T) {
	b := newSimulatorBackend(t)
	kp := generate(t, b, types.KeyTypeECDSA, 256)
	alg := types.AlgorithmECDSASignatureMessageX962SHA256

	require.True(t, b.Supports(kp.Private, types.OperationSign, alg))
	assert.False(t, b.Supports(kp.Private, types.OperationSign, types.AlgorithmECDSASignatureMessageX962SHA224))
	assert.False(t, b.Supports(kp.Private, types.OperationDecrypt, types.AlgorithmRSAEncryptionOAEPSHA256))

	sig, err := b.Sign(kp.Private, alg, []byte("hello"))
	require.NoError(t, err)
	_, _, err = backend.ParseECDSASignature(sig)
	require.NoError(t, err)

	ok, err := b.Verify(kp.Public, alg, []byte("hello"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Verify(kp.Public, alg, []byte("hellp"), sig)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = b.Verify(kp.Public, alg, []byte("hello"), []byte{0x30, 0x01})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSimulator_RSA(t *testing.T) {
	b := newSimulatorBackend(t)
	kp := generate(t, b, types.KeyTypeRSA, 2048)

	enc := types.AlgorithmRSAEncryptionOAEPSHA256
	require.True(t, b.Supports(kp.Public, types.OperationEncrypt, enc))
	ct, err := b.Encrypt(kp.Public, enc, []byte("secret"))
	require.NoError(t, err)
	pt, err := b.Decrypt(kp.Private, enc, ct)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret"), pt)

	_, err = b.Decrypt(kp.Private, types.AlgorithmRSAEncryptionOAEPSHA1, ct)
	assert.Error(t, err)

	sign := types.AlgorithmRSASignatureMessagePSSSHA256
	sig, err := b.Sign(kp.Private, sign, []byte("hello"))
	require.NoError(t, err)
	ok, err := b.Verify(kp.Public, sign, []byte("hello"), sig)
	require.NoError(t, err)
	assert.True(t, ok)

	sig[0] ^= 0xff
	ok, err = b.Verify(kp.Public, sign, []byte("hello"), sig)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSimulator_ForeignHandle(t *testing.T) {
	b := newSimulatorBackend(t)
	kp := generate(t, b, types.KeyTypeECDSA, 256)

	other, err := backend.NewPublicHandle(types.KeyTypeECDSA, kp.Public.Public())
	require.NoError(t, err)
	assert.False(t, b.Supports(other, types.OperationVerify, types.AlgorithmECDSASignatureMessageX962SHA256))
	_, err = b.Verify(other, types.AlgorithmECDSASignatureMessageX962SHA256, []byte("x"), []byte("y"))
	assert.ErrorIs(t, err, backend.ErrInvalidHandle)
}

func TestSimulator_DestroyAndClose(t *testing.T) {
	b := newSimulatorBackend(t)
	kp := generate(t, b, types.KeyTypeECDSA, 256)
	ref := kp.Private.Reference()

	require.NoError(t, b.DestroyKey(kp.Private))
	_, err := b.LoadPrivateKey(types.KeyTypeECDSA, ref)
	assert.ErrorIs(t, err, backend.ErrKeyNotFound)

	require.NoError(t, b.Close())
	assert.False(t, b.Available())
	_, err = b.GenerateKeyPair(&types.KeyParams{KeyType: types.KeyTypeECDSA, KeySize: 256}, types.DefaultAccessPolicy())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, b.Close())
}
