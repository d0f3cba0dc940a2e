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
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

func testMasterSecret() []byte {
	return bytes.Repeat([]byte{0x42}, MinMasterSecretSize)
}

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend(&Config{
		MasterSecret: testMasterSecret(),
		ElementID:    "test",
		Logger:       logging.Discard(),
	})
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

func TestConfig_Validate(t *testing.T) {
	assert.Error(t, (*Config)(nil).Validate())
	assert.NoError(t, (&Config{}).Validate())
	assert.Error(t, (&Config{MasterSecret: []byte("short")}).Validate())

	secret, err := ParseMasterSecret("00112233")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x11, 0x22, 0x33}, secret)
	_, err = ParseMasterSecret("zz")
	assert.Error(t, err)
}

func TestGenerateKeyPair(t *testing.T) {
	b := newTestBackend(t)

	tests := []struct {
		keyType types.KeyType
		size    int
	}{
		{types.KeyTypeRSA, 2048},
		{types.KeyTypeECDSA, 256},
		{types.KeyTypeECDSA, 384},
		{types.KeyTypeECDSA, 521},
	}
	for _, tt := range tests {
		kp := generate(t, b, tt.keyType, tt.size)
		assert.Equal(t, tt.keyType, kp.Private.KeyType())
		assert.Equal(t, tt.size, kp.Private.KeySize())
		assert.Equal(t, kp.Public.Fingerprint(), kp.Private.Fingerprint())
		assert.NotEmpty(t, kp.Private.Reference())
	}

	_, err := b.GenerateKeyPair(&types.KeyParams{KeyType: types.KeyTypeRSA, KeySize: 1024}, types.DefaultAccessPolicy())
	assert.ErrorIs(t, err, backend.ErrInvalidKeyParams)

	_, err = b.GenerateKeyPair(&types.KeyParams{KeyType: types.KeyTypeECDSA, KeySize: 256}, &types.AccessPolicy{})
	assert.ErrorIs(t, err, backend.ErrInvalidAccessPolicy)
}

func TestPrivateHandleNotExportable(t *testing.T) {
	b := newTestBackend(t)
	kp := generate(t, b, types.KeyTypeECDSA, 256)

	_, err := json.Marshal(kp.Private)
	assert.ErrorIs(t, err, backend.ErrKeyNotExportable)

	_, err = json.Marshal(kp)
	assert.Error(t, err)

	pubJSON, err := json.Marshal(kp.Public.Fingerprint())
	require.NoError(t, err)
	assert.NotEmpty(t, pubJSON)
}

func TestLoadPrivateKey(t *testing.T) {
	b := newTestBackend(t)
	kp := generate(t, b, types.KeyTypeECDSA, 256)

	loaded, err := b.LoadPrivateKey(types.KeyTypeECDSA, kp.Private.Reference())
	require.NoError(t, err)
	assert.Equal(t, kp.Private.Fingerprint(), loaded.Fingerprint())

	_, err = b.LoadPrivateKey(types.KeyTypeRSA, kp.Private.Reference())
	assert.ErrorIs(t, err, backend.ErrKeyTypeMismatch)

	_, err = b.LoadPrivateKey(types.KeyTypeECDSA, []byte("garbage"))
	assert.ErrorIs(t, err, backend.ErrInvalidReference)
}

func TestLoadPrivateKey_OtherElement(t *testing.T) {
	b := newTestBackend(t)
	kp := generate(t, b, types.KeyTypeECDSA, 256)

	other, err := NewBackend(&Config{
		MasterSecret: bytes.Repeat([]byte{0x07}, MinMasterSecretSize),
		ElementID:    "test",
		Logger:       logging.Discard(),
	})
	require.NoError(t, err)
	defer func() { _ = other.Close() }()

	_, err = other.LoadPrivateKey(types.KeyTypeECDSA, kp.Private.Reference())
	assert.ErrorIs(t, err, backend.ErrInvalidReference)

	// Same secret, different element ID.
	moved, err := NewBackend(&Config{
		MasterSecret: testMasterSecret(),
		ElementID:    "elsewhere",
		Logger:       logging.Discard(),
	})
	require.NoError(t, err)
	defer func() { _ = moved.Close() }()

	_, err = moved.LoadPrivateKey(types.KeyTypeECDSA, kp.Private.Reference())
	assert.ErrorIs(t, err, backend.ErrInvalidReference)
}

func TestLoadPrivateKey_SurvivesRestart(t *testing.T) {
	b := newTestBackend(t)
	kp := generate(t, b, types.KeyTypeRSA, 2048)
	ref := kp.Private.Reference()
	require.NoError(t, b.Close())

	reopened := newTestBackend(t)
	loaded, err := reopened.LoadPrivateKey(types.KeyTypeRSA, ref)
	require.NoError(t, err)
	assert.Equal(t, kp.Public.Fingerprint(), loaded.Fingerprint())
}

func TestEncryptDecrypt(t *testing.T) {
	b := newTestBackend(t)
	kp := generate(t, b, types.KeyTypeRSA, 2048)

	for _, h := range types.Hashes {
		alg, ok := types.AlgorithmFor(types.KeyTypeRSA, types.OperationEncrypt, h)
		require.True(t, ok)

		t.Run(alg.String(), func(t *testing.T) {
			require.True(t, b.Supports(kp.Public, types.OperationEncrypt, alg))
			require.True(t, b.Supports(kp.Private, types.OperationDecrypt, alg))

			ct, err := b.Encrypt(kp.Public, alg, []byte("secret"))
			require.NoError(t, err)

			pt, err := b.Decrypt(kp.Private, alg, ct)
			require.NoError(t, err)
			assert.Equal(t, []byte("secret"), pt)
		})
	}
}

func TestDecrypt_HashMismatchFails(t *testing.T) {
	b := newTestBackend(t)
	kp := generate(t, b, types.KeyTypeRSA, 2048)

	ct, err := b.Encrypt(kp.Public, types.AlgorithmRSAEncryptionOAEPSHA256, []byte("secret"))
	require.NoError(t, err)

	_, err = b.Decrypt(kp.Private, types.AlgorithmRSAEncryptionOAEPSHA1, ct)
	assert.Error(t, err)
}

func TestSignVerify(t *testing.T) {
	b := newTestBackend(t)

	for _, kt := range []types.KeyType{types.KeyTypeRSA, types.KeyTypeECDSA} {
		size := 2048
		if kt == types.KeyTypeECDSA {
			size = 256
		}
		kp := generate(t, b, kt, size)

		for _, h := range []types.Hash{types.HashSHA224, types.HashSHA256, types.HashSHA384} {
			alg, ok := types.AlgorithmFor(kt, types.OperationSign, h)
			require.True(t, ok)

			t.Run(alg.String(), func(t *testing.T) {
				sig, err := b.Sign(kp.Private, alg, []byte("hello"))
				require.NoError(t, err)

				valid, err := b.Verify(kp.Public, alg, []byte("hello"), sig)
				require.NoError(t, err)
				assert.True(t, valid)

				valid, err = b.Verify(kp.Public, alg, []byte("hellp"), sig)
				require.NoError(t, err)
				assert.False(t, valid)

				tampered := append([]byte(nil), sig...)
				tampered[len(tampered)/2] ^= 0x01
				valid, err = b.Verify(kp.Public, alg, []byte("hello"), tampered)
				require.NoError(t, err)
				assert.False(t, valid)
			})
		}
	}
}

func TestSupports(t *testing.T) {
	b := newTestBackend(t)
	ec := generate(t, b, types.KeyTypeECDSA, 256)

	assert.True(t, b.Supports(ec.Private, types.OperationSign, types.AlgorithmECDSASignatureMessageX962SHA256))
	assert.False(t, b.Supports(ec.Public, types.OperationSign, types.AlgorithmECDSASignatureMessageX962SHA256))
	assert.False(t, b.Supports(ec.Public, types.OperationEncrypt, types.AlgorithmRSAEncryptionOAEPSHA256))
	assert.False(t, b.Supports(ec.Private, types.OperationSign, types.AlgorithmRSASignatureMessagePSSSHA256))

	other := newTestBackend(t)
	assert.False(t, other.Supports(ec.Private, types.OperationSign, types.AlgorithmECDSASignatureMessageX962SHA256))
	_, err := other.Sign(ec.Private, types.AlgorithmECDSASignatureMessageX962SHA256, []byte("x"))
	assert.ErrorIs(t, err, backend.ErrInvalidHandle)
}

func TestDestroyKey(t *testing.T) {
	b := newTestBackend(t)
	kp := generate(t, b, types.KeyTypeECDSA, 256)

	require.NoError(t, b.DestroyKey(kp.Private))

	_, err := b.LoadPrivateKey(types.KeyTypeECDSA, kp.Private.Reference())
	assert.ErrorIs(t, err, backend.ErrKeyNotFound)
	_, err = b.Sign(kp.Private, types.AlgorithmECDSASignatureMessageX962SHA256, []byte("x"))
	assert.ErrorIs(t, err, backend.ErrKeyNotFound)
}

func TestClose(t *testing.T) {
	b := newTestBackend(t)
	kp := generate(t, b, types.KeyTypeECDSA, 256)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
	assert.False(t, b.Available())

	_, err := b.Sign(kp.Private, types.AlgorithmECDSASignatureMessageX962SHA256, []byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.GenerateKeyPair(&types.KeyParams{KeyType: types.KeyTypeECDSA, KeySize: 256}, types.DefaultAccessPolicy())
	assert.ErrorIs(t, err, ErrClosed)
}
