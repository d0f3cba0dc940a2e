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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackendType(t *testing.T) {
	assert.True(t, BackendTypeSoftware.IsValid())
	assert.True(t, BackendTypePKCS11.IsValid())
	assert.True(t, BackendTypeTPM2.IsValid())
	assert.False(t, BackendType("keychain").IsValid())
	assert.Equal(t, BackendTypeTPM2, ParseBackendType(" TPM2 "))
}

func TestKeyParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  *KeyParams
		wantErr bool
	}{
		{"RSA 2048", &KeyParams{KeyType: KeyTypeRSA, KeySize: 2048}, false},
		{"RSA 4096", &KeyParams{KeyType: KeyTypeRSA, KeySize: 4096}, false},
		{"RSA 1024", &KeyParams{KeyType: KeyTypeRSA, KeySize: 1024}, true},
		{"ECDSA 521", &KeyParams{KeyType: KeyTypeECDSA, KeySize: 521}, false},
		{"ECDSA 512", &KeyParams{KeyType: KeyTypeECDSA, KeySize: 512}, true},
		{"invalid type", &KeyParams{KeyType: KeyType(9), KeySize: 256}, true},
		{"nil", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestKeyParams_Curve(t *testing.T) {
	p := &KeyParams{KeyType: KeyTypeECDSA, KeySize: 384}
	curve, err := p.Curve()
	require.NoError(t, err)
	assert.Equal(t, elliptic.P384(), curve)

	_, err = (&KeyParams{KeyType: KeyTypeRSA, KeySize: 2048}).Curve()
	assert.Error(t, err)
	assert.Equal(t, "ECDSA;384", p.String())
}

func TestHash(t *testing.T) {
	for _, h := range Hashes {
		digest, err := h.Digest([]byte("hello"))
		require.NoError(t, err)
		assert.Len(t, digest, h.Size(), h.String())
	}
	_, err := Hash(0).Digest([]byte("hello"))
	assert.Error(t, err)
}

func TestOperation_UsesPrivateKey(t *testing.T) {
	assert.True(t, OperationSign.UsesPrivateKey())
	assert.True(t, OperationDecrypt.UsesPrivateKey())
	assert.False(t, OperationEncrypt.UsesPrivateKey())
	assert.False(t, OperationVerify.UsesPrivateKey())
}

func TestAccessPolicy(t *testing.T) {
	policy, err := NewAccessPolicy(AccessWhenUnlocked(), AccessNonExportable())
	require.NoError(t, err)
	assert.True(t, policy.WhenUnlocked)
	assert.False(t, policy.ThisDeviceOnly)
	assert.Equal(t, "AccessPolicy{when-unlocked,non-exportable}", policy.String())

	_, err = NewAccessPolicy(AccessThisDeviceOnly())
	assert.Error(t, err, "exportable policies are rejected")

	assert.NoError(t, DefaultAccessPolicy().Validate())
}

func TestFingerprint(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	fp1, err := Fingerprint(&key.PublicKey)
	require.NoError(t, err)
	fp2, err := Fingerprint(key.Public())
	require.NoError(t, err)
	assert.Len(t, fp1, 64)
	assert.Equal(t, fp1, fp2)

	_, err = Fingerprint("not a key")
	assert.Error(t, err)
}
