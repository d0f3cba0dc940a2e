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


package tpm2

import (
	"testing"

	"github.com/google/go-tpm/tpm2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, (*Config)(nil).Validate(), ErrInvalidConfig)

	config := &Config{}
	require.NoError(t, config.Validate())
	assert.Equal(t, DefaultDevice, config.Device)
	assert.Equal(t, "TPM2 Config{Device: /dev/tpmrm0}", config.String())

	sim := &Config{UseSimulator: true}
	require.NoError(t, sim.Validate())
	assert.Empty(t, sim.Device)
	assert.Equal(t, "TPM2 Config{Simulator: true}", sim.String())
}

func TestKeyTemplate(t *testing.T) {
	rsaTmpl, err := keyTemplate(&types.KeyParams{KeyType: types.KeyTypeRSA, KeySize: 2048})
	require.NoError(t, err)
	assert.Equal(t, tpm2.TPMAlgRSA, rsaTmpl.Type)
	assert.True(t, rsaTmpl.ObjectAttributes.FixedTPM)
	assert.True(t, rsaTmpl.ObjectAttributes.FixedParent)
	assert.True(t, rsaTmpl.ObjectAttributes.Decrypt)
	assert.True(t, rsaTmpl.ObjectAttributes.SignEncrypt)
	assert.False(t, rsaTmpl.ObjectAttributes.Restricted)
	detail, err := rsaTmpl.Parameters.RSADetail()
	require.NoError(t, err)
	assert.Equal(t, tpm2.TPMKeyBits(2048), detail.KeyBits)

	eccTmpl, err := keyTemplate(&types.KeyParams{KeyType: types.KeyTypeECDSA, KeySize: 384})
	require.NoError(t, err)
	assert.Equal(t, tpm2.TPMAlgECC, eccTmpl.Type)
	assert.False(t, eccTmpl.ObjectAttributes.Decrypt)
	eccDetail, err := eccTmpl.Parameters.ECCDetail()
	require.NoError(t, err)
	assert.Equal(t, tpm2.TPMECCNistP384, eccDetail.CurveID)

	_, err = keyTemplate(&types.KeyParams{KeyType: types.KeyTypeECDSA, KeySize: 192})
	assert.ErrorIs(t, err, ErrUnsupportedCurve)
}

func TestUsageAllowed(t *testing.T) {
	rsaTmpl, err := keyTemplate(&types.KeyParams{KeyType: types.KeyTypeRSA, KeySize: 2048})
	require.NoError(t, err)
	for _, op := range types.Operations {
		assert.True(t, usageAllowed(&rsaTmpl, op), op.String())
	}

	eccTmpl, err := keyTemplate(&types.KeyParams{KeyType: types.KeyTypeECDSA, KeySize: 256})
	require.NoError(t, err)
	assert.False(t, usageAllowed(&eccTmpl, types.OperationDecrypt))
	assert.True(t, usageAllowed(&eccTmpl, types.OperationSign))

	eccTmpl.ObjectAttributes.Restricted = true
	assert.False(t, usageAllowed(&eccTmpl, types.OperationSign))
}

func TestHashAlgID(t *testing.T) {
	id, err := hashAlgID(types.HashSHA256)
	require.NoError(t, err)
	assert.Equal(t, tpm2.TPMAlgSHA256, id)

	_, err = hashAlgID(types.HashSHA224)
	assert.ErrorIs(t, err, ErrUnsupportedHash)
}

func TestSchemeAlgID(t *testing.T) {
	tests := []struct {
		alg    types.Algorithm
		scheme tpm2.TPMAlgID
	}{
		{types.AlgorithmRSAEncryptionOAEPSHA256, tpm2.TPMAlgOAEP},
		{types.AlgorithmRSASignatureMessagePSSSHA256, tpm2.TPMAlgRSAPSS},
		{types.AlgorithmECDSASignatureMessageX962SHA384, tpm2.TPMAlgECDSA},
	}
	for _, tt := range tests {
		scheme, ok := schemeAlgID(tt.alg)
		assert.True(t, ok)
		assert.Equal(t, tt.scheme, scheme)
	}
	_, ok := schemeAlgID(types.Algorithm("bogus"))
	assert.False(t, ok)
}

func TestReference(t *testing.T) {
	tmpl, err := keyTemplate(&types.KeyParams{KeyType: types.KeyTypeECDSA, KeySize: 256})
	require.NoError(t, err)
	public := tpm2.New2B(tmpl)
	private := tpm2.TPM2BPrivate{Buffer: []byte{1, 2, 3}}

	data, err := encodeReference(types.KeyTypeECDSA, public, private)
	require.NoError(t, err)

	ref, err := decodeReference(data)
	require.NoError(t, err)
	assert.Equal(t, types.KeyTypeECDSA, ref.KeyType)
	assert.Equal(t, []byte{1, 2, 3}, ref.Private)
	assert.Equal(t, public.Bytes(), ref.Public)

	_, err = decodeReference([]byte("not cbor"))
	assert.ErrorIs(t, err, backend.ErrInvalidReference)

	empty, err := encodeReference(types.KeyTypeECDSA, public, tpm2.TPM2BPrivate{})
	require.NoError(t, err)
	_, err = decodeReference(empty)
	assert.ErrorIs(t, err, backend.ErrInvalidReference)
}
