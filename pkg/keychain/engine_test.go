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

package keychain

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/backend/mocks"
	"github.com/jeremyhahn/go-enclave/pkg/backend/software"
	"github.com/jeremyhahn/go-enclave/pkg/correlation"
	"github.com/jeremyhahn/go-enclave/pkg/credstore"
	"github.com/jeremyhahn/go-enclave/pkg/keystore"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/metrics"
	"github.com/jeremyhahn/go-enclave/pkg/storage/memory"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

func newEngine(t *testing.T, se backend.SecureElement, reg prometheus.Registerer) *Engine {
	t.Helper()
	keys, err := keystore.New(&keystore.Config{
		SecureElement: se,
		Credentials:   credstore.New(memory.New(), logging.Discard()),
		Availability:  backend.Probe(se),
		Logger:        logging.Discard(),
	})
	require.NoError(t, err)

	var m *metrics.Metrics
	if reg != nil {
		m = metrics.New(reg)
	}
	engine, err := New(&Config{KeyStore: keys, Metrics: m, Logger: logging.Discard()})
	require.NoError(t, err)
	return engine
}

func newSoftwareEngine(t *testing.T) *Engine {
	t.Helper()
	se, err := software.NewBackend(&software.Config{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = se.Close() })
	return newEngine(t, se, nil)
}

// newMockEngine returns an engine over a mock element holding one ECDSA
// key stored under "mock-ec".
func newMockEngine(t *testing.T) (*Engine, *mocks.SecureElement, *types.KeyPair) {
	t.Helper()
	se := new(mocks.SecureElement)
	se.On("Type").Return(types.BackendTypeSoftware).Maybe()
	se.On("Available").Return(true).Maybe()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	priv, err := mocks.NewPrivateKey(types.KeyTypeECDSA, key.Public(), []byte("ref"))
	require.NoError(t, err)
	pub, err := backend.NewPublicHandle(types.KeyTypeECDSA, key.Public())
	require.NoError(t, err)
	pair := &types.KeyPair{Public: pub, Private: priv}

	se.On("GenerateKeyPair", mock.Anything, mock.Anything).Return(pair, nil).Once()
	se.On("LoadPrivateKey", types.KeyTypeECDSA, []byte("ref")).Return(priv, nil).Maybe()
	se.On("PublicKey", priv).Return(pub, nil).Maybe()

	engine := newEngine(t, se, nil)
	_, err = engine.CreateKey(context.Background(), "mock-ec", "ECDSA;256")
	require.NoError(t, err)
	return engine, se, pair
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(&Config{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestEngine_ECDSASignVerify(t *testing.T) {
	engine := newSoftwareEngine(t)
	ctx := context.Background()

	fingerprint, err := engine.CreateKey(ctx, "test-ec-1", "ECDSA;256")
	require.NoError(t, err)
	assert.Len(t, fingerprint, 64)

	sig, err := engine.Sign(ctx, "test-ec-1", []byte("hello"), "ECDSA", "SHA256")
	require.NoError(t, err)
	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	_, _, err = backend.ParseECDSASignature(raw)
	require.NoError(t, err, "signature must be DER")

	ok, err := engine.Verify(ctx, "test-ec-1", []byte("hello"), sig, "ECDSA", "SHA256")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = engine.Verify(ctx, "test-ec-1", []byte("hellp"), sig, "ECDSA", "SHA256")
	require.NoError(t, err)
	assert.False(t, ok)

	// Signed with SHA256, verified with SHA384.
	ok, err = engine.Verify(ctx, "test-ec-1", []byte("hello"), sig, "ECDSA", "SHA384")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_RSAEncryptDecrypt(t *testing.T) {
	engine := newSoftwareEngine(t)
	ctx := context.Background()

	_, err := engine.CreateKey(ctx, "test-rsa-1", "RSA;2048")
	require.NoError(t, err)

	for _, hash := range []string{"SHA1", "SHA224", "SHA256", "SHA384"} {
		t.Run(hash, func(t *testing.T) {
			ct, err := engine.Encrypt(ctx, "test-rsa-1", []byte("secret"), "RSA", hash)
			require.NoError(t, err)

			pt, err := engine.Decrypt(ctx, "test-rsa-1", ct, "RSA", hash)
			require.NoError(t, err)
			assert.Equal(t, []byte("secret"), pt)
		})
	}

	ct, err := engine.Encrypt(ctx, "test-rsa-1", []byte("secret"), "RSA", "SHA256")
	require.NoError(t, err)
	_, err = engine.Decrypt(ctx, "test-rsa-1", ct, "RSA", "SHA1")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindDecryptionError))
}

func TestEngine_RSASignTampered(t *testing.T) {
	engine := newSoftwareEngine(t)
	ctx := context.Background()

	_, err := engine.CreateKey(ctx, "test-rsa-1", "RSA;2048")
	require.NoError(t, err)

	sig, err := engine.Sign(ctx, "test-rsa-1", []byte("payload"), "RSA", "SHA256")
	require.NoError(t, err)

	ok, err := engine.Verify(ctx, "test-rsa-1", []byte("payload"), sig, "RSA", "SHA256")
	require.NoError(t, err)
	assert.True(t, ok)

	raw, err := base64.StdEncoding.DecodeString(sig)
	require.NoError(t, err)
	raw[len(raw)/2] ^= 0x01
	ok, err = engine.Verify(ctx, "test-rsa-1", []byte("payload"), base64.StdEncoding.EncodeToString(raw), "RSA", "SHA256")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEngine_Resolution(t *testing.T) {
	engine := newSoftwareEngine(t)
	ctx := context.Background()
	_, err := engine.CreateKey(ctx, "test-ec-1", "ECDSA;256")
	require.NoError(t, err)

	_, err = engine.Sign(ctx, "test-ec-1", []byte("x"), "DSA", "SHA256")
	assert.True(t, types.IsKind(err, types.KindUnsupportedKeyType))

	_, err = engine.Sign(ctx, "test-ec-1", []byte("x"), "ECDSA", "MD5")
	assert.True(t, types.IsKind(err, types.KindUnsupportedAlgorithmOrHash))

	_, err = engine.Sign(ctx, "test-ec-1", []byte("x"), "ECDSA", "SHA1")
	assert.True(t, types.IsKind(err, types.KindUnsupportedAlgorithmOrHash))

	_, err = engine.Encrypt(ctx, "test-ec-1", []byte("x"), "ECDSA", "SHA256")
	assert.True(t, types.IsKind(err, types.KindUnsupportedAlgorithmOrHash))
}

func TestEngine_KeyTypeIsPartOfIdentity(t *testing.T) {
	engine := newSoftwareEngine(t)
	ctx := context.Background()
	_, err := engine.CreateKey(ctx, "shared", "ECDSA;256")
	require.NoError(t, err)

	_, err = engine.Sign(ctx, "shared", []byte("x"), "RSA", "SHA256")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindLoadKeyError))
	assert.Contains(t, err.Error(), "could not be found")
}

func TestEngine_UnknownKey(t *testing.T) {
	engine := newSoftwareEngine(t)
	ctx := context.Background()

	_, err := engine.LoadKey(ctx, "missing", "ECDSA", "SHA256")
	assert.True(t, types.IsKind(err, types.KindLoadKeyError))
	assert.Contains(t, err.Error(), "could not be found")

	_, err = engine.Sign(ctx, "missing", []byte("x"), "ECDSA", "SHA256")
	assert.True(t, types.IsKind(err, types.KindLoadKeyError))
}

func TestEngine_LoadKey(t *testing.T) {
	engine := newSoftwareEngine(t)
	ctx := context.Background()
	fingerprint, err := engine.CreateKey(ctx, "test-ec-1", "ECDSA;256")
	require.NoError(t, err)

	got, err := engine.LoadKey(ctx, "test-ec-1", "ECDSA", "SHA256")
	require.NoError(t, err)
	assert.Equal(t, fingerprint, got)

	_, err = engine.LoadKey(ctx, "test-ec-1", "ECDSA", "SHA512")
	assert.True(t, types.IsKind(err, types.KindUnsupportedAlgorithmOrHash))
}

func TestEngine_CreateKeyInvalidSpec(t *testing.T) {
	engine := newSoftwareEngine(t)
	ctx := context.Background()

	for _, spec := range []string{"", "ECDSA", "ECDSA;abc", "ECDSA;255", "RSA;1024"} {
		_, err := engine.CreateKey(ctx, "k", spec)
		assert.True(t, types.IsKind(err, types.KindCreateKeyError), spec)
	}
	_, err := engine.CreateKey(ctx, "k", "DSA;1024")
	assert.True(t, types.IsKind(err, types.KindUnsupportedKeyType))
}

func TestEngine_MalformedBase64(t *testing.T) {
	engine, se, _ := newMockEngine(t)
	ctx := context.Background()

	_, err := engine.Verify(ctx, "mock-ec", []byte("x"), "not base64!", "ECDSA", "SHA256")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSignatureVerificationError))
	assert.ErrorIs(t, err, ErrInvalidEncoding)

	se.AssertNotCalled(t, "LoadPrivateKey", mock.Anything, mock.Anything)
	se.AssertNotCalled(t, "Verify", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_MalformedCiphertext(t *testing.T) {
	engine := newSoftwareEngine(t)
	_, err := engine.Decrypt(context.Background(), "any", "%%%", "RSA", "SHA256")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindDecryptionError))
	assert.ErrorIs(t, err, ErrInvalidEncoding)
}

func TestEngine_CapabilityRefused(t *testing.T) {
	engine, se, pair := newMockEngine(t)
	se.On("Supports", pair.Private, types.OperationSign, types.AlgorithmECDSASignatureMessageX962SHA256).
		Return(false)

	_, err := engine.Sign(context.Background(), "mock-ec", []byte("x"), "ECDSA", "SHA256")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSigningError))
	assert.ErrorIs(t, err, backend.ErrOperationNotSupported)
	se.AssertNotCalled(t, "Sign", mock.Anything, mock.Anything, mock.Anything)
}

func TestEngine_CapabilityAskedWithPublicHandle(t *testing.T) {
	engine, se, pair := newMockEngine(t)
	alg := types.AlgorithmECDSASignatureMessageX962SHA256
	se.On("Supports", pair.Public, types.OperationVerify, alg).Return(true).Once()
	se.On("Verify", pair.Public, alg, []byte("x"), []byte{0x30}).Return(false, nil).Once()

	ok, err := engine.Verify(context.Background(), "mock-ec", []byte("x"),
		base64.StdEncoding.EncodeToString([]byte{0x30}), "ECDSA", "SHA256")
	require.NoError(t, err)
	assert.False(t, ok)
	se.AssertExpectations(t)
}

func TestEngine_ElementFault(t *testing.T) {
	engine, se, pair := newMockEngine(t)
	alg := types.AlgorithmECDSASignatureMessageX962SHA256
	fault := errors.New("element fault")
	se.On("Supports", pair.Private, types.OperationSign, alg).Return(true)
	se.On("Sign", pair.Private, alg, []byte("x")).Return(nil, fault)

	_, err := engine.Sign(context.Background(), "mock-ec", []byte("x"), "ECDSA", "SHA256")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSigningError))
	assert.ErrorIs(t, err, fault)
}

func TestEngine_PublicKeyFault(t *testing.T) {
	se := new(mocks.SecureElement)
	se.On("Type").Return(types.BackendTypeSoftware).Maybe()
	se.On("Available").Return(true).Maybe()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	priv, err := mocks.NewPrivateKey(types.KeyTypeECDSA, key.Public(), []byte("ref"))
	require.NoError(t, err)
	se.On("GenerateKeyPair", mock.Anything, mock.Anything).Return(&types.KeyPair{Private: priv}, nil)
	se.On("LoadPrivateKey", types.KeyTypeECDSA, []byte("ref")).Return(priv, nil)
	se.On("PublicKey", priv).Return(nil, backend.ErrInvalidHandle)

	engine := newEngine(t, se, nil)
	ctx := context.Background()
	_, err = engine.CreateKey(ctx, "k", "ECDSA;256")
	require.NoError(t, err)

	_, err = engine.Verify(ctx, "k", []byte("x"), "MA==", "ECDSA", "SHA256")
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindSignatureVerificationError))
	assert.ErrorIs(t, err, backend.ErrInvalidHandle)
}

func TestEngine_Metrics(t *testing.T) {
	se, err := software.NewBackend(&software.Config{Logger: logging.Discard()})
	require.NoError(t, err)
	defer se.Close()

	reg := prometheus.NewRegistry()
	engine := newEngine(t, se, reg)
	ctx := correlation.WithCorrelationID(context.Background(), "req-1")

	_, err = engine.CreateKey(ctx, "test-ec-1", "ECDSA;256")
	require.NoError(t, err)
	_, err = engine.Sign(ctx, "test-ec-1", []byte("x"), "ECDSA", "SHA256")
	require.NoError(t, err)
	_, err = engine.Sign(ctx, "missing", []byte("x"), "ECDSA", "SHA256")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(reg, "enclave_keys_created_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "enclave_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = testutil.GatherAndCount(reg, "enclave_operations_total")
	require.NoError(t, err)
	assert.Equal(t, 3, count, "create/success, sign/success and sign/error series")
}

func TestEngine_Concurrent(t *testing.T) {
	engine := newSoftwareEngine(t)
	ctx := context.Background()
	_, err := engine.CreateKey(ctx, "test-ec-1", "ECDSA;256")
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sig, err := engine.Sign(ctx, "test-ec-1", []byte("concurrent"), "ECDSA", "SHA256")
			if err != nil {
				errs <- err
				return
			}
			ok, err := engine.Verify(ctx, "test-ec-1", []byte("concurrent"), sig, "ECDSA", "SHA256")
			if err != nil {
				errs <- err
				return
			}
			if !ok {
				errs <- errors.New("signature did not verify")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
