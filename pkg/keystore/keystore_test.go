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


package keystore

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/backend/mocks"
	"github.com/jeremyhahn/go-enclave/pkg/backend/software"
	"github.com/jeremyhahn/go-enclave/pkg/credstore"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/storage/memory"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

var ecdsa256 = &types.KeyParams{KeyType: types.KeyTypeECDSA, KeySize: 256}

func newSoftwareStore(t *testing.T) *KeyStore {
	t.Helper()
	se, err := software.NewBackend(&software.Config{Logger: logging.Discard()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = se.Close() })

	ks, err := New(&Config{
		SecureElement: se,
		Credentials:   credstore.New(memory.New(), logging.Discard()),
		Availability:  backend.Probe(se),
		Logger:        logging.Discard(),
	})
	require.NoError(t, err)
	return ks
}

func newMockStore(t *testing.T, se *mocks.SecureElement, flags ...types.AccessFlag) *KeyStore {
	t.Helper()
	se.On("Type").Return(types.BackendTypeSoftware).Maybe()
	se.On("Available").Return(true).Maybe()
	ks, err := New(&Config{
		SecureElement: se,
		Credentials:   credstore.New(memory.New(), logging.Discard()),
		Availability:  backend.Probe(se),
		PolicyFlags:   flags,
		Logger:        logging.Discard(),
	})
	require.NoError(t, err)
	return ks
}

func mockPair(t *testing.T, ref string) *types.KeyPair {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	priv, err := mocks.NewPrivateKey(types.KeyTypeECDSA, key.Public(), []byte(ref))
	require.NoError(t, err)
	pub, err := backend.NewPublicHandle(types.KeyTypeECDSA, key.Public())
	require.NoError(t, err)
	return &types.KeyPair{Public: pub, Private: priv}
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	_, err = New(&Config{SecureElement: &mocks.SecureElement{}})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestCreateAndLoad(t *testing.T) {
	ks := newSoftwareStore(t)

	pair, err := ks.CreateAndStore("test-ec-1", ecdsa256)
	require.NoError(t, err)
	assert.Equal(t, pair.Public.Fingerprint(), pair.Private.Fingerprint())

	priv, err := ks.Load("test-ec-1", types.KeyTypeECDSA)
	require.NoError(t, err)
	assert.Equal(t, pair.Private.Fingerprint(), priv.Fingerprint())
}

func TestCreateAndStore_Duplicate(t *testing.T) {
	ks := newSoftwareStore(t)

	_, err := ks.CreateAndStore("dup", ecdsa256)
	require.NoError(t, err)

	_, err = ks.CreateAndStore("dup", ecdsa256)
	require.Error(t, err)
	assert.True(t, types.IsKind(err, types.KindCreateKeyError))
	assert.ErrorIs(t, err, credstore.ErrDuplicateRecord)
	assert.Contains(t, err.Error(), "could not be stored")

	// The same identifier under another key type is a different record.
	_, err = ks.CreateAndStore("dup", &types.KeyParams{KeyType: types.KeyTypeRSA, KeySize: 2048})
	assert.NoError(t, err)
}

func TestCreateAndStore_RollsBackOnPersistFailure(t *testing.T) {
	se := &mocks.SecureElement{}
	ks := newMockStore(t, se)

	first, second := mockPair(t, "first"), mockPair(t, "second")
	se.On("GenerateKeyPair", mock.Anything, mock.Anything).Return(first, nil).Once()
	se.On("GenerateKeyPair", mock.Anything, mock.Anything).Return(second, nil).Once()
	se.On("DestroyKey", second.Private).Return(nil).Once()

	_, err := ks.CreateAndStore("rollback", ecdsa256)
	require.NoError(t, err)
	_, err = ks.CreateAndStore("rollback", ecdsa256)
	assert.True(t, types.IsKind(err, types.KindCreateKeyError))

	se.AssertExpectations(t)
	se.AssertNotCalled(t, "DestroyKey", first.Private)
}

func TestCreateAndStore_GenerationFailure(t *testing.T) {
	se := &mocks.SecureElement{}
	ks := newMockStore(t, se)
	se.On("GenerateKeyPair", mock.Anything, mock.Anything).Return(nil, errors.New("token full"))

	_, err := ks.CreateAndStore("id", ecdsa256)
	assert.True(t, types.IsKind(err, types.KindCreateKeyError))
	assert.Contains(t, err.Error(), "token full")
}

func TestCreateAndStore_PolicyPassedToElement(t *testing.T) {
	se := &mocks.SecureElement{}
	ks := newMockStore(t, se)

	se.On("GenerateKeyPair",
		mock.MatchedBy(func(p *types.KeyParams) bool { return p.Identifier == "labelled" }),
		types.DefaultAccessPolicy(),
	).Return(mockPair(t, "ref"), nil).Once()

	_, err := ks.CreateAndStore("labelled", ecdsa256)
	require.NoError(t, err)
	se.AssertExpectations(t)
}

func TestCreateAndStore_AccessControlFailure(t *testing.T) {
	se := &mocks.SecureElement{}
	ks := newMockStore(t, se, types.AccessWhenUnlocked())

	_, err := ks.CreateAndStore("id", ecdsa256)
	assert.True(t, types.IsKind(err, types.KindCreateKeyError))
	assert.Contains(t, err.Error(), "access control could not be created")
	se.AssertNotCalled(t, "GenerateKeyPair", mock.Anything, mock.Anything)
}

func TestCreateAndStore_InvalidInput(t *testing.T) {
	ks := newSoftwareStore(t)

	tests := []struct {
		name   string
		id     string
		params *types.KeyParams
		kind   types.Kind
	}{
		{"empty identifier", "", ecdsa256, types.KindCreateKeyError},
		{"nil params", "id", nil, types.KindCreateKeyError},
		{"bad size", "id", &types.KeyParams{KeyType: types.KeyTypeECDSA, KeySize: 192}, types.KindCreateKeyError},
		{"bad type", "id", &types.KeyParams{KeyType: types.KeyType(9), KeySize: 256}, types.KindUnsupportedKeyType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ks.CreateAndStore(tt.id, tt.params)
			assert.Equal(t, tt.kind, types.KindOf(err))
		})
	}
}

func TestCreateAndStore_Unavailable(t *testing.T) {
	se, err := software.NewBackend(&software.Config{Logger: logging.Discard()})
	require.NoError(t, err)
	defer se.Close()

	ks, err := New(&Config{
		SecureElement: se,
		Credentials:   credstore.New(memory.New(), logging.Discard()),
		Logger:        logging.Discard(),
	})
	require.NoError(t, err)

	_, err = ks.CreateAndStore("id", ecdsa256)
	assert.True(t, types.IsKind(err, types.KindInitializationError))
	assert.ErrorIs(t, err, backend.ErrNotAvailable)

	mockSE := &mocks.SecureElement{}
	mockSE.On("Type").Return(types.BackendTypeTPM2)
	mockSE.On("Available").Return(false)
	ks, err = New(&Config{
		SecureElement: mockSE,
		Credentials:   credstore.New(memory.New(), logging.Discard()),
		Availability:  backend.Probe(mockSE),
	})
	require.NoError(t, err)
	_, err = ks.CreateAndStore("id", ecdsa256)
	assert.True(t, types.IsKind(err, types.KindInitializationError))
}

func TestCreateAndStore_Concurrent(t *testing.T) {
	ks := newSoftwareStore(t)

	const workers = 8
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = ks.CreateAndStore("race", ecdsa256)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Contains(t, err.Error(), "could not be stored")
	}
	assert.Equal(t, 1, ok)

	_, err := ks.Load("race", types.KeyTypeECDSA)
	assert.NoError(t, err)
}

func TestLoad_NotFound(t *testing.T) {
	ks := newSoftwareStore(t)

	_, err := ks.Load("never-created", types.KeyTypeECDSA)
	assert.True(t, types.IsKind(err, types.KindLoadKeyError))
	assert.Contains(t, err.Error(), "could not be found")

	_, err = ks.CreateAndStore("typed", ecdsa256)
	require.NoError(t, err)
	_, err = ks.Load("typed", types.KeyTypeRSA)
	assert.True(t, types.IsKind(err, types.KindLoadKeyError))
	assert.Contains(t, err.Error(), "could not be found")
}

func TestLoad_ElementFaults(t *testing.T) {
	se := &mocks.SecureElement{}
	ks := newMockStore(t, se)
	pair := mockPair(t, "ref")
	se.On("GenerateKeyPair", mock.Anything, mock.Anything).Return(pair, nil)

	_, err := ks.CreateAndStore("id", ecdsa256)
	require.NoError(t, err)

	se.On("LoadPrivateKey", types.KeyTypeECDSA, []byte("ref")).Return(nil, backend.ErrKeyNotFound).Once()
	_, err = ks.Load("id", types.KeyTypeECDSA)
	assert.Contains(t, err.Error(), "could not be found")

	se.On("LoadPrivateKey", types.KeyTypeECDSA, []byte("ref")).Return(mockPair(t, "ref").Private, nil).Once()
	_, err = ks.Load("id", types.KeyTypeECDSA)
	assert.True(t, types.IsKind(err, types.KindLoadKeyError))
	assert.Contains(t, err.Error(), "does not match its record")

	se.On("LoadPrivateKey", types.KeyTypeECDSA, []byte("ref")).Return(pair.Private, nil).Once()
	priv, err := ks.Load("id", types.KeyTypeECDSA)
	require.NoError(t, err)
	assert.Same(t, pair.Private, priv)
}
