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


// Package storagetest runs a conformance suite against storage.Backend
// implementations.
package storagetest

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-enclave/pkg/storage"
)

// Factory returns a fresh, empty backend.
type Factory func(t *testing.T) storage.Backend

// Run exercises every storage.Backend operation.
func Run(t *testing.T, newBackend Factory) {
	t.Run("PutGet", func(t *testing.T) { testPutGet(t, newBackend(t)) })
	t.Run("Create", func(t *testing.T) { testCreate(t, newBackend(t)) })
	t.Run("ConcurrentCreate", func(t *testing.T) { testConcurrentCreate(t, newBackend(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, newBackend(t)) })
	t.Run("List", func(t *testing.T) { testList(t, newBackend(t)) })
	t.Run("Records", func(t *testing.T) { testRecords(t, newBackend(t)) })
	t.Run("DefensiveCopy", func(t *testing.T) { testDefensiveCopy(t, newBackend(t)) })
	t.Run("Closed", func(t *testing.T) { testClosed(t, newBackend(t)) })
}

func testPutGet(t *testing.T, b storage.Backend) {
	defer b.Close()

	tests := []struct {
		name  string
		key   string
		value []byte
	}{
		{"simple", "test-key", []byte("test-value")},
		{"empty value", "empty", []byte{}},
		{"binary", "binary", []byte{0x00, 0x01, 0x02, 0xFF}},
		{"nested", "records/RSA/abc", []byte("nested")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, b.Put(tt.key, tt.value, nil))
			got, err := b.Get(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}

	require.NoError(t, b.Put("test-key", []byte("overwritten"), nil))
	got, err := b.Get("test-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("overwritten"), got)

	_, err = b.Get("missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Error(t, b.Put("", []byte("x"), nil))
}

func testCreate(t *testing.T, b storage.Backend) {
	defer b.Close()

	require.NoError(t, b.Create("records/ECDSA/a", []byte("first"), nil))
	err := b.Create("records/ECDSA/a", []byte("second"), nil)
	assert.ErrorIs(t, err, storage.ErrAlreadyExists)

	got, err := b.Get("records/ECDSA/a")
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), got, "losing Create must not overwrite")

	require.NoError(t, b.Create("records/RSA/a", []byte("other kind"), storage.DefaultOptions()))
	assert.Error(t, b.Create("", []byte("x"), nil))
}

func testConcurrentCreate(t *testing.T, b storage.Backend) {
	defer b.Close()

	const workers = 16
	var (
		wg      sync.WaitGroup
		won     atomic.Int32
		lost    atomic.Int32
		unknown atomic.Value
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := b.Create("records/RSA/contended", []byte(fmt.Sprintf("writer-%d", i)), nil)
			switch {
			case err == nil:
				won.Add(1)
			case errors.Is(err, storage.ErrAlreadyExists):
				lost.Add(1)
			default:
				unknown.Store(err)
			}
		}(i)
	}
	wg.Wait()

	assert.Nil(t, unknown.Load())
	assert.Equal(t, int32(1), won.Load())
	assert.Equal(t, int32(workers-1), lost.Load())
}

func testDelete(t *testing.T, b storage.Backend) {
	defer b.Close()

	require.NoError(t, b.Put("k", []byte("v"), nil))
	require.NoError(t, b.Delete("k"))

	exists, err := b.Exists("k")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.ErrorIs(t, b.Delete("k"), storage.ErrNotFound)

	require.NoError(t, b.Create("k", []byte("again"), nil))
}

func testList(t *testing.T, b storage.Backend) {
	defer b.Close()

	for _, k := range []string{"records/RSA/b", "records/RSA/a", "records/ECDSA/c", "other"} {
		require.NoError(t, b.Put(k, []byte(k), nil))
	}

	keys, err := b.List("records/RSA/")
	require.NoError(t, err)
	assert.Equal(t, []string{"records/RSA/a", "records/RSA/b"}, keys)

	all, err := b.List("")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := b.List("nothing/")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRecords(t *testing.T, b storage.Backend) {
	defer b.Close()

	for _, id := range []string{"test-ec-1", "../escape", "a/b"} {
		key, err := storage.RecordKey("ECDSA", id)
		require.NoError(t, err)
		require.NoError(t, b.Create(key, []byte(id), nil))
	}
	key, err := storage.RecordKey("RSA", "test-rsa-1")
	require.NoError(t, err)
	require.NoError(t, b.Create(key, []byte("rsa"), nil))

	ids, err := storage.ListRecords(b, "ECDSA")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"test-ec-1", "../escape", "a/b"}, ids)
}

func testDefensiveCopy(t *testing.T, b storage.Backend) {
	defer b.Close()

	value := []byte("original")
	require.NoError(t, b.Put("k", value, nil))
	value[0] = 'X'

	got, err := b.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := b.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func testClosed(t *testing.T, b storage.Backend) {
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.Get("k")
	assert.ErrorIs(t, err, storage.ErrClosed)
	assert.ErrorIs(t, b.Put("k", nil, nil), storage.ErrClosed)
	assert.ErrorIs(t, b.Create("k", nil, nil), storage.ErrClosed)
	assert.ErrorIs(t, b.Delete("k"), storage.ErrClosed)
	_, err = b.List("")
	assert.ErrorIs(t, err, storage.ErrClosed)
	_, err = b.Exists("k")
	assert.ErrorIs(t, err, storage.ErrClosed)
}
