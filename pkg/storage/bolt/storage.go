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


// Package bolt provides a storage.Backend on a bbolt database file. Every
// call runs in its own bbolt transaction; Create checks and writes inside
// one update transaction, which bbolt serializes across goroutines and,
// through the file lock, across processes.
package bolt

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/jeremyhahn/go-enclave/pkg/storage"
)

const defaultTimeout = 5 * time.Second

var dataBucketName = []byte("enclave")

// Storage is a bbolt backed store.
type Storage struct {
	db     *bolt.DB
	mu     sync.RWMutex
	closed bool
}

// Options configures Open.
type Options struct {
	// Timeout bounds the wait for the database file lock.
	Timeout time.Duration

	// Mode is the file mode used when creating the database.
	Mode os.FileMode
}

// Open opens or creates the database at path.
func Open(path string, opts *Options) (storage.Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("bolt storage: path cannot be empty")
	}
	timeout, mode := defaultTimeout, os.FileMode(0600)
	if opts != nil {
		if opts.Timeout > 0 {
			timeout = opts.Timeout
		}
		if opts.Mode != 0 {
			mode = opts.Mode
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("bolt storage: failed to create directory: %w", err)
	}
	db, err := bolt.Open(path, mode, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt storage: failed to open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt storage: failed to create bucket: %w", err)
	}
	return &Storage{db: db}, nil
}

// Get returns a copy of the stored value.
func (s *Storage) Get(key string) ([]byte, error) {
	var value []byte
	err := s.view(func(b *bolt.Bucket) error {
		v, ok := get(b, key)
		if !ok {
			return storage.ErrNotFound
		}
		value = bytes.Clone(v)
		if value == nil {
			value = []byte{}
		}
		return nil
	})
	return value, err
}

// Put stores value, replacing any existing value.
func (s *Storage) Put(key string, value []byte, _ *storage.Options) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.update(func(b *bolt.Bucket) error {
		return b.Put([]byte(key), value)
	})
}

// Create stores value unless the key exists.
func (s *Storage) Create(key string, value []byte, _ *storage.Options) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return s.update(func(b *bolt.Bucket) error {
		if _, ok := get(b, key); ok {
			return storage.ErrAlreadyExists
		}
		return b.Put([]byte(key), value)
	})
}

// Delete removes the key. Returns storage.ErrNotFound if it is absent.
func (s *Storage) Delete(key string) error {
	return s.update(func(b *bolt.Bucket) error {
		if _, ok := get(b, key); !ok {
			return storage.ErrNotFound
		}
		return b.Delete([]byte(key))
	})
}

// List returns the keys with the given prefix. bbolt keeps keys in byte
// order, so the result is sorted.
func (s *Storage) List(prefix string) ([]string, error) {
	keys := make([]string, 0)
	err := s.view(func(b *bolt.Bucket) error {
		p := []byte(prefix)
		c := b.Cursor()
		for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
			keys = append(keys, string(k))
		}
		return nil
	})
	return keys, err
}

// Exists reports whether the key is present.
func (s *Storage) Exists(key string) (bool, error) {
	var exists bool
	err := s.view(func(b *bolt.Bucket) error {
		_, exists = get(b, key)
		return nil
	})
	return exists, err
}

// Close closes the database file.
func (s *Storage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Storage) view(fn func(*bolt.Bucket) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(dataBucketName))
	})
}

func (s *Storage) update(fn func(*bolt.Bucket) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return storage.ErrClosed
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return fn(tx.Bucket(dataBucketName))
	})
}

// get distinguishes a missing key from an empty value.
func get(b *bolt.Bucket, key string) ([]byte, bool) {
	k, v := b.Cursor().Seek([]byte(key))
	if k == nil || !bytes.Equal(k, []byte(key)) {
		return nil, false
	}
	return v, true
}

func validateKey(key string) error {
	if key == "" {
		return storage.ErrInvalidID
	}
	if len(key) > bolt.MaxKeySize {
		return fmt.Errorf("%w: key exceeds %d bytes", storage.ErrInvalidID, bolt.MaxKeySize)
	}
	return nil
}
