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


// Package storage defines where credential records live. The credential
// store addresses records by namespaced keys (see RecordKey) and relies on
// Create for first-writer-wins registration. Implementations: memory, file
// and bbolt.
package storage

import (
	"io/fs"
)

// Backend holds opaque record blobs under slash separated keys. All methods
// are safe for concurrent use.
type Backend interface {
	// Get returns the record under key, or ErrNotFound.
	Get(key string) ([]byte, error)

	// Put writes value under key, replacing any previous record.
	Put(key string, value []byte, opts *Options) error

	// Create writes value under key only when no record exists there. Two
	// racing calls for one key leave exactly one winner; the loser gets
	// ErrAlreadyExists and the stored record is untouched.
	Create(key string, value []byte, opts *Options) error

	// Delete drops the record under key, or returns ErrNotFound.
	Delete(key string) error

	// List returns the keys under prefix in sorted order. An empty
	// prefix lists everything.
	List(prefix string) ([]string, error)

	// Exists reports whether a record is stored under key.
	Exists(key string) (bool, error)

	// Close flushes and releases the backend. Later calls fail with
	// ErrClosed.
	Close() error
}

// Options tune a single write.
type Options struct {
	// Permissions is the file mode used by the file backend.
	Permissions fs.FileMode

	// Metadata is carried alongside the record where the backend supports it.
	Metadata map[string]string
}

// DefaultOptions returns options for a credential record: owner-only
// permissions and no metadata.
func DefaultOptions() *Options {
	return &Options{
		Permissions: 0600,
		Metadata:    make(map[string]string),
	}
}
