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


// Package credstore persists secure element key records. A record holds
// the element's opaque reference to a private key, never key material, and
// is addressed by the composite of identifier and key type. Records are
// written once and never updated in place.
package credstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/storage"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

var (
	// ErrRecordNotFound is returned when no record matches the identifier
	// and key type.
	ErrRecordNotFound = errors.New("credstore: record not found")

	// ErrDuplicateRecord is returned by Add when the identifier is already
	// taken for the key type.
	ErrDuplicateRecord = errors.New("credstore: duplicate record")

	// ErrInvalidRecord is returned when a stored record cannot be decoded.
	ErrInvalidRecord = errors.New("credstore: invalid record")
)

const recordVersion = 1

// Record is the persisted secure element key record.
type Record struct {
	Version     uint8              `cbor:"1,keyasint"`
	Identifier  string             `cbor:"2,keyasint"`
	KeyType     types.KeyType      `cbor:"3,keyasint"`
	Backend     types.BackendType  `cbor:"4,keyasint"`
	Reference   []byte             `cbor:"5,keyasint"`
	Fingerprint string             `cbor:"6,keyasint"`
	Policy      types.AccessPolicy `cbor:"7,keyasint"`
	CreatedAt   time.Time          `cbor:"8,keyasint"`
}

var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = mode
}

// Store is the credential store.
type Store struct {
	backend storage.Backend
	logger  *logging.Logger
	now     func() time.Time
}

// New returns a credential store over backend.
func New(backend storage.Backend, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Store{
		backend: backend,
		logger:  logger,
		now:     time.Now,
	}
}

// Add persists the reference of priv under (identifier, priv.KeyType()).
// It fails with ErrDuplicateRecord if the pair is already present; the
// existing record is left untouched.
func (s *Store) Add(identifier string, backend types.BackendType, priv types.PrivateKeyHandle, policy *types.AccessPolicy) error {
	if priv == nil {
		return fmt.Errorf("credstore: nil private key handle")
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("credstore: %w", err)
	}
	key, err := storage.RecordKey(priv.KeyType().String(), identifier)
	if err != nil {
		return err
	}

	data, err := encMode.Marshal(&Record{
		Version:     recordVersion,
		Identifier:  identifier,
		KeyType:     priv.KeyType(),
		Backend:     backend,
		Reference:   priv.Reference(),
		Fingerprint: priv.Fingerprint(),
		Policy:      *policy,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("credstore: failed to encode record: %w", err)
	}

	if err := s.backend.Create(key, data, storage.DefaultOptions()); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return fmt.Errorf("%w: %s key %q", ErrDuplicateRecord, priv.KeyType(), identifier)
		}
		return fmt.Errorf("credstore: failed to store record: %w", err)
	}

	s.logger.Debug("stored key record",
		"key_id", identifier,
		"key_type", priv.KeyType().String(),
		"fingerprint", priv.Fingerprint())
	return nil
}

// Find returns the record stored under (identifier, keyType). A record
// stored under the same identifier with another key type is not found.
func (s *Store) Find(identifier string, keyType types.KeyType) (*Record, error) {
	key, err := storage.RecordKey(keyType.String(), identifier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRecordNotFound, err)
	}

	data, err := s.backend.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s key %q", ErrRecordNotFound, keyType, identifier)
		}
		return nil, fmt.Errorf("credstore: failed to read record: %w", err)
	}

	var record Record
	if err := cbor.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if record.Version != recordVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrInvalidRecord, record.Version)
	}
	if record.Identifier != identifier || record.KeyType != keyType {
		return nil, fmt.Errorf("%w: record does not match its key", ErrInvalidRecord)
	}
	return &record, nil
}

// Identifiers lists the identifiers stored for keyType.
func (s *Store) Identifiers(keyType types.KeyType) ([]string, error) {
	return storage.ListRecords(s.backend, keyType.String())
}

// Close closes the underlying storage.
func (s *Store) Close() error {
	return s.backend.Close()
}
