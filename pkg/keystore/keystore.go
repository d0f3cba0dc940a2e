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


// Package keystore creates key pairs inside a secure element and persists
// their references in the credential store, one key per identifier and key
// type. Private handles never leave the element; only references are
// stored.
package keystore

import (
	"errors"
	"fmt"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/credstore"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// ErrInvalidConfig indicates the key store configuration is incomplete.
var ErrInvalidConfig = errors.New("keystore: invalid configuration")

// Config contains the collaborators of a KeyStore.
type Config struct {
	SecureElement backend.SecureElement
	Credentials   *credstore.Store

	// Availability is the token returned by backend.Probe at module
	// initialization. A zero token refuses every create.
	Availability backend.Availability

	// PolicyFlags build the access policy of every created key. Defaults
	// to when-unlocked, non-exportable and this-device-only.
	PolicyFlags []types.AccessFlag

	Logger *logging.Logger
}

// KeyStore is the key store adapter.
type KeyStore struct {
	se           backend.SecureElement
	creds        *credstore.Store
	availability backend.Availability
	policyFlags  []types.AccessFlag
	logger       *logging.Logger
}

// New returns a KeyStore.
func New(config *Config) (*KeyStore, error) {
	if config == nil || config.SecureElement == nil || config.Credentials == nil {
		return nil, ErrInvalidConfig
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	flags := config.PolicyFlags
	if len(flags) == 0 {
		flags = []types.AccessFlag{
			types.AccessWhenUnlocked(),
			types.AccessNonExportable(),
			types.AccessThisDeviceOnly(),
		}
	}
	return &KeyStore{
		se:           config.SecureElement,
		creds:        config.Credentials,
		availability: config.Availability,
		policyFlags:  flags,
		logger:       logger,
	}, nil
}

// SecureElement returns the element keys are created in.
func (ks *KeyStore) SecureElement() backend.SecureElement {
	return ks.se
}

// CreateAndStore generates a key pair in the secure element and persists
// its reference under identifier. If persistence fails the new key is
// destroyed again, so a losing concurrent create leaves nothing behind.
func (ks *KeyStore) CreateAndStore(identifier string, params *types.KeyParams) (*types.KeyPair, error) {
	if err := ks.availability.Err(); err != nil {
		return nil, err
	}
	if identifier == "" {
		return nil, types.NewError(types.KindCreateKeyError, "key identifier is empty")
	}
	if params == nil {
		return nil, types.NewError(types.KindCreateKeyError, "key params are nil")
	}
	if !params.KeyType.IsValid() {
		return nil, types.WrapError(types.KindUnsupportedKeyType, types.ErrUnsupportedKeyType,
			"unsupported key type %s", params.KeyType)
	}
	spec := *params
	spec.Identifier = identifier
	if err := spec.Validate(); err != nil {
		return nil, types.WrapError(types.KindCreateKeyError, err, "invalid key spec %s", spec)
	}

	policy, err := types.NewAccessPolicy(ks.policyFlags...)
	if err != nil {
		return nil, types.WrapError(types.KindCreateKeyError, err, "access control could not be created")
	}

	pair, err := ks.se.GenerateKeyPair(&spec, policy)
	if err != nil {
		return nil, types.WrapError(types.KindCreateKeyError, err, "%s key could not be created", spec)
	}

	if err := ks.creds.Add(identifier, ks.se.Type(), pair.Private, policy); err != nil {
		if destroyErr := ks.se.DestroyKey(pair.Private); destroyErr != nil {
			ks.logger.Error(destroyErr, "key_id", identifier, "fingerprint", pair.Private.Fingerprint())
		}
		return nil, types.WrapError(types.KindCreateKeyError, err, "key %q could not be stored", identifier)
	}

	ks.logger.Debug("created key",
		"key_id", identifier,
		"key_spec", spec.String(),
		"backend", ks.se.Type().String(),
		"fingerprint", pair.Private.Fingerprint())
	return pair, nil
}

// Load returns the private handle stored under (identifier, keyType).
// There is no fallback across key types: a key stored as ECDSA is not
// found when loaded as RSA.
func (ks *KeyStore) Load(identifier string, keyType types.KeyType) (types.PrivateKeyHandle, error) {
	record, err := ks.creds.Find(identifier, keyType)
	if err != nil {
		if errors.Is(err, credstore.ErrRecordNotFound) {
			return nil, types.WrapError(types.KindLoadKeyError, err, "key %q could not be found", identifier)
		}
		return nil, types.WrapError(types.KindLoadKeyError, err, "key %q could not be loaded", identifier)
	}
	if record.Backend != ks.se.Type() {
		return nil, types.NewError(types.KindLoadKeyError,
			"key %q belongs to the %s secure element, not %s", identifier, record.Backend, ks.se.Type())
	}

	priv, err := ks.se.LoadPrivateKey(keyType, record.Reference)
	if err != nil {
		if errors.Is(err, backend.ErrKeyNotFound) {
			return nil, types.WrapError(types.KindLoadKeyError, err, "key %q could not be found", identifier)
		}
		return nil, types.WrapError(types.KindLoadKeyError, err, "key %q could not be loaded", identifier)
	}
	if priv.Fingerprint() != record.Fingerprint {
		return nil, types.WrapError(types.KindLoadKeyError,
			fmt.Errorf("fingerprint %s, record has %s", priv.Fingerprint(), record.Fingerprint),
			"key %q does not match its record", identifier)
	}
	return priv, nil
}
