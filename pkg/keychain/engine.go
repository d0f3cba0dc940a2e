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
	"encoding/base64"
	"time"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/correlation"
	"github.com/jeremyhahn/go-enclave/pkg/keystore"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/metrics"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// Config contains the collaborators of an Engine. Metrics is optional.
type Config struct {
	KeyStore *keystore.KeyStore
	Metrics  *metrics.Metrics
	Logger   *logging.Logger
}

// Engine runs cryptographic operations on keys held by a secure element.
// It is safe for concurrent use; operations on the same key are
// serialized only by the element itself.
type Engine struct {
	keys    *keystore.KeyStore
	se      backend.SecureElement
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// New returns an Engine.
func New(config *Config) (*Engine, error) {
	if config == nil || config.KeyStore == nil {
		return nil, ErrInvalidConfig
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	return &Engine{
		keys:    config.KeyStore,
		se:      config.KeyStore.SecureElement(),
		metrics: config.Metrics,
		logger:  logger,
	}, nil
}

// CreateKey creates a key from a "TYPE;SIZE" spec such as "ECDSA;256" and
// stores it under identifier. It returns the key pair fingerprint.
func (e *Engine) CreateKey(ctx context.Context, identifier, keySpec string) (fingerprint string, err error) {
	done := e.begin(ctx, metrics.OpCreate, identifier)
	defer func() { done(err) }()

	params, err := types.ParseKeySpec(keySpec)
	if err != nil {
		return "", err
	}
	pair, err := e.keys.CreateAndStore(identifier, params)
	if err != nil {
		return "", err
	}
	e.metrics.KeyCreated(e.se.Type(), params.KeyType)
	return pair.Private.Fingerprint(), nil
}

// LoadKey checks that the key stored under (identifier, keyType) can be
// loaded and that hash names a supported digest. It returns the key pair
// fingerprint.
func (e *Engine) LoadKey(ctx context.Context, identifier, keyType, hash string) (fingerprint string, err error) {
	done := e.begin(ctx, metrics.OpLoad, identifier)
	defer func() { done(err) }()

	kt, err := types.ResolveKeyType(keyType)
	if err != nil {
		return "", err
	}
	if _, err := types.ResolveHash(hash); err != nil {
		return "", err
	}
	priv, err := e.keys.Load(identifier, kt)
	if err != nil {
		return "", err
	}
	return priv.Fingerprint(), nil
}

// Encrypt encrypts plaintext with the public half of the key and returns
// the base64 ciphertext.
func (e *Engine) Encrypt(ctx context.Context, identifier string, plaintext []byte, keyType, hash string) (ciphertext string, err error) {
	done := e.begin(ctx, metrics.OpEncrypt, identifier)
	defer func() { done(err) }()

	spec, err := types.ResolveAlgorithm(keyType, hash, types.OperationEncrypt)
	if err != nil {
		return "", err
	}
	pub, err := e.loadPublic(identifier, spec)
	if err != nil {
		return "", err
	}
	if err := checkSupported(e.se, pub, spec); err != nil {
		return "", err
	}
	ct, err := e.se.Encrypt(pub, spec.Algorithm, plaintext)
	if err != nil {
		return "", operationError(spec.Operation, err, "could not encrypt with key %q", identifier)
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// Decrypt decrypts a base64 ciphertext produced by Encrypt with the same
// key type and hash.
func (e *Engine) Decrypt(ctx context.Context, identifier, ciphertext, keyType, hash string) (plaintext []byte, err error) {
	done := e.begin(ctx, metrics.OpDecrypt, identifier)
	defer func() { done(err) }()

	spec, err := types.ResolveAlgorithm(keyType, hash, types.OperationDecrypt)
	if err != nil {
		return nil, err
	}
	ct, err := decode(spec.Operation, ciphertext, "ciphertext")
	if err != nil {
		return nil, err
	}
	priv, err := e.keys.Load(identifier, spec.KeyType)
	if err != nil {
		return nil, err
	}
	if err := checkSupported(e.se, priv, spec); err != nil {
		return nil, err
	}
	pt, err := e.se.Decrypt(priv, spec.Algorithm, ct)
	if err != nil {
		return nil, operationError(spec.Operation, err, "could not decrypt with key %q", identifier)
	}
	return pt, nil
}

// Sign signs payload with the key and returns the base64 signature. ECDSA
// signatures are ASN.1 DER before encoding.
func (e *Engine) Sign(ctx context.Context, identifier string, payload []byte, keyType, hash string) (signature string, err error) {
	done := e.begin(ctx, metrics.OpSign, identifier)
	defer func() { done(err) }()

	spec, err := types.ResolveAlgorithm(keyType, hash, types.OperationSign)
	if err != nil {
		return "", err
	}
	priv, err := e.keys.Load(identifier, spec.KeyType)
	if err != nil {
		return "", err
	}
	if err := checkSupported(e.se, priv, spec); err != nil {
		return "", err
	}
	sig, err := e.se.Sign(priv, spec.Algorithm, payload)
	if err != nil {
		return "", operationError(spec.Operation, err, "could not sign with key %q", identifier)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether signature is a valid base64 signature over
// payload. A well-formed signature that does not match returns false with
// a nil error.
func (e *Engine) Verify(ctx context.Context, identifier string, payload []byte, signature, keyType, hash string) (valid bool, err error) {
	done := e.begin(ctx, metrics.OpVerify, identifier)
	defer func() { done(err) }()

	spec, err := types.ResolveAlgorithm(keyType, hash, types.OperationVerify)
	if err != nil {
		return false, err
	}
	sig, err := decode(spec.Operation, signature, "signature")
	if err != nil {
		return false, err
	}
	pub, err := e.loadPublic(identifier, spec)
	if err != nil {
		return false, err
	}
	if err := checkSupported(e.se, pub, spec); err != nil {
		return false, err
	}
	valid, err = e.se.Verify(pub, spec.Algorithm, payload, sig)
	if err != nil {
		return false, operationError(spec.Operation, err, "could not verify with key %q", identifier)
	}
	return valid, nil
}

// loadPublic loads the private handle and derives its public handle. The
// private handle is not retained.
func (e *Engine) loadPublic(identifier string, spec *types.AlgorithmSpec) (types.PublicKeyHandle, error) {
	priv, err := e.keys.Load(identifier, spec.KeyType)
	if err != nil {
		return nil, err
	}
	pub, err := e.se.PublicKey(priv)
	if err != nil {
		return nil, operationError(spec.Operation, err, "public key of %q could not be derived", identifier)
	}
	return pub, nil
}

func decode(op types.Operation, s, what string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, types.WrapError(types.KindForOperation(op), ErrInvalidEncoding, "%s is not valid base64", what)
	}
	return b, nil
}

// begin tags the operation with a correlation ID and returns the function
// that records its outcome.
func (e *Engine) begin(ctx context.Context, op, identifier string) func(error) {
	if ctx == nil {
		ctx = context.Background()
	}
	_, id := correlation.Ensure(ctx)
	log := e.logger.With(correlation.LogKey, id, "operation", op, "key_id", identifier)
	start := time.Now()
	return func(err error) {
		e.metrics.Observe(op, e.se.Type(), start, err)
		if err != nil {
			log.Debug("operation failed", "kind", types.KindOf(err).String(), "error", err)
			return
		}
		log.Debug("operation completed", "duration", time.Since(start))
	}
}
