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

package bridge

import (
	"context"
	"errors"
	"strconv"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/correlation"
	"github.com/jeremyhahn/go-enclave/pkg/credstore"
	"github.com/jeremyhahn/go-enclave/pkg/health"
	"github.com/jeremyhahn/go-enclave/pkg/keychain"
	"github.com/jeremyhahn/go-enclave/pkg/keystore"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/metrics"
	"github.com/jeremyhahn/go-enclave/pkg/storage"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// ErrorPrefix starts every failure message.
const ErrorPrefix = "Error: "

var (
	// ErrInvalidConfig indicates a missing secure element or storage backend.
	ErrInvalidConfig = errors.New("bridge: invalid configuration")

	// ErrClosed is returned by operations on a closed Bridge.
	ErrClosed = errors.New("bridge: closed")
)

// Config contains the collaborators of a Bridge. The Bridge takes ownership
// of the secure element and storage backend and closes them on Close.
type Config struct {
	SecureElement backend.SecureElement
	Storage       storage.Backend

	// PolicyFlags override the access policy of created keys.
	PolicyFlags []types.AccessFlag

	Metrics *metrics.Metrics
	Logger  *logging.Logger
}

// Result is the outcome of a boundary call.
type Result struct {
	Failed  bool
	Message string
}

// Pair returns the result as a (failed, message) tuple.
func (r Result) Pair() (bool, string) {
	return r.Failed, r.Message
}

func success(message string) Result {
	return Result{Message: message}
}

func failure(err error) Result {
	return Result{Failed: true, Message: ErrorPrefix + err.Error()}
}

// Bridge exposes the key operation engine through string and byte slice
// operations.
type Bridge struct {
	config *Config
	creds  *credstore.Store
	logger *logging.Logger

	mu           sync.RWMutex
	engine       *keychain.Engine
	availability backend.Availability
	closed       bool
}

// New returns a Bridge. Keys can be loaded and used immediately; creating
// keys requires a successful InitializeModule.
func New(config *Config) (*Bridge, error) {
	if config == nil || config.SecureElement == nil || config.Storage == nil {
		return nil, ErrInvalidConfig
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}
	b := &Bridge{
		config: config,
		creds:  credstore.New(config.Storage, logger),
		logger: logger,
	}
	engine, err := b.newEngine(backend.Availability{})
	if err != nil {
		return nil, err
	}
	b.engine = engine
	return b, nil
}

func (b *Bridge) newEngine(availability backend.Availability) (*keychain.Engine, error) {
	keys, err := keystore.New(&keystore.Config{
		SecureElement: b.config.SecureElement,
		Credentials:   b.creds,
		Availability:  availability,
		PolicyFlags:   b.config.PolicyFlags,
		Logger:        b.logger,
	})
	if err != nil {
		return nil, err
	}
	return keychain.New(&keychain.Config{
		KeyStore: keys,
		Metrics:  b.config.Metrics,
		Logger:   b.logger,
	})
}

// InitializeModule probes the secure element and keeps the result for the
// life of the Bridge. It reports whether the element is available.
func (b *Bridge) InitializeModule() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}

	availability := backend.Probe(b.config.SecureElement)
	b.config.Metrics.SetAvailable(availability.Backend(), availability.Available())

	engine, err := b.newEngine(availability)
	if err != nil {
		b.logger.Error(err)
		return false
	}
	b.engine = engine
	b.availability = availability

	if !availability.Available() {
		b.logger.Warnf("%s secure element is not available", availability.Backend())
		return false
	}
	b.logger.Infof("%s secure element initialized", availability.Backend())
	return true
}

// Initialized reports whether InitializeModule found the element available.
func (b *Bridge) Initialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.availability.Available()
}

// Health runs readiness checks against the secure element and the
// credential store, and reports whether InitializeModule has succeeded.
func (b *Bridge) Health(ctx context.Context) []health.CheckResult {
	b.mu.RLock()
	closed := b.closed
	initialized := b.availability.Available()
	b.mu.RUnlock()
	if closed {
		return []health.CheckResult{{Name: "bridge", Status: health.StatusUnhealthy, Error: ErrClosed.Error()}}
	}

	checker := health.NewChecker()
	checker.RegisterCheck("secure_element", health.SecureElementCheck(b.config.SecureElement))
	checker.RegisterCheck("storage", health.StorageCheck(b.config.Storage))
	checker.RegisterCheck("module", func(context.Context) health.CheckResult {
		if initialized {
			return health.CheckResult{Status: health.StatusHealthy, Message: "module initialized"}
		}
		return health.CheckResult{Status: health.StatusDegraded, Message: "module not initialized, key creation is refused"}
	})
	return checker.Run(ctx)
}

// CreateKey creates a key from a "TYPE;SIZE" spec and stores it under
// identifier. The message is the key pair fingerprint.
func (b *Bridge) CreateKey(identifier, keySpec string) Result {
	engine, ctx, err := b.begin()
	if err != nil {
		return failure(err)
	}
	fingerprint, err := engine.CreateKey(ctx, identifier, keySpec)
	if err != nil {
		return failure(err)
	}
	return success(fingerprint)
}

// LoadKey checks the key stored under identifier. The message is the key
// pair fingerprint.
func (b *Bridge) LoadKey(identifier, algorithm, hash string) Result {
	engine, ctx, err := b.begin()
	if err != nil {
		return failure(err)
	}
	fingerprint, err := engine.LoadKey(ctx, identifier, algorithm, hash)
	if err != nil {
		return failure(err)
	}
	return success(fingerprint)
}

// Encrypt encrypts data. The message is the base64 ciphertext.
func (b *Bridge) Encrypt(identifier string, data []byte, algorithm, hash string) Result {
	engine, ctx, err := b.begin()
	if err != nil {
		return failure(err)
	}
	ciphertext, err := engine.Encrypt(ctx, identifier, data, algorithm, hash)
	if err != nil {
		return failure(err)
	}
	return success(ciphertext)
}

// Decrypt decrypts base64 ciphertext. The message is the plaintext.
func (b *Bridge) Decrypt(identifier string, data []byte, algorithm, hash string) Result {
	engine, ctx, err := b.begin()
	if err != nil {
		return failure(err)
	}
	plaintext, err := engine.Decrypt(ctx, identifier, string(data), algorithm, hash)
	if err != nil {
		return failure(err)
	}
	return success(string(plaintext))
}

// Sign signs data. The message is the base64 signature.
func (b *Bridge) Sign(identifier string, data []byte, algorithm, hash string) Result {
	engine, ctx, err := b.begin()
	if err != nil {
		return failure(err)
	}
	signature, err := engine.Sign(ctx, identifier, data, algorithm, hash)
	if err != nil {
		return failure(err)
	}
	return success(signature)
}

// Verify checks a base64 signature over data. The message is "true" or
// "false"; a signature that does not match is not a failure.
func (b *Bridge) Verify(identifier string, data, signature []byte, algorithm, hash string) Result {
	engine, ctx, err := b.begin()
	if err != nil {
		return failure(err)
	}
	valid, err := engine.Verify(ctx, identifier, data, string(signature), algorithm, hash)
	if err != nil {
		return failure(err)
	}
	return success(strconv.FormatBool(valid))
}

// Close closes the secure element and the credential store.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true

	var result *multierror.Error
	if err := b.config.SecureElement.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	if err := b.creds.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// begin returns the current engine and a context carrying a fresh
// correlation ID for one boundary call.
func (b *Bridge) begin() (*keychain.Engine, context.Context, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, nil, ErrClosed
	}
	ctx, _ := correlation.Ensure(context.Background())
	return b.engine, ctx, nil
}
