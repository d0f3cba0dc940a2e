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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/google/go-tpm-tools/simulator"
	"github.com/google/go-tpm/tpm2"
	"github.com/google/go-tpm/tpm2/transport"
	"github.com/google/go-tpm/tpm2/transport/linuxudstpm"
	"github.com/hashicorp/go-multierror"
	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// ErrClosed is returned when the element has been closed
var ErrClosed = backend.ErrClosed

// Backend is the TPM 2.0 secure element.
//
// Thread-safe: Yes, TPM commands are serialized by a mutex.
type Backend struct {
	config     *Config
	logger     *logging.Logger
	transport  transport.TPM
	closer     io.Closer
	srk        tpm2.NamedHandle
	algorithms map[tpm2.TPMAlgID]struct{}
	destroyed  map[string]struct{}
	closed     bool
	mu         sync.Mutex
}

// privateKey is the TPM private handle. The wrapped private area is only
// usable on the TPM that created it.
type privateKey struct {
	backend.OpaqueHandle
	public  tpm2.TPM2BPublic
	private tpm2.TPM2BPrivate
	ref     []byte
	owner   *Backend
}

func (k *privateKey) Reference() []byte {
	ref := make([]byte, len(k.ref))
	copy(ref, k.ref)
	return ref
}

// publicKey is the TPM public handle. Public operations run on the TPM
// against the loaded public area.
type publicKey struct {
	*backend.PublicHandle
	public tpm2.TPM2BPublic
	owner  *Backend
}

// NewBackend opens the TPM and creates the storage root key.
func NewBackend(config *Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	b := &Backend{
		config:    config,
		logger:    logger,
		destroyed: make(map[string]struct{}),
	}

	if err := b.open(); err != nil {
		return nil, err
	}

	algorithms, err := b.implementedAlgorithms()
	if err != nil {
		return nil, multierror.Append(err, b.closer.Close()).ErrorOrNil()
	}
	b.algorithms = algorithms

	if err := b.createSRK(); err != nil {
		return nil, multierror.Append(err, b.closer.Close()).ErrorOrNil()
	}

	logger.Debug("opened TPM secure element", "config", config.String())
	return b, nil
}

func (b *Backend) open() error {
	if b.config.UseSimulator {
		b.logger.Info("opening TPM simulator")
		sim, err := simulator.GetWithFixedSeedInsecure(1234567890)
		if err != nil {
			return fmt.Errorf("%w: %v", backend.ErrNotAvailable, err)
		}
		b.transport = transport.FromReadWriter(sim)
		b.closer = sim
		return nil
	}

	b.logger.Info("opening TPM device", "device", b.config.Device)
	if strings.HasSuffix(b.config.Device, ".sock") {
		t, err := linuxudstpm.Open(b.config.Device)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrOpeningDevice, err)
		}
		b.transport = t
		b.closer = t
		return nil
	}

	device, err := os.OpenFile(b.config.Device, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpeningDevice, err)
	}
	b.transport = transport.FromReadWriter(device)
	b.closer = device
	return nil
}

// createSRK derives the RSA storage root key from the owner hierarchy seed.
// The same seed always yields the same key, so references stay loadable
// across restarts.
func (b *Backend) createSRK() error {
	rsp, err := tpm2.CreatePrimary{
		PrimaryHandle: tpm2.AuthHandle{
			Handle: tpm2.TPMRHOwner,
			Auth:   tpm2.PasswordAuth(nil),
		},
		InPublic: tpm2.New2B(tpm2.RSASRKTemplate),
	}.Execute(b.transport)
	if err != nil {
		return fmt.Errorf("tpm2: failed to create storage root key: %w", err)
	}
	b.srk = tpm2.NamedHandle{Handle: rsp.ObjectHandle, Name: rsp.Name}
	return nil
}

// implementedAlgorithms lists the algorithm IDs the TPM implements. The set
// is fixed by the firmware.
func (b *Backend) implementedAlgorithms() (map[tpm2.TPMAlgID]struct{}, error) {
	algorithms := make(map[tpm2.TPMAlgID]struct{})
	next := uint32(0)
	for {
		rsp, err := tpm2.GetCapability{
			Capability:    tpm2.TPMCapAlgs,
			Property:      next,
			PropertyCount: 64,
		}.Execute(b.transport)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", backend.ErrNotAvailable, err)
		}
		list, err := rsp.CapabilityData.Data.Algorithms()
		if err != nil {
			return nil, err
		}
		for _, prop := range list.AlgProperties {
			algorithms[prop.Alg] = struct{}{}
			next = uint32(prop.Alg) + 1
		}
		if !rsp.MoreData || len(list.AlgProperties) == 0 {
			return algorithms, nil
		}
	}
}

// Type returns the backend type.
func (b *Backend) Type() types.BackendType {
	return types.BackendTypeTPM2
}

// Available reports whether the TPM answers commands.
func (b *Backend) Available() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	_, err := tpm2.GetCapability{
		Capability:    tpm2.TPMCapTPMProperties,
		Property:      uint32(tpm2.TPMPTFamilyIndicator),
		PropertyCount: 1,
	}.Execute(b.transport)
	return err == nil
}

// GenerateKeyPair creates a key under the storage root key.
func (b *Backend) GenerateKeyPair(params *types.KeyParams, policy *types.AccessPolicy) (*types.KeyPair, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidKeyParams, err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidAccessPolicy, err)
	}
	template, err := keyTemplate(params)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	rsp, err := tpm2.Create{
		ParentHandle: tpm2.AuthHandle{
			Handle: b.srk.Handle,
			Name:   b.srk.Name,
			Auth:   tpm2.PasswordAuth(nil),
		},
		InPublic: tpm2.New2B(template),
	}.Execute(b.transport)
	if err != nil {
		return nil, fmt.Errorf("tpm2: failed to create %s key: %w", params, err)
	}

	ref, err := encodeReference(params.KeyType, rsp.OutPublic, rsp.OutPrivate)
	if err != nil {
		return nil, err
	}
	priv, pub, err := b.newKeyPair(params.KeyType, rsp.OutPublic, rsp.OutPrivate, ref)
	if err != nil {
		return nil, err
	}

	b.logger.Debug("generated TPM key", "key_spec", params.String(), "fingerprint", priv.Fingerprint())
	return &types.KeyPair{Public: pub, Private: priv}, nil
}

// LoadPrivateKey decodes a reference and checks the TPM accepts it.
func (b *Backend) LoadPrivateKey(keyType types.KeyType, reference []byte) (types.PrivateKeyHandle, error) {
	ref, err := decodeReference(reference)
	if err != nil {
		return nil, err
	}
	if ref.KeyType != keyType {
		return nil, fmt.Errorf("%w: reference holds a %s key, want %s",
			backend.ErrKeyTypeMismatch, ref.KeyType, keyType)
	}

	public := tpm2.BytesAs2B[tpm2.TPMTPublic](ref.Public)
	private := tpm2.TPM2BPrivate{Buffer: ref.Private}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}

	priv, _, err := b.newKeyPair(keyType, public, private, reference)
	if err != nil {
		return nil, err
	}
	if _, gone := b.destroyed[priv.Fingerprint()]; gone {
		return nil, backend.ErrKeyNotFound
	}

	// A reference wrapped by another TPM's storage root key fails here.
	loaded, err := b.load(priv)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidReference, err)
	}
	b.flush(loaded.Handle)
	return priv, nil
}

// PublicKey derives the public handle of priv from its public area.
func (b *Backend) PublicKey(priv types.PrivateKeyHandle) (types.PublicKeyHandle, error) {
	k, err := b.own(priv)
	if err != nil {
		return nil, err
	}
	_, pub, err := b.newKeyPair(k.KeyType(), k.public, k.private, k.ref)
	return pub, err
}

// Supports reports whether the handle can perform op with alg. The TPM
// must implement both the scheme and the hash, and the key's object
// attributes must permit the operation.
func (b *Backend) Supports(handle types.KeyHandle, op types.Operation, alg types.Algorithm) bool {
	if !backend.AlgorithmApplies(handle, op, alg) {
		return false
	}

	var public tpm2.TPM2BPublic
	if op.UsesPrivateKey() {
		priv, ok := handle.(types.PrivateKeyHandle)
		if !ok {
			return false
		}
		k, err := b.own(priv)
		if err != nil {
			return false
		}
		public = k.public
	} else {
		pub, ok := handle.(*publicKey)
		if !ok || pub.owner != b {
			return false
		}
		public = pub.public
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	if !b.implements(alg) {
		return false
	}
	area, err := public.Contents()
	if err != nil {
		return false
	}
	return usageAllowed(area, op)
}

func (b *Backend) implements(alg types.Algorithm) bool {
	scheme, ok := schemeAlgID(alg)
	if !ok {
		return false
	}
	hashAlg, err := hashAlgID(alg.Hash())
	if err != nil {
		return false
	}
	_, hasScheme := b.algorithms[scheme]
	_, hasHash := b.algorithms[hashAlg]
	return hasScheme && hasHash
}

// Encrypt runs TPM2_RSA_Encrypt with OAEP against the public area.
func (b *Backend) Encrypt(pub types.PublicKeyHandle, alg types.Algorithm, plaintext []byte) ([]byte, error) {
	k, err := b.ownPublic(pub)
	if err != nil {
		return nil, err
	}
	if !backend.AlgorithmApplies(k, types.OperationEncrypt, alg) {
		return nil, backend.ErrInvalidAlgorithm
	}
	hashAlg, err := hashAlgID(alg.Hash())
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	loaded, err := b.loadPublic(k.public)
	if err != nil {
		return nil, err
	}
	defer b.flush(loaded.Handle)

	rsp, err := tpm2.RSAEncrypt{
		KeyHandle: loaded,
		Message:   tpm2.TPM2BPublicKeyRSA{Buffer: plaintext},
		InScheme:  oaepScheme(hashAlg),
	}.Execute(b.transport)
	if err != nil {
		return nil, err
	}
	return rsp.OutData.Buffer, nil
}

// Decrypt runs TPM2_RSA_Decrypt with OAEP.
func (b *Backend) Decrypt(priv types.PrivateKeyHandle, alg types.Algorithm, ciphertext []byte) ([]byte, error) {
	k, err := b.own(priv)
	if err != nil {
		return nil, err
	}
	if !backend.AlgorithmApplies(k, types.OperationDecrypt, alg) {
		return nil, backend.ErrInvalidAlgorithm
	}
	hashAlg, err := hashAlgID(alg.Hash())
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	loaded, err := b.load(k)
	if err != nil {
		return nil, err
	}
	defer b.flush(loaded.Handle)

	rsp, err := tpm2.RSADecrypt{
		KeyHandle: tpm2.AuthHandle{
			Handle: loaded.Handle,
			Name:   loaded.Name,
			Auth:   tpm2.PasswordAuth(nil),
		},
		CipherText: tpm2.TPM2BPublicKeyRSA{Buffer: ciphertext},
		InScheme:   oaepScheme(hashAlg),
	}.Execute(b.transport)
	if err != nil {
		return nil, err
	}
	return rsp.Message.Buffer, nil
}

// Sign hashes message on the host and has the TPM sign the digest. ECDSA
// signatures are returned DER encoded.
func (b *Backend) Sign(priv types.PrivateKeyHandle, alg types.Algorithm, message []byte) ([]byte, error) {
	k, err := b.own(priv)
	if err != nil {
		return nil, err
	}
	if !backend.AlgorithmApplies(k, types.OperationSign, alg) {
		return nil, backend.ErrInvalidAlgorithm
	}
	hashAlg, err := hashAlgID(alg.Hash())
	if err != nil {
		return nil, err
	}
	scheme, _ := schemeAlgID(alg)
	digest, err := alg.Hash().Digest(message)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	loaded, err := b.load(k)
	if err != nil {
		return nil, err
	}
	defer b.flush(loaded.Handle)

	rsp, err := tpm2.Sign{
		KeyHandle: tpm2.AuthHandle{
			Handle: loaded.Handle,
			Name:   loaded.Name,
			Auth:   tpm2.PasswordAuth(nil),
		},
		Digest: tpm2.TPM2BDigest{Buffer: digest},
		InScheme: tpm2.TPMTSigScheme{
			Scheme: scheme,
			Details: tpm2.NewTPMUSigScheme(
				scheme, &tpm2.TPMSSchemeHash{
					HashAlg: hashAlg,
				}),
		},
		Validation: tpm2.TPMTTKHashCheck{
			Tag:       tpm2.TPMSTHashCheck,
			Hierarchy: tpm2.TPMRHNull,
		},
	}.Execute(b.transport)
	if err != nil {
		return nil, err
	}

	switch scheme {
	case tpm2.TPMAlgRSAPSS:
		sig, err := rsp.Signature.Signature.RSAPSS()
		if err != nil {
			return nil, err
		}
		return sig.Sig.Buffer, nil
	default:
		sig, err := rsp.Signature.Signature.ECDSA()
		if err != nil {
			return nil, err
		}
		return backend.MarshalECDSASignature(
			newInt(sig.SignatureR.Buffer), newInt(sig.SignatureS.Buffer))
	}
}

// Verify runs TPM2_VerifySignature against the public area. A signature
// the TPM rejects, or a malformed DER signature, verifies false.
func (b *Backend) Verify(pub types.PublicKeyHandle, alg types.Algorithm, message, signature []byte) (bool, error) {
	k, err := b.ownPublic(pub)
	if err != nil {
		return false, err
	}
	if !backend.AlgorithmApplies(k, types.OperationVerify, alg) {
		return false, backend.ErrInvalidAlgorithm
	}
	hashAlg, err := hashAlgID(alg.Hash())
	if err != nil {
		return false, err
	}
	digest, err := alg.Hash().Digest(message)
	if err != nil {
		return false, err
	}

	var sig tpm2.TPMTSignature
	switch scheme, _ := schemeAlgID(alg); scheme {
	case tpm2.TPMAlgRSAPSS:
		sig = tpm2.TPMTSignature{
			SigAlg: tpm2.TPMAlgRSAPSS,
			Signature: tpm2.NewTPMUSignature(
				tpm2.TPMAlgRSAPSS,
				&tpm2.TPMSSignatureRSA{
					Hash: hashAlg,
					Sig:  tpm2.TPM2BPublicKeyRSA{Buffer: signature},
				},
			),
		}
	default:
		r, s, err := backend.ParseECDSASignature(signature)
		if err != nil {
			return false, nil
		}
		sig = tpm2.TPMTSignature{
			SigAlg: tpm2.TPMAlgECDSA,
			Signature: tpm2.NewTPMUSignature(
				tpm2.TPMAlgECDSA,
				&tpm2.TPMSSignatureECC{
					Hash:       hashAlg,
					SignatureR: tpm2.TPM2BECCParameter{Buffer: r.Bytes()},
					SignatureS: tpm2.TPM2BECCParameter{Buffer: s.Bytes()},
				},
			),
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false, ErrClosed
	}

	loaded, err := b.loadPublic(k.public)
	if err != nil {
		return false, err
	}
	defer b.flush(loaded.Handle)

	_, err = tpm2.VerifySignature{
		KeyHandle: loaded,
		Digest:    tpm2.TPM2BDigest{Buffer: digest},
		Signature: sig,
	}.Execute(b.transport)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, tpm2.TPMRCSignature),
		errors.Is(err, tpm2.TPMRCSize),
		errors.Is(err, tpm2.TPMRCValue):
		return false, nil
	default:
		return false, err
	}
}

// DestroyKey forgets the key. A TPM child key exists only as its wrapped
// blob, so the element refuses to load the fingerprint again for the rest
// of its lifetime.
func (b *Backend) DestroyKey(priv types.PrivateKeyHandle) error {
	k, err := b.own(priv)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.destroyed[k.Fingerprint()] = struct{}{}
	return nil
}

// Close flushes the storage root key and releases the TPM.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var result error
	if _, err := (tpm2.FlushContext{FlushHandle: b.srk.Handle}).Execute(b.transport); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to flush storage root key: %w", err))
	}
	if err := b.closer.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close TPM: %w", err))
	}
	return result
}

// newKeyPair builds both handles from a public area. Callers hold b.mu or
// own the key being described.
func (b *Backend) newKeyPair(keyType types.KeyType, public tpm2.TPM2BPublic, private tpm2.TPM2BPrivate, ref []byte) (*privateKey, *publicKey, error) {
	area, err := public.Contents()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", backend.ErrInvalidReference, err)
	}
	pub, kt, err := decodePublic(area)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", backend.ErrInvalidReference, err)
	}
	if kt != keyType {
		return nil, nil, fmt.Errorf("%w: public area holds a %s key, want %s",
			backend.ErrKeyTypeMismatch, kt, keyType)
	}
	opaque, err := backend.NewOpaqueHandle(keyType, pub)
	if err != nil {
		return nil, nil, err
	}
	pubHandle, err := backend.NewPublicHandle(keyType, pub)
	if err != nil {
		return nil, nil, err
	}
	return &privateKey{OpaqueHandle: opaque, public: public, private: private, ref: ref, owner: b},
		&publicKey{PublicHandle: pubHandle, public: public, owner: b},
		nil
}

// load loads a key pair under the storage root key. Callers hold b.mu and
// flush the returned handle.
func (b *Backend) load(k *privateKey) (tpm2.NamedHandle, error) {
	rsp, err := tpm2.Load{
		ParentHandle: tpm2.AuthHandle{
			Handle: b.srk.Handle,
			Name:   b.srk.Name,
			Auth:   tpm2.PasswordAuth(nil),
		},
		InPrivate: k.private,
		InPublic:  k.public,
	}.Execute(b.transport)
	if err != nil {
		return tpm2.NamedHandle{}, err
	}
	return tpm2.NamedHandle{Handle: rsp.ObjectHandle, Name: rsp.Name}, nil
}

// loadPublic loads a public area into the null hierarchy. Callers hold
// b.mu and flush the returned handle.
func (b *Backend) loadPublic(public tpm2.TPM2BPublic) (tpm2.NamedHandle, error) {
	rsp, err := tpm2.LoadExternal{
		Hierarchy: tpm2.TPMRHNull,
		InPublic:  public,
	}.Execute(b.transport)
	if err != nil {
		return tpm2.NamedHandle{}, err
	}
	return tpm2.NamedHandle{Handle: rsp.ObjectHandle, Name: rsp.Name}, nil
}

func (b *Backend) flush(handle tpm2.TPMHandle) {
	_, err := tpm2.FlushContext{FlushHandle: handle}.Execute(b.transport)
	b.logger.MaybeError(err)
}

// own checks that priv was created by this element and that the element
// is still open.
func (b *Backend) own(priv types.PrivateKeyHandle) (*privateKey, error) {
	k, ok := priv.(*privateKey)
	if !ok || k.owner != b {
		return nil, backend.ErrInvalidHandle
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	if _, gone := b.destroyed[k.Fingerprint()]; gone {
		return nil, backend.ErrKeyNotFound
	}
	return k, nil
}

func (b *Backend) ownPublic(pub types.PublicKeyHandle) (*publicKey, error) {
	k, ok := pub.(*publicKey)
	if !ok || k.owner != b {
		return nil, backend.ErrInvalidHandle
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return k, nil
}

func oaepScheme(hashAlg tpm2.TPMAlgID) tpm2.TPMTRSADecrypt {
	return tpm2.TPMTRSADecrypt{
		Scheme: tpm2.TPMAlgOAEP,
		Details: tpm2.NewTPMUAsymScheme(
			tpm2.TPMAlgOAEP,
			&tpm2.TPMSEncSchemeOAEP{
				HashAlg: hashAlg,
			},
		),
	}
}
