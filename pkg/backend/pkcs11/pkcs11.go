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

//go:build pkcs11

package pkcs11

import (
	"bytes"
	"crypto"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/miekg/pkcs11"

	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/logging"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

// Backend is the PKCS#11 secure element.
//
// Thread Safety:
// A session is opened per operation. The login session opened by NewBackend
// stays open until Close so the user remains logged in.
type Backend struct {
	config       *Config
	ctx          *pkcs11.Ctx
	slot         uint
	loginSession pkcs11.SessionHandle
	logger       *logging.Logger
	closed       bool
	mu           sync.RWMutex
}

type privateKey struct {
	backend.OpaqueHandle
	id    []byte
	owner *Backend
}

func (k *privateKey) Reference() []byte {
	return bytes.Clone(k.id)
}

type publicKey struct {
	*backend.PublicHandle
	id    []byte
	owner *Backend
}

// NewBackend loads the PKCS#11 library, selects the token and logs in.
func NewBackend(config *Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := pkcs11.New(config.Library)
	if p == nil {
		return nil, fmt.Errorf("failed to load PKCS#11 library: %s", config.Library)
	}
	if err := p.Initialize(); err != nil {
		if err != pkcs11.Error(pkcs11.CKR_CRYPTOKI_ALREADY_INITIALIZED) {
			p.Destroy()
			return nil, fmt.Errorf("failed to initialize PKCS#11: %w", err)
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.DefaultLogger()
	}

	b := &Backend{
		config: config,
		ctx:    p,
		logger: logger,
	}

	slot, err := b.findSlot()
	if err != nil {
		b.finalize()
		return nil, err
	}
	b.slot = slot

	session, err := p.OpenSession(slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		b.finalize()
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	if err := p.Login(session, pkcs11.CKU_USER, config.PIN); err != nil {
		if err != pkcs11.Error(pkcs11.CKR_USER_ALREADY_LOGGED_IN) {
			_ = p.CloseSession(session)
			b.finalize()
			return nil, fmt.Errorf("failed to login: %w", err)
		}
	}
	b.loginSession = session

	logger.Debug("PKCS#11 token opened", "config", config.String(), "slot", slot)
	return b, nil
}

func (b *Backend) findSlot() (uint, error) {
	slots, err := b.ctx.GetSlotList(true)
	if err != nil {
		return 0, fmt.Errorf("failed to get slot list: %w", err)
	}
	if b.config.Slot != nil {
		want := uint(*b.config.Slot)
		for _, s := range slots {
			if s == want {
				return s, nil
			}
		}
		return 0, fmt.Errorf("%w: slot %d", ErrTokenNotFound, want)
	}
	for _, s := range slots {
		info, err := b.ctx.GetTokenInfo(s)
		if err != nil {
			continue
		}
		if info.Label == b.config.TokenLabel {
			return s, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", ErrTokenNotFound, b.config.TokenLabel)
}

// Type returns the backend type (PKCS#11).
func (b *Backend) Type() types.BackendType {
	return types.BackendTypePKCS11
}

// Available reports whether the token is still present and the login
// session is usable.
func (b *Backend) Available() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	if _, err := b.ctx.GetTokenInfo(b.slot); err != nil {
		return false
	}
	_, err := b.ctx.GetSessionInfo(b.loginSession)
	return err == nil
}

// GenerateKeyPair generates a token resident key pair.
func (b *Backend) GenerateKeyPair(params *types.KeyParams, policy *types.AccessPolicy) (*types.KeyPair, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidKeyParams, err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidAccessPolicy, err)
	}

	id, err := uuid.New().MarshalBinary()
	if err != nil {
		return nil, err
	}
	label := params.Identifier
	if label == "" {
		label = uuid.New().String()
	}

	pubTemplate, privTemplate, mech, err := keyTemplates(params, policy, id, label)
	if err != nil {
		return nil, err
	}

	var kp *types.KeyPair
	err = b.withSession(func(session pkcs11.SessionHandle) error {
		_, privObj, err := b.ctx.GenerateKeyPair(session, []*pkcs11.Mechanism{mech}, pubTemplate, privTemplate)
		if err != nil {
			return fmt.Errorf("failed to generate key pair: %w", err)
		}
		pub, err := b.readPublicKey(session, params.KeyType, id)
		if err != nil {
			_ = b.ctx.DestroyObject(session, privObj)
			return err
		}
		priv, err := b.newPrivateKey(params.KeyType, pub.Public(), id)
		if err != nil {
			return err
		}
		kp = &types.KeyPair{Public: pub, Private: priv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	b.logger.Debug("generated PKCS#11 key", "key_spec", params.String(), "fingerprint", kp.Private.Fingerprint())
	return kp, nil
}

// keyTemplates builds the public and private key templates. The access
// policy maps to CKA_PRIVATE (usable only after login), CKA_SENSITIVE and
// CKA_EXTRACTABLE=false (non-exportable) and CKA_TOKEN (device local).
func keyTemplates(params *types.KeyParams, policy *types.AccessPolicy, id []byte, label string) (
	pub, priv []*pkcs11.Attribute, mech *pkcs11.Mechanism, err error) {

	pub = []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PUBLIC_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_VERIFY, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}
	priv = []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, pkcs11.CKO_PRIVATE_KEY),
		pkcs11.NewAttribute(pkcs11.CKA_TOKEN, true),
		pkcs11.NewAttribute(pkcs11.CKA_PRIVATE, policy.WhenUnlocked),
		pkcs11.NewAttribute(pkcs11.CKA_SENSITIVE, true),
		pkcs11.NewAttribute(pkcs11.CKA_EXTRACTABLE, !policy.NonExportable),
		pkcs11.NewAttribute(pkcs11.CKA_SIGN, true),
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, label),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}

	switch params.KeyType {
	case types.KeyTypeRSA:
		pub = append(pub,
			pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
			pkcs11.NewAttribute(pkcs11.CKA_ENCRYPT, true),
			pkcs11.NewAttribute(pkcs11.CKA_MODULUS_BITS, params.KeySize),
			pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, []byte{0x01, 0x00, 0x01}),
		)
		priv = append(priv,
			pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_RSA),
			pkcs11.NewAttribute(pkcs11.CKA_DECRYPT, true),
		)
		mech = pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_KEY_PAIR_GEN, nil)
	case types.KeyTypeECDSA:
		curve, err := ecParams(params.KeySize)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("%w: %v", backend.ErrInvalidKeyParams, err)
		}
		pub = append(pub,
			pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC),
			pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, curve),
		)
		priv = append(priv, pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, pkcs11.CKK_EC))
		mech = pkcs11.NewMechanism(pkcs11.CKM_EC_KEY_PAIR_GEN, nil)
	default:
		return nil, nil, nil, backend.ErrInvalidKeyParams
	}
	return pub, priv, mech, nil
}

// LoadPrivateKey finds the key pair whose CKA_ID is reference.
func (b *Backend) LoadPrivateKey(keyType types.KeyType, reference []byte) (types.PrivateKeyHandle, error) {
	if len(reference) == 0 {
		return nil, backend.ErrInvalidReference
	}
	var priv *privateKey
	err := b.withSession(func(session pkcs11.SessionHandle) error {
		privObj, err := b.findObject(session, pkcs11.CKO_PRIVATE_KEY, reference)
		if err != nil {
			return err
		}
		attrs, err := b.ctx.GetAttributeValue(session, privObj, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_KEY_TYPE, nil),
		})
		if err != nil {
			return fmt.Errorf("failed to read key type: %w", err)
		}
		if got := keyTypeOf(attrs[0].Value); got != keyType {
			return fmt.Errorf("%w: token object is %s, want %s", backend.ErrKeyTypeMismatch, got, keyType)
		}
		pub, err := b.readPublicKey(session, keyType, reference)
		if err != nil {
			return err
		}
		priv, err = b.newPrivateKey(keyType, pub.Public(), bytes.Clone(reference))
		return err
	})
	if err != nil {
		return nil, err
	}
	return priv, nil
}

// PublicKey returns the token public key paired with priv.
func (b *Backend) PublicKey(priv types.PrivateKeyHandle) (types.PublicKeyHandle, error) {
	k, err := b.ownPrivate(priv)
	if err != nil {
		return nil, err
	}
	var pub *publicKey
	err = b.withSession(func(session pkcs11.SessionHandle) error {
		pub, err = b.readPublicKey(session, k.KeyType(), k.id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if pub.Fingerprint() != k.Fingerprint() {
		return nil, fmt.Errorf("%w: public key does not match private key", backend.ErrInvalidHandle)
	}
	return pub, nil
}

// Supports asks the token whether it can run alg for op with the key: the
// slot must offer a mechanism with the matching CKF flag and the key object
// must carry the matching usage attribute.
func (b *Backend) Supports(handle types.KeyHandle, op types.Operation, alg types.Algorithm) bool {
	if !backend.AlgorithmApplies(handle, op, alg) {
		return false
	}
	id, class, err := b.objectOf(handle, op)
	if err != nil {
		return false
	}
	flag, usage := operationFlag(op)

	supported := false
	err = b.withSession(func(session pkcs11.SessionHandle) error {
		if _, err := b.selectMechanism(alg, flag); err != nil {
			return err
		}
		obj, err := b.findObject(session, class, id)
		if err != nil {
			return err
		}
		attrs, err := b.ctx.GetAttributeValue(session, obj, []*pkcs11.Attribute{
			pkcs11.NewAttribute(usage, nil),
		})
		if err != nil {
			return err
		}
		supported = len(attrs) == 1 && len(attrs[0].Value) == 1 && attrs[0].Value[0] == 1
		return nil
	})
	return err == nil && supported
}

// Encrypt encrypts plaintext on the token with CKM_RSA_PKCS_OAEP.
func (b *Backend) Encrypt(pub types.PublicKeyHandle, alg types.Algorithm, plaintext []byte) ([]byte, error) {
	k, err := b.ownPublic(pub)
	if err != nil {
		return nil, err
	}
	if !backend.AlgorithmApplies(k, types.OperationEncrypt, alg) {
		return nil, backend.ErrInvalidAlgorithm
	}
	m, err := b.selectMechanism(alg, pkcs11.CKF_ENCRYPT)
	if err != nil {
		return nil, err
	}

	var ciphertext []byte
	err = b.withSession(func(session pkcs11.SessionHandle) error {
		obj, err := b.findObject(session, pkcs11.CKO_PUBLIC_KEY, k.id)
		if err != nil {
			return err
		}
		if err := b.ctx.EncryptInit(session, []*pkcs11.Mechanism{m.mech}, obj); err != nil {
			return fmt.Errorf("failed to init encrypt: %w", err)
		}
		ciphertext, err = b.ctx.Encrypt(session, plaintext)
		return err
	})
	return ciphertext, err
}

// Decrypt decrypts ciphertext on the token.
func (b *Backend) Decrypt(priv types.PrivateKeyHandle, alg types.Algorithm, ciphertext []byte) ([]byte, error) {
	k, err := b.ownPrivate(priv)
	if err != nil {
		return nil, err
	}
	if !backend.AlgorithmApplies(k, types.OperationDecrypt, alg) {
		return nil, backend.ErrInvalidAlgorithm
	}
	m, err := b.selectMechanism(alg, pkcs11.CKF_DECRYPT)
	if err != nil {
		return nil, err
	}

	var plaintext []byte
	err = b.withSession(func(session pkcs11.SessionHandle) error {
		obj, err := b.findObject(session, pkcs11.CKO_PRIVATE_KEY, k.id)
		if err != nil {
			return err
		}
		if err := b.ctx.DecryptInit(session, []*pkcs11.Mechanism{m.mech}, obj); err != nil {
			return fmt.Errorf("failed to init decrypt: %w", err)
		}
		plaintext, err = b.ctx.Decrypt(session, ciphertext)
		return err
	})
	return plaintext, err
}

// Sign signs message on the token. ECDSA signatures are converted from the
// token's R||S form to DER.
func (b *Backend) Sign(priv types.PrivateKeyHandle, alg types.Algorithm, message []byte) ([]byte, error) {
	k, err := b.ownPrivate(priv)
	if err != nil {
		return nil, err
	}
	if !backend.AlgorithmApplies(k, types.OperationSign, alg) {
		return nil, backend.ErrInvalidAlgorithm
	}
	m, err := b.selectMechanism(alg, pkcs11.CKF_SIGN)
	if err != nil {
		return nil, err
	}
	data, err := m.input(alg, message)
	if err != nil {
		return nil, err
	}

	var sig []byte
	err = b.withSession(func(session pkcs11.SessionHandle) error {
		obj, err := b.findObject(session, pkcs11.CKO_PRIVATE_KEY, k.id)
		if err != nil {
			return err
		}
		if err := b.ctx.SignInit(session, []*pkcs11.Mechanism{m.mech}, obj); err != nil {
			return fmt.Errorf("failed to init sign: %w", err)
		}
		sig, err = b.ctx.Sign(session, data)
		return err
	})
	if err != nil {
		return nil, err
	}
	if m.raw {
		return backend.RawToDER(sig)
	}
	return sig, nil
}

// Verify verifies a signature on the token. Signatures the token rejects
// as invalid, and DER that does not decode, return false.
func (b *Backend) Verify(pub types.PublicKeyHandle, alg types.Algorithm, message, signature []byte) (bool, error) {
	k, err := b.ownPublic(pub)
	if err != nil {
		return false, err
	}
	if !backend.AlgorithmApplies(k, types.OperationVerify, alg) {
		return false, backend.ErrInvalidAlgorithm
	}
	m, err := b.selectMechanism(alg, pkcs11.CKF_VERIFY)
	if err != nil {
		return false, err
	}
	data, err := m.input(alg, message)
	if err != nil {
		return false, err
	}
	if m.raw {
		signature, err = backend.DERToRaw(signature, k.KeySize())
		if err != nil {
			return false, nil
		}
	}

	err = b.withSession(func(session pkcs11.SessionHandle) error {
		obj, err := b.findObject(session, pkcs11.CKO_PUBLIC_KEY, k.id)
		if err != nil {
			return err
		}
		if err := b.ctx.VerifyInit(session, []*pkcs11.Mechanism{m.mech}, obj); err != nil {
			return fmt.Errorf("failed to init verify: %w", err)
		}
		return b.ctx.Verify(session, data, signature)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, pkcs11.Error(pkcs11.CKR_SIGNATURE_INVALID)),
		errors.Is(err, pkcs11.Error(pkcs11.CKR_SIGNATURE_LEN_RANGE)):
		return false, nil
	default:
		return false, err
	}
}

// DestroyKey destroys both token objects of the key pair.
func (b *Backend) DestroyKey(priv types.PrivateKeyHandle) error {
	k, err := b.ownPrivate(priv)
	if err != nil {
		return err
	}
	return b.withSession(func(session pkcs11.SessionHandle) error {
		for _, class := range []uint{pkcs11.CKO_PRIVATE_KEY, pkcs11.CKO_PUBLIC_KEY} {
			obj, err := b.findObject(session, class, k.id)
			if errors.Is(err, ErrObjectNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if err := b.ctx.DestroyObject(session, obj); err != nil {
				return fmt.Errorf("failed to destroy object: %w", err)
			}
		}
		return nil
	})
}

// Close logs out and finalizes the library.
func (b *Backend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var result *multierror.Error
	if err := b.ctx.Logout(b.loginSession); err != nil && err != pkcs11.Error(pkcs11.CKR_USER_NOT_LOGGED_IN) {
		result = multierror.Append(result, fmt.Errorf("failed to logout: %w", err))
	}
	if err := b.ctx.CloseSession(b.loginSession); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close session: %w", err))
	}
	b.finalize()
	return result.ErrorOrNil()
}

func (b *Backend) finalize() {
	_ = b.ctx.Finalize()
	b.ctx.Destroy()
}

// withSession runs fn in a fresh session on the selected slot.
func (b *Backend) withSession(fn func(pkcs11.SessionHandle) error) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return backend.ErrClosed
	}
	session, err := b.ctx.OpenSession(b.slot, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		return fmt.Errorf("failed to open session: %w", err)
	}
	defer func() { _ = b.ctx.CloseSession(session) }()
	return fn(session)
}

func (b *Backend) findObject(session pkcs11.SessionHandle, class uint, id []byte) (pkcs11.ObjectHandle, error) {
	template := []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_CLASS, class),
		pkcs11.NewAttribute(pkcs11.CKA_ID, id),
	}
	if err := b.ctx.FindObjectsInit(session, template); err != nil {
		return 0, fmt.Errorf("failed to init find: %w", err)
	}
	objs, _, err := b.ctx.FindObjects(session, 2)
	if finalErr := b.ctx.FindObjectsFinal(session); err == nil {
		err = finalErr
	}
	if err != nil {
		return 0, fmt.Errorf("failed to find objects: %w", err)
	}
	if len(objs) == 0 {
		return 0, fmt.Errorf("%w: %w", backend.ErrKeyNotFound, ErrObjectNotFound)
	}
	if len(objs) > 1 {
		return 0, fmt.Errorf("%w: duplicate CKA_ID", backend.ErrInvalidReference)
	}
	return objs[0], nil
}

func (b *Backend) readPublicKey(session pkcs11.SessionHandle, keyType types.KeyType, id []byte) (*publicKey, error) {
	obj, err := b.findObject(session, pkcs11.CKO_PUBLIC_KEY, id)
	if err != nil {
		return nil, err
	}

	var pub crypto.PublicKey
	switch keyType {
	case types.KeyTypeRSA:
		attrs, err := b.ctx.GetAttributeValue(session, obj, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_MODULUS, nil),
			pkcs11.NewAttribute(pkcs11.CKA_PUBLIC_EXPONENT, nil),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read RSA public key: %w", err)
		}
		pub, err = parseRSAPublicKey(attrs[0].Value, attrs[1].Value)
		if err != nil {
			return nil, err
		}
	case types.KeyTypeECDSA:
		attrs, err := b.ctx.GetAttributeValue(session, obj, []*pkcs11.Attribute{
			pkcs11.NewAttribute(pkcs11.CKA_EC_PARAMS, nil),
			pkcs11.NewAttribute(pkcs11.CKA_EC_POINT, nil),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to read EC public key: %w", err)
		}
		curve, err := parseECParams(attrs[0].Value)
		if err != nil {
			return nil, err
		}
		pub, err = parseECPoint(curve, attrs[1].Value)
		if err != nil {
			return nil, err
		}
	default:
		return nil, backend.ErrInvalidKeyParams
	}

	h, err := backend.NewPublicHandle(keyType, pub)
	if err != nil {
		return nil, err
	}
	return &publicKey{PublicHandle: h, id: bytes.Clone(id), owner: b}, nil
}

func (b *Backend) newPrivateKey(keyType types.KeyType, pub crypto.PublicKey, id []byte) (*privateKey, error) {
	h, err := backend.NewOpaqueHandle(keyType, pub)
	if err != nil {
		return nil, err
	}
	return &privateKey{OpaqueHandle: h, id: id, owner: b}, nil
}

// selectMechanism returns the first candidate mechanism the slot offers
// with flag set.
func (b *Backend) selectMechanism(alg types.Algorithm, flag uint) (*mechanism, error) {
	candidates, err := mechanismsFor(alg)
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		info, err := b.ctx.GetMechanismInfo(b.slot, []*pkcs11.Mechanism{candidates[i].mech})
		if err != nil {
			continue
		}
		if info.Flags&flag != 0 {
			return &candidates[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", backend.ErrOperationNotSupported, alg)
}

// input returns the data passed to the token for m: the message itself, or
// its digest when the mechanism expects a prehashed input.
func (m *mechanism) input(alg types.Algorithm, message []byte) ([]byte, error) {
	if !m.prehash {
		return message, nil
	}
	return alg.Hash().Digest(message)
}

// objectOf returns the CKA_ID and object class that executes op for handle.
func (b *Backend) objectOf(handle types.KeyHandle, op types.Operation) ([]byte, uint, error) {
	if op.UsesPrivateKey() {
		priv, ok := handle.(types.PrivateKeyHandle)
		if !ok {
			return nil, 0, backend.ErrInvalidHandle
		}
		k, err := b.ownPrivate(priv)
		if err != nil {
			return nil, 0, err
		}
		return k.id, pkcs11.CKO_PRIVATE_KEY, nil
	}
	pub, ok := handle.(types.PublicKeyHandle)
	if !ok {
		return nil, 0, backend.ErrInvalidHandle
	}
	k, err := b.ownPublic(pub)
	if err != nil {
		return nil, 0, err
	}
	return k.id, pkcs11.CKO_PUBLIC_KEY, nil
}

func (b *Backend) ownPrivate(priv types.PrivateKeyHandle) (*privateKey, error) {
	k, ok := priv.(*privateKey)
	if !ok || k.owner != b {
		return nil, backend.ErrInvalidHandle
	}
	return k, nil
}

func (b *Backend) ownPublic(pub types.PublicKeyHandle) (*publicKey, error) {
	k, ok := pub.(*publicKey)
	if !ok || k.owner != b {
		return nil, backend.ErrInvalidHandle
	}
	return k, nil
}

func keyTypeOf(value []byte) types.KeyType {
	var kt uint64
	switch len(value) {
	case 8:
		kt = binary.NativeEndian.Uint64(value)
	case 4:
		kt = uint64(binary.NativeEndian.Uint32(value))
	default:
		return 0
	}
	switch kt {
	case pkcs11.CKK_RSA:
		return types.KeyTypeRSA
	case pkcs11.CKK_EC:
		return types.KeyTypeECDSA
	default:
		return 0
	}
}

// Verify interface compliance at compile time
var _ backend.SecureElement = (*Backend)(nil)
