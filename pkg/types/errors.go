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

package types

import (
	"errors"
	"fmt"
)

// Kind is the closed error taxonomy of the enclave. Every fault returned by
// the keystore, keychain and bridge packages carries exactly one kind.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindUnsupportedKeyType
	KindUnsupportedAlgorithmOrHash
	KindCreateKeyError
	KindLoadKeyError
	KindEncryptionError
	KindDecryptionError
	KindSigningError
	KindSignatureVerificationError
	KindInitializationError
)

// String returns the taxonomy name of the kind.
func (k Kind) String() string {
	switch k {
	case KindUnsupportedKeyType:
		return "UnsupportedKeyType"
	case KindUnsupportedAlgorithmOrHash:
		return "UnsupportedAlgorithmOrHash"
	case KindCreateKeyError:
		return "CreateKeyError"
	case KindLoadKeyError:
		return "LoadKeyError"
	case KindEncryptionError:
		return "EncryptionError"
	case KindDecryptionError:
		return "DecryptionError"
	case KindSigningError:
		return "SigningError"
	case KindSignatureVerificationError:
		return "SignatureVerificationError"
	case KindInitializationError:
		return "InitializationError"
	default:
		return "Unknown"
	}
}

// KindForOperation returns the fault kind reported by op.
func KindForOperation(op Operation) Kind {
	switch op {
	case OperationEncrypt:
		return KindEncryptionError
	case OperationDecrypt:
		return KindDecryptionError
	case OperationSign:
		return KindSigningError
	case OperationVerify:
		return KindSignatureVerificationError
	default:
		return KindUnknown
	}
}

// Error is the tagged error carried through the enclave. It is flattened to
// a boolean and a message only at the bridge.
type Error struct {
	Kind  Kind
	Op    string
	KeyID string
	Msg   string
	Err   error
}

// NewError returns a tagged error with a formatted message.
func NewError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// WrapError tags err with kind. A nil err returns nil.
func WrapError(kind Kind, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// WithKey returns a copy of e annotated with the operation and key identifier.
func (e *Error) WithKey(op, keyID string) *Error {
	c := *e
	c.Op = op
	c.KeyID = keyID
	return &c
}

// Error renders "<msg>: <cause>". Kind, op and key ID are left to callers
// that format diagnostics.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by kind, so errors.Is(err, &Error{Kind: k})
// tests the taxonomy tag.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Msg == "" || t.Msg == e.Msg)
}

// KindOf returns the kind of the first *Error in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool {
	return KindOf(err) == k
}

// Sentinels usable with errors.Is to test only the kind.
var (
	ErrUnsupportedKeyType         = &Error{Kind: KindUnsupportedKeyType}
	ErrUnsupportedAlgorithmOrHash = &Error{Kind: KindUnsupportedAlgorithmOrHash}
	ErrCreateKey                  = &Error{Kind: KindCreateKeyError}
	ErrLoadKey                    = &Error{Kind: KindLoadKeyError}
	ErrEncryption                 = &Error{Kind: KindEncryptionError}
	ErrDecryption                 = &Error{Kind: KindDecryptionError}
	ErrSigning                    = &Error{Kind: KindSigningError}
	ErrSignatureVerification      = &Error{Kind: KindSignatureVerificationError}
	ErrInitialization             = &Error{Kind: KindInitializationError}
)
