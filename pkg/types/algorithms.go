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
	"strconv"
	"strings"
)

// =============================================================================
// Algorithm Tokens
// =============================================================================

// Algorithm is a platform algorithm token. Each token fixes the key type,
// padding scheme and hash of an operation.
type Algorithm string

const (
	AlgorithmRSASignatureMessagePSSSHA224 Algorithm = "rsaSignatureMessagePSSSHA224"
	AlgorithmRSASignatureMessagePSSSHA256 Algorithm = "rsaSignatureMessagePSSSHA256"
	AlgorithmRSASignatureMessagePSSSHA384 Algorithm = "rsaSignatureMessagePSSSHA384"

	AlgorithmECDSASignatureMessageX962SHA224 Algorithm = "ecdsaSignatureMessageX962SHA224"
	AlgorithmECDSASignatureMessageX962SHA256 Algorithm = "ecdsaSignatureMessageX962SHA256"
	AlgorithmECDSASignatureMessageX962SHA384 Algorithm = "ecdsaSignatureMessageX962SHA384"

	AlgorithmRSAEncryptionOAEPSHA1   Algorithm = "rsaEncryptionOAEPSHA1"
	AlgorithmRSAEncryptionOAEPSHA224 Algorithm = "rsaEncryptionOAEPSHA224"
	AlgorithmRSAEncryptionOAEPSHA256 Algorithm = "rsaEncryptionOAEPSHA256"
	AlgorithmRSAEncryptionOAEPSHA384 Algorithm = "rsaEncryptionOAEPSHA384"
)

// Scheme is the padding / signature scheme of an algorithm token.
type Scheme uint8

const (
	SchemeUnknown Scheme = iota
	SchemeRSAPSS
	SchemeRSAOAEP
	SchemeECDSAX962
)

// String returns the scheme name.
func (s Scheme) String() string {
	switch s {
	case SchemeRSAPSS:
		return "RSA-PSS"
	case SchemeRSAOAEP:
		return "RSA-OAEP"
	case SchemeECDSAX962:
		return "ECDSA-X9.62"
	default:
		return "unknown"
	}
}

type algorithmInfo struct {
	keyType KeyType
	scheme  Scheme
	hash    Hash
}

var algorithmInfos = map[Algorithm]algorithmInfo{
	AlgorithmRSASignatureMessagePSSSHA224:    {KeyTypeRSA, SchemeRSAPSS, HashSHA224},
	AlgorithmRSASignatureMessagePSSSHA256:    {KeyTypeRSA, SchemeRSAPSS, HashSHA256},
	AlgorithmRSASignatureMessagePSSSHA384:    {KeyTypeRSA, SchemeRSAPSS, HashSHA384},
	AlgorithmECDSASignatureMessageX962SHA224: {KeyTypeECDSA, SchemeECDSAX962, HashSHA224},
	AlgorithmECDSASignatureMessageX962SHA256: {KeyTypeECDSA, SchemeECDSAX962, HashSHA256},
	AlgorithmECDSASignatureMessageX962SHA384: {KeyTypeECDSA, SchemeECDSAX962, HashSHA384},
	AlgorithmRSAEncryptionOAEPSHA1:           {KeyTypeRSA, SchemeRSAOAEP, HashSHA1},
	AlgorithmRSAEncryptionOAEPSHA224:         {KeyTypeRSA, SchemeRSAOAEP, HashSHA224},
	AlgorithmRSAEncryptionOAEPSHA256:         {KeyTypeRSA, SchemeRSAOAEP, HashSHA256},
	AlgorithmRSAEncryptionOAEPSHA384:         {KeyTypeRSA, SchemeRSAOAEP, HashSHA384},
}

// String returns the token.
func (a Algorithm) String() string {
	return string(a)
}

// IsValid returns true if a is a known token.
func (a Algorithm) IsValid() bool {
	_, ok := algorithmInfos[a]
	return ok
}

// KeyType returns the key type the token applies to.
func (a Algorithm) KeyType() KeyType {
	return algorithmInfos[a].keyType
}

// Scheme returns the padding / signature scheme of the token.
func (a Algorithm) Scheme() Scheme {
	return algorithmInfos[a].scheme
}

// Hash returns the hash function of the token.
func (a Algorithm) Hash() Hash {
	return algorithmInfos[a].hash
}

// IsSignature returns true for signing / verification tokens.
func (a Algorithm) IsSignature() bool {
	s := a.Scheme()
	return s == SchemeRSAPSS || s == SchemeECDSAX962
}

// IsEncryption returns true for encryption / decryption tokens.
func (a Algorithm) IsEncryption() bool {
	return a.Scheme() == SchemeRSAOAEP
}

// =============================================================================
// Acceptance Tables
// =============================================================================

type algorithmKey struct {
	keyType KeyType
	op      Operation
	hash    Hash
}

// algorithmTable is the complete set of accepted (key type, operation, hash)
// combinations. A miss is an unsupported combination. The table is never
// modified after initialization.
var algorithmTable = buildAlgorithmTable()

func buildAlgorithmTable() map[algorithmKey]Algorithm {
	signing := map[KeyType]map[Hash]Algorithm{
		KeyTypeRSA: {
			HashSHA224: AlgorithmRSASignatureMessagePSSSHA224,
			HashSHA256: AlgorithmRSASignatureMessagePSSSHA256,
			HashSHA384: AlgorithmRSASignatureMessagePSSSHA384,
		},
		KeyTypeECDSA: {
			HashSHA224: AlgorithmECDSASignatureMessageX962SHA224,
			HashSHA256: AlgorithmECDSASignatureMessageX962SHA256,
			HashSHA384: AlgorithmECDSASignatureMessageX962SHA384,
		},
	}
	encryption := map[KeyType]map[Hash]Algorithm{
		KeyTypeRSA: {
			HashSHA1:   AlgorithmRSAEncryptionOAEPSHA1,
			HashSHA224: AlgorithmRSAEncryptionOAEPSHA224,
			HashSHA256: AlgorithmRSAEncryptionOAEPSHA256,
			HashSHA384: AlgorithmRSAEncryptionOAEPSHA384,
		},
	}

	table := make(map[algorithmKey]Algorithm)
	for kt, hashes := range signing {
		for h, alg := range hashes {
			table[algorithmKey{kt, OperationSign, h}] = alg
			table[algorithmKey{kt, OperationVerify, h}] = alg
		}
	}
	for kt, hashes := range encryption {
		for h, alg := range hashes {
			table[algorithmKey{kt, OperationEncrypt, h}] = alg
			table[algorithmKey{kt, OperationDecrypt, h}] = alg
		}
	}
	return table
}

// AlgorithmFor looks up the token for a combination. The second return
// value is false when the combination is not accepted.
func AlgorithmFor(keyType KeyType, op Operation, hash Hash) (Algorithm, bool) {
	alg, ok := algorithmTable[algorithmKey{keyType, op, hash}]
	return alg, ok
}

// AlgorithmSpec is a resolved (key type, operation, hash) combination and
// its platform token.
type AlgorithmSpec struct {
	KeyType   KeyType
	Operation Operation
	Hash      Hash
	Algorithm Algorithm
}

// String returns "<KEYTYPE>/<op>/<HASH>=<token>".
func (s AlgorithmSpec) String() string {
	return s.KeyType.String() + "/" + s.Operation.String() + "/" + s.Hash.String() + "=" + s.Algorithm.String()
}

// SupportedAlgorithms returns a copy of the acceptance table.
func SupportedAlgorithms() []AlgorithmSpec {
	specs := make([]AlgorithmSpec, 0, len(algorithmTable))
	for k, alg := range algorithmTable {
		specs = append(specs, AlgorithmSpec{
			KeyType:   k.keyType,
			Operation: k.op,
			Hash:      k.hash,
			Algorithm: alg,
		})
	}
	return specs
}

// =============================================================================
// Resolver
// =============================================================================

// ResolveKeyType maps exactly "RSA" or "ECDSA" to a KeyType.
func ResolveKeyType(s string) (KeyType, error) {
	switch s {
	case "RSA":
		return KeyTypeRSA, nil
	case "ECDSA":
		return KeyTypeECDSA, nil
	default:
		return 0, NewError(KindUnsupportedKeyType, "unsupported key type %q", s)
	}
}

// ResolveHash maps exactly "SHA1", "SHA224", "SHA256" or "SHA384" to a Hash.
func ResolveHash(s string) (Hash, error) {
	switch s {
	case "SHA1":
		return HashSHA1, nil
	case "SHA224":
		return HashSHA224, nil
	case "SHA256":
		return HashSHA256, nil
	case "SHA384":
		return HashSHA384, nil
	default:
		return 0, NewError(KindUnsupportedAlgorithmOrHash, "unsupported hash %q", s)
	}
}

// ResolveAlgorithm resolves the key type and hash strings for op. Unknown key
// types fail with KindUnsupportedKeyType; unknown hashes and table misses fail
// with KindUnsupportedAlgorithmOrHash.
func ResolveAlgorithm(keyType, hash string, op Operation) (*AlgorithmSpec, error) {
	kt, err := ResolveKeyType(keyType)
	if err != nil {
		return nil, err
	}
	h, err := ResolveHash(hash)
	if err != nil {
		return nil, err
	}
	alg, ok := AlgorithmFor(kt, op, h)
	if !ok {
		return nil, NewError(KindUnsupportedAlgorithmOrHash,
			"%s keys do not support %s with %s", kt, op, h)
	}
	return &AlgorithmSpec{
		KeyType:   kt,
		Operation: op,
		Hash:      h,
		Algorithm: alg,
	}, nil
}

// ResolveSignAlgorithm resolves a signing algorithm.
func ResolveSignAlgorithm(keyType, hash string) (*AlgorithmSpec, error) {
	return ResolveAlgorithm(keyType, hash, OperationSign)
}

// ResolveEncryptAlgorithm resolves an encryption algorithm.
func ResolveEncryptAlgorithm(keyType, hash string) (*AlgorithmSpec, error) {
	return ResolveAlgorithm(keyType, hash, OperationEncrypt)
}

// ParseKeySpec parses the "TYPE;SIZE" form used by key creation. An unknown
// TYPE fails with KindUnsupportedKeyType; any other defect fails with
// KindCreateKeyError.
func ParseKeySpec(spec string) (*KeyParams, error) {
	parts := strings.Split(spec, ";")
	if len(parts) != 2 {
		return nil, NewError(KindCreateKeyError, "invalid key spec %q, expected TYPE;SIZE", spec)
	}
	kt, err := ResolveKeyType(parts[0])
	if err != nil {
		return nil, err
	}
	if !isDecimal(parts[1]) {
		return nil, NewError(KindCreateKeyError, "invalid key size %q", parts[1])
	}
	size, err := strconv.Atoi(parts[1])
	if err != nil {
		return nil, NewError(KindCreateKeyError, "invalid key size %q", parts[1])
	}
	params := &KeyParams{KeyType: kt, KeySize: size}
	if err := params.Validate(); err != nil {
		return nil, WrapError(KindCreateKeyError, err, "invalid key spec %q", spec)
	}
	return params, nil
}

// isDecimal reports whether s is a non-empty run of ASCII digits.
func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
