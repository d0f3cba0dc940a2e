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

package backend

import (
	"errors"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	"golang.org/x/crypto/cryptobyte/asn1"
)

var errInvalidSignature = errors.New("backend: invalid ECDSA signature encoding")

// MarshalECDSASignature encodes r and s as an X9.62 ASN.1 DER
// Ecdsa-Sig-Value.
func MarshalECDSASignature(r, s *big.Int) ([]byte, error) {
	var b cryptobyte.Builder
	b.AddASN1(asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1BigInt(r)
		b.AddASN1BigInt(s)
	})
	return b.Bytes()
}

// ParseECDSASignature decodes an X9.62 ASN.1 DER Ecdsa-Sig-Value.
func ParseECDSASignature(der []byte) (r, s *big.Int, err error) {
	r, s = new(big.Int), new(big.Int)
	var inner cryptobyte.String
	input := cryptobyte.String(der)
	if !input.ReadASN1(&inner, asn1.SEQUENCE) ||
		!input.Empty() ||
		!inner.ReadASN1Integer(r) ||
		!inner.ReadASN1Integer(s) ||
		!inner.Empty() {
		return nil, nil, errInvalidSignature
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return nil, nil, errInvalidSignature
	}
	return r, s, nil
}

// RawToDER converts a fixed-width R||S signature, as produced by PKCS#11
// tokens, to DER.
func RawToDER(raw []byte) ([]byte, error) {
	if len(raw) == 0 || len(raw)%2 != 0 {
		return nil, errInvalidSignature
	}
	half := len(raw) / 2
	return MarshalECDSASignature(
		new(big.Int).SetBytes(raw[:half]),
		new(big.Int).SetBytes(raw[half:]))
}

// DERToRaw converts a DER signature to fixed-width R||S for a curve of
// the given size in bits.
func DERToRaw(der []byte, curveBits int) ([]byte, error) {
	r, s, err := ParseECDSASignature(der)
	if err != nil {
		return nil, err
	}
	size := (curveBits + 7) / 8
	if r.BitLen() > size*8 || s.BitLen() > size*8 {
		return nil, errInvalidSignature
	}
	raw := make([]byte, 2*size)
	r.FillBytes(raw[:size])
	s.FillBytes(raw[size:])
	return raw, nil
}
