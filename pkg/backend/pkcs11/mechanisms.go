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
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/asn1"
	"fmt"
	"math/big"

	"github.com/miekg/pkcs11"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"

	"github.com/jeremyhahn/go-enclave/pkg/types"
)

var (
	oidP256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 3, 1, 7}
	oidP384 = asn1.ObjectIdentifier{1, 3, 132, 0, 34}
	oidP521 = asn1.ObjectIdentifier{1, 3, 132, 0, 35}
)

// ecParams returns the DER encoded named curve for CKA_EC_PARAMS.
func ecParams(size int) ([]byte, error) {
	var oid asn1.ObjectIdentifier
	switch size {
	case types.ECDSAKeySize256:
		oid = oidP256
	case types.ECDSAKeySize384:
		oid = oidP384
	case types.ECDSAKeySize521:
		oid = oidP521
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedCurve, size)
	}
	var b cryptobyte.Builder
	b.AddASN1ObjectIdentifier(oid)
	return b.Bytes()
}

// parseECParams maps CKA_EC_PARAMS back to a curve.
func parseECParams(der []byte) (elliptic.Curve, error) {
	var oid asn1.ObjectIdentifier
	s := cryptobyte.String(der)
	if !s.ReadASN1ObjectIdentifier(&oid) {
		return nil, fmt.Errorf("%w: malformed EC params", ErrUnsupportedCurve)
	}
	switch {
	case oid.Equal(oidP256):
		return elliptic.P256(), nil
	case oid.Equal(oidP384):
		return elliptic.P384(), nil
	case oid.Equal(oidP521):
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurve, oid)
	}
}

// parseECPoint decodes CKA_EC_POINT. Most tokens wrap the uncompressed point
// in a DER OCTET STRING; some return it raw.
func parseECPoint(curve elliptic.Curve, value []byte) (*ecdsa.PublicKey, error) {
	point := value
	var inner cryptobyte.String
	s := cryptobyte.String(value)
	if s.ReadASN1(&inner, cbasn1.OCTET_STRING) && s.Empty() {
		point = inner
	}
	//nolint:staticcheck // elliptic.Unmarshal is deprecated for ECDH but we need ECDSA
	x, y := elliptic.Unmarshal(curve, point)
	if x == nil {
		return nil, fmt.Errorf("failed to unmarshal EC point")
	}
	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

func parseRSAPublicKey(modulus, exponent []byte) (*rsa.PublicKey, error) {
	if len(modulus) == 0 || len(exponent) == 0 {
		return nil, fmt.Errorf("missing RSA public key attributes")
	}
	e := new(big.Int).SetBytes(exponent)
	if !e.IsInt64() || e.Int64() > 1<<31-1 {
		return nil, fmt.Errorf("RSA public exponent out of range")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(modulus), E: int(e.Int64())}, nil
}

// hashMechanisms maps a hash to its CKM digest and CKG MGF1 constants.
func hashMechanisms(h types.Hash) (hashMech, mgf uint, err error) {
	switch h {
	case types.HashSHA1:
		return pkcs11.CKM_SHA_1, pkcs11.CKG_MGF1_SHA1, nil
	case types.HashSHA224:
		return pkcs11.CKM_SHA224, pkcs11.CKG_MGF1_SHA224, nil
	case types.HashSHA256:
		return pkcs11.CKM_SHA256, pkcs11.CKG_MGF1_SHA256, nil
	case types.HashSHA384:
		return pkcs11.CKM_SHA384, pkcs11.CKG_MGF1_SHA384, nil
	default:
		return 0, 0, fmt.Errorf("unsupported hash %s", h)
	}
}

// mechanism describes how a token executes an algorithm token. When
// prehash is set, the host computes the digest and the token signs it.
type mechanism struct {
	mech    *pkcs11.Mechanism
	prehash bool
	raw     bool
}

// mechanismsFor returns the candidate mechanisms for alg in preference
// order.
func mechanismsFor(alg types.Algorithm) ([]mechanism, error) {
	hashMech, mgf, err := hashMechanisms(alg.Hash())
	if err != nil {
		return nil, err
	}

	switch alg.Scheme() {
	case types.SchemeRSAOAEP:
		params := pkcs11.NewOAEPParams(hashMech, mgf, pkcs11.CKZ_DATA_SPECIFIED, nil)
		return []mechanism{{mech: pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_OAEP, params)}}, nil

	case types.SchemeRSAPSS:
		params := pkcs11.NewPSSParams(hashMech, mgf, uint(alg.Hash().Size()))
		var combined uint
		switch alg.Hash() {
		case types.HashSHA224:
			combined = pkcs11.CKM_SHA224_RSA_PKCS_PSS
		case types.HashSHA256:
			combined = pkcs11.CKM_SHA256_RSA_PKCS_PSS
		case types.HashSHA384:
			combined = pkcs11.CKM_SHA384_RSA_PKCS_PSS
		}
		return []mechanism{
			{mech: pkcs11.NewMechanism(combined, params)},
			{mech: pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS_PSS, params), prehash: true},
		}, nil

	case types.SchemeECDSAX962:
		var combined uint
		switch alg.Hash() {
		case types.HashSHA224:
			combined = pkcs11.CKM_ECDSA_SHA224
		case types.HashSHA256:
			combined = pkcs11.CKM_ECDSA_SHA256
		case types.HashSHA384:
			combined = pkcs11.CKM_ECDSA_SHA384
		}
		return []mechanism{
			{mech: pkcs11.NewMechanism(combined, nil), raw: true},
			{mech: pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil), prehash: true, raw: true},
		}, nil
	}
	return nil, fmt.Errorf("unsupported algorithm %s", alg)
}

// operationFlag returns the CKF mechanism flag and CKA key usage attribute
// required for op.
func operationFlag(op types.Operation) (flag uint, attr uint) {
	switch op {
	case types.OperationEncrypt:
		return pkcs11.CKF_ENCRYPT, pkcs11.CKA_ENCRYPT
	case types.OperationDecrypt:
		return pkcs11.CKF_DECRYPT, pkcs11.CKA_DECRYPT
	case types.OperationSign:
		return pkcs11.CKF_SIGN, pkcs11.CKA_SIGN
	default:
		return pkcs11.CKF_VERIFY, pkcs11.CKA_VERIFY
	}
}
