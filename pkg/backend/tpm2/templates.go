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
	"crypto"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/go-tpm/tpm2"
	"github.com/jeremyhahn/go-enclave/pkg/backend"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

const referenceVersion = 1

// keyReference is the persisted form of a TPM key: the public area and the
// private area wrapped by the storage root key.
type keyReference struct {
	Version uint8         `cbor:"1,keyasint"`
	KeyType types.KeyType `cbor:"2,keyasint"`
	Public  []byte        `cbor:"3,keyasint"`
	Private []byte        `cbor:"4,keyasint"`
}

func encodeReference(keyType types.KeyType, public tpm2.TPM2BPublic, private tpm2.TPM2BPrivate) ([]byte, error) {
	return cbor.Marshal(keyReference{
		Version: referenceVersion,
		KeyType: keyType,
		Public:  public.Bytes(),
		Private: private.Buffer,
	})
}

func decodeReference(data []byte) (*keyReference, error) {
	var ref keyReference
	if err := cbor.Unmarshal(data, &ref); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrInvalidReference, err)
	}
	if ref.Version != referenceVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", backend.ErrInvalidReference, ref.Version)
	}
	if len(ref.Public) == 0 || len(ref.Private) == 0 {
		return nil, fmt.Errorf("%w: missing key blob", backend.ErrInvalidReference)
	}
	return &ref, nil
}

// keyTemplate returns the public area template for a new unrestricted key.
// Keys are always fixedTPM and fixedParent: nothing created here can be
// duplicated off the TPM.
func keyTemplate(params *types.KeyParams) (tpm2.TPMTPublic, error) {
	attrs := tpm2.TPMAObject{
		FixedTPM:            true,
		FixedParent:         true,
		SensitiveDataOrigin: true,
		UserWithAuth:        true,
		NoDA:                true,
		SignEncrypt:         true,
	}

	switch params.KeyType {
	case types.KeyTypeRSA:
		attrs.Decrypt = true
		return tpm2.TPMTPublic{
			Type:             tpm2.TPMAlgRSA,
			NameAlg:          tpm2.TPMAlgSHA256,
			ObjectAttributes: attrs,
			Parameters: tpm2.NewTPMUPublicParms(
				tpm2.TPMAlgRSA,
				&tpm2.TPMSRSAParms{
					Symmetric: tpm2.TPMTSymDefObject{Algorithm: tpm2.TPMAlgNull},
					Scheme:    tpm2.TPMTRSAScheme{Scheme: tpm2.TPMAlgNull},
					KeyBits:   tpm2.TPMKeyBits(params.KeySize),
				},
			),
			Unique: tpm2.NewTPMUPublicID(
				tpm2.TPMAlgRSA,
				&tpm2.TPM2BPublicKeyRSA{Buffer: make([]byte, params.KeySize/8)},
			),
		}, nil

	case types.KeyTypeECDSA:
		curveID, err := eccCurve(params.KeySize)
		if err != nil {
			return tpm2.TPMTPublic{}, err
		}
		return tpm2.TPMTPublic{
			Type:             tpm2.TPMAlgECC,
			NameAlg:          tpm2.TPMAlgSHA256,
			ObjectAttributes: attrs,
			Parameters: tpm2.NewTPMUPublicParms(
				tpm2.TPMAlgECC,
				&tpm2.TPMSECCParms{
					Symmetric: tpm2.TPMTSymDefObject{Algorithm: tpm2.TPMAlgNull},
					Scheme:    tpm2.TPMTECCScheme{Scheme: tpm2.TPMAlgNull},
					CurveID:   curveID,
					KDF:       tpm2.TPMTKDFScheme{Scheme: tpm2.TPMAlgNull},
				},
			),
			Unique: tpm2.NewTPMUPublicID(
				tpm2.TPMAlgECC,
				&tpm2.TPMSECCPoint{},
			),
		}, nil
	}
	return tpm2.TPMTPublic{}, fmt.Errorf("%w: %s", backend.ErrInvalidKeyParams, params.KeyType)
}

func eccCurve(size int) (tpm2.TPMECCCurve, error) {
	switch size {
	case types.ECDSAKeySize256:
		return tpm2.TPMECCNistP256, nil
	case types.ECDSAKeySize384:
		return tpm2.TPMECCNistP384, nil
	case types.ECDSAKeySize521:
		return tpm2.TPMECCNistP521, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedCurve, size)
}

// hashAlgID maps a hash to its TPM algorithm ID. SHA-224 has no entry in
// the TCG algorithm registry.
func hashAlgID(h types.Hash) (tpm2.TPMAlgID, error) {
	switch h {
	case types.HashSHA1:
		return tpm2.TPMAlgSHA1, nil
	case types.HashSHA256:
		return tpm2.TPMAlgSHA256, nil
	case types.HashSHA384:
		return tpm2.TPMAlgSHA384, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnsupportedHash, h)
}

// schemeAlgID maps an algorithm token to the TPM scheme it runs as.
func schemeAlgID(alg types.Algorithm) (tpm2.TPMAlgID, bool) {
	switch alg.Scheme() {
	case types.SchemeRSAOAEP:
		return tpm2.TPMAlgOAEP, true
	case types.SchemeRSAPSS:
		return tpm2.TPMAlgRSAPSS, true
	case types.SchemeECDSAX962:
		return tpm2.TPMAlgECDSA, true
	}
	return 0, false
}

// decodePublic decodes a TPM public area into a Go public key.
func decodePublic(pub *tpm2.TPMTPublic) (crypto.PublicKey, types.KeyType, error) {
	switch pub.Type {
	case tpm2.TPMAlgRSA:
		rsaDetail, err := pub.Parameters.RSADetail()
		if err != nil {
			return nil, 0, err
		}
		rsaUnique, err := pub.Unique.RSA()
		if err != nil {
			return nil, 0, err
		}
		rsaPub, err := tpm2.RSAPub(rsaDetail, rsaUnique)
		if err != nil {
			return nil, 0, err
		}
		return rsaPub, types.KeyTypeRSA, nil

	case tpm2.TPMAlgECC:
		eccDetail, err := pub.Parameters.ECCDetail()
		if err != nil {
			return nil, 0, err
		}
		eccUnique, err := pub.Unique.ECC()
		if err != nil {
			return nil, 0, err
		}
		curve, err := eccDetail.CurveID.Curve()
		if err != nil {
			return nil, 0, err
		}
		return &ecdsa.PublicKey{
			Curve: curve,
			X:     new(big.Int).SetBytes(eccUnique.X.Buffer),
			Y:     new(big.Int).SetBytes(eccUnique.Y.Buffer),
		}, types.KeyTypeECDSA, nil
	}
	return nil, 0, fmt.Errorf("%w: type %v", ErrUnexpectedPublicArea, pub.Type)
}

// usageAllowed checks the object attributes of a key against op.
func usageAllowed(pub *tpm2.TPMTPublic, op types.Operation) bool {
	switch op {
	case types.OperationEncrypt, types.OperationDecrypt:
		return pub.ObjectAttributes.Decrypt && !pub.ObjectAttributes.Restricted
	case types.OperationSign, types.OperationVerify:
		return pub.ObjectAttributes.SignEncrypt && !pub.ObjectAttributes.Restricted
	}
	return false
}

func newInt(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
