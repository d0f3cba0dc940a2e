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

// Package pkcs11 implements a secure element on PKCS#11 tokens and HSMs.
//
// Key pairs are generated on the token as non-extractable, sensitive token
// objects. The reference persisted for a key is its CKA_ID; the private key
// itself never leaves the token.
//
// # Usage Example
//
//	config := &pkcs11.Config{
//		Library:    "/usr/lib/softhsm/libsofthsm2.so",
//		TokenLabel: "enclave",
//		PIN:        "user1234",
//	}
//
//	se, err := pkcs11.NewBackend(config)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer se.Close()
//
// # Mechanisms
//
//   - RSA encryption: CKM_RSA_PKCS_OAEP with MGF1 matching the OAEP hash
//   - RSA signatures: CKM_SHA{224,256,384}_RSA_PKCS_PSS, salt length equal to the hash
//   - ECDSA signatures: CKM_ECDSA_SHA{224,256,384}, falling back to CKM_ECDSA
//     over a host computed digest when the token lacks the combined mechanism
//
// The package requires cgo and is built with -tags pkcs11.
package pkcs11
