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


// Package tpm2 implements a secure element on a TPM 2.0.
//
// Keys are created as ordinary (unrestricted) children of an RSA storage
// root key derived from the owner hierarchy seed. The TPM returns each key
// as a public area plus a private area wrapped by the storage root key; the
// pair is the key reference. The wrapped private area is meaningless off
// the TPM that created it.
//
// Every operation loads the key, runs the command and flushes the object,
// so at most one transient key occupies the TPM at a time. Commands are
// serialized by a mutex.
//
// Usage:
//
//	se, err := tpm2.NewBackend(&tpm2.Config{Device: "/dev/tpmrm0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer se.Close()
//
//	pair, err := se.GenerateKeyPair(&types.KeyParams{
//	    KeyType: types.KeyTypeECDSA,
//	    KeySize: 256,
//	}, types.DefaultAccessPolicy())
//
// A TPM does not implement SHA-224, so algorithms using it are reported as
// unsupported by Supports.
package tpm2
