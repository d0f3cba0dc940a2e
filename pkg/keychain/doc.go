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

// Package keychain is the key operation engine. It resolves algorithm names,
// loads keys through the key store, asks the secure element whether the
// loaded key can run the requested algorithm and then runs the operation.
//
// Keys never leave the secure element. Every operation loads its key afresh
// by (identifier, key type) and discards the handle when it returns; the
// engine holds no key cache.
//
// Ciphertexts and signatures cross the engine boundary as standard base64
// strings. Malformed base64 is rejected before the secure element is asked
// to do anything.
//
//	engine, err := keychain.New(&keychain.Config{KeyStore: keys})
//	if err != nil {
//	    return err
//	}
//	sig, err := engine.Sign(ctx, "device-1", []byte("hello"), "ECDSA", "SHA256")
//	ok, err := engine.Verify(ctx, "device-1", []byte("hello"), sig, "ECDSA", "SHA256")
package keychain
