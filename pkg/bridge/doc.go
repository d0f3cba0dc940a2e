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

// Package bridge is the boundary adapter of the enclave. Its operations take
// only strings and byte slices and return a Result: a failure flag and a
// message. On success the message is the operation's output; on failure it
// is a diagnostic starting with "Error: ".
//
// A Bridge refuses to create keys until InitializeModule has probed the
// secure element and found it available.
//
//	b, err := bridge.New(&bridge.Config{
//	    SecureElement: se,
//	    Storage:       store,
//	})
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
//
//	if !b.InitializeModule() {
//	    return errors.New("secure element unavailable")
//	}
//	failed, fingerprint := b.CreateKey("test-ec-1", "ECDSA;256").Pair()
package bridge
