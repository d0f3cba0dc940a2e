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


package storage

import (
	"encoding/base64"
	"fmt"
	"strings"
)

// RecordPrefix is the namespace credential records live under.
const RecordPrefix = "records/"

// RecordKey returns the storage key of the record for (kind, id). The
// identifier is base64url encoded so that any string, including ones with
// path separators or "..", maps to a single safe path segment.
func RecordKey(kind, id string) (string, error) {
	if kind == "" || strings.ContainsAny(kind, "/\x00") {
		return "", fmt.Errorf("%w: kind %q", ErrInvalidID, kind)
	}
	if id == "" {
		return "", fmt.Errorf("%w: empty identifier", ErrInvalidID)
	}
	return RecordPrefix + kind + "/" + base64.RawURLEncoding.EncodeToString([]byte(id)), nil
}

// ParseRecordKey reverses RecordKey.
func ParseRecordKey(key string) (kind, id string, err error) {
	rest, ok := strings.CutPrefix(key, RecordPrefix)
	if !ok {
		return "", "", fmt.Errorf("%w: %q is not a record key", ErrInvalidID, key)
	}
	kind, encoded, ok := strings.Cut(rest, "/")
	if !ok || kind == "" || encoded == "" {
		return "", "", fmt.Errorf("%w: %q is not a record key", ErrInvalidID, key)
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return kind, string(raw), nil
}

// ListRecords returns the identifiers of every record of the given kind.
func ListRecords(backend Backend, kind string) ([]string, error) {
	keys, err := backend.List(RecordPrefix + kind + "/")
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		_, id, err := ParseRecordKey(k)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}
