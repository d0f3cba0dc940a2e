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


package correlation

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestWithCorrelationID(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		id   string
	}{
		{"background context", context.Background(), "test-correlation-id"},
		{"nil context", nil, "test-correlation-id-2"},
		{"empty id", context.Background(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := WithCorrelationID(tt.ctx, tt.id)
			if ctx == nil {
				t.Fatal("WithCorrelationID() returned nil context")
			}
			if got := GetCorrelationID(ctx); got != tt.id {
				t.Errorf("GetCorrelationID() = %q, want %q", got, tt.id)
			}
		})
	}
}

func TestGetCorrelationID_Missing(t *testing.T) {
	if got := GetCorrelationID(nil); got != "" { //nolint:staticcheck // nil context is part of the contract
		t.Errorf("GetCorrelationID(nil) = %q, want empty", got)
	}
	if got := GetCorrelationID(context.Background()); got != "" {
		t.Errorf("GetCorrelationID() = %q, want empty", got)
	}
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	if a == b {
		t.Error("NewID() returned duplicate IDs")
	}
	if _, err := uuid.Parse(a); err != nil {
		t.Errorf("NewID() = %q is not a UUID: %v", a, err)
	}
}

func TestEnsure(t *testing.T) {
	ctx, id := Ensure(context.Background())
	if id == "" {
		t.Fatal("Ensure() generated an empty ID")
	}
	if got := GetCorrelationID(ctx); got != id {
		t.Errorf("context carries %q, want %q", got, id)
	}

	again, same := Ensure(ctx)
	if same != id || again != ctx {
		t.Errorf("Ensure() replaced an existing ID: %q -> %q", id, same)
	}
}
