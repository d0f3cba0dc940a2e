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

package health

import (
	"context"
	"testing"

	"github.com/jeremyhahn/go-enclave/pkg/backend/mocks"
	"github.com/jeremyhahn/go-enclave/pkg/storage/memory"
	"github.com/jeremyhahn/go-enclave/pkg/types"
)

func TestRegisterCheck(t *testing.T) {
	checker := NewChecker()
	checker.RegisterCheck("b", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusHealthy}
	})
	checker.RegisterCheck("a", func(ctx context.Context) CheckResult {
		return CheckResult{Status: StatusDegraded}
	})
	checker.RegisterCheck("nil", nil)

	names := checker.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Fatalf("names = %v, want [a b]", names)
	}

	results := checker.Run(context.Background())
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Name != "a" || results[0].Status != StatusDegraded {
		t.Errorf("unexpected first result: %+v", results[0])
	}
	if results[1].Name != "b" || results[1].Status != StatusHealthy {
		t.Errorf("unexpected second result: %+v", results[1])
	}
}

func TestRunEmpty(t *testing.T) {
	if results := NewChecker().Run(context.Background()); len(results) != 0 {
		t.Errorf("expected no results, got %d", len(results))
	}
}

func TestAggregateStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", []Status{StatusHealthy, StatusHealthy}, StatusHealthy},
		{"degraded", []Status{StatusHealthy, StatusDegraded}, StatusDegraded},
		{"unhealthy wins", []Status{StatusDegraded, StatusUnhealthy, StatusHealthy}, StatusUnhealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := make([]CheckResult, len(tt.statuses))
			for i, s := range tt.statuses {
				results[i] = CheckResult{Status: s}
			}
			if got := AggregateStatus(results); got != tt.want {
				t.Errorf("AggregateStatus() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestSecureElementCheck(t *testing.T) {
	se := new(mocks.SecureElement)
	se.On("Type").Return(types.BackendTypeTPM2)
	se.On("Available").Return(true).Once()
	se.On("Available").Return(false).Once()

	check := SecureElementCheck(se)
	if got := check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("expected healthy, got %+v", got)
	}
	got := check(context.Background())
	if got.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy, got %+v", got)
	}
	if got.Message != "tpm2 secure element is not available" {
		t.Errorf("unexpected message %q", got.Message)
	}
}

func TestStorageCheck(t *testing.T) {
	store := memory.New()
	check := StorageCheck(store)
	if got := check(context.Background()); got.Status != StatusHealthy {
		t.Errorf("expected healthy, got %+v", got)
	}

	if err := store.Close(); err != nil {
		t.Fatal(err)
	}
	got := check(context.Background())
	if got.Status != StatusUnhealthy {
		t.Errorf("expected unhealthy after close, got %+v", got)
	}
	if got.Error == "" {
		t.Error("expected error detail")
	}
}
