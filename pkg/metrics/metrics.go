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


// Package metrics provides Prometheus instrumentation for go-enclave key
// operations: operation counts and latencies, error counts by fault kind,
// secure element availability and key creation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/jeremyhahn/go-enclave/pkg/types"
)

const (
	// Namespace is the Prometheus namespace for all enclave metrics
	Namespace = "enclave"

	// Label names
	LabelOperation = "operation"
	LabelBackend   = "backend"
	LabelStatus    = "status"
	LabelErrorType = "error_type"
	LabelKeyType   = "key_type"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpCreate  = "create"
	OpLoad    = "load"
	OpEncrypt = "encrypt"
	OpDecrypt = "decrypt"
	OpSign    = "sign"
	OpVerify  = "verify"
)

// Metrics holds the enclave collectors. A nil *Metrics records nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	errors      *prometheus.CounterVec
	keysCreated *prometheus.CounterVec
	available   *prometheus.GaugeVec
}

// New registers the collectors with reg, or with the default registry
// when reg is nil. Registering twice with the same registry panics.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "operations_total",
				Help:      "Total number of key operations by type, backend, and status",
			},
			[]string{LabelOperation, LabelBackend, LabelStatus},
		),
		// Buckets cover software keys (sub-millisecond) through TPM RSA
		// operations (hundreds of milliseconds).
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of key operations in seconds",
				Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{LabelOperation, LabelBackend},
		),
		errors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "errors_total",
				Help:      "Total number of faults by operation, backend, and fault kind",
			},
			[]string{LabelOperation, LabelBackend, LabelErrorType},
		),
		keysCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "keys_created_total",
				Help:      "Total number of key pairs created and stored",
			},
			[]string{LabelBackend, LabelKeyType},
		),
		available: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "secure_element_available",
				Help:      "Secure element availability at initialization (1 = available)",
			},
			[]string{LabelBackend},
		),
	}
}

// Observe records the outcome of one operation that started at start. A
// non-nil err also counts a fault labelled with its taxonomy kind.
func (m *Metrics) Observe(operation string, backend types.BackendType, start time.Time, err error) {
	if m == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
		m.errors.WithLabelValues(operation, backend.String(), types.KindOf(err).String()).Inc()
	}
	m.operations.WithLabelValues(operation, backend.String(), status).Inc()
	m.duration.WithLabelValues(operation, backend.String()).Observe(time.Since(start).Seconds())
}

// KeyCreated counts a stored key pair.
func (m *Metrics) KeyCreated(backend types.BackendType, keyType types.KeyType) {
	if m == nil {
		return
	}
	m.keysCreated.WithLabelValues(backend.String(), keyType.String()).Inc()
}

// SetAvailable records the result of the initialization probe.
func (m *Metrics) SetAvailable(backend types.BackendType, available bool) {
	if m == nil {
		return
	}
	value := 0.0
	if available {
		value = 1.0
	}
	m.available.WithLabelValues(backend.String()).Set(value)
}
