// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Giiku Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result labels for login and registration metrics.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultInvalid = "invalid"
	ResultError   = "error"
)

// Hash operation labels.
const (
	HashOpHash   = "hash"
	HashOpVerify = "verify"
)

// LoginAttempts is the counter for login attempts by result.
// Use RegisterMetrics to register this with a Prometheus registry.
var LoginAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "giiku_auth_logins_total",
		Help: "Total number of login attempts by result",
	},
	[]string{"result"},
)

// Registrations is the counter for registration attempts by result.
var Registrations = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "giiku_auth_registrations_total",
		Help: "Total number of registration attempts by result",
	},
	[]string{"result"},
)

// GuardDenials is the counter for authorization denials by check.
var GuardDenials = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "giiku_guard_denials_total",
		Help: "Total number of authorization guard denials by check",
	},
	[]string{"check"},
)

// HashDuration is the histogram for password hash and verify duration.
var HashDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "giiku_password_hash_duration_seconds",
		Help:    "Password hashing duration in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"op"},
)

// RegisterMetrics registers auth package metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(LoginAttempts)
	reg.MustRegister(Registrations)
	reg.MustRegister(GuardDenials)
	reg.MustRegister(HashDuration)
}

// RecordLogin increments the login counter.
func RecordLogin(result string) {
	LoginAttempts.WithLabelValues(result).Inc()
}

// RecordRegistration increments the registration counter.
func RecordRegistration(result string) {
	Registrations.WithLabelValues(result).Inc()
}

// RecordGuardDenial increments the guard denial counter for the named check.
func RecordGuardDenial(check string) {
	GuardDenials.WithLabelValues(check).Inc()
}

// RecordHashDuration observes a hash or verify duration.
func RecordHashDuration(op string, d time.Duration) {
	HashDuration.WithLabelValues(op).Observe(d.Seconds())
}
