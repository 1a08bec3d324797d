// Package timeouts names per-call deadline budgets for external calls.
// No other package in this module references these constants: callers
// take their deadlines from the context they are given or from their own
// parameters.
package timeouts

import "time"

const (
	// StoreConnect bounds a store's initial connection attempt.
	StoreConnect = 5 * time.Second
	// StorePing bounds a single health-check ping.
	StorePing = 2 * time.Second
	// HTTPCall bounds an outbound HTTP request (gamification API).
	HTTPCall = 10 * time.Second
	// BrokerPublish bounds a single publish attempt against the broker.
	BrokerPublish = 3 * time.Second
)
