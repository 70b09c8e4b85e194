// Package storage provides the key-value persistence layer behind the
// dashboard state. Every collection is serialized independently under its
// own key, so a corrupt entry never blocks restoring the others.
package storage

import (
	"context"
	"errors"
)

// Persisted entry keys. The user name doubles as the first-run marker:
// when it is absent, the store starts in onboarding mode.
const (
	KeyUserName       = "user_name"
	KeyUserStats      = "user_stats"
	KeyTasks          = "tasks"
	KeyTransactions   = "transactions"
	KeyGoals          = "goals"
	KeyMonthlyLimit   = "monthly_limit"
	KeyInitialReserve = "initial_reserve"
)

// ErrNotFound is returned by Get when no entry exists for the key.
var ErrNotFound = errors.New("entry not found")

// KV is the storage port the state store persists through.
type KV interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Set stores value under key, overwriting any previous value.
	Set(ctx context.Context, key, value string) error

	Close() error
}
