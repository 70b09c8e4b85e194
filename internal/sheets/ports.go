// Package sheets defines the outbound ledger-export port.
package sheets

import (
	"context"

	"grana/internal/core"
)

// LedgerAppender appends one transaction row to an external ledger.
type LedgerAppender interface {
	AppendTransaction(ctx context.Context, tx core.Transaction) (rowRef string, err error)
}
