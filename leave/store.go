/*
store.go - Persistence interfaces used by the approval service

PURPOSE:
  The engine itself never stores anything. The approval service needs a place
  to read employees and requests from and to write the results of a decision
  back to. These interfaces are that boundary.

ATOMIC DECISIONS:
  Approving a request reads the employee's balances, computes the deduction,
  writes the new balances and marks the request processed. WithTx runs all of
  that against one database transaction, so two approvals racing on the same
  employee cannot both read the old balance.

NOT FOUND:
  Lookups return an error wrapping generic.ErrNotFound for missing rows.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go
*/
package leave

import (
	"context"

	"github.com/warp/leave-engine/generic"
)

// Repository is the read/write surface available inside and outside a transaction.
type Repository interface {
	GetEmployee(ctx context.Context, id string) (*Employee, error)
	SaveEmployee(ctx context.Context, emp Employee) error

	GetRequest(ctx context.Context, id string) (*Request, error)
	SaveRequest(ctx context.Context, req Request) error

	// ListRequests returns the employee's requests starting within period,
	// ordered by start date.
	ListRequests(ctx context.Context, employeeID string, period generic.Period) ([]Request, error)
}

// Store adds transactions to Repository.
type Store interface {
	Repository

	// WithTx executes fn within a transaction.
	// If fn returns error, transaction is rolled back.
	WithTx(ctx context.Context, fn func(Repository) error) error
}
