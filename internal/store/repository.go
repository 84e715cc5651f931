/**
 * @description
 * This file defines the data access contract for the wallet-service. The engine is
 * written against this interface so the durable backend can be PostgreSQL in
 * production and an in-memory store in tests and local development.
 *
 * The one non-negotiable property of any implementation is the durability unit:
 * CommitMovement must apply the balance delta(s) and append the transaction
 * record(s) atomically. Either everything becomes durable or nothing does.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/google/uuid: Account identifiers.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/swiftkwacha/wallet-service/internal/domain"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrStorageFailure    = errors.New("storage failure")
)

// Repository is the persistence boundary of the wallet engine.
type Repository interface {
	// CreateAccount inserts a new account row. Registration itself lives upstream;
	// this is the hook that collaborator (and the tests) use to provision wallets.
	CreateAccount(ctx context.Context, account *domain.Account) error

	// FindAccountByID returns the account or ErrAccountNotFound.
	FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error)

	// FindAccountIDByUsername resolves a human-readable identifier to an account id.
	// Returns ErrAccountNotFound when no such account exists.
	FindAccountIDByUsername(ctx context.Context, username string) (uuid.UUID, error)

	// GetBalance returns the latest committed balance in ngwee, or ErrAccountNotFound.
	GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error)

	// CommitMovement applies a validated movement as one atomic unit: it re-reads
	// the involved balances under lock, re-checks funds (ErrInsufficientFunds),
	// applies the delta(s), bumps account versions, and appends one record for a
	// deposit/withdrawal or two linked records for a transfer. It returns the
	// requester-side record including its assigned id and balance snapshot.
	// Any fault leaves the store byte-for-byte in its pre-operation state and
	// surfaces as ErrStorageFailure (or a domain sentinel above).
	CommitMovement(ctx context.Context, movement *domain.Movement) (*domain.TransactionRecord, error)

	// ListTransactions returns every record filed under the account, most recent
	// first (created_at descending, id descending as tiebreak).
	ListTransactions(ctx context.Context, accountID uuid.UUID) ([]domain.TransactionRecord, error)
}
