/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * The critical method is CommitMovement, which realizes the engine's durability
 * unit as a single database transaction: ordered `SELECT ... FOR UPDATE` on every
 * involved account row, a funds re-check under lock, balance updates with a
 * version bump, and the record append(s), all committed together.
 *
 * Row locks are always taken in ascending account-id order so that two transfers
 * between the same pair of accounts in opposite directions cannot deadlock.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/swiftkwacha/wallet-service/internal/domain"
)

//go:embed schema.sql
var schemaDDL string

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema applies the embedded DDL. Statements are idempotent
// (CREATE TABLE IF NOT EXISTS), so this is safe to run on every boot.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaDDL); err != nil {
		return storageFailure("apply schema", err)
	}
	return nil
}

// CreateAccount inserts a new account row with its starting balance.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, username, balance, version, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, query,
		account.ID,
		account.Username,
		account.Balance,
		account.Version,
		account.CreatedAt,
	)
	if err != nil {
		return storageFailure("create account", err)
	}
	return nil
}

// FindAccountByID retrieves an account from the database by its ID.
func (r *PostgresRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT id, username, balance, version, created_at FROM accounts WHERE id = $1`
	err := r.db.QueryRow(ctx, query, accountID).Scan(
		&account.ID, &account.Username, &account.Balance, &account.Version, &account.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, storageFailure("find account", err)
	}
	return &account, nil
}

// FindAccountIDByUsername resolves a username to an account id.
func (r *PostgresRepository) FindAccountIDByUsername(ctx context.Context, username string) (uuid.UUID, error) {
	var id uuid.UUID
	query := `SELECT id FROM accounts WHERE lower(btrim(username)) = lower(btrim($1))`
	err := r.db.QueryRow(ctx, query, username).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ErrAccountNotFound
		}
		return uuid.Nil, storageFailure("resolve username", err)
	}
	return id, nil
}

// GetBalance returns the latest committed balance for an account.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1`, accountID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrAccountNotFound
		}
		return 0, storageFailure("get balance", err)
	}
	return balance, nil
}

// CommitMovement applies a movement inside one database transaction. See the
// Repository interface for the contract.
func (r *PostgresRepository) CommitMovement(ctx context.Context, movement *domain.Movement) (*domain.TransactionRecord, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, storageFailure("begin movement tx", err)
	}
	defer tx.Rollback(ctx)

	// Lock every involved row in ascending id order before reading balances.
	lockOrder := LockOrder(movement.AccountID, movement.CounterpartAccountID)
	balances := make(map[uuid.UUID]int64, len(lockOrder))
	for _, id := range lockOrder {
		var balance int64
		err := tx.QueryRow(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&balance)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, ErrAccountNotFound
			}
			return nil, storageFailure("lock account row", err)
		}
		balances[id] = balance
	}

	// Funds re-check under lock. The pre-lock check in the service layer may be
	// stale by the time we get here.
	requesterBalance := balances[movement.AccountID]
	if movement.Kind != domain.KindDeposit && requesterBalance < movement.Amount {
		return nil, ErrInsufficientFunds
	}

	var requesterAfter, recipientAfter int64
	switch movement.Kind {
	case domain.KindDeposit:
		requesterAfter = requesterBalance + movement.Amount
	case domain.KindWithdrawal:
		requesterAfter = requesterBalance - movement.Amount
	case domain.KindTransfer:
		requesterAfter = requesterBalance - movement.Amount
		recipientAfter = balances[*movement.CounterpartAccountID] + movement.Amount
	default:
		return nil, fmt.Errorf("unsupported movement kind %q", movement.Kind)
	}

	updateQuery := `UPDATE accounts SET balance = $1, version = version + 1, updated_at = NOW() WHERE id = $2`
	if _, err := tx.Exec(ctx, updateQuery, requesterAfter, movement.AccountID); err != nil {
		return nil, storageFailure("update requester balance", err)
	}
	if movement.Kind == domain.KindTransfer {
		if _, err := tx.Exec(ctx, updateQuery, recipientAfter, *movement.CounterpartAccountID); err != nil {
			return nil, storageFailure("update recipient balance", err)
		}
	}

	// Both sides of a transfer share one commit timestamp; record ids come from
	// the sequence while the row locks are held, so id order matches createdAt
	// order and balance snapshot order per account.
	committedAt := time.Now().UTC()
	insertQuery := `
		INSERT INTO transaction_records (account_id, kind, amount, description, counterpart_account_id, created_at, balance_after)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	record := &domain.TransactionRecord{
		AccountID:            movement.AccountID,
		Kind:                 movement.Kind,
		Amount:               movement.Amount,
		Description:          movement.Description,
		CounterpartAccountID: movement.CounterpartAccountID,
		CreatedAt:            committedAt,
		BalanceAfter:         requesterAfter,
	}
	if err := tx.QueryRow(ctx, insertQuery,
		record.AccountID, record.Kind, record.Amount, record.Description,
		record.CounterpartAccountID, record.CreatedAt, record.BalanceAfter,
	).Scan(&record.ID); err != nil {
		return nil, storageFailure("append requester record", err)
	}

	if movement.Kind == domain.KindTransfer {
		var counterpartRecordID int64
		if err := tx.QueryRow(ctx, insertQuery,
			*movement.CounterpartAccountID, domain.KindTransfer, movement.Amount, movement.Description,
			movement.AccountID, committedAt, recipientAfter,
		).Scan(&counterpartRecordID); err != nil {
			return nil, storageFailure("append recipient record", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, storageFailure("commit movement", err)
	}
	return record, nil
}

// ListTransactions retrieves all records filed under an account, most recent first.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]domain.TransactionRecord, error) {
	query := `
		SELECT id, account_id, kind, amount, description, counterpart_account_id, created_at, balance_after
		FROM transaction_records
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
	`
	rows, err := r.db.Query(ctx, query, accountID)
	if err != nil {
		return nil, storageFailure("list transactions", err)
	}
	defer rows.Close()

	var records []domain.TransactionRecord
	for rows.Next() {
		var rec domain.TransactionRecord
		err := rows.Scan(
			&rec.ID, &rec.AccountID, &rec.Kind, &rec.Amount, &rec.Description,
			&rec.CounterpartAccountID, &rec.CreatedAt, &rec.BalanceAfter,
		)
		if err != nil {
			return nil, storageFailure("scan transaction record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storageFailure("iterate transaction records", err)
	}
	return records, nil
}

// LockOrder returns the accounts involved in a movement sorted ascending by id.
// Every code path that locks account state (in-process or row-level) must use
// this order to stay deadlock-free.
func LockOrder(accountID uuid.UUID, counterpartID *uuid.UUID) []uuid.UUID {
	if counterpartID == nil {
		return []uuid.UUID{accountID}
	}
	a, b := accountID, *counterpartID
	if bytes.Compare(a[:], b[:]) > 0 {
		a, b = b, a
	}
	return []uuid.UUID{a, b}
}

func storageFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageFailure, err)
}
