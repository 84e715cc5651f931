/**
 * @description
 * This file provides an in-memory implementation of the `Repository` interface.
 * It backs the package tests and the `STORE_BACKEND=memory` development mode,
 * and mirrors the PostgreSQL implementation's semantics exactly: the same lock
 * ordering discipline, the same funds re-check inside the commit, and the same
 * all-or-nothing durability unit.
 *
 * A commit fault can be injected with SetCommitFault to exercise the engine's
 * atomicity guarantee: the fault fires after validation but before any state is
 * touched, so a failed commit leaves balances and records untouched.
 */

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/swiftkwacha/wallet-service/internal/domain"
)

// MemoryRepository is a thread-safe, in-process Repository implementation.
type MemoryRepository struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*domain.Account
	byUsername   map[string]uuid.UUID
	records      map[uuid.UUID][]domain.TransactionRecord
	nextRecordID int64

	commitFault func(*domain.Movement) error
}

// NewMemoryRepository creates an empty in-memory store.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:   make(map[uuid.UUID]*domain.Account),
		byUsername: make(map[string]uuid.UUID),
		records:    make(map[uuid.UUID][]domain.TransactionRecord),
	}
}

// SetCommitFault installs a hook invoked at the durability-unit commit point.
// Returning a non-nil error aborts the commit with no state change. Pass nil to
// clear the hook.
func (r *MemoryRepository) SetCommitFault(fault func(*domain.Movement) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commitFault = fault
}

func (r *MemoryRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.accounts[account.ID]; exists {
		return storageFailure("create account", fmt.Errorf("duplicate account id %s", account.ID))
	}
	key := usernameKey(account.Username)
	if _, exists := r.byUsername[key]; exists {
		return storageFailure("create account", fmt.Errorf("duplicate username %q", account.Username))
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	copied := *account
	r.accounts[account.ID] = &copied
	r.byUsername[key] = account.ID
	return nil
}

func (r *MemoryRepository) FindAccountByID(ctx context.Context, accountID uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return nil, ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *MemoryRepository) FindAccountIDByUsername(ctx context.Context, username string) (uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byUsername[usernameKey(username)]
	if !ok {
		return uuid.Nil, ErrAccountNotFound
	}
	return id, nil
}

func (r *MemoryRepository) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	account, ok := r.accounts[accountID]
	if !ok {
		return 0, ErrAccountNotFound
	}
	return account.Balance, nil
}

func (r *MemoryRepository) CommitMovement(ctx context.Context, movement *domain.Movement) (*domain.TransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Existence checks for every involved account, in lock order for parity with
	// the PostgreSQL implementation.
	for _, id := range LockOrder(movement.AccountID, movement.CounterpartAccountID) {
		if _, ok := r.accounts[id]; !ok {
			return nil, ErrAccountNotFound
		}
	}

	requester := r.accounts[movement.AccountID]
	if movement.Kind != domain.KindDeposit && requester.Balance < movement.Amount {
		return nil, ErrInsufficientFunds
	}

	var recipient *domain.Account
	var requesterAfter, recipientAfter int64
	switch movement.Kind {
	case domain.KindDeposit:
		requesterAfter = requester.Balance + movement.Amount
	case domain.KindWithdrawal:
		requesterAfter = requester.Balance - movement.Amount
	case domain.KindTransfer:
		recipient = r.accounts[*movement.CounterpartAccountID]
		requesterAfter = requester.Balance - movement.Amount
		recipientAfter = recipient.Balance + movement.Amount
	default:
		return nil, fmt.Errorf("unsupported movement kind %q", movement.Kind)
	}

	// The commit point. Nothing has been mutated yet, so a fault here leaves the
	// store byte-for-byte in its pre-operation state.
	if r.commitFault != nil {
		if err := r.commitFault(movement); err != nil {
			return nil, storageFailure("commit movement", err)
		}
	}

	committedAt := time.Now().UTC()
	requester.Balance = requesterAfter
	requester.Version++

	r.nextRecordID++
	record := domain.TransactionRecord{
		ID:                   r.nextRecordID,
		AccountID:            movement.AccountID,
		Kind:                 movement.Kind,
		Amount:               movement.Amount,
		Description:          movement.Description,
		CounterpartAccountID: movement.CounterpartAccountID,
		CreatedAt:            committedAt,
		BalanceAfter:         requesterAfter,
	}
	r.records[movement.AccountID] = append(r.records[movement.AccountID], record)

	if movement.Kind == domain.KindTransfer {
		recipient.Balance = recipientAfter
		recipient.Version++

		counterpart := movement.AccountID
		r.nextRecordID++
		recipientRecord := domain.TransactionRecord{
			ID:                   r.nextRecordID,
			AccountID:            recipient.ID,
			Kind:                 domain.KindTransfer,
			Amount:               movement.Amount,
			Description:          movement.Description,
			CounterpartAccountID: &counterpart,
			CreatedAt:            committedAt,
			BalanceAfter:         recipientAfter,
		}
		r.records[recipient.ID] = append(r.records[recipient.ID], recipientRecord)
	}

	returned := record
	return &returned, nil
}

func (r *MemoryRepository) ListTransactions(ctx context.Context, accountID uuid.UUID) ([]domain.TransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.accounts[accountID]; !ok {
		return nil, ErrAccountNotFound
	}

	stored := r.records[accountID]
	records := make([]domain.TransactionRecord, len(stored))
	copy(records, stored)
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID > records[j].ID
	})
	return records, nil
}

func usernameKey(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}
