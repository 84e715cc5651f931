/**
 * @description
 * This file contains the core business logic of the wallet-service: the
 * transaction processor. The `Service` struct validates a requested money
 * movement, serializes access to the involved account(s) with deterministically
 * ordered locks, hands the movement to the store as one atomic durability unit,
 * and publishes a committed event for downstream consumers.
 *
 * Key guarantees:
 * - Money is never created, destroyed, or duplicated: a transfer's two balance
 *   changes and two record appends commit or fail together.
 * - No committed operation leaves a balance below zero; the funds check runs
 *   again inside the store while the row locks are held.
 * - Two submits that share an account are serialized; disjoint submits run
 *   concurrently. Lock-wait timeouts surface as ErrBusy, never as a spurious
 *   insufficient-funds rejection.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: Account identifiers.
 * - internal/domain, internal/store: Domain models and data access.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/swiftkwacha/wallet-service/internal/domain"
	"github.com/swiftkwacha/wallet-service/internal/store"
	"github.com/swiftkwacha/wallet-service/pkg/rabbitmq"
)

// DefaultLockWaitTimeout bounds how long Submit blocks waiting for contended
// account locks before failing with ErrBusy.
const DefaultLockWaitTimeout = 5 * time.Second

var (
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInvalidDescription  = errors.New("description must be non-empty and at most 255 characters")
	ErrInvalidKind         = errors.New("unsupported transaction kind")
	ErrRecipientRequired   = errors.New("recipient is required for transfers")
	ErrUnexpectedRecipient = errors.New("recipient is only valid for transfers")
	ErrSelfTransfer        = errors.New("cannot transfer to own account")
	ErrRecipientNotFound   = errors.New("recipient account not found")
	ErrBusy                = errors.New("account is busy, try again")
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")
	ErrIdempotencyInFlight = errors.New("a submission with this idempotency key is in progress")
)

// Service provides the core wallet engine operations.
type Service struct {
	repo     store.Repository
	events   rabbitmq.Publisher
	idem     IdempotencyStore
	lockers  *accountLocker
	lockWait time.Duration
}

// NewService creates a new wallet engine instance. producer may be nil when no
// broker is configured; committed events are then skipped.
func NewService(repo store.Repository, producer rabbitmq.Publisher, lockWait time.Duration) *Service {
	if lockWait <= 0 {
		lockWait = DefaultLockWaitTimeout
	}
	return &Service{
		repo:     repo,
		events:   producer,
		lockers:  newAccountLocker(),
		lockWait: lockWait,
	}
}

// SetIdempotencyStore installs an optional deduplication store for Submit
// requests that carry an idempotency key.
func (s *Service) SetIdempotencyStore(idem IdempotencyStore) {
	s.idem = idem
}

// ResolveAccountID resolves a username to an account id. Handlers call this
// before Submit for transfers; the engine itself never sees usernames.
func (s *Service) ResolveAccountID(ctx context.Context, username string) (uuid.UUID, error) {
	return s.repo.FindAccountIDByUsername(ctx, username)
}

// Submit validates and commits one money movement on behalf of the
// authenticated requester, returning the requester-side record.
func (s *Service) Submit(ctx context.Context, requesterID uuid.UUID, req domain.SubmitRequest) (*domain.TransactionRecord, error) {
	if err := validateSubmit(requesterID, req); err != nil {
		return nil, err
	}

	// Deduplication is an opt-in extension: resubmitting without a key always
	// creates a new transaction.
	var idemReserved bool
	if req.IdempotencyKey != "" && s.idem != nil {
		cached, acquired, err := s.idem.Reserve(ctx, requesterID, req.IdempotencyKey, requestFingerprint(req))
		if err != nil {
			return nil, err
		}
		if cached != nil {
			log.Printf("level=info component=engine msg=\"replayed idempotent submission\" account_id=%s key=%s record_id=%d", requesterID, req.IdempotencyKey, cached.ID)
			return cached, nil
		}
		if !acquired {
			return nil, ErrIdempotencyInFlight
		}
		idemReserved = true
	}

	record, err := s.submitLocked(ctx, requesterID, req)
	if idemReserved {
		if err != nil {
			if releaseErr := s.idem.Release(ctx, requesterID, req.IdempotencyKey); releaseErr != nil {
				log.Printf("level=warn component=engine msg=\"idempotency release failed\" account_id=%s key=%s err=%v", requesterID, req.IdempotencyKey, releaseErr)
			}
		} else if completeErr := s.idem.Complete(ctx, requesterID, req.IdempotencyKey, record); completeErr != nil {
			// The movement is durable; a failed cache write only weakens replay.
			log.Printf("level=warn component=engine msg=\"idempotency completion failed\" account_id=%s key=%s err=%v", requesterID, req.IdempotencyKey, completeErr)
		}
	}
	return record, err
}

func (s *Service) submitLocked(ctx context.Context, requesterID uuid.UUID, req domain.SubmitRequest) (*domain.TransactionRecord, error) {
	// Requester must exist. An authenticated caller should always have an
	// account, but a concurrent retirement must fail cleanly, not corrupt state.
	if _, err := s.repo.FindAccountByID(ctx, requesterID); err != nil {
		return nil, err
	}
	if req.Kind == domain.KindTransfer {
		if _, err := s.repo.FindAccountByID(ctx, *req.RecipientAccountID); err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				return nil, ErrRecipientNotFound
			}
			return nil, err
		}
	}

	// Lock the involved accounts in ascending id order. A timeout while waiting
	// means contention, so it surfaces as ErrBusy rather than any verdict about
	// the movement itself.
	lockOrder := store.LockOrder(requesterID, req.RecipientAccountID)
	waitCtx, cancel := context.WithTimeout(ctx, s.lockWait)
	defer cancel()
	release, err := s.lockers.acquire(waitCtx, lockOrder)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBusy, err)
	}
	defer release()

	movement := &domain.Movement{
		Kind:                 req.Kind,
		AccountID:            requesterID,
		CounterpartAccountID: req.RecipientAccountID,
		Amount:               req.Amount,
		Description:          req.Description,
	}

	// The store re-checks funds under its own row locks and commits balances and
	// records as one unit. Caller cancellation is not honored past this point;
	// the commit either completes or rolls back in full.
	record, err := s.repo.CommitMovement(context.WithoutCancel(ctx), movement)
	if err != nil {
		return nil, err
	}

	s.publishCommitted(record)
	return record, nil
}

// GetBalance returns the latest committed balance for an account in ngwee.
func (s *Service) GetBalance(ctx context.Context, accountID uuid.UUID) (int64, error) {
	return s.repo.GetBalance(ctx, accountID)
}

// ListHistory returns all records for an account, most recent first. Each call
// re-reads current state; the returned slice is a finite snapshot.
func (s *Service) ListHistory(ctx context.Context, accountID uuid.UUID) ([]domain.TransactionRecord, error) {
	return s.repo.ListTransactions(ctx, accountID)
}

func (s *Service) publishCommitted(record *domain.TransactionRecord) {
	if s.events == nil {
		return
	}
	event := domain.TransactionCommittedEvent{
		RecordID:             record.ID,
		AccountID:            record.AccountID,
		Kind:                 string(record.Kind),
		Amount:               record.Amount,
		CounterpartAccountID: record.CounterpartAccountID,
		Timestamp:            record.CreatedAt,
	}
	// Best-effort: the movement is already durable, so a broker outage must not
	// fail the submission.
	publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.events.PublishTransactionCommitted(publishCtx, event); err != nil {
		log.Printf("level=warn component=engine msg=\"committed event publish failed\" record_id=%d err=%v", record.ID, err)
	}
}

func validateSubmit(requesterID uuid.UUID, req domain.SubmitRequest) error {
	if !req.Kind.Valid() {
		return ErrInvalidKind
	}
	if req.Amount <= 0 {
		return ErrInvalidAmount
	}
	desc := strings.TrimSpace(req.Description)
	if desc == "" || len(req.Description) > domain.MaxDescriptionLength {
		return ErrInvalidDescription
	}
	if req.Kind == domain.KindTransfer {
		if req.RecipientAccountID == nil {
			return ErrRecipientRequired
		}
		if *req.RecipientAccountID == requesterID {
			return ErrSelfTransfer
		}
	} else if req.RecipientAccountID != nil {
		return ErrUnexpectedRecipient
	}
	return nil
}
