/**
 * @description
 * This file defines the core domain models for the wallet-service. These structs
 * represent the main entities and data transfer objects (DTOs) used throughout the
 * service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` in ngwee (the smallest currency unit, 1/100 of a
 *   kwacha), which avoids floating-point inaccuracies with financial data. The API
 *   boundary accepts and returns two-decimal strings; see money.go.
 * - A TransactionRecord is immutable once committed. A transfer produces two linked
 *   records, one filed under each account, each pointing at the counterpart.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionKind identifies the balance effect of a record.
type TransactionKind string

const (
	KindDeposit    TransactionKind = "deposit"
	KindWithdrawal TransactionKind = "withdrawal"
	KindTransfer   TransactionKind = "transfer"
)

// Valid reports whether the kind is one of the three supported movements.
func (k TransactionKind) Valid() bool {
	switch k {
	case KindDeposit, KindWithdrawal, KindTransfer:
		return true
	}
	return false
}

// MaxDescriptionLength bounds the free-text annotation on a record.
const MaxDescriptionLength = 255

// Account represents a holder's wallet. Balance is never negative; Version is a
// monotonically increasing lock token bumped by every committed mutation.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Balance   int64     `json:"balance"` // in ngwee
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
}

// TransactionRecord is one committed balance effect on one account. The record is
// filed under AccountID; for transfers CounterpartAccountID identifies the other
// side. BalanceAfter is a point-in-time snapshot taken at commit, never recomputed.
type TransactionRecord struct {
	ID                   int64           `json:"id"`
	AccountID            uuid.UUID       `json:"account_id"`
	Kind                 TransactionKind `json:"kind"`
	Amount               int64           `json:"amount"` // in ngwee, always positive
	Description          string          `json:"description"`
	CounterpartAccountID *uuid.UUID      `json:"counterpart_account_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	BalanceAfter         int64           `json:"balance_after"` // in ngwee
}

// SubmitRequest is the already-validated, already-resolved input to the transaction
// processor. RecipientAccountID is set only for transfers; resolution from a
// username happens at the API boundary before Submit is called.
type SubmitRequest struct {
	Kind               TransactionKind
	Amount             int64 // in ngwee
	Description        string
	RecipientAccountID *uuid.UUID
	IdempotencyKey     string
}

// Movement is the durability unit handed to the store: the full set of balance
// deltas and record appends that must commit or fail together.
type Movement struct {
	Kind                 TransactionKind
	AccountID            uuid.UUID
	CounterpartAccountID *uuid.UUID // transfer recipient
	Amount               int64
	Description          string
}

// CreateTransactionRequest is the DTO for incoming wallet transaction API requests.
// Amount is a two-decimal string (e.g. "100.00").
type CreateTransactionRequest struct {
	Type              string `json:"type"`
	Amount            string `json:"amount"`
	Description       string `json:"description"`
	RecipientUsername string `json:"recipient_username,omitempty"`
}

// TransactionResponse mirrors the shape the web client expects for a single record.
type TransactionResponse struct {
	ID                   int64     `json:"id"`
	Type                 string    `json:"type"`
	Amount               string    `json:"amount"`
	Description          string    `json:"description"`
	CounterpartAccountID *string   `json:"counterpart_account_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	NewBalance           string    `json:"new_balance"`
}

// BalanceResponse is returned by the balance endpoint.
type BalanceResponse struct {
	AccountID uuid.UUID `json:"account_id"`
	Balance   string    `json:"balance"`
}

// RecordResponse converts a committed record into its API representation.
func RecordResponse(rec *TransactionRecord) TransactionResponse {
	resp := TransactionResponse{
		ID:          rec.ID,
		Type:        string(rec.Kind),
		Amount:      FormatAmount(rec.Amount),
		Description: rec.Description,
		CreatedAt:   rec.CreatedAt,
		NewBalance:  FormatAmount(rec.BalanceAfter),
	}
	if rec.CounterpartAccountID != nil {
		s := rec.CounterpartAccountID.String()
		resp.CounterpartAccountID = &s
	}
	return resp
}

// TransactionCommittedEvent is the payload published after a durability unit
// commits, consumed by downstream services (notifications, analytics).
type TransactionCommittedEvent struct {
	RecordID             int64      `json:"record_id"`
	AccountID            uuid.UUID  `json:"account_id"`
	Kind                 string     `json:"kind"`
	Amount               int64      `json:"amount"`
	CounterpartAccountID *uuid.UUID `json:"counterpart_account_id,omitempty"`
	Timestamp            time.Time  `json:"timestamp"`
}
