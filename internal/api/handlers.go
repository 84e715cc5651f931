/**
 * @description
 * This file contains the HTTP handlers for the wallet-service's API endpoints.
 * Handlers parse incoming requests, resolve recipient usernames to account ids,
 * call the wallet engine, and map the engine's typed failures onto HTTP status
 * codes. They are thin glue; every correctness decision lives in internal/app.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/swiftkwacha/wallet-service/internal/app"
	"github.com/swiftkwacha/wallet-service/internal/domain"
	"github.com/swiftkwacha/wallet-service/internal/store"
)

// WalletHandlers holds the application service that handlers will use.
type WalletHandlers struct {
	service *app.Service
}

// NewWalletHandlers creates a new instance of WalletHandlers.
func NewWalletHandlers(service *app.Service) *WalletHandlers {
	return &WalletHandlers{service: service}
}

// GetBalanceHandler returns the caller's current balance.
func (h *WalletHandlers) GetBalanceHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=balance account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, domain.BalanceResponse{
		AccountID: accountID,
		Balance:   domain.FormatAmount(balance),
	})
}

// CreateTransactionHandler submits a deposit, withdrawal, or transfer.
func (h *WalletHandlers) CreateTransactionHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	var req domain.CreateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=transaction outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=transaction outcome=reject reason=invalid_amount account_id=%s value=%q err=%v", accountID, req.Amount, err)
		h.writeError(w, http.StatusBadRequest, "Amount must be a positive two-decimal number")
		return
	}

	submit := domain.SubmitRequest{
		Kind:           domain.TransactionKind(strings.ToLower(strings.TrimSpace(req.Type))),
		Amount:         amount,
		Description:    req.Description,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	}

	// Username-to-account resolution happens here, before Submit; the engine
	// only accepts already-resolved ids.
	if submit.Kind == domain.KindTransfer {
		username := strings.TrimSpace(req.RecipientUsername)
		if username == "" {
			h.writeError(w, http.StatusBadRequest, "recipient_username is required for transfers")
			return
		}
		recipientID, err := h.service.ResolveAccountID(r.Context(), username)
		if err != nil {
			if errors.Is(err, store.ErrAccountNotFound) {
				h.writeError(w, http.StatusNotFound, "Recipient not found")
				return
			}
			log.Printf("level=error component=api endpoint=transaction reason=recipient_resolution_failed account_id=%s err=%v", accountID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}
		submit.RecipientAccountID = &recipientID
	}

	record, err := h.service.Submit(r.Context(), accountID, submit)
	if err != nil {
		h.writeSubmitError(w, accountID, err)
		return
	}

	log.Printf("level=info component=api endpoint=transaction outcome=committed account_id=%s kind=%s amount=%d record_id=%d", accountID, record.Kind, record.Amount, record.ID)
	h.writeJSON(w, http.StatusCreated, domain.RecordResponse(record))
}

// ListTransactionsHandler returns the caller's history, most recent first.
func (h *WalletHandlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	accountID, ok := GetAccountID(r.Context())
	if !ok {
		http.Error(w, "Could not get account ID from context", http.StatusInternalServerError)
		return
	}

	records, err := h.service.ListHistory(r.Context(), accountID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.writeError(w, http.StatusNotFound, "Account not found")
			return
		}
		log.Printf("level=error component=api endpoint=transactions account_id=%s err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	responses := make([]domain.TransactionResponse, 0, len(records))
	for i := range records {
		responses = append(responses, domain.RecordResponse(&records[i]))
	}
	h.writeJSON(w, http.StatusOK, responses)
}

func (h *WalletHandlers) writeSubmitError(w http.ResponseWriter, accountID interface{}, err error) {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, "Insufficient funds")
	case errors.Is(err, app.ErrRecipientNotFound):
		h.writeError(w, http.StatusNotFound, "Recipient not found")
	case errors.Is(err, store.ErrAccountNotFound):
		h.writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, app.ErrInvalidAmount),
		errors.Is(err, app.ErrInvalidDescription),
		errors.Is(err, app.ErrInvalidKind),
		errors.Is(err, app.ErrRecipientRequired),
		errors.Is(err, app.ErrUnexpectedRecipient),
		errors.Is(err, app.ErrSelfTransfer):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrBusy):
		h.writeError(w, http.StatusServiceUnavailable, "Account is busy, try again")
	case errors.Is(err, app.ErrIdempotencyConflict):
		h.writeError(w, http.StatusConflict, "Idempotency key reused with a different request")
	case errors.Is(err, app.ErrIdempotencyInFlight):
		h.writeError(w, http.StatusConflict, "A submission with this idempotency key is in progress")
	default:
		log.Printf("level=error component=api endpoint=transaction outcome=failed account_id=%v err=%v", accountID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func (h *WalletHandlers) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("level=error component=api msg=\"response encode failed\" err=%v", err)
	}
}

func (h *WalletHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"message": message})
}
