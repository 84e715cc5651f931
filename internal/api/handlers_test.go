package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/swiftkwacha/wallet-service/internal/app"
	"github.com/swiftkwacha/wallet-service/internal/domain"
	"github.com/swiftkwacha/wallet-service/internal/store"
)

const testJWTSecret = "test-secret"

func newTestServer(t *testing.T) (*httptest.Server, *store.MemoryRepository) {
	t.Helper()
	repo := store.NewMemoryRepository()
	service := app.NewService(repo, nil, 0)
	handlers := NewWalletHandlers(service)
	server := httptest.NewServer(WalletRoutes(handlers, testJWTSecret))
	t.Cleanup(server.Close)
	return server, repo
}

func seedAccount(t *testing.T, repo *store.MemoryRepository, username string, balance int64) uuid.UUID {
	t.Helper()
	account := &domain.Account{ID: uuid.New(), Username: username, Balance: balance}
	if err := repo.CreateAccount(context.Background(), account); err != nil {
		t.Fatalf("CreateAccount(%s) failed: %v", username, err)
	}
	return account.ID
}

func bearerToken(t *testing.T, accountID uuid.UUID) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": accountID.String(),
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("token signing failed: %v", err)
	}
	return "Bearer " + signed
}

func doRequest(t *testing.T, server *httptest.Server, method, path, auth string, body interface{}, headers map[string]string) *http.Response {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(payload)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, server.URL+path, reqBody)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
}

func TestEndpointsRejectMissingToken(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/balance", "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = doRequest(t, server, http.MethodGet, "/balance", "Bearer not-a-token", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a garbage token, got %d", resp.StatusCode)
	}
}

func TestGetBalance(t *testing.T) {
	server, repo := newTestServer(t)
	accountID := seedAccount(t, repo, "chileshe", 12345)

	resp := doRequest(t, server, http.MethodGet, "/balance", bearerToken(t, accountID), nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var body domain.BalanceResponse
	decodeBody(t, resp, &body)
	if body.Balance != "123.45" {
		t.Fatalf("expected balance \"123.45\", got %q", body.Balance)
	}
	if body.AccountID != accountID {
		t.Fatalf("expected account id %s, got %s", accountID, body.AccountID)
	}
}

func TestGetBalanceUnknownAccount(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/balance", bearerToken(t, uuid.New()), nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown account, got %d", resp.StatusCode)
	}
}

func TestCreateTransactionDepositThenWithdrawal(t *testing.T) {
	server, repo := newTestServer(t)
	accountID := seedAccount(t, repo, "chileshe", 0)
	auth := bearerToken(t, accountID)

	resp := doRequest(t, server, http.MethodPost, "/transaction", auth, domain.CreateTransactionRequest{
		Type: "deposit", Amount: "100.00", Description: "salary",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for deposit, got %d", resp.StatusCode)
	}

	var created domain.TransactionResponse
	decodeBody(t, resp, &created)
	if created.Type != "deposit" || created.Amount != "100.00" || created.NewBalance != "100.00" {
		t.Fatalf("unexpected deposit response: %+v", created)
	}

	resp = doRequest(t, server, http.MethodPost, "/transaction", auth, domain.CreateTransactionRequest{
		Type: "withdrawal", Amount: "40.00", Description: "groceries",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 for withdrawal, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &created)
	if created.NewBalance != "60.00" {
		t.Fatalf("expected new balance \"60.00\", got %q", created.NewBalance)
	}
}

func TestCreateTransactionInsufficientFunds(t *testing.T) {
	server, repo := newTestServer(t)
	accountID := seedAccount(t, repo, "chileshe", 1000)

	resp := doRequest(t, server, http.MethodPost, "/transaction", bearerToken(t, accountID), domain.CreateTransactionRequest{
		Type: "withdrawal", Amount: "50.00", Description: "too much",
	}, nil)
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("expected 402 for insufficient funds, got %d", resp.StatusCode)
	}
}

func TestCreateTransactionValidationFailures(t *testing.T) {
	server, repo := newTestServer(t)
	accountID := seedAccount(t, repo, "chileshe", 10000)
	seedAccount(t, repo, "mutale", 0)
	auth := bearerToken(t, accountID)

	testCases := []struct {
		name string
		req  domain.CreateTransactionRequest
	}{
		{name: "unknown type", req: domain.CreateTransactionRequest{Type: "loan", Amount: "10.00", Description: "x"}},
		{name: "malformed amount", req: domain.CreateTransactionRequest{Type: "deposit", Amount: "ten", Description: "x"}},
		{name: "sub-ngwee amount", req: domain.CreateTransactionRequest{Type: "deposit", Amount: "1.005", Description: "x"}},
		{name: "zero amount", req: domain.CreateTransactionRequest{Type: "deposit", Amount: "0.00", Description: "x"}},
		{name: "negative amount", req: domain.CreateTransactionRequest{Type: "deposit", Amount: "-5.00", Description: "x"}},
		{name: "blank description", req: domain.CreateTransactionRequest{Type: "deposit", Amount: "10.00", Description: "  "}},
		{name: "transfer without recipient", req: domain.CreateTransactionRequest{Type: "transfer", Amount: "10.00", Description: "x"}},
		{name: "self transfer", req: domain.CreateTransactionRequest{Type: "transfer", Amount: "10.00", Description: "x", RecipientUsername: "chileshe"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := doRequest(t, server, http.MethodPost, "/transaction", auth, tc.req, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", resp.StatusCode)
			}
		})
	}
}

func TestCreateTransactionTransferByUsername(t *testing.T) {
	server, repo := newTestServer(t)
	alice := seedAccount(t, repo, "alice", 10000)
	bob := seedAccount(t, repo, "bob", 0)

	resp := doRequest(t, server, http.MethodPost, "/transaction", bearerToken(t, alice), domain.CreateTransactionRequest{
		Type: "transfer", Amount: "30.00", Description: "for bob", RecipientUsername: "bob",
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var created domain.TransactionResponse
	decodeBody(t, resp, &created)
	if created.CounterpartAccountID == nil || *created.CounterpartAccountID != bob.String() {
		t.Fatalf("expected counterpart %s, got %+v", bob, created.CounterpartAccountID)
	}
	if created.NewBalance != "70.00" {
		t.Fatalf("expected sender new balance \"70.00\", got %q", created.NewBalance)
	}

	// The recipient sees the money and the linked record.
	resp = doRequest(t, server, http.MethodGet, "/balance", bearerToken(t, bob), nil, nil)
	var balance domain.BalanceResponse
	decodeBody(t, resp, &balance)
	if balance.Balance != "30.00" {
		t.Fatalf("expected recipient balance \"30.00\", got %q", balance.Balance)
	}
}

func TestCreateTransactionUnknownRecipient(t *testing.T) {
	server, repo := newTestServer(t)
	alice := seedAccount(t, repo, "alice", 10000)

	resp := doRequest(t, server, http.MethodPost, "/transaction", bearerToken(t, alice), domain.CreateTransactionRequest{
		Type: "transfer", Amount: "10.00", Description: "void", RecipientUsername: "nobody",
	}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for an unknown recipient, got %d", resp.StatusCode)
	}
}

func TestListTransactionsMostRecentFirst(t *testing.T) {
	server, repo := newTestServer(t)
	accountID := seedAccount(t, repo, "chileshe", 0)
	auth := bearerToken(t, accountID)

	for _, amount := range []string{"10.00", "20.00", "30.00"} {
		resp := doRequest(t, server, http.MethodPost, "/transaction", auth, domain.CreateTransactionRequest{
			Type: "deposit", Amount: amount, Description: "deposit " + amount,
		}, nil)
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("seed deposit failed with %d", resp.StatusCode)
		}
	}

	resp := doRequest(t, server, http.MethodGet, "/transactions", auth, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var records []domain.TransactionResponse
	decodeBody(t, resp, &records)
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[0].Amount != "30.00" || records[2].Amount != "10.00" {
		t.Fatalf("records not most-recent-first: %+v", records)
	}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	server, _ := newTestServer(t)

	resp := doRequest(t, server, http.MethodGet, "/health", "", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from health check, got %d", resp.StatusCode)
	}
}
