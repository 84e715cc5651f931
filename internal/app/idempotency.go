/**
 * @description
 * Optional submission deduplication. Retrying a Submit is not inherently
 * idempotent (a resubmission creates a second transaction), so callers that need
 * safe retries attach an idempotency key. The key reserves a slot before the
 * movement runs and caches the committed record afterwards; a replay with the
 * same key and an identical request body returns the cached record instead of
 * moving money twice.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Backing store for reservations.
 */

package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/swiftkwacha/wallet-service/internal/domain"
)

// IdempotencyStore reserves, completes, and releases submission dedup keys.
type IdempotencyStore interface {
	// Reserve returns the cached record when the key already completed with the
	// same fingerprint, or acquired=true when the caller now owns the key.
	// acquired=false with no cached record means another submission is in flight.
	Reserve(ctx context.Context, accountID uuid.UUID, key, fingerprint string) (cached *domain.TransactionRecord, acquired bool, err error)
	// Complete stores the committed record under the key for later replay.
	Complete(ctx context.Context, accountID uuid.UUID, key string, record *domain.TransactionRecord) error
	// Release frees a reservation whose submission failed, allowing a retry.
	Release(ctx context.Context, accountID uuid.UUID, key string) error
}

const (
	idempotencyStatusProcessing = "processing"
	idempotencyStatusCompleted  = "completed"
)

type idempotencyState struct {
	Status      string                    `json:"status"`
	Fingerprint string                    `json:"fingerprint"`
	Record      *domain.TransactionRecord `json:"record,omitempty"`
}

// RedisIdempotencyStore implements IdempotencyStore on Redis.
type RedisIdempotencyStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisIdempotencyStore creates a Redis-backed idempotency store.
func NewRedisIdempotencyStore(client *redis.Client, prefix string, ttl time.Duration) *RedisIdempotencyStore {
	if prefix == "" {
		prefix = "swiftkwacha:idempotency"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisIdempotencyStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisIdempotencyStore) storageKey(accountID uuid.UUID, key string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, accountID, key)
}

func (s *RedisIdempotencyStore) Reserve(ctx context.Context, accountID uuid.UUID, key, fingerprint string) (*domain.TransactionRecord, bool, error) {
	storageKey := s.storageKey(accountID, key)
	payload, err := json.Marshal(idempotencyState{Status: idempotencyStatusProcessing, Fingerprint: fingerprint})
	if err != nil {
		return nil, false, err
	}

	set, err := s.client.SetNX(ctx, storageKey, payload, s.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("reserve idempotency key: %w", err)
	}
	if set {
		return nil, true, nil
	}

	raw, err := s.client.Get(ctx, storageKey).Result()
	if err != nil {
		if err == redis.Nil {
			// Reservation expired between SETNX and GET; treat as in flight and
			// let the caller retry.
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("load idempotency state: %w", err)
	}

	var state idempotencyState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, false, fmt.Errorf("decode idempotency state: %w", err)
	}
	if state.Fingerprint != fingerprint {
		return nil, false, ErrIdempotencyConflict
	}
	if state.Status == idempotencyStatusCompleted && state.Record != nil {
		return state.Record, false, nil
	}
	return nil, false, nil
}

func (s *RedisIdempotencyStore) Complete(ctx context.Context, accountID uuid.UUID, key string, record *domain.TransactionRecord) error {
	payload, err := json.Marshal(idempotencyState{
		Status:      idempotencyStatusCompleted,
		Fingerprint: requestFingerprintFromRecord(record),
		Record:      record,
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.storageKey(accountID, key), payload, s.ttl).Err()
}

func (s *RedisIdempotencyStore) Release(ctx context.Context, accountID uuid.UUID, key string) error {
	return s.client.Del(ctx, s.storageKey(accountID, key)).Err()
}

// requestFingerprint hashes the request fields that define "the same
// submission". A reused key with a different fingerprint is a conflict, not a
// replay.
func requestFingerprint(req domain.SubmitRequest) string {
	recipient := ""
	if req.RecipientAccountID != nil {
		recipient = req.RecipientAccountID.String()
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s|%s", req.Kind, req.Amount, req.Description, recipient)))
	return hex.EncodeToString(sum[:])
}

func requestFingerprintFromRecord(record *domain.TransactionRecord) string {
	req := domain.SubmitRequest{
		Kind:               record.Kind,
		Amount:             record.Amount,
		Description:        record.Description,
		RecipientAccountID: record.CounterpartAccountID,
	}
	return requestFingerprint(req)
}
