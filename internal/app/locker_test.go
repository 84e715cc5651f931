package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestAccountLockerSerializesSameAccount(t *testing.T) {
	locker := newAccountLocker()
	id := uuid.New()

	release, err := locker.acquire(context.Background(), []uuid.UUID{id})
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	// A second acquire on the same account must block until the first releases.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := locker.acquire(ctx, []uuid.UUID{id}); err == nil {
		t.Fatal("expected second acquire to time out while lock held")
	}

	release()

	release2, err := locker.acquire(context.Background(), []uuid.UUID{id})
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	release2()
}

func TestAccountLockerDisjointAccountsDoNotBlock(t *testing.T) {
	locker := newAccountLocker()
	a := uuid.New()
	b := uuid.New()

	releaseA, err := locker.acquire(context.Background(), []uuid.UUID{a})
	if err != nil {
		t.Fatalf("acquire a failed: %v", err)
	}
	defer releaseA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	releaseB, err := locker.acquire(ctx, []uuid.UUID{b})
	if err != nil {
		t.Fatalf("acquire of unrelated account blocked: %v", err)
	}
	releaseB()
}

func TestAccountLockerTimeoutReleasesPartialHolds(t *testing.T) {
	locker := newAccountLocker()
	a := uuid.New()
	b := uuid.New()

	// Hold b so a multi-account acquire of [a, b] stalls after taking a.
	releaseB, err := locker.acquire(context.Background(), []uuid.UUID{b})
	if err != nil {
		t.Fatalf("acquire b failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := locker.acquire(ctx, []uuid.UUID{a, b}); err == nil {
		t.Fatal("expected multi-account acquire to time out")
	}

	// The partial hold on a must have been rolled back.
	releaseA, err := locker.acquire(context.Background(), []uuid.UUID{a})
	if err != nil {
		t.Fatalf("a was left locked after a failed acquire: %v", err)
	}
	releaseA()
	releaseB()
}
