package locks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

func TestLocalLockerExcludesSameKey(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, CloseCycleKey("satisfaction"))
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}
	if err := lease.Err(); err != nil {
		t.Fatalf("fresh local lease reported %v", err)
	}

	if _, err := locker.Acquire(ctx, CloseCycleKey("satisfaction")); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	other, err := locker.Acquire(ctx, CloseCycleKey("work_performance"))
	if err != nil {
		t.Fatalf("different kind must not be blocked: %v", err)
	}
	other.Release()

	lease.Release()
	lease.Release() // second call is a no-op

	again, err := locker.Acquire(ctx, CloseCycleKey("satisfaction"))
	if err != nil {
		t.Fatalf("acquire after release failed: %v", err)
	}
	again.Release()
}

func TestChainReleasesOnPartialFailure(t *testing.T) {
	first := NewLocalLocker()
	second := NewLocalLocker()
	ctx := context.Background()

	hold, err := second.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("setup acquire failed: %v", err)
	}

	chain := Chain{first, second}
	if _, err := chain.Acquire(ctx, "k"); !errors.Is(err, ErrLocked) {
		t.Fatalf("expected ErrLocked, got %v", err)
	}

	// first must have been released by the failed chain
	lease, err := first.Acquire(ctx, "k")
	if err != nil {
		t.Fatalf("first locker still held after chain failure: %v", err)
	}
	lease.Release()
	hold.Release()
}

type stubLease struct {
	err      error
	released bool
}

func (s *stubLease) Release()   { s.released = true }
func (s *stubLease) Err() error { return s.err }

func TestChainLeaseReportsAnyLoss(t *testing.T) {
	local := &stubLease{}
	shared := &stubLease{}
	lease := chainLease{local, shared}

	if err := lease.Err(); err != nil {
		t.Fatalf("expected healthy chain, got %v", err)
	}

	shared.err = ErrLockLost
	if err := lease.Err(); !errors.Is(err, ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}

	lease.Release()
	if !local.released || !shared.released {
		t.Fatal("every lease in the chain must be released")
	}
}

func TestRedisLeaseStopsRefreshingOnceLost(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name     string
		err      error
		wantMore bool
		wantLost bool
	}{
		{"Refreshed", nil, true, false},
		{"Transient", errors.New("i/o timeout"), true, false},
		{"Expired", redislock.ErrNotObtained, false, true},
		{"WrappedExpiry", fmt.Errorf("refresh: %w", redislock.ErrNotObtained), false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lease := &redisLease{key: "close-cycle:work_performance", logger: logger}
			if more := lease.refreshed(tt.err); more != tt.wantMore {
				t.Fatalf("refreshed() = %v, want %v", more, tt.wantMore)
			}
			if lost := errors.Is(lease.Err(), ErrLockLost); lost != tt.wantLost {
				t.Fatalf("lost = %v, want %v (err %v)", lost, tt.wantLost, lease.Err())
			}
		})
	}
}

func TestRedisLockerUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locker := NewRedisLocker(client, time.Second, logger)

	_, err := locker.Acquire(context.Background(), "k")
	if err == nil {
		t.Fatal("expected connection error")
	}
	if errors.Is(err, ErrLocked) {
		t.Fatalf("connection failure must not look like contention: %v", err)
	}
}
