package rate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLimiter(t *testing.T, cfg Config) (*miniredis.Miniredis, *Limiter) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, New(client, cfg)
}

func TestLoginBudgetExhaustion(t *testing.T) {
	ctx := context.Background()
	_, lim := newTestLimiter(t, Config{MaxLoginAttempts: 2, LoginCooldown: time.Minute})

	// Two failures stay within budget.
	for i := 0; i < 2; i++ {
		if err := lim.CheckLogin(ctx, "0", "alice@example.com", ""); err != nil {
			t.Fatalf("CheckLogin %d failed: %v", i, err)
		}
		if err := lim.RecordLoginFailure(ctx, "0", "alice@example.com", ""); err != nil {
			t.Fatalf("RecordLoginFailure %d failed: %v", i, err)
		}
	}

	// The third failure trips the throttle and further checks fail too.
	if err := lim.RecordLoginFailure(ctx, "0", "alice@example.com", ""); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
	if err := lim.CheckLogin(ctx, "0", "alice@example.com", ""); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled on check, got %v", err)
	}

	// A different identifier keeps its own budget.
	if err := lim.CheckLogin(ctx, "0", "bob@example.com", ""); err != nil {
		t.Fatalf("expected separate budgets, got %v", err)
	}
}

func TestTenantsKeepSeparateBudgets(t *testing.T) {
	ctx := context.Background()
	mr, lim := newTestLimiter(t, Config{
		MaxLoginAttempts: 1,
		LoginCooldown:    time.Minute,
		MaxResetRequests: 1,
		ResetCooldown:    time.Minute,
	})

	if err := lim.RecordLoginFailure(ctx, "t1", "alice@example.com", ""); err != nil {
		t.Fatalf("RecordLoginFailure failed: %v", err)
	}
	if err := lim.RecordLoginFailure(ctx, "t1", "alice@example.com", ""); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}

	// The same identifier under another tenant has a full budget.
	if err := lim.CheckLogin(ctx, "t2", "alice@example.com", ""); err != nil {
		t.Fatalf("expected separate tenant budget, got %v", err)
	}
	if err := lim.RecordLoginFailure(ctx, "t2", "alice@example.com", ""); err != nil {
		t.Fatalf("RecordLoginFailure failed: %v", err)
	}
	if !mr.Exists("acl:t1:alice@example.com") || !mr.Exists("acl:t2:alice@example.com") {
		t.Fatal("expected tenant-scoped counters in redis")
	}

	// Reset request budgets are tenant-scoped the same way.
	if err := lim.CheckResetRequest(ctx, "t1", "alice@example.com", ""); err != nil {
		t.Fatalf("CheckResetRequest failed: %v", err)
	}
	if !mr.Exists("acr:t1:alice@example.com") {
		t.Fatal("expected tenant-scoped reset counter in redis")
	}
}

func TestResetLoginClearsBudget(t *testing.T) {
	ctx := context.Background()
	mr, lim := newTestLimiter(t, Config{MaxLoginAttempts: 1, LoginCooldown: time.Minute})

	if err := lim.RecordLoginFailure(ctx, "0", "alice@example.com", ""); err != nil {
		t.Fatalf("RecordLoginFailure failed: %v", err)
	}
	if !mr.Exists("acl:0:alice@example.com") {
		t.Fatal("expected failure counter in redis")
	}

	if err := lim.ResetLogin(ctx, "0", "alice@example.com", ""); err != nil {
		t.Fatalf("ResetLogin failed: %v", err)
	}
	if mr.Exists("acl:0:alice@example.com") {
		t.Fatal("expected failure counter cleared")
	}
	if err := lim.CheckLogin(ctx, "0", "alice@example.com", ""); err != nil {
		t.Fatalf("expected fresh budget after reset, got %v", err)
	}
}

func TestCooldownExpiresWindow(t *testing.T) {
	ctx := context.Background()
	mr, lim := newTestLimiter(t, Config{MaxLoginAttempts: 1, LoginCooldown: time.Minute})

	if err := lim.RecordLoginFailure(ctx, "0", "alice@example.com", ""); err != nil {
		t.Fatalf("RecordLoginFailure failed: %v", err)
	}
	if err := lim.RecordLoginFailure(ctx, "0", "alice@example.com", ""); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if err := lim.CheckLogin(ctx, "0", "alice@example.com", ""); err != nil {
		t.Fatalf("expected budget restored after cooldown, got %v", err)
	}
}

func TestIPThrottleSharedAcrossIdentifiers(t *testing.T) {
	ctx := context.Background()
	_, lim := newTestLimiter(t, Config{
		EnableIPThrottle: true,
		MaxLoginAttempts: 2,
		LoginCooldown:    time.Minute,
	})

	// Three different identifiers from the same IP burn the IP budget.
	if err := lim.RecordLoginFailure(ctx, "0", "a@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("RecordLoginFailure failed: %v", err)
	}
	if err := lim.RecordLoginFailure(ctx, "0", "b@example.com", "203.0.113.9"); err != nil {
		t.Fatalf("RecordLoginFailure failed: %v", err)
	}
	if err := lim.RecordLoginFailure(ctx, "0", "c@example.com", "203.0.113.9"); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected IP throttle, got %v", err)
	}

	// A fresh identifier from the hot IP is blocked; from a cold IP it passes.
	if err := lim.CheckLogin(ctx, "0", "d@example.com", "203.0.113.9"); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled from hot IP, got %v", err)
	}
	if err := lim.CheckLogin(ctx, "0", "d@example.com", "198.51.100.7"); err != nil {
		t.Fatalf("expected cold IP to pass, got %v", err)
	}
}

func TestResetRequestSpendsBudgetUpFront(t *testing.T) {
	ctx := context.Background()
	_, lim := newTestLimiter(t, Config{MaxResetRequests: 1, ResetCooldown: time.Minute})

	if err := lim.CheckResetRequest(ctx, "0", "alice@example.com", ""); err != nil {
		t.Fatalf("first reset request failed: %v", err)
	}
	if err := lim.CheckResetRequest(ctx, "0", "alice@example.com", ""); !errors.Is(err, ErrThrottled) {
		t.Fatalf("expected ErrThrottled, got %v", err)
	}
}

func TestZeroLimitsDisableThrottle(t *testing.T) {
	ctx := context.Background()
	_, lim := newTestLimiter(t, Config{})

	for i := 0; i < 50; i++ {
		if err := lim.RecordLoginFailure(ctx, "0", "alice@example.com", ""); err != nil {
			t.Fatalf("expected disabled throttle to pass, got %v", err)
		}
		if err := lim.CheckResetRequest(ctx, "0", "alice@example.com", ""); err != nil {
			t.Fatalf("expected disabled reset throttle to pass, got %v", err)
		}
	}
}

func TestNilLimiterIsNoOp(t *testing.T) {
	ctx := context.Background()
	var lim *Limiter

	if err := lim.CheckLogin(ctx, "0", "a", "b"); err != nil {
		t.Fatalf("expected nil limiter to pass, got %v", err)
	}
	if err := lim.RecordLoginFailure(ctx, "0", "a", "b"); err != nil {
		t.Fatalf("expected nil limiter to pass, got %v", err)
	}
	if err := lim.ResetLogin(ctx, "0", "a", "b"); err != nil {
		t.Fatalf("expected nil limiter to pass, got %v", err)
	}
	if err := lim.CheckResetRequest(ctx, "0", "a", "b"); err != nil {
		t.Fatalf("expected nil limiter to pass, got %v", err)
	}
}
