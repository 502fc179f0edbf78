package api

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedisTokens(t *testing.T, ttl time.Duration) (*RedisTokens, *miniredis.Miniredis) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisTokens(client, ttl), m
}

func TestRedisTokensIssueThenVerify(t *testing.T) {
	tokens, _ := newTestRedisTokens(t, time.Hour)
	ctx := context.Background()

	token, err := tokens.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if token == "" {
		t.Fatal("empty token issued")
	}

	ok, err := tokens.Verify(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("freshly issued token rejected")
	}
}

func TestRedisTokensVerifySurvivesRepeatedUse(t *testing.T) {
	tokens, _ := newTestRedisTokens(t, time.Hour)
	ctx := context.Background()

	token, err := tokens.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	for i := 0; i < 3; i++ {
		ok, err := tokens.Verify(ctx, token)
		if err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("token rejected on use %d", i)
		}
	}
}

func TestRedisTokensRejectUnknown(t *testing.T) {
	tokens, _ := newTestRedisTokens(t, time.Hour)
	ctx := context.Background()

	for _, token := range []string{"", "never-issued"} {
		ok, err := tokens.Verify(ctx, token)
		if err != nil {
			t.Fatalf("verify %q: %v", token, err)
		}
		if ok {
			t.Fatalf("token %q accepted", token)
		}
	}
}

func TestRedisTokensExpire(t *testing.T) {
	tokens, m := newTestRedisTokens(t, time.Minute)
	ctx := context.Background()

	token, err := tokens.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	m.FastForward(2 * time.Minute)

	ok, err := tokens.Verify(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expired token accepted")
	}
}

func TestMemoryTokensIssueThenVerify(t *testing.T) {
	tokens := NewMemoryTokens(time.Hour)
	ctx := context.Background()

	token, err := tokens.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	ok, err := tokens.Verify(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("freshly issued token rejected")
	}

	ok, err = tokens.Verify(ctx, "never-issued")
	if err != nil {
		t.Fatalf("verify unknown: %v", err)
	}
	if ok {
		t.Fatal("unknown token accepted")
	}
}

func TestMemoryTokensExpire(t *testing.T) {
	tokens := NewMemoryTokens(time.Millisecond)
	ctx := context.Background()

	token, err := tokens.Issue(ctx)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	ok, err := tokens.Verify(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("expired token accepted")
	}
}

func TestMemoryTokensSweepOnIssue(t *testing.T) {
	tokens := NewMemoryTokens(time.Millisecond)
	ctx := context.Background()

	if _, err := tokens.Issue(ctx); err != nil {
		t.Fatalf("issue: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := tokens.Issue(ctx); err != nil {
		t.Fatalf("issue: %v", err)
	}

	tokens.mu.Lock()
	n := len(tokens.issued)
	tokens.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected expired tokens swept, have %d entries", n)
	}
}
