package api

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "csrf"

// RedisTokens stores issued anti-forgery tokens in Redis so all
// instances behind a load balancer accept each other's pages.
type RedisTokens struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTokens creates a token service using the provided Redis client
// and per-token TTL.
func NewRedisTokens(client *redis.Client, ttl time.Duration) *RedisTokens {
	return &RedisTokens{client: client, ttl: ttl}
}

func tokenKey(token string) string {
	return tokenKeyPrefix + ":" + token
}

// Issue generates a fresh token and records it with the configured TTL.
func (r *RedisTokens) Issue(ctx context.Context) (string, error) {
	token := uuid.NewString()
	if err := r.client.Set(ctx, tokenKey(token), 1, r.ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

// Verify reports whether the token was issued and has not expired.
func (r *RedisTokens) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	n, err := r.client.Exists(ctx, tokenKey(token)).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// MemoryTokens keeps issued tokens in process memory. It backs
// single-instance deployments that run without Redis.
type MemoryTokens struct {
	ttl time.Duration

	mu     sync.Mutex
	issued map[string]time.Time
}

// NewMemoryTokens creates an in-process token service with the given TTL.
func NewMemoryTokens(ttl time.Duration) *MemoryTokens {
	return &MemoryTokens{ttl: ttl, issued: make(map[string]time.Time)}
}

// Issue generates a fresh token, sweeping expired ones as a side effect.
func (m *MemoryTokens) Issue(ctx context.Context) (string, error) {
	token := uuid.NewString()
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()
	for t, exp := range m.issued {
		if now.After(exp) {
			delete(m.issued, t)
		}
	}
	m.issued[token] = now.Add(m.ttl)
	return token, nil
}

// Verify reports whether the token was issued and has not expired.
func (m *MemoryTokens) Verify(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	exp, ok := m.issued[token]
	if !ok {
		return false, nil
	}
	if time.Now().After(exp) {
		delete(m.issued, token)
		return false, nil
	}
	return true, nil
}
