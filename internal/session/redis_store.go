package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
)

// RedisStore keeps the pair as JSON under a single key. The key expires with
// the refresh token, after which nothing could revive the session anyway.
type RedisStore struct {
	client *redis.Client
	key    string
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed session store. Key may be empty.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = "finboard:session"
	}
	return &RedisStore{client: client, key: key, now: time.Now}
}

func (r *RedisStore) Load(ctx context.Context) (*Pair, error) {
	b, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	var p Pair
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, err
	}
	if !p.complete() {
		return nil, nil
	}
	return &p, nil
}

func (r *RedisStore) Save(ctx context.Context, p *Pair) error {
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	var ttl time.Duration
	if exp, ok := tokenExpiry(p.RefreshToken); ok {
		ttl = exp.Sub(r.now())
		if ttl <= 0 {
			// ensure a minimal TTL so Redis won't store expired sessions
			ttl = time.Second
		}
	}
	return r.client.Set(ctx, r.key, b, ttl).Err()
}

func (r *RedisStore) Clear(ctx context.Context) error {
	return r.client.Del(ctx, r.key).Err()
}

// tokenExpiry reads the exp claim without verifying the signature; the
// client has no key and only needs the hint.
func tokenExpiry(raw string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil || claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
