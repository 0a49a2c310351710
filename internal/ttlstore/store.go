package ttlstore

import (
	"context"
	"time"
)

// Store is the shared atomic key/value store with expiry used for the
// rotation rate counter and the nonce ledger. Windows are fixed: the first
// write to an absent or expired key starts a window of ttl and later
// increments never extend it.
type Store interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetIfAbsent(ctx context.Context, key string, ttl time.Duration) (bool, error)
	DeleteExpired(ctx context.Context) (int64, error)
}

func RateKey(handle string) string {
	return "rate:rotate:" + handle
}

func NonceKey(nonce string) string {
	return "nonce:" + nonce
}
