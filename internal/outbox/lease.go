package outbox

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const leaseKey = "outbox:dispatch_lease"

// ErrLeaseHeld means another dispatcher currently owns the lease.
var ErrLeaseHeld = errors.New("dispatch lease held")

// releaseScript deletes the lease only when the token still matches, so
// an expired holder cannot release a successor's lease.
var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`)

// Lease is an advisory redis lock around dispatch runs. The SQL claim in
// the store already prevents double-processing; the lease keeps a manual
// trigger and the background poller from burning a batch each on the
// same rows.
type Lease struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLease(client *redis.Client, ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Lease{client: client, ttl: ttl}
}

// Handle is one held lease.
type Handle struct {
	lease *Lease
	token string
}

// Acquire takes the lease or returns ErrLeaseHeld.
func (l *Lease) Acquire(ctx context.Context) (*Handle, error) {
	token, err := randomToken()
	if err != nil {
		return nil, err
	}

	ok, err := l.client.SetNX(ctx, leaseKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquiring dispatch lease: %w", err)
	}
	if !ok {
		return nil, ErrLeaseHeld
	}
	return &Handle{lease: l, token: token}, nil
}

// Release gives the lease back. Safe to call after the TTL has expired.
func (h *Handle) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, h.lease.client, []string{leaseKey}, h.token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("releasing dispatch lease: %w", err)
	}
	return nil
}

func randomToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating lease token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
