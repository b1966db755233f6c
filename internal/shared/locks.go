package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Mutex serializes multi-step finance operations per business key. Two open
// sessions closing the same card invoice, or the same account period, must
// not interleave; the loser gets ErrBusy and retries.
type Mutex struct {
	client *redis.Client
	ttl    time.Duration
}

// NewMutex constructs a Mutex. The TTL bounds how long a crashed holder can
// keep the key; operations here are a handful of round trips, so a short
// TTL is enough.
func NewMutex(client *redis.Client, ttl time.Duration) *Mutex {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Mutex{client: client, ttl: ttl}
}

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Acquire takes the critical section for key. The returned function
// releases it; releasing after TTL expiry is a no-op.
func (m *Mutex) Acquire(ctx context.Context, key string) (func(), error) {
	if m == nil || m.client == nil {
		return nil, errors.New("shared: mutex not initialised")
	}
	token := uuid.NewString()
	ok, err := m.client.SetNX(ctx, key, token, m.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire %s: %w", key, err)
	}
	if !ok {
		return nil, ErrBusy
	}
	release := func() {
		_ = releaseScript.Run(context.WithoutCancel(ctx), m.client, []string{key}, token).Err()
	}
	return release, nil
}

// CardCloseKey is the critical-section key for closing a card's invoice.
func CardCloseKey(cardID int64) string {
	return fmt.Sprintf("invoice:card:%d:close", cardID)
}

// PeriodCloseKey is the critical-section key for closing an account period.
func PeriodCloseKey(accountID int64) string {
	return fmt.Sprintf("reconcile:account:%d:close", accountID)
}
