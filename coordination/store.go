package coordination

import (
    "context"
    "time"
)

// Store is the set of coordination primitives every node process shares:
// TTL'd map-shaped records, sets, plain TTL'd string keys and expiring
// mutual-exclusion locks. Liveness in this system is derived from key
// expiry, so implementations must expire keys on their own; callers never
// sweep them.
type Store interface {
    // Records (map-shaped, one record per key)
    SetFields(ctx context.Context, key string, fields map[string]string) error
    Fields(ctx context.Context, key string) (map[string]string, error)
    Field(ctx context.Context, key string, field string) (string, bool, error)
    DeleteField(ctx context.Context, key string, field string) error
    IncrementField(ctx context.Context, key string, field string, delta int64) (int64, error)

    // Plain string keys
    Put(ctx context.Context, key string, value string, ttl time.Duration) error
    Get(ctx context.Context, key string) (string, bool, error)

    // Shared by both key shapes
    Delete(ctx context.Context, key string) error
    Exists(ctx context.Context, key string) (bool, error)
    Expire(ctx context.Context, key string, ttl time.Duration) error
    Keys(ctx context.Context, prefix string) ([]string, error)

    // Sets
    AddToSet(ctx context.Context, set string, member string) error
    RemoveFromSet(ctx context.Context, set string, member string) error
    SetMembers(ctx context.Context, set string) ([]string, error)

    // Lock acquires the named mutual-exclusion key or returns
    // ELockNotAcquired. The lock expires after ttl whether or not it is
    // released so a crashed holder cannot stall competitors forever.
    Lock(ctx context.Context, name string, ttl time.Duration) (Lock, error)

    Close() error
}

type Lock interface {
    // Release is a no-op if the lock already expired or was taken over.
    Release(ctx context.Context) error
}

const LockRetries = 3
const LockRetryBaseDelay = time.Millisecond * 20
