package coordination

import (
    "context"
    "math/rand"
    "strconv"
    "strings"
    "sync"
    "time"
)

// MemoryStore implements Store entirely in process memory with real TTL
// expiry. It backs the test suites and single-node demo deployments where
// running a shared store would be overkill. Expiry is evaluated lazily on
// access, which preserves the property the failover coordinator relies on:
// once a key's TTL has elapsed no reader can observe it.
type MemoryStore struct {
    mu sync.Mutex
    records map[string]*memoryRecord
    sets map[string]map[string]bool
    locks map[string]*memoryLockState
}

type memoryRecord struct {
    fields map[string]string
    value string
    isPlain bool
    deadline time.Time
}

type memoryLockState struct {
    token uint64
    deadline time.Time
}

func NewMemoryStore() *MemoryStore {
    return &MemoryStore{
        records: make(map[string]*memoryRecord),
        sets: make(map[string]map[string]bool),
        locks: make(map[string]*memoryLockState),
    }
}

func (store *MemoryStore) record(key string) *memoryRecord {
    record, ok := store.records[key]

    if !ok {
        return nil
    }

    if !record.deadline.IsZero() && time.Now().After(record.deadline) {
        delete(store.records, key)

        return nil
    }

    return record
}

func (store *MemoryStore) SetFields(ctx context.Context, key string, fields map[string]string) error {
    store.mu.Lock()
    defer store.mu.Unlock()

    record := store.record(key)

    if record == nil || record.isPlain {
        record = &memoryRecord{ fields: make(map[string]string) }
        store.records[key] = record
    }

    for field, value := range fields {
        record.fields[field] = value
    }

    return nil
}

func (store *MemoryStore) Fields(ctx context.Context, key string) (map[string]string, error) {
    store.mu.Lock()
    defer store.mu.Unlock()

    record := store.record(key)

    if record == nil || record.isPlain {
        return map[string]string{ }, nil
    }

    fields := make(map[string]string, len(record.fields))

    for field, value := range record.fields {
        fields[field] = value
    }

    return fields, nil
}

func (store *MemoryStore) Field(ctx context.Context, key string, field string) (string, bool, error) {
    store.mu.Lock()
    defer store.mu.Unlock()

    record := store.record(key)

    if record == nil || record.isPlain {
        return "", false, nil
    }

    value, ok := record.fields[field]

    return value, ok, nil
}

func (store *MemoryStore) DeleteField(ctx context.Context, key string, field string) error {
    store.mu.Lock()
    defer store.mu.Unlock()

    record := store.record(key)

    if record != nil && !record.isPlain {
        delete(record.fields, field)
    }

    return nil
}

func (store *MemoryStore) IncrementField(ctx context.Context, key string, field string, delta int64) (int64, error) {
    store.mu.Lock()
    defer store.mu.Unlock()

    record := store.record(key)

    if record == nil || record.isPlain {
        record = &memoryRecord{ fields: make(map[string]string) }
        store.records[key] = record
    }

    current, _ := strconv.ParseInt(record.fields[field], 10, 64)
    current += delta
    record.fields[field] = strconv.FormatInt(current, 10)

    return current, nil
}

func (store *MemoryStore) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
    store.mu.Lock()
    defer store.mu.Unlock()

    record := &memoryRecord{ value: value, isPlain: true }

    if ttl > 0 {
        record.deadline = time.Now().Add(ttl)
    }

    store.records[key] = record

    return nil
}

func (store *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
    store.mu.Lock()
    defer store.mu.Unlock()

    record := store.record(key)

    if record == nil || !record.isPlain {
        return "", false, nil
    }

    return record.value, true, nil
}

func (store *MemoryStore) Delete(ctx context.Context, key string) error {
    store.mu.Lock()
    defer store.mu.Unlock()

    delete(store.records, key)

    return nil
}

func (store *MemoryStore) Exists(ctx context.Context, key string) (bool, error) {
    store.mu.Lock()
    defer store.mu.Unlock()

    return store.record(key) != nil, nil
}

func (store *MemoryStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
    store.mu.Lock()
    defer store.mu.Unlock()

    record := store.record(key)

    if record == nil {
        return nil
    }

    record.deadline = time.Now().Add(ttl)

    return nil
}

func (store *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
    store.mu.Lock()
    defer store.mu.Unlock()

    keys := make([]string, 0)

    for key := range store.records {
        if !strings.HasPrefix(key, prefix) {
            continue
        }

        if store.record(key) == nil {
            continue
        }

        keys = append(keys, key)
    }

    return keys, nil
}

func (store *MemoryStore) AddToSet(ctx context.Context, set string, member string) error {
    store.mu.Lock()
    defer store.mu.Unlock()

    members, ok := store.sets[set]

    if !ok {
        members = make(map[string]bool)
        store.sets[set] = members
    }

    members[member] = true

    return nil
}

func (store *MemoryStore) RemoveFromSet(ctx context.Context, set string, member string) error {
    store.mu.Lock()
    defer store.mu.Unlock()

    if members, ok := store.sets[set]; ok {
        delete(members, member)
    }

    return nil
}

func (store *MemoryStore) SetMembers(ctx context.Context, set string) ([]string, error) {
    store.mu.Lock()
    defer store.mu.Unlock()

    members := make([]string, 0)

    for member := range store.sets[set] {
        members = append(members, member)
    }

    return members, nil
}

func (store *MemoryStore) Lock(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
    for attempt := 0; attempt < LockRetries; attempt++ {
        if attempt > 0 {
            select {
            case <-ctx.Done():
                return nil, ctx.Err()
            case <-time.After(lockBackoff(attempt)):
            }
        }

        store.mu.Lock()

        state, held := store.locks[name]

        if held && time.Now().After(state.deadline) {
            held = false
        }

        if !held {
            token := rand.Uint64()
            store.locks[name] = &memoryLockState{ token: token, deadline: time.Now().Add(ttl) }
            store.mu.Unlock()

            return &memoryLock{ store: store, name: name, token: token }, nil
        }

        store.mu.Unlock()
    }

    return nil, ELockNotAcquired
}

func (store *MemoryStore) Close() error {
    return nil
}

type memoryLock struct {
    store *MemoryStore
    name string
    token uint64
}

func (lock *memoryLock) Release(ctx context.Context) error {
    lock.store.mu.Lock()
    defer lock.store.mu.Unlock()

    state, ok := lock.store.locks[lock.name]

    // Only the holder may release. An expired lock that was re-acquired
    // by someone else carries a different token.
    if ok && state.token == lock.token {
        delete(lock.store.locks, lock.name)
    }

    return nil
}

func lockBackoff(attempt int) time.Duration {
    backoff := LockRetryBaseDelay << uint(attempt)

    return backoff + time.Duration(rand.Int63n(int64(backoff)))
}
