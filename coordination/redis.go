package coordination

import (
    "context"
    "strconv"
    "time"

    "github.com/go-redis/redis/v8"

    . "github.com/cerenakmese/SmartStream/logging"
)

// RedisStore is the production Store. The key layout matches the layout
// relay nodes have always shared: record keys are hashes, lock keys are
// plain SETNX keys released with a compare-and-delete script so a lock
// that expired and was re-acquired by another process is never deleted by
// the original holder.
type RedisStore struct {
    client *redis.Client
}

const lockReleaseScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
    return redis.call("del", KEYS[1])
else
    return 0
end
`

func NewRedisStore(address string, password string) *RedisStore {
    client := redis.NewClient(&redis.Options{
        Addr: address,
        Password: password,
    })

    return &RedisStore{ client: client }
}

func (store *RedisStore) SetFields(ctx context.Context, key string, fields map[string]string) error {
    values := make([]interface{}, 0, len(fields) * 2)

    for field, value := range fields {
        values = append(values, field, value)
    }

    if err := store.client.HSet(ctx, key, values...).Err(); err != nil {
        Log.Errorf("Unable to write fields of %s: %v", key, err)

        return EStorage
    }

    return nil
}

func (store *RedisStore) Fields(ctx context.Context, key string) (map[string]string, error) {
    fields, err := store.client.HGetAll(ctx, key).Result()

    if err != nil {
        Log.Errorf("Unable to read record %s: %v", key, err)

        return nil, EStorage
    }

    return fields, nil
}

func (store *RedisStore) Field(ctx context.Context, key string, field string) (string, bool, error) {
    value, err := store.client.HGet(ctx, key, field).Result()

    if err == redis.Nil {
        return "", false, nil
    }

    if err != nil {
        return "", false, EStorage
    }

    return value, true, nil
}

func (store *RedisStore) DeleteField(ctx context.Context, key string, field string) error {
    if err := store.client.HDel(ctx, key, field).Err(); err != nil {
        return EStorage
    }

    return nil
}

func (store *RedisStore) IncrementField(ctx context.Context, key string, field string, delta int64) (int64, error) {
    value, err := store.client.HIncrBy(ctx, key, field, delta).Result()

    if err != nil {
        return 0, EStorage
    }

    return value, nil
}

func (store *RedisStore) Put(ctx context.Context, key string, value string, ttl time.Duration) error {
    if err := store.client.Set(ctx, key, value, ttl).Err(); err != nil {
        return EStorage
    }

    return nil
}

func (store *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
    value, err := store.client.Get(ctx, key).Result()

    if err == redis.Nil {
        return "", false, nil
    }

    if err != nil {
        return "", false, EStorage
    }

    return value, true, nil
}

func (store *RedisStore) Delete(ctx context.Context, key string) error {
    if err := store.client.Del(ctx, key).Err(); err != nil {
        return EStorage
    }

    return nil
}

func (store *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
    count, err := store.client.Exists(ctx, key).Result()

    if err != nil {
        return false, EStorage
    }

    return count > 0, nil
}

func (store *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
    if err := store.client.Expire(ctx, key, ttl).Err(); err != nil {
        return EStorage
    }

    return nil
}

func (store *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
    var cursor uint64
    keys := make([]string, 0)

    for {
        batch, nextCursor, err := store.client.Scan(ctx, cursor, prefix + "*", 100).Result()

        if err != nil {
            Log.Errorf("Unable to scan keys with prefix %s: %v", prefix, err)

            return nil, EStorage
        }

        keys = append(keys, batch...)
        cursor = nextCursor

        if cursor == 0 {
            break
        }
    }

    return keys, nil
}

func (store *RedisStore) AddToSet(ctx context.Context, set string, member string) error {
    if err := store.client.SAdd(ctx, set, member).Err(); err != nil {
        return EStorage
    }

    return nil
}

func (store *RedisStore) RemoveFromSet(ctx context.Context, set string, member string) error {
    if err := store.client.SRem(ctx, set, member).Err(); err != nil {
        return EStorage
    }

    return nil
}

func (store *RedisStore) SetMembers(ctx context.Context, set string) ([]string, error) {
    members, err := store.client.SMembers(ctx, set).Result()

    if err != nil {
        return nil, EStorage
    }

    return members, nil
}

func (store *RedisStore) Lock(ctx context.Context, name string, ttl time.Duration) (Lock, error) {
    token := strconv.FormatInt(time.Now().UnixNano(), 36)

    for attempt := 0; attempt < LockRetries; attempt++ {
        if attempt > 0 {
            select {
            case <-ctx.Done():
                return nil, ctx.Err()
            case <-time.After(lockBackoff(attempt)):
            }
        }

        acquired, err := store.client.SetNX(ctx, name, token, ttl).Result()

        if err != nil {
            Log.Errorf("Unable to acquire lock %s: %v", name, err)

            return nil, EStorage
        }

        if acquired {
            return &redisLock{ client: store.client, name: name, token: token }, nil
        }
    }

    return nil, ELockNotAcquired
}

func (store *RedisStore) Close() error {
    return store.client.Close()
}

type redisLock struct {
    client *redis.Client
    name string
    token string
}

func (lock *redisLock) Release(ctx context.Context) error {
    return lock.client.Eval(ctx, lockReleaseScript, []string{ lock.name }, lock.token).Err()
}
