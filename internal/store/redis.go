package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Redis-backed key store with a context-aware,
// error-returning API (Set/Get/Has/Delete/DeletePrefix/Increment/Push),
// backed by Redis SET/GET with TTL instead of an in-process map. It does
// not offer every Store operation (no Update, Keys or Cleanup), and
// risk.Engine never reads from it: cmd/riskguard only writes periodic
// snapshots of the in-memory Store into it.
//
// Push is a read-modify-write under a per-key Redis WATCH
// transaction, the same optimistic-concurrency shape an INCR+EXPIRE
// pipeline would use for streak counters, generalized here to arbitrary
// JSON-encodable values.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	clock  func() time.Time

	hits      counter
	misses    counter
	evictions counter
}

type counter struct{ v int64 }

func (c *counter) add(n int64) { c.v += n }

// NewRedisStore wraps an existing redis.Client. Keys are namespaced under
// prefix (default "rg:") to avoid collisions with other users of the same
// Redis instance.
func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "rg:"
	}
	return &RedisStore{rdb: rdb, prefix: prefix, clock: time.Now}
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

// Set stores value (JSON-encoded) under key with an optional TTL.
func (r *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.rdb.Set(ctx, r.key(key), b, ttl).Err()
}

// Get decodes the value stored at key into out (a pointer). Reports
// presence via the bool; a missing or expired key is a clean miss, not an
// error.
func (r *RedisStore) Get(ctx context.Context, key string, out any) (bool, error) {
	b, err := r.rdb.Get(ctx, r.key(key)).Bytes()
	if err == redis.Nil {
		r.misses.add(1)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	r.hits.add(1)
	if err := json.Unmarshal(b, out); err != nil {
		return false, err
	}
	return true, nil
}

// Has reports whether key exists.
func (r *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.rdb.Exists(ctx, r.key(key)).Result()
	return n > 0, err
}

// Delete removes key.
func (r *RedisStore) Delete(ctx context.Context, key string) error {
	return r.rdb.Del(ctx, r.key(key)).Err()
}

// DeletePrefix scans and deletes every key sharing the given logical prefix,
// mirroring the in-memory Store's DeletePrefix.
func (r *RedisStore) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	pattern := r.key(prefix) + "*"
	var cursor uint64
	n := 0
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, pattern, 1000).Result()
		if err != nil {
			return n, err
		}
		if len(keys) > 0 {
			if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
				return n, err
			}
			n += len(keys)
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return n, nil
}

// Increment atomically increments the int64 counter at key by amount,
// setting ttl only on first creation (Redis INCRBY auto-creates at 0;
// EXPIRE NX leaves an existing TTL alone and needs Redis 7.0+).
func (r *RedisStore) Increment(ctx context.Context, key string, amount int64, ttl time.Duration) (int64, error) {
	pipe := r.rdb.Pipeline()
	incr := pipe.IncrBy(ctx, r.key(key), amount)
	if ttl > 0 {
		pipe.ExpireNX(ctx, r.key(key), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Push appends value to the JSON-array list stored at key via an optimistic
// WATCH/MULTI transaction, trimming to maxLen from the front on overflow.
func (r *RedisStore) Push(ctx context.Context, key string, value any, maxLen int) error {
	rk := r.key(key)
	txf := func(tx *redis.Tx) error {
		var list []json.RawMessage
		b, err := tx.Get(ctx, rk).Bytes()
		if err != nil && err != redis.Nil {
			return err
		}
		if err == nil {
			if jerr := json.Unmarshal(b, &list); jerr != nil {
				list = nil // corrupt value: drop and start fresh rather than failing the write
			}
		}
		enc, err := json.Marshal(value)
		if err != nil {
			return err
		}
		list = append(list, enc)
		if maxLen > 0 && len(list) > maxLen {
			list = list[len(list)-maxLen:]
		}
		out, err := json.Marshal(list)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, rk, out, 0)
			return nil
		})
		return err
	}
	return r.rdb.Watch(ctx, txf, rk)
}

// Stats returns process-local counters for hits/misses observed through
// this RedisStore handle; eviction accounting is owned by Redis's own TTL
// expiry and is not independently tracked here.
func (r *RedisStore) Stats() Stats {
	return Stats{Hits: r.hits.v, Misses: r.misses.v}
}
