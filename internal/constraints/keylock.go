package constraints

import (
	"context"
	"hash/fnv"
	"sync"

	dErrors "vitalproof/pkg/domain-errors"
)

// numDeriveShards bounds the lock table. Keys hashing to the same shard
// serialize with each other, which is safe but slower.
const numDeriveShards = 128

// shardedLock serializes writers per (user, metric) key.
type shardedLock struct {
	shards [numDeriveShards]sync.Mutex
}

// Run executes fn while holding the shard for key.
func (l *shardedLock) Run(ctx context.Context, key string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "derivation aborted: context cancelled")
	}

	mu := &l.shards[shardFor(key)]
	mu.Lock()
	defer mu.Unlock()

	// Check again after acquiring the lock.
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "derivation aborted: context cancelled")
	}
	return fn()
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % numDeriveShards
}

func lockKey(userID string, metric MetricType) string {
	return userID + "\x00" + string(metric)
}
