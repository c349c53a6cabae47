package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool and by the queue producer.
type Pinger interface{ Ping(ctx context.Context) error }

// RedisPinger is the subset of a go-redis client needed for readiness.
type RedisPinger interface {
	Ping(ctx context.Context) *redis.StatusCmd
}

// BuildReadinessChecks returns the db, redis and queue checks used by /readyz.
// A nil redis client is reported as ready since Redis is optional.
func BuildReadinessChecks(pool Pinger, rdb RedisPinger, queue Pinger) (
	func(ctx context.Context) error,
	func(ctx context.Context) error,
	func(ctx context.Context) error,
) {
	dbCheck := func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
	redisCheck := func(ctx context.Context) error {
		if rdb == nil {
			return nil
		}
		return rdb.Ping(ctx).Err()
	}
	queueCheck := func(ctx context.Context) error {
		if queue == nil {
			return fmt.Errorf("queue not configured")
		}
		return queue.Ping(ctx)
	}
	return dbCheck, redisCheck, queueCheck
}
