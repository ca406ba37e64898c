package numbering

import (
	"context"
	"errors"

	redis "github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "numbering:last:"

// RedisStore shares counter state between processes that point at the same Redis.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) LastDocumentNumber(ctx context.Context, series string) (string, error) {
	val, err := s.client.Get(ctx, redisKeyPrefix+series).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (s *RedisStore) SaveLastDocumentNumber(ctx context.Context, series string, number string) error {
	return s.client.Set(ctx, redisKeyPrefix+series, number, 0).Err()
}

// UpdateLastDocumentNumber uses WATCH/MULTI so a concurrent writer aborts the transaction;
// the update is retried a few times before giving up.
func (s *RedisStore) UpdateLastDocumentNumber(ctx context.Context, series string, next func(last string) (string, error)) (string, error) {
	key := redisKeyPrefix + series
	var issued string

	txf := func(tx *redis.Tx) error {
		last, err := tx.Get(ctx, key).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		number, err := next(last)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, number, 0)
			return nil
		})
		if err == nil {
			issued = number
		}
		return err
	}

	for i := 0; i < 5; i++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return issued, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return "", err
		}
	}
	return "", errors.New("document counter contention: retries exhausted")
}
