package cart

import (
	"context"
	"errors"
	"io"
	"log"

	"github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *redis.Client
	logger *log.Logger
}

// NewRedis returns a Store that keeps each cart as a plain string value.
func NewRedis(client *redis.Client, logger *log.Logger) Store {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &redisStore{client: client, logger: logger}
}

func (s *redisStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		s.logger.Printf("cart store: redis get key=%s error=%v", key, err)
		return "", false, err
	}
	return value, true, nil
}

func (s *redisStore) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, key, value, 0).Err(); err != nil {
		s.logger.Printf("cart store: redis set key=%s error=%v", key, err)
		return err
	}
	return nil
}
