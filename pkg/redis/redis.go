package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ErrCacheMiss is returned by GetLookup when the key is absent or expired.
var ErrCacheMiss = errors.New("cache miss")

type IRedis interface {
	SetLookup(ctx context.Context, key string, value string, expiration time.Duration) error
	GetLookup(ctx context.Context, key string) (string, error)
	DeleteLookup(ctx context.Context, key string) error
}

type redisClient struct {
	client redis.Cmdable
}

func New() IRedis {
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	redisAddr := os.Getenv("REDIS_ADDRESS")

	logrus.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		logrus.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		logrus.Info("Successfully connected to Redis")
	}

	return &redisClient{client: client}
}

func NewWithClient(client redis.Cmdable) IRedis {
	return &redisClient{client: client}
}

func (r *redisClient) SetLookup(ctx context.Context, key string, value string, expiration time.Duration) error {
	if err := r.client.Set(ctx, key, value, expiration).Err(); err != nil {
		logrus.Error(fmt.Sprintf("Error caching key %s: %v", key, err))
		return err
	}
	return nil
}

func (r *redisClient) GetLookup(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	} else if err != nil {
		logrus.Error(fmt.Sprintf("Error reading key %s: %v", key, err))
		return "", err
	}
	return val, nil
}

func (r *redisClient) DeleteLookup(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

// Noop is used when no Redis address is configured; every read misses.
type Noop struct{}

func (Noop) SetLookup(context.Context, string, string, time.Duration) error { return nil }
func (Noop) GetLookup(context.Context, string) (string, error)              { return "", ErrCacheMiss }
func (Noop) DeleteLookup(context.Context, string) error                     { return nil }
