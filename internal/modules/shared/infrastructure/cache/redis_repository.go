package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"fresch-tutor/internal/config"
	"fresch-tutor/internal/modules/tutor/domain"
)

// RedisRepository Redis実装
type RedisRepository struct {
	client *redis.Client
}

// NewRedisRepository 新しいRedisRepositoryを作成
func NewRedisRepository(cfg *config.RedisConfig) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 接続確認
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisRepository{client: client}, nil
}

// Set キーと値を設定
//
// expirationが0なら有効期限なし。
func (r *RedisRepository) Set(ctx context.Context, key string, value []byte, expiration time.Duration) error {
	if err := r.client.Set(ctx, key, value, expiration).Err(); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}
	return nil
}

// Get キーから値を取得
func (r *RedisRepository) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", domain.ErrCacheMiss, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache: %w", err)
	}
	return val, nil
}

// Close Redis接続を閉じる
func (r *RedisRepository) Close() error {
	return r.client.Close()
}
