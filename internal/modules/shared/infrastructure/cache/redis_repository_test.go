package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"fresch-tutor/internal/modules/shared/infrastructure/testcontainer"
	"fresch-tutor/internal/modules/tutor/domain"
	"fresch-tutor/internal/modules/tutor/usecase"
)

func setupRedisRepo(t *testing.T) (*RedisRepository, func()) {
	t.Helper()
	ctx := context.Background()

	// TestContainer起動
	redisContainer, err := testcontainer.StartRedis(ctx, t)
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}

	cfg, err := redisContainer.RedisConfig()
	if err != nil {
		_ = redisContainer.Close(ctx)
		t.Fatalf("Failed to build redis config: %v", err)
	}

	repo, err := NewRedisRepository(cfg)
	if err != nil {
		_ = redisContainer.Close(ctx)
		t.Fatalf("Failed to create redis repository: %v", err)
	}

	return repo, func() {
		_ = repo.Close()
		_ = redisContainer.Close(ctx)
	}
}

func TestRedisRepository_SetGet(t *testing.T) {
	repo, cleanup := setupRedisRepo(t)
	defer cleanup()

	ctx := context.Background()

	tests := []struct {
		name       string
		key        string
		value      []byte
		expiration time.Duration
	}{
		{
			name:       "正常系: 有効期限なし",
			key:        "fresch:transcript:aaa",
			value:      []byte("Der Hase leuft"),
			expiration: 0,
		},
		{
			name:       "正常系: 有効期限あり",
			key:        "fresch:transcript:bbb",
			value:      []byte("Hund"),
			expiration: time.Hour,
		},
		{
			name:       "正常系: 長い値",
			key:        "fresch:transcript:ccc",
			value:      make([]byte, 10000),
			expiration: time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := repo.Set(ctx, tt.key, tt.value, tt.expiration); err != nil {
				t.Fatalf("Set() error = %v", err)
			}
			got, err := repo.Get(ctx, tt.key)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if string(got) != string(tt.value) {
				t.Errorf("Get() = %q, want %q", got, tt.value)
			}
		})
	}
}

func TestRedisRepository_GetMiss(t *testing.T) {
	repo, cleanup := setupRedisRepo(t)
	defer cleanup()

	_, err := repo.Get(context.Background(), "fresch:transcript:nonexistent")
	if !errors.Is(err, domain.ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestRedisRepository_TTL(t *testing.T) {
	repo, cleanup := setupRedisRepo(t)
	defer cleanup()

	ctx := context.Background()

	t.Run("正常系: 有効期限が設定される", func(t *testing.T) {
		if err := repo.Set(ctx, "ttl:key", []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		d, err := repo.client.TTL(ctx, "ttl:key").Result()
		if err != nil {
			t.Fatalf("TTL() error = %v", err)
		}
		if d <= 0 || d > time.Hour {
			t.Errorf("TTL() = %v, want (0, 1h]", d)
		}
	})

	t.Run("正常系: 0は期限なし", func(t *testing.T) {
		if err := repo.Set(ctx, "ttl:forever", []byte("v"), 0); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
		d, err := repo.client.TTL(ctx, "ttl:forever").Result()
		if err != nil {
			t.Fatalf("TTL() error = %v", err)
		}
		// Redisは期限なしのキーに-1を返す
		if d >= 0 {
			t.Errorf("TTL() = %v, want negative", d)
		}
	})
}

func TestRedisRepository_TranscriptCache(t *testing.T) {
	repo, cleanup := setupRedisRepo(t)
	defer cleanup()

	ctx := context.Background()
	tc := usecase.NewTranscriptCache(repo, time.Hour, nil)
	fp := domain.Fingerprint([]byte("same image bytes"))

	var calls int32
	compute := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "Der Hase leuft schnel.", nil
	}

	for i := 0; i < 3; i++ {
		got, err := tc.GetOrCompute(ctx, fp, compute)
		if err != nil {
			t.Fatalf("GetOrCompute() error = %v", err)
		}
		if got != "Der Hase leuft schnel." {
			t.Errorf("GetOrCompute() = %q", got)
		}
	}

	if calls != 1 {
		t.Errorf("compute calls = %d, want 1", calls)
	}

	stored, err := repo.Get(ctx, "fresch:transcript:"+fp)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(stored) != "Der Hase leuft schnel." {
		t.Errorf("stored = %q", stored)
	}
}
