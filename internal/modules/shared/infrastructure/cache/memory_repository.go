package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fresch-tutor/internal/modules/tutor/domain"
)

// MemoryRepository プロセス内のキャッシュ
//
// 有効期限と追い出しはない。プロセスの寿命の間だけ保持する。
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string][]byte
}

// NewMemoryRepository 新しいMemoryRepositoryを作成
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string][]byte)}
}

// Set キーと値を設定（expirationは無視）
func (r *MemoryRepository) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	v := make([]byte, len(value))
	copy(v, value)

	r.mu.Lock()
	r.items[key] = v
	r.mu.Unlock()
	return nil
}

// Get キーから値を取得
func (r *MemoryRepository) Get(_ context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	v, ok := r.items[key]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCacheMiss, key)
	}

	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

// Close 何もしない
func (r *MemoryRepository) Close() error {
	return nil
}
