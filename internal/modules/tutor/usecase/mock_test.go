package usecase

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"fresch-tutor/internal/modules/tutor/domain"
)

// MockTranscriber モック文字起こしリポジトリ
type MockTranscriber struct {
	TranscribeFunc func(ctx context.Context, imageData []byte) (string, error)
	calls          int32
}

func (m *MockTranscriber) Transcribe(ctx context.Context, imageData []byte) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, imageData)
	}
	return "Der Hase leuft schnel.", nil
}

func (m *MockTranscriber) ProviderName() string {
	return "Mock Transcriber"
}

func (m *MockTranscriber) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

// MockClassifier モック分類リポジトリ
type MockClassifier struct {
	ClassifyFunc func(ctx context.Context, prompt string) (string, error)
	calls        int32
}

func (m *MockClassifier) Classify(ctx context.Context, prompt string) (string, error) {
	atomic.AddInt32(&m.calls, 1)
	if m.ClassifyFunc != nil {
		return m.ClassifyFunc(ctx, prompt)
	}
	return `[{"wort":"Hase","fehler":false}]`, nil
}

func (m *MockClassifier) ProviderName() string {
	return "Mock Classifier"
}

func (m *MockClassifier) Calls() int {
	return int(atomic.LoadInt32(&m.calls))
}

// MockCacheStore モックキャッシュストア
type MockCacheStore struct {
	mu      sync.Mutex
	items   map[string][]byte
	GetErr  error
	SetErr  error
	gets    int
	sets    int
	lastTTL time.Duration
}

func NewMockCacheStore() *MockCacheStore {
	return &MockCacheStore{items: make(map[string][]byte)}
}

func (m *MockCacheStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	v, ok := m.items[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrCacheMiss, key)
	}
	return v, nil
}

func (m *MockCacheStore) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	m.lastTTL = expiration
	if m.SetErr != nil {
		return m.SetErr
	}
	m.items[key] = append([]byte(nil), value...)
	return nil
}

func (m *MockCacheStore) Close() error {
	return nil
}

func (m *MockCacheStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// recordingSleeper 待機時間を記録するだけのSleeper
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	return ctx.Err()
}

func (s *recordingSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func (s *recordingSleeper) Total() time.Duration {
	var total time.Duration
	for _, d := range s.Delays() {
		total += d
	}
	return total
}

// testImage 検証を通るPNG画像
func testImage(t *testing.T, seed byte) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	img.Pix[0] = seed

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	return buf.Bytes()
}

// newTestUseCase モックで組み立てたユースケース
func newTestUseCase(tr *MockTranscriber, cl *MockClassifier, store *MockCacheStore, maxAttempts int) (*TutorUseCase, *recordingSleeper) {
	retrier := NewRetrier(RetryConfig{
		MaxAttempts:    maxAttempts,
		InitialDelay:   2 * time.Second,
		AttemptTimeout: 30 * time.Second,
	}, nil)
	sleeper := &recordingSleeper{}
	retrier.SetSleeper(sleeper.Sleep)

	cache := NewTranscriptCache(store, 0, nil)
	return NewTutorUseCase(tr, cl, cache, retrier, nil), sleeper
}

// rateLimitedErr アダプターが返すレート制限エラー
func rateLimitedErr() error {
	return fmt.Errorf("mock: %w: status 429", domain.ErrRateLimited)
}
