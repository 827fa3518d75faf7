package di

import (
	"fmt"
	"sync"

	"fresch-tutor/internal/config"
	sharedAI "fresch-tutor/internal/modules/shared/infrastructure/ai"
	sharedCache "fresch-tutor/internal/modules/shared/infrastructure/cache"
	"fresch-tutor/internal/modules/tutor/domain"
	tutorHandler "fresch-tutor/internal/modules/tutor/presentation/handler"
	tutorUsecase "fresch-tutor/internal/modules/tutor/usecase"
	"fresch-tutor/internal/observe"
	httpHandler "fresch-tutor/internal/presentation/http/handler"
)

// Container DIコンテナ
type Container struct {
	// Shared Infrastructure
	transcriber domain.TranscriberRepository
	classifier  domain.ClassifierRepository
	cacheRepo   domain.CacheRepository
	metrics     *observe.Metrics

	// Tutor Module
	tutorUseCase *tutorUsecase.TutorUseCase
	tutorHandler *tutorHandler.TutorHandler

	healthHandler *httpHandler.HealthHandler

	closeOnce sync.Once
	closeErr  error
}

// NewContainer 新しいContainerを作成
func NewContainer(cfg *config.Config) (*Container, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	container := &Container{
		metrics: observe.DefaultMetrics(),
	}

	// Shared Infrastructure: 文字起こし
	container.transcriber = newTranscriber(cfg)

	// Shared Infrastructure: 分類
	container.classifier = sharedAI.NewOpenAIRepository(&cfg.OpenAI)

	// Shared Infrastructure: Cache Repository
	cacheRepo, err := newCacheRepository(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache repository: %w", err)
	}
	container.cacheRepo = cacheRepo

	// Tutor Module: UseCase
	retrier := tutorUsecase.NewRetrier(tutorUsecase.RetryConfig{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		InitialDelay:   cfg.Retry.InitialDelay,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
	}, container.metrics)
	transcriptCache := tutorUsecase.NewTranscriptCache(cacheRepo, cfg.Cache.TTL, container.metrics)
	container.tutorUseCase = tutorUsecase.NewTutorUseCase(
		container.transcriber,
		container.classifier,
		transcriptCache,
		retrier,
		container.metrics,
	)

	// Tutor Module: Handler
	container.tutorHandler = tutorHandler.NewTutorHandler(container.tutorUseCase, cfg.Tutor.TeacherPIN)

	container.healthHandler = httpHandler.NewHealthHandler(container.tutorUseCase.GetProviderName(), cfg.Cache.Backend)

	return container, nil
}

func newTranscriber(cfg *config.Config) domain.TranscriberRepository {
	if cfg.Transcription.Provider == config.ProviderGemini {
		return sharedAI.NewGeminiRepository(&cfg.Gemini)
	}
	return sharedAI.NewClaudeRepository(&cfg.Anthropic)
}

func newCacheRepository(cfg *config.Config) (domain.CacheRepository, error) {
	if cfg.Cache.Backend == config.CacheBackendRedis {
		return sharedCache.NewRedisRepository(&cfg.Redis)
	}
	return sharedCache.NewMemoryRepository(), nil
}

// TutorUseCase 解析ユースケースを取得
func (c *Container) TutorUseCase() *tutorUsecase.TutorUseCase {
	return c.tutorUseCase
}

// TutorHandler 解析APIハンドラーを取得
func (c *Container) TutorHandler() *tutorHandler.TutorHandler {
	return c.tutorHandler
}

// HealthHandler ヘルスチェックハンドラーを取得
func (c *Container) HealthHandler() *httpHandler.HealthHandler {
	return c.healthHandler
}

// Close リソースをクローズ
func (c *Container) Close() error {
	c.closeOnce.Do(func() {
		if c.cacheRepo != nil {
			if err := c.cacheRepo.Close(); err != nil {
				c.closeErr = fmt.Errorf("failed to close cache repository: %w", err)
			}
		}
	})
	return c.closeErr
}
