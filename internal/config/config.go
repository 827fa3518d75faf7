package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// 文字起こしプロバイダー
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
)

// キャッシュバックエンド
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config アプリケーション全体の設定
type Config struct {
	Anthropic     AnthropicConfig     `yaml:"anthropic"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Retry         RetryConfig         `yaml:"retry"`
	Cache         CacheConfig         `yaml:"cache"`
	Redis         RedisConfig         `yaml:"redis"`
	Tutor         TutorConfig         `yaml:"tutor"`
}

// AnthropicConfig Anthropic APIの設定（文字起こし）
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
}

// GeminiConfig Gemini APIの設定（文字起こし）
type GeminiConfig struct {
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// OpenAIConfig OpenAI APIの設定（分類）
type OpenAIConfig struct {
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url"`
}

// TranscriptionConfig 文字起こしの設定
type TranscriptionConfig struct {
	Provider string `yaml:"provider"`
}

// RetryConfig リトライの設定
type RetryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
}

// CacheConfig 文字起こしキャッシュの設定
type CacheConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
}

// RedisConfig Redisの設定
type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TutorConfig 画面表示の設定
type TutorConfig struct {
	TeacherPIN string `yaml:"teacher_pin"`
}

// Load 設定ファイルを読み込む
func Load(configPath string) (*Config, error) {
	// 設定ファイルが存在しない場合はデフォルト設定を返す
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// 環境変数の展開
	dataStr := os.ExpandEnv(string(data))

	// 未指定の項目はデフォルト値のまま
	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(dataStr), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig デフォルト設定を返す
func DefaultConfig() *Config {
	// Redisのホストはテスト環境では localhost を使用
	redisHost := "redis"
	if os.Getenv("GO_ENV") == "test" {
		redisHost = "localhost"
	}

	teacherPIN := os.Getenv("TEACHER_PIN")
	if teacherPIN == "" {
		teacherPIN = "1234"
	}

	return &Config{
		Anthropic: AnthropicConfig{
			APIKey:    os.Getenv("ANTHROPIC_API_KEY"),
			Model:     "claude-haiku-4-5-20251001",
			MaxTokens: 2048,
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  "gemini-2.5-flash",
		},
		OpenAI: OpenAIConfig{
			APIKey:      os.Getenv("OPENAI_API_KEY"),
			Model:       "gpt-4o-mini",
			Temperature: 0.1,
		},
		Transcription: TranscriptionConfig{
			Provider: ProviderClaude,
		},
		Retry: RetryConfig{
			MaxAttempts:    3,
			InitialDelay:   2 * time.Second,
			AttemptTimeout: 30 * time.Second,
		},
		Cache: CacheConfig{
			Backend: CacheBackendMemory,
			TTL:     0,
		},
		Redis: RedisConfig{
			Host:     redisHost,
			Port:     6379,
			Password: "",
			DB:       0,
		},
		Tutor: TutorConfig{
			TeacherPIN: teacherPIN,
		},
	}
}

// Validate 設定値を検証する
func (c *Config) Validate() error {
	switch c.Transcription.Provider {
	case ProviderClaude, ProviderGemini:
	default:
		return fmt.Errorf("unknown transcription provider: %q", c.Transcription.Provider)
	}

	switch c.Cache.Backend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unknown cache backend: %q", c.Cache.Backend)
	}

	if c.Retry.MaxAttempts < 1 || c.Retry.MaxAttempts > 10 {
		return fmt.Errorf("retry.max_attempts must be between 1 and 10, got %d", c.Retry.MaxAttempts)
	}

	if c.Retry.InitialDelay <= 0 {
		return fmt.Errorf("retry.initial_delay must be positive")
	}

	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative")
	}

	return nil
}

// Save 設定をファイルに保存する
func (c *Config) Save(configPath string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
