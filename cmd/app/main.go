package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"fresch-tutor/internal/config"
	"fresch-tutor/internal/observe"
	"fresch-tutor/internal/presentation/di"
	"fresch-tutor/internal/presentation/http/router"
)

// サーバーのタイムアウト
//
// 書き込みは文字起こしと分類の再試行を含めて待つため長めに取る。
const (
	readTimeout     = 30 * time.Second
	writeTimeout    = 5 * time.Minute
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 30 * time.Second
)

// AppConfig アプリケーション設定
type AppConfig struct {
	ConfigPath string
	Port       string
}

// ServerInterface サーバーインターフェース（Seam化）
type ServerInterface interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// App アプリケーション構造体（Seamパターン）
type App struct {
	config     *AppConfig
	container  *di.Container
	server     *http.Server
	serverSeam ServerInterface // テスト用のSeam
}

// NewApp 新しいAppを作成
func NewApp(appCfg *AppConfig) (*App, error) {
	if appCfg.Port == "" {
		appCfg.Port = "8080"
	}

	cfg, err := config.Load(appCfg.ConfigPath)
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "path", appCfg.ConfigPath, "error", err)
		cfg = config.DefaultConfig()
	}

	container, err := di.NewContainer(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DI container: %w", err)
	}

	server := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      router.NewRouter(container),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	app := &App{
		config:    appCfg,
		container: container,
		server:    server,
	}
	app.serverSeam = server

	return app, nil
}

// Start サーバーを起動
func (a *App) Start() error {
	a.printStartupMessage()
	return a.serverSeam.ListenAndServe()
}

// printStartupMessage 起動メッセージを出力
func (a *App) printStartupMessage() {
	fmt.Println("=== Fresch Tutor API Server ===")
	fmt.Printf("AI Provider: %s\n", a.container.TutorUseCase().GetProviderName())
	fmt.Printf("Server listening on http://0.0.0.0:%s\n", a.config.Port)
	fmt.Println()
	fmt.Println("Endpoints:")
	fmt.Println("  GET  /health                      - Health check")
	fmt.Println("  GET  /metrics                     - Prometheus metrics")
	fmt.Println("  GET  /api/v1/tutor/strategies     - FRESCH strategies (ストラテジー一覧)")
	fmt.Println("  POST /api/v1/tutor/analyze        - Handwriting analysis (手書き解析)")
	fmt.Println()
}

// Shutdown サーバーをシャットダウン
func (a *App) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down server...")

	if err := a.serverSeam.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	if err := a.container.Close(); err != nil {
		return fmt.Errorf("container close failed: %w", err)
	}

	slog.Info("Server stopped")
	return nil
}

// Run アプリケーションを実行（グレースフルシャットダウン付き）
func (a *App) Run() error {
	serverErr := make(chan error, 1)
	go func() {
		if err := a.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-quit:
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		return a.Shutdown(ctx)
	}
}

// defaultConfigPath ホームディレクトリ配下の設定ファイルパス
func defaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		slog.Warn("Failed to get home directory, using current directory", "error", err)
		homeDir = "."
	}
	return filepath.Join(homeDir, ".fresch-tutor", "config.yaml")
}

// realMain 実際のmain処理（テスト可能にするため分離）
func realMain() error {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	shutdownMetrics, err := observe.InitProvider()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	defer func() {
		if err := shutdownMetrics(context.Background()); err != nil {
			slog.Warn("Failed to shut down meter provider", "error", err)
		}
	}()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	app, err := NewApp(&AppConfig{
		ConfigPath: defaultConfigPath(),
		Port:       port,
	})
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	return app.Run()
}

func main() {
	if err := realMain(); err != nil {
		slog.Error("Application error", "error", err)
		os.Exit(1)
	}
}
