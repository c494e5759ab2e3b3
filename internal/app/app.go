// Package app はアプリケーションの初期化・ワイヤリング・起動を提供する。
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/animirror/internal/anilist"
	"github.com/hitoshi/animirror/internal/assets"
	"github.com/hitoshi/animirror/internal/config"
	"github.com/hitoshi/animirror/internal/database"
	"github.com/hitoshi/animirror/internal/handler"
	"github.com/hitoshi/animirror/internal/logger"
	"github.com/hitoshi/animirror/internal/metrics"
	"github.com/hitoshi/animirror/internal/middleware"
	"github.com/hitoshi/animirror/internal/repository"
	"github.com/hitoshi/animirror/internal/security"
	"github.com/hitoshi/animirror/internal/storage"
	syncpkg "github.com/hitoshi/animirror/internal/sync"
	"github.com/hitoshi/animirror/internal/worker/cleanup"
	"github.com/hitoshi/animirror/internal/worker/resync"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("anilist_url", cfg.AniListURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続とS3クライアントを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	mediaRepo := repository.NewPostgresMediaRepo(db)
	entryRepo := repository.NewPostgresListEntryRepo(db)

	// 3. オブジェクトストレージの初期化
	store, err := storage.NewS3Store(context.Background(), storage.Options{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		BaseEndpoint:  cfg.S3BaseEndpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	// 4. セキュリティサービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewDescriptionSanitizer()

	// 5. ドメインサービスの初期化
	catalog := anilist.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		slog.Default(),
		cfg.AniListURL,
	)

	assetCache := assets.NewCache(
		userRepo, mediaRepo, store, ssrfGuard,
		slog.Default(), cfg.AssetTimeout, cfg.AssetMaxSize,
	)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	differ := syncpkg.NewDiffer(sanitizer)
	syncService := syncpkg.NewService(
		catalog, userRepo, mediaRepo, entryRepo,
		differ, assetCache, collector, slog.Default(),
		cfg.SyncMaxConcurrentUploads,
	)
	syncManager := syncpkg.NewManager(syncService, slog.Default(), cfg.SyncTimeout)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitSync),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,

		Users:    userRepo,
		Lists:    entryRepo,
		Resolver: catalog,
		Syncer:   syncManager,

		DB:       db,
		Gatherer: registry,
	})

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker は再同期ワーカーモードで起動する。
// DB接続とS3クライアントを開き、再同期スケジューラと孤立作品クリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	mediaRepo := repository.NewPostgresMediaRepo(db)
	entryRepo := repository.NewPostgresListEntryRepo(db)

	// 3. オブジェクトストレージの初期化
	store, err := storage.NewS3Store(context.Background(), storage.Options{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		BaseEndpoint:  cfg.S3BaseEndpoint,
		AccessKey:     cfg.S3AccessKey,
		SecretKey:     cfg.S3SecretKey,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	// 4. 同期サービスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewDescriptionSanitizer()

	catalog := anilist.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		slog.Default(),
		cfg.AniListURL,
	)

	assetCache := assets.NewCache(
		userRepo, mediaRepo, store, ssrfGuard,
		slog.Default(), cfg.AssetTimeout, cfg.AssetMaxSize,
	)

	differ := syncpkg.NewDiffer(sanitizer)
	syncService := syncpkg.NewService(
		catalog, userRepo, mediaRepo, entryRepo,
		differ, assetCache, nil, slog.Default(),
		cfg.SyncMaxConcurrentUploads,
	)
	syncManager := syncpkg.NewManager(syncService, slog.Default(), cfg.SyncTimeout)

	// 5. スケジューラとクリーンアップジョブの初期化
	scheduler := resync.NewScheduler(
		userRepo, catalog, syncManager, slog.Default(), cfg.ResyncMaxConcurrent,
	)
	cleanupJob := cleanup.NewCleanupJob(db, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("resync_interval", cfg.ResyncInterval),
		slog.Int("max_concurrent", cfg.ResyncMaxConcurrent),
	)

	// クリーンアップジョブを日次でバックグラウンド実行
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := cleanupJob.Run(ctx); err != nil {
					slog.Error("cleanup job failed", slog.String("error", err.Error()))
				}
			}
		}
	}()

	// 再同期スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx, cfg.ResyncInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
