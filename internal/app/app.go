// Package app はアプリケーションの初期化とサブコマンドの起動を提供する。
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
	"golang.org/x/time/rate"

	"github.com/phytolearning/cultivadatos/internal/auth"
	"github.com/phytolearning/cultivadatos/internal/chat"
	"github.com/phytolearning/cultivadatos/internal/config"
	"github.com/phytolearning/cultivadatos/internal/database"
	"github.com/phytolearning/cultivadatos/internal/entry"
	"github.com/phytolearning/cultivadatos/internal/handler"
	"github.com/phytolearning/cultivadatos/internal/kit"
	"github.com/phytolearning/cultivadatos/internal/logger"
	"github.com/phytolearning/cultivadatos/internal/metrics"
	"github.com/phytolearning/cultivadatos/internal/middleware"
	"github.com/phytolearning/cultivadatos/internal/profile"
	"github.com/phytolearning/cultivadatos/internal/repository"
	"github.com/phytolearning/cultivadatos/internal/security"
	"github.com/phytolearning/cultivadatos/internal/storage"
	"github.com/phytolearning/cultivadatos/internal/worker/cleanup"
	"github.com/phytolearning/cultivadatos/internal/worker/scores"
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
		slog.String("base_url", cfg.BaseURL),
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
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
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
	profileRepo := repository.NewPostgresProfileRepo(db)
	credRepo := repository.NewPostgresCredentialRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	pendingRepo := repository.NewPostgresPendingRegistrationRepo(db)
	kitRepo := repository.NewPostgresKitRepo(db)
	entryRepo := repository.NewPostgresEntryRepo(db)
	chatRepo := repository.NewPostgresChatMessageRepo(db)

	// 3. 横断サービスの初期化
	sanitizer := security.NewContentSanitizer()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	store, err := storage.NewS3Storage(storage.Config{
		Bucket:        cfg.S3Bucket,
		Region:        cfg.S3Region,
		PublicBaseURL: cfg.S3PublicBaseURL,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize object storage: %w", err)
	}

	// 4. ドメインサービスの初期化
	kitService := kit.NewService(kitRepo, profileRepo, collector, cfg.BaseURL)

	signer := auth.NewSigner(cfg.SessionSecret)
	oauthProvider := auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
		ClientID:     cfg.GoogleClientID,
		ClientSecret: cfg.GoogleClientSecret,
		RedirectURL:  cfg.GoogleRedirectURL,
	})
	authService := auth.NewService(
		oauthProvider, profileRepo, credRepo, identRepo,
		sessionRepo, pendingRepo, kitService, signer, sanitizer,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	entryService := entry.NewService(entryRepo, profileRepo, sanitizer, store, collector)
	profileService := profile.NewService(profileRepo, entryRepo, kitService, sanitizer, store)

	chatClient := chat.NewClient(
		&http.Client{Timeout: 60 * time.Second},
		slog.Default(),
		chat.ClientConfig{
			APIKey:   cfg.OllamaAPIKey,
			Model:    cfg.OllamaModel,
			Endpoint: cfg.OllamaEndpoint,
		},
	)
	chatService := chat.NewService(chatClient, chatRepo, sanitizer, collector)

	// 5. ルーターの構築
	// configのレート制限はreq/min単位なのでreq/secに変換する
	rateLimiterCfg := middleware.DefaultRateLimiterConfig()
	rateLimiterCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rateLimiterCfg.GeneralBurst = cfg.RateLimitGeneral
	rateLimiterCfg.ChatRate = rate.Limit(float64(cfg.RateLimitChat) / 60.0)
	rateLimiterCfg.ChatBurst = cfg.RateLimitChat

	deps := &handler.RouterDeps{
		SessionFinder:     sessionRepo,
		ProfileFinder:     profileRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter:    middleware.NewRateLimiter(rateLimiterCfg),
		Logger:         slog.Default(),
		StatusRecorder: collector,
		MetricsHandler: metrics.Handler(registry),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			FrontendURL:   cfg.FrontendURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		EntryService:   entryService,
		KitService:     kitService,
		ProfileService: profileService,
		ChatService:    chatService,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // アシスタントAPIの応答待ちを考慮
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

// runWorker はバッチワーカーモードで起動する。
// 期限切れデータのクリーンアップとスコア再計算を定期実行する。
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
	profileRepo := repository.NewPostgresProfileRepo(db)
	entryRepo := repository.NewPostgresEntryRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	pendingRepo := repository.NewPostgresPendingRegistrationRepo(db)

	// 3. ジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(sessionRepo, pendingRepo, slog.Default())
	cleanupJob.PendingTTL = cfg.PendingTTL

	recalcJob := scores.NewRecalcJob(profileRepo, entryRepo, slog.Default())

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
		slog.Duration("cleanup_interval", cfg.CleanupInterval),
		slog.Duration("recalc_interval", cfg.RecalcInterval),
		slog.Duration("pending_ttl", cfg.PendingTTL),
	)

	// クリーンアップジョブをバックグラウンドで定期実行
	go runPeriodic(ctx, cfg.CleanupInterval, "cleanup job", cleanupJob.Run)

	// スコア再計算ジョブをメインgoroutineで定期実行（ブロッキング）
	runPeriodic(ctx, cfg.RecalcInterval, "score recalc job", recalcJob.Run)

	slog.Info("worker stopped gracefully")
	return nil
}

// runPeriodic は起動直後に1回、その後interval間隔でジョブを実行する。
// ctxがキャンセルされるまでブロックする。
func runPeriodic(ctx context.Context, interval time.Duration, name string, run func(context.Context) error) {
	if err := run(ctx); err != nil {
		slog.Error(name+" failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := run(ctx); err != nil {
				slog.Error(name+" failed", slog.String("error", err.Error()))
			}
		}
	}
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
