// Package app はアプリケーションの起動・依存関係のワイヤリングを行う。
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

	"github.com/hitoshi/stumble/internal/config"
	"github.com/hitoshi/stumble/internal/content"
	"github.com/hitoshi/stumble/internal/database"
	"github.com/hitoshi/stumble/internal/discovery"
	"github.com/hitoshi/stumble/internal/handler"
	"github.com/hitoshi/stumble/internal/ingest"
	"github.com/hitoshi/stumble/internal/interaction"
	"github.com/hitoshi/stumble/internal/logger"
	"github.com/hitoshi/stumble/internal/metrics"
	"github.com/hitoshi/stumble/internal/middleware"
	"github.com/hitoshi/stumble/internal/preference"
	"github.com/hitoshi/stumble/internal/repository"
	"github.com/hitoshi/stumble/internal/security"
	"github.com/hitoshi/stumble/internal/trending"
	"github.com/hitoshi/stumble/internal/worker/cleanup"
	trendingworker "github.com/hitoshi/stumble/internal/worker/trending"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

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
	contentRepo := repository.NewPostgresContentRepo(db)
	interactionRepo := repository.NewPostgresInteractionRepo(db)
	prefRepo := repository.NewPostgresPreferenceRepo(db)
	reputationRepo := repository.NewPostgresReputationRepo(db)
	trendingRepo := repository.NewPostgresTrendingRepo(db)

	// 3. セキュリティ・メトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. 発見エンジンの初期化
	poolManager := discovery.NewPoolManager(contentRepo, interactionRepo, discovery.PoolParams{
		BaseSize:           cfg.PoolBaseSize,
		MaxSize:            cfg.PoolMaxSize,
		Floor:              cfg.PoolFloor,
		GrowthPerExcess:    cfg.PoolGrowthPerExcess,
		ExclusionFilterMax: cfg.ExclusionFilterMax,
		RotationWindow:     cfg.RotationWindow,
	})
	selector := discovery.NewSelector(discovery.SelectionParams{
		EpsilonLow:     cfg.EpsilonLow,
		EpsilonMid:     cfg.EpsilonMid,
		EpsilonHighMax: cfg.EpsilonHighMax,
		SliceLow:       cfg.SliceLow,
		SliceMid:       cfg.SliceMid,
		SliceHighMin:   cfg.SliceHighMin,
	})
	discoveryService := discovery.NewDiscoveryService(
		contentRepo, interactionRepo, prefRepo, reputationRepo, trendingRepo,
		poolManager, selector,
		discovery.ScoringParams{
			FreshnessHalfLifeDays:      cfg.FreshnessHalfLifeDays,
			PriorCount:                 cfg.BaseScorePriorCount,
			EngagementMinSamples:       cfg.EngagementMinSamples,
			EngagementFullSamples:      cfg.EngagementFullSamples,
			EngagementReferenceSeconds: cfg.EngagementReferenceSeconds,
		},
		cfg.HistoryWindow,
		collector,
	)

	// 5. ドメインサービスの初期化
	contentService := content.NewContentService(contentRepo, ssrfGuard, sanitizer)
	interactionService := interaction.NewInteractionService(
		interactionRepo, contentRepo, slog.Default(), collector,
	)
	preferenceService := preference.NewPreferenceService(prefRepo, sanitizer)
	trendingService := trending.NewTrendingService(trendingRepo)
	sourceRegistrar := ingest.NewRegistrar(
		repository.NewPostgresSourceRepo(db), ssrfGuard, sanitizer,
	)

	// 6. ルーターの構築
	deps := &handler.RouterDeps{
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       middleware.NewRateLimiter(rateLimiterConfig(cfg)),
		Logger:            slog.Default(),

		DiscoveryService:   discoveryService,
		ContentService:     contentService,
		InteractionService: interactionService,
		PreferenceService:  preferenceService,
		TrendingService:    trendingService,
		SourceService:      sourceRegistrar,

		MetricsHandler: metrics.Handler(registry),
		HealthPinger:   db.PingContext,
	}

	router := handler.NewRouter(deps)

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

// runWorker はワーカーモードで起動する。
// トレンド計算ジョブをメインに、フィード取り込みスケジューラと
// トレンドキャッシュのクリーンアップジョブをバックグラウンドで動かす。
// トレンド計算ジョブはシングルトン前提のため、ワーカーは1プロセスのみ動かすこと。
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
	contentRepo := repository.NewPostgresContentRepo(db)
	interactionRepo := repository.NewPostgresInteractionRepo(db)
	trendingRepo := repository.NewPostgresTrendingRepo(db)
	sourceRepo := repository.NewPostgresSourceRepo(db)

	// 3. セキュリティ・メトリクスの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 4. トレンド計算ジョブの初期化
	calculator := trendingworker.NewCalculator(
		interactionRepo, trendingRepo,
		trendingworker.Params{
			TopN:         cfg.TrendingTopN,
			HourHalfLife: cfg.TrendingHourHalfLife,
			DayHalfLife:  cfg.TrendingDayHalfLife,
			WeekHalfLife: cfg.TrendingWeekHalfLife,
		},
		slog.Default(), collector,
	)

	// 5. 取り込みの初期化
	faviconResolver := ingest.NewFaviconResolver(ssrfGuard)
	importer := ingest.NewImporter(
		sourceRepo, contentRepo, ssrfGuard, sanitizer, faviconResolver,
		slog.Default(), collector,
		cfg.IngestInterval, cfg.IngestTimeout, cfg.IngestMaxSize,
	)
	scheduler := ingest.NewScheduler(
		sourceRepo, importer, slog.Default(), cfg.IngestMaxConcurrent,
	)

	// 6. クリーンアップジョブの初期化
	cleanupJob := cleanup.NewCleanupJob(trendingRepo, slog.Default(), cfg.TrendingRetention)

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
		slog.Duration("trending_interval", cfg.TrendingInterval),
		slog.Duration("ingest_interval", cfg.IngestInterval),
		slog.Int("ingest_max_concurrent", cfg.IngestMaxConcurrent),
	)

	// 取り込みスケジューラをバックグラウンドで起動
	go scheduler.Start(ctx, cfg.IngestInterval)

	// クリーンアップジョブを日次でバックグラウンド実行
	go cleanupJob.Start(ctx, 24*time.Hour)

	// トレンド計算ジョブをメインgoroutineで実行（ブロッキング）
	calculator.Start(ctx, cfg.TrendingInterval)

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

// rateLimiterConfig は設定値からレート制限設定を構築する。
// 設定はreq/min単位のため、x/time/rateのreq/sec単位に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	if cfg.RateLimitGeneral > 0 {
		rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
		rlCfg.GeneralBurst = cfg.RateLimitGeneral
	}
	if cfg.RateLimitSubmit > 0 {
		rlCfg.SubmitRate = rate.Limit(float64(cfg.RateLimitSubmit) / 60.0)
		rlCfg.SubmitBurst = cfg.RateLimitSubmit
	}
	return rlCfg
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
