package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/stumble/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 発見
	DiscoveryService DiscoveryServiceInterface

	// コンテンツ
	ContentService ContentServiceInterface

	// インタラクション
	InteractionService InteractionServiceInterface

	// 設定
	PreferenceService PreferenceServiceInterface

	// トレンド
	TrendingService TrendingServiceInterface

	// 取り込みソース
	SourceService SourceServiceInterface

	// メトリクス公開用ハンドラー（nilの場合は公開しない）
	MetricsHandler http.Handler

	// HealthPinger はDB疎通確認。nilの場合は疎通確認をスキップする。
	HealthPinger func(ctx context.Context) error
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → Identity → RateLimit(General)
//
// ヘルスチェックとメトリクスは識別・レート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	// 全ルート共通
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))

	discoveryHandler := NewDiscoveryHandler(deps.DiscoveryService)
	contentHandler := NewContentHandler(deps.ContentService)
	interactionHandler := NewInteractionHandler(deps.InteractionService)
	preferenceHandler := NewPreferenceHandler(deps.PreferenceService)
	trendingHandler := NewTrendingHandler(deps.TrendingService)
	sourceHandler := NewSourceHandler(deps.SourceService)

	// --- 識別不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if deps.HealthPinger != nil {
			if err := deps.HealthPinger(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unavailable"}`))
				return
			}
		}
		w.Write([]byte(`{"status":"ok"}`))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 利用者識別が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 発見
		r.Route("/api/discover", func(r chi.Router) {
			r.Get("/next", discoveryHandler.Next)
			r.Get("/similar/{id}", discoveryHandler.Similar)
		})

		// コンテンツ
		r.Route("/api/contents", func(r chi.Router) {
			// POST /api/contents - 投稿（投稿専用レート制限を追加）
			r.With(deps.RateLimiter.SubmitMiddleware()).Post("/", contentHandler.Submit)

			r.Get("/{id}", contentHandler.Get)
		})

		// インタラクション
		r.Post("/api/interactions", interactionHandler.Record)

		// 設定
		r.Route("/api/preferences", func(r chi.Router) {
			r.Get("/", preferenceHandler.Get)
			r.Put("/", preferenceHandler.Update)
		})

		// トレンド
		r.Get("/api/trending", trendingHandler.List)

		// 取り込みソース登録（投稿専用レート制限を適用）
		r.With(deps.RateLimiter.SubmitMiddleware()).Post("/api/sources", sourceHandler.Register)
	})

	return r
}
