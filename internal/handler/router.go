package handler

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/animirror/internal/metrics"
	"github.com/hitoshi/animirror/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter

	// ユーザー
	Users    UserReaderInterface
	Lists    ListReaderInterface
	Resolver RemoteResolverInterface
	Syncer   SyncSchedulerInterface

	// ヘルスチェック用DB接続（nil可）
	DB *sql.DB

	// Prometheusレジストリ（nilなら/metricsを公開しない）
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → RateLimit(General)
//
// 同期トリガー（POST/PUT /users/{username}）には同期専用のレート制限を重ねる。
// /healthと/metricsはレート制限の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(slog.Default()))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	userHandler := NewUserHandler(deps.Users, deps.Lists, deps.Resolver, deps.Syncer)

	// --- 運用エンドポイント（レート制限の外） ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		status := "ok"
		code := http.StatusOK
		if deps.DB != nil {
			if err := deps.DB.Ping(); err != nil {
				status = "unavailable"
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- ミラーAPI ---

	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Route("/users/{username}", func(r chi.Router) {
			r.Get("/", userHandler.GetMirror)

			// 同期トリガーは同期専用レート制限を追加
			r.With(deps.RateLimiter.SyncTriggerMiddleware()).Post("/", userHandler.TriggerSync)
			r.With(deps.RateLimiter.SyncTriggerMiddleware()).Put("/", userHandler.TriggerSync)
		})
	})

	return r
}
