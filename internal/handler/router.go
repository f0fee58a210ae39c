package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phytolearning/cultivadatos/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionFinder     middleware.SessionFinder
	ProfileFinder     middleware.ProfileFinder
	CORSAllowedOrigin string
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger
	StatusRecorder    middleware.StatusRecorder
	MetricsHandler    http.Handler

	// サービス
	AuthService    AuthServiceInterface
	AuthConfig     AuthHandlerConfig
	EntryService   EntryServiceInterface
	KitService     KitServiceInterface
	ProfileService ProfileServiceInterface
	ChatService    ChatServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → Logging → (Session → CSRF → RateLimit)
//
// 認証ルート（/auth/*）と公開エンドポイントはセッション検証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	entryHandler := NewEntryHandler(deps.EntryService)
	kitHandler := NewKitHandler(deps.KitService)
	profileHandler := NewProfileHandler(deps.ProfileService)
	chatHandler := NewChatHandler(deps.ChatService)

	// --- 認証不要のルート ---

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

	// 認証・登録フロー
	r.Route("/auth", func(r chi.Router) {
		r.Post("/signup", authHandler.SignUp)
		r.Post("/confirm", authHandler.ConfirmEmail)
		r.Post("/signin", authHandler.SignIn)
		r.Get("/google/login", authHandler.GoogleLogin)
		r.Get("/google/callback", authHandler.GoogleCallback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
		r.Get("/stage", authHandler.Stage)
	})

	// 登録フォームからのキット照合と公開統計
	r.Get("/api/kits/availability", kitHandler.CheckAvailability)
	r.Get("/api/stats", profileHandler.GlobalStats)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder, deps.ProfileFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 日次記録
		r.Route("/api/entries", func(r chi.Router) {
			r.Get("/", entryHandler.List)
			r.Post("/", entryHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", entryHandler.Get)
				r.Put("/", entryHandler.Update)
				r.Delete("/", entryHandler.Delete)
			})
		})

		// 写真アップロード
		r.Post("/api/photos", entryHandler.UploadPhoto)

		// プロフィール
		r.Route("/api/profile", func(r chi.Router) {
			r.Get("/", profileHandler.Get)
			r.Put("/", profileHandler.Update)
			r.Post("/avatar", profileHandler.UploadAvatar)
			r.Post("/kit", profileHandler.CompleteRegistration)
		})

		// AIアシスタント（チャット専用レート制限を追加）
		r.Route("/api/chat", func(r chi.Router) {
			r.With(deps.RateLimiter.ChatMiddleware()).Post("/", chatHandler.Send)
			r.Get("/history", chatHandler.History)
		})

		// 管理画面: キット管理
		r.Route("/api/admin/kits", func(r chi.Router) {
			r.Use(middleware.NewKitManagerMiddleware())

			r.Get("/", kitHandler.List)
			r.Post("/", kitHandler.Upload)
			r.Get("/stats", kitHandler.GetStats)
			r.Get("/qr", kitHandler.QRLabel)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", kitHandler.Update)
				r.Delete("/", kitHandler.Delete)
				r.Post("/reset", kitHandler.Reset)
			})
		})

		// 管理画面: 参加者と記録の閲覧
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewViewerMiddleware())

			r.Get("/api/admin/users", profileHandler.ListAll)
			r.Get("/api/admin/users/{id}", profileHandler.GetByID)
			r.Get("/api/admin/users/{id}/entries", entryHandler.ListForProfile)
			r.Get("/api/admin/entries", entryHandler.ListAll)
		})
	})

	return r
}
