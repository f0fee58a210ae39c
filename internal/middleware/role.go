package middleware

import (
	"net/http"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// NewKitManagerMiddleware はキット管理権限を要求するミドルウェアを返す。
// セッションミドルウェアの後に配置すること。
func NewKitManagerMiddleware() func(next http.Handler) http.Handler {
	return requireRole(func(role model.Role) bool { return role.CanManageKits() })
}

// NewViewerMiddleware は全参加者データの閲覧権限を要求するミドルウェアを返す。
func NewViewerMiddleware() func(next http.Handler) http.Handler {
	return requireRole(func(role model.Role) bool { return role.CanViewAllEntries() })
}

// requireRole はロール述語を満たさないリクエストを403で拒否する。
func requireRole(allowed func(model.Role) bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			profile, err := ProfileFromContext(r.Context())
			if err != nil {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}
			if !allowed(profile.Role) {
				WriteErrorResponse(w, http.StatusForbidden, model.NewForbiddenError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
