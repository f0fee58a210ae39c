package handler

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phytolearning/cultivadatos/internal/middleware"
	"github.com/phytolearning/cultivadatos/internal/model"
	"github.com/phytolearning/cultivadatos/internal/profile"
	"github.com/phytolearning/cultivadatos/internal/repository"
)

// ProfileServiceInterface はプロフィールハンドラーが必要とするサービスインターフェース。
type ProfileServiceInterface interface {
	Update(ctx context.Context, actor *model.Profile, req profile.UpdateRequest) (*model.Profile, error)
	UploadAvatar(ctx context.Context, actor *model.Profile, filename, contentType string, body io.Reader) (string, error)
	CompleteRegistration(ctx context.Context, actor *model.Profile, kitCode string) error
	ListAll(ctx context.Context, actor *model.Profile) ([]*model.Profile, error)
	GetByID(ctx context.Context, actor *model.Profile, profileID string) (*model.Profile, error)
	GlobalStats(ctx context.Context) (*repository.GlobalStats, error)
}

// ProfileHandler はプロフィール管理のHTTPハンドラー。
type ProfileHandler struct {
	service ProfileServiceInterface
}

// NewProfileHandler はProfileHandlerを生成する。
func NewProfileHandler(service ProfileServiceInterface) *ProfileHandler {
	return &ProfileHandler{service: service}
}

// profileResponse はプロフィール情報のAPIレスポンス。
type profileResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Role      string `json:"role"`
	KitCode   string `json:"kit_code,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	Score     int    `json:"score"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// updateProfileRequest はプロフィール更新リクエストのボディ。
type updateProfileRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date"` // YYYY-MM-DD
}

// completeRegistrationRequest はキット紐付けリクエストのボディ。
type completeRegistrationRequest struct {
	KitCode string `json:"kit_code"`
}

// Get は自分のプロフィールを返す。
// GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(actor))
}

// Update はプロフィール（表示名・開始日）を更新する。
// PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	var req updateProfileRequest
	if !decodeBody(w, r, &req) {
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("La fecha de inicio debe tener el formato AAAA-MM-DD."))
		return
	}

	updated, err := h.service.Update(r.Context(), actor, profile.UpdateRequest{
		Name:      req.Name,
		StartDate: startDate,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(updated))
}

// UploadAvatar はアバター画像をアップロードする。
// POST /api/profile/avatar (multipart/form-data, field: avatar)
func (h *ProfileHandler) UploadAvatar(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	file, header, ok := openUploadedFile(w, r, "avatar")
	if !ok {
		return
	}
	defer file.Close()

	url, err := h.service.UploadAvatar(r.Context(), actor, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"avatar_url": url,
	})
}

// CompleteRegistration はログイン済みでキット未設定の参加者にキットを紐付ける。
// POST /api/profile/kit
func (h *ProfileHandler) CompleteRegistration(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	var req completeRegistrationRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.CompleteRegistration(r.Context(), actor, req.KitCode); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"kit_code": model.NormalizeKitCode(req.KitCode),
	})
}

// ListAll は全参加者の一覧を返す（管理用）。
// GET /api/admin/users
func (h *ProfileHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	profiles, err := h.service.ListAll(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		responses = append(responses, toProfileResponse(p))
	}
	writeJSON(w, http.StatusOK, responses)
}

// GetByID は指定参加者のプロフィールを返す（管理用）。
// GET /api/admin/users/{id}
func (h *ProfileHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	target, err := h.service.GetByID(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(target))
}

// GlobalStats はプロジェクト全体の公開統計を返す。
// GET /api/stats
// 認証不要。ランディングページに表示する。
func (h *ProfileHandler) GlobalStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GlobalStats(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	leaderboard := make([]map[string]any, 0, len(stats.Leaderboard))
	for _, row := range stats.Leaderboard {
		leaderboard = append(leaderboard, map[string]any{
			"name":  row.Name,
			"score": row.Score,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total_users":        stats.TotalUsers,
		"total_entries":      stats.TotalEntries,
		"total_photos":       stats.TotalPhotos,
		"active_experiments": stats.ActiveExperiments,
		"leaderboard":        leaderboard,
	})
}

// toProfileResponse はmodel.ProfileからAPIレスポンスに変換する。
func toProfileResponse(p *model.Profile) profileResponse {
	resp := profileResponse{
		ID:        p.ID,
		Email:     p.Email,
		Name:      p.Name,
		Role:      string(p.Role),
		KitCode:   p.KitCode,
		Score:     p.Score,
		AvatarURL: p.AvatarURL,
	}
	if !p.StartDate.IsZero() {
		resp.StartDate = p.StartDate.Format("2006-01-02")
	}
	return resp
}

// openUploadedFile はmultipartフォームから指定フィールドのファイルを取り出す。
// 失敗した場合は400レスポンスを書き込み、ok=falseを返す。
func openUploadedFile(w http.ResponseWriter, r *http.Request, field string) (multipart.File, *multipart.FileHeader, bool) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("No se pudo procesar el archivo enviado."))
		return nil, nil, false
	}

	f, h, err := r.FormFile(field)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Falta el archivo en la solicitud."))
		return nil, nil, false
	}

	return f, h, true
}
