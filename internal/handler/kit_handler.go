package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/phytolearning/cultivadatos/internal/kit"
	"github.com/phytolearning/cultivadatos/internal/middleware"
	"github.com/phytolearning/cultivadatos/internal/model"
)

// KitServiceInterface はキットハンドラーが必要とするサービスインターフェース。
type KitServiceInterface interface {
	CheckAvailability(ctx context.Context, rawCode string) (*kit.Availability, error)
	Upload(ctx context.Context, actor *model.Profile, requests []kit.UploadRequest) (int, error)
	List(ctx context.Context, actor *model.Profile) ([]*model.Kit, error)
	Update(ctx context.Context, actor *model.Profile, k *model.Kit) error
	Delete(ctx context.Context, actor *model.Profile, id int64) error
	Reset(ctx context.Context, actor *model.Profile, id int64) error
	GetStats(ctx context.Context, actor *model.Profile) (*kit.Stats, error)
	QRLabelPNG(ctx context.Context, actor *model.Profile, rawCode string) ([]byte, error)
}

// KitHandler はキット照合・管理のHTTPハンドラー。
type KitHandler struct {
	service KitServiceInterface
}

// NewKitHandler はKitHandlerを生成する。
func NewKitHandler(service KitServiceInterface) *KitHandler {
	return &KitHandler{service: service}
}

// kitResponse はキット情報のAPIレスポンス。
type kitResponse struct {
	ID        int64      `json:"id"`
	Code      string     `json:"code"`
	Status    string     `json:"status"`
	ClaimedBy string     `json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	BatchID   string     `json:"batch_id,omitempty"`
	KitNumber string     `json:"kit_number,omitempty"`
	Variety   string     `json:"variety,omitempty"`
}

// uploadKitsRequest はキット一括登録リクエストのボディ。
type uploadKitsRequest struct {
	Kits []struct {
		Code    string `json:"code"`
		BatchID string `json:"batch_id"`
		Variety string `json:"variety"`
	} `json:"kits"`
}

// updateKitRequest はキット更新リクエストのボディ。
type updateKitRequest struct {
	BatchID string `json:"batch_id"`
	Variety string `json:"variety"`
}

// CheckAvailability はキットコードが利用可能かを照合する。
// GET /api/kits/availability?code=CVPL-001
// 登録フォームから認証なしで呼ばれる。
func (h *KitHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Falta el código del kit."))
		return
	}

	availability, err := h.service.CheckAvailability(r.Context(), code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"code":      availability.Code,
		"available": availability.Available,
	})
}

// Upload はキットコードを一括登録する。
// POST /api/admin/kits
func (h *KitHandler) Upload(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	var req uploadKitsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Kits) == 0 {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("La lista de kits está vacía."))
		return
	}

	requests := make([]kit.UploadRequest, 0, len(req.Kits))
	for _, k := range req.Kits {
		requests = append(requests, kit.UploadRequest{
			Code:    k.Code,
			BatchID: k.BatchID,
			Variety: k.Variety,
		})
	}

	inserted, err := h.service.Upload(r.Context(), actor, requests)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]int{
		"inserted": inserted,
	})
}

// List は登録済みキットの一覧を返す。
// GET /api/admin/kits
func (h *KitHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	kits, err := h.service.List(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]kitResponse, 0, len(kits))
	for _, k := range kits {
		responses = append(responses, toKitResponse(k))
	}
	writeJSON(w, http.StatusOK, responses)
}

// Update はキットのメタ情報（バッチ・品種）を更新する。
// PUT /api/admin/kits/{id}
func (h *KitHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	id, ok := kitIDFromURL(w, r)
	if !ok {
		return
	}

	var req updateKitRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.Update(r.Context(), actor, &model.Kit{
		ID:      id,
		BatchID: req.BatchID,
		Variety: req.Variety,
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Delete はキットを削除する。
// DELETE /api/admin/kits/{id}
func (h *KitHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	id, ok := kitIDFromURL(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), actor, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reset はキットの紐付けを解除して未使用に戻す。
// POST /api/admin/kits/{id}/reset
func (h *KitHandler) Reset(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	id, ok := kitIDFromURL(w, r)
	if !ok {
		return
	}

	if err := h.service.Reset(r.Context(), actor, id); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetStats はキットの利用状況サマリーを返す。
// GET /api/admin/kits/stats
func (h *KitHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	stats, err := h.service.GetStats(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int{
		"total":     stats.Total,
		"claimed":   stats.Claimed,
		"available": stats.Available,
	})
}

// QRLabel は配布用QRラベルのPNG画像を返す。
// GET /api/admin/kits/qr?code=CVPL-001
func (h *KitHandler) QRLabel(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Falta el código del kit."))
		return
	}

	png, err := h.service.QRLabelPNG(r.Context(), actor, code)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

// kitIDFromURL はURLパラメータからキットIDを取り出す。
func kitIDFromURL(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("El identificador del kit no es válido."))
		return 0, false
	}
	return id, true
}

// toKitResponse はmodel.KitからAPIレスポンスに変換する。
func toKitResponse(k *model.Kit) kitResponse {
	return kitResponse{
		ID:        k.ID,
		Code:      k.Code,
		Status:    string(k.Status),
		ClaimedBy: k.ClaimedBy,
		ClaimedAt: k.ClaimedAt,
		BatchID:   k.BatchID,
		KitNumber: k.KitNumber,
		Variety:   k.Variety,
	}
}
