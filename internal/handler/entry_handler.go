package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/phytolearning/cultivadatos/internal/middleware"
	"github.com/phytolearning/cultivadatos/internal/model"
)

// EntryServiceInterface は記録ハンドラーが必要とするサービスインターフェース。
type EntryServiceInterface interface {
	List(ctx context.Context, actor *model.Profile) ([]*model.Entry, error)
	Get(ctx context.Context, actor *model.Profile, entryID string) (*model.Entry, error)
	Create(ctx context.Context, actor *model.Profile, entry *model.Entry) (*model.Entry, error)
	Update(ctx context.Context, actor *model.Profile, entry *model.Entry) (*model.Entry, error)
	Delete(ctx context.Context, actor *model.Profile, entryID string) error
	ListAll(ctx context.Context, actor *model.Profile) ([]*model.Entry, error)
	ListForProfile(ctx context.Context, actor *model.Profile, profileID string) ([]*model.Entry, error)
	UploadPhoto(ctx context.Context, actor *model.Profile, filename, contentType string, body io.Reader) (string, error)
}

// EntryHandler は日次記録のHTTPハンドラー。
type EntryHandler struct {
	service EntryServiceInterface
}

// NewEntryHandler はEntryHandlerを生成する。
func NewEntryHandler(service EntryServiceInterface) *EntryHandler {
	return &EntryHandler{service: service}
}

// potPayload は1鉢分の計測値。クライアントは数値を文字列として送受信する
// （モバイル入力フォームの揺れと末尾ゼロの保持のため）。
type potPayload struct {
	Weight       string          `json:"weight"`
	Height       string          `json:"height"`
	PH           string          `json:"ph"`
	VisualStatus string          `json:"visual_status"`
	Notes        string          `json:"notes,omitempty"`
	Images       model.PotImages `json:"images"`
}

// entryRequest は記録の作成・更新リクエストのボディ。
type entryRequest struct {
	Date         string                `json:"date"` // YYYY-MM-DD
	DayNumber    int                   `json:"day_number"`
	GeneralNotes string                `json:"general_notes,omitempty"`
	Pots         map[string]potPayload `json:"pots"`
}

// entryResponse は記録のAPIレスポンス。
type entryResponse struct {
	ID           string                `json:"id"`
	ProfileID    string                `json:"profile_id"`
	Date         string                `json:"date"`
	DayNumber    int                   `json:"day_number"`
	GeneralNotes string                `json:"general_notes,omitempty"`
	Pots         map[string]potPayload `json:"pots"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// List は自分の記録一覧を返す。
// GET /api/entries
func (h *EntryHandler) List(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	entries, err := h.service.List(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponses(entries))
}

// Get は記録の詳細を返す。
// GET /api/entries/{id}
func (h *EntryHandler) Get(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	entry, err := h.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(entry))
}

// Create は新しい記録を保存する。
// POST /api/entries
// 記録は必ず4つの処理区すべての計測値を含む。
func (h *EntryHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	entry, ok := decodeEntry(w, r)
	if !ok {
		return
	}

	created, err := h.service.Create(r.Context(), actor, entry)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toEntryResponse(created))
}

// Update は既存の記録を更新する。本人の記録のみ更新できる。
// PUT /api/entries/{id}
func (h *EntryHandler) Update(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	entry, ok := decodeEntry(w, r)
	if !ok {
		return
	}
	entry.ID = chi.URLParam(r, "id")

	updated, err := h.service.Update(r.Context(), actor, entry)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponse(updated))
}

// Delete は記録を削除する。
// DELETE /api/entries/{id}
func (h *EntryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	if err := h.service.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UploadPhoto は記録に添付する写真をアップロードし、公開URLを返す。
// POST /api/photos (multipart/form-data, field: photo)
func (h *EntryHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	file, header, ok := openUploadedFile(w, r, "photo")
	if !ok {
		return
	}
	defer file.Close()

	url, err := h.service.UploadPhoto(r.Context(), actor, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"url": url,
	})
}

// ListAll は全参加者の記録一覧を返す（管理用）。
// GET /api/admin/entries
func (h *EntryHandler) ListAll(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	entries, err := h.service.ListAll(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponses(entries))
}

// ListForProfile は指定参加者の記録一覧を返す（管理用）。
// GET /api/admin/users/{id}/entries
func (h *EntryHandler) ListForProfile(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	entries, err := h.service.ListForProfile(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toEntryResponses(entries))
}

// --- 変換ヘルパー ---

// decodeEntry はリクエストボディをmodel.Entryに変換する。
// 数値文字列の解析に失敗した場合は400を書き込む。
func decodeEntry(w http.ResponseWriter, r *http.Request) (*model.Entry, bool) {
	var req entryRequest
	if !decodeBody(w, r, &req) {
		return nil, false
	}

	date, err := parseDate(req.Date)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("La fecha debe tener el formato AAAA-MM-DD."))
		return nil, false
	}

	pots := make(map[model.PotID]model.PotMeasurement, len(req.Pots))
	for id, p := range req.Pots {
		measurement, err := toPotMeasurement(model.PotID(id), p)
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("Las mediciones deben ser valores numéricos."))
			return nil, false
		}
		pots[model.PotID(id)] = measurement
	}

	return &model.Entry{
		Date:         date,
		DayNumber:    req.DayNumber,
		GeneralNotes: req.GeneralNotes,
		Pots:         pots,
	}, true
}

// toPotMeasurement は文字列表現の計測値を解析する。空文字は0として扱う。
func toPotMeasurement(id model.PotID, p potPayload) (model.PotMeasurement, error) {
	weight, err := parseMeasurement(p.Weight)
	if err != nil {
		return model.PotMeasurement{}, err
	}
	height, err := parseMeasurement(p.Height)
	if err != nil {
		return model.PotMeasurement{}, err
	}
	ph, err := parseMeasurement(p.PH)
	if err != nil {
		return model.PotMeasurement{}, err
	}

	return model.PotMeasurement{
		PotID:        id,
		Weight:       weight,
		Height:       height,
		PH:           ph,
		VisualStatus: model.PlantStatus(p.VisualStatus),
		Notes:        p.Notes,
		Images:       p.Images,
	}, nil
}

// parseMeasurement は数値文字列をfloat64に変換する。
func parseMeasurement(value string) (float64, error) {
	if value == "" {
		return 0, nil
	}
	return strconv.ParseFloat(value, 64)
}

// formatMeasurement はfloat64を末尾ゼロなしの最短表現で文字列化する。
// 往復変換（文字列→float64→文字列）で値が保たれる。
func formatMeasurement(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// toEntryResponse はmodel.EntryからAPIレスポンスに変換する。
func toEntryResponse(entry *model.Entry) entryResponse {
	pots := make(map[string]potPayload, len(entry.Pots))
	for id, pot := range entry.Pots {
		pots[string(id)] = potPayload{
			Weight:       formatMeasurement(pot.Weight),
			Height:       formatMeasurement(pot.Height),
			PH:           formatMeasurement(pot.PH),
			VisualStatus: string(pot.VisualStatus),
			Notes:        pot.Notes,
			Images:       pot.Images,
		}
	}

	return entryResponse{
		ID:           entry.ID,
		ProfileID:    entry.ProfileID,
		Date:         entry.Date.Format("2006-01-02"),
		DayNumber:    entry.DayNumber,
		GeneralNotes: entry.GeneralNotes,
		Pots:         pots,
		CreatedAt:    entry.CreatedAt,
		UpdatedAt:    entry.UpdatedAt,
	}
}

// toEntryResponses はスライス版の変換ヘルパー。
func toEntryResponses(entries []*model.Entry) []entryResponse {
	responses := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, toEntryResponse(entry))
	}
	return responses
}
