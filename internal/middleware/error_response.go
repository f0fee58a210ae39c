package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "Ocurrió un error interno.",
		Category: "system",
		Action:   "Espera unos minutos e intenta nuevamente.",
	})
}

// WriteServiceError はサービス層のエラーをHTTPレスポンスに変換する。
// APIErrorはコードに応じたステータスで返し、それ以外は500として扱う。
func WriteServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		WriteErrorResponse(w, statusForAPIError(apiErr), apiErr)
		return
	}
	WriteInternalServerError(w)
}

// statusForAPIError はエラーコードをHTTPステータスコードに対応付ける。
func statusForAPIError(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthorized, model.ErrCodeInvalidCredentials, model.ErrCodeEmailNotVerified:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeKitNotFound, model.ErrCodeEntryNotFound, model.ErrCodeProfileNotFound:
		return http.StatusNotFound
	case model.ErrCodeKitAlreadyClaimed, model.ErrCodeDuplicateKitCode,
		model.ErrCodeDuplicateEntryDate, model.ErrCodeEmailInUse:
		return http.StatusConflict
	case model.ErrCodeInvalidKitCode, model.ErrCodeInvalidPotSet, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeChatUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
