package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。メッセージは参加者向けに
// スペイン語で返す。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, kit, entry, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidKitCode     = "INVALID_KIT_CODE"
	ErrCodeKitNotFound        = "KIT_NOT_FOUND"
	ErrCodeKitAlreadyClaimed  = "KIT_ALREADY_CLAIMED"
	ErrCodeDuplicateKitCode   = "DUPLICATE_KIT_CODE"
	ErrCodeEmailInUse         = "EMAIL_IN_USE"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeEmailNotVerified   = "EMAIL_NOT_VERIFIED"
	ErrCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	ErrCodeEntryNotFound      = "ENTRY_NOT_FOUND"
	ErrCodeDuplicateEntryDate = "DUPLICATE_ENTRY_DATE"
	ErrCodeInvalidPotSet      = "INVALID_POT_SET"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeChatUpstream       = "CHAT_UPSTREAM"
)

// NewInvalidKitCodeError はキットコードの形式エラーを生成する。
func NewInvalidKitCodeError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidKitCode,
		Message:  fmt.Sprintf("El código debe tener el formato CVPL-XXX (ej. CVPL-001): %s", code),
		Category: "validation",
		Action:   "Verifica el código impreso en tu kit e intenta nuevamente.",
	}
}

// NewKitNotFoundError はキットコード未登録エラーを生成する。
func NewKitNotFoundError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeKitNotFound,
		Message:  fmt.Sprintf("Código de kit no encontrado: %s", code),
		Category: "kit",
		Action:   "Verifica que esté escrito correctamente (ej. CVPL-001).",
	}
}

// NewKitAlreadyClaimedError はキットコード使用済みエラーを生成する。
func NewKitAlreadyClaimedError() *APIError {
	return &APIError{
		Code:     ErrCodeKitAlreadyClaimed,
		Message:  "El código del kit ya ha sido utilizado o no está disponible.",
		Category: "kit",
		Action:   "Si crees que es un error, contacta al equipo del proyecto.",
	}
}

// NewDuplicateKitCodeError は一括登録時のコード重複エラーを生成する。
func NewDuplicateKitCodeError(code string) *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateKitCode,
		Message:  fmt.Sprintf("El código ya existe en el sistema: %s", code),
		Category: "kit",
		Action:   "Revisa la lista de códigos antes de volver a cargarla.",
	}
}

// NewEmailInUseError はメールアドレス重複エラーを生成する。
func NewEmailInUseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailInUse,
		Message:  "Este correo electrónico ya está registrado.",
		Category: "auth",
		Action:   "Inicia sesión o usa otro correo electrónico.",
	}
}

// NewInvalidCredentialsError は認証失敗エラーを生成する。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Correo o contraseña incorrectos.",
		Category: "auth",
		Action:   "Verifica tus datos e intenta nuevamente.",
	}
}

// NewEmailNotVerifiedError はメール未確認エラーを生成する。
func NewEmailNotVerifiedError() *APIError {
	return &APIError{
		Code:     ErrCodeEmailNotVerified,
		Message:  "Tu correo electrónico aún no ha sido verificado.",
		Category: "auth",
		Action:   "Revisa tu bandeja de entrada y confirma tu correo.",
	}
}

// NewProfileNotFoundError はプロフィール未作成エラーを生成する。
func NewProfileNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  "Tu cuenta no está configurada.",
		Category: "auth",
		Action:   "Cierra sesión y vuelve a registrarte, o contacta al equipo.",
	}
}

// NewEntryNotFoundError は記録未検出エラーを生成する。
func NewEntryNotFoundError(entryID string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("Registro no encontrado: %s", entryID),
		Category: "entry",
		Action:   "Actualiza la página e intenta nuevamente.",
	}
}

// NewDuplicateEntryDateError は同一日の記録重複エラーを生成する。
// 記録は1参加者につき1日1件に制限される。
func NewDuplicateEntryDateError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateEntryDate,
		Message:  "Ya existe un registro para esta fecha.",
		Category: "entry",
		Action:   "Edita el registro existente de ese día en lugar de crear uno nuevo.",
	}
}

// NewInvalidPotSetError は処理区セット不正エラーを生成する。
// 記録は必ず4つの処理区（1〜4）を1:1で持たなければならない。
func NewInvalidPotSetError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPotSet,
		Message:  "El registro debe incluir las 4 macetas (1 a 4).",
		Category: "validation",
		Action:   "Completa las mediciones de las 4 macetas antes de guardar.",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "Necesitas iniciar sesión para continuar.",
		Category: "auth",
		Action:   "Inicia sesión e intenta nuevamente.",
	}
}

// NewInvalidRequestError はリクエスト形式エラーを生成する。
func NewInvalidRequestError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
		Action:   "Revisa los datos enviados e intenta nuevamente.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "No tienes permisos para realizar esta acción.",
		Category: "auth",
		Action:   "Contacta al equipo del proyecto si necesitas acceso.",
	}
}

// NewChatUpstreamError はアシスタントAPI呼び出し失敗エラーを生成する。
func NewChatUpstreamError() *APIError {
	return &APIError{
		Code:     ErrCodeChatUpstream,
		Message:  "El asistente no está disponible en este momento.",
		Category: "system",
		Action:   "Intenta nuevamente en unos minutos.",
	}
}
