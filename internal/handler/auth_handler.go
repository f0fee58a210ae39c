package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/phytolearning/cultivadatos/internal/auth"
	"github.com/phytolearning/cultivadatos/internal/middleware"
	"github.com/phytolearning/cultivadatos/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, req auth.SignUpRequest) (string, error)
	ConfirmEmail(ctx context.Context, token string) error
	SignIn(ctx context.Context, email, password string) (*model.Session, error)
	StartGoogleLogin(ctx context.Context, input *auth.RegistrationInput) (loginURL, state string, err error)
	HandleCallback(ctx context.Context, state, code string) (*model.Session, error)
	Logout(ctx context.Context, sessionID string) error
	GetCurrentUser(ctx context.Context, sessionID string) (*model.Profile, error)
	GetStage(ctx context.Context, sessionID, pendingState, email string) (auth.Stage, error)
}

// pendingStateCookieName は登録ステージング中であることを示すCookie名。
// 値はOAuthのstateそのもので、フォーム入力はサーバー側にのみ保存される。
const pendingStateCookieName = "pending_state"

// pendingStateMaxAge はステージングCookieの有効期間（秒）。
// OAuthリダイレクトの往復をカバーできれば十分なので短くする。
const pendingStateMaxAge = 600

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	FrontendURL   string // コールバック後のリダイレクト先
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler は登録・ログイン・OAuth認証のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// signUpRequest はメール/パスワード登録リクエストのボディ。
type signUpRequest struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Name      string `json:"name"`
	KitCode   string `json:"kit_code"`
	StartDate string `json:"start_date"` // YYYY-MM-DD
}

// confirmEmailRequest はメール確認リクエストのボディ。
type confirmEmailRequest struct {
	Token string `json:"token"`
}

// signInRequest はログインリクエストのボディ。
type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignUp はメール/パスワードで新規登録する。
// POST /auth/signup
// キットが使用済みの場合はアカウントを作らずに409を返す。
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if req.Email == "" || req.Password == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("El correo y la contraseña son obligatorios."))
		return
	}

	startDate, err := parseDate(req.StartDate)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("La fecha de inicio debe tener el formato AAAA-MM-DD."))
		return
	}

	token, err := h.service.SignUp(r.Context(), auth.SignUpRequest{
		Email:     req.Email,
		Password:  req.Password,
		Name:      req.Name,
		KitCode:   req.KitCode,
		StartDate: startDate,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// メール配送は未接続のため、確認トークンはログにのみ出力する。
	// TODO: SES経由の確認メール配送がつながったらこのログは落とす
	slog.Info("確認トークンを発行しました",
		slog.String("email", req.Email),
		slog.String("token", token),
	)

	writeJSON(w, http.StatusCreated, map[string]string{
		"stage": string(auth.StageVerifyEmail),
	})
}

// ConfirmEmail はメール確認トークンを検証してアカウントを有効化する。
// POST /auth/confirm
func (h *AuthHandler) ConfirmEmail(w http.ResponseWriter, r *http.Request) {
	var req confirmEmailRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.service.ConfirmEmail(r.Context(), req.Token); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"stage": string(auth.StageLanding),
	})
}

// SignIn はメール/パスワードでログインし、セッションCookieを設定する。
// POST /auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if !decodeBody(w, r, &req) {
		return
	}

	session, err := h.service.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)

	profile, err := h.service.GetCurrentUser(r.Context(), session.ID)
	if err != nil || profile == nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// GoogleLogin はGoogle OAuthフローを開始する。
// GET /auth/google/login?name=xxx&kit=CVPL-001&start_date=2026-03-01
// 登録フォームの入力値はクエリで受け取り、署名済みstateをキーに
// サーバー側でステージングする。ブラウザ側にはstateのみを短命の
// Cookieとして保存し、/auth/stageの判定に使う。
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var input *auth.RegistrationInput

	query := r.URL.Query()
	if query.Get("name") != "" || query.Get("kit") != "" {
		startDate, err := parseDate(query.Get("start_date"))
		if err != nil {
			middleware.WriteErrorResponse(w, http.StatusBadRequest,
				model.NewInvalidRequestError("La fecha de inicio debe tener el formato AAAA-MM-DD."))
			return
		}
		input = &auth.RegistrationInput{
			Name:      query.Get("name"),
			KitCode:   query.Get("kit"),
			StartDate: startDate,
		}
	}

	loginURL, state, err := h.service.StartGoogleLogin(r.Context(), input)
	if err != nil {
		slog.Error("OAuthログインの開始に失敗しました", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	if input != nil {
		h.setPendingStateCookie(w, state)
	}

	http.Redirect(w, r, loginURL, http.StatusTemporaryRedirect)
}

// GoogleCallback はOAuthコールバックを処理する。
// GET /auth/google/callback?code=xxx&state=yyy
// stateは署名検証されるため、Cookieによる突き合わせは不要。
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidRequestError("Faltan parámetros de autenticación."))
		return
	}

	session, err := h.service.HandleCallback(r.Context(), state, code)
	if err != nil {
		slog.Error("OAuthコールバックの処理に失敗しました", slog.String("error", err.Error()))
		handleServiceError(w, err)
		return
	}

	h.setSessionCookie(w, session.ID)
	// ステージングはコールバックで消費済み
	h.clearPendingStateCookie(w)

	http.Redirect(w, r, h.config.FrontendURL, http.StatusTemporaryRedirect)
}

// Logout はセッションを破棄する。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err == nil && cookie.Value != "" {
		// ログアウト失敗してもCookieはクリアする
		if logoutErr := h.service.Logout(r.Context(), cookie.Value); logoutErr != nil {
			slog.Error("ログアウトに失敗しました", slog.String("error", logoutErr.Error()))
		}
	}

	h.clearSessionCookie(w)

	w.WriteHeader(http.StatusNoContent)
}

// Me は現在のログインユーザー情報を返す。
// GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	profile, err := h.service.GetCurrentUser(r.Context(), cookie.Value)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if profile == nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return
	}

	writeJSON(w, http.StatusOK, toProfileResponse(profile))
}

// Stage は認証・登録フローの現在位置を返す。
// GET /auth/stage?email=xxx
// クライアントはこの値だけを見て表示する画面を決定する。
func (h *AuthHandler) Stage(w http.ResponseWriter, r *http.Request) {
	var sessionID string
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil {
		sessionID = cookie.Value
	}

	var pendingState string
	if cookie, err := r.Cookie(pendingStateCookieName); err == nil {
		pendingState = cookie.Value
	}

	stage, err := h.service.GetStage(r.Context(), sessionID, pendingState, r.URL.Query().Get("email"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"stage": string(stage),
	})
}

// setSessionCookie はHTTP OnlyのセッションCookieを設定する。
func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    sessionID,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie はセッションCookieを削除する。
func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// setPendingStateCookie は登録ステージング中を示す短命Cookieを設定する。
func (h *AuthHandler) setPendingStateCookie(w http.ResponseWriter, state string) {
	http.SetCookie(w, &http.Cookie{
		Name:     pendingStateCookieName,
		Value:    state,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   pendingStateMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearPendingStateCookie はステージングCookieを削除する。
func (h *AuthHandler) clearPendingStateCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     pendingStateCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// parseDate はYYYY-MM-DD形式の日付を解析する。空文字はゼロ値を返す。
func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}
