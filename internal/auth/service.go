// Package auth は登録・ログイン・OAuth認証フロー、セッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/phytolearning/cultivadatos/internal/kit"
	"github.com/phytolearning/cultivadatos/internal/model"
	"github.com/phytolearning/cultivadatos/internal/repository"
	"github.com/phytolearning/cultivadatos/internal/security"
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	Name           string
	AvatarURL      string
	Provider       string // "google" 等
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
// 将来的に複数IdP（Google, GitHub等）に対応するための抽象化。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// KitClaimer はキットの照合・紐付け機能のインターフェース。
// 登録フローから利用する。
type KitClaimer interface {
	CheckAvailability(ctx context.Context, code string) (*kit.Availability, error)
	Claim(ctx context.Context, profileID, code string) error
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
}

// SignUpRequest はメール/パスワード登録の入力。
type SignUpRequest struct {
	Email     string
	Password  string
	Name      string
	KitCode   string
	StartDate time.Time
}

// RegistrationInput はOAuthリダイレクト前にステージングする登録フォームの入力。
type RegistrationInput struct {
	Name      string
	KitCode   string
	StartDate time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	profileRepo repository.ProfileRepository
	credRepo    repository.CredentialRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	pendingRepo repository.PendingRegistrationRepository
	kits        KitClaimer
	signer      *Signer
	sanitizer   security.ContentSanitizerService
	config      ServiceConfig
}

// NewService はServiceを生成する。
func NewService(
	oauth OAuthProvider,
	profileRepo repository.ProfileRepository,
	credRepo repository.CredentialRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	pendingRepo repository.PendingRegistrationRepository,
	kits KitClaimer,
	signer *Signer,
	sanitizer security.ContentSanitizerService,
	config ServiceConfig,
) *Service {
	return &Service{
		oauth:       oauth,
		profileRepo: profileRepo,
		credRepo:    credRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		pendingRepo: pendingRepo,
		kits:        kits,
		signer:      signer,
		sanitizer:   sanitizer,
		config:      config,
	}
}

// SignUp はメール/パスワードで新規登録する。
// キットが使用済みの場合はアカウントを作成せずにエラーを返す。
// 作成されたアカウントはメール確認待ちの状態になり、確認用トークンを返す。
func (s *Service) SignUp(ctx context.Context, req SignUpRequest) (string, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))

	existing, err := s.profileRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", fmt.Errorf("プロフィールの検索に失敗しました: %w", err)
	}
	if existing != nil {
		return "", model.NewEmailInUseError()
	}

	// アカウント作成前にキットを照合する。使用済みならここで止める。
	availability, err := s.kits.CheckAvailability(ctx, req.KitCode)
	if err != nil {
		return "", err
	}
	if !availability.Available {
		return "", model.NewKitAlreadyClaimedError()
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}

	now := time.Now()
	profile := &model.Profile{
		ID:        uuid.New().String(),
		Email:     email,
		Name:      s.sanitizer.SanitizeText(req.Name),
		Role:      model.RoleParticipant,
		StartDate: req.StartDate,
		CreatedAt: now,
		UpdatedAt: now,
	}
	credential := &model.Credential{
		ProfileID:     profile.ID,
		PasswordHash:  hash,
		EmailVerified: false,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.profileRepo.CreateWithCredential(ctx, profile, credential); err != nil {
		return "", fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}

	if err := s.kits.Claim(ctx, profile.ID, availability.Code); err != nil {
		// アカウントは作成済み。キットはcomplete-registrationで再設定できる。
		slog.Warn("kit claim failed after sign-up",
			slog.String("profile_id", profile.ID),
			slog.String("kit_code", availability.Code),
			slog.String("error", err.Error()),
		)
	}

	slog.Info("new account created",
		slog.String("profile_id", profile.ID),
		slog.String("email", email),
	)

	return s.signer.Sign("verify:" + profile.ID), nil
}

// ConfirmEmail は確認用トークンを検証し、メール確認済みにする。
func (s *Service) ConfirmEmail(ctx context.Context, token string) error {
	value, err := s.signer.Verify(token)
	if err != nil {
		return fmt.Errorf("確認トークンが不正です: %w", err)
	}
	profileID, ok := strings.CutPrefix(value, "verify:")
	if !ok {
		return fmt.Errorf("確認トークンが不正です")
	}

	if err := s.credRepo.MarkEmailVerified(ctx, profileID); err != nil {
		return fmt.Errorf("メール確認の反映に失敗しました: %w", err)
	}

	slog.Info("email verified", slog.String("profile_id", profileID))
	return nil
}

// SignIn はメール/パスワードでログインし、セッションを発行する。
// 存在しないメールとパスワード不一致は同じエラーにする（列挙攻撃対策）。
func (s *Service) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	profile, err := s.profileRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの検索に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewInvalidCredentialsError()
	}

	credential, err := s.credRepo.FindByProfileID(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("資格情報の取得に失敗しました: %w", err)
	}
	if credential == nil {
		// OAuthのみのアカウント。パスワードログインはできない。
		return nil, model.NewInvalidCredentialsError()
	}

	if err := bcrypt.CompareHashAndPassword(credential.PasswordHash, []byte(password)); err != nil {
		return nil, model.NewInvalidCredentialsError()
	}

	if !credential.EmailVerified {
		return nil, model.NewEmailNotVerifiedError()
	}

	session, err := s.createSession(ctx, profile.ID)
	if err != nil {
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	slog.Info("user signed in", slog.String("profile_id", profile.ID))
	return session, nil
}

// StartGoogleLogin はOAuth認証URLを生成する。
// 登録フォームの入力がある場合は署名済みstateをキーにステージングし、
// コールバックで消費させる。使用済みキットはメール/パスワード登録と
// 同じくステージング前にここで止める。
// 戻り値のstateはステージングの有無をGetStageで判定できるよう、
// ハンドラー側でCookieに保存させる。
func (s *Service) StartGoogleLogin(ctx context.Context, input *RegistrationInput) (string, string, error) {
	nonce, err := NewNonce()
	if err != nil {
		return "", "", fmt.Errorf("stateの生成に失敗しました: %w", err)
	}
	state := s.signer.Sign(nonce)

	if input != nil {
		// アカウント作成前にキットを照合する。コールバックまで遅らせない。
		if input.KitCode != "" {
			availability, err := s.kits.CheckAvailability(ctx, input.KitCode)
			if err != nil {
				return "", "", err
			}
			if !availability.Available {
				return "", "", model.NewKitAlreadyClaimedError()
			}
		}

		pending := &model.PendingRegistration{
			State:     state,
			Name:      s.sanitizer.SanitizeText(input.Name),
			KitCode:   model.NormalizeKitCode(input.KitCode),
			StartDate: input.StartDate,
			CreatedAt: time.Now(),
		}
		if err := s.pendingRepo.Create(ctx, pending); err != nil {
			return "", "", fmt.Errorf("登録情報のステージングに失敗しました: %w", err)
		}
	}

	return s.oauth.GetLoginURL(state), state, nil
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
//
// stateの署名検証後、ステージング済みの登録情報があれば消費し（1回限り）、
// 新規ユーザーはプロフィールとidentityを作成、ステージングされたキットを
// 紐付ける。キットの紐付けが競合した場合でもログインは成立させ、
// complete-registrationステージで再設定させる。
func (s *Service) HandleCallback(ctx context.Context, state, code string) (*model.Session, error) {
	if _, err := s.signer.Verify(state); err != nil {
		return nil, fmt.Errorf("stateの検証に失敗しました: %w", err)
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("認可コードの交換に失敗しました: %w", err)
	}

	pending, err := s.pendingRepo.Consume(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("ステージングの消費に失敗しました: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("identityの検索に失敗しました: %w", err)
	}

	var profileID string

	if identity != nil {
		profileID = identity.ProfileID
		slog.Info("existing user logged in",
			slog.String("profile_id", profileID),
			slog.String("provider", userInfo.Provider),
		)
	} else {
		profileID, err = s.createOAuthProfile(ctx, userInfo, pending)
		if err != nil {
			return nil, err
		}
	}

	if pending != nil && pending.KitCode != "" {
		if err := s.kits.Claim(ctx, profileID, pending.KitCode); err != nil {
			slog.Warn("kit claim failed on oauth callback",
				slog.String("profile_id", profileID),
				slog.String("kit_code", pending.KitCode),
				slog.String("error", err.Error()),
			)
		}
	}

	session, err := s.createSession(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	return session, nil
}

// createOAuthProfile はOAuth経由の新規ユーザーのプロフィールとidentityを作成する。
// ステージング済みの登録情報があればフォーム入力を優先する。
func (s *Service) createOAuthProfile(ctx context.Context, userInfo *OAuthUserInfo, pending *model.PendingRegistration) (string, error) {
	now := time.Now()

	name := userInfo.Name
	startDate := now
	if pending != nil {
		if pending.Name != "" {
			name = pending.Name
		}
		if !pending.StartDate.IsZero() {
			startDate = pending.StartDate
		}
	}

	profile := &model.Profile{
		ID:        uuid.New().String(),
		Email:     strings.ToLower(userInfo.Email),
		Name:      s.sanitizer.SanitizeText(name),
		Role:      model.RoleParticipant,
		StartDate: startDate,
		AvatarURL: userInfo.AvatarURL,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.profileRepo.CreateWithCredential(ctx, profile, nil); err != nil {
		return "", fmt.Errorf("プロフィールの作成に失敗しました: %w", err)
	}

	identity := &model.Identity{
		ID:             uuid.New().String(),
		ProfileID:      profile.ID,
		Provider:       userInfo.Provider,
		ProviderUserID: userInfo.ProviderUserID,
		CreatedAt:      now,
	}
	if err := s.identRepo.Create(ctx, identity); err != nil {
		return "", fmt.Errorf("identityの作成に失敗しました: %w", err)
	}

	slog.Info("new oauth user created",
		slog.String("profile_id", profile.ID),
		slog.String("email", profile.Email),
		slog.String("provider", userInfo.Provider),
	)

	return profile.ID, nil
}

// Logout はセッションを破棄する。
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("セッションの削除に失敗しました: %w", err)
	}

	slog.Info("user logged out", slog.String("session_id", sessionID))
	return nil
}

// GetCurrentUser はセッションから現在のプロフィールを取得する。
// セッションが無効な場合は(nil, nil)を返す。セッションは有効だが
// プロフィールが存在しない場合はPROFILE_NOT_FOUNDを返す。
func (s *Service) GetCurrentUser(ctx context.Context, sessionID string) (*model.Profile, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	profile, err := s.profileRepo.FindByID(ctx, session.ProfileID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}

	return profile, nil
}

// GetStage は現在の認証・登録ステージを返す。
// pendingStateはOAuth開始時にCookieへ保存された署名済みstateで、
// 消費前の登録ステージングの有無を判定する。
// セッションがない場合はemailからメール確認待ちかどうかを判定する。
func (s *Service) GetStage(ctx context.Context, sessionID, pendingState, email string) (Stage, error) {
	in := StageInput{}

	if pendingState != "" {
		// 署名の通らないCookie値は無視する
		if _, err := s.signer.Verify(pendingState); err == nil {
			pending, err := s.pendingRepo.FindByState(ctx, pendingState)
			if err != nil {
				return "", fmt.Errorf("ステージングの検索に失敗しました: %w", err)
			}
			in.HasPending = pending != nil
		}
	}

	if sessionID != "" {
		session, err := s.sessionRepo.FindByID(ctx, sessionID)
		if err != nil {
			return "", fmt.Errorf("セッションの取得に失敗しました: %w", err)
		}
		if session != nil {
			in.HasSession = true
			profile, err := s.profileRepo.FindByID(ctx, session.ProfileID)
			if err != nil {
				return "", fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
			}
			in.Profile = profile
		}
	}

	if !in.HasSession && email != "" {
		profile, err := s.profileRepo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
		if err != nil {
			return "", fmt.Errorf("プロフィールの検索に失敗しました: %w", err)
		}
		if profile != nil {
			credential, err := s.credRepo.FindByProfileID(ctx, profile.ID)
			if err != nil {
				return "", fmt.Errorf("資格情報の取得に失敗しました: %w", err)
			}
			in.EmailUnverified = credential != nil && !credential.EmailVerified
		}
	}

	return ResolveStage(in), nil
}

// createSession はセッションを作成し永続化する。
func (s *Service) createSession(ctx context.Context, profileID string) (*model.Session, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("セッションIDの生成に失敗しました: %w", err)
	}

	session := &model.Session{
		ID:        sessionID,
		ProfileID: profileID,
		ExpiresAt: time.Now().Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: time.Now(),
	}

	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("セッションの保存に失敗しました: %w", err)
	}

	return session, nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
