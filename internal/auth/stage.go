package auth

import "github.com/phytolearning/cultivadatos/internal/model"

// Stage は認証・登録フローの現在位置を表す。
// クライアントはこの値だけを見て表示する画面を決定する。
type Stage string

const (
	// StageLanding は未ログイン。ランディングページを表示する。
	StageLanding Stage = "landing"
	// StageRegister は登録フロー進行中（OAuthリダイレクト待ちを含む）。
	StageRegister Stage = "register"
	// StageVerifyEmail はメール確認待ち。確認後のログインで先へ進む。
	StageVerifyEmail Stage = "verify-email"
	// StageCompleteRegistration はログイン済みだがキット未設定。
	StageCompleteRegistration Stage = "complete-registration"
	// StageNotConfigured はセッションは有効だがプロフィールが存在しない異常系。
	// ログアウト以外の操作はできない。サーバーが勝手にプロフィールを
	// 作り直すことはない。
	StageNotConfigured Stage = "not-configured"
	// StageAuthenticated は登録完了。ダッシュボードを表示する。
	StageAuthenticated Stage = "authenticated"
	// StageAdmin は運営管理者。管理画面に固定される。
	StageAdmin Stage = "admin"
)

// StageInput はステージ判定の入力。
type StageInput struct {
	// HasSession は有効なセッションが存在するか。
	HasSession bool
	// Profile はセッションに対応するプロフィール。存在しない場合はnil。
	Profile *model.Profile
	// HasPending は消費されていない登録ステージングが存在するか。
	// OAuth開始時に配布されるstate Cookieから導出される。
	HasPending bool
	// EmailUnverified はメール確認待ちのアカウントか（セッションなしの場合のみ意味を持つ）。
	EmailUnverified bool
}

// ResolveStage は入力のみからステージを決定する純粋関数。
// 判定順序が仕様であり、入れ替えてはならない。
func ResolveStage(in StageInput) Stage {
	if !in.HasSession {
		if in.EmailUnverified {
			return StageVerifyEmail
		}
		if in.HasPending {
			return StageRegister
		}
		return StageLanding
	}

	if in.Profile == nil {
		if in.HasPending {
			return StageRegister
		}
		return StageNotConfigured
	}

	if in.Profile.Role.IsSuperAdmin() {
		return StageAdmin
	}

	if in.Profile.KitCode == "" {
		return StageCompleteRegistration
	}

	return StageAuthenticated
}
