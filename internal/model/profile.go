// Package model はドメインモデルを定義する。
package model

import "time"

// Role は参加者アカウントの権限区分を表す。
type Role string

const (
	// RoleParticipant は一般参加者。自分の記録のみ操作できる。
	RoleParticipant Role = "participant"
	// RoleCoordinator はコーディネーター。キット管理と記録の閲覧ができる。
	RoleCoordinator Role = "coordinator"
	// RoleSuperAdmin は運営管理者。全操作が可能で、管理画面に固定される。
	RoleSuperAdmin Role = "super_admin"
)

// CanManageKits はキットの一括登録・編集が許可されているかを返す。
// 権限判定はこのメソッドに集約し、ハンドラー側でロール文字列を比較しない。
func (r Role) CanManageKits() bool {
	return r == RoleCoordinator || r == RoleSuperAdmin
}

// CanViewAllEntries は全参加者の記録閲覧が許可されているかを返す。
func (r Role) CanViewAllEntries() bool {
	return r == RoleCoordinator || r == RoleSuperAdmin
}

// IsSuperAdmin は運営管理者かどうかを返す。
func (r Role) IsSuperAdmin() bool {
	return r == RoleSuperAdmin
}

// Profile は実験参加者のプロフィールを表す。
// キットコードが空の参加者は登録未完了として扱われる。
type Profile struct {
	ID        string
	Email     string
	Name      string
	Role      Role
	KitCode   string
	StartDate time.Time
	Score     int
	AvatarURL string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	ProfileID      string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Credential はメール/パスワード認証の資格情報を表す。
// パスワードはbcryptハッシュのみ保存する。
type Credential struct {
	ProfileID     string
	PasswordHash  []byte
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Session は参加者のログインセッションを表す。
type Session struct {
	ID        string
	ProfileID string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// PendingRegistration はOAuthリダイレクトをまたいで登録フォームの入力値を
// 保持する一時レコード。stateパラメータをキーとし、初回コールバックで
// 消費（プロフィールへ反映後に削除）される。永続化機構ではない。
type PendingRegistration struct {
	State     string
	Name      string
	KitCode   string
	StartDate time.Time
	CreatedAt time.Time
}
