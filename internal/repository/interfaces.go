// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// ProfileRepository は参加者プロフィールの永続化インターフェース。
type ProfileRepository interface {
	// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// FindByEmail はメールアドレスでプロフィールを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Profile, error)

	// CreateWithCredential はプロフィールと資格情報を同一トランザクションで作成する。
	// credentialがnilの場合（OAuth登録）はプロフィールのみ作成する。
	CreateWithCredential(ctx context.Context, profile *model.Profile, credential *model.Credential) error

	// Update は名前・アバター・開始日を更新する。
	Update(ctx context.Context, profile *model.Profile) error

	// UpdateKitCode はプロフィールのキットコードを設定する。
	UpdateKitCode(ctx context.Context, profileID, kitCode string) error

	// UpdateScore はスコアを更新する。
	UpdateScore(ctx context.Context, profileID string, score int) error

	// List は全プロフィールを返す。管理画面用。
	List(ctx context.Context) ([]*model.Profile, error)
}

// CredentialRepository はメール/パスワード資格情報の永続化インターフェース。
type CredentialRepository interface {
	// FindByProfileID は指定プロフィールの資格情報を取得する。見つからない場合はnilを返す。
	FindByProfileID(ctx context.Context, profileID string) (*model.Credential, error)

	// MarkEmailVerified はメール確認済みフラグを立てる。
	MarkEmailVerified(ctx context.Context, profileID string) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create はidentityを作成する。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteExpired は期限切れセッションを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// PendingRegistrationRepository はOAuthリダイレクトをまたぐ登録ステージングの
// 永続化インターフェース。stateパラメータをキーとする。
type PendingRegistrationRepository interface {
	// Create はステージングレコードを作成する。
	Create(ctx context.Context, pending *model.PendingRegistration) error

	// FindByState はstateに対応するレコードを削除せずに返す。
	// 見つからない場合はnilを返す。
	FindByState(ctx context.Context, state string) (*model.PendingRegistration, error)

	// Consume はstateに対応するレコードを取得して削除する（消費は1回限り）。
	// 見つからない場合はnilを返す。
	Consume(ctx context.Context, state string) (*model.PendingRegistration, error)

	// DeleteStale は指定期間より古いレコードを一括削除し、削除件数を返す。
	DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error)
}

// KitRepository はキットコードの永続化インターフェース。
type KitRepository interface {
	// FindByCode は指定コードのキットを取得する。見つからない場合はnilを返す。
	FindByCode(ctx context.Context, code string) (*model.Kit, error)

	// ClaimIfAvailable は「status=availableの場合のみclaimedに更新する」
	// 条件付き更新を1文で実行し、更新された行があったかを返す。
	// 一意性の保証はデータベースの原子性に委譲する。
	ClaimIfAvailable(ctx context.Context, code, profileID string, claimedAt time.Time) (bool, error)

	// Reset はキットをavailableに戻す（管理操作）。
	Reset(ctx context.Context, id int64) error

	// BulkInsert はキットを同一トランザクションで一括登録する。
	// コード重複時はエラーを返し、全件ロールバックする。
	BulkInsert(ctx context.Context, kits []*model.Kit) (int, error)

	// List は全キットをコード順で返す。
	List(ctx context.Context) ([]*model.Kit, error)

	// Update はバッチ・品種などのメタデータを更新する。
	Update(ctx context.Context, kit *model.Kit) error

	// DeleteByID は指定IDのキットを削除する。
	DeleteByID(ctx context.Context, id int64) error

	// CountByStatus はステータス別の件数を返す。
	CountByStatus(ctx context.Context) (total, claimed int, err error)
}

// EntryRepository は実験記録の永続化インターフェース。
// Entryと4鉢分のPotMeasurementをまとめて扱う。
type EntryRepository interface {
	// FindByID は指定IDの記録を鉢の計測値付きで取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Entry, error)

	// ListByProfileID は指定参加者の全記録を日付降順で返す。
	ListByProfileID(ctx context.Context, profileID string) ([]*model.Entry, error)

	// ListAll は全記録を日付降順で返す。管理画面用。
	ListAll(ctx context.Context) ([]*model.Entry, error)

	// Create は記録と4鉢分の計測値を同一トランザクションで作成する。
	Create(ctx context.Context, entry *model.Entry) error

	// Update は記録を更新し、鉢の計測値を(entry_id, pot_id)でUPSERTする。
	Update(ctx context.Context, entry *model.Entry) error

	// DeleteByID は指定IDの記録を削除する。鉢の計測値はCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// GlobalStats は参加者数・記録数・写真数・進行中実験数を集計して返す。
	GlobalStats(ctx context.Context) (*GlobalStats, error)
}

// ChatMessageRepository はチャット履歴の永続化インターフェース。
type ChatMessageRepository interface {
	// Create はメッセージを保存する。
	Create(ctx context.Context, msg *model.ChatMessage) error

	// ListByProfileID は指定参加者の履歴を古い順で返す。
	ListByProfileID(ctx context.Context, profileID string, limit int) ([]*model.ChatMessage, error)
}

// GlobalStats はランディングページ向けの全体統計。
type GlobalStats struct {
	TotalUsers        int
	TotalEntries      int
	TotalPhotos       int
	ActiveExperiments int
	Leaderboard       []LeaderboardRow
}

// LeaderboardRow はスコア上位者の表示行。
type LeaderboardRow struct {
	Name  string
	Score int
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
