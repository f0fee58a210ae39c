package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// PostgresCredentialRepo はPostgreSQLを使用した資格情報リポジトリ。
type PostgresCredentialRepo struct {
	db *sql.DB
}

// NewPostgresCredentialRepo はPostgresCredentialRepoを生成する。
func NewPostgresCredentialRepo(db *sql.DB) *PostgresCredentialRepo {
	return &PostgresCredentialRepo{db: db}
}

// FindByProfileID は指定プロフィールの資格情報を取得する。見つからない場合はnilを返す。
func (r *PostgresCredentialRepo) FindByProfileID(ctx context.Context, profileID string) (*model.Credential, error) {
	cred := &model.Credential{}
	err := r.db.QueryRowContext(ctx,
		`SELECT profile_id, password_hash, email_verified, created_at, updated_at
		 FROM credentials WHERE profile_id = $1`,
		profileID,
	).Scan(&cred.ProfileID, &cred.PasswordHash, &cred.EmailVerified, &cred.CreatedAt, &cred.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find credential: %w", err)
	}
	return cred, nil
}

// MarkEmailVerified はメール確認済みフラグを立てる。
func (r *PostgresCredentialRepo) MarkEmailVerified(ctx context.Context, profileID string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE credentials SET email_verified = TRUE, updated_at = now() WHERE profile_id = $1`,
		profileID,
	)
	if err != nil {
		return fmt.Errorf("failed to mark email verified: %w", err)
	}
	return requireRowAffected(result, "credential", profileID)
}

// compile-time interface check
var _ CredentialRepository = (*PostgresCredentialRepo)(nil)
