package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `id, email, name, role, COALESCE(kit_code, ''), start_date, score, COALESCE(avatar_url, ''), created_at, updated_at`

// scanProfile は1行分のプロフィールをスキャンする。
func scanProfile(row interface{ Scan(...any) error }) (*model.Profile, error) {
	p := &model.Profile{}
	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &p.Role, &p.KitCode,
		&p.StartDate, &p.Score, &p.AvatarURL, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// FindByID は指定IDのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	profile, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by ID: %w", err)
	}
	return profile, nil
}

// FindByEmail はメールアドレスでプロフィールを検索する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	profile, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE email = $1`,
		email,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile by email: %w", err)
	}
	return profile, nil
}

// CreateWithCredential はプロフィールと資格情報を同一トランザクションで作成する。
// credentialがnilの場合（OAuth登録）はプロフィールのみ作成する。
func (r *PostgresProfileRepo) CreateWithCredential(ctx context.Context, profile *model.Profile, credential *model.Credential) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (id, email, name, role, kit_code, start_date, score, avatar_url, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, NULLIF($8, ''), $9, $10)`,
		profile.ID, profile.Email, profile.Name, profile.Role, profile.KitCode,
		profile.StartDate, profile.Score, profile.AvatarURL, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	if credential != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO credentials (profile_id, password_hash, email_verified, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			credential.ProfileID, credential.PasswordHash, credential.EmailVerified,
			credential.CreatedAt, credential.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert credential: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Update は名前・アバター・開始日を更新する。
func (r *PostgresProfileRepo) Update(ctx context.Context, profile *model.Profile) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET name = $2, avatar_url = NULLIF($3, ''), start_date = $4, updated_at = now()
		 WHERE id = $1`,
		profile.ID, profile.Name, profile.AvatarURL, profile.StartDate,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	return requireRowAffected(result, "profile", profile.ID)
}

// UpdateKitCode はプロフィールのキットコードを設定する。
func (r *PostgresProfileRepo) UpdateKitCode(ctx context.Context, profileID, kitCode string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET kit_code = $2, updated_at = now() WHERE id = $1`,
		profileID, kitCode,
	)
	if err != nil {
		return fmt.Errorf("failed to update kit code: %w", err)
	}
	return requireRowAffected(result, "profile", profileID)
}

// UpdateScore はスコアを更新する。
func (r *PostgresProfileRepo) UpdateScore(ctx context.Context, profileID string, score int) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE profiles SET score = $2, updated_at = now() WHERE id = $1`,
		profileID, score,
	)
	if err != nil {
		return fmt.Errorf("failed to update score: %w", err)
	}
	return requireRowAffected(result, "profile", profileID)
}

// List は全プロフィールをスコア降順で返す。管理画面用。
func (r *PostgresProfileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY score DESC, created_at ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// requireRowAffected は更新対象の行が存在したことを検証する。
func requireRowAffected(result sql.Result, kind, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s not found: %s", kind, id)
	}
	return nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
