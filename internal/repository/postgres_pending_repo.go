package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// PostgresPendingRegistrationRepo はPostgreSQLを使用した登録ステージングリポジトリ。
// OAuthリダイレクトのstateパラメータをキーとする一時レコードを扱う。
type PostgresPendingRegistrationRepo struct {
	db *sql.DB
}

// NewPostgresPendingRegistrationRepo はPostgresPendingRegistrationRepoを生成する。
func NewPostgresPendingRegistrationRepo(db *sql.DB) *PostgresPendingRegistrationRepo {
	return &PostgresPendingRegistrationRepo{db: db}
}

// Create はステージングレコードを作成する。
func (r *PostgresPendingRegistrationRepo) Create(ctx context.Context, pending *model.PendingRegistration) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO pending_registrations (state, name, kit_code, start_date, created_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
		pending.State, pending.Name, pending.KitCode, pending.StartDate, pending.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert pending registration: %w", err)
	}
	return nil
}

// FindByState はstateに対応するレコードを削除せずに返す。
// ステージ判定（登録フロー進行中かどうか）に使用する。見つからない場合はnilを返す。
func (r *PostgresPendingRegistrationRepo) FindByState(ctx context.Context, state string) (*model.PendingRegistration, error) {
	pending := &model.PendingRegistration{}
	err := r.db.QueryRowContext(ctx,
		`SELECT state, name, COALESCE(kit_code, ''), start_date, created_at
		 FROM pending_registrations WHERE state = $1`,
		state,
	).Scan(&pending.State, &pending.Name, &pending.KitCode, &pending.StartDate, &pending.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find pending registration: %w", err)
	}
	return pending, nil
}

// Consume はstateに対応するレコードを取得して削除する（消費は1回限り）。
// DELETE ... RETURNINGにより取得と削除が原子的に行われ、
// 同一stateの二重消費は起こらない。見つからない場合はnilを返す。
func (r *PostgresPendingRegistrationRepo) Consume(ctx context.Context, state string) (*model.PendingRegistration, error) {
	pending := &model.PendingRegistration{}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM pending_registrations WHERE state = $1
		 RETURNING state, name, COALESCE(kit_code, ''), start_date, created_at`,
		state,
	).Scan(&pending.State, &pending.Name, &pending.KitCode, &pending.StartDate, &pending.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume pending registration: %w", err)
	}
	return pending, nil
}

// DeleteStale は指定期間より古いレコードを一括削除し、削除件数を返す。
func (r *PostgresPendingRegistrationRepo) DeleteStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	interval := fmt.Sprintf("%d seconds", int(olderThan.Seconds()))
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM pending_registrations WHERE created_at < now() - $1::interval`,
		interval,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale pending registrations: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return deleted, nil
}

// compile-time interface check
var _ PendingRegistrationRepository = (*PostgresPendingRegistrationRepo)(nil)
