package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/phytolearning/cultivadatos/internal/model"
)

// uniqueViolation はPostgreSQLの一意制約違反のエラーコード。
const uniqueViolation = "23505"

// isUniqueViolation はエラーが一意制約違反かを判定する。
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// PostgresKitRepo はPostgreSQLを使用したキットリポジトリ。
type PostgresKitRepo struct {
	db *sql.DB
}

// NewPostgresKitRepo はPostgresKitRepoを生成する。
func NewPostgresKitRepo(db *sql.DB) *PostgresKitRepo {
	return &PostgresKitRepo{db: db}
}

const kitColumns = `id, code, status, COALESCE(claimed_by, ''), claimed_at, COALESCE(batch_id, ''), COALESCE(kit_number, ''), COALESCE(variety, ''), created_at`

// scanKit は1行分のキットをスキャンする。
func scanKit(row interface{ Scan(...any) error }) (*model.Kit, error) {
	k := &model.Kit{}
	err := row.Scan(
		&k.ID, &k.Code, &k.Status, &k.ClaimedBy, &k.ClaimedAt,
		&k.BatchID, &k.KitNumber, &k.Variety, &k.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return k, nil
}

// FindByCode は指定コードのキットを取得する。見つからない場合はnilを返す。
func (r *PostgresKitRepo) FindByCode(ctx context.Context, code string) (*model.Kit, error) {
	kit, err := scanKit(r.db.QueryRowContext(ctx,
		`SELECT `+kitColumns+` FROM allowed_kits WHERE code = $1`,
		code,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find kit by code: %w", err)
	}
	return kit, nil
}

// ClaimIfAvailable は「status=availableの場合のみclaimedに更新する」
// 条件付き更新を1文で実行し、更新された行があったかを返す。
// 競合する同時クレームはデータベースの行ロックにより直列化され、
// 勝者は常に1アカウントのみとなる。
func (r *PostgresKitRepo) ClaimIfAvailable(ctx context.Context, code, profileID string, claimedAt time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE allowed_kits
		 SET status = 'claimed', claimed_by = $2, claimed_at = $3
		 WHERE code = $1 AND status = 'available'`,
		code, profileID, claimedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim kit: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected > 0, nil
}

// Reset はキットをavailableに戻す（管理操作）。
func (r *PostgresKitRepo) Reset(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE allowed_kits SET status = 'available', claimed_by = NULL, claimed_at = NULL WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to reset kit: %w", err)
	}
	return requireRowAffected(result, "kit", fmt.Sprintf("%d", id))
}

// BulkInsert はキットを同一トランザクションで一括登録する。
// コード重複時はDuplicateKitCodeエラーを返し、全件ロールバックする。
func (r *PostgresKitRepo) BulkInsert(ctx context.Context, kits []*model.Kit) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO allowed_kits (code, status, batch_id, kit_number, variety, created_at)
		 VALUES ($1, 'available', NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5)`,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare kit insert: %w", err)
	}
	defer stmt.Close()

	for _, kit := range kits {
		if _, err := stmt.ExecContext(ctx, kit.Code, kit.BatchID, kit.KitNumber, kit.Variety, kit.CreatedAt); err != nil {
			if isUniqueViolation(err) {
				return 0, model.NewDuplicateKitCodeError(kit.Code)
			}
			return 0, fmt.Errorf("failed to insert kit %s: %w", kit.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return len(kits), nil
}

// List は全キットをコード順で返す。
func (r *PostgresKitRepo) List(ctx context.Context) ([]*model.Kit, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+kitColumns+` FROM allowed_kits ORDER BY code ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list kits: %w", err)
	}
	defer rows.Close()

	var kits []*model.Kit
	for rows.Next() {
		k, err := scanKit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan kit: %w", err)
		}
		kits = append(kits, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kits: %w", err)
	}
	return kits, nil
}

// Update はバッチ・品種などのメタデータを更新する。
func (r *PostgresKitRepo) Update(ctx context.Context, kit *model.Kit) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE allowed_kits
		 SET batch_id = NULLIF($2, ''), kit_number = NULLIF($3, ''), variety = NULLIF($4, '')
		 WHERE id = $1`,
		kit.ID, kit.BatchID, kit.KitNumber, kit.Variety,
	)
	if err != nil {
		return fmt.Errorf("failed to update kit: %w", err)
	}
	return requireRowAffected(result, "kit", fmt.Sprintf("%d", kit.ID))
}

// DeleteByID は指定IDのキットを削除する。
func (r *PostgresKitRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM allowed_kits WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete kit: %w", err)
	}
	return requireRowAffected(result, "kit", fmt.Sprintf("%d", id))
}

// CountByStatus はステータス別の件数を返す。
func (r *PostgresKitRepo) CountByStatus(ctx context.Context) (int, int, error) {
	var total, claimed int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'claimed') FROM allowed_kits`,
	).Scan(&total, &claimed)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count kits: %w", err)
	}
	return total, claimed, nil
}

// compile-time interface check
var _ KitRepository = (*PostgresKitRepo)(nil)
