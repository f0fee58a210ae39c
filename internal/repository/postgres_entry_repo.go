package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/phytolearning/cultivadatos/internal/model"
)

// PostgresEntryRepo はPostgreSQLを使用した実験記録リポジトリ。
// experiment_entriesとpotsの2テーブルをまとめて扱う。
type PostgresEntryRepo struct {
	db *sql.DB
}

// NewPostgresEntryRepo はPostgresEntryRepoを生成する。
func NewPostgresEntryRepo(db *sql.DB) *PostgresEntryRepo {
	return &PostgresEntryRepo{db: db}
}

// FindByID は指定IDの記録を鉢の計測値付きで取得する。見つからない場合はnilを返す。
func (r *PostgresEntryRepo) FindByID(ctx context.Context, id string) (*model.Entry, error) {
	entry := &model.Entry{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, profile_id, date, day_number, COALESCE(general_notes, ''), created_at, updated_at
		 FROM experiment_entries WHERE id = $1`,
		id,
	).Scan(&entry.ID, &entry.ProfileID, &entry.Date, &entry.DayNumber,
		&entry.GeneralNotes, &entry.CreatedAt, &entry.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry by ID: %w", err)
	}

	pots, err := r.loadPots(ctx, []string{entry.ID})
	if err != nil {
		return nil, err
	}
	entry.Pots = pots[entry.ID]

	return entry, nil
}

// ListByProfileID は指定参加者の全記録を日付降順で返す。
func (r *PostgresEntryRepo) ListByProfileID(ctx context.Context, profileID string) ([]*model.Entry, error) {
	return r.list(ctx,
		`SELECT id, profile_id, date, day_number, COALESCE(general_notes, ''), created_at, updated_at
		 FROM experiment_entries WHERE profile_id = $1 ORDER BY date DESC`,
		profileID,
	)
}

// ListAll は全記録を日付降順で返す。管理画面用。
func (r *PostgresEntryRepo) ListAll(ctx context.Context) ([]*model.Entry, error) {
	return r.list(ctx,
		`SELECT id, profile_id, date, day_number, COALESCE(general_notes, ''), created_at, updated_at
		 FROM experiment_entries ORDER BY date DESC`,
	)
}

// list は記録一覧を取得し、鉢の計測値を一括ロードして結合する。
func (r *PostgresEntryRepo) list(ctx context.Context, query string, args ...any) ([]*model.Entry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list entries: %w", err)
	}
	defer rows.Close()

	var entries []*model.Entry
	var ids []string
	for rows.Next() {
		entry := &model.Entry{}
		if err := rows.Scan(&entry.ID, &entry.ProfileID, &entry.Date, &entry.DayNumber,
			&entry.GeneralNotes, &entry.CreatedAt, &entry.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		entries = append(entries, entry)
		ids = append(ids, entry.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entries: %w", err)
	}

	if len(entries) == 0 {
		return entries, nil
	}

	// 鉢の計測値はN+1を避けるため1クエリでまとめて取得する
	pots, err := r.loadPots(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		entry.Pots = pots[entry.ID]
	}

	return entries, nil
}

// loadPots は複数記録分の鉢の計測値を一括取得する。
func (r *PostgresEntryRepo) loadPots(ctx context.Context, entryIDs []string) (map[string]map[model.PotID]model.PotMeasurement, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entry_id, pot_id, weight, height, ph, visual_status, COALESCE(notes, ''), images
		 FROM pots WHERE entry_id = ANY($1)`,
		pq.Array(entryIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load pots: %w", err)
	}
	defer rows.Close()

	result := make(map[string]map[model.PotID]model.PotMeasurement, len(entryIDs))
	for rows.Next() {
		var entryID string
		var pot model.PotMeasurement
		var imagesJSON []byte
		if err := rows.Scan(&entryID, &pot.PotID, &pot.Weight, &pot.Height, &pot.PH,
			&pot.VisualStatus, &pot.Notes, &imagesJSON); err != nil {
			return nil, fmt.Errorf("failed to scan pot: %w", err)
		}
		if len(imagesJSON) > 0 {
			if err := json.Unmarshal(imagesJSON, &pot.Images); err != nil {
				return nil, fmt.Errorf("failed to decode pot images: %w", err)
			}
		}
		if result[entryID] == nil {
			result[entryID] = make(map[model.PotID]model.PotMeasurement, len(model.AllPotIDs))
		}
		result[entryID][pot.PotID] = pot
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate pots: %w", err)
	}

	return result, nil
}

// Create は記録と4鉢分の計測値を同一トランザクションで作成する。
// 同一参加者・同一日の記録が既に存在する場合はAPIErrorを返す。
func (r *PostgresEntryRepo) Create(ctx context.Context, entry *model.Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO experiment_entries (id, profile_id, date, day_number, general_notes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7)`,
		entry.ID, entry.ProfileID, entry.Date, entry.DayNumber, entry.GeneralNotes,
		entry.CreatedAt, entry.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return model.NewDuplicateEntryDateError()
		}
		return fmt.Errorf("failed to insert entry: %w", err)
	}

	if err := upsertPots(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Update は記録を更新し、鉢の計測値を(entry_id, pot_id)でUPSERTする。
func (r *PostgresEntryRepo) Update(ctx context.Context, entry *model.Entry) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE experiment_entries
		 SET date = $2, day_number = $3, general_notes = NULLIF($4, ''), updated_at = $5
		 WHERE id = $1`,
		entry.ID, entry.Date, entry.DayNumber, entry.GeneralNotes, entry.UpdatedAt,
	)
	if err != nil {
		// 日付変更が既存の別記録と衝突した場合
		if isUniqueViolation(err) {
			return model.NewDuplicateEntryDateError()
		}
		return fmt.Errorf("failed to update entry: %w", err)
	}
	if err := requireRowAffected(result, "entry", entry.ID); err != nil {
		return err
	}

	if err := upsertPots(ctx, tx, entry); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// upsertPots は4鉢分の計測値を(entry_id, pot_id)の一意制約でUPSERTする。
func upsertPots(ctx context.Context, tx *sql.Tx, entry *model.Entry) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO pots (entry_id, pot_id, weight, height, ph, visual_status, notes, images)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)
		 ON CONFLICT (entry_id, pot_id) DO UPDATE
		 SET weight = EXCLUDED.weight, height = EXCLUDED.height, ph = EXCLUDED.ph,
		     visual_status = EXCLUDED.visual_status, notes = EXCLUDED.notes, images = EXCLUDED.images`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare pot upsert: %w", err)
	}
	defer stmt.Close()

	for _, potID := range model.AllPotIDs {
		pot := entry.Pots[potID]
		imagesJSON, err := json.Marshal(pot.Images)
		if err != nil {
			return fmt.Errorf("failed to encode pot images: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, entry.ID, potID, pot.Weight, pot.Height, pot.PH,
			pot.VisualStatus, pot.Notes, imagesJSON); err != nil {
			return fmt.Errorf("failed to upsert pot %s: %w", potID, err)
		}
	}

	return nil
}

// DeleteByID は指定IDの記録を削除する。鉢の計測値はCASCADE削除される。
func (r *PostgresEntryRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM experiment_entries WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	return requireRowAffected(result, "entry", id)
}

// GlobalStats は参加者数・記録数・写真数・進行中実験数を集計して返す。
// 写真数はJSONBのimagesに設定済みのキー数を数える。
func (r *PostgresEntryRepo) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	stats := &GlobalStats{}

	err := r.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM profiles WHERE role = 'participant'),
			(SELECT COUNT(*) FROM experiment_entries),
			(SELECT COALESCE(SUM((SELECT COUNT(*) FROM jsonb_object_keys(images))), 0) FROM pots),
			(SELECT COUNT(DISTINCT profile_id) FROM experiment_entries)
	`).Scan(&stats.TotalUsers, &stats.TotalEntries, &stats.TotalPhotos, &stats.ActiveExperiments)
	if err != nil {
		return nil, fmt.Errorf("failed to collect global stats: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT name, score FROM profiles WHERE role = 'participant' ORDER BY score DESC LIMIT 5`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row LeaderboardRow
		if err := rows.Scan(&row.Name, &row.Score); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard row: %w", err)
		}
		stats.Leaderboard = append(stats.Leaderboard, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leaderboard: %w", err)
	}

	return stats, nil
}

// compile-time interface check
var _ EntryRepository = (*PostgresEntryRepo)(nil)
