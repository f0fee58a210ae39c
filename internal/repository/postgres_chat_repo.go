package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// PostgresChatMessageRepo はPostgreSQLを使用したチャット履歴リポジトリ。
type PostgresChatMessageRepo struct {
	db *sql.DB
}

// NewPostgresChatMessageRepo はPostgresChatMessageRepoを生成する。
func NewPostgresChatMessageRepo(db *sql.DB) *PostgresChatMessageRepo {
	return &PostgresChatMessageRepo{db: db}
}

// Create はメッセージを保存する。
func (r *PostgresChatMessageRepo) Create(ctx context.Context, msg *model.ChatMessage) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_messages (id, profile_id, role, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.ProfileID, msg.Role, msg.Content, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert chat message: %w", err)
	}
	return nil
}

// ListByProfileID は指定参加者の履歴を古い順で返す。
// limitは直近N件に制限する（0以下の場合は全件）。
func (r *PostgresChatMessageRepo) ListByProfileID(ctx context.Context, profileID string, limit int) ([]*model.ChatMessage, error) {
	query := `SELECT id, profile_id, role, content, created_at FROM chat_messages
	          WHERE profile_id = $1 ORDER BY created_at ASC`
	args := []any{profileID}
	if limit > 0 {
		// 直近N件を古い順で返すため、降順で切ってから並べ直す
		query = `SELECT id, profile_id, role, content, created_at FROM (
		           SELECT id, profile_id, role, content, created_at FROM chat_messages
		           WHERE profile_id = $1 ORDER BY created_at DESC LIMIT $2
		         ) recent ORDER BY created_at ASC`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list chat messages: %w", err)
	}
	defer rows.Close()

	var msgs []*model.ChatMessage
	for rows.Next() {
		msg := &model.ChatMessage{}
		if err := rows.Scan(&msg.ID, &msg.ProfileID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat message: %w", err)
		}
		msgs = append(msgs, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat messages: %w", err)
	}
	return msgs, nil
}

// compile-time interface check
var _ ChatMessageRepository = (*PostgresChatMessageRepo)(nil)
