// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れセッションと、消費されないまま残った登録ステージング
// （デフォルト24時間超）を日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phytolearning/cultivadatos/internal/repository"
)

// CleanupJob は期限切れデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	sessionRepo repository.SessionRepository
	pendingRepo repository.PendingRegistrationRepository
	logger      *slog.Logger
	PendingTTL  time.Duration // 登録ステージングの保持期間（デフォルト: 24時間）
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(
	sessionRepo repository.SessionRepository,
	pendingRepo repository.PendingRegistrationRepository,
	logger *slog.Logger,
) *CleanupJob {
	return &CleanupJob{
		sessionRepo: sessionRepo,
		pendingRepo: pendingRepo,
		logger:      logger,
		PendingTTL:  24 * time.Hour,
	}
}

// Run は期限切れセッションと古い登録ステージングを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedSessions, err := j.sessionRepo.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	deletedPending, err := j.pendingRepo.DeleteStale(ctx, j.PendingTTL)
	if err != nil {
		j.logger.Error("登録ステージングの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("登録ステージングの削除に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("deleted_sessions", deletedSessions),
		slog.Int64("deleted_pending", deletedPending),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
