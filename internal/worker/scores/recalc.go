// Package scores は参加者スコアの全件再計算ジョブを提供する。
// 記録操作時のスコア反映が失敗して表示値が古くなっても、
// 日次バッチで最終的に正しい値に収束させる。
package scores

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phytolearning/cultivadatos/internal/repository"
	"github.com/phytolearning/cultivadatos/internal/score"
)

// RecalcJob は全参加者のスコア再計算ジョブ。
// 1人の失敗で全体を止めず、失敗件数をログに残して続行する。
type RecalcJob struct {
	profileRepo repository.ProfileRepository
	entryRepo   repository.EntryRepository
	logger      *slog.Logger
}

// NewRecalcJob は新しいRecalcJobを生成する。
func NewRecalcJob(
	profileRepo repository.ProfileRepository,
	entryRepo repository.EntryRepository,
	logger *slog.Logger,
) *RecalcJob {
	return &RecalcJob{
		profileRepo: profileRepo,
		entryRepo:   entryRepo,
		logger:      logger,
	}
}

// Run は全参加者のスコアを記録から再計算して保存する。
// 冪等: 同じ記録からは常に同じスコアが算出される。
func (j *RecalcJob) Run(ctx context.Context) error {
	start := time.Now()

	profiles, err := j.profileRepo.List(ctx)
	if err != nil {
		j.logger.Error("プロフィール一覧の取得に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("プロフィール一覧の取得に失敗: %w", err)
	}

	var updated, failed int
	for _, profile := range profiles {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := j.entryRepo.ListByProfileID(ctx, profile.ID)
		if err != nil {
			j.logger.Warn("記録一覧の取得に失敗しました",
				slog.String("profile_id", profile.ID),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}

		total := score.Compute(entries)
		if total == profile.Score {
			continue
		}

		if err := j.profileRepo.UpdateScore(ctx, profile.ID, total); err != nil {
			j.logger.Warn("スコアの保存に失敗しました",
				slog.String("profile_id", profile.ID),
				slog.String("error", err.Error()),
			)
			failed++
			continue
		}
		updated++
	}

	duration := time.Since(start)
	j.logger.Info("スコア再計算ジョブが完了しました",
		slog.Int("profiles", len(profiles)),
		slog.Int("updated", updated),
		slog.Int("failed", failed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	if failed > 0 {
		return fmt.Errorf("スコア再計算で%d件の失敗がありました", failed)
	}
	return nil
}
