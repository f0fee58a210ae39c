// Package entry は実験記録のドメインロジックを提供する。
package entry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phytolearning/cultivadatos/internal/metrics"
	"github.com/phytolearning/cultivadatos/internal/model"
	"github.com/phytolearning/cultivadatos/internal/repository"
	"github.com/phytolearning/cultivadatos/internal/score"
	"github.com/phytolearning/cultivadatos/internal/security"
	"github.com/phytolearning/cultivadatos/internal/storage"
)

// Service は実験記録のサービス層。
// CRUD・所有権チェック・スコア再計算・写真アップロードを提供する。
type Service struct {
	entryRepo   repository.EntryRepository
	profileRepo repository.ProfileRepository
	sanitizer   security.ContentSanitizerService
	storage     storage.ObjectStorage
	collector   metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	entryRepo repository.EntryRepository,
	profileRepo repository.ProfileRepository,
	sanitizer security.ContentSanitizerService,
	store storage.ObjectStorage,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		entryRepo:   entryRepo,
		profileRepo: profileRepo,
		sanitizer:   sanitizer,
		storage:     store,
		collector:   collector,
	}
}

// validatePotSet は記録が4つの処理区を過不足なく持つことを検証する。
func validatePotSet(entry *model.Entry) error {
	if len(entry.Pots) != len(model.AllPotIDs) {
		return model.NewInvalidPotSetError()
	}
	for _, potID := range model.AllPotIDs {
		if _, ok := entry.Pots[potID]; !ok {
			return model.NewInvalidPotSetError()
		}
	}
	return nil
}

// sanitizeNotes は自由記述フィールドをサニタイズする。
func (s *Service) sanitizeNotes(entry *model.Entry) {
	entry.GeneralNotes = s.sanitizer.SanitizeText(entry.GeneralNotes)
	for potID, pot := range entry.Pots {
		pot.Notes = s.sanitizer.SanitizeText(pot.Notes)
		entry.Pots[potID] = pot
	}
}

// List は自分の記録一覧を日付降順で返す。
func (s *Service) List(ctx context.Context, actor *model.Profile) ([]*model.Entry, error) {
	entries, err := s.entryRepo.ListByProfileID(ctx, actor.ID)
	if err != nil {
		return nil, fmt.Errorf("記録一覧の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// Get は記録を1件取得する。他人の記録はコーディネーター以上のみ閲覧できる。
func (s *Service) Get(ctx context.Context, actor *model.Profile, entryID string) (*model.Entry, error) {
	entry, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(entryID)
	}
	if entry.ProfileID != actor.ID && !actor.Role.CanViewAllEntries() {
		// 存在の有無を漏らさない
		return nil, model.NewEntryNotFoundError(entryID)
	}
	return entry, nil
}

// Create は記録を作成し、スコアを再計算する。
// 所有者は常に操作者自身になる（他人名義の記録は作成できない）。
// 記録は1日1件で、同一日の2件目はリポジトリの一意制約で拒否される。
func (s *Service) Create(ctx context.Context, actor *model.Profile, entry *model.Entry) (*model.Entry, error) {
	if err := validatePotSet(entry); err != nil {
		return nil, err
	}
	s.sanitizeNotes(entry)

	now := time.Now()
	entry.ID = uuid.New().String()
	entry.ProfileID = actor.ID
	entry.CreatedAt = now
	entry.UpdatedAt = now

	if err := s.entryRepo.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("記録の作成に失敗しました: %w", err)
	}

	s.collector.RecordEntryMutation("create")
	s.recomputeScore(ctx, actor.ID)
	return entry, nil
}

// Update は自分の記録を更新し、スコアを再計算する。
func (s *Service) Update(ctx context.Context, actor *model.Profile, entry *model.Entry) (*model.Entry, error) {
	existing, err := s.entryRepo.FindByID(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	if existing == nil || existing.ProfileID != actor.ID {
		return nil, model.NewEntryNotFoundError(entry.ID)
	}

	if err := validatePotSet(entry); err != nil {
		return nil, err
	}
	s.sanitizeNotes(entry)

	entry.ProfileID = existing.ProfileID
	entry.CreatedAt = existing.CreatedAt
	entry.UpdatedAt = time.Now()

	if err := s.entryRepo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("記録の更新に失敗しました: %w", err)
	}

	s.collector.RecordEntryMutation("update")
	s.recomputeScore(ctx, actor.ID)
	return entry, nil
}

// Delete は自分の記録を削除し、スコアを再計算する。
func (s *Service) Delete(ctx context.Context, actor *model.Profile, entryID string) error {
	existing, err := s.entryRepo.FindByID(ctx, entryID)
	if err != nil {
		return fmt.Errorf("記録の取得に失敗しました: %w", err)
	}
	if existing == nil || existing.ProfileID != actor.ID {
		return model.NewEntryNotFoundError(entryID)
	}

	if err := s.entryRepo.DeleteByID(ctx, entryID); err != nil {
		return fmt.Errorf("記録の削除に失敗しました: %w", err)
	}

	s.collector.RecordEntryMutation("delete")
	s.recomputeScore(ctx, actor.ID)
	return nil
}

// ListAll は全参加者の記録を返す。コーディネーター以上のみ実行できる。
func (s *Service) ListAll(ctx context.Context, actor *model.Profile) ([]*model.Entry, error) {
	if !actor.Role.CanViewAllEntries() {
		return nil, model.NewForbiddenError()
	}
	entries, err := s.entryRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("記録一覧の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// ListForProfile は指定参加者の記録を返す。コーディネーター以上のみ実行できる。
func (s *Service) ListForProfile(ctx context.Context, actor *model.Profile, profileID string) ([]*model.Entry, error) {
	if !actor.Role.CanViewAllEntries() {
		return nil, model.NewForbiddenError()
	}
	entries, err := s.entryRepo.ListByProfileID(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("記録一覧の取得に失敗しました: %w", err)
	}
	return entries, nil
}

// UploadPhoto は写真をオブジェクトストレージに保存し、公開URLを返す。
func (s *Service) UploadPhoto(ctx context.Context, actor *model.Profile, filename, contentType string, body io.Reader) (string, error) {
	key := storage.ObjectKey("photos/"+actor.ID, filename)
	url, err := s.storage.Upload(ctx, key, contentType, body)
	if err != nil {
		return "", fmt.Errorf("写真のアップロードに失敗しました: %w", err)
	}

	s.collector.RecordPhotoUpload()
	return url, nil
}

// recomputeScore は記録の変化後にスコアを再計算して永続化する。
// 失敗しても記録操作自体は成功扱いとし、表示値が古くなるだけに留める。
// ワーカーの全件再計算が最終的に追いつく。
func (s *Service) recomputeScore(ctx context.Context, profileID string) {
	entries, err := s.entryRepo.ListByProfileID(ctx, profileID)
	if err != nil {
		slog.Warn("score recompute failed to list entries",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		return
	}

	total := score.Compute(entries)
	if err := s.profileRepo.UpdateScore(ctx, profileID, total); err != nil {
		slog.Warn("score recompute failed to persist",
			slog.String("profile_id", profileID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.collector.RecordScoreRecompute()
}
