// Package profile は参加者プロフィールと全体統計のドメインロジックを提供する。
package profile

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/phytolearning/cultivadatos/internal/model"
	"github.com/phytolearning/cultivadatos/internal/repository"
	"github.com/phytolearning/cultivadatos/internal/security"
	"github.com/phytolearning/cultivadatos/internal/storage"
)

// KitClaimer はキット紐付け機能のインターフェース。
// 登録完了フロー（キット未設定アカウントへの後付け）から利用する。
type KitClaimer interface {
	Claim(ctx context.Context, profileID, code string) error
}

// UpdateRequest はプロフィール更新の入力。
type UpdateRequest struct {
	Name      string
	StartDate time.Time
}

// Service はプロフィールのサービス層。
type Service struct {
	profileRepo repository.ProfileRepository
	entryRepo   repository.EntryRepository
	kits        KitClaimer
	sanitizer   security.ContentSanitizerService
	storage     storage.ObjectStorage
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	profileRepo repository.ProfileRepository,
	entryRepo repository.EntryRepository,
	kits KitClaimer,
	sanitizer security.ContentSanitizerService,
	store storage.ObjectStorage,
) *Service {
	return &Service{
		profileRepo: profileRepo,
		entryRepo:   entryRepo,
		kits:        kits,
		sanitizer:   sanitizer,
		storage:     store,
	}
}

// Update は自分のプロフィール（表示名・開始日）を更新する。
func (s *Service) Update(ctx context.Context, actor *model.Profile, req UpdateRequest) (*model.Profile, error) {
	if name := s.sanitizer.SanitizeText(req.Name); name != "" {
		actor.Name = name
	}
	if !req.StartDate.IsZero() {
		actor.StartDate = req.StartDate
	}
	actor.UpdatedAt = time.Now()

	if err := s.profileRepo.Update(ctx, actor); err != nil {
		return nil, fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return actor, nil
}

// UploadAvatar はアバター画像を保存し、プロフィールに反映する。
func (s *Service) UploadAvatar(ctx context.Context, actor *model.Profile, filename, contentType string, body io.Reader) (string, error) {
	key := storage.ObjectKey("avatars/"+actor.ID, filename)
	url, err := s.storage.Upload(ctx, key, contentType, body)
	if err != nil {
		return "", fmt.Errorf("アバターのアップロードに失敗しました: %w", err)
	}

	actor.AvatarURL = url
	actor.UpdatedAt = time.Now()
	if err := s.profileRepo.Update(ctx, actor); err != nil {
		return "", fmt.Errorf("プロフィールの更新に失敗しました: %w", err)
	}
	return url, nil
}

// CompleteRegistration はキット未設定のアカウントにキットを紐付ける。
// 紐付けの競合判定はキットサービスに委譲する。
func (s *Service) CompleteRegistration(ctx context.Context, actor *model.Profile, kitCode string) error {
	return s.kits.Claim(ctx, actor.ID, kitCode)
}

// ListAll は全参加者のプロフィールを返す。コーディネーター以上のみ実行できる。
func (s *Service) ListAll(ctx context.Context, actor *model.Profile) ([]*model.Profile, error) {
	if !actor.Role.CanViewAllEntries() {
		return nil, model.NewForbiddenError()
	}

	profiles, err := s.profileRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("プロフィール一覧の取得に失敗しました: %w", err)
	}
	return profiles, nil
}

// GetByID は指定参加者のプロフィールを返す。コーディネーター以上のみ実行できる。
func (s *Service) GetByID(ctx context.Context, actor *model.Profile, profileID string) (*model.Profile, error) {
	if !actor.Role.CanViewAllEntries() {
		return nil, model.NewForbiddenError()
	}

	profile, err := s.profileRepo.FindByID(ctx, profileID)
	if err != nil {
		return nil, fmt.Errorf("プロフィールの取得に失敗しました: %w", err)
	}
	if profile == nil {
		return nil, model.NewProfileNotFoundError()
	}
	return profile, nil
}

// GlobalStats はランディングページ向けの全体統計を返す。認証不要。
func (s *Service) GlobalStats(ctx context.Context) (*repository.GlobalStats, error) {
	stats, err := s.entryRepo.GlobalStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("全体統計の取得に失敗しました: %w", err)
	}
	return stats, nil
}
