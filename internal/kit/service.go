// Package kit はキットコードの照合・紐付け・管理のドメインロジックを提供する。
package kit

import (
	"context"
	"fmt"
	"time"

	qrcode "github.com/skip2/go-qrcode"

	"github.com/phytolearning/cultivadatos/internal/metrics"
	"github.com/phytolearning/cultivadatos/internal/model"
	"github.com/phytolearning/cultivadatos/internal/repository"
)

// Availability はキットコード照合の結果。
type Availability struct {
	Code      string
	Available bool
}

// Stats はキットの利用状況サマリー。管理画面に表示する。
type Stats struct {
	Total     int
	Claimed   int
	Available int
}

// UploadRequest は一括登録する1キット分の入力。
type UploadRequest struct {
	Code    string
	BatchID string
	Variety string
}

// Service はキット管理のサービス層。
// 照合・紐付け・一括登録・管理操作のビジネスロジックを提供する。
type Service struct {
	kitRepo     repository.KitRepository
	profileRepo repository.ProfileRepository
	collector   metrics.MetricsCollector
	baseURL     string
}

// NewService はServiceの新しいインスタンスを生成する。
// baseURLはQRラベルに埋め込む登録ページのURL構築に使用する。
func NewService(
	kitRepo repository.KitRepository,
	profileRepo repository.ProfileRepository,
	collector metrics.MetricsCollector,
	baseURL string,
) *Service {
	return &Service{
		kitRepo:     kitRepo,
		profileRepo: profileRepo,
		collector:   collector,
		baseURL:     baseURL,
	}
}

// normalizeAndValidate は入力コードを正規化し、配布形式を検証する。
func normalizeAndValidate(rawCode string) (string, error) {
	code := model.NormalizeKitCode(rawCode)
	if !model.IsValidKitCodeFormat(code) {
		return "", model.NewInvalidKitCodeError(code)
	}
	return code, nil
}

// CheckAvailability はキットコードが利用可能かを照合する。
// 形式検証はデータベースアクセスの前に行う。
func (s *Service) CheckAvailability(ctx context.Context, rawCode string) (*Availability, error) {
	code, err := normalizeAndValidate(rawCode)
	if err != nil {
		return nil, err
	}

	kit, err := s.kitRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("キットの照合に失敗しました: %w", err)
	}
	if kit == nil {
		return nil, model.NewKitNotFoundError(code)
	}

	return &Availability{
		Code:      code,
		Available: kit.Status == model.KitStatusAvailable,
	}, nil
}

// Claim はキットコードを参加者アカウントに紐付ける。
//
// 紐付けは「availableの場合のみclaimedに更新する」条件付き更新1文で行い、
// 同一コードへの同時リクエストでも勝者は必ず1人になる。条件付き更新が
// 空振りした場合は所有者を確認し、既に自分が紐付け済みであれば成功として
// 扱う（リトライや再ログイン後の再送で二重エラーにしない）。
func (s *Service) Claim(ctx context.Context, profileID, rawCode string) error {
	code, err := normalizeAndValidate(rawCode)
	if err != nil {
		return err
	}

	claimed, err := s.kitRepo.ClaimIfAvailable(ctx, code, profileID, time.Now())
	if err != nil {
		return fmt.Errorf("キットの紐付けに失敗しました: %w", err)
	}

	if !claimed {
		kit, err := s.kitRepo.FindByCode(ctx, code)
		if err != nil {
			return fmt.Errorf("キットの照合に失敗しました: %w", err)
		}
		if kit == nil {
			return model.NewKitNotFoundError(code)
		}
		if kit.ClaimedBy != profileID {
			s.collector.RecordKitClaimConflict()
			return model.NewKitAlreadyClaimedError()
		}
		// 自分が紐付け済み。プロフィール側の反映だけやり直す。
	}

	if err := s.profileRepo.UpdateKitCode(ctx, profileID, code); err != nil {
		return fmt.Errorf("プロフィールへのキット反映に失敗しました: %w", err)
	}

	if claimed {
		s.collector.RecordKitClaimSuccess()
	}
	return nil
}

// Upload はキットコードを一括登録する。コーディネーター以上のみ実行できる。
// 1件でもコードが重複していれば全件ロールバックされる。
func (s *Service) Upload(ctx context.Context, actor *model.Profile, requests []UploadRequest) (int, error) {
	if !actor.Role.CanManageKits() {
		return 0, model.NewForbiddenError()
	}

	kits := make([]*model.Kit, 0, len(requests))
	for i, req := range requests {
		code, err := normalizeAndValidate(req.Code)
		if err != nil {
			return 0, err
		}
		kits = append(kits, &model.Kit{
			Code:      code,
			Status:    model.KitStatusAvailable,
			BatchID:   req.BatchID,
			KitNumber: fmt.Sprintf("%03d", i+1),
			Variety:   req.Variety,
			CreatedAt: time.Now(),
		})
	}

	inserted, err := s.kitRepo.BulkInsert(ctx, kits)
	if err != nil {
		if apiErr, ok := err.(*model.APIError); ok {
			return 0, apiErr
		}
		return 0, fmt.Errorf("キットの一括登録に失敗しました: %w", err)
	}
	return inserted, nil
}

// List は全キットを返す。コーディネーター以上のみ実行できる。
func (s *Service) List(ctx context.Context, actor *model.Profile) ([]*model.Kit, error) {
	if !actor.Role.CanManageKits() {
		return nil, model.NewForbiddenError()
	}

	kits, err := s.kitRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("キット一覧の取得に失敗しました: %w", err)
	}
	return kits, nil
}

// Update はキットのメタデータ（バッチ・品種）を更新する。
func (s *Service) Update(ctx context.Context, actor *model.Profile, kit *model.Kit) error {
	if !actor.Role.CanManageKits() {
		return model.NewForbiddenError()
	}

	if err := s.kitRepo.Update(ctx, kit); err != nil {
		return fmt.Errorf("キットの更新に失敗しました: %w", err)
	}
	return nil
}

// Delete はキットを削除する。
func (s *Service) Delete(ctx context.Context, actor *model.Profile, id int64) error {
	if !actor.Role.CanManageKits() {
		return model.NewForbiddenError()
	}

	if err := s.kitRepo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("キットの削除に失敗しました: %w", err)
	}
	return nil
}

// Reset はキットをavailableに戻す。誤紐付けの復旧用。
func (s *Service) Reset(ctx context.Context, actor *model.Profile, id int64) error {
	if !actor.Role.CanManageKits() {
		return model.NewForbiddenError()
	}

	if err := s.kitRepo.Reset(ctx, id); err != nil {
		return fmt.Errorf("キットのリセットに失敗しました: %w", err)
	}
	return nil
}

// GetStats はキットの利用状況サマリーを返す。
func (s *Service) GetStats(ctx context.Context, actor *model.Profile) (*Stats, error) {
	if !actor.Role.CanManageKits() {
		return nil, model.NewForbiddenError()
	}

	total, claimed, err := s.kitRepo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("キット統計の取得に失敗しました: %w", err)
	}
	return &Stats{
		Total:     total,
		Claimed:   claimed,
		Available: total - claimed,
	}, nil
}

// QRLabelPNG は配布ラベル用のQRコードPNGを生成する。
// QRには登録ページへのディープリンク（コード入力済み）を埋め込む。
func (s *Service) QRLabelPNG(ctx context.Context, actor *model.Profile, rawCode string) ([]byte, error) {
	if !actor.Role.CanManageKits() {
		return nil, model.NewForbiddenError()
	}

	code, err := normalizeAndValidate(rawCode)
	if err != nil {
		return nil, err
	}

	kit, err := s.kitRepo.FindByCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("キットの照合に失敗しました: %w", err)
	}
	if kit == nil {
		return nil, model.NewKitNotFoundError(code)
	}

	link := fmt.Sprintf("%s/register?kit=%s", s.baseURL, code)
	png, err := qrcode.Encode(link, qrcode.Medium, 256)
	if err != nil {
		return nil, fmt.Errorf("QRコードの生成に失敗しました: %w", err)
	}
	return png, nil
}
