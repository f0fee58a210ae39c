package entry

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/phytolearning/cultivadatos/internal/model"
	"github.com/phytolearning/cultivadatos/internal/repository"
)

// --- モック ---

type mockEntryRepo struct {
	entries map[string]*model.Entry
}

func newMockEntryRepo() *mockEntryRepo {
	return &mockEntryRepo{entries: map[string]*model.Entry{}}
}

func (m *mockEntryRepo) FindByID(ctx context.Context, id string) (*model.Entry, error) {
	return m.entries[id], nil
}
func (m *mockEntryRepo) ListByProfileID(ctx context.Context, profileID string) ([]*model.Entry, error) {
	var result []*model.Entry
	for _, e := range m.entries {
		if e.ProfileID == profileID {
			result = append(result, e)
		}
	}
	return result, nil
}
func (m *mockEntryRepo) ListAll(ctx context.Context) ([]*model.Entry, error) {
	var result []*model.Entry
	for _, e := range m.entries {
		result = append(result, e)
	}
	return result, nil
}
func (m *mockEntryRepo) Create(ctx context.Context, entry *model.Entry) error {
	// 一意制約 (profile_id, date) を模倣する
	for _, e := range m.entries {
		if e.ProfileID == entry.ProfileID && e.Date.Format("2006-01-02") == entry.Date.Format("2006-01-02") {
			return model.NewDuplicateEntryDateError()
		}
	}
	m.entries[entry.ID] = entry
	return nil
}
func (m *mockEntryRepo) Update(ctx context.Context, entry *model.Entry) error {
	m.entries[entry.ID] = entry
	return nil
}
func (m *mockEntryRepo) DeleteByID(ctx context.Context, id string) error {
	delete(m.entries, id)
	return nil
}
func (m *mockEntryRepo) GlobalStats(ctx context.Context) (*repository.GlobalStats, error) {
	return nil, nil
}

type mockProfileRepo struct {
	scores map[string]int
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{scores: map[string]int{}}
}

func (m *mockProfileRepo) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return nil, nil
}
func (m *mockProfileRepo) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	return nil, nil
}
func (m *mockProfileRepo) CreateWithCredential(ctx context.Context, profile *model.Profile, credential *model.Credential) error {
	return nil
}
func (m *mockProfileRepo) Update(ctx context.Context, profile *model.Profile) error { return nil }
func (m *mockProfileRepo) UpdateKitCode(ctx context.Context, profileID, kitCode string) error {
	return nil
}
func (m *mockProfileRepo) UpdateScore(ctx context.Context, profileID string, score int) error {
	m.scores[profileID] = score
	return nil
}
func (m *mockProfileRepo) List(ctx context.Context) ([]*model.Profile, error) { return nil, nil }

type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizeText(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "<script>", ""))
}

type mockStorage struct {
	uploads []string
}

func (m *mockStorage) Upload(ctx context.Context, key, contentType string, body io.Reader) (string, error) {
	m.uploads = append(m.uploads, key)
	return "https://cdn.example/" + key, nil
}

type mockCollector struct {
	mutations   []string
	photos      int
	scoreRecomp int
}

func (m *mockCollector) RecordKitClaimSuccess()  {}
func (m *mockCollector) RecordKitClaimConflict() {}
func (m *mockCollector) RecordEntryMutation(operation string) {
	m.mutations = append(m.mutations, operation)
}
func (m *mockCollector) RecordPhotoUpload()                       { m.photos++ }
func (m *mockCollector) RecordScoreRecompute()                    { m.scoreRecomp++ }
func (m *mockCollector) RecordChatLatency(duration time.Duration) {}
func (m *mockCollector) RecordChatFailure()                       {}
func (m *mockCollector) RecordHTTPStatus(statusCode int)          {}

func fullPots() map[model.PotID]model.PotMeasurement {
	pots := map[model.PotID]model.PotMeasurement{}
	for _, potID := range model.AllPotIDs {
		pots[potID] = model.PotMeasurement{
			PotID:        potID,
			Weight:       120.5,
			Height:       14.2,
			PH:           6.8,
			VisualStatus: model.PlantStatusGrowing,
		}
	}
	return pots
}

func testService() (*Service, *mockEntryRepo, *mockProfileRepo, *mockCollector) {
	entryRepo := newMockEntryRepo()
	profileRepo := newMockProfileRepo()
	collector := &mockCollector{}
	svc := NewService(entryRepo, profileRepo, passthroughSanitizer{}, &mockStorage{}, collector)
	return svc, entryRepo, profileRepo, collector
}

func actor() *model.Profile {
	return &model.Profile{ID: "user-1", Role: model.RoleParticipant, KitCode: "CVPL-001"}
}

// --- テスト ---

// TestCreate は記録作成とスコア反映を検証する。
func TestCreate(t *testing.T) {
	svc, entryRepo, profileRepo, collector := testService()

	created, err := svc.Create(context.Background(), actor(), &model.Entry{
		Date:         time.Now(),
		DayNumber:    1,
		GeneralNotes: "  primera medición <script>x()  ",
		Pots:         fullPots(),
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if created.ID == "" {
		t.Error("expected generated ID")
	}
	if created.ProfileID != "user-1" {
		t.Errorf("profile = %s, expected user-1", created.ProfileID)
	}
	if strings.Contains(created.GeneralNotes, "<script>") {
		t.Errorf("notes not sanitized: %q", created.GeneralNotes)
	}
	if len(entryRepo.entries) != 1 {
		t.Errorf("entries = %d, expected 1", len(entryRepo.entries))
	}
	// 1件・写真なし → 100点
	if profileRepo.scores["user-1"] != 100 {
		t.Errorf("score = %d, expected 100", profileRepo.scores["user-1"])
	}
	if len(collector.mutations) != 1 || collector.mutations[0] != "create" {
		t.Errorf("mutations = %v, expected [create]", collector.mutations)
	}
	if collector.scoreRecomp != 1 {
		t.Errorf("score recomputes = %d, expected 1", collector.scoreRecomp)
	}
}

// TestCreate_InvalidPotSet は4処理区に満たない記録の拒否を検証する。
func TestCreate_InvalidPotSet(t *testing.T) {
	svc, entryRepo, _, _ := testService()

	pots := fullPots()
	delete(pots, model.PotS)

	_, err := svc.Create(context.Background(), actor(), &model.Entry{Pots: pots})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidPotSet {
		t.Fatalf("expected INVALID_POT_SET, got %v", err)
	}
	if len(entryRepo.entries) != 0 {
		t.Error("entry must not be created")
	}

	t.Run("不正な処理区IDも拒否される", func(t *testing.T) {
		pots := fullPots()
		delete(pots, model.PotS)
		pots["5"] = model.PotMeasurement{PotID: "5"}

		_, err := svc.Create(context.Background(), actor(), &model.Entry{Pots: pots})
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeInvalidPotSet {
			t.Fatalf("expected INVALID_POT_SET, got %v", err)
		}
	})
}

// TestCreate_DuplicateDay は同一日の2件目の記録の拒否を検証する。
// 記録は1参加者につき1日1件で、重複してもスコアは加算されない。
func TestCreate_DuplicateDay(t *testing.T) {
	svc, entryRepo, profileRepo, collector := testService()
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	if _, err := svc.Create(context.Background(), actor(), &model.Entry{
		Date: date,
		Pots: fullPots(),
	}); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	_, err := svc.Create(context.Background(), actor(), &model.Entry{
		Date: date,
		Pots: fullPots(),
	})

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeDuplicateEntryDate {
		t.Fatalf("expected DUPLICATE_ENTRY_DATE, got %v", err)
	}
	if len(entryRepo.entries) != 1 {
		t.Errorf("entries = %d, expected 1", len(entryRepo.entries))
	}
	// スコアは1件分（100点）のまま
	if profileRepo.scores["user-1"] != 100 {
		t.Errorf("score = %d, expected 100", profileRepo.scores["user-1"])
	}
	if len(collector.mutations) != 1 {
		t.Errorf("mutations = %v, expected only the first create", collector.mutations)
	}
}

// TestUpdate は所有権チェックと更新を検証する。
func TestUpdate(t *testing.T) {
	svc, entryRepo, _, _ := testService()

	created, err := svc.Create(context.Background(), actor(), &model.Entry{
		DayNumber: 1,
		Pots:      fullPots(),
	})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	t.Run("所有者は更新できる", func(t *testing.T) {
		updated, err := svc.Update(context.Background(), actor(), &model.Entry{
			ID:           created.ID,
			DayNumber:    1,
			GeneralNotes: "hojas amarillas",
			Pots:         fullPots(),
		})
		if err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		if updated.ProfileID != "user-1" {
			t.Errorf("profile = %s, expected preserved owner", updated.ProfileID)
		}
		if !updated.CreatedAt.Equal(created.CreatedAt) {
			t.Error("CreatedAt must be preserved on update")
		}
	})

	t.Run("他人の記録は更新できない", func(t *testing.T) {
		other := &model.Profile{ID: "user-2", Role: model.RoleParticipant}
		_, err := svc.Update(context.Background(), other, &model.Entry{
			ID:   created.ID,
			Pots: fullPots(),
		})
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEntryNotFound {
			t.Fatalf("expected ENTRY_NOT_FOUND, got %v", err)
		}
		if entryRepo.entries[created.ID].ProfileID != "user-1" {
			t.Error("entry owner must be unchanged")
		}
	})
}

// TestDelete は削除後のスコア再計算を検証する。
func TestDelete(t *testing.T) {
	svc, entryRepo, profileRepo, _ := testService()

	created, err := svc.Create(context.Background(), actor(), &model.Entry{Pots: fullPots()})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	if err := svc.Delete(context.Background(), actor(), created.ID); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if len(entryRepo.entries) != 0 {
		t.Error("entry not deleted")
	}
	// 記録ゼロ件 → スコア0
	if profileRepo.scores["user-1"] != 0 {
		t.Errorf("score = %d, expected 0 after deletion", profileRepo.scores["user-1"])
	}

	t.Run("存在しない記録はENTRY_NOT_FOUND", func(t *testing.T) {
		err := svc.Delete(context.Background(), actor(), "missing")
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEntryNotFound {
			t.Fatalf("expected ENTRY_NOT_FOUND, got %v", err)
		}
	})
}

// TestGet は閲覧権限の判定を検証する。
func TestGet(t *testing.T) {
	svc, _, _, _ := testService()

	created, err := svc.Create(context.Background(), actor(), &model.Entry{Pots: fullPots()})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	t.Run("所有者は取得できる", func(t *testing.T) {
		got, err := svc.Get(context.Background(), actor(), created.ID)
		if err != nil || got == nil {
			t.Fatalf("Get() failed: %v", err)
		}
	})

	t.Run("他の参加者には存在も見せない", func(t *testing.T) {
		other := &model.Profile{ID: "user-2", Role: model.RoleParticipant}
		_, err := svc.Get(context.Background(), other, created.ID)
		var apiErr *model.APIError
		if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeEntryNotFound {
			t.Fatalf("expected ENTRY_NOT_FOUND, got %v", err)
		}
	})

	t.Run("コーディネーターは閲覧できる", func(t *testing.T) {
		admin := &model.Profile{ID: "admin-1", Role: model.RoleCoordinator}
		got, err := svc.Get(context.Background(), admin, created.ID)
		if err != nil || got == nil {
			t.Fatalf("Get() by coordinator failed: %v", err)
		}
	})
}

// TestListAll は管理者向け一覧の権限チェックを検証する。
func TestListAll(t *testing.T) {
	svc, _, _, _ := testService()

	if _, err := svc.ListAll(context.Background(), actor()); err == nil {
		t.Error("expected FORBIDDEN for participant")
	}

	admin := &model.Profile{ID: "admin-1", Role: model.RoleCoordinator}
	if _, err := svc.ListAll(context.Background(), admin); err != nil {
		t.Errorf("ListAll() by coordinator failed: %v", err)
	}
}

// TestUploadPhoto は写真アップロードのURL発行を検証する。
func TestUploadPhoto(t *testing.T) {
	entryRepo := newMockEntryRepo()
	store := &mockStorage{}
	collector := &mockCollector{}
	svc := NewService(entryRepo, newMockProfileRepo(), passthroughSanitizer{}, store, collector)

	url, err := svc.UploadPhoto(context.Background(), actor(), "maceta1.jpg", "image/jpeg", strings.NewReader("fake-image"))
	if err != nil {
		t.Fatalf("UploadPhoto() failed: %v", err)
	}
	if !strings.HasPrefix(url, "https://cdn.example/photos/user-1/") {
		t.Errorf("url = %s, expected per-user photo prefix", url)
	}
	if collector.photos != 1 {
		t.Errorf("photo uploads = %d, expected 1", collector.photos)
	}
}

// TestEntryRoundTrip は計測値が文字列変換を経ても保持されることを検証する。
func TestEntryRoundTrip(t *testing.T) {
	svc, entryRepo, _, _ := testService()

	pots := fullPots()
	p := pots[model.PotRF]
	p.Weight = 123.45
	p.Height = 9.1
	p.PH = 6.75
	p.Images = model.PotImages{Front: "https://cdn.example/f.jpg"}
	pots[model.PotRF] = p

	created, err := svc.Create(context.Background(), actor(), &model.Entry{Pots: pots})
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	stored := entryRepo.entries[created.ID]
	got := stored.Pots[model.PotRF]
	if got.Weight != 123.45 || got.Height != 9.1 || got.PH != 6.75 {
		t.Errorf("measurements changed: %+v", got)
	}
	if got.Images.Front != "https://cdn.example/f.jpg" {
		t.Errorf("image URL changed: %s", got.Images.Front)
	}
}
