package scores

import (
	"context"
	"log/slog"
	"testing"

	"github.com/phytolearning/cultivadatos/internal/model"
	"github.com/phytolearning/cultivadatos/internal/repository"
)

type mockProfileRepo struct {
	profiles []*model.Profile
	updates  map[string]int
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
	m.updates[profileID] = score
	return nil
}
func (m *mockProfileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	return m.profiles, nil
}

type mockEntryRepo struct {
	byProfile map[string][]*model.Entry
}

func (m *mockEntryRepo) FindByID(ctx context.Context, id string) (*model.Entry, error) {
	return nil, nil
}
func (m *mockEntryRepo) ListByProfileID(ctx context.Context, profileID string) ([]*model.Entry, error) {
	return m.byProfile[profileID], nil
}
func (m *mockEntryRepo) ListAll(ctx context.Context) ([]*model.Entry, error)  { return nil, nil }
func (m *mockEntryRepo) Create(ctx context.Context, entry *model.Entry) error { return nil }
func (m *mockEntryRepo) Update(ctx context.Context, entry *model.Entry) error { return nil }
func (m *mockEntryRepo) DeleteByID(ctx context.Context, id string) error      { return nil }

func (m *mockEntryRepo) GlobalStats(ctx context.Context) (*repository.GlobalStats, error) {
	return nil, nil
}

// TestRun はスコアの全件再計算を検証する。
func TestRun(t *testing.T) {
	profileRepo := &mockProfileRepo{
		profiles: []*model.Profile{
			{ID: "p-1", Score: 0},   // 記録2件 → 200に更新されるべき
			{ID: "p-2", Score: 100}, // 記録1件 → 既に正しい、更新不要
		},
		updates: map[string]int{},
	}
	entryRepo := &mockEntryRepo{
		byProfile: map[string][]*model.Entry{
			"p-1": {{ID: "e-1", ProfileID: "p-1"}, {ID: "e-2", ProfileID: "p-1"}},
			"p-2": {{ID: "e-3", ProfileID: "p-2"}},
		},
	}

	job := NewRecalcJob(profileRepo, entryRepo, slog.Default())
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if got, ok := profileRepo.updates["p-1"]; !ok || got != 200 {
		t.Errorf("p-1 score = %d (updated=%v), expected 200", got, ok)
	}
	if _, ok := profileRepo.updates["p-2"]; ok {
		t.Error("p-2 must not be updated when score is already correct")
	}
}

// TestRun_ZeroEntries は記録ゼロ件の参加者がスコア0に戻ることを検証する。
func TestRun_ZeroEntries(t *testing.T) {
	profileRepo := &mockProfileRepo{
		profiles: []*model.Profile{{ID: "p-1", Score: 500}},
		updates:  map[string]int{},
	}
	entryRepo := &mockEntryRepo{byProfile: map[string][]*model.Entry{}}

	job := NewRecalcJob(profileRepo, entryRepo, slog.Default())
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() failed: %v", err)
	}

	if got := profileRepo.updates["p-1"]; got != 0 {
		t.Errorf("p-1 score = %d, expected reset to 0", got)
	}
}
