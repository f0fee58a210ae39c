package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/phytolearning/cultivadatos/internal/middleware"
	"github.com/phytolearning/cultivadatos/internal/model"
	"github.com/phytolearning/cultivadatos/internal/profile"
	"github.com/phytolearning/cultivadatos/internal/repository"
)

// mockProfileService はProfileServiceInterfaceのテスト用実装。
type mockProfileService struct {
	updated     *profile.UpdateRequest
	avatarURL   string
	claimedCode string
	claimErr    error
	profiles    []*model.Profile
	globalStats *repository.GlobalStats
}

func (m *mockProfileService) Update(ctx context.Context, actor *model.Profile, req profile.UpdateRequest) (*model.Profile, error) {
	m.updated = &req
	updated := *actor
	if req.Name != "" {
		updated.Name = req.Name
	}
	return &updated, nil
}

func (m *mockProfileService) UploadAvatar(ctx context.Context, actor *model.Profile, filename, contentType string, body io.Reader) (string, error) {
	return m.avatarURL, nil
}

func (m *mockProfileService) CompleteRegistration(ctx context.Context, actor *model.Profile, kitCode string) error {
	if m.claimErr != nil {
		return m.claimErr
	}
	m.claimedCode = kitCode
	return nil
}

func (m *mockProfileService) ListAll(ctx context.Context, actor *model.Profile) ([]*model.Profile, error) {
	if !actor.Role.CanViewAllEntries() {
		return nil, model.NewForbiddenError()
	}
	return m.profiles, nil
}

func (m *mockProfileService) GetByID(ctx context.Context, actor *model.Profile, profileID string) (*model.Profile, error) {
	for _, p := range m.profiles {
		if p.ID == profileID {
			return p, nil
		}
	}
	return nil, model.NewProfileNotFoundError()
}

func (m *mockProfileService) GlobalStats(ctx context.Context) (*repository.GlobalStats, error) {
	return m.globalStats, nil
}

// TestUpdateProfileHandler はプロフィール更新を検証する。
func TestUpdateProfileHandler(t *testing.T) {
	service := &mockProfileService{}
	h := NewProfileHandler(service)

	body := `{"name":"Ana María","start_date":"2026-03-02"}`
	rec := httptest.NewRecorder()
	h.Update(rec, participantRequest(http.MethodPut, "/api/profile", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200: %s", rec.Code, rec.Body.String())
	}
	if service.updated == nil || service.updated.Name != "Ana María" {
		t.Errorf("update request = %+v, unexpected", service.updated)
	}
	if service.updated.StartDate.Format("2006-01-02") != "2026-03-02" {
		t.Errorf("start date = %v, unexpected", service.updated.StartDate)
	}
}

// TestCompleteRegistrationHandler はキット紐付けを検証する。
func TestCompleteRegistrationHandler(t *testing.T) {
	service := &mockProfileService{}
	h := NewProfileHandler(service)

	body := `{"kit_code":"cvpl-003"}`
	rec := httptest.NewRecorder()
	h.CompleteRegistration(rec, participantRequest(http.MethodPost, "/api/profile/kit", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200: %s", rec.Code, rec.Body.String())
	}
	if service.claimedCode != "cvpl-003" {
		t.Errorf("claimed code = %s, expected raw value passed through", service.claimedCode)
	}

	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["kit_code"] != "CVPL-003" {
		t.Errorf("response kit code = %s, expected normalized CVPL-003", resp["kit_code"])
	}
}

// TestCompleteRegistrationHandler_Claimed は使用済みキットの409応答を検証する。
func TestCompleteRegistrationHandler_Claimed(t *testing.T) {
	service := &mockProfileService{claimErr: model.NewKitAlreadyClaimedError()}
	h := NewProfileHandler(service)

	body := `{"kit_code":"CVPL-001"}`
	rec := httptest.NewRecorder()
	h.CompleteRegistration(rec, participantRequest(http.MethodPost, "/api/profile/kit", body))

	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, expected 409", rec.Code)
	}
}

// TestUploadAvatarHandler はmultipartアップロードを検証する。
func TestUploadAvatarHandler(t *testing.T) {
	service := &mockProfileService{avatarURL: "https://bucket.s3.sa-east-1.amazonaws.com/avatars/p-1/x.png"}
	h := NewProfileHandler(service)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("avatar", "foto.png")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte("fake-image-bytes"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	ctx := middleware.ContextWithProfile(req.Context(), &model.Profile{ID: "p-1", Role: model.RoleParticipant})
	rec := httptest.NewRecorder()

	h.UploadAvatar(rec, req.WithContext(ctx))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, expected 201: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["avatar_url"] != service.avatarURL {
		t.Errorf("avatar_url = %s, unexpected", resp["avatar_url"])
	}
}

// TestUploadAvatarHandler_MissingFile はファイル欠落時の400応答を検証する。
func TestUploadAvatarHandler_MissingFile(t *testing.T) {
	h := NewProfileHandler(&mockProfileService{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	mw.WriteField("nombre", "sin archivo")
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	ctx := middleware.ContextWithProfile(req.Context(), &model.Profile{ID: "p-1", Role: model.RoleParticipant})
	rec := httptest.NewRecorder()

	h.UploadAvatar(rec, req.WithContext(ctx))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, expected 400", rec.Code)
	}
}

// TestGlobalStatsHandler は公開統計の応答を検証する。
func TestGlobalStatsHandler(t *testing.T) {
	service := &mockProfileService{
		globalStats: &repository.GlobalStats{
			TotalUsers:        10,
			TotalEntries:      120,
			TotalPhotos:       300,
			ActiveExperiments: 8,
			Leaderboard: []repository.LeaderboardRow{
				{Name: "Ana", Score: 3800},
				{Name: "Luis", Score: 1600},
			},
		},
	}
	h := NewProfileHandler(service)

	// 認証不要のエンドポイント
	rec := httptest.NewRecorder()
	h.GlobalStats(rec, httptest.NewRequest(http.MethodGet, "/api/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["total_users"] != float64(10) {
		t.Errorf("total_users = %v, expected 10", resp["total_users"])
	}
	leaderboard, ok := resp["leaderboard"].([]any)
	if !ok || len(leaderboard) != 2 {
		t.Errorf("leaderboard = %v, expected 2 rows", resp["leaderboard"])
	}
}
