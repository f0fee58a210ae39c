package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/phytolearning/cultivadatos/internal/model"
)

func testLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     rate.Limit(1.0 / 60.0),
		GeneralBurst:    2,
		ChatRate:        rate.Limit(1.0 / 60.0),
		ChatBurst:       1,
		CleanupInterval: time.Hour,
	}
}

func limitedRequest(profileID string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/entries", nil)
	ctx := ContextWithProfile(req.Context(), &model.Profile{ID: profileID, Role: model.RoleParticipant})
	return req.WithContext(ctx)
}

// TestGeneralMiddleware はバースト超過後の429応答を検証する。
func TestGeneralMiddleware(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// バースト2回までは通過
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, limitedRequest("p-1"))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, expected 200", i+1, rec.Code)
		}
	}

	// 3回目は429
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("p-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, expected 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	// 別の参加者は独立したリミッターを持つ
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, limitedRequest("p-2"))
	if rec.Code != http.StatusOK {
		t.Errorf("other user status = %d, expected 200", rec.Code)
	}
}

// TestChatMiddleware はチャット制限がAPI全般と独立なことを検証する。
func TestChatMiddleware(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()

	general := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	chat := rl.ChatMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// チャットのバーストは1回
	rec := httptest.NewRecorder()
	chat.ServeHTTP(rec, limitedRequest("p-1"))
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d, expected 200", rec.Code)
	}
	rec = httptest.NewRecorder()
	chat.ServeHTTP(rec, limitedRequest("p-1"))
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("chat status = %d, expected 429", rec.Code)
	}

	// チャットの枯渇はAPI全般に影響しない
	rec = httptest.NewRecorder()
	general.ServeHTTP(rec, limitedRequest("p-1"))
	if rec.Code != http.StatusOK {
		t.Errorf("general status = %d, expected 200", rec.Code)
	}
}

// TestRateLimiter_Unauthenticated はプロフィール未注入のリクエストを検証する。
func TestRateLimiter_Unauthenticated(t *testing.T) {
	rl := NewRateLimiter(testLimiterConfig())
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entries", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, expected 401", rec.Code)
	}
}

// TestRateLimiter_Cleanup は未使用リミッターの回収を検証する。
func TestRateLimiter_Cleanup(t *testing.T) {
	config := testLimiterConfig()
	config.CleanupInterval = time.Millisecond
	rl := NewRateLimiter(config)
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), limitedRequest("p-1"))

	if rl.GeneralLimiterCount() != 1 {
		t.Fatalf("limiter count = %d, expected 1", rl.GeneralLimiterCount())
	}

	// TTL（CleanupInterval×2）経過後にエントリが回収される
	deadline := time.Now().Add(time.Second)
	for rl.GeneralLimiterCount() > 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if rl.GeneralLimiterCount() != 0 {
		t.Error("stale limiter was not cleaned up")
	}
}
