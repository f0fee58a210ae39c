package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// --- モック ---

type mockChatRepo struct {
	messages []*model.ChatMessage
}

func (m *mockChatRepo) Create(ctx context.Context, msg *model.ChatMessage) error {
	m.messages = append(m.messages, msg)
	return nil
}
func (m *mockChatRepo) ListByProfileID(ctx context.Context, profileID string, limit int) ([]*model.ChatMessage, error) {
	var result []*model.ChatMessage
	for _, msg := range m.messages {
		if msg.ProfileID == profileID {
			result = append(result, msg)
		}
	}
	return result, nil
}

type mockCompleter struct {
	received []*model.ChatMessage
	reply    string
	err      error
}

func (m *mockCompleter) Complete(ctx context.Context, messages []*model.ChatMessage) (string, error) {
	m.received = messages
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

type passthroughSanitizer struct{}

func (passthroughSanitizer) SanitizeText(raw string) string { return strings.TrimSpace(raw) }

type nopCollector struct {
	chatFailures int
}

func (m *nopCollector) RecordKitClaimSuccess()                   {}
func (m *nopCollector) RecordKitClaimConflict()                  {}
func (m *nopCollector) RecordEntryMutation(operation string)     {}
func (m *nopCollector) RecordPhotoUpload()                       {}
func (m *nopCollector) RecordScoreRecompute()                    {}
func (m *nopCollector) RecordChatLatency(duration time.Duration) {}
func (m *nopCollector) RecordChatFailure()                       { m.chatFailures++ }
func (m *nopCollector) RecordHTTPStatus(statusCode int)          {}

func chatActor() *model.Profile {
	return &model.Profile{ID: "user-1", Role: model.RoleParticipant}
}

// --- テスト ---

// TestSend はコンテキスト注入と履歴の永続化を検証する。
func TestSend(t *testing.T) {
	repo := &mockChatRepo{}
	completer := &mockCompleter{reply: "Riega solo las macetas 1 y 3."}
	svc := NewService(completer, repo, passthroughSanitizer{}, &nopCollector{})

	reply, err := svc.Send(context.Background(), chatActor(), "¿Cuánto riego hoy?")
	if err != nil {
		t.Fatalf("Send() failed: %v", err)
	}

	if reply.Role != model.ChatRoleAssistant {
		t.Errorf("role = %s, expected assistant", reply.Role)
	}
	if reply.Content != "Riega solo las macetas 1 y 3." {
		t.Errorf("content = %q, unexpected", reply.Content)
	}

	// systemメッセージが先頭に注入されること
	if len(completer.received) < 2 {
		t.Fatalf("messages sent = %d, expected system + user", len(completer.received))
	}
	if completer.received[0].Role != model.ChatRoleSystem {
		t.Errorf("first message role = %s, expected system", completer.received[0].Role)
	}
	if !strings.Contains(completer.received[0].Content, "CULTIVADATOS") {
		t.Error("system message missing manual context")
	}
	if completer.received[len(completer.received)-1].Content != "¿Cuánto riego hoy?" {
		t.Error("last message is not the user message")
	}

	// user/assistantの2件が保存され、systemは保存されないこと
	if len(repo.messages) != 2 {
		t.Fatalf("persisted = %d, expected 2", len(repo.messages))
	}
	if repo.messages[0].Role != model.ChatRoleUser || repo.messages[1].Role != model.ChatRoleAssistant {
		t.Errorf("persisted roles = %s, %s", repo.messages[0].Role, repo.messages[1].Role)
	}
}

// TestSend_UpstreamFailure は上流エラーがCHAT_UPSTREAMに変換されることを検証する。
func TestSend_UpstreamFailure(t *testing.T) {
	repo := &mockChatRepo{}
	completer := &mockCompleter{err: errors.New("connection refused")}
	collector := &nopCollector{}
	svc := NewService(completer, repo, passthroughSanitizer{}, collector)

	_, err := svc.Send(context.Background(), chatActor(), "hola")

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) || apiErr.Code != model.ErrCodeChatUpstream {
		t.Fatalf("expected CHAT_UPSTREAM, got %v", err)
	}
	if collector.chatFailures != 1 {
		t.Errorf("chat failures = %d, expected 1", collector.chatFailures)
	}
	if len(repo.messages) != 0 {
		t.Error("failed exchange must not be persisted")
	}
}

// TestSend_EmptyMessage は空メッセージの拒否を検証する。
func TestSend_EmptyMessage(t *testing.T) {
	svc := NewService(&mockCompleter{}, &mockChatRepo{}, passthroughSanitizer{}, &nopCollector{})

	if _, err := svc.Send(context.Background(), chatActor(), "   "); err == nil {
		t.Error("expected error for empty message")
	}
}

// TestClient_Complete はOllamaクライアントの往復をhttptestで検証する。
func TestClient_Complete(t *testing.T) {
	var gotAuth string
	var gotRequest chatRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotRequest); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Message: apiMessage{Role: "assistant", Content: "respuesta"},
		})
	}))
	defer server.Close()

	client := NewClient(server.Client(), slog.Default(), ClientConfig{
		APIKey:   "secret-key",
		Model:    "gemma3:12b",
		Endpoint: server.URL,
	})

	reply, err := client.Complete(context.Background(), []*model.ChatMessage{
		{Role: model.ChatRoleSystem, Content: "contexto"},
		{Role: model.ChatRoleUser, Content: "hola"},
	})
	if err != nil {
		t.Fatalf("Complete() failed: %v", err)
	}
	if reply != "respuesta" {
		t.Errorf("reply = %q, expected respuesta", reply)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("authorization = %q, expected injected API key", gotAuth)
	}
	if gotRequest.Model != "gemma3:12b" {
		t.Errorf("model = %q, expected server-side model", gotRequest.Model)
	}
	if gotRequest.Stream {
		t.Error("stream must be disabled")
	}
	if len(gotRequest.Messages) != 2 || gotRequest.Messages[0].Role != "system" {
		t.Errorf("messages = %+v, unexpected", gotRequest.Messages)
	}
}

// TestClient_Complete_ErrorStatus は上流のエラーステータスを検証する。
func TestClient_Complete_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(server.Client(), slog.Default(), ClientConfig{
		APIKey:   "k",
		Model:    "m",
		Endpoint: server.URL,
	})

	if _, err := client.Complete(context.Background(), []*model.ChatMessage{
		{Role: model.ChatRoleUser, Content: "hola"},
	}); err == nil {
		t.Error("expected error for non-200 status")
	}
}
