package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// mockChatService はChatServiceInterfaceのテスト用実装。
type mockChatService struct {
	sent    string
	reply   *model.ChatMessage
	sendErr error
	history []*model.ChatMessage
}

func (m *mockChatService) Send(ctx context.Context, actor *model.Profile, userMessage string) (*model.ChatMessage, error) {
	if m.sendErr != nil {
		return nil, m.sendErr
	}
	m.sent = userMessage
	return m.reply, nil
}

func (m *mockChatService) History(ctx context.Context, actor *model.Profile) ([]*model.ChatMessage, error) {
	return m.history, nil
}

// TestChatSendHandler はメッセージ中継を検証する。
func TestChatSendHandler(t *testing.T) {
	service := &mockChatService{
		reply: &model.ChatMessage{
			ID:        "msg-2",
			Role:      model.ChatRoleAssistant,
			Content:   "Riega solo las macetas 1 y 3.",
			CreatedAt: time.Now(),
		},
	}
	h := NewChatHandler(service)

	body := `{"message":"¿Cuánto riego hoy?"}`
	rec := httptest.NewRecorder()
	h.Send(rec, participantRequest(http.MethodPost, "/api/chat", body))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200: %s", rec.Code, rec.Body.String())
	}
	if service.sent != "¿Cuánto riego hoy?" {
		t.Errorf("sent = %q, unexpected", service.sent)
	}

	var resp chatMessageResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp.Role != string(model.ChatRoleAssistant) {
		t.Errorf("role = %s, expected assistant", resp.Role)
	}
}

// TestChatSendHandler_Upstream は上流障害時の502応答を検証する。
func TestChatSendHandler_Upstream(t *testing.T) {
	service := &mockChatService{sendErr: model.NewChatUpstreamError()}
	h := NewChatHandler(service)

	body := `{"message":"hola"}`
	rec := httptest.NewRecorder()
	h.Send(rec, participantRequest(http.MethodPost, "/api/chat", body))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, expected 502", rec.Code)
	}
}

// TestChatHistoryHandler は履歴応答を検証する。
func TestChatHistoryHandler(t *testing.T) {
	service := &mockChatService{
		history: []*model.ChatMessage{
			{ID: "msg-1", Role: model.ChatRoleUser, Content: "hola"},
			{ID: "msg-2", Role: model.ChatRoleAssistant, Content: "¡Hola! ¿Cómo van tus plantas?"},
		},
	}
	h := NewChatHandler(service)

	rec := httptest.NewRecorder()
	h.History(rec, participantRequest(http.MethodGet, "/api/chat/history", ""))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, expected 200", rec.Code)
	}

	var resp []chatMessageResponse
	json.NewDecoder(rec.Body).Decode(&resp)
	if len(resp) != 2 {
		t.Fatalf("history = %d, expected 2", len(resp))
	}
	if resp[0].Role != "user" || resp[1].Role != "assistant" {
		t.Errorf("roles = %s, %s, unexpected", resp[0].Role, resp[1].Role)
	}
}
