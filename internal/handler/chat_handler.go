package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// ChatServiceInterface はチャットハンドラーが必要とするサービスインターフェース。
type ChatServiceInterface interface {
	Send(ctx context.Context, actor *model.Profile, userMessage string) (*model.ChatMessage, error)
	History(ctx context.Context, actor *model.Profile) ([]*model.ChatMessage, error)
}

// ChatHandler はAIアシスタントのHTTPハンドラー。
// APIキーはサーバー側で注入されるため、クライアントには一切渡らない。
type ChatHandler struct {
	service ChatServiceInterface
}

// NewChatHandler はChatHandlerを生成する。
func NewChatHandler(service ChatServiceInterface) *ChatHandler {
	return &ChatHandler{service: service}
}

// chatSendRequest はチャット送信リクエストのボディ。
type chatSendRequest struct {
	Message string `json:"message"`
}

// chatMessageResponse はチャットメッセージのAPIレスポンス。
type chatMessageResponse struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Send は参加者のメッセージをアシスタントに中継し、応答を返す。
// POST /api/chat
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	var req chatSendRequest
	if !decodeBody(w, r, &req) {
		return
	}

	reply, err := h.service.Send(r.Context(), actor, req.Message)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toChatMessageResponse(reply))
}

// History は参加者の対話履歴を返す。
// GET /api/chat/history
// サーバーが注入するsystemメッセージは履歴に含まれない。
func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	actor := actorFromContext(w, r)
	if actor == nil {
		return
	}

	messages, err := h.service.History(r.Context(), actor)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	responses := make([]chatMessageResponse, 0, len(messages))
	for _, msg := range messages {
		responses = append(responses, toChatMessageResponse(msg))
	}
	writeJSON(w, http.StatusOK, responses)
}

// toChatMessageResponse はmodel.ChatMessageからAPIレスポンスに変換する。
func toChatMessageResponse(msg *model.ChatMessage) chatMessageResponse {
	return chatMessageResponse{
		ID:        msg.ID,
		Role:      string(msg.Role),
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}
}
