package chat

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/phytolearning/cultivadatos/internal/metrics"
	"github.com/phytolearning/cultivadatos/internal/model"
	"github.com/phytolearning/cultivadatos/internal/repository"
	"github.com/phytolearning/cultivadatos/internal/security"
)

// historyLimit はアシスタントに渡す直近の履歴件数。
// コンテキスト長の暴走を防ぐため打ち切る。
const historyLimit = 20

// Completer はアシスタントAPIの呼び出しインターフェース。
type Completer interface {
	Complete(ctx context.Context, messages []*model.ChatMessage) (string, error)
}

// Service はアシスタントプロキシのサービス層。
// マニュアルコンテキストの注入と履歴の永続化を行う。
type Service struct {
	completer Completer
	chatRepo  repository.ChatMessageRepository
	sanitizer security.ContentSanitizerService
	collector metrics.MetricsCollector
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	completer Completer,
	chatRepo repository.ChatMessageRepository,
	sanitizer security.ContentSanitizerService,
	collector metrics.MetricsCollector,
) *Service {
	return &Service{
		completer: completer,
		chatRepo:  chatRepo,
		sanitizer: sanitizer,
		collector: collector,
	}
}

// Send は参加者のメッセージをアシスタントに転送し、応答を返す。
// マニュアルコンテキストをsystemメッセージとして先頭に注入する。
// systemメッセージは履歴には保存しない。
func (s *Service) Send(ctx context.Context, actor *model.Profile, userMessage string) (*model.ChatMessage, error) {
	content := s.sanitizer.SanitizeText(userMessage)
	if content == "" {
		return nil, fmt.Errorf("メッセージが空です")
	}

	history, err := s.chatRepo.ListByProfileID(ctx, actor.ID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("履歴の取得に失敗しました: %w", err)
	}

	now := time.Now()
	userMsg := &model.ChatMessage{
		ID:        uuid.New().String(),
		ProfileID: actor.ID,
		Role:      model.ChatRoleUser,
		Content:   content,
		CreatedAt: now,
	}

	messages := make([]*model.ChatMessage, 0, len(history)+2)
	messages = append(messages, &model.ChatMessage{Role: model.ChatRoleSystem, Content: manualContext})
	messages = append(messages, history...)
	messages = append(messages, userMsg)

	start := time.Now()
	reply, err := s.completer.Complete(ctx, messages)
	s.collector.RecordChatLatency(time.Since(start))
	if err != nil {
		s.collector.RecordChatFailure()
		slog.Warn("assistant request failed",
			slog.String("profile_id", actor.ID),
			slog.String("error", err.Error()),
		)
		return nil, model.NewChatUpstreamError()
	}

	assistantMsg := &model.ChatMessage{
		ID:        uuid.New().String(),
		ProfileID: actor.ID,
		Role:      model.ChatRoleAssistant,
		Content:   reply,
		CreatedAt: time.Now(),
	}

	// 永続化の失敗で応答を捨てない。履歴が欠けるだけに留める。
	if err := s.chatRepo.Create(ctx, userMsg); err != nil {
		slog.Warn("failed to persist user chat message", slog.String("error", err.Error()))
	}
	if err := s.chatRepo.Create(ctx, assistantMsg); err != nil {
		slog.Warn("failed to persist assistant chat message", slog.String("error", err.Error()))
	}

	return assistantMsg, nil
}

// History は自分のチャット履歴を古い順で返す。
func (s *Service) History(ctx context.Context, actor *model.Profile) ([]*model.ChatMessage, error) {
	history, err := s.chatRepo.ListByProfileID(ctx, actor.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("履歴の取得に失敗しました: %w", err)
	}
	return history, nil
}
