// Package chat はAIアシスタントへのプロキシ機能を提供する。
// APIキーとモデル名はサーバー側で注入し、クライアントには渡さない。
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/phytolearning/cultivadatos/internal/model"
)

// defaultEndpoint はOllamaクラウドのチャットAPIエンドポイント。
const defaultEndpoint = "https://ollama.com/api/chat"

// ClientConfig はOllamaクライアントの設定。
type ClientConfig struct {
	APIKey string
	Model  string
	// Endpoint はテスト用に差し替え可能。空の場合は本番エンドポイント。
	Endpoint string
}

// Client はOllamaクラウドチャットAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	config     ClientConfig
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, config ClientConfig) *Client {
	if config.Endpoint == "" {
		config.Endpoint = defaultEndpoint
	}
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		config:     config,
	}
}

// apiMessage はチャットAPIのメッセージ表現。
type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatRequest はチャットAPIのリクエストボディ。
type chatRequest struct {
	Model    string       `json:"model"`
	Messages []apiMessage `json:"messages"`
	Stream   bool         `json:"stream"`
}

// chatResponse はチャットAPIのレスポンスボディ。
type chatResponse struct {
	Message apiMessage `json:"message"`
}

// Complete はメッセージ列を送信し、アシスタントの応答本文を返す。
// モデル名とAPIキーはサーバー設定のものを常に使用する。
func (c *Client) Complete(ctx context.Context, messages []*model.ChatMessage) (string, error) {
	apiMessages := make([]apiMessage, len(messages))
	for i, msg := range messages {
		apiMessages[i] = apiMessage{Role: string(msg.Role), Content: msg.Content}
	}

	payload, err := json.Marshal(chatRequest{
		Model:    c.config.Model,
		Messages: apiMessages,
		Stream:   false,
	})
	if err != nil {
		return "", fmt.Errorf("リクエストのエンコードに失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("アシスタントAPIの呼び出しに失敗しました",
			slog.String("error", err.Error()),
		)
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("アシスタントAPIがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
		)
		return "", fmt.Errorf("アシスタントAPIがステータス %d を返しました", resp.StatusCode)
	}

	var result chatResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if result.Message.Content == "" {
		return "", fmt.Errorf("アシスタントAPIのレスポンスが空です")
	}

	return result.Message.Content, nil
}
