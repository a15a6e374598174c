package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrEmptyResponse はAPIが本文を返さなかったことを示します。
var ErrEmptyResponse = errors.New("chat completion returned no content")

// OpenAIClient はchat completion REST APIへのリクエストを管理します。
// deploymentNameが設定されている場合はAzure OpenAIのデプロイURL、
// それ以外はOpenAI互換の /v1/chat/completions を使います。
type OpenAIClient struct {
	endpoint       string
	apiKey         string
	model          string
	apiVersion     string
	deploymentName string
	httpClient     *http.Client
}

// ClientConfig クライアント設定
type ClientConfig struct {
	Endpoint       string
	APIKey         string
	Model          string
	APIVersion     string
	DeploymentName string
	Timeout        time.Duration
}

// NewOpenAIClient は新しいクライアントを作成します。
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIClient{
		endpoint:       strings.TrimSuffix(cfg.Endpoint, "/"),
		apiKey:         cfg.APIKey,
		model:          cfg.Model,
		apiVersion:     cfg.APIVersion,
		deploymentName: cfg.DeploymentName,
		httpClient:     &http.Client{Timeout: timeout},
	}
}

// WithAPIKey はAPIキーだけを差し替えたコピーを返します（HTTPクライアントは共有）。
func (c *OpenAIClient) WithAPIKey(apiKey string) *OpenAIClient {
	clone := *c
	clone.apiKey = apiKey
	return &clone
}

// --- データ構造定義 ---

// ChatMessage チャットメッセージ
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatCompletionRequest チャット補完リクエスト
type ChatCompletionRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
}

// ChatCompletionResponse チャット補完レスポンス
type ChatCompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// APIError はAPIが2xx以外のステータスを返したことを示します。
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API エラー (status: %d): %s", e.StatusCode, e.Message)
}

// IsCredentialError はAPIキーが拒否された（401/403）エラーかどうかを返します。
func IsCredentialError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// ErrorResponse エラーレスポンス
type ErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// --- メソッド定義 ---

func (c *OpenAIClient) completionURL() string {
	if c.deploymentName != "" {
		return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
			c.endpoint, c.deploymentName, c.apiVersion)
	}
	return c.endpoint + "/v1/chat/completions"
}

// ChatCompletion チャット補完を実行
func (c *OpenAIClient) ChatCompletion(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float32) (*ChatCompletionResponse, error) {
	request := ChatCompletionRequest{
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	}
	if c.deploymentName == "" {
		request.Model = c.model
	}

	var response ChatCompletionResponse
	if err := c.doRequest(ctx, c.completionURL(), request, &response); err != nil {
		return nil, fmt.Errorf("chat completion API 呼び出しに失敗: %w", err)
	}
	return &response, nil
}

// CompleteText は最初の選択肢の本文を返します。本文が無ければErrEmptyResponseです。
func (c *OpenAIClient) CompleteText(ctx context.Context, messages []ChatMessage, maxTokens int, temperature float32) (string, error) {
	response, err := c.ChatCompletion(ctx, messages, maxTokens, temperature)
	if err != nil {
		return "", err
	}
	if len(response.Choices) == 0 || strings.TrimSpace(response.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return response.Choices[0].Message.Content, nil
}

// doRequest はHTTPリクエストの実行と基本的なレスポンス処理を行う共通メソッドです。
func (c *OpenAIClient) doRequest(ctx context.Context, url string, requestData interface{}, responseData interface{}) error {
	if c.apiKey == "" {
		return fmt.Errorf("API key が設定されていません")
	}

	requestBody, err := json.Marshal(requestData)
	if err != nil {
		return fmt.Errorf("リクエストのJSON化に失敗: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestBody))
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.deploymentName != "" {
		req.Header.Set("api-key", c.apiKey)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの実行に失敗: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスの読み取りに失敗: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Message: string(body)}
		var errorResp ErrorResponse
		if err := json.Unmarshal(body, &errorResp); err == nil && errorResp.Error.Message != "" {
			apiErr.Message = errorResp.Error.Message
		}
		return apiErr
	}

	if err := json.Unmarshal(body, responseData); err != nil {
		return fmt.Errorf("レスポンスのJSON解析に失敗: %w", err)
	}
	return nil
}
