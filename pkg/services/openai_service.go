package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"oee-copilot/pkg/models"
	"oee-copilot/pkg/openai"
	"oee-copilot/pkg/resilience"
)

// 生成APIの呼び出しパラメータ
const (
	defaultMaxTokens   = 800
	defaultTemperature = 0.3
	historyTurnsLimit  = 6
)

// ErrGenerativeDisabled は生成APIが構成されていないことを示します。
var ErrGenerativeDisabled = errors.New("generative responder is not configured")

// GenerativeRequest 生成APIに渡す1回分の入力
type GenerativeRequest struct {
	Question string
	APIKey   string
	Report   models.OEEReport
	Rows     []models.StatusLogEntry // 新しい順
	History  []models.ConversationTurn
}

// Responder は生成APIで応答テキストを作ります。
type Responder interface {
	Respond(ctx context.Context, req GenerativeRequest) (string, error)
}

// PromptProvider はシステムプロンプトを提供します。
type PromptProvider interface {
	BuildSystemPrompt() string
}

// GenerativeBreakerConfig は生成API用の回路遮断器設定を返します。
// キーの拒否（401/403）はリクエスト側の問題なので失敗として数えません。
// 1リクエストの不正なapiKeyOverrideで他のリクエストが定型文に落ちないようにします。
func GenerativeBreakerConfig(name string) resilience.CircuitBreakerConfig {
	cfg := resilience.DefaultCircuitBreakerConfig(name)
	cfg.IsSuccessful = func(err error) bool {
		return err == nil || openai.IsCredentialError(err)
	}
	return cfg
}

// OpenAIService chat completion APIを使うResponder
type OpenAIService struct {
	client      *openai.OpenAIClient
	breaker     *resilience.CircuitBreaker
	prompt      PromptProvider
	timeout     time.Duration
	contextRows int
}

// NewOpenAIService 新しいOpenAIServiceを作成
// breakerはnil可。timeoutが0以下ならクライアント側のタイムアウトのみ。
func NewOpenAIService(client *openai.OpenAIClient, breaker *resilience.CircuitBreaker, prompt PromptProvider, timeout time.Duration, contextRows int) *OpenAIService {
	return &OpenAIService{
		client:      client,
		breaker:     breaker,
		prompt:      prompt,
		timeout:     timeout,
		contextRows: ClampContextRows(contextRows),
	}
}

// Respond は集計結果と直近の行をプロンプトに埋め込み、生成APIの応答を返します。
// [CHART] ブロックは取り除きます。リトライはしません。
func (s *OpenAIService) Respond(ctx context.Context, req GenerativeRequest) (string, error) {
	if s == nil || s.client == nil {
		return "", ErrGenerativeDisabled
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	client := s.client
	if req.APIKey != "" {
		client = client.WithAPIKey(req.APIKey)
	}
	messages := s.buildMessages(req)

	call := func() (string, error) {
		return client.CompleteText(ctx, messages, defaultMaxTokens, defaultTemperature)
	}

	var (
		text string
		err  error
	)
	if s.breaker != nil {
		text, err = s.breaker.Execute(call)
	} else {
		text, err = call()
	}
	if err != nil {
		return "", fmt.Errorf("生成APIの呼び出しに失敗: %w", err)
	}

	text = StripChartMarkup(text)
	if text == "" {
		return "", openai.ErrEmptyResponse
	}
	return text, nil
}

func (s *OpenAIService) buildMessages(req GenerativeRequest) []openai.ChatMessage {
	system := ""
	if s.prompt != nil {
		system = s.prompt.BuildSystemPrompt()
	}
	messages := []openai.ChatMessage{{Role: "system", Content: system}}

	history := req.History
	if len(history) > historyTurnsLimit {
		history = history[len(history)-historyTurnsLimit:]
	}
	for _, turn := range history {
		messages = append(messages, openai.ChatMessage{Role: string(turn.Role), Content: turn.Content})
	}

	user := fmt.Sprintf("Data context:\n%s\nQuestion: %s", BuildDataContext(req.Report, req.Rows, s.contextRows), req.Question)
	return append(messages, openai.ChatMessage{Role: "user", Content: user})
}
