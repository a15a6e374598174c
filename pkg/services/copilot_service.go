package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"oee-copilot/pkg/logger"
	"oee-copilot/pkg/metrics"
	"oee-copilot/pkg/models"
)

// パイプラインのエラー
var (
	// ErrInvalidInput はmessageまたはsessionIdが空であることを示します。I/Oの前に返します。
	ErrInvalidInput = errors.New("message and sessionId are required")
	// ErrPersistUserMessage はユーザー発話を保存できなかったことを示します。応答は生成しません。
	ErrPersistUserMessage = errors.New("failed to persist user message")
)

const (
	// DefaultHistoryRowLimit 集計に使う行数の既定値
	DefaultHistoryRowLimit = 5000
	// recentTurnsLimit 会話コンテキストとして読む直近のメッセージ数
	recentTurnsLimit = 6
	// followUpAssistantTurns フォローアップ判定に使うアシスタント応答の数
	followUpAssistantTurns = 2
)

// LogStore は設備ステータスログの読み書きです。
type LogStore interface {
	InsertLogs(ctx context.Context, entries []models.StatusLogEntry) (int, error)
	QueryRecentLogs(ctx context.Context, limit int, desc bool) ([]models.StatusLogEntry, error)
}

// ConversationStore は会話履歴の追記と読み出しです。
type ConversationStore interface {
	AppendMessage(ctx context.Context, sessionID string, role models.Role, content string) (models.ConversationTurn, error)
	QueryRecentMessages(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error)
}

// Store はパイプラインが依存するストアです。
type Store interface {
	LogStore
	ConversationStore
}

// SpecialCommander はヘルプなどの特別なコマンドを判定します。
type SpecialCommander interface {
	CheckSpecialCommand(message string) (bool, string)
}

// CopilotConfig パイプラインの設定
type CopilotConfig struct {
	DefaultAPIKey   string
	Policy          CredentialPolicy
	HistoryRowLimit int
	RankingTopN     int
}

// CopilotService 1メッセージ分の処理（保存→取得→集計→分類→応答→チャート→保存）を行います。
type CopilotService struct {
	store      Store
	classifier TopicClassifier
	renderer   *TemplateRenderer
	responder  Responder
	commands   SpecialCommander
	cfg        CopilotConfig
	log        *logger.Logger
	metrics    *metrics.Metrics
}

// NewCopilotService 新しいCopilotServiceを作成
// responder, commands, m はnil可。
func NewCopilotService(store Store, responder Responder, commands SpecialCommander, cfg CopilotConfig, log *logger.Logger, m *metrics.Metrics) *CopilotService {
	if cfg.HistoryRowLimit <= 0 {
		cfg.HistoryRowLimit = DefaultHistoryRowLimit
	}
	if log == nil {
		log = logger.Nop()
	}
	return &CopilotService{
		store:      store,
		classifier: NewKeywordClassifier(),
		renderer:   NewTemplateRenderer(cfg.RankingTopN),
		responder:  responder,
		commands:   commands,
		cfg:        cfg,
		log:        log,
		metrics:    m,
	}
}

// WithClassifier は分類戦略を差し替えます。
func (s *CopilotService) WithClassifier(c TopicClassifier) *CopilotService {
	s.classifier = c
	return s
}

// Respond は1件のユーザーメッセージを処理して応答を返します。
// エラーを返すのは入力不正とユーザー発話の保存失敗のみで、それ以外は定型文にフォールバックします。
func (s *CopilotService) Respond(ctx context.Context, req models.ChatRequest) (*models.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	sessionID := strings.TrimSpace(req.SessionID)
	if message == "" || sessionID == "" {
		return nil, ErrInvalidInput
	}

	userTurn, err := s.store.AppendMessage(ctx, sessionID, models.RoleUser, message)
	if err != nil {
		s.log.Errorw("failed to persist user message", "sessionId", sessionID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrPersistUserMessage, err)
	}

	rows := s.fetchRows(ctx)
	history := s.fetchHistory(ctx, sessionID, userTurn.ID)

	// ErrNoData は report.Summary.NoData でも判別できる
	report, _ := BuildReport(rows)
	topic := s.classifier.Classify(message, recentAssistantText(history, followUpAssistantTurns))

	resp := &models.ChatResponse{Topic: topic, Mode: models.ModeTemplate, SessionID: sessionID}
	if ok, help := s.checkSpecialCommand(message); ok {
		resp.Response = help
	} else {
		resp.Response, resp.Mode = s.compose(ctx, message, req.APIKeyOverride, topic, report, rows, history)
		resp.Chart = BuildChart(topic, message, report)
	}

	if _, err := s.store.AppendMessage(ctx, sessionID, models.RoleAssistant, resp.Response); err != nil {
		s.log.Errorw("failed to persist assistant message", "sessionId", sessionID, "error", err)
	}

	s.metrics.RecordCopilotResponse(string(resp.Topic), string(resp.Mode))
	s.log.Infow("copilot response", "sessionId", sessionID, "topic", resp.Topic, "mode", resp.Mode, "rows", len(rows), "chart", resp.Chart != nil)
	return resp, nil
}

// Summary はダッシュボード向けに集計結果だけを返します。データが無くてもエラーにはしません。
func (s *CopilotService) Summary(ctx context.Context) (models.OEEReport, error) {
	rows, err := s.store.QueryRecentLogs(ctx, s.cfg.HistoryRowLimit, true)
	if err != nil {
		s.metrics.RecordStorageReadFailure()
		return models.OEEReport{}, fmt.Errorf("ステータスログの取得に失敗: %w", err)
	}
	report, _ := BuildReport(rows)
	return report, nil
}

// UsesGenerative は与えられたキーで生成モードを試みるかどうかを返します。
// apiKeyOverride が空でなければ既定のキーより優先します。
func (s *CopilotService) UsesGenerative(apiKeyOverride string) (string, bool) {
	if s.responder == nil {
		return "", false
	}
	key := strings.TrimSpace(apiKeyOverride)
	if key == "" {
		key = s.cfg.DefaultAPIKey
	}
	return key, s.cfg.Policy.Valid(key)
}

func (s *CopilotService) compose(ctx context.Context, message, apiKeyOverride string, topic models.Topic, report models.OEEReport,
	rows []models.StatusLogEntry, history []models.ConversationTurn) (string, models.ResponseMode) {
	if report.Summary.NoData {
		return s.renderer.Render(topic, report), models.ModeTemplate
	}

	key, ok := s.UsesGenerative(apiKeyOverride)
	if !ok {
		return s.renderer.Render(topic, report), models.ModeTemplate
	}

	text, err := s.responder.Respond(ctx, GenerativeRequest{
		Question: message,
		APIKey:   key,
		Report:   report,
		Rows:     rows,
		History:  history,
	})
	if err != nil {
		s.log.Warnw("generative response failed, falling back to template", "topic", topic, "error", err)
		s.metrics.RecordGenerativeFailure()
		return s.renderer.Render(topic, report), models.ModeTemplate
	}
	return text, models.ModeGenerative
}

func (s *CopilotService) fetchRows(ctx context.Context) []models.StatusLogEntry {
	rows, err := s.store.QueryRecentLogs(ctx, s.cfg.HistoryRowLimit, true)
	if err != nil {
		s.log.Warnw("failed to fetch status logs, treating as no data", "error", err)
		s.metrics.RecordStorageReadFailure()
		return nil
	}
	return rows
}

// fetchHistory は今回のユーザー発話を除いた直近の会話を時系列順で返します。
func (s *CopilotService) fetchHistory(ctx context.Context, sessionID, currentTurnID string) []models.ConversationTurn {
	turns, err := s.store.QueryRecentMessages(ctx, sessionID, recentTurnsLimit+1)
	if err != nil {
		s.log.Warnw("failed to fetch conversation history", "sessionId", sessionID, "error", err)
		return nil
	}
	history := make([]models.ConversationTurn, 0, len(turns))
	for _, t := range turns {
		if t.ID == currentTurnID {
			continue
		}
		history = append(history, t)
	}
	if len(history) > recentTurnsLimit {
		history = history[len(history)-recentTurnsLimit:]
	}
	return history
}

func (s *CopilotService) checkSpecialCommand(message string) (bool, string) {
	if s.commands == nil {
		return false, ""
	}
	ok, text := s.commands.CheckSpecialCommand(message)
	return ok && text != "", text
}

// recentAssistantText は直近n件のアシスタント応答を古い順に連結します。
func recentAssistantText(history []models.ConversationTurn, n int) string {
	picked := make([]string, 0, n)
	for i := len(history) - 1; i >= 0 && len(picked) < n; i-- {
		if history[i].Role == models.RoleAssistant {
			picked = append(picked, history[i].Content)
		}
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return strings.Join(picked, "\n")
}
