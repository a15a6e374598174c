package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"oee-copilot/pkg/logger"
	"oee-copilot/pkg/metrics"
	"oee-copilot/pkg/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validKey = "sk-test-0123456789abcdefghij"

// fakeStore はメモリ上のStore実装です。
type fakeStore struct {
	mu          sync.Mutex
	rows        []models.StatusLogEntry
	turns       []models.ConversationTurn
	appendErr   map[models.Role]error
	queryErr    error
	historyErr  error
	lastLimit   int
	lastDesc    bool
	insertCalls int
}

func (f *fakeStore) InsertLogs(_ context.Context, entries []models.StatusLogEntry) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.insertCalls++
	f.rows = append([]models.StatusLogEntry(nil), entries...)
	return len(entries), nil
}

func (f *fakeStore) QueryRecentLogs(_ context.Context, limit int, desc bool) ([]models.StatusLogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastLimit, f.lastDesc = limit, desc
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.rows, nil
}

func (f *fakeStore) AppendMessage(_ context.Context, sessionID string, role models.Role, content string) (models.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.appendErr[role]; err != nil {
		return models.ConversationTurn{}, err
	}
	turn := models.ConversationTurn{
		ID:        fmt.Sprintf("turn-%d", len(f.turns)+1),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	f.turns = append(f.turns, turn)
	return turn, nil
}

func (f *fakeStore) QueryRecentMessages(_ context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	var out []models.ConversationTurn
	for _, t := range f.turns {
		if t.SessionID == sessionID {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// fakeResponder は呼び出し回数を数えるResponderです。
type fakeResponder struct {
	text  string
	err   error
	calls int
	last  GenerativeRequest
}

func (f *fakeResponder) Respond(_ context.Context, req GenerativeRequest) (string, error) {
	f.calls++
	f.last = req
	return f.text, f.err
}

type fakeCommands map[string]string

func (f fakeCommands) CheckSpecialCommand(message string) (bool, string) {
	text, ok := f[message]
	return ok, text
}

func twoMachineRows() []models.StatusLogEntry {
	return []models.StatusLogEntry{
		row("Machine A", "running", 90, ""),
		row("Machine A", "down", 10, "Jam"),
		row("Machine B", "running", 60, ""),
		row("Machine B", "down", 40, "Belt"),
	}
}

func newTestCopilot(store *fakeStore, responder Responder, m *metrics.Metrics) *CopilotService {
	cfg := CopilotConfig{
		DefaultAPIKey:   "",
		Policy:          CredentialPolicy{Prefix: "sk-", MinLength: 20},
		HistoryRowLimit: 5000,
		RankingTopN:     5,
	}
	return NewCopilotService(store, responder, nil, cfg, logger.Nop(), m)
}

func TestCopilot_InvalidInput(t *testing.T) {
	store := &fakeStore{}
	svc := newTestCopilot(store, nil, nil)

	_, err := svc.Respond(context.Background(), models.ChatRequest{Message: "  ", SessionID: "s1"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.Respond(context.Background(), models.ChatRequest{Message: "hi", SessionID: ""})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, store.turns)
}

func TestCopilot_UserMessageWriteFailureAborts(t *testing.T) {
	store := &fakeStore{rows: twoMachineRows(), appendErr: map[models.Role]error{models.RoleUser: errors.New("disk full")}}
	responder := &fakeResponder{text: "x"}
	svc := newTestCopilot(store, responder, nil)

	resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "status?", SessionID: "s1", APIKeyOverride: validKey})
	assert.ErrorIs(t, err, ErrPersistUserMessage)
	assert.Nil(t, resp)
	assert.Zero(t, responder.calls)
	assert.Zero(t, store.lastLimit, "logs must not be read")
}

func TestCopilot_NoData(t *testing.T) {
	store := &fakeStore{}
	responder := &fakeResponder{text: "should not be used"}
	svc := newTestCopilot(store, responder, nil)

	resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "show me the availability chart", SessionID: "s1", APIKeyOverride: validKey})
	require.NoError(t, err)
	assert.Equal(t, NoDataResponse, resp.Response)
	assert.Nil(t, resp.Chart)
	assert.Equal(t, models.ModeTemplate, resp.Mode)
	assert.Zero(t, responder.calls)
	assert.Equal(t, 5000, store.lastLimit)
	assert.True(t, store.lastDesc)
}

func TestCopilot_StorageReadFailureIsNoData(t *testing.T) {
	m := metrics.New("test")
	store := &fakeStore{queryErr: errors.New("timeout")}
	svc := newTestCopilot(store, nil, m)

	resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "availability?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, NoDataResponse, resp.Response)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StorageReadFailures))
}

func TestCopilot_GeneralPriorityEquipment(t *testing.T) {
	store := &fakeStore{rows: twoMachineRows()}
	svc := newTestCopilot(store, nil, nil)

	resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "Hello, how is the plant?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, models.TopicGeneral, resp.Topic)
	assert.Contains(t, resp.Response, "Priority equipment: Machine B")
	assert.Nil(t, resp.Chart)

	require.Len(t, store.turns, 2)
	assert.Equal(t, models.RoleUser, store.turns[0].Role)
	assert.Equal(t, models.RoleAssistant, store.turns[1].Role)
	assert.Equal(t, resp.Response, store.turns[1].Content)
}

func TestCopilot_InvalidCredentialSkipsNetwork(t *testing.T) {
	store := &fakeStore{rows: twoMachineRows()}
	responder := &fakeResponder{text: "generated"}
	svc := newTestCopilot(store, responder, nil)

	for _, key := range []string{"", "bad", "pk-0123456789abcdefghijk"} {
		resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "availability?", SessionID: "s1", APIKeyOverride: key})
		require.NoError(t, err)
		assert.Equal(t, models.ModeTemplate, resp.Mode)
	}
	assert.Zero(t, responder.calls)
}

func TestCopilot_GenerativeFailureFallsBack(t *testing.T) {
	m := metrics.New("test")
	store := &fakeStore{rows: twoMachineRows()}
	responder := &fakeResponder{err: errors.New("dial tcp: connection refused")}
	svc := newTestCopilot(store, responder, m)

	resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "What about downtime?", SessionID: "s1", APIKeyOverride: validKey})
	require.NoError(t, err)
	assert.Equal(t, 1, responder.calls)
	assert.Equal(t, models.ModeTemplate, resp.Mode)
	assert.NotEmpty(t, resp.Response)
	assert.NotEqual(t, NoDataResponse, resp.Response)
	assert.Empty(t, resp.Error)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GenerativeFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CopilotResponses.WithLabelValues("downtime", "template")))

	require.Len(t, store.turns, 2)
}

func TestCopilot_GenerativeSuccess(t *testing.T) {
	store := &fakeStore{rows: twoMachineRows()}
	store.turns = []models.ConversationTurn{
		{ID: "old-1", SessionID: "s1", Role: models.RoleUser, Content: "hi"},
		{ID: "old-2", SessionID: "s1", Role: models.RoleAssistant, Content: "hello"},
	}
	responder := &fakeResponder{text: "Machine B needs attention."}
	svc := NewCopilotService(store, responder, nil, CopilotConfig{
		DefaultAPIKey: validKey,
		Policy:        CredentialPolicy{Prefix: "sk-", MinLength: 20},
	}, logger.Nop(), nil)

	resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "Which machine is worst?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, models.ModeGenerative, resp.Mode)
	assert.Equal(t, "Machine B needs attention.", resp.Response)
	assert.Equal(t, validKey, responder.last.APIKey)
	assert.Len(t, responder.last.Rows, 4)
	// 今回のユーザー発話は履歴に含めない
	require.Len(t, responder.last.History, 2)
	assert.Equal(t, "old-1", responder.last.History[0].ID)
}

func TestCopilot_OverrideKeyTakesPrecedence(t *testing.T) {
	svc := NewCopilotService(&fakeStore{}, &fakeResponder{}, nil, CopilotConfig{
		DefaultAPIKey: "sk-default-0123456789abcdef",
		Policy:        CredentialPolicy{Prefix: "sk-", MinLength: 20},
	}, nil, nil)

	key, ok := svc.UsesGenerative(validKey)
	assert.True(t, ok)
	assert.Equal(t, validKey, key)

	key, ok = svc.UsesGenerative("")
	assert.True(t, ok)
	assert.Equal(t, "sk-default-0123456789abcdef", key)

	_, ok = NewCopilotService(&fakeStore{}, nil, nil, CopilotConfig{DefaultAPIKey: validKey}, nil, nil).UsesGenerative("")
	assert.False(t, ok, "no responder means template only")
}

func TestCopilot_FollowUpUsesPreviousAnswer(t *testing.T) {
	store := &fakeStore{rows: twoMachineRows()}
	svc := newTestCopilot(store, nil, nil)

	first, err := svc.Respond(context.Background(), models.ChatRequest{Message: "What is the top failure reason?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, models.TopicPareto, first.Topic)

	second, err := svc.Respond(context.Background(), models.ChatRequest{Message: "why?", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, models.TopicPareto, second.Topic)

	other, err := svc.Respond(context.Background(), models.ChatRequest{Message: "why?", SessionID: "s2"})
	require.NoError(t, err)
	assert.Equal(t, models.TopicGeneral, other.Topic)
}

func TestCopilot_ChartOnRequest(t *testing.T) {
	store := &fakeStore{rows: twoMachineRows()}
	svc := newTestCopilot(store, nil, nil)

	resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "Show me a pareto chart", SessionID: "s1"})
	require.NoError(t, err)
	require.NotNil(t, resp.Chart)
	assert.Equal(t, []string{"Belt", "Jam"}, resp.Chart.Labels)
}

// fixedClassifier は常に同じトピックを返す分類器です。
type fixedClassifier struct {
	topic    models.Topic
	messages []string
}

func (f *fixedClassifier) Classify(message, _ string) models.Topic {
	f.messages = append(f.messages, message)
	return f.topic
}

func TestCopilot_WithClassifierDrivesTemplateAndChart(t *testing.T) {
	store := &fakeStore{rows: twoMachineRows()}
	classifier := &fixedClassifier{topic: models.TopicDowntime}
	svc := newTestCopilot(store, nil, nil).WithClassifier(classifier)

	// キーワード分類なら availability になるメッセージ
	resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "availability graph please", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"availability graph please"}, classifier.messages)
	assert.Equal(t, models.TopicDowntime, resp.Topic)
	assert.Contains(t, resp.Response, "Downtime by equipment:")

	require.NotNil(t, resp.Chart)
	assert.Equal(t, models.ChartBar, resp.Chart.Type)
	assert.Equal(t, []string{"Machine B", "Machine A"}, resp.Chart.Labels)
	assert.Equal(t, []float64{40, 10}, resp.Chart.Datasets[0].Data)
}

func TestCopilot_AssistantWriteFailureStillResponds(t *testing.T) {
	store := &fakeStore{rows: twoMachineRows(), appendErr: map[models.Role]error{models.RoleAssistant: errors.New("locked")}}
	svc := newTestCopilot(store, nil, nil)

	resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "availability", SessionID: "s1"})
	require.NoError(t, err)
	assert.Contains(t, resp.Response, "Overall availability is 75.0%")
}

func TestCopilot_SpecialCommand(t *testing.T) {
	store := &fakeStore{rows: twoMachineRows()}
	responder := &fakeResponder{text: "x"}
	svc := NewCopilotService(store, responder, fakeCommands{"help": "Ask me about availability."},
		CopilotConfig{DefaultAPIKey: validKey, Policy: CredentialPolicy{Prefix: "sk-", MinLength: 20}}, nil, nil)

	resp, err := svc.Respond(context.Background(), models.ChatRequest{Message: "help", SessionID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "Ask me about availability.", resp.Response)
	assert.Zero(t, responder.calls)
}

func TestCopilot_Summary(t *testing.T) {
	svc := newTestCopilot(&fakeStore{rows: twoMachineRows()}, nil, nil)
	report, err := svc.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Machine B", report.Ranking[0].Name)

	empty, err := newTestCopilot(&fakeStore{}, nil, nil).Summary(context.Background())
	require.NoError(t, err)
	assert.True(t, empty.Summary.NoData)

	_, err = newTestCopilot(&fakeStore{queryErr: errors.New("x")}, nil, nil).Summary(context.Background())
	assert.Error(t, err)
}

func TestRecentAssistantText(t *testing.T) {
	history := []models.ConversationTurn{
		{Role: models.RoleAssistant, Content: "a1"},
		{Role: models.RoleUser, Content: "u1"},
		{Role: models.RoleAssistant, Content: "a2"},
		{Role: models.RoleAssistant, Content: "a3"},
	}
	assert.Equal(t, "a2\na3", recentAssistantText(history, 2))
	assert.Equal(t, "", recentAssistantText(nil, 2))
}
