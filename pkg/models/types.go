package models

import "time"

// ChatRequest represents an incoming chat request
type ChatRequest struct {
	Message        string `json:"message"`
	SessionID      string `json:"sessionId"`
	APIKeyOverride string `json:"apiKeyOverride,omitempty"` // リクエスト単位で生成APIのキーを差し替える
}

// ResponseMode 応答テキストの生成方式
type ResponseMode string

const (
	ModeTemplate   ResponseMode = "template"
	ModeGenerative ResponseMode = "generative"
)

// ChatResponse represents the response from the chat API
type ChatResponse struct {
	Response  string       `json:"response"`
	Chart     *ChartSpec   `json:"chart,omitempty"`
	Topic     Topic        `json:"topic"`
	Mode      ResponseMode `json:"mode"`
	SessionID string       `json:"sessionId"`
	Error     string       `json:"error,omitempty"`
}

// Role 会話の発話者
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ConversationTurn 会話履歴の1エントリー（追記のみ）
type ConversationTurn struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionId"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session チャットセッション。タイトルはユーザーが編集できる
type Session struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// SessionCreateRequest セッション作成リクエスト
type SessionCreateRequest struct {
	Title string `json:"title"`
}

// SessionRenameRequest セッション名変更リクエスト
type SessionRenameRequest struct {
	Title string `json:"title" binding:"required"`
}

// ImportResult 一括インポートの結果
type ImportResult struct {
	Imported    int   `json:"imported"`
	Skipped     int   `json:"skipped"`
	SkippedRows []int `json:"skippedRows,omitempty"` // ファイル上の行番号（ヘッダー=1）
}

// LogStats ステータスログの件数統計
type LogStats struct {
	TotalRows   int            `json:"totalRows"`
	ByEquipment map[string]int `json:"byEquipment"`
}
