package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"oee-copilot/pkg/models"

	"github.com/google/uuid"
)

// defaultTitleLength 最初のユーザー発言から作るセッションタイトルの最大文字数
const defaultTitleLength = 40

// upsertSessionSQL はセッションが無ければ作成し、あれば更新日時を進めます。
// タイトルは空のときだけ埋めます。
const upsertSessionSQL = `
	INSERT INTO chat_sessions (id, title, created_at, updated_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		updated_at = excluded.updated_at,
		title = CASE WHEN chat_sessions.title = '' THEN excluded.title ELSE chat_sessions.title END
`

const insertMessageSQL = `
	INSERT INTO chat_messages (id, session_id, role, content, created_at)
	VALUES (?, ?, ?, ?, ?)
`

const selectMessagesSQL = `
	SELECT id, session_id, role, content, created_at
	FROM chat_messages
	WHERE session_id = ?
`

// DefaultTitle はメッセージ本文からセッションタイトルを作ります。
func DefaultTitle(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if content == "" {
		return "New chat"
	}
	runes := []rune(content)
	if len(runes) > defaultTitleLength {
		return string(runes[:defaultTitleLength]) + "…"
	}
	return content
}

// AppendMessage は会話履歴に1件追記します。未知のセッションIDなら自動で作成します。
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID string, role models.Role, content string) (models.ConversationTurn, error) {
	if role != models.RoleUser && role != models.RoleAssistant {
		return models.ConversationTurn{}, fmt.Errorf("invalid role %q", role)
	}

	turn := models.ConversationTurn{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		Timestamp: s.now(),
	}
	ts := formatTime(turn.Timestamp)

	title := ""
	if role == models.RoleUser {
		title = DefaultTitle(content)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ConversationTurn{}, fmt.Errorf("begin message transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsertSessionSQL, sessionID, title, ts, ts); err != nil {
		return models.ConversationTurn{}, fmt.Errorf("upsert session: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insertMessageSQL, turn.ID, sessionID, string(role), content, ts); err != nil {
		return models.ConversationTurn{}, fmt.Errorf("insert message: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return models.ConversationTurn{}, fmt.Errorf("commit message transaction: %w", err)
	}
	return turn, nil
}

// QueryMessages はセッションのメッセージを最大limit件返します。
// limitが0以下のときはDefaultPageSizeで打ち切られます。
func (s *SQLiteStore) QueryMessages(ctx context.Context, sessionID string, asc bool, limit int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	order := "ASC"
	if !asc {
		order = "DESC"
	}
	q := selectMessagesSQL + fmt.Sprintf(" ORDER BY created_at %s, rowid %s LIMIT ?", order, order)
	return s.queryMessages(ctx, q, sessionID, limit)
}

// QueryRecentMessages は直近limit件を時系列順（古い順）で返します。
func (s *SQLiteStore) QueryRecentMessages(ctx context.Context, sessionID string, limit int) ([]models.ConversationTurn, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	q := selectMessagesSQL + " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	turns, err := s.queryMessages(ctx, q, sessionID, limit)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLiteStore) queryMessages(ctx context.Context, q string, args ...any) ([]models.ConversationTurn, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := make([]models.ConversationTurn, 0, 16)
	for rows.Next() {
		var (
			t         models.ConversationTurn
			role      string
			createdAt string
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &role, &t.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		t.Role = models.Role(role)
		t.Timestamp = parseTime(createdAt)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

// CreateSession は新しいセッションを作成します。
func (s *SQLiteStore) CreateSession(ctx context.Context, title string) (models.Session, error) {
	now := s.now()
	session := models.Session{
		ID:        uuid.NewString(),
		Title:     strings.TrimSpace(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	ts := formatTime(now)
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.Title, ts, ts,
	); err != nil {
		return models.Session{}, fmt.Errorf("insert session: %w", err)
	}
	return session, nil
}

// GetSession はセッションを1件取得します。
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (models.Session, error) {
	var (
		session              models.Session
		createdAt, updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions WHERE id = ?`, id,
	).Scan(&session.ID, &session.Title, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Session{}, ErrNotFound
	}
	if err != nil {
		return models.Session{}, fmt.Errorf("get session: %w", err)
	}
	session.CreatedAt = parseTime(createdAt)
	session.UpdatedAt = parseTime(updatedAt)
	return session, nil
}

// ListSessions は更新日時の新しい順に最大DefaultPageSize件のセッションを返します。
func (s *SQLiteStore) ListSessions(ctx context.Context) ([]models.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, updated_at FROM chat_sessions ORDER BY updated_at DESC, id ASC LIMIT ?`,
		DefaultPageSize)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]models.Session, 0, 16)
	for rows.Next() {
		var (
			session              models.Session
			createdAt, updatedAt string
		)
		if err := rows.Scan(&session.ID, &session.Title, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		session.CreatedAt = parseTime(createdAt)
		session.UpdatedAt = parseTime(updatedAt)
		out = append(out, session)
	}
	return out, rows.Err()
}

// RenameSession はセッションのタイトルを変更します。
func (s *SQLiteStore) RenameSession(ctx context.Context, id, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE chat_sessions SET title = ?, updated_at = ? WHERE id = ?`,
		strings.TrimSpace(title), formatTime(s.now()), id,
	)
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rename session: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
