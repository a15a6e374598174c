// Package store はステータスログと会話履歴のSQLite実装です。
//
// 無制限のクエリはストア側で暗黙に打ち切られます（DefaultPageSize）。
// それ以上の行が必要な呼び出し元は、必ず明示的なlimitを渡してください。
package store

import (
	"database/sql"
	"errors"
	"time"
)

// DefaultPageSize はlimit未指定（0以下）のときに適用される上限です。
const DefaultPageSize = 1000

// ErrNotFound 対象のレコードが存在しない
var ErrNotFound = errors.New("not found")

// 時刻はUTC・固定桁で保存し、文字列比較で時系列順になるようにする
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const dateLayout = "2006-01-02"

// SQLiteStore はservices.Storeとservices.SessionStoreを実装します。
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// New は新しいSQLiteStoreを生成します。
func New(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}

func parseDate(s sql.NullString) time.Time {
	if !s.Valid || s.String == "" {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return time.Time{}
	}
	return t
}
