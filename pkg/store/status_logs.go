package store

import (
	"context"
	"database/sql"
	"fmt"

	"oee-copilot/pkg/models"
)

const deleteAllLogsSQL = `DELETE FROM equipment_status_logs`

const insertLogSQL = `
	INSERT INTO equipment_status_logs
		(equipment_name, status, log_date, start_time, end_time, duration_minutes, reason, issue, alert, comment, imported_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

const selectLogsSQL = `
	SELECT id, equipment_name, status, log_date, start_time, end_time, duration_minutes, reason, issue, alert, comment
	FROM equipment_status_logs
`

// InsertLogs はステータスログを全件置き換えます（全削除してから一括挿入）。
// 1トランザクションで実行しますが、他の接続からは一瞬テーブルが空に見える可能性があります。
func (s *SQLiteStore) InsertLogs(ctx context.Context, entries []models.StatusLogEntry) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, deleteAllLogsSQL); err != nil {
		return 0, fmt.Errorf("clear status logs: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, insertLogSQL)
	if err != nil {
		return 0, fmt.Errorf("prepare status log insert: %w", err)
	}
	defer stmt.Close()

	importedAt := formatTime(s.now())
	for i, e := range entries {
		if e.DurationMinutes < 0 {
			return 0, fmt.Errorf("status log %d: negative duration %d", i+1, e.DurationMinutes)
		}
		if _, err := stmt.ExecContext(ctx,
			e.EquipmentName,
			e.Status,
			formatDate(e.Date),
			e.StartTime,
			e.EndTime,
			e.DurationMinutes,
			e.Reason,
			e.Issue,
			e.Alert,
			e.Comment,
			importedAt,
		); err != nil {
			return 0, fmt.Errorf("insert status log %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import transaction: %w", err)
	}
	return len(entries), nil
}

// QueryRecentLogs は日付順で最大limit件のステータスログを返します。
// limitが0以下のときはDefaultPageSizeで打ち切られます。
func (s *SQLiteStore) QueryRecentLogs(ctx context.Context, limit int, desc bool) ([]models.StatusLogEntry, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	order := "ASC"
	if desc {
		order = "DESC"
	}
	q := selectLogsSQL + fmt.Sprintf(" ORDER BY log_date %s, id %s LIMIT ?", order, order)

	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("query status logs: %w", err)
	}
	defer rows.Close()

	out := make([]models.StatusLogEntry, 0, 64)
	for rows.Next() {
		var (
			e                                               models.StatusLogEntry
			date, start, end, reason, issue, alert, comment sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.EquipmentName, &e.Status, &date, &start, &end,
			&e.DurationMinutes, &reason, &issue, &alert, &comment); err != nil {
			return nil, fmt.Errorf("scan status log: %w", err)
		}
		e.Date = parseDate(date)
		e.StartTime = start.String
		e.EndTime = end.String
		e.Reason = reason.String
		e.Issue = issue.String
		e.Alert = alert.String
		e.Comment = comment.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status logs: %w", err)
	}
	return out, nil
}

// LogStats は全件数と設備別件数を返します。ページサイズの影響を受けない集計クエリです。
func (s *SQLiteStore) LogStats(ctx context.Context) (models.LogStats, error) {
	stats := models.LogStats{ByEquipment: map[string]int{}}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM equipment_status_logs`).Scan(&stats.TotalRows); err != nil {
		return stats, fmt.Errorf("count status logs: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT equipment_name, COUNT(*) FROM equipment_status_logs
		GROUP BY equipment_name ORDER BY equipment_name
	`)
	if err != nil {
		return stats, fmt.Errorf("count status logs by equipment: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return stats, fmt.Errorf("scan equipment count: %w", err)
		}
		stats.ByEquipment[name] = n
	}
	return stats, rows.Err()
}
