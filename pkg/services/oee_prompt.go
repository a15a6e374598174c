package services

import (
	"fmt"
	"regexp"
	"strings"

	"oee-copilot/pkg/models"
)

// プロンプトに埋め込む行数の範囲
const (
	MinContextRows = 10
	MaxContextRows = 50
)

var chartMarkup = regexp.MustCompile(`(?s)\[CHART\].*?\[/CHART\]`)

// CredentialPolicy は生成APIキーの有効性の判定条件です。
type CredentialPolicy struct {
	Prefix    string
	MinLength int
}

// Valid はキーが空でなく、プレフィックスと最小長を満たすかを返します。
func (p CredentialPolicy) Valid(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	if p.Prefix != "" && !strings.HasPrefix(key, p.Prefix) {
		return false
	}
	return len(key) >= p.MinLength
}

// ClampContextRows は埋め込み行数を [MinContextRows, MaxContextRows] に収めます。
func ClampContextRows(n int) int {
	if n < MinContextRows {
		return MinContextRows
	}
	if n > MaxContextRows {
		return MaxContextRows
	}
	return n
}

// StripChartMarkup は応答から [CHART]...[/CHART] ブロックを取り除きます。
func StripChartMarkup(text string) string {
	return strings.TrimSpace(chartMarkup.ReplaceAllString(text, ""))
}

// BuildDataContext は集計値と直近の行を、生成APIに渡すテキストにまとめます。
// rows は新しい順で渡され、先頭から limit 行（10〜50に丸める）だけ使います。
func BuildDataContext(report models.OEEReport, rows []models.StatusLogEntry, limit int) string {
	var b strings.Builder
	s := report.Summary

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Overall availability: %.1f%%\n", RoundPct(s.AvailabilityPct))
	fmt.Fprintf(&b, "- Runtime: %d min, downtime: %d min\n", s.RuntimeMinutes, s.DowntimeMinutes)
	fmt.Fprintf(&b, "- Records: %d (%d equipment)\n", s.TotalRecords, s.EquipmentCount)
	if s.FirstDate != "" {
		fmt.Fprintf(&b, "- Period: %s to %s\n", s.FirstDate, s.LastDate)
	}

	if len(report.Ranking) > 0 {
		b.WriteString("\n## Equipment ranking (lowest availability first)\n")
		for _, agg := range report.Ranking {
			fmt.Fprintf(&b, "- %s: %.1f%%, downtime %d min, %d incidents\n",
				agg.Name, RoundPct(agg.AvailabilityPct), agg.DowntimeMinutes, agg.IncidentCount)
		}
	}

	if len(report.Failures) > 0 {
		b.WriteString("\n## Failure reasons\n")
		for _, f := range report.Failures {
			fmt.Fprintf(&b, "- %s: %d min, %d events\n", f.Reason, f.Minutes, f.Count)
		}
	}

	limit = ClampContextRows(limit)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	if len(rows) > 0 {
		fmt.Fprintf(&b, "\n## Recent status logs (%d rows)\n", len(rows))
		b.WriteString("date | equipment | status | minutes | reason | issue\n")
		for _, r := range rows {
			date := ""
			if !r.Date.IsZero() {
				date = r.Date.Format("2006-01-02")
			}
			fmt.Fprintf(&b, "%s | %s | %s | %d | %s | %s\n",
				date, r.EquipmentName, r.Status, r.DurationMinutes, r.Reason, r.Issue)
		}
	}
	return b.String()
}
