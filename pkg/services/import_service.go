package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"oee-copilot/pkg/logger"
	"oee-copilot/pkg/metrics"
	"oee-copilot/pkg/models"

	"github.com/xuri/excelize/v2"
)

// インポートのエラー
var (
	ErrUnsupportedFormat = errors.New("unsupported file format: upload a .csv or .xlsx file")
	ErrMissingColumns    = errors.New("required columns not found")
	ErrEmptyFile         = errors.New("file needs a header row and at least one data row")
)

// ヘッダーの別名。大文字小文字は区別しない
var (
	equipmentHeaders = []string{"equipment", "equipment_name", "equipmentName", "machine", "machine_name", "設備", "設備名"}
	statusHeaders    = []string{"status", "state", "ステータス", "状態"}
	dateHeaders      = []string{"date", "log_date", "日付"}
	startHeaders     = []string{"start_time", "startTime", "start", "開始時刻"}
	endHeaders       = []string{"end_time", "endTime", "end", "終了時刻"}
	durationHeaders  = []string{"duration", "duration_minutes", "durationMinutes", "minutes", "時間(分)"}
	reasonHeaders    = []string{"reason", "cause", "原因"}
	issueHeaders     = []string{"issue", "問題"}
	alertHeaders     = []string{"alert", "アラート"}
	commentHeaders   = []string{"comment", "comments", "note", "コメント"}
)

var dateLayouts = []string{"2006-01-02", "2006/1/2", "2006/01/02", "2006-01-02 15:04:05", "1/2/2006", "1/2/06", time.RFC3339}

// findIndex は候補のいずれかに一致する最初の列番号を返します。
func findIndex(header []string, candidates ...string) int {
	for _, candidate := range candidates {
		for i, item := range header {
			if strings.EqualFold(strings.TrimSpace(item), candidate) {
				return i
			}
		}
	}
	return -1
}

// ImportService 設備ステータスログの一括インポート
type ImportService struct {
	store   LogStore
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewImportService 新しいImportServiceを作成
func NewImportService(store LogStore, log *logger.Logger, m *metrics.Metrics) *ImportService {
	if log == nil {
		log = logger.Nop()
	}
	return &ImportService{store: store, log: log, metrics: m}
}

// Import はファイルを解析し、既存のログを全件置き換えます。
func (s *ImportService) Import(ctx context.Context, fileName string, r io.Reader) (models.ImportResult, error) {
	entries, result, err := ParseStatusLogFile(fileName, r)
	if err != nil {
		return result, err
	}

	inserted, err := s.store.InsertLogs(ctx, entries)
	if err != nil {
		return result, fmt.Errorf("ステータスログの保存に失敗: %w", err)
	}
	result.Imported = inserted
	s.metrics.RecordImportedRows(inserted)
	s.log.Infow("status logs imported", "file", fileName, "imported", result.Imported, "skipped", result.Skipped)
	return result, nil
}

// ParseStatusLogFile は .csv / .xlsx を StatusLogEntry に変換します。
// 設備名かステータスが空の行はスキップし、行番号（ヘッダー=1）を結果に記録します。
func ParseStatusLogFile(fileName string, r io.Reader) ([]models.StatusLogEntry, models.ImportResult, error) {
	var result models.ImportResult

	rows, err := readRows(fileName, r)
	if err != nil {
		return nil, result, err
	}
	if len(rows) < 2 {
		return nil, result, ErrEmptyFile
	}

	header := rows[0]
	cols := columnIndex{
		equipment: findIndex(header, equipmentHeaders...),
		status:    findIndex(header, statusHeaders...),
		date:      findIndex(header, dateHeaders...),
		start:     findIndex(header, startHeaders...),
		end:       findIndex(header, endHeaders...),
		duration:  findIndex(header, durationHeaders...),
		reason:    findIndex(header, reasonHeaders...),
		issue:     findIndex(header, issueHeaders...),
		alert:     findIndex(header, alertHeaders...),
		comment:   findIndex(header, commentHeaders...),
	}
	var missing []string
	if cols.equipment < 0 {
		missing = append(missing, "equipment")
	}
	if cols.status < 0 {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return nil, result, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}

	entries := make([]models.StatusLogEntry, 0, len(rows)-1)
	for i, record := range rows[1:] {
		entry, ok := cols.parse(record)
		if !ok {
			if isBlankRecord(record) {
				continue
			}
			result.Skipped++
			result.SkippedRows = append(result.SkippedRows, i+2)
			continue
		}
		entries = append(entries, entry)
	}
	result.Imported = len(entries)
	return entries, result, nil
}

func readRows(fileName string, r io.Reader) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx":
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("Excelファイルの読み込みに失敗: %w", err)
		}
		defer f.Close()
		rows, err := f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("Excelシートの行取得に失敗: %w", err)
		}
		return rows, nil
	case ".csv":
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		rows, err := cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("CSVファイルの解析に失敗: %w", err)
		}
		if len(rows) > 0 && len(rows[0]) > 0 {
			rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
		}
		return rows, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

type columnIndex struct {
	equipment, status, date, start, end, duration, reason, issue, alert, comment int
}

func (c columnIndex) parse(record []string) (models.StatusLogEntry, bool) {
	entry := models.StatusLogEntry{
		EquipmentName: cell(record, c.equipment),
		Status:        cell(record, c.status),
		StartTime:     cell(record, c.start),
		EndTime:       cell(record, c.end),
		Reason:        cell(record, c.reason),
		Issue:         cell(record, c.issue),
		Alert:         cell(record, c.alert),
		Comment:       cell(record, c.comment),
	}
	if entry.EquipmentName == "" || entry.Status == "" {
		return entry, false
	}
	entry.Date = parseDate(cell(record, c.date))

	raw := cell(record, c.duration)
	if raw == "" {
		entry.DurationMinutes = minutesBetween(entry.StartTime, entry.EndTime)
	} else {
		entry.DurationMinutes = parseDuration(raw)
	}
	return entry, true
}

func cell(record []string, idx int) string {
	if idx < 0 || idx >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[idx])
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// maxDurationMinutes これを超える時間は入力ミスとして扱う
const maxDurationMinutes = math.MaxInt32

// parseDuration は分数を整数に丸めます。解析できない値、負の値、maxDurationMinutes を超える値は0です。
func parseDuration(raw string) int {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > maxDurationMinutes {
		return 0
	}
	return int(math.Round(v))
}

// parseDate は既知のレイアウトかExcelのシリアル値を日付に変換します。解析できなければゼロ値です。
func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return truncateDay(t)
		}
	}
	if serial, err := strconv.ParseFloat(raw, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return truncateDay(t)
		}
	}
	return time.Time{}
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// minutesBetween は HH:MM の開始・終了から分数を求めます。日付をまたぐ場合は翌日扱い。
func minutesBetween(start, end string) int {
	s, err1 := parseClock(start)
	e, err2 := parseClock(end)
	if err1 != nil || err2 != nil {
		return 0
	}
	d := e - s
	if d < 0 {
		d += 24 * 60
	}
	return d
}

func parseClock(v string) (int, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.Hour()*60 + t.Minute(), nil
		}
	}
	return 0, fmt.Errorf("invalid clock time %q", v)
}
