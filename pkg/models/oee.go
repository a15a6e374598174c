package models

import (
	"strings"
	"time"
)

// EquipmentState ステータス文字列を正規化した稼働状態
type EquipmentState int

const (
	StateOther EquipmentState = iota
	StateRunning
	StateDown
)

// NormalizeStatus はステータス文字列を大文字小文字を区別せずに稼働状態へ変換します。
// running/active は稼働、down/inactive は停止、それ以外は StateOther です。
func NormalizeStatus(status string) EquipmentState {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "running", "active":
		return StateRunning
	case "down", "inactive":
		return StateDown
	default:
		return StateOther
	}
}

// UnspecifiedReason は原因未記入を表すセンチネル値です。
const UnspecifiedReason = "-"

// StatusLogEntry 設備1台の1区間の稼働ステータス記録
type StatusLogEntry struct {
	ID              int64     `json:"id,omitempty"`
	EquipmentName   string    `json:"equipmentName"`
	Status          string    `json:"status"`
	Date            time.Time `json:"date"`
	StartTime       string    `json:"startTime,omitempty"`
	EndTime         string    `json:"endTime,omitempty"`
	DurationMinutes int       `json:"durationMinutes"`
	Reason          string    `json:"reason,omitempty"`
	Issue           string    `json:"issue,omitempty"`
	Alert           string    `json:"alert,omitempty"`
	Comment         string    `json:"comment,omitempty"`
}

// State returns the normalized state of the entry.
func (e StatusLogEntry) State() EquipmentState {
	return NormalizeStatus(e.Status)
}

// HasReason は原因が記入されているか（空欄・"-" 以外）を返します。
func (e StatusLogEntry) HasReason() bool {
	r := strings.TrimSpace(e.Reason)
	return r != "" && r != UnspecifiedReason
}

// AvailabilitySummary 全体の稼働率集計
type AvailabilitySummary struct {
	AvailabilityPct float64 `json:"availabilityPct"`
	RuntimeMinutes  int     `json:"runtimeMinutes"`
	DowntimeMinutes int     `json:"downtimeMinutes"`
	TotalRecords    int     `json:"totalRecords"`
	RunningRecords  int     `json:"runningRecords"`
	DownRecords     int     `json:"downRecords"`
	EquipmentCount  int     `json:"equipmentCount"`
	FirstDate       string  `json:"firstDate,omitempty"`
	LastDate        string  `json:"lastDate,omitempty"`
	NoData          bool    `json:"noData"`
}

// EquipmentAggregate 設備ごとの集計。リクエストごとに再計算され、永続化はしない
type EquipmentAggregate struct {
	Name            string  `json:"name"`
	AvailabilityPct float64 `json:"availabilityPct"`
	DowntimeMinutes int     `json:"downtimeMinutes"`
	RuntimeMinutes  int     `json:"runtimeMinutes"`
	IncidentCount   int     `json:"incidentCount"`
}

// FailureReason 停止原因ごとの集計
type FailureReason struct {
	Reason  string `json:"reason"`
	Minutes int    `json:"minutes"`
	Count   int    `json:"count"`
}

// FailureReasonBreakdown 停止原因の内訳。影響度の降順に並ぶ
type FailureReasonBreakdown []FailureReason

// ByReason returns the breakdown as reason -> minutes.
func (b FailureReasonBreakdown) ByReason() map[string]int {
	out := make(map[string]int, len(b))
	for _, r := range b {
		out[r.Reason] = r.Minutes
	}
	return out
}

// TotalMinutes returns the summed minutes across all reasons.
func (b FailureReasonBreakdown) TotalMinutes() int {
	total := 0
	for _, r := range b {
		total += r.Minutes
	}
	return total
}

// DailyAvailability 日別の稼働率（トレンドチャート用）
type DailyAvailability struct {
	Date            string  `json:"date"`
	AvailabilityPct float64 `json:"availabilityPct"`
}

// OEEReport 1リクエスト分の集計結果一式
type OEEReport struct {
	Summary  AvailabilitySummary    `json:"summary"`
	Ranking  []EquipmentAggregate   `json:"ranking"`
	Failures FailureReasonBreakdown `json:"failures"`
	Daily    []DailyAvailability    `json:"daily"`
}

// Topic ユーザーの質問の分類
type Topic string

const (
	TopicPareto       Topic = "pareto"
	TopicAvailability Topic = "availability"
	TopicDowntime     Topic = "downtime"
	TopicDataQuery    Topic = "data_query"
	TopicGeneral      Topic = "general"
)

// ChartType チャート種別
type ChartType string

const (
	ChartBar      ChartType = "bar"
	ChartLine     ChartType = "line"
	ChartPie      ChartType = "pie"
	ChartDoughnut ChartType = "doughnut"
	ChartPareto   ChartType = "pareto"
)

// ChartDataset チャートの1系列
type ChartDataset struct {
	Label           string    `json:"label"`
	Data            []float64 `json:"data"`
	BackgroundColor []string  `json:"backgroundColor,omitempty"`
	Categories      []string  `json:"categories,omitempty"` // good / warning / critical
}

// ChartSpec 描画用のビューモデル。永続化しない
type ChartSpec struct {
	Type     ChartType      `json:"type"`
	Title    string         `json:"title"`
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}
