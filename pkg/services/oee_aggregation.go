package services

import (
	"errors"
	"math"
	"sort"

	"oee-copilot/pkg/models"
)

// 稼働率のしきい値。応答テキストとチャートの色分けで共通に使う
const (
	WorldClassOEE = 85.0
	AcceptableOEE = 70.0
)

// 稼働率の分類
const (
	ClassGood     = "good"
	ClassWarning  = "warning"
	ClassCritical = "critical"
)

// ErrNoData は集計対象の行が1件も無いことを示します。
// 呼び出し側は0%のレポートではなく「データをインポートしてください」を表示します。
var ErrNoData = errors.New("no equipment status data")

// availabilityPct は runtime/(runtime+downtime)*100 を返します。分母が0なら0です。
func availabilityPct(runtime, downtime int) float64 {
	total := runtime + downtime
	if total <= 0 {
		return 0
	}
	return float64(runtime) / float64(total) * 100
}

// ClassifyAvailability は稼働率を good / warning / critical に分類します。
func ClassifyAvailability(pct float64) string {
	switch {
	case pct >= WorldClassOEE:
		return ClassGood
	case pct >= AcceptableOEE:
		return ClassWarning
	default:
		return ClassCritical
	}
}

// RoundPct は表示用に小数第1位へ丸めます。内部計算には使わないこと。
func RoundPct(v float64) float64 {
	return math.Round(v*10) / 10
}

// ComputeOverallAvailability は全行の稼働・停止時間を合計して稼働率を求めます。
// どちらの状態にも当てはまらない行はTotalRecordsにだけ数えます。
func ComputeOverallAvailability(rows []models.StatusLogEntry) models.AvailabilitySummary {
	summary := models.AvailabilitySummary{TotalRecords: len(rows), NoData: len(rows) == 0}
	equipment := make(map[string]struct{})

	for _, row := range rows {
		equipment[row.EquipmentName] = struct{}{}
		switch row.State() {
		case models.StateRunning:
			summary.RuntimeMinutes += row.DurationMinutes
			summary.RunningRecords++
		case models.StateDown:
			summary.DowntimeMinutes += row.DurationMinutes
			summary.DownRecords++
		}

		if row.Date.IsZero() {
			continue
		}
		d := row.Date.Format("2006-01-02")
		if summary.FirstDate == "" || d < summary.FirstDate {
			summary.FirstDate = d
		}
		if d > summary.LastDate {
			summary.LastDate = d
		}
	}

	summary.EquipmentCount = len(equipment)
	summary.AvailabilityPct = availabilityPct(summary.RuntimeMinutes, summary.DowntimeMinutes)
	return summary
}

// ComputeEquipmentRanking は設備ごとに集計し、稼働率の昇順（最も悪い設備が先頭）で返します。
// 同率の場合は設備名順にして、同じ入力なら常に同じ順序になるようにしています。
func ComputeEquipmentRanking(rows []models.StatusLogEntry) []models.EquipmentAggregate {
	byName := make(map[string]*models.EquipmentAggregate)
	for _, row := range rows {
		agg, ok := byName[row.EquipmentName]
		if !ok {
			agg = &models.EquipmentAggregate{Name: row.EquipmentName}
			byName[row.EquipmentName] = agg
		}
		switch row.State() {
		case models.StateRunning:
			agg.RuntimeMinutes += row.DurationMinutes
		case models.StateDown:
			agg.DowntimeMinutes += row.DurationMinutes
			agg.IncidentCount++
		}
	}

	ranking := make([]models.EquipmentAggregate, 0, len(byName))
	for _, agg := range byName {
		agg.AvailabilityPct = availabilityPct(agg.RuntimeMinutes, agg.DowntimeMinutes)
		ranking = append(ranking, *agg)
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].AvailabilityPct != ranking[j].AvailabilityPct {
			return ranking[i].AvailabilityPct < ranking[j].AvailabilityPct
		}
		return ranking[i].Name < ranking[j].Name
	})
	return ranking
}

// ComputeFailureBreakdown は停止行だけを対象に、原因ごとの停止時間と件数を集計します。
// 原因が空欄または "-" の行は除外します。原因文字列は大文字小文字を区別します。
// 結果は停止時間の降順（同値は件数の降順、次に原因名順）です。
func ComputeFailureBreakdown(rows []models.StatusLogEntry) models.FailureReasonBreakdown {
	byReason := make(map[string]*models.FailureReason)
	for _, row := range rows {
		if row.State() != models.StateDown || !row.HasReason() {
			continue
		}
		r, ok := byReason[row.Reason]
		if !ok {
			r = &models.FailureReason{Reason: row.Reason}
			byReason[row.Reason] = r
		}
		r.Minutes += row.DurationMinutes
		r.Count++
	}

	breakdown := make(models.FailureReasonBreakdown, 0, len(byReason))
	for _, r := range byReason {
		breakdown = append(breakdown, *r)
	}
	sort.Slice(breakdown, func(i, j int) bool {
		a, b := breakdown[i], breakdown[j]
		if a.Minutes != b.Minutes {
			return a.Minutes > b.Minutes
		}
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		return a.Reason < b.Reason
	})
	return breakdown
}

// ComputeDailyAvailability は日付ごとの稼働率を日付昇順で返します。日付の無い行は除外します。
func ComputeDailyAvailability(rows []models.StatusLogEntry) []models.DailyAvailability {
	type bucket struct{ runtime, downtime int }
	byDate := make(map[string]*bucket)
	for _, row := range rows {
		if row.Date.IsZero() {
			continue
		}
		d := row.Date.Format("2006-01-02")
		b, ok := byDate[d]
		if !ok {
			b = &bucket{}
			byDate[d] = b
		}
		switch row.State() {
		case models.StateRunning:
			b.runtime += row.DurationMinutes
		case models.StateDown:
			b.downtime += row.DurationMinutes
		}
	}

	dates := make([]string, 0, len(byDate))
	for d := range byDate {
		dates = append(dates, d)
	}
	sort.Strings(dates)

	daily := make([]models.DailyAvailability, 0, len(dates))
	for _, d := range dates {
		b := byDate[d]
		daily = append(daily, models.DailyAvailability{Date: d, AvailabilityPct: availabilityPct(b.runtime, b.downtime)})
	}
	return daily
}

// BuildReport は全ての集計をまとめて計算します。
// 行が無い場合はNoDataを立てたレポートとErrNoDataを返します。
func BuildReport(rows []models.StatusLogEntry) (models.OEEReport, error) {
	report := models.OEEReport{
		Summary:  ComputeOverallAvailability(rows),
		Ranking:  ComputeEquipmentRanking(rows),
		Failures: ComputeFailureBreakdown(rows),
		Daily:    ComputeDailyAvailability(rows),
	}
	if report.Summary.NoData {
		return report, ErrNoData
	}
	return report, nil
}

// sortByDowntimeDesc は停止時間の降順（同値は名前順）に並べ替えます。
func sortByDowntimeDesc(aggs []models.EquipmentAggregate) {
	sort.SliceStable(aggs, func(i, j int) bool {
		if aggs[i].DowntimeMinutes != aggs[j].DowntimeMinutes {
			return aggs[i].DowntimeMinutes > aggs[j].DowntimeMinutes
		}
		return aggs[i].Name < aggs[j].Name
	})
}
