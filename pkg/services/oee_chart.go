package services

import (
	"strings"

	"oee-copilot/pkg/models"
)

// 分類ごとのバー色
var classColors = map[string]string{
	ClassGood:     "#22c55e",
	ClassWarning:  "#f59e0b",
	ClassCritical: "#ef4444",
}

const (
	downtimeColor = "#ef4444"
	paretoColor   = "#3b82f6"
	trendColor    = "#0ea5e9"

	// NoFailureReasonsLabel 原因が1件も無いパレート図のプレースホルダー
	NoFailureReasonsLabel = "No failure reasons recorded"
)

var piePalette = []string{"#3b82f6", "#ef4444", "#f59e0b", "#22c55e", "#8b5cf6", "#ec4899", "#14b8a6", "#64748b"}

// BuildChart はトピックと集計結果からチャートを組み立てます。
// チャート要求のキーワードが無い場合、データが無い場合はnilを返します。
// 例外としてパレート図は原因が0件でもプレースホルダーのバーを返します。
func BuildChart(topic models.Topic, message string, report models.OEEReport) *models.ChartSpec {
	if !WantsChart(message) || report.Summary.NoData {
		return nil
	}

	lower := strings.ToLower(message)
	switch {
	case strings.Contains(lower, "pie"):
		return buildFailurePie(report.Failures)
	case strings.Contains(lower, "trend"):
		return buildTrendChart(report.Daily)
	case strings.Contains(lower, "pareto") || topic == models.TopicPareto:
		return buildParetoChart(report.Failures)
	case topic == models.TopicDowntime:
		return buildDowntimeChart(report.Ranking)
	default:
		return buildAvailabilityChart(report.Ranking)
	}
}

func buildParetoChart(failures models.FailureReasonBreakdown) *models.ChartSpec {
	if len(failures) == 0 {
		return &models.ChartSpec{
			Type:   models.ChartBar,
			Title:  "Failure Reasons (Pareto)",
			Labels: []string{NoFailureReasonsLabel},
			Datasets: []models.ChartDataset{{
				Label: "Downtime (min)",
				Data:  []float64{0},
			}},
		}
	}

	// ComputeFailureBreakdown は既に降順
	labels := make([]string, len(failures))
	data := make([]float64, len(failures))
	for i, f := range failures {
		labels[i] = f.Reason
		data[i] = float64(f.Minutes)
	}
	return &models.ChartSpec{
		Type:   models.ChartPareto,
		Title:  "Failure Reasons (Pareto)",
		Labels: labels,
		Datasets: []models.ChartDataset{{
			Label:           "Downtime (min)",
			Data:            data,
			BackgroundColor: []string{paretoColor},
		}},
	}
}

func buildFailurePie(failures models.FailureReasonBreakdown) *models.ChartSpec {
	if len(failures) == 0 {
		return nil
	}
	labels := make([]string, len(failures))
	data := make([]float64, len(failures))
	colors := make([]string, len(failures))
	for i, f := range failures {
		labels[i] = f.Reason
		data[i] = float64(f.Minutes)
		colors[i] = piePalette[i%len(piePalette)]
	}
	return &models.ChartSpec{
		Type:   models.ChartPie,
		Title:  "Downtime by Failure Reason",
		Labels: labels,
		Datasets: []models.ChartDataset{{
			Label:           "Downtime (min)",
			Data:            data,
			BackgroundColor: colors,
		}},
	}
}

func buildTrendChart(daily []models.DailyAvailability) *models.ChartSpec {
	if len(daily) == 0 {
		return nil
	}
	labels := make([]string, len(daily))
	data := make([]float64, len(daily))
	for i, d := range daily {
		labels[i] = d.Date
		data[i] = RoundPct(d.AvailabilityPct)
	}
	return &models.ChartSpec{
		Type:   models.ChartLine,
		Title:  "Daily Availability Trend",
		Labels: labels,
		Datasets: []models.ChartDataset{{
			Label:           "Availability (%)",
			Data:            data,
			BackgroundColor: []string{trendColor},
		}},
	}
}

func buildAvailabilityChart(ranking []models.EquipmentAggregate) *models.ChartSpec {
	if len(ranking) == 0 {
		return nil
	}
	labels := make([]string, len(ranking))
	data := make([]float64, len(ranking))
	colors := make([]string, len(ranking))
	categories := make([]string, len(ranking))
	for i, agg := range ranking {
		class := ClassifyAvailability(agg.AvailabilityPct)
		labels[i] = agg.Name
		data[i] = RoundPct(agg.AvailabilityPct)
		colors[i] = classColors[class]
		categories[i] = class
	}
	return &models.ChartSpec{
		Type:   models.ChartBar,
		Title:  "Availability by Equipment",
		Labels: labels,
		Datasets: []models.ChartDataset{{
			Label:           "Availability (%)",
			Data:            data,
			BackgroundColor: colors,
			Categories:      categories,
		}},
	}
}

func buildDowntimeChart(ranking []models.EquipmentAggregate) *models.ChartSpec {
	if len(ranking) == 0 {
		return nil
	}
	sorted := make([]models.EquipmentAggregate, len(ranking))
	copy(sorted, ranking)
	sortByDowntimeDesc(sorted)

	labels := make([]string, len(sorted))
	data := make([]float64, len(sorted))
	for i, agg := range sorted {
		labels[i] = agg.Name
		data[i] = float64(agg.DowntimeMinutes)
	}
	return &models.ChartSpec{
		Type:   models.ChartBar,
		Title:  "Downtime by Equipment",
		Labels: labels,
		Datasets: []models.ChartDataset{{
			Label:           "Downtime (min)",
			Data:            data,
			BackgroundColor: []string{downtimeColor},
		}},
	}
}
