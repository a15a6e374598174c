package services

import (
	"fmt"
	"strings"

	"oee-copilot/pkg/models"
)

// DefaultRankingTopN 応答テキストに載せる設備数の既定値
const DefaultRankingTopN = 5

// NoDataResponse はデータ未登録時の応答です。0%とは表示しない。
const NoDataResponse = "No equipment status data is available yet, so availability cannot be calculated. " +
	"Please import your equipment status logs (CSV or Excel) and ask again."

// TemplateRenderer はトピックごとの定型文で応答を組み立てます。
// 同じトピックと集計結果からは常に同じ文字列を返します。
type TemplateRenderer struct {
	topN      int
	templates map[models.Topic]func(models.OEEReport) string
}

// NewTemplateRenderer creates a renderer that lists at most topN equipment.
func NewTemplateRenderer(topN int) *TemplateRenderer {
	if topN <= 0 {
		topN = DefaultRankingTopN
	}
	r := &TemplateRenderer{topN: topN}
	r.templates = map[models.Topic]func(models.OEEReport) string{
		models.TopicPareto:       r.renderPareto,
		models.TopicAvailability: r.renderAvailability,
		models.TopicDowntime:     r.renderDowntime,
		models.TopicDataQuery:    r.renderDataQuery,
		models.TopicGeneral:      r.renderGeneral,
	}
	return r
}

// Render returns the response text for topic.
func (r *TemplateRenderer) Render(topic models.Topic, report models.OEEReport) string {
	if report.Summary.NoData {
		return NoDataResponse
	}
	fn, ok := r.templates[topic]
	if !ok {
		fn = r.renderGeneral
	}
	return fn(report)
}

func (r *TemplateRenderer) renderPareto(report models.OEEReport) string {
	var b strings.Builder
	failures := report.Failures
	if len(failures) == 0 {
		fmt.Fprintf(&b, "No failure reasons have been recorded for %d down events (%d minutes of downtime).\n",
			report.Summary.DownRecords, report.Summary.DowntimeMinutes)
		b.WriteString("Recording a reason for each stop will make a Pareto analysis possible.")
		return b.String()
	}

	total := failures.TotalMinutes()
	top := failures[0]
	fmt.Fprintf(&b, "Failure reason Pareto analysis (%d reasons, %d minutes total):\n", len(failures), total)
	cumulative := 0
	for i, f := range failures {
		if i >= r.topN {
			break
		}
		cumulative += f.Minutes
		fmt.Fprintf(&b, "%d. %s: %d min, %d events (cumulative %.1f%%)\n",
			i+1, f.Reason, f.Minutes, f.Count, RoundPct(percentOf(cumulative, total)))
	}
	fmt.Fprintf(&b, "Top reason: %s accounts for %.1f%% of recorded downtime. Addressing it first gives the biggest gain.",
		top.Reason, RoundPct(percentOf(top.Minutes, total)))
	return b.String()
}

func (r *TemplateRenderer) renderAvailability(report models.OEEReport) string {
	var b strings.Builder
	s := report.Summary
	fmt.Fprintf(&b, "Overall availability is %.1f%% (%d min running, %d min down). %s\n",
		RoundPct(s.AvailabilityPct), s.RuntimeMinutes, s.DowntimeMinutes, benchmarkSentence(s.AvailabilityPct))
	b.WriteString("Availability by equipment (lowest first):\n")
	for i, agg := range r.top(report.Ranking) {
		fmt.Fprintf(&b, "%d. %s: %.1f%% [%s]\n", i+1, agg.Name, RoundPct(agg.AvailabilityPct), ClassifyAvailability(agg.AvailabilityPct))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *TemplateRenderer) renderDowntime(report models.OEEReport) string {
	var b strings.Builder
	s := report.Summary
	fmt.Fprintf(&b, "Total downtime is %d minutes across %d down events.\n", s.DowntimeMinutes, s.DownRecords)

	sorted := make([]models.EquipmentAggregate, len(report.Ranking))
	copy(sorted, report.Ranking)
	sortByDowntimeDesc(sorted)
	b.WriteString("Downtime by equipment:\n")
	for i, agg := range r.top(sorted) {
		fmt.Fprintf(&b, "%d. %s: %d min (%d incidents)\n", i+1, agg.Name, agg.DowntimeMinutes, agg.IncidentCount)
	}
	if len(report.Failures) > 0 {
		top := report.Failures[0]
		fmt.Fprintf(&b, "Largest contributor: %s (%d min).", top.Reason, top.Minutes)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *TemplateRenderer) renderDataQuery(report models.OEEReport) string {
	s := report.Summary
	text := fmt.Sprintf("There are %d status records for %d equipment (%d running, %d down, %d other).",
		s.TotalRecords, s.EquipmentCount, s.RunningRecords, s.DownRecords,
		s.TotalRecords-s.RunningRecords-s.DownRecords)
	if s.FirstDate != "" {
		text += fmt.Sprintf(" The data covers %s to %s.", s.FirstDate, s.LastDate)
	}
	return text
}

func (r *TemplateRenderer) renderGeneral(report models.OEEReport) string {
	var b strings.Builder
	s := report.Summary
	fmt.Fprintf(&b, "Overall availability is %.1f%% across %d equipment. %s\n",
		RoundPct(s.AvailabilityPct), s.EquipmentCount, benchmarkSentence(s.AvailabilityPct))
	incidents := 0
	for _, agg := range report.Ranking {
		incidents += agg.IncidentCount
	}
	fmt.Fprintf(&b, "Total incidents: %d (%d min of downtime).\n", incidents, s.DowntimeMinutes)
	if len(report.Ranking) > 0 {
		worst := report.Ranking[0]
		fmt.Fprintf(&b, "Priority equipment: %s (%.1f%% availability).\n", worst.Name, RoundPct(worst.AvailabilityPct))
	}
	if len(report.Failures) > 0 {
		fmt.Fprintf(&b, "Top failure reason: %s (%d min).\n", report.Failures[0].Reason, report.Failures[0].Minutes)
	}
	b.WriteString("Ask about availability, downtime or failure causes for more detail.")
	return b.String()
}

func (r *TemplateRenderer) top(ranking []models.EquipmentAggregate) []models.EquipmentAggregate {
	if len(ranking) > r.topN {
		return ranking[:r.topN]
	}
	return ranking
}

func benchmarkSentence(pct float64) string {
	gap := WorldClassOEE - pct
	switch ClassifyAvailability(pct) {
	case ClassGood:
		return fmt.Sprintf("This meets the world-class benchmark of %.0f%%.", WorldClassOEE)
	case ClassWarning:
		return fmt.Sprintf("This is %.1f points below the world-class benchmark of %.0f%%.", RoundPct(gap), WorldClassOEE)
	default:
		return fmt.Sprintf("This is below the acceptable level of %.0f%% and %.1f points short of world-class (%.0f%%).",
			AcceptableOEE, RoundPct(gap), WorldClassOEE)
	}
}

func percentOf(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}
