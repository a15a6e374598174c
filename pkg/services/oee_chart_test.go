package services

import (
	"testing"

	"oee-copilot/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleReport(t *testing.T) models.OEEReport {
	t.Helper()
	rows := []models.StatusLogEntry{
		row("Machine A", "running", 90, ""),
		row("Machine A", "down", 10, "Jam"),
		row("Machine B", "running", 60, ""),
		row("Machine B", "down", 40, "Belt"),
		row("Machine C", "running", 75, ""),
		row("Machine C", "down", 25, "Belt"),
	}
	report, err := BuildReport(rows)
	require.NoError(t, err)
	return report
}

func TestBuildChart_NoKeyword(t *testing.T) {
	report := sampleReport(t)
	assert.Nil(t, BuildChart(models.TopicAvailability, "What is the availability?", report))
}

func TestBuildChart_NoData(t *testing.T) {
	report, _ := BuildReport(nil)
	assert.Nil(t, BuildChart(models.TopicPareto, "show me the pareto chart", report))
	assert.Nil(t, BuildChart(models.TopicAvailability, "availability chart", report))
}

func TestBuildChart_ParetoDescending(t *testing.T) {
	chart := BuildChart(models.TopicPareto, "pareto chart of reasons", sampleReport(t))
	require.NotNil(t, chart)
	assert.Equal(t, models.ChartPareto, chart.Type)
	assert.Equal(t, []string{"Belt", "Jam"}, chart.Labels)
	require.Len(t, chart.Datasets, 1)
	assert.Equal(t, []float64{65, 10}, chart.Datasets[0].Data)
}

func TestBuildChart_ParetoPlaceholderWithoutReasons(t *testing.T) {
	report, err := BuildReport([]models.StatusLogEntry{
		row("Machine A", "running", 90, ""),
		row("Machine A", "down", 10, "-"),
	})
	require.NoError(t, err)

	chart := BuildChart(models.TopicPareto, "show the pareto", report)
	require.NotNil(t, chart)
	assert.Equal(t, []string{NoFailureReasonsLabel}, chart.Labels)
	assert.Equal(t, []float64{0}, chart.Datasets[0].Data)

	// 円グラフは原因が無ければ作らない
	assert.Nil(t, BuildChart(models.TopicPareto, "pie of reasons", report))
}

func TestBuildChart_AvailabilityColors(t *testing.T) {
	chart := BuildChart(models.TopicAvailability, "availability chart", sampleReport(t))
	require.NotNil(t, chart)
	assert.Equal(t, models.ChartBar, chart.Type)
	assert.Equal(t, []string{"Machine B", "Machine C", "Machine A"}, chart.Labels)

	ds := chart.Datasets[0]
	assert.Equal(t, []float64{60, 75, 90}, ds.Data)
	assert.Equal(t, []string{ClassCritical, ClassWarning, ClassGood}, ds.Categories)
	assert.Equal(t, []string{"#ef4444", "#f59e0b", "#22c55e"}, ds.BackgroundColor)
}

func TestBuildChart_Downtime(t *testing.T) {
	chart := BuildChart(models.TopicDowntime, "graph the downtime", sampleReport(t))
	require.NotNil(t, chart)
	assert.Equal(t, []string{"Machine B", "Machine C", "Machine A"}, chart.Labels)
	assert.Equal(t, []float64{40, 25, 10}, chart.Datasets[0].Data)
}

func TestBuildChart_PieAndTrend(t *testing.T) {
	report := sampleReport(t)

	pie := BuildChart(models.TopicGeneral, "pie chart please", report)
	require.NotNil(t, pie)
	assert.Equal(t, models.ChartPie, pie.Type)
	assert.Len(t, pie.Datasets[0].BackgroundColor, 2)

	trend := BuildChart(models.TopicGeneral, "show the trend", report)
	require.NotNil(t, trend)
	assert.Equal(t, models.ChartLine, trend.Type)
	assert.Equal(t, []string{"2024-05-01"}, trend.Labels)
	assert.Equal(t, []float64{75}, trend.Datasets[0].Data)
}

func TestBuildChart_GeneralFallsBackToAvailability(t *testing.T) {
	chart := BuildChart(models.TopicGeneral, "show me an overview", sampleReport(t))
	require.NotNil(t, chart)
	assert.Equal(t, "Availability by Equipment", chart.Title)
}
