package services

import (
	"sort"
	"strings"
	"sync"
	"time"

	"oee-copilot/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// ダッシュボードが扱う最長期間。これより古いリクエストログは破棄する
const monitoringRetention = 7 * 24 * time.Hour

// 記録対象外のパス
var unmonitoredPrefixes = []string{"/api/v1/admin", "/api/v1/monitoring", "/metrics"}

// RequestLog は単一のリクエストログを表します。
type RequestLog struct {
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"statusCode"`
	ResponseTime time.Duration `json:"responseTime"`
}

// MonitoringService はAPIのモニタリング機能を提供します。
// メモリ上のダッシュボード用ログと、prometheusのメトリクスの両方に記録します。
type MonitoringService struct {
	mu       sync.RWMutex
	logs     []RequestLog
	metrics  *metrics.Metrics
	location *time.Location
	now      func() time.Time
}

// NewMonitoringService は新しいMonitoringServiceを生成します。mはnil可。
func NewMonitoringService(m *metrics.Metrics) *MonitoringService {
	return &MonitoringService{
		logs:     make([]RequestLog, 0),
		metrics:  m,
		location: time.UTC,
		now:      time.Now,
	}
}

// LogRequest はリクエストを記録し、保持期間を過ぎたログを捨てます。
func (s *MonitoringService) LogRequest(entry RequestLog) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)

	cutoff := s.now().Add(-monitoringRetention)
	drop := sort.Search(len(s.logs), func(i int) bool { return s.logs[i].Timestamp.After(cutoff) })
	if drop > 0 {
		s.logs = append(s.logs[:0:0], s.logs[drop:]...)
	}
}

// LoggingMiddleware はリクエスト情報を記録するGinミドルウェアです。
// パスはルートのテンプレート（/api/v1/sessions/:id など）で集計します。
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		for _, prefix := range unmonitoredPrefixes {
			if strings.HasPrefix(c.Request.URL.Path, prefix) {
				return
			}
		}

		elapsed := s.now().Sub(start)
		s.metrics.RecordHTTPRequest(c.Request.Method, path, c.Writer.Status(), elapsed)
		s.LogRequest(RequestLog{
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   c.Writer.Status(),
			ResponseTime: elapsed,
		})
	}
}

// TimeBucket 1時間ごとのリクエスト数
type TimeBucket struct {
	Time     string `json:"time"`
	Requests int    `json:"requests"`
}

// StatusClassCount ステータスコード区分ごとの件数
type StatusClassCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// EndpointLatency エンドポイントごとの平均応答時間（ミリ秒）
type EndpointLatency struct {
	Endpoint     string `json:"endpoint"`
	ResponseTime int64  `json:"responseTime"`
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []TimeBucket       `json:"requestsOverTime"`
	Endpoints        map[string]int     `json:"endpoints"`
	StatusCodes      []StatusClassCount `json:"statusCodes"`
	AvgResponseTimes []EndpointLatency  `json:"avgResponseTimes"`
	RecentErrors     []RequestLog       `json:"recentErrors"`
}

// GetDashboardData は直近periodHours時間のログを集計します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().In(s.location)
	since := now.Add(-time.Duration(periodHours) * time.Hour)

	filtered := make([]RequestLog, 0)
	for _, l := range s.logs {
		if l.Timestamp.After(since) {
			filtered = append(filtered, l)
		}
	}

	// 過去から現在の順に時間バケットを作る
	buckets := make([]TimeBucket, periodHours)
	index := make(map[int64]int, periodHours)
	for i := 0; i < periodHours; i++ {
		t := now.Add(-time.Duration(periodHours-1-i) * time.Hour).Truncate(time.Hour)
		buckets[i] = TimeBucket{Time: t.Format("01/02 15:00")}
		index[t.Unix()] = i
	}

	endpoints := make(map[string]int)
	classes := map[string]int{"2xx Success": 0, "4xx Client Error": 0, "5xx Server Error": 0}
	latencySum := make(map[string]time.Duration)
	latencyCount := make(map[string]int)

	for _, l := range filtered {
		if i, ok := index[l.Timestamp.In(s.location).Truncate(time.Hour).Unix()]; ok {
			buckets[i].Requests++
		}
		endpoints[l.Path]++
		switch {
		case l.StatusCode >= 200 && l.StatusCode < 300:
			classes["2xx Success"]++
		case l.StatusCode >= 400 && l.StatusCode < 500:
			classes["4xx Client Error"]++
		case l.StatusCode >= 500:
			classes["5xx Server Error"]++
		}
		latencySum[l.Path] += l.ResponseTime
		latencyCount[l.Path]++
	}

	statusCodes := make([]StatusClassCount, 0, len(classes))
	for name, v := range classes {
		statusCodes = append(statusCodes, StatusClassCount{Name: name, Value: v})
	}
	sort.Slice(statusCodes, func(i, j int) bool { return statusCodes[i].Name < statusCodes[j].Name })

	latencies := make([]EndpointLatency, 0, len(latencySum))
	for path, total := range latencySum {
		latencies = append(latencies, EndpointLatency{Endpoint: path, ResponseTime: total.Milliseconds() / int64(latencyCount[path])})
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i].Endpoint < latencies[j].Endpoint })

	recentErrors := make([]RequestLog, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	return DashboardData{
		RequestsOverTime: buckets,
		Endpoints:        endpoints,
		StatusCodes:      statusCodes,
		AvgResponseTimes: latencies,
		RecentErrors:     recentErrors,
	}
}
