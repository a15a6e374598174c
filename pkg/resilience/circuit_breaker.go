package resilience

import (
	"errors"
	"fmt"
	"time"

	"oee-copilot/pkg/logger"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen は回路が開いていて呼び出しを行わなかったことを示します。
var ErrCircuitOpen = errors.New("circuit breaker is open")

// デフォルト設定値
const (
	DefaultMaxRequests           uint32        = 1
	DefaultInterval              time.Duration = 60 * time.Second
	DefaultTimeout               time.Duration = 30 * time.Second
	DefaultFailureThreshold      uint32        = 3
	DefaultFailureRatioThreshold float64       = 0.5
	DefaultMinRequestsToTrip     uint32        = 10
)

// CircuitBreakerConfig 回路遮断器の設定
type CircuitBreakerConfig struct {
	Name                  string
	MaxRequests           uint32        // half-open状態で許可する試行数
	Interval              time.Duration // closed状態で失敗カウントをリセットする間隔
	Timeout               time.Duration // open から half-open へ移るまでの時間
	FailureThreshold      uint32        // 連続失敗でtripする回数
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32
	// IsSuccessful はエラーを失敗として数えるかを決めます。nilなら err == nil のみ成功
	IsSuccessful func(err error) bool
}

// DefaultCircuitBreakerConfig はデフォルト設定を返します。
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:                  name,
		MaxRequests:           DefaultMaxRequests,
		Interval:              DefaultInterval,
		Timeout:               DefaultTimeout,
		FailureThreshold:      DefaultFailureThreshold,
		FailureRatioThreshold: DefaultFailureRatioThreshold,
		MinRequestsToTrip:     DefaultMinRequestsToTrip,
	}
}

// CircuitBreaker はgobreakerにログ出力と状態通知を付けたものです。
type CircuitBreaker struct {
	cb     *gobreaker.CircuitBreaker
	name   string
	log    *logger.Logger
	notify func(name string, state gobreaker.State)
}

// NewCircuitBreaker は新しいCircuitBreakerを生成します。
// onStateChangeはnil可で、状態遷移のたびに呼ばれます（メトリクス連携用）。
func NewCircuitBreaker(cfg CircuitBreakerConfig, log *logger.Logger, onStateChange func(name string, state gobreaker.State)) *CircuitBreaker {
	b := &CircuitBreaker{name: cfg.Name, log: log, notify: onStateChange}
	settings := gobreaker.Settings{
		Name:         cfg.Name,
		MaxRequests:  cfg.MaxRequests,
		Interval:     cfg.Interval,
		Timeout:      cfg.Timeout,
		IsSuccessful: cfg.IsSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if counts.Requests >= cfg.MinRequestsToTrip {
				return float64(counts.TotalFailures)/float64(counts.Requests) >= cfg.FailureRatioThreshold
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warnw("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
			if b.notify != nil {
				b.notify(name, to)
			}
		},
	}
	b.cb = gobreaker.NewCircuitBreaker(settings)
	return b
}

// Execute は回路遮断器を通してfnを実行します。
// 回路が開いている場合はfnを呼ばずにErrCircuitOpenを返します。
func (b *CircuitBreaker) Execute(fn func() (string, error)) (string, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", fmt.Errorf("%w: %s", ErrCircuitOpen, b.name)
	}
	if err != nil {
		return "", err
	}
	text, _ := result.(string)
	return text, nil
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}

// Name returns the breaker name.
func (b *CircuitBreaker) Name() string {
	return b.name
}
