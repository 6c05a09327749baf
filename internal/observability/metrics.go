package observability

import (
	"context"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yungbote/ghiblify-backend/internal/platform/envutil"
	"github.com/yungbote/ghiblify-backend/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge
	apiErrors   *Counter

	ledgerOps      *CounterVec
	paymentsTotal  *CounterVec
	creditsGranted *CounterVec
	transforms     *CounterVec
	transformTime  *HistogramVec
	celoSyncEvents *Counter
	celoLastBlock  *Gauge

	redisUp   *Gauge
	redisPing *Gauge

	workerTotal *CounterVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current is nil unless Init ran with metrics enabled; every method accepts a
// nil receiver.
func Current() *Metrics {
	return instance
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("Metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("ghiblify_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"ghiblify_api_request_duration_seconds",
			"API request latency in seconds by method/route.",
			[]string{"method", "route"},
			[]float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		),
		apiInflight: NewGauge("ghiblify_api_inflight_requests", "In-flight API requests."),
		apiErrors:   NewCounter("ghiblify_api_requests_error_total", "API requests answered with a 5xx status."),

		ledgerOps:      NewCounterVec("ghiblify_ledger_operations_total", "Credit ledger mutations by operation/outcome.", []string{"operation", "outcome"}),
		paymentsTotal:  NewCounterVec("ghiblify_payments_total", "Payment credit attempts by method/status.", []string{"method", "status"}),
		creditsGranted: NewCounterVec("ghiblify_credits_granted_total", "Credits granted by payment method.", []string{"method"}),
		transforms:     NewCounterVec("ghiblify_transforms_total", "Image transforms by provider/status.", []string{"provider", "status"}),
		transformTime: NewHistogramVec(
			"ghiblify_transform_duration_seconds",
			"Provider round trip in seconds.",
			[]string{"provider"},
			[]float64{1, 2, 5, 10, 20, 30, 60, 90, 120},
		),
		celoSyncEvents: NewCounter("ghiblify_celo_events_processed_total", "CreditsPurchased events credited by the poller."),
		celoLastBlock:  NewGauge("ghiblify_celo_last_block", "Last CELO block scanned."),

		redisUp:   NewGauge("ghiblify_redis_up", "Redis reachability (1 up, 0 down)."),
		redisPing: NewGauge("ghiblify_redis_ping_seconds", "Redis ping latency in seconds."),

		workerTotal: NewCounterVec("ghiblify_worker_runs_total", "Background task runs by task/status.", []string{"task", "status"}),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	all := []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight, m.apiErrors,
		m.ledgerOps, m.paymentsTotal, m.creditsGranted,
		m.transforms, m.transformTime,
		m.celoSyncEvents, m.celoLastBlock,
		m.redisUp, m.redisPing,
		m.workerTotal,
	}
	for _, c := range all {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "UNKNOWN"
	}
	if route == "" {
		route = "unknown"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route)
	if isServerErrorStatus(status) {
		m.apiErrors.Inc()
	}
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

// IncLedger counts one ledger mutation; outcome is "ok" or a short failure tag.
func (m *Metrics) IncLedger(operation, outcome string) {
	if m == nil {
		return
	}
	m.ledgerOps.Inc(operation, outcome)
}

func (m *Metrics) ObservePayment(method, status string, credits int64) {
	if m == nil {
		return
	}
	m.paymentsTotal.Inc(method, status)
	if credits > 0 {
		m.creditsGranted.Add(float64(credits), method)
	}
}

func (m *Metrics) ObserveTransform(provider, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.transforms.Inc(provider, status)
	m.transformTime.Observe(dur.Seconds(), provider)
}

func (m *Metrics) ObserveCeloSync(processed int, toBlock uint64) {
	if m == nil {
		return
	}
	m.celoSyncEvents.Add(float64(processed))
	m.celoLastBlock.Set(float64(toBlock))
}

func (m *Metrics) IncWorkerRun(task, status string) {
	if m == nil {
		return
	}
	m.workerTotal.Inc(task, status)
}

// StartRedisCollector pings rdb on the scrape interval until ctx ends.
func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := envutil.Duration("METRICS_SCRAPE_INTERVAL", 10*time.Second)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

func isServerErrorStatus(status string) bool {
	status = strings.TrimSpace(status)
	return len(status) == 3 && status[0] == '5'
}
