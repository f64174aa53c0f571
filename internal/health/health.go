package health

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"studio/backend/internal/pool"
	"studio/backend/internal/storage"
)

const (
	checkTimeout       = 5 * time.Second
	goroutineThreshold = 10000
)

// ErrQueueSaturated 通知队列已满
var ErrQueueSaturated = errors.New("notification queue saturated")

// HealthChecker 健康检查器
type HealthChecker struct {
	health  healthcheck.Handler
	store   storage.Store
	workers *pool.WorkerPool
	logger  *zap.Logger
}

// NewHealthChecker 创建健康检查器
//
// 参数:
//   - store: 留言存储，混合存储的 Health 会同时检查 Redis
//   - workers: 通知协程池，可为 nil
//   - logger: 日志
func NewHealthChecker(store storage.Store, workers *pool.WorkerPool, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	hc := &HealthChecker{
		health:  healthcheck.NewHandler(),
		store:   store,
		workers: workers,
		logger:  logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 存活检查只看存储和协程数，就绪检查额外看通知队列
func (hc *HealthChecker) addChecks() {
	hc.health.AddLivenessCheck("store", healthcheck.Timeout(hc.checkStore, checkTimeout))
	hc.health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(goroutineThreshold))

	if hc.workers != nil {
		hc.health.AddReadinessCheck("notify-queue", hc.checkQueue)
	}
}

func (hc *HealthChecker) checkStore() error {
	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	if err := hc.store.Health(ctx); err != nil {
		hc.logger.Warn("store health check failed", zap.Error(err))
		return err
	}
	return nil
}

func (hc *HealthChecker) checkQueue() error {
	if hc.workers.Saturated() {
		return ErrQueueSaturated
	}
	return nil
}

// Handler 返回健康检查处理器，包含 /live 与 /ready
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint 存活检查
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint 就绪检查
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}

// CheckHealth 执行一次完整检查，返回各项结果
func (hc *HealthChecker) CheckHealth(ctx context.Context) (map[string]string, bool) {
	results := make(map[string]string)
	healthy := true

	checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	if err := hc.store.Health(checkCtx); err != nil {
		results["store"] = fmt.Sprintf("ERROR: %v", err)
		healthy = false
	} else {
		results["store"] = "OK"
	}

	if reporter, ok := hc.store.(storage.PoolReporter); ok {
		if stats, ok := reporter.PoolStats(); ok {
			results["db_pool"] = fmt.Sprintf("OK: %d in use, %d idle, %d open, max %d",
				stats.InUse, stats.Idle, stats.Open, stats.Max)
		}
	}

	if hc.workers != nil {
		stats := hc.workers.Stats()
		if hc.workers.Saturated() {
			results["notify_queue"] = fmt.Sprintf("SATURATED: %d/%d", stats.Queued, stats.Capacity)
		} else {
			results["notify_queue"] = fmt.Sprintf("OK: %d/%d", stats.Queued, stats.Capacity)
		}
	} else {
		results["notify_queue"] = "NOT_CONFIGURED"
	}

	return results, healthy
}
