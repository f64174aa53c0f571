package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"studio/backend/internal/storage"
)

// maxTrackedClients 本地限流器最多跟踪的 IP 数，超过后清理空闲条目
const maxTrackedClients = 10000

// RateLimitRecorder 记录被限流的请求
type RateLimitRecorder interface {
	RecordRateLimited()
}

// RateLimiter 按客户端 IP 限流
//
// 配置了计数存储（Redis 或内存存储）时使用固定窗口计数，多实例共享；
// 没有计数存储或计数存储出错时退回进程内令牌桶。
type RateLimiter struct {
	counter storage.RateLimitRepository
	limit   int
	window  time.Duration
	metrics RateLimitRecorder
	log     *zap.Logger

	mu      sync.Mutex
	clients map[string]*localClient
	now     func() time.Time
}

type localClient struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter 创建限流器
//
// 参数:
//   - counter: 固定窗口计数存储，可为 nil
//   - limit: 窗口内允许的请求数，<= 0 表示不限流
//   - window: 窗口长度
//   - metrics: 限流指标，可为 nil
//   - log: 日志
func NewRateLimiter(counter storage.RateLimitRepository, limit int, window time.Duration, metrics RateLimitRecorder, log *zap.Logger) *RateLimiter {
	if window <= 0 {
		window = time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RateLimiter{
		counter: counter,
		limit:   limit,
		window:  window,
		metrics: metrics,
		log:     log,
		clients: make(map[string]*localClient),
		now:     time.Now,
	}
}

// Middleware 返回限流中间件，scope 区分不同接口的计数
func (rl *RateLimiter) Middleware(scope string, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		ip := c.ClientIP()
		allowed, remaining := rl.allow(c, scope+":"+ip)

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if !allowed {
			if rl.metrics != nil {
				rl.metrics.RecordRateLimited()
			}
			rl.log.Warn("rate limit exceeded",
				zap.String("scope", scope),
				zap.String("ip", ip),
			)
			c.Header("Retry-After", strconv.Itoa(int(rl.window.Seconds())))
			abortWithError(c, http.StatusTooManyRequests, message)
			return
		}

		c.Next()
	}
}

// allow 返回是否放行以及窗口内剩余次数
func (rl *RateLimiter) allow(c *gin.Context, key string) (bool, int) {
	if rl.counter != nil {
		count, err := rl.counter.IncrementRateLimit(c.Request.Context(), key, rl.window)
		if err == nil {
			remaining := rl.limit - int(count)
			if remaining < 0 {
				remaining = 0
			}
			return count <= int64(rl.limit), remaining
		}
		rl.log.Warn("rate limit counter unavailable, using local limiter",
			zap.String("key", key),
			zap.Error(err),
		)
	}
	return rl.allowLocal(key)
}

func (rl *RateLimiter) allowLocal(key string) (bool, int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	client, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) >= maxTrackedClients {
			rl.pruneLocked(now)
		}
		// 整个窗口内最多 limit 次，令牌按窗口均匀恢复
		client = &localClient{
			limiter: rate.NewLimiter(rate.Every(rl.window/time.Duration(rl.limit)), rl.limit),
		}
		rl.clients[key] = client
	}
	client.lastSeen = now

	allowed := client.limiter.AllowN(now, 1)
	remaining := int(client.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining
}

// pruneLocked 删除超过一个窗口未出现的客户端
func (rl *RateLimiter) pruneLocked(now time.Time) {
	for key, client := range rl.clients {
		if now.Sub(client.lastSeen) > rl.window {
			delete(rl.clients, key)
		}
	}
}
