package service

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studio/backend/internal/cache"
	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
	recentWindow    = 30 // 天
	statsCacheKey   = "stats"
)

// MessageObserver 接收留言变更事件，实现方不能阻塞调用方
type MessageObserver interface {
	OnMessageEvent(ctx context.Context, event domain.MessageEvent)
}

// MessageObserverFunc 函数形式的观察者
type MessageObserverFunc func(ctx context.Context, event domain.MessageEvent)

// OnMessageEvent 调用函数本身
func (f MessageObserverFunc) OnMessageEvent(ctx context.Context, event domain.MessageEvent) {
	f(ctx, event)
}

// MessageService 封装联系留言的业务操作，不持有请求间状态。
type MessageService struct {
	repo      storage.MessageRepository
	now       func() time.Time
	loc       *time.Location
	observers []MessageObserver
	stats     *cache.LocalCache[domain.Stats]
	log       *zap.Logger

	// statsGen 每次写入递增，统计期间发生过写入的结果不进缓存
	statsMu  sync.Mutex
	statsGen uint64
}

// MessageOption 配置 MessageService
type MessageOption func(*MessageService)

// WithClock 注入时钟，测试中使用固定时间
func WithClock(now func() time.Time) MessageOption {
	return func(s *MessageService) { s.now = now }
}

// WithLocation 设置日历日期所在时区
func WithLocation(loc *time.Location) MessageOption {
	return func(s *MessageService) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithObservers 注册留言事件观察者
func WithObservers(observers ...MessageObserver) MessageOption {
	return func(s *MessageService) { s.observers = append(s.observers, observers...) }
}

// WithStatsCache 缓存统计结果 ttl 时长，任何留言变更都会使缓存失效。
// ttl <= 0 时不缓存。
func WithStatsCache(ttl time.Duration) MessageOption {
	return func(s *MessageService) {
		if ttl > 0 {
			s.stats = cache.NewLocalCache[domain.Stats](1, ttl)
		}
	}
}

// WithLogger 设置日志
func WithLogger(log *zap.Logger) MessageOption {
	return func(s *MessageService) {
		if log != nil {
			s.log = log
		}
	}
}

// NewMessageService 创建留言业务服务。
func NewMessageService(repo storage.MessageRepository, opts ...MessageOption) *MessageService {
	s := &MessageService{
		repo: repo,
		now:  time.Now,
		loc:  time.Local,
		log:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe 追加观察者，需在服务开始处理请求前调用
func (s *MessageService) Subscribe(observer MessageObserver) {
	s.observers = append(s.observers, observer)
}

// Location 返回日历日期所在时区
func (s *MessageService) Location() *time.Location {
	return s.loc
}

// Create 校验联系表单并保存为未读留言。
func (s *MessageService) Create(ctx context.Context, input domain.ContactInput) (*domain.Message, error) {
	const op = "create message"

	valid, err := domain.ValidateMessage(input)
	if err != nil {
		return nil, domain.ValidationError(op, err)
	}

	now := s.timestamp()
	message := &domain.Message{
		ID:        uuid.NewString(),
		Name:      valid.Name,
		Email:     valid.Email,
		Message:   valid.Message,
		Status:    domain.StatusUnread,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, wrapStoreError(op, err)
	}

	s.publish(ctx, domain.EventMessageCreated, message)
	return message, nil
}

// Get 获取单条留言。
func (s *MessageService) Get(ctx context.Context, id string) (*domain.Message, error) {
	const op = "get message"

	message, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, wrapStoreError(op, err)
	}
	return message, nil
}

// List 分页列出留言，非法状态值按未过滤处理。
func (s *MessageService) List(ctx context.Context, query domain.ListQuery) (*domain.MessagePage, error) {
	const op = "list messages"

	page := query.Page
	if page < 1 {
		page = 1
	}
	limit := clampLimit(query.Limit)

	// 页码过大时 skip 取上限，结果为空页
	skip := math.MaxInt
	if page-1 <= math.MaxInt/limit {
		skip = (page - 1) * limit
	}

	filter := storage.MessageFilter{
		CreatedFrom: query.DateFrom,
		CreatedTo:   query.DateTo,
		Skip:        skip,
		Limit:       limit,
	}
	if status, ok := domain.ParseStatus(query.Status); ok {
		filter.Status = status
	}

	messages, err := s.repo.FindMessages(ctx, filter)
	if err != nil {
		return nil, wrapStoreError(op, err)
	}
	total, err := s.repo.CountMessages(ctx, filter)
	if err != nil {
		return nil, wrapStoreError(op, err)
	}

	return &domain.MessagePage{
		Messages: messages,
		Pagination: domain.Pagination{
			Current:       page,
			Total:         int((total + int64(limit) - 1) / int64(limit)),
			Count:         len(messages),
			TotalMessages: total,
		},
	}, nil
}

// UpdateStatus 修改留言状态，非法状态不会触达存储。
func (s *MessageService) UpdateStatus(ctx context.Context, id string, status string) (*domain.Message, error) {
	const op = "update message status"

	parsed, ok := domain.ParseStatus(status)
	if !ok {
		return nil, domain.ValidationError(op, domain.ErrInvalidStatus)
	}

	message, err := s.repo.UpdateMessageStatus(ctx, id, parsed, s.timestamp())
	if err != nil {
		return nil, wrapStoreError(op, err)
	}

	s.publish(ctx, domain.EventMessageUpdated, message)
	return message, nil
}

// Delete 删除留言并返回被删除的记录。
func (s *MessageService) Delete(ctx context.Context, id string) (*domain.Message, error) {
	const op = "delete message"

	message, err := s.repo.DeleteMessage(ctx, id)
	if err != nil {
		return nil, wrapStoreError(op, err)
	}

	s.publish(ctx, domain.EventMessageDeleted, message)
	return message, nil
}

// Stats 汇总各状态数量、最近 30 天与今日新增数量。
func (s *MessageService) Stats(ctx context.Context) (*domain.Stats, error) {
	const op = "message stats"

	var gen uint64
	if s.stats != nil {
		if cached, ok := s.stats.Get(statsCacheKey); ok {
			return &cached, nil
		}
		gen = s.statsGeneration()
	}

	now := s.now().In(s.loc)
	thirtyDaysAgo := now.AddDate(0, 0, -recentWindow)
	startOfDay := domain.StartOfDay(now, s.loc)

	stats := &domain.Stats{LastUpdated: now}
	counters := []struct {
		target *int64
		filter storage.MessageFilter
	}{
		{&stats.Total, storage.MessageFilter{}},
		{&stats.Unread, storage.MessageFilter{Status: domain.StatusUnread}},
		{&stats.Read, storage.MessageFilter{Status: domain.StatusRead}},
		{&stats.Replied, storage.MessageFilter{Status: domain.StatusReplied}},
		{&stats.RecentMessages, storage.MessageFilter{CreatedFrom: &thirtyDaysAgo}},
		{&stats.TodayMessages, storage.MessageFilter{CreatedFrom: &startOfDay}},
	}

	for _, c := range counters {
		count, err := s.repo.CountMessages(ctx, c.filter)
		if err != nil {
			return nil, wrapStoreError(op, err)
		}
		*c.target = count
	}

	if s.stats != nil {
		s.cacheStats(gen, *stats)
	}
	return stats, nil
}

// Recent 返回最新的若干条留言，默认 10 条，最多 100 条。
func (s *MessageService) Recent(ctx context.Context, limit int) ([]domain.Message, error) {
	const op = "recent messages"

	messages, err := s.repo.FindMessages(ctx, storage.MessageFilter{Limit: clampLimit(limit)})
	if err != nil {
		return nil, wrapStoreError(op, err)
	}
	return messages, nil
}

// ByDateRange 按日历日期闭区间查询，结束日期延伸到当天 23:59:59.999。
func (s *MessageService) ByDateRange(ctx context.Context, startDate, endDate string) ([]domain.Message, domain.DateRange, error) {
	const op = "messages by date range"

	start, err := domain.ParseDate(startDate, s.loc)
	if err != nil {
		return nil, domain.DateRange{}, domain.ValidationError(op, err)
	}
	end, err := domain.ParseDate(endDate, s.loc)
	if err != nil {
		return nil, domain.DateRange{}, domain.ValidationError(op, err)
	}
	end = domain.EndOfDay(end, s.loc)

	dateRange := domain.DateRange{Start: start, End: end}
	messages, err := s.repo.FindMessages(ctx, storage.MessageFilter{CreatedFrom: &start, CreatedTo: &end})
	if err != nil {
		return nil, dateRange, wrapStoreError(op, err)
	}
	return messages, dateRange, nil
}

// publish 通知观察者，观察者的 panic 只记录日志
func (s *MessageService) publish(ctx context.Context, eventType domain.MessageEventType, message *domain.Message) {
	if s.stats != nil {
		s.invalidateStats()
	}
	if len(s.observers) == 0 {
		return
	}

	event := domain.MessageEvent{Type: eventType, Message: *message, At: s.now()}
	for _, observer := range s.observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("message observer panicked",
						zap.String("event", string(eventType)),
						zap.Any("panic", r),
					)
				}
			}()
			observer.OnMessageEvent(ctx, event)
		}()
	}
}

// timestamp 落库时间精确到毫秒，与 MongoDB 和 SQL 存储一致
func (s *MessageService) timestamp() time.Time {
	return s.now().Truncate(time.Millisecond)
}

func (s *MessageService) statsGeneration() uint64 {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.statsGen
}

// cacheStats 只有统计开始后没有写入时才缓存
func (s *MessageService) cacheStats(gen uint64, stats domain.Stats) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if gen == s.statsGen {
		s.stats.Set(statsCacheKey, stats)
	}
}

func (s *MessageService) invalidateStats() {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.statsGen++
	s.stats.Clear()
}

func clampLimit(limit int) int {
	if limit < 1 {
		return defaultPageSize
	}
	if limit > maxPageSize {
		return maxPageSize
	}
	return limit
}

// wrapStoreError 将存储层错误转换为领域错误
func wrapStoreError(op string, err error) error {
	if errors.Is(err, storage.ErrMessageNotFound) {
		return domain.NotFoundError(op, domain.ErrMessageNotFound)
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	return domain.UnavailableError(op, err)
}
