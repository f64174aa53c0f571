package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
	"studio/backend/internal/storage/memory"
)

// MockRepo 模拟留言存储
type MockRepo struct {
	mock.Mock
}

func (m *MockRepo) CreateMessage(ctx context.Context, message *domain.Message) error {
	args := m.Called(ctx, message)
	return args.Error(0)
}

func (m *MockRepo) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockRepo) FindMessages(ctx context.Context, filter storage.MessageFilter) ([]domain.Message, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockRepo) CountMessages(ctx context.Context, filter storage.MessageFilter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepo) UpdateMessageStatus(ctx context.Context, id string, status domain.MessageStatus, updatedAt time.Time) (*domain.Message, error) {
	args := m.Called(ctx, id, status, updatedAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockRepo) DeleteMessage(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type recordingObserver struct {
	events []domain.MessageEvent
}

func (r *recordingObserver) OnMessageEvent(_ context.Context, event domain.MessageEvent) {
	r.events = append(r.events, event)
}

func newTestService(t *testing.T, start time.Time) (*MessageService, *memory.Store, *fakeClock, *recordingObserver) {
	t.Helper()
	store := memory.NewStore()
	clock := &fakeClock{now: start}
	observer := &recordingObserver{}
	svc := NewMessageService(store,
		WithClock(clock.Now),
		WithLocation(time.UTC),
		WithObservers(observer),
	)
	return svc, store, clock, observer
}

func validInput() domain.ContactInput {
	return domain.ContactInput{
		Name:    "  Ada Lovelace ",
		Email:   " Ada@Example.COM ",
		Message: " We need a new kitchen. ",
	}
}

func TestMessageService_Create(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 4, 10, 9, 30, 0, 0, time.UTC)

	t.Run("创建成功", func(t *testing.T) {
		svc, store, _, observer := newTestService(t, start)

		msg, err := svc.Create(ctx, validInput())
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, "Ada Lovelace", msg.Name)
		assert.Equal(t, "ada@example.com", msg.Email)
		assert.Equal(t, "We need a new kitchen.", msg.Message)
		assert.Equal(t, domain.StatusUnread, msg.Status)
		assert.Equal(t, start, msg.CreatedAt)
		assert.Equal(t, msg.CreatedAt, msg.UpdatedAt)

		stored, err := store.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, *msg, *stored)

		require.Len(t, observer.events, 1)
		assert.Equal(t, domain.EventMessageCreated, observer.events[0].Type)
		assert.Equal(t, msg.ID, observer.events[0].Message.ID)
	})

	t.Run("每次生成不同ID", func(t *testing.T) {
		svc, _, _, _ := newTestService(t, start)
		a, err := svc.Create(ctx, validInput())
		require.NoError(t, err)
		b, err := svc.Create(ctx, validInput())
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)
	})

	t.Run("字段缺失", func(t *testing.T) {
		svc, store, _, observer := newTestService(t, start)
		input := validInput()
		input.Message = "   "

		_, err := svc.Create(ctx, input)
		require.Error(t, err)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		assert.ErrorIs(t, err, domain.ErrMissingField)

		count, _ := store.CountMessages(ctx, storage.MessageFilter{})
		assert.Zero(t, count)
		assert.Empty(t, observer.events)
	})

	t.Run("邮箱格式错误", func(t *testing.T) {
		svc, _, _, _ := newTestService(t, start)
		input := validInput()
		input.Email = "not-an-email"

		_, err := svc.Create(ctx, input)
		assert.ErrorIs(t, err, domain.ErrInvalidEmail)
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
	})

	t.Run("存储故障", func(t *testing.T) {
		repo := new(MockRepo)
		boom := errors.New("connection refused")
		repo.On("CreateMessage", mock.Anything, mock.Anything).Return(boom)
		svc := NewMessageService(repo)

		_, err := svc.Create(ctx, validInput())
		require.Error(t, err)
		assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
		assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "create message")
		repo.AssertExpectations(t)
	})
}

func TestMessageService_TimestampsMillisecondPrecision(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 4, 10, 9, 30, 0, 123456789, time.UTC)
	svc, store, clock, _ := newTestService(t, start)

	msg, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 10, 9, 30, 0, 123000000, time.UTC), msg.CreatedAt)
	assert.Equal(t, msg.CreatedAt, msg.UpdatedAt)

	clock.Advance(time.Microsecond * 1500)
	updated, err := svc.UpdateStatus(ctx, msg.ID, "read")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 4, 10, 9, 30, 0, 124000000, time.UTC), updated.UpdatedAt)

	stored, err := store.GetMessage(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.UpdatedAt, stored.UpdatedAt)
}

func TestMessageService_GetUpdateDelete(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 4, 10, 9, 30, 0, 0, time.UTC)
	svc, _, clock, observer := newTestService(t, start)

	msg, err := svc.Create(ctx, validInput())
	require.NoError(t, err)

	got, err := svc.Get(ctx, msg.ID)
	require.NoError(t, err)
	assert.Equal(t, msg.ID, got.ID)

	_, err = svc.Get(ctx, "missing")
	assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	assert.ErrorIs(t, err, domain.ErrMessageNotFound)

	t.Run("非法状态不修改记录", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, msg.ID, "archived")
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)

		_, err = svc.UpdateStatus(ctx, msg.ID, "")
		assert.ErrorIs(t, err, domain.ErrInvalidStatus)

		unchanged, _ := svc.Get(ctx, msg.ID)
		assert.Equal(t, domain.StatusUnread, unchanged.Status)
		assert.Equal(t, start, unchanged.UpdatedAt)
	})

	t.Run("更新状态刷新updatedAt", func(t *testing.T) {
		clock.Advance(2 * time.Hour)
		updated, err := svc.UpdateStatus(ctx, msg.ID, "replied")
		require.NoError(t, err)
		assert.Equal(t, domain.StatusReplied, updated.Status)
		assert.Equal(t, start, updated.CreatedAt)
		assert.Equal(t, start.Add(2*time.Hour), updated.UpdatedAt)

		// 同状态再次设置依然成功
		clock.Advance(time.Minute)
		again, err := svc.UpdateStatus(ctx, msg.ID, "replied")
		require.NoError(t, err)
		assert.True(t, again.UpdatedAt.After(updated.UpdatedAt))
	})

	t.Run("更新不存在的留言", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, "missing", "read")
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	})

	t.Run("删除", func(t *testing.T) {
		deleted, err := svc.Delete(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, msg.ID, deleted.ID)
		assert.Equal(t, "Ada Lovelace", deleted.Name)

		_, err = svc.Get(ctx, msg.ID)
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))

		_, err = svc.Delete(ctx, msg.ID)
		assert.Equal(t, domain.KindNotFound, domain.KindOf(err))
	})

	var types []domain.MessageEventType
	for _, e := range observer.events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []domain.MessageEventType{
		domain.EventMessageCreated,
		domain.EventMessageUpdated,
		domain.EventMessageUpdated,
		domain.EventMessageDeleted,
	}, types)
}

func seedService(t *testing.T, svc *MessageService, clock *fakeClock, n int, step time.Duration) []*domain.Message {
	t.Helper()
	out := make([]*domain.Message, 0, n)
	for i := 0; i < n; i++ {
		msg, err := svc.Create(context.Background(), domain.ContactInput{
			Name:    fmt.Sprintf("Guest %d", i),
			Email:   fmt.Sprintf("guest%d@example.com", i),
			Message: "Hello studio",
		})
		require.NoError(t, err)
		out = append(out, msg)
		clock.Advance(step)
	}
	return out
}

func TestMessageService_List(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	svc, _, clock, _ := newTestService(t, start)
	seeded := seedService(t, svc, clock, 25, time.Hour)

	t.Run("默认分页", func(t *testing.T) {
		page, err := svc.List(ctx, domain.ListQuery{})
		require.NoError(t, err)
		assert.Len(t, page.Messages, 10)
		assert.Equal(t, domain.Pagination{Current: 1, Total: 3, Count: 10, TotalMessages: 25}, page.Pagination)
		assert.Equal(t, seeded[24].ID, page.Messages[0].ID)
	})

	t.Run("最后一页", func(t *testing.T) {
		page, err := svc.List(ctx, domain.ListQuery{Page: 3, Limit: 10})
		require.NoError(t, err)
		assert.Len(t, page.Messages, 5)
		assert.Equal(t, 5, page.Pagination.Count)
		assert.Equal(t, seeded[0].ID, page.Messages[4].ID)
	})

	t.Run("超出总页数返回空页", func(t *testing.T) {
		page, err := svc.List(ctx, domain.ListQuery{Page: 9, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, page.Messages)
		assert.Equal(t, 9, page.Pagination.Current)
		assert.Equal(t, int64(25), page.Pagination.TotalMessages)
	})

	t.Run("极大页码不溢出", func(t *testing.T) {
		page, err := svc.List(ctx, domain.ListQuery{Page: math.MaxInt, Limit: 10})
		require.NoError(t, err)
		assert.Empty(t, page.Messages)
		assert.Equal(t, math.MaxInt, page.Pagination.Current)
		assert.Equal(t, int64(25), page.Pagination.TotalMessages)
	})

	t.Run("参数归一化", func(t *testing.T) {
		page, err := svc.List(ctx, domain.ListQuery{Page: -3, Limit: 1000})
		require.NoError(t, err)
		assert.Equal(t, 1, page.Pagination.Current)
		assert.Equal(t, 1, page.Pagination.Total)
		assert.Len(t, page.Messages, 25)
	})

	t.Run("状态过滤与非法状态", func(t *testing.T) {
		_, err := svc.UpdateStatus(ctx, seeded[3].ID, "read")
		require.NoError(t, err)

		page, err := svc.List(ctx, domain.ListQuery{Status: "read"})
		require.NoError(t, err)
		require.Len(t, page.Messages, 1)
		assert.Equal(t, seeded[3].ID, page.Messages[0].ID)

		page, err = svc.List(ctx, domain.ListQuery{Status: "bogus"})
		require.NoError(t, err)
		assert.Equal(t, int64(25), page.Pagination.TotalMessages)
	})

	t.Run("时间区间", func(t *testing.T) {
		from := start.Add(5 * time.Hour)
		to := start.Add(9 * time.Hour)
		page, err := svc.List(ctx, domain.ListQuery{DateFrom: &from, DateTo: &to})
		require.NoError(t, err)
		assert.Equal(t, int64(5), page.Pagination.TotalMessages)
	})

	t.Run("空存储", func(t *testing.T) {
		empty, _, _, _ := newTestService(t, start)
		page, err := empty.List(ctx, domain.ListQuery{})
		require.NoError(t, err)
		assert.Empty(t, page.Messages)
		assert.Equal(t, 0, page.Pagination.Total)
	})
}

func TestMessageService_Stats(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 4, 30, 15, 0, 0, 0, time.UTC)
	svc, store, clock, _ := newTestService(t, now)

	put := func(id string, status domain.MessageStatus, at time.Time) {
		require.NoError(t, store.CreateMessage(ctx, &domain.Message{
			ID: id, Name: "n", Email: "e@example.com", Message: "m",
			Status: status, CreatedAt: at, UpdatedAt: at,
		}))
	}
	put("old", domain.StatusReplied, now.AddDate(0, 0, -45))
	put("month", domain.StatusRead, now.AddDate(0, 0, -10))
	put("yesterday", domain.StatusUnread, time.Date(2025, 4, 29, 23, 0, 0, 0, time.UTC))
	put("today", domain.StatusUnread, time.Date(2025, 4, 30, 1, 0, 0, 0, time.UTC))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.Total)
	assert.Equal(t, int64(2), stats.Unread)
	assert.Equal(t, int64(1), stats.Read)
	assert.Equal(t, int64(1), stats.Replied)
	assert.Equal(t, int64(3), stats.RecentMessages)
	assert.Equal(t, int64(1), stats.TodayMessages)
	assert.Equal(t, clock.Now(), stats.LastUpdated)
	assert.Equal(t, stats.Total, stats.Unread+stats.Read+stats.Replied)
}

func TestMessageService_StatsStoreFailure(t *testing.T) {
	repo := new(MockRepo)
	repo.On("CountMessages", mock.Anything, mock.Anything).Return(int64(0), errors.New("timeout"))
	svc := NewMessageService(repo)

	_, err := svc.Stats(context.Background())
	assert.Equal(t, domain.KindUnavailable, domain.KindOf(err))
	assert.Contains(t, err.Error(), "message stats")
}

func TestMessageService_StatsCache(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepo)
	repo.On("CountMessages", mock.Anything, mock.Anything).Return(int64(2), nil)
	repo.On("CreateMessage", mock.Anything, mock.Anything).Return(nil)
	svc := NewMessageService(repo, WithStatsCache(time.Minute))

	first, err := svc.Stats(ctx)
	require.NoError(t, err)
	second, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	repo.AssertNumberOfCalls(t, "CountMessages", 6)

	// 新留言使缓存失效
	_, err = svc.Create(ctx, validInput())
	require.NoError(t, err)
	_, err = svc.Stats(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "CountMessages", 12)
}

func TestMessageService_StatsCacheSkipsResultRacingAWrite(t *testing.T) {
	ctx := context.Background()
	repo := new(MockRepo)
	repo.On("CreateMessage", mock.Anything, mock.Anything).Return(nil)

	counting := make(chan struct{})
	resume := make(chan struct{})
	var once sync.Once
	repo.On("CountMessages", mock.Anything, mock.Anything).Return(int64(1), nil).Run(func(mock.Arguments) {
		once.Do(func() {
			close(counting)
			<-resume
		})
	})
	svc := NewMessageService(repo, WithStatsCache(time.Minute))

	done := make(chan error, 1)
	go func() {
		_, err := svc.Stats(ctx)
		done <- err
	}()

	// 统计进行中写入一条留言
	<-counting
	_, err := svc.Create(ctx, validInput())
	require.NoError(t, err)
	close(resume)
	require.NoError(t, <-done)
	repo.AssertNumberOfCalls(t, "CountMessages", 6)

	// 旧结果没有进缓存，下一次重新统计
	_, err = svc.Stats(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "CountMessages", 12)

	// 没有并发写入时正常缓存
	_, err = svc.Stats(ctx)
	require.NoError(t, err)
	repo.AssertNumberOfCalls(t, "CountMessages", 12)
}

func TestMessageService_Recent(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	svc, _, clock, _ := newTestService(t, start)
	seeded := seedService(t, svc, clock, 15, time.Minute)

	msgs, err := svc.Recent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, msgs, 10)
	assert.Equal(t, seeded[14].ID, msgs[0].ID)

	msgs, err = svc.Recent(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, msgs, 3)

	repo := new(MockRepo)
	repo.On("FindMessages", mock.Anything, storage.MessageFilter{Limit: 100}).Return([]domain.Message{}, nil)
	_, err = NewMessageService(repo).Recent(ctx, 5000)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestMessageService_ByDateRange(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, _, clock, _ := newTestService(t, start)
	// 3 月 1 日至 3 月 10 日每天中午一条
	seeded := seedService(t, svc, clock, 10, 24*time.Hour)

	t.Run("闭区间包含结束日全天", func(t *testing.T) {
		msgs, dateRange, err := svc.ByDateRange(ctx, "2025-03-03", "2025-03-05")
		require.NoError(t, err)
		require.Len(t, msgs, 3)
		assert.Equal(t, seeded[4].ID, msgs[0].ID)
		assert.Equal(t, seeded[2].ID, msgs[2].ID)
		assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), dateRange.Start)
		assert.Equal(t, time.Date(2025, 3, 5, 23, 59, 59, int(999*time.Millisecond), time.UTC), dateRange.End)
	})

	t.Run("同一天", func(t *testing.T) {
		msgs, _, err := svc.ByDateRange(ctx, "2025-03-10", "2025-03-10")
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		assert.Equal(t, seeded[9].ID, msgs[0].ID)
	})

	t.Run("开始晚于结束返回空", func(t *testing.T) {
		msgs, _, err := svc.ByDateRange(ctx, "2025-03-09", "2025-03-02")
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("非法日期", func(t *testing.T) {
		_, _, err := svc.ByDateRange(ctx, "03/01/2025", "2025-03-02")
		assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		assert.ErrorIs(t, err, domain.ErrInvalidDate)

		_, _, err = svc.ByDateRange(ctx, "2025-03-01", "")
		assert.ErrorIs(t, err, domain.ErrInvalidDate)
	})
}

func TestMessageService_ObserverPanicDoesNotFail(t *testing.T) {
	svc := NewMessageService(memory.NewStore(),
		WithObservers(MessageObserverFunc(func(context.Context, domain.MessageEvent) {
			panic("observer exploded")
		})),
	)

	msg, err := svc.Create(context.Background(), validInput())
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
}
