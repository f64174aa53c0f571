package domain

import "time"

// Stats 留言统计
type Stats struct {
	Total          int64     `json:"total"`
	Unread         int64     `json:"unread"`
	Read           int64     `json:"read"`
	Replied        int64     `json:"replied"`
	RecentMessages int64     `json:"recentMessages"` // 最近 30 天
	TodayMessages  int64     `json:"todayMessages"`  // 本地时区今日零点之后
	LastUpdated    time.Time `json:"lastUpdated"`
}

// ListQuery 后台留言列表的查询条件
type ListQuery struct {
	Status   string // 非法状态值会被忽略
	Page     int
	Limit    int
	DateFrom *time.Time
	DateTo   *time.Time
}

// Pagination 分页信息
type Pagination struct {
	Current       int   `json:"current"`
	Total         int   `json:"total"` // 总页数
	Count         int   `json:"count"` // 本页条数
	TotalMessages int64 `json:"totalMessages"`
}

// MessagePage 一页留言
type MessagePage struct {
	Messages   []Message  `json:"messages"`
	Pagination Pagination `json:"pagination"`
}

// DateRange 按日期查询时实际使用的闭区间
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
