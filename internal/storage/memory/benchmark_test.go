package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"studio/backend/internal/domain"
	"studio/backend/internal/storage"
)

var benchStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func populate(b *testing.B, store *Store, n int) {
	b.Helper()
	ctx := context.Background()
	statuses := []domain.MessageStatus{domain.StatusUnread, domain.StatusRead, domain.StatusReplied}
	for i := 0; i < n; i++ {
		at := benchStart.Add(time.Duration(i) * time.Minute)
		err := store.CreateMessage(ctx, &domain.Message{
			ID:        fmt.Sprintf("msg-%d", i),
			Name:      fmt.Sprintf("Guest %d", i),
			Email:     fmt.Sprintf("guest%d@example.com", i),
			Message:   "We would like a quote for a living room refresh.",
			Status:    statuses[i%len(statuses)],
			CreatedAt: at,
			UpdatedAt: at,
		})
		if err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkMemoryStore_CreateMessage(b *testing.B) {
	store := NewStore()
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.CreateMessage(ctx, &domain.Message{
			ID:        fmt.Sprintf("msg-%d", i),
			Name:      "Guest",
			Email:     "guest@example.com",
			Message:   "Hello",
			Status:    domain.StatusUnread,
			CreatedAt: benchStart,
			UpdatedAt: benchStart,
		})
	}
}

func BenchmarkMemoryStore_GetMessage(b *testing.B) {
	store := NewStore()
	populate(b, store, 1000)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.GetMessage(ctx, fmt.Sprintf("msg-%d", i%1000))
	}
}

func BenchmarkMemoryStore_FindMessagesPage(b *testing.B) {
	store := NewStore()
	populate(b, store, 5000)
	ctx := context.Background()
	filter := storage.MessageFilter{Status: domain.StatusUnread, Skip: 20, Limit: 10}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.FindMessages(ctx, filter)
	}
}

func BenchmarkMemoryStore_CountByDateRange(b *testing.B) {
	store := NewStore()
	populate(b, store, 5000)
	ctx := context.Background()
	from := benchStart.Add(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.CountMessages(ctx, storage.MessageFilter{CreatedFrom: &from, CreatedTo: &to})
	}
}

func BenchmarkMemoryStore_IncrementRateLimit(b *testing.B) {
	store := NewStore()
	ctx := context.Background()

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_, _ = store.IncrementRateLimit(ctx, fmt.Sprintf("contact:10.0.0.%d", i%16), time.Hour)
			i++
		}
	})
}
