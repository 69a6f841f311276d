package collection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

type Level string

const (
	LevelSuccess Level = "success"
	LevelError   Level = "error"
	LevelInfo    Level = "info"
)

// DefaultFeedCapacity is how many notifications the feed keeps.
const DefaultFeedCapacity = 50

type Notification struct {
	ID      string    `json:"id"`
	Level   Level     `json:"level"`
	Entity  string    `json:"entity,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Feed is a bounded, newest-last list of user-facing notifications.
type Feed struct {
	mu       sync.Mutex
	items    []Notification
	capacity int
	now      func() time.Time
}

func NewFeed(capacity int) *Feed {
	if capacity <= 0 {
		capacity = DefaultFeedCapacity
	}
	return &Feed{capacity: capacity, now: time.Now}
}

// Push records a notification and logs it.
func (f *Feed) Push(ctx context.Context, level Level, entity, message string) Notification {
	n := Notification{
		ID:      ulid.Make().String(),
		Level:   level,
		Entity:  entity,
		Message: message,
		At:      f.now(),
	}

	f.mu.Lock()
	f.items = append(f.items, n)
	if over := len(f.items) - f.capacity; over > 0 {
		f.items = append(f.items[:0:0], f.items[over:]...)
	}
	f.mu.Unlock()

	switch level {
	case LevelError:
		slog.WarnContext(ctx, message, "entity", entity, "notification", n.ID)
	default:
		slog.InfoContext(ctx, message, "entity", entity, "notification", n.ID)
	}
	return n
}

// Recent returns up to n notifications, newest first. n <= 0 returns all.
func (f *Feed) Recent(n int) []Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n <= 0 || n > len(f.items) {
		n = len(f.items)
	}
	out := make([]Notification, 0, n)
	for i := len(f.items) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, f.items[i])
	}
	return out
}
