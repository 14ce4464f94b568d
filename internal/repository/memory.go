package repository

import (
	"context"
	"sync"
	"time"

	"slotbook/internal/models"
)

type memoryEntry struct {
	status    *models.DayStatus
	expiresAt time.Time
}

type MemoryStatusCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
}

func NewMemoryStatusCache(ttl time.Duration) *MemoryStatusCache {
	return &MemoryStatusCache{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *MemoryStatusCache) Get(_ context.Context, date time.Time) (*models.DayStatus, error) {
	key := models.FormatDate(date)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	if c.ttl > 0 && c.now().After(entry.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, nil
	}
	return copyDayStatus(entry.status), nil
}

func (c *MemoryStatusCache) Set(_ context.Context, status *models.DayStatus) error {
	c.mu.Lock()
	c.entries[models.FormatDate(status.Date)] = memoryEntry{
		status:    copyDayStatus(status),
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()
	return nil
}

func (c *MemoryStatusCache) Invalidate(_ context.Context, dates ...time.Time) error {
	c.mu.Lock()
	for _, d := range dates {
		delete(c.entries, models.FormatDate(d))
	}
	c.mu.Unlock()
	return nil
}

// copyDayStatus keeps callers from mutating cached slot slices.
func copyDayStatus(s *models.DayStatus) *models.DayStatus {
	out := *s
	out.Slots = append([]models.SlotStatus(nil), s.Slots...)
	return &out
}
