package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"slotbook/internal/domain"
	"slotbook/internal/models"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverStatusCache serves from the fallback while the primary is failing
// and retries the primary once per recoveryInterval.
type FailoverStatusCache struct {
	primary   domain.StatusCache
	fallback  domain.StatusCache
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64

	// dates invalidated while the primary was unreachable
	mu    sync.Mutex
	stale map[string]time.Time
}

func NewFailoverStatusCache(primary, fallback domain.StatusCache, logger *zerolog.Logger) *FailoverStatusCache {
	return &FailoverStatusCache{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		stale:    make(map[string]time.Time),
	}
}

func (c *FailoverStatusCache) markDown(err error) {
	if !c.isDown.Swap(true) {
		c.logger.Error().Err(err).Msg("Primary status cache failed, falling back to memory")
	}
	c.lastCheck.Store(time.Now().UnixNano())
}

// tryRecover flushes dates invalidated during the outage before the
// primary is trusted again.
func (c *FailoverStatusCache) tryRecover(ctx context.Context) bool {
	if !c.isDown.Load() {
		return true
	}
	if time.Since(time.Unix(0, c.lastCheck.Load())) <= recoveryInterval {
		return false
	}

	c.mu.Lock()
	dates := make([]time.Time, 0, len(c.stale))
	for _, d := range c.stale {
		dates = append(dates, d)
	}
	c.mu.Unlock()

	if err := c.primary.Invalidate(ctx, dates...); err != nil {
		c.lastCheck.Store(time.Now().UnixNano())
		return false
	}

	c.mu.Lock()
	for _, d := range dates {
		delete(c.stale, models.FormatDate(d))
	}
	c.mu.Unlock()

	c.isDown.Store(false)
	c.logger.Info().Int("flushed", len(dates)).Msg("Primary status cache recovered")
	return true
}

func (c *FailoverStatusCache) Get(ctx context.Context, date time.Time) (*models.DayStatus, error) {
	if c.tryRecover(ctx) {
		status, err := c.primary.Get(ctx, date)
		if err == nil {
			return status, nil
		}
		c.markDown(err)
	}

	return c.fallback.Get(ctx, date)
}

func (c *FailoverStatusCache) Set(ctx context.Context, status *models.DayStatus) error {
	if !c.isDown.Load() {
		err := c.primary.Set(ctx, status)
		if err == nil {
			return nil
		}
		c.markDown(err)
	}

	return c.fallback.Set(ctx, status)
}

// Invalidate always clears the fallback as well.
func (c *FailoverStatusCache) Invalidate(ctx context.Context, dates ...time.Time) error {
	if !c.isDown.Load() {
		if err := c.primary.Invalidate(ctx, dates...); err != nil {
			c.markDown(err)
		}
	}

	if c.isDown.Load() {
		c.mu.Lock()
		for _, d := range dates {
			c.stale[models.FormatDate(d)] = d
		}
		c.mu.Unlock()
	}

	return c.fallback.Invalidate(ctx, dates...)
}
