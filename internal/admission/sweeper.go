package admission

import (
	"context"
	"time"
)

// Start runs the eviction sweep every SweepInterval until ctx is done.
func (c *Controller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.cfg.SweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := c.Sweep(ctx); err != nil {
					c.logger.Warn("admission sweep failed", "error", err)
				}
			}
		}
	}()
}

// Sweep drops request records older than a day and deletes callers idle
// beyond IdleTTL with an empty log. It takes each caller's lock in turn,
// so it never holds up checks for other callers.
func (c *Controller) Sweep(ctx context.Context) (int, error) {
	keys, err := c.store.Keys(ctx)
	if err != nil {
		return 0, err
	}

	evicted := 0
	for _, id := range keys {
		if ctx.Err() != nil {
			return evicted, ctx.Err()
		}
		removed, err := c.sweepOne(ctx, id)
		if err != nil {
			c.logger.Warn("admission sweep skipped caller", "caller", id, "error", err)
			continue
		}
		if removed {
			evicted++
		}
	}
	if evicted > 0 {
		c.logger.Debug("admission sweep", "evicted", evicted, "callers", len(keys))
	}
	return evicted, nil
}

func (c *Controller) sweepOne(ctx context.Context, id string) (bool, error) {
	unlock := c.locks.Lock(id)
	defer unlock()

	p, version, err := c.store.Get(ctx, id)
	if err != nil || p == nil {
		return false, err
	}
	now := c.now()
	before := len(p.Records)
	p.Records = c.prune(p.Records, now)

	if len(p.Records) == 0 && now.Sub(p.LastSeen) >= c.cfg.IdleTTL {
		ok, err := c.store.CompareAndSwap(ctx, id, version, nil)
		return ok, err
	}
	if len(p.Records) != before {
		if _, err := c.store.CompareAndSwap(ctx, id, version, p); err != nil {
			return false, err
		}
	}
	return false, nil
}

// Profile returns a caller's current profile, or nil when unknown.
func (c *Controller) Profile(ctx context.Context, callerID string) (*CallerView, error) {
	p, _, err := c.store.Get(ctx, callerID)
	if err != nil || p == nil {
		return nil, err
	}
	now := c.now()
	p.Records = c.prune(p.Records, now)
	w := countWindows(p.Records, now)
	limits := c.cfg.limitsFor(p.Tier)
	return &CallerView{
		CallerID:       p.CallerID,
		Tier:           string(p.Tier),
		FirstSeen:      p.FirstSeen,
		LastSeen:       p.LastSeen,
		SuspicionScore: p.SuspicionScore,
		CooldownUntil:  p.CooldownUntil,
		Remaining:      w.remaining(limits),
		RecordCount:    len(p.Records),
	}, nil
}

// Blacklist and Unblacklist manage origins that count as suspicious.
func (c *Controller) Blacklist(ctx context.Context, ip string) error {
	return c.store.Blacklist(ctx, ip)
}

func (c *Controller) Unblacklist(ctx context.Context, ip string) error {
	return c.store.Unblacklist(ctx, ip)
}
