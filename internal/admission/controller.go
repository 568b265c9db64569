// Package admission decides whether a caller may reach the providers.
//
// Each caller has a profile holding a tier and a log of recent requests.
// A request is checked against burst, minute, hour and day windows for the
// caller's tier; a block starts a cooldown during which every request is
// refused. All reads and writes of one caller's profile are serialized, and
// any failure to read or write state blocks the request.
package admission

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

const (
	maxSwapAttempts     = 5
	internalRetryAfter  = 5
	minRetryAfterSecond = 1
)

// TokenValidator checks privilege tokens. It must be local and fast.
type TokenValidator interface {
	Validate(token string) bool
}

type Controller struct {
	cfg       Config
	store     Store
	validator TokenValidator
	locks     *keyLock
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Controller)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

func NewController(cfg Config, store Store, validator TokenValidator, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		cfg:       cfg,
		store:     store,
		validator: validator,
		locks:     newKeyLock(),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Check decides whether the request may proceed and records it.
func (c *Controller) Check(ctx context.Context, meta models.RequestMeta) models.AdmissionDecision {
	id := meta.Caller.CallerID
	unlock := c.locks.Lock(id)
	defer unlock()

	for attempt := 0; attempt < maxSwapAttempts; attempt++ {
		d, err := c.checkOnce(ctx, meta)
		if err == nil {
			if !d.Allowed {
				c.logger.Warn("admission blocked",
					"caller", id, "tier", d.Tier, "limit", d.LimitType, "retry_after", d.RetryAfterSeconds)
			}
			return d
		}
		if !errors.Is(err, ErrConflict) {
			c.logger.Error("admission state unavailable", "caller", id, "error", err)
			return failClosed()
		}
	}
	c.logger.Error("admission state contended", "caller", id, "attempts", maxSwapAttempts)
	return failClosed()
}

func failClosed() models.AdmissionDecision {
	return models.AdmissionDecision{
		Allowed:           false,
		Tier:              models.TierUnclassified,
		LimitType:         models.LimitInternal,
		RetryAfterSeconds: internalRetryAfter,
	}
}

func (c *Controller) checkOnce(ctx context.Context, meta models.RequestMeta) (models.AdmissionDecision, error) {
	now := c.now()
	id := meta.Caller.CallerID

	p, version, err := c.store.Get(ctx, id)
	if err != nil {
		return models.AdmissionDecision{}, err
	}
	if p == nil {
		p = &models.CallerProfile{CallerID: id, Tier: models.TierUnclassified, FirstSeen: now}
	}
	p.Records = c.prune(p.Records, now)

	if p.Tier == models.TierSuspicious && now.Sub(p.SuspiciousSince) >= c.cfg.Suspicion.Decay {
		p.Tier = models.TierUnclassified
		p.SuspiciousSince = time.Time{}
	}

	blacklisted := false
	if meta.Caller.OriginIP != "" {
		if blacklisted, err = c.store.IsBlacklisted(ctx, meta.Caller.OriginIP); err != nil {
			return models.AdmissionDecision{}, err
		}
	}
	digest := QueryDigest(meta.Query)
	p.SuspicionScore = suspicionScore(c.cfg.Suspicion, suspicionInput{
		records:     p.Records,
		digest:      digest,
		blacklisted: blacklisted,
		caller:      meta.Caller,
		now:         now,
	})
	c.classify(p, meta.Caller, now)

	limits := c.cfg.limitsFor(p.Tier)
	w := countWindows(p.Records, now)
	d := models.AdmissionDecision{Tier: p.Tier}

	switch {
	case now.Before(p.CooldownUntil):
		d.LimitType = models.LimitCooldown
		d.RetryAfterSeconds = ceilSeconds(p.CooldownUntil.Sub(now))
	default:
		d.LimitType, d.RetryAfterSeconds = firstViolation(p.Records, w, limits, now)
		if d.LimitType != models.LimitNone && limits.Cooldown > 0 {
			p.CooldownUntil = now.Add(limits.Cooldown)
			d.RetryAfterSeconds = max(d.RetryAfterSeconds, ceilSeconds(limits.Cooldown))
		}
	}

	rec := models.RequestRecord{At: now, Digest: digest, Outcome: models.OutcomeAllowed}
	if d.LimitType != models.LimitNone {
		rec.Outcome = models.OutcomeBlocked
		rec.BlockReason = d.LimitType
		d.Remaining = w.remaining(limits)
	} else {
		d.Allowed = true
		w.add()
		d.Remaining = w.remaining(limits)
	}
	p.Records = append(p.Records, rec)
	p.LastSeen = now

	ok, err := c.store.CompareAndSwap(ctx, id, version, p)
	if err != nil {
		return models.AdmissionDecision{}, err
	}
	if !ok {
		return models.AdmissionDecision{}, ErrConflict
	}
	return d, nil
}

// classify applies the tier transitions. Suspicion wins over a privilege
// grant and sticks until it decays; privilege lasts as long as a valid
// token is presented.
func (c *Controller) classify(p *models.CallerProfile, caller models.CallerInfo, now time.Time) {
	if p.SuspicionScore >= c.cfg.Suspicion.Threshold {
		if p.Tier != models.TierSuspicious {
			p.Tier = models.TierSuspicious
			p.SuspiciousSince = now
		}
		return
	}
	if p.Tier == models.TierSuspicious {
		return
	}
	if caller.PrivilegeToken != "" && c.validator != nil && c.validator.Validate(caller.PrivilegeToken) {
		p.Tier = models.TierPrivileged
		return
	}
	p.Tier = models.TierStandard
}

// windows holds allowed-request counts per admission window.
type windows struct {
	burst, minute, hour, day int
}

func countWindows(records []models.RequestRecord, now time.Time) windows {
	var w windows
	for _, r := range records {
		if r.Outcome != models.OutcomeAllowed {
			continue
		}
		age := now.Sub(r.At)
		if age < burstWindow {
			w.burst++
		}
		if age < minuteWindow {
			w.minute++
		}
		if age < hourWindow {
			w.hour++
		}
		if age < dayWindow {
			w.day++
		}
	}
	return w
}

func (w *windows) add() {
	w.burst++
	w.minute++
	w.hour++
	w.day++
}

func (w windows) remaining(l Limits) models.Remaining {
	return models.Remaining{
		Burst:  max(0, l.Burst-w.burst),
		Minute: max(0, l.PerMinute-w.minute),
		Hour:   max(0, l.PerHour-w.hour),
		Day:    max(0, l.PerDay-w.day),
	}
}

// firstViolation returns the first exceeded window in priority order
// burst, minute, hour, day and the wait until every violated window has
// room again.
func firstViolation(records []models.RequestRecord, w windows, l Limits, now time.Time) (models.LimitType, int) {
	checks := []struct {
		limit   models.LimitType
		count   int
		allowed int
		window  time.Duration
	}{
		{models.LimitBurst, w.burst, l.Burst, burstWindow},
		{models.LimitMinute, w.minute, l.PerMinute, minuteWindow},
		{models.LimitHour, w.hour, l.PerHour, hourWindow},
		{models.LimitDay, w.day, l.PerDay, dayWindow},
	}

	first := models.LimitNone
	retry := 0
	for _, ch := range checks {
		if ch.count < ch.allowed {
			continue
		}
		if first == models.LimitNone {
			first = ch.limit
		}
		retry = max(retry, waitForRoom(records, ch.count-ch.allowed+1, ch.window, now))
	}
	return first, retry
}

// waitForRoom returns the seconds until n allowed records age out of window.
func waitForRoom(records []models.RequestRecord, n int, window time.Duration, now time.Time) int {
	seen := 0
	for _, r := range records {
		if r.Outcome != models.OutcomeAllowed || now.Sub(r.At) >= window {
			continue
		}
		seen++
		if seen == n {
			return ceilSeconds(r.At.Add(window).Sub(now))
		}
	}
	return ceilSeconds(window)
}

func ceilSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < minRetryAfterSecond {
		return minRetryAfterSecond
	}
	return s
}

// prune drops records older than the day window. Blocked records only feed
// the suspicion heuristics, so they are dropped once past the longer
// suspicion window and only the newest BurstCount+RepeatCount are kept.
func (c *Controller) prune(records []models.RequestRecord, now time.Time) []models.RequestRecord {
	horizon := max(c.cfg.Suspicion.BurstWindow, c.cfg.Suspicion.RepeatWindow)

	blocked := 0
	for _, r := range records {
		if r.Outcome != models.OutcomeAllowed && now.Sub(r.At) < horizon {
			blocked++
		}
	}
	excess := blocked - (c.cfg.Suspicion.BurstCount + c.cfg.Suspicion.RepeatCount)

	out := make([]models.RequestRecord, 0, len(records))
	for _, r := range records {
		age := now.Sub(r.At)
		if age >= dayWindow {
			continue
		}
		if r.Outcome != models.OutcomeAllowed {
			if age >= horizon {
				continue
			}
			if excess > 0 {
				excess--
				continue
			}
		}
		out = append(out, r)
	}
	return out
}
