package admission

import (
	"fmt"
	"time"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

// Admission windows.
const (
	burstWindow  = 10 * time.Second
	minuteWindow = time.Minute
	hourWindow   = time.Hour
	dayWindow    = 24 * time.Hour
)

// Limits is the request budget of one tier.
type Limits struct {
	PerMinute int           `toml:"per_minute"`
	PerHour   int           `toml:"per_hour"`
	PerDay    int           `toml:"per_day"`
	Burst     int           `toml:"burst"`
	Cooldown  time.Duration `toml:"cooldown"`
}

// SuspicionConfig weights the heuristics that demote a caller to suspicious.
type SuspicionConfig struct {
	Threshold float64 `toml:"threshold"`

	BlacklistedWeight  float64 `toml:"blacklisted_weight"`
	BurstWeight        float64 `toml:"burst_weight"`
	RepeatWeight       float64 `toml:"repeat_weight"`
	BotAgentWeight     float64 `toml:"bot_agent_weight"`
	NoCapabilityWeight float64 `toml:"no_capability_weight"`

	// BurstCount is exceeded when more requests than this arrive within BurstWindow.
	BurstCount  int           `toml:"burst_count"`
	BurstWindow time.Duration `toml:"burst_window"`
	// RepeatCount identical queries (including the current one) within RepeatWindow.
	RepeatCount  int           `toml:"repeat_count"`
	RepeatWindow time.Duration `toml:"repeat_window"`
	// Decay is how long a suspicious classification sticks.
	Decay time.Duration `toml:"decay"`

	BotAgents []string `toml:"bot_agents"`
}

type Config struct {
	Standard   Limits          `toml:"standard"`
	Privileged Limits          `toml:"privileged"`
	Suspicious Limits          `toml:"suspicious"`
	Suspicion  SuspicionConfig `toml:"suspicion"`

	// IdleTTL is how long a caller with an empty log is kept.
	IdleTTL       time.Duration `toml:"idle_ttl"`
	SweepInterval time.Duration `toml:"sweep_interval"`
}

func DefaultConfig() Config {
	return Config{
		Standard:   Limits{PerMinute: 10, PerHour: 100, PerDay: 500, Burst: 5, Cooldown: 15 * time.Minute},
		Privileged: Limits{PerMinute: 30, PerHour: 600, PerDay: 3000, Burst: 15, Cooldown: 5 * time.Minute},
		Suspicious: Limits{PerMinute: 3, PerHour: 20, PerDay: 50, Burst: 2, Cooldown: 60 * time.Minute},
		Suspicion: SuspicionConfig{
			Threshold:          0.7,
			BlacklistedWeight:  0.7,
			BurstWeight:        0.3,
			RepeatWeight:       0.3,
			BotAgentWeight:     0.3,
			NoCapabilityWeight: 0.2,
			BurstCount:         20,
			BurstWindow:        time.Minute,
			RepeatCount:        3,
			RepeatWindow:       10 * time.Minute,
			Decay:              24 * time.Hour,
			BotAgents: []string{
				"bot", "crawler", "spider", "scrapy", "curl", "wget", "python-requests",
				"httpclient", "headless", "phantomjs", "go-http-client",
			},
		},
		IdleTTL:       7 * 24 * time.Hour,
		SweepInterval: time.Minute,
	}
}

// Validate checks that privileged limits are strictly looser and suspicious
// limits strictly tighter than standard ones.
func (c Config) Validate() error {
	if err := c.Standard.validate(); err != nil {
		return fmt.Errorf("standard: %w", err)
	}
	if !looser(c.Privileged, c.Standard) {
		return fmt.Errorf("privileged limits must be strictly looser than standard")
	}
	if !looser(c.Standard, c.Suspicious) {
		return fmt.Errorf("suspicious limits must be strictly tighter than standard")
	}
	if err := c.Suspicious.validate(); err != nil {
		return fmt.Errorf("suspicious: %w", err)
	}
	if c.Suspicion.Threshold <= 0 {
		return fmt.Errorf("suspicion threshold must be positive")
	}
	if c.SweepInterval <= 0 || c.IdleTTL <= 0 || c.Suspicion.Decay <= 0 {
		return fmt.Errorf("sweep interval, idle ttl and suspicion decay must be positive")
	}
	return nil
}

func (l Limits) validate() error {
	if l.PerMinute <= 0 || l.PerHour <= 0 || l.PerDay <= 0 || l.Burst <= 0 {
		return fmt.Errorf("all window limits must be positive")
	}
	if l.Cooldown < 0 {
		return fmt.Errorf("cooldown must not be negative")
	}
	return nil
}

// looser reports whether a grants strictly more than b on every window and
// a strictly shorter cooldown.
func looser(a, b Limits) bool {
	return a.PerMinute > b.PerMinute && a.PerHour > b.PerHour && a.PerDay > b.PerDay &&
		a.Burst > b.Burst && a.Cooldown < b.Cooldown
}

func (c Config) limitsFor(t models.Tier) Limits {
	switch t {
	case models.TierPrivileged:
		return c.Privileged
	case models.TierSuspicious:
		return c.Suspicious
	}
	return c.Standard
}
