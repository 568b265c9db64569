package models

import "time"

// Tier is the admission classification of a caller.
type Tier string

const (
	TierUnclassified Tier = "unclassified"
	TierStandard     Tier = "standard"
	TierPrivileged   Tier = "privileged"
	TierSuspicious   Tier = "suspicious"
)

// Outcome of a single admission check.
type Outcome string

const (
	OutcomeAllowed Outcome = "allowed"
	OutcomeBlocked Outcome = "blocked"
)

// LimitType names the check that blocked a request.
type LimitType string

const (
	LimitNone     LimitType = ""
	LimitBurst    LimitType = "burst"
	LimitMinute   LimitType = "minute"
	LimitHour     LimitType = "hour"
	LimitDay      LimitType = "day"
	LimitCooldown LimitType = "cooldown"
	LimitInternal LimitType = "internal"
)

// CallerInfo is the identity and request context supplied by the HTTP layer.
type CallerInfo struct {
	CallerID       string `json:"caller_id"`
	OriginIP       string `json:"origin_ip"`
	UserAgent      string `json:"user_agent"`
	SessionID      string `json:"session_id"`
	PrivilegeToken string `json:"-"`
	// HasCapability reports whether the client sent the expected capability signal.
	HasCapability bool `json:"has_capability"`
}

// RequestMeta is what the admission controller sees about one request.
type RequestMeta struct {
	Caller CallerInfo
	Query  string
}

// RequestRecord is one entry in a caller's request log.
type RequestRecord struct {
	At          time.Time `json:"at"`
	Digest      string    `json:"digest"`
	Outcome     Outcome   `json:"outcome"`
	BlockReason LimitType `json:"block_reason,omitempty"`
}

// CallerProfile is the admission state kept per caller.
type CallerProfile struct {
	CallerID        string          `json:"caller_id"`
	Tier            Tier            `json:"tier"`
	FirstSeen       time.Time       `json:"first_seen"`
	LastSeen        time.Time       `json:"last_seen"`
	SuspiciousSince time.Time       `json:"suspicious_since,omitempty"`
	SuspicionScore  float64         `json:"suspicion_score"`
	CooldownUntil   time.Time       `json:"cooldown_until,omitempty"`
	Records         []RequestRecord `json:"records"`
}

// Clone returns a deep copy so stored profiles are never shared with callers.
func (p *CallerProfile) Clone() *CallerProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Records = append([]RequestRecord(nil), p.Records...)
	return &c
}

// Remaining is the quota left per admission window.
type Remaining struct {
	Burst  int `json:"burst"`
	Minute int `json:"minute"`
	Hour   int `json:"hour"`
	Day    int `json:"day"`
}

// AdmissionDecision is the outcome of one admission check.
type AdmissionDecision struct {
	Allowed           bool      `json:"allowed"`
	Tier              Tier      `json:"tier"`
	Remaining         Remaining `json:"remaining"`
	RetryAfterSeconds int       `json:"retry_after_seconds"`
	LimitType         LimitType `json:"limit_type,omitempty"`
}

// ErrorKind classifies a failed provider call.
type ErrorKind string

const (
	ErrorNone        ErrorKind = ""
	ErrorTimeout     ErrorKind = "timeout"
	ErrorRateLimited ErrorKind = "rate_limited"
	ErrorAuth        ErrorKind = "auth_error"
	ErrorNetwork     ErrorKind = "network_error"
	ErrorUnknown     ErrorKind = "unknown_error"
)

// ScoreProfile holds per-dimension quality scores in [0,1].
type ScoreProfile struct {
	Quality             float64 `json:"quality"`
	Relevance           float64 `json:"relevance"`
	Engagement          float64 `json:"engagement"`
	BusinessValue       float64 `json:"business_value"`
	ConversionPotential float64 `json:"conversion_potential"`
	LeadQuality         float64 `json:"lead_quality"`
	Urgency             float64 `json:"urgency"`
	Clarity             float64 `json:"clarity"`
	Completeness        float64 `json:"completeness"`
	Accuracy            float64 `json:"accuracy"`
	Creativity          float64 `json:"creativity"`
	GlobalScore         float64 `json:"global_score"`
}

// ProviderResponse is the outcome of one provider call.
type ProviderResponse struct {
	Provider  string       `json:"provider"`
	Success   bool         `json:"success"`
	Content   string       `json:"content"`
	Scores    ScoreProfile `json:"scores"`
	TimingMs  int64        `json:"timing_ms"`
	ErrorKind ErrorKind    `json:"error_kind,omitempty"`
}

// Strategy identifies how a FusionResult was produced.
type Strategy string

const (
	StrategyDominantLead     Strategy = "dominant_lead"
	StrategyMolecular        Strategy = "molecular"
	StrategyHybridConversion Strategy = "hybrid_conversion"
	StrategyBestOfBoth       Strategy = "best_of_both"
	StrategyAdaptiveMerge    Strategy = "adaptive_merge"
	StrategySingleProvider   Strategy = "single_provider"
	StrategyErrorFallback    Strategy = "error_fallback"
	StrategyDegraded         Strategy = "degraded"
)

// FusionMetadata annotates a FusionResult.
type FusionMetadata struct {
	RequestID    string               `json:"request_id,omitempty"`
	Contributors []string             `json:"contributors"`
	TimingsMs    map[string]int64     `json:"timings_ms,omitempty"`
	Errors       map[string]ErrorKind `json:"errors,omitempty"`
	GlobalScores map[string]float64   `json:"global_scores,omitempty"`
	BaseProvider string               `json:"base_provider,omitempty"`
	QueryType    string               `json:"query_type,omitempty"`
	EmptyOutput  bool                 `json:"empty_output,omitempty"`
	Cached       bool                 `json:"cached,omitempty"`
}

// FusionResult is the terminal output of one orchestration cycle.
type FusionResult struct {
	Content    string         `json:"content"`
	Strategy   Strategy       `json:"strategy"`
	Confidence float64        `json:"confidence"`
	Metadata   FusionMetadata `json:"metadata"`
}

// Lead is the analytics row written after each answered query.
type Lead struct {
	ID           string    `json:"id"`
	CallerID     string    `json:"caller_id"`
	Query        string    `json:"query"`
	Strategy     Strategy  `json:"strategy"`
	Confidence   float64   `json:"confidence"`
	ScoreA       float64   `json:"score_a"`
	ScoreB       float64   `json:"score_b"`
	Contributors []string  `json:"contributors"`
	CreatedAt    time.Time `json:"created_at"`
}

// CallerAnalytics aggregates leads for one caller.
type CallerAnalytics struct {
	CallerID      string           `json:"caller_id"`
	TotalQueries  int64            `json:"total_queries"`
	AvgConfidence float64          `json:"avg_confidence"`
	ByStrategy    map[string]int64 `json:"by_strategy"`
}

// StrategyStats is one row of the strategy distribution report.
type StrategyStats struct {
	Strategy      Strategy `json:"strategy"`
	Count         int64    `json:"count"`
	AvgConfidence float64  `json:"avg_confidence"`
}
