package admission

import (
	"encoding/hex"
	"strings"
	"time"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
	"golang.org/x/crypto/blake2b"
)

const maxDigestInput = 256

// QueryDigest is a short hash of the normalized query, so near-identical
// queries that differ only in case or spacing collide.
func QueryDigest(query string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	if len(norm) > maxDigestInput {
		norm = norm[:maxDigestInput]
	}
	sum := blake2b.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:8])
}

// suspicionInput is everything the suspicion heuristic looks at.
type suspicionInput struct {
	records     []models.RequestRecord
	digest      string
	blacklisted bool
	caller      models.CallerInfo
	now         time.Time
}

// suspicionScore sums the weights of every heuristic that fires.
func suspicionScore(cfg SuspicionConfig, in suspicionInput) float64 {
	score := 0.0
	if in.blacklisted {
		score += cfg.BlacklistedWeight
	}

	recent, repeats := 0, 0
	for _, r := range in.records {
		if in.now.Sub(r.At) < cfg.BurstWindow {
			recent++
		}
		if in.digest != "" && r.Digest == in.digest && in.now.Sub(r.At) < cfg.RepeatWindow {
			repeats++
		}
	}
	if recent+1 > cfg.BurstCount {
		score += cfg.BurstWeight
	}
	if cfg.RepeatCount > 0 && repeats+1 >= cfg.RepeatCount {
		score += cfg.RepeatWeight
	}
	if isBotAgent(in.caller.UserAgent, cfg.BotAgents) {
		score += cfg.BotAgentWeight
	}
	if !in.caller.HasCapability {
		score += cfg.NoCapabilityWeight
	}
	return score
}

func isBotAgent(ua string, signatures []string) bool {
	ua = strings.ToLower(strings.TrimSpace(ua))
	if ua == "" {
		return true
	}
	for _, sig := range signatures {
		if strings.Contains(ua, sig) {
			return true
		}
	}
	return false
}
