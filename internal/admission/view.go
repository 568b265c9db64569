package admission

import (
	"time"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

// CallerView is the operator-facing summary of a caller profile.
type CallerView struct {
	CallerID       string           `json:"caller_id"`
	Tier           string           `json:"tier"`
	FirstSeen      time.Time        `json:"first_seen"`
	LastSeen       time.Time        `json:"last_seen"`
	SuspicionScore float64          `json:"suspicion_score"`
	CooldownUntil  time.Time        `json:"cooldown_until"`
	Remaining      models.Remaining `json:"remaining"`
	RecordCount    int              `json:"record_count"`
}
