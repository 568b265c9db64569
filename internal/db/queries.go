package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/HanTheDev/llm-fusion-gateway/internal/models"
)

func (db *DB) InsertLead(ctx context.Context, lead *models.Lead) error {
	query := `
        INSERT INTO leads (id, caller_id, query, strategy, confidence, score_a, score_b, contributors, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
        ON CONFLICT (id) DO NOTHING
    `

	contributors := lead.Contributors
	if contributors == nil {
		contributors = []string{}
	}

	_, err := db.Pool.Exec(ctx, query,
		lead.ID,
		lead.CallerID,
		lead.Query,
		string(lead.Strategy),
		lead.Confidence,
		lead.ScoreA,
		lead.ScoreB,
		contributors,
		lead.CreatedAt,
	)

	return err
}

// GetCallerAnalytics aggregates a caller's leads. Zero from/to leave that
// side of the range open; to is exclusive.
func (db *DB) GetCallerAnalytics(ctx context.Context, callerID string, from, to time.Time) (*models.CallerAnalytics, error) {
	where, args := leadRange("caller_id = $1", []interface{}{callerID}, from, to)
	query := fmt.Sprintf(`
        SELECT strategy, COUNT(*), COALESCE(AVG(confidence), 0)
        FROM leads
        WHERE %s
        GROUP BY strategy
    `, where)

	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &models.CallerAnalytics{CallerID: callerID, ByStrategy: make(map[string]int64)}
	weighted := 0.0
	for rows.Next() {
		var (
			strategy string
			count    int64
			avg      float64
		)
		if err := rows.Scan(&strategy, &count, &avg); err != nil {
			return nil, err
		}
		stats.ByStrategy[strategy] = count
		stats.TotalQueries += count
		weighted += avg * float64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if stats.TotalQueries > 0 {
		stats.AvgConfidence = weighted / float64(stats.TotalQueries)
	}

	return stats, nil
}

func (db *DB) GetStrategyStats(ctx context.Context) ([]models.StrategyStats, error) {
	query := `
        SELECT strategy, COUNT(*), COALESCE(AVG(confidence), 0)
        FROM leads
        GROUP BY strategy
        ORDER BY COUNT(*) DESC, strategy
    `

	rows, err := db.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.StrategyStats
	for rows.Next() {
		var s models.StrategyStats
		var strategy string
		if err := rows.Scan(&strategy, &s.Count, &s.AvgConfidence); err != nil {
			return nil, err
		}
		s.Strategy = models.Strategy(strategy)
		out = append(out, s)
	}

	return out, rows.Err()
}

// leadRange appends created_at bounds to a WHERE clause.
func leadRange(base string, args []interface{}, from, to time.Time) (string, []interface{}) {
	conds := []string{base}
	if !from.IsZero() {
		args = append(args, from)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !to.IsZero() {
		args = append(args, to)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	return strings.Join(conds, " AND "), args
}
