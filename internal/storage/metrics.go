package storage

import (
	"database/sql"
	"fmt"
	"math"
)

// Snapshot aggregates the ledger and feedback into point-in-time metrics.
// Read-only; no side effects.
func (s *Store) Snapshot() (Metrics, error) {
	var m Metrics

	if err := s.db.QueryRow(`SELECT COUNT(*) FROM generations`).Scan(&m.TotalGenerations); err != nil {
		return Metrics{}, fmt.Errorf("counting generations: %w", err)
	}

	var hits int64
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM generations WHERE cache_hit > 0`).Scan(&hits); err != nil {
		return Metrics{}, fmt.Errorf("counting cache hits: %w", err)
	}
	if m.TotalGenerations > 0 {
		m.CacheHitRate = math.Round(float64(hits)/float64(m.TotalGenerations)*10000) / 100
	}

	var avgRating sql.NullFloat64
	if err := s.db.QueryRow(`SELECT AVG(rating) FROM feedback`).Scan(&avgRating); err != nil {
		return Metrics{}, fmt.Errorf("averaging ratings: %w", err)
	}
	if avgRating.Valid {
		v := math.Round(avgRating.Float64*100) / 100
		m.AvgRating = &v
	}

	// Error rows and instant local generations carry duration 0 and would
	// drag the average toward zero.
	var avgDuration sql.NullFloat64
	if err := s.db.QueryRow(`SELECT AVG(duration_ms) FROM generations WHERE cache_hit = 0 AND duration_ms > 0`).Scan(&avgDuration); err != nil {
		return Metrics{}, fmt.Errorf("averaging durations: %w", err)
	}
	if avgDuration.Valid {
		v := avgDuration.Float64
		m.AvgFreshDuration = &v
	}

	rows, err := s.db.Query(`
		SELECT prompt, COUNT(*) AS n FROM generations
		GROUP BY prompt ORDER BY n DESC LIMIT 10`)
	if err != nil {
		return Metrics{}, fmt.Errorf("listing top prompts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p PromptUses
		if err := rows.Scan(&p.Prompt, &p.Count); err != nil {
			return Metrics{}, err
		}
		m.TopPrompts = append(m.TopPrompts, p)
	}
	return m, rows.Err()
}
