package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// InsertFeedback appends a feedback row and returns its id.
func (s *Store) InsertFeedback(f Feedback) (int64, error) {
	issues := f.Issues
	if issues == "" {
		issues = "[]"
	}
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	res, err := s.db.Exec(`
		INSERT INTO feedback (generation_id, rating, issues, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.GenerationID, f.Rating, issues, f.Comment, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FeedbackForGeneration returns all feedback rows for one generation,
// newest first.
func (s *Store) FeedbackForGeneration(generationID int64) ([]Feedback, error) {
	rows, err := s.db.Query(`
		SELECT id, generation_id, rating, issues, comment, created_at
		FROM feedback WHERE generation_id = ? ORDER BY id DESC`, generationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Feedback
	for rows.Next() {
		var f Feedback
		var createdAt string
		if err := rows.Scan(&f.ID, &f.GenerationID, &f.Rating, &f.Issues, &f.Comment, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		f.CreatedAt = t
		results = append(results, f)
	}
	return results, rows.Err()
}

// AvgRatingForPrompt returns the mean rating over all feedback attached to
// any generation sharing the given literal prompt text. Ratings pool across
// mode and image variants on purpose. Returns (0, false) when no feedback
// exists for the prompt family.
func (s *Store) AvgRatingForPrompt(prompt string) (float64, bool, error) {
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT AVG(rating) FROM feedback
		WHERE generation_id IN (SELECT id FROM generations WHERE prompt = ?)`, prompt,
	).Scan(&avg)
	if err != nil {
		return 0, false, err
	}
	return avg.Float64, avg.Valid, nil
}
