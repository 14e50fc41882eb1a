package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// GetCacheEntry returns the cache entry for a fingerprint, or ErrNotFound.
func (s *Store) GetCacheEntry(fp string) (CacheEntry, error) {
	row := s.db.QueryRow(`
		SELECT fingerprint, prompt, asset_path, provider, quality_score, source_generation_id, last_used
		FROM asset_cache WHERE fingerprint = ?`, fp)
	e, err := scanCacheEntry(row)
	if err == sql.ErrNoRows {
		return CacheEntry{}, ErrNotFound
	}
	return e, err
}

// UpsertCacheEntry writes the entry for its fingerprint, replacing any prior
// row for that key. The prior quality_score is preserved: a score earned
// under an old asset carries forward onto the replacement.
func (s *Store) UpsertCacheEntry(e CacheEntry) error {
	return upsertCacheEntry(s.db, e)
}

func upsertCacheEntry(db execer, e CacheEntry) error {
	lastUsed := e.LastUsed
	if lastUsed.IsZero() {
		lastUsed = time.Now().UTC()
	}
	var sourceID any
	if e.SourceID != 0 {
		sourceID = e.SourceID
	}
	_, err := db.Exec(`
		INSERT INTO asset_cache (fingerprint, prompt, asset_path, provider, quality_score, source_generation_id, last_used)
		VALUES (?, ?, ?, ?, (SELECT quality_score FROM asset_cache WHERE fingerprint = ?), ?, ?)
		ON CONFLICT(fingerprint) DO UPDATE SET
			prompt = excluded.prompt,
			asset_path = excluded.asset_path,
			provider = excluded.provider,
			source_generation_id = excluded.source_generation_id,
			last_used = excluded.last_used`,
		e.Fingerprint, e.Prompt, e.AssetPath, e.Provider, e.Fingerprint,
		sourceID, lastUsed.Format(time.RFC3339),
	)
	return err
}

// AllCacheEntries returns every cache entry in stable insertion order.
// The similarity index depends on this order for deterministic tie-breaks.
func (s *Store) AllCacheEntries() ([]CacheEntry, error) {
	rows, err := s.db.Query(`
		SELECT fingerprint, prompt, asset_path, provider, quality_score, source_generation_id, last_used
		FROM asset_cache ORDER BY rowid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []CacheEntry
	for rows.Next() {
		e, err := scanCacheEntry(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// SetQualityScore overwrites the quality score for a fingerprint. Writes to
// an absent fingerprint are a no-op: feedback can reference prompt families
// whose cache entry was never created or has been replaced.
func (s *Store) SetQualityScore(fp string, score float64) error {
	_, err := s.db.Exec(`UPDATE asset_cache SET quality_score = ? WHERE fingerprint = ?`, score, fp)
	return err
}

func scanCacheEntry(r rowScanner) (CacheEntry, error) {
	var e CacheEntry
	var quality sql.NullFloat64
	var sourceID sql.NullInt64
	var lastUsed string
	err := r.Scan(&e.Fingerprint, &e.Prompt, &e.AssetPath, &e.Provider, &quality, &sourceID, &lastUsed)
	if err != nil {
		return CacheEntry{}, err
	}
	if quality.Valid {
		v := quality.Float64
		e.QualityScore = &v
	}
	e.SourceID = sourceID.Int64
	t, err := time.Parse(time.RFC3339, lastUsed)
	if err != nil {
		return CacheEntry{}, fmt.Errorf("parsing last_used: %w", err)
	}
	e.LastUsed = t
	return e, nil
}
