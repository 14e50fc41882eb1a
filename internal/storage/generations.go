package storage

import (
	"database/sql"
	"fmt"
	"time"
)

const generationColumns = "id, prompt, mode, image_ref, provider, asset_path, status, duration_ms, cache_hit, reuse_of, created_at"

// execer is satisfied by both *sql.DB and *sql.Tx, so the insert helpers
// serve standalone and transactional writes alike.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// InsertGeneration appends one row to the ledger and returns its assigned id.
func (s *Store) InsertGeneration(g Generation) (int64, error) {
	return insertGeneration(s.db, g)
}

// InsertGenerationWithCache appends a ledger row and writes its cache entry
// in one transaction. The entry's source_generation_id is set to the new
// row's id. Neither write is visible unless both commit.
func (s *Store) InsertGenerationWithCache(g Generation, e CacheEntry) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}

	id, err := insertGeneration(tx, g)
	if err != nil {
		tx.Rollback()
		return 0, err
	}
	e.SourceID = id
	if err := upsertCacheEntry(tx, e); err != nil {
		tx.Rollback()
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func insertGeneration(db execer, g Generation) (int64, error) {
	status := g.Status
	if status == "" {
		status = "ok"
	}
	createdAt := g.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	var reuseOf any
	if g.ReuseOf != 0 {
		reuseOf = g.ReuseOf
	}
	res, err := db.Exec(`
		INSERT INTO generations (prompt, mode, image_ref, provider, asset_path, status, duration_ms, cache_hit, reuse_of, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.Prompt, g.Mode, g.ImageRef, g.Provider, g.AssetPath, status,
		g.Duration.Milliseconds(), g.CacheHit, reuseOf, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetGeneration looks up one ledger row by id.
func (s *Store) GetGeneration(id int64) (Generation, error) {
	row := s.db.QueryRow(`SELECT `+generationColumns+` FROM generations WHERE id = ?`, id)
	g, err := scanGeneration(row)
	if err == sql.ErrNoRows {
		return Generation{}, ErrNotFound
	}
	return g, err
}

// RecentGenerations returns the newest ledger rows, most recent first.
func (s *Store) RecentGenerations(limit int) ([]Generation, error) {
	rows, err := s.db.Query(`SELECT `+generationColumns+` FROM generations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Generation
	for rows.Next() {
		g, err := scanGeneration(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, g)
	}
	return results, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGeneration(r rowScanner) (Generation, error) {
	var g Generation
	var durationMS int64
	var reuseOf sql.NullInt64
	var createdAt string
	err := r.Scan(&g.ID, &g.Prompt, &g.Mode, &g.ImageRef, &g.Provider, &g.AssetPath,
		&g.Status, &durationMS, &g.CacheHit, &reuseOf, &createdAt)
	if err != nil {
		return Generation{}, err
	}
	g.Duration = time.Duration(durationMS) * time.Millisecond
	g.ReuseOf = reuseOf.Int64
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Generation{}, fmt.Errorf("parsing created_at: %w", err)
	}
	g.CreatedAt = t
	return g, nil
}
