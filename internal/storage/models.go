package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Cache-hit classification for a generation outcome.
const (
	HitFresh   = 0
	HitExact   = 1
	HitSimilar = 2
)

// Generation is one row of the append-only ledger: a record of every
// request processed, whether it hit the cache or called a provider.
type Generation struct {
	ID        int64
	Prompt    string
	Mode      string // "text" or "image"
	ImageRef  string
	Provider  string
	AssetPath string
	Status    string
	Duration  time.Duration
	CacheHit  int   // HitFresh, HitExact, or HitSimilar
	ReuseOf   int64 // originating generation id; 0 when fresh
	CreatedAt time.Time
}

// Feedback is a user rating attached to a generation.
type Feedback struct {
	ID           int64
	GenerationID int64
	Rating       int    // 1..5
	Issues       string // JSON array stored as text
	Comment      string
	CreatedAt    time.Time
}

// CacheEntry is the reusable asset stored for a fingerprint. At most one
// entry exists per fingerprint; a later fresh generation replaces it.
type CacheEntry struct {
	Fingerprint  string
	Prompt       string
	AssetPath    string
	Provider     string
	QualityScore *float64 // nil until feedback has ever been recorded
	SourceID     int64    // generation that produced the cached asset
	LastUsed     time.Time
}

// Metrics is a point-in-time aggregation over the ledger and feedback.
type Metrics struct {
	TotalGenerations int64        `json:"total_generations"`
	CacheHitRate     float64      `json:"cache_hit_rate_percent"`
	AvgRating        *float64     `json:"avg_rating"`
	AvgFreshDuration *float64     `json:"avg_fresh_generation_ms"`
	TopPrompts       []PromptUses `json:"top_prompts"`
}

// PromptUses counts how many generations share a prompt.
type PromptUses struct {
	Prompt string `json:"prompt"`
	Count  int64  `json:"count"`
}
