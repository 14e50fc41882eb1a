// Package engine implements the reuse decision procedure: given a request,
// decide exact reuse, quality-gated similar reuse, or fresh generation, and
// record every outcome in the generation ledger.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/halvard/meshgen/internal/fingerprint"
	"github.com/halvard/meshgen/internal/provider"
	"github.com/halvard/meshgen/internal/similarity"
	"github.com/halvard/meshgen/internal/storage"
)

// ReusePolicy controls how aggressively cached assets are reused.
type ReusePolicy string

const (
	PolicyAlways ReusePolicy = "always"
	PolicySmart  ReusePolicy = "smart"
	PolicyNever  ReusePolicy = "never"
)

// SimilarProviderLabel marks similarity-based reuse in the ledger,
// distinguishing it from direct provider attribution.
const SimilarProviderLabel = "cache-similar"

// ErrInvalidRating is returned for feedback ratings outside 1..5.
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// Request is one incoming generation request. Transient; never persisted
// as its own entity.
type Request struct {
	Prompt      string
	Mode        fingerprint.Mode
	ImageRef    string
	Provider    string
	ReusePolicy ReusePolicy
}

// Options tune the similar-reuse gate. Zero values select the defaults.
type Options struct {
	SimilarityThreshold float64 // minimum Jaccard score (default 0.92)
	QualityFloor        float64 // minimum quality score for similar reuse (default 3.5)
	OptimisticScore     float64 // score assumed for never-rated entries (default 4.0)
}

const (
	defaultQualityFloor    = 3.5
	defaultOptimisticScore = 4.0
)

// Engine runs the reuse decision procedure over a store, a provider
// registry, and a similarity index.
type Engine struct {
	store     *storage.Store
	registry  *provider.Registry
	index     *similarity.Index
	threshold float64
	floor     float64
	optimism  float64
}

// New builds an Engine. The similarity index scans the same store's cache
// entries.
func New(store *storage.Store, registry *provider.Registry, opts Options) *Engine {
	if opts.SimilarityThreshold == 0 {
		opts.SimilarityThreshold = similarity.DefaultThreshold
	}
	if opts.QualityFloor == 0 {
		opts.QualityFloor = defaultQualityFloor
	}
	if opts.OptimisticScore == 0 {
		opts.OptimisticScore = defaultOptimisticScore
	}
	return &Engine{
		store:     store,
		registry:  registry,
		index:     similarity.NewIndex(store),
		threshold: opts.SimilarityThreshold,
		floor:     opts.QualityFloor,
		optimism:  opts.OptimisticScore,
	}
}

// Submit runs the full decision procedure for one request and returns the
// written ledger record. Cache and similarity failures degrade to fresh
// generation; only store write failures or a failed provider call surface
// as errors.
func (e *Engine) Submit(ctx context.Context, req Request) (storage.Generation, error) {
	if req.Mode == "" {
		req.Mode = fingerprint.ModeText
	}
	if req.ReusePolicy == "" {
		req.ReusePolicy = PolicySmart
	}
	fp := fingerprint.Fingerprint(req.Prompt, req.Mode, req.ImageRef)

	if req.ReusePolicy == PolicyAlways || req.ReusePolicy == PolicySmart {
		entry, err := e.store.GetCacheEntry(fp)
		switch {
		case err == nil:
			// Exact reuse ignores quality entirely; it is never gated.
			return e.record(storage.Generation{
				Prompt:    req.Prompt,
				Mode:      string(req.Mode),
				ImageRef:  req.ImageRef,
				Provider:  entry.Provider,
				AssetPath: entry.AssetPath,
				CacheHit:  storage.HitExact,
				ReuseOf:   entry.SourceID,
			})
		case errors.Is(err, storage.ErrNotFound):
			if req.ReusePolicy == PolicySmart {
				if g, ok := e.trySimilar(req); ok {
					return e.record(g)
				}
			}
		default:
			slog.Warn("cache lookup failed, generating fresh", "error", err)
		}
	}

	p := e.registry.Resolve(req.Provider)
	res, err := p.Generate(ctx, req.Prompt, req.ImageRef)
	if err != nil {
		// The ledger still gets its one row per request.
		if _, rerr := e.record(storage.Generation{
			Prompt:   req.Prompt,
			Mode:     string(req.Mode),
			ImageRef: req.ImageRef,
			Provider: p.Slug(),
			Status:   "error",
		}); rerr != nil {
			slog.Warn("recording failed generation", "error", rerr)
		}
		return storage.Generation{}, fmt.Errorf("provider %s: %w", p.Slug(), err)
	}

	// Ledger row and cache entry commit together or not at all.
	g := storage.Generation{
		Prompt:    req.Prompt,
		Mode:      string(req.Mode),
		ImageRef:  req.ImageRef,
		Provider:  p.Slug(),
		AssetPath: res.AssetPath,
		Duration:  res.Duration,
		CacheHit:  storage.HitFresh,
		Status:    "ok",
		CreatedAt: time.Now().UTC(),
	}
	id, err := e.store.InsertGenerationWithCache(g, storage.CacheEntry{
		Fingerprint: fp,
		Prompt:      req.Prompt,
		AssetPath:   res.AssetPath,
		Provider:    p.Slug(),
	})
	if err != nil {
		return storage.Generation{}, fmt.Errorf("recording generation: %w", err)
	}
	g.ID = id
	return g, nil
}

// trySimilar returns a similar-reuse record when a token-overlap match
// above the threshold passes the quality gate. Never-rated entries are
// assumed good.
func (e *Engine) trySimilar(req Request) (storage.Generation, bool) {
	match, ok, err := e.index.FindSimilar(req.Prompt, e.threshold)
	if err != nil {
		slog.Warn("similarity scan failed, generating fresh", "error", err)
		return storage.Generation{}, false
	}
	if !ok {
		return storage.Generation{}, false
	}

	score := e.optimism
	if match.QualityScore != nil {
		score = *match.QualityScore
	}
	if score < e.floor {
		return storage.Generation{}, false
	}

	return storage.Generation{
		Prompt:    req.Prompt,
		Mode:      string(req.Mode),
		ImageRef:  req.ImageRef,
		Provider:  SimilarProviderLabel,
		AssetPath: match.AssetPath,
		CacheHit:  storage.HitSimilar,
		ReuseOf:   match.SourceID,
	}, true
}

func (e *Engine) record(g storage.Generation) (storage.Generation, error) {
	if g.Status == "" {
		g.Status = "ok"
	}
	g.CreatedAt = time.Now().UTC()
	id, err := e.store.InsertGeneration(g)
	if err != nil {
		return storage.Generation{}, fmt.Errorf("recording generation: %w", err)
	}
	g.ID = id
	return g, nil
}

// Generation returns one ledger record by id.
func (e *Engine) Generation(id int64) (storage.Generation, error) {
	return e.store.GetGeneration(id)
}

// Recent returns the newest ledger records.
func (e *Engine) Recent(limit int) ([]storage.Generation, error) {
	return e.store.RecentGenerations(limit)
}

// Feedback returns all feedback rows for a generation.
func (e *Engine) Feedback(generationID int64) ([]storage.Feedback, error) {
	return e.store.FeedbackForGeneration(generationID)
}

// RecordFeedback appends a rating for a generation, then folds the pooled
// mean rating for that generation's prompt family back into the cache entry
// at its fingerprint, where future similar-reuse decisions read it.
func (e *Engine) RecordFeedback(generationID int64, rating int, issues []string, comment string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	g, err := e.store.GetGeneration(generationID)
	if err != nil {
		return err
	}

	issuesJSON := "[]"
	if len(issues) > 0 {
		b, err := json.Marshal(issues)
		if err != nil {
			return fmt.Errorf("encoding issues: %w", err)
		}
		issuesJSON = string(b)
	}
	if _, err := e.store.InsertFeedback(storage.Feedback{
		GenerationID: generationID,
		Rating:       rating,
		Issues:       issuesJSON,
		Comment:      comment,
	}); err != nil {
		return fmt.Errorf("recording feedback: %w", err)
	}

	avg, ok, err := e.store.AvgRatingForPrompt(g.Prompt)
	if err != nil {
		return fmt.Errorf("aggregating ratings: %w", err)
	}
	if !ok {
		return nil
	}
	fp := fingerprint.Fingerprint(g.Prompt, fingerprint.Mode(g.Mode), g.ImageRef)
	if err := e.store.SetQualityScore(fp, avg); err != nil {
		return fmt.Errorf("updating quality score: %w", err)
	}
	return nil
}

// Metrics aggregates the ledger and feedback into a snapshot.
func (e *Engine) Metrics() (storage.Metrics, error) {
	return e.store.Snapshot()
}
