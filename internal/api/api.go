// Package api exposes the generation engine over HTTP and MCP.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/halvard/meshgen/internal/assets"
	"github.com/halvard/meshgen/internal/engine"
	"github.com/halvard/meshgen/internal/fingerprint"
	"github.com/halvard/meshgen/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxUploadBodySize = 10 << 20 // 10MB

// AppDeps holds dependencies for the HTTP handler.
type AppDeps struct {
	Engine    *engine.Engine
	Token     string
	ModelDir  string
	UploadDir string
}

// GenerateRequest is the submit payload.
type GenerateRequest struct {
	Prompt      string `json:"prompt"`
	Mode        string `json:"mode"`
	ImageRef    string `json:"image_ref"`
	Provider    string `json:"provider"`
	ReusePolicy string `json:"reuse_policy"`
}

// FeedbackRequest is the rating payload.
type FeedbackRequest struct {
	Rating  int      `json:"rating"`
	Issues  []string `json:"issues"`
	Comment string   `json:"comment"`
}

// GenerationResponse is the wire form of a ledger record.
type GenerationResponse struct {
	ID         int64  `json:"id"`
	Prompt     string `json:"prompt"`
	Mode       string `json:"mode"`
	ImageRef   string `json:"image_ref,omitempty"`
	Provider   string `json:"provider"`
	AssetPath  string `json:"asset_path"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	CacheHit   int    `json:"cache_hit"`
	ReuseOf    *int64 `json:"reuse_of,omitempty"`
	CreatedAt  string `json:"created_at"`
}

func toResponse(g storage.Generation) GenerationResponse {
	resp := GenerationResponse{
		ID:         g.ID,
		Prompt:     g.Prompt,
		Mode:       g.Mode,
		ImageRef:   g.ImageRef,
		Provider:   g.Provider,
		AssetPath:  g.AssetPath,
		Status:     g.Status,
		DurationMS: g.Duration.Milliseconds(),
		CacheHit:   g.CacheHit,
		CreatedAt:  g.CreatedAt.Format(time.RFC3339),
	}
	if g.ReuseOf != 0 {
		reuseOf := g.ReuseOf
		resp.ReuseOf = &reuseOf
	}
	return resp
}

// NewAppHandler builds the HTTP router. Everything except /health requires
// bearer auth.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/v1/generations", handleSubmit(deps))
		r.Get("/v1/generations", handleListGenerations(deps))
		r.Get("/v1/generations/{id}", handleGetGeneration(deps))
		r.Post("/v1/generations/{id}/feedback", handleFeedback(deps))
		r.Get("/v1/metrics", handleMetrics(deps))
		r.Post("/v1/uploads", handleUpload(deps))
		r.Get("/v1/assets/{name}", handleDownload(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleSubmit(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		mode := fingerprint.Mode(req.Mode)
		if mode == "" {
			mode = fingerprint.ModeText
		}
		if mode != fingerprint.ModeText && mode != fingerprint.ModeImage {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "mode must be %q or %q", fingerprint.ModeText, fingerprint.ModeImage)
			return
		}
		if mode == fingerprint.ModeText && strings.TrimSpace(req.Prompt) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "prompt is required in text mode")
			return
		}

		policy := engine.ReusePolicy(req.ReusePolicy)
		switch policy {
		case "", engine.PolicySmart, engine.PolicyAlways, engine.PolicyNever:
		default:
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown reuse_policy %q", req.ReusePolicy)
			return
		}

		g, err := deps.Engine.Submit(r.Context(), engine.Request{
			Prompt:      req.Prompt,
			Mode:        mode,
			ImageRef:    req.ImageRef,
			Provider:    req.Provider,
			ReusePolicy: policy,
		})
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "generation failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(toResponse(g))
	}
}

func handleListGenerations(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 10, 100)
		gens, err := deps.Engine.Recent(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list generations: %v", err)
			return
		}

		resp := make([]GenerationResponse, 0, len(gens))
		for _, g := range gens {
			resp = append(resp, toResponse(g))
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleGetGeneration(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid generation id")
			return
		}

		g, err := deps.Engine.Generation(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found_error", "generation %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get generation: %v", err)
			return
		}

		fb, err := deps.Engine.Feedback(id)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list feedback: %v", err)
			return
		}
		fbResp := make([]map[string]any, 0, len(fb))
		for _, f := range fb {
			issues := []string{}
			if err := json.Unmarshal([]byte(f.Issues), &issues); err != nil {
				slog.Warn("malformed issues on feedback row", "feedback_id", f.ID, "error", err)
				issues = []string{}
			}
			fbResp = append(fbResp, map[string]any{
				"id":         f.ID,
				"rating":     f.Rating,
				"issues":     issues,
				"comment":    f.Comment,
				"created_at": f.CreatedAt.Format(time.RFC3339),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"generation": toResponse(g),
			"stats":      assets.OBJStats(g.AssetPath),
			"feedback":   fbResp,
		})
	}
}

func handleFeedback(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid generation id")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req FeedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		err = deps.Engine.RecordFeedback(id, req.Rating, req.Issues, req.Comment)
		switch {
		case errors.Is(err, storage.ErrNotFound):
			httpError(w, http.StatusNotFound, "not_found_error", "generation %d not found", id)
			return
		case errors.Is(err, engine.ErrInvalidRating):
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "failed to record feedback: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
	}
}

func handleMetrics(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.Engine.Metrics()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to aggregate metrics: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(m)
	}
}

func handleUpload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadBodySize)
		if err := r.ParseMultipartForm(maxUploadBodySize); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid multipart form: %v", err)
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "image file is required")
			return
		}
		defer file.Close()

		ext := strings.ToLower(filepath.Ext(header.Filename))
		if ext == "" {
			ext = ".png"
		}
		name := fmt.Sprintf("upl_%s%s", uuid.New().String(), ext)

		if err := os.MkdirAll(deps.UploadDir, 0o755); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "creating upload directory: %v", err)
			return
		}
		dst, err := os.Create(filepath.Join(deps.UploadDir, name))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storing upload: %v", err)
			return
		}
		defer dst.Close()
		if _, err := io.Copy(dst, file); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storing upload: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"image_ref": name})
	}
}

func handleDownload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")

		// Only files directly under the model dir are served.
		path := filepath.Join(deps.ModelDir, filepath.Base(name))
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			httpError(w, http.StatusNotFound, "not_found_error", "asset %q not found", name)
			return
		}

		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(name)))
		http.ServeFile(w, r, path)
	}
}

func parseIntParam(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		return def
	}
	if max > 0 && v > max {
		return max
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
