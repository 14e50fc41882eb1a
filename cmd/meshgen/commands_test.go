package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/spf13/cobra"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found_error"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestGenerateRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/generations": `{"id":7,"prompt":"a red dragon","mode":"text","provider":"meshy","asset_path":"/models/abc_cube.obj","status":"ok","duration_ms":42,"cache_hit":0,"created_at":"2026-01-01T00:00:00Z"}`,
	})

	client := ts.client()

	req := map[string]any{
		"prompt":       "a red dragon",
		"provider":     "",
		"reuse_policy": "smart",
	}

	resp, err := client.post(ctx, "/v1/generations", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result generationResult
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if result.ID != 7 {
		t.Errorf("id = %d, want 7", result.ID)
	}
	if result.CacheHit != 0 {
		t.Errorf("cache_hit = %d, want 0", result.CacheHit)
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}

	r := ts.requests[0]
	if r.Method != "POST" {
		t.Errorf("method = %q, want POST", r.Method)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["prompt"] != "a red dragon" {
		t.Errorf("body.prompt = %v, want 'a red dragon'", body["prompt"])
	}
	if body["reuse_policy"] != "smart" {
		t.Errorf("body.reuse_policy = %v, want smart", body["reuse_policy"])
	}
}

func TestGenerateCommand_MissingArgs(t *testing.T) {
	defer rootCmd.SetArgs(nil)

	rootCmd.SetArgs([]string{"generate"})
	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestGenerateBatch(t *testing.T) {
	var nextID atomic.Int64
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":        nextID.Add(1),
			"prompt":    req["prompt"],
			"cache_hit": 0,
		})
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "test",
		httpClient: ts.Client(),
	}

	promptsFile := filepath.Join(t.TempDir(), "prompts.txt")
	content := "a red dragon\n\n# comment line\nlow poly fox\nshiny robot\n"
	if err := os.WriteFile(promptsFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)

	if err := generateBatch(cmd, client, promptsFile, "", "smart"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := nextID.Load(); got != 3 {
		t.Errorf("server saw %d submissions, want 3 (blank and comment lines skipped)", got)
	}
}

func TestGenerateBatch_EmptyFile(t *testing.T) {
	promptsFile := filepath.Join(t.TempDir(), "prompts.txt")
	if err := os.WriteFile(promptsFile, []byte("\n# only a comment\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cmd := &cobra.Command{}
	cmd.SetContext(ctx)

	// No server needed: nothing gets submitted.
	if err := generateBatch(cmd, nil, promptsFile, "", ""); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestUploadImage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		f, header, err := r.FormFile("image")
		if err != nil {
			t.Errorf("form file: %v", err)
		} else {
			f.Close()
			if header.Filename != "fox.png" {
				t.Errorf("filename = %q, want fox.png", header.Filename)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"image_ref":"upl_abc.png"}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "test",
		httpClient: ts.Client(),
	}

	imagePath := filepath.Join(t.TempDir(), "fox.png")
	if err := os.WriteFile(imagePath, []byte("not a real png"), 0o644); err != nil {
		t.Fatal(err)
	}

	ref, err := client.upload(ctx, "/v1/uploads", imagePath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref != "upl_abc.png" {
		t.Errorf("image_ref = %q, want upl_abc.png", ref)
	}
}

func TestFeedbackRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /v1/generations/12/feedback": `{"status":"recorded"}`,
	})

	client := ts.client()

	req := map[string]any{
		"rating":  4,
		"issues":  []string{"low-poly"},
		"comment": "decent",
	}

	resp, err := client.post(ctx, "/v1/generations/12/feedback", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "recorded" {
		t.Errorf("status = %q, want recorded", result["status"])
	}

	var sentBody map[string]any
	if err := json.Unmarshal([]byte(ts.requests[0].Body), &sentBody); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if sentBody["rating"] != float64(4) {
		t.Errorf("body.rating = %v, want 4", sentBody["rating"])
	}
}

func TestHistoryList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/generations": `[{"id":2,"prompt":"low poly fox","cache_hit":1,"created_at":"2026-01-02T00:00:00Z"},{"id":1,"prompt":"low poly fox","cache_hit":0,"created_at":"2026-01-01T00:00:00Z"}]`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/v1/generations?limit=10")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var results []generationResult
	if err := decodeJSON(resp, &results); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("expected 2 generations, got %d", len(results))
	}
	if results[0].ID != 2 {
		t.Errorf("first id = %d, want 2 (newest first)", results[0].ID)
	}
	if results[0].CacheHit != 1 {
		t.Errorf("cache_hit = %d, want 1", results[0].CacheHit)
	}
}

func TestMetricsDecode(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /v1/metrics": `{"total_generations":4,"cache_hit_rate_percent":50.0,"avg_rating":4.5,"avg_fresh_generation_ms":120.0,"top_prompts":[{"prompt":"low poly fox","count":3}]}`,
	})

	client := ts.client()
	resp, err := client.get(ctx, "/v1/metrics")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var m struct {
		TotalGenerations int64    `json:"total_generations"`
		CacheHitRate     float64  `json:"cache_hit_rate_percent"`
		AvgRating        *float64 `json:"avg_rating"`
	}
	if err := decodeJSON(resp, &m); err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if m.TotalGenerations != 4 {
		t.Errorf("total = %d, want 4", m.TotalGenerations)
	}
	if m.CacheHitRate != 50.0 {
		t.Errorf("hit rate = %f, want 50.0", m.CacheHitRate)
	}
	if m.AvgRating == nil || *m.AvgRating != 4.5 {
		t.Errorf("avg rating = %v, want 4.5", m.AvgRating)
	}
}

func TestCacheHitLabel(t *testing.T) {
	tests := []struct {
		hit  int
		want string
	}{
		{0, "fresh"},
		{1, "exact cache hit"},
		{2, "similar cache hit"},
		{9, "fresh"},
	}
	for _, tt := range tests {
		if got := cacheHitLabel(tt.hit); got != tt.want {
			t.Errorf("cacheHitLabel(%d) = %q, want %q", tt.hit, got, tt.want)
		}
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=true should not contain ANSI codes, got %q", result)
	}
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(401)
		w.Write([]byte(`{"error":{"message":"unauthorized","type":"auth_error"}}`))
	}))
	defer ts.Close()

	client := &apiClient{
		baseURL:    ts.URL,
		token:      "bad-token",
		httpClient: ts.Client(),
	}

	resp, err := client.get(ctx, "/v1/metrics")
	if err != nil {
		t.Fatalf("unexpected transport error: %v", err)
	}

	var result any
	err = decodeJSON(resp, &result)
	if err == nil {
		t.Fatal("expected error for 401 response")
	}
	if !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %q, want it to contain '401'", err.Error())
	}
	if !strings.Contains(err.Error(), "unauthorized") {
		t.Errorf("error = %q, want it to contain the server message", err.Error())
	}
}

func TestStatusCommand_Stopped(t *testing.T) {
	ts := newTestServer(t, map[string]string{})
	ts.server.Close()

	client := ts.client()
	_, err := client.get(ctx, "/health")
	if err == nil {
		t.Fatal("expected error for stopped server")
	}
	if !strings.Contains(err.Error(), "not reachable") {
		t.Errorf("error = %q, want it to mention 'not reachable'", err.Error())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 60, "short"},
		{"exactly-five!", 13, "exactly-five!"},
		{"a long prompt", 6, "a long..."},
		{"日本語のプロンプトです", 4, "日本語の..."},
		{"", 60, ""},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestPrintHelpers(t *testing.T) {
	oldOut := stderr
	oldColor := noColor
	var buf bytes.Buffer
	stderr = &buf
	noColor = true
	defer func() {
		stderr = oldOut
		noColor = oldColor
	}()

	printSuccess("done %d", 3)
	printError("failed")
	printStep("working")
	printStatus("Provider", "%s", "meshy")

	got := buf.String()
	for _, want := range []string{"✓ done 3", "✗ failed", "→ working", "  Provider: meshy"} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q, got:\n%s", want, got)
		}
	}
}
