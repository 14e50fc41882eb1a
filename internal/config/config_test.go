package config

import (
	"os"
	"path/filepath"
	"testing"
)

type mapBackend map[string]any

func (m mapBackend) GetString(key string) (string, bool, error) {
	v, ok := m[key]
	if !ok {
		return "", false, nil
	}
	return v.(string), true, nil
}

func (m mapBackend) GetInt(key string) (int, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	return v.(int), true, nil
}

func (m mapBackend) GetFloat(key string) (float64, bool, error) {
	v, ok := m[key]
	if !ok {
		return 0, false, nil
	}
	return v.(float64), true, nil
}

func TestDefaults(t *testing.T) {
	cfg, err := loadWith(mapBackend{})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 4600 {
		t.Errorf("port = %d, want 4600", cfg.Server.Port)
	}
	if cfg.Cache.SimilarityThreshold != 0.92 {
		t.Errorf("threshold = %v, want 0.92", cfg.Cache.SimilarityThreshold)
	}
	if cfg.Cache.QualityFloor != 3.5 {
		t.Errorf("quality floor = %v, want 3.5", cfg.Cache.QualityFloor)
	}
	if cfg.Provider.Default != "meshy" {
		t.Errorf("default provider = %q, want meshy", cfg.Provider.Default)
	}
}

func TestBackendOverridesDefaults(t *testing.T) {
	cfg, err := loadWith(mapBackend{
		"server.port":      5000,
		"provider.default": "mock",
	})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Provider.Default != "mock" {
		t.Errorf("default provider = %q, want mock", cfg.Provider.Default)
	}
}

func TestEnvOverridesBackend(t *testing.T) {
	t.Setenv("MESHGEN_SERVER_PORT", "7000")
	t.Setenv("MESHGEN_SIMILARITY_THRESHOLD", "0.8")

	cfg, err := loadWith(mapBackend{"server.port": 5000})
	if err != nil {
		t.Fatalf("loadWith: %v", err)
	}
	if cfg.Server.Port != 7000 {
		t.Errorf("port = %d, want env override 7000", cfg.Server.Port)
	}
	if cfg.Cache.SimilarityThreshold != 0.8 {
		t.Errorf("threshold = %v, want env override 0.8", cfg.Cache.SimilarityThreshold)
	}
}

func TestInvalidThresholdRejected(t *testing.T) {
	if _, err := loadWith(mapBackend{"cache.similarity_threshold": 1.5}); err == nil {
		t.Error("expected error for threshold > 1")
	}
}

func TestDataDirPaths(t *testing.T) {
	cfg := defaults()
	cfg.Storage.DataDir = "/tmp/mg"
	if cfg.ModelDir() != filepath.Join("/tmp/mg", "models") {
		t.Errorf("ModelDir = %q", cfg.ModelDir())
	}
	if cfg.UploadDir() != filepath.Join("/tmp/mg", "uploads") {
		t.Errorf("UploadDir = %q", cfg.UploadDir())
	}
}

// TestAPITokenStable verifies the token is created once and re-read on
// subsequent calls.
func TestAPITokenStable(t *testing.T) {
	dir := t.TempDir()

	tok1, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("GetAPIToken: %v", err)
	}
	if tok1 == "" {
		t.Fatal("empty token")
	}

	tok2, err := GetAPIToken(dir)
	if err != nil {
		t.Fatalf("second GetAPIToken: %v", err)
	}
	if tok1 != tok2 {
		t.Errorf("token changed across calls: %q vs %q", tok1, tok2)
	}

	info, err := os.Stat(filepath.Join(dir, "api_token"))
	if err != nil {
		t.Fatalf("stat token file: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("token file mode = %v, want 0600", info.Mode().Perm())
	}
}
