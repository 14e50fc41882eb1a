package provider

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestResolveKnownSlug(t *testing.T) {
	reg := Builtin(t.TempDir(), "meshy")
	for _, slug := range []string{"mock", "meshy", "kaedim", "tripoSR"} {
		if p := reg.Resolve(slug); p.Slug() != slug {
			t.Errorf("Resolve(%q).Slug() = %q", slug, p.Slug())
		}
	}
}

// TestResolveUnknownFallsBack verifies the silent fallback to the default
// provider; resolution never fails the request.
func TestResolveUnknownFallsBack(t *testing.T) {
	reg := Builtin(t.TempDir(), "meshy")
	if p := reg.Resolve("no-such-provider"); p.Slug() != "meshy" {
		t.Errorf("unknown slug resolved to %q, want default meshy", p.Slug())
	}
}

func TestMockWritesOBJ(t *testing.T) {
	dir := t.TempDir()
	m := NewMock(dir)

	res, err := m.Generate(context.Background(), "a red dragon", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Duration < 0 {
		t.Errorf("negative duration %v", res.Duration)
	}

	data, err := os.ReadFile(res.AssetPath)
	if err != nil {
		t.Fatalf("reading asset: %v", err)
	}
	content := string(data)
	if !strings.Contains(content, "v -0.5 -0.5 -0.5") {
		t.Error("asset missing cube geometry")
	}
	if !strings.Contains(content, "# prompt: a red dragon") {
		t.Error("asset missing prompt annotation")
	}
}

// TestMockDeterministicPath verifies the same prompt maps to the same
// asset path, so re-generation overwrites rather than accumulates.
func TestMockDeterministicPath(t *testing.T) {
	m := NewMock(t.TempDir())

	r1, err := m.Generate(context.Background(), "castle", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	r2, err := m.Generate(context.Background(), "castle", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if r1.AssetPath != r2.AssetPath {
		t.Errorf("paths differ: %q vs %q", r1.AssetPath, r2.AssetPath)
	}
}

func TestMockCancelledContext(t *testing.T) {
	m := NewMock(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Generate(ctx, "x", ""); err == nil {
		t.Error("expected error from cancelled context")
	}
}
