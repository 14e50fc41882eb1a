package provider

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Mock is a local provider that writes a placeholder cube OBJ immediately.
// It exists for development and tests; its assets are real files, so the
// cache's write-then-point invariant holds the same as for hosted backends.
type Mock struct {
	modelDir string
}

// NewMock creates a mock provider writing OBJ files into modelDir.
func NewMock(modelDir string) *Mock {
	return &Mock{modelDir: modelDir}
}

func (m *Mock) Slug() string { return "mock" }

func (m *Mock) Generate(ctx context.Context, prompt, imageRef string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	start := time.Now()

	if err := os.MkdirAll(m.modelDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("creating model directory: %w", err)
	}

	seed := prompt
	if seed == "" {
		seed = "image"
	}
	sum := sha256.Sum256([]byte(seed))
	name := hex.EncodeToString(sum[:])[:12] + "_cube.obj"
	path := filepath.Join(m.modelDir, name)

	var b strings.Builder
	b.WriteString(cubeOBJ)
	fmt.Fprintf(&b, "\n# prompt: %s\n", prompt)
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return Result{}, fmt.Errorf("writing model file: %w", err)
	}

	return Result{AssetPath: path, Duration: time.Since(start)}, nil
}

// cubeOBJ is a unit cube: 8 vertices, 6 quad faces.
const cubeOBJ = `o cube
v -0.5 -0.5 -0.5
v -0.5 -0.5 0.5
v -0.5 0.5 -0.5
v -0.5 0.5 0.5
v 0.5 -0.5 -0.5
v 0.5 -0.5 0.5
v 0.5 0.5 -0.5
v 0.5 0.5 0.5
f 1 2 4 3
f 5 7 8 6
f 1 5 6 2
f 3 4 8 7
f 1 3 7 5
f 2 6 8 4
`
