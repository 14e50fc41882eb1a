// Package assets reports basic statistics about generated model files.
// Reporting only; nothing here feeds back into the reuse decision.
package assets

import (
	"bufio"
	"math"
	"os"
	"strings"
)

// Stats summarizes an OBJ file for the detail view.
type Stats struct {
	Vertices   int     `json:"vertices"`
	Faces      int     `json:"faces"`
	FileSizeKB float64 `json:"file_size_kb"`
}

// OBJStats counts vertices and faces in a Wavefront OBJ file. Unreadable
// files yield zero counts rather than an error: the asset may have been
// removed since the ledger row was written.
func OBJStats(path string) Stats {
	var s Stats

	info, err := os.Stat(path)
	if err != nil {
		return s
	}
	s.FileSizeKB = math.Round(float64(info.Size())/1024*100) / 100

	f, err := os.Open(path)
	if err != nil {
		return s
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case strings.HasPrefix(line, "v "):
			s.Vertices++
		case strings.HasPrefix(line, "f "):
			s.Faces++
		}
	}
	return s
}
