package fingerprint

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"A Red Dragon", "a red dragon"},
		{"  a red   dragon ", "a red dragon"},
		{"a\tred\n dragon", "a red dragon"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		if got := Normalize(c.in); got != c.want {
			t.Errorf("Normalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestDeterminism verifies prompts differing only in case and whitespace
// runs hash to the same fingerprint, in both modes.
func TestDeterminism(t *testing.T) {
	a := Fingerprint("a red dragon", ModeText, "")
	b := Fingerprint("  A Red   DRAGON ", ModeText, "")
	if a != b {
		t.Errorf("whitespace/case variants produced different fingerprints: %s vs %s", a, b)
	}

	c := Fingerprint("x", ModeImage, "ref.png")
	d := Fingerprint("x ", ModeImage, "ref.png")
	ee := Fingerprint("  X", ModeImage, "REF.png")
	if c != d || c != ee {
		t.Errorf("image-mode variants produced different fingerprints: %s, %s, %s", c, d, ee)
	}
}

// TestModeImageSeparation verifies text, image-without-reference, and the
// two image-reference cases are all distinct identities.
func TestModeImageSeparation(t *testing.T) {
	fps := map[string]string{
		"text": Fingerprint("x", ModeText, ""),
		"img":  Fingerprint("x", ModeImage, ""),
		"imgA": Fingerprint("x", ModeImage, "uploads/ref_a.png"),
		"imgB": Fingerprint("x", ModeImage, "uploads/ref_b.png"),
	}
	seen := make(map[string]string)
	for name, fp := range fps {
		if prev, ok := seen[fp]; ok {
			t.Errorf("fingerprints for %s and %s collide: %s", name, prev, fp)
		}
		seen[fp] = name
	}
}

// TestImageRefBasename verifies only the basename of the reference
// participates in the key, so moving the upload dir doesn't invalidate.
func TestImageRefBasename(t *testing.T) {
	a := Fingerprint("x", ModeImage, "/data/uploads/ref.png")
	b := Fingerprint("x", ModeImage, "ref.png")
	if a != b {
		t.Error("image fingerprint should depend only on the reference basename")
	}
}
