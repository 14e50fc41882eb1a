// Package fingerprint derives the stable cache key for a generation request.
//
// Two requests that normalize to the same key material always produce the
// same fingerprint; this is the sole identity used for exact cache lookups.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// Mode distinguishes text-only requests from image-guided ones.
type Mode string

const (
	ModeText  Mode = "text"
	ModeImage Mode = "image"
)

var whitespace = strings.Fields

// Normalize trims the prompt, lowercases it, and collapses internal
// whitespace runs to a single space.
func Normalize(prompt string) string {
	return strings.Join(whitespace(strings.ToLower(strings.TrimSpace(prompt))), " ")
}

// Key builds the raw key material for a request. In image mode the stored
// image's basename is folded in so that the same prompt paired with
// different images never collides; "none" marks an image-mode request
// without an uploaded image. The prompt is normalized before the reference
// is appended, so whitespace variants share a key in every mode.
func Key(prompt string, mode Mode, imageRef string) string {
	if mode != ModeImage {
		return Normalize(prompt)
	}
	ref := "none"
	if imageRef != "" {
		ref = strings.ToLower(filepath.Base(imageRef))
	}
	return Normalize(prompt) + "::image@" + ref
}

// Fingerprint returns the hex SHA-256 digest of the request's key material.
func Fingerprint(prompt string, mode Mode, imageRef string) string {
	sum := sha256.Sum256([]byte(Key(prompt, mode, imageRef)))
	return hex.EncodeToString(sum[:])
}
