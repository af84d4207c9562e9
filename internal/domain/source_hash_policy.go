package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SourceHashPolicy defines the logic to compute a stable hash for a page's
// scraped content. It ensures idempotency: indexing the same title+text again
// is a no-op because the hash matches the current version.
type SourceHashPolicy interface {
	Compute(title, text string) string
}

type sourceHashPolicy struct{}

// NewSourceHashPolicy creates a new instance of the default SourceHashPolicy.
func NewSourceHashPolicy() SourceHashPolicy {
	return &sourceHashPolicy{}
}

// Compute returns the SHA-256 hash of the normalized content. A null byte
// separates title and text to avoid ambiguity between the two fields.
func (p *sourceHashPolicy) Compute(title, text string) string {
	normalizedTitle := strings.TrimSpace(title)
	normalizedText := strings.TrimSpace(text)

	content := normalizedTitle + "\x00" + normalizedText

	hash := sha256.Sum256([]byte(content))
	return hex.EncodeToString(hash[:])
}
