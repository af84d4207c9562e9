package domain

import "fmt"

// ConfigError signals an invalid static configuration value, such as a chunk
// overlap that is not smaller than the chunk size or an embedding dimension
// mismatch. It is fatal at startup and never retried.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// NewConfigError creates a ConfigError for the given field.
func NewConfigError(field, reason string) *ConfigError {
	return &ConfigError{Field: field, Reason: reason}
}

// EmbeddingError signals that the embedding backend was unavailable, timed
// out, or returned vectors of the wrong shape. During indexing it aborts the
// current page only; on the query path it is surfaced to the caller.
type EmbeddingError struct {
	Reason string
	Cause  error
}

func (e *EmbeddingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("embedding failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("embedding failed: %s", e.Reason)
}

func (e *EmbeddingError) Unwrap() error {
	return e.Cause
}

// NewEmbeddingError creates an EmbeddingError wrapping an optional cause.
func NewEmbeddingError(reason string, cause error) *EmbeddingError {
	return &EmbeddingError{Reason: reason, Cause: cause}
}

// IndexCorruptionError signals that the persisted index metadata disagrees
// with the stored vectors (count drift, dimension or algorithm version
// mismatch). The caller is expected to trigger a full rebuild when the source
// contents are still available, and to fail fast otherwise.
type IndexCorruptionError struct {
	Reason string
}

func (e *IndexCorruptionError) Error() string {
	return fmt.Sprintf("index corrupted: %s", e.Reason)
}

// NewIndexCorruptionError creates an IndexCorruptionError.
func NewIndexCorruptionError(reason string) *IndexCorruptionError {
	return &IndexCorruptionError{Reason: reason}
}
