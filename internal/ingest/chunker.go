// Package ingest turns knowledge-base documents into deduplicated, embedded
// chunks. The pipeline is re-entrant rather than transactional: chunk hashes
// are deterministic, so re-running ingestion after a partial failure always
// converges on the same stored chunk set.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// MaxChunkSize caps the word window; oversized requests are clamped rather
// than rejected.
const MaxChunkSize = 400

// ChunkText splits text into fixed-size, overlapping word windows.
// size is clamped to [1, MaxChunkSize]; overlap is clamped to [0, size-1].
// Empty text yields an empty slice. Pure and deterministic.
func ChunkText(text string, size, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	if size < 1 {
		size = 1
	}
	if size > MaxChunkSize {
		size = MaxChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size-1 {
		overlap = size - 1
	}

	var chunks []string
	start := 0
	for start < len(words) {
		end := start + size
		if end > len(words) {
			end = len(words)
		}
		chunk := strings.TrimSpace(strings.Join(words[start:end], " "))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end >= len(words) {
			break
		}
		start = end - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

// HashChunk fingerprints chunk content. Hash equality is the dedup signal:
// two chunks with the same hash within one document are never stored twice.
func HashChunk(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
