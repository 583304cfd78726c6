package ingest

import (
	"strings"
	"testing"
)

func TestChunkTextWindows(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("w ", 130))

	chunks := ChunkText(text, 120, 20)
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if got := len(strings.Fields(chunks[0])); got != 120 {
		t.Errorf("chunk 0 words = %d, want 120", got)
	}
	// Second window starts at 120-20=100 and runs to word 130.
	if got := len(strings.Fields(chunks[1])); got != 30 {
		t.Errorf("chunk 1 words = %d, want 30", got)
	}
}

func TestChunkTextOverlapContent(t *testing.T) {
	words := make([]string, 10)
	for i := range words {
		words[i] = string(rune('a' + i))
	}
	chunks := ChunkText(strings.Join(words, " "), 4, 2)

	// Windows: [0:4], [2:6], [4:8], [6:10]
	want := []string{"a b c d", "c d e f", "e f g h", "g h i j"}
	if len(chunks) != len(want) {
		t.Fatalf("chunks = %v", chunks)
	}
	for i := range want {
		if chunks[i] != want[i] {
			t.Errorf("chunk %d = %q, want %q", i, chunks[i], want[i])
		}
	}
}

func TestChunkTextClamps(t *testing.T) {
	tests := []struct {
		name          string
		size, overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"oversized", 10_000, 0},
		{"negative overlap", 10, -3},
		{"overlap exceeds size", 10, 50},
	}
	text := strings.TrimSpace(strings.Repeat("x ", 50))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ChunkText(text, tt.size, tt.overlap)
			if len(chunks) == 0 {
				t.Fatal("expected at least one chunk")
			}
			// Clamped parameters must still terminate and cover all words.
			total := 0
			for _, c := range chunks {
				total += len(strings.Fields(c))
			}
			if total < 50 {
				t.Errorf("chunks cover %d words, want >= 50", total)
			}
		})
	}
}

func TestChunkTextEdgeCases(t *testing.T) {
	if got := ChunkText("", 120, 20); got != nil {
		t.Errorf("empty text: %v", got)
	}
	if got := ChunkText("   \n\t  ", 120, 20); got != nil {
		t.Errorf("whitespace text: %v", got)
	}
	if got := ChunkText("hello", 120, 20); len(got) != 1 || got[0] != "hello" {
		t.Errorf("single word: %v", got)
	}
}

func TestChunkTextDeterministic(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("alpha beta gamma ", 40))
	a := ChunkText(text, 25, 5)
	b := ChunkText(text, 25, 5)
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("chunk %d differs", i)
		}
	}
}

func TestHashChunk(t *testing.T) {
	if HashChunk("hello") != HashChunk("hello") {
		t.Error("hash not deterministic")
	}
	if HashChunk("hello") == HashChunk("world") {
		t.Error("distinct content produced equal hashes")
	}
	if len(HashChunk("x")) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(HashChunk("x")))
	}
}
