package api

import (
	"strings"
	"testing"
)

func strPtr(s string) *string { return &s }

func TestAccumulatorOrderPreservation(t *testing.T) {
	var chunks []string
	acc := NewAccumulator(func(text string) {
		chunks = append(chunks, text)
	})

	deltas := []string{"Hel", "lo", ", ", "world", "!"}
	for _, d := range deltas {
		acc.Fold(Event{Type: EventTextDelta, Text: d})
	}

	result := acc.Result()
	want := strings.Join(deltas, "")
	if result.Explanation != want {
		t.Errorf("Explanation = %q, want %q", result.Explanation, want)
	}
	if strings.Join(chunks, "") != want {
		t.Errorf("chunk callback concatenation = %q, want %q", strings.Join(chunks, ""), want)
	}
	if len(chunks) != len(deltas) {
		t.Errorf("chunk callback count = %d, want %d", len(chunks), len(deltas))
	}
}

func TestAccumulatorMetadata(t *testing.T) {
	t.Run("conversation id first writer wins", func(t *testing.T) {
		acc := NewAccumulator(nil)
		acc.Fold(Event{Type: EventMetadata, ConversationID: "first"})
		acc.Fold(Event{Type: EventMetadata, ConversationID: "second"})
		if got := acc.Result().ConversationID; got != "first" {
			t.Errorf("ConversationID = %q, want %q", got, "first")
		}
	})

	t.Run("files last writer wins", func(t *testing.T) {
		acc := NewAccumulator(nil)
		acc.Fold(Event{Type: EventMetadata, Files: map[string]string{"a.js": "v1", "b.js": "old"}})
		acc.Fold(Event{Type: EventMetadata, Files: map[string]string{"a.js": "v2"}})
		files := acc.Result().Files
		if len(files) != 1 {
			t.Fatalf("len(files) = %d, want 1 (replacement, not merge)", len(files))
		}
		if files["a.js"] != "v2" {
			t.Errorf("files[a.js] = %q, want %q", files["a.js"], "v2")
		}
	})

	t.Run("preview url last writer wins", func(t *testing.T) {
		acc := NewAccumulator(nil)
		acc.Fold(Event{Type: EventMetadata, PreviewURL: strPtr("https://one")})
		acc.Fold(Event{Type: EventMetadata, PreviewURL: strPtr("https://two")})
		if got := acc.Result().PreviewURL; got != "https://two" {
			t.Errorf("PreviewURL = %q, want %q", got, "https://two")
		}
	})

	t.Run("absent fields do not clobber", func(t *testing.T) {
		acc := NewAccumulator(nil)
		acc.Fold(Event{Type: EventMetadata, ConversationID: "c1", PreviewURL: strPtr("https://one")})
		acc.Fold(Event{Type: EventMetadata, Files: map[string]string{"a.js": "x"}})
		result := acc.Result()
		if result.ConversationID != "c1" {
			t.Errorf("ConversationID = %q, want %q", result.ConversationID, "c1")
		}
		if result.PreviewURL != "https://one" {
			t.Errorf("PreviewURL = %q, want %q", result.PreviewURL, "https://one")
		}
	})
}

func TestAccumulatorEmptyStream(t *testing.T) {
	acc := NewAccumulator(nil)
	result := acc.Result()
	if result.Explanation != "" {
		t.Errorf("Explanation = %q, want empty", result.Explanation)
	}
	if result.ConversationID != "" || result.PreviewURL != "" || len(result.Files) != 0 {
		t.Errorf("expected zero result, got %+v", result)
	}
}
