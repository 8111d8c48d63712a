package api

import "strings"

// ChunkFunc receives each text delta synchronously, in arrival order. Used
// by callers to animate incremental typing.
type ChunkFunc func(text string)

// Accumulator folds a sequence of protocol events into one GenerationResult.
// Merge policy: text deltas append in order; the conversation ID is
// first-writer-wins (the first frame names the conversation the server
// created, later differing values are ignored); files and preview URL are
// last-writer-wins.
type Accumulator struct {
	onChunk ChunkFunc
	text    strings.Builder
	result  GenerationResult
}

// NewAccumulator creates an accumulator. onChunk may be nil.
func NewAccumulator(onChunk ChunkFunc) *Accumulator {
	return &Accumulator{onChunk: onChunk}
}

// Fold applies one event to the accumulated state.
func (a *Accumulator) Fold(ev Event) {
	switch ev.Type {
	case EventTextDelta:
		a.text.WriteString(ev.Text)
		if a.onChunk != nil {
			a.onChunk(ev.Text)
		}

	case EventMetadata:
		if a.result.ConversationID == "" && ev.ConversationID != "" {
			a.result.ConversationID = ev.ConversationID
		}
		if ev.Files != nil {
			a.result.Files = ev.Files
		}
		if ev.PreviewURL != nil {
			a.result.PreviewURL = *ev.PreviewURL
		}
	}
}

// Result returns the accumulated state. Valid at any point; callers take it
// once the stream has ended.
func (a *Accumulator) Result() GenerationResult {
	r := a.result
	r.Explanation = a.text.String()
	return r
}
