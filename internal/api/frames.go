package api

import (
	"bytes"
	"encoding/json"
	"strings"
)

const dataPrefix = "data:"

// FrameParser splits a generation response body into logical protocol
// events. Frames are newline-delimited; a frame carrying the data: sentinel
// is decoded as JSON, anything else is treated as literal text. The parser
// is stateful: a chunk may end mid-line, so the unterminated tail is
// buffered until the next Feed (or Flush). Buffering raw bytes also keeps
// UTF-8 sequences split across chunk boundaries intact, since the delimiter
// byte never occurs inside a multi-byte sequence.
type FrameParser struct {
	buf []byte
}

// Feed consumes the next chunk of the response body and returns the events
// for every complete frame it contained, in wire order.
func (p *FrameParser) Feed(chunk []byte) []Event {
	p.buf = append(p.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(p.buf, '\n')
		if i < 0 {
			break
		}
		line := string(p.buf[:i])
		p.buf = p.buf[i+1:]
		events = append(events, parseFrame(strings.TrimSuffix(line, "\r"))...)
	}
	return events
}

// Flush parses any buffered partial frame as the final frame of the stream.
// Call once after the body is exhausted.
func (p *FrameParser) Flush() []Event {
	if len(p.buf) == 0 {
		return nil
	}
	line := string(p.buf)
	p.buf = nil
	return parseFrame(strings.TrimSuffix(line, "\r"))
}

// parseFrame turns one frame line into zero or more events.
//
// Decoding is tolerant by design: the generation service may interleave
// plain text with SSE-style JSON frames, and a malformed frame must degrade
// to literal text rather than be dropped.
func parseFrame(line string) []Event {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	if !strings.HasPrefix(line, dataPrefix) {
		// Non-sentinel, non-blank line: literal text.
		return []Event{{Type: EventTextDelta, Text: line}}
	}

	payload := strings.TrimPrefix(line, dataPrefix)
	payload = strings.TrimPrefix(payload, " ")
	if strings.TrimSpace(payload) == "" {
		return nil
	}

	var f frame
	if err := json.Unmarshal([]byte(payload), &f); err == nil {
		var events []Event
		if f.Content != nil {
			events = append(events, Event{Type: EventTextDelta, Text: *f.Content})
		}
		if f.ConversationID != "" || f.Files != nil || f.PreviewURL != nil {
			events = append(events, Event{
				Type:           EventMetadata,
				ConversationID: f.ConversationID,
				Files:          f.Files,
				PreviewURL:     f.PreviewURL,
			})
		}
		if events != nil {
			return events
		}
		// Valid JSON but no recognized field: fall through to the literal
		// treatment so the payload is not lost.
	}

	return []Event{{Type: EventTextDelta, Text: payload}}
}
