// Package extract separates prose explanation from embedded file blocks in
// generated assistant text.
//
// A file block is a line of the form "FILE_PATH: <path>" immediately
// followed by a fenced code region. The scan is a deliberate line-by-line
// state machine rather than a regexp so that malformed input (an opening
// fence that is never closed, a fence with no path marker) has exactly one
// specified behavior: the text stays explanation, nothing is dropped.
package extract

import "strings"

const (
	pathMarker = "FILE_PATH:"
	fence      = "```"
)

// Language tags accepted on an opening fence. An unrecognized tag means the
// fence is not treated as a file block.
var fenceLanguages = map[string]bool{
	"":           true,
	"js":         true,
	"jsx":        true,
	"ts":         true,
	"tsx":        true,
	"javascript": true,
	"typescript": true,
}

// Content is the result of an extraction. Files maps normalized relative
// paths to file contents; Explanation is the prose outside recognized
// blocks, each segment trimmed and joined in original order.
type Content struct {
	Explanation string
	Files       map[string]string
}

// Extract splits text into explanation prose and embedded files. It is a
// pure function: calling it on every growing prefix of a stream and calling
// it once on the final text produce the same final result.
func Extract(text string) Content {
	lines := strings.Split(text, "\n")
	files := make(map[string]string)

	var segments []string
	var prose []string

	flush := func() {
		if len(prose) == 0 {
			return
		}
		segment := strings.TrimSpace(strings.Join(prose, "\n"))
		if segment != "" {
			segments = append(segments, segment)
		}
		prose = prose[:0]
	}

	for i := 0; i < len(lines); {
		path, end, ok := matchFileBlock(lines, i)
		if !ok {
			prose = append(prose, lines[i])
			i++
			continue
		}

		flush()
		// Duplicate paths: the later block wins outright.
		files[path] = strings.Join(lines[i+2:end], "\n")
		i = end + 1
	}
	flush()

	return Content{
		Explanation: strings.Join(segments, "\n\n"),
		Files:       files,
	}
}

// matchFileBlock reports whether a complete file block starts at line i:
// the path marker line, an opening fence on the next line, and a closing
// fence somewhere before end of input. end is the index of the closing
// fence line. Both delimiters must be present; a dangling open fence does
// not match.
func matchFileBlock(lines []string, i int) (path string, end int, ok bool) {
	marker := strings.TrimSpace(lines[i])
	if !strings.HasPrefix(marker, pathMarker) {
		return "", 0, false
	}
	path = normalizePath(strings.TrimSpace(strings.TrimPrefix(marker, pathMarker)))
	if path == "" {
		return "", 0, false
	}

	if i+1 >= len(lines) || !isOpeningFence(lines[i+1]) {
		return "", 0, false
	}

	for j := i + 2; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == fence {
			return path, j, true
		}
	}
	return "", 0, false
}

func isOpeningFence(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, fence) {
		return false
	}
	tag := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, fence)))
	return fenceLanguages[tag]
}

// normalizePath strips a single leading "./". Paths are otherwise used
// verbatim as mapping keys.
func normalizePath(path string) string {
	return strings.TrimPrefix(path, "./")
}
