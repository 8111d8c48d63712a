package extract

import (
	"strings"
	"testing"
)

func TestExtractRoundTrip(t *testing.T) {
	input := strings.Join([]string{
		"Here is your app.",
		"FILE_PATH: App.js",
		"```jsx",
		"export default function App() { return null; }",
		"```",
		"Enjoy!",
	}, "\n")

	got := Extract(input)

	if got.Explanation != "Here is your app.\n\nEnjoy!" {
		t.Errorf("Explanation = %q, want %q", got.Explanation, "Here is your app.\n\nEnjoy!")
	}
	if len(got.Files) != 1 {
		t.Fatalf("len(Files) = %d, want 1", len(got.Files))
	}
	want := "export default function App() { return null; }"
	if got.Files["App.js"] != want {
		t.Errorf("Files[App.js] = %q, want %q", got.Files["App.js"], want)
	}
}

func TestExtractEdgeCases(t *testing.T) {
	t.Run("unmatched fence is not a file", func(t *testing.T) {
		input := "FILE_PATH: a.js\n```js\nconsole.log(1)"
		got := Extract(input)
		if len(got.Files) != 0 {
			t.Errorf("Files = %v, want empty", got.Files)
		}
		if !strings.Contains(got.Explanation, "console.log(1)") {
			t.Errorf("unmatched block content must remain in explanation, got %q", got.Explanation)
		}
		if !strings.Contains(got.Explanation, "FILE_PATH: a.js") {
			t.Errorf("marker line must remain in explanation, got %q", got.Explanation)
		}
	})

	t.Run("fence without marker is explanation", func(t *testing.T) {
		input := "```js\nconst x = 1\n```"
		got := Extract(input)
		if len(got.Files) != 0 {
			t.Errorf("Files = %v, want empty", got.Files)
		}
		if !strings.Contains(got.Explanation, "const x = 1") {
			t.Errorf("Explanation = %q, missing fence content", got.Explanation)
		}
	})

	t.Run("marker without fence is explanation", func(t *testing.T) {
		input := "FILE_PATH: a.js\nno fence here"
		got := Extract(input)
		if len(got.Files) != 0 {
			t.Errorf("Files = %v, want empty", got.Files)
		}
	})

	t.Run("duplicate path last wins", func(t *testing.T) {
		input := strings.Join([]string{
			"FILE_PATH: App.js",
			"```js",
			"first",
			"```",
			"FILE_PATH: App.js",
			"```js",
			"second",
			"```",
		}, "\n")
		got := Extract(input)
		if got.Files["App.js"] != "second" {
			t.Errorf("Files[App.js] = %q, want %q", got.Files["App.js"], "second")
		}
	})

	t.Run("leading dot slash is stripped once", func(t *testing.T) {
		input := "FILE_PATH: ./src/App.tsx\n```tsx\nx\n```"
		got := Extract(input)
		if _, ok := got.Files["src/App.tsx"]; !ok {
			t.Errorf("Files = %v, want key %q", got.Files, "src/App.tsx")
		}
	})

	t.Run("unknown language tag is not a file block", func(t *testing.T) {
		input := "FILE_PATH: main.py\n```python\nprint(1)\n```"
		got := Extract(input)
		if len(got.Files) != 0 {
			t.Errorf("Files = %v, want empty for non-JS/TS fence", got.Files)
		}
	})

	t.Run("untagged fence is accepted", func(t *testing.T) {
		input := "FILE_PATH: index.js\n```\nmodule.exports = {}\n```"
		got := Extract(input)
		if got.Files["index.js"] != "module.exports = {}" {
			t.Errorf("Files[index.js] = %q, want %q", got.Files["index.js"], "module.exports = {}")
		}
	})

	t.Run("multiline file content preserved verbatim", func(t *testing.T) {
		input := "FILE_PATH: App.js\n```js\nline1\n\n  indented\n```"
		got := Extract(input)
		if got.Files["App.js"] != "line1\n\n  indented" {
			t.Errorf("Files[App.js] = %q", got.Files["App.js"])
		}
	})

	t.Run("empty input", func(t *testing.T) {
		got := Extract("")
		if got.Explanation != "" || len(got.Files) != 0 {
			t.Errorf("got %+v, want zero value", got)
		}
	})

	t.Run("multiple files with interleaved prose", func(t *testing.T) {
		input := strings.Join([]string{
			"Two files coming up.",
			"FILE_PATH: a.js",
			"```js",
			"a",
			"```",
			"And the second:",
			"FILE_PATH: b.ts",
			"```typescript",
			"b",
			"```",
			"Done.",
		}, "\n")
		got := Extract(input)
		if len(got.Files) != 2 {
			t.Fatalf("len(Files) = %d, want 2", len(got.Files))
		}
		if got.Files["a.js"] != "a" || got.Files["b.ts"] != "b" {
			t.Errorf("Files = %v", got.Files)
		}
		want := "Two files coming up.\n\nAnd the second:\n\nDone."
		if got.Explanation != want {
			t.Errorf("Explanation = %q, want %q", got.Explanation, want)
		}
	})
}

// Extraction of the final text must not depend on how many times it was run
// on growing prefixes during the stream.
func TestExtractIdempotentOnFinalText(t *testing.T) {
	final := strings.Join([]string{
		"Intro.",
		"FILE_PATH: App.js",
		"```jsx",
		"content line",
		"```",
		"Outro.",
	}, "\n")

	var last Content
	for i := 1; i <= len(final); i++ {
		last = Extract(final[:i])
	}
	direct := Extract(final)

	if last.Explanation != direct.Explanation {
		t.Errorf("progressive Explanation = %q, direct = %q", last.Explanation, direct.Explanation)
	}
	if len(last.Files) != len(direct.Files) {
		t.Fatalf("progressive files = %v, direct = %v", last.Files, direct.Files)
	}
	for path, content := range direct.Files {
		if last.Files[path] != content {
			t.Errorf("Files[%q] = %q, want %q", path, last.Files[path], content)
		}
	}
}
