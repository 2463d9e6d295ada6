// Package artifact extracts the generated HTML document from a completed
// assistant turn and exposes read-only export views over it.
package artifact

import "regexp"

// Artifact is the single extracted code document produced by a completed
// turn. It is replaced wholesale whenever a new stream completes with a
// match, never partially updated.
type Artifact struct {
	SourceText string
}

// Filename is the suggested name for a downloaded artifact.
const Filename = "landing-page.html"

// ContentType is the MIME type an artifact is served with.
const ContentType = "text/html; charset=utf-8"

var fencePattern = regexp.MustCompile("(?s)```html\n(.*?)\n```")

// Extract scans a completed assistant message for a fenced html code block
// and returns its content with the delimiters stripped. The absence of a
// block is not an error, just "no artifact this turn". When multiple blocks
// exist only the first is used, keeping the one-artifact-per-turn invariant.
//
// Extraction operates on final text only, never on a partial stream.
func Extract(finalText string) (Artifact, bool) {
	match := fencePattern.FindStringSubmatch(finalText)
	if match == nil {
		return Artifact{}, false
	}
	return Artifact{SourceText: match[1]}, true
}
