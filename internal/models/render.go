package models

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

var md = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		highlighting.NewHighlighting(
			highlighting.WithStyle("monokai"),
		),
	),
	goldmark.WithRendererOptions(
		html.WithHardWraps(),
	),
)

var htmlFencePattern = regexp.MustCompile("(?s)```html\n.*?\n```")

// RenderContent converts a message body into HTML for the chat pane.
// Generated page source is deliberately not shown inline; the fenced html
// block is collapsed into a short badge and the full source lives in the
// code tab instead.
func RenderContent(content string) (string, error) {
	collapsed := htmlFencePattern.ReplaceAllString(content, "✨ HTML code generated")

	var buf bytes.Buffer
	if err := md.Convert([]byte(collapsed), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return buf.String(), nil
}
