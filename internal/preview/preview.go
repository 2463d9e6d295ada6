// Package preview renders extracted artifacts into an isolated,
// non-persistent execution context. The artifact document is served into a
// sandboxed iframe: scripts inside the artifact may run, but the document is
// denied the hosting page's origin and storage.
package preview

import (
	"net/http"
	"strconv"
	"sync"

	"github.com/pagesmith-dev/pagesmith/internal/artifact"
)

// placeholder is served while no artifact exists. Rendering never happened
// or was cleared; invoking the preview in this state is a no-op surface.
const placeholder = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Preview</title></head>
<body style="display:flex;align-items:center;justify-content:center;height:100vh;margin:0;font-family:sans-serif;color:#64748b;background:#f8fafc">
<p>Your generated landing page will appear here</p>
</body>
</html>
`

// Renderer holds one user's current preview document. Each Render call
// fully replaces prior content, so no DOM or script state can leak between
// artifacts; the iframe reloads a fresh document identified by revision.
type Renderer struct {
	mu       sync.Mutex
	document string
	revision uint64
}

// NewRenderer creates a renderer in the placeholder state.
func NewRenderer() *Renderer {
	return &Renderer{document: placeholder}
}

// Render replaces the current document with the artifact's source text,
// written wholesale. Rendering the same artifact twice produces an
// observably identical document.
func (r *Renderer) Render(a artifact.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.document = a.SourceText
	r.revision++
}

// Clear discards the current document and returns to the placeholder state.
func (r *Renderer) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.document = placeholder
	r.revision++
}

// Snapshot returns the current document and its revision. The revision
// changes on every replacement, letting the client reload the frame only
// when content actually changed.
func (r *Renderer) Snapshot() (string, uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.document, r.revision
}

// ServeHTTP serves the current document as a standalone sandboxed page. The
// CSP sandbox directive permits script execution inside the artifact while
// denying same-origin access to the host application.
func (r *Renderer) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	doc, rev := r.Snapshot()

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Security-Policy", "sandbox allow-scripts")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Preview-Revision", strconv.FormatUint(rev, 10))
	_, _ = w.Write([]byte(doc))
}
