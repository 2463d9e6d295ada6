package handlers

import (
	"fmt"
	"net/http"

	"github.com/pagesmith-dev/pagesmith/internal/artifact"
)

// HandleDownload serves the current artifact as a file attachment.
func (m *Main) HandleDownload(w http.ResponseWriter, r *http.Request) {
	art, ok := m.currentArtifact(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", artifact.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Filename))
	_, _ = w.Write([]byte(art.SourceText))
}

// HandleRaw serves the artifact source as plain text, for copying or opening
// in a new tab.
func (m *Main) HandleRaw(w http.ResponseWriter, r *http.Request) {
	art, ok := m.currentArtifact(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(art.SourceText))
}

func (m *Main) currentArtifact(w http.ResponseWriter, r *http.Request) (artifact.Artifact, bool) {
	userKey := userKeyFromRequest(r)

	us, err := m.userSessionFor(r.Context(), userKey)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return artifact.Artifact{}, false
	}

	art, ok := us.orchestrator.Artifact()
	if !ok {
		http.Error(w, "No generated page yet", http.StatusNotFound)
		return artifact.Artifact{}, false
	}

	return art, true
}
