package workspace

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ArtifactType classifies a workspace file for the UI.
type ArtifactType string

const (
	ArtifactImage ArtifactType = "image"
	ArtifactText  ArtifactType = "text"
	ArtifactPDF   ArtifactType = "pdf"
)

// Artifact is one workspace file surfaced to the UI. Derived on demand,
// never persisted.
type Artifact struct {
	Type     ArtifactType `json:"type"`
	Filename string       `json:"filename"`
	ModTime  time.Time    `json:"-"`
}

var imageExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".webp": true, ".svg": true,
}

// Fixed allow-list; anything else is not a text artifact.
var textExtensions = map[string]bool{
	".txt": true, ".py": true, ".js": true, ".css": true, ".html": true,
	".json": true, ".csv": true, ".md": true, ".log": true, ".yaml": true, ".yml": true,
}

// Classify maps a filename to an artifact type. ok is false for unknown
// extensions, which are ignored entirely.
func Classify(filename string) (ArtifactType, bool) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch {
	case imageExtensions[ext]:
		return ArtifactImage, true
	case textExtensions[ext]:
		return ArtifactText, true
	case ext == ".pdf":
		return ArtifactPDF, true
	default:
		return "", false
	}
}

// Artifacts enumerates a task's workspace, classified and sorted by
// modification time descending. A task without a workspace yields an empty
// listing, not an error.
func (m *Manager) Artifacts(taskID string) ([]Artifact, error) {
	dir, err := m.Resolve(taskID, false)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	artifacts := make([]Artifact, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		kind, ok := Classify(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Type:     kind,
			Filename: entry.Name(),
			ModTime:  info.ModTime(),
		})
	}

	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModTime.After(artifacts[j].ModTime)
	})
	return artifacts, nil
}
