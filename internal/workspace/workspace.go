package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"maestro/internal/logging"
)

// ErrUnsafePath is returned for any resolution that would escape the
// workspace root or for task ids that sanitize to nothing usable.
var ErrUnsafePath = errors.New("unsafe workspace path")

// Manager resolves per-task sandbox directories under a fixed root.
type Manager struct {
	root   string
	logger logging.Logger
}

// NewManager creates a workspace manager rooted at root. The root directory
// is created eagerly so later membership checks operate on a real path.
func NewManager(root string) (*Manager, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Manager{
		root:   abs,
		logger: logging.NewComponentLogger("Workspace"),
	}, nil
}

// Root returns the absolute workspace root.
func (m *Manager) Root() string {
	return m.root
}

// SanitizeTaskID maps every rune outside [A-Za-z0-9_.-] to '_'.
func SanitizeTaskID(taskID string) string {
	var b strings.Builder
	b.Grow(len(taskID))
	for _, r := range taskID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '_', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Resolve returns the sandbox directory for a task, optionally creating it.
// The result is always a strict child of the workspace root.
func (m *Manager) Resolve(taskID string, create bool) (string, error) {
	// An id with no allowed characters at all sanitizes to underscores and
	// dots only; treat that the same as empty.
	sanitized := SanitizeTaskID(taskID)
	if strings.Trim(sanitized, "_.") == "" {
		return "", fmt.Errorf("%w: task id %q", ErrUnsafePath, taskID)
	}

	dir := filepath.Join(m.root, sanitized)
	if !m.UnderRoot(dir) {
		return "", fmt.Errorf("%w: %q resolves outside root", ErrUnsafePath, taskID)
	}

	if create {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create task workspace: %w", err)
		}
	}
	return dir, nil
}

// UnderRoot reports whether path is a strict descendant of the workspace root.
func (m *Manager) UnderRoot(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(m.root, abs)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Remove deletes a task's sandbox directory. Best-effort: a missing directory
// is not an error, but a path outside the root always is.
func (m *Manager) Remove(taskID string) error {
	dir, err := m.Resolve(taskID, false)
	if err != nil {
		return err
	}
	if !m.UnderRoot(dir) {
		return fmt.Errorf("%w: refusing to remove %s", ErrUnsafePath, dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Warn("Failed to remove workspace for task %s: %v", taskID, err)
		return err
	}
	return nil
}
