package host

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// CursorMarker marks the insertion point inside a note.
const CursorMarker = "<!-- weather-snippet -->"

// New notes are world-readable like any editor file; the settings file holds
// the API key.
const (
	noteFileMode     os.FileMode = 0o644
	settingsFileMode os.FileMode = 0o600
)

// NoteFile is a Host backed by a markdown file and a JSON settings file.
// Text is inserted immediately before CursorMarker, so the marker keeps
// pointing at the end of the latest insertion. Without a marker the text is
// appended on its own line.
type NoteFile struct {
	*Registry

	notePath     string
	settingsPath string

	mu sync.Mutex
}

// NewNoteFile returns a host for the note at notePath with settings stored at settingsPath.
func NewNoteFile(notePath, settingsPath string) *NoteFile {
	return &NoteFile{
		Registry:     NewRegistry(),
		notePath:     notePath,
		settingsPath: settingsPath,
	}
}

// RegisterCommand implements Host.
func (n *NoteFile) RegisterCommand(cmd Command) error {
	return n.Register(cmd)
}

// InsertAtCursor implements Host. A missing note is created.
func (n *NoteFile) InsertAtCursor(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()

	doc, err := os.ReadFile(n.notePath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("read note: %w", err)
	}
	return writeAtomic(n.notePath, insert(doc, text), noteFileMode)
}

func insert(doc []byte, text string) []byte {
	if i := bytes.Index(doc, []byte(CursorMarker)); i >= 0 {
		out := make([]byte, 0, len(doc)+len(text)+1)
		out = append(out, doc[:i]...)
		out = append(out, text...)
		out = append(out, '\n')
		return append(out, doc[i:]...)
	}
	out := append([]byte(nil), doc...)
	if len(out) > 0 && out[len(out)-1] != '\n' {
		out = append(out, '\n')
	}
	out = append(out, text...)
	return append(out, '\n')
}

// LoadConfig implements Host. A missing settings file loads as an empty blob.
func (n *NoteFile) LoadConfig(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(n.settingsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}
	return data, nil
}

// SaveConfig implements Host.
func (n *NoteFile) SaveConfig(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(n.settingsPath), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	return writeAtomic(n.settingsPath, data, settingsFileMode)
}

// writeAtomic replaces path via a temp file next to the real file. A symlinked
// path keeps its link and the target is replaced. An existing file keeps its
// permissions; a new one gets newMode.
func writeAtomic(path string, data []byte, newMode os.FileMode) error {
	target := path
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		target = resolved
	}
	mode := newMode
	if fi, err := os.Stat(target); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
