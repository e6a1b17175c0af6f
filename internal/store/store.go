// Package store keeps session dumps as JSON archive files in a single
// directory, one file per session name.
package store

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/zeebo/blake3"

	"github.com/ykai55/tbox/internal/dump"
)

const (
	stampFileName   = ".tbox-autosave.stamp"
	hashSuffixLen   = 8
	defaultDirPerm  = 0o755
	defaultFilePerm = 0o644
)

var ErrNotFound = errors.New("archive not found")

type Store struct {
	dir    string
	logger *log.Logger
}

func New(dir string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &Store{dir: dir, logger: logger}
}

func (s *Store) Dir() string {
	return s.dir
}

// DefaultDir resolves the archive directory: TBOX_DIR, then
// $XDG_DATA_HOME/tmux-box, then ~/.local/share/tmux-box.
func DefaultDir() string {
	if v := strings.TrimSpace(os.Getenv("TBOX_DIR")); v != "" {
		return expandHome(v)
	}
	if base := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); base != "" {
		return filepath.Join(base, "tmux-box")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tmux-box"
	}
	return filepath.Join(home, ".local", "share", "tmux-box")
}

func expandHome(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// ArchiveEntry is one stored dump, enumerated by List.
type ArchiveEntry struct {
	Name    string
	Path    string
	ModTime time.Time
	Windows int
}

// FileName builds the archive file name for a session: the sanitized name
// plus a short hash of the unsanitized name, so distinct names that
// sanitize identically still get distinct files.
func FileName(name string) string {
	sum := blake3.Sum256([]byte(name))
	return sanitizeName(name) + "-" + hex.EncodeToString(sum[:])[:hashSuffixLen] + ".json"
}

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "session"
	}
	return b.String()
}

// Save writes the dump atomically: temp file in the store directory, then
// rename over the canonical path. Returns the archive path.
func (s *Store) Save(name string, d dump.SessionDump) (string, error) {
	if name == "" {
		return "", errors.New("save: empty session name")
	}
	if err := os.MkdirAll(s.dir, defaultDirPerm); err != nil {
		return "", fmt.Errorf("create store dir %s: %w", s.dir, err)
	}

	b, err := dump.Marshal(d, true)
	if err != nil {
		return "", fmt.Errorf("encode session %q: %w", name, err)
	}

	// Overwrite the session's existing archive even when it sits under a
	// legacy file name; FileName only decides where new archives land.
	dest := filepath.Join(s.dir, FileName(name))
	if existing, err := s.resolve(name); err == nil {
		dest = existing
	}
	tmp, err := os.CreateTemp(s.dir, ".tbox-*.json")
	if err != nil {
		return "", fmt.Errorf("save session %q: %w", name, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("save session %q: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("save session %q: %w", name, err)
	}
	if err := os.Chmod(tmpPath, defaultFilePerm); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("save session %q: %w", name, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("save session %q: %w", name, err)
	}
	return dest, nil
}

// Load reads the archive for name, resolving through the same
// sanitize+hash function Save uses, with a directory scan as fallback for
// archives written under older naming schemes.
func (s *Store) Load(name string) (dump.SessionDump, error) {
	path, err := s.resolve(name)
	if err != nil {
		return dump.SessionDump{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return dump.SessionDump{}, fmt.Errorf("read archive for %q: %w", name, err)
	}
	d, err := dump.Parse(b)
	if err != nil {
		return dump.SessionDump{}, fmt.Errorf("archive %s: %w", path, err)
	}
	return d, nil
}

// Delete removes every archive file holding the named session, so a
// hash-named archive cannot leave a stale legacy-named twin behind.
func (s *Store) Delete(name string) error {
	var paths []string
	hashPath := filepath.Join(s.dir, FileName(name))
	if _, err := os.Stat(hashPath); err == nil {
		paths = append(paths, hashPath)
	}
	entries, err := s.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.Name == name && e.Path != hashPath {
			paths = append(paths, e.Path)
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("session %q: %w", name, ErrNotFound)
	}
	for _, p := range paths {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

func (s *Store) resolve(name string) (string, error) {
	path := filepath.Join(s.dir, FileName(name))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	entries, err := s.List()
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if e.Name == name {
			return e.Path, nil
		}
	}
	return "", fmt.Errorf("session %q: %w", name, ErrNotFound)
}

// List enumerates archives newest-first. Unreadable or malformed files are
// logged and skipped, never fatal.
func (s *Store) List() ([]ArchiveEntry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read store dir %s: %w", s.dir, err)
	}

	var entries []ArchiveEntry
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		path := filepath.Join(s.dir, name)
		b, err := os.ReadFile(path)
		if err != nil {
			s.logger.Warn("skipping unreadable archive", "path", path, "err", err)
			continue
		}
		d, err := dump.Parse(b)
		if err != nil {
			s.logger.Warn("skipping malformed archive", "path", path, "err", err)
			continue
		}
		sessionName := d.Name
		if sessionName == "" {
			sessionName = strings.TrimSuffix(name, ".json")
		}
		info, err := de.Info()
		var mtime time.Time
		if err == nil {
			mtime = info.ModTime()
		}
		entries = append(entries, ArchiveEntry{
			Name:    sessionName,
			Path:    path,
			ModTime: mtime,
			Windows: len(d.Windows),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.After(entries[j].ModTime)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// ReadStamp returns the last autosave time, zero when no stamp exists yet.
func (s *Store) ReadStamp() (time.Time, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, stampFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(string(b)))
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (s *Store) WriteStamp(t time.Time) error {
	if err := os.MkdirAll(s.dir, defaultDirPerm); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(s.dir, stampFileName), []byte(t.UTC().Format(time.RFC3339Nano)+"\n"), defaultFilePerm)
}
