package app

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ykai55/tbox/internal/store"
	"github.com/ykai55/tbox/internal/tmux"
)

// Entry is one addressable session in the merged live+archived directory.
type Entry struct {
	Name           string
	Live           bool
	LiveWindows    int
	ArchivePath    string
	ArchiveMtime   time.Time
	ArchiveWindows int
	HasArchive     bool
}

func (e Entry) Status() string {
	if e.Live {
		return "LIVE"
	}
	return "ARCH"
}

// WindowCount prefers the live count over the archived one.
func (e Entry) WindowCount() (int, bool) {
	if e.Live {
		return e.LiveWindows, true
	}
	if e.HasArchive {
		return e.ArchiveWindows, true
	}
	return 0, false
}

// selectorKey keeps the name tab-safe; selector lines are tab-delimited.
func (e Entry) selectorKey() string {
	return strings.ReplaceAll(e.Name, "\t", " ")
}

// Merge combines live sessions with archive entries into one list. A name
// present in both yields a single LIVE entry that keeps the archive
// details; among duplicate archives the newest wins. Order is stable:
// live first, then archive mtime descending, then name.
func Merge(live []tmux.LiveSession, archived []store.ArchiveEntry) []Entry {
	byName := make(map[string]Entry)

	for _, a := range archived {
		if a.Name == "" {
			continue
		}
		existing, ok := byName[a.Name]
		if ok && existing.ArchiveMtime.After(a.ModTime) {
			continue
		}
		byName[a.Name] = Entry{
			Name:           a.Name,
			ArchivePath:    a.Path,
			ArchiveMtime:   a.ModTime,
			ArchiveWindows: a.Windows,
			HasArchive:     true,
		}
	}

	for _, l := range live {
		if l.Name == "" {
			continue
		}
		e := byName[l.Name]
		e.Name = l.Name
		e.Live = true
		e.LiveWindows = l.Windows
		byName[l.Name] = e
	}

	entries := make([]Entry, 0, len(byName))
	for _, e := range byName {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Live != entries[j].Live {
			return entries[i].Live
		}
		if !entries[i].ArchiveMtime.Equal(entries[j].ArchiveMtime) {
			return entries[i].ArchiveMtime.After(entries[j].ArchiveMtime)
		}
		return entries[i].Name < entries[j].Name
	})
	return entries
}

func findEntry(entries []Entry, name string) *Entry {
	for i := range entries {
		if entries[i].Name == name {
			return &entries[i]
		}
	}
	return nil
}

// IsNamedSession reports whether a session name counts as deliberately
// named. Purely numeric names are ephemeral scratch sessions and skipped
// by autosave.
func IsNamedSession(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false
}

func formatMtime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format("2006-01-02 15:04")
}

// formatEntryLines renders one padded, tab-delimited line per entry:
// name, status, window count, saved time, and the raw name as a trailing
// field for lossless selection.
func formatEntryLines(entries []Entry) ([]string, map[string]Entry) {
	byKey := make(map[string]Entry, len(entries))
	nameWidth, windowsWidth, savedWidth := 0, 2, 0
	for _, e := range entries {
		byKey[e.selectorKey()] = e
		if n := len(e.selectorKey()); n > nameWidth {
			nameWidth = n
		}
		if wc, ok := e.WindowCount(); ok {
			if n := len(fmt.Sprintf("%dw", wc)); n > windowsWidth {
				windowsWidth = n
			}
		}
		if n := len(formatMtime(e.ArchiveMtime)); n > savedWidth {
			savedWidth = n
		}
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		raw := e.selectorKey()
		windows := ""
		if wc, ok := e.WindowCount(); ok {
			windows = fmt.Sprintf("%dw", wc)
		}
		lines = append(lines, strings.Join([]string{
			pad(raw, nameWidth),
			pad(e.Status(), 4),
			pad(windows, windowsWidth),
			pad(formatMtime(e.ArchiveMtime), savedWidth),
			raw,
		}, "\t"))
	}
	return lines, byKey
}

func pad(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
