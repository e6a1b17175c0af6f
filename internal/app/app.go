// Package app wires the dump, restore, store, and selector pieces into the
// tbox commands.
package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ykai55/tbox/internal/config"
	"github.com/ykai55/tbox/internal/dump"
	"github.com/ykai55/tbox/internal/proc"
	"github.com/ykai55/tbox/internal/store"
	"github.com/ykai55/tbox/internal/tmux"
)

type App struct {
	cfg       config.Config
	store     *store.Store
	tmux      *tmux.Client
	inspector *proc.Inspector
	logger    *log.Logger
	stdout    io.Writer
	stdin     io.Reader
}

func New(cfg config.Config, logger *log.Logger) *App {
	if logger == nil {
		logger = log.New(os.Stderr)
	}
	return &App{
		cfg:       cfg,
		store:     store.New(cfg.DataDir, logger),
		tmux:      tmux.NewClient(cfg.TmuxBin),
		inspector: proc.NewInspector(cfg.PsBin, nil),
		logger:    logger,
		stdout:    os.Stdout,
		stdin:     os.Stdin,
	}
}

// Tmux exposes the client for command-level restore plumbing.
func (a *App) Tmux() *tmux.Client { return a.tmux }

// Config returns the resolved configuration the app was built with.
func (a *App) Config() config.Config { return a.cfg }

// SetIO redirects user-facing output; tests use it.
func (a *App) SetIO(in io.Reader, out io.Writer) {
	a.stdin = in
	a.stdout = out
}

// resolveName fills a missing session name from the enclosing tmux client.
func (a *App) resolveName(name string) (string, error) {
	if name != "" {
		return name, nil
	}
	if !tmux.InTmux() {
		return "", fmt.Errorf("%w when not inside tmux", tmux.ErrSessionNameRequired)
	}
	current, err := a.tmux.CurrentSession()
	if err != nil || current == "" {
		return "", fmt.Errorf("%w when not inside tmux", tmux.ErrSessionNameRequired)
	}
	return current, nil
}

// Save dumps one session and writes it to the archive.
func (a *App) Save(name string) error {
	target, err := a.resolveName(name)
	if err != nil {
		return err
	}
	d, err := a.tmux.Dump(target, a.inspector)
	if err != nil {
		return err
	}
	if _, err := a.store.Save(target, d); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Saved session '%s'\n", target)
	return nil
}

// Autosave dumps every named live session, throttled by the stamp record
// in the store. Two calls inside the throttle window result in one set of
// writes; individual session failures are logged and skipped.
func (a *App) Autosave(throttle time.Duration, quiet bool) error {
	last, err := a.store.ReadStamp()
	if err != nil {
		a.logger.Warn("autosave stamp unreadable", "err", err)
	}
	now := time.Now()
	if throttle > 0 && !last.IsZero() && now.Sub(last) < throttle {
		return nil
	}

	unlock, err := acquireLock(a.store.Dir())
	if err != nil {
		// Another autosave is mid-flight; its writes cover this trigger.
		return nil
	}
	defer unlock()

	if err := a.store.WriteStamp(now); err != nil {
		a.logger.Warn("autosave stamp not written", "err", err)
	}

	// quiet suppresses output, never the exit status.
	live, err := a.tmux.ListSessions()
	if err != nil {
		return err
	}

	attempted, saved := 0, 0
	for _, s := range live {
		if !IsNamedSession(s.Name) {
			continue
		}
		attempted++
		d, err := a.tmux.Dump(s.Name, a.inspector)
		if err != nil {
			a.logger.Warn("autosave skipped session", "session", s.Name, "err", err)
			continue
		}
		if _, err := a.store.Save(s.Name, d); err != nil {
			a.logger.Warn("autosave skipped session", "session", s.Name, "err", err)
			continue
		}
		saved++
	}
	if attempted > 0 && saved == 0 {
		return fmt.Errorf("autosave: all %d session(s) failed", attempted)
	}
	if !quiet {
		fmt.Fprintf(a.stdout, "Autosaved %d session(s)\n", saved)
	}
	return nil
}

// SelectOptions controls what happens to a chosen archived entry.
type SelectOptions struct {
	// NewSession restores into a fresh uniquely-named session instead of
	// the archived name.
	NewSession  bool
	RunCommands bool
	// PreviewCmd is the command external finders run for the preview
	// window, normally "tbox preview".
	PreviewCmd string
}

// Select merges live and archived sessions, lets the user pick one, and
// switches (live), restores (archived), or drops the archive.
func (a *App) Select(name string, opts SelectOptions) error {
	archived, err := a.store.List()
	if err != nil {
		return err
	}
	live, err := a.tmux.ListSessions()
	if err != nil {
		// A dead server still leaves the archive browsable.
		a.logger.Debug("live session listing failed", "err", err)
		live = nil
	}
	entries := Merge(live, archived)
	if len(entries) == 0 {
		return errors.New("no sessions (live or stored)")
	}

	var entry *Entry
	action := ActionSelect
	if name != "" {
		entry = findEntry(entries, name)
		if entry == nil {
			return fmt.Errorf("session %q: %w", name, store.ErrNotFound)
		}
	} else {
		selector := ResolveSelector(a.cfg.Selector, nil, a.logger, a.stdin, a.stdout, opts.PreviewCmd)
		entry, action, err = selector.Choose(entries, "Select session")
		if err != nil {
			return err
		}
		if entry == nil {
			// Cancelled: successful no-op.
			return nil
		}
	}

	if action == ActionDrop {
		return a.Drop(entry.Name)
	}
	if entry.Live {
		return a.tmux.AttachOrSwitch(entry.Name)
	}
	if !entry.HasArchive {
		return fmt.Errorf("session %q: %w", entry.Name, store.ErrNotFound)
	}
	return a.restoreArchived(*entry, opts)
}

func (a *App) restoreArchived(entry Entry, opts SelectOptions) error {
	d, err := a.store.Load(entry.Name)
	if err != nil {
		return err
	}
	target := entry.Name
	if opts.NewSession {
		target = a.tmux.UniqueSessionName(target)
	}
	res, err := a.tmux.Restore(d, tmux.RestoreOptions{
		TargetSession: target,
		RunCommands:   opts.RunCommands,
	})
	if err != nil {
		return err
	}
	if res.InPlace {
		return nil
	}
	return a.tmux.AttachOrSwitch(res.Target)
}

// Drop deletes an archive entry. Live sessions are never touched, even
// when one shares the name.
func (a *App) Drop(name string) error {
	target, err := a.resolveName(name)
	if err != nil {
		return err
	}
	if err := a.store.Delete(target); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Removed session '%s'\n", target)
	return nil
}

// List prints the archive, optionally merged with live sessions.
func (a *App) List(w io.Writer, verbose, includeLive bool) error {
	archived, err := a.store.List()
	if err != nil {
		return err
	}
	var entries []Entry
	if includeLive {
		live, err := a.tmux.ListSessions()
		if err != nil {
			return err
		}
		entries = Merge(live, archived)
	} else {
		entries = Merge(nil, archived)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No sessions")
		return nil
	}

	nameWidth := 0
	for _, e := range entries {
		if len(e.Name) > nameWidth {
			nameWidth = len(e.Name)
		}
	}
	for _, e := range entries {
		windows := ""
		if wc, ok := e.WindowCount(); ok {
			windows = fmt.Sprintf("%dw", wc)
		}
		line := fmt.Sprintf("%s  %s  %s  %s", pad(e.Name, nameWidth), e.Status(), windows, formatMtime(e.ArchiveMtime))
		if verbose && e.HasArchive {
			line = line + "  " + e.ArchivePath
		}
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
	return nil
}

// Preview prints a window/pane summary of an archived session. It always
// exits clean; fuzzy finders run it for every highlighted line.
func (a *App) Preview(w io.Writer, name string) error {
	d, err := a.store.Load(name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			fmt.Fprintf(w, "No archive for session: %s\n", name)
			return nil
		}
		fmt.Fprintf(w, "Preview error: %v\n", err)
		return nil
	}

	sessionName := d.Name
	if sessionName == "" {
		sessionName = name
	}
	fmt.Fprintf(w, "Session: %s\n", sessionName)
	fmt.Fprintf(w, "Windows: %d\n", len(d.Windows))
	for _, win := range d.Windows {
		fmt.Fprintf(w, "- [%d] %s (%d panes)\n", win.Index, win.Name, len(win.Panes))
		for _, pane := range win.Panes {
			switch {
			case pane.Title != "":
				fmt.Fprintf(w, "  - %d: %s\n", pane.Index, pane.Title)
			case pane.Path != "":
				fmt.Fprintf(w, "  - %d: %s\n", pane.Index, pane.Path)
			}
		}
	}
	return nil
}

// Dump captures a session and returns the document; command-level code
// decides where it goes.
func (a *App) Dump(session string) (dump.SessionDump, error) {
	return a.tmux.Dump(session, a.inspector)
}
