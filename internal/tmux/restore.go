package tmux

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ykai55/tbox/internal/dump"
)

type RestoreOptions struct {
	// TargetSession overrides the dump's recorded name.
	TargetSession string
	// Force destroys the target's existing windows before restoring.
	Force bool
	// Append adds the dump's windows after the target's existing ones.
	Append bool
	// BaseDir overrides the working directory for the first window's panes.
	BaseDir string
	// RunCommands replays each pane's foreground command.
	RunCommands bool
}

type RestoreResult struct {
	Target  string
	InPlace bool
	Created int
}

// Restore rebuilds the dumped topology into the target session. A failure
// mid-creation aborts the remaining steps and leaves already-created
// windows in place; callers get the failing window/pane index in the error.
func (c *Client) Restore(d dump.SessionDump, opts RestoreOptions) (RestoreResult, error) {
	if len(d.Windows) == 0 {
		return RestoreResult{}, fmt.Errorf("restore: dump for %q has no windows", d.Name)
	}

	target, err := c.resolveRestoreTarget(d, opts)
	if err != nil {
		return RestoreResult{}, err
	}

	exists := c.SessionExists(target)
	inPlace := false
	if InTmux() && exists {
		if current, err := c.CurrentSession(); err == nil && current == target {
			inPlace = true
		}
	}
	if opts.BaseDir != "" && inPlace {
		return RestoreResult{}, fmt.Errorf("restore into current session %q: base directory override not allowed", target)
	}

	res := RestoreResult{Target: target, InPlace: inPlace}

	var staleWindows []string
	fresh := false
	switch {
	case !exists:
		fresh = true
	case opts.Append:
		// New windows land after the existing ones; the server renumbers.
	case opts.Force:
		staleWindows, err = c.listWindowIDs(target)
		if err != nil {
			return res, err
		}
	default:
		if !c.isEmptySession(target) {
			return res, fmt.Errorf("session %q: %w (use --force or --append)", target, ErrTargetNotEmpty)
		}
		// Empty placeholder session: replace its lone window.
		staleWindows, err = c.listWindowIDs(target)
		if err != nil {
			return res, err
		}
	}

	activeWindow := ""
	for wi, w := range d.Windows {
		winID, err := c.createWindow(target, d, wi, fresh, opts)
		if err != nil {
			return res, fmt.Errorf("restore window %d: %w", w.Index, err)
		}
		if err := c.populateWindow(winID, w, wi, fresh, opts); err != nil {
			return res, err
		}
		if w.Active || activeWindow == "" {
			activeWindow = winID
		}
		res.Created++
	}

	for _, id := range staleWindows {
		_, _ = c.Output("kill-window", "-t", id)
	}
	if activeWindow != "" {
		_, _ = c.Output("select-window", "-t", activeWindow)
	}
	return res, nil
}

func (c *Client) resolveRestoreTarget(d dump.SessionDump, opts RestoreOptions) (string, error) {
	if opts.TargetSession != "" {
		return opts.TargetSession, nil
	}
	if InTmux() {
		if current, err := c.CurrentSession(); err == nil && current != "" {
			return current, nil
		}
	}
	if d.Name != "" {
		return d.Name, nil
	}
	return "", fmt.Errorf("restore: %w (dump has no name and none was supplied)", ErrSessionNameRequired)
}

// createWindow creates the wi-th dump window in the target, returning the
// new window id. The very first window of a fresh target comes from
// new-session; everything else from new-window with the pane command (if
// any) bound at creation.
func (c *Client) createWindow(target string, d dump.SessionDump, wi int, fresh bool, opts RestoreOptions) (string, error) {
	w := d.Windows[wi]
	dir := paneDir(firstPane(w), opts.BaseDir, wi == 0)

	if fresh && wi == 0 {
		args := []string{"new-session", "-d", "-s", target, "-n", w.Name, "-c", dir, "-P", "-F", "#{window_id}"}
		if d.Size.Width > 0 && d.Size.Height > 0 {
			args = append(args, "-x", strconv.Itoa(d.Size.Width), "-y", strconv.Itoa(d.Size.Height))
		}
		out, err := c.Output(args...)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(out), nil
	}

	args := []string{"new-window", "-d", "-t", sessionTarget(target), "-n", w.Name, "-c", dir, "-P", "-F", "#{window_id}"}
	if opts.RunCommands {
		if cmd := replayCommand(firstPane(w)); cmd != "" {
			args = append(args, cmd)
		}
	}
	out, err := c.Output(args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// populateWindow splits the remaining panes into winID, reapplies the
// layout, and restores pane titles and the active pane. The layout string
// references pane indexes, so it goes on only after every pane exists.
func (c *Client) populateWindow(winID string, w dump.WindowDump, wi int, fresh bool, opts RestoreOptions) error {
	// The pane created implicitly by new-session cannot take a command at
	// creation; retarget it by respawning.
	if fresh && wi == 0 && opts.RunCommands {
		if cmd := replayCommand(firstPane(w)); cmd != "" {
			if err := c.respawnFirstPane(winID, cmd); err != nil {
				return fmt.Errorf("restore window %d pane %d: %w", w.Index, firstPane(w).Index, err)
			}
		}
	}

	for i := 1; i < len(w.Panes); i++ {
		p := w.Panes[i]
		args := []string{"split-window", "-d", "-t", winID, "-c", paneDir(p, opts.BaseDir, wi == 0)}
		if opts.RunCommands {
			if cmd := replayCommand(p); cmd != "" {
				args = append(args, cmd)
			}
		}
		if _, err := c.Output(args...); err != nil {
			return fmt.Errorf("restore window %d pane %d: %w", w.Index, p.Index, err)
		}
	}

	if w.Layout != "" {
		_, _ = c.Output("select-layout", "-t", winID, w.Layout)
	}
	if w.AutomaticRename != "" {
		_, _ = c.Output("set-window-option", "-t", winID, "automatic-rename", w.AutomaticRename)
	}

	paneIDs := c.paneIDsByIndex(winID)
	activePane := ""
	for i, p := range w.Panes {
		id, ok := paneIDs[i]
		if !ok {
			continue
		}
		if p.Title != "" {
			_, _ = c.Output("select-pane", "-t", id, "-T", p.Title)
		}
		if p.Active || activePane == "" {
			activePane = id
		}
	}
	if activePane != "" {
		_, _ = c.Output("select-pane", "-t", activePane)
		if w.Zoomed {
			_, _ = c.Output("resize-pane", "-Z", "-t", activePane)
		}
	}
	return nil
}

func (c *Client) respawnFirstPane(winID, cmd string) error {
	paneIDs := c.paneIDsByIndex(winID)
	id, ok := paneIDs[0]
	if !ok {
		return fmt.Errorf("window %s has no pane to respawn", winID)
	}
	_, err := c.Output("respawn-pane", "-k", "-t", id, cmd)
	return err
}

// paneIDsByIndex maps creation order (not tmux pane indexes, which depend
// on base-index) to pane ids for the window.
func (c *Client) paneIDsByIndex(winID string) map[int]string {
	out, err := c.Output("list-panes", "-t", winID, "-F", "#{pane_id}")
	if err != nil {
		return nil
	}
	ids := make(map[int]string)
	for i, line := range splitLines(out) {
		ids[i] = strings.TrimSpace(line)
	}
	return ids
}

func (c *Client) listWindowIDs(session string) ([]string, error) {
	out, err := c.Output("list-windows", "-t", sessionTarget(session), "-F", "#{window_id}")
	if err != nil {
		return nil, err
	}
	return splitLines(out), nil
}

// isEmptySession reports whether the session is a single window holding a
// single pane that still runs a bare shell.
func (c *Client) isEmptySession(session string) bool {
	windows, err := c.listWindowIDs(session)
	if err != nil || len(windows) != 1 {
		return false
	}
	out, err := c.Output("list-panes", "-t", windows[0], "-F", "#{pane_id}"+fieldSep+"#{pane_current_command}")
	if err != nil {
		return false
	}
	panes := splitLines(out)
	if len(panes) != 1 {
		return false
	}
	parts := strings.Split(panes[0], fieldSep)
	return len(parts) == 2 && isShellCommand(parts[1])
}

func firstPane(w dump.WindowDump) dump.PaneDump {
	if len(w.Panes) == 0 {
		return dump.PaneDump{}
	}
	return w.Panes[0]
}

func paneDir(p dump.PaneDump, baseDir string, firstWindow bool) string {
	dir := p.Path
	if firstWindow && baseDir != "" {
		dir = baseDir
	}
	if dir == "" {
		if home, err := os.UserHomeDir(); err == nil {
			dir = home
		} else {
			dir = "/"
		}
	}
	return filepath.Clean(dir)
}

// replayCommand picks the command line to relaunch in a pane: the explicit
// start command when present, otherwise the foreground job derived from the
// process list (the record after the shell, or the first record when it is
// not a shell). Bare shells are never replayed.
func replayCommand(p dump.PaneDump) string {
	if p.StartCommand != nil {
		var cmd string
		if p.StartCommand.Tokens != nil {
			cmd = shellJoin(p.StartCommand.Tokens)
		} else {
			cmd = strings.TrimSpace(p.StartCommand.Literal)
		}
		if cmd != "" {
			if isShellCommand(cmd) {
				return ""
			}
			return cmd
		}
	}

	if len(p.Processes) == 0 || len(p.Processes[0].Command) == 0 {
		return ""
	}
	first := p.Processes[0]
	if isShellCommand(first.Command[0]) {
		if len(p.Processes) > 1 && len(p.Processes[1].Command) > 0 {
			return shellJoin(p.Processes[1].Command)
		}
		return ""
	}
	return shellJoin(first.Command)
}

func shellJoin(tokens []string) string {
	quoted := make([]string, 0, len(tokens))
	for _, t := range tokens {
		quoted = append(quoted, shellQuote(t))
	}
	return strings.Join(quoted, " ")
}

func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n\"'\\$&|;<>(){}[]*?~#!`") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isShellCommand(cmd string) bool {
	cmd = strings.TrimSpace(cmd)
	if fields := strings.Fields(cmd); len(fields) > 1 {
		// "bash -l" and friends still count as a bare shell.
		for _, extra := range fields[1:] {
			if !strings.HasPrefix(extra, "-") {
				return false
			}
		}
		cmd = fields[0]
	}
	cmd = strings.TrimPrefix(cmd, "-")
	base := filepath.Base(cmd)
	switch base {
	case "bash", "zsh", "fish", "sh", "ksh", "dash":
		return true
	}
	return false
}
