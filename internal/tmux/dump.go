package tmux

import (
	"fmt"
	"strings"
	"time"

	"github.com/ykai55/tbox/internal/dump"
	"github.com/ykai55/tbox/internal/proc"
)

// Dump captures the structure of one session. Session selection: explicit
// name wins; inside tmux the enclosing session is dumped; otherwise the
// attached session, falling back to the first session the server knows.
func (c *Client) Dump(session string, inspector *proc.Inspector) (dump.SessionDump, error) {
	if inspector == nil {
		inspector = proc.NewInspector("", nil)
	}

	live, err := c.ListSessions()
	if err != nil {
		return dump.SessionDump{}, err
	}
	if len(live) == 0 {
		return dump.SessionDump{}, fmt.Errorf("dump: %w (server has no sessions)", ErrSessionNotFound)
	}

	target, err := c.resolveDumpTarget(session, live)
	if err != nil {
		return dump.SessionDump{}, err
	}

	d := dump.SessionDump{
		Name:     target.Name,
		Created:  time.Unix(target.Created, 0).UTC(),
		Attached: target.Attached,
		Size:     dump.Size{Width: target.Width, Height: target.Height},
	}

	wOut, err := c.Output("list-windows", "-t", sessionTarget(target.Name), "-F",
		"#{window_index}"+fieldSep+"#{window_name}"+fieldSep+"#{window_active}"+fieldSep+
			"#{window_layout}"+fieldSep+"#{window_width}"+fieldSep+"#{window_height}"+fieldSep+"#{window_zoomed_flag}")
	if err != nil {
		return dump.SessionDump{}, err
	}

	for _, line := range splitLines(wOut) {
		parts := strings.Split(line, fieldSep)
		if len(parts) != 7 {
			continue
		}
		w := dump.WindowDump{
			Index:  atoi(parts[0]),
			Name:   parts[1],
			Active: parts[2] == "1",
			Layout: parts[3],
			Width:  atoi(parts[4]),
			Height: atoi(parts[5]),
			Zoomed: parts[6] == "1",
		}
		w.AutomaticRename = c.windowAutomaticRename(target.Name, w.Index)

		panes, err := c.dumpPanes(target.Name, w.Index, inspector)
		if err != nil {
			return dump.SessionDump{}, err
		}
		w.Panes = panes
		d.Windows = append(d.Windows, w)
	}
	return d, nil
}

func (c *Client) resolveDumpTarget(session string, live []LiveSession) (LiveSession, error) {
	if session != "" {
		for _, s := range live {
			if s.Name == session {
				return s, nil
			}
		}
		return LiveSession{}, fmt.Errorf("dump session %q: %w", session, ErrSessionNotFound)
	}
	if InTmux() {
		current, err := c.CurrentSession()
		if err == nil && current != "" {
			for _, s := range live {
				if s.Name == current {
					return s, nil
				}
			}
		}
	}
	for _, s := range live {
		if s.Attached {
			return s, nil
		}
	}
	return live[0], nil
}

// windowAutomaticRename reads the per-window automatic-rename option;
// unreadable options dump as empty and are skipped on restore.
func (c *Client) windowAutomaticRename(session string, windowIndex int) string {
	out, err := c.Output("show-options", "-w", "-t", fmt.Sprintf("%s:%d", session, windowIndex), "-v", "automatic-rename")
	if err != nil {
		return ""
	}
	return strings.TrimSpace(out)
}

func (c *Client) dumpPanes(session string, windowIndex int, inspector *proc.Inspector) ([]dump.PaneDump, error) {
	pOut, err := c.Output("list-panes", "-t", fmt.Sprintf("%s:%d", session, windowIndex), "-F",
		"#{pane_index}"+fieldSep+"#{pane_title}"+fieldSep+"#{pane_active}"+fieldSep+
			"#{pane_current_path}"+fieldSep+"#{pane_current_command}"+fieldSep+
			"#{pane_start_command}"+fieldSep+"#{pane_tty}")
	if err != nil {
		return nil, err
	}

	var panes []dump.PaneDump
	for _, line := range splitLines(pOut) {
		parts := strings.Split(line, fieldSep)
		if len(parts) != 7 {
			continue
		}
		p := dump.PaneDump{
			Index:          atoi(parts[0]),
			Title:          parts[1],
			Active:         parts[2] == "1",
			Path:           dump.NormalizePath(parts[3]),
			CurrentCommand: parts[4],
		}
		if start := strings.TrimSpace(parts[5]); start != "" {
			p.StartCommand = &dump.StartCommand{Literal: start}
		}
		p.Processes = inspector.List(parts[6])
		panes = append(panes, p)
	}
	return panes, nil
}
