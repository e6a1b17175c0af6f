// Package dump defines the session dump document written by `tbox dump`
// and read back by `tbox restore` and the archive tooling.
package dump

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// SessionDump is the root of the dump document: one tmux session with its
// windows in creation order.
type SessionDump struct {
	Name     string       `json:"name"`
	Created  time.Time    `json:"created,omitzero"`
	Attached bool         `json:"attached"`
	Size     Size         `json:"size"`
	Windows  []WindowDump `json:"windows"`
}

type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

type WindowDump struct {
	Index  int    `json:"index"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
	Layout string `json:"layout"`
	Width  int    `json:"width,omitempty"`
	Height int    `json:"height,omitempty"`
	// AutomaticRename holds the window's automatic-rename option value,
	// empty when the option was not readable at dump time.
	AutomaticRename string     `json:"automatic_rename,omitempty"`
	Zoomed          bool       `json:"zoomed,omitempty"`
	Panes           []PaneDump `json:"panes"`
}

type PaneDump struct {
	Index          int             `json:"index"`
	Title          string          `json:"title,omitempty"`
	Active         bool            `json:"active"`
	Path           string          `json:"path"`
	StartCommand   *StartCommand   `json:"start_command,omitempty"`
	CurrentCommand string          `json:"current_command,omitempty"`
	Processes      []ProcessRecord `json:"processes,omitempty"`
}

// ProcessRecord describes one OS process attached to a pane's tty.
// The first record in a pane's list is the foreground-most process.
type ProcessRecord struct {
	PID     int      `json:"pid"`
	PPID    *int     `json:"ppid"`
	User    string   `json:"user"`
	State   string   `json:"state"`
	Etime   string   `json:"etime"`
	Command []string `json:"command"`
}

// StartCommand is the string-or-token-array form the wire format allows for
// a pane's explicit relaunch command. Exactly one of Literal or Tokens is
// set; a nil *StartCommand means absent.
type StartCommand struct {
	Literal string
	Tokens  []string
}

func (c StartCommand) MarshalJSON() ([]byte, error) {
	if c.Tokens != nil {
		return json.Marshal(c.Tokens)
	}
	return json.Marshal(c.Literal)
}

func (c *StartCommand) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		return json.Unmarshal(b, &c.Tokens)
	}
	return json.Unmarshal(b, &c.Literal)
}

func (s *SessionDump) UnmarshalJSON(b []byte) error {
	type alias SessionDump
	aux := struct {
		*alias
		LegacyName string `json:"session_name"`
	}{alias: (*alias)(s)}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	if s.Name == "" {
		s.Name = aux.LegacyName
	}
	return nil
}

var ErrEmptyDocument = errors.New("dump document has no sessions")

// Parse decodes a dump document, accepting both the bare SessionDump object
// and the legacy {"sessions": [...]} wrapper. With the wrapper, the first
// session wins.
func Parse(b []byte) (SessionDump, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(b, &probe); err != nil {
		return SessionDump{}, fmt.Errorf("parse session dump: %w", err)
	}
	if raw, ok := probe["sessions"]; ok {
		var sessions []SessionDump
		if err := json.Unmarshal(raw, &sessions); err != nil {
			return SessionDump{}, fmt.Errorf("parse legacy session list: %w", err)
		}
		if len(sessions) == 0 {
			return SessionDump{}, ErrEmptyDocument
		}
		return sessions[0], nil
	}
	var d SessionDump
	if err := json.Unmarshal(b, &d); err != nil {
		return SessionDump{}, fmt.Errorf("parse session dump: %w", err)
	}
	return d, nil
}

// Marshal renders the dump as JSON, indented when pretty is set. The schema
// is identical either way.
func Marshal(d SessionDump, pretty bool) ([]byte, error) {
	if pretty {
		b, err := json.MarshalIndent(d, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(b, '\n'), nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// NormalizePath strips the file:// scheme and any host component tmux may
// have prepended to a pane's working directory (seen on remote-aware
// setups, e.g. "myhost/Users/me" or "file://myhost/Users/me").
func NormalizePath(p string) string {
	p = strings.TrimSpace(p)
	p = strings.TrimPrefix(p, "file://")
	if p == "" || strings.HasPrefix(p, "/") {
		return p
	}
	if i := strings.Index(p, "/"); i >= 0 {
		return p[i:]
	}
	return p
}

// PaneCount sums panes across all windows.
func (s SessionDump) PaneCount() int {
	n := 0
	for _, w := range s.Windows {
		n += len(w.Panes)
	}
	return n
}
