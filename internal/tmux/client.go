// Package tmux talks to a local tmux server: structure queries, topology
// dump, and topology restore.
package tmux

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

const fieldSep = "\x1f"

var (
	ErrSessionNotFound     = errors.New("tmux session not found")
	ErrServerUnavailable   = errors.New("tmux server unavailable")
	ErrTargetNotEmpty      = errors.New("target session is not empty")
	ErrSessionNameRequired = errors.New("session name required")
)

type Client struct {
	bin string
}

func NewClient(bin string) *Client {
	if strings.TrimSpace(bin) == "" {
		bin = "tmux"
	}
	return &Client{bin: bin}
}

func (c *Client) Run(args ...string) error {
	cmd := exec.Command(c.bin, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	return cmd.Run()
}

func (c *Client) Output(args ...string) (string, error) {
	cmd := exec.Command(c.bin, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "no server running") || strings.Contains(msg, "error connecting") {
			return "", fmt.Errorf("tmux %s: %w (%s)", args[0], ErrServerUnavailable, msg)
		}
		return "", fmt.Errorf("tmux %s: %w (%s)", strings.Join(args, " "), err, msg)
	}
	return string(out), nil
}

// InTmux reports whether this process runs inside a tmux client.
func InTmux() bool {
	return os.Getenv("TMUX") != ""
}

func (c *Client) SessionExists(name string) bool {
	err := exec.Command(c.bin, "has-session", "-t", exactTarget(name)).Run()
	return err == nil
}

func (c *Client) CurrentSession() (string, error) {
	out, err := c.Output("display-message", "-p", "#{session_name}")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// LiveSession is one entry from list-sessions.
type LiveSession struct {
	Name     string
	Windows  int
	Attached bool
	Created  int64
	Width    int
	Height   int
}

func (c *Client) ListSessions() ([]LiveSession, error) {
	out, err := c.Output("list-sessions", "-F",
		"#{session_name}"+fieldSep+"#{session_windows}"+fieldSep+"#{session_attached}"+fieldSep+
			"#{session_created}"+fieldSep+"#{session_width}"+fieldSep+"#{session_height}")
	if err != nil {
		return nil, err
	}
	var sessions []LiveSession
	for _, line := range splitLines(out) {
		parts := strings.Split(line, fieldSep)
		if len(parts) != 6 || parts[0] == "" {
			continue
		}
		sessions = append(sessions, LiveSession{
			Name:     parts[0],
			Windows:  atoi(parts[1]),
			Attached: atoi(parts[2]) > 0,
			Created:  int64(atoi(parts[3])),
			Width:    atoi(parts[4]),
			Height:   atoi(parts[5]),
		})
	}
	return sessions, nil
}

// UniqueSessionName returns base, or base(1), base(2), ... until a free
// session name is found.
func (c *Client) UniqueSessionName(base string) string {
	if !c.SessionExists(base) {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s(%d)", base, i)
		if !c.SessionExists(candidate) {
			return candidate
		}
	}
}

// AttachOrSwitch moves the user to session: switch-client when inside tmux,
// attach-session otherwise.
func (c *Client) AttachOrSwitch(session string) error {
	if InTmux() {
		_, err := c.Output("switch-client", "-t", exactTarget(session))
		return err
	}
	return c.Run("attach-session", "-t", exactTarget(session))
}

func (c *Client) RenameSession(from, to string) error {
	_, err := c.Output("rename-session", "-t", exactTarget(from), to)
	return err
}

// exactTarget prefixes the name with = so tmux does not prefix-match
// session names.
func exactTarget(name string) string {
	if strings.HasPrefix(name, "=") {
		return name
	}
	return "=" + name
}

// sessionTarget suffixes a colon so purely numeric session names are not
// taken for window indexes.
func sessionTarget(name string) string {
	return name + ":"
}

func splitLines(in string) []string {
	s := bufio.NewScanner(strings.NewReader(in))
	out := make([]string, 0)
	for s.Scan() {
		line := strings.TrimRight(s.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

func atoi(s string) int {
	n := 0
	for _, r := range strings.TrimSpace(s) {
		if r < '0' || r > '9' {
			return n
		}
		n = n*10 + int(r-'0')
	}
	return n
}
