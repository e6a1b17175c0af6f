package tmux

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ykai55/tbox/internal/dump"
)

func restoreFixture() dump.SessionDump {
	return dump.SessionDump{
		Name: "demo",
		Size: dump.Size{Width: 204, Height: 50},
		Windows: []dump.WindowDump{
			{
				Index:  0,
				Name:   "editor",
				Active: true,
				Layout: "even-horizontal",
				Panes: []dump.PaneDump{
					{Index: 0, Path: "/tmp/proj", StartCommand: &dump.StartCommand{Literal: "nvim ."}},
					{Index: 1, Path: "/tmp/proj", StartCommand: &dump.StartCommand{Literal: "htop"}},
				},
			},
			{
				Index:  1,
				Name:   "logs",
				Layout: "tiled",
				Panes: []dump.PaneDump{
					{Index: 0, Path: "/var/log", StartCommand: &dump.StartCommand{Literal: "tail -f app.log"}},
					{Index: 1, Path: "/var/log", StartCommand: &dump.StartCommand{Literal: "zsh"}},
				},
			},
		},
	}
}

func TestRestoreFreshSessionBuildsExpectedCommands(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tmux.log")
	fake := writeFakeTmux(t, `
echo "$*" >> "$TMUX_LOG"
case "$1" in
has-session) exit 1 ;;
new-session) echo '@1' ;;
new-window) echo '@2' ;;
list-panes) printf '%s\n%s\n' '%0' '%1' ;;
esac
exit 0
`)
	t.Setenv("TMUX_LOG", logPath)
	t.Setenv("TMUX", "")

	c := NewClient(fake)
	res, err := c.Restore(restoreFixture(), RestoreOptions{RunCommands: true})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.Target != "demo" || res.InPlace || res.Created != 2 {
		t.Fatalf("unexpected result: %#v", res)
	}

	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	mustContain := []string{
		"has-session -t =demo",
		"new-session -d -s demo -n editor -c /tmp/proj -P -F #{window_id} -x 204 -y 50",
		"respawn-pane -k -t %0 nvim .",
		"split-window -d -t @1 -c /tmp/proj htop",
		"select-layout -t @1 even-horizontal",
		"new-window -d -t demo: -n logs -c /var/log -P -F #{window_id} tail -f app.log",
		"split-window -d -t @2 -c /var/log\n",
		"select-layout -t @2 tiled",
		"select-window -t @1",
	}
	for _, needle := range mustContain {
		if !strings.Contains(out, needle) {
			t.Fatalf("expected log to contain %q, got:\n%s", needle, out)
		}
	}
	if strings.Contains(out, "zsh") {
		t.Fatalf("bare shells must not be replayed, got:\n%s", out)
	}
}

func TestRestoreConflictWithoutForceOrAppend(t *testing.T) {
	fake := writeFakeTmux(t, `
case "$1" in
has-session) exit 0 ;;
list-windows) printf '@1\n@2\n' ;;
esac
exit 0
`)
	t.Setenv("TMUX", "")

	c := NewClient(fake)
	_, err := c.Restore(restoreFixture(), RestoreOptions{TargetSession: "demo"})
	if !errors.Is(err, ErrTargetNotEmpty) {
		t.Fatalf("expected ErrTargetNotEmpty, got %v", err)
	}
	if !strings.Contains(err.Error(), "--force or --append") {
		t.Fatalf("error must mention the overrides, got %v", err)
	}
}

func TestRestoreForceKillsStaleWindowsAfterCreation(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tmux.log")
	fake := writeFakeTmux(t, `
echo "$*" >> "$TMUX_LOG"
case "$1" in
has-session) exit 0 ;;
list-windows) echo '@9' ;;
new-window) echo '@10' ;;
list-panes) printf '%s\n' '%5' ;;
esac
exit 0
`)
	t.Setenv("TMUX_LOG", logPath)
	t.Setenv("TMUX", "")

	c := NewClient(fake)
	d := dump.SessionDump{Name: "demo", Windows: []dump.WindowDump{
		{Index: 0, Name: "editor", Panes: []dump.PaneDump{{Index: 0, Path: "/tmp"}}},
	}}
	res, err := c.Restore(d, RestoreOptions{TargetSession: "demo", Force: true})
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if res.Created != 1 {
		t.Fatalf("unexpected result: %#v", res)
	}

	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(b)
	kill := strings.Index(out, "kill-window -t @9")
	create := strings.Index(out, "new-window")
	if kill < 0 || create < 0 {
		t.Fatalf("missing commands in log:\n%s", out)
	}
	if kill < create {
		t.Fatalf("stale windows must be killed after creation:\n%s", out)
	}
}

func TestRestoreReplacesEmptyPlaceholderSession(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tmux.log")
	fake := writeFakeTmux(t, `
echo "$*" >> "$TMUX_LOG"
case "$1" in
has-session) exit 0 ;;
list-windows) echo '@1' ;;
new-window) echo '@2' ;;
list-panes)
  case "$*" in
  *pane_current_command*) printf '%s\037zsh\n' '%0' ;;
  *) printf '%s\n' '%0' ;;
  esac
  ;;
esac
exit 0
`)
	t.Setenv("TMUX_LOG", logPath)
	t.Setenv("TMUX", "")

	c := NewClient(fake)
	d := dump.SessionDump{Name: "demo", Windows: []dump.WindowDump{
		{Index: 0, Name: "editor", Panes: []dump.PaneDump{{Index: 0, Path: "/tmp"}}},
	}}
	if _, err := c.Restore(d, RestoreOptions{TargetSession: "demo"}); err != nil {
		t.Fatalf("Restore into empty session: %v", err)
	}

	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(b), "kill-window -t @1") {
		t.Fatalf("placeholder window must be replaced, got:\n%s", b)
	}
}

func TestRestoreInPlaceRejectsBaseDir(t *testing.T) {
	fake := writeFakeTmux(t, `
case "$1" in
has-session) exit 0 ;;
display-message) echo demo ;;
esac
exit 0
`)
	t.Setenv("TMUX", "/tmp/tmux-1000/default,123,0")

	c := NewClient(fake)
	_, err := c.Restore(restoreFixture(), RestoreOptions{BaseDir: "/elsewhere"})
	if err == nil || !strings.Contains(err.Error(), "base directory") {
		t.Fatalf("expected base directory rejection, got %v", err)
	}
}

func TestRestoreEmptyDump(t *testing.T) {
	c := NewClient("tmux")
	_, err := c.Restore(dump.SessionDump{Name: "demo"}, RestoreOptions{})
	if err == nil || !strings.Contains(err.Error(), "no windows") {
		t.Fatalf("expected empty dump error, got %v", err)
	}
}

func TestRestoreSessionNameRequired(t *testing.T) {
	t.Setenv("TMUX", "")
	c := NewClient("tmux")
	d := dump.SessionDump{Windows: []dump.WindowDump{{Index: 0}}}
	_, err := c.Restore(d, RestoreOptions{})
	if !errors.Is(err, ErrSessionNameRequired) {
		t.Fatalf("expected ErrSessionNameRequired, got %v", err)
	}
}

func TestReplayCommand(t *testing.T) {
	shell := 400
	tests := []struct {
		name string
		pane dump.PaneDump
		want string
	}{
		{
			name: "explicit literal",
			pane: dump.PaneDump{StartCommand: &dump.StartCommand{Literal: "nvim ."}},
			want: "nvim .",
		},
		{
			name: "explicit tokens are quoted",
			pane: dump.PaneDump{StartCommand: &dump.StartCommand{Tokens: []string{"nvim", "my file.txt"}}},
			want: "nvim 'my file.txt'",
		},
		{
			name: "shell start command dropped",
			pane: dump.PaneDump{StartCommand: &dump.StartCommand{Literal: "zsh"}},
			want: "",
		},
		{
			name: "foreground job after shell",
			pane: dump.PaneDump{Processes: []dump.ProcessRecord{
				{PID: 400, Command: []string{"-zsh"}},
				{PID: 512, PPID: &shell, Command: []string{"htop"}},
			}},
			want: "htop",
		},
		{
			name: "non-shell first process",
			pane: dump.PaneDump{Processes: []dump.ProcessRecord{
				{PID: 512, Command: []string{"tail", "-f", "app.log"}},
			}},
			want: "tail -f app.log",
		},
		{
			name: "lone shell",
			pane: dump.PaneDump{Processes: []dump.ProcessRecord{
				{PID: 400, Command: []string{"bash", "-l"}},
			}},
			want: "",
		},
		{
			name: "nothing to replay",
			pane: dump.PaneDump{},
			want: "",
		},
	}
	for _, tt := range tests {
		if got := replayCommand(tt.pane); got != tt.want {
			t.Fatalf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "plain", want: "plain"},
		{in: "", want: "''"},
		{in: "has space", want: "'has space'"},
		{in: "don't", want: `'don'\''t'`},
		{in: "a$b", want: "'a$b'"},
	}
	for _, tt := range tests {
		if got := shellQuote(tt.in); got != tt.want {
			t.Fatalf("shellQuote(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsShellCommand(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{in: "bash", want: true},
		{in: "-zsh", want: true},
		{in: "/bin/sh", want: true},
		{in: "bash -l", want: true},
		{in: "bash -c echo", want: false},
		{in: "nvim", want: false},
		{in: "", want: false},
	}
	for _, tt := range tests {
		if got := isShellCommand(tt.in); got != tt.want {
			t.Fatalf("isShellCommand(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPaneDir(t *testing.T) {
	if got := paneDir(dump.PaneDump{Path: "/tmp/a/../b"}, "", false); got != "/tmp/b" {
		t.Fatalf("path must be cleaned, got %q", got)
	}
	if got := paneDir(dump.PaneDump{Path: "/tmp/a"}, "/base", true); got != "/base" {
		t.Fatalf("base dir must override the first window, got %q", got)
	}
	if got := paneDir(dump.PaneDump{Path: "/tmp/a"}, "/base", false); got != "/tmp/a" {
		t.Fatalf("base dir must not leak into later windows, got %q", got)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skipf("no home dir: %v", err)
	}
	if got := paneDir(dump.PaneDump{}, "", false); got != home {
		t.Fatalf("empty path must fall back to home, got %q", got)
	}
}
