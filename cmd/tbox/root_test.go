package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykai55/tbox/internal/dump"
	"github.com/ykai55/tbox/internal/tmux"
)

func writeFakeTmux(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "tmux")
	script := "#!/bin/sh\nset -eu\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(tmux.ErrSessionNameRequired))
	assert.Equal(t, 2, exitCode(fmt.Errorf("save: %w", tmux.ErrSessionNameRequired)))
	assert.Equal(t, 1, exitCode(errors.New("anything else")))
	assert.Equal(t, 1, exitCode(tmux.ErrSessionNotFound))
}

func TestResolveRunCommands(t *testing.T) {
	assert.True(t, resolveRunCommands(true, false, false))
	assert.False(t, resolveRunCommands(false, false, false))
	assert.True(t, resolveRunCommands(false, true, false))
	assert.False(t, resolveRunCommands(true, false, true))
}

func TestSnippetCommand(t *testing.T) {
	out, err := runCommand(t, "tmux-snippet", "--tbox-command", "tbox", "--throttle-seconds", "5")
	require.NoError(t, err)
	assert.Contains(t, out, `set -g @tbox_autosave "tbox autosave --quiet --throttle-seconds 5"`)
	assert.Contains(t, out, `bind W popup -E "tbox select"`)
	assert.Contains(t, out, "set-hook -g client-detached")
}

func TestRestoreCommandMissingFile(t *testing.T) {
	_, err := runCommand(t, "restore", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read dump")
}

func TestRestoreCommandRejectsForceWithAppend(t *testing.T) {
	_, err := runCommand(t, "restore", "x.json", "--force", "--append")
	require.Error(t, err)
}

func TestPreviewCommandMissingArchive(t *testing.T) {
	t.Setenv("TBOX_DIR", t.TempDir())
	out, err := runCommand(t, "preview", "ghost")
	require.NoError(t, err)
	assert.Contains(t, out, "No archive for session: ghost")
}

func TestListCommandEmpty(t *testing.T) {
	t.Setenv("TBOX_DIR", t.TempDir())
	out, err := runCommand(t, "list")
	require.NoError(t, err)
	assert.Equal(t, "No sessions\n", out)
}

const dumpFakeBody = `
case "$1" in
list-sessions)
  printf 'dev\0371\0371\0371756400000\037120\03740\n'
  ;;
list-windows)
  printf '0\037editor\0371\037even-horizontal\037120\03739\0370\n'
  ;;
show-options)
  echo off
  ;;
list-panes)
  printf '0\037\0371\037/tmp\037zsh\037\037\n'
  ;;
esac
exit 0
`

func TestDumpCommandWritesFile(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("TBOX_DIR", t.TempDir())
	t.Setenv("TBOX_TMUX_BIN", writeFakeTmux(t, dumpFakeBody))

	outFile := filepath.Join(t.TempDir(), "dev.json")
	_, err := runCommand(t, "dump", outFile, "--session", "dev")
	require.NoError(t, err)

	b, err := os.ReadFile(outFile)
	require.NoError(t, err)
	d, err := dump.Parse(b)
	require.NoError(t, err)
	assert.Equal(t, "dev", d.Name)
	require.Len(t, d.Windows, 1)
	assert.Equal(t, "editor", d.Windows[0].Name)
}

func TestDumpCommandStdout(t *testing.T) {
	t.Setenv("TMUX", "")
	t.Setenv("TBOX_DIR", t.TempDir())
	t.Setenv("TBOX_TMUX_BIN", writeFakeTmux(t, dumpFakeBody))

	out, err := runCommand(t, "dump", "--pretty=false")
	require.NoError(t, err)
	d, err := dump.Parse([]byte(out))
	require.NoError(t, err)
	assert.Equal(t, "dev", d.Name)
}

func TestSaveCommandArchivesSession(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TMUX", "")
	t.Setenv("TBOX_DIR", dir)
	t.Setenv("TBOX_TMUX_BIN", writeFakeTmux(t, dumpFakeBody))

	_, err := runCommand(t, "save", "dev")
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "dev-")
}

const restoreFakeBody = `
echo "$*" >> "$TMUX_LOG"
case "$1" in
has-session) exit 1 ;;
new-session) echo '@1' ;;
list-panes) printf '%s\n' '%0' ;;
esac
exit 0
`

func writeRestoreDump(t *testing.T) string {
	t.Helper()
	d := dump.SessionDump{Name: "demo", Windows: []dump.WindowDump{{
		Index: 0,
		Name:  "editor",
		Panes: []dump.PaneDump{
			{Index: 0, Path: "/tmp", StartCommand: &dump.StartCommand{Literal: "nvim ."}},
		},
	}}}
	b, err := dump.Marshal(d, true)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "demo.json")
	require.NoError(t, os.WriteFile(path, b, 0o644))
	return path
}

func TestRestoreCommandEnvDisablesReplay(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tmux.log")
	t.Setenv("TMUX_LOG", logPath)
	t.Setenv("TMUX", "")
	t.Setenv("TBOX_DIR", t.TempDir())
	t.Setenv("TBOX_TMUX_BIN", writeFakeTmux(t, restoreFakeBody))
	t.Setenv("TBOX_RUN_COMMANDS", "false")

	_, err := runCommand(t, "restore", writeRestoreDump(t), "--session", "demo")
	require.NoError(t, err)

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, "new-session -d -s demo")
	assert.NotContains(t, out, "respawn-pane")
	assert.NotContains(t, out, "nvim")
}

func TestRestoreCommandFlagOverridesEnv(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "tmux.log")
	t.Setenv("TMUX_LOG", logPath)
	t.Setenv("TMUX", "")
	t.Setenv("TBOX_DIR", t.TempDir())
	t.Setenv("TBOX_TMUX_BIN", writeFakeTmux(t, restoreFakeBody))
	t.Setenv("TBOX_RUN_COMMANDS", "false")

	_, err := runCommand(t, "restore", writeRestoreDump(t), "--session", "demo", "--run-commands")
	require.NoError(t, err)

	b, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(b), "respawn-pane -k -t %0 nvim .")
}

func TestRunRestoreOutsideTmuxRequiresName(t *testing.T) {
	t.Setenv("TMUX", "")
	d := dump.SessionDump{Windows: []dump.WindowDump{{Index: 0}}}
	err := runRestore(tmux.NewClient("tmux"), d, restoreParams{})
	require.ErrorIs(t, err, tmux.ErrSessionNameRequired)
}
