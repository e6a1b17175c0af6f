package app

import (
	"fmt"
	"strings"
	"time"
)

// autosaveHooks is the minimal hook set that catches session shape
// changes; the autosave throttle absorbs the burstiness.
var autosaveHooks = []string{
	"client-session-changed",
	"client-detached",
	"session-renamed",
	"window-renamed",
	"window-layout-changed",
}

// TmuxSnippet renders a tmux.conf fragment wiring autosave hooks, the
// select popup, and a save-before-kill binding around the given tbox
// command.
func TmuxSnippet(command string, throttle time.Duration) string {
	quoted := strings.ReplaceAll(command, `"`, `\"`)
	var b strings.Builder

	b.WriteString("# tbox session persistence\n")
	fmt.Fprintf(&b, "# Requires: %s\n", quoted)
	fmt.Fprintf(&b, "set -g @tbox_autosave \"%s autosave --quiet --throttle-seconds %g\"\n", quoted, throttle.Seconds())
	for _, hook := range autosaveHooks {
		fmt.Fprintf(&b, "set-hook -g %s \"run-shell -b \\\"#{@tbox_autosave}\\\"\"\n", hook)
	}
	fmt.Fprintf(&b, "bind W popup -E \"%s select\"\n", quoted)
	fmt.Fprintf(&b,
		"bind X confirm-before -p \"kill-session #{session_name}? (y/n)\" "+
			"\"run-shell -b \\\"%s save #{session_name} >/dev/null 2>&1; tmux kill-session -t #{session_name}\\\"\"\n",
		quoted)
	return b.String()
}
