package app

import (
	"strings"
	"testing"
	"time"
)

func TestTmuxSnippetWiresHooksAndBindings(t *testing.T) {
	got := TmuxSnippet("/usr/local/bin/tbox", 3*time.Second)

	for _, hook := range autosaveHooks {
		if !strings.Contains(got, "set-hook -g "+hook+" ") {
			t.Fatalf("missing hook %q in snippet:\n%s", hook, got)
		}
	}
	mustContain := []string{
		`set -g @tbox_autosave "/usr/local/bin/tbox autosave --quiet --throttle-seconds 3"`,
		`bind W popup -E "/usr/local/bin/tbox select"`,
		"bind X confirm-before",
		"kill-session",
	}
	for _, needle := range mustContain {
		if !strings.Contains(got, needle) {
			t.Fatalf("expected %q in snippet:\n%s", needle, got)
		}
	}
}

func TestTmuxSnippetQuotesCommand(t *testing.T) {
	got := TmuxSnippet(`/opt/"odd"/tbox`, time.Second)
	if strings.Contains(got, `/opt/"odd"/tbox`) {
		t.Fatalf("double quotes must be escaped:\n%s", got)
	}
	if !strings.Contains(got, `/opt/\"odd\"/tbox`) {
		t.Fatalf("expected escaped command in snippet:\n%s", got)
	}
}
