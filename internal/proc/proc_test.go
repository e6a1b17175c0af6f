package proc

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ykai55/tbox/internal/dump"
)

func writeFakePS(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "ps")
	script := "#!/bin/sh\nset -eu\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake ps: %v", err)
	}
	return path
}

func TestListOrdersForegroundFirst(t *testing.T) {
	fake := writeFakePS(t, `
cat <<'EOF'
  400   399 me  Ss  01:02:03 -zsh
  512   400 me  S+     00:42 nvim .
EOF
`)

	i := NewInspector(fake, nil)
	got := i.List("/dev/ttys001")
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %#v", got)
	}
	if got[0].PID != 512 || got[0].Command[0] != "nvim" {
		t.Fatalf("foreground job must sort first, got %#v", got[0])
	}
	if got[1].PID != 400 || got[1].PPID == nil || *got[1].PPID != 399 {
		t.Fatalf("unexpected shell record: %#v", got[1])
	}
}

func TestListPassesNormalizedTTY(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ps.log")
	fake := writeFakePS(t, `echo "$*" > "$PS_LOG"`)
	t.Setenv("PS_LOG", logPath)

	i := NewInspector(fake, nil)
	i.List("/dev/ttys007")

	b, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	want := "-t ttys007 -o pid=,ppid=,user=,state=,etime=,args=\n"
	if string(b) != want {
		t.Fatalf("unexpected ps argv: %q", b)
	}
}

func TestListFailureReturnsNil(t *testing.T) {
	fake := writeFakePS(t, "exit 1")
	i := NewInspector(fake, nil)
	if got := i.List("ttys000"); got != nil {
		t.Fatalf("expected nil on ps failure, got %#v", got)
	}
	if got := i.List("  "); got != nil {
		t.Fatalf("expected nil for empty tty, got %#v", got)
	}
}

func TestNormalizeTTY(t *testing.T) {
	if got := NormalizeTTY("/dev/ttys000"); got != "ttys000" {
		t.Fatalf("unexpected tty: %q", got)
	}
	if got := NormalizeTTY(" pts/3 "); got != "pts/3" {
		t.Fatalf("unexpected tty: %q", got)
	}
}

func TestParsePSSkipsMalformedLines(t *testing.T) {
	got := parsePS("garbage\n400 399 me S 01:02 zsh\nnotanint 1 me S 01:02 zsh\n")
	if len(got) != 1 || got[0].PID != 400 {
		t.Fatalf("expected single parsed record, got %#v", got)
	}
}

func TestSplitCommand(t *testing.T) {
	got := SplitCommand(`nvim "my file.txt"`)
	want := []string{"nvim", "my file.txt"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	broken := `echo "unbalanced`
	if got := SplitCommand(broken); len(got) != 1 || got[0] != broken {
		t.Fatalf("unbalanced quotes must fall back to one token, got %v", got)
	}
}

func TestEtimeSeconds(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{in: "00:42", want: 42},
		{in: "03:15", want: 195},
		{in: "1:02:03", want: 3723},
		{in: "2-01:00:00", want: 2*86400 + 3600},
	}
	for _, tt := range tests {
		if got := etimeSeconds(tt.in); got != tt.want {
			t.Fatalf("etimeSeconds(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}

	max := int(^uint(0) >> 1)
	for _, in := range []string{"", "garbage", "1:2:3:4", "x-01:00"} {
		if got := etimeSeconds(in); got != max {
			t.Fatalf("etimeSeconds(%q) must sort last, got %d", in, got)
		}
	}
}

func TestDefaultPolicyTieBreaksOnTreeDepth(t *testing.T) {
	p1, p2 := 100, 200
	records := []dump.ProcessRecord{
		{PID: 300, PPID: &p2, Etime: "00:10", Command: []string{"child"}},
		{PID: 200, PPID: &p1, Etime: "00:10", Command: []string{"parent"}},
	}
	got := DefaultPolicy(records)
	if got[0].PID != 200 || got[1].PID != 300 {
		t.Fatalf("shallower process must win the etime tie, got %#v", got)
	}
}
