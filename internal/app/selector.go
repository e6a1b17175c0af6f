package app

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// Action is what the user asked the selector to do with the chosen entry.
type Action string

const (
	ActionSelect Action = "select"
	ActionDrop   Action = "drop"
)

// Selector presents the merged session directory and returns the chosen
// entry. A nil entry with a nil error means the user cancelled; callers
// treat that as a successful no-op.
type Selector interface {
	Choose(entries []Entry, prompt string) (*Entry, Action, error)
}

// LookPath abstracts exec.LookPath for probing tests.
type LookPath func(string) (string, error)

// ResolveSelector picks the selector backend: an explicit override forces
// one, otherwise fzf then sk are probed on PATH, with the numeric prompt
// as the terminal fallback.
func ResolveSelector(override string, lookPath LookPath, logger *log.Logger, in io.Reader, out io.Writer, previewCmd string) Selector {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	prompt := &promptSelector{in: in, out: out}

	switch strings.TrimSpace(override) {
	case "":
		for _, candidate := range []string{"fzf", "sk"} {
			if path, err := lookPath(candidate); err == nil {
				return &execSelector{bin: path, previewCmd: previewCmd}
			}
		}
		return prompt
	case "none", "prompt":
		return prompt
	case "builtin":
		return &builtinPicker{}
	case "fzf", "sk":
		path, err := lookPath(strings.TrimSpace(override))
		if err != nil {
			logger.Warn("selector not found, using prompt", "selector", override)
			return prompt
		}
		return &execSelector{bin: path, previewCmd: previewCmd}
	default:
		logger.Warn("unsupported selector, using prompt", "selector", override)
		return prompt
	}
}

// execSelector drives an external fuzzy finder (fzf or sk): entries go in
// as tab-delimited lines, the chosen line comes back on stdout, and
// ctrl-d flips the action to drop-archive.
type execSelector struct {
	bin        string
	previewCmd string
}

func (s *execSelector) Choose(entries []Entry, prompt string) (*Entry, Action, error) {
	lines, byKey := formatEntryLines(entries)

	args := []string{
		"--prompt", prompt + ": ",
		"--header", "enter=switch/restore, ctrl-d=drop-archive",
		"--expect", "ctrl-d",
		"--with-nth", "1,2,3,4",
		"--delimiter", "\t",
	}
	if s.previewCmd != "" {
		args = append(args, "--preview", s.previewCmd+" {5}", "--preview-window", "up,50%")
	}

	cmd := exec.Command(s.bin, args...)
	cmd.Stdin = strings.NewReader(strings.Join(lines, "\n") + "\n")
	cmd.Stderr = os.Stderr
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		// Non-zero exit is how fzf reports cancellation.
		return nil, "", nil
	}

	outLines := nonEmptyLines(stdout.String())
	if len(outLines) == 0 {
		return nil, "", nil
	}
	key, selected := "", outLines[0]
	if len(outLines) > 1 {
		key = strings.TrimSpace(outLines[0])
		selected = outLines[1]
	}
	parts := strings.Split(selected, "\t")
	if len(parts) < 5 {
		return nil, "", nil
	}
	entry, ok := byKey[strings.TrimSpace(parts[4])]
	if !ok {
		return nil, "", nil
	}
	action := ActionSelect
	if key == "ctrl-d" {
		action = ActionDrop
	}
	return &entry, action, nil
}

// promptSelector is the plain numeric fallback: one numbered line per
// entry, a number read from stdin, then an action letter.
type promptSelector struct {
	in  io.Reader
	out io.Writer
}

func (s *promptSelector) Choose(entries []Entry, prompt string) (*Entry, Action, error) {
	for i, e := range entries {
		windows := "?w"
		if wc, ok := e.WindowCount(); ok {
			windows = fmt.Sprintf("%dw", wc)
		}
		line := strings.TrimRight(fmt.Sprintf("%d) %s  %s  %s  %s", i+1, e.Name, e.Status(), windows, formatMtime(e.ArchiveMtime)), " ")
		fmt.Fprintln(s.out, line)
	}

	reader := bufio.NewReader(s.in)
	fmt.Fprintf(s.out, "%s (number): ", prompt)
	selection, err := readLine(reader)
	if err != nil || selection == "" {
		return nil, "", nil
	}
	idx, err := strconv.Atoi(selection)
	if err != nil || idx < 1 || idx > len(entries) {
		return nil, "", nil
	}
	entry := entries[idx-1]

	fmt.Fprint(s.out, "Action ([s]elect/[d]rop-archive, default s): ")
	action, err := readLine(reader)
	if err == nil && strings.HasPrefix(strings.ToLower(action), "d") {
		return &entry, ActionDrop, nil
	}
	return &entry, ActionSelect, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if err != nil && line == "" {
		return "", err
	}
	return line, nil
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			out = append(out, line)
		}
	}
	return out
}
