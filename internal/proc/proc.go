// Package proc lists the OS processes attached to a terminal device,
// ordered foreground-most first. It is best-effort by contract: callers
// always get a (possibly empty) list, never an error.
package proc

import (
	"os/exec"
	"sort"
	"strconv"
	"strings"

	shellwords "github.com/mattn/go-shellwords"

	"github.com/ykai55/tbox/internal/dump"
)

// Policy orders process records foreground-most first. The default is a
// heuristic; tests and platforms with better information can inject their
// own.
type Policy func([]dump.ProcessRecord) []dump.ProcessRecord

type Inspector struct {
	psBin  string
	policy Policy
}

func NewInspector(psBin string, policy Policy) *Inspector {
	if strings.TrimSpace(psBin) == "" {
		psBin = "ps"
	}
	if policy == nil {
		policy = DefaultPolicy
	}
	return &Inspector{psBin: psBin, policy: policy}
}

// List returns the processes whose controlling terminal is tty. Any failure
// (missing ps, permission error, unknown tty) yields an empty list.
func (i *Inspector) List(tty string) []dump.ProcessRecord {
	tty = NormalizeTTY(tty)
	if tty == "" {
		return nil
	}
	out, err := exec.Command(i.psBin, "-t", tty, "-o", "pid=,ppid=,user=,state=,etime=,args=").Output()
	if err != nil {
		return nil
	}
	records := parsePS(string(out))
	if len(records) == 0 {
		return nil
	}
	return i.policy(records)
}

// NormalizeTTY converts a pane tty device path into the short form ps
// expects ("/dev/ttys000" -> "ttys000").
func NormalizeTTY(tty string) string {
	return strings.TrimPrefix(strings.TrimSpace(tty), "/dev/")
}

func parsePS(out string) []dump.ProcessRecord {
	var records []dump.ProcessRecord
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		rec := dump.ProcessRecord{
			PID:     pid,
			User:    fields[2],
			State:   fields[3],
			Etime:   fields[4],
			Command: SplitCommand(strings.Join(fields[5:], " ")),
		}
		if ppid, err := strconv.Atoi(fields[1]); err == nil {
			rec.PPID = &ppid
		}
		records = append(records, rec)
	}
	return records
}

// SplitCommand tokenizes a command line with shell word-splitting rules.
// Unparseable input (unbalanced quotes) falls back to a single token.
func SplitCommand(cmdline string) []string {
	tokens, err := shellwords.Parse(cmdline)
	if err != nil || len(tokens) == 0 {
		return []string{cmdline}
	}
	return tokens
}

// DefaultPolicy sorts by elapsed time ascending (most recently started
// first), then depth in the process tree ascending, then pid. With a lone
// shell the shell stays first; with a foreground job running the job sorts
// ahead of the shell that spawned it.
func DefaultPolicy(records []dump.ProcessRecord) []dump.ProcessRecord {
	depth := treeDepth(records)
	ordered := make([]dump.ProcessRecord, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		ei, ej := etimeSeconds(ordered[i].Etime), etimeSeconds(ordered[j].Etime)
		if ei != ej {
			return ei < ej
		}
		if depth[ordered[i].PID] != depth[ordered[j].PID] {
			return depth[ordered[i].PID] < depth[ordered[j].PID]
		}
		return ordered[i].PID < ordered[j].PID
	})
	return ordered
}

func treeDepth(records []dump.ProcessRecord) map[int]int {
	parent := make(map[int]int, len(records))
	for _, r := range records {
		if r.PPID != nil {
			parent[r.PID] = *r.PPID
		}
	}
	depth := make(map[int]int, len(records))
	for _, r := range records {
		d, pid := 0, r.PID
		for {
			pp, ok := parent[pid]
			if !ok {
				break
			}
			if _, known := parent[pp]; !known {
				break
			}
			d++
			pid = pp
			if d > len(records) {
				break
			}
		}
		depth[r.PID] = d
	}
	return depth
}

// etimeSeconds parses ps elapsed-time notation ([[dd-]hh:]mm:ss). Anything
// unparseable sorts last.
func etimeSeconds(etime string) int {
	etime = strings.TrimSpace(etime)
	if etime == "" {
		return int(^uint(0) >> 1)
	}
	days := 0
	if i := strings.Index(etime, "-"); i >= 0 {
		d, err := strconv.Atoi(etime[:i])
		if err != nil {
			return int(^uint(0) >> 1)
		}
		days = d
		etime = etime[i+1:]
	}
	parts := strings.Split(etime, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return int(^uint(0) >> 1)
	}
	total := 0
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return int(^uint(0) >> 1)
		}
		total = total*60 + n
	}
	return days*86400 + total
}
