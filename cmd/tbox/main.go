package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/ykai55/tbox/internal/tmux"
)

func main() {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps the error taxonomy onto process exit codes: missing
// session names (resolution impossible outside tmux) exit 2, everything
// else 1.
func exitCode(err error) int {
	if errors.Is(err, tmux.ErrSessionNameRequired) {
		return 2
	}
	return 1
}
