package main

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ykai55/tbox/internal/app"
	"github.com/ykai55/tbox/internal/config"
	"github.com/ykai55/tbox/internal/dump"
	"github.com/ykai55/tbox/internal/tmux"
)

func NewRootCmd() *cobra.Command {
	logger := log.New(os.Stderr)

	root := &cobra.Command{
		Use:           "tbox",
		Short:         "tmux session persistence + switcher",
		Long:          "tbox dumps tmux session topology to JSON archives and restores or switches to them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	newApp := func() (*app.App, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		return app.New(cfg, logger), nil
	}

	root.AddCommand(
		newSaveCmd(newApp),
		newAutosaveCmd(newApp, logger),
		newSelectCmd(newApp),
		newDropCmd(newApp),
		newListCmd(newApp),
		newPreviewCmd(newApp),
		newDumpCmd(newApp),
		newRestoreCmd(newApp),
		newSnippetCmd(),
	)
	return root
}

type appFactory func() (*app.App, error)

func newSaveCmd(newApp appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "save [name]",
		Short: "Save a tmux session dump to the archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return a.Save(name)
		},
	}
}

func newAutosaveCmd(newApp appFactory, logger *log.Logger) *cobra.Command {
	var quiet bool
	var throttleSeconds float64
	cmd := &cobra.Command{
		Use:   "autosave",
		Short: "Autosave all named tmux sessions, throttled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if quiet {
				logger.SetLevel(log.ErrorLevel)
			}
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.Autosave(time.Duration(throttleSeconds*float64(time.Second)), quiet)
		},
	}
	cmd.Flags().BoolVar(&quiet, "quiet", false, "suppress output")
	cmd.Flags().Float64Var(&throttleSeconds, "throttle-seconds", config.Default().ThrottleDefault.Seconds(), "skip autosave if run within this many seconds")
	return cmd
}

// runCommandsFlags registers the opt-in/opt-out pair for command replay.
// Both exist because historical versions disagreed on the default; the
// resolved value starts from the TBOX_RUN_COMMANDS-aware config default.
func runCommandsFlags(cmd *cobra.Command, runCommands, noRunCommands *bool) {
	cmd.Flags().BoolVar(runCommands, "run-commands", false, "replay pane commands during restore (default)")
	cmd.Flags().BoolVar(noRunCommands, "no-run-commands", false, "do not run pane commands during restore")
	cmd.MarkFlagsMutuallyExclusive("run-commands", "no-run-commands")
}

func resolveRunCommands(def, runCommands, noRunCommands bool) bool {
	if runCommands {
		return true
	}
	if noRunCommands {
		return false
	}
	return def
}

func newSelectCmd(newApp appFactory) *cobra.Command {
	var newSession, runCommands, noRunCommands bool
	cmd := &cobra.Command{
		Use:   "select [name]",
		Short: "Select a session (live + archived) and switch or restore",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			previewCmd := "tbox preview"
			if exe, err := os.Executable(); err == nil {
				previewCmd = exe + " preview"
			}
			return a.Select(name, app.SelectOptions{
				NewSession:  newSession,
				RunCommands: resolveRunCommands(a.Config().RunCommands, runCommands, noRunCommands),
				PreviewCmd:  previewCmd,
			})
		},
	}
	cmd.Flags().BoolVarP(&newSession, "new", "n", false, "restore archived sessions into a new tmux session")
	runCommandsFlags(cmd, &runCommands, &noRunCommands)
	return cmd
}

func newDropCmd(newApp appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "drop [name]",
		Short: "Drop a stored session archive",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			name := ""
			if len(args) > 0 {
				name = args[0]
			}
			return a.Drop(name)
		},
	}
}

func newListCmd(newApp appFactory) *cobra.Command {
	var verbose, all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.List(cmd.OutOrStdout(), verbose, all)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show archive path")
	cmd.Flags().BoolVar(&all, "all", false, "include live sessions")
	return cmd
}

func newPreviewCmd(newApp appFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "preview <name>",
		Short: "Preview an archived session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			return a.Preview(cmd.OutOrStdout(), args[0])
		},
	}
}

func newDumpCmd(newApp appFactory) *cobra.Command {
	var session string
	var pretty bool
	cmd := &cobra.Command{
		Use:   "dump [file]",
		Short: "Dump a session's topology as JSON to a file or stdout",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			d, err := a.Dump(session)
			if err != nil {
				return err
			}
			b, err := dump.Marshal(d, pretty)
			if err != nil {
				return err
			}
			if len(args) == 0 {
				_, err = cmd.OutOrStdout().Write(b)
				return err
			}
			// The document is fully built before the write; a failed dump
			// never leaves a partial file behind.
			return os.WriteFile(args[0], b, 0o644)
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "session to dump (default: enclosing or attached session)")
	cmd.Flags().BoolVar(&pretty, "pretty", true, "indent the JSON output")
	return cmd
}

func newRestoreCmd(newApp appFactory) *cobra.Command {
	var session, baseDir string
	var force, appendWindows, runCommands, noRunCommands bool
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Restore a session's topology from a dump file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			b, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read dump %s: %w", args[0], err)
			}
			d, err := dump.Parse(b)
			if err != nil {
				return err
			}
			return runRestore(a.Tmux(), d, restoreParams{
				session:     session,
				baseDir:     baseDir,
				force:       force,
				append:      appendWindows,
				runCommands: resolveRunCommands(a.Config().RunCommands, runCommands, noRunCommands),
			})
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "target session name")
	cmd.Flags().StringVar(&baseDir, "base-dir", "", "working directory override for the first window's panes")
	cmd.Flags().BoolVar(&force, "force", false, "clear the target session before restoring")
	cmd.Flags().BoolVar(&appendWindows, "append", false, "append windows to the target session")
	cmd.MarkFlagsMutuallyExclusive("force", "append")
	runCommandsFlags(cmd, &runCommands, &noRunCommands)
	return cmd
}

type restoreParams struct {
	session     string
	baseDir     string
	force       bool
	append      bool
	runCommands bool
}

// runRestore resolves the restore target the way the historical loader
// did: an explicit --session wins; inside tmux the dump lands in the
// current session (renamed to the dump's name when they differ); outside
// tmux the dump's own name is used, made unique when taken.
func runRestore(client *tmux.Client, d dump.SessionDump, p restoreParams) error {
	target := p.session
	switch {
	case target != "":
	case tmux.InTmux():
		current, err := client.CurrentSession()
		if err != nil {
			return err
		}
		target = current
		if d.Name != "" && d.Name != current {
			renamed := client.UniqueSessionName(d.Name)
			if err := client.RenameSession(current, renamed); err != nil {
				return err
			}
			target = renamed
		}
	default:
		if d.Name == "" {
			return fmt.Errorf("restore: %w (dump has no name and none was supplied)", tmux.ErrSessionNameRequired)
		}
		target = client.UniqueSessionName(d.Name)
	}

	res, err := client.Restore(d, tmux.RestoreOptions{
		TargetSession: target,
		Force:         p.force,
		Append:        p.append,
		BaseDir:       p.baseDir,
		RunCommands:   p.runCommands,
	})
	if err != nil {
		return err
	}
	if res.InPlace {
		return nil
	}
	return client.AttachOrSwitch(res.Target)
}

func newSnippetCmd() *cobra.Command {
	var throttleSeconds float64
	var tboxCommand string
	cmd := &cobra.Command{
		Use:   "tmux-snippet",
		Short: "Print a tmux.conf snippet wiring autosave hooks and keybindings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			command := tboxCommand
			if command == "" {
				if exe, err := os.Executable(); err == nil {
					command = exe
				} else {
					command = "tbox"
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), app.TmuxSnippet(command, time.Duration(throttleSeconds*float64(time.Second))))
			return nil
		},
	}
	cmd.Flags().Float64Var(&throttleSeconds, "throttle-seconds", config.Default().ThrottleDefault.Seconds(), "throttle used in the autosave snippet")
	cmd.Flags().StringVar(&tboxCommand, "tbox-command", "", "command to run in tmux hooks (default: this executable)")
	return cmd
}
