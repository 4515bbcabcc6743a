// cmd/stepwise/main.go
//
// Entry point for the stepwise CLI. `stepwise [WORKFLOW]` runs a workflow
// file (workflow.yml, searched upward from the working directory, by default).
// SIGINT and SIGTERM cancel the run context, which stops running commands.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kingrea/stepwise/internal/logging"
)

var version = "dev"

func main() {
	if _, err := logging.Configure(logging.LevelWarn, logging.FormatText, os.Stderr); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(os.Stdin, os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dir string
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	var (
		global globalFlags
		opts   runFlags
	)
	root := &cobra.Command{
		Use:           "stepwise [WORKFLOW]",
		Short:         "Run shell command workflows step by step",
		Long:          "Runs the steps of a workflow file in order, parallel groups concurrently,\nand asks how to recover when a step fails.",
		Version:       version,
		Args:          cobra.MaximumNArgs(1),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			opts.journalSet = cmd.Flags().Changed("journal")
			return runWorkflow(cmd.Context(), global, opts, name, cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVarP(&global.dir, "dir", "C", "", "Run as if started in this directory")

	flags := root.Flags()
	flags.BoolVar(&opts.testMode, "test-mode", false, "Never prompt; unrecovered failures fail the run")
	flags.BoolVar(&opts.noInteractive, "no-interactive", false, "Disable recovery prompts")
	flags.BoolVar(&opts.linePrompts, "line-prompts", false, "Read recovery choices line by line from stdin")
	flags.StringVar(&opts.logLevel, "log-level", "", "Diagnostics level: debug, info, warn, error")
	flags.StringVar(&opts.logFormat, "log-format", "", "Diagnostics format: text or json")
	flags.BoolVar(&opts.logFile, "log-file", false, "Write diagnostics to .stepwise/logs/stepwise.log")
	flags.BoolVar(&opts.journal, "journal", true, "Append the run to .stepwise/logs/journal.log")
	flags.StringVar(&opts.report, "report", "", "Write a JSON run report to this path")

	root.AddCommand(newValidateCmd(&global))
	root.AddCommand(newInitCmd(&global))
	root.AddCommand(newJournalCmd(&global))
	return root
}

func workingDir(global globalFlags) (string, error) {
	if global.dir != "" {
		return global.dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("determine working directory: %w", err)
	}
	return cwd, nil
}
