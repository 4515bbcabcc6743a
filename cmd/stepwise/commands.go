package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kingrea/stepwise/internal/config"
	"github.com/kingrea/stepwise/internal/logbook"
	"github.com/kingrea/stepwise/internal/workflow"
	"github.com/kingrea/stepwise/internal/workflow/resolver"
)

func newValidateCmd(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [WORKFLOW]",
		Short: "Check a workflow file without running it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := workingDir(*global)
			if err != nil {
				return err
			}
			name := ""
			if len(args) == 1 {
				name = args[0]
			}
			path, err := workflow.FindDefinitionFile(cwd, name)
			if err != nil {
				return err
			}
			def, err := workflow.LoadDefinitionFile(path)
			if err != nil {
				return err
			}
			plan, err := resolver.Resolve(def)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: workflow %q is valid (%d steps)\n", path, plan.Definition.Name, plan.Total)
			printPlan(out, plan.Nodes, 1)
			return nil
		},
	}
}

func printPlan(w io.Writer, nodes []*resolver.Node, depth int) {
	pad := strings.Repeat("  ", depth)
	for _, node := range nodes {
		var line string
		if node.IsGroup() {
			line = fmt.Sprintf("%s- %s (parallel)", pad, node.Name())
		} else {
			line = fmt.Sprintf("%s%d. %s: %s", pad, node.Ordinal, node.Name(), node.Step.Command)
		}
		var notes []string
		if node.ID() != "" {
			notes = append(notes, "id "+node.ID())
		}
		if len(node.Step.DependsOn) > 0 {
			notes = append(notes, "depends on "+strings.Join(node.Step.DependsOn, ", "))
		}
		if node.ConditionSource != "" {
			notes = append(notes, "when "+node.ConditionSource)
		}
		if node.Step.Skippable {
			notes = append(notes, "skippable")
		}
		if len(notes) > 0 {
			line += " [" + strings.Join(notes, "; ") + "]"
		}
		fmt.Fprintln(w, line)
		if node.IsGroup() {
			printPlan(w, node.Children, depth+1)
		}
	}
}

func newInitCmd(global *globalFlags) *cobra.Command {
	var workflowFile string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create .stepwise/ and a sample workflow in the working directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cwd, err := workingDir(*global)
			if err != nil {
				return err
			}
			if err := config.InitProjectDir(cwd, workflowFile); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "initialized %s in %s\n", config.Dir, cwd)
			return nil
		},
	}
	cmd.Flags().StringVar(&workflowFile, "workflow", workflow.DefaultFileName, "Sample workflow file to create if missing (empty to skip)")
	return cmd
}

func newJournalCmd(global *globalFlags) *cobra.Command {
	var lines int
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Show the most recent run journal entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lines <= 0 {
				return fmt.Errorf("--lines must be positive")
			}
			projectDir, err := projectDirFor(*global)
			if err != nil {
				return err
			}
			cfg, err := config.NewConfig(projectDir)
			if err != nil {
				return err
			}
			book, err := logbook.New(cfg.JournalPath())
			if err != nil {
				return err
			}
			entries, total := book.Tail(lines)
			out := cmd.OutOrStdout()
			if total == 0 {
				fmt.Fprintf(out, "no journal entries in %s\n", book.Path())
				return nil
			}
			for _, entry := range entries {
				fmt.Fprintln(out, entry)
			}
			if total > len(entries) {
				fmt.Fprintf(out, "(showing last %d of %d entries)\n", len(entries), total)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of entries to show")
	return cmd
}

// projectDirFor locates the project the same way a run does: the directory of
// the nearest workflow file, or the working directory when there is none.
func projectDirFor(global globalFlags) (string, error) {
	cwd, err := workingDir(global)
	if err != nil {
		return "", err
	}
	path, err := workflow.FindDefinitionFile(cwd, "")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cwd, nil
		}
		return "", err
	}
	return filepath.Dir(path), nil
}
