// Package commands implements the mathwalk command line.
package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/livetemplate/mathwalk/internal/config"
)

const version = "0.1.0-dev"

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	debug      bool
	allowExec  bool
}

// NewRootCommand builds the mathwalk command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "mathwalk",
		Short: "Interactive step-by-step math tutorials",
		Long: `mathwalk serves lessons as a step-by-step tutorial in the browser.
Each step pairs an explanation with example code that runs in an embedded
interpreter, so learners can edit and re-run it.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Running a host interpreter is disabled by default.
			config.SetAllowExec(flags.allowExec)
			return nil
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&flags.configPath, "config", "c", "", "config file (default: mathwalk.yaml next to the lessons)")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")
	pf.BoolVar(&flags.allowExec, "allow-exec", false, "allow the exec runtime to run a host python")

	root.AddCommand(
		newServeCommand(flags),
		newValidateCommand(flags),
		newStepsCommand(flags),
		newRunCommand(flags),
		newVersionCommand(),
	)
	return root
}

// Main runs the command line and returns the process exit code.
func Main(args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(stdout, stderr)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mathwalk version %s\n", version)
		},
	}
}
