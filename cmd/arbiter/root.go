package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configFile string
	logLevel   string
	output     string
}

// newRootCmd builds the command tree. A fresh tree per call keeps flag
// state from leaking between invocations in tests.
func newRootCmd() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:   "arbiter",
		Short: "Arbiter - priority-ordered change governance",
		Long: `Arbiter evaluates proposed changes against a rulebook of governance
policies and returns one of three decisions:

  APPROVED     the change may proceed
  CONDITIONAL  the change may proceed once the listed conditions are met
  BLOCKED      the change may not proceed

Higher-priority policies dominate: a block from any applicable policy
cannot be outvoted. Every decision is appended to a tamper-evident audit
log before it is returned.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "config file path (defaults plus ARBITER_* environment when empty)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", "text", "output format: text, json, csv")

	root.AddCommand(
		newDecideCmd(flags),
		newServeCmd(flags),
		newWatchCmd(flags),
		newAuditCmd(flags),
		newPolicyCmd(flags),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command and returns the process exit code. An
// ExitError without a message is silent: the command has already printed
// its result.
func Execute() int {
	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) || exitErr.Message != "" {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	return cli.ExitCode(err)
}

// formatter resolves the --output flag.
func (f *globalFlags) formatter() (cli.Formatter, error) {
	return cli.NewFormatter(cli.OutputFormat(f.output))
}
