package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/inbox"
)

type watchFlags struct {
	dir string
}

func newWatchCmd(g *globalFlags) *cobra.Command {
	flags := &watchFlags{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Decide requests dropped into a directory",
		Long: `Watch a directory for change request files.

Every new or modified *.json file is decided and answered with a sibling
<name>.decision.json. Requests already in the directory without a current
answer are decided at startup.

Examples:
  # Watch the configured inbox (inbox.dir)
  arbiter watch

  # Watch a specific directory
  arbiter watch --dir /var/spool/arbiter`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, g, cmd.ErrOrStderr(), needAll)
			if err != nil {
				return err
			}
			defer a.Close()

			cfg := a.cfg.Inbox
			if flags.dir != "" {
				cfg.Dir = flags.dir
			}
			w, err := inbox.New(&cfg, a.governor, a.logger)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "✓ Watching %s (%d policies)\n", cfg.Dir, a.rulebook.Len())
			return w.Run(ctx)
		},
	}

	cmd.Flags().StringVarP(&flags.dir, "dir", "d", "", "directory to watch (overrides inbox.dir)")
	return cmd
}
