package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/governance"
)

type decideFlags struct {
	file     string
	exitCode bool
}

func newDecideCmd(g *globalFlags) *cobra.Command {
	flags := &decideFlags{}

	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Decide a change request",
		Long: `Decide a single change request and record it in the audit log.

The request is JSON with an optional id, a description, tags and string
attributes:

  {"id": "chg-118", "description": "ship 2.4", "tags": ["release"],
   "attributes": {"version": "2.4.0"}}

Examples:
  # Decide a request file
  arbiter decide -f change.json

  # Read the request from stdin, print JSON
  cat change.json | arbiter decide -f - -o json

  # Fail a CI job when the change is blocked
  arbiter decide -f change.json --exit-code`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecide(cmd, g, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "change request JSON file ('-' for stdin)")
	cmd.Flags().BoolVar(&flags.exitCode, "exit-code", false, "exit with status 2 when the change is blocked")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func runDecide(cmd *cobra.Command, g *globalFlags, flags *decideFlags) error {
	formatter, err := g.formatter()
	if err != nil {
		return err
	}

	data, err := readRequest(cmd, flags.file)
	if err != nil {
		return err
	}
	req, err := governance.ParseChangeRequest(data)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, g, cmd.ErrOrStderr(), needAll)
	if err != nil {
		return err
	}
	defer a.Close()

	entry, err := a.governor.Record(ctx, req)
	if err != nil {
		return cli.NewCommandError("decide", err)
	}

	out := cmd.OutOrStdout()
	view := decisionView{Decision: entry.Decision, AuditSequence: entry.Sequence, AuditHash: entry.Hash}
	if cli.OutputFormat(g.output) == cli.FormatText {
		err = view.writeText(out, formatter)
	} else {
		err = formatter.FormatTo(out, view)
	}
	if err != nil {
		return err
	}

	if flags.exitCode && entry.Decision.FinalStatus == governance.FinalBlocked {
		return &cli.ExitError{Code: cli.ExitBlocked}
	}
	return nil
}

func readRequest(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read change request: %w", err)
	}
	return data, nil
}

// decisionView is a decision plus its audit link. As a table it lists the
// verdicts.
type decisionView struct {
	governance.Decision
	AuditSequence uint64 `json:"auditSequence"`
	AuditHash     string `json:"auditHash"`
}

func (v decisionView) Header() []string {
	return []string{"PRIORITY", "POLICY", "STATUS", "RATIONALE"}
}

func (v decisionView) Rows() [][]string {
	rows := make([][]string, 0, len(v.Verdicts))
	for _, vd := range v.Verdicts {
		rows = append(rows, []string{strconv.Itoa(vd.Priority), vd.PolicyName, string(vd.Status), vd.Rationale})
	}
	return rows
}

func (v decisionView) writeText(w io.Writer, f cli.Formatter) error {
	fmt.Fprintf(w, "Request:    %s\n", v.RequestID)
	fmt.Fprintf(w, "Decision:   %s\n", v.FinalStatus)
	fmt.Fprintf(w, "Dominant:   %s\n", v.DominantPolicy)
	fmt.Fprintf(w, "Rationale:  %s\n", v.Rationale)
	if len(v.Conditions) > 0 {
		fmt.Fprintln(w, "Conditions:")
		for _, c := range v.Conditions {
			fmt.Fprintf(w, "  - %s\n", c)
		}
	}
	fmt.Fprintf(w, "Audit:      #%d %s\n", v.AuditSequence, shortHash(v.AuditHash))
	if len(v.Verdicts) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	return f.FormatTo(w, v)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// joinConditions renders conditions for a single table cell.
func joinConditions(c []string) string {
	return strings.Join(c, "; ")
}
