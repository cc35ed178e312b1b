package main

import (
	"fmt"
	"io"
	"iter"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/audit"
	"mercator-hq/arbiter/pkg/audit/export"
	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/governance"
)

var auditNeeds = needs{audit: true}

func newAuditCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit log",
		Long: `Inspect the hash-chained audit log.

Subcommands:
  list    - List recorded decisions
  verify  - Recompute the hash chain and report the first broken link
  export  - Write every entry as JSON or CSV`,
	}
	cmd.AddCommand(newAuditListCmd(g), newAuditVerifyCmd(g), newAuditExportCmd(g))
	return cmd
}

type auditListFlags struct {
	requestID string
	status    string
	policy    string
	since     string
	until     string
	limit     int
	offset    int
}

func newAuditListCmd(g *globalFlags) *cobra.Command {
	flags := &auditListFlags{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded decisions",
		Long: `List audit entries in sequence order.

Examples:
  # Last recorded decisions (first 100)
  arbiter audit list

  # Blocked decisions since a date, as CSV
  arbiter audit list --status BLOCKED --since 2026-01-01T00:00:00Z -o csv

  # Everything dominated by one policy
  arbiter audit list --policy release-gate -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := g.formatter()
			if err != nil {
				return err
			}
			q, err := flags.query()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, g, cmd.ErrOrStderr(), auditNeeds)
			if err != nil {
				return err
			}
			defer a.Close()

			entries, err := a.audit.Query(ctx, q)
			if err != nil {
				return err
			}
			return formatter.FormatTo(cmd.OutOrStdout(), entryTable(entries))
		},
	}

	cmd.Flags().StringVar(&flags.requestID, "request-id", "", "only this request")
	cmd.Flags().StringVar(&flags.status, "status", "", "only this final status (APPROVED, CONDITIONAL, BLOCKED)")
	cmd.Flags().StringVar(&flags.policy, "policy", "", "only decisions dominated by this policy")
	cmd.Flags().StringVar(&flags.since, "since", "", "decided at or after (RFC3339)")
	cmd.Flags().StringVar(&flags.until, "until", "", "decided at or before (RFC3339)")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, fmt.Sprintf("maximum entries (default %d)", audit.DefaultLimit))
	cmd.Flags().IntVar(&flags.offset, "offset", 0, "entries to skip")
	return cmd
}

func (f *auditListFlags) query() (*audit.Query, error) {
	q := &audit.Query{
		RequestID:      f.requestID,
		FinalStatus:    governance.FinalStatus(f.status),
		DominantPolicy: f.policy,
		Limit:          f.limit,
		Offset:         f.offset,
	}
	var err error
	if q.Since, err = parseTimeFlag("since", f.since); err != nil {
		return nil, err
	}
	if q.Until, err = parseTimeFlag("until", f.until); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return q, nil
}

func parseTimeFlag(name, raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, cli.NewConfigError("--"+name, fmt.Sprintf("must be an RFC3339 timestamp, got %q", raw))
	}
	return &t, nil
}

// entryTable renders audit entries as rows; JSON output keeps the full
// entries.
type entryTable []*governance.AuditEntry

func (entryTable) Header() []string {
	return []string{"SEQ", "DECIDED", "REQUEST", "STATUS", "DOMINANT", "RATIONALE", "CONDITIONS"}
}

func (t entryTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, e := range t {
		d := e.Decision
		rows = append(rows, []string{
			strconv.FormatUint(e.Sequence, 10),
			d.DecidedAt.UTC().Format(time.RFC3339),
			d.RequestID,
			string(d.FinalStatus),
			d.DominantPolicy,
			d.Rationale,
			joinConditions(d.Conditions),
		})
	}
	return rows
}

// verifyView is the printable form of a verification result.
type verifyView struct {
	Valid      bool      `json:"valid"`
	Entries    int       `json:"entries"`
	LastHash   string    `json:"lastHash"`
	VerifiedAt time.Time `json:"verifiedAt"`
	BrokenAt   uint64    `json:"brokenAt,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

func (v verifyView) String() string {
	if v.Valid {
		return fmt.Sprintf("✓ Audit chain valid (%d entries, head %s)", v.Entries, shortHash(v.LastHash))
	}
	return fmt.Sprintf("✗ Audit chain broken at entry %d: %s", v.BrokenAt, v.Reason)
}

func newAuditVerifyCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify the audit hash chain",
		Long: `Recompute every entry hash and check each link to its predecessor.

Exits with status 1 when the chain is broken.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := g.formatter()
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			a, err := newApp(ctx, g, cmd.ErrOrStderr(), auditNeeds)
			if err != nil {
				return err
			}
			defer a.Close()

			result, err := a.audit.Verify(ctx)
			if err != nil {
				return cli.NewCommandError("audit verify", err)
			}
			a.collector.RecordChainVerification(result.Valid(), result.Entries)

			view := verifyView{
				Valid:      result.Valid(),
				Entries:    result.Entries,
				LastHash:   result.LastHash,
				VerifiedAt: result.VerifiedAt,
			}
			if result.Broken != nil {
				view.BrokenAt = result.Broken.Sequence
				view.Reason = result.Broken.Reason
			}
			if err := formatter.FormatTo(cmd.OutOrStdout(), view); err != nil {
				return err
			}
			if !view.Valid {
				return &cli.ExitError{Code: cli.ExitFailure}
			}
			return nil
		},
	}
}

func (v verifyView) Header() []string {
	return []string{"VALID", "ENTRIES", "LAST_HASH", "BROKEN_AT", "REASON"}
}

func (v verifyView) Rows() [][]string {
	broken := ""
	if v.BrokenAt > 0 {
		broken = strconv.FormatUint(v.BrokenAt, 10)
	}
	return [][]string{{strconv.FormatBool(v.Valid), strconv.Itoa(v.Entries), v.LastHash, broken, v.Reason}}
}

type auditExportFlags struct {
	format   string
	out      string
	progress bool
}

func newAuditExportCmd(g *globalFlags) *cobra.Command {
	flags := &auditExportFlags{}

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the audit log",
		Long: `Write every audit entry, in sequence order, as a JSON array or CSV.

Examples:
  # JSON to stdout
  arbiter audit export

  # CSV to a file with a progress bar
  arbiter audit export --format csv --out audit.csv --progress`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAuditExport(cmd, g, flags)
		},
	}

	cmd.Flags().StringVar(&flags.format, "format", export.FormatJSON, "export format: json, csv")
	cmd.Flags().StringVar(&flags.out, "out", "", "output file (default stdout)")
	cmd.Flags().BoolVar(&flags.progress, "progress", false, "report progress on stderr")
	return cmd
}

func runAuditExport(cmd *cobra.Command, g *globalFlags, flags *auditExportFlags) (err error) {
	exporter, err := export.New(flags.format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, g, cmd.ErrOrStderr(), auditNeeds)
	if err != nil {
		return err
	}
	defer a.Close()

	var w io.Writer = cmd.OutOrStdout()
	if flags.out != "" {
		f, err := os.Create(flags.out)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", flags.out, err)
		}
		defer func() {
			if cerr := f.Close(); err == nil {
				err = cerr
			}
		}()
		w = f
	}

	entries := a.audit.Entries(ctx)
	var progress cli.ProgressReporter
	if flags.progress {
		total, err := a.audit.Count(ctx)
		if err != nil {
			return err
		}
		progress = cli.NewProgressReporter(cmd.ErrOrStderr())
		progress.Start(int64(total))
		entries = withProgress(entries, progress)
	}

	n, err := exporter.Export(ctx, entries, w)
	if err != nil {
		if progress != nil {
			progress.Error(err)
		}
		return err
	}
	if progress != nil {
		progress.Finish()
	}
	if flags.out != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "✓ Exported %d entries to %s\n", n, flags.out)
	}
	return nil
}

// withProgress reports every entry yielded by seq to p.
func withProgress(seq iter.Seq2[*governance.AuditEntry, error], p cli.ProgressReporter) iter.Seq2[*governance.AuditEntry, error] {
	return func(yield func(*governance.AuditEntry, error) bool) {
		var n int64
		for e, err := range seq {
			if err == nil {
				n++
				p.Update(n)
			}
			if !yield(e, err) {
				return
			}
		}
	}
}
