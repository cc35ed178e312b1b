package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"mercator-hq/arbiter/pkg/cli"
	"mercator-hq/arbiter/pkg/governance"
	"mercator-hq/arbiter/pkg/rulebook"
	"mercator-hq/arbiter/pkg/rulebook/source"
)

func newPolicyCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Inspect and validate the rulebook",
		Long: `Inspect and validate governance policies.

Subcommands:
  list  - Show the registered policies in priority order
  lint  - Check a rulebook for structural and expression errors`,
	}
	cmd.AddCommand(newPolicyListCmd(g), newPolicyLintCmd(g))
	return cmd
}

func newPolicyListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered policies",
		Long: `List the policies loaded from the configured source, highest
precedence first.

Examples:
  arbiter policy list
  arbiter policy list -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := g.formatter()
			if err != nil {
				return err
			}

			a, err := newApp(cmd.Context(), g, cmd.ErrOrStderr(), needs{rulebook: true})
			if err != nil {
				return err
			}
			defer a.Close()

			return formatter.FormatTo(cmd.OutOrStdout(), newPolicyTable(a.registry.All()))
		},
	}
}

// policyRow is one listed policy.
type policyRow struct {
	Priority    int    `json:"priority"`
	Name        string `json:"name"`
	Mandatory   bool   `json:"mandatory"`
	Rules       int    `json:"rules"`
	Origin      string `json:"origin,omitempty"`
	Description string `json:"description,omitempty"`
}

type policyTable []policyRow

func newPolicyTable(policies []governance.Policy) policyTable {
	t := make(policyTable, 0, len(policies))
	for _, p := range policies {
		row := policyRow{
			Priority:  p.Priority(),
			Name:      p.Name(),
			Mandatory: governance.IsMandatory(p),
		}
		if rp, ok := p.(*rulebook.Policy); ok {
			spec := rp.Spec()
			row.Rules = len(spec.Rules)
			row.Origin = spec.Origin
			row.Description = spec.Description
		}
		t = append(t, row)
	}
	return t
}

func (policyTable) Header() []string {
	return []string{"PRIORITY", "NAME", "MANDATORY", "RULES", "DESCRIPTION"}
}

func (t policyTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		mandatory := ""
		if r.Mandatory {
			mandatory = "yes"
		}
		rows = append(rows, []string{
			strconv.Itoa(r.Priority), r.Name, mandatory, strconv.Itoa(r.Rules), r.Description,
		})
	}
	return rows
}

type lintFlags struct {
	file   string
	strict bool
}

func newPolicyLintCmd(g *globalFlags) *cobra.Command {
	flags := &lintFlags{}

	cmd := &cobra.Command{
		Use:   "lint",
		Short: "Validate a rulebook",
		Long: `Validate rulebook files without loading them into the engine.

Checks YAML structure, unknown keys, duplicate names and priorities,
rule effects, and that every CEL expression compiles to a boolean.
Exits with status 1 when errors are found.

Examples:
  # Lint the configured policy source
  arbiter policy lint

  # Lint a file or directory
  arbiter policy lint --file policies/

  # Warnings fail the run too
  arbiter policy lint --file policies/ --strict`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter, err := g.formatter()
			if err != nil {
				return err
			}

			src, err := lintSource(g, flags)
			if err != nil {
				return err
			}
			doc, err := src.Load(cmd.Context())
			if err != nil {
				return err
			}

			issues := rulebook.Lint(doc)
			out := cmd.OutOrStdout()
			if len(issues) > 0 {
				if err := formatter.FormatTo(out, issueTable(issues)); err != nil {
					return err
				}
			}

			failing := rulebook.Errors(issues)
			if flags.strict {
				failing = issues
			}
			if len(failing) > 0 {
				return &cli.ExitError{
					Code:    cli.ExitFailure,
					Message: fmt.Sprintf("%s: %d problem(s) found", src.Describe(), len(failing)),
				}
			}
			if cli.OutputFormat(g.output) == cli.FormatText {
				fmt.Fprintf(out, "✓ %s: %d policies valid\n", src.Describe(), len(doc.Policies))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&flags.file, "file", "f", "", "rulebook file or directory (default: configured source)")
	cmd.Flags().BoolVar(&flags.strict, "strict", false, "treat warnings as errors")
	return cmd
}

func lintSource(g *globalFlags, flags *lintFlags) (source.Source, error) {
	if flags.file != "" {
		return source.NewFileSource(flags.file, nil), nil
	}
	cfg, err := loadConfig(g)
	if err != nil {
		return nil, err
	}
	return source.New(&cfg.Policies, nil)
}

type issueTable []rulebook.Issue

func (issueTable) Header() []string {
	return []string{"SEVERITY", "ORIGIN", "POLICY", "RULE", "MESSAGE"}
}

func (t issueTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, i := range t {
		rows = append(rows, []string{string(i.Severity), i.Origin, i.Policy, i.Rule, i.Message})
	}
	return rows
}

