// Package cli holds the operator commands of the hrdash binary.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/hrdash/hrdash/internal/budget"
)

// Ledger is the part of the budget service the operator commands use.
type Ledger interface {
	EnsureSchema(ctx context.Context, div budget.Division) error
	Verify(ctx context.Context, div budget.Division) (budget.VerifyReport, error)
}

// LedgerOptions configures the schema and verify commands.
type LedgerOptions struct {
	Divisions  []string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// ParseDivisions splits a comma separated slug list. Blank input yields nil.
func ParseDivisions(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if slug := strings.TrimSpace(part); slug != "" {
			out = append(out, slug)
		}
	}
	return out
}

// ResolveDivisions maps slugs to divisions. No slugs selects every division.
func ResolveDivisions(slugs []string) ([]budget.Division, error) {
	if len(slugs) == 0 {
		return budget.Divisions(), nil
	}
	out := make([]budget.Division, 0, len(slugs))
	for _, slug := range slugs {
		div, err := budget.LookupDivision(slug)
		if err != nil {
			return nil, err
		}
		out = append(out, div)
	}
	return out, nil
}

func writers(stdout, stderr io.Writer) (io.Writer, io.Writer) {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}
	return stdout, stderr
}

// SchemaCommand creates the tables of the selected divisions.
func SchemaCommand(ctx context.Context, ledger Ledger, opts LedgerOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	divisions, err := ResolveDivisions(opts.Divisions)
	if err != nil {
		fmt.Fprintf(stderr, "schema: %v\n", err)
		return 1
	}
	failed := false
	for _, div := range divisions {
		if err := ledger.EnsureSchema(ctx, div); err != nil {
			fmt.Fprintf(stderr, "schema %s: %v\n", div.Slug, err)
			failed = true
			continue
		}
		fmt.Fprintf(stdout, "schema ready: %s (%s)\n", div.Slug, div.EntryTable())
	}
	if failed {
		return 1
	}
	return 0
}

// VerifyCommand replays the selected ledgers. It exits 0 when every ledger
// is consistent, 3 on drift and 1 when a ledger could not be read.
func VerifyCommand(ctx context.Context, ledger Ledger, opts LedgerOptions) int {
	stdout, stderr := writers(opts.Stdout, opts.Stderr)
	divisions, err := ResolveDivisions(opts.Divisions)
	if err != nil {
		fmt.Fprintf(stderr, "verify: %v\n", err)
		return 1
	}

	reports := make([]budget.VerifyReport, 0, len(divisions))
	exit := 0
	for _, div := range divisions {
		report, err := ledger.Verify(ctx, div)
		if err != nil {
			fmt.Fprintf(stderr, "verify %s: %v\n", div.Slug, err)
			exit = 1
			continue
		}
		if !report.Consistent && exit == 0 {
			exit = 3
		}
		reports = append(reports, report)
	}

	if opts.JSONOutput {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			fmt.Fprintf(stderr, "verify: encode: %v\n", err)
			return 1
		}
		return exit
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DIVISION\tSTYLE\tCHECKED\tSTATUS")
	for _, report := range reports {
		status := "ok"
		if !report.Consistent {
			status = fmt.Sprintf("%d issue(s)", len(report.Issues))
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", report.Division, report.Style, report.Checked, status)
	}
	_ = tw.Flush()
	for _, report := range reports {
		for _, issue := range report.Issues {
			fmt.Fprintf(stdout, "  %s: %s\n", report.Division, issue.Message)
		}
	}
	return exit
}
