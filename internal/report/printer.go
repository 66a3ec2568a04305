package report

import (
	"fmt"
	"io"
	"os"
)

// Printer writes run results in the text form the CLI shows.
type Printer struct {
	out     io.Writer
	verbose bool
}

func NewPrinter() *Printer {
	return &Printer{
		out: os.Stdout,
	}
}

// SetOutput allows redirecting the printer output
func (p *Printer) SetOutput(w io.Writer) {
	if w != nil {
		p.out = w
	}
}

// SetVerbose prints every finding rather than a summary.
func (p *Printer) SetVerbose(v bool) { p.verbose = v }

// PrintResult prints the header, the findings and the verdict line.
func (p *Printer) PrintResult(r *Result) {
	fmt.Fprintf(p.out, "Run %s : scenario %q seed %d\n", r.ID, r.Scenario, r.Seed)
	fmt.Fprintln(p.out, "-----------------------------------------------")
	fmt.Fprintf(p.out, "cycles=%d expected=%d observed=%d\n", r.Cycles, r.Expected, r.Observed)

	shown := len(r.Findings)
	if !p.verbose && shown > 20 {
		shown = 20
	}
	for _, f := range r.Findings[:shown] {
		fmt.Fprintln(p.out, f.String())
	}
	if shown < len(r.Findings) {
		fmt.Fprintf(p.out, "... %d more findings\n", len(r.Findings)-shown)
	}

	fmt.Fprintf(p.out, "violations=%d mismatches=%d\n", len(r.Violations()), len(r.Mismatches()))
	fmt.Fprintf(p.out, "VERDICT: %s (exit %d)\n", r.Verdict(), r.ExitCode())
}

// PrintRecord prints one line for a stored run record.
func (p *Printer) PrintRecord(rec Record) {
	fmt.Fprintf(p.out, "%s %s %-8s seed=%d cycles=%d violations=%d mismatches=%d %s\n",
		rec.Started.Format("2006-01-02T15:04:05"), rec.ID, rec.Verdict, rec.Seed, rec.Cycles,
		rec.Violations, rec.Mismatches, rec.Scenario)
}
