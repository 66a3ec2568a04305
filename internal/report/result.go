package report

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ahbverify/internal/ahb"
)

// Verdict of a scenario run.
type Verdict uint8

const (
	Pass Verdict = iota
	Fail
	Aborted
)

func (v Verdict) String() string {
	switch v {
	case Pass:
		return "pass"
	case Fail:
		return "fail"
	case Aborted:
		return "aborted"
	default:
		return fmt.Sprintf("verdict(%d)", uint8(v))
	}
}

// Process exit codes of the run interface.
const (
	ExitPass      = 0
	ExitViolation = 1
	ExitMismatch  = 2
	ExitAborted   = 3
	ExitUsage     = 4
)

// Result is what a run hands back to the orchestration.
type Result struct {
	ID       uuid.UUID
	Scenario string
	Seed     int64
	Started  time.Time
	Cycles   ahb.Cycle
	Expected int
	Observed int
	Findings []Finding
}

// NewResult creates an empty result with a fresh run ID.
func NewResult(scenario string, seed int64) *Result {
	return &Result{
		ID:       uuid.New(),
		Scenario: scenario,
		Seed:     seed,
		Started:  time.Now(),
	}
}

func (r *Result) Add(f ...Finding) { r.Findings = append(r.Findings, f...) }

// Violations returns the protocol violations of the run.
func (r *Result) Violations() []ProtocolViolation {
	var out []ProtocolViolation
	for _, f := range r.Findings {
		if v, ok := f.(ProtocolViolation); ok {
			out = append(out, v)
		}
	}
	return out
}

// Mismatches returns the scoreboard mismatches of the run.
func (r *Result) Mismatches() []ScoreboardMismatch {
	var out []ScoreboardMismatch
	for _, f := range r.Findings {
		if m, ok := f.(ScoreboardMismatch); ok {
			out = append(out, m)
		}
	}
	return out
}

// Abort returns the abort finding, if the run was aborted.
func (r *Result) Abort() (InfrastructureAbort, bool) {
	for _, f := range r.Findings {
		if a, ok := f.(InfrastructureAbort); ok {
			return a, true
		}
	}
	return InfrastructureAbort{}, false
}

// Verdict derives the single outcome of the run.
func (r *Result) Verdict() Verdict {
	if _, ok := r.Abort(); ok {
		return Aborted
	}
	if len(r.Violations()) > 0 || len(r.Mismatches()) > 0 {
		return Fail
	}
	return Pass
}

// ExitCode maps the verdict onto the process exit status. A run with both
// violations and mismatches reports the checker first.
func (r *Result) ExitCode() int {
	switch {
	case r.Verdict() == Aborted:
		return ExitAborted
	case len(r.Violations()) > 0:
		return ExitViolation
	case len(r.Mismatches()) > 0:
		return ExitMismatch
	default:
		return ExitPass
	}
}

// Record is the flattened, serialisable form of a result.
type Record struct {
	ID         string    `json:"id"`
	Scenario   string    `json:"scenario"`
	Seed       int64     `json:"seed"`
	Started    time.Time `json:"started"`
	Cycles     uint64    `json:"cycles"`
	Verdict    string    `json:"verdict"`
	ExitCode   int       `json:"exit_code"`
	Expected   int       `json:"expected"`
	Observed   int       `json:"observed"`
	Violations int       `json:"violations"`
	Mismatches int       `json:"mismatches"`
	Findings   []string  `json:"findings"`
}

// Record flattens the result.
func (r *Result) Record() Record {
	rec := Record{
		ID:         r.ID.String(),
		Scenario:   r.Scenario,
		Seed:       r.Seed,
		Started:    r.Started,
		Cycles:     uint64(r.Cycles),
		Verdict:    r.Verdict().String(),
		ExitCode:   r.ExitCode(),
		Expected:   r.Expected,
		Observed:   r.Observed,
		Violations: len(r.Violations()),
		Mismatches: len(r.Mismatches()),
	}
	for _, f := range r.Findings {
		rec.Findings = append(rec.Findings, f.String())
	}
	return rec
}

// MarshalJSON encodes the result as its record.
func (r *Result) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Record())
}
