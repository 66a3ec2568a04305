// Package report holds the findings a scenario run accumulates and the
// verdict derived from them.
package report

import (
	"fmt"

	"ahbverify/internal/ahb"
	"ahbverify/internal/txn"
)

// ViolationKind identifies which protocol rule was broken.
type ViolationKind uint8

const (
	KindIllegalSequence ViolationKind = iota
	KindBurstLength
	KindBurstConflict
	KindStallTimeout
	KindIllegalRetry
	KindResetOrdering
	KindIllegalResponse
)

var kindNames = [...]string{
	"illegal-sequence",
	"burst-length",
	"burst-conflict",
	"stall-timeout",
	"illegal-retry",
	"reset-ordering",
	"illegal-response",
}

func (k ViolationKind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("violation(%d)", uint8(k))
}

// Finding is one entry of a run result.
type Finding interface {
	FindingCycle() ahb.Cycle
	String() string
}

// ProtocolViolation is illegal bus behaviour reported by the checker.
type ProtocolViolation struct {
	Kind   ViolationKind
	Cycle  ahb.Cycle
	Detail string
	Fatal  bool
}

func (v ProtocolViolation) FindingCycle() ahb.Cycle { return v.Cycle }

func (v ProtocolViolation) String() string {
	sev := "violation"
	if v.Fatal {
		sev = "fatal violation"
	}
	return fmt.Sprintf("cycle %d: %s %s: %s", v.Cycle, sev, v.Kind, v.Detail)
}

// ScoreboardMismatch is a wrong functional result on a legal bus sequence.
// Observed is nil when the expected transfer was never observed, Expected is
// nil for an observation nothing was expected for.
type ScoreboardMismatch struct {
	Expected *txn.Transfer
	Observed *txn.Transfer
	Cycle    ahb.Cycle
	Detail   string
}

func (m ScoreboardMismatch) FindingCycle() ahb.Cycle { return m.Cycle }

func (m ScoreboardMismatch) String() string {
	return fmt.Sprintf("cycle %d: scoreboard mismatch: %s\n  expected: %s\n  observed: %s",
		m.Cycle, m.Detail, xferStr(m.Expected), xferStr(m.Observed))
}

func xferStr(t *txn.Transfer) string {
	if t == nil {
		return "<none>"
	}
	return t.String()
}

// InfrastructureAbort ends a run early for reasons outside the bus.
type InfrastructureAbort struct {
	Reason string
	Cycle  ahb.Cycle
}

func (a InfrastructureAbort) FindingCycle() ahb.Cycle { return a.Cycle }

func (a InfrastructureAbort) String() string {
	return fmt.Sprintf("cycle %d: aborted: %s", a.Cycle, a.Reason)
}

// Inconclusive is a check that could not complete because the run stopped.
type Inconclusive struct {
	Source string
	Cycle  ahb.Cycle
	Detail string
}

func (i Inconclusive) FindingCycle() ahb.Cycle { return i.Cycle }

func (i Inconclusive) String() string {
	return fmt.Sprintf("cycle %d: inconclusive %s: %s", i.Cycle, i.Source, i.Detail)
}
