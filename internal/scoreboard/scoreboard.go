// Package scoreboard correlates observed transfers with intended ones. The
// Nth observation is compared with the Nth expectation; content plays no
// part in the matching.
package scoreboard

import (
	"fmt"

	"github.com/google/go-cmp/cmp"

	"ahbverify/internal/ahb"
	"ahbverify/internal/common"
	"ahbverify/internal/monitor"
	"ahbverify/internal/report"
	"ahbverify/internal/txn"
)

// PipelineDepth is the number of transfers that may be expected but not yet
// observed: one in the data phase and one in the address phase.
const PipelineDepth = 2

// transferFields has the layout of txn.Transfer without its Equal method,
// so that cmp reports the differing fields rather than the whole value.
type transferFields struct {
	Address uint64
	Dir     txn.Direction
	Size    uint64
	Kind    txn.BurstKind
	Length  int
	Data    []uint64
	Resp    ahb.Resp
	Prot    uint8
}

func fields(t txn.Transfer) transferFields { return transferFields(t) }

type entry struct {
	t     txn.Transfer
	cycle ahb.Cycle
}

// Scoreboard holds the unresolved expectations of a run.
type Scoreboard struct {
	common.Component

	pending    []entry
	resolved   int
	mismatches []report.ScoreboardMismatch
	diverged   bool // occupancy currently differs
}

func New() *Scoreboard {
	s := &Scoreboard{}
	s.InitComponent("scoreboard")
	return s
}

// Expect records a transfer submitted for issue at cycle cyc.
func (s *Scoreboard) Expect(t txn.Transfer, cyc ahb.Cycle) {
	s.pending = append(s.pending, entry{t: t, cycle: cyc})
}

// Outstanding returns the number of expectations not yet observed.
func (s *Scoreboard) Outstanding() int { return len(s.pending) }

// Resolved returns the number of observations compared so far.
func (s *Scoreboard) Resolved() int { return s.resolved }

func (s *Scoreboard) Mismatches() []report.ScoreboardMismatch { return s.mismatches }

// Observe compares an observation with the oldest expectation and returns
// the mismatch found, if any.
func (s *Scoreboard) Observe(o monitor.Observed) *report.ScoreboardMismatch {
	obs := o.Transfer
	if len(s.pending) == 0 {
		return s.mismatch(report.ScoreboardMismatch{
			Observed: &obs,
			Cycle:    o.Cycle,
			Detail:   "observed a transfer nothing was expected for",
		})
	}
	exp := s.pending[0].t
	s.pending = s.pending[1:]
	s.resolved++
	if exp.Equal(obs) {
		return nil
	}
	return s.mismatch(report.ScoreboardMismatch{
		Expected: &exp,
		Observed: &obs,
		Cycle:    o.Cycle,
		Detail:   cmp.Diff(fields(exp), fields(obs)),
	})
}

// CheckOccupancy compares the pipeline occupancy the driver intended with
// the one the monitor derived. A divergence is reported once until the two
// agree again.
func (s *Scoreboard) CheckOccupancy(cyc ahb.Cycle, driven, observed int) *report.ScoreboardMismatch {
	if driven == observed {
		s.diverged = false
		return nil
	}
	if s.diverged {
		return nil
	}
	s.diverged = true
	m := report.ScoreboardMismatch{
		Cycle:  cyc,
		Detail: fmt.Sprintf("pipeline occupancy driven %d, observed %d", driven, observed),
	}
	s.LogError(common.NewErrorWithCycleMsg(common.ErrSevWarn, common.ErrPipelineDiverged, cyc, m.Detail))
	s.mismatches = append(s.mismatches, m)
	return &s.mismatches[len(s.mismatches)-1]
}

// Finish ends a completed run: every expectation still pending was never
// observed.
func (s *Scoreboard) Finish(cyc ahb.Cycle) []report.ScoreboardMismatch {
	var out []report.ScoreboardMismatch
	for _, e := range s.pending {
		exp := e.t
		out = append(out, *s.mismatch(report.ScoreboardMismatch{
			Expected: &exp,
			Cycle:    cyc,
			Detail:   fmt.Sprintf("expected at cycle %d, never observed", e.cycle),
		}))
	}
	s.pending = nil
	return out
}

// Flush ends an aborted run: pending expectations are inconclusive.
func (s *Scoreboard) Flush(cyc ahb.Cycle) []report.Inconclusive {
	var out []report.Inconclusive
	for _, e := range s.pending {
		out = append(out, report.Inconclusive{
			Source: s.ComponentName(),
			Cycle:  cyc,
			Detail: fmt.Sprintf("unresolved %s expected at cycle %d", e.t, e.cycle),
		})
	}
	s.pending = nil
	return out
}

func (s *Scoreboard) mismatch(m report.ScoreboardMismatch) *report.ScoreboardMismatch {
	s.LogError(common.NewErrorWithCycleMsg(common.ErrSevWarn, common.ErrMismatch, m.Cycle, m.Detail))
	s.mismatches = append(s.mismatches, m)
	return &m
}
