package checker

import (
	"fmt"

	"ahbverify/internal/ahb"
	"ahbverify/internal/common"
	"ahbverify/internal/report"
)

// Checker runs Transition once per cycle and accumulates the violations.
type Checker struct {
	common.Component

	cfg        Config
	state      State
	last       ahb.Cycle
	violations []report.ProtocolViolation
}

func New(cfg Config) *Checker {
	c := &Checker{cfg: cfg, state: Initial()}
	c.InitComponent("checker")
	return c
}

// Reset returns the checker to the test start state and drops the history.
func (c *Checker) Reset() {
	c.state = Initial()
	c.violations = nil
	c.last = 0
}

// Check evaluates one sample and returns the violations it produced.
func (c *Checker) Check(s ahb.Signals) []report.ProtocolViolation {
	var vs []report.ProtocolViolation
	prev := c.state.Phase
	c.state, vs = Transition(c.cfg, c.state, s)
	c.last = s.Cycle
	for _, v := range vs {
		sev := common.ErrSevWarn
		if v.Fatal {
			sev = common.ErrSevError
		}
		c.LogError(common.NewErrorWithCycleMsg(sev, common.ErrProtocol, v.Cycle, v.Kind.String()+": "+v.Detail))
	}
	if prev != PhaseErrorLatched && c.state.Phase == PhaseErrorLatched {
		c.LogMessage(common.ErrSevInfo, fmt.Sprintf("latched at cycle %d", s.Cycle))
	}
	c.violations = append(c.violations, vs...)
	return vs
}

func (c *Checker) State() State { return c.state }

// Latched returns true once a fatal violation stopped checking.
func (c *Checker) Latched() bool { return c.state.Phase == PhaseErrorLatched }

func (c *Checker) Violations() []report.ProtocolViolation { return c.violations }

// Finish reports the rules that can only be judged at the normal end of a
// run: a fixed length burst never completed and a retry never reissued.
func (c *Checker) Finish() []report.ProtocolViolation {
	if c.Latched() || c.state.InReset {
		return nil
	}
	var vs []report.ProtocolViolation
	if b := c.state.Burst; b.Incomplete() && !b.Errored {
		vs = append(vs, report.ProtocolViolation{
			Kind:   report.KindBurstLength,
			Cycle:  c.last,
			Detail: fmt.Sprintf("%s burst at 0x%x ended with the run after %d of %d beats", b.Ctl.Burst, b.Ctl.Addr, b.Accepted, b.Declared),
		})
	}
	if r := c.state.Retry; r.Pending {
		vs = append(vs, report.ProtocolViolation{
			Kind:   report.KindIllegalRetry,
			Cycle:  c.last,
			Detail: fmt.Sprintf("%s of %s never reissued", r.Resp, r.Ctl),
		})
	}
	c.violations = append(c.violations, vs...)
	return vs
}

// Flush turns the checks still in progress into inconclusive findings. It is
// used when a run is aborted.
func (c *Checker) Flush() []report.Inconclusive {
	if c.Latched() {
		return nil
	}
	var out []report.Inconclusive
	add := func(format string, args ...interface{}) {
		out = append(out, report.Inconclusive{Source: c.ComponentName(), Cycle: c.last, Detail: fmt.Sprintf(format, args...)})
	}
	st := c.state
	if st.Burst.Open() {
		add("%s burst at 0x%x open after %d beats", st.Burst.Ctl.Burst, st.Burst.Ctl.Addr, st.Burst.Accepted)
	}
	if st.Retry.Pending {
		add("%s of %s awaiting reissue", st.Retry.Resp, st.Retry.Ctl)
	}
	if st.Data.Valid {
		add("beat %s in the data phase", st.Data.Ctl)
	}
	if st.Stall > 0 && !st.StallReported {
		add("stall of %d cycles in progress", st.Stall)
	}
	return out
}
