package checker

import (
	"fmt"

	"ahbverify/internal/ahb"
	"ahbverify/internal/report"
)

// Transition advances the checker by one clock cycle. It is a pure function
// of the configuration, the current state and the settled sample of the
// cycle; the data phase is evaluated before the address phase of the same
// cycle.
func Transition(cfg Config, st State, s ahb.Signals) (State, []report.ProtocolViolation) {
	if !s.ResetN {
		next := Initial()
		next.InReset = true
		return next, nil
	}
	if st.Phase == PhaseErrorLatched {
		return st, nil
	}

	t := transition{cfg: cfg, cur: st, next: st, s: &s}
	t.next.InReset = false
	t.stall()
	t.dataPhase()
	if s.HReady && !t.latched() {
		t.addressPhase()
	}
	if !t.latched() {
		t.next.Xfer = s.HTrans
		if s.HTrans == ahb.TransIdle && !t.next.Data.Valid && !t.next.Burst.Open() && !t.next.Retry.Pending {
			t.next.Phase = PhaseIdle
		} else {
			t.next.Phase = PhaseAddress
		}
	}
	return t.next, t.vs
}

type transition struct {
	cfg  Config
	cur  State
	next State
	s    *ahb.Signals
	vs   []report.ProtocolViolation
}

func (t *transition) report(kind report.ViolationKind, format string, args ...interface{}) {
	t.vs = append(t.vs, report.ProtocolViolation{
		Kind:   kind,
		Cycle:  t.s.Cycle,
		Detail: fmt.Sprintf(format, args...),
	})
}

func (t *transition) fatal(kind report.ViolationKind, format string, args ...interface{}) {
	t.report(kind, format, args...)
	t.vs[len(t.vs)-1].Fatal = true
	t.next.Phase = PhaseErrorLatched
}

func (t *transition) latched() bool { return t.next.Phase == PhaseErrorLatched }

func (t *transition) stall() {
	if t.s.HReady {
		t.next.Stall = 0
		t.next.StallReported = false
		return
	}
	t.next.Stall++
	if t.cfg.MaxStallCycles > 0 && t.next.Stall > t.cfg.MaxStallCycles && !t.next.StallReported {
		t.report(report.KindStallTimeout, "HREADY low for %d cycles, limit %d", t.next.Stall, t.cfg.MaxStallCycles)
		t.next.StallReported = true
	}
}

func (t *transition) dataPhase() {
	s := t.s
	d := t.cur.Data
	if !d.Valid {
		t.orphan()
		return
	}
	t.next.Orphan = false

	if !s.HReady {
		switch {
		case s.HResp != ahb.RespOkay:
			t.next.Data.RespFirst = true
			t.next.Data.RespKind = s.HResp
		case d.RespFirst:
			t.report(report.KindIllegalResponse, "%s response withdrawn before completion of %s", d.RespKind, d.Ctl)
			t.next.Data.RespFirst = false
		}
		return
	}

	resp := s.HResp
	switch {
	case resp != ahb.RespOkay && !d.RespFirst:
		t.report(report.KindIllegalResponse, "single cycle %s response to %s", resp, d.Ctl)
	case resp == ahb.RespOkay && d.RespFirst:
		t.report(report.KindIllegalResponse, "%s response completed as OKAY for %s", d.RespKind, d.Ctl)
	case resp != ahb.RespOkay && resp != d.RespKind:
		t.report(report.KindIllegalResponse, "%s response completed as %s for %s", d.RespKind, resp, d.Ctl)
	}
	if resp == ahb.RespSplit && !t.cfg.SplitEnabled {
		t.report(report.KindIllegalResponse, "SPLIT response to %s with split disabled", d.Ctl)
	}

	switch {
	case resp.IsReissue():
		t.next.Retry = RetryTrack{Pending: true, Ctl: d.Ctl, Resp: resp}
		// the retried beat is the last one accepted and does not count
		if t.next.Burst.Active && t.next.Burst.Accepted > 0 {
			t.next.Burst.Accepted--
		}
	case resp == ahb.RespError:
		t.next.Burst.Errored = true
	}
	t.next.Data = DataPhase{}
}

func (t *transition) orphan() {
	s := t.s
	if s.HReady && s.HResp == ahb.RespOkay {
		t.next.Orphan = false
		return
	}
	if t.cur.Orphan {
		return
	}
	t.next.Orphan = true
	what := "wait state"
	if s.HResp != ahb.RespOkay {
		what = s.HResp.String() + " response"
	}
	if t.cur.InReset {
		t.report(report.KindResetOrdering, "%s on the first cycle after reset", what)
		return
	}
	t.report(report.KindIllegalResponse, "%s with no beat in the data phase", what)
}

func (t *transition) addressPhase() {
	s := t.s
	ctl := controlOf(s)
	switch s.HTrans {
	case ahb.TransIdle:
		if !t.next.Retry.Pending {
			t.endBurst("IDLE")
		}
		return

	case ahb.TransBusy:
		if t.next.Retry.Pending {
			return
		}
		if !t.next.Burst.Active || (t.next.Burst.Declared > 0 && !t.next.Burst.Open()) {
			t.report(report.KindIllegalSequence, "BUSY at 0x%x outside a burst", s.HAddr)
		}
		return

	case ahb.TransNonSeq:
		if r := t.next.Retry; r.Pending {
			t.next.Retry = RetryTrack{}
			if ctl == r.Ctl {
				if t.next.Burst.Active {
					t.next.Burst.Accepted++
				} else {
					t.startBurst(ctl)
				}
				t.next.Data = DataPhase{Valid: true, Ctl: ctl}
				return
			}
			t.report(report.KindIllegalRetry, "NONSEQ %s issued while %s of %s outstanding", ctl, r.Resp, r.Ctl)
		} else {
			t.endBurst("NONSEQ")
		}
		t.startBurst(ctl)
		t.next.Data = DataPhase{Valid: true, Ctl: ctl}
		return

	case ahb.TransSeq:
		t.next.Data = DataPhase{Valid: true, Ctl: ctl}
		if r := t.next.Retry; r.Pending {
			t.report(report.KindIllegalRetry, "SEQ %s issued while %s of %s outstanding", ctl, r.Resp, r.Ctl)
			t.next.Retry = RetryTrack{}
			t.next.Burst = BurstTrack{}
			return
		}
		b := &t.next.Burst
		if !b.Active {
			t.report(report.KindIllegalSequence, "SEQ at 0x%x with no preceding NONSEQ", s.HAddr)
			return
		}
		if ctl.Burst != b.Ctl.Burst || ctl.Size != b.Ctl.Size || ctl.Write != b.Ctl.Write {
			t.fatal(report.KindBurstConflict, "SEQ %s conflicts with burst opened by %s", ctl, b.Ctl)
			return
		}
		if b.Declared > 0 && b.Accepted >= b.Declared {
			if !b.Overrun {
				t.report(report.KindBurstLength, "%s burst at 0x%x overrun past %d beats", b.Ctl.Burst, b.Ctl.Addr, b.Declared)
				b.Overrun = true
			}
			return
		}
		if want := b.NextAddr(); ctl.Addr != want {
			t.report(report.KindIllegalSequence, "SEQ beat %d at 0x%x, burst expects 0x%x", b.Accepted, ctl.Addr, want)
		}
		b.Accepted++
	}
}

func (t *transition) startBurst(ctl Control) {
	t.next.Burst = BurstTrack{
		Active:   true,
		Ctl:      ctl,
		Declared: ctl.Burst.Beats(),
		Accepted: 1,
	}
}

// endBurst closes the tracked burst, reporting an early termination unless
// an ERROR response allowed the master to cancel the remaining beats.
func (t *transition) endBurst(by string) {
	b := t.next.Burst
	if b.Incomplete() && !b.Errored {
		t.report(report.KindBurstLength, "%s burst at 0x%x terminated by %s after %d of %d beats",
			b.Ctl.Burst, b.Ctl.Addr, by, b.Accepted, b.Declared)
	}
	t.next.Burst = BurstTrack{}
}
