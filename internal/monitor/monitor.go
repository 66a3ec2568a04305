// Package monitor implements the passive bus monitor. It rebuilds completed
// transfers from the per-cycle signal samples alone.
package monitor

import (
	"fmt"

	"ahbverify/internal/ahb"
	"ahbverify/internal/common"
	"ahbverify/internal/txn"
)

// Observed is a transfer reconstructed from the bus.
type Observed struct {
	Transfer txn.Transfer
	Start    ahb.Cycle // cycle the first beat was accepted
	Cycle    ahb.Cycle // cycle the last beat completed
}

// FnObservedCB is called with every reconstructed transfer.
type FnObservedCB func(o Observed)

type control struct {
	addr  uint64
	write bool
	size  ahb.Size
	burst ahb.Burst
	prot  uint8
}

func controlOf(s *ahb.Signals) control {
	return control{addr: s.HAddr, write: s.HWrite, size: s.HSize, burst: s.HBurst, prot: s.HProt}
}

// recon is a transfer being reassembled.
type recon struct {
	first    control
	start    ahb.Cycle
	declared int // 0 for undefined length
	beats    []txn.Beat
}

// beatReg is the monitor's data phase register.
type beatReg struct {
	ctl control
	rec *recon // nil for a beat that belongs to no transfer
}

// Monitor samples the bus. It never drives it and keeps its own pipeline
// registers, so its occupancy is derived independently of the driver.
type Monitor struct {
	common.Component

	bus ahb.BusConfig

	data  *beatReg // beat in the data phase
	retry *beatReg // beat answered RETRY/SPLIT awaiting reissue
	cur   *recon

	occupancy  int
	observed   int
	observedCB FnObservedCB
}

func New(bus ahb.BusConfig) *Monitor {
	m := &Monitor{bus: bus}
	m.InitComponent("monitor")
	return m
}

func (m *Monitor) SetObservedCB(fn FnObservedCB) { m.observedCB = fn }

// Occupancy returns the number of beats in the address and data phases of
// the last sampled cycle.
func (m *Monitor) Occupancy() int { return m.occupancy }

// Observed returns the number of transfers reconstructed so far.
func (m *Monitor) Observed() int { return m.observed }

// Busy returns true while a transfer is partly observed.
func (m *Monitor) Busy() bool { return m.cur != nil || m.data != nil || m.retry != nil }

// Sample takes the settled bus of one cycle and returns the transfer it
// completed, if any.
func (m *Monitor) Sample(s ahb.Signals) *Observed {
	if !s.ResetN {
		if m.cur != nil {
			m.LogMessage(common.ErrSevWarn, fmt.Sprintf("cycle %d: reset dropped transfer at 0x%x after %d beats", s.Cycle, m.cur.first.addr, len(m.cur.beats)))
		}
		m.data, m.retry, m.cur = nil, nil, nil
		m.occupancy = 0
		return nil
	}

	m.occupancy = 0
	if m.data != nil {
		m.occupancy++
	}
	if s.HTrans.IsBeat() {
		m.occupancy++
	}

	var out *Observed
	if s.HReady && m.data != nil {
		out = m.complete(&s)
	}
	if !s.HReady {
		return out
	}

	switch s.HTrans {
	case ahb.TransIdle:
		if r := m.cur; r != nil && r.declared == 0 && m.data == nil && m.retry == nil {
			out = m.emit(r, s.Cycle)
		}
	case ahb.TransNonSeq:
		ctl := controlOf(&s)
		if m.retry != nil && m.retry.ctl == ctl {
			m.data = &beatReg{ctl: ctl, rec: m.retry.rec}
			m.retry = nil
			break
		}
		abandoned := m.retry != nil
		m.retry = nil
		if r := m.cur; r != nil {
			if r.declared == 0 && !abandoned {
				out = m.emit(r, s.Cycle)
			} else {
				m.drop(r, s.Cycle)
			}
		}
		m.cur = &recon{first: ctl, start: s.Cycle, declared: ctl.burst.Beats()}
		m.data = &beatReg{ctl: ctl, rec: m.cur}
	case ahb.TransSeq:
		ctl := controlOf(&s)
		m.retry = nil
		if m.cur == nil {
			e := common.NewErrorWithCycleMsg(common.ErrSevWarn, common.ErrBadBeatSeq, s.Cycle, fmt.Sprintf("SEQ at 0x%x with no transfer", s.HAddr))
			m.LogError(e)
		}
		m.data = &beatReg{ctl: ctl, rec: m.cur}
	}
	return out
}

// complete ends the data phase of the registered beat.
func (m *Monitor) complete(s *ahb.Signals) *Observed {
	b := m.data
	m.data = nil
	if s.HResp.IsReissue() {
		m.retry = b
		return nil
	}
	r := b.rec
	if r == nil {
		return nil
	}
	val := s.HRData
	if b.ctl.write {
		val = s.HWData
	}
	kind := txn.KindFromCode(r.first.burst)
	r.beats = append(r.beats, txn.Beat{
		Index:   len(r.beats),
		Address: b.ctl.addr,
		Dir:     dirOf(b.ctl.write),
		Size:    b.ctl.size.Bytes(),
		Kind:    kind,
		Length:  r.declared,
		Prot:    b.ctl.prot,
		Data:    val & m.bus.DataMask(),
		Resp:    s.HResp,
	})
	if r.declared > 0 && len(r.beats) == r.declared {
		return m.emit(r, s.Cycle)
	}
	return nil
}

func (m *Monitor) emit(r *recon, cyc ahb.Cycle) *Observed {
	if m.cur == r {
		m.cur = nil
	}
	t, err := txn.Recompose(r.beats)
	if err != nil {
		m.LogError(common.NewErrorWithCycleMsg(common.ErrSevWarn, common.ErrBadBeatSeq, cyc, err.Error()))
		return nil
	}
	m.observed++
	o := &Observed{Transfer: t, Start: r.start, Cycle: cyc}
	if m.observedCB != nil {
		m.observedCB(*o)
	}
	return o
}

func (m *Monitor) drop(r *recon, cyc ahb.Cycle) {
	m.LogError(common.NewErrorWithCycleMsg(common.ErrSevWarn, common.ErrIncompleteXfer, cyc,
		fmt.Sprintf("%s transfer at 0x%x abandoned after %d beats", r.first.burst, r.first.addr, len(r.beats))))
	if m.cur == r {
		m.cur = nil
	}
}

func dirOf(write bool) txn.Direction {
	if write {
		return txn.Write
	}
	return txn.Read
}
