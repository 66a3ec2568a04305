// Package slave holds the subordinates used as the device under test when
// no external simulator is attached: a scripted responder, a memory, the
// default error subordinate and the address decoder that selects between
// them.
package slave

import (
	"ahbverify/internal/ahb"
	"ahbverify/internal/sched"
)

// Responder drives the subordinate outputs HREADY, HRESP and HRDATA for the
// cycle in bus. prev is the bus as it settled on the previous cycle; a beat
// enters a responder's data phase when prev accepted it with HSEL set.
type Responder interface {
	Respond(prev ahb.Signals, bus *ahb.Signals)
}

// Stage adapts a responder to the scheduler.
func Stage(r Responder) sched.Stage {
	return sched.StageFunc(func(prev ahb.Signals, bus *ahb.Signals) sched.Resp {
		r.Respond(prev, bus)
		return sched.RespCont
	})
}

// beat is the address and control a responder latched for its data phase.
type beat struct {
	addr  uint64
	write bool
	size  ahb.Size
	trans ahb.Trans
	burst ahb.Burst
}

// phase is the data phase register shared by the responders. It sequences
// wait states and the two cycle non OKAY responses.
type phase struct {
	valid  bool
	b      beat
	waits  int
	resp   ahb.Resp
	second bool // first cycle of a non OKAY response already driven
}

// next ends the data phase when prev had HREADY high. If prev also accepted
// a beat for this responder, the beat is latched and returned.
func (p *phase) next(prev ahb.Signals) (beat, bool) {
	if !prev.HReady {
		return beat{}, false
	}
	*p = phase{}
	if !prev.ResetN || !prev.HSel || !prev.HTrans.IsBeat() {
		return beat{}, false
	}
	p.valid = true
	p.b = beat{addr: prev.HAddr, write: prev.HWrite, size: prev.HSize, trans: prev.HTrans, burst: prev.HBurst}
	return p.b, true
}

// drive sets HREADY and HRESP for the current cycle and returns true on the
// cycle the data phase completes.
func (p *phase) drive(bus *ahb.Signals) bool {
	switch {
	case !p.valid:
		bus.HReady, bus.HResp = true, ahb.RespOkay
		return false
	case p.waits > 0:
		p.waits--
		bus.HReady, bus.HResp = false, ahb.RespOkay
		return false
	case p.resp == ahb.RespOkay:
		bus.HReady, bus.HResp = true, ahb.RespOkay
		return true
	case !p.second:
		p.second = true
		bus.HReady, bus.HResp = false, p.resp
		return false
	default:
		bus.HReady, bus.HResp = true, p.resp
		return true
	}
}

func idleOutputs(bus *ahb.Signals) {
	bus.HReady = true
	bus.HResp = ahb.RespOkay
	bus.HRData = 0
}
