package slave

import (
	"fmt"
	"math/rand"

	"ahbverify/internal/ahb"
	"ahbverify/internal/common"
	"ahbverify/internal/txn"
)

// ScriptConfig sets the timing and fault injection of a Scripted responder.
type ScriptConfig struct {
	MinWait      int
	MaxWait      int
	RetryRate    float64 // probability a beat is answered RETRY or SPLIT
	MaxRetries   int     // per beat bound on reissue responses
	SplitEnabled bool
}

// Scripted answers the beats of the intended transfers in order. Reads return
// the intended data, a transfer declared ERROR gets its ERROR on beat 0.
type Scripted struct {
	common.Component

	cfg ScriptConfig
	rng *rand.Rand
	bus ahb.BusConfig

	queue   []txn.Transfer
	cur     *txn.Transfer
	idx     int
	curDone bool

	ph          phase
	rdata       uint64
	reissue     bool // last beat was answered RETRY/SPLIT
	beatRetries int
	injected    int
}

func NewScripted(cfg ScriptConfig, bus ahb.BusConfig, rng *rand.Rand) *Scripted {
	s := &Scripted{cfg: cfg, bus: bus, rng: rng}
	s.InitComponent("scripted")
	return s
}

// Expect queues the next transfer the master will issue.
func (s *Scripted) Expect(t txn.Transfer) { s.queue = append(s.queue, t) }

// Injected returns the number of RETRY and SPLIT responses given.
func (s *Scripted) Injected() int { return s.injected }

func (s *Scripted) Respond(prev ahb.Signals, bus *ahb.Signals) {
	if !bus.ResetN {
		s.reset()
		idleOutputs(bus)
		return
	}
	if b, ok := s.ph.next(prev); ok {
		s.accept(b, prev.Cycle)
	}
	done := s.ph.drive(bus)
	bus.HRData = 0
	if s.ph.valid && !s.ph.b.write {
		bus.HRData = s.rdata & s.bus.DataMask()
	}
	if done && s.cur != nil && !s.ph.resp.IsReissue() && s.idx == s.cur.Length-1 {
		s.curDone = true
	}
}

func (s *Scripted) accept(b beat, cyc ahb.Cycle) {
	switch {
	case b.trans == ahb.TransNonSeq && s.reissue:
		s.reissue = false
	case b.trans == ahb.TransNonSeq:
		s.cur = nil
		if len(s.queue) > 0 {
			t := s.queue[0]
			s.queue = s.queue[1:]
			s.cur = &t
		}
		s.idx = 0
		s.curDone = false
		s.beatRetries = 0
	default:
		s.idx++
		s.beatRetries = 0
	}

	s.ph.waits = s.cfg.MinWait
	if span := s.cfg.MaxWait - s.cfg.MinWait; span > 0 {
		s.ph.waits += s.rng.Intn(span + 1)
	}

	if s.cur == nil || s.idx >= s.cur.Length {
		e := common.NewErrorWithCycleMsg(common.ErrSevWarn, common.ErrBadBeatSeq, cyc, fmt.Sprintf("unscripted beat at 0x%x", b.addr))
		s.LogError(e)
		s.rdata = 0
		return
	}
	s.rdata = s.cur.Data[s.idx]

	switch {
	case s.idx == 0 && s.cur.Resp == ahb.RespError:
		s.ph.resp = ahb.RespError
	case s.cfg.RetryRate > 0 && s.beatRetries < s.cfg.MaxRetries && s.rng.Float64() < s.cfg.RetryRate:
		s.ph.resp = ahb.RespRetry
		if s.cfg.SplitEnabled && s.rng.Intn(2) == 0 {
			s.ph.resp = ahb.RespSplit
		}
		s.beatRetries++
		s.injected++
		s.reissue = true
	}
}

// reset rewinds an unfinished transfer so it is answered again from beat 0.
func (s *Scripted) reset() {
	if s.cur != nil && !s.curDone {
		s.queue = append([]txn.Transfer{*s.cur}, s.queue...)
	}
	s.cur = nil
	s.idx = 0
	s.curDone = false
	s.reissue = false
	s.beatRetries = 0
	s.ph = phase{}
}
