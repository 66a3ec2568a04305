// Package env assembles the verification components for one scenario and
// runs them on the scheduler.
package env

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"ahbverify/internal/ahb"
	"ahbverify/internal/checker"
	"ahbverify/internal/common"
	"ahbverify/internal/driver"
	"ahbverify/internal/history"
	"ahbverify/internal/monitor"
	"ahbverify/internal/report"
	"ahbverify/internal/scenario"
	"ahbverify/internal/sched"
	"ahbverify/internal/scoreboard"
	"ahbverify/internal/sequencer"
	"ahbverify/internal/slave"
	"ahbverify/internal/trace"
	"ahbverify/internal/txn"
)

// slaveSeedMix separates the subordinate's timing stream from the
// sequencer's so that changing wait states never changes the stimulus.
const slaveSeedMix = 0x5eed5eed

// Options are the optional hooks of a run.
type Options struct {
	Logger  common.Logger  // nil discards component logs
	Trace   io.Writer      // per-cycle CSV trace
	History *history.Store // store the result when set

	// WrapDUT replaces the bus subordinate, for example to insert a fault
	// or to bridge to an external simulator. It receives the responder the
	// scenario built.
	WrapDUT func(slave.Responder) slave.Responder
}

type bench struct {
	cfg scenario.Config
	bus ahb.BusConfig
	log common.Logger

	sch *sched.Scheduler
	seq sequencer.Sequencer
	drv *driver.Driver
	dut slave.Responder
	sub *slave.Scripted
	mem *slave.Memory // memory under test
	ref *slave.Memory // reference model of mem
	mon *monitor.Monitor
	chk *checker.Checker
	sb  *scoreboard.Scoreboard

	tw       *trace.Writer
	res      *report.Result
	obs      []monitor.Observed
	expected int

	exhausted bool
	drainLeft int
	aborted   bool
}

// Run executes one scenario. The error is non nil only when the scenario
// cannot be set up; everything that happens on the bus is a finding in the
// result.
func Run(ctx context.Context, cfg scenario.Config, opts Options) (*report.Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := build(cfg, opts)
	if err != nil {
		return nil, err
	}
	b.log.Logf(common.SeverityInfo, "run %s: scenario %q seed %d dut %s", b.res.ID, cfg.Name, cfg.Seed, cfg.DUT)

	out := b.sch.Run(ctx, ahb.Cycle(cfg.MaxCycles), b.done)
	b.finish(out)

	if opts.History != nil {
		if err := opts.History.Record(b.res); err != nil {
			b.log.Error(fmt.Errorf("recording run %s: %w", b.res.ID, err))
		}
	}
	b.log.Logf(common.SeverityInfo, "run %s: %s after %d cycles (%s)", b.res.ID, b.res.Verdict(), b.res.Cycles, out.Stop)
	return b.res, nil
}

func build(cfg scenario.Config, opts Options) (*bench, error) {
	b := &bench{
		cfg: cfg,
		bus: cfg.BusConfig(),
		log: opts.Logger,
		res: report.NewResult(cfg.Name, cfg.Seed),
	}
	if b.log == nil {
		b.log = common.NewNoOpLogger()
	}
	errLog := common.LoggerErrorLog{Logger: b.log}

	seqRng := rand.New(rand.NewSource(cfg.Seed))
	dutRng := rand.New(rand.NewSource(cfg.Seed ^ slaveSeedMix))

	if len(cfg.Directed) > 0 {
		ts, err := cfg.DirectedTransfers()
		if err != nil {
			return nil, err
		}
		b.seq = sequencer.NewDirected(ts...)
	} else {
		cons, err := cfg.Constraints()
		if err != nil {
			return nil, err
		}
		if b.seq, err = sequencer.NewRandom(cons, b.bus, seqRng); err != nil {
			return nil, fmt.Errorf("%w: %v", scenario.ErrInvalid, err)
		}
	}

	dec := slave.NewDecoder()
	switch cfg.DUT {
	case scenario.DUTMemory:
		base, size, err := cfg.MemoryRegion()
		if err != nil {
			return nil, err
		}
		b.mem = slave.NewMemory(base, int(size), cfg.MinWait, cfg.MaxWait, dutRng)
		b.ref = slave.NewMemory(base, int(size), 0, 0, nil)
		if err := dec.AddRegion(base, size, b.mem); err != nil {
			return nil, err
		}
	default:
		b.sub = slave.NewScripted(cfg.ScriptConfig(), b.bus, dutRng)
		span := b.bus.AddrMask() &^ (txn.KiB - 1)
		if b.bus.AddrWidth < 64 {
			span = b.bus.AddrMask() + 1
		}
		if err := dec.AddRegion(0, span, b.sub); err != nil {
			return nil, err
		}
	}
	b.dut = dec
	if opts.WrapDUT != nil {
		b.dut = opts.WrapDUT(dec)
	}

	b.drv = driver.New(cfg.DriverConfig(), b.bus)
	b.mon = monitor.New(b.bus)
	b.chk = checker.New(cfg.CheckerConfig())
	b.sb = scoreboard.New()
	b.sch = sched.New(cfg.ResetCycles)
	logged := []common.Logged{b.drv, b.mon, b.chk, b.sb, b.sch, dec}
	if b.mem != nil {
		logged = append(logged, b.mem)
	} else {
		logged = append(logged, b.sub)
	}
	common.AttachErrorLog(errLog, common.ErrSevInfo, logged...)

	if opts.Trace != nil {
		b.tw = trace.NewWriter(opts.Trace, b.bus.Encoding)
	}

	stages := []struct {
		o  sched.Order
		st sched.Stage
	}{
		{sched.OrderDriver, sched.StageFunc(b.driverStage)},
		{sched.OrderDUT, slave.Stage(b.dut)},
		{sched.OrderMonitor, sched.StageFunc(b.monitorStage)},
		{sched.OrderChecker, sched.StageFunc(b.checkerStage)},
		{sched.OrderScoreboard, sched.StageFunc(b.scoreboardStage)},
	}
	for _, s := range stages {
		if err := b.sch.Register(s.o, s.st); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func (b *bench) driverStage(prev ahb.Signals, bus *ahb.Signals) sched.Resp {
	for !b.exhausted && b.sb.Outstanding() < scoreboard.PipelineDepth {
		t, ok := b.seq.Next()
		if !ok {
			b.exhausted = true
			break
		}
		if _, err := b.drv.Submit(t); err != nil {
			b.abort(bus.Cycle, fmt.Sprintf("submitting %s: %v", t, err))
			return sched.RespHalt
		}
		if b.sub != nil {
			b.sub.Expect(t)
		}
		b.sb.Expect(b.intended(t), bus.Cycle)
		b.expected++
	}
	return b.drv.Step(prev, bus)
}

// intended returns the transfer the bus is expected to show for t. Against
// the memory subordinate reads return the reference model contents and
// beats outside the memory end in ERROR.
func (b *bench) intended(t txn.Transfer) txn.Transfer {
	if b.ref == nil {
		return t
	}
	out := t
	out.Data = append([]uint64(nil), t.Data...)
	out.Resp = ahb.RespOkay
	for _, beat := range txn.Decompose(t) {
		last := beat.Address + beat.Size - 1
		if beat.Address < b.ref.Base() || last >= b.ref.Base()+b.ref.Size() {
			if out.Resp == ahb.RespOkay {
				out.Resp = ahb.RespError
			}
			if t.Dir == txn.Read {
				out.Data[beat.Index] = 0
			}
			continue
		}
		if t.Dir == txn.Write {
			b.ref.Write(beat.Address, beat.Size, beat.Data)
		} else {
			out.Data[beat.Index] = b.ref.Read(beat.Address, beat.Size)
		}
	}
	return out
}

func (b *bench) monitorStage(prev ahb.Signals, bus *ahb.Signals) sched.Resp {
	if b.tw != nil {
		if err := b.tw.Write(*bus); err != nil {
			b.abort(bus.Cycle, fmt.Sprintf("writing trace: %v", err))
			return sched.RespHalt
		}
	}
	if o := b.mon.Sample(*bus); o != nil {
		b.obs = append(b.obs, *o)
	}
	return sched.RespCont
}

func (b *bench) checkerStage(prev ahb.Signals, bus *ahb.Signals) sched.Resp {
	for _, v := range b.chk.Check(*bus) {
		b.res.Add(v)
	}
	if b.chk.Latched() {
		return sched.RespHalt
	}
	return sched.RespCont
}

func (b *bench) scoreboardStage(prev ahb.Signals, bus *ahb.Signals) sched.Resp {
	if bus.ResetN {
		if m := b.sb.CheckOccupancy(bus.Cycle, b.drv.Occupancy(), b.mon.Occupancy()); m != nil {
			b.res.Add(*m)
		}
	}
	for _, o := range b.obs {
		if m := b.sb.Observe(o); m != nil {
			b.res.Add(*m)
		}
	}
	b.obs = b.obs[:0]
	return sched.RespCont
}

// done is true once the stimulus is exhausted, the bus is quiet and every
// expectation is resolved, followed by the drain window.
func (b *bench) done() bool {
	quiet := b.exhausted && b.drv.Idle() && !b.mon.Busy() && b.sb.Outstanding() == 0
	if !quiet {
		b.drainLeft = b.cfg.DrainCycles
		return false
	}
	if b.drainLeft == 0 {
		return true
	}
	b.drainLeft--
	return false
}

func (b *bench) abort(cyc ahb.Cycle, reason string) {
	if b.aborted {
		return
	}
	b.aborted = true
	b.res.Add(report.InfrastructureAbort{Reason: reason, Cycle: cyc})
	b.log.Error(common.NewErrorWithCycleMsg(common.ErrSevError, common.ErrAborted, cyc, reason))
}

func (b *bench) finish(out sched.Outcome) {
	last := ahb.Cycle(0)
	if c := b.sch.Cycle(); c > 0 {
		last = c - 1
	}
	if out.Stop == sched.StopAborted {
		b.abort(last, out.Reason)
	}
	if b.tw != nil {
		if err := b.tw.Flush(); err != nil {
			b.abort(last, fmt.Sprintf("writing trace: %v", err))
		}
	}

	switch {
	case b.aborted:
		for _, f := range b.chk.Flush() {
			b.res.Add(f)
		}
		for _, f := range b.sb.Flush(last) {
			b.res.Add(f)
		}
	case b.chk.Latched():
		for _, f := range b.sb.Flush(last) {
			b.res.Add(f)
		}
	default:
		for _, v := range b.chk.Finish() {
			b.res.Add(v)
		}
		for _, m := range b.sb.Finish(last) {
			b.res.Add(m)
		}
	}

	b.res.Cycles = b.sch.Cycle()
	b.res.Expected = b.expected
	b.res.Observed = b.mon.Observed()
}
