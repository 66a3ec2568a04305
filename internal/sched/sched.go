// Package sched is the clock/phase scheduler. It advances every registered
// stage once per clock edge in a fixed order on a single goroutine.
package sched

import (
	"context"
	"fmt"

	"ahbverify/internal/ahb"
	"ahbverify/internal/common"
)

// Resp is a stage's answer to one step.
type Resp uint8

const (
	RespCont Resp = iota // continue with the next stage
	RespHalt             // stop the run after this cycle
)

// Order is the fixed position of a stage within a cycle.
type Order uint8

const (
	OrderDriver Order = iota
	OrderDUT
	OrderMonitor
	OrderChecker
	OrderScoreboard
	numOrders
)

func (o Order) String() string {
	switch o {
	case OrderDriver:
		return "driver"
	case OrderDUT:
		return "dut"
	case OrderMonitor:
		return "monitor"
	case OrderChecker:
		return "checker"
	case OrderScoreboard:
		return "scoreboard"
	default:
		return fmt.Sprintf("order(%d)", uint8(o))
	}
}

// Stage is one per-cycle update. prev is the bus as it settled on the last
// cycle, bus is the bus of the current cycle as left by the earlier stages.
// A stage must not block; one with no work returns RespCont at once.
type Stage interface {
	Step(prev ahb.Signals, bus *ahb.Signals) Resp
}

// StageFunc adapts a function to a Stage.
type StageFunc func(prev ahb.Signals, bus *ahb.Signals) Resp

func (f StageFunc) Step(prev ahb.Signals, bus *ahb.Signals) Resp { return f(prev, bus) }

// Stop is the reason Run returned.
type Stop uint8

const (
	StopDone    Stop = iota // done() reported completion
	StopHalted              // a stage asked to halt
	StopAborted             // context cancelled or cycle limit reached
)

func (s Stop) String() string {
	switch s {
	case StopDone:
		return "done"
	case StopHalted:
		return "halted"
	case StopAborted:
		return "aborted"
	default:
		return fmt.Sprintf("stop(%d)", uint8(s))
	}
}

// Outcome describes how a run ended.
type Outcome struct {
	Stop   Stop
	Cycles ahb.Cycle // cycles stepped
	Reason string
}

// Scheduler holds the stages and the bus of one run.
type Scheduler struct {
	common.Component

	stages      [numOrders][]Stage
	resetCycles int
	cycle       ahb.Cycle
	prev        ahb.Signals
}

// New creates a scheduler that holds reset asserted for the first
// resetCycles cycles.
func New(resetCycles int) *Scheduler {
	s := &Scheduler{resetCycles: resetCycles}
	s.InitComponent("sched")
	s.prev = ahb.Signals{HReady: true}
	return s
}

// Register adds a stage at its fixed position. Stages sharing a position run
// in registration order.
func (s *Scheduler) Register(o Order, st Stage) error {
	if o >= numOrders {
		return common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal, "unknown stage order "+o.String())
	}
	s.stages[o] = append(s.stages[o], st)
	return nil
}

// Cycle returns the number of the next cycle to be stepped.
func (s *Scheduler) Cycle() ahb.Cycle { return s.cycle }

// Prev returns the bus as it settled on the last stepped cycle.
func (s *Scheduler) Prev() ahb.Signals { return s.prev }

// Step advances one clock edge and returns true if a stage asked to halt.
// Every stage runs even when an earlier one halts so the cycle is complete.
func (s *Scheduler) Step() bool {
	bus := ahb.Signals{
		Cycle:  s.cycle,
		ResetN: int(s.cycle) >= s.resetCycles,
		HReady: true,
	}
	halt := false
	for _, stages := range s.stages {
		for _, st := range stages {
			if st.Step(s.prev, &bus) == RespHalt {
				halt = true
			}
		}
	}
	s.prev = bus
	s.cycle++
	return halt
}

// Run steps until done returns true, a stage halts, the context is cancelled
// or maxCycles cycles were stepped. maxCycles 0 means no limit. done is
// evaluated between cycles, never while reset is being applied.
func (s *Scheduler) Run(ctx context.Context, maxCycles ahb.Cycle, done func() bool) Outcome {
	start := s.cycle
	for {
		if err := ctx.Err(); err != nil {
			s.LogMessage(common.ErrSevInfo, fmt.Sprintf("cancelled at cycle %d", s.cycle))
			return Outcome{Stop: StopAborted, Cycles: s.cycle - start, Reason: err.Error()}
		}
		if int(s.cycle) >= s.resetCycles && done != nil && done() {
			return Outcome{Stop: StopDone, Cycles: s.cycle - start}
		}
		if maxCycles > 0 && s.cycle-start >= maxCycles {
			return Outcome{Stop: StopAborted, Cycles: s.cycle - start, Reason: fmt.Sprintf("cycle limit %d reached", maxCycles)}
		}
		if s.Step() {
			s.LogMessage(common.ErrSevInfo, fmt.Sprintf("halted at cycle %d", s.cycle-1))
			return Outcome{Stop: StopHalted, Cycles: s.cycle - start}
		}
	}
}
