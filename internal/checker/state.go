// Package checker implements the bus protocol legality checker as an
// explicit state machine driven by the raw per-cycle signal sample.
package checker

import (
	"fmt"

	"ahbverify/internal/ahb"
	"ahbverify/internal/txn"
)

// Phase is the top level checker state.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseAddress
	PhaseErrorLatched
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseAddress:
		return "ADDRESS_PHASE"
	case PhaseErrorLatched:
		return "ERROR_LATCHED"
	default:
		return fmt.Sprintf("phase(%d)", uint8(p))
	}
}

// Control is the address/control of one beat as seen on the bus.
type Control struct {
	Addr  uint64
	Write bool
	Size  ahb.Size
	Burst ahb.Burst
	Prot  uint8
}

func controlOf(s *ahb.Signals) Control {
	return Control{Addr: s.HAddr, Write: s.HWrite, Size: s.HSize, Burst: s.HBurst, Prot: s.HProt}
}

func (c Control) String() string {
	dir := "R"
	if c.Write {
		dir = "W"
	}
	return fmt.Sprintf("0x%x %s %s %s prot=%x", c.Addr, dir, c.Size, c.Burst, c.Prot)
}

// DataPhase is the beat the checker believes occupies the data phase.
type DataPhase struct {
	Valid     bool
	Ctl       Control
	RespFirst bool // first cycle of a two-cycle response seen
	RespKind  ahb.Resp
}

// BurstTrack follows the burst opened by the last accepted NONSEQ.
type BurstTrack struct {
	Active   bool
	Ctl      Control // control of the NONSEQ beat
	Declared int     // beats declared by HBURST, 0 for INCR
	Accepted int     // beats accepted so far
	Overrun  bool
	Errored  bool // an ERROR response allows early termination
}

// Open returns true while more beats of the burst may legally follow.
func (b BurstTrack) Open() bool {
	return b.Active && (b.Declared == 0 || b.Accepted < b.Declared)
}

// Incomplete returns true when a fixed length burst stopped short.
func (b BurstTrack) Incomplete() bool {
	return b.Active && b.Declared > 0 && b.Accepted < b.Declared
}

// NextAddr is the address the next SEQ beat must carry.
func (b BurstTrack) NextAddr() uint64 {
	kind := txn.KindFromCode(b.Ctl.Burst)
	return txn.BeatAddress(b.Ctl.Addr, b.Ctl.Size.Bytes(), kind, b.Declared, b.Accepted)
}

// RetryTrack holds the beat a RETRY or SPLIT response requires to be reissued.
type RetryTrack struct {
	Pending bool
	Ctl     Control
	Resp    ahb.Resp
}

// State is the complete checker state. It is a plain value so traces can be
// replayed from any point.
type State struct {
	Phase   Phase
	Xfer    ahb.Trans // address phase subdivision
	InReset bool

	Data  DataPhase
	Burst BurstTrack
	Retry RetryTrack

	Stall         int
	StallReported bool
	Orphan        bool // response seen with nothing in the data phase
}

// Initial returns the state at test start.
func Initial() State {
	return State{Phase: PhaseIdle, Xfer: ahb.TransIdle}
}

func (s State) String() string {
	if s.Phase != PhaseAddress {
		return s.Phase.String()
	}
	return s.Phase.String() + "/" + s.Xfer.String() + "_XFER"
}

// Config holds the checker limits.
type Config struct {
	MaxStallCycles int // 0 disables the stall timeout
	SplitEnabled   bool
}
