// Package driver implements the bus master agent. It turns queued transfers
// into per-cycle address/control and write data stimulus, holding the bus
// through wait states and reissuing beats on RETRY and SPLIT.
package driver

import (
	"fmt"

	"github.com/google/uuid"

	"ahbverify/internal/ahb"
	"ahbverify/internal/common"
	"ahbverify/internal/sched"
	"ahbverify/internal/txn"
)

// Config controls the optional idle behaviour of the master.
type Config struct {
	BusyCycles int // BUSY cycles driven before each SEQ beat
	IdleCycles int // IDLE cycles driven between transfers
}

// PendingBeat is a beat in the address or data phase slot, tagged with the
// identity of its transfer.
type PendingBeat struct {
	ID    uuid.UUID
	Trans ahb.Trans
	Beat  txn.Beat
	xfer  *pending
}

// Completion is a transfer whose every beat has a final response.
type Completion struct {
	ID       uuid.UUID
	Transfer txn.Transfer // as driven, with read data and response from the bus
	Retries  int
	Cycle    ahb.Cycle
}

// FnCompleteCB is called for each completed transfer, in completion order.
type FnCompleteCB func(c Completion)

type pending struct {
	id      uuid.UUID
	t       txn.Transfer
	beats   []txn.Beat
	hburst  ahb.Burst
	hsize   ahb.Size
	next    int  // next beat to issue
	resume  bool // next beat is a reissue
	done    int  // beats with a final response
	data    []uint64
	resp    ahb.Resp
	retries int
}

func (p *pending) restart() {
	p.next = 0
	p.resume = false
	p.done = 0
	p.resp = ahb.RespOkay
	p.data = make([]uint64, len(p.beats))
}

// driven is what the master puts on the address phase signals.
type driven struct {
	trans ahb.Trans
	beat  txn.Beat
	hsize ahb.Size
	burst ahb.Burst
}

// Driver is the master agent. It keeps its own view of the pipeline.
type Driver struct {
	common.Component

	cfg Config
	bus ahb.BusConfig

	queue    []*pending
	active   *pending   // transfer currently issuing beats
	inflight []*pending // started, not yet complete, in issue order

	addr *PendingBeat // address phase slot
	data *PendingBeat // data phase slot
	out  driven

	busyLeft int
	idleLeft int

	completeCB FnCompleteCB
}

func New(cfg Config, bus ahb.BusConfig) *Driver {
	d := &Driver{cfg: cfg, bus: bus}
	d.InitComponent("driver")
	return d
}

// SetCompleteCB sets the function called when a transfer completes.
func (d *Driver) SetCompleteCB(fn FnCompleteCB) { d.completeCB = fn }

// Submit queues a transfer for issue. Transfers are issued in submission
// order.
func (d *Driver) Submit(t txn.Transfer) (uuid.UUID, error) {
	if err := txn.Validate(t, d.bus); err != nil {
		e := common.NewErrorMsg(common.ErrSevError, common.ErrInvalidTransfer, err.Error())
		d.LogError(e)
		return uuid.Nil, e
	}
	hsize, _ := ahb.SizeFromBytes(t.Size)
	hburst, _ := txn.BurstCode(t.Kind, t.Length)
	p := &pending{
		id:     uuid.New(),
		t:      t,
		beats:  txn.Decompose(t),
		hburst: hburst,
		hsize:  hsize,
	}
	p.restart()
	d.queue = append(d.queue, p)
	return p.id, nil
}

// Idle returns true when nothing is queued or in flight.
func (d *Driver) Idle() bool {
	return len(d.queue) == 0 && len(d.inflight) == 0 && d.active == nil && d.addr == nil && d.data == nil
}

// Occupancy returns the number of beats the driver has in the address and
// data phase slots this cycle.
func (d *Driver) Occupancy() int {
	n := 0
	if d.addr != nil {
		n++
	}
	if d.data != nil {
		n++
	}
	return n
}

// Step adapts the driver to the scheduler.
func (d *Driver) Step(prev ahb.Signals, bus *ahb.Signals) sched.Resp {
	d.Tick(prev, bus)
	return sched.RespCont
}

// Tick drives the master signals for the cycle in bus. prev is the bus as it
// settled on the previous cycle; its HREADY decides whether the pipeline
// advanced on the edge between the two.
func (d *Driver) Tick(prev ahb.Signals, bus *ahb.Signals) {
	if !bus.ResetN {
		if prev.ResetN && prev.HReady && d.data != nil {
			d.retire(d.data, prev)
		}
		d.reset()
		d.drive(bus)
		return
	}

	switch {
	case prev.HReady:
		if d.data != nil {
			d.retire(d.data, prev)
		}
		d.data = d.addr
		d.addr = nil
		d.issue()
	case prev.HResp.IsReissue() && d.data != nil:
		// first cycle of a two cycle RETRY or SPLIT: withdraw the address beat
		if d.addr != nil {
			d.rollback(d.addr)
			d.addr = nil
		}
		d.out = driven{trans: ahb.TransIdle}
	}
	d.drive(bus)
}

func (d *Driver) drive(bus *ahb.Signals) {
	bus.HTrans = d.out.trans
	if d.out.trans == ahb.TransIdle {
		bus.HAddr, bus.HWrite, bus.HSize, bus.HBurst, bus.HProt = 0, false, 0, 0, 0
	} else {
		b := d.out.beat
		bus.HAddr = b.Address
		bus.HWrite = b.Dir == txn.Write
		bus.HSize = d.out.hsize
		bus.HBurst = d.out.burst
		bus.HProt = b.Prot
	}
	bus.HWData = 0
	if d.data != nil && d.data.Beat.Dir == txn.Write {
		bus.HWData = d.data.Beat.Data & d.bus.DataMask()
	}
}

// issue selects what the address phase carries after an accepted edge.
func (d *Driver) issue() {
	d.out = driven{trans: ahb.TransIdle}
	if d.active == nil {
		if len(d.queue) == 0 {
			return
		}
		if d.idleLeft > 0 {
			d.idleLeft--
			return
		}
		d.active = d.queue[0]
		d.queue = d.queue[1:]
	}

	x := d.active
	trans := ahb.TransSeq
	if x.next == 0 || x.resume {
		trans = ahb.TransNonSeq
	}
	beat := x.beats[x.next]
	if trans == ahb.TransSeq && d.busyLeft > 0 {
		d.busyLeft--
		d.out = driven{trans: ahb.TransBusy, beat: beat, hsize: x.hsize, burst: x.hburst}
		return
	}

	if x.next == 0 && !x.resume && !d.isInflight(x) {
		d.inflight = append(d.inflight, x)
	}
	x.next++
	x.resume = false
	d.addr = &PendingBeat{ID: x.id, Trans: trans, Beat: beat, xfer: x}
	d.out = driven{trans: trans, beat: beat, hsize: x.hsize, burst: x.hburst}

	d.busyLeft = d.cfg.BusyCycles
	if x.next == len(x.beats) {
		d.active = nil
		d.busyLeft = 0
		d.idleLeft = d.cfg.IdleCycles
	}
}

func (d *Driver) isInflight(x *pending) bool {
	for _, p := range d.inflight {
		if p == x {
			return true
		}
	}
	return false
}

// makeActive makes x the issuing transfer, returning the current one to
// the front of the queue.
func (d *Driver) makeActive(x *pending) {
	if d.active == x {
		return
	}
	if d.active != nil {
		d.queue = append([]*pending{d.active}, d.queue...)
	}
	d.active = x
	d.idleLeft = 0
}

// rollback undoes the issue of a beat that was never accepted.
func (d *Driver) rollback(b *PendingBeat) {
	x := b.xfer
	x.next = b.Beat.Index
	if b.Trans == ahb.TransNonSeq && b.Beat.Index > 0 {
		x.resume = true
	}
	if b.Beat.Index == 0 {
		d.dropInflight(x)
	}
	d.makeActive(x)
	d.busyLeft = 0
}

func (d *Driver) dropInflight(x *pending) {
	for i, p := range d.inflight {
		if p == x {
			d.inflight = append(d.inflight[:i], d.inflight[i+1:]...)
			return
		}
	}
}

// retire handles the response that ended the data phase of b.
func (d *Driver) retire(b *PendingBeat, prev ahb.Signals) {
	x := b.xfer
	switch prev.HResp {
	case ahb.RespRetry, ahb.RespSplit:
		x.retries++
		x.next = b.Beat.Index
		x.resume = true
		d.makeActive(x)
		d.busyLeft = 0
		d.LogMessage(common.ErrSevInfo, fmt.Sprintf("cycle %d: %s of beat %d at 0x%x, reissuing", prev.Cycle, prev.HResp, b.Beat.Index, b.Beat.Address))
		return
	case ahb.RespError:
		if x.resp == ahb.RespOkay {
			x.resp = ahb.RespError
		}
	}
	if b.Beat.Dir == txn.Read {
		x.data[b.Beat.Index] = prev.HRData & d.bus.DataMask()
	} else {
		x.data[b.Beat.Index] = b.Beat.Data
	}
	x.done++
	if x.done == len(x.beats) {
		d.complete(x, prev.Cycle)
	}
}

func (d *Driver) complete(x *pending, cyc ahb.Cycle) {
	d.dropInflight(x)
	t := x.t
	t.Data = append([]uint64(nil), x.data...)
	t.Resp = x.resp
	if d.completeCB != nil {
		d.completeCB(Completion{ID: x.id, Transfer: t, Retries: x.retries, Cycle: cyc})
	}
}

// reset empties the pipeline. Transfers in flight restart from their first
// beat ahead of those still queued.
func (d *Driver) reset() {
	if len(d.inflight) > 0 || d.active != nil {
		restart := make([]*pending, 0, len(d.inflight)+len(d.queue)+1)
		add := func(p *pending) {
			if p != nil && !containsPending(restart, p) {
				p.restart()
				restart = append(restart, p)
			}
		}
		for _, p := range d.inflight {
			add(p)
		}
		add(d.active)
		for _, p := range d.queue {
			add(p)
		}
		d.queue = restart
		d.LogMessage(common.ErrSevInfo, fmt.Sprintf("reset with %d transfers in flight", len(d.inflight)))
	}
	d.inflight = nil
	d.active = nil
	d.addr = nil
	d.data = nil
	d.busyLeft = 0
	d.idleLeft = 0
	d.out = driven{trans: ahb.TransIdle}
}

func containsPending(ps []*pending, x *pending) bool {
	for _, p := range ps {
		if p == x {
			return true
		}
	}
	return false
}
