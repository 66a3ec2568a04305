package slave

import (
	"fmt"

	"ahbverify/internal/ahb"
	"ahbverify/internal/common"
	"ahbverify/internal/txn"
)

// Default is the subordinate selected for unmapped addresses. It answers
// every beat with a two cycle ERROR and IDLE/BUSY with a zero wait OKAY.
type Default struct {
	ph phase
}

func (d *Default) Respond(prev ahb.Signals, bus *ahb.Signals) {
	if !bus.ResetN {
		d.ph = phase{}
		idleOutputs(bus)
		return
	}
	if _, ok := d.ph.next(prev); ok {
		d.ph.resp = ahb.RespError
	}
	d.ph.drive(bus)
	bus.HRData = 0
}

type region struct {
	base, size uint64
	r          Responder
}

func (g region) contains(addr uint64) bool { return addr >= g.base && addr-g.base < g.size }

func (g region) overlaps(o region) bool {
	return g.base < o.base+o.size && o.base < g.base+g.size
}

const (
	selNone = -1
)

// Decoder maps 1KiB aligned regions to responders, drives HSEL and
// multiplexes the outputs of the responder owning the data phase.
type Decoder struct {
	common.Component

	regions []region
	def     Default
	curr    int // last region matched

	prevSel int // responder selected in the previous address phase
	owner   int // responder owning the data phase
}

func NewDecoder() *Decoder {
	d := &Decoder{curr: selNone, prevSel: selNone, owner: selNone}
	d.InitComponent("decoder")
	return d
}

// AddRegion maps [base, base+size) to r. Regions must be 1KiB aligned and
// must not overlap.
func (d *Decoder) AddRegion(base, size uint64, r Responder) error {
	g := region{base: base, size: size, r: r}
	if size == 0 || base%txn.KiB != 0 || size%txn.KiB != 0 || base+size < base {
		return common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
			fmt.Sprintf("region 0x%x+0x%x not 1KiB aligned", base, size))
	}
	for _, o := range d.regions {
		if o.overlaps(g) {
			return common.NewErrorMsg(common.ErrSevError, common.ErrInvalidParamVal,
				fmt.Sprintf("region 0x%x+0x%x overlaps 0x%x+0x%x", base, size, o.base, o.size))
		}
	}
	d.regions = append(d.regions, g)
	return nil
}

// find returns the index of the region holding addr, or len(regions) for
// the default subordinate.
func (d *Decoder) find(addr uint64) int {
	if d.curr != selNone && d.regions[d.curr].contains(addr) {
		return d.curr
	}
	for i, g := range d.regions {
		if g.contains(addr) {
			d.curr = i
			return i
		}
	}
	return len(d.regions)
}

func (d *Decoder) responder(i int) Responder {
	if i == len(d.regions) {
		return &d.def
	}
	return d.regions[i].r
}

func (d *Decoder) Respond(prev ahb.Signals, bus *ahb.Signals) {
	if !bus.ResetN {
		for i := 0; i <= len(d.regions); i++ {
			b := *bus
			d.responder(i).Respond(prev, &b)
		}
		bus.HSel = false
		idleOutputs(bus)
		d.prevSel, d.owner = selNone, selNone
		return
	}

	sel := selNone
	if bus.HTrans != ahb.TransIdle {
		sel = d.find(bus.HAddr)
	}
	out := *bus
	idleOutputs(&out)
	for i := 0; i <= len(d.regions); i++ {
		p := prev
		p.HSel = i == d.prevSel
		b := *bus
		b.HSel = i == sel
		d.responder(i).Respond(p, &b)
		if i == d.owner {
			out = b
		}
	}
	bus.HSel = sel != selNone && sel < len(d.regions)
	bus.HReady, bus.HResp, bus.HRData = out.HReady, out.HResp, out.HRData

	if bus.HReady {
		d.owner = selNone
		if bus.HTrans.IsBeat() {
			d.owner = sel
		}
	}
	d.prevSel = sel
}
