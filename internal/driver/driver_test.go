package driver_test

import (
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"ahbverify/internal/ahb"
	"ahbverify/internal/driver"
	"ahbverify/internal/txn"
)

// bench steps a driver against a slave scripted one cycle at a time.
type bench struct {
	d     *driver.Driver
	prev  ahb.Signals
	cycle ahb.Cycle
	done  []driver.Completion
}

func newBench(cfg driver.Config) *bench {
	b := &bench{
		d:    driver.New(cfg, ahb.DefaultBusConfig()),
		prev: ahb.Signals{HReady: true},
	}
	b.d.SetCompleteCB(func(c driver.Completion) { b.done = append(b.done, c) })
	return b
}

// step runs the driver for one cycle and then applies the slave outputs.
func (b *bench) step(ready bool, resp ahb.Resp, rdata uint64) ahb.Signals {
	bus := ahb.Signals{Cycle: b.cycle, ResetN: true, HReady: true}
	b.d.Tick(b.prev, &bus)
	bus.HReady = ready
	bus.HResp = resp
	bus.HRData = rdata
	b.prev = bus
	b.cycle++
	return bus
}

func (b *bench) ok() ahb.Signals { return b.step(true, ahb.RespOkay, 0) }

func (b *bench) reset() ahb.Signals {
	bus := ahb.Signals{Cycle: b.cycle, ResetN: false, HReady: true}
	b.d.Tick(b.prev, &bus)
	b.prev = bus
	b.cycle++
	return bus
}

func single(addr uint64, dir txn.Direction, data uint64) txn.Transfer {
	return txn.Transfer{Address: addr, Dir: dir, Size: 4, Kind: txn.Single, Length: 1, Data: []uint64{data}, Prot: txn.DefaultProt}
}

func incr4(addr uint64, dir txn.Direction, data ...uint64) txn.Transfer {
	if len(data) == 0 {
		data = make([]uint64, 4)
	}
	return txn.Transfer{Address: addr, Dir: dir, Size: 4, Kind: txn.Incrementing, Length: 4, Data: data, Prot: txn.DefaultProt}
}

func submit(b *bench, t txn.Transfer) uuid.UUID {
	id, err := b.d.Submit(t)
	Expect(err).NotTo(HaveOccurred())
	return id
}

var _ = Describe("Driver", func() {
	var b *bench

	BeforeEach(func() {
		b = newBench(driver.Config{})
	})

	It("should drive IDLE with nothing queued", func() {
		bus := b.ok()
		Expect(bus.HTrans).To(Equal(ahb.TransIdle))
		Expect(b.d.Occupancy()).To(Equal(0))
		Expect(b.d.Idle()).To(BeTrue())
	})

	It("should issue a single read and complete it with the read data", func() {
		id := submit(b, single(0x1000, txn.Read, 0))

		bus := b.ok()
		Expect(bus.HTrans).To(Equal(ahb.TransNonSeq))
		Expect(bus.HAddr).To(Equal(uint64(0x1000)))
		Expect(bus.HBurst).To(Equal(ahb.BurstSingle))
		Expect(bus.HSize).To(Equal(ahb.SizeWord))
		Expect(bus.HWrite).To(BeFalse())
		Expect(b.d.AddrSlot().ID).To(Equal(id))

		bus = b.step(true, ahb.RespOkay, 0xabc)
		Expect(bus.HTrans).To(Equal(ahb.TransIdle))
		Expect(b.d.DataSlot().ID).To(Equal(id))

		b.ok()
		Expect(b.done).To(HaveLen(1))
		Expect(b.done[0].ID).To(Equal(id))
		Expect(b.done[0].Transfer.Data).To(Equal([]uint64{0xabc}))
		Expect(b.done[0].Transfer.Resp).To(Equal(ahb.RespOkay))
		Expect(b.d.Idle()).To(BeTrue())
	})

	It("should overlap the address and data phases of a burst", func() {
		submit(b, incr4(0x100, txn.Read))

		var trans []ahb.Trans
		var addrs []uint64
		var occ []int
		for i := 0; i < 6; i++ {
			bus := b.ok()
			trans = append(trans, bus.HTrans)
			addrs = append(addrs, bus.HAddr)
			occ = append(occ, b.d.Occupancy())
		}
		Expect(trans).To(Equal([]ahb.Trans{ahb.TransNonSeq, ahb.TransSeq, ahb.TransSeq, ahb.TransSeq, ahb.TransIdle, ahb.TransIdle}))
		Expect(addrs[:4]).To(Equal([]uint64{0x100, 0x104, 0x108, 0x10c}))
		Expect(occ).To(Equal([]int{1, 2, 2, 2, 1, 0}))
		Expect(b.done).To(HaveLen(1))
	})

	It("should hold address and control stable through wait states", func() {
		submit(b, single(0x10, txn.Read, 0))
		submit(b, single(0x20, txn.Read, 0))

		b.ok()
		held := b.step(false, ahb.RespOkay, 0)
		Expect(held.HTrans).To(Equal(ahb.TransNonSeq))
		Expect(held.HAddr).To(Equal(uint64(0x20)))
		for i := 0; i < 3; i++ {
			bus := b.step(false, ahb.RespOkay, 0)
			Expect(bus.HTrans).To(Equal(held.HTrans))
			Expect(bus.HAddr).To(Equal(held.HAddr))
			Expect(b.d.Occupancy()).To(Equal(2))
		}
		b.ok()
		bus := b.ok()
		Expect(bus.HTrans).To(Equal(ahb.TransIdle))
		Expect(b.done).To(HaveLen(1))
		Expect(b.done[0].Transfer.Address).To(Equal(uint64(0x10)))
	})

	It("should drive write data in the data phase", func() {
		submit(b, incr4(0x200, txn.Write, 1, 2, 3, 4))

		var wdata []uint64
		for i := 0; i < 6; i++ {
			wdata = append(wdata, b.ok().HWData)
		}
		Expect(wdata).To(Equal([]uint64{0, 1, 2, 3, 4, 0}))
		Expect(b.done).To(HaveLen(1))
		Expect(b.done[0].Transfer.Data).To(Equal([]uint64{1, 2, 3, 4}))
	})

	It("should reissue a retried beat as NONSEQ with identical control", func() {
		submit(b, incr4(0x100, txn.Read))

		Expect(b.ok().HTrans).To(Equal(ahb.TransNonSeq))
		Expect(b.ok().HAddr).To(Equal(uint64(0x104)))
		// beat 1 gets a two cycle RETRY
		bus := b.step(false, ahb.RespRetry, 0)
		Expect(bus.HTrans).To(Equal(ahb.TransSeq))
		Expect(bus.HAddr).To(Equal(uint64(0x108)))
		bus = b.step(true, ahb.RespRetry, 0)
		Expect(bus.HTrans).To(Equal(ahb.TransIdle))

		bus = b.ok()
		Expect(bus.HTrans).To(Equal(ahb.TransNonSeq))
		Expect(bus.HAddr).To(Equal(uint64(0x104)))
		Expect(bus.HBurst).To(Equal(ahb.BurstIncr4))

		bus = b.ok()
		Expect(bus.HTrans).To(Equal(ahb.TransSeq))
		Expect(bus.HAddr).To(Equal(uint64(0x108)))
		Expect(b.ok().HAddr).To(Equal(uint64(0x10c)))
		Expect(b.ok().HTrans).To(Equal(ahb.TransIdle))
		b.ok()

		Expect(b.done).To(HaveLen(1))
		Expect(b.done[0].Retries).To(Equal(1))
		Expect(b.done[0].Transfer.Resp).To(Equal(ahb.RespOkay))
	})

	It("should withdraw the next transfer on a SPLIT and keep the order", func() {
		a := submit(b, single(0x10, txn.Read, 0))
		c := submit(b, single(0x20, txn.Read, 0))

		b.ok()
		bus := b.step(false, ahb.RespSplit, 0)
		Expect(bus.HAddr).To(Equal(uint64(0x20)))
		bus = b.step(true, ahb.RespSplit, 0)
		Expect(bus.HTrans).To(Equal(ahb.TransIdle))
		Expect(b.d.Occupancy()).To(Equal(1))

		bus = b.ok()
		Expect(bus.HTrans).To(Equal(ahb.TransNonSeq))
		Expect(bus.HAddr).To(Equal(uint64(0x10)))
		bus = b.ok()
		Expect(bus.HTrans).To(Equal(ahb.TransNonSeq))
		Expect(bus.HAddr).To(Equal(uint64(0x20)))
		b.ok()
		b.ok()

		Expect(b.done).To(HaveLen(2))
		Expect(b.done[0].ID).To(Equal(a))
		Expect(b.done[1].ID).To(Equal(c))
	})

	It("should continue a burst after an ERROR beat", func() {
		submit(b, incr4(0x100, txn.Read))

		b.ok()
		b.ok()
		bus := b.step(false, ahb.RespError, 0)
		Expect(bus.HAddr).To(Equal(uint64(0x108)))
		bus = b.step(true, ahb.RespError, 0)
		Expect(bus.HTrans).To(Equal(ahb.TransSeq))
		Expect(bus.HAddr).To(Equal(uint64(0x108)))
		Expect(b.ok().HAddr).To(Equal(uint64(0x10c)))
		b.ok()
		b.ok()

		Expect(b.done).To(HaveLen(1))
		Expect(b.done[0].Transfer.Resp).To(Equal(ahb.RespError))
		Expect(b.done[0].Retries).To(Equal(0))
	})

	Context("with BUSY and IDLE insertion", func() {
		BeforeEach(func() {
			b = newBench(driver.Config{BusyCycles: 1, IdleCycles: 2})
		})

		It("should insert BUSY before SEQ beats and IDLE between transfers", func() {
			submit(b, incr4(0x100, txn.Read))
			submit(b, single(0x400, txn.Write, 7))

			var trans []ahb.Trans
			var addrs []uint64
			for i := 0; i < 11; i++ {
				bus := b.ok()
				trans = append(trans, bus.HTrans)
				addrs = append(addrs, bus.HAddr)
			}
			Expect(trans).To(Equal([]ahb.Trans{
				ahb.TransNonSeq, ahb.TransBusy, ahb.TransSeq, ahb.TransBusy, ahb.TransSeq,
				ahb.TransBusy, ahb.TransSeq, ahb.TransIdle, ahb.TransIdle, ahb.TransNonSeq, ahb.TransIdle,
			}))
			Expect(addrs[1]).To(Equal(uint64(0x104)))
			Expect(addrs[9]).To(Equal(uint64(0x400)))
		})
	})

	It("should restart an interrupted transfer after reset", func() {
		submit(b, incr4(0x100, txn.Read))

		b.ok()
		b.ok()
		bus := b.reset()
		Expect(bus.HTrans).To(Equal(ahb.TransIdle))
		Expect(b.d.Occupancy()).To(Equal(0))

		bus = b.ok()
		Expect(bus.HTrans).To(Equal(ahb.TransNonSeq))
		Expect(bus.HAddr).To(Equal(uint64(0x100)))
		for i := 0; i < 5; i++ {
			b.ok()
		}
		Expect(b.done).To(HaveLen(1))
	})

	It("should reject an invalid transfer", func() {
		id, err := b.d.Submit(single(0x2, txn.Read, 0))
		Expect(err).To(HaveOccurred())
		Expect(id).To(Equal(uuid.Nil))
		Expect(b.d.Queued()).To(Equal(0))
	})
})
