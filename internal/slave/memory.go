package slave

import (
	"fmt"
	"math/rand"

	"ahbverify/internal/ahb"
	"ahbverify/internal/common"
)

// Memory is a byte addressed RAM subordinate. Data words are right aligned
// little endian values of the transfer size.
type Memory struct {
	common.Component

	base    uint64
	mem     []byte
	minWait int
	maxWait int
	rng     *rand.Rand

	ph phase
}

// NewMemory creates a RAM of size bytes at base. rng may be nil when
// minWait equals maxWait.
func NewMemory(base uint64, size int, minWait, maxWait int, rng *rand.Rand) *Memory {
	m := &Memory{
		base:    base,
		mem:     make([]byte, size),
		minWait: minWait,
		maxWait: maxWait,
		rng:     rng,
	}
	m.InitComponent("memory")
	return m
}

// Base and Size return the address range of the memory.
func (m *Memory) Base() uint64 { return m.base }
func (m *Memory) Size() uint64 { return uint64(len(m.mem)) }

// Read returns size bytes at addr as a little endian value.
func (m *Memory) Read(addr, size uint64) uint64 {
	var v uint64
	for i := uint64(0); i < size; i++ {
		if o, ok := m.offset(addr + i); ok {
			v |= uint64(m.mem[o]) << (8 * i)
		}
	}
	return v
}

// Write stores the low size bytes of v at addr.
func (m *Memory) Write(addr, size, v uint64) {
	for i := uint64(0); i < size; i++ {
		if o, ok := m.offset(addr + i); ok {
			m.mem[o] = byte(v >> (8 * i))
		}
	}
}

func (m *Memory) offset(addr uint64) (uint64, bool) {
	if addr < m.base || addr-m.base >= uint64(len(m.mem)) {
		return 0, false
	}
	return addr - m.base, true
}

func (m *Memory) Respond(prev ahb.Signals, bus *ahb.Signals) {
	if !bus.ResetN {
		m.ph = phase{}
		idleOutputs(bus)
		return
	}
	if b, ok := m.ph.next(prev); ok {
		m.ph.waits = m.minWait
		if span := m.maxWait - m.minWait; span > 0 && m.rng != nil {
			m.ph.waits += m.rng.Intn(span + 1)
		}
		last := b.addr + b.size.Bytes() - 1
		if _, ok := m.offset(last); !ok || b.addr < m.base {
			m.ph.resp = ahb.RespError
			m.LogError(common.NewErrorWithCycleMsg(common.ErrSevWarn, common.ErrInvalidParamVal, prev.Cycle,
				fmt.Sprintf("access 0x%x outside 0x%x..0x%x", b.addr, m.base, m.base+m.Size()-1)))
		}
	}
	done := m.ph.drive(bus)
	bus.HRData = 0
	if !m.ph.valid || m.ph.resp != ahb.RespOkay {
		return
	}
	b := m.ph.b
	if b.write {
		if done {
			m.Write(b.addr, b.size.Bytes(), bus.HWData)
		}
		return
	}
	bus.HRData = m.Read(b.addr, b.size.Bytes())
}
