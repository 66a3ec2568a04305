// Package sequencer produces the stream of intended transfers for a run:
// either a directed list or a constrained random stream from a seeded
// generator.
package sequencer

import (
	"fmt"
	"math/rand"

	"ahbverify/internal/ahb"
	"ahbverify/internal/txn"
)

// Sequencer yields transfers one at a time. The sequence is finite; Next
// returns false once it is exhausted.
type Sequencer interface {
	Next() (txn.Transfer, bool)
}

// Directed replays a fixed list of transfers.
type Directed struct {
	list []txn.Transfer
	pos  int
}

func NewDirected(ts ...txn.Transfer) *Directed {
	return &Directed{list: append([]txn.Transfer(nil), ts...)}
}

func (d *Directed) Next() (txn.Transfer, bool) {
	if d.pos >= len(d.list) {
		return txn.Transfer{}, false
	}
	t := d.list[d.pos]
	d.pos++
	return t, true
}

// Reset rewinds the list.
func (d *Directed) Reset() { d.pos = 0 }

// Len returns the number of transfers in the list.
func (d *Directed) Len() int { return len(d.list) }

// Constraints bound the random stream.
type Constraints struct {
	Low, High  uint64 // address range [Low, High)
	Count      int
	Kinds      []txn.BurstKind
	IncrLens   []int    // lengths of incrementing bursts
	WrapLens   []int    // lengths of wrapping bursts, each 4, 8 or 16
	Sizes      []uint64 // bytes per beat
	WriteRatio float64
	ErrorRate  float64 // probability a transfer is declared to end in ERROR
	Prot       uint8
}

// DefaultConstraints returns word sized single reads and writes over the
// first 4KiB.
func DefaultConstraints() Constraints {
	return Constraints{
		Low:        0,
		High:       0x1000,
		Count:      16,
		Kinds:      []txn.BurstKind{txn.Single},
		IncrLens:   []int{1, 2, 4, 8, 16},
		WrapLens:   []int{4, 8, 16},
		Sizes:      []uint64{4},
		WriteRatio: 0.5,
		Prot:       txn.DefaultProt,
	}
}

// Validate checks the constraints against the bus.
func (c Constraints) Validate(bus ahb.BusConfig) error {
	if c.High <= c.Low {
		return fmt.Errorf("address range [0x%x, 0x%x) is empty", c.Low, c.High)
	}
	if c.High-1 > bus.AddrMask() {
		return fmt.Errorf("address range end 0x%x beyond %d bit bus", c.High, bus.AddrWidth)
	}
	if c.Count < 0 {
		return fmt.Errorf("transfer count %d is negative", c.Count)
	}
	if len(c.Kinds) == 0 {
		return fmt.Errorf("no burst kinds allowed")
	}
	if len(c.Sizes) == 0 {
		return fmt.Errorf("no transfer sizes allowed")
	}
	for _, s := range c.Sizes {
		if _, ok := ahb.SizeFromBytes(s); !ok || s > bus.DataBytes() {
			return fmt.Errorf("transfer size %d not valid on a %d bit bus", s, bus.DataWidth)
		}
		if lo := (c.Low + s - 1) &^ (s - 1); lo < c.Low || lo+s > c.High {
			return fmt.Errorf("no %d byte aligned slot in the address range", s)
		}
	}
	for _, k := range c.Kinds {
		var lens []int
		switch k {
		case txn.Single:
			continue
		case txn.Incrementing:
			lens = c.IncrLens
		case txn.Wrapping:
			lens = c.WrapLens
		default:
			return fmt.Errorf("unknown burst kind %d", k)
		}
		if len(lens) == 0 {
			return fmt.Errorf("no %s burst lengths allowed", k)
		}
		for _, n := range lens {
			if _, err := txn.BurstCode(k, n); err != nil {
				return err
			}
		}
	}
	if c.WriteRatio < 0 || c.WriteRatio > 1 {
		return fmt.Errorf("write ratio %g outside [0, 1]", c.WriteRatio)
	}
	if c.ErrorRate < 0 || c.ErrorRate > 1 {
		return fmt.Errorf("error rate %g outside [0, 1]", c.ErrorRate)
	}
	return nil
}

// maxAttempts bounds the search for a fresh address before a repeat is
// accepted.
const maxAttempts = 64

// Random generates Count transfers inside the constraints. The same
// constraints and generator seed give the same stream.
type Random struct {
	c   Constraints
	bus ahb.BusConfig
	rng *rand.Rand

	emitted int
	used    map[uint64]bool
}

func NewRandom(c Constraints, bus ahb.BusConfig, rng *rand.Rand) (*Random, error) {
	if err := c.Validate(bus); err != nil {
		return nil, err
	}
	return &Random{c: c, bus: bus, rng: rng, used: make(map[uint64]bool)}, nil
}

// Remaining returns the number of transfers still to come.
func (r *Random) Remaining() int { return r.c.Count - r.emitted }

func (r *Random) Next() (txn.Transfer, bool) {
	if r.emitted >= r.c.Count {
		return txn.Transfer{}, false
	}
	r.emitted++

	var t txn.Transfer
	for i := 0; ; i++ {
		var ok bool
		if t, ok = r.pick(); ok && (!r.used[t.Address] || i >= maxAttempts) {
			break
		}
		if i >= maxAttempts {
			t = r.fallback()
			break
		}
	}
	r.used[t.Address] = true

	t.Dir = txn.Read
	if r.rng.Float64() < r.c.WriteRatio {
		t.Dir = txn.Write
	}
	t.Prot = r.c.Prot
	t.Data = make([]uint64, t.Length)
	mask := ahb.BitMask(int(8 * t.Size))
	for i := range t.Data {
		t.Data[i] = r.rng.Uint64() & mask
	}
	if r.c.ErrorRate > 0 && r.rng.Float64() < r.c.ErrorRate {
		t.Resp = ahb.RespError
	}
	return t, true
}

// pick draws kind, length, size and start address. It fails when the
// drawn burst does not fit the range.
func (r *Random) pick() (txn.Transfer, bool) {
	t := txn.Transfer{
		Kind:   r.c.Kinds[r.rng.Intn(len(r.c.Kinds))],
		Size:   r.c.Sizes[r.rng.Intn(len(r.c.Sizes))],
		Length: 1,
	}
	switch t.Kind {
	case txn.Incrementing:
		t.Length = r.c.IncrLens[r.rng.Intn(len(r.c.IncrLens))]
	case txn.Wrapping:
		t.Length = r.c.WrapLens[r.rng.Intn(len(r.c.WrapLens))]
	}
	span := uint64(t.Length) * t.Size

	switch t.Kind {
	case txn.Wrapping:
		base, ok := r.alignedIn(span, span)
		if !ok {
			return t, false
		}
		t.Address = base + uint64(r.rng.Intn(t.Length))*t.Size
	default:
		start, ok := r.alignedIn(t.Size, span)
		if !ok {
			return t, false
		}
		t.Address = start
		if t.Kind == txn.Incrementing && start/txn.KiB != (start+span-1)/txn.KiB {
			return t, false
		}
	}
	t.Data = make([]uint64, t.Length)
	return t, txn.Validate(t, r.bus) == nil
}

// alignedIn returns a random align aligned address a with [a, a+span)
// inside the range.
func (r *Random) alignedIn(align, span uint64) (uint64, bool) {
	lo := (r.c.Low + align - 1) &^ (align - 1)
	if lo < r.c.Low || lo+span > r.c.High || lo+span < lo {
		return 0, false
	}
	slots := (r.c.High-span-lo)/align + 1
	return lo + uint64(r.rng.Int63n(int64(slots)))*align, true
}

// fallback is a single beat of the smallest allowed size.
func (r *Random) fallback() txn.Transfer {
	size := r.c.Sizes[0]
	for _, s := range r.c.Sizes {
		if s < size {
			size = s
		}
	}
	addr, _ := r.alignedIn(size, size)
	return txn.Transfer{Address: addr, Size: size, Kind: txn.Single, Length: 1}
}

// Collect drains a sequencer into a slice.
func Collect(s Sequencer) []txn.Transfer {
	var out []txn.Transfer
	for {
		t, ok := s.Next()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}
