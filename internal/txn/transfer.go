// Package txn holds the canonical model of a bus transfer and its beats.
package txn

import (
	"errors"
	"fmt"
	"strings"

	"ahbverify/internal/ahb"
)

// Direction of a transfer.
type Direction uint8

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

// BurstKind is the address increment rule of a transfer.
type BurstKind uint8

const (
	Single BurstKind = iota
	Incrementing
	Wrapping
)

func (k BurstKind) String() string {
	switch k {
	case Single:
		return "single"
	case Incrementing:
		return "incr"
	case Wrapping:
		return "wrap"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseBurstKind converts a configuration name to a burst kind.
func ParseBurstKind(s string) (BurstKind, error) {
	switch strings.ToLower(s) {
	case "single":
		return Single, nil
	case "incr", "incrementing":
		return Incrementing, nil
	case "wrap", "wrapping":
		return Wrapping, nil
	}
	return 0, fmt.Errorf("unknown burst kind %q", s)
}

// DefaultProt is data access, privileged.
const DefaultProt uint8 = 0x3

// KiB is the boundary an incrementing burst must not cross.
const KiB = 1024

// Transfer is one bus transaction: a single beat or a burst.
type Transfer struct {
	Address uint64
	Dir     Direction
	Size    uint64 // bytes per beat
	Kind    BurstKind
	Length  int
	Data    []uint64
	Resp    ahb.Resp
	Prot    uint8
}

func (t Transfer) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s addr=0x%x size=%d len=%d prot=%x resp=%s data=[", t.Kind, t.Dir, t.Address, t.Size, t.Length, t.Prot, t.Resp)
	for i, d := range t.Data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "0x%x", d)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Equal compares every field of two transfers.
func (t Transfer) Equal(o Transfer) bool {
	if t.Address != o.Address || t.Dir != o.Dir || t.Size != o.Size || t.Kind != o.Kind ||
		t.Length != o.Length || t.Resp != o.Resp || t.Prot != o.Prot || len(t.Data) != len(o.Data) {
		return false
	}
	for i := range t.Data {
		if t.Data[i] != o.Data[i] {
			return false
		}
	}
	return true
}

// HSize returns the HSIZE code of the transfer size.
func (t Transfer) HSize() ahb.Size {
	s, _ := ahb.SizeFromBytes(t.Size)
	return s
}

// HBurst returns the HBURST code driven for the transfer.
func (t Transfer) HBurst() ahb.Burst {
	b, _ := BurstCode(t.Kind, t.Length)
	return b
}

var (
	ErrLength    = errors.New("burst length invalid")
	ErrDataLen   = errors.New("data length does not match burst length")
	ErrSize      = errors.New("transfer size invalid")
	ErrAlign     = errors.New("address not aligned to transfer size")
	ErrBoundary  = errors.New("incrementing burst crosses a 1KiB boundary")
	ErrAddrRange = errors.New("address outside bus address width")
)

// Validate checks the transfer invariants against a bus configuration.
func Validate(t Transfer, bus ahb.BusConfig) error {
	if t.Length < 1 {
		return fmt.Errorf("%w: %d", ErrLength, t.Length)
	}
	if len(t.Data) != t.Length {
		return fmt.Errorf("%w: %d data words for %d beats", ErrDataLen, len(t.Data), t.Length)
	}
	if _, ok := ahb.SizeFromBytes(t.Size); !ok || t.Size > bus.DataBytes() {
		return fmt.Errorf("%w: %d bytes on a %d bit bus", ErrSize, t.Size, bus.DataWidth)
	}
	if t.Address%t.Size != 0 {
		return fmt.Errorf("%w: 0x%x size %d", ErrAlign, t.Address, t.Size)
	}
	if t.Address&^bus.AddrMask() != 0 {
		return fmt.Errorf("%w: 0x%x", ErrAddrRange, t.Address)
	}
	if _, err := BurstCode(t.Kind, t.Length); err != nil {
		return err
	}
	if t.Kind == Incrementing {
		last := t.Address + uint64(t.Length-1)*t.Size
		if t.Address/KiB != last/KiB {
			return fmt.Errorf("%w: 0x%x..0x%x", ErrBoundary, t.Address, last)
		}
		if last&^bus.AddrMask() != 0 {
			return fmt.Errorf("%w: 0x%x", ErrAddrRange, last)
		}
	}
	return nil
}

// BurstCode returns the HBURST code for a burst kind and length.
func BurstCode(kind BurstKind, length int) (ahb.Burst, error) {
	switch kind {
	case Single:
		if length == 1 {
			return ahb.BurstSingle, nil
		}
	case Incrementing:
		switch length {
		case 4:
			return ahb.BurstIncr4, nil
		case 8:
			return ahb.BurstIncr8, nil
		case 16:
			return ahb.BurstIncr16, nil
		}
		if length >= 1 {
			return ahb.BurstIncr, nil
		}
	case Wrapping:
		switch length {
		case 4:
			return ahb.BurstWrap4, nil
		case 8:
			return ahb.BurstWrap8, nil
		case 16:
			return ahb.BurstWrap16, nil
		}
	}
	return 0, fmt.Errorf("%w: %s burst of %d beats", ErrLength, kind, length)
}

// KindFromCode returns the burst kind of an HBURST code.
func KindFromCode(b ahb.Burst) BurstKind {
	switch {
	case b == ahb.BurstSingle:
		return Single
	case b.IsWrap():
		return Wrapping
	default:
		return Incrementing
	}
}

// BeatAddress returns the address of beat i of a burst starting at start.
// Incrementing bursts add size per beat; wrapping bursts stay inside the
// length*size aligned block holding start.
func BeatAddress(start, size uint64, kind BurstKind, length, i int) uint64 {
	step := uint64(i) * size
	if kind != Wrapping {
		return start + step
	}
	block := uint64(length) * size
	base := start &^ (block - 1)
	return base + (start-base+step)%block
}
