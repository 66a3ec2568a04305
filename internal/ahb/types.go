package ahb

import "fmt"

// Cycle is the clock edge count since the start of a run.
type Cycle uint64

// BadCycle is an invalid cycle value, used where a finding has no cycle.
const BadCycle Cycle = ^Cycle(0)

// Trans is the HTRANS transfer type driven in the address phase.
type Trans uint8

const (
	TransIdle   Trans = 0
	TransBusy   Trans = 1
	TransNonSeq Trans = 2
	TransSeq    Trans = 3
)

func (t Trans) String() string {
	switch t {
	case TransIdle:
		return "IDLE"
	case TransBusy:
		return "BUSY"
	case TransNonSeq:
		return "NONSEQ"
	case TransSeq:
		return "SEQ"
	default:
		return fmt.Sprintf("HTRANS(%d)", uint8(t))
	}
}

// IsBeat returns true when the transfer type carries a data beat.
func (t Trans) IsBeat() bool { return t == TransNonSeq || t == TransSeq }

// Burst is the HBURST burst type code.
type Burst uint8

const (
	BurstSingle Burst = 0
	BurstIncr   Burst = 1 // undefined length
	BurstWrap4  Burst = 2
	BurstIncr4  Burst = 3
	BurstWrap8  Burst = 4
	BurstIncr8  Burst = 5
	BurstWrap16 Burst = 6
	BurstIncr16 Burst = 7
)

var burstNames = [...]string{"SINGLE", "INCR", "WRAP4", "INCR4", "WRAP8", "INCR8", "WRAP16", "INCR16"}

func (b Burst) String() string {
	if int(b) < len(burstNames) {
		return burstNames[b]
	}
	return fmt.Sprintf("HBURST(%d)", uint8(b))
}

// Beats returns the number of beats declared by the burst code, 0 for INCR.
func (b Burst) Beats() int {
	switch b {
	case BurstSingle:
		return 1
	case BurstWrap4, BurstIncr4:
		return 4
	case BurstWrap8, BurstIncr8:
		return 8
	case BurstWrap16, BurstIncr16:
		return 16
	default:
		return 0
	}
}

// IsWrap returns true for the wrapping burst codes.
func (b Burst) IsWrap() bool {
	return b == BurstWrap4 || b == BurstWrap8 || b == BurstWrap16
}

// Size is the HSIZE code, the log2 of the transfer size in bytes.
type Size uint8

const (
	SizeByte     Size = 0
	SizeHalfword Size = 1
	SizeWord     Size = 2
	SizeDouble   Size = 3
	SizeQuad     Size = 4
	Size256      Size = 5
	Size512      Size = 6
	Size1024     Size = 7
)

// Bytes returns the number of bytes transferred per beat.
func (s Size) Bytes() uint64 { return uint64(1) << s }

func (s Size) String() string { return fmt.Sprintf("%dB", s.Bytes()) }

// SizeFromBytes returns the HSIZE code for a power of two byte count.
func SizeFromBytes(n uint64) (Size, bool) {
	for s := SizeByte; s <= Size1024; s++ {
		if s.Bytes() == n {
			return s, true
		}
	}
	return 0, false
}

// Resp is the slave response code.
type Resp uint8

const (
	RespOkay  Resp = 0
	RespError Resp = 1
	RespRetry Resp = 2
	RespSplit Resp = 3
)

func (r Resp) String() string {
	switch r {
	case RespOkay:
		return "OKAY"
	case RespError:
		return "ERROR"
	case RespRetry:
		return "RETRY"
	case RespSplit:
		return "SPLIT"
	default:
		return fmt.Sprintf("HRESP(%d)", uint8(r))
	}
}

// IsReissue returns true when the master must reissue the beat.
func (r Resp) IsReissue() bool { return r == RespRetry || r == RespSplit }

// ParseResp converts a response name to its code.
func ParseResp(s string) (Resp, error) {
	for r := RespOkay; r <= RespSplit; r++ {
		if r.String() == s {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown response %q", s)
}

// BitMask returns a mask of the low bits.
func BitMask(bits int) uint64 {
	if bits >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bits) - 1
}
