package ahb

import "fmt"

// Signals is the settled value of every bus signal during one clock cycle.
// The address phase fields are driven by the master, HReady, HResp and HRData
// by the selected slave.
type Signals struct {
	Cycle  Cycle
	ResetN bool // active low reset, false while reset is asserted

	// address phase
	HAddr  uint64
	HTrans Trans
	HWrite bool
	HSize  Size
	HBurst Burst
	HProt  uint8
	HSel   bool

	// data phase
	HWData uint64
	HRData uint64
	HReady bool
	HResp  Resp
}

// Idle returns the value of the bus with no master activity and a ready slave.
func Idle(cycle Cycle) Signals {
	return Signals{Cycle: cycle, ResetN: true, HReady: true}
}

// Accepted returns true when the address phase of this cycle is accepted and
// moves into the data phase on the next cycle.
func (s *Signals) Accepted() bool {
	return s.ResetN && s.HReady && s.HTrans.IsBeat()
}

func (s Signals) String() string {
	return fmt.Sprintf("cyc=%d rst_n=%t %s addr=0x%x %s %s %s prot=%x sel=%t wdata=0x%x rdata=0x%x ready=%t %s",
		s.Cycle, s.ResetN, s.HTrans, s.HAddr, dirStr(s.HWrite), s.HSize, s.HBurst, s.HProt, s.HSel,
		s.HWData, s.HRData, s.HReady, s.HResp)
}

func dirStr(write bool) string {
	if write {
		return "W"
	}
	return "R"
}

// BusConfig holds the widths and options of the bus under test.
type BusConfig struct {
	AddrWidth    int
	DataWidth    int
	SplitEnabled bool
	Encoding     Encoding
}

// DefaultBusConfig returns a 32 bit address, 32 bit data AHB bus with split
// responses enabled and the standard encodings.
func DefaultBusConfig() BusConfig {
	return BusConfig{
		AddrWidth:    32,
		DataWidth:    32,
		SplitEnabled: true,
		Encoding:     DefaultEncoding(),
	}
}

// DataBytes returns the data bus width in bytes.
func (c BusConfig) DataBytes() uint64 { return uint64(c.DataWidth / 8) }

// AddrMask masks an address to the bus address width.
func (c BusConfig) AddrMask() uint64 { return BitMask(c.AddrWidth) }

// DataMask masks a data word to the bus data width.
func (c BusConfig) DataMask() uint64 { return BitMask(c.DataWidth) }

// Validate checks the widths are ones an AHB bus can have.
func (c BusConfig) Validate() error {
	if c.AddrWidth < 10 || c.AddrWidth > 64 {
		return fmt.Errorf("address width %d outside 10..64", c.AddrWidth)
	}
	switch c.DataWidth {
	case 8, 16, 32, 64:
	default:
		return fmt.Errorf("data width %d not one of 8, 16, 32, 64", c.DataWidth)
	}
	return c.Encoding.Validate()
}

// Encoding maps the logical signal values onto the raw codes seen on the
// wires of a particular bus implementation.
type Encoding struct {
	Trans [4]uint8 // indexed by Trans
	Resp  [4]uint8 // indexed by Resp
	Burst [8]uint8 // indexed by Burst
}

// DefaultEncoding returns the AMBA AHB encodings.
func DefaultEncoding() Encoding {
	return Encoding{
		Trans: [4]uint8{0, 1, 2, 3},
		Resp:  [4]uint8{0, 1, 2, 3},
		Burst: [8]uint8{0, 1, 2, 3, 4, 5, 6, 7},
	}
}

// Validate checks that no two logical values share a raw code.
func (e Encoding) Validate() error {
	if err := uniqueCodes("HTRANS", e.Trans[:]); err != nil {
		return err
	}
	if err := uniqueCodes("HRESP", e.Resp[:]); err != nil {
		return err
	}
	return uniqueCodes("HBURST", e.Burst[:])
}

func uniqueCodes(name string, codes []uint8) error {
	seen := make(map[uint8]bool, len(codes))
	for _, c := range codes {
		if seen[c] {
			return fmt.Errorf("%s encoding repeats code %d", name, c)
		}
		seen[c] = true
	}
	return nil
}

func (e Encoding) EncodeTrans(t Trans) uint8 { return e.Trans[t&3] }
func (e Encoding) EncodeResp(r Resp) uint8 { return e.Resp[r&3] }
func (e Encoding) EncodeBurst(b Burst) uint8 { return e.Burst[b&7] }

func (e Encoding) DecodeTrans(code uint8) (Trans, error) {
	for i, c := range e.Trans {
		if c == code {
			return Trans(i), nil
		}
	}
	return 0, fmt.Errorf("HTRANS code %d not in encoding", code)
}

func (e Encoding) DecodeResp(code uint8) (Resp, error) {
	for i, c := range e.Resp {
		if c == code {
			return Resp(i), nil
		}
	}
	return 0, fmt.Errorf("HRESP code %d not in encoding", code)
}

func (e Encoding) DecodeBurst(code uint8) (Burst, error) {
	for i, c := range e.Burst {
		if c == code {
			return Burst(i), nil
		}
	}
	return 0, fmt.Errorf("HBURST code %d not in encoding", code)
}
