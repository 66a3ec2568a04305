// Package scenario holds the configuration of one verification run and its
// loading from a file.
package scenario

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"ahbverify/internal/ahb"
	"ahbverify/internal/checker"
	"ahbverify/internal/driver"
	"ahbverify/internal/sequencer"
	"ahbverify/internal/slave"
	"ahbverify/internal/txn"
)

// DUT models selectable when no external simulator drives the bus.
const (
	DUTScripted = "scripted"
	DUTMemory   = "memory"
)

var ErrInvalid = errors.New("invalid scenario")

type AddressRange struct {
	Low  uint64 `mapstructure:"low"`
	High uint64 `mapstructure:"high"`
}

// DirectedTransfer is one entry of a directed transfer list.
type DirectedTransfer struct {
	Address uint64   `mapstructure:"address"`
	Dir     string   `mapstructure:"dir"`
	Size    uint64   `mapstructure:"size"`
	Kind    string   `mapstructure:"kind"`
	Length  int      `mapstructure:"length"`
	Data    []uint64 `mapstructure:"data"`
	Resp    string   `mapstructure:"resp"`
}

// Config is the full scenario surface. The first block is the core surface
// every scenario recognises, the rest are extensions with defaults.
type Config struct {
	Name                  string       `mapstructure:"name"`
	Seed                  int64        `mapstructure:"seed"`
	MaxStallCycles        int          `mapstructure:"max_stall_cycles"`
	AddressRange          AddressRange `mapstructure:"address_range"`
	AllowedBurstKinds     []string     `mapstructure:"allowed_burst_kinds"`
	ResponseInjectionRate float64      `mapstructure:"response_injection_rate"`
	TransferCount         int          `mapstructure:"transfer_count"`

	AddrWidth    int      `mapstructure:"addr_width"`
	DataWidth    int      `mapstructure:"data_width"`
	SplitEnabled bool     `mapstructure:"split_enabled"`
	IncrLengths  []int    `mapstructure:"incr_lengths"`
	WrapLengths  []int    `mapstructure:"wrap_lengths"`
	Sizes        []uint64 `mapstructure:"sizes"`
	WriteRatio   float64  `mapstructure:"write_ratio"`

	DUT        string  `mapstructure:"dut"`
	MinWait    int     `mapstructure:"min_wait"`
	MaxWait    int     `mapstructure:"max_wait"`
	RetryRate  float64 `mapstructure:"retry_rate"`
	MaxRetries int     `mapstructure:"max_retries"`

	BusyCycles  int `mapstructure:"busy_cycles"`
	IdleCycles  int `mapstructure:"idle_cycles"`
	ResetCycles int `mapstructure:"reset_cycles"`
	MaxCycles   int `mapstructure:"max_cycles"`
	DrainCycles int `mapstructure:"drain_cycles"`

	Directed []DirectedTransfer `mapstructure:"directed"`
}

// Default returns a small random scenario over a scripted subordinate.
func Default() Config {
	return Config{
		Name:              "default",
		Seed:              1,
		MaxStallCycles:    16,
		AddressRange:      AddressRange{Low: 0x1000, High: 0x2000},
		AllowedBurstKinds: []string{"single", "incr", "wrap"},
		TransferCount:     32,

		AddrWidth:    32,
		DataWidth:    32,
		SplitEnabled: true,
		IncrLengths:  []int{1, 2, 4, 8, 16},
		WrapLengths:  []int{4, 8, 16},
		Sizes:        []uint64{1, 2, 4},
		WriteRatio:   0.5,

		DUT:        DUTScripted,
		MaxWait:    2,
		MaxRetries: 2,

		ResetCycles: 2,
		MaxCycles:   100000,
		DrainCycles: 8,
	}
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks the configuration is complete and consistent.
func (c *Config) Validate() error {
	bus := c.BusConfig()
	if err := bus.Validate(); err != nil {
		return invalid("%v", err)
	}
	if c.MaxStallCycles < 0 {
		return invalid("max_stall_cycles %d is negative", c.MaxStallCycles)
	}
	if c.ResponseInjectionRate < 0 || c.ResponseInjectionRate > 1 {
		return invalid("response_injection_rate %g outside [0, 1]", c.ResponseInjectionRate)
	}
	if c.RetryRate < 0 || c.RetryRate > 1 {
		return invalid("retry_rate %g outside [0, 1]", c.RetryRate)
	}
	if c.MinWait < 0 || c.MaxWait < c.MinWait {
		return invalid("wait states [%d, %d] invalid", c.MinWait, c.MaxWait)
	}
	if c.MaxRetries < 0 || c.BusyCycles < 0 || c.IdleCycles < 0 || c.DrainCycles < 0 {
		return invalid("negative retry, busy, idle or drain count")
	}
	if c.ResetCycles < 1 {
		return invalid("reset_cycles must be at least 1")
	}
	if c.MaxCycles < 1 {
		return invalid("max_cycles must be at least 1")
	}
	if c.MaxStallCycles > 0 && c.MaxWait >= c.MaxStallCycles {
		return invalid("max_wait %d would trip max_stall_cycles %d", c.MaxWait, c.MaxStallCycles)
	}

	switch c.DUT {
	case DUTScripted:
	case DUTMemory:
		if c.ResponseInjectionRate > 0 || c.RetryRate > 0 {
			return invalid("the memory subordinate cannot inject responses")
		}
		if _, _, err := c.MemoryRegion(); err != nil {
			return err
		}
	default:
		return invalid("unknown dut %q", c.DUT)
	}

	if len(c.Directed) > 0 {
		ts, err := c.DirectedTransfers()
		if err != nil {
			return err
		}
		for i, t := range ts {
			if err := txn.Validate(t, bus); err != nil {
				return invalid("directed transfer %d: %v", i, err)
			}
			if c.DUT == DUTMemory && t.Resp != ahb.RespOkay {
				return invalid("directed transfer %d: the memory subordinate cannot inject %s", i, t.Resp)
			}
		}
		return nil
	}

	if c.TransferCount < 0 {
		return invalid("transfer_count %d is negative", c.TransferCount)
	}
	cons, err := c.Constraints()
	if err != nil {
		return err
	}
	if err := cons.Validate(bus); err != nil {
		return invalid("%v", err)
	}
	return nil
}

func (c *Config) BusConfig() ahb.BusConfig {
	bus := ahb.DefaultBusConfig()
	bus.AddrWidth = c.AddrWidth
	bus.DataWidth = c.DataWidth
	bus.SplitEnabled = c.SplitEnabled
	return bus
}

func (c *Config) CheckerConfig() checker.Config {
	return checker.Config{MaxStallCycles: c.MaxStallCycles, SplitEnabled: c.SplitEnabled}
}

func (c *Config) DriverConfig() driver.Config {
	return driver.Config{BusyCycles: c.BusyCycles, IdleCycles: c.IdleCycles}
}

func (c *Config) ScriptConfig() slave.ScriptConfig {
	return slave.ScriptConfig{
		MinWait:      c.MinWait,
		MaxWait:      c.MaxWait,
		RetryRate:    c.RetryRate,
		MaxRetries:   c.MaxRetries,
		SplitEnabled: c.SplitEnabled,
	}
}

// MemoryRegion returns the address range rounded out to 1KiB, the unit the
// decoder maps.
func (c *Config) MemoryRegion() (base, size uint64, err error) {
	base = c.AddressRange.Low &^ (txn.KiB - 1)
	end := (c.AddressRange.High + txn.KiB - 1) &^ (txn.KiB - 1)
	if end <= base {
		return 0, 0, invalid("address range [0x%x, 0x%x) is empty", c.AddressRange.Low, c.AddressRange.High)
	}
	if end-base > 64<<20 {
		return 0, 0, invalid("address range of %d bytes too large for a memory model", end-base)
	}
	return base, end - base, nil
}

// Constraints returns the random stream bounds.
func (c *Config) Constraints() (sequencer.Constraints, error) {
	cons := sequencer.Constraints{
		Low:        c.AddressRange.Low,
		High:       c.AddressRange.High,
		Count:      c.TransferCount,
		IncrLens:   c.IncrLengths,
		WrapLens:   c.WrapLengths,
		Sizes:      c.Sizes,
		WriteRatio: c.WriteRatio,
		ErrorRate:  c.ResponseInjectionRate,
		Prot:       txn.DefaultProt,
	}
	for _, s := range c.AllowedBurstKinds {
		k, err := txn.ParseBurstKind(s)
		if err != nil {
			return cons, invalid("%v", err)
		}
		cons.Kinds = append(cons.Kinds, k)
	}
	return cons, nil
}

// DirectedTransfers converts the directed list.
func (c *Config) DirectedTransfers() ([]txn.Transfer, error) {
	var out []txn.Transfer
	for i, d := range c.Directed {
		t := txn.Transfer{
			Address: d.Address,
			Size:    d.Size,
			Length:  d.Length,
			Data:    append([]uint64(nil), d.Data...),
			Prot:    txn.DefaultProt,
		}
		if t.Size == 0 {
			t.Size = uint64(c.DataWidth / 8)
		}
		if t.Length == 0 {
			t.Length = 1
		}
		if len(t.Data) == 0 {
			t.Data = make([]uint64, t.Length)
		}
		switch strings.ToLower(d.Dir) {
		case "", "read", "r":
			t.Dir = txn.Read
		case "write", "w":
			t.Dir = txn.Write
		default:
			return nil, invalid("directed transfer %d: unknown direction %q", i, d.Dir)
		}
		kind := d.Kind
		if kind == "" {
			kind = "single"
		}
		k, err := txn.ParseBurstKind(kind)
		if err != nil {
			return nil, invalid("directed transfer %d: %v", i, err)
		}
		t.Kind = k
		if d.Resp != "" {
			r, err := ahb.ParseResp(strings.ToUpper(d.Resp))
			if err != nil {
				return nil, invalid("directed transfer %d: %v", i, err)
			}
			t.Resp = r
		}
		out = append(out, t)
	}
	return out, nil
}

// setDefaults registers every key of Default with v so that files may set
// any subset.
func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("name", d.Name)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("max_stall_cycles", d.MaxStallCycles)
	v.SetDefault("address_range.low", d.AddressRange.Low)
	v.SetDefault("address_range.high", d.AddressRange.High)
	v.SetDefault("allowed_burst_kinds", d.AllowedBurstKinds)
	v.SetDefault("response_injection_rate", d.ResponseInjectionRate)
	v.SetDefault("transfer_count", d.TransferCount)
	v.SetDefault("addr_width", d.AddrWidth)
	v.SetDefault("data_width", d.DataWidth)
	v.SetDefault("split_enabled", d.SplitEnabled)
	v.SetDefault("incr_lengths", d.IncrLengths)
	v.SetDefault("wrap_lengths", d.WrapLengths)
	v.SetDefault("sizes", d.Sizes)
	v.SetDefault("write_ratio", d.WriteRatio)
	v.SetDefault("dut", d.DUT)
	v.SetDefault("min_wait", d.MinWait)
	v.SetDefault("max_wait", d.MaxWait)
	v.SetDefault("retry_rate", d.RetryRate)
	v.SetDefault("max_retries", d.MaxRetries)
	v.SetDefault("busy_cycles", d.BusyCycles)
	v.SetDefault("idle_cycles", d.IdleCycles)
	v.SetDefault("reset_cycles", d.ResetCycles)
	v.SetDefault("max_cycles", d.MaxCycles)
	v.SetDefault("drain_cycles", d.DrainCycles)
}

// NewViper returns a viper instance holding the defaults and reading
// AHBVERIFY_ prefixed environment overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("ahbverify")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads a scenario file (YAML, TOML or JSON by extension) over the
// defaults and validates the result. An empty path loads the defaults.
func Load(path string) (Config, error) {
	return ReadFile(NewViper(), path)
}

// ReadFile is Load on a caller supplied viper instance, typically one with
// command line flags bound.
func ReadFile(v *viper.Viper, path string) (Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading scenario %s: %w", path, err)
		}
	}
	return FromViper(v)
}

// FromViper decodes and validates the configuration held by v.
func FromViper(v *viper.Viper) (Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decoding scenario: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
