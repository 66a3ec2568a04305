package scenario

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ahbverify/internal/ahb"
	"ahbverify/internal/txn"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	cons, err := c.Constraints()
	require.NoError(t, err)
	assert.Equal(t, []txn.BurstKind{txn.Single, txn.Incrementing, txn.Wrapping}, cons.Kinds)
	assert.Equal(t, uint64(0x1000), cons.Low)
	assert.Equal(t, 32, cons.Count)
}

func TestLoadYAML(t *testing.T) {
	p := writeFile(t, "s.yaml", `
name: singles
seed: 1
max_stall_cycles: 8
address_range:
  low: 0x1000
  high: 0x2000
allowed_burst_kinds: [single]
response_injection_rate: 0.25
transfer_count: 10
retry_rate: 0.1
`)
	c, err := Load(p)
	require.NoError(t, err)
	assert.Equal(t, "singles", c.Name)
	assert.Equal(t, int64(1), c.Seed)
	assert.Equal(t, 8, c.MaxStallCycles)
	assert.Equal(t, AddressRange{Low: 0x1000, High: 0x2000}, c.AddressRange)
	assert.Equal(t, []string{"single"}, c.AllowedBurstKinds)
	assert.InDelta(t, 0.25, c.ResponseInjectionRate, 1e-9)
	assert.Equal(t, 10, c.TransferCount)

	// keys the file leaves out keep their defaults
	assert.Equal(t, 32, c.DataWidth)
	assert.Equal(t, DUTScripted, c.DUT)
	assert.Equal(t, Default().MaxCycles, c.MaxCycles)
}

func TestLoadJSONDirected(t *testing.T) {
	p := writeFile(t, "s.json", `{
  "name": "directed",
  "directed": [
    {"address": 4096, "dir": "write", "kind": "incr", "length": 4, "data": [1, 2, 3, 4]},
    {"address": 4096, "dir": "read", "kind": "incr", "length": 4, "data": [1, 2, 3, 4]},
    {"address": 8192, "resp": "error"}
  ]
}`)
	c, err := Load(p)
	require.NoError(t, err)

	ts, err := c.DirectedTransfers()
	require.NoError(t, err)
	require.Len(t, ts, 3)
	assert.Equal(t, txn.Write, ts[0].Dir)
	assert.Equal(t, txn.Incrementing, ts[0].Kind)
	assert.Equal(t, []uint64{1, 2, 3, 4}, ts[1].Data)
	assert.Equal(t, uint64(4), ts[2].Size)
	assert.Equal(t, txn.Single, ts[2].Kind)
	assert.Equal(t, ahb.RespError, ts[2].Resp)
	assert.Equal(t, []uint64{0}, ts[2].Data)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("AHBVERIFY_SEED", "99")
	t.Setenv("AHBVERIFY_ADDRESS_RANGE_HIGH", "12288")
	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, int64(99), c.Seed)
	assert.Equal(t, uint64(0x3000), c.AddressRange.High)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	p := writeFile(t, "bad.yaml", "dut: fpga\n")
	_, err = Load(p)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
	}{
		{"bad data width", func(c *Config) { c.DataWidth = 24 }},
		{"negative stall limit", func(c *Config) { c.MaxStallCycles = -1 }},
		{"injection rate", func(c *Config) { c.ResponseInjectionRate = 2 }},
		{"retry rate", func(c *Config) { c.RetryRate = -1 }},
		{"wait range", func(c *Config) { c.MinWait, c.MaxWait = 3, 1 }},
		{"waits trip stall limit", func(c *Config) { c.MaxWait = 16 }},
		{"no reset", func(c *Config) { c.ResetCycles = 0 }},
		{"no cycles", func(c *Config) { c.MaxCycles = 0 }},
		{"unknown dut", func(c *Config) { c.DUT = "fpga" }},
		{"memory with injection", func(c *Config) {
			c.DUT = DUTMemory
			c.ResponseInjectionRate = 0.1
		}},
		{"memory with retries", func(c *Config) {
			c.DUT = DUTMemory
			c.RetryRate = 0.1
		}},
		{"unknown burst kind", func(c *Config) { c.AllowedBurstKinds = []string{"fixed"} }},
		{"empty range", func(c *Config) { c.AddressRange.High = c.AddressRange.Low }},
		{"size wider than bus", func(c *Config) { c.Sizes = []uint64{8} }},
		{"bad directed", func(c *Config) {
			c.Directed = []DirectedTransfer{{Address: 0x2, Size: 4}}
		}},
		{"bad directed dir", func(c *Config) {
			c.Directed = []DirectedTransfer{{Address: 0x0, Dir: "sideways"}}
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.modify(&c)
			assert.ErrorIs(t, c.Validate(), ErrInvalid)
		})
	}
}

func TestMemoryRegion(t *testing.T) {
	tests := []struct {
		low, high  uint64
		base, size uint64
	}{
		{0x1100, 0x1900, 0x1000, 0xc00},
		{0x1000, 0x2000, 0x1000, 0x1000},
		{0x3f00, 0x4100, 0x3c00, 0x800},
	}
	for _, tc := range tests {
		c := Default()
		c.AddressRange = AddressRange{Low: tc.low, High: tc.high}
		base, size, err := c.MemoryRegion()
		require.NoError(t, err)
		assert.Equal(t, tc.base, base, "base of [0x%x, 0x%x)", tc.low, tc.high)
		assert.Equal(t, tc.size, size, "size of [0x%x, 0x%x)", tc.low, tc.high)
	}
}
