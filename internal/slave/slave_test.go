package slave

import (
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ahbverify/internal/ahb"
	"ahbverify/internal/txn"
)

type in struct {
	trans ahb.Trans
	addr  uint64
	write bool
	wdata uint64
}

var idleIn = in{trans: ahb.TransIdle}

func nonseq(addr uint64) in { return in{trans: ahb.TransNonSeq, addr: addr} }

// run drives the master side from ins, one entry per cycle, and returns the
// settled bus of each cycle.
func run(r Responder, ins []in) []ahb.Signals {
	prev := ahb.Signals{ResetN: true, HReady: true}
	var out []ahb.Signals
	for i, x := range ins {
		bus := ahb.Signals{
			Cycle:  ahb.Cycle(i),
			ResetN: true,
			HTrans: x.trans,
			HAddr:  x.addr,
			HWrite: x.write,
			HSize:  ahb.SizeWord,
			HWData: x.wdata,
			HSel:   x.trans.IsBeat(),
		}
		r.Respond(prev, &bus)
		out = append(out, bus)
		prev = bus
	}
	return out
}

type outputs struct {
	Ready bool
	Resp  ahb.Resp
}

func outputsOf(bus []ahb.Signals) []outputs {
	var o []outputs
	for _, b := range bus {
		o = append(o, outputs{b.HReady, b.HResp})
	}
	return o
}

func TestScriptedWaitStates(t *testing.T) {
	s := NewScripted(ScriptConfig{MinWait: 2, MaxWait: 2}, ahb.DefaultBusConfig(), rand.New(rand.NewSource(1)))
	s.Expect(txn.Transfer{Address: 0x100, Size: 4, Kind: txn.Single, Length: 1, Data: []uint64{0x55}})

	bus := run(s, []in{nonseq(0x100), idleIn, idleIn, idleIn, idleIn})
	want := []outputs{{true, ahb.RespOkay}, {false, ahb.RespOkay}, {false, ahb.RespOkay}, {true, ahb.RespOkay}, {true, ahb.RespOkay}}
	if diff := cmp.Diff(want, outputsOf(bus)); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	if bus[3].HRData != 0x55 {
		t.Errorf("read data 0x%x, want 0x55", bus[3].HRData)
	}
}

func TestScriptedErrorOnFirstBeat(t *testing.T) {
	s := NewScripted(ScriptConfig{}, ahb.DefaultBusConfig(), rand.New(rand.NewSource(1)))
	s.Expect(txn.Transfer{Address: 0x100, Size: 4, Kind: txn.Single, Length: 1, Data: []uint64{0x77}, Resp: ahb.RespError})

	bus := run(s, []in{nonseq(0x100), idleIn, idleIn, idleIn})
	want := []outputs{{true, ahb.RespOkay}, {false, ahb.RespError}, {true, ahb.RespError}, {true, ahb.RespOkay}}
	if diff := cmp.Diff(want, outputsOf(bus)); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	if bus[2].HRData != 0x77 {
		t.Errorf("read data on error beat 0x%x, want 0x77", bus[2].HRData)
	}
}

func TestScriptedRetryBound(t *testing.T) {
	s := NewScripted(ScriptConfig{RetryRate: 1, MaxRetries: 2}, ahb.DefaultBusConfig(), rand.New(rand.NewSource(1)))
	s.Expect(txn.Transfer{Address: 0x100, Size: 4, Kind: txn.Single, Length: 1, Data: []uint64{9}})

	bus := run(s, []in{
		nonseq(0x100), idleIn, idleIn,
		nonseq(0x100), idleIn, idleIn,
		nonseq(0x100), idleIn,
	})
	want := []outputs{
		{true, ahb.RespOkay}, {false, ahb.RespRetry}, {true, ahb.RespRetry},
		{true, ahb.RespOkay}, {false, ahb.RespRetry}, {true, ahb.RespRetry},
		{true, ahb.RespOkay}, {true, ahb.RespOkay},
	}
	if diff := cmp.Diff(want, outputsOf(bus)); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	if s.Injected() != 2 {
		t.Errorf("injected %d, want 2", s.Injected())
	}
	if bus[7].HRData != 9 {
		t.Errorf("read data 0x%x after retries", bus[7].HRData)
	}
}

func TestScriptedBurstData(t *testing.T) {
	s := NewScripted(ScriptConfig{}, ahb.DefaultBusConfig(), rand.New(rand.NewSource(1)))
	s.Expect(txn.Transfer{Address: 0x100, Size: 4, Kind: txn.Incrementing, Length: 4, Data: []uint64{1, 2, 3, 4}})

	bus := run(s, []in{
		nonseq(0x100),
		{trans: ahb.TransSeq, addr: 0x104},
		{trans: ahb.TransSeq, addr: 0x108},
		{trans: ahb.TransSeq, addr: 0x10c},
		idleIn,
	})
	var got []uint64
	for _, b := range bus[1:] {
		got = append(got, b.HRData)
	}
	if diff := cmp.Diff([]uint64{1, 2, 3, 4}, got); diff != "" {
		t.Errorf("read data mismatch (-want +got):\n%s", diff)
	}
}

func TestMemoryThroughDecoder(t *testing.T) {
	d := NewDecoder()
	mem := NewMemory(0x1000, 0x400, 0, 0, nil)
	if err := d.AddRegion(0x1000, 0x400, mem); err != nil {
		t.Fatal(err)
	}

	bus := run(d, []in{
		{trans: ahb.TransNonSeq, addr: 0x1004, write: true},
		{trans: ahb.TransNonSeq, addr: 0x1004, wdata: 0xdeadbeef},
		idleIn,
	})
	if !bus[0].HSel || !bus[1].HSel || bus[2].HSel {
		t.Errorf("HSEL not driven for the mapped region")
	}
	if bus[2].HRData != 0xdeadbeef {
		t.Errorf("read back 0x%x", bus[2].HRData)
	}
	if got := mem.Read(0x1004, 2); got != 0xbeef {
		t.Errorf("halfword read 0x%x", got)
	}
}

func TestDefaultSubordinate(t *testing.T) {
	d := NewDecoder()
	if err := d.AddRegion(0x1000, 0x400, NewMemory(0x1000, 0x400, 0, 0, nil)); err != nil {
		t.Fatal(err)
	}
	bus := run(d, []in{nonseq(0x8000), idleIn, idleIn, idleIn})
	want := []outputs{{true, ahb.RespOkay}, {false, ahb.RespError}, {true, ahb.RespError}, {true, ahb.RespOkay}}
	if diff := cmp.Diff(want, outputsOf(bus)); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
	if bus[0].HSel {
		t.Errorf("HSEL set for an unmapped address")
	}
}

func TestMemoryWaitStates(t *testing.T) {
	d := NewDecoder()
	if err := d.AddRegion(0x0, 0x400, NewMemory(0, 0x400, 1, 1, nil)); err != nil {
		t.Fatal(err)
	}
	bus := run(d, []in{nonseq(0x10), idleIn, idleIn})
	want := []outputs{{true, ahb.RespOkay}, {false, ahb.RespOkay}, {true, ahb.RespOkay}}
	if diff := cmp.Diff(want, outputsOf(bus)); diff != "" {
		t.Errorf("outputs mismatch (-want +got):\n%s", diff)
	}
}

func TestAddRegion(t *testing.T) {
	d := NewDecoder()
	tests := []struct {
		name    string
		base    uint64
		size    uint64
		wantErr bool
	}{
		{"aligned", 0x0, 0x800, false},
		{"unaligned base", 0x900, 0x400, true},
		{"unaligned size", 0x1000, 0x100, true},
		{"empty", 0x2000, 0, true},
		{"overlap", 0x400, 0x400, true},
		{"adjacent", 0x800, 0x400, false},
	}
	for _, tc := range tests {
		err := d.AddRegion(tc.base, tc.size, &Default{})
		if (err != nil) != tc.wantErr {
			t.Errorf("%s: error %v, wantErr %t", tc.name, err, tc.wantErr)
		}
	}
}
