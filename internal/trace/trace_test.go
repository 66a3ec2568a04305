package trace

import (
	"bytes"
	"math/rand"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ahbverify/internal/ahb"
	"ahbverify/internal/checker"
	"ahbverify/internal/driver"
	"ahbverify/internal/report"
	"ahbverify/internal/slave"
	"ahbverify/internal/txn"
)

func sample(cyc ahb.Cycle, trans ahb.Trans, addr uint64, burst ahb.Burst) ahb.Signals {
	return ahb.Signals{
		Cycle: cyc, ResetN: true, HReady: true, HSel: trans.IsBeat(),
		HTrans: trans, HAddr: addr, HSize: ahb.SizeWord, HBurst: burst, HProt: txn.DefaultProt,
	}
}

func TestRoundTrip(t *testing.T) {
	enc := ahb.Encoding{
		Trans: [4]uint8{3, 2, 1, 0},
		Resp:  [4]uint8{1, 0, 3, 2},
		Burst: [8]uint8{7, 6, 5, 4, 3, 2, 1, 0},
	}
	in := []ahb.Signals{
		{Cycle: 0, HReady: true},
		sample(1, ahb.TransNonSeq, 0x1000, ahb.BurstIncr4),
		sample(2, ahb.TransSeq, 0x1004, ahb.BurstIncr4),
		{Cycle: 3, ResetN: true, HTrans: ahb.TransBusy, HAddr: 0x1008, HBurst: ahb.BurstIncr4, HWData: 0xdeadbeef, HResp: ahb.RespRetry},
		{Cycle: 4, ResetN: true, HWrite: true, HRData: 0xffffffffffffffff, HReady: true, HResp: ahb.RespSplit},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, enc)
	for _, s := range in {
		if err := w.Write(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if w.Rows() != len(in) {
		t.Errorf("Rows() = %d", w.Rows())
	}
	if !strings.HasPrefix(buf.String(), strings.Join(Header, ",")+"\n") {
		t.Errorf("trace does not start with the header:\n%s", buf.String())
	}

	got, err := NewReader(&buf, enc).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestReaderErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"short record", "1,1,0x0\n"},
		{"bad number", "x,1,0x0,0,0,2,0,0x3,0,0x0,0x0,1,0\n"},
		{"bad flag", "0,2,0x0,0,0,2,0,0x3,0,0x0,0x0,1,0\n"},
		{"code outside encoding", "0,1,0x0,9,0,2,0,0x3,0,0x0,0x0,1,0\n"},
	}
	for _, tc := range tests {
		_, err := NewReader(strings.NewReader(tc.body), ahb.DefaultEncoding()).ReadAll()
		if err == nil {
			t.Errorf("%s: accepted", tc.name)
		}
	}
}

func TestReaderSkipsCommentsAndHeaders(t *testing.T) {
	body := "# recorded by a simulator\n" + strings.Join(Header, ",") + "\n" +
		"0, 1, 0x10, 2, 0, 2, 0, 0x3, 1, 0x0, 0x0, 1, 0\n"
	got, err := NewReader(strings.NewReader(body), ahb.DefaultEncoding()).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].HTrans != ahb.TransNonSeq || got[0].HAddr != 0x10 {
		t.Errorf("got %v", got)
	}
}

// record runs a driver against a scripted subordinate and returns the trace.
func record(t *testing.T, ts []txn.Transfer, scfg slave.ScriptConfig) *bytes.Buffer {
	t.Helper()
	bus := ahb.DefaultBusConfig()
	drv := driver.New(driver.Config{BusyCycles: 1}, bus)
	sub := slave.NewScripted(scfg, bus, rand.New(rand.NewSource(5)))
	dec := slave.NewDecoder()
	if err := dec.AddRegion(0, 0x10000, sub); err != nil {
		t.Fatal(err)
	}
	for _, x := range ts {
		if _, err := drv.Submit(x); err != nil {
			t.Fatal(err)
		}
		sub.Expect(x)
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, bus.Encoding)
	prev := ahb.Signals{HReady: true}
	for cyc := ahb.Cycle(0); cyc < 200; cyc++ {
		s := ahb.Signals{Cycle: cyc, ResetN: cyc >= 2, HReady: true}
		drv.Tick(prev, &s)
		dec.Respond(prev, &s)
		if err := w.Write(s); err != nil {
			t.Fatal(err)
		}
		prev = s
		if drv.Idle() && cyc > 2 {
			break
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	return &buf
}

func TestCheckCleanTrace(t *testing.T) {
	ts := []txn.Transfer{
		{Address: 0x100, Dir: txn.Write, Size: 4, Kind: txn.Incrementing, Length: 4, Data: []uint64{1, 2, 3, 4}, Prot: txn.DefaultProt},
		{Address: 0x200, Dir: txn.Read, Size: 4, Kind: txn.Wrapping, Length: 4, Data: []uint64{5, 6, 7, 8}, Prot: txn.DefaultProt},
		{Address: 0x300, Dir: txn.Read, Size: 4, Kind: txn.Single, Length: 1, Data: []uint64{9}, Resp: ahb.RespError, Prot: txn.DefaultProt},
	}
	buf := record(t, ts, slave.ScriptConfig{MaxWait: 2, RetryRate: 0.3, MaxRetries: 2, SplitEnabled: true})

	res, err := Check(NewReader(buf, ahb.DefaultEncoding()), CheckConfig{
		Name:    "clean",
		Bus:     ahb.DefaultBusConfig(),
		Checker: checker.Config{MaxStallCycles: 8, SplitEnabled: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if vs := res.Violations(); len(vs) != 0 {
		t.Errorf("violations on a clean trace: %v", vs)
	}
	if res.Observed != len(ts) {
		t.Errorf("observed %d transfers, want %d", res.Observed, len(ts))
	}
	if res.Verdict() != report.Pass {
		t.Errorf("verdict %s", res.Verdict())
	}
}

func TestCheckSeqWithoutNonSeq(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, ahb.DefaultEncoding())
	for _, s := range []ahb.Signals{
		{Cycle: 0, HReady: true},
		sample(1, ahb.TransIdle, 0, 0),
		sample(2, ahb.TransSeq, 0x104, ahb.BurstIncr4),
		sample(3, ahb.TransIdle, 0, 0),
	} {
		if err := w.Write(s); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}

	res, err := Check(NewReader(&buf, ahb.DefaultEncoding()), CheckConfig{Bus: ahb.DefaultBusConfig()})
	if err != nil {
		t.Fatal(err)
	}
	vs := res.Violations()
	if len(vs) != 1 || vs[0].Kind != report.KindIllegalSequence || vs[0].Cycle != 2 {
		t.Errorf("got %v, want one illegal-sequence at cycle 2", vs)
	}
	if res.ExitCode() != report.ExitViolation {
		t.Errorf("exit code %d", res.ExitCode())
	}
}
