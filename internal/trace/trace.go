// Package trace records the settled bus of every cycle as CSV and reads
// such recordings back, so that a dump from an external simulator can be
// checked offline.
package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"ahbverify/internal/ahb"
	"ahbverify/internal/common"
)

// Header is the column order of a trace.
var Header = []string{
	"cycle", "hresetn", "haddr", "htrans", "hwrite", "hsize", "hburst",
	"hprot", "hsel", "hwdata", "hrdata", "hready", "hresp",
}

const (
	colCycle = iota
	colResetN
	colAddr
	colTrans
	colWrite
	colSize
	colBurst
	colProt
	colSel
	colWData
	colRData
	colReady
	colResp
	numCols
)

// Writer appends one CSV record per cycle. HTRANS, HBURST and HRESP are
// written as the raw codes of the encoding.
type Writer struct {
	w      *csv.Writer
	enc    ahb.Encoding
	header bool
	rows   int
}

func NewWriter(w io.Writer, enc ahb.Encoding) *Writer {
	return &Writer{w: csv.NewWriter(w), enc: enc}
}

// Write records one cycle, writing the header first if needed.
func (t *Writer) Write(s ahb.Signals) error {
	if !t.header {
		if err := t.w.Write(Header); err != nil {
			return err
		}
		t.header = true
	}
	rec := make([]string, numCols)
	rec[colCycle] = strconv.FormatUint(uint64(s.Cycle), 10)
	rec[colResetN] = bit(s.ResetN)
	rec[colAddr] = hex(s.HAddr)
	rec[colTrans] = strconv.Itoa(int(t.enc.EncodeTrans(s.HTrans)))
	rec[colWrite] = bit(s.HWrite)
	rec[colSize] = strconv.Itoa(int(s.HSize))
	rec[colBurst] = strconv.Itoa(int(t.enc.EncodeBurst(s.HBurst)))
	rec[colProt] = hex(uint64(s.HProt))
	rec[colSel] = bit(s.HSel)
	rec[colWData] = hex(s.HWData)
	rec[colRData] = hex(s.HRData)
	rec[colReady] = bit(s.HReady)
	rec[colResp] = strconv.Itoa(int(t.enc.EncodeResp(s.HResp)))
	t.rows++
	return t.w.Write(rec)
}

// Rows returns the number of cycles written.
func (t *Writer) Rows() int { return t.rows }

// Flush writes any buffered records.
func (t *Writer) Flush() error {
	t.w.Flush()
	return t.w.Error()
}

func bit(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func hex(v uint64) string { return "0x" + strconv.FormatUint(v, 16) }

// Reader decodes a trace record by record.
type Reader struct {
	r    *csv.Reader
	enc  ahb.Encoding
	line int
}

func NewReader(r io.Reader, enc ahb.Encoding) *Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numCols
	cr.Comment = '#'
	cr.TrimLeadingSpace = true
	return &Reader{r: cr, enc: enc}
}

// Read returns the next cycle. It returns io.EOF at the end of the trace.
// A header line is skipped wherever it appears.
func (t *Reader) Read() (ahb.Signals, error) {
	for {
		rec, err := t.r.Read()
		if err == io.EOF {
			return ahb.Signals{}, io.EOF
		}
		t.line++
		if err != nil {
			return ahb.Signals{}, t.parseErr(err.Error())
		}
		if rec[0] == Header[0] {
			continue
		}
		return t.decode(rec)
	}
}

// ReadAll returns every remaining cycle.
func (t *Reader) ReadAll() ([]ahb.Signals, error) {
	var out []ahb.Signals
	for {
		s, err := t.Read()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, s)
	}
}

func (t *Reader) parseErr(msg string) error {
	return common.NewErrorMsg(common.ErrSevError, common.ErrTraceParse, fmt.Sprintf("record %d: %s", t.line, msg))
}

func (t *Reader) decode(rec []string) (ahb.Signals, error) {
	var s ahb.Signals
	var err error
	num := func(col int, bits int) uint64 {
		if err != nil {
			return 0
		}
		var v uint64
		v, err = strconv.ParseUint(rec[col], 0, bits)
		if err != nil {
			err = t.parseErr(fmt.Sprintf("%s %q: %v", Header[col], rec[col], err))
		}
		return v
	}
	flag := func(col int) bool { return num(col, 1) == 1 }

	s.Cycle = ahb.Cycle(num(colCycle, 64))
	s.ResetN = flag(colResetN)
	s.HAddr = num(colAddr, 64)
	trans := uint8(num(colTrans, 8))
	s.HWrite = flag(colWrite)
	s.HSize = ahb.Size(num(colSize, 3))
	burst := uint8(num(colBurst, 8))
	s.HProt = uint8(num(colProt, 8))
	s.HSel = flag(colSel)
	s.HWData = num(colWData, 64)
	s.HRData = num(colRData, 64)
	s.HReady = flag(colReady)
	resp := uint8(num(colResp, 8))
	if err != nil {
		return ahb.Signals{}, err
	}

	if s.HTrans, err = t.enc.DecodeTrans(trans); err != nil {
		return ahb.Signals{}, t.parseErr(err.Error())
	}
	if s.HBurst, err = t.enc.DecodeBurst(burst); err != nil {
		return ahb.Signals{}, t.parseErr(err.Error())
	}
	if s.HResp, err = t.enc.DecodeResp(resp); err != nil {
		return ahb.Signals{}, t.parseErr(err.Error())
	}
	return s, nil
}
