package trace

import (
	"io"

	"ahbverify/internal/ahb"
	"ahbverify/internal/checker"
	"ahbverify/internal/common"
	"ahbverify/internal/monitor"
	"ahbverify/internal/report"
)

// CheckConfig sets up an offline check.
type CheckConfig struct {
	Name    string
	Bus     ahb.BusConfig
	Checker checker.Config
	Logger  common.ErrorLog // may be nil
}

// Check runs the monitor and the protocol checker over a recorded trace.
// There is no intended stream offline, so the result holds protocol
// violations only; Observed counts the transfers the monitor rebuilt. The
// error is non nil only when the trace cannot be read.
func Check(r *Reader, cfg CheckConfig) (*report.Result, error) {
	mon := monitor.New(cfg.Bus)
	chk := checker.New(cfg.Checker)
	if cfg.Logger != nil {
		common.AttachErrorLog(cfg.Logger, common.ErrSevInfo, mon, chk)
	}

	res := report.NewResult(cfg.Name, 0)
	var last ahb.Cycle
	n := 0
	for {
		s, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		mon.Sample(s)
		for _, v := range chk.Check(s) {
			res.Add(v)
		}
		last = s.Cycle
		n++
		if chk.Latched() {
			break
		}
	}
	for _, v := range chk.Finish() {
		res.Add(v)
	}
	res.Observed = mon.Observed()
	if n > 0 {
		res.Cycles = last + 1
	}
	return res, nil
}
