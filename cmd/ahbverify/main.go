package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"ahbverify/internal/common"
	"ahbverify/internal/env"
	"ahbverify/internal/history"
	"ahbverify/internal/report"
	"ahbverify/internal/scenario"
	"ahbverify/internal/trace"
)

// exitError carries a process exit status out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit %d", e.code)
	}
	return e.err.Error()
}

func usageErr(err error) error { return &exitError{code: report.ExitUsage, err: err} }

type globals struct {
	logLevel    string
	historyPath string
	jsonOut     bool
	verbose     bool
}

func (g *globals) logger() (common.Logger, error) {
	sev, err := common.ParseSeverity(g.logLevel)
	if err != nil {
		return nil, err
	}
	return common.NewStdLoggerWithWriter(os.Stderr, os.Stderr, sev), nil
}

func (g *globals) print(res *report.Result) error {
	if g.jsonOut {
		b, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(b))
		return nil
	}
	p := report.NewPrinter()
	p.SetVerbose(g.verbose)
	p.PrintResult(res)
	return nil
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "ahbverify",
		Short:         "Protocol and functional verification of an AHB pipelined bus",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.logLevel, "log-level", "WARNING", "log level: DEBUG, INFO, WARNING or ERROR")
	root.PersistentFlags().StringVar(&g.historyPath, "history", "", "regression history database")
	root.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "print results as JSON")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "print every finding")

	root.AddCommand(runCmd(g), checkCmd(g), historyCmd(g))
	return root
}

// exitCode maps an error returned by a command onto the process status.
func exitCode(err error) int {
	if err == nil {
		return report.ExitPass
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return report.ExitUsage
}

func main() {
	err := newRootCmd().Execute()
	var ee *exitError
	if err != nil && (!errors.As(err, &ee) || ee.err != nil) {
		fmt.Fprintf(os.Stderr, "ahbverify: %v\n", err)
	}
	os.Exit(exitCode(err))
}

// scenarioFlags binds the most used scenario keys to command line flags.
func scenarioFlags(cmd *cobra.Command, v *viper.Viper) {
	f := cmd.Flags()
	f.Int64("seed", 0, "random seed")
	f.Int("count", 0, "number of random transfers")
	f.String("dut", "", "subordinate model: scripted or memory")
	f.Int("max-cycles", 0, "cycle limit of the run")
	f.Int("max-stall-cycles", 0, "HREADY low cycles before a stall timeout")
	for key, flag := range map[string]string{
		"seed":             "seed",
		"transfer_count":   "count",
		"dut":              "dut",
		"max_cycles":       "max-cycles",
		"max_stall_cycles": "max-stall-cycles",
	} {
		bindFlag(v, key, f.Lookup(flag))
	}
}

// bindFlag binds a flag to a viper key. A failure is a programming error in
// the command setup.
func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("binding flag for %s: %v", key, err))
	}
}

func runCmd(g *globals) *cobra.Command {
	v := scenario.NewViper()
	var cfgPath, tracePath string
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one scenario against the built in subordinate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := scenario.ReadFile(v, cfgPath)
			if err != nil {
				return usageErr(err)
			}
			log, err := g.logger()
			if err != nil {
				return usageErr(err)
			}

			opts := env.Options{Logger: log}
			if tracePath != "" {
				f, err := os.Create(tracePath)
				if err != nil {
					return usageErr(err)
				}
				defer f.Close()
				opts.Trace = f
			}
			if g.historyPath != "" {
				store, err := history.Open(g.historyPath)
				if err != nil {
					return usageErr(err)
				}
				defer store.Close()
				opts.History = store
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			res, err := env.Run(ctx, cfg, opts)
			if err != nil {
				return usageErr(err)
			}
			if err := g.print(res); err != nil {
				return err
			}
			if code := res.ExitCode(); code != report.ExitPass {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "scenario file (yaml, toml or json)")
	cmd.Flags().StringVar(&tracePath, "trace", "", "write a per-cycle CSV trace")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the run after this wall clock time")
	scenarioFlags(cmd, v)
	return cmd
}

func checkCmd(g *globals) *cobra.Command {
	v := scenario.NewViper()
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "check TRACE",
		Short: "Check a recorded signal trace offline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := scenario.ReadFile(v, cfgPath)
			if err != nil {
				return usageErr(err)
			}
			log, err := g.logger()
			if err != nil {
				return usageErr(err)
			}
			f, err := os.Open(args[0])
			if err != nil {
				return usageErr(err)
			}
			defer f.Close()

			bus := cfg.BusConfig()
			res, err := trace.Check(trace.NewReader(f, bus.Encoding), trace.CheckConfig{
				Name:    args[0],
				Bus:     bus,
				Checker: cfg.CheckerConfig(),
				Logger:  common.LoggerErrorLog{Logger: log},
			})
			if err != nil {
				return &exitError{code: report.ExitAborted, err: err}
			}
			if err := g.print(res); err != nil {
				return err
			}
			if code := res.ExitCode(); code != report.ExitPass {
				return &exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "scenario file giving the bus and checker settings")
	cmd.Flags().Int("max-stall-cycles", 0, "HREADY low cycles before a stall timeout")
	bindFlag(v, "max_stall_cycles", cmd.Flags().Lookup("max-stall-cycles"))
	return cmd
}

func historyCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the regression history",
	}
	open := func() (*history.Store, error) {
		if g.historyPath == "" {
			return nil, usageErr(errors.New("--history is required"))
		}
		s, err := history.Open(g.historyPath)
		if err != nil {
			return nil, usageErr(err)
		}
		return s, nil
	}

	var name string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored runs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			recs, err := s.List(name)
			if err != nil {
				return err
			}
			if g.jsonOut {
				b, err := json.MarshalIndent(recs, "", "  ")
				if err != nil {
					return err
				}
				fmt.Println(string(b))
				return nil
			}
			p := report.NewPrinter()
			for _, rec := range recs {
				p.PrintRecord(rec)
			}
			return nil
		},
	}
	list.Flags().StringVar(&name, "scenario", "", "only runs of this scenario")

	show := &cobra.Command{
		Use:   "show ID",
		Short: "Show one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			rec, err := s.Get(args[0])
			if err != nil {
				return usageErr(err)
			}
			b, err := json.MarshalIndent(rec, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(b))
			return nil
		},
	}

	var keep int
	prune := &cobra.Command{
		Use:   "prune",
		Short: "Delete all but the newest runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := open()
			if err != nil {
				return err
			}
			defer s.Close()
			n, err := s.Prune(keep)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d runs\n", n)
			return nil
		},
	}
	prune.Flags().IntVar(&keep, "keep", 100, "number of runs to keep")

	cmd.AddCommand(list, show, prune)
	return cmd
}
