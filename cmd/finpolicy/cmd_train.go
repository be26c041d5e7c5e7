package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"FinPolicy/internal/di"
	"FinPolicy/internal/domain/repository"
	internalrepo "FinPolicy/internal/repository"
	"FinPolicy/internal/scheduler"
	applogger "FinPolicy/pkg/logger"
	"FinPolicy/pkg/util"

	"github.com/spf13/cobra"
)

var (
	trainSamples string
	trainOnce    bool
	trainSince   string
)

var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "Run one retrain cycle and print its summary",
	Long: `Run one collect, train, evaluate and promote cycle.

Samples come from ClickHouse when it is configured. --samples replays a JSON
array or newline-delimited JSON file instead. --since moves the sample window
start; it takes a timestamp, a date, unix seconds or a lookback like 72h.`,
	Example: `  finpolicy train --once
  finpolicy train --once --samples outcomes.jsonl
  finpolicy train --since 2024-10-01`,
	RunE: runTrain,
}

func init() {
	rootCmd.AddCommand(trainCmd)
	trainCmd.Flags().StringVar(&trainSamples, "samples", "", "replay training samples from a file")
	trainCmd.Flags().BoolVar(&trainOnce, "once", true, "run a single cycle and exit")
	trainCmd.Flags().StringVar(&trainSince, "since", "", "only train on samples newer than this")
}

func runTrain(cmd *cobra.Command, _ []string) error {
	if !trainOnce {
		return errors.New("continuous training runs under serve; use --once here")
	}
	var since time.Time
	if trainSince != "" {
		t, ok := util.ParseSince(trainSince, time.Now())
		if !ok {
			return fmt.Errorf("invalid --since %q", trainSince)
		}
		since = t
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Registry.SkipPreload = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cfg.Scheduler.CycleTimeout)
	defer cancel()

	var sched *scheduler.Scheduler
	if trainSamples == "" {
		app, err := di.InitializeApp(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = app.Shutdown() }()
		sched = app.Scheduler()
		if _, err := sched.RestoreWindow(ctx); err != nil {
			return err
		}
	} else {
		l, err := applogger.New(&cfg.Log)
		if err != nil {
			return err
		}
		samples, err := internalrepo.LoadSampleFile(trainSamples)
		if err != nil {
			return err
		}
		mem := internalrepo.NewMemorySampleStore()
		if err := mem.StoreSamples(ctx, samples); err != nil {
			return err
		}
		store, err := di.ProvideStore(cfg, l)
		if err != nil {
			return err
		}
		reg := di.ProvideRegistry(cfg, store, nil, nil, repository.NopMetrics{}, l)
		defer func() { _ = reg.Close() }()
		sched = di.ProvideScheduler(cfg, mem, reg, di.ProvideTrainer(cfg, l), nil, nil, repository.NopMetrics{}, l)
		l.Info("samples loaded", applogger.String("file", trainSamples), applogger.Int("rows", mem.Len()))
	}

	if !since.IsZero() {
		sched.SetLastWindow(since)
	}
	sum, err := sched.RunCycle(ctx)
	if sum != nil {
		if perr := printJSON(cmd.OutOrStdout(), sum); perr != nil {
			return perr
		}
	}
	if err != nil {
		return fmt.Errorf("retrain cycle: %w", err)
	}
	return nil
}
