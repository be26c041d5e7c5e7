package main

import (
	"context"
	"time"

	"FinPolicy/internal/di"
	"FinPolicy/internal/domain/models"
	"FinPolicy/internal/domain/repository"
	"FinPolicy/internal/nn"
	applogger "FinPolicy/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	initKind    string
	initPromote bool
)

var initModelCmd = &cobra.Command{
	Use:   "init-model",
	Short: "Store a freshly initialized network as a new version",
	Long: `Builds an untrained network with the scheduler's shape and seed and saves
it to the registry, so inference has something to serve before the first
retrain cycle.`,
	Example: `  finpolicy init-model --kind cppo --promote`,
	RunE:    runInitModel,
}

func init() {
	rootCmd.AddCommand(initModelCmd)
	initModelCmd.Flags().StringVar(&initKind, "kind", "", "ppo or cppo (defaults to scheduler.initial_kind)")
	initModelCmd.Flags().BoolVar(&initPromote, "promote", false, "promote the new version")
}

func runInitModel(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	kind := cfg.Scheduler.InitialKind
	if initKind != "" {
		kind = models.ModelKind(initKind)
	}
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return err
	}

	net, err := nn.New(
		nn.WithKind(kind),
		nn.WithInputDim(cfg.Scheduler.InputDim),
		nn.WithHiddenDims(cfg.Scheduler.HiddenDims...),
		nn.WithSeed(cfg.Scheduler.Seed),
	)
	if err != nil {
		return err
	}
	w, err := net.ToWeights(models.ModelMetadata{TrainingDate: time.Now().UTC()})
	if err != nil {
		return err
	}

	store, err := di.ProvideStore(cfg, l)
	if err != nil {
		return err
	}
	reg := di.ProvideRegistry(cfg, store, nil, nil, repository.NopMetrics{}, l)
	defer func() { _ = reg.Close() }()

	ctx := context.Background()
	ref, err := reg.SaveModel(ctx, cfg.Scheduler.ModelName, w)
	if err != nil {
		return err
	}
	if initPromote {
		if err := reg.Promote(ctx, ref.Name, ref.Version, 0); err != nil {
			return err
		}
	}
	return printJSON(cmd.OutOrStdout(), ref)
}
