package main

import (
	"context"
	"fmt"

	"FinPolicy/internal/di"
	"FinPolicy/internal/domain/repository"
	"FinPolicy/internal/registry"
	applogger "FinPolicy/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	verifyModel   string
	verifyVersion string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check a stored model version for integrity and quality",
	Long: `Reads the version straight from storage, recomputes its checksum, checks
the network structure and flags stale or weak models. Exits non-zero when a
hard check fails.`,
	Example: `  finpolicy verify --model finpolicy --version latest`,
	RunE:    runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().StringVar(&verifyModel, "model", "", "model name (defaults to inference.model_name)")
	verifyCmd.Flags().StringVar(&verifyVersion, "version", registry.Latest, "version to check")
}

func runVerify(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if verifyModel == "" {
		verifyModel = cfg.Inference.ModelName
	}
	l, err := applogger.New(&cfg.Log)
	if err != nil {
		return err
	}
	store, err := di.ProvideStore(cfg, l)
	if err != nil {
		return err
	}
	reg := di.ProvideRegistry(cfg, store, nil, nil, repository.NopMetrics{}, l)
	defer func() { _ = reg.Close() }()

	rep, err := reg.VerifyModelIntegrity(context.Background(), verifyModel, verifyVersion)
	if err != nil {
		return err
	}
	if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
		return err
	}
	if !rep.Valid {
		return fmt.Errorf("%d integrity check(s) failed", len(rep.Errors))
	}
	return nil
}
