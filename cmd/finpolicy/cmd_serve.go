package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"FinPolicy/internal/di"

	"github.com/spf13/cobra"
)

var serveNoScheduler bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, the outcome consumer and the retrain scheduler",
	Example: `  finpolicy serve --config configs/config.yaml
  finpolicy serve --no-scheduler`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveNoScheduler, "no-scheduler", false,
		"do not run scheduled retrain cycles on this replica")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return err
	}
	if serveNoScheduler {
		app.DisableScheduler()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return app.Run(ctx)
}
