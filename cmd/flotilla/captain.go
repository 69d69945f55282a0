package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harborworks/flotilla/pkg/api"
	"github.com/harborworks/flotilla/pkg/captain"
	"github.com/harborworks/flotilla/pkg/client"
	"github.com/harborworks/flotilla/pkg/log"
	"github.com/harborworks/flotilla/pkg/metrics"
	"github.com/harborworks/flotilla/pkg/reconciler"
	"github.com/harborworks/flotilla/pkg/scheduler"
)

var captainCmd = &cobra.Command{
	Use:   "captain",
	Short: "Run the captain",
}

var captainServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the captain daemon",
	Long: `Run the captain: the HTTP API, the periodic assignment pass and the
reconciliation/cleanup loop. State is persisted as JSON snapshots under
the data directory; a discovery flag file is written on start and
removed on shutdown.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

		logger := log.WithComponent("captain")

		cfg := captain.DefaultConfig().FromEnv()
		cfg.Port = port
		cfg.DataDir = dataDir

		cpt, err := captain.NewCaptain(cfg, client.NewSailorClient())
		if err != nil {
			return fmt.Errorf("failed to create captain: %w", err)
		}

		metrics.SetVersion(Version)
		metrics.SetCriticalComponents("scheduler", "reconciler")

		sched := scheduler.NewScheduler(cpt)
		sched.Start()

		recon := reconciler.NewReconciler(cpt)
		recon.Start()

		collector := metrics.NewCollector(cpt.MetricsSnapshot)
		collector.Start()

		if err := cpt.WriteServeFlag(); err != nil {
			logger.Warn().Err(err).Msg("Failed to write discovery flag file")
		}

		apiServer := api.NewServer(cpt)
		errCh := make(chan error, 1)
		go func() {
			errCh <- apiServer.Start(fmt.Sprintf(":%d", port))
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("Shutting down")
		case err := <-errCh:
			if err != nil {
				return err
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("API shutdown failed")
		}

		sched.Stop()
		recon.Stop()
		collector.Stop()
		return cpt.Shutdown()
	},
}

func init() {
	captainCmd.AddCommand(captainServeCmd)

	captainServeCmd.Flags().Int("port", 8000, "API listen port")
	captainServeCmd.Flags().String("data-dir", "./flotilla-data", "Directory for persisted state")
}
