package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harborworks/flotilla/pkg/client"
	"github.com/harborworks/flotilla/pkg/log"
	"github.com/harborworks/flotilla/pkg/metrics"
	"github.com/harborworks/flotilla/pkg/runtime"
	"github.com/harborworks/flotilla/pkg/sailor"
	"github.com/harborworks/flotilla/pkg/types"
)

var sailorCmd = &cobra.Command{
	Use:   "sailor",
	Short: "Run and configure a sailor node",
}

var sailorSetupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Write the node configuration",
	Long: `Write resources.json for this node. CPU count and RAM default to
host detection; GPUs are declared explicitly as type:vramMB pairs.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		captainHost, _ := cmd.Flags().GetString("captain-host")
		captainPort, _ := cmd.Flags().GetInt("captain-port")
		port, _ := cmd.Flags().GetInt("port")
		cpus, _ := cmd.Flags().GetInt("cpus")
		gpuSpec, _ := cmd.Flags().GetString("gpus")
		ram, _ := cmd.Flags().GetInt64("ram")
		dataDir, _ := cmd.Flags().GetString("data-dir")

		gpus, err := parseGPUs(gpuSpec)
		if err != nil {
			return err
		}

		cfg := sailor.Config{
			Name:        name,
			CaptainHost: captainHost,
			CaptainPort: captainPort,
			Port:        port,
			CPUs:        cpus,
			GPUs:        gpus,
			RAM:         ram,
		}.Detect()

		if err := cfg.Save(dataDir); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}

		fmt.Printf("Wrote %s\n", sailor.ConfigPath(dataDir))
		fmt.Printf("  Name:    %s\n", cfg.Name)
		fmt.Printf("  Captain: %s\n", cfg.CaptainAddr())
		fmt.Printf("  CPUs:    %d\n", cfg.CPUs)
		fmt.Printf("  GPUs:    %d\n", len(cfg.GPUs))
		fmt.Printf("  RAM:     %d\n", cfg.RAM)
		return nil
	},
}

var sailorServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sailor agent",
	Long: `Run the node agent: recover the persisted running table, register
with the captain, heartbeat every 500 ms and serve the launch/cancel
endpoints.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, _ := cmd.Flags().GetString("data-dir")

		log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

		logger := log.WithComponent("sailor")

		cfg, err := sailor.LoadConfig(dataDir)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("port") {
			cfg.Port, _ = cmd.Flags().GetInt("port")
		}

		captainClient := client.NewCaptainClient(cfg.CaptainAddr())
		captainClient.SetTimeout(5 * time.Second)

		metrics.SetVersion(Version)
		metrics.SetCriticalComponents("runtime", "heartbeat")

		engine := runtime.NewEngine(cfg.Name, dataDir, captainClient)
		engine.Recover()
		metrics.RegisterComponent("runtime", true, "")

		agent := sailor.NewAgent(cfg, captainClient)
		if err := agent.Register(context.Background()); err != nil {
			// the captain may simply not be up yet; heartbeats take over
			logger.Warn().Err(err).Msg("Registration failed, continuing")
		}
		agent.Start()

		server := sailor.NewServer(engine)
		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(fmt.Sprintf(":%d", cfg.Port))
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
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Agent API shutdown failed")
		}
		agent.Stop()
		return nil
	},
}

func init() {
	sailorCmd.AddCommand(sailorSetupCmd)
	sailorCmd.AddCommand(sailorServeCmd)

	sailorSetupCmd.Flags().String("name", "", "Unique sailor name (required)")
	sailorSetupCmd.Flags().String("captain-host", "127.0.0.1", "Captain host")
	sailorSetupCmd.Flags().Int("captain-port", 8000, "Captain port")
	sailorSetupCmd.Flags().Int("port", sailor.DefaultPort, "Agent listen port")
	sailorSetupCmd.Flags().Int("cpus", 0, "CPU count (0 = detect)")
	sailorSetupCmd.Flags().String("gpus", "", "GPUs as type:vramMB,... (e.g. A100:40960,A100:40960)")
	sailorSetupCmd.Flags().Int64("ram", 0, "RAM in bytes (0 = detect)")
	sailorSetupCmd.Flags().String("data-dir", "./flotilla-data", "Directory for node state")
	_ = sailorSetupCmd.MarkFlagRequired("name")

	sailorServeCmd.Flags().Int("port", sailor.DefaultPort, "Agent listen port (overrides config)")
	sailorServeCmd.Flags().String("data-dir", "./flotilla-data", "Directory for node state")
}

// parseGPUs decodes the type:vramMB,... flag form
func parseGPUs(spec string) ([]types.GPU, error) {
	if spec == "" {
		return nil, nil
	}

	var gpus []types.GPU
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kind, vramStr, found := strings.Cut(part, ":")
		if !found || kind == "" {
			return nil, fmt.Errorf("invalid gpu %q, expected type:vramMB", part)
		}
		vram, err := strconv.ParseInt(vramStr, 10, 64)
		if err != nil || vram < 0 {
			return nil, fmt.Errorf("invalid gpu vram in %q", part)
		}
		gpus = append(gpus, types.GPU{Type: kind, VRAM: vram})
	}
	return gpus, nil
}
