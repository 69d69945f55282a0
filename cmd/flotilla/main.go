package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/harborworks/flotilla/pkg/client"
	"github.com/harborworks/flotilla/pkg/log"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "flotilla",
	Short: "Flotilla - lightweight chore orchestration for a fleet of compute nodes",
	Long: `Flotilla schedules user-submitted scripts (chores) across a fleet of
compute nodes (sailors) from a single captain process.

The captain owns assignment, per-user budgets and cleanup; each sailor
runs chores as local processes under the submitting user's identity.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Flotilla version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("captain", "", "Captain address host:port (default: flag-file discovery)")

	rootCmd.AddCommand(captainCmd)
	rootCmd.AddCommand(sailorCmd)
	rootCmd.AddCommand(choreCmd)
	rootCmd.AddCommand(crewCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(applyCmd)
}

// initCLILogging keeps client commands quiet unless something is wrong
func initCLILogging() {
	log.Init(log.Config{Level: log.WarnLevel, JSONOutput: false, Output: os.Stderr})
}

// newCaptainClient resolves the target captain: the --captain override,
// else flag-file discovery.
func newCaptainClient(cmd *cobra.Command) *client.CaptainClient {
	addr, _ := cmd.Flags().GetString("captain")
	if addr == "" {
		addr = client.Discover(context.Background())
	}
	return client.NewCaptainClient(addr)
}

// printJSON writes v as indented JSON on stdout
func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
