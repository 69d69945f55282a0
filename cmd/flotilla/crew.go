package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harborworks/flotilla/pkg/types"
)

var crewCmd = &cobra.Command{
	Use:   "crew",
	Short: "Inspect and prepare the fleet roster",
}

var crewListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sailors",
	RunE: func(cmd *cobra.Command, args []string) error {
		initCLILogging()

		asJSON, _ := cmd.Flags().GetBool("json")
		members, err := newCaptainClient(cmd).Crew(context.Background())
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(members)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATUS\tCPUS\tGPUS\tSEEN")
		for _, m := range members {
			seen := "never"
			if m.SeenAgo != nil {
				seen = fmt.Sprintf("%ds ago", *m.SeenAgo)
			}
			fmt.Fprintf(w, "%s\t%s\t%d/%d\t%d/%d\t%s\n",
				m.Name,
				m.DerivedStatus,
				m.UsedCPUs, m.CPUs,
				m.UsedGPUs, len(m.GPUs),
				seen,
			)
		}
		return w.Flush()
	},
}

var crewPreregCmd = &cobra.Command{
	Use:   "prereg NAME IP",
	Short: "Preregister a sailor",
	Long: `Add a sailor to the roster ahead of its first registration. A sailor
that is not preregistered is refused by the captain.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		initCLILogging()

		services, _ := cmd.Flags().GetStringSlice("services")
		maxTime, _ := cmd.Flags().GetString("max-time")

		req := types.PreregRequest{
			Name:     args[0],
			IP:       args[1],
			Services: services,
			MaxTime:  maxTime,
		}
		if err := newCaptainClient(cmd).Prereg(context.Background(), req); err != nil {
			return err
		}

		fmt.Printf("Preregistered sailor %s (%s)\n", args[0], args[1])
		return nil
	},
}

func init() {
	crewCmd.AddCommand(crewListCmd)
	crewCmd.AddCommand(crewPreregCmd)

	crewListCmd.Flags().Bool("json", false, "JSON output")

	crewPreregCmd.Flags().StringSlice("services", nil, "Service tags the sailor advertises")
	crewPreregCmd.Flags().String("max-time", "", "Per-chore time limit DD-hh:mm:ss")
}
