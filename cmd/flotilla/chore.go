package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/harborworks/flotilla/pkg/types"
)

var choreCmd = &cobra.Command{
	Use:   "chore",
	Short: "Submit and manage chores",
}

var choreSubmitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a chore",
	RunE: func(cmd *cobra.Command, args []string) error {
		initCLILogging()

		script, _ := cmd.Flags().GetString("script")
		service, _ := cmd.Flags().GetString("service")
		cpus, _ := cmd.Flags().GetInt("cpus")
		gpus, _ := cmd.Flags().GetInt("gpus")
		owner, _ := cmd.Flags().GetInt("owner")

		if !cmd.Flags().Changed("owner") {
			owner = os.Getuid()
		}

		ownerVal := types.FlexInt(owner)
		cpusVal := types.FlexInt(cpus)
		gpusVal := types.FlexInt(gpus)
		req := types.SubmitChoreRequest{
			Script:  script,
			Service: service,
			CPUs:    &cpusVal,
			GPUs:    &gpusVal,
			Owner:   &ownerVal,
		}

		choreID, err := newCaptainClient(cmd).SubmitChore(context.Background(), req)
		if err != nil {
			return err
		}

		fmt.Printf("Submitted chore %s\n", choreID)
		return nil
	},
}

var choreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chores",
	RunE: func(cmd *cobra.Command, args []string) error {
		initCLILogging()

		owner, _ := cmd.Flags().GetString("owner")
		all, _ := cmd.Flags().GetBool("all")
		asJSON, _ := cmd.Flags().GetBool("json")

		chores, err := newCaptainClient(cmd).Consult(context.Background(), owner, all)
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(chores)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "CHORE ID\tOWNER\tSTATUS\tSAILOR\tSTART\tREASON")
		for _, chore := range chores {
			fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
				chore.ChoreID,
				int(chore.Owner),
				chore.Status,
				orDash(chore.Sailor),
				formatUnix(chore.Start),
				orDash(chore.Reason),
			)
		}
		return w.Flush()
	},
}

var choreCancelCmd = &cobra.Command{
	Use:   "cancel CHORE_ID",
	Short: "Cancel a chore",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		initCLILogging()

		reason, _ := cmd.Flags().GetString("reason")
		if err := newCaptainClient(cmd).CancelChore(context.Background(), args[0], reason); err != nil {
			return err
		}

		fmt.Printf("Cancel requested for chore %s\n", args[0])
		return nil
	},
}

func init() {
	choreCmd.AddCommand(choreSubmitCmd)
	choreCmd.AddCommand(choreListCmd)
	choreCmd.AddCommand(choreCancelCmd)

	choreSubmitCmd.Flags().String("script", "", "Path of the script to run (required)")
	choreSubmitCmd.Flags().String("service", "", "Restrict placement to sailors advertising this service")
	choreSubmitCmd.Flags().Int("cpus", 1, "CPUs to reserve")
	choreSubmitCmd.Flags().Int("gpus", 0, "GPUs to reserve")
	choreSubmitCmd.Flags().Int("owner", 0, "Owner uid (default: invoking user)")
	_ = choreSubmitCmd.MarkFlagRequired("script")

	choreListCmd.Flags().String("owner", "", "List chores of this uid")
	choreListCmd.Flags().Bool("all", false, "List every chore")
	choreListCmd.Flags().Bool("json", false, "JSON output")

	choreCancelCmd.Flags().String("reason", "", "Reason recorded on the chore")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatUnix(ts int64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(ts, 0).Format("2006-01-02 15:04:05")
}
