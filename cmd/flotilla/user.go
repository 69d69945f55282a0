package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/harborworks/flotilla/pkg/types"
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage per-user policy records",
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user records",
	RunE: func(cmd *cobra.Command, args []string) error {
		initCLILogging()

		asJSON, _ := cmd.Flags().GetBool("json")
		users, err := newCaptainClient(cmd).Users(context.Background())
		if err != nil {
			return err
		}

		if asJSON {
			return printJSON(users)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "UID\tNAME\tTIME LIMIT\tCHORES LIMIT\tNOTES")
		for _, u := range users {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				u.UID,
				orDash(u.Name),
				orDash(u.TimeLimit),
				int(u.ChoresLimit),
				orDash(u.Notes),
			)
		}
		return w.Flush()
	},
}

var userSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Create or update a user record",
	Long: `Merge the given fields into a user record. Only flags that are
actually passed are changed; everything else keeps its stored value.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		initCLILogging()

		uid, _ := cmd.Flags().GetString("uid")
		req := types.UpsertUserRequest{UID: types.UserID(uid)}

		if cmd.Flags().Changed("name") {
			v, _ := cmd.Flags().GetString("name")
			req.Name = &v
		}
		if cmd.Flags().Changed("time-limit") {
			v, _ := cmd.Flags().GetString("time-limit")
			req.TimeLimit = &v
		}
		if cmd.Flags().Changed("chores-limit") {
			v, _ := cmd.Flags().GetInt("chores-limit")
			limit := types.FlexInt(v)
			req.ChoresLimit = &limit
		}
		if cmd.Flags().Changed("notes") {
			v, _ := cmd.Flags().GetString("notes")
			req.Notes = &v
		}

		if err := newCaptainClient(cmd).UpsertUser(context.Background(), req); err != nil {
			return err
		}

		fmt.Printf("Updated user %s\n", uid)
		return nil
	},
}

func init() {
	userCmd.AddCommand(userListCmd)
	userCmd.AddCommand(userSetCmd)

	userListCmd.Flags().Bool("json", false, "JSON output")

	userSetCmd.Flags().String("uid", "", "Numeric uid (required)")
	userSetCmd.Flags().String("name", "", "Display name")
	userSetCmd.Flags().String("time-limit", "", "Cumulative budget DD-hh:mm:ss")
	userSetCmd.Flags().Int("chores-limit", 0, "Max concurrent active chores (0 = unlimited)")
	userSetCmd.Flags().String("notes", "", "Free-form notes")
	_ = userSetCmd.MarkFlagRequired("uid")
}
