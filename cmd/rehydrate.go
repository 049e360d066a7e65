package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/AzielCF/az-mediacache/mediacache/application"
)

var rehydrateCmd = &cobra.Command{
	Use:   "rehydrate <remote-ref>...",
	Short: "Download remote references into the cache",
	Long: `Queues every reference on the background rehydrator and waits for the
queue to drain. With --now a single reference is fetched synchronously and
its payload (or the reference itself on failure) is printed.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		owner, _ := cmd.Flags().GetString("owner")
		group, _ := cmd.Flags().GetString("group")
		now, _ := cmd.Flags().GetBool("now")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		return withRuntime(func(ctx context.Context, rt *runtime) error {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			if now {
				fmt.Fprintln(cmd.OutOrStdout(), rt.rehydrator.RehydrateNow(ctx, id, args[0], owner, group))
				return nil
			}

			for i, ref := range args {
				taskID := application.RefID(ref)
				if id != "" && i == 0 {
					taskID = id
				}
				if !rt.rehydrator.Enqueue(taskID, ref, owner, group) {
					cmd.PrintErrf("skipped %s\n", ref)
				}
			}
			if err := rt.rehydrator.WaitIdle(ctx); err != nil {
				return err
			}
			return printJSON(cmd, rt.rehydrator.Stats())
		})
	},
}

func init() {
	rehydrateCmd.Flags().String("id", "", "entry id for the first reference (derived from the reference when empty)")
	rehydrateCmd.Flags().String("owner", "", "owner id")
	rehydrateCmd.Flags().String("group", "", "group id")
	rehydrateCmd.Flags().Bool("now", false, "fetch synchronously, bypassing the queue")
	rehydrateCmd.Flags().Duration("timeout", 5*time.Minute, "give up waiting after this long")
	_ = rehydrateCmd.MarkFlagRequired("owner")
	_ = rehydrateCmd.MarkFlagRequired("group")

	rootCmd.AddCommand(rehydrateCmd)
}
