package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/AzielCF/az-mediacache/mediacache/application"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache totals",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			stats, err := rt.cache.Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, stats)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a cached entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		meta, _ := cmd.Flags().GetBool("meta")
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			entry, ok, err := rt.cache.Get(ctx, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("entry %s not found", args[0])
			}
			if meta {
				entry = entry.Meta()
			}
			return printJSON(cmd, entry)
		})
	},
}

var putCmd = &cobra.Command{
	Use:   "put <file>",
	Short: "Store a local file as a cache entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		owner, _ := cmd.Flags().GetString("owner")
		group, _ := cmd.Flags().GetString("group")
		label, _ := cmd.Flags().GetString("label")
		remoteRef, _ := cmd.Flags().GetString("remote-ref")
		if id == "" {
			id = uuid.NewString()
		}

		body, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}

		return withRuntime(func(ctx context.Context, rt *runtime) error {
			payload, err := rt.normalizer.Normalize(body, "")
			if err != nil {
				return err
			}
			entry, err := rt.cache.Store(ctx, application.StoreRequest{
				ID:        id,
				OwnerID:   owner,
				GroupID:   group,
				Payload:   payload,
				Label:     label,
				RemoteRef: remoteRef,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stored %s (%s)\n", entry.ID, humanize.IBytes(uint64(entry.SizeBytes)))
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete one entry, or every entry of an owner or group",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		owner, _ := cmd.Flags().GetString("owner")
		group, _ := cmd.Flags().GetString("group")

		return withRuntime(func(ctx context.Context, rt *runtime) error {
			var (
				n   int
				err error
			)
			switch {
			case len(args) == 1:
				n, err = rt.cache.Delete(ctx, args[0])
			case owner != "":
				n, err = rt.cache.DeleteByOwner(ctx, owner)
			case group != "":
				n, err = rt.cache.DeleteByGroup(ctx, group)
			default:
				return fmt.Errorf("pass an id, --owner or --group")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
			return nil
		})
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cache entry",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			if err := rt.session.SignOut(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		})
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run an eviction pass now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withRuntime(func(ctx context.Context, rt *runtime) error {
			plan, err := rt.cache.Prune(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd, plan)
		})
	},
}

func init() {
	getCmd.Flags().Bool("meta", false, "omit the payload")

	putCmd.Flags().String("id", "", "entry id (generated when empty)")
	putCmd.Flags().String("owner", "", "owner id")
	putCmd.Flags().String("group", "", "group id")
	putCmd.Flags().String("label", "", "free text label")
	putCmd.Flags().String("remote-ref", "", "remote reference of the authoritative copy")
	_ = putCmd.MarkFlagRequired("owner")
	_ = putCmd.MarkFlagRequired("group")

	deleteCmd.Flags().String("owner", "", "delete every entry of this owner")
	deleteCmd.Flags().String("group", "", "delete every entry of this group")

	rootCmd.AddCommand(statsCmd, getCmd, putCmd, deleteCmd, clearCmd, pruneCmd)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
