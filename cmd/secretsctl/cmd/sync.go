package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newSyncCmd() *cobra.Command {
	var since string

	c := &cobra.Command{
		Use:   "sync",
		Short: "Fetch every secret changed since a given time",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			lastSynced := time.Time{}
			if since != "" {
				t, err := time.Parse(time.RFC3339, since)
				if err != nil {
					return fmt.Errorf("invalid --since value: %w", err)
				}
				lastSynced = t
			}

			sdk, err := newClient(ctx)
			if err != nil {
				return err
			}
			defer sdk.Close()

			secrets, err := sdk.Sync(ctx, lastSynced)
			if err != nil {
				logger.Error("sync failed", "error", err)
				return err
			}

			out, err := json.MarshalIndent(secrets, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}

	c.Flags().StringVar(&since, "since", "", "RFC3339 timestamp; omit to fetch everything")
	return c
}
