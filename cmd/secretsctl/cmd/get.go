package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <secret-id>",
		Short: "Fetch and decrypt a single secret by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			c, err := newClient(ctx)
			if err != nil {
				return err
			}
			defer c.Close()

			secret, err := c.GetByID(ctx, args[0])
			if err != nil {
				logger.Error("get failed", "id", args[0], "error", err)
				return err
			}

			out, err := json.MarshalIndent(secret, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
}
