package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ruachtech/secrets-sdk/pkg/client"
)

func newCreateCmd() *cobra.Command {
	var (
		key        string
		value      string
		note       string
		projectIDs []string
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a new secret",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			sdk, err := newClient(ctx)
			if err != nil {
				return err
			}
			defer sdk.Close()

			secret, err := sdk.Create(ctx, client.CreateRequest{
				Key:        key,
				Value:      value,
				Note:       note,
				ProjectIDs: projectIDs,
			})
			if err != nil {
				logger.Error("create failed", "error", err)
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

	c.Flags().StringVar(&key, "key", "", "secret key (required)")
	c.Flags().StringVar(&value, "value", "", "secret value (required)")
	c.Flags().StringVar(&note, "note", "", "optional note")
	c.Flags().StringSliceVar(&projectIDs, "project-id", nil, "project ID to attach the secret to (repeatable)")
	_ = c.MarkFlagRequired("key")
	_ = c.MarkFlagRequired("value")

	return c
}
