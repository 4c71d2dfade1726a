// Package cmd implements the secretsctl subcommands.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ruachtech/secrets-sdk/internal/region"
	"github.com/ruachtech/secrets-sdk/pkg/client"
)

var (
	v      = viper.New()
	logger *slog.Logger
)

// Execute builds and runs the root command for version.
func Execute(version string) error {
	root := newRootCmd(version)
	return root.Execute()
}

func newRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "secretsctl",
		Short:         "Fetch, sync, and create secrets from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initLogger()
		},
	}

	flags := root.PersistentFlags()
	flags.String("token", "", "access token (env SECRETS_TOKEN)")
	flags.String("region", "us", "named region: us, eu, or a name from --region-file")
	flags.String("region-file", "", "path to a YAML file of region overrides")
	flags.String("state-file", "", "path to a state file for caching bearer/org-key between runs")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("log-level", "info", "log level: debug, info, warn, error")

	_ = v.BindPFlag("token", flags.Lookup("token"))
	_ = v.BindPFlag("region", flags.Lookup("region"))
	_ = v.BindPFlag("region-file", flags.Lookup("region-file"))
	_ = v.BindPFlag("state-file", flags.Lookup("state-file"))
	_ = v.BindPFlag("log-format", flags.Lookup("log-format"))
	_ = v.BindPFlag("log-level", flags.Lookup("log-level"))

	v.SetEnvPrefix("secrets")
	v.AutomaticEnv()

	root.AddCommand(newLoginCmd(), newGetCmd(), newSyncCmd(), newCreateCmd())
	return root
}

func initLogger() error {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(v.GetString("log-level"))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}
	if v.GetString("log-format") == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	logger = slog.New(handler)
	return nil
}

// resolveRegion looks up the --region name, consulting --region-file first
// when set.
func resolveRegion() (region.Region, error) {
	name := v.GetString("region")

	if file := v.GetString("region-file"); file != "" {
		regions, err := region.LoadOverrides(file)
		if err != nil {
			return region.Region{}, err
		}
		if r, ok := regions[name]; ok {
			return r, nil
		}
		return region.Region{}, fmt.Errorf("region %q not found in %s", name, file)
	}

	r, ok := region.Named(name)
	if !ok {
		return region.Region{}, fmt.Errorf("unknown region %q (use --region-file to define one)", name)
	}
	return r, nil
}

// newClient builds a Client from the resolved persistent flags.
func newClient(ctx context.Context) (*client.Client, error) {
	token := v.GetString("token")
	if token == "" {
		return nil, fmt.Errorf("--token (or SECRETS_TOKEN) is required")
	}

	reg, err := resolveRegion()
	if err != nil {
		return nil, err
	}

	var opts []client.Option
	if sf := v.GetString("state-file"); sf != "" {
		opts = append(opts, client.WithStateFile(sf))
	}

	return client.New(ctx, token, reg, opts...)
}
