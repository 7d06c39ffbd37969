// Package suzuka holds the suzuka command line.
package suzuka

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/movementlabsxyz/suzuka/internal/config"
)

const (
	logLevelFlag  = "log-level"
	logFormatFlag = "log-format"
)

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	v := viper.New()
	root := &cobra.Command{
		Use:           "suzuka",
		Short:         "Partial full node for the Movement L2",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.SetDefaults(v); err != nil {
				return err
			}
			return setupLogger(v.GetString(logLevelFlag), v.GetString(logFormatFlag))
		},
	}

	flags := root.PersistentFlags()
	flags.String(logLevelFlag, "info", "Log level (debug, info, warn, error)")
	flags.String(logFormatFlag, "text", "Log format (text, json)")
	flags.String("da-hostname", config.DefaultDAHostname, "Light node hostname")
	flags.Uint16("da-port", config.DefaultDAPort, "Light node port")
	flags.String("blob-encoding", "binary", "DA blob encoding (binary, zstd, json)")
	flags.String("bridge-module-address", "", "Address the bridge modules are published under")
	flags.String("bridge-signer", "", "Account that signs bridge transactions")
	flags.StringSlice("bridge-rpc-urls", nil, "Bridge chain REST endpoints")
	cobra.CheckErr(bindFlags(v, flags, map[string]string{
		logLevelFlag:            logLevelFlag,
		logFormatFlag:           logFormatFlag,
		"da.hostname":           "da-hostname",
		"da.port":               "da-port",
		"da.blob-encoding":      "blob-encoding",
		"bridge.module-address": "bridge-module-address",
		"bridge.signer":         "bridge-signer",
		"bridge.rpc-urls":       "bridge-rpc-urls",
	}))

	root.AddCommand(
		runCommand(v),
		devnetCommand(v),
		txCommand(v),
		bridgeCommand(v),
	)
	return root
}

// loadConfig binds the command's own flags and builds the validated configuration. Flags are bound
// here rather than at construction because several commands share config keys.
func loadConfig(v *viper.Viper, cmd *cobra.Command, keys map[string]string) (config.Config, error) {
	if err := bindFlags(v, cmd.Flags(), keys); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// bindFlags maps config keys onto flag names.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) error {
	for key, name := range keys {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

func setupLogger(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	switch strings.ToLower(format) {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("invalid log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
