package suzuka

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/movementlabsxyz/suzuka/internal/codec"
	"github.com/movementlabsxyz/suzuka/internal/loadgen"
)

const (
	nodeURLFlag        = "node-url"
	countFlag          = "count"
	maxConcurrencyFlag = "max-concurrency"
	maxRetriesFlag     = "max-retries"
	progressFlag       = "progress"
	followFlag         = "follow"
	intervalFlag       = "interval"
	chainIDFlag        = "chain-id"
)

func txCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "tx",
		Short: "Submits transactions to a running node",
	}
	c.PersistentFlags().String(nodeURLFlag, loadgen.DefaultURL, "Node API URL")
	c.PersistentFlags().Uint(maxRetriesFlag, loadgen.DefaultMaxRetries, "Attempts per request")
	c.AddCommand(txLoadCommand(v), txHeadCommand())
	return c
}

func generator(cmd *cobra.Command, cfg loadgen.Config) (*loadgen.Generator, error) {
	flags := cmd.Flags()
	url, err := flags.GetString(nodeURLFlag)
	if err != nil {
		return nil, err
	}
	maxRetries, err := flags.GetUint(maxRetriesFlag)
	if err != nil {
		return nil, err
	}
	cfg.URL = url
	cfg.MaxRetries = maxRetries
	return loadgen.New(cfg), nil
}

func txLoadCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "load",
		Short: "Signs and submits transactions from fresh accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			count, err := flags.GetUint64(countFlag)
			if err != nil {
				return err
			}
			concurrency, err := flags.GetInt(maxConcurrencyFlag)
			if err != nil {
				return err
			}
			progress, err := flags.GetBool(progressFlag)
			if err != nil {
				return err
			}
			chainID, err := flags.GetUint8(chainIDFlag)
			if err != nil {
				return err
			}
			format, err := codec.ParseFormat(v.GetString("da.blob-encoding"))
			if err != nil {
				return err
			}

			g, err := generator(cmd, loadgen.Config{
				Count:          count,
				MaxConcurrency: concurrency,
				Codec:          codec.New(format),
				ChainID:        chainID,
				Progress:       progress,
			})
			if err != nil {
				return err
			}
			start := time.Now()
			res, err := g.Run(cmd.Context())
			if err != nil {
				return err
			}
			slog.Info("Submitted transactions", "accepted", res.Accepted, "rejected", fmt.Sprint(res.Rejected), "elapsed", time.Since(start))
			return nil
		},
	}
	flags := c.Flags()
	flags.Uint64(countFlag, 100, "Number of transactions to submit")
	flags.Int(maxConcurrencyFlag, loadgen.DefaultMaxConcurrency, "Maximum concurrent submissions")
	flags.Bool(progressFlag, true, "Show a progress bar")
	flags.Uint8(chainIDFlag, 4, "Chain id signed into each transaction")
	return c
}

func txHeadCommand() *cobra.Command {
	c := &cobra.Command{
		Use:   "head",
		Short: "Prints the node's executed head height",
		RunE: func(cmd *cobra.Command, _ []string) error {
			g, err := generator(cmd, loadgen.Config{})
			if err != nil {
				return err
			}
			follow, err := cmd.Flags().GetBool(followFlag)
			if err != nil {
				return err
			}
			if !follow {
				height, err := g.HeadHeight(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), height)
				return nil
			}
			interval, err := cmd.Flags().GetDuration(intervalFlag)
			if err != nil {
				return err
			}
			return g.Follow(cmd.Context(), interval, func(height uint64) {
				fmt.Fprintln(cmd.OutOrStdout(), height)
			})
		},
	}
	c.Flags().Bool(followFlag, false, "Keep printing the head as it advances")
	c.Flags().Duration(intervalFlag, time.Second, "Polling interval with --follow")
	return c
}
