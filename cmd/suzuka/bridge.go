package suzuka

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/movementlabsxyz/suzuka/internal/bridge"
	"github.com/movementlabsxyz/suzuka/internal/bridge/movement"
	"github.com/movementlabsxyz/suzuka/internal/config"
	"github.com/movementlabsxyz/suzuka/internal/quorum"
)

const (
	sideFlag          = "side"
	decimalsFlag      = "decimals"
	idFlag            = "id"
	recipientFlag     = "recipient"
	initiatorFlag     = "initiator"
	amountFlag        = "amount"
	hashLockFlag      = "hash-lock"
	preImageFlag      = "preimage"
	timeLockFlag      = "time-lock"
	relayFlag         = "relay"
	initiatorURLFlag  = "initiator-url"
	metricsListenFlag = "metrics-listen"

	defaultDecimals = 8
)

// parseAmount converts a decimal token amount into base units.
func parseAmount(s string, decimals int32) (bridge.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return bridge.Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	units := d.Shift(decimals)
	if units.IsNegative() || !units.IsInteger() {
		return bridge.Amount{}, fmt.Errorf("amount %s is not a whole number of base units", s)
	}
	n, overflow := uint256.FromBig(units.BigInt())
	if overflow || !n.IsUint64() {
		return bridge.Amount{}, fmt.Errorf("amount %s overflows u64", s)
	}
	return bridge.MovethFromUint256(n), nil
}

func formatAmount(a bridge.Amount, decimals int32) string {
	return decimal.NewFromBigInt(a.ToUint256().ToBig(), -decimals).String()
}

func parseSide(s string) (bridge.Side, error) {
	switch s {
	case "initiator":
		return bridge.SideInitiator, nil
	case "counterparty":
		return bridge.SideCounterparty, nil
	default:
		return 0, fmt.Errorf("unknown bridge side %q", s)
	}
}

// bridgeEnv is what every bridge subcommand starts from.
type bridgeEnv struct {
	cfg      config.Config
	client   *movement.Client
	side     bridge.Side
	decimals int32
}

func newBridgeEnv(v *viper.Viper, cmd *cobra.Command) (*bridgeEnv, error) {
	cfg, err := loadConfig(v, cmd, nil)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	sideName, err := flags.GetString(sideFlag)
	if err != nil {
		return nil, err
	}
	side, err := parseSide(sideName)
	if err != nil {
		return nil, err
	}
	decimals, err := flags.GetInt32(decimalsFlag)
	if err != nil {
		return nil, err
	}
	client, err := movement.NewClient(cfg.Bridge.Client(cfg.Bridge.RPCURLs[0]))
	if err != nil {
		return nil, err
	}
	return &bridgeEnv{cfg: cfg, client: client, side: side, decimals: decimals}, nil
}

func (e *bridgeEnv) details(cmd *cobra.Command, id bridge.BridgeTransferID) (*bridge.BridgeTransferDetails, error) {
	if e.side == bridge.SideInitiator {
		return e.client.Initiator().GetBridgeTransferDetails(cmd.Context(), id)
	}
	return e.client.Counterparty().GetBridgeTransferDetails(cmd.Context(), id)
}

func (e *bridgeEnv) printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}

func flagValue[T any](cmd *cobra.Command, name string, parse func(string) (T, error)) (T, error) {
	var zero T
	s, err := cmd.Flags().GetString(name)
	if err != nil {
		return zero, err
	}
	if s == "" {
		return zero, fmt.Errorf("--%s is required", name)
	}
	v, err := parse(s)
	if err != nil {
		return zero, fmt.Errorf("--%s: %w", name, err)
	}
	return v, nil
}

func bridgeCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "bridge",
		Short: "Drives atomic bridge transfers on a bridge chain",
	}
	c.PersistentFlags().String(sideFlag, "initiator", "Contract side (initiator, counterparty)")
	c.PersistentFlags().Int32(decimalsFlag, defaultDecimals, "Decimals of the bridged token")
	c.AddCommand(
		bridgeInitiateCommand(v),
		bridgeLockCommand(v),
		bridgeCompleteCommand(v),
		bridgeRefundCommand(v),
		bridgeAbortCommand(v),
		bridgeDetailsCommand(v),
		bridgeTimeLockCommand(v),
		bridgeWatchCommand(v),
	)
	return c
}

func bridgeInitiateCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "initiate",
		Short: "Locks funds on the initiator contract behind a hash lock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newBridgeEnv(v, cmd)
			if err != nil {
				return err
			}
			recipient, err := flagValue(cmd, recipientFlag, bridge.ParseAddress)
			if err != nil {
				return err
			}
			amount, err := flagValue(cmd, amountFlag, func(s string) (bridge.Amount, error) { return parseAmount(s, env.decimals) })
			if err != nil {
				return err
			}
			timeLock, err := cmd.Flags().GetUint64(timeLockFlag)
			if err != nil {
				return err
			}
			preImage, err := cmd.Flags().GetString(preImageFlag)
			if err != nil {
				return err
			}
			var secret bridge.HashLockPreImage
			if preImage == "" {
				secret, err = bridge.RandomPreImage()
			} else {
				secret, err = bridge.ParsePreImage(preImage)
			}
			if err != nil {
				return err
			}

			id, err := env.client.Initiator().InitiateBridgeTransfer(cmd.Context(), env.client.Signer(), recipient,
				bridge.HashLockFromPreImage(secret), bridge.TimeLock(timeLock), amount)
			if err != nil {
				return err
			}
			env.printf(cmd, "id:        %s\nhash lock: %s\npreimage:  %s\n", id, bridge.HashLockFromPreImage(secret), secret)
			return nil
		},
	}
	c.Flags().String(recipientFlag, "", "Recipient on the counterparty chain")
	c.Flags().String(amountFlag, "", "Amount in whole tokens")
	c.Flags().Uint64(timeLockFlag, 0, "Absolute time lock height, 0 for the contract default")
	c.Flags().String(preImageFlag, "", "Secret to lock with, random when empty")
	return c
}

func bridgeLockCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "lock",
		Short: "Mirrors an initiated transfer on the counterparty contract",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newBridgeEnv(v, cmd)
			if err != nil {
				return err
			}
			id, err := flagValue(cmd, idFlag, bridge.ParseBridgeTransferID)
			if err != nil {
				return err
			}
			hashLock, err := flagValue(cmd, hashLockFlag, bridge.ParseHashLock)
			if err != nil {
				return err
			}
			initiator, err := flagValue(cmd, initiatorFlag, bridge.ParseAddress)
			if err != nil {
				return err
			}
			recipient, err := flagValue(cmd, recipientFlag, bridge.ParseAddress)
			if err != nil {
				return err
			}
			amount, err := flagValue(cmd, amountFlag, func(s string) (bridge.Amount, error) { return parseAmount(s, env.decimals) })
			if err != nil {
				return err
			}
			if err := env.client.Counterparty().LockBridgeTransfer(cmd.Context(), id, hashLock, initiator, recipient, amount); err != nil {
				return err
			}
			env.printf(cmd, "locked %s\n", id)
			return nil
		},
	}
	c.Flags().String(idFlag, "", "Bridge transfer id")
	c.Flags().String(hashLockFlag, "", "Hash lock of the initiated transfer")
	c.Flags().String(initiatorFlag, "", "Initiator address on the initiator chain")
	c.Flags().String(recipientFlag, "", "Recipient address")
	c.Flags().String(amountFlag, "", "Amount in whole tokens")
	return c
}

func bridgeCompleteCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "complete",
		Short: "Completes a transfer by revealing its secret",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newBridgeEnv(v, cmd)
			if err != nil {
				return err
			}
			id, err := flagValue(cmd, idFlag, bridge.ParseBridgeTransferID)
			if err != nil {
				return err
			}
			secret, err := flagValue(cmd, preImageFlag, bridge.ParsePreImage)
			if err != nil {
				return err
			}
			if env.side == bridge.SideInitiator {
				err = env.client.Initiator().CompleteBridgeTransfer(cmd.Context(), id, secret)
			} else {
				err = env.client.Counterparty().CompleteBridgeTransfer(cmd.Context(), id, secret)
			}
			if err != nil {
				return err
			}
			env.printf(cmd, "completed %s on %s\n", id, env.side)
			return nil
		},
	}
	c.Flags().String(idFlag, "", "Bridge transfer id")
	c.Flags().String(preImageFlag, "", "Secret behind the hash lock")
	return c
}

func bridgeRefundCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "refund",
		Short: "Returns an expired initiated transfer to its originator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newBridgeEnv(v, cmd)
			if err != nil {
				return err
			}
			id, err := flagValue(cmd, idFlag, bridge.ParseBridgeTransferID)
			if err != nil {
				return err
			}
			if err := env.client.Initiator().RefundBridgeTransfer(cmd.Context(), id); err != nil {
				return err
			}
			env.printf(cmd, "refunded %s\n", id)
			return nil
		},
	}
	c.Flags().String(idFlag, "", "Bridge transfer id")
	return c
}

func bridgeAbortCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "abort",
		Short: "Aborts an expired counterparty lock",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newBridgeEnv(v, cmd)
			if err != nil {
				return err
			}
			id, err := flagValue(cmd, idFlag, bridge.ParseBridgeTransferID)
			if err != nil {
				return err
			}
			if err := env.client.Counterparty().AbortBridgeTransfer(cmd.Context(), id); err != nil {
				return err
			}
			env.printf(cmd, "aborted %s\n", id)
			return nil
		},
	}
	c.Flags().String(idFlag, "", "Bridge transfer id")
	return c
}

func bridgeDetailsCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "details",
		Short: "Shows a transfer as recorded by one contract",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newBridgeEnv(v, cmd)
			if err != nil {
				return err
			}
			id, err := flagValue(cmd, idFlag, bridge.ParseBridgeTransferID)
			if err != nil {
				return err
			}
			d, err := env.details(cmd, id)
			if err != nil {
				return err
			}
			if d == nil {
				return fmt.Errorf("transfer %s not found on %s", id, env.side)
			}
			env.printf(cmd, "id:        %s\ninitiator: %s\nrecipient: %s\nhash lock: %s\ntime lock: %d\namount:    %s\nstate:     %s\n",
				d.ID, d.Initiator, d.Recipient, d.HashLock, d.TimeLock, formatAmount(d.Amount, env.decimals), d.State)
			return nil
		},
	}
	c.Flags().String(idFlag, "", "Bridge transfer id")
	return c
}

func bridgeTimeLockCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "timelock",
		Short: "Reads or sets a contract's time lock duration",
	}
	c.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Prints the time lock duration in blocks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newBridgeEnv(v, cmd)
			if err != nil {
				return err
			}
			var d uint64
			if env.side == bridge.SideInitiator {
				d, err = env.client.Initiator().GetTimeLockDuration(cmd.Context())
			} else {
				d, err = env.client.Counterparty().GetTimeLockDuration(cmd.Context())
			}
			if err != nil {
				return err
			}
			env.printf(cmd, "%d\n", d)
			return nil
		},
	}, &cobra.Command{
		Use:   "set <blocks>",
		Short: "Sets the time lock duration, admin only",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newBridgeEnv(v, cmd)
			if err != nil {
				return err
			}
			d, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[0], err)
			}
			if env.side == bridge.SideInitiator {
				err = env.client.Initiator().SetTimeLockDuration(cmd.Context(), d)
			} else {
				err = env.client.Counterparty().SetTimeLockDuration(cmd.Context(), d)
			}
			if err != nil {
				return err
			}
			env.printf(cmd, "%d\n", d)
			return nil
		},
	})
	return c
}

func bridgeWatchCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "watch",
		Short: "Prints contract events confirmed by a quorum of endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := newBridgeEnv(v, cmd)
			if err != nil {
				return err
			}
			relay, err := cmd.Flags().GetBool(relayFlag)
			if err != nil {
				return err
			}
			if relay && env.side != bridge.SideCounterparty {
				return errors.New("--relay watches the counterparty side")
			}

			sources := make([]bridge.NamedSource, 0, len(env.cfg.Bridge.RPCURLs))
			for _, url := range env.cfg.Bridge.RPCURLs {
				client, err := movement.NewClient(env.cfg.Bridge.Client(url))
				if err != nil {
					return err
				}
				sources = append(sources, bridge.NamedSource{Name: url, Source: client})
			}
			reg := prometheus.NewRegistry()
			metrics, err := quorum.NewMetrics(reg)
			if err != nil {
				return err
			}
			initiatorClient := env.client
			if url, _ := cmd.Flags().GetString(initiatorURLFlag); url != "" {
				if initiatorClient, err = movement.NewClient(env.cfg.Bridge.Client(url)); err != nil {
					return err
				}
			}
			metricsAddr, err := cmd.Flags().GetString(metricsListenFlag)
			if err != nil {
				return err
			}
			monitor := bridge.NewMonitor(bridge.MonitorConfig{
				Side:      env.side,
				Threshold: env.cfg.Bridge.QuorumThreshold,
				TTL:       env.cfg.Bridge.QuorumTTL,
			}, sources, metrics)

			events := make(chan bridge.Event)
			printed := make(chan bridge.Event)
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				defer close(events)
				return monitor.Run(ctx, events)
			})
			g.Go(func() error {
				defer close(printed)
				for ev := range events {
					env.printf(cmd, "%s\n", ev)
					if relay {
						select {
						case printed <- ev:
						case <-ctx.Done():
							return nil
						}
					}
				}
				return nil
			})
			if relay {
				g.Go(func() error { return bridge.Relay(ctx, printed, initiatorClient.Initiator()) })
			}
			if metricsAddr != "" {
				g.Go(func() error { return serveMetrics(ctx, metricsAddr, reg) })
			}
			return g.Wait()
		},
	}
	c.Flags().Bool(relayFlag, false, "Complete transfers on the initiator contract as secrets are revealed")
	c.Flags().String(initiatorURLFlag, "", "Initiator chain endpoint for --relay, the first rpc url when empty")
	c.Flags().String(metricsListenFlag, "", "Serve quorum metrics on this address")
	return c
}

func serveMetrics(ctx context.Context, addr string, gatherer prometheus.Gatherer) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
