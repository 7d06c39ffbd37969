package suzuka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/movementlabsxyz/suzuka/internal/bridge/simchain"
	"github.com/movementlabsxyz/suzuka/internal/da"
)

const (
	daBlockTimeFlag     = "da-block-time"
	bridgeListenFlag    = "bridge-listen"
	bridgeBlockTimeFlag = "bridge-block-time"
	noBridgeFlag        = "no-bridge"
)

func devnetCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "devnet",
		Short: "Runs a node with an in-process light node and a simulated bridge chain",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cmd, nodeFlags)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			daBlockTime, err := flags.GetDuration(daBlockTimeFlag)
			if err != nil {
				return err
			}
			bridgeListen, err := flags.GetString(bridgeListenFlag)
			if err != nil {
				return err
			}
			bridgeBlockTime, err := flags.GetDuration(bridgeBlockTimeFlag)
			if err != nil {
				return err
			}
			noBridge, err := flags.GetBool(noBridgeFlag)
			if err != nil {
				return err
			}

			lightNode := da.NewMemoryLightNode(da.MemoryLightNodeConfig{
				BlockTime: daBlockTime,
				Codec:     cfg.Node.Codec,
			}, nil)
			defer lightNode.Close()
			server, err := da.NewServer(lightNode, nil)
			if err != nil {
				return err
			}
			lis, err := net.Listen("tcp", cfg.DA.ListenAddress())
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", cfg.DA.ListenAddress(), err)
			}

			var chain *simchain.Server
			var bridgeLis net.Listener
			if !noBridge {
				chain, err = simchain.New(simchain.Config{
					ModuleAddress: cfg.Bridge.ModuleAddress,
					Admin:         cfg.Bridge.Signer,
					BlockTime:     bridgeBlockTime,
				})
				if err != nil {
					return err
				}
				bridgeLis, err = net.Listen("tcp", bridgeListen)
				if err != nil {
					return fmt.Errorf("failed to listen on %s: %w", bridgeListen, err)
				}
			}

			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error { return lightNode.Run(ctx) })
			g.Go(func() error { return server.Serve(lis) })
			g.Go(func() error {
				<-ctx.Done()
				server.Stop()
				return nil
			})
			g.Go(func() error { return runNode(ctx, cfg, lightNode) })
			if chain != nil {
				g.Go(func() error { return chain.Serve(ctx, bridgeLis) })
				g.Go(func() error { return chain.Run(ctx) })
			}

			slog.Info("Devnet started", "light_node", lis.Addr().String(), "bridge", !noBridge)
			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	addNodeFlags(c)
	flags := c.Flags()
	flags.Duration(daBlockTimeFlag, da.DefaultBlockTime, "Interval between light node blocks")
	flags.String(bridgeListenFlag, "127.0.0.1:8080", "Address the simulated bridge chain listens on")
	flags.Duration(bridgeBlockTimeFlag, time.Second, "Interval between simulated bridge chain blocks")
	flags.Bool(noBridgeFlag, false, "Do not start the simulated bridge chain")
	return c
}
