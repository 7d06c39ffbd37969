package suzuka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/movementlabsxyz/suzuka/internal/api"
	"github.com/movementlabsxyz/suzuka/internal/config"
	"github.com/movementlabsxyz/suzuka/internal/da"
	"github.com/movementlabsxyz/suzuka/internal/executor"
	"github.com/movementlabsxyz/suzuka/internal/node"
	"github.com/movementlabsxyz/suzuka/internal/output"
	"github.com/movementlabsxyz/suzuka/internal/output/kafka"
	"github.com/movementlabsxyz/suzuka/internal/output/postgresql"
	"github.com/movementlabsxyz/suzuka/internal/settlement"
)

func runCommand(v *viper.Viper) *cobra.Command {
	c := &cobra.Command{
		Use:   "run",
		Short: "Runs the node against a light node",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, cmd, nodeFlags)
			if err != nil {
				return err
			}
			return runNode(cmd.Context(), cfg, nil)
		},
	}
	addNodeFlags(c)
	return c
}

var nodeFlags = map[string]string{
	"api.listen":           "api-listen",
	"node.state-dir":       "state-dir",
	"node.max-in-flight":   "max-in-flight",
	"output.kind":          "output",
	"output.postgres-conn": "postgres-conn",
	"output.kafka-brokers": "kafka-brokers",
}

func addNodeFlags(c *cobra.Command) {
	flags := c.Flags()
	flags.String("api-listen", api.DefaultListen, "Address the node API listens on")
	flags.String("state-dir", "", "Executor state directory, in memory when empty")
	flags.Int64("max-in-flight", 0, "Transactions admitted but not yet written to DA before load shedding")
	flags.String("output", config.OutputLog, "Where executed blocks are recorded (log, postgres, kafka)")
	flags.String("postgres-conn", "", "PostgreSQL connection string for the postgres output")
	flags.StringSlice("kafka-brokers", nil, "Kafka brokers for the kafka output")
}

// runNode runs a node until ctx is done. It dials the configured light node unless lightNode is
// given.
func runNode(ctx context.Context, cfg config.Config, lightNode da.LightNodeClient) error {
	reg := prometheus.NewRegistry()
	if err := errors.Join(
		reg.Register(collectors.NewGoCollector()),
		reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})),
	); err != nil {
		return fmt.Errorf("failed to register runtime metrics: %w", err)
	}

	if lightNode == nil {
		clientMetrics := grpc_prometheus.NewClientMetrics()
		if err := reg.Register(clientMetrics); err != nil {
			return fmt.Errorf("failed to register light node client metrics: %w", err)
		}
		client, err := da.NewGRPCClient(da.ClientConfig{
			Hostname: cfg.DA.Hostname,
			Port:     cfg.DA.Port,
			Metrics:  clientMetrics,
		})
		if err != nil {
			return err
		}
		defer client.Close()
		lightNode = client
		slog.Info("Connecting to light node", "address", cfg.DA.Address())
	}

	ledger, err := executor.NewLedger(executor.LedgerConfig{Dir: cfg.StateDir})
	if err != nil {
		return err
	}
	defer ledger.Close()

	out, err := newOutputHandler(ctx, cfg.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	n, err := node.New(cfg.Node, node.Components{
		Executor:   ledger,
		DA:         lightNode,
		Settlement: settlement.NewMockClient(cfg.Settlement.RejectHeights...),
		Output:     out,
		Registerer: reg,
	})
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	server := api.New(cfg.API, n.MempoolClient(), n, reg)
	return n.Run(ctx, server)
}

func newOutputHandler(ctx context.Context, cfg config.OutputConfig) (output.OutputHandler, error) {
	switch cfg.Kind {
	case config.OutputPostgres:
		h, err := postgresql.NewPostgresOutputHandler(ctx, cfg.PostgresConn)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL output handler: %w", err)
		}
		return h, nil
	case config.OutputKafka:
		h, err := kafka.NewKafkaOutputHandler(cfg.Kafka())
		if err != nil {
			return nil, fmt.Errorf("failed to create Kafka output handler: %w", err)
		}
		return h, nil
	default:
		return output.NewLogHandler(), nil
	}
}
