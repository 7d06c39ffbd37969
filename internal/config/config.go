// Package config builds the node's typed configuration from viper, which merges flags, the
// environment and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/movementlabsxyz/suzuka/internal/api"
	"github.com/movementlabsxyz/suzuka/internal/bridge"
	"github.com/movementlabsxyz/suzuka/internal/bridge/movement"
	"github.com/movementlabsxyz/suzuka/internal/codec"
	"github.com/movementlabsxyz/suzuka/internal/mempool"
	"github.com/movementlabsxyz/suzuka/internal/node"
	"github.com/movementlabsxyz/suzuka/internal/output/kafka"
	"github.com/movementlabsxyz/suzuka/internal/pipe"
)

const (
	OutputLog      = "log"
	OutputPostgres = "postgres"
	OutputKafka    = "kafka"

	DefaultDAHostname = "0.0.0.0"
	DefaultDAPort     = 30730
)

type DAConfig struct {
	Hostname       string
	Port           uint16
	ListenHostname string
	ListenPort     uint16
	BlobEncoding   string
}

// Address is the light node endpoint the node dials.
func (c DAConfig) Address() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(int(c.Port)))
}

// ListenAddress is where an in-process light node serves.
func (c DAConfig) ListenAddress() string {
	return net.JoinHostPort(c.ListenHostname, strconv.Itoa(int(c.ListenPort)))
}

type OutputConfig struct {
	Kind             string
	PostgresConn     string
	KafkaBrokers     []string
	BlocksTopic      string
	CommitmentsTopic string
}

func (c OutputConfig) Kafka() kafka.Config {
	return kafka.Config{
		Brokers:          c.KafkaBrokers,
		BlocksTopic:      c.BlocksTopic,
		CommitmentsTopic: c.CommitmentsTopic,
	}
}

type SettlementConfig struct {
	// RejectHeights are heights the mock settlement client refuses.
	RejectHeights []uint64
}

type BridgeConfig struct {
	RPCURLs         []string
	ModuleAddress   string
	Signer          string
	QuorumThreshold int
	QuorumTTL       time.Duration
}

// Client returns the chain client config for one endpoint.
func (c BridgeConfig) Client(url string) movement.Config {
	return movement.Config{
		URL:           url,
		ModuleAddress: c.ModuleAddress,
		Signer:        c.Signer,
	}
}

type Config struct {
	DA         DAConfig
	Node       node.Config
	StateDir   string
	API        api.Config
	Output     OutputConfig
	Settlement SettlementConfig
	Bridge     BridgeConfig
}

// env lists the environment variables bound to each key, legacy names first.
var env = map[string][]string{
	"da.hostname":           {"M1_DA_LIGHT_NODE_CONNECTION_HOSTNAME"},
	"da.port":               {"M1_DA_LIGHT_NODE_CONNECTION_PORT"},
	"da.listen-hostname":    {"M1_DA_LIGHT_NODE_LISTEN_HOSTNAME"},
	"da.listen-port":        {"M1_DA_LIGHT_NODE_LISTEN_PORT"},
	"da.blob-encoding":      {"DA_BLOB_ENCODING"},
	"node.max-in-flight":    {"SUZUKA_MAX_IN_FLIGHT"},
	"node.batch-timeout":    {"SUZUKA_BATCH_TIMEOUT"},
	"node.gc-interval":      {"SUZUKA_GC_INTERVAL"},
	"node.max-retries":      {"SUZUKA_MAX_RETRIES"},
	"node.state-dir":        {"SUZUKA_STATE_DIR"},
	"api.listen":            {"SUZUKA_API_LISTEN"},
	"output.kind":           {"SUZUKA_OUTPUT_KIND"},
	"output.postgres-conn":  {"SUZUKA_POSTGRES_CONN"},
	"output.kafka-brokers":  {"SUZUKA_KAFKA_BROKERS"},
	"bridge.rpc-urls":       {"BRIDGE_RPC_URLS"},
	"bridge.module-address": {"BRIDGE_MODULE_ADDRESS"},
	"bridge.signer":         {"BRIDGE_SIGNER_ADDRESS"},
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) error {
	mp := mempool.DefaultConfig()
	v.SetDefault("da.hostname", DefaultDAHostname)
	v.SetDefault("da.port", DefaultDAPort)
	v.SetDefault("da.listen-hostname", DefaultDAHostname)
	v.SetDefault("da.listen-port", DefaultDAPort)
	v.SetDefault("da.blob-encoding", codec.FormatBinary.String())
	v.SetDefault("node.max-in-flight", pipe.DefaultMaxInFlight)
	v.SetDefault("node.batch-timeout", node.DefaultBatchTimeout)
	v.SetDefault("node.gc-interval", pipe.DefaultGCInterval)
	v.SetDefault("node.max-retries", node.DefaultMaxRetries)
	v.SetDefault("node.state-dir", "")
	v.SetDefault("mempool.capacity", mp.Capacity)
	v.SetDefault("mempool.capacity-per-user", mp.CapacityPerUser)
	v.SetDefault("mempool.ttl", mp.TTL)
	v.SetDefault("api.listen", api.DefaultListen)
	v.SetDefault("api.allowed-origins", []string{"*"})
	v.SetDefault("output.kind", OutputLog)
	v.SetDefault("output.postgres-conn", "")
	v.SetDefault("output.kafka-brokers", []string{"localhost:9092"})
	v.SetDefault("output.kafka-blocks-topic", kafka.DefaultBlocksTopic)
	v.SetDefault("output.kafka-commitments-topic", kafka.DefaultCommitmentsTopic)
	v.SetDefault("settlement.reject-heights", []string{})
	v.SetDefault("bridge.rpc-urls", []string{movement.DefaultURL})
	v.SetDefault("bridge.module-address", movement.DefaultModuleAddress)
	v.SetDefault("bridge.signer", "0x1")
	v.SetDefault("bridge.quorum-threshold", 1)
	v.SetDefault("bridge.quorum-ttl", bridge.DefaultQuorumTTL)

	v.SetEnvPrefix("suzuka")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, names := range env {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}
	return nil
}

// Load reads every key from v and validates the result.
func Load(v *viper.Viper) (Config, error) {
	heights, err := uint64List(list(v, "settlement.reject-heights"))
	if err != nil {
		return Config{}, fmt.Errorf("settlement.reject-heights: %w", err)
	}

	cfg := Config{
		DA: DAConfig{
			Hostname:       v.GetString("da.hostname"),
			Port:           v.GetUint16("da.port"),
			ListenHostname: v.GetString("da.listen-hostname"),
			ListenPort:     v.GetUint16("da.listen-port"),
			BlobEncoding:   v.GetString("da.blob-encoding"),
		},
		Node: node.Config{
			MaxInFlight:  v.GetInt64("node.max-in-flight"),
			BatchTimeout: v.GetDuration("node.batch-timeout"),
			GCInterval:   v.GetDuration("node.gc-interval"),
			MaxRetries:   v.GetUint("node.max-retries"),
			Mempool: mempool.Config{
				Capacity:        v.GetInt("mempool.capacity"),
				CapacityPerUser: v.GetInt("mempool.capacity-per-user"),
				TTL:             v.GetDuration("mempool.ttl"),
			},
		},
		StateDir: v.GetString("node.state-dir"),
		API: api.Config{
			Listen:         v.GetString("api.listen"),
			AllowedOrigins: list(v, "api.allowed-origins"),
		},
		Output: OutputConfig{
			Kind:             strings.ToLower(v.GetString("output.kind")),
			PostgresConn:     v.GetString("output.postgres-conn"),
			KafkaBrokers:     list(v, "output.kafka-brokers"),
			BlocksTopic:      v.GetString("output.kafka-blocks-topic"),
			CommitmentsTopic: v.GetString("output.kafka-commitments-topic"),
		},
		Settlement: SettlementConfig{RejectHeights: heights},
		Bridge: BridgeConfig{
			RPCURLs:         list(v, "bridge.rpc-urls"),
			ModuleAddress:   v.GetString("bridge.module-address"),
			Signer:          v.GetString("bridge.signer"),
			QuorumThreshold: v.GetInt("bridge.quorum-threshold"),
			QuorumTTL:       v.GetDuration("bridge.quorum-ttl"),
		},
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	c, err := cfg.Codec()
	if err != nil {
		return Config{}, err
	}
	cfg.Node.Codec = c
	return cfg, nil
}

func (c Config) Codec() (*codec.Codec, error) {
	format, err := codec.ParseFormat(c.DA.BlobEncoding)
	if err != nil {
		return nil, fmt.Errorf("da.blob-encoding: %w", err)
	}
	return codec.New(format), nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.DA.Hostname == "" {
		errs = append(errs, errors.New("da.hostname must not be empty"))
	}
	if c.DA.Port == 0 {
		errs = append(errs, errors.New("da.port must not be zero"))
	}
	if _, err := codec.ParseFormat(c.DA.BlobEncoding); err != nil {
		errs = append(errs, fmt.Errorf("da.blob-encoding: %w", err))
	}
	if c.Node.MaxInFlight <= 0 {
		errs = append(errs, errors.New("node.max-in-flight must be positive"))
	}
	if c.Node.Mempool.Capacity <= 0 {
		errs = append(errs, errors.New("mempool.capacity must be positive"))
	}

	switch c.Output.Kind {
	case OutputLog:
	case OutputPostgres:
		if c.Output.PostgresConn == "" {
			errs = append(errs, errors.New("output.postgres-conn is required for postgres output"))
		}
	case OutputKafka:
		if len(c.Output.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("output.kafka-brokers is required for kafka output"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown output kind %q", c.Output.Kind))
	}

	if len(c.Bridge.RPCURLs) == 0 {
		errs = append(errs, errors.New("bridge.rpc-urls must not be empty"))
	}
	if c.Bridge.QuorumThreshold <= 0 || c.Bridge.QuorumThreshold > len(c.Bridge.RPCURLs) {
		errs = append(errs, fmt.Errorf("bridge.quorum-threshold %d must be between 1 and the number of rpc urls (%d)",
			c.Bridge.QuorumThreshold, len(c.Bridge.RPCURLs)))
	}
	return errors.Join(errs...)
}

// list reads a string list, splitting comma separated values as they arrive from the environment.
func list(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func uint64List(items []string) ([]uint64, error) {
	out := make([]uint64, 0, len(items))
	for _, item := range items {
		n, err := strconv.ParseUint(item, 10, 64)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
