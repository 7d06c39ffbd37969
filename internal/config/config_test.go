package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/movementlabsxyz/suzuka/internal/codec"
)

func newViper(t *testing.T) *viper.Viper {
	t.Helper()
	v := viper.New()
	require.NoError(t, SetDefaults(v))
	return v
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(newViper(t))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:30730", cfg.DA.Address())
	assert.Equal(t, codec.FormatBinary, cfg.Node.Codec.Format())
	assert.Equal(t, int64(4096), cfg.Node.MaxInFlight)
	assert.Equal(t, 100*time.Millisecond, cfg.Node.BatchTimeout)
	assert.Equal(t, 60*time.Second, cfg.Node.GCInterval)
	assert.Equal(t, 1_000_000, cfg.Node.Mempool.Capacity)
	assert.Equal(t, OutputLog, cfg.Output.Kind)
	assert.Equal(t, []string{"http://127.0.0.1:8080"}, cfg.Bridge.RPCURLs)
	assert.Equal(t, 1, cfg.Bridge.QuorumThreshold)
	assert.Equal(t, 5*time.Minute, cfg.Bridge.QuorumTTL)
	assert.Empty(t, cfg.StateDir)
	assert.Empty(t, cfg.Settlement.RejectHeights)
}

func TestLoadEnvironment(t *testing.T) {
	t.Setenv("M1_DA_LIGHT_NODE_CONNECTION_HOSTNAME", "light-node")
	t.Setenv("M1_DA_LIGHT_NODE_CONNECTION_PORT", "9000")
	t.Setenv("DA_BLOB_ENCODING", "zstd")
	t.Setenv("SUZUKA_MAX_IN_FLIGHT", "16")
	t.Setenv("SUZUKA_OUTPUT_KIND", "Kafka")
	t.Setenv("SUZUKA_KAFKA_BROKERS", "k1:9092,k2:9092")
	t.Setenv("BRIDGE_RPC_URLS", "http://a:8080, http://b:8080")
	t.Setenv("SUZUKA_BRIDGE_QUORUM_THRESHOLD", "2")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, "light-node:9000", cfg.DA.Address())
	assert.Equal(t, codec.FormatZstd, cfg.Node.Codec.Format())
	assert.Equal(t, int64(16), cfg.Node.MaxInFlight)
	assert.Equal(t, OutputKafka, cfg.Output.Kind)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Output.Kafka().Brokers)
	assert.Equal(t, []string{"http://a:8080", "http://b:8080"}, cfg.Bridge.RPCURLs)
	assert.Equal(t, 2, cfg.Bridge.QuorumThreshold)
}

func TestLoadPostgresEnvironment(t *testing.T) {
	t.Setenv("SUZUKA_OUTPUT_KIND", "postgres")
	t.Setenv("SUZUKA_POSTGRES_CONN", "postgres://suzuka@localhost/suzuka")

	cfg, err := Load(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, OutputPostgres, cfg.Output.Kind)
	assert.Equal(t, "postgres://suzuka@localhost/suzuka", cfg.Output.PostgresConn)
}

// A variable named SUZUKA_<section> would shadow every key of that section.
func TestEnvNamesDoNotShadowSections(t *testing.T) {
	v := newViper(t)
	sections := map[string]bool{}
	for _, key := range v.AllKeys() {
		sections["SUZUKA_"+strings.ToUpper(strings.SplitN(key, ".", 2)[0])] = true
	}
	for key, names := range env {
		for _, name := range names {
			assert.False(t, sections[name], "%s bound to %s", name, key)
		}
	}
}

func TestLoadRejectHeights(t *testing.T) {
	v := newViper(t)
	v.Set("settlement.reject-heights", []string{"3", "7"})
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, []uint64{3, 7}, cfg.Settlement.RejectHeights)

	v.Set("settlement.reject-heights", []string{"three"})
	_, err = Load(v)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(v *viper.Viper)
		want   string
	}{
		{"empty da hostname", func(v *viper.Viper) { v.Set("da.hostname", "") }, "da.hostname"},
		{"zero in-flight cap", func(v *viper.Viper) { v.Set("node.max-in-flight", 0) }, "node.max-in-flight"},
		{"unknown encoding", func(v *viper.Viper) { v.Set("da.blob-encoding", "xml") }, "da.blob-encoding"},
		{"postgres without conn", func(v *viper.Viper) { v.Set("output.kind", OutputPostgres) }, "output.postgres-conn"},
		{"unknown output", func(v *viper.Viper) { v.Set("output.kind", "s3") }, "unknown output kind"},
		{"threshold above urls", func(v *viper.Viper) { v.Set("bridge.quorum-threshold", 2) }, "bridge.quorum-threshold"},
		{"zero threshold", func(v *viper.Viper) { v.Set("bridge.quorum-threshold", 0) }, "bridge.quorum-threshold"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViper(t)
			tt.mutate(v)
			_, err := Load(v)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateCollectsErrors(t *testing.T) {
	v := newViper(t)
	v.Set("da.hostname", "")
	v.Set("node.max-in-flight", -1)
	_, err := Load(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "da.hostname")
	assert.Contains(t, err.Error(), "node.max-in-flight")
}
