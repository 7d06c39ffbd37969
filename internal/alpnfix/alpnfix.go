// Package alpnfix turns off grpc-go's ALPN enforcement so the node can dial light nodes that sit
// behind proxies without ALPN support. An explicit GRPC_ENFORCE_ALPN_ENABLED wins.
// Import it for side effects before anything that creates a gRPC connection.
package alpnfix

import "os"

const envVar = "GRPC_ENFORCE_ALPN_ENABLED"

func init() {
	if _, ok := os.LookupEnv(envVar); !ok {
		os.Setenv(envVar, "false")
	}
}
