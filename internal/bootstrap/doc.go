// Package bootstrap loads the riskauth server configuration and assembles the runtime:
// database, Redis, engine, HTTP router, gRPC health server and metrics.
package bootstrap
