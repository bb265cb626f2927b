// Package metrics exposes Prometheus collectors for the gateway.
package metrics
