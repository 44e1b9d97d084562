// Package metrics holds the in-process Prometheus collectors describing echo traffic.
package metrics
