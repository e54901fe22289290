// Package metrics defines the Prometheus collectors of the voice bridge.
package metrics
