// Package observability provides structured logging and Prometheus metrics for
// scancapture.
//
// Logs are JSON lines with UTC timestamps written to stderr, leaving the wrapped
// build's stdout untouched. Metrics live on a dedicated registry and are exported
// as a node-exporter textfile when the process exits.
package observability
