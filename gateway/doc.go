// Package gateway serves the JSON HTTP API consumed by the dashboard view
// layer.
//
// Reads return the current value of a view model. Writes call the matching
// state operation; actions that run on the worker pool answer 202 Accepted
// and their outcome shows up in later reads. The view layer never mutates
// derived state directly.
//
// Errors are mapped to status codes by class:
//
//	entity or session not found   404
//	invalid input                 400
//	daemon request failed         502
//	action queue full             503
//	other transient errors        503 (504 on timeouts)
//	anything else                 500
//
// The server also exposes /healthz (aggregated health.Monitor report) and
// /metrics (Prometheus exposition of the metrics registry, when set).
package gateway
