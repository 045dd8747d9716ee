// Package health reports whether ywdash is usable: connected to the daemon,
// processing its feed and, when enabled, relaying it.
//
// Components register a Check with a Monitor. Report runs every check and
// aggregates the results: any unhealthy check makes the system unhealthy, a
// degraded one degrades it.
package health
