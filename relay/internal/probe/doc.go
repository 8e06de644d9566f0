// Package probe turns Prometheus endpoints into alert sources.
//
// An Engine scrapes one endpoint on an interval, evaluates its threshold rules
// against the summed metric families and hands firing and resolved alerts to
// a Sink (the dispatcher). A Supervisor owns the running engines and replaces
// them when the configuration is reloaded.
//
// Rule conditions have the form "<metric> <op> <number>" where op is one of
// > >= < <= == !=. A rule whose metric is absent from a scrape is skipped for
// that cycle: it neither fires nor resolves.
package probe
