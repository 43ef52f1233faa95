// Package config loads the YAML configuration file that drives the call
// pipeline: per-service rate limits, circuit breakers, retry policies,
// plus shared cache and observability settings. Environment references
// written as ${VAR} are resolved at load time and must exist.
package config
