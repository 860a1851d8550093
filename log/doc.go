// Package log provides a simple, leveled logging interface used across the
// service: the LLM client, the ingestion pipeline, and the HTTP surface
// take a log.Logger rather than writing to stdout directly.
//
// # Log levels
//
// Five levels, in order of increasing severity: LogLevelDebug,
// LogLevelInfo, LogLevelWarn, LogLevelError, LogLevelNone (disables
// output entirely).
//
// # Implementations
//
// DefaultLogger wraps the standard library's log package. GologLogger
// wraps github.com/kataras/golog, the logging library the rest of this
// service's dependency stack favors; NewServiceLogger builds one of
// these prefixed with a component name, e.g.:
//
//	logger := log.NewServiceLogger("ingest")
//	logger.Info("starting ingest for dataset %s", datasetID)
//
// Custom loggers only need to implement the four-method Logger interface.
package log
