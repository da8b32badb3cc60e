// Package constants is responsible for defining the constants used in the application.
package constants

import (
	"log/slog"
	"time"
)

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the command line tool.
	CmdName = "recordfeed"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn

	// DefaultBaseURL is the remote endpoint queried when none is configured.
	DefaultBaseURL = "http://localhost:8080/records"

	// DefaultResponseTimeout is how long a fetch waits for the remote to answer.
	DefaultResponseTimeout = 10 * time.Second

	// DefaultMaxBodyBytes is the largest response body the fetch implementation accepts.
	DefaultMaxBodyBytes = 4 << 20

	// DefaultWatchSchedule is the refresh schedule of the watch command.
	DefaultWatchSchedule = "@every 30s"

	// RequestIDHeader is the header carrying the per request identifier.
	RequestIDHeader = "X-Request-Id"

	// MetricsNamespace prefixes every exported metric.
	MetricsNamespace = "recordfeed"
)

// Stub server defaults.
const (
	// DefaultServePrefix is the path the stub server mounts the records collection on.
	DefaultServePrefix = "/records"

	// DefaultServePort is the port the stub server listens on.
	DefaultServePort = 8080

	// DefaultMetricsPort is the port the stub server exposes metrics on.
	DefaultMetricsPort = 2112
)
