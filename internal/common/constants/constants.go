// Package constants is responsible for defining the constants used in the adapter.
package constants

import "log/slog"

var (
	// Version is the version of the application.
	Version = "Dev"
)

const (
	// CmdName is the name of the adapter command.
	CmdName = "zenodo-adapter"

	// DefaultLogLevel is the default log level selected without any verbosity flags.
	DefaultLogLevel = slog.LevelWarn
)

// Adapter identity and network defaults.
const (
	// DefaultAdapterName is the name announced to the manager when no route alias is set.
	DefaultAdapterName = "public-data-space-zenodo-adapter"

	// DefaultAdvertisedHost is the host announced to the manager when no route alias is set.
	DefaultAdvertisedHost = "localhost"

	// DefaultListenPort is the port the adapter serves requests on.
	DefaultListenPort = 8070

	// DefaultMetricsPort is the port the prometheus endpoint is served on.
	DefaultMetricsPort = 2112

	// DefaultManagerHost is the host of the coordinating manager.
	DefaultManagerHost = "localhost"

	// DefaultManagerPort is the port of the coordinating manager.
	DefaultManagerPort = 8080

	// DefaultDBName is the name of the PostgreSQL database.
	DefaultDBName = "zenodo-adapter"

	// DefaultRegisterAttempts is the number of registration calls made before giving up.
	DefaultRegisterAttempts = 3

	// MetricsNamespace prefixes every metric exposed by the adapter.
	MetricsNamespace = "zenodo_adapter"
)
