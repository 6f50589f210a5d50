package config

import (
	"time"

	"github.com/spf13/pflag"
)

// RawFlags holds the raw CLI flag destinations before they are
// resolved into a ServerConfig. Kept separate from ServerConfig so
// that pflag can bind directly to plain fields (strings/ints)
// without the config package exposing mutable state after startup.
type RawFlags struct {
	MulticastGroup string
	CommandPort    int
	MaxSpace       int64
	SharedFolder   string
	TimeoutSeconds int
	LogLevel       string
	MetricsAddr    string
}

// BindFlags registers the server's command-line flags, long and short
// forms, on fs.
func BindFlags(fs *pflag.FlagSet) *RawFlags {
	rf := &RawFlags{}
	fs.StringVarP(&rf.MulticastGroup, "mcast-addr", "g", "", "multicast group address (dotted IPv4, required)")
	fs.IntVarP(&rf.CommandPort, "cmd-port", "p", 0, "UDP command port, >0 (required)")
	fs.Int64VarP(&rf.MaxSpace, "max-space", "b", DefaultMaxSpace, "maximum advertised space in bytes")
	fs.StringVarP(&rf.SharedFolder, "shrd-fldr", "f", "", "shared folder path (required, must exist)")
	fs.IntVarP(&rf.TimeoutSeconds, "timeout", "t", DefaultTimeout, "handshake timeout in seconds (1-300)")
	fs.StringVar(&rf.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&rf.MetricsAddr, "metrics-addr", "", "address to expose Prometheus metrics on (empty disables)")
	return rf
}

// Resolve turns the raw flags into a ServerConfig. It does not
// validate; callers should call ServerConfig.Validate afterward.
func (rf *RawFlags) Resolve() ServerConfig {
	return ServerConfig{
		MulticastGroup:   rf.MulticastGroup,
		CommandPort:      rf.CommandPort,
		MaxSpace:         rf.MaxSpace,
		SharedFolder:     rf.SharedFolder,
		HandshakeTimeout: time.Duration(rf.TimeoutSeconds) * time.Second,
		LogLevel:         rf.LogLevel,
		MetricsAddr:      rf.MetricsAddr,
	}
}
