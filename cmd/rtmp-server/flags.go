package main

import (
	"flag"
	"os"

	"github.com/pkg/errors"
)

// version is injected at build time with -ldflags "-X main.version=...". Defaults to dev.
var version = "dev"

// cliConfig holds user supplied flag values prior to translation into
// server.Config so main.go can validate and map.
type cliConfig struct {
	listenAddr    string
	logLevel      string
	chunkSize     uint
	windowAckSize uint
	peerBandwidth uint
	fmsVersion    string
	showVersion   bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("rtmp-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.StringVar(&cfg.listenAddr, "listen", ":1935", "TCP listen address (e.g. :1935 or 0.0.0.0:1935)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "Log level: debug|info|warn|error")
	fs.UintVar(&cfg.chunkSize, "chunk-size", 4096, "Outbound chunk size announced after connect")
	fs.UintVar(&cfg.windowAckSize, "window-ack-size", 2_500_000, "Window acknowledgement size announced after connect")
	fs.UintVar(&cfg.peerBandwidth, "peer-bandwidth", 2_500_000, "Value sent in Set Peer Bandwidth after connect")
	fs.StringVar(&cfg.fmsVersion, "fms-version", "FMS/3,5,7,7009", "Version string placed in the connect _result")
	fs.BoolVar(&cfg.showVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if cfg.listenAddr == "" {
		return nil, errors.New("listen address required")
	}
	if cfg.chunkSize == 0 || cfg.chunkSize > 0xFFFFFF {
		return nil, errors.Errorf("chunk-size %d outside 1..%d", cfg.chunkSize, 0xFFFFFF)
	}
	if cfg.windowAckSize == 0 {
		return nil, errors.New("window-ack-size must be > 0")
	}
	if cfg.peerBandwidth == 0 {
		return nil, errors.New("peer-bandwidth must be > 0")
	}
	if cfg.fmsVersion == "" {
		return nil, errors.New("fms-version required")
	}
	return cfg, nil
}
