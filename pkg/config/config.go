// Package config parses and validates the CLI surface using
// github.com/spf13/pflag, the GNU-style long/short flag library this
// analyzer uses in place of the standard library's flag package.
package config

import (
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/AmnesiaBeing/someip-parser/pkg/someiperr"
)

// Config holds every validated CLI option.
type Config struct {
	PCAPFile       string
	MatrixFile     string
	SDPort         uint16
	VLANFilter     uint16
	HasVLANFilter  bool
	OutputFormat   string
	OutputFile     string
	Compress       bool
	Verbosity      int
	RequestTimeout time.Duration
	TPTimeout      time.Duration
	TCPTimeout     time.Duration
	MetricsFile    string

	SessionCapacity int
	TCPCapacity     int
}

// Parse builds a Config from args (typically os.Args[1:]), applying
// defaults and validating the result.
func Parse(args []string) (Config, error) {
	fs := pflag.NewFlagSet("someip-parser", pflag.ContinueOnError)

	pcapFile := fs.StringP("pcap-file", "p", "", "path to the capture file to analyze (required)")
	matrixFile := fs.StringP("matrix-file", "m", "", "ARXML/JSON/YAML matrix file mapping ids to names")
	sdPort := fs.Uint16P("sd-port", "s", 30490, "SomeIP-SD service discovery port")
	vlan := fs.Uint16("vlan", 0, "filter to a single VLAN id")
	outputFormat := fs.StringP("output-format", "o", "text", "output format: text, json, yaml, or csv")
	outputFile := fs.StringP("output-file", "f", "", "output file path (default: stdout)")
	compress := fs.Bool("compress", false, "gzip-compress the output file")
	verbose := fs.CountP("verbose", "v", "increase log verbosity (repeatable)")
	requestTimeout := fs.Duration("request-timeout", 5*time.Second, "session pairing timeout")
	tpTimeout := fs.Duration("tp-timeout", 30*time.Second, "TP reassembly timeout")
	tcpTimeout := fs.Duration("tcp-timeout", 60*time.Second, "TCP connection timeout")
	metricsFile := fs.String("metrics-file", "", "optional Prometheus text-format metrics dump path")
	sessionCapacity := fs.Int("session-capacity", 4096, "maximum pending session pairs")
	tcpCapacity := fs.Int("tcp-capacity", 4096, "maximum live TCP flows")

	if err := fs.Parse(args); err != nil {
		return Config{}, someiperr.Wrap(someiperr.ErrConfig, err.Error())
	}

	cfg := Config{
		PCAPFile:        *pcapFile,
		MatrixFile:      *matrixFile,
		SDPort:          *sdPort,
		OutputFormat:    *outputFormat,
		OutputFile:      *outputFile,
		Compress:        *compress,
		Verbosity:       *verbose,
		RequestTimeout:  *requestTimeout,
		TPTimeout:       *tpTimeout,
		TCPTimeout:      *tcpTimeout,
		MetricsFile:     *metricsFile,
		SessionCapacity: *sessionCapacity,
		TCPCapacity:     *tcpCapacity,
	}

	if fs.Changed("vlan") {
		cfg.HasVLANFilter = true
		cfg.VLANFilter = *vlan
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the PCAP file exists, the matrix file (if given) exists,
// and the output format is recognized.
func (c Config) Validate() error {
	if c.PCAPFile == "" {
		return someiperr.Wrap(someiperr.ErrConfig, "--pcap-file is required")
	}
	if _, err := os.Stat(c.PCAPFile); err != nil {
		return someiperr.Wrapf(someiperr.ErrConfig, "pcap file does not exist: %s", c.PCAPFile)
	}

	if c.MatrixFile != "" {
		if _, err := os.Stat(c.MatrixFile); err != nil {
			return someiperr.Wrapf(someiperr.ErrConfig, "matrix file does not exist: %s", c.MatrixFile)
		}
	}

	switch c.OutputFormat {
	case "text", "json", "yaml", "csv":
	default:
		return someiperr.Wrapf(someiperr.ErrConfig, "unsupported output format: %s", c.OutputFormat)
	}

	return nil
}
