// Command someip-parser reconstructs SomeIP traffic from an offline packet
// capture and emits the result as text, JSON, or YAML.
package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/AmnesiaBeing/someip-parser/pkg/capture"
	"github.com/AmnesiaBeing/someip-parser/pkg/config"
	"github.com/AmnesiaBeing/someip-parser/pkg/logging"
	"github.com/AmnesiaBeing/someip-parser/pkg/matrix"
	"github.com/AmnesiaBeing/someip-parser/pkg/metrics"
	"github.com/AmnesiaBeing/someip-parser/pkg/orchestrator"
	"github.com/AmnesiaBeing/someip-parser/pkg/output"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Parse(args)
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.Verbosity)
	if err != nil {
		return err
	}
	defer log.Sync()

	output.SetLogger(log.Named("output"))

	var mx *matrix.Matrix
	if cfg.MatrixFile != "" {
		mx, err = matrix.Load(cfg.MatrixFile)
		if err != nil {
			return err
		}
	}

	var met *metrics.Registry
	if cfg.MetricsFile != "" {
		met = metrics.New()
	}

	reader, err := capture.Open(cfg.PCAPFile)
	if err != nil {
		return err
	}
	defer reader.Close()

	frames := make(chan capture.RawFrame, 1000)
	done := make(chan struct{})

	go func() {
		if err := capture.Run(reader, frames, done); err != nil {
			log.Error("capture reader stopped early", zap.Error(err))
		}
	}()

	orch := orchestrator.New(orchestrator.Config{
		SDPort:          cfg.SDPort,
		HasVLANFilter:   cfg.HasVLANFilter,
		VLANFilter:      cfg.VLANFilter,
		RequestTimeout:  cfg.RequestTimeout,
		TPTimeout:       cfg.TPTimeout,
		TCPTimeout:      cfg.TCPTimeout,
		SessionCapacity: cfg.SessionCapacity,
		TCPCapacity:     cfg.TCPCapacity,
	}, log, met)

	messages := orch.Run(frames)
	close(done)

	orch.TCPSummary(os.Stderr)

	if cfg.OutputFormat == "csv" {
		formatted, err := output.FormatCSV(messages)
		if err != nil {
			return err
		}
		exporter := output.NewExporter(nil, cfg.OutputFile, cfg.Compress)
		if err := exporter.ExportRaw(formatted, len(messages)); err != nil {
			return err
		}
	} else {
		records := make([]output.Record, 0, len(messages))
		for _, msg := range messages {
			records = append(records, output.NewRecord(msg, mx))
		}

		formatter, err := output.ForName(cfg.OutputFormat)
		if err != nil {
			return err
		}

		exporter := output.NewExporter(formatter, cfg.OutputFile, cfg.Compress)
		if err := exporter.Export(records); err != nil {
			return err
		}
	}

	if met != nil {
		if err := met.DumpFile(cfg.MetricsFile); err != nil {
			log.Warn("failed to write metrics file", zap.Error(err))
		}
	}

	return nil
}
