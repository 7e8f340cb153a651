package output

import (
	"io"
	"os"

	"github.com/klauspost/pgzip"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

var exportLog = zap.NewNop()

// SetLogger installs the logger used by the exporter.
func SetLogger(l *zap.Logger) { exportLog = l }

// Exporter writes a formatted document to a file or stdout, optionally
// gzip-compressing it via pgzip, mirroring netcap's buffered/compressed
// writer convention in writer.go and saveFile.go.
type Exporter struct {
	formatter Formatter
	path      string // empty means stdout
	compress  bool
}

// NewExporter builds an exporter using formatter, writing to path (or
// stdout if empty), gzip-compressing the output when compress is true.
func NewExporter(formatter Formatter, path string, compress bool) *Exporter {
	return &Exporter{formatter: formatter, path: path, compress: compress}
}

// Export formats records and writes the result to the configured
// destination.
func (e *Exporter) Export(records []Record) error {
	formatted, err := e.formatter.Format(records)
	if err != nil {
		return errors.Wrap(err, "formatting output records")
	}
	return e.writeOutput(formatted, len(records))
}

// ExportRaw writes already-formatted bytes (e.g. from FormatCSV) to the
// configured destination, for formats that bypass the Formatter/Record
// pipeline. recordCount is used only for the completion log line.
func (e *Exporter) ExportRaw(formatted []byte, recordCount int) error {
	return e.writeOutput(formatted, recordCount)
}

func (e *Exporter) writeOutput(formatted []byte, recordCount int) error {
	var w io.Writer
	var closer io.Closer

	if e.path == "" {
		w = os.Stdout
	} else {
		f, err := os.Create(e.path)
		if err != nil {
			return errors.Wrapf(err, "creating output file %s", e.path)
		}
		w = f
		closer = f
	}

	if e.compress {
		gw := pgzip.NewWriter(w)
		if _, err := gw.Write(formatted); err != nil {
			gw.Close()
			if closer != nil {
				closer.Close()
			}
			return errors.Wrap(err, "writing compressed output")
		}
		if err := gw.Close(); err != nil {
			if closer != nil {
				closer.Close()
			}
			return errors.Wrap(err, "closing compressed output")
		}
	} else {
		if _, err := w.Write(formatted); err != nil {
			if closer != nil {
				closer.Close()
			}
			return errors.Wrap(err, "writing output")
		}
	}

	if closer != nil {
		if err := closer.Close(); err != nil {
			return errors.Wrap(err, "closing output file")
		}
	}

	if e.path != "" {
		exportLog.Info("exported results", zap.String("path", e.path), zap.Int("records", recordCount))
	}

	return nil
}
