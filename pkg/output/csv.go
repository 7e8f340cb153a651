package output

import (
	"bytes"
	"encoding/csv"

	"github.com/AmnesiaBeing/someip-parser/pkg/someip"
)

// FormatCSV renders messages as a CSV document using each message's own
// CSVHeader/CSVRecord columns (the same convention netcap's audit records
// use), bypassing matrix name mapping since a CSV dump is a raw record
// export, not a human-facing report.
func FormatCSV(messages []someip.Message) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if len(messages) > 0 {
		if err := w.Write(messages[0].CSVHeader()); err != nil {
			return nil, err
		}
	}

	for _, msg := range messages {
		if err := w.Write(msg.CSVRecord()); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}
