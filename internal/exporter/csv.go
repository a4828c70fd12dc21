package exporter

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// WriteOptions configures CSV encoding
type WriteOptions struct {
	Delimiter rune
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// EncodeCSV renders records as CSV without an index column
func EncodeCSV(records [][]string, opts WriteOptions) ([]byte, error) {
	var buf bytes.Buffer

	if opts.BOMPrefix {
		buf.Write([]byte{0xEF, 0xBB, 0xBF})
	}

	writer := csv.NewWriter(&buf)
	if opts.Delimiter != 0 {
		writer.Comma = opts.Delimiter
	}

	for i, record := range records {
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
