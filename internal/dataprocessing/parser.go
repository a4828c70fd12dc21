package dataprocessing

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	apperrors "ephyscli/internal/errors"
	"ephyscli/internal/membrane"
)

// Column aliases accepted in the header row. The first entry of each list is
// the canonical name.
var (
	GenotypeColumns  = []string{"genotype"}
	TreatmentColumns = []string{"treatment"}
	MouseColumns     = []string{"mouse"}
	CurrentColumns   = []string{"current(pA)", "current"}
	ChargeColumns    = []string{"charge(pA*s)", "charge"}
)

// ReadOptions controls how input files are decoded
type ReadOptions struct {
	// Delimiter separates CSV fields. Zero means ','.
	Delimiter rune
	// Sheet selects the worksheet of an .xlsx input. Empty means the first.
	Sheet string
}

// Reader loads measurement tables from CSV or Excel files
type Reader struct {
	opts   ReadOptions
	logger *slog.Logger
}

// NewReader creates a Reader. A nil logger falls back to slog.Default.
func NewReader(opts ReadOptions, logger *slog.Logger) *Reader {
	if opts.Delimiter == 0 {
		opts.Delimiter = ','
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{opts: opts, logger: logger.With("component", "reader")}
}

// ParseDelimiter converts a one-character configuration value into a rune
func ParseDelimiter(s string) (rune, error) {
	if s == `\t` {
		return '\t', nil
	}
	if utf8.RuneCountInString(s) != 1 {
		return 0, apperrors.NewValidationError(fmt.Sprintf("delimiter must be a single character, got %q", s), nil)
	}
	r, _ := utf8.DecodeRuneInString(s)
	return r, nil
}

// ReadFile loads the measurement table at path. Files ending in .xlsx or
// .xlsm are read with excelize; everything else is treated as delimited text.
func (r *Reader) ReadFile(ctx context.Context, path string) (membrane.Table, error) {
	if err := ctx.Err(); err != nil {
		return membrane.Table{}, err
	}

	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		records, err = r.readWorkbook(path)
	default:
		records, err = r.readCSVFile(path)
	}
	if err != nil {
		return membrane.Table{}, err
	}

	table, err := ParseRecords(records)
	if err != nil {
		if appErr, ok := err.(*apperrors.AppError); ok {
			appErr.WithContext("path", path)
		}
		return membrane.Table{}, err
	}

	r.logger.InfoContext(ctx, "Loaded measurement table",
		slog.String("path", path),
		slog.Int("rows", table.Len()),
		slog.Int("columns", len(table.Columns)))
	return table, nil
}

// ReadCSV loads a measurement table from delimited text
func (r *Reader) ReadCSV(src io.Reader) (membrane.Table, error) {
	records, err := r.decodeCSV(src)
	if err != nil {
		return membrane.Table{}, err
	}
	return ParseRecords(records)
}

func (r *Reader) readCSVFile(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError("input file", err).WithContext("path", path)
		}
		return nil, apperrors.NewParsingError("failed to open input file", err).WithContext("path", path)
	}
	defer f.Close()

	records, err := r.decodeCSV(f)
	if err != nil {
		if appErr, ok := err.(*apperrors.AppError); ok {
			appErr.WithContext("path", path)
		}
		return nil, err
	}
	return records, nil
}

func (r *Reader) decodeCSV(src io.Reader) ([][]string, error) {
	cr := csv.NewReader(src)
	cr.Comma = r.opts.Delimiter
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read CSV", err)
	}
	return records, nil
}

func (r *Reader) readWorkbook(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperrors.NewNotFoundError("input file", err).WithContext("path", path)
		}
		return nil, apperrors.NewParsingError("failed to open workbook", err).WithContext("path", path)
	}
	defer f.Close()

	sheet := r.opts.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, apperrors.NewParsingError("workbook has no sheets", nil).WithContext("path", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.NewNotFoundError("worksheet", err).
			WithContext("path", path).
			WithContext("sheet", sheet)
	}

	r.logger.Debug("Read worksheet", slog.String("sheet", sheet), slog.Int("rows", len(rows)))
	return rows, nil
}

type columnIndices struct {
	genotype  int
	treatment int
	mouse     int
	current   int
	charge    int
}

// cleanHeader strips whitespace, a UTF-8 BOM and zero-width characters
func cleanHeader(col string) string {
	col = strings.TrimSpace(col)
	col = strings.TrimLeft(col, "\ufeff\u200b\u200c\u200d\u2060")
	return strings.TrimSpace(col)
}

// findColumn returns the index of the first header matching one of the
// aliases, trying exact matches before case-insensitive ones.
func findColumn(header []string, aliases []string) int {
	for _, alias := range aliases {
		for i, col := range header {
			if col == alias {
				return i
			}
		}
	}
	for _, alias := range aliases {
		for i, col := range header {
			if strings.EqualFold(col, alias) {
				return i
			}
		}
	}
	return -1
}

func findColumnIndices(header []string) (columnIndices, error) {
	var idx columnIndices
	lookups := []struct {
		aliases []string
		dst     *int
	}{
		{GenotypeColumns, &idx.genotype},
		{TreatmentColumns, &idx.treatment},
		{MouseColumns, &idx.mouse},
		{CurrentColumns, &idx.current},
		{ChargeColumns, &idx.charge},
	}

	for _, l := range lookups {
		*l.dst = findColumn(header, l.aliases)
		if *l.dst < 0 {
			return idx, apperrors.NewNotFoundError("required column", nil).
				WithContext("column", l.aliases[0]).
				WithContext("accepted", strings.Join(l.aliases, "|"))
		}
	}
	return idx, nil
}

// ParseRecords turns a header row plus data rows into a measurement table.
// Blank rows are skipped, short rows are padded, and empty numeric cells
// become NaN. Any other unparseable number fails with the row and column,
// as does a row with non-empty cells beyond the header.
func ParseRecords(records [][]string) (membrane.Table, error) {
	if len(records) == 0 {
		return membrane.Table{}, apperrors.NewParsingError("input has no header row", nil)
	}

	header := make([]string, len(records[0]))
	for i, col := range records[0] {
		header[i] = cleanHeader(col)
	}

	cols, err := findColumnIndices(header)
	if err != nil {
		return membrane.Table{}, err
	}

	rows := make([]membrane.Measurement, 0, len(records)-1)
	for i, record := range records[1:] {
		if isBlank(record) {
			continue
		}
		rowNum := i + 1
		if len(record) > len(header) && !isBlank(record[len(header):]) {
			return membrane.Table{}, apperrors.NewParsingError("row has more cells than the header", nil).
				WithContext("row", rowNum).
				WithContext("cells", len(record)).
				WithContext("columns", len(header))
		}

		fields := make([]string, len(header))
		copy(fields, record)

		current, err := parseNumber(fields[cols.current])
		if err != nil {
			return membrane.Table{}, numberError(err, rowNum, header[cols.current], fields[cols.current])
		}
		charge, err := parseNumber(fields[cols.charge])
		if err != nil {
			return membrane.Table{}, numberError(err, rowNum, header[cols.charge], fields[cols.charge])
		}

		rows = append(rows, membrane.Measurement{
			Row:       rowNum,
			Genotype:  fields[cols.genotype],
			Treatment: fields[cols.treatment],
			Mouse:     fields[cols.mouse],
			Current:   current,
			Charge:    charge,
			Fields:    fields,
		})
	}

	return membrane.NewTable(header, rows), nil
}

func isBlank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func numberError(err error, row int, column, value string) error {
	return apperrors.NewParsingError("invalid numeric value", err).
		WithContext("row", row).
		WithContext("column", column).
		WithContext("value", value)
}
