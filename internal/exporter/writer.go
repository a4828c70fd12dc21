package exporter

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"ephyscli/internal/blob"
	"ephyscli/internal/config"
	apperrors "ephyscli/internal/errors"
	"ephyscli/internal/membrane"
)

// Artifact kinds, also used as workbook sheet names
const (
	KindPerCell      = "per_cell"
	KindPerCellDesc  = "per_cell_desc"
	KindPerMouse     = "per_mouse"
	KindPerMouseDesc = "per_mouse_desc"
	KindWorkbook     = "summary"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Results bundles the tables produced by one run
type Results struct {
	Cells        membrane.Table
	PerCell      []membrane.Aggregate
	MouseAverage []membrane.Aggregate
	PerMouse     []membrane.Aggregate
}

// Artifact is one persisted output
type Artifact struct {
	Kind string
	Info blob.Info
}

// Writer persists result tables to a blob store
type Writer struct {
	store    blob.Store
	opts     WriteOptions
	workbook bool
	logger   *slog.Logger
}

// NewWriter creates a Writer. workbook additionally emits the xlsx summary.
func NewWriter(store blob.Store, opts WriteOptions, workbook bool, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:    store,
		opts:     opts,
		workbook: workbook,
		logger:   logger.With("component", "exporter"),
	}
}

// Sheets returns the four output tables in write order
func Sheets(res Results) []Sheet {
	return []Sheet{
		RawSheet(KindPerCell, res.Cells),
		DescriptiveSheet(KindPerCellDesc, res.PerCell, false),
		DescriptiveSheet(KindPerMouse, res.MouseAverage, true),
		DescriptiveSheet(KindPerMouseDesc, res.PerMouse, false),
	}
}

// Write stores the four CSV tables under names, plus the workbook when
// enabled. metadata is attached to every blob. Writing stops at the first
// failure.
func (w *Writer) Write(ctx context.Context, names config.ArtifactNames, res Results, metadata map[string]string) ([]Artifact, error) {
	sheets := Sheets(res)
	keys := map[string]string{
		KindPerCell:      names.PerCell,
		KindPerCellDesc:  names.PerCellDesc,
		KindPerMouse:     names.PerMouse,
		KindPerMouseDesc: names.PerMouseDesc,
	}

	artifacts := make([]Artifact, 0, len(sheets)+1)
	for _, sheet := range sheets {
		data, err := EncodeCSV(sheet.Records(), w.opts)
		if err != nil {
			return artifacts, apperrors.NewStorageError("failed to encode CSV", err).WithContext("kind", sheet.Name)
		}
		art, err := w.put(ctx, sheet.Name, keys[sheet.Name], data, contentTypeCSV, metadata)
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, art)
	}

	if w.workbook {
		data, err := BuildWorkbook(sheets)
		if err != nil {
			return artifacts, apperrors.NewStorageError("failed to build workbook", err)
		}
		art, err := w.put(ctx, KindWorkbook, names.Workbook, data, contentTypeXLSX, metadata)
		if err != nil {
			return artifacts, err
		}
		artifacts = append(artifacts, art)
	}

	return artifacts, nil
}

func (w *Writer) put(ctx context.Context, kind, key string, data []byte, contentType string, metadata map[string]string) (Artifact, error) {
	if key == "" {
		return Artifact{}, apperrors.NewValidationError(fmt.Sprintf("no output name for %s", kind), nil)
	}

	md := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		md[k] = v
	}
	md["kind"] = kind

	info, err := w.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{ContentType: contentType, Metadata: md})
	if err != nil {
		return Artifact{}, apperrors.NewStorageError("failed to write artifact", err).
			WithContext("kind", kind).
			WithContext("key", key).
			WithContext("driver", string(w.store.Driver()))
	}

	w.logger.InfoContext(ctx, "Wrote artifact",
		slog.String("kind", kind),
		slog.String("key", key),
		slog.String("location", info.Location),
		slog.Int64("bytes", info.Size))

	return Artifact{Kind: kind, Info: info}, nil
}
