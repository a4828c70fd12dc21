// Package exporter renders pipeline results as CSV tables and an optional
// xlsx workbook, and persists them through a blob.Store.
//
// Four tables are produced for every run:
//
//	per_cell        input columns + inputR(MOhm), capacitance_q(nF), group, n
//	per_cell_desc   condition statistics pooled over cells
//	per_mouse       per-animal means and spread
//	per_mouse_desc  condition statistics over per-animal means
//
// CSV output has no index column. NaN is written as an empty cell and
// infinities as inf/-inf, matching what pandas and spreadsheet tools read
// back.
//
// Example usage:
//
//	w := exporter.NewWriter(store, exporter.WriteOptions{}, true, logger)
//	artifacts, err := w.Write(ctx, cfg.Output.Artifacts(input), results, map[string]string{"run_id": id})
package exporter
