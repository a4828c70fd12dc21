// Package operations runs the membrane-property pipeline.
//
// A run executes six steps in a fixed order:
//
//   - load: read the measurement table (CSV or xlsx)
//   - convert: derive input resistance and capacitance from the step voltage
//   - classify: assign genotype x treatment groups and sample sizes
//   - aggregate: per-cell, per-animal and mean-of-means descriptive tables
//   - write: persist the four tables (and optional workbook) to a blob store
//   - archive: record the run in the SQL archive, when one is configured
//
// Each step's progress is tracked in a StepState. The first failure marks
// the remaining steps skipped and aborts the run. Every step gets its own
// span, and step durations are recorded in the pipeline metrics.
//
// Example usage:
//
//	reader := dataprocessing.NewReader(dataprocessing.ReadOptions{Delimiter: ','}, logger)
//	writer := exporter.NewWriter(store, exporter.WriteOptions{Delimiter: ','}, false, logger)
//	p := operations.NewPipeline(reader, writer, operations.WithLogger(logger))
//	report, err := p.Run(ctx, operations.DefaultOptions("recordings.csv"))
package operations
