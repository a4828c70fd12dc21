// Package dataprocessing loads patch-clamp measurement tables from CSV or
// Excel files into membrane.Table values.
//
// # Input Format
//
// The first row is a header. Five columns are required; others are carried
// through untouched and reappear in the per-cell output:
//
//	genotype, treatment, mouse, current(pA), charge(pA*s)
//
// The numeric columns also accept the bare names "current" and "charge".
// Header matching tries exact names first and then ignores case. A UTF-8
// BOM or zero-width characters in front of a header are removed.
//
// # Usage
//
//	reader := dataprocessing.NewReader(dataprocessing.ReadOptions{Delimiter: ';'}, logger)
//	table, err := reader.ReadFile(ctx, "membrane properties.csv")
//
// # Error Handling
//
// Failures are returned as *errors.AppError values:
//
//	- NOT_FOUND when the file, worksheet or a required column is missing
//	- PARSING when the file cannot be decoded or a number is malformed,
//	  with the data row and column attached as context
//
// Empty numeric cells are read as NaN and skipped by the statistics.
package dataprocessing
