// Package membrane derives passive membrane properties from whole-cell recordings
// and summarises them per cell, per animal and per condition.
//
// # Core Components
//
// The analysis runs in three steps over an immutable measurement Table:
//
//  1. Conversion: input resistance (MOhm) from the steady-state current of a voltage
//     step, and capacitance (nF) from the charge transferred during the step
//  2. Classification: each recording is labelled with one of four genotype x
//     treatment groups by marker substrings, and every row carries its group's size
//  3. Aggregation: mean, standard deviation and standard error per condition,
//     per animal within a condition, and per condition over the animal means
//
// # Architecture
//
//   - types.go: Measurement, Table, Group and Aggregate
//   - convert.go: unit conversion of current and charge signals
//   - classify.go: marker matching, sample sizes and the unclassified-row policy
//   - aggregate.go: the three aggregation tiers
//
// # Usage Example
//
//	converted := membrane.Convert(table, membrane.DefaultStepMillivolts)
//	classified, err := membrane.AssignGroups(converted, membrane.DefaultMarkers(), membrane.PolicyExclude)
//	if err != nil {
//	    return err
//	}
//	perCell, err := membrane.PerCell(classified.Table)
//	if err != nil {
//	    return err
//	}
//	perSubject, err := membrane.MouseAverage(classified.Table)
//	if err != nil {
//	    return err
//	}
//	perCondition := membrane.PerMouse(perSubject)
//
// The per-condition tier averages animal means rather than pooling cells, so an
// animal contributes one value however many cells were recorded from it.
package membrane
