// Package config provides configuration management for the membrane
// properties pipeline. It handles loading configuration from multiple
// sources, validation, and artifact naming.
//
// # Configuration Sources
//
// Configuration is loaded from the following sources in order of precedence:
//
//	1. Environment variables (highest priority)
//	2. YAML configuration file
//	3. Default values (lowest priority)
//
// # Environment Variables
//
// All environment variables follow the pattern MEMBRANE_<SECTION>_<FIELD>,
// with the field name split into words. Unprefixed names are never read.
//
//	MEMBRANE_INPUT_PATH=data/membrane\ properties.csv
//	MEMBRANE_PIPELINE_STEP_MV=-10
//	MEMBRANE_PIPELINE_UNCLASSIFIED=fail
//	MEMBRANE_OUTPUT_DRIVER=s3
//	MEMBRANE_OUTPUT_S3_BUCKET=ephys-results
//	MEMBRANE_ARCHIVE_DRIVER=sqlite
//	MEMBRANE_ARCHIVE_DSN=runs.db
//
// MEMBRANE_CONFIG names the YAML file when none is passed to Load.
//
// # Artifact Naming
//
// Output keys are derived from the input file name without its extension:
//
//	names := cfg.Output.Artifacts("membrane properties.csv")
//	// names.PerCell == "membrane properties_per_cell.csv"
//
// # Validation
//
// Configuration is validated at load time with go-playground/validator
// plus checks that span sections, such as an S3 bucket being required
// for the s3 driver.
package config
