package config

import (
	"path"
	"path/filepath"
	"strings"
)

// ArtifactNames holds the object key of every artifact produced for one
// input file. Keys use forward slashes and are relative to the output root.
type ArtifactNames struct {
	PerCell      string
	PerCellDesc  string
	PerMouse     string
	PerMouseDesc string
	Workbook     string
}

// BaseName strips the directory and extension from an input path.
// "data/membrane properties.csv" becomes "membrane properties".
func BaseName(inputPath string) string {
	name := filepath.Base(inputPath)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// Artifacts derives the artifact keys for inputPath
func (o OutputConfig) Artifacts(inputPath string) ArtifactNames {
	base := BaseName(inputPath)
	key := func(suffix, ext string) string {
		name := base + suffix + ext
		if o.Prefix == "" {
			return name
		}
		return path.Join(filepath.ToSlash(o.Prefix), name)
	}

	return ArtifactNames{
		PerCell:      key(o.Suffixes.PerCell, ".csv"),
		PerCellDesc:  key(o.Suffixes.PerCellDesc, ".csv"),
		PerMouse:     key(o.Suffixes.PerMouse, ".csv"),
		PerMouseDesc: key(o.Suffixes.PerMouseDesc, ".csv"),
		Workbook:     key(o.Suffixes.Workbook, ".xlsx"),
	}
}

// ResolveDir returns the directory artifacts are written to by the fs
// driver: Output.Dir when set, otherwise the directory of the input file.
func (o OutputConfig) ResolveDir(inputPath string) string {
	if o.Dir != "" {
		return filepath.Clean(o.Dir)
	}
	return filepath.Dir(inputPath)
}
