package membrane

import "fmt"

// Group identifies a genotype x treatment category. The zero value marks a
// recording that matched no category.
type Group int

const (
	GroupUnassigned      Group = 0
	GroupWildTypeVehicle Group = 1
	GroupWildTypeDrug    Group = 2
	GroupKnockoutVehicle Group = 3
	GroupKnockoutDrug    Group = 4
)

// Groups lists the assignable categories in output order.
var Groups = []Group{GroupWildTypeVehicle, GroupWildTypeDrug, GroupKnockoutVehicle, GroupKnockoutDrug}

// String returns a short label for logs.
func (g Group) String() string {
	switch g {
	case GroupUnassigned:
		return "unassigned"
	case GroupWildTypeVehicle:
		return "wildtype/vehicle"
	case GroupWildTypeDrug:
		return "wildtype/drug"
	case GroupKnockoutVehicle:
		return "knockout/vehicle"
	case GroupKnockoutDrug:
		return "knockout/drug"
	default:
		return fmt.Sprintf("group(%d)", int(g))
	}
}

// Measurement is one recorded cell.
type Measurement struct {
	// Row is the 1-based data row in the source table (header excluded).
	Row       int
	Genotype  string
	Treatment string
	Mouse     string
	Current   float64 // pA
	Charge    float64 // pA*s

	InputResistance float64 // MOhm, set by Convert
	Capacitance     float64 // nF, set by Convert

	Group Group
	// N is the size of the row's group. Zero means the row carries no sample
	// size and is left out of every aggregate.
	N int

	// Fields holds the source cells aligned with Table.Columns. It is shared
	// between derived tables and must not be modified.
	Fields []string
}

// Table is an ordered set of measurements plus the source column names.
// Stages never modify a Table they receive; they return a new one.
type Table struct {
	Columns []string
	Rows    []Measurement

	converted  bool
	classified bool
}

// NewTable builds a table from source columns and rows. Both slices are copied.
func NewTable(columns []string, rows []Measurement) Table {
	return Table{
		Columns: append([]string(nil), columns...),
		Rows:    append([]Measurement(nil), rows...),
	}
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Converted reports whether the derived electrical columns are populated.
func (t Table) Converted() bool { return t.converted }

// Classified reports whether group and sample size columns are populated.
func (t Table) Classified() bool { return t.classified }

func (t Table) clone() Table {
	out := t
	out.Columns = append([]string(nil), t.Columns...)
	out.Rows = append([]Measurement(nil), t.Rows...)
	return out
}

// Summary holds the descriptive statistics of one measure.
type Summary struct {
	Mean float64
	STE  float64
	STD  float64
}

// Aggregate is one row of a descriptive table: a condition, or an animal
// within a condition when Mouse is set.
type Aggregate struct {
	Group     Group
	Genotype  string
	Treatment string
	Mouse     string

	// N is the group's sample size carried from the measurement rows.
	N int
	// Members counts the records pooled into this aggregate: cells for the
	// per-cell and per-animal tiers, animals for the per-condition tier.
	Members int

	InputResistance Summary
	Capacitance     Summary
}
