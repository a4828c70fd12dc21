package exporter

import (
	"ephyscli/internal/membrane"
)

// Derived and descriptive column names
const (
	ColInputResistance = "inputR(MOhm)"
	ColCapacitance     = "capacitance_q(nF)"
	ColGroup           = "group"
	ColN               = "n"
	ColGenotype        = "genotype"
	ColTreatment       = "treatment"
	ColMouse           = "mouse"
	ColInputRSTE       = "inputR_ste"
	ColInputRSTD       = "inputR_std"
	ColCapacitanceSTE  = "capacitance_q_ste"
	ColCapacitanceSTD  = "capacitance_q_std"
)

// Sheet is one output table with typed cells. Cells are string, int,
// float64 or nil.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]interface{}
}

// RawSheet renders the per-cell table: the input columns in input order
// followed by the derived electrical values, group code and sample size.
// An input column that already carries a derived name is overwritten in
// place, so a previous per-cell output can be read back in.
func RawSheet(name string, t membrane.Table) Sheet {
	header := append([]string(nil), t.Columns...)
	derived := []string{ColInputResistance, ColCapacitance, ColGroup, ColN}
	at := make([]int, len(derived))
	for d, col := range derived {
		at[d] = -1
		for i, existing := range header {
			if existing == col {
				at[d] = i
				break
			}
		}
		if at[d] < 0 {
			at[d] = len(header)
			header = append(header, col)
		}
	}

	rows := make([][]interface{}, 0, t.Len())
	for _, m := range t.Rows {
		row := make([]interface{}, len(header))
		for i := range t.Columns {
			if i < len(m.Fields) {
				row[i] = m.Fields[i]
			} else {
				row[i] = ""
			}
		}
		values := []interface{}{m.InputResistance, m.Capacitance, int(m.Group), count(m.N)}
		for d, v := range values {
			row[at[d]] = v
		}
		rows = append(rows, row)
	}
	return Sheet{Name: name, Header: header, Rows: rows}
}

// DescriptiveSheet renders aggregates. withMouse adds the mouse column used
// by the per-animal tier.
func DescriptiveSheet(name string, aggs []membrane.Aggregate, withMouse bool) Sheet {
	header := []string{ColGroup, ColGenotype, ColTreatment}
	if withMouse {
		header = append(header, ColMouse)
	}
	header = append(header,
		ColN,
		ColInputResistance, ColInputRSTE, ColInputRSTD,
		ColCapacitance, ColCapacitanceSTE, ColCapacitanceSTD,
	)

	rows := make([][]interface{}, 0, len(aggs))
	for _, a := range aggs {
		row := []interface{}{int(a.Group), a.Genotype, a.Treatment}
		if withMouse {
			row = append(row, a.Mouse)
		}
		row = append(row,
			count(a.N),
			a.InputResistance.Mean, a.InputResistance.STE, a.InputResistance.STD,
			a.Capacitance.Mean, a.Capacitance.STE, a.Capacitance.STD,
		)
		rows = append(rows, row)
	}
	return Sheet{Name: name, Header: header, Rows: rows}
}

// Records converts the sheet into CSV records, header first
func (s Sheet) Records() [][]string {
	records := make([][]string, 0, len(s.Rows)+1)
	records = append(records, append([]string(nil), s.Header...))
	for _, row := range s.Rows {
		record := make([]string, len(row))
		for i, cell := range row {
			record[i] = formatCell(cell)
		}
		records = append(records, record)
	}
	return records
}

func formatCell(cell interface{}) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return formatInt(v)
	case float64:
		return formatFloat(v)
	default:
		return ""
	}
}
