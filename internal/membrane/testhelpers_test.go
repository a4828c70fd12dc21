package membrane

import "strconv"

type rawRow struct {
	genotype, treatment, mouse string
	current, charge            float64
}

func buildTable(rows ...rawRow) Table {
	columns := []string{"genotype", "treatment", "mouse", "current(pA)", "charge(pA*s)"}
	ms := make([]Measurement, 0, len(rows))
	for i, r := range rows {
		ms = append(ms, Measurement{
			Row:       i + 1,
			Genotype:  r.genotype,
			Treatment: r.treatment,
			Mouse:     r.mouse,
			Current:   r.current,
			Charge:    r.charge,
			Fields: []string{
				r.genotype, r.treatment, r.mouse,
				strconv.FormatFloat(r.current, 'g', -1, 64),
				strconv.FormatFloat(r.charge, 'g', -1, 64),
			},
		})
	}
	return NewTable(columns, ms)
}

func prepared(policy UnclassifiedPolicy, rows ...rawRow) Classified {
	converted := Convert(buildTable(rows...), DefaultStepMillivolts)
	classified, err := AssignGroups(converted, DefaultMarkers(), policy)
	if err != nil {
		panic(err)
	}
	return classified
}
