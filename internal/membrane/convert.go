package membrane

// DefaultStepMillivolts is the hyperpolarising test step used by the recording protocol.
const DefaultStepMillivolts = -10.0

// InputResistance applies Ohm's law to the steady-state current (pA) of a step of
// stepMV millivolts and returns MOhm. A zero current or step is not trapped and
// yields ±Inf or NaN.
func InputResistance(current, stepMV float64) float64 {
	return (stepMV / (current / 1e9)) / 1e6
}

// Capacitance returns C = Q/V in nF for the charge (pA*s) moved by a step of
// stepMV millivolts.
func Capacitance(charge, stepMV float64) float64 {
	return (charge * 0.001) / (stepMV / 1000) / 1000
}

// Convert returns a copy of t with input resistance and capacitance derived
// for every row.
func Convert(t Table, stepMV float64) Table {
	out := t.clone()
	for i := range out.Rows {
		out.Rows[i].InputResistance = InputResistance(out.Rows[i].Current, stepMV)
		out.Rows[i].Capacitance = Capacitance(out.Rows[i].Charge, stepMV)
	}
	out.converted = true
	return out
}
