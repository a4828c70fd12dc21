package membrane

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputResistance(t *testing.T) {
	tests := []struct {
		name    string
		current float64
		want    float64
	}{
		{name: "negative current", current: -100, want: 100},
		{name: "larger current halves resistance", current: -200, want: 50},
		{name: "positive current flips sign", current: 100, want: -100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, InputResistance(tt.current, DefaultStepMillivolts), 1e-9)
		})
	}
}

func TestInputResistance_MatchesOhmsLawExactly(t *testing.T) {
	for _, i := range []float64{-100, -37.5, -1234.25, 0.5, 250} {
		assert.Equal(t, -10/(i/1e9)/1e6, InputResistance(i, -10), "current %v", i)
	}
}

func TestCapacitance(t *testing.T) {
	for _, q := range []float64{-50, -80, 12.5, 0.001} {
		assert.Equal(t, (q*0.001)/(-10.0/1000)/1000, Capacitance(q, -10), "charge %v", q)
	}
	assert.InDelta(t, 0.005, Capacitance(-50, DefaultStepMillivolts), 1e-12)
}

func TestConversion_ZeroValuesPropagate(t *testing.T) {
	assert.True(t, math.IsInf(InputResistance(0, -10), -1))
	assert.Equal(t, 0.0, InputResistance(-100, 0))
	assert.True(t, math.IsInf(Capacitance(-50, 0), -1))
	assert.True(t, math.IsNaN(Capacitance(0, 0)))
}

func TestConvert_DoesNotModifyInput(t *testing.T) {
	in := buildTable(
		rawRow{"WT", "vehicle", "m1", -100, -50},
		rawRow{"KO", "rhosin", "m2", -200, -80},
	)

	out := Convert(in, DefaultStepMillivolts)

	require.Equal(t, 2, out.Len())
	assert.True(t, out.Converted())
	assert.False(t, in.Converted())
	assert.Zero(t, in.Rows[0].InputResistance)
	assert.InDelta(t, 100, out.Rows[0].InputResistance, 1e-9)
	assert.InDelta(t, 50, out.Rows[1].InputResistance, 1e-9)
	assert.InDelta(t, 0.008, out.Rows[1].Capacitance, 1e-12)
}
