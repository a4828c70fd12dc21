package exporter

import (
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ephyscli/internal/membrane"
)

func sampleResults(t *testing.T, policy membrane.UnclassifiedPolicy) Results {
	t.Helper()
	columns := []string{"genotype", "treatment", "mouse", "current(pA)", "charge(pA*s)"}
	raw := [][]string{
		{"W", "vehicle", "m1", "-100", "-50"},
		{"W", "vehicle", "m1", "-200", "-60"},
		{"K", "rhosin", "m2", "-50", "-40"},
		{"X", "saline", "m3", "-10", "-10"},
	}
	rows := make([]membrane.Measurement, 0, len(raw))
	for i, r := range raw {
		rows = append(rows, membrane.Measurement{
			Row:       i + 1,
			Genotype:  r[0],
			Treatment: r[1],
			Mouse:     r[2],
			Current:   mustFloat(t, r[3]),
			Charge:    mustFloat(t, r[4]),
			Fields:    r,
		})
	}

	converted := membrane.Convert(membrane.NewTable(columns, rows), membrane.DefaultStepMillivolts)
	classified, err := membrane.AssignGroups(converted, membrane.DefaultMarkers(), policy)
	require.NoError(t, err)

	perCell, err := membrane.PerCell(classified.Table)
	require.NoError(t, err)
	mouseAvg, err := membrane.MouseAverage(classified.Table)
	require.NoError(t, err)

	return Results{
		Cells:        classified.Table,
		PerCell:      perCell,
		MouseAverage: mouseAvg,
		PerMouse:     membrane.PerMouse(mouseAvg),
	}
}

func mustFloat(t *testing.T, s string) float64 {
	t.Helper()
	f, err := strconv.ParseFloat(s, 64)
	require.NoError(t, err)
	return f
}

func TestRawSheet(t *testing.T) {
	res := sampleResults(t, membrane.PolicyExclude)
	sheet := RawSheet(KindPerCell, res.Cells)

	assert.Equal(t, []string{
		"genotype", "treatment", "mouse", "current(pA)", "charge(pA*s)",
		"inputR(MOhm)", "capacitance_q(nF)", "group", "n",
	}, sheet.Header)

	records := sheet.Records()
	require.Len(t, records, 5)
	assert.Equal(t, []string{"W", "vehicle", "m1", "-100", "-50", "100.0", "0.005", "1", "2"}, records[1])
	assert.Equal(t, []string{"K", "rhosin", "m2", "-50", "-40", "200.0", "0.004", "4", "1"}, records[3])
	// unclassified rows keep group 0 and no sample size
	assert.Equal(t, []string{"X", "saline", "m3", "-10", "-10", "1000.0", "0.001", "0", ""}, records[4])
}

func TestRawSheetOverwritesDerivedColumns(t *testing.T) {
	columns := []string{"genotype", "treatment", "mouse", "current(pA)", "charge(pA*s)", "group", "inputR(MOhm)", "note"}
	fields := []string{"W", "vehicle", "m1", "-100", "-50", "3", "1.0", "rerun"}
	table := membrane.NewTable(columns, []membrane.Measurement{{
		Row: 1, Genotype: "W", Treatment: "vehicle", Mouse: "m1",
		Current: -100, Charge: -50, Fields: fields,
	}})
	converted := membrane.Convert(table, membrane.DefaultStepMillivolts)
	classified, err := membrane.AssignGroups(converted, membrane.DefaultMarkers(), membrane.PolicyExclude)
	require.NoError(t, err)

	records := RawSheet(KindPerCell, classified.Table).Records()
	assert.Equal(t, []string{
		"genotype", "treatment", "mouse", "current(pA)", "charge(pA*s)", "group", "inputR(MOhm)", "note",
		"capacitance_q(nF)", "n",
	}, records[0])
	assert.Equal(t, []string{"W", "vehicle", "m1", "-100", "-50", "1", "100.0", "rerun", "0.005", "1"}, records[1])
}

func TestDescriptiveSheet(t *testing.T) {
	res := sampleResults(t, membrane.PolicyExclude)

	perCell := DescriptiveSheet(KindPerCellDesc, res.PerCell, false).Records()
	assert.Equal(t, []string{
		"group", "genotype", "treatment", "n",
		"inputR(MOhm)", "inputR_ste", "inputR_std",
		"capacitance_q(nF)", "capacitance_q_ste", "capacitance_q_std",
	}, perCell[0])
	require.Len(t, perCell, 3)

	wv := perCell[1]
	assert.Equal(t, []string{"1", "W", "vehicle", "2", "75.0"}, wv[:5])
	assert.NotEmpty(t, wv[6])

	// single-cell group: std and ste are empty
	kr := perCell[2]
	assert.Equal(t, []string{"4", "K", "rhosin", "1", "200.0", "", "", "0.004", "", ""}, kr)

	mouse := DescriptiveSheet(KindPerMouse, res.MouseAverage, true).Records()
	assert.Equal(t, "mouse", mouse[0][3])
	assert.Equal(t, []string{"1", "W", "vehicle", "m1", "2"}, mouse[1][:5])
}

func TestEncodeCSV(t *testing.T) {
	records := [][]string{{"a", "b,c"}, {"1", ""}}

	data, err := EncodeCSV(records, WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, "a,\"b,c\"\n1,\n", string(data))

	data, err = EncodeCSV(records, WriteOptions{BOMPrefix: true, Delimiter: ';'})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "\xEF\xBB\xBF"))
	assert.Equal(t, "a;b,c\n1;\n", strings.TrimPrefix(string(data), "\xEF\xBB\xBF"))
}

func TestFormatCell(t *testing.T) {
	assert.Equal(t, "", formatCell(nil))
	assert.Equal(t, "x", formatCell("x"))
	assert.Equal(t, "3", formatCell(3))
	assert.Equal(t, "-inf", formatCell(math.Inf(-1)))
	assert.Equal(t, "", formatCell(struct{}{}))
}
