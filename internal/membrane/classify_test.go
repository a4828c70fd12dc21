package membrane

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkers_Classify(t *testing.T) {
	m := DefaultMarkers()

	tests := []struct {
		name      string
		genotype  string
		treatment string
		want      Classification
	}{
		{name: "wild type vehicle", genotype: "WT", treatment: "vehicle", want: Matched(GroupWildTypeVehicle)},
		{name: "wild type drug", genotype: "WT", treatment: "rhosin 10uM", want: Matched(GroupWildTypeDrug)},
		{name: "knockout vehicle", genotype: "KO", treatment: "DMSO vehicle", want: Matched(GroupKnockoutVehicle)},
		{name: "knockout drug", genotype: "Fmr1 KO", treatment: "rhosin", want: Matched(GroupKnockoutDrug)},
		{name: "substring match", genotype: "Het-W/K", treatment: "vehicle", want: Matched(GroupWildTypeVehicle)},
		{name: "case sensitive", genotype: "wt", treatment: "vehicle", want: Unclassified()},
		{name: "unknown treatment", genotype: "KO", treatment: "saline", want: Unclassified()},
		{name: "wild type branch never falls through to knockout", genotype: "WK", treatment: "saline", want: Unclassified()},
		{name: "vehicle checked before drug", genotype: "KO", treatment: "vehicle+rhosin", want: Matched(GroupKnockoutVehicle)},
		{name: "empty fields", genotype: "", treatment: "", want: Unclassified()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Classify(tt.genotype, tt.treatment))
		})
	}
}

func TestParseUnclassifiedPolicy(t *testing.T) {
	for in, want := range map[string]UnclassifiedPolicy{
		"":         PolicyExclude,
		"exclude":  PolicyExclude,
		" FAIL ":   PolicyFail,
		"separate": PolicySeparate,
	} {
		got, err := ParseUnclassifiedPolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseUnclassifiedPolicy("ignore")
	assert.Error(t, err)
}

func TestAssignGroups_SampleSizes(t *testing.T) {
	rows := []rawRow{
		{"WT", "vehicle", "m1", -100, -50},
		{"WT", "vehicle", "m1", -120, -55},
		{"WT", "rhosin", "m2", -90, -40},
		{"KO", "vehicle", "m3", -150, -60},
		{"KO", "rhosin", "m4", -200, -80},
		{"KO", "rhosin", "m4", -210, -85},
		{"KO", "rhosin", "m5", -190, -75},
	}
	c := prepared(PolicyExclude, rows...)

	assert.Equal(t, 2, c.Counts[GroupWildTypeVehicle])
	assert.Equal(t, 1, c.Counts[GroupWildTypeDrug])
	assert.Equal(t, 1, c.Counts[GroupKnockoutVehicle])
	assert.Equal(t, 3, c.Counts[GroupKnockoutDrug])
	assert.Empty(t, c.Unclassified)
	assert.True(t, c.Table.Classified())

	m := DefaultMarkers()
	for _, row := range c.Table.Rows {
		assert.Equal(t, m.Classify(row.Genotype, row.Treatment).Group, row.Group)
		assert.Equal(t, c.Counts[row.Group], row.N, "row %d", row.Row)
	}
}

func TestAssignGroups_DoesNotModifyInput(t *testing.T) {
	in := Convert(buildTable(rawRow{"WT", "vehicle", "m1", -100, -50}), DefaultStepMillivolts)

	out, err := AssignGroups(in, DefaultMarkers(), PolicyExclude)
	require.NoError(t, err)

	assert.Equal(t, GroupUnassigned, in.Rows[0].Group)
	assert.Zero(t, in.Rows[0].N)
	assert.False(t, in.Classified())
	assert.Equal(t, GroupWildTypeVehicle, out.Table.Rows[0].Group)
	assert.Equal(t, 1, out.Table.Rows[0].N)
}

func TestAssignGroups_UnclassifiedPolicies(t *testing.T) {
	rows := []rawRow{
		{"WT", "vehicle", "m1", -100, -50},
		{"het", "vehicle", "m2", -100, -50},
		{"KO", "saline", "m3", -100, -50},
	}

	t.Run("exclude keeps rows without sample size", func(t *testing.T) {
		c := prepared(PolicyExclude, rows...)

		assert.Equal(t, []int{2, 3}, c.Unclassified)
		assert.Equal(t, 2, c.Counts[GroupUnassigned])
		require.Equal(t, 3, c.Table.Len())
		assert.Equal(t, 1, c.Table.Rows[0].N)
		assert.Zero(t, c.Table.Rows[1].N)
		assert.Zero(t, c.Table.Rows[2].N)
	})

	t.Run("separate sizes the unclassified category", func(t *testing.T) {
		c := prepared(PolicySeparate, rows...)

		assert.Equal(t, 2, c.Table.Rows[1].N)
		assert.Equal(t, 2, c.Table.Rows[2].N)
		assert.Equal(t, GroupUnassigned, c.Table.Rows[2].Group)
	})

	t.Run("fail reports rows", func(t *testing.T) {
		converted := Convert(buildTable(rows...), DefaultStepMillivolts)
		_, err := AssignGroups(converted, DefaultMarkers(), PolicyFail)
		require.Error(t, err)

		var uerr *UnclassifiedError
		require.True(t, errors.As(err, &uerr))
		assert.Equal(t, []int{2, 3}, uerr.Rows)
		assert.Contains(t, err.Error(), "2 row(s)")
	})
}

func TestUnclassifiedError_TruncatesRowList(t *testing.T) {
	rows := make([]int, 25)
	for i := range rows {
		rows[i] = i + 1
	}
	err := &UnclassifiedError{Rows: rows}
	assert.Contains(t, err.Error(), "25 row(s)")
	assert.Contains(t, err.Error(), "and 15 more")
}
