package membrane

import (
	"fmt"
	"sort"
	"strings"
)

// Markers are the substrings that identify genotype and treatment. Matching is
// case-sensitive and the wild-type and vehicle markers are tried first.
type Markers struct {
	WildType string
	Knockout string
	Vehicle  string
	Drug     string
}

// DefaultMarkers returns the markers used by the rhosin study sheets.
func DefaultMarkers() Markers {
	return Markers{
		WildType: "W",
		Knockout: "K",
		Vehicle:  "vehicle",
		Drug:     "rhosin",
	}
}

// Classification is the outcome of matching one row against the markers.
type Classification struct {
	Group   Group
	Matched bool
}

// Matched returns a classification for group g.
func Matched(g Group) Classification { return Classification{Group: g, Matched: true} }

// Unclassified returns the classification of a row that matched no group.
func Unclassified() Classification { return Classification{Group: GroupUnassigned} }

// Classify maps genotype and treatment text to a group. Only one genotype branch
// is evaluated: a genotype holding the wild-type marker is never tested for the
// knockout marker, even when its treatment matches nothing.
func (m Markers) Classify(genotype, treatment string) Classification {
	switch {
	case strings.Contains(genotype, m.WildType):
		switch {
		case strings.Contains(treatment, m.Vehicle):
			return Matched(GroupWildTypeVehicle)
		case strings.Contains(treatment, m.Drug):
			return Matched(GroupWildTypeDrug)
		}
	case strings.Contains(genotype, m.Knockout):
		switch {
		case strings.Contains(treatment, m.Vehicle):
			return Matched(GroupKnockoutVehicle)
		case strings.Contains(treatment, m.Drug):
			return Matched(GroupKnockoutDrug)
		}
	}
	return Unclassified()
}

// UnclassifiedPolicy decides what happens to rows that match no group.
type UnclassifiedPolicy string

const (
	// PolicyExclude keeps unclassified rows in the table without a sample size,
	// which leaves them out of every aggregate.
	PolicyExclude UnclassifiedPolicy = "exclude"
	// PolicyFail rejects the table.
	PolicyFail UnclassifiedPolicy = "fail"
	// PolicySeparate aggregates unclassified rows as their own category.
	PolicySeparate UnclassifiedPolicy = "separate"
)

// ParseUnclassifiedPolicy validates a policy name. The empty string selects PolicyExclude.
func ParseUnclassifiedPolicy(s string) (UnclassifiedPolicy, error) {
	switch p := UnclassifiedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PolicyExclude, nil
	case PolicyExclude, PolicyFail, PolicySeparate:
		return p, nil
	default:
		return "", fmt.Errorf("unknown unclassified policy %q (want exclude, fail or separate)", s)
	}
}

// GroupCounts maps each group to its number of rows. Unclassified rows are
// counted under GroupUnassigned.
type GroupCounts map[Group]int

// Classified is the result of AssignGroups.
type Classified struct {
	Table  Table
	Counts GroupCounts
	// Unclassified lists the source row numbers that matched no group.
	Unclassified []int
}

// UnclassifiedError is returned under PolicyFail.
type UnclassifiedError struct {
	Rows []int
}

func (e *UnclassifiedError) Error() string {
	const shown = 10
	rows := e.Rows
	suffix := ""
	if len(rows) > shown {
		rows = rows[:shown]
		suffix = fmt.Sprintf(" and %d more", len(e.Rows)-shown)
	}
	return fmt.Sprintf("%d row(s) match no genotype/treatment group: rows %v%s", len(e.Rows), rows, suffix)
}

// AssignGroups labels every row with its group and writes the group's total
// row count back onto each member row.
func AssignGroups(t Table, m Markers, policy UnclassifiedPolicy) (Classified, error) {
	if policy == "" {
		policy = PolicyExclude
	}
	out := t.clone()
	counts := GroupCounts{}
	var unclassified []int

	for i := range out.Rows {
		row := &out.Rows[i]
		c := m.Classify(row.Genotype, row.Treatment)
		row.Group = c.Group
		row.N = 0
		counts[c.Group]++
		if !c.Matched {
			unclassified = append(unclassified, row.Row)
		}
	}

	if len(unclassified) > 0 && policy == PolicyFail {
		sort.Ints(unclassified)
		return Classified{}, &UnclassifiedError{Rows: unclassified}
	}

	for i := range out.Rows {
		row := &out.Rows[i]
		if row.Group == GroupUnassigned && policy != PolicySeparate {
			continue
		}
		row.N = counts[row.Group]
	}
	out.classified = true

	return Classified{Table: out, Counts: counts, Unclassified: unclassified}, nil
}
