package membrane

import (
	"errors"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// ErrNotClassified is returned when a table reaches aggregation before
// conversion and classification.
var ErrNotClassified = errors.New("membrane: table must be converted and classified before aggregation")

type groupKey struct {
	genotype  string
	treatment string
	mouse     string
}

func (k groupKey) less(o groupKey) bool {
	if k.genotype != o.genotype {
		return k.genotype < o.genotype
	}
	if k.treatment != o.treatment {
		return k.treatment < o.treatment
	}
	return k.mouse < o.mouse
}

type bucket struct {
	key     groupKey
	group   Group
	n       int
	ir      []float64
	cap     []float64
	members int
}

type bucketSet struct {
	order []groupKey
	byKey map[groupKey]*bucket
}

func newBucketSet() *bucketSet {
	return &bucketSet{byKey: make(map[groupKey]*bucket)}
}

func (s *bucketSet) add(k groupKey, g Group, n int, ir, capacitance float64) {
	b, ok := s.byKey[k]
	if !ok {
		b = &bucket{key: k, group: g, n: n}
		s.byKey[k] = b
		s.order = append(s.order, k)
	}
	b.ir = append(b.ir, ir)
	b.cap = append(b.cap, capacitance)
	b.members++
}

// aggregates turns buckets into rows ordered by key, then stably by group code.
func (s *bucketSet) aggregates() []Aggregate {
	keys := append([]groupKey(nil), s.order...)
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })

	out := make([]Aggregate, 0, len(keys))
	for _, k := range keys {
		b := s.byKey[k]
		out = append(out, Aggregate{
			Group:           b.group,
			Genotype:        k.genotype,
			Treatment:       k.treatment,
			Mouse:           k.mouse,
			N:               b.n,
			Members:         b.members,
			InputResistance: summarize(b.ir, b.n),
			Capacitance:     summarize(b.cap, b.n),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Group < out[j].Group })
	return out
}

// summarize returns mean, sample standard deviation and std/sqrt(n). NaN values
// are skipped; fewer than two values leave the deviation undefined (NaN).
func summarize(values []float64, n int) Summary {
	clean := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			clean = append(clean, v)
		}
	}
	s := Summary{Mean: math.NaN(), STD: math.NaN(), STE: math.NaN()}
	if len(clean) == 0 {
		return s
	}
	if len(clean) == 1 {
		s.Mean = clean[0]
		return s
	}
	s.Mean, s.STD = stat.MeanStdDev(clean, nil)
	s.STE = s.STD / math.Sqrt(float64(n))
	return s
}

func checkReady(t Table) error {
	if !t.Converted() || !t.Classified() {
		return ErrNotClassified
	}
	return nil
}

// PerCell summarises every cell of a condition, grouped by genotype and
// treatment text. Rows without a sample size are skipped.
func PerCell(t Table) ([]Aggregate, error) {
	if err := checkReady(t); err != nil {
		return nil, err
	}
	set := newBucketSet()
	for _, row := range t.Rows {
		if row.N <= 0 {
			continue
		}
		set.add(groupKey{genotype: row.Genotype, treatment: row.Treatment}, row.Group, row.N, row.InputResistance, row.Capacitance)
	}
	return set.aggregates(), nil
}

// MouseAverage collapses the cells of each animal within a condition into one
// record. The carried N stays the condition's cell count. Rows with a blank
// mouse ID belong to no animal and are left out.
func MouseAverage(t Table) ([]Aggregate, error) {
	if err := checkReady(t); err != nil {
		return nil, err
	}
	set := newBucketSet()
	for _, row := range t.Rows {
		if row.N <= 0 || isBlankMouse(row) {
			continue
		}
		k := groupKey{genotype: row.Genotype, treatment: row.Treatment, mouse: row.Mouse}
		set.add(k, row.Group, row.N, row.InputResistance, row.Capacitance)
	}
	return set.aggregates(), nil
}

// RowsWithoutMouse returns the row numbers of aggregated rows that
// MouseAverage leaves out for lack of a mouse ID.
func RowsWithoutMouse(t Table) []int {
	var rows []int
	for _, row := range t.Rows {
		if row.N > 0 && isBlankMouse(row) {
			rows = append(rows, row.Row)
		}
	}
	return rows
}

func isBlankMouse(m Measurement) bool { return strings.TrimSpace(m.Mouse) == "" }

// PerMouse summarises conditions over the per-animal means from MouseAverage,
// so each animal contributes a single value.
func PerMouse(collapsed []Aggregate) []Aggregate {
	set := newBucketSet()
	for _, a := range collapsed {
		k := groupKey{genotype: a.Genotype, treatment: a.Treatment}
		set.add(k, a.Group, a.N, a.InputResistance.Mean, a.Capacitance.Mean)
	}
	return set.aggregates()
}
