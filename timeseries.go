package districtcooling

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// TimeSeries is an element x step table. Rows follow a fixed id order (lines,
// nodes or buildings), columns are the steps of the shared horizon.
type TimeSeries struct {
	ids   []string
	index map[string]int
	steps int
	data  []float64 // row major, [len(ids) * steps]
}

// NewTimeSeries returns a zero series for the given ids and number of steps.
func NewTimeSeries(ids []string, steps int) *TimeSeries {
	if steps < 0 {
		panic("negative number of steps")
	}
	s := &TimeSeries{
		ids:   append([]string(nil), ids...),
		index: make(map[string]int, len(ids)),
		steps: steps,
		data:  make([]float64, len(ids)*steps),
	}
	for i, id := range s.ids {
		if _, dup := s.index[id]; dup {
			panic(fmt.Sprintf("duplicate series id %q", id))
		}
		s.index[id] = i
	}
	return s
}

// ConstantTimeSeries returns a series holding v everywhere.
func ConstantTimeSeries(ids []string, steps int, v float64) *TimeSeries {
	s := NewTimeSeries(ids, steps)
	for i := range s.data {
		s.data[i] = v
	}
	return s
}

func (s *TimeSeries) IDs() []string { return append([]string(nil), s.ids...) }
func (s *TimeSeries) Steps() int    { return s.steps }
func (s *TimeSeries) Len() int      { return len(s.ids) }

// Index returns the row of an id.
func (s *TimeSeries) Index(id string) (int, bool) {
	i, ok := s.index[id]
	return i, ok
}

func (s *TimeSeries) row(id string) int {
	i, ok := s.index[id]
	if !ok {
		panic(fmt.Sprintf("unknown series id %q", id))
	}
	return i
}

func (s *TimeSeries) At(id string, step int) float64     { return s.AtIndex(s.row(id), step) }
func (s *TimeSeries) Set(id string, step int, v float64) { s.SetIndex(s.row(id), step, v) }

func (s *TimeSeries) AtIndex(i, step int) float64 {
	s.checkStep(step)
	return s.data[i*s.steps+step]
}

func (s *TimeSeries) SetIndex(i, step int, v float64) {
	s.checkStep(step)
	s.data[i*s.steps+step] = v
}

func (s *TimeSeries) checkStep(step int) {
	if step < 0 || step >= s.steps {
		panic(fmt.Sprintf("step %d out of range [0, %d)", step, s.steps))
	}
}

// Row returns a copy of the values of one id over the horizon.
func (s *TimeSeries) Row(id string) []float64 {
	i := s.row(id)
	return append([]float64(nil), s.data[i*s.steps:(i+1)*s.steps]...)
}

// SetRow overwrites the values of one id over the horizon.
func (s *TimeSeries) SetRow(id string, values []float64) {
	if len(values) != s.steps {
		panic(fmt.Sprintf("row of length %d for %d steps", len(values), s.steps))
	}
	i := s.row(id)
	copy(s.data[i*s.steps:(i+1)*s.steps], values)
}

// Column returns the values of all ids at one step, in id order.
func (s *TimeSeries) Column(step int) []float64 {
	s.checkStep(step)
	col := make([]float64, len(s.ids))
	for i := range s.ids {
		col[i] = s.data[i*s.steps+step]
	}
	return col
}

// Matrix returns a copy of the series as a dense [ids, steps] matrix.
// It panics on an empty series, as gonum does for zero sized matrices.
func (s *TimeSeries) Matrix() *mat.Dense {
	return mat.NewDense(len(s.ids), s.steps, append([]float64(nil), s.data...))
}

func (s *TimeSeries) Clone() *TimeSeries {
	c := NewTimeSeries(s.ids, s.steps)
	copy(c.data, s.data)
	return c
}

// Sum returns the sum over all ids at each step.
func (s *TimeSeries) Sum() []float64 {
	out := make([]float64, s.steps)
	for i := range s.ids {
		floats.Add(out, s.data[i*s.steps:(i+1)*s.steps])
	}
	return out
}

// Total returns the sum over all ids and steps.
func (s *TimeSeries) Total() float64 { return floats.Sum(s.data) }

// SameShape reports whether o has the same ids in the same order and the same horizon.
func (s *TimeSeries) SameShape(o *TimeSeries) bool {
	return o != nil && s.steps == o.steps && sameIDs(s.ids, o.ids)
}

// MaxAbsDiff returns the largest element-wise |s - o|. Both series must have
// the same shape.
func (s *TimeSeries) MaxAbsDiff(o *TimeSeries) float64 {
	if !s.SameShape(o) {
		panic("time series shape mismatch")
	}
	if len(s.data) == 0 {
		return 0
	}
	return floats.Distance(s.data, o.data, math.Inf(1))
}

// Mean returns the element-wise arithmetic mean of s and o.
func (s *TimeSeries) Mean(o *TimeSeries) *TimeSeries {
	if !s.SameShape(o) {
		panic("time series shape mismatch")
	}
	m := s.Clone()
	floats.Add(m.data, o.data)
	floats.Scale(0.5, m.data)
	return m
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
