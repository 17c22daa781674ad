package districtcooling

import (
	"context"
	"fmt"
	"math"
)

// Sense is the relation of a linear constraint.
type Sense int

const (
	Equal Sense = iota
	LessEqual
	GreaterEqual
)

func (s Sense) String() string {
	switch s {
	case Equal:
		return "=="
	case LessEqual:
		return "<="
	case GreaterEqual:
		return ">="
	default:
		return fmt.Sprintf("Sense(%d)", int(s))
	}
}

// Variable is a bounded decision variable. Use math.Inf for open bounds.
type Variable struct {
	Name  string
	Lower float64
	Upper float64
}

// Term is one coefficient of a linear expression.
type Term struct {
	Var  int
	Coef float64
}

// Constraint is sum(Terms) Sense RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a linear program: minimize c'x subject to linear constraints and
// variable bounds. A model is built once per optimization and handed whole
// to a Solver.
type Model struct {
	vars      []Variable
	index     map[string]int
	cons      []Constraint
	objective []float64
}

func NewModel() *Model {
	return &Model{index: map[string]int{}}
}

// AddVariable adds a variable and returns its column. Names must be unique.
func (m *Model) AddVariable(name string, lower, upper float64) int {
	if _, dup := m.index[name]; dup {
		panic(fmt.Sprintf("lp: duplicate variable %q", name))
	}
	m.vars = append(m.vars, Variable{Name: name, Lower: lower, Upper: upper})
	m.objective = append(m.objective, 0)
	m.index[name] = len(m.vars) - 1
	return len(m.vars) - 1
}

// Variable returns the column of a named variable.
func (m *Model) Variable(name string) (int, bool) {
	j, ok := m.index[name]
	return j, ok
}

// AddConstraint appends a constraint. Terms on the same variable are summed.
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	for _, t := range terms {
		if t.Var < 0 || t.Var >= len(m.vars) {
			panic(fmt.Sprintf("lp: constraint %q references unknown variable %d", name, t.Var))
		}
	}
	m.cons = append(m.cons, Constraint{Name: name, Terms: append([]Term(nil), terms...), Sense: sense, RHS: rhs})
}

// AddObjective adds c to the objective coefficient of a variable.
func (m *Model) AddObjective(v int, c float64) {
	m.objective[v] += c
}

func (m *Model) NumVariables() int   { return len(m.vars) }
func (m *Model) NumConstraints() int { return len(m.cons) }

func (m *Model) Variables() []Variable     { return append([]Variable(nil), m.vars...) }
func (m *Model) Constraints() []Constraint { return append([]Constraint(nil), m.cons...) }
func (m *Model) Objective() []float64      { return append([]float64(nil), m.objective...) }

// Evaluate returns the objective value at x.
func (m *Model) Evaluate(x []float64) float64 {
	f := 0.0
	for j, c := range m.objective {
		f += c * x[j]
	}
	return f
}

// Violation returns the largest bound or constraint violation at x and the
// name of the offending variable or constraint.
func (m *Model) Violation(x []float64) (float64, string) {
	worst, name := 0.0, ""
	for j, v := range m.vars {
		if d := v.Lower - x[j]; d > worst {
			worst, name = d, v.Name
		}
		if d := x[j] - v.Upper; d > worst {
			worst, name = d, v.Name
		}
	}
	for _, c := range m.cons {
		lhs := 0.0
		for _, t := range c.Terms {
			lhs += t.Coef * x[t.Var]
		}
		var d float64
		switch c.Sense {
		case Equal:
			d = math.Abs(lhs - c.RHS)
		case LessEqual:
			d = lhs - c.RHS
		case GreaterEqual:
			d = c.RHS - lhs
		}
		if d > worst {
			worst, name = d, c.Name
		}
	}
	return worst, name
}

// Solution is the result of a successful solve.
type Solution struct {
	Status    SolveStatus
	Objective float64
	X         []float64 // one value per model variable
}

// Value returns the value of a named variable.
func (s *Solution) Value(m *Model, name string) (float64, bool) {
	j, ok := m.Variable(name)
	if !ok || j >= len(s.X) {
		return 0, false
	}
	return s.X[j], true
}

// Solver is the LP engine boundary. Implementations return a *SolveError when
// no optimum is found.
type Solver interface {
	Solve(ctx context.Context, m *Model) (*Solution, error)
}
