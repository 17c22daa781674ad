package districtcooling

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

const (
	defaultSimplexTolerance = 1.0e-10
	presolveTolerance       = 1.0e-9
	feasibilityTolerance    = 1.0e-9
	independenceTolerance   = 1.0e-9
	scalingPasses           = 4
)

// SimplexSolver solves models with gonum's dense simplex method. Bounds and
// inequalities are moved into standard form by shifting variables and adding
// slack columns before the call.
type SimplexSolver struct {
	Tolerance float64 // reduced cost tolerance
	logger    zerolog.Logger
}

func NewSimplexSolver(opts ...Option) *SimplexSolver {
	o := newOptions(opts)
	return &SimplexSolver{Tolerance: defaultSimplexTolerance, logger: o.logger}
}

// Solve returns the optimum of m or a *SolveError.
func (s *SimplexSolver) Solve(ctx context.Context, m *Model) (*Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sf, err := newStandardForm(m)
	if err != nil {
		return nil, err
	}
	rows, cols := len(sf.b), len(sf.c)
	s.logger.Debug().
		Int("variables", m.NumVariables()).
		Int("constraints", m.NumConstraints()).
		Int("rows", rows).
		Int("columns", cols).
		Msg("simplex")

	y := make([]float64, cols)
	if rows > 0 {
		a, b, c, colScale := sf.equilibrate()
		tol := s.Tolerance
		if tol <= 0 {
			tol = defaultSimplexTolerance
		}
		z, err := solveStandard(c, a, b, tol)
		if err != nil {
			return nil, err
		}
		for k := range y {
			// every y is nonnegative, anything below is round-off
			y[k] = math.Max(z[k]*colScale[k], 0)
		}
	}

	x := sf.recover(y)
	return &Solution{Status: StatusOptimal, Objective: m.Evaluate(x), X: x}, nil
}

func simplexError(err error) *SolveError {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return &SolveError{Status: StatusInfeasible, Err: err}
	case errors.Is(err, lp.ErrUnbounded):
		return &SolveError{Status: StatusUnbounded, Err: err}
	default:
		return &SolveError{Status: StatusFailed, Err: err}
	}
}

// runSimplex calls the gonum engine. The engine panics on a singular or
// infeasible initial basis, which comes back as a failed solve.
func runSimplex(c []float64, a mat.Matrix, b []float64, tol float64, basis []int) (f float64, x []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			f, x, err = math.NaN(), nil, &SolveError{Status: StatusFailed, Err: fmt.Errorf("lp: %v", r)}
		}
	}()
	f, x, err = lp.Simplex(c, a, b, tol, basis)
	if err != nil {
		return f, nil, simplexError(err)
	}
	return f, x, nil
}

/*
Solves min c'z, A z = b, z >= 0 in two phases.

	Notes:
		Phase one minimizes the sum of one artificial column per row,
		starting from the identity basis they form. Its positive columns,
		completed to a basis over the independent rows, start phase two.
*/
func solveStandard(c []float64, a *mat.Dense, b []float64, tol float64) ([]float64, error) {
	rows, cols := a.Dims()
	a = mat.DenseCopyOf(a)
	b = append([]float64(nil), b...)
	for i := range b {
		if b[i] < 0 {
			b[i] = -b[i]
			floats.Scale(-1, a.RawRowView(i))
		}
	}

	aug := mat.NewDense(rows, cols+rows, nil)
	aug.Slice(0, rows, 0, cols).(*mat.Dense).Copy(a)
	cost := make([]float64, cols+rows)
	basis := make([]int, rows)
	for i := range basis {
		aug.Set(i, cols+i, 1)
		cost[cols+i] = 1
		basis[i] = cols + i
	}
	residual, z, err := runSimplex(cost, aug, b, tol, basis)
	if err != nil {
		return nil, err
	}
	if residual > feasibilityTolerance {
		return nil, &SolveError{Status: StatusInfeasible, Err: fmt.Errorf("%w: artificial residual %g", lp.ErrInfeasible, residual)}
	}
	z = z[:cols]

	var rowSpan span
	var keep []int
	for i := 0; i < rows; i++ {
		if rowSpan.add(a.RawRowView(i)) {
			keep = append(keep, i)
		}
	}
	if len(keep) == cols {
		// the rows leave a single point
		for k, v := range z {
			z[k] = math.Max(v, 0)
		}
		return z, nil
	}
	ar := mat.NewDense(len(keep), cols, nil)
	br := make([]float64, len(keep))
	for r, i := range keep {
		ar.SetRow(r, a.RawRowView(i))
		br[r] = b[i]
	}

	var colSpan span
	basis = basis[:0]
	chosen := make([]bool, cols)
	col := make([]float64, len(keep))
	pick := func(k int) {
		if chosen[k] || len(basis) == len(keep) {
			return
		}
		if colSpan.add(mat.Col(col, k, ar)) {
			basis = append(basis, k)
			chosen[k] = true
		}
	}
	for k, v := range z {
		if v > 0 {
			pick(k)
		}
	}
	for k := 0; k < cols; k++ {
		pick(k)
	}
	if len(basis) < len(keep) {
		return nil, &SolveError{Status: StatusFailed, Err: fmt.Errorf("%d independent columns for %d independent rows", len(basis), len(keep))}
	}

	_, z, err = runSimplex(c, ar, br, tol, basis)
	return z, err
}

// span is an orthonormal basis grown one vector at a time.
type span struct {
	q [][]float64
}

// add reports whether v is independent of the vectors added so far and
// keeps it if so.
func (s *span) add(v []float64) bool {
	norm := floats.Norm(v, 2)
	if norm == 0 {
		return false
	}
	r := append([]float64(nil), v...)
	for pass := 0; pass < 2; pass++ {
		for _, q := range s.q {
			floats.AddScaled(r, -floats.Dot(q, r), q)
		}
	}
	rn := floats.Norm(r, 2)
	if rn <= independenceTolerance*norm {
		return false
	}
	floats.Scale(1/rn, r)
	s.q = append(s.q, r)
	return true
}

// standardForm is min c'y, A y = b, y >= 0 with every model variable written
// as x_j = offset_j + sum(coef * y_col).
type standardForm struct {
	offset []float64
	cols   [][]Term // per model variable, Var indexes y
	rows   []map[int]float64
	b      []float64
	c      []float64
}

/*
Rewrites a model in standard form.

	Notes:
		lower only: x = l + y
		upper only: x = u - y
		both: x = l + y with the row y + s = u - l
		free: x = y+ - y-
		fixed (l == u): x = l, no column
		An equality left with one unfixed variable fixes it first.
		Inequalities get one slack column each. Rows without entries are
		dropped or reported infeasible, columns without entries are fixed at
		zero or reported unbounded.
*/
func newStandardForm(m *Model) (*standardForm, error) {
	lower, upper, err := fixSingletons(m)
	if err != nil {
		return nil, err
	}
	sf := &standardForm{
		offset: make([]float64, len(m.vars)),
		cols:   make([][]Term, len(m.vars)),
	}
	n := 0
	newCol := func() int { n++; return n - 1 }

	type upperRow struct {
		col   int
		bound float64
	}
	var uppers []upperRow

	for j, v := range m.vars {
		lo, up := lower[j], upper[j]
		switch {
		case math.IsNaN(lo) || math.IsNaN(up) || math.IsInf(lo, 1) || math.IsInf(up, -1) || lo > up:
			return nil, &SolveError{Status: StatusInfeasible, Err: fmt.Errorf("variable %q has empty bounds [%g, %g]", v.Name, lo, up)}
		case lo == up:
			sf.offset[j] = lo
		case !math.IsInf(lo, -1):
			sf.offset[j] = lo
			k := newCol()
			sf.cols[j] = []Term{{Var: k, Coef: 1}}
			if !math.IsInf(up, 1) {
				uppers = append(uppers, upperRow{col: k, bound: up - lo})
			}
		case !math.IsInf(up, 1):
			sf.offset[j] = up
			sf.cols[j] = []Term{{Var: newCol(), Coef: -1}}
		default:
			sf.cols[j] = []Term{{Var: newCol(), Coef: 1}, {Var: newCol(), Coef: -1}}
		}
	}

	for _, con := range m.cons {
		row := map[int]float64{}
		rhs := con.RHS
		for _, t := range con.Terms {
			rhs -= t.Coef * sf.offset[t.Var]
			for _, c := range sf.cols[t.Var] {
				row[c.Var] += t.Coef * c.Coef
			}
		}
		for k, v := range row {
			if v == 0 {
				delete(row, k)
			}
		}
		switch con.Sense {
		case LessEqual:
			row[newCol()] = 1
		case GreaterEqual:
			row[newCol()] = -1
		}
		if len(row) == 0 {
			if math.Abs(rhs) > presolveTolerance*(1+math.Abs(con.RHS)) {
				return nil, &SolveError{Status: StatusInfeasible, Err: fmt.Errorf("constraint %q reduces to 0 == %g", con.Name, rhs)}
			}
			continue
		}
		sf.rows = append(sf.rows, row)
		sf.b = append(sf.b, rhs)
	}
	for _, u := range uppers {
		sf.rows = append(sf.rows, map[int]float64{u.col: 1, newCol(): 1})
		sf.b = append(sf.b, u.bound)
	}

	cost := make([]float64, n)
	for j, cj := range m.objective {
		for _, c := range sf.cols[j] {
			cost[c.Var] += cj * c.Coef
		}
	}

	// drop columns that appear in no row
	used := make([]bool, n)
	for _, row := range sf.rows {
		for k := range row {
			used[k] = true
		}
	}
	remap := make([]int, n)
	kept := 0
	for k := 0; k < n; k++ {
		if !used[k] {
			if cost[k] < 0 {
				return nil, &SolveError{Status: StatusUnbounded, Err: fmt.Errorf("%w: unconstrained column with negative cost", lp.ErrUnbounded)}
			}
			remap[k] = -1
			continue
		}
		remap[k] = kept
		kept++
	}
	sf.c = make([]float64, kept)
	for k := 0; k < n; k++ {
		if remap[k] >= 0 {
			sf.c[remap[k]] = cost[k]
		}
	}
	for i, row := range sf.rows {
		r := make(map[int]float64, len(row))
		for k, v := range row {
			r[remap[k]] = v
		}
		sf.rows[i] = r
	}
	for j := range sf.cols {
		var terms []Term
		for _, c := range sf.cols[j] {
			if remap[c.Var] >= 0 {
				terms = append(terms, Term{Var: remap[c.Var], Coef: c.Coef})
			}
		}
		sf.cols[j] = terms
	}
	return sf, nil
}

// fixSingletons returns the variable bounds after fixing every variable that
// is the only unfixed one of an equality, repeated until none is left.
func fixSingletons(m *Model) (lower, upper []float64, err error) {
	lower = make([]float64, len(m.vars))
	upper = make([]float64, len(m.vars))
	for j, v := range m.vars {
		lower[j], upper[j] = v.Lower, v.Upper
	}
	for changed := true; changed; {
		changed = false
		for _, con := range m.cons {
			if con.Sense != Equal {
				continue
			}
			rhs, free, coef, single := con.RHS, -1, 0.0, true
			for _, t := range con.Terms {
				switch {
				case lower[t.Var] == upper[t.Var]:
					rhs -= t.Coef * lower[t.Var]
				case free < 0 || free == t.Var:
					free = t.Var
					coef += t.Coef
				default:
					single = false
				}
			}
			if !single || free < 0 || coef == 0 {
				continue
			}
			v := rhs / coef
			if math.IsNaN(v) || math.IsInf(v, 0) {
				continue
			}
			tol := presolveTolerance * (1 + math.Abs(v))
			if v < lower[free]-tol || v > upper[free]+tol {
				return nil, nil, &SolveError{Status: StatusInfeasible,
					Err: fmt.Errorf("constraint %q fixes %q at %g outside [%g, %g]", con.Name, m.vars[free].Name, v, lower[free], upper[free])}
			}
			v = math.Max(lower[free], math.Min(upper[free], v))
			lower[free], upper[free] = v, v
			changed = true
		}
	}
	return lower, upper, nil
}

/*
Scales the standard form to the magnitudes the engine's absolute tolerances
are made for.

	Returns:
		the scaled A, b and c, and the factor each scaled column value is
		multiplied by to give y
	Notes:
		A few geometric mean passes over rows and columns balance entries
		that differ by many orders, as J next to m3/s. Rows and columns are
		then scaled to a largest absolute entry of one, and b as a whole.
*/
func (sf *standardForm) equilibrate() (*mat.Dense, []float64, []float64, []float64) {
	rows, cols := len(sf.b), len(sf.c)
	a := mat.NewDense(rows, cols, nil)
	for i, row := range sf.rows {
		for k, v := range row {
			a.Set(i, k, v)
		}
	}
	b := append([]float64(nil), sf.b...)
	c := append([]float64(nil), sf.c...)
	colScale := make([]float64, cols)
	for k := range colScale {
		colScale[k] = 1
	}

	geometric := func(lo, hi float64) float64 { return math.Sqrt(lo * hi) }
	largest := func(lo, hi float64) float64 { return hi }
	scaleRows := func(factor func(lo, hi float64) float64) {
		for i := 0; i < rows; i++ {
			row := a.RawRowView(i)
			f := factor(magnitudes(row))
			floats.Scale(1/f, row)
			b[i] /= f
		}
	}
	col := make([]float64, rows)
	scaleCols := func(factor func(lo, hi float64) float64) {
		for k := 0; k < cols; k++ {
			mat.Col(col, k, a)
			f := factor(magnitudes(col))
			floats.Scale(1/f, col)
			a.SetCol(k, col)
			c[k] /= f
			colScale[k] /= f
		}
	}
	for pass := 0; pass < scalingPasses; pass++ {
		scaleRows(geometric)
		scaleCols(geometric)
	}
	scaleRows(largest)
	scaleCols(largest)

	if bmax := floats.Norm(b, math.Inf(1)); bmax > 0 {
		floats.Scale(1/bmax, b)
		floats.Scale(bmax, colScale)
	}
	return a, b, c, colScale
}

// magnitudes returns the smallest and largest absolute non-zero entry, or
// ones when there is none.
func magnitudes(v []float64) (lo, hi float64) {
	lo = math.Inf(1)
	for _, x := range v {
		if x = math.Abs(x); x != 0 {
			lo = math.Min(lo, x)
			hi = math.Max(hi, x)
		}
	}
	if hi == 0 {
		return 1, 1
	}
	return lo, hi
}

// recover maps a standard form point back to model variables.
func (sf *standardForm) recover(y []float64) []float64 {
	x := make([]float64, len(sf.offset))
	for j := range x {
		x[j] = sf.offset[j]
		for _, c := range sf.cols[j] {
			x[j] += c.Coef * y[c.Var]
		}
	}
	return x
}
