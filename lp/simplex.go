package lp

import (
	"context"
	"errors"
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"
	golp "gonum.org/v1/gonum/optimize/convex/lp"
)

// DefaultTolerance is the reduced-cost tolerance handed to the simplex.
const DefaultTolerance = 1e-10

// boundSnap pulls values this close to a bound onto the bound.
const boundSnap = 1e-9

// SimplexSolver solves models with gonum's dense simplex. It converts the
// model to standard form (minimize c'x, Ax = b, x >= 0) by shifting finite
// lower bounds, splitting free variables, adding a row per finite upper bound
// and a slack or surplus column per inequality.
//
// The tableau is dense, so cost grows with rows times columns. It is
// practical for models up to a few hundred variables and constraints; a
// TeaVar* model over a six node mesh with its full scenario set is already
// beyond it. Plug a sparse lp.Solver for larger instances.
type SimplexSolver struct {
	Tol float64
}

func NewSimplexSolver() *SimplexSolver {
	return &SimplexSolver{Tol: DefaultTolerance}
}

// column is one standard-form column contributing sign*x_col to a variable.
type column struct {
	col  int
	sign float64
}

type standardForm struct {
	c      []float64
	rows   [][]float64
	b      []float64
	offset []float64  // model variable = offset + sum(sign * x_col)
	cols   [][]column // per model variable
}

func (s *SimplexSolver) Solve(ctx context.Context, m *Model) (*Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	sf := toStandardForm(m)
	x, err := s.solveStandard(sf)
	if err != nil {
		return nil, fmt.Errorf("solve %s: %w", m.Name, err)
	}

	values := make([]float64, m.NumVars())
	for v := range values {
		val := sf.offset[v]
		for _, c := range sf.cols[v] {
			val += c.sign * x[c.col]
		}
		lb, ub := m.Bounds(Var(v))
		if math.Abs(val-lb) < boundSnap {
			val = lb
		}
		if math.Abs(val-ub) < boundSnap {
			val = ub
		}
		values[v] = val
	}

	sol := NewSolution(0, values)
	obj, _ := m.Objective()
	sol.Objective = sol.Eval(obj)
	log.Debugf("SimplexSolver.Solve: model=%s vars=%d constraints=%d objective=%.6f",
		m.Name, m.NumVars(), m.NumConstraints(), sol.Objective)
	return sol, nil
}

func toStandardForm(m *Model) *standardForm {
	sf := &standardForm{
		offset: make([]float64, m.NumVars()),
		cols:   make([][]column, m.NumVars()),
	}
	ncol := 0
	newCol := func() int {
		ncol++
		return ncol - 1
	}

	var upperRows []int // model variables needing an upper-bound row
	for v := range m.vars {
		lb, ub := m.vars[v].lb, m.vars[v].ub
		switch {
		case !math.IsInf(lb, -1):
			sf.offset[v] = lb
			sf.cols[v] = []column{{col: newCol(), sign: 1}}
			if !math.IsInf(ub, 1) {
				upperRows = append(upperRows, v)
			}
		case !math.IsInf(ub, 1):
			sf.offset[v] = ub
			sf.cols[v] = []column{{col: newCol(), sign: -1}}
		default:
			sf.cols[v] = []column{{col: newCol(), sign: 1}, {col: newCol(), sign: -1}}
		}
	}

	type row struct {
		coef  map[int]float64
		rhs   float64
		slack float64 // +1 for <=, -1 for >=, 0 for ==
	}
	var rows []row

	for _, c := range m.constraints {
		r := row{coef: make(map[int]float64), rhs: c.RHS - c.Expr.Constant}
		for _, t := range c.Expr.Terms {
			r.rhs -= t.Coef * sf.offset[t.Var]
			for _, col := range sf.cols[t.Var] {
				r.coef[col.col] += t.Coef * col.sign
			}
		}
		switch c.Rel {
		case LessEqual:
			r.slack = 1
		case GreaterEqual:
			r.slack = -1
		}
		rows = append(rows, r)
	}
	for _, v := range upperRows {
		r := row{coef: map[int]float64{sf.cols[v][0].col: 1}, rhs: m.vars[v].ub - m.vars[v].lb, slack: 1}
		rows = append(rows, r)
	}

	slackCols := make([]int, len(rows))
	for i, r := range rows {
		slackCols[i] = -1
		if r.slack != 0 {
			slackCols[i] = newCol()
		}
	}

	sf.c = make([]float64, ncol)
	obj, sense := m.Objective()
	for _, t := range obj.Terms {
		coef := t.Coef
		if sense == Maximize {
			coef = -coef
		}
		for _, col := range sf.cols[t.Var] {
			sf.c[col.col] += coef * col.sign
		}
	}

	sf.rows = make([][]float64, len(rows))
	sf.b = make([]float64, len(rows))
	for i, r := range rows {
		dense := make([]float64, ncol)
		for col, v := range r.coef {
			dense[col] = v
		}
		if slackCols[i] >= 0 {
			dense[slackCols[i]] = r.slack
		}
		rhs := r.rhs
		if rhs < 0 {
			for j := range dense {
				dense[j] = -dense[j]
			}
			rhs = -rhs
		}
		sf.rows[i] = dense
		sf.b[i] = rhs
	}
	return sf
}

// solveStandard drops empty rows and columns, which gonum rejects, and runs
// the simplex on what is left.
func (s *SimplexSolver) solveStandard(sf *standardForm) ([]float64, error) {
	n := len(sf.c)
	x := make([]float64, n)

	var keepRows []int
	for i, r := range sf.rows {
		empty := true
		for _, v := range r {
			if v != 0 {
				empty = false
				break
			}
		}
		if !empty {
			keepRows = append(keepRows, i)
			continue
		}
		if math.Abs(sf.b[i]) > boundSnap {
			return nil, ErrInfeasible
		}
	}

	var keepCols []int
	for j := 0; j < n; j++ {
		empty := true
		for _, i := range keepRows {
			if sf.rows[i][j] != 0 {
				empty = false
				break
			}
		}
		if !empty {
			keepCols = append(keepCols, j)
			continue
		}
		// An unconstrained column sits at zero unless it improves the
		// objective without limit.
		if sf.c[j] < 0 {
			return nil, ErrUnbounded
		}
	}

	if len(keepRows) == 0 {
		return x, nil
	}
	if len(keepRows) > len(keepCols) {
		return nil, fmt.Errorf("lp: %d rows over %d columns", len(keepRows), len(keepCols))
	}

	A := mat.NewDense(len(keepRows), len(keepCols), nil)
	b := make([]float64, len(keepRows))
	c := make([]float64, len(keepCols))
	for ri, i := range keepRows {
		b[ri] = sf.b[i]
		for ci, j := range keepCols {
			A.Set(ri, ci, sf.rows[i][j])
		}
	}
	for ci, j := range keepCols {
		c[ci] = sf.c[j]
	}

	tol := s.Tol
	if tol <= 0 {
		tol = DefaultTolerance
	}
	_, sub, err := golp.Simplex(c, A, b, tol, nil)
	if err != nil {
		switch {
		case errors.Is(err, golp.ErrInfeasible):
			return nil, ErrInfeasible
		case errors.Is(err, golp.ErrUnbounded):
			return nil, ErrUnbounded
		}
		return nil, err
	}
	for ci, j := range keepCols {
		x[j] = sub[ci]
	}
	return x, nil
}
