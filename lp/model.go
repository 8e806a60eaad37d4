// Package lp describes linear programs and hands them to a Solver.
//
// Variables are opaque handles. Callers keep their own side table from Var to
// whatever the variable means (a demand/tunnel pair, a scenario loss, ...)
// and read values back through Solution.Value; names are for logging only.
package lp

import (
	"context"
	"errors"
	"fmt"
	"math"
)

var (
	ErrInfeasible = errors.New("lp: infeasible")
	ErrUnbounded  = errors.New("lp: unbounded")
)

// Inf is the bound used for unbounded variables.
var Inf = math.Inf(1)

type Var int

type Relation int

const (
	LessEqual Relation = iota
	GreaterEqual
	Equal
)

var relationNames = [...]string{
	LessEqual:    "<=",
	GreaterEqual: ">=",
	Equal:        "==",
}

func (r Relation) String() string { return relationNames[r] }

type Sense int

const (
	Minimize Sense = iota
	Maximize
)

type Term struct {
	Var  Var
	Coef float64
}

// Expr is a linear expression. The zero value is the empty expression.
type Expr struct {
	Terms    []Term
	Constant float64
}

func (e *Expr) Add(v Var, coef float64) *Expr {
	e.Terms = append(e.Terms, Term{Var: v, Coef: coef})
	return e
}

func (e *Expr) AddConstant(c float64) *Expr {
	e.Constant += c
	return e
}

// AddExpr appends scale*other to e.
func (e *Expr) AddExpr(other Expr, scale float64) *Expr {
	for _, t := range other.Terms {
		e.Terms = append(e.Terms, Term{Var: t.Var, Coef: t.Coef * scale})
	}
	e.Constant += other.Constant * scale
	return e
}

// Sum returns the expression sum(vars).
func Sum(vars ...Var) Expr {
	var e Expr
	for _, v := range vars {
		e.Add(v, 1)
	}
	return e
}

type Constraint struct {
	Name string
	Expr Expr
	Rel  Relation
	RHS  float64
}

type variable struct {
	name   string
	lb, ub float64
}

// Model is a linear program: an objective and constraints over variables.
type Model struct {
	Name        string
	vars        []variable
	constraints []Constraint
	objective   Expr
	sense       Sense
}

func NewModel(name string) *Model {
	return &Model{Name: name}
}

// AddVar adds a continuous variable with bounds lb <= v <= ub. Use -Inf/Inf
// for a missing bound.
func (m *Model) AddVar(name string, lb, ub float64) Var {
	m.vars = append(m.vars, variable{name: name, lb: lb, ub: ub})
	return Var(len(m.vars) - 1)
}

func (m *Model) AddConstraint(name string, e Expr, rel Relation, rhs float64) {
	m.constraints = append(m.constraints, Constraint{Name: name, Expr: e, Rel: rel, RHS: rhs})
}

func (m *Model) SetObjective(e Expr, sense Sense) {
	m.objective = e
	m.sense = sense
}

func (m *Model) NumVars() int                    { return len(m.vars) }
func (m *Model) NumConstraints() int             { return len(m.constraints) }
func (m *Model) Constraints() []Constraint       { return m.constraints }
func (m *Model) Objective() (Expr, Sense)        { return m.objective, m.sense }
func (m *Model) VarName(v Var) string            { return m.vars[v].name }
func (m *Model) Bounds(v Var) (float64, float64) { return m.vars[v].lb, m.vars[v].ub }

// Validate checks that every term refers to a variable of the model and that
// bounds are consistent.
func (m *Model) Validate() error {
	check := func(where string, e Expr) error {
		for _, t := range e.Terms {
			if int(t.Var) < 0 || int(t.Var) >= len(m.vars) {
				return fmt.Errorf("lp %s: %s refers to unknown variable %d", m.Name, where, t.Var)
			}
			if math.IsNaN(t.Coef) || math.IsInf(t.Coef, 0) {
				return fmt.Errorf("lp %s: %s has non-finite coefficient on %s", m.Name, where, m.vars[t.Var].name)
			}
		}
		return nil
	}
	for i, v := range m.vars {
		if v.lb > v.ub || math.IsInf(v.lb, 1) || math.IsInf(v.ub, -1) {
			return fmt.Errorf("lp %s: variable %d (%s) has bounds [%v, %v]", m.Name, i, v.name, v.lb, v.ub)
		}
	}
	if err := check("objective", m.objective); err != nil {
		return err
	}
	for i, c := range m.constraints {
		if math.IsNaN(c.RHS) || math.IsInf(c.RHS, 0) {
			return fmt.Errorf("lp %s: constraint %d (%s) has non-finite rhs", m.Name, i, c.Name)
		}
		if err := check(fmt.Sprintf("constraint %d (%s)", i, c.Name), c.Expr); err != nil {
			return err
		}
	}
	return nil
}

// Solution holds the optimal assignment of a Model.
type Solution struct {
	Objective float64
	values    []float64
}

func NewSolution(objective float64, values []float64) *Solution {
	return &Solution{Objective: objective, values: values}
}

func (s *Solution) Value(v Var) float64 { return s.values[v] }

// Eval evaluates e at the solution.
func (s *Solution) Eval(e Expr) float64 {
	total := e.Constant
	for _, t := range e.Terms {
		total += t.Coef * s.values[t.Var]
	}
	return total
}

// Solver is the boundary to a linear program solver. Solve returns the optimal
// point or an error; ErrInfeasible and ErrUnbounded are reported distinctly.
// Solve is synchronous; ctx is honoured before the solve starts.
type Solver interface {
	Solve(ctx context.Context, m *Model) (*Solution, error)
}
