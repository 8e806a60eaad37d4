package lp

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-6

func TestSimplexMaximize(t *testing.T) {
	// max x + y  s.t.  x + 2y <= 4, 3x + y <= 6
	m := NewModel("max")
	x := m.AddVar("x", 0, Inf)
	y := m.AddVar("y", 0, Inf)

	c1 := Sum(x)
	c1.Add(y, 2)
	m.AddConstraint("c1", c1, LessEqual, 4)
	c2 := Expr{}
	c2.Add(x, 3).Add(y, 1)
	m.AddConstraint("c2", c2, LessEqual, 6)
	m.SetObjective(Sum(x, y), Maximize)

	sol, err := NewSimplexSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	assert.InDelta(t, 1.6, sol.Value(x), tol)
	assert.InDelta(t, 1.2, sol.Value(y), tol)
	assert.InDelta(t, 2.8, sol.Objective, tol)
}

func TestSimplexBoundsAndFreeVariables(t *testing.T) {
	// min -x + 0.5z  s.t. 1 <= x <= 3, z free, z >= x - 5
	m := NewModel("bounds")
	x := m.AddVar("x", 1, 3)
	z := m.AddVar("z", math.Inf(-1), Inf)

	diff := Expr{}
	diff.Add(z, 1).Add(x, -1)
	m.AddConstraint("z>=x-5", diff, GreaterEqual, -5)

	obj := Expr{}
	obj.Add(x, -1).Add(z, 0.5)
	m.SetObjective(obj, Minimize)

	sol, err := NewSimplexSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	assert.InDelta(t, 3, sol.Value(x), tol)
	assert.InDelta(t, -2, sol.Value(z), tol)
	assert.InDelta(t, -4, sol.Objective, tol)
}

func TestSimplexEquality(t *testing.T) {
	// min x + y s.t. x + y == 5, x - y == 1
	m := NewModel("eq")
	x := m.AddVar("x", 0, Inf)
	y := m.AddVar("y", 0, Inf)
	m.AddConstraint("sum", Sum(x, y), Equal, 5)
	d := Expr{}
	d.Add(x, 1).Add(y, -1)
	m.AddConstraint("diff", d, Equal, 1)
	m.SetObjective(Sum(x, y), Minimize)

	sol, err := NewSimplexSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	assert.InDelta(t, 3, sol.Value(x), tol)
	assert.InDelta(t, 2, sol.Value(y), tol)
}

func TestSimplexInfeasible(t *testing.T) {
	m := NewModel("infeasible")
	x := m.AddVar("x", 0, Inf)
	m.AddConstraint("low", Sum(x), LessEqual, 1)
	m.AddConstraint("high", Sum(x), GreaterEqual, 2)
	m.SetObjective(Sum(x), Maximize)

	_, err := NewSimplexSolver().Solve(context.Background(), m)
	assert.True(t, errors.Is(err, ErrInfeasible), "expected ErrInfeasible, got %v", err)
}

func TestSimplexUnbounded(t *testing.T) {
	m := NewModel("unbounded")
	x := m.AddVar("x", 0, Inf)
	y := m.AddVar("y", 0, Inf)
	d := Expr{}
	d.Add(x, 1).Add(y, -1)
	m.AddConstraint("d", d, LessEqual, 1)
	m.SetObjective(Sum(x, y), Maximize)

	_, err := NewSimplexSolver().Solve(context.Background(), m)
	assert.True(t, errors.Is(err, ErrUnbounded), "expected ErrUnbounded, got %v", err)
}

func TestSimplexUnconstrainedVariable(t *testing.T) {
	// y appears in no constraint and is minimized: it stays at its bound.
	m := NewModel("loose")
	x := m.AddVar("x", 0, Inf)
	y := m.AddVar("y", 2, Inf)
	m.AddConstraint("x", Sum(x), LessEqual, 4)
	obj := Expr{}
	obj.Add(x, -1).Add(y, 1)
	m.SetObjective(obj, Minimize)

	sol, err := NewSimplexSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	assert.InDelta(t, 4, sol.Value(x), tol)
	assert.InDelta(t, 2, sol.Value(y), tol)
}

func TestSimplexNoConstraints(t *testing.T) {
	m := NewModel("empty")
	x := m.AddVar("x", 0, 10)
	m.SetObjective(Sum(x), Minimize)

	sol, err := NewSimplexSolver().Solve(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sol.Value(x))
}

func TestSimplexCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSimplexSolver().Solve(ctx, NewModel("cancelled"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModelValidate(t *testing.T) {
	m := NewModel("bad")
	m.AddVar("x", 5, 1)
	assert.Error(t, m.Validate())

	m = NewModel("bad-ref")
	m.AddVar("x", 0, Inf)
	m.SetObjective(Sum(Var(3)), Minimize)
	assert.Error(t, m.Validate())
}
