package solver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSolveBoxConstrainedQuadratic checks that a trivial quadratic objective
// with no coupling converges to the unconstrained minimum of each term when
// it lies within bounds.
func TestSolveBoxConstrainedQuadratic(t *testing.T) {
	p := NewProblem()
	require.NoError(t, p.AddVariable(Variable{Name: "x", N: 1, Lower: []float64{0}, Upper: []float64{10}}))
	// minimize (x - 4)^2
	p.AddQuadratic(1.0, []Expr{Term(1, "x", 0).Sub(NewExpr(4))})

	sol, err := p.Solve()
	require.NoError(t, err)
	require.True(t, sol.Status.Accepted(), "status = %s, want accepted", sol.Status)
	got := sol.Value(VarRef{Var: "x", Step: 0})
	assert.InDelta(t, 4, got, 0.05)
}

// TestSolveRespectsUpperBound checks that the inequality/box constraint
// binds when the unconstrained optimum lies outside it.
func TestSolveRespectsUpperBound(t *testing.T) {
	p := NewProblem()
	require.NoError(t, p.AddVariable(Variable{Name: "x", N: 1, Lower: []float64{0}, Upper: []float64{2}}))
	// minimize (x - 10)^2 subject to x <= 2 -> optimum is x=2
	p.AddQuadratic(1.0, []Expr{Term(1, "x", 0).Sub(NewExpr(10))})

	sol, err := p.Solve()
	require.NoError(t, err)
	require.True(t, sol.Status.Accepted(), "status = %s, want accepted", sol.Status)
	got := sol.Value(VarRef{Var: "x", Step: 0})
	assert.InDelta(t, 2, got, 0.1)
}

// TestSolveInfeasible checks that a box constraint on x combined with an
// inequality requiring x to be outside that box is reported as infeasible.
func TestSolveInfeasible(t *testing.T) {
	p := NewProblem()
	require.NoError(t, p.AddVariable(Variable{Name: "x", N: 1, Lower: []float64{0}, Upper: []float64{1}}))
	p.AddIneq(Ineq{Expr: Term(1, "x", 0), Lower: 5, Upper: posInf})
	p.AddQuadratic(1.0, []Expr{Term(1, "x", 0)})

	sol, err := p.Solve()
	require.NoError(t, err)
	assert.False(t, sol.Status.Accepted(), "status = %s, want a rejected status", sol.Status)
}

// TestSolveQuadraticWeighsCorrectlyAgainstLinear checks that a quadratic
// comfort term's pull against a competing linear cost matches the closed-form
// optimum of minimize weight*(x-target)^2 + lambda*x, i.e.
// x = target - lambda/(2*weight). A quadratic term scaled by only half its
// correct P/q contribution would pull the optimum twice as far from target.
func TestSolveQuadraticWeighsCorrectlyAgainstLinear(t *testing.T) {
	p := NewProblem()
	require.NoError(t, p.AddVariable(Variable{Name: "x", N: 1, Lower: []float64{-20}, Upper: []float64{20}}))
	const weight = 2.0
	const target = 5.0
	const lambda = 4.0
	p.AddQuadratic(weight, []Expr{Term(1, "x", 0).Sub(NewExpr(target))})
	p.AddLinearCost(lambda, []Expr{Term(1, "x", 0)})

	sol, err := p.Solve()
	require.NoError(t, err)
	require.True(t, sol.Status.Accepted(), "status = %s, want accepted", sol.Status)
	got := sol.Value(VarRef{Var: "x", Step: 0})
	want := target - lambda/(2*weight)
	assert.InDelta(t, want, got, 0.05)
}

// TestSolveBinaryVariable checks that branch-and-bound drives a binary
// variable to an integral 0/1 value.
func TestSolveBinaryVariable(t *testing.T) {
	p := NewProblem()
	require.NoError(t, p.AddVariable(Variable{Name: "u", N: 2, Lower: []float64{0, 0}, Upper: []float64{1, 1}, Integer: true}))
	// minimize (u[0]-1)^2 + (u[1]-0)^2 -> u[0]=1, u[1]=0
	p.AddQuadratic(1.0, []Expr{Term(1, "u", 0).Sub(NewExpr(1))})
	p.AddQuadratic(1.0, []Expr{Term(1, "u", 1)})

	sol, err := p.Solve()
	require.NoError(t, err)
	require.True(t, sol.Status.Accepted(), "status = %s, want accepted", sol.Status)
	u0 := sol.Value(VarRef{Var: "u", Step: 0})
	u1 := sol.Value(VarRef{Var: "u", Step: 1})
	assert.Contains(t, []float64{0, 1}, u0, "u[0] want integral")
	assert.Contains(t, []float64{0, 1}, u1, "u[1] want integral")
	assert.Equal(t, 1.0, u0)
	assert.Equal(t, 0.0, u1)
}
