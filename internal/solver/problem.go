// Package solver is the convex/mixed-integer-convex optimization oracle
// behind the planner. It implements its own first-order oracle on top of
// gonum: an ADMM splitting solver for the continuous relaxation (in the
// spirit of embedded QP solvers like OSQP), wrapped by a branch-and-bound
// search over any binary variables a device model declares.
//
// Callers never build the dense problem matrices directly: device models
// contribute terms (quadratic comfort penalties, linear costs, infinity-norm
// penalties, and linear inequalities) expressed in terms of named, per-step
// variable references, and Problem.Solve assembles the dense QP.
package solver

import "fmt"

// VarRef names one scalar entry of a decision variable: the variable's name
// and the horizon step it belongs to.
type VarRef struct {
	Var  string
	Step int
}

// Expr is an affine expression over variable entries: sum(Terms[ref]*x[ref]) + Const.
type Expr struct {
	Terms map[VarRef]float64
	Const float64
}

// NewExpr returns an empty affine expression equal to the given constant.
func NewExpr(constant float64) Expr {
	return Expr{Terms: map[VarRef]float64{}, Const: constant}
}

// Term returns a single-variable affine expression: coeff*x[var,step].
func Term(coeff float64, varName string, step int) Expr {
	e := NewExpr(0)
	e.Terms[VarRef{Var: varName, Step: step}] = coeff
	return e
}

// Add returns the sum of e and other.
func (e Expr) Add(other Expr) Expr {
	out := NewExpr(e.Const + other.Const)
	for ref, c := range e.Terms {
		out.Terms[ref] += c
	}
	for ref, c := range other.Terms {
		out.Terms[ref] += c
	}
	return out
}

// Scale returns e multiplied by a scalar.
func (e Expr) Scale(k float64) Expr {
	out := NewExpr(e.Const * k)
	for ref, c := range e.Terms {
		out.Terms[ref] = c * k
	}
	return out
}

// Sub returns e - other.
func (e Expr) Sub(other Expr) Expr {
	return e.Add(other.Scale(-1))
}

// Variable is one decision variable of the problem, declared over N horizon
// steps with per-step bounds. Integer marks a 0/1 variable; the continuous relaxation bounds for an integer
// variable must be [0,1].
type Variable struct {
	Name    string
	N       int
	Lower   []float64
	Upper   []float64
	Integer bool
}

// Ineq is a general linear inequality Lower <= Expr <= Upper. Either bound
// may be +/-Inf for a one-sided constraint.
type Ineq struct {
	Expr  Expr
	Lower float64
	Upper float64
}

// quadTerm contributes Weight*sum(Exprs[k]^2) to the objective.
type quadTerm struct {
	exprs  []Expr
	weight float64
}

// linearTerm contributes Weight*sum(Exprs[k]) to the objective.
type linearTerm struct {
	exprs  []Expr
	weight float64
}

// Problem accumulates variables and objective/constraint contributions from
// each enabled device model, then assembles a dense QP for the solver.
type Problem struct {
	vars      map[string]Variable
	order     []string
	quads     []quadTerm
	linears   []linearTerm
	ineqs     []Ineq
	auxCount  int
}

// NewProblem returns an empty problem.
func NewProblem() *Problem {
	return &Problem{vars: map[string]Variable{}}
}

// AddVariable registers a decision variable. It is an error to register the
// same variable name twice, and integer variables must have [0,1] bounds at
// every step.
func (p *Problem) AddVariable(v Variable) error {
	if _, exists := p.vars[v.Name]; exists {
		return fmt.Errorf("variable %q already registered", v.Name)
	}
	if len(v.Lower) != v.N || len(v.Upper) != v.N {
		return fmt.Errorf("variable %q: bounds length must equal N=%d", v.Name, v.N)
	}
	if v.Integer {
		for k := 0; k < v.N; k++ {
			if v.Lower[k] < 0 || v.Upper[k] > 1 {
				return fmt.Errorf("variable %q: integer variable bounds must be within [0,1]", v.Name)
			}
		}
	}
	p.vars[v.Name] = v
	p.order = append(p.order, v.Name)
	return nil
}

// AddQuadratic adds weight*sum(e^2 for e in exprs) to the objective. Used
// for comfort terms: quadratic deviation of a state/dispatch expression
// from a target.
func (p *Problem) AddQuadratic(weight float64, exprs []Expr) {
	if weight == 0 || len(exprs) == 0 {
		return
	}
	p.quads = append(p.quads, quadTerm{exprs: exprs, weight: weight})
}

// AddLinearCost adds weight*sum(exprs) to the objective. Used for the
// global price cost and any linear device costs.
func (p *Problem) AddLinearCost(weight float64, exprs []Expr) {
	if weight == 0 || len(exprs) == 0 {
		return
	}
	p.linears = append(p.linears, linearTerm{exprs: exprs, weight: weight})
}

// AddIneq adds a general linear inequality constraint.
func (p *Problem) AddIneq(ineq Ineq) {
	p.ineqs = append(p.ineqs, ineq)
}

// AddInfNormPenalty adds weight*max_k(|exprs[k]|) to the objective via the
// standard epigraph expansion: a fresh auxiliary scalar variable m with
// m >= exprs[k] and m >= -exprs[k] for every k, and weight*m added as a
// linear cost. Used by space heating's "+100*max_{z,k}(...)" comfort
// penalty term.
func (p *Problem) AddInfNormPenalty(weight float64, exprs []Expr) error {
	if weight == 0 || len(exprs) == 0 {
		return nil
	}
	p.auxCount++
	auxName := fmt.Sprintf("_epi%d", p.auxCount)
	if err := p.AddVariable(Variable{
		Name:  auxName,
		N:     1,
		Lower: []float64{0},
		Upper: []float64{1e9},
	}); err != nil {
		return err
	}
	auxExpr := Term(1, auxName, 0)
	for _, e := range exprs {
		p.AddIneq(Ineq{Expr: auxExpr.Sub(e), Lower: 0, Upper: posInf})
		p.AddIneq(Ineq{Expr: auxExpr.Add(e), Lower: 0, Upper: posInf})
	}
	p.AddLinearCost(weight, []Expr{auxExpr})
	return nil
}

// Variables returns the registered variable names in declaration order.
func (p *Problem) Variables() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Variable returns the variable definition for name, if registered.
func (p *Problem) Variable(name string) (Variable, bool) {
	v, ok := p.vars[name]
	return v, ok
}

const posInf = 1e18
