package solver

import "gonum.org/v1/gonum/mat"

// qp is the dense standard-form problem handed to the ADMM solver:
//
//	minimize    0.5*x'*P*x + q'*x
//	subject to  l <= A*x <= u
//
// x is the concatenation of every registered variable's per-step entries,
// in Problem.order, offset order.
type qp struct {
	names  []string          // variable name per flat index
	offset map[string]int    // flat index of step 0 of each variable
	size   int                // total length of x
	lower  []float64          // box lower bound per flat index
	upper  []float64          // box upper bound per flat index
	P      *mat.SymDense
	q      []float64
	A      *mat.Dense // ineq rows (excludes the box rows, which are handled directly)
	l      []float64
	u      []float64
	integerIdx []int // flat indices of integer-constrained entries
}

// index returns the flat index of a VarRef, or -1 if unknown.
func (qp *qp) index(ref VarRef) int {
	off, ok := qp.offset[ref.Var]
	if !ok {
		return -1
	}
	return off + ref.Step
}

// build assembles the dense QP from the accumulated problem contributions.
func (p *Problem) build() (*qp, error) {
	size := 0
	offset := make(map[string]int, len(p.order))
	names := make([]string, 0)
	lower := make([]float64, 0)
	upper := make([]float64, 0)
	var integerIdx []int

	for _, name := range p.order {
		v := p.vars[name]
		offset[name] = size
		for k := 0; k < v.N; k++ {
			names = append(names, name)
			lower = append(lower, v.Lower[k])
			upper = append(upper, v.Upper[k])
			if v.Integer {
				integerIdx = append(integerIdx, size+k)
			}
		}
		size += v.N
	}

	out := &qp{
		names:      names,
		offset:     offset,
		size:       size,
		lower:      lower,
		upper:      upper,
		q:          make([]float64, size),
		integerIdx: integerIdx,
	}

	pDense := mat.NewSymDense(size, nil)

	addQuad := func(e Expr, weight float64) {
		// weight*(sum(c_i*x_i) + const)^2 expands to a rank-1 quadratic
		// contribution. Against the 0.5*x'*P*x + q'*x convention above,
		// that's 2*weight*c_i*c_j to P[i][j] and 2*weight*c_i*const to
		// q[i], plus a constant term we don't need to track (doesn't
		// affect argmin).
		for refI, ci := range e.Terms {
			i := out.index(refI)
			if i < 0 {
				continue
			}
			for refJ, cj := range e.Terms {
				j := out.index(refJ)
				if j < 0 {
					continue
				}
				pDense.SetSym(i, j, pDense.At(i, j)+2*weight*ci*cj)
			}
			out.q[i] += 2 * weight * ci * e.Const
		}
	}

	for _, qt := range p.quads {
		for _, e := range qt.exprs {
			addQuad(e, qt.weight)
		}
	}

	for _, lt := range p.linears {
		for _, e := range lt.exprs {
			for ref, c := range e.Terms {
				i := out.index(ref)
				if i < 0 {
					continue
				}
				out.q[i] += lt.weight * c
			}
		}
	}
	out.P = pDense

	// Assemble the general inequality rows (box bounds are handled
	// separately via out.lower/out.upper for efficiency).
	rows := len(p.ineqs)
	a := mat.NewDense(rows, size, nil)
	l := make([]float64, rows)
	u := make([]float64, rows)
	for r, ineq := range p.ineqs {
		for ref, c := range ineq.Expr.Terms {
			i := out.index(ref)
			if i < 0 {
				continue
			}
			a.Set(r, i, a.At(r, i)+c)
		}
		l[r] = ineq.Lower - ineq.Expr.Const
		u[r] = ineq.Upper - ineq.Expr.Const
	}
	out.A = a
	out.l = l
	out.u = u

	return out, nil
}
