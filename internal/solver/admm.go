package solver

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	admmMaxIter  = 500
	admmRho      = 1.0
	admmSigma    = 1e-6
	admmTol      = 1e-4
	admmDivergeT = 1e8
)

// admmResult is the outcome of relaxing all integer variables to their box
// bounds and solving the resulting continuous QP with ADMM - a first-order
// conic-solver style oracle.
type admmResult struct {
	x        []float64
	status   Status
	residual float64
}

// solveRelaxation runs ADMM on the continuous relaxation of q, honoring the
// box bounds in q.lower/q.upper and the general rows in q.A/q.l/q.u.
// Integer variables are treated as continuous on [0,1] here; branchAndBound
// tightens their bounds across recursive calls to enforce integrality.
func solveRelaxation(q *qp) admmResult {
	n := q.size
	m := q.A.RawMatrix().Rows

	// Stack the general constraint rows with an identity block for the box
	// bounds, giving one unified "l <= Atotal*x <= u" system for ADMM.
	totalRows := m + n
	aTotal := mat.NewDense(totalRows, n, nil)
	lTotal := make([]float64, totalRows)
	uTotal := make([]float64, totalRows)
	if m > 0 {
		for r := 0; r < m; r++ {
			for c := 0; c < n; c++ {
				aTotal.Set(r, c, q.A.At(r, c))
			}
		}
		copy(lTotal[:m], q.l)
		copy(uTotal[:m], q.u)
	}
	for i := 0; i < n; i++ {
		aTotal.Set(m+i, i, 1)
		lTotal[m+i] = q.lower[i]
		uTotal[m+i] = q.upper[i]
	}

	// KKT matrix: (P + sigma*I + rho*A'A). Built once since rho/sigma are fixed.
	var ata mat.Dense
	ata.Mul(aTotal.T(), aTotal)

	kkt := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := q.P.At(i, j) + admmRho*ata.At(i, j)
			if i == j {
				v += admmSigma
			}
			kkt.SetSym(i, j, v)
		}
	}

	var chol mat.Cholesky
	ok := chol.Factorize(kkt)

	x := make([]float64, n)
	z := make([]float64, totalRows)
	y := make([]float64, totalRows)

	rhs := mat.NewVecDense(n, nil)
	sol := mat.NewVecDense(n, nil)

	status := StatusSolverError
	residual := math.Inf(1)

	for iter := 0; iter < admmMaxIter; iter++ {
		// x-update: minimize the augmented Lagrangian's quadratic part.
		for i := 0; i < n; i++ {
			v := -q.q[i] + admmSigma*x[i]
			rhs.SetVec(i, v)
		}
		// rhs += rho*A'*(z - y/rho) == rho*A'z - A'y
		rhoZMinusY := make([]float64, totalRows)
		for i := range rhoZMinusY {
			rhoZMinusY[i] = admmRho*z[i] - y[i]
		}
		atz := mat.NewVecDense(n, nil)
		atz.MulVec(aTotal.T(), mat.NewVecDense(totalRows, rhoZMinusY))
		for i := 0; i < n; i++ {
			rhs.SetVec(i, rhs.AtVec(i)+atz.AtVec(i))
		}

		if ok {
			if err := chol.SolveVecTo(sol, rhs); err != nil {
				return admmResult{status: StatusSolverError}
			}
		} else {
			var lu mat.LU
			lu.Factorize(kkt)
			if err := lu.SolveVecTo(sol, false, rhs); err != nil {
				return admmResult{status: StatusSolverError}
			}
		}
		for i := 0; i < n; i++ {
			x[i] = sol.AtVec(i)
			if math.IsNaN(x[i]) {
				return admmResult{status: StatusSolverError}
			}
			if math.Abs(x[i]) > admmDivergeT {
				// x is being driven to the bound of machine range rather than
				// oscillating or stalling: the cost has no lower bound over the
				// feasible set, not a numerical failure.
				return admmResult{status: StatusUnbounded}
			}
		}

		// z-update: project Ax + y/rho onto [l,u].
		ax := mat.NewVecDense(totalRows, nil)
		ax.MulVec(aTotal, mat.NewVecDense(n, x))
		maxViolation := 0.0
		for i := 0; i < totalRows; i++ {
			candidate := ax.AtVec(i) + y[i]/admmRho
			projected := math.Min(math.Max(candidate, lTotal[i]), uTotal[i])
			residualHere := math.Abs(ax.AtVec(i) - z[i])
			if residualHere > maxViolation {
				maxViolation = residualHere
			}
			z[i] = projected
			y[i] += admmRho * (ax.AtVec(i) - z[i])
		}

		residual = maxViolation
		if residual < admmTol {
			status = StatusOptimal
			break
		}
	}

	if status == StatusSolverError && residual < math.Inf(1) {
		// Hit the iteration cap without diverging: a residual within 50x
		// tolerance is accepted as OPTIMAL_INACCURATE; a larger one is
		// reported as INFEASIBLE.
		if residual < admmTol*50 {
			status = StatusOptimalInaccurate
		} else {
			status = StatusInfeasible
		}
	}

	return admmResult{x: x, status: status, residual: residual}
}
