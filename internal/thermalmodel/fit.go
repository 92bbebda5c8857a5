package thermalmodel

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/mat"
)

// Regularization weights of the ridge-regression fit objective. Small and
// fixed, matching cartesian/curve.go's own regression code, which never
// exposes tunables either - one documented constant set, not a config
// surface.
const (
	lambdaX = 1e-3
	lambdaU = 1e-3
	lambdaW = 1e-3
)

// MinSamples returns the minimum number of aligned historical samples
// required to fit a system of the given dimensions: at least Z·(Z+U+D)+1
// samples, below which the regression is underdetermined.
func MinSamples(zones, heaters, weatherChannels int) int {
	return zones*(zones+heaters+weatherChannels) + 1
}

// Fit solves the regularized least-squares problem:
//
//	minimize ||X[:,1:] - (Ax·X[:,:-1] + Au·U[:,:-1] + Aw·W[:,:-1])||_F² + λx||Ax||_F² + λu||Au||_F² + λw||Aw||_F²
//	subject to Au >= 0, row-sums of Ax <= 1, diag(Ax) >= 0
//
// X is Z×M, U is U×M, W is D×M (aligned historical samples, M columns).
// The Frobenius objective decomposes row-by-row across the Z output rows, so
// each zone's row of [Ax|Au|Aw] is found by independent ridge regression
// against the stacked regressor matrix, then projected onto the feasible
// set (Au clamped to >=0, Ax diagonal clamped to >=0, and any Ax row whose
// sum exceeds 1 rescaled back onto the constraint).
func Fit(X, U, W [][]float64, now time.Time) (*Model, error) {
	zones := len(X)
	if zones == 0 {
		return nil, fmt.Errorf("thermalmodel: fit requires at least one zone")
	}
	m := len(X[0])
	heaters := len(U)
	weatherChannels := len(W)

	need := MinSamples(zones, heaters, weatherChannels)
	if m < need {
		return nil, fmt.Errorf("thermalmodel: insufficient samples: have %d, need at least %d", m, need)
	}
	for _, row := range X {
		if len(row) != m {
			return nil, fmt.Errorf("thermalmodel: ragged X matrix")
		}
	}
	for _, row := range U {
		if len(row) != m {
			return nil, fmt.Errorf("thermalmodel: ragged U matrix")
		}
	}
	for _, row := range W {
		if len(row) != m {
			return nil, fmt.Errorf("thermalmodel: ragged W matrix")
		}
	}

	cols := m - 1
	regressors := zones + heaters + weatherChannels
	phi := mat.NewDense(regressors, cols, nil)
	for z := 0; z < zones; z++ {
		for c := 0; c < cols; c++ {
			phi.Set(z, c, X[z][c])
		}
	}
	for u := 0; u < heaters; u++ {
		for c := 0; c < cols; c++ {
			phi.Set(zones+u, c, U[u][c+1])
		}
	}
	for d := 0; d < weatherChannels; d++ {
		for c := 0; c < cols; c++ {
			phi.Set(zones+heaters+d, c, W[d][c+1])
		}
	}

	// Shared Gram matrix Phi*Phi' + diag(lambda), ridge-regularized per
	// regressor block so Ax/Au/Aw get their own lambda.
	var gram mat.Dense
	gram.Mul(phi, phi.T())
	gramSym := mat.NewSymDense(regressors, nil)
	for i := 0; i < regressors; i++ {
		for j := i; j < regressors; j++ {
			v := gram.At(i, j)
			if i == j {
				v += regularizerFor(i, zones, heaters)
			}
			gramSym.SetSym(i, j, v)
		}
	}
	var chol mat.Cholesky
	if ok := chol.Factorize(gramSym); !ok {
		return nil, fmt.Errorf("thermalmodel: regressor Gram matrix is not positive definite")
	}

	model := &Model{
		Ax:        make([][]float64, zones),
		Au:        make([][]float64, zones),
		Aw:        make([][]float64, zones),
		LearnedAt: now,
	}

	for z := 0; z < zones; z++ {
		// y is the target row: X[z, 1:].
		y := mat.NewVecDense(cols, X[z][1:])
		var phiY mat.VecDense
		phiY.MulVec(phi, y)

		var theta mat.VecDense
		if err := chol.SolveVecTo(&theta, &phiY); err != nil {
			return nil, fmt.Errorf("thermalmodel: solving zone %d: %w", z, err)
		}

		axRow := make([]float64, zones)
		auRow := make([]float64, heaters)
		awRow := make([]float64, weatherChannels)
		for i := 0; i < zones; i++ {
			axRow[i] = theta.AtVec(i)
		}
		for i := 0; i < heaters; i++ {
			v := theta.AtVec(zones + i)
			if v < 0 {
				v = 0 // Au >= 0
			}
			auRow[i] = v
		}
		for i := 0; i < weatherChannels; i++ {
			awRow[i] = theta.AtVec(zones + heaters + i)
		}

		if axRow[z] < 0 {
			axRow[z] = 0 // diag(Ax) >= 0
		}
		rowSum := 0.0
		for _, v := range axRow {
			rowSum += v
		}
		if rowSum > 1 {
			for i := range axRow {
				axRow[i] /= rowSum // row-sums of Ax <= 1
			}
		}

		model.Ax[z] = axRow
		model.Au[z] = auRow
		model.Aw[z] = awRow
	}

	return model, nil
}

// regularizerFor returns the ridge weight for regressor index i, which
// belongs to the Ax block (i < zones), the Au block, or the Aw block.
func regularizerFor(i, zones, heaters int) float64 {
	switch {
	case i < zones:
		return lambdaX
	case i < zones+heaters:
		return lambdaU
	default:
		return lambdaW
	}
}
