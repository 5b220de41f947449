package gbm

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func syntheticData(n int, seed int64) ([][]float64, []float64) {
	rng := rand.New(rand.NewSource(seed))
	x0 := make([]float64, n)
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x0[i] = rng.Float64() * 10
		x1[i] = float64(rng.Intn(4))
		x2[i] = rng.NormFloat64()
		y[i] = 3*x0[i] + 2*x1[i] + rng.NormFloat64()*0.1
		if i%11 == 0 {
			x2[i] = math.NaN()
		}
	}
	return [][]float64{x0, x1, x2}, y
}

func row(cols [][]float64, i int) []float64 {
	r := make([]float64, len(cols))
	for f := range cols {
		r[f] = cols[f][i]
	}
	return r
}

func TestTrainFitsSquaredError(t *testing.T) {
	cols, y := syntheticData(600, 1)
	params := DefaultParams()
	params.NEstimators = 80
	params.MaxDepth = 4
	params.LearningRate = 0.2

	b, err := Train(context.Background(), cols, y, []string{"x0", "x1", "x2"}, params)
	require.NoError(t, err)
	require.Len(t, b.Trees, 80)

	var sse float64
	for i := range y {
		d := b.Predict(row(cols, i)) - y[i]
		sse += d * d
	}
	rmse := math.Sqrt(sse / float64(len(y)))
	assert.Less(t, rmse, 1.0)

	imp := b.Importance()
	assert.Equal(t, "x0", imp[0].Feature)
	assert.Equal(t, "x2", imp[2].Feature)
}

func TestTrainIsDeterministicAcrossWorkerCounts(t *testing.T) {
	cols, y := syntheticData(300, 2)
	names := []string{"x0", "x1", "x2"}

	p1 := DefaultParams()
	p1.NEstimators = 20
	p1.Workers = 1
	p8 := p1
	p8.Workers = 8

	a, err := Train(context.Background(), cols, y, names, p1)
	require.NoError(t, err)
	b, err := Train(context.Background(), cols, y, names, p8)
	require.NoError(t, err)

	ja, _ := json.Marshal(a.Trees)
	jb, _ := json.Marshal(b.Trees)
	assert.JSONEq(t, string(ja), string(jb))
}

func TestPoissonObjective(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	n := 800
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		x[i] = float64(i % 2)
		lambda := 2.0
		if x[i] == 1 {
			lambda = 12
		}
		y[i] = float64(poisson(rng, lambda))
	}

	params := DefaultParams()
	params.Objective = Poisson
	params.NEstimators = 100
	params.LearningRate = 0.1

	b, err := Train(context.Background(), [][]float64{x}, y, []string{"promo"}, params)
	require.NoError(t, err)
	assert.Equal(t, poissonMaxDeltaStep, b.Params.MaxDeltaStep)

	low := b.Predict([]float64{0})
	high := b.Predict([]float64{1})
	assert.Greater(t, low, 0.0)
	assert.InDelta(t, 2.0, low, 0.5)
	assert.InDelta(t, 12.0, high, 1.5)
}

func poisson(rng *rand.Rand, lambda float64) int {
	l := math.Exp(-lambda)
	k, p := 0, 1.0
	for {
		p *= rng.Float64()
		if p <= l {
			return k
		}
		k++
	}
}

func TestMissingValuesLearnDefaultDirection(t *testing.T) {
	n := 200
	x := make([]float64, n)
	y := make([]float64, n)
	for i := range x {
		switch {
		case i%4 == 0:
			x[i] = math.NaN()
			y[i] = 100
		case i%2 == 0:
			x[i] = 1
			y[i] = 0
		default:
			x[i] = 5
			y[i] = 100
		}
	}
	params := DefaultParams()
	params.NEstimators = 30
	params.MaxDepth = 1

	b, err := Train(context.Background(), [][]float64{x}, y, []string{"lag_1"}, params)
	require.NoError(t, err)

	assert.InDelta(t, b.Predict([]float64{5}), b.Predict([]float64{math.NaN()}), 1e-9)
	assert.Greater(t, b.Predict([]float64{math.NaN()}), b.Predict([]float64{1})+50)
}

func TestExplainIsAdditive(t *testing.T) {
	cols, y := syntheticData(400, 4)
	params := DefaultParams()
	params.NEstimators = 40
	params.MaxDepth = 6
	params.LearningRate = 0.1

	b, err := Train(context.Background(), cols, y, []string{"x0", "x1", "x2"}, params)
	require.NoError(t, err)

	for _, i := range []int{0, 3, 17, 101, 399} {
		r := row(cols, i)
		phi, base := b.Explain(r)
		require.Len(t, phi, 3)

		sum := base
		for _, v := range phi {
			sum += v
		}
		assert.InDelta(t, b.PredictRaw(r), sum, 1e-9, "row %d", i)
	}
}

// exactShapley enumerates coalitions over the tree's cover-weighted
// conditional expectations.
func exactShapley(tree *Tree, x []float64, m int) []float64 {
	var condExp func(n int32, present int) float64
	condExp = func(n int32, present int) float64 {
		if tree.isLeaf(n) {
			return tree.Value[n]
		}
		f := int(tree.Feature[n])
		if present&(1<<f) != 0 {
			return condExp(tree.next(n, x[f]), present)
		}
		l, r := tree.Left[n], tree.Right[n]
		return (tree.Cover[l]*condExp(l, present) + tree.Cover[r]*condExp(r, present)) / tree.Cover[n]
	}

	fact := func(k int) float64 {
		out := 1.0
		for i := 2; i <= k; i++ {
			out *= float64(i)
		}
		return out
	}

	phi := make([]float64, m)
	for i := 0; i < m; i++ {
		for s := 0; s < 1<<m; s++ {
			if s&(1<<i) != 0 {
				continue
			}
			size := 0
			for j := 0; j < m; j++ {
				if s&(1<<j) != 0 {
					size++
				}
			}
			w := fact(size) * fact(m-size-1) / fact(m)
			phi[i] += w * (condExp(0, s|1<<i) - condExp(0, s))
		}
	}
	return phi
}

func TestTreeSHAPMatchesExactShapley(t *testing.T) {
	cols, y := syntheticData(250, 5)
	params := DefaultParams()
	params.NEstimators = 3
	params.MaxDepth = 5

	b, err := Train(context.Background(), cols, y, []string{"x0", "x1", "x2"}, params)
	require.NoError(t, err)

	for _, tree := range b.Trees {
		for _, i := range []int{1, 22, 44} {
			r := row(cols, i)
			got := make([]float64, 3)
			tree.shap(r, got)
			want := exactShapley(tree, r, 3)
			for f := range want {
				assert.InDelta(t, want[f], got[f], 1e-9)
			}
		}
	}
}

func TestBoosterJSONRoundTrip(t *testing.T) {
	cols, y := syntheticData(300, 6)
	params := DefaultParams()
	params.NEstimators = 25

	b, err := Train(context.Background(), cols, y, []string{"x0", "x1", "x2"}, params)
	require.NoError(t, err)

	data, err := json.Marshal(b)
	require.NoError(t, err)

	var restored Booster
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, b.Features, restored.Features)

	for i := 0; i < 50; i++ {
		r := row(cols, i)
		assert.Equal(t, b.PredictRaw(r), restored.PredictRaw(r))
	}
	assert.Equal(t, b.ExpectedValue(), restored.ExpectedValue())
}

func TestUnmarshalRejectsCorruptTree(t *testing.T) {
	var b Booster
	err := json.Unmarshal([]byte(`{"params":{"objective":"reg:squarederror"},"features":["a"],"trees":[{"left":[1],"right":[2],"feature":[0],"threshold":[0],"default_left":[false],"value":[0],"cover":[1],"gain":[0]}]}`), &b)
	assert.Error(t, err)
}

func TestTrainValidation(t *testing.T) {
	ctx := context.Background()
	params := DefaultParams()

	t.Run("no rows", func(t *testing.T) {
		_, err := Train(ctx, [][]float64{{}}, nil, []string{"a"}, params)
		assert.Error(t, err)
	})

	t.Run("ragged columns", func(t *testing.T) {
		_, err := Train(ctx, [][]float64{{1, 2}}, []float64{1, 2, 3}, []string{"a"}, params)
		assert.Error(t, err)
	})

	t.Run("unknown objective", func(t *testing.T) {
		p := params
		p.Objective = "binary:logistic"
		_, err := Train(ctx, [][]float64{{1}}, []float64{1}, []string{"a"}, p)
		assert.Error(t, err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := Train(cctx, [][]float64{{1, 2}}, []float64{1, 2}, []string{"a"}, params)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBinFeature(t *testing.T) {
	t.Run("few distinct values get their own bin", func(t *testing.T) {
		b := binFeature([]float64{3, 1, 2, 2, math.NaN()}, 256)
		assert.Equal(t, []float64{2, 3}, b.cuts)
		assert.Equal(t, []uint16{2, 0, 1, 1, 3}, b.codes)
	})

	t.Run("many values are capped", func(t *testing.T) {
		col := make([]float64, 5000)
		for i := range col {
			col[i] = float64(i)
		}
		b := binFeature(col, 16)
		assert.LessOrEqual(t, len(b.cuts), 15)
		for i := 1; i < len(b.cuts); i++ {
			assert.Less(t, b.cuts[i-1], b.cuts[i])
		}
	})
}
