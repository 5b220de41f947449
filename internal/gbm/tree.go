package gbm

import (
	"fmt"
	"math"
)

// Tree is a binary regression tree stored as parallel arrays. Node 0 is the
// root; a node is a leaf when Left is -1. Rows with x < Threshold go left and
// missing values follow DefaultLeft. Cover is the hessian sum of the training
// rows that reached the node.
type Tree struct {
	Left        []int32   `json:"left"`
	Right       []int32   `json:"right"`
	Feature     []int32   `json:"feature"`
	Threshold   []float64 `json:"threshold"`
	DefaultLeft []bool    `json:"default_left"`
	Value       []float64 `json:"value"`
	Cover       []float64 `json:"cover"`
	Gain        []float64 `json:"gain"`
}

func (t *Tree) addNode(cover float64) int32 {
	t.Left = append(t.Left, -1)
	t.Right = append(t.Right, -1)
	t.Feature = append(t.Feature, -1)
	t.Threshold = append(t.Threshold, 0)
	t.DefaultLeft = append(t.DefaultLeft, false)
	t.Value = append(t.Value, 0)
	t.Cover = append(t.Cover, cover)
	t.Gain = append(t.Gain, 0)
	return int32(len(t.Left) - 1)
}

// NumNodes returns the node count.
func (t *Tree) NumNodes() int {
	return len(t.Left)
}

func (t *Tree) isLeaf(n int32) bool {
	return t.Left[n] < 0
}

func (t *Tree) next(n int32, x float64) int32 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		if t.DefaultLeft[n] {
			return t.Left[n]
		}
		return t.Right[n]
	}
	if x < t.Threshold[n] {
		return t.Left[n]
	}
	return t.Right[n]
}

func (t *Tree) leaf(row []float64) int32 {
	n := int32(0)
	for !t.isLeaf(n) {
		n = t.next(n, row[t.Feature[n]])
	}
	return n
}

// Predict returns the leaf value reached by row.
func (t *Tree) Predict(row []float64) float64 {
	return t.Value[t.leaf(row)]
}

// expectation is the cover-weighted mean leaf value.
func (t *Tree) expectation() float64 {
	return t.nodeExpectation(0)
}

func (t *Tree) nodeExpectation(n int32) float64 {
	if t.isLeaf(n) {
		return t.Value[n]
	}
	l, r := t.Left[n], t.Right[n]
	return (t.Cover[l]*t.nodeExpectation(l) + t.Cover[r]*t.nodeExpectation(r)) / t.Cover[n]
}

func (t *Tree) validate(numFeatures int) error {
	n := len(t.Left)
	if n == 0 {
		return fmt.Errorf("tree has no nodes")
	}
	for _, l := range [][]int{
		{len(t.Right), len(t.Feature), len(t.Threshold)},
		{len(t.DefaultLeft), len(t.Value), len(t.Cover), len(t.Gain)},
	} {
		for _, got := range l {
			if got != n {
				return fmt.Errorf("tree arrays have inconsistent lengths")
			}
		}
	}
	for i := 0; i < n; i++ {
		if t.Left[i] < 0 {
			continue
		}
		if int(t.Left[i]) <= i || int(t.Right[i]) <= i || int(t.Left[i]) >= n || int(t.Right[i]) >= n {
			return fmt.Errorf("node %d has invalid children", i)
		}
		if t.Feature[i] < 0 || int(t.Feature[i]) >= numFeatures {
			return fmt.Errorf("node %d splits on unknown feature %d", i, t.Feature[i])
		}
		if t.Cover[i] <= 0 {
			return fmt.Errorf("node %d has non-positive cover", i)
		}
	}
	return nil
}

// grower builds one tree on fixed gradients.
type grower struct {
	params   Params
	features []binnedFeature
	grad     []float64
	hess     []float64
	margin   []float64
	tree     *Tree
}

func (g *grower) build(rows []int32) *Tree {
	g.tree = &Tree{}
	var total gradPair
	for _, r := range rows {
		total.g += g.grad[r]
		total.h += g.hess[r]
	}
	hist := buildHistogram(g.features, g.grad, g.hess, rows, g.params.Workers)
	g.grow(rows, hist, total, 0)
	return g.tree
}

func (g *grower) grow(rows []int32, hist histogram, total gradPair, depth int) int32 {
	node := g.tree.addNode(total.h)

	if depth < g.params.MaxDepth && len(rows) > 1 {
		split := g.params.bestSplit(g.features, hist, total)
		if split.ok {
			left, right, leftSum, rightSum := g.partition(rows, split)
			if len(left) > 0 && len(right) > 0 {
				var leftHist, rightHist histogram
				switch {
				case depth+1 >= g.params.MaxDepth:
					// children are leaves
				case len(left) <= len(right):
					leftHist = buildHistogram(g.features, g.grad, g.hess, left, g.params.Workers)
					rightHist = hist.subtract(leftHist)
				default:
					rightHist = buildHistogram(g.features, g.grad, g.hess, right, g.params.Workers)
					leftHist = hist.subtract(rightHist)
				}

				l := g.grow(left, leftHist, leftSum, depth+1)
				r := g.grow(right, rightHist, rightSum, depth+1)

				t := g.tree
				t.Left[node], t.Right[node] = l, r
				t.Feature[node] = int32(split.feature)
				t.Threshold[node] = split.threshold
				t.DefaultLeft[node] = split.defaultLeft
				t.Gain[node] = split.gain
				return node
			}
		}
	}

	w := g.params.leafWeight(total)
	g.tree.Value[node] = w
	for _, r := range rows {
		g.margin[r] += w
	}
	return node
}

func (g *grower) partition(rows []int32, s splitCandidate) (left, right []int32, leftSum, rightSum gradPair) {
	bf := &g.features[s.feature]
	miss := bf.missing()
	left = make([]int32, 0, len(rows)/2)
	right = make([]int32, 0, len(rows)/2)
	for _, r := range rows {
		code := bf.codes[r]
		goLeft := int(code) < s.bin
		if code == miss {
			goLeft = s.defaultLeft
		}
		if goLeft {
			left = append(left, r)
			leftSum.g += g.grad[r]
			leftSum.h += g.hess[r]
		} else {
			right = append(right, r)
			rightSum.g += g.grad[r]
			rightSum.h += g.hess[r]
		}
	}
	return left, right, leftSum, rightSum
}

func (p Params) leafWeight(s gradPair) float64 {
	w := -s.g / (s.h + p.Lambda)
	if p.MaxDeltaStep > 0 {
		w = math.Max(-p.MaxDeltaStep, math.Min(p.MaxDeltaStep, w))
	}
	return w * p.LearningRate
}
