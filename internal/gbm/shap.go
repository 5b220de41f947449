package gbm

// Path-dependent TreeSHAP (Lundberg, Erion and Lee, algorithm 2). Feature
// absence is modelled by the training cover of each branch.

type pathElement struct {
	feature int
	zero    float64
	one     float64
	weight  float64
}

// shap adds the tree's contributions for row into phi.
func (t *Tree) shap(row, phi []float64) {
	t.shapRecurse(row, phi, 0, nil, 0, 1, 1, -1)
}

func (t *Tree) shapRecurse(row, phi []float64, node int32, parent []pathElement, depth int, zero, one float64, feature int) {
	path := make([]pathElement, depth+1)
	copy(path, parent[:depth])
	extendPath(path, depth, zero, one, feature)

	if t.isLeaf(node) {
		v := t.Value[node]
		for i := 1; i <= depth; i++ {
			el := path[i]
			w := unwoundPathSum(path, depth, i)
			phi[el.feature] += w * (el.one - el.zero) * v
		}
		return
	}

	split := int(t.Feature[node])
	hot := t.next(node, row[split])
	cold := t.Right[node]
	if hot == cold {
		cold = t.Left[node]
	}
	cover := t.Cover[node]
	hotZero := t.Cover[hot] / cover
	coldZero := t.Cover[cold] / cover

	// a feature seen higher up the path is unwound so it counts once
	inZero, inOne := 1.0, 1.0
	for k := 1; k <= depth; k++ {
		if path[k].feature == split {
			inZero, inOne = path[k].zero, path[k].one
			unwindPath(path, depth, k)
			depth--
			break
		}
	}

	t.shapRecurse(row, phi, hot, path, depth+1, hotZero*inZero, inOne, split)
	t.shapRecurse(row, phi, cold, path, depth+1, coldZero*inZero, 0, split)
}

func extendPath(path []pathElement, depth int, zero, one float64, feature int) {
	w := 0.0
	if depth == 0 {
		w = 1
	}
	path[depth] = pathElement{feature: feature, zero: zero, one: one, weight: w}
	for i := depth - 1; i >= 0; i-- {
		path[i+1].weight += one * path[i].weight * float64(i+1) / float64(depth+1)
		path[i].weight = zero * path[i].weight * float64(depth-i) / float64(depth+1)
	}
}

func unwindPath(path []pathElement, depth, k int) {
	one, zero := path[k].one, path[k].zero
	next := path[depth].weight
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := path[i].weight
			path[i].weight = next * float64(depth+1) / (float64(i+1) * one)
			next = tmp - path[i].weight*zero*float64(depth-i)/float64(depth+1)
		} else {
			path[i].weight = path[i].weight * float64(depth+1) / (zero * float64(depth-i))
		}
	}
	for i := k; i < depth; i++ {
		path[i].feature = path[i+1].feature
		path[i].zero = path[i+1].zero
		path[i].one = path[i+1].one
	}
}

func unwoundPathSum(path []pathElement, depth, k int) float64 {
	one, zero := path[k].one, path[k].zero
	next := path[depth].weight
	total := 0.0
	for i := depth - 1; i >= 0; i-- {
		if one != 0 {
			tmp := next * float64(depth+1) / (float64(i+1) * one)
			total += tmp
			next = path[i].weight - tmp*zero*float64(depth-i)/float64(depth+1)
		} else if zero != 0 {
			total += path[i].weight / (zero * float64(depth-i) / float64(depth+1))
		}
	}
	return total
}
