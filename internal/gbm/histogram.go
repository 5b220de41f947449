package gbm

import (
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

// binnedFeature is one quantised column. A value x falls in bin
// #{c in cuts : c <= x}; missing values use the slot after the last bin.
type binnedFeature struct {
	cuts  []float64
	codes []uint16
}

func (b *binnedFeature) missing() uint16 {
	return uint16(len(b.cuts) + 1)
}

func (b *binnedFeature) slots() int {
	return len(b.cuts) + 2
}

// binFeature quantises a column into at most maxBins bins. Columns with few
// distinct values get one bin per value.
func binFeature(col []float64, maxBins int) binnedFeature {
	values := make([]float64, 0, len(col))
	for _, v := range col {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			values = append(values, v)
		}
	}
	sort.Float64s(values)

	distinct := values[:0:0]
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			distinct = append(distinct, v)
		}
	}

	var cuts []float64
	switch {
	case len(distinct) <= 1:
	case len(distinct) <= maxBins:
		cuts = append(cuts, distinct[1:]...)
	default:
		for k := 1; k < maxBins; k++ {
			c := values[k*len(values)/maxBins]
			if c <= distinct[0] {
				continue
			}
			if len(cuts) > 0 && c <= cuts[len(cuts)-1] {
				continue
			}
			cuts = append(cuts, c)
		}
	}

	b := binnedFeature{cuts: cuts, codes: make([]uint16, len(col))}
	for i, v := range col {
		b.codes[i] = b.code(v)
	}
	return b
}

func (b *binnedFeature) code(v float64) uint16 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return b.missing()
	}
	return uint16(sort.Search(len(b.cuts), func(i int) bool { return b.cuts[i] > v }))
}

type gradPair struct {
	g, h float64
}

func (p gradPair) add(o gradPair) gradPair {
	return gradPair{g: p.g + o.g, h: p.h + o.h}
}

func (p gradPair) sub(o gradPair) gradPair {
	return gradPair{g: p.g - o.g, h: p.h - o.h}
}

// histogram holds per-feature gradient sums per bin slot.
type histogram [][]gradPair

func buildHistogram(features []binnedFeature, grad, hess []float64, rows []int32, workers int) histogram {
	hist := make(histogram, len(features))

	var eg errgroup.Group
	eg.SetLimit(workers)
	for f := range features {
		eg.Go(func() error {
			bf := &features[f]
			slots := make([]gradPair, bf.slots())
			for _, r := range rows {
				s := &slots[bf.codes[r]]
				s.g += grad[r]
				s.h += hess[r]
			}
			hist[f] = slots
			return nil
		})
	}
	_ = eg.Wait()
	return hist
}

// subtract turns a parent histogram into its sibling's in place.
func (h histogram) subtract(child histogram) histogram {
	for f := range h {
		for s := range h[f] {
			h[f][s] = h[f][s].sub(child[f][s])
		}
	}
	return h
}

type splitCandidate struct {
	ok          bool
	feature     int
	bin         int
	threshold   float64
	defaultLeft bool
	gain        float64
}

// minSplitGain rejects splits that only shuffle rounding noise.
const minSplitGain = 1e-10

func (p Params) leafScore(s gradPair) float64 {
	return s.g * s.g / (s.h + p.Lambda)
}

func (p Params) splitGain(left, right, total gradPair) float64 {
	return 0.5*(p.leafScore(left)+p.leafScore(right)-p.leafScore(total)) - p.Gamma
}

func (p Params) admissible(left, right gradPair) bool {
	return left.h > 0 && right.h > 0 && left.h >= p.MinChildWeight && right.h >= p.MinChildWeight
}

// bestFeatureSplit scans the bins of one feature, trying missing values on
// both sides. Ties keep the lowest bin.
func (p Params) bestFeatureSplit(f int, bf *binnedFeature, slots []gradPair, total gradPair) splitCandidate {
	best := splitCandidate{feature: f}
	miss := slots[bf.missing()]
	present := total.sub(miss)

	var left gradPair
	for bin := 1; bin <= len(bf.cuts); bin++ {
		left = left.add(slots[bin-1])

		// missing to the right
		right := present.sub(left).add(miss)
		if p.admissible(left, right) {
			if gain := p.splitGain(left, right, total); gain > minSplitGain && gain > best.gain {
				best = splitCandidate{ok: true, feature: f, bin: bin, threshold: bf.cuts[bin-1], gain: gain,
					defaultLeft: miss.h == 0 && left.h >= right.h}
			}
		}

		if miss.h == 0 {
			continue
		}
		withMiss := left.add(miss)
		rest := present.sub(left)
		if p.admissible(withMiss, rest) {
			if gain := p.splitGain(withMiss, rest, total); gain > minSplitGain && gain > best.gain {
				best = splitCandidate{ok: true, feature: f, bin: bin, threshold: bf.cuts[bin-1], gain: gain, defaultLeft: true}
			}
		}
	}
	return best
}

// bestSplit searches features in parallel and reduces in feature order, so
// ties resolve to the lowest feature index regardless of scheduling.
func (p Params) bestSplit(features []binnedFeature, hist histogram, total gradPair) splitCandidate {
	results := make([]splitCandidate, len(features))

	var eg errgroup.Group
	eg.SetLimit(p.Workers)
	for f := range features {
		eg.Go(func() error {
			results[f] = p.bestFeatureSplit(f, &features[f], hist[f], total)
			return nil
		})
	}
	_ = eg.Wait()

	var best splitCandidate
	for _, c := range results {
		if c.ok && (!best.ok || c.gain > best.gain) {
			best = c
		}
	}
	return best
}
