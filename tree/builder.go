package tree

import (
	"math/rand/v2"
	"sort"
)

// Params controls tree growth. Leaf values are the regularised Newton step
// -T(G)/(H+Lambda) scaled by Shrinkage, where T soft-thresholds G by Alpha.
type Params struct {
	MaxDepth         int // 0 means unlimited
	Lambda           float64
	Alpha            float64
	Gamma            float64 // minimum gain for a split to be kept
	MinChildWeight   float64
	MinSamplesLeaf   int
	MinSamplesSplit  int
	FeaturesPerSplit int     // 0 means every candidate feature
	Shrinkage        float64 // 0 means 1
}

type histBin struct {
	grad  float64
	hess  float64
	count int
}

type split struct {
	feature   int
	bin       int
	threshold float64
	gain      float64
}

// Builder grows trees on one binned matrix. A Builder is not safe for
// concurrent use; create one per goroutine.
type Builder struct {
	params Params
	data   *Binned
	rng    *rand.Rand

	grad     []float64
	hess     []float64
	features []int
	hist     []histBin
}

// NewBuilder creates a Builder. rng is only used when FeaturesPerSplit
// samples a subset of the candidate features and may be nil otherwise.
func NewBuilder(data *Binned, params Params, rng *rand.Rand) *Builder {
	if params.Shrinkage == 0 {
		params.Shrinkage = 1
	}
	if params.MinSamplesLeaf < 1 {
		params.MinSamplesLeaf = 1
	}
	return &Builder{
		params: params,
		data:   data,
		rng:    rng,
		hist:   make([]histBin, MaxBinLimit),
	}
}

// Build grows one tree over the given row indexes (repeats allowed, as in a
// bootstrap sample) using per-row gradients and hessians. features limits
// the candidate split features; nil means all of them.
func (b *Builder) Build(rows []int, grad, hess []float64, features []int) Tree {
	b.grad, b.hess = grad, hess
	if features == nil {
		features = make([]int, b.data.NumFeatures())
		for j := range features {
			features[j] = j
		}
	}
	b.features = features

	t := Tree{}
	if len(rows) == 0 {
		t.Nodes = append(t.Nodes, Node{Left: -1, Right: -1})
		return t
	}
	b.grow(&t, append([]int(nil), rows...), 0)
	return t
}

func (b *Builder) grow(t *Tree, rows []int, depth int) int {
	var sumG, sumH float64
	for _, r := range rows {
		sumG += b.grad[r]
		sumH += b.hess[r]
	}

	idx := len(t.Nodes)
	t.Nodes = append(t.Nodes, Node{
		Left:    -1,
		Right:   -1,
		Value:   b.leafValue(sumG, sumH),
		Cover:   sumH,
		Samples: len(rows),
	})

	if !b.splittable(len(rows), sumH, depth) {
		return idx
	}
	best, ok := b.bestSplit(rows, sumG, sumH)
	if !ok {
		return idx
	}

	left := make([]int, 0, len(rows))
	right := make([]int, 0, len(rows))
	col := b.data.Cols[best.feature]
	for _, r := range rows {
		if int(col[r]) <= best.bin {
			left = append(left, r)
		} else {
			right = append(right, r)
		}
	}

	n := &t.Nodes[idx]
	n.Feature = best.feature
	n.Threshold = best.threshold
	n.Gain = best.gain

	l := b.grow(t, left, depth+1)
	r := b.grow(t, right, depth+1)
	t.Nodes[idx].Left = l
	t.Nodes[idx].Right = r
	return idx
}

func (b *Builder) splittable(n int, sumH float64, depth int) bool {
	p := b.params
	switch {
	case p.MaxDepth > 0 && depth >= p.MaxDepth:
		return false
	case n < 2, n < p.MinSamplesSplit, n < 2*p.MinSamplesLeaf:
		return false
	case sumH < 2*p.MinChildWeight:
		return false
	}
	return true
}

func (b *Builder) bestSplit(rows []int, sumG, sumH float64) (split, bool) {
	best := split{gain: 0}
	found := false
	parent := b.score(sumG, sumH)
	n := len(rows)

	for _, f := range b.candidates() {
		thresholds := b.data.Mapper.Thresholds[f]
		if len(thresholds) == 0 {
			continue
		}
		nBins := len(thresholds) + 1
		hist := b.hist[:nBins]
		for i := range hist {
			hist[i] = histBin{}
		}
		col := b.data.Cols[f]
		for _, r := range rows {
			h := &hist[col[r]]
			h.grad += b.grad[r]
			h.hess += b.hess[r]
			h.count++
		}

		var gl, hl float64
		nl := 0
		for bin := 0; bin < nBins-1; bin++ {
			gl += hist[bin].grad
			hl += hist[bin].hess
			nl += hist[bin].count
			if hist[bin].count == 0 {
				continue
			}
			nr := n - nl
			if nl < b.params.MinSamplesLeaf {
				continue
			}
			if nr < b.params.MinSamplesLeaf {
				break
			}
			gr, hr := sumG-gl, sumH-hl
			if hl < b.params.MinChildWeight || hr < b.params.MinChildWeight {
				continue
			}
			gain := 0.5*(b.score(gl, hl)+b.score(gr, hr)-parent) - b.params.Gamma
			if gain > best.gain {
				best = split{feature: f, bin: bin, threshold: thresholds[bin], gain: gain}
				found = true
			}
		}
	}
	return best, found
}

// candidates returns the features examined at one node in ascending order.
func (b *Builder) candidates() []int {
	k := b.params.FeaturesPerSplit
	if k <= 0 || k >= len(b.features) || b.rng == nil {
		return b.features
	}
	pool := append([]int(nil), b.features...)
	for i := 0; i < k; i++ {
		j := i + b.rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	picked := pool[:k]
	sort.Ints(picked)
	return picked
}

func (b *Builder) score(g, h float64) float64 {
	denom := h + b.params.Lambda
	if denom <= 0 {
		return 0
	}
	tg := softThreshold(g, b.params.Alpha)
	return tg * tg / denom
}

func (b *Builder) leafValue(g, h float64) float64 {
	denom := h + b.params.Lambda
	if denom <= 0 {
		return 0
	}
	return -softThreshold(g, b.params.Alpha) / denom * b.params.Shrinkage
}

func softThreshold(g, alpha float64) float64 {
	switch {
	case g > alpha:
		return g - alpha
	case g < -alpha:
		return g + alpha
	default:
		return 0
	}
}
