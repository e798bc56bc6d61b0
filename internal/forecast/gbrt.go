package forecast

import (
	"fmt"
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// numFeatures is the number of numeric inputs per sample. The stream is
// carried separately as a category index.
const numFeatures = 8

// catFeature marks a split on the stream category instead of a numeric input.
const catFeature = -1

// minGain is the smallest squared-error reduction a split must achieve.
const minGain = 1e-12

type sample struct {
	cat int // -1 for a stream outside the training vocabulary
	x   [numFeatures]float64
}

// Params are the gradient boosting hyperparameters of one candidate.
type Params struct {
	Trees        int
	MaxDepth     int
	LearningRate float64
	MinLeaf      int
	Subsample    float64
}

func (p Params) String() string {
	return fmt.Sprintf("trees=%d depth=%d lr=%.3f min_leaf=%d subsample=%.2f",
		p.Trees, p.MaxDepth, p.LearningRate, p.MinLeaf, p.Subsample)
}

func (p Params) normalized() Params {
	if p.Trees < 1 {
		p.Trees = 1
	}
	if p.MaxDepth < 1 {
		p.MaxDepth = 1
	}
	if p.LearningRate <= 0 || p.LearningRate > 1 {
		p.LearningRate = 0.1
	}
	if p.MinLeaf < 1 {
		p.MinLeaf = 1
	}
	if p.Subsample <= 0 || p.Subsample > 1 {
		p.Subsample = 1
	}
	return p
}

// DefaultCandidates is the hyperparameter grid searched on validation MAE.
// The first entry is the reference configuration used by the train/test
// profile.
func DefaultCandidates() []Params {
	return []Params{
		{Trees: 300, MaxDepth: 5, LearningRate: 0.05, MinLeaf: 5, Subsample: 0.8},
		{Trees: 150, MaxDepth: 3, LearningRate: 0.1, MinLeaf: 5, Subsample: 0.8},
		{Trees: 400, MaxDepth: 4, LearningRate: 0.03, MinLeaf: 10, Subsample: 0.8},
		{Trees: 250, MaxDepth: 6, LearningRate: 0.05, MinLeaf: 20, Subsample: 0.7},
	}
}

type treeNode struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	category  int
	left      int32
	right     int32
}

type regressionTree struct {
	nodes []treeNode
}

func (t *regressionTree) predict(s *sample) float64 {
	i := int32(0)
	for {
		n := &t.nodes[i]
		if n.leaf {
			return n.value
		}
		if n.goesLeft(s) {
			i = n.left
		} else {
			i = n.right
		}
	}
}

func (n *treeNode) goesLeft(s *sample) bool {
	if n.feature == catFeature {
		return s.cat == n.category
	}
	return s.x[n.feature] <= n.threshold
}

type ensemble struct {
	base  float64
	rate  float64
	trees []regressionTree
}

func (e *ensemble) predict(s *sample) float64 {
	out := e.base
	for i := range e.trees {
		out += e.rate * e.trees[i].predict(s)
	}
	return out
}

// fitEnsemble boosts squared-loss regression trees on y. The same seed and
// inputs always produce the same ensemble.
func fitEnsemble(samples []sample, y []float64, p Params, seed int64) *ensemble {
	p = p.normalized()
	e := &ensemble{rate: p.LearningRate}
	n := len(samples)
	if n == 0 {
		return e
	}

	e.base = floats.Sum(y) / float64(n)
	pred := make([]float64, n)
	for i := range pred {
		pred[i] = e.base
	}

	b := &treeBuilder{
		samples:  samples,
		sorted:   presort(samples),
		residual: make([]float64, n),
		mark:     make([]int32, n),
		p:        p,
	}
	rng := rand.New(rand.NewSource(seed))

	for t := 0; t < p.Trees; t++ {
		for i := range y {
			b.residual[i] = y[i] - pred[i]
		}
		tree := b.build(drawSubsample(rng, n, p))
		if len(tree.nodes) == 1 && math.Abs(tree.nodes[0].value) < minGain {
			// Nothing left to fit.
			break
		}
		for i := range samples {
			pred[i] += p.LearningRate * tree.predict(&samples[i])
		}
		e.trees = append(e.trees, tree)
	}
	return e
}

func presort(samples []sample) [numFeatures][]int {
	var sorted [numFeatures][]int
	for f := 0; f < numFeatures; f++ {
		idx := make([]int, len(samples))
		for i := range idx {
			idx[i] = i
		}
		sort.SliceStable(idx, func(a, b int) bool {
			return samples[idx[a]].x[f] < samples[idx[b]].x[f]
		})
		sorted[f] = idx
	}
	return sorted
}

func drawSubsample(rng *rand.Rand, n int, p Params) []int {
	k := int(math.Round(p.Subsample * float64(n)))
	if k < 2*p.MinLeaf {
		k = 2 * p.MinLeaf
	}
	if k >= n {
		all := make([]int, n)
		for i := range all {
			all[i] = i
		}
		return all
	}
	members := rng.Perm(n)[:k]
	sort.Ints(members)
	return members
}

type treeBuilder struct {
	samples  []sample
	sorted   [numFeatures][]int
	residual []float64
	mark     []int32
	p        Params
}

type split struct {
	feature   int
	threshold float64
	category  int
	gain      float64
}

func (b *treeBuilder) build(members []int) regressionTree {
	for i := range b.mark {
		b.mark[i] = -1
	}
	var t regressionTree
	b.grow(&t, members, 0)
	return t
}

func (b *treeBuilder) grow(t *regressionTree, members []int, depth int) int32 {
	id := int32(len(t.nodes))
	t.nodes = append(t.nodes, treeNode{leaf: true, value: b.mean(members)})

	if depth >= b.p.MaxDepth || len(members) < 2*b.p.MinLeaf {
		return id
	}
	best, ok := b.bestSplit(members, id)
	if !ok {
		return id
	}

	node := treeNode{feature: best.feature, threshold: best.threshold, category: best.category}
	var left, right []int
	for _, i := range members {
		if node.goesLeft(&b.samples[i]) {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	node.left = b.grow(t, left, depth+1)
	node.right = b.grow(t, right, depth+1)
	t.nodes[id] = node
	return id
}

func (b *treeBuilder) mean(members []int) float64 {
	if len(members) == 0 {
		return 0
	}
	var sum float64
	for _, i := range members {
		sum += b.residual[i]
	}
	return sum / float64(len(members))
}

func (b *treeBuilder) bestSplit(members []int, id int32) (split, bool) {
	var total float64
	for _, i := range members {
		b.mark[i] = id
		total += b.residual[i]
	}
	n := float64(len(members))
	minLeaf := b.p.MinLeaf
	parent := total * total / n

	best := split{gain: minGain}
	found := false

	gainOf := func(sumL float64, nL int) float64 {
		nR := float64(len(members) - nL)
		sumR := total - sumL
		return sumL*sumL/float64(nL) + sumR*sumR/nR - parent
	}

	for f := 0; f < numFeatures; f++ {
		var sumL float64
		nL := 0
		prev := -1
		for _, i := range b.sorted[f] {
			if b.mark[i] != id {
				continue
			}
			if prev >= 0 {
				lo, hi := b.samples[prev].x[f], b.samples[i].x[f]
				if lo < hi && nL >= minLeaf && len(members)-nL >= minLeaf {
					if g := gainOf(sumL, nL); g > best.gain {
						best = split{feature: f, threshold: lo + (hi-lo)/2, gain: g}
						found = true
					}
				}
			}
			sumL += b.residual[i]
			nL++
			prev = i
		}
	}

	catSum := make(map[int]float64)
	catCount := make(map[int]int)
	for _, i := range members {
		c := b.samples[i].cat
		if c < 0 {
			continue
		}
		catSum[c] += b.residual[i]
		catCount[c]++
	}
	cats := make([]int, 0, len(catCount))
	for c := range catCount {
		cats = append(cats, c)
	}
	sort.Ints(cats)
	for _, c := range cats {
		nL := catCount[c]
		if nL < minLeaf || len(members)-nL < minLeaf {
			continue
		}
		if g := gainOf(catSum[c], nL); g > best.gain {
			best = split{feature: catFeature, category: c, gain: g}
			found = true
		}
	}

	return best, found
}
