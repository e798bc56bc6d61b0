package recommend

import (
	"math"
	"sort"

	"golang.org/x/sync/errgroup"
)

const (
	maxFrequencyBound    = 365
	maxFixedFrequency    = 90
	maxContainersBound   = 200
	strictImprovementEps = 1e-12
)

// DefaultSizes is the container catalog in liters.
var DefaultSizes = []int{120, 240, 660, 1100}

// Config describes the search space and its defaults.
type Config struct {
	Sizes            []int
	MinFrequencyDays int
	MaxFrequencyDays int
	TargetFill       float64
	MinFill          float64
	MaxFill          float64
	MaxContainers    int
	TieEpsilon       float64
	Weights          Weights
	Workers          int
}

// DefaultConfig returns the production search space.
func DefaultConfig() Config {
	return Config{
		Sizes:            append([]int(nil), DefaultSizes...),
		MinFrequencyDays: 1,
		MaxFrequencyDays: 14,
		TargetFill:       0.95,
		MinFill:          0.80,
		MaxFill:          1.05,
		MaxContainers:    30,
		TieEpsilon:       0.05,
		Weights:          DefaultWeights(),
		Workers:          4,
	}
}

// Result is the chosen configuration.
type Result struct {
	ContainerSize  int     `json:"container_size_liters"`
	ContainerCount int     `json:"container_count"`
	FrequencyDays  int     `json:"frequency_days"`
	ExpectedFill   float64 `json:"expected_fill"`
	Score          float64 `json:"score"`
}

// Engine searches size x count (x frequency) for the lowest penalty. It is
// stateless apart from its configuration and safe for concurrent use.
type Engine struct {
	cfg     Config
	sizes   []int
	largest int
}

// NewEngine normalizes cfg: sizes are deduplicated and sorted ascending,
// non-positive sizes dropped, and an empty catalog replaced by DefaultSizes.
func NewEngine(cfg Config) *Engine {
	seen := make(map[int]bool)
	var sizes []int
	for _, s := range cfg.Sizes {
		if s > 0 && !seen[s] {
			seen[s] = true
			sizes = append(sizes, s)
		}
	}
	if len(sizes) == 0 {
		sizes = append(sizes, DefaultSizes...)
	}
	sort.Ints(sizes)

	if cfg.TieEpsilon < 0 {
		cfg.TieEpsilon = 0
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Weights.isZero() {
		cfg.Weights = DefaultWeights()
	} else if cfg.Weights.SizeBias == nil {
		cfg.Weights.SizeBias = DefaultWeights().SizeBias
	}
	cfg.Sizes = sizes

	return &Engine{cfg: cfg, sizes: sizes, largest: sizes[len(sizes)-1]}
}

// Config returns the normalized configuration.
func (e *Engine) Config() Config { return e.cfg }

// Request carries per-call overrides. Zero values take the engine defaults.
// A positive FrequencyDays pins the frequency instead of searching it.
type Request struct {
	SafeKgPerDay      float64
	DensityKgPerLiter float64
	FrequencyDays     int
	MinFrequencyDays  int
	MaxFrequencyDays  int
	TargetFill        float64
	MinFill           float64
	MaxFill           float64
	MaxContainers     int
}

// Evaluate dispatches to Recommend or RecommendBest depending on whether the
// request pins a frequency.
func (e *Engine) Evaluate(req Request) Result {
	target := orDefault(req.TargetFill, e.cfg.TargetFill)
	minFill := orDefault(req.MinFill, e.cfg.MinFill)
	maxFill := orDefault(req.MaxFill, e.cfg.MaxFill)
	maxContainers := req.MaxContainers
	if maxContainers == 0 {
		maxContainers = e.cfg.MaxContainers
	}

	if req.FrequencyDays > 0 {
		return e.Recommend(req.SafeKgPerDay, req.DensityKgPerLiter, req.FrequencyDays,
			target, minFill, maxFill, maxContainers)
	}

	minFreq := req.MinFrequencyDays
	if minFreq == 0 {
		minFreq = e.cfg.MinFrequencyDays
	}
	maxFreq := req.MaxFrequencyDays
	if maxFreq == 0 {
		maxFreq = e.cfg.MaxFrequencyDays
	}
	return e.RecommendBest(req.SafeKgPerDay, req.DensityKgPerLiter, minFreq, maxFreq,
		target, minFill, maxFill, maxContainers)
}

// Recommend picks the best size and count for one fixed frequency.
func (e *Engine) Recommend(safeKgPerDay, density float64, frequencyDays int,
	targetFill, minFill, maxFill float64, maxContainers int) Result {
	frequencyDays = clamp(frequencyDays, 1, maxFixedFrequency)
	maxContainers = clamp(maxContainers, 1, maxContainersBound)
	return e.bestForFrequency(clampRate(safeKgPerDay), clampDensity(density), frequencyDays,
		targetFill, minFill, maxFill, maxContainers)
}

// RecommendBest searches every frequency in [minFrequencyDays,
// maxFrequencyDays] as well, adding the pickup penalty so that more frequent
// visits have to pay for the fill they buy. Frequencies are scored in
// parallel and reduced in ascending order, so the lowest frequency wins an
// exact tie.
func (e *Engine) RecommendBest(safeKgPerDay, density float64, minFrequencyDays, maxFrequencyDays int,
	targetFill, minFill, maxFill float64, maxContainers int) Result {
	rate := clampRate(safeKgPerDay)
	density = clampDensity(density)
	minFrequencyDays = clamp(minFrequencyDays, 1, maxFrequencyBound)
	maxFrequencyDays = clamp(maxFrequencyDays, minFrequencyDays, maxFrequencyBound)
	maxContainers = clamp(maxContainers, 1, maxContainersBound)

	perFreq := make([]Result, maxFrequencyDays-minFrequencyDays+1)
	var g errgroup.Group
	g.SetLimit(e.cfg.Workers)
	for i := range perFreq {
		freq := minFrequencyDays + i
		g.Go(func() error {
			perFreq[i] = e.bestForFrequency(rate, density, freq, targetFill, minFill, maxFill, maxContainers)
			return nil
		})
	}
	_ = g.Wait()

	best := e.fallback(minFrequencyDays)
	bestScore := math.Inf(1)
	for _, r := range perFreq {
		total := r.Score + e.cfg.Weights.PickupPenalty(r.FrequencyDays)
		if total < bestScore {
			bestScore = total
			best = r
			best.Score = total
		}
	}
	return best
}

// bestForFrequency runs the exhaustive size x count search. Inputs must
// already be clamped.
func (e *Engine) bestForFrequency(rate, density float64, frequencyDays int,
	targetFill, minFill, maxFill float64, maxContainers int) Result {
	litersPerEmptying := rate / density * float64(frequencyDays)

	var best *Result
	bestScore := math.Inf(1)

	for _, size := range e.sizes {
		for count := 1; count <= maxContainers; count++ {
			capacity := float64(count) * float64(size)
			if capacity <= 0 {
				continue
			}
			c := Candidate{
				Size:          size,
				Count:         count,
				FrequencyDays: frequencyDays,
				ExpectedFill:  litersPerEmptying / capacity,
			}
			score := e.cfg.Weights.Score(c, targetFill, minFill, maxFill, e.largest)

			better := score < bestScore-strictImprovementEps
			if !better && best != nil && math.Abs(score-bestScore) <= e.cfg.TieEpsilon {
				better = preferOnTie(c, *best, targetFill)
			}
			if better {
				bestScore = score
				best = &Result{
					ContainerSize:  size,
					ContainerCount: count,
					FrequencyDays:  frequencyDays,
					ExpectedFill:   c.ExpectedFill,
					Score:          score,
				}
			}
		}
	}

	if best == nil {
		r := e.fallback(frequencyDays)
		return r
	}
	return *best
}

// preferOnTie orders near-equal candidates: fewer containers, then larger
// size, then closer to target fill.
func preferOnTie(c Candidate, best Result, targetFill float64) bool {
	if c.Count != best.ContainerCount {
		return c.Count < best.ContainerCount
	}
	if c.Size != best.ContainerSize {
		return c.Size > best.ContainerSize
	}
	return math.Abs(c.ExpectedFill-targetFill) < math.Abs(best.ExpectedFill-targetFill)
}

// fallback is the conservative answer when nothing was evaluated.
func (e *Engine) fallback(frequencyDays int) Result {
	return Result{
		ContainerSize:  e.largest,
		ContainerCount: 1,
		FrequencyDays:  clamp(frequencyDays, 1, maxFrequencyBound),
		ExpectedFill:   1.0,
		Score:          math.Inf(1),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func orDefault(v, def float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return def
	}
	return v
}
