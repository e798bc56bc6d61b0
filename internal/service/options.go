package service

import (
	"strings"

	"github.com/andresuchdata/wasteflow/backend-go/internal/config"
	"github.com/andresuchdata/wasteflow/backend-go/internal/forecast"
	"github.com/andresuchdata/wasteflow/backend-go/internal/recommend"
)

// Settings are the per-request constants of the forecast service.
type Settings struct {
	ContentCode       int
	MassUnit          string
	MaxGapDays        int
	SafetyK           float64
	DensityKgPerLiter float64
	Workers           int
}

func DefaultSettings() Settings {
	return Settings{
		ContentCode:       710100,
		MassUnit:          "KG",
		MaxGapDays:        forecast.DefaultMaxGapDays,
		SafetyK:           forecast.DefaultSafetyK,
		DensityKgPerLiter: recommend.DefaultDensityKgPerLiter,
		Workers:           4,
	}
}

func SettingsFromConfig(cfg *config.Config) Settings {
	s := DefaultSettings()
	s.ContentCode = cfg.Forecast.ContentCode
	if unit := strings.TrimSpace(cfg.Forecast.MassUnit); unit != "" {
		s.MassUnit = unit
	}
	if cfg.Forecast.MaxGapDays > 0 {
		s.MaxGapDays = cfg.Forecast.MaxGapDays
	}
	if cfg.Forecast.SafetyK >= 0 {
		s.SafetyK = cfg.Forecast.SafetyK
	}
	if cfg.Recommend.DensityKgPerLiter > 0 {
		s.DensityKgPerLiter = cfg.Recommend.DensityKgPerLiter
	}
	if cfg.Forecast.Workers > 0 {
		s.Workers = cfg.Forecast.Workers
	}
	return s
}

// ForecastOptions maps the forecast section onto trainer options.
func ForecastOptions(cfg config.ForecastConfig) forecast.Options {
	return forecast.Options{
		MinDailyObservations: cfg.MinDailyObservations,
		MinTrainingRows:      cfg.MinTrainingRows,
		MaxGapDays:           cfg.MaxGapDays,
		ClipPercentile:       cfg.ClipPercentile,
		ResidualMinSamples:   cfg.ResidualMinSamples,
		Seed:                 cfg.Seed,
		Profile:              forecast.SplitProfile(strings.ToLower(strings.TrimSpace(cfg.SplitProfile))),
		Workers:              cfg.Workers,
	}
}

// EngineConfig maps the recommend section onto the search engine. Weights not
// exposed through configuration keep their defaults.
func EngineConfig(cfg config.RecommendConfig, workers int) recommend.Config {
	def := recommend.DefaultConfig()

	w := recommend.DefaultWeights()
	setPositive(&w.Over, cfg.OverWeight)
	setPositive(&w.Under, cfg.UnderWeight)
	setPositive(&w.Target, cfg.TargetWeight)
	setPositive(&w.Count, cfg.CountWeight)
	setPositive(&w.SmallMany, cfg.SmallManyWeight)
	setPositive(&w.Pickup, cfg.PickupWeight)
	if cfg.SmallManyFree > 0 {
		w.SmallManyFree = cfg.SmallManyFree
	}

	out := recommend.Config{
		Sizes:            cfg.Sizes,
		MinFrequencyDays: def.MinFrequencyDays,
		MaxFrequencyDays: def.MaxFrequencyDays,
		TargetFill:       def.TargetFill,
		MinFill:          def.MinFill,
		MaxFill:          def.MaxFill,
		MaxContainers:    def.MaxContainers,
		TieEpsilon:       def.TieEpsilon,
		Weights:          w,
		Workers:          workers,
	}
	if cfg.MinFrequencyDays > 0 {
		out.MinFrequencyDays = cfg.MinFrequencyDays
	}
	if cfg.MaxFrequencyDays > 0 {
		out.MaxFrequencyDays = cfg.MaxFrequencyDays
	}
	setPositive(&out.TargetFill, cfg.TargetFill)
	setPositive(&out.MinFill, cfg.MinFill)
	setPositive(&out.MaxFill, cfg.MaxFill)
	if cfg.MaxContainers > 0 {
		out.MaxContainers = cfg.MaxContainers
	}
	if cfg.TieEpsilon >= 0 {
		out.TieEpsilon = cfg.TieEpsilon
	}
	return out
}

func setPositive(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}
