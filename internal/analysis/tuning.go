package analysis

// Tuning holds the heuristic thresholds of the scoring model. None of them
// is a correctness guarantee; they are starting points meant to be adjusted
// through configuration.
//
// The three gating thresholds are pointers because zero is a meaningful
// setting for each of them; nil selects the default.
type Tuning struct {
	// MinScore is the lowest overall score that may be parallelized.
	MinScore *float64 `mapstructure:"min_score"`
	// MinSpeedup is the lowest estimated speedup that may be parallelized.
	// Zero disables the check.
	MinSpeedup *float64 `mapstructure:"min_speedup"`
	// MinTasks is the fewest tasks worth parallelizing.
	MinTasks *int `mapstructure:"min_tasks"`

	// SharedResourceKeywords mark a task as touching a shared resource when
	// present as a whole word in its description.
	SharedResourceKeywords []string `mapstructure:"shared_resource_keywords"`

	// DurationFloor and DurationCeiling bound the duration ramp in minutes.
	DurationFloor   float64 `mapstructure:"duration_floor"`
	DurationCeiling float64 `mapstructure:"duration_ceiling"`

	// ShortDescription and LongDescription bound the description-length ramp
	// in characters. Shorter scores higher.
	ShortDescription float64 `mapstructure:"short_description"`
	LongDescription  float64 `mapstructure:"long_description"`

	// FewLevels and ManyLevels bound the level-count ramp.
	FewLevels  float64 `mapstructure:"few_levels"`
	ManyLevels float64 `mapstructure:"many_levels"`

	// LargeBatch is the batch size above which a low risk is raised.
	LargeBatch int `mapstructure:"large_batch"`
	// SkewRatio is the max/min duration ratio within a batch above which a
	// low risk is raised.
	SkewRatio float64 `mapstructure:"skew_ratio"`
}

// Factor weights. They sum to 1.
const (
	WeightIndependence         = 0.30
	WeightDurationValue        = 0.25
	WeightConflictRisk         = 0.25
	WeightDependencyComplexity = 0.10
	WeightResourceContention   = 0.10
)

// DefaultTuning returns the default thresholds.
func DefaultTuning() Tuning {
	return Tuning{
		MinScore:               Ptr(40.0),
		MinSpeedup:             Ptr(1.5),
		MinTasks:               Ptr(3),
		SharedResourceKeywords: []string{"database", "api", "file", "config", "shared", "global"},
		DurationFloor:          5,
		DurationCeiling:        60,
		ShortDescription:       20,
		LongDescription:        200,
		FewLevels:              1,
		ManyLevels:             11,
		LargeBatch:             10,
		SkewRatio:              3,
	}
}

// Ptr returns a pointer to v, for setting Tuning thresholds.
func Ptr[T any](v T) *T {
	return &v
}

// withDefaults fills unset fields from DefaultTuning. After it the
// threshold pointers are never nil.
func (t Tuning) withDefaults() Tuning {
	d := DefaultTuning()
	if t.MinScore == nil {
		t.MinScore = d.MinScore
	}
	if t.MinSpeedup == nil {
		t.MinSpeedup = d.MinSpeedup
	}
	if t.MinTasks == nil {
		t.MinTasks = d.MinTasks
	}
	if t.SharedResourceKeywords == nil {
		t.SharedResourceKeywords = d.SharedResourceKeywords
	}
	if t.DurationCeiling <= t.DurationFloor {
		t.DurationFloor, t.DurationCeiling = d.DurationFloor, d.DurationCeiling
	}
	if t.LongDescription <= t.ShortDescription {
		t.ShortDescription, t.LongDescription = d.ShortDescription, d.LongDescription
	}
	if t.ManyLevels <= t.FewLevels {
		t.FewLevels, t.ManyLevels = d.FewLevels, d.ManyLevels
	}
	if t.LargeBatch == 0 {
		t.LargeBatch = d.LargeBatch
	}
	if t.SkewRatio == 0 {
		t.SkewRatio = d.SkewRatio
	}
	return t
}
