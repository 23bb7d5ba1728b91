package progress

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"
)

// Impact grades a bottleneck.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// BottleneckKind names the rule that flagged an agent.
type BottleneckKind string

const (
	BottleneckLagging BottleneckKind = "lagging"
	BottleneckBlocked BottleneckKind = "blocked"
	BottleneckSlow    BottleneckKind = "slow"
	BottleneckIdle    BottleneckKind = "idle"
)

// Bottleneck is an agent holding back overall completion.
type Bottleneck struct {
	AgentID     string         `json:"agentId"`
	Kind        BottleneckKind `json:"kind"`
	Impact      Impact         `json:"impact"`
	Description string         `json:"description"`
}

// Report is the aggregated view.
type Report struct {
	Overall             float64           `json:"overallProgress"`
	Method              Strategy          `json:"method"`
	AgentStatus         map[string]Status `json:"agentStatus"`
	Bottlenecks         []Bottleneck      `json:"bottlenecks"`
	EstimatedCompletion time.Time         `json:"estimatedCompletion"`
	CriticalPath        []string          `json:"criticalPath,omitempty"`
}

// DefaultMinutesPerPercent is the extrapolation rate used when no agent
// supplies a remaining-time estimate.
const DefaultMinutesPerPercent = 1.0

// CriticalFraction is the share of agents, by remaining time, that make up
// the critical path.
const CriticalFraction = 0.3

// Options tunes Aggregate.
type Options struct {
	// Now returns the current time. Nil uses time.Now.
	Now func() time.Time

	// MinutesPerPercent overrides DefaultMinutesPerPercent when positive.
	MinutesPerPercent float64
}

// Aggregate combines reports under strategy. Empty input yields 0% with no
// bottlenecks.
func Aggregate(reports []AgentProgress, strategy Strategy, opts Options) (*Report, error) {
	if err := Validate(reports, strategy); err != nil {
		return nil, err
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	rate := DefaultMinutesPerPercent
	if opts.MinutesPerPercent > 0 {
		rate = opts.MinutesPerPercent
	}

	rep := &Report{
		Method:      strategy,
		AgentStatus: make(map[string]Status, len(reports)),
		Bottlenecks: []Bottleneck{},
	}
	for _, r := range reports {
		rep.AgentStatus[r.AgentID] = r.Status
	}

	if len(reports) > 0 {
		switch strategy {
		case StrategyWeighted:
			rep.Overall = weighted(reports)
		case StrategyCriticalPath:
			rep.Overall, rep.CriticalPath = criticalPath(reports, rate)
		default:
			rep.Overall = mean(reports)
		}
		rep.Bottlenecks = bottlenecks(reports, rep.Overall)
	}

	minutes := (100 - rep.Overall) * rate
	if longest, ok := maxEstimate(reports); ok {
		minutes = longest
	}
	rep.EstimatedCompletion = now().Add(time.Duration(minutes * float64(time.Minute)))
	return rep, nil
}

func mean(reports []AgentProgress) float64 {
	var sum float64
	for _, r := range reports {
		sum += r.PercentComplete
	}
	return sum / float64(len(reports))
}

func weighted(reports []AgentProgress) float64 {
	var sum, weights float64
	for _, r := range reports {
		sum += r.PercentComplete * *r.Weight
		weights += *r.Weight
	}
	return sum / weights
}

// remaining is the agent's estimate, or an extrapolation from its own
// percent complete when it supplied none.
func remaining(r AgentProgress, rate float64) float64 {
	if r.EstimatedMinutesRemaining != nil {
		return *r.EstimatedMinutesRemaining
	}
	return (100 - r.PercentComplete) * rate
}

// criticalPath averages the slowest ceil(30%) of agents by remaining time.
func criticalPath(reports []AgentProgress, rate float64) (float64, []string) {
	sorted := slices.Clone(reports)
	slices.SortStableFunc(sorted, func(a, b AgentProgress) int {
		return cmp.Compare(remaining(b, rate), remaining(a, rate))
	})
	n := max(1, int(math.Ceil(CriticalFraction*float64(len(sorted))-1e-9)))
	critical := sorted[:n]

	var path []string
	for _, r := range critical {
		if r.CurrentTask != "" {
			path = append(path, r.CurrentTask)
		}
	}
	return mean(critical), path
}

func maxEstimate(reports []AgentProgress) (float64, bool) {
	longest, found := 0.0, false
	for _, r := range reports {
		if r.EstimatedMinutesRemaining != nil {
			longest = max(longest, *r.EstimatedMinutesRemaining)
			found = true
		}
	}
	return longest, found
}

func bottlenecks(reports []AgentProgress, overall float64) []Bottleneck {
	out := []Bottleneck{}
	avg := mean(reports)

	var estSum float64
	estCount := 0
	working := 0
	for _, r := range reports {
		if r.EstimatedMinutesRemaining != nil {
			estSum += *r.EstimatedMinutesRemaining
			estCount++
		}
		if r.Status == StatusWorking {
			working++
		}
	}

	for _, r := range reports {
		if gap := avg - r.PercentComplete; avg > 20 && gap > avg/2 {
			ratio := gap / avg
			impact := ImpactLow
			switch {
			case ratio >= 0.8:
				impact = ImpactHigh
			case ratio >= 0.65:
				impact = ImpactMedium
			}
			out = append(out, Bottleneck{
				AgentID:     r.AgentID,
				Kind:        BottleneckLagging,
				Impact:      impact,
				Description: fmt.Sprintf("%.0f%% complete against an average of %.0f%%", r.PercentComplete, avg),
			})
		}

		if r.Status == StatusBlocked {
			out = append(out, Bottleneck{
				AgentID:     r.AgentID,
				Kind:        BottleneckBlocked,
				Impact:      ImpactHigh,
				Description: blockedDescription(r),
			})
		}

		if r.EstimatedMinutesRemaining != nil && estCount > 0 {
			if meanEst := estSum / float64(estCount); *r.EstimatedMinutesRemaining > 2*meanEst {
				out = append(out, Bottleneck{
					AgentID:     r.AgentID,
					Kind:        BottleneckSlow,
					Impact:      ImpactMedium,
					Description: fmt.Sprintf("%.0f minutes remaining against a mean of %.0f", *r.EstimatedMinutesRemaining, meanEst),
				})
			}
		}

		if r.Status == StatusIdle && working > 0 && overall > 10 && overall < 90 {
			out = append(out, Bottleneck{
				AgentID:     r.AgentID,
				Kind:        BottleneckIdle,
				Impact:      ImpactLow,
				Description: "idle while other agents are working",
			})
		}
	}
	return out
}

func blockedDescription(r AgentProgress) string {
	if r.CurrentTask != "" {
		return fmt.Sprintf("blocked on task %s", r.CurrentTask)
	}
	return "blocked"
}
