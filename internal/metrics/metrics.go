// internal/metrics/metrics.go
package metrics

import (
	"math"
	"sort"
	"time"
)

// Category buckets a failure by what refused the request.
type Category string

const (
	CategoryAuth      Category = "auth"       // 401
	CategoryRateLimit Category = "rate_limit" // 429
	CategoryUpstream  Category = "upstream"   // 5xx
	CategoryTimeout   Category = "timeout"    // transport timeout
	CategoryOther     Category = "other"      // everything else
)

// Outcome is the final result of one logical request. A retried request
// still yields exactly one Outcome; Elapsed spans the first dispatch to the
// final resolution, backoff sleeps included.
type Outcome struct {
	OK       bool          `json:"ok"`
	Status   int           `json:"status,omitempty"` // 0 when the failure never got an HTTP response
	ErrorTag string        `json:"error,omitempty"`  // HTTP_<status> or a transport fault name
	Category Category      `json:"category,omitempty"`
	Elapsed  time.Duration `json:"elapsed_ns"`
	Phase    string        `json:"phase"`
	Snippet  string        `json:"snippet,omitempty"`
	Retries  int           `json:"retries"`
}

// Phase accumulates outcomes for one named phase of a run. Appends happen in
// completion order; nothing downstream may assume submission order.
type Phase struct {
	Name     string
	Outcomes []Outcome

	// Wall is the wall-clock duration of the whole phase, set by the runner.
	Wall time.Duration
}

// NewPhase creates an empty phase.
func NewPhase(name string) *Phase {
	return &Phase{Name: name}
}

// Add appends one outcome.
func (p *Phase) Add(o Outcome) {
	p.Outcomes = append(p.Outcomes, o)
}

// Summary holds every statistic derived from a phase. All fields degrade to
// zero on an empty phase.
type Summary struct {
	Phase       string  `json:"phase"`
	Total       int     `json:"total"`
	Successes   int     `json:"successes"`
	Failures    int     `json:"failures"`
	SuccessRate float64 `json:"success_rate"` // percent

	LatencyMin    time.Duration `json:"latency_min_ns"`
	LatencyMax    time.Duration `json:"latency_max_ns"`
	LatencyAvg    time.Duration `json:"latency_avg_ns"`
	LatencyMedian time.Duration `json:"latency_median_ns"`
	LatencyP95    time.Duration `json:"latency_p95_ns"`
	LatencyP99    time.Duration `json:"latency_p99_ns"`

	// Failure latencies are tracked apart from success latencies: fast-fail
	// rejections and timeouts sit at opposite ends of the distribution.
	FailLatencyAvg time.Duration `json:"fail_latency_avg_ns"`
	FailLatencyP95 time.Duration `json:"fail_latency_p95_ns"`

	Errors     map[string]int   `json:"errors"`
	Categories map[Category]int `json:"error_categories"`

	Wall time.Duration `json:"wall_ns"`
	TPS  float64       `json:"tps"` // successes per wall-clock second
}

// FailureRatio returns failures/total in [0,1]; 0 for an empty phase.
func (s Summary) FailureRatio() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Failures) / float64(s.Total)
}

// Summarize derives every statistic from the phase's raw outcomes. It is
// recomputed on demand rather than maintained incrementally, so that the
// collection path stays a plain append.
func Summarize(p *Phase) Summary {
	s := Summary{
		Phase:      p.Name,
		Total:      len(p.Outcomes),
		Errors:     make(map[string]int),
		Categories: make(map[Category]int),
		Wall:       p.Wall,
	}

	var okLat, failLat []time.Duration
	for _, o := range p.Outcomes {
		if o.OK {
			s.Successes++
			okLat = append(okLat, o.Elapsed)
			continue
		}
		s.Failures++
		failLat = append(failLat, o.Elapsed)
		tag := o.ErrorTag
		if tag == "" {
			tag = "unknown"
		}
		s.Errors[tag]++
		cat := o.Category
		if cat == "" {
			cat = CategoryOther
		}
		s.Categories[cat]++
	}

	if s.Total > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.Total) * 100
	}

	sortDurations(okLat)
	if len(okLat) > 0 {
		s.LatencyMin = okLat[0]
		s.LatencyMax = okLat[len(okLat)-1]
		s.LatencyAvg = meanDuration(okLat)
		s.LatencyMedian = medianSorted(okLat)
		s.LatencyP95 = Percentile(okLat, 0.95)
		s.LatencyP99 = Percentile(okLat, 0.99)
	}

	sortDurations(failLat)
	if len(failLat) > 0 {
		s.FailLatencyAvg = meanDuration(failLat)
		s.FailLatencyP95 = Percentile(failLat, 0.95)
	}

	if p.Wall > 0 {
		s.TPS = float64(s.Successes) / p.Wall.Seconds()
	}
	return s
}

// Percentile returns the p-quantile of sorted (index ceil(p*n)-1, clamped to
// [0, n-1]). An empty slice yields 0. The input must already be ascending.
func Percentile(sorted []time.Duration, p float64) time.Duration {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	idx := int(math.Ceil(p*float64(n))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx > n-1 {
		idx = n - 1
	}
	return sorted[idx]
}

func sortDurations(d []time.Duration) {
	sort.Slice(d, func(i, j int) bool { return d[i] < d[j] })
}

func meanDuration(d []time.Duration) time.Duration {
	if len(d) == 0 {
		return 0
	}
	var sum time.Duration
	for _, v := range d {
		sum += v
	}
	return sum / time.Duration(len(d))
}

// medianSorted returns the median of an ascending slice: the middle element,
// or the mean of the two middle elements for even lengths.
func medianSorted(d []time.Duration) time.Duration {
	n := len(d)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return d[n/2]
	}
	return (d[n/2-1] + d[n/2]) / 2
}
