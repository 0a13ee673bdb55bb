package metrics

import (
	"testing"
	"time"
)

func durs(ms ...int) []time.Duration {
	out := make([]time.Duration, len(ms))
	for i, m := range ms {
		out[i] = time.Duration(m) * time.Millisecond
	}
	return out
}

func TestPercentile(t *testing.T) {
	tests := []struct {
		name   string
		sorted []time.Duration
		p      float64
		want   time.Duration
	}{
		{"p95 of five", durs(1, 2, 3, 4, 5), 0.95, 5 * time.Millisecond},
		{"p99 of five", durs(1, 2, 3, 4, 5), 0.99, 5 * time.Millisecond},
		{"p50 of five", durs(1, 2, 3, 4, 5), 0.50, 3 * time.Millisecond},
		{"p95 of one", durs(42), 0.95, 42 * time.Millisecond},
		{"p0 clamps to first", durs(1, 2, 3), 0, 1 * time.Millisecond},
		{"p100 is last", durs(1, 2, 3), 1.0, 3 * time.Millisecond},
		{"empty is zero", nil, 0.95, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if got != tt.want {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestSummarizeEmptyPhase(t *testing.T) {
	s := Summarize(NewPhase("empty"))

	if s.Total != 0 || s.Successes != 0 || s.Failures != 0 {
		t.Errorf("empty phase counts = %d/%d/%d, want all zero", s.Total, s.Successes, s.Failures)
	}
	if s.SuccessRate != 0 {
		t.Errorf("empty phase success rate = %v, want 0", s.SuccessRate)
	}
	if s.LatencyMin != 0 || s.LatencyMax != 0 || s.LatencyAvg != 0 || s.LatencyMedian != 0 ||
		s.LatencyP95 != 0 || s.LatencyP99 != 0 {
		t.Error("empty phase latency stats should all be zero")
	}
	if s.FailLatencyAvg != 0 || s.FailLatencyP95 != 0 {
		t.Error("empty phase failure latency stats should be zero")
	}
	if len(s.Errors) != 0 {
		t.Errorf("empty phase error breakdown = %v, want empty", s.Errors)
	}
	if s.FailureRatio() != 0 {
		t.Errorf("empty phase failure ratio = %v, want 0", s.FailureRatio())
	}
}

func TestSummarizeMixedOutcomes(t *testing.T) {
	p := NewPhase("round1")
	p.Add(Outcome{OK: true, Status: 200, Elapsed: 10 * time.Millisecond, Phase: "round1"})
	p.Add(Outcome{OK: true, Status: 200, Elapsed: 30 * time.Millisecond, Phase: "round1"})
	p.Add(Outcome{OK: true, Status: 200, Elapsed: 20 * time.Millisecond, Phase: "round1"})
	p.Add(Outcome{OK: false, Status: 429, ErrorTag: "HTTP_429", Category: CategoryRateLimit, Elapsed: 5 * time.Millisecond, Phase: "round1"})
	p.Add(Outcome{OK: false, ErrorTag: "timeout", Category: CategoryTimeout, Elapsed: 20 * time.Second, Phase: "round1"})

	s := Summarize(p)

	if s.Total != 5 || s.Successes != 3 || s.Failures != 2 {
		t.Fatalf("counts = %d/%d/%d, want 5/3/2", s.Total, s.Successes, s.Failures)
	}
	if s.SuccessRate != 60.0 {
		t.Errorf("success rate = %v, want 60", s.SuccessRate)
	}
	if s.LatencyMin != 10*time.Millisecond || s.LatencyMax != 30*time.Millisecond {
		t.Errorf("min/max = %v/%v, want 10ms/30ms", s.LatencyMin, s.LatencyMax)
	}
	if s.LatencyAvg != 20*time.Millisecond {
		t.Errorf("avg = %v, want 20ms", s.LatencyAvg)
	}
	if s.LatencyMedian != 20*time.Millisecond {
		t.Errorf("median = %v, want 20ms", s.LatencyMedian)
	}
	if s.Errors["HTTP_429"] != 1 || s.Errors["timeout"] != 1 {
		t.Errorf("error breakdown = %v", s.Errors)
	}
	if s.Categories[CategoryRateLimit] != 1 || s.Categories[CategoryTimeout] != 1 {
		t.Errorf("categories = %v", s.Categories)
	}
	if got := s.FailureRatio(); got != 0.4 {
		t.Errorf("failure ratio = %v, want 0.4", got)
	}
}

func TestSummarizeFailureLatencySeparate(t *testing.T) {
	p := NewPhase("burst")
	p.Add(Outcome{OK: true, Status: 200, Elapsed: 10 * time.Millisecond})
	p.Add(Outcome{OK: false, Status: 500, ErrorTag: "HTTP_500", Category: CategoryUpstream, Elapsed: 2 * time.Millisecond})
	p.Add(Outcome{OK: false, Status: 500, ErrorTag: "HTTP_500", Category: CategoryUpstream, Elapsed: 4 * time.Millisecond})

	s := Summarize(p)

	if s.LatencyAvg != 10*time.Millisecond {
		t.Errorf("success avg = %v, want 10ms (failures must not leak in)", s.LatencyAvg)
	}
	if s.FailLatencyAvg != 3*time.Millisecond {
		t.Errorf("fail avg = %v, want 3ms", s.FailLatencyAvg)
	}
	if s.FailLatencyP95 != 4*time.Millisecond {
		t.Errorf("fail p95 = %v, want 4ms", s.FailLatencyP95)
	}
}

func TestMedianEvenCount(t *testing.T) {
	p := NewPhase("x")
	for _, d := range durs(10, 20, 30, 40) {
		p.Add(Outcome{OK: true, Status: 200, Elapsed: d})
	}
	s := Summarize(p)
	if s.LatencyMedian != 25*time.Millisecond {
		t.Errorf("median = %v, want 25ms", s.LatencyMedian)
	}
}

func TestSummarizeTPS(t *testing.T) {
	p := NewPhase("burst")
	p.Wall = 2 * time.Second
	for i := 0; i < 10; i++ {
		p.Add(Outcome{OK: true, Status: 200, Elapsed: time.Millisecond})
	}
	s := Summarize(p)
	if s.TPS != 5.0 {
		t.Errorf("TPS = %v, want 5", s.TPS)
	}
}

func TestSummarizeUnknownTagAndCategory(t *testing.T) {
	p := NewPhase("x")
	p.Add(Outcome{OK: false, Elapsed: time.Millisecond})
	s := Summarize(p)
	if s.Errors["unknown"] != 1 {
		t.Errorf("untagged failure breakdown = %v, want unknown:1", s.Errors)
	}
	if s.Categories[CategoryOther] != 1 {
		t.Errorf("untagged failure categories = %v, want other:1", s.Categories)
	}
}
