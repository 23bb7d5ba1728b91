package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorder_NilIsSafe(t *testing.T) {
	var r *Recorder
	r.Operation("analyze", true, time.Second)
	r.Analysis(true)
	r.Graph(true, 2)
	r.Plan("balance-load", 3)
	r.Batch("conservative", "skipped")
	r.Task(false, time.Second, 1)
	r.Run(2)
	r.Conflict("file-level")
	r.Aggregation("weighted", []string{"high"})
}

func TestRecorder_Counters(t *testing.T) {
	_, r := NewRegistry()

	r.Operation("analyze", true, 10*time.Millisecond)
	r.Operation("analyze", false, 10*time.Millisecond)
	r.Analysis(false)
	r.Graph(true, 3)
	r.Batch("aggressive", "failed")
	r.Task(true, time.Second, 0)
	r.Task(false, time.Second, 2)
	r.Conflict("semantic")
	r.Aggregation("critical-path", []string{"high", "low", "high"})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"operations success", testutil.ToFloat64(r.Operations.WithLabelValues("analyze", "true")), 1},
		{"operations failure", testutil.ToFloat64(r.Operations.WithLabelValues("analyze", "false")), 1},
		{"analyses", testutil.ToFloat64(r.Analyses.WithLabelValues("false")), 1},
		{"cycles", testutil.ToFloat64(r.GraphCycles), 1},
		{"implicit", testutil.ToFloat64(r.ImplicitDeps), 3},
		{"batches", testutil.ToFloat64(r.Batches.WithLabelValues("aggressive", "failed")), 1},
		{"tasks succeeded", testutil.ToFloat64(r.TaskResults.WithLabelValues("succeeded")), 1},
		{"tasks failed", testutil.ToFloat64(r.TaskResults.WithLabelValues("failed")), 1},
		{"retries", testutil.ToFloat64(r.TaskRetries), 2},
		{"conflicts", testutil.ToFloat64(r.Conflicts.WithLabelValues("semantic")), 1},
		{"aggregations", testutil.ToFloat64(r.Aggregations.WithLabelValues("critical-path")), 1},
		{"high bottlenecks", testutil.ToFloat64(r.Bottlenecks.WithLabelValues("high")), 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}
}

func TestHandler(t *testing.T) {
	reg, r := NewRegistry()
	r.Conflict("file-level")

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `fanout_conflicts_total{type="file-level"} 1`) {
		t.Errorf("metrics output missing conflict counter:\n%s", body)
	}
}
