package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveTurn("chat", "ok")
	m.ObserveStage("transcribe", time.Second)
	m.ObserveChunk()
	m.ObserveFallback("/tts")
	m.ObservePruned(3)
	m.ObserveHTTP("GET", "/", "200", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != 404 {
		t.Fatalf("expected 404 from nil handler, got %d", rec.Code)
	}
}

func TestCountersAndExposition(t *testing.T) {
	m := New()
	m.ObserveTurn("chat", "ok")
	m.ObserveTurn("chat", "ok")
	m.ObserveTurn("query", "fallback")
	m.ObserveFallback("/llm/query")
	m.ObserveChunk()
	m.ObservePruned(2)

	if got := testutil.ToFloat64(m.TurnsTotal.WithLabelValues("chat", "ok")); got != 2 {
		t.Fatalf("chat/ok turns = %v", got)
	}
	if got := testutil.ToFloat64(m.ArtifactsPruned); got != 2 {
		t.Fatalf("pruned = %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	for _, name := range []string{
		"voice_agent_turns_total",
		"voice_agent_fallbacks_total",
		"voice_agent_synthesized_chunks_total",
	} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("exposition missing %s", name)
		}
	}
}

func TestIndependentRegistries(t *testing.T) {
	a := New()
	b := New()
	a.ObserveChunk()
	if got := testutil.ToFloat64(b.SynthesizedChunks); got != 0 {
		t.Fatalf("registries share state: %v", got)
	}
}
