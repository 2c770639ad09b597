package observability

import (
	"testing"
	"time"
)

func TestStageWindowPercentiles(t *testing.T) {
	w := NewStageWindow(16)
	for i := 1; i <= 10; i++ {
		w.Observe(StageSTT, time.Duration(i*100)*time.Millisecond)
	}

	snap := w.Snapshot()
	if len(snap.Stages) != 1 {
		t.Fatalf("stages = %d, want 1", len(snap.Stages))
	}
	stt := snap.Stages[0]
	if stt.Stage != StageSTT || stt.Samples != 10 {
		t.Fatalf("stats = %+v", stt)
	}
	if stt.LastMS != 1000 {
		t.Fatalf("LastMS = %v, want 1000", stt.LastMS)
	}
	if stt.AvgMS != 550 {
		t.Fatalf("AvgMS = %v, want 550", stt.AvgMS)
	}
	if stt.P50MS != 550 {
		t.Fatalf("P50MS = %v, want 550", stt.P50MS)
	}
	if stt.TargetP95MS != 1000 {
		t.Fatalf("TargetP95MS = %v", stt.TargetP95MS)
	}
}

func TestStageWindowWrapsAround(t *testing.T) {
	w := NewStageWindow(4)
	for i := 0; i < 10; i++ {
		w.Observe(StageLLM, time.Duration(i)*time.Millisecond)
	}

	snap := w.Snapshot()
	if snap.Stages[0].Samples != 4 {
		t.Fatalf("samples = %d, want window size 4", snap.Stages[0].Samples)
	}
	// Only the latest four observations survive.
	if snap.Stages[0].P50MS < 6 {
		t.Fatalf("P50MS = %v, old samples not evicted", snap.Stages[0].P50MS)
	}
}

func TestStageWindowIndicators(t *testing.T) {
	w := NewStageWindow(8)
	w.ObserveIndicator(IndicatorBargeIn)
	w.ObserveIndicator(IndicatorBargeIn)
	w.ObserveIndicator(IndicatorFillerPlayed)
	w.ObserveIndicator("")

	snap := w.Snapshot()
	if len(snap.Indicators) != 2 {
		t.Fatalf("indicators = %+v", snap.Indicators)
	}
	if snap.Indicators[0].Name != IndicatorBargeIn || snap.Indicators[0].Count != 2 {
		t.Fatalf("indicators = %+v", snap.Indicators)
	}
}
