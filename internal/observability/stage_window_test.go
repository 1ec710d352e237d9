package observability

import "testing"

func TestStageWindowSnapshotStats(t *testing.T) {
	w := newStageWindow(8)
	for _, v := range []float64{10, 20, 30, 40} {
		w.Observe("compaction", v)
	}

	snap := w.Snapshot()
	if snap.WindowSize != 8 {
		t.Fatalf("WindowSize = %d, want 8", snap.WindowSize)
	}
	if len(snap.Stages) != 1 {
		t.Fatalf("stages = %d, want 1", len(snap.Stages))
	}

	st := snap.Stages[0]
	if st.Stage != "compaction" || st.Samples != 4 {
		t.Fatalf("stage = %+v", st)
	}
	if st.LastMS != 40 {
		t.Fatalf("LastMS = %v, want 40", st.LastMS)
	}
	if st.AvgMS != 25 {
		t.Fatalf("AvgMS = %v, want 25", st.AvgMS)
	}
	if st.P50MS != 25 {
		t.Fatalf("P50MS = %v, want 25", st.P50MS)
	}
}

func TestStageWindowRingOverwritesOldest(t *testing.T) {
	w := newStageWindow(4)
	for i := 1; i <= 6; i++ {
		w.Observe("deep_analysis", float64(i*100))
	}

	snap := w.Snapshot()
	st := snap.Stages[0]
	if st.Samples != 4 {
		t.Fatalf("Samples = %d, want 4 after wraparound", st.Samples)
	}
	// 100 and 200 were overwritten; the window holds 300..600.
	if st.P50MS < 300 {
		t.Fatalf("P50MS = %v, want samples from the recent window only", st.P50MS)
	}
	if st.LastMS != 600 {
		t.Fatalf("LastMS = %v, want 600", st.LastMS)
	}
}

func TestStageWindowIgnoresInvalidSamples(t *testing.T) {
	w := newStageWindow(4)
	w.Observe("", 10)
	w.Observe("stage", -1)

	if got := len(w.Snapshot().Stages); got != 0 {
		t.Fatalf("stages = %d, want 0", got)
	}
}

func TestStageWindowSortsStagesByName(t *testing.T) {
	w := newStageWindow(4)
	w.Observe("trigger_scan", 1)
	w.Observe("compaction", 2)

	snap := w.Snapshot()
	if len(snap.Stages) != 2 {
		t.Fatalf("stages = %d, want 2", len(snap.Stages))
	}
	if snap.Stages[0].Stage != "compaction" || snap.Stages[1].Stage != "trigger_scan" {
		t.Fatalf("stage order = [%s, %s]", snap.Stages[0].Stage, snap.Stages[1].Stage)
	}
}
