package internaldefs

import (
	"strings"
	"testing"

	"github.com/MrEthical07/authcore"
)

func TestCounterDefsCoverEveryCounter(t *testing.T) {
	if len(CounterDefs) != int(authcore.MetricLoginLatency) {
		t.Fatalf("expected %d counter defs, got %d", authcore.MetricLoginLatency, len(CounterDefs))
	}
	seen := map[authcore.MetricID]bool{}
	names := map[string]bool{}
	for _, def := range CounterDefs {
		if seen[def.ID] || names[def.Name] {
			t.Fatalf("duplicate counter def %+v", def)
		}
		if !strings.HasPrefix(def.Name, "authcore_") || !strings.HasSuffix(def.Name, "_total") {
			t.Fatalf("counter %q breaks the naming scheme", def.Name)
		}
		seen[def.ID] = true
		names[def.Name] = true
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := CumulativeBuckets(NormalizeBuckets([]uint64{1, 0, 2, 0, 0, 1}))
	want := [8]uint64{1, 1, 3, 3, 3, 4, 4, 4}
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if NormalizeBuckets(make([]uint64, 12)) != [8]uint64{} {
		t.Fatal("overlong input must be truncated")
	}
	if len(HistogramUpperBounds) != 7 {
		t.Fatalf("expected 7 finite bounds, got %d", len(HistogramUpperBounds))
	}
}
