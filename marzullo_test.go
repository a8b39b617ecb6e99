package clustertime

import (
	"testing"
	"time"
)

func interval(source int, center, radius time.Duration) []marzulloTuple {
	return []marzulloTuple{
		{sourceID: source, offset: center - radius, isUpper: false},
		{sourceID: source, offset: center + radius, isUpper: true},
	}
}

func TestSolveMarzulloSingleSource(t *testing.T) {
	tuples := interval(0, 0, 100*time.Millisecond)
	got := solveMarzullo(tuples)
	if got.SourcesTrue != 1 {
		t.Fatalf("SourcesTrue = %d, want 1", got.SourcesTrue)
	}
	if got.Lower != -100*time.Millisecond || got.Upper != 100*time.Millisecond {
		t.Fatalf("got [%v,%v], want [-100ms,100ms]", got.Lower, got.Upper)
	}
}

func TestSolveMarzulloMajorityOfTwoWithOneLiar(t *testing.T) {
	// Two peers report offset 500ms +/- 50ms, a third lies with 5s +/- 50ms.
	var tuples []marzulloTuple
	tuples = append(tuples, interval(0, 500*time.Millisecond, 50*time.Millisecond)...)
	tuples = append(tuples, interval(1, 500*time.Millisecond, 50*time.Millisecond)...)
	tuples = append(tuples, interval(2, 5*time.Second, 50*time.Millisecond)...)

	got := solveMarzullo(tuples)
	if got.SourcesTrue != 2 {
		t.Fatalf("SourcesTrue = %d, want 2", got.SourcesTrue)
	}
	if got.Lower != 450*time.Millisecond || got.Upper != 550*time.Millisecond {
		t.Fatalf("got [%v,%v], want [450ms,550ms]", got.Lower, got.Upper)
	}
}

func TestSolveMarzulloNoOverlapFallsBackToSingleCover(t *testing.T) {
	// Three disjoint intervals: max cover is 1, narrowest such interval wins.
	var tuples []marzulloTuple
	tuples = append(tuples, interval(0, 0, 10*time.Millisecond)...)
	tuples = append(tuples, interval(1, time.Second, 5*time.Millisecond)...)
	tuples = append(tuples, interval(2, 2*time.Second, 20*time.Millisecond)...)

	got := solveMarzullo(tuples)
	if got.SourcesTrue != 1 {
		t.Fatalf("SourcesTrue = %d, want 1", got.SourcesTrue)
	}
	if got.Upper-got.Lower != 10*time.Millisecond {
		t.Fatalf("width = %v, want the narrowest disjoint interval (10ms)", got.Upper-got.Lower)
	}
}

func TestSolveMarzulloEmpty(t *testing.T) {
	got := solveMarzullo(nil)
	if got.SourcesTrue != 0 {
		t.Fatalf("SourcesTrue = %d, want 0", got.SourcesTrue)
	}
}

func TestSolveMarzulloTouchingBoundsCountAsOverlapping(t *testing.T) {
	// Source 0: [0, 10ms]. Source 1: [10ms, 20ms]. They touch exactly at
	// 10ms, which per the sweep's tie rule (lower before upper) must count
	// as covered by both.
	var tuples []marzulloTuple
	tuples = append(tuples, marzulloTuple{sourceID: 0, offset: 0, isUpper: false})
	tuples = append(tuples, marzulloTuple{sourceID: 0, offset: 10 * time.Millisecond, isUpper: true})
	tuples = append(tuples, marzulloTuple{sourceID: 1, offset: 10 * time.Millisecond, isUpper: false})
	tuples = append(tuples, marzulloTuple{sourceID: 1, offset: 20 * time.Millisecond, isUpper: true})

	got := solveMarzullo(tuples)
	if got.SourcesTrue != 2 {
		t.Fatalf("SourcesTrue = %d, want 2 (touching bounds should overlap)", got.SourcesTrue)
	}
	if got.Lower != 10*time.Millisecond || got.Upper != 10*time.Millisecond {
		t.Fatalf("got [%v,%v], want the single shared point [10ms,10ms]", got.Lower, got.Upper)
	}
}
