package clustertime

import (
	"sort"
	"time"
)

// marzulloTuple is one endpoint of a source's candidate offset interval.
// Each source contributes exactly two tuples: its lower bound and its upper
// bound.
type marzulloTuple struct {
	sourceID int
	offset   time.Duration
	isUpper  bool
}

// marzulloInterval is the result of solveMarzullo: the smallest sub-interval
// covered by the largest number of source intervals, and how many distinct
// sources ("truechimers") cover it.
type marzulloInterval struct {
	Lower       time.Duration
	Upper       time.Duration
	SourcesTrue int
}

// solveMarzullo runs Marzullo's algorithm over tuples: it sorts the
// endpoints (ties broken lower-before-upper), sweeps while maintaining a
// cover counter, and returns the maximal-cover run with the smallest width,
// breaking ties between equally-wide runs by keeping the first one found.
//
// tuples is sorted in place (sort.Slice operates on the slice directly), so
// callers should treat the slice's order as undefined after this call.
func solveMarzullo(tuples []marzulloTuple) marzulloInterval {
	if len(tuples) == 0 {
		return marzulloInterval{}
	}

	sort.Slice(tuples, func(i, j int) bool {
		if tuples[i].offset != tuples[j].offset {
			return tuples[i].offset < tuples[j].offset
		}
		// Ties: lower before upper, so that a source's interval starting
		// exactly where another's ends is counted as covering that shared
		// point (both bounds are closed).
		return !tuples[i].isUpper && tuples[j].isUpper
	})

	// Pass 1: find the maximum simultaneous cover.
	count := 0
	best := 0
	for _, tpl := range tuples {
		if tpl.isUpper {
			count--
		} else {
			count++
			if count > best {
				best = count
			}
		}
	}

	// Pass 2: find the narrowest contiguous run achieving that maximum.
	count = 0
	inRun := false
	var runStart time.Duration
	result := marzulloInterval{SourcesTrue: best}
	haveResult := false

	for _, tpl := range tuples {
		if !tpl.isUpper {
			count++
			if count == best && !inRun {
				inRun = true
				runStart = tpl.offset
			}
			continue
		}
		if inRun {
			runEnd := tpl.offset
			count--
			if count < best {
				inRun = false
				width := runEnd - runStart
				if !haveResult || width < result.Upper-result.Lower {
					result.Lower = runStart
					result.Upper = runEnd
					haveResult = true
				}
			}
		} else {
			count--
		}
	}

	return result
}
