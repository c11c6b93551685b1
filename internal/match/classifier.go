package match

import (
	"fmt"
	"sort"

	"cgmatch/internal/raster"
)

// Thresholds are the classification constants inherited from the ported
// matching heuristics. They are deliberately configuration, not literals:
// their calibration is a starting point, not a guarantee.
type Thresholds struct {
	// BaseEffectiveRatio is the minimum effective-pixel ratio for an image to
	// count as a background candidate.
	BaseEffectiveRatio float64 `json:"base_effective_ratio"`
	// BaseComponentRatio is the minimum largest-fill-component ratio for an
	// image to count as a background candidate.
	BaseComponentRatio float64 `json:"base_component_ratio"`
	// ComponentWeight and EffectiveWeight blend the two feature ratios into
	// the background-likeness score reported on matched jobs.
	ComponentWeight float64 `json:"component_weight"`
	EffectiveWeight float64 `json:"effective_weight"`
}

// DefaultThresholds returns the inherited calibration.
func DefaultThresholds() Thresholds {
	return Thresholds{
		BaseEffectiveRatio: 0.55,
		BaseComponentRatio: 0.35,
		ComponentWeight:    0.55,
		EffectiveWeight:    0.45,
	}
}

// IsBackground reports whether the features look like a backdrop: mostly
// effective pixels and one large uniform fill region.
func (t Thresholds) IsBackground(f raster.ImageFeatures) bool {
	return f.EffectivePixelRatio >= t.BaseEffectiveRatio &&
		f.LargestFillComponentRatio >= t.BaseComponentRatio
}

// Score is the background-likeness of the features, higher meaning more
// backdrop-like.
func (t Thresholds) Score(f raster.ImageFeatures) float64 {
	return t.ComponentWeight*f.LargestFillComponentRatio + t.EffectiveWeight*f.EffectivePixelRatio
}

// ClassifyGroups pairs diff candidates with background candidates. Diffs are
// grouped by their filename group key; a base belongs to a group when its own
// key matches (see groupMatches). A group pairs cleanly only when filename
// and feature evidence agree on exactly one background; anything else is
// surfaced as ambiguous or unmatched rather than guessed. Output order is
// stable: group key, then diff index, then path.
func ClassifyGroups(cands []Candidate, th Thresholds) []PairJob {
	var diffs []Candidate
	var others []Candidate
	for _, c := range cands {
		if c.Key.LooksLikeDiff {
			diffs = append(diffs, c)
		} else {
			others = append(others, c)
		}
	}

	byGroup := make(map[string][]Candidate)
	for _, d := range diffs {
		byGroup[d.Key.GroupKey] = append(byGroup[d.Key.GroupKey], d)
	}
	groupKeys := make([]string, 0, len(byGroup))
	for k := range byGroup {
		groupKeys = append(groupKeys, k)
	}
	sort.Strings(groupKeys)

	var jobs []PairJob
	for _, key := range groupKeys {
		groupDiffs := byGroup[key]
		sort.Slice(groupDiffs, func(i, j int) bool {
			a, b := groupDiffs[i], groupDiffs[j]
			if a.Key.HasIndex != b.Key.HasIndex {
				return a.Key.HasIndex
			}
			if a.Key.DiffIndex != b.Key.DiffIndex {
				return a.Key.DiffIndex < b.Key.DiffIndex
			}
			return a.RelPath < b.RelPath
		})

		var confirmed []Candidate // name matches and features say backdrop
		var nameOnly []Candidate  // name matches, features disagree
		for _, o := range others {
			if !groupMatches(key, o.Key.GroupKey) {
				continue
			}
			if th.IsBackground(o.Features) {
				confirmed = append(confirmed, o)
			} else {
				nameOnly = append(nameOnly, o)
			}
		}

		switch {
		case len(confirmed) == 1:
			base := confirmed[0]
			for _, d := range groupDiffs {
				job := pairJob(base, d, key, th)
				if th.IsBackground(d.Features) {
					// Filename says diff, pixels say backdrop: surface it.
					job.Status = StatusAmbiguous
					job.Reason = "diff filename but backdrop-like features"
				}
				jobs = append(jobs, job)
			}
		case len(confirmed) > 1:
			reason := fmt.Sprintf("%d background candidates in group", len(confirmed))
			for _, d := range groupDiffs {
				for _, base := range confirmed {
					job := pairJob(base, d, key, th)
					job.Status = StatusAmbiguous
					job.Reason = reason
					jobs = append(jobs, job)
				}
			}
		case len(nameOnly) > 0:
			for _, d := range groupDiffs {
				jobs = append(jobs, PairJob{
					DiffPath:      d.Path,
					OutputRelPath: d.RelPath,
					GroupKey:      key,
					DiffIndex:     d.Key.DiffIndex,
					Status:        StatusAmbiguous,
					Reason:        "candidate bases match by name but not by features",
					Source:        ModeAuto,
				})
			}
		default:
			for _, d := range groupDiffs {
				jobs = append(jobs, PairJob{
					DiffPath:      d.Path,
					OutputRelPath: d.RelPath,
					GroupKey:      key,
					DiffIndex:     d.Key.DiffIndex,
					Status:        StatusUnmatched,
					Reason:        "no background candidate in group",
					Source:        ModeAuto,
				})
			}
		}
	}

	sortJobs(jobs)
	return jobs
}

func pairJob(base, diff Candidate, key string, th Thresholds) PairJob {
	return PairJob{
		BasePath:      base.Path,
		DiffPath:      diff.Path,
		OutputRelPath: diff.RelPath,
		GroupKey:      key,
		DiffIndex:     diff.Key.DiffIndex,
		Status:        StatusMatched,
		Score:         th.Score(base.Features),
		Source:        ModeAuto,
	}
}

func sortJobs(jobs []PairJob) {
	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].GroupKey != jobs[j].GroupKey {
			return jobs[i].GroupKey < jobs[j].GroupKey
		}
		if jobs[i].DiffIndex != jobs[j].DiffIndex {
			return jobs[i].DiffIndex < jobs[j].DiffIndex
		}
		return jobs[i].DiffPath < jobs[j].DiffPath
	})
}
