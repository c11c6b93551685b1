package match

import (
	"math"
	"strings"
	"testing"

	"cgmatch/internal/raster"
)

var (
	backdropFeats = raster.ImageFeatures{EffectivePixelRatio: 0.9, LargestFillComponentRatio: 0.8}
	overlayFeats  = raster.ImageFeatures{EffectivePixelRatio: 0.2, LargestFillComponentRatio: 0.1}
)

func cand(rel string, feats raster.ImageFeatures) Candidate {
	return Candidate{
		Path:     "/in/" + rel,
		RelPath:  rel,
		Features: feats,
		Key:      ParseFilename(rel),
	}
}

func TestClassifyGroupsSingleBase(t *testing.T) {
	jobs := ClassifyGroups([]Candidate{
		cand("img01 diff2.png", overlayFeats),
		cand("img01.png", backdropFeats),
		cand("img01 diff1.png", overlayFeats),
	}, DefaultThresholds())

	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	for i, job := range jobs {
		if job.Status != StatusMatched {
			t.Fatalf("job %d: expected matched, got %s (%s)", i, job.Status, job.Reason)
		}
		if job.BasePath != "/in/img01.png" {
			t.Fatalf("job %d: unexpected base %q", i, job.BasePath)
		}
		if job.Source != ModeAuto {
			t.Fatalf("job %d: unexpected source %q", i, job.Source)
		}
	}
	// Stable order by diff index.
	if jobs[0].DiffIndex != 1 || jobs[1].DiffIndex != 2 {
		t.Fatalf("jobs out of order: indexes %d, %d", jobs[0].DiffIndex, jobs[1].DiffIndex)
	}

	wantScore := 0.55*0.8 + 0.45*0.9
	if math.Abs(jobs[0].Score-wantScore) > 1e-9 {
		t.Fatalf("expected score %v, got %v", wantScore, jobs[0].Score)
	}
}

func TestClassifyGroupsFoldsFullWidthNames(t *testing.T) {
	jobs := ClassifyGroups([]Candidate{
		cand("img０１.png", backdropFeats),
		cand("img01 差分１.png", overlayFeats),
	}, DefaultThresholds())

	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Status != StatusMatched {
		t.Fatalf("expected matched, got %s (%s)", jobs[0].Status, jobs[0].Reason)
	}
	if jobs[0].GroupKey != "img01" {
		t.Fatalf("expected folded group key img01, got %q", jobs[0].GroupKey)
	}
}

func TestClassifyGroupsMultipleBackdropsAmbiguous(t *testing.T) {
	jobs := ClassifyGroups([]Candidate{
		cand("scene.png", backdropFeats),
		cand("scene/bg.png", backdropFeats),
		cand("scene diff1.png", overlayFeats),
	}, DefaultThresholds())

	if len(jobs) != 2 {
		t.Fatalf("expected one job per candidate base, got %d", len(jobs))
	}
	for i, job := range jobs {
		if job.Status != StatusAmbiguous {
			t.Fatalf("job %d: expected ambiguous, got %s", i, job.Status)
		}
		if !strings.Contains(job.Reason, "2 background candidates") {
			t.Fatalf("job %d: unexpected reason %q", i, job.Reason)
		}
	}
}

func TestClassifyGroupsNameOnlyBaseAmbiguous(t *testing.T) {
	// The base matches by filename but its pixels do not look like a
	// backdrop; the pair must be surfaced, not guessed.
	jobs := ClassifyGroups([]Candidate{
		cand("img01.png", overlayFeats),
		cand("img01 diff1.png", overlayFeats),
	}, DefaultThresholds())

	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Status != StatusAmbiguous {
		t.Fatalf("expected ambiguous, got %s", jobs[0].Status)
	}
	if jobs[0].BasePath != "" {
		t.Fatalf("ambiguous job must not carry a chosen base, got %q", jobs[0].BasePath)
	}
}

func TestClassifyGroupsNumericNeighborStaysUnmatched(t *testing.T) {
	// img10 is a different group from img1, not a prefix extension of it.
	jobs := ClassifyGroups([]Candidate{
		cand("img10.png", backdropFeats),
		cand("img1 diff1.png", overlayFeats),
	}, DefaultThresholds())

	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Status != StatusUnmatched {
		t.Fatalf("expected unmatched, got %s (base %q)", jobs[0].Status, jobs[0].BasePath)
	}
}

func TestClassifyGroupsNoBaseUnmatched(t *testing.T) {
	jobs := ClassifyGroups([]Candidate{
		cand("img01 diff1.png", overlayFeats),
		cand("other.png", backdropFeats),
	}, DefaultThresholds())

	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Status != StatusUnmatched {
		t.Fatalf("expected unmatched, got %s", jobs[0].Status)
	}
	if jobs[0].OutputRelPath != "img01 diff1.png" {
		t.Fatalf("unexpected output path %q", jobs[0].OutputRelPath)
	}
}

func TestClassifyGroupsBackdropLikeDiffFlagged(t *testing.T) {
	jobs := ClassifyGroups([]Candidate{
		cand("img01.png", backdropFeats),
		cand("img01 diff1.png", backdropFeats),
	}, DefaultThresholds())

	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}
	if jobs[0].Status != StatusAmbiguous {
		t.Fatalf("expected ambiguous, got %s", jobs[0].Status)
	}
	if !strings.Contains(jobs[0].Reason, "backdrop-like") {
		t.Fatalf("unexpected reason %q", jobs[0].Reason)
	}
}

func TestThresholdsIsBackground(t *testing.T) {
	th := DefaultThresholds()
	if !th.IsBackground(backdropFeats) {
		t.Fatalf("backdrop features should classify as background")
	}
	if th.IsBackground(overlayFeats) {
		t.Fatalf("overlay features should not classify as background")
	}
	// Both ratios must clear their thresholds; one alone is not enough.
	if th.IsBackground(raster.ImageFeatures{EffectivePixelRatio: 0.9, LargestFillComponentRatio: 0.1}) {
		t.Fatalf("high effective ratio alone should not classify as background")
	}
	if th.IsBackground(raster.ImageFeatures{EffectivePixelRatio: 0.2, LargestFillComponentRatio: 0.8}) {
		t.Fatalf("high component ratio alone should not classify as background")
	}
}
