package match

import (
	"strings"
	"testing"
)

func mustPattern(t *testing.T, glob string) Pattern {
	t.Helper()
	p, err := CompilePattern(glob)
	if err != nil {
		t.Fatalf("CompilePattern(%q): %v", glob, err)
	}
	return p
}

func TestCompilePatternRejectsDoubleName(t *testing.T) {
	if _, err := CompilePattern("{name}/{name}.png"); err == nil {
		t.Fatalf("expected error for two {name} placeholders")
	}
}

func TestPatternMatch(t *testing.T) {
	p := mustPattern(t, "bg_{name}.png")
	name, ok := p.Match("bg_scene.png")
	if !ok || name != "scene" {
		t.Fatalf("expected capture scene, got %q ok=%v", name, ok)
	}
	if _, ok := p.Match("fg_scene.png"); ok {
		t.Fatalf("pattern should not match fg_scene.png")
	}

	// Without {name} the captured name defaults to the file stem.
	stem := mustPattern(t, "base/*.png")
	name, ok = stem.Match("base/cut01.png")
	if !ok || name != "cut01" {
		t.Fatalf("expected stem cut01, got %q ok=%v", name, ok)
	}

	// Wildcards never cross a path separator.
	if _, ok := stem.Match("base/a/b.png"); ok {
		t.Fatalf("* must not match across directories")
	}

	q := mustPattern(t, "img?.png")
	if _, ok := q.Match("img1.png"); !ok {
		t.Fatalf("? should match a single character")
	}
	if _, ok := q.Match("img12.png"); ok {
		t.Fatalf("? must match exactly one character")
	}
}

func TestMatchRulePairsByName(t *testing.T) {
	paths := map[string]string{
		"/in/bg_scene.png":     "bg_scene.png",
		"/in/scene_diff1.png":  "scene_diff1.png",
		"/in/scene_diff2.png":  "scene_diff2.png",
		"/in/orphan_diff1.png": "orphan_diff1.png",
	}
	jobs, err := MatchRule(paths, mustPattern(t, "bg_{name}.png"), mustPattern(t, "{name}_diff*.png"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}

	byDiff := make(map[string]PairJob)
	for _, j := range jobs {
		byDiff[j.DiffPath] = j
	}

	for _, diff := range []string{"/in/scene_diff1.png", "/in/scene_diff2.png"} {
		j := byDiff[diff]
		if j.Status != StatusMatched {
			t.Fatalf("%s: expected matched, got %s (%s)", diff, j.Status, j.Reason)
		}
		if j.BasePath != "/in/bg_scene.png" {
			t.Fatalf("%s: unexpected base %q", diff, j.BasePath)
		}
		if j.GroupKey != "scene" {
			t.Fatalf("%s: unexpected group %q", diff, j.GroupKey)
		}
		if j.Source != ModeRule {
			t.Fatalf("%s: unexpected source %q", diff, j.Source)
		}
	}

	orphan := byDiff["/in/orphan_diff1.png"]
	if orphan.Status != StatusUnmatched {
		t.Fatalf("orphan: expected unmatched, got %s", orphan.Status)
	}
}

func TestMatchRuleAmbiguousBases(t *testing.T) {
	// Both bases substitute into a pattern the diff matches.
	paths := map[string]string{
		"/in/bg_a.png":      "bg_a.png",
		"/in/bg_ab.png":     "bg_ab.png",
		"/in/ab_diff1.png":  "ab_diff1.png",
		"/in/a_x_diff1.png": "a_x_diff1.png",
	}
	jobs, err := MatchRule(paths, mustPattern(t, "bg_{name}.png"), mustPattern(t, "{name}*_diff*.png"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}

	var ambiguous *PairJob
	for i := range jobs {
		if jobs[i].DiffPath == "/in/ab_diff1.png" {
			ambiguous = &jobs[i]
		}
	}
	if ambiguous == nil {
		t.Fatalf("expected a job for ab_diff1.png")
	}
	if ambiguous.Status != StatusAmbiguous {
		t.Fatalf("expected ambiguous, got %s (%s)", ambiguous.Status, ambiguous.Reason)
	}
	if !strings.Contains(ambiguous.Reason, "bg_a.png") || !strings.Contains(ambiguous.Reason, "bg_ab.png") {
		t.Fatalf("reason should name both bases, got %q", ambiguous.Reason)
	}
}

func TestMatchRuleIgnoresDiffLookingBases(t *testing.T) {
	// A file whose name carries a diff token never becomes a base, even when
	// it matches the base pattern.
	paths := map[string]string{
		"/in/scene diff1.png": "scene diff1.png",
		"/in/scene diff2.png": "scene diff2.png",
	}
	jobs, err := MatchRule(paths, mustPattern(t, "*.png"), mustPattern(t, "* diff*.png"))
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	for _, j := range jobs {
		if j.Status != StatusUnmatched {
			t.Fatalf("%s: expected unmatched, got %s", j.DiffPath, j.Status)
		}
	}
}
