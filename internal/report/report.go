// Package report aggregates per-pair processing outcomes into a run summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Status describes the outcome of processing a single pair.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Failure and skip reasons recorded on items. Matching never fails the run;
// ambiguous and unmatched groups surface as skipped items.
const (
	ReasonReadFail     = "read_fail"
	ReasonSizeInvalid  = "size_invalid"
	ReasonBgRemoveFail = "bg_remove_fail"
	ReasonAlignFail    = "align_fail"
	ReasonWriteFail    = "write_fail"
	ReasonUserSkip     = "user_skip"
	ReasonNoMatch      = "no_match"
	ReasonAmbiguous    = "ambiguous_match"
)

// Item is the record for one base/diff pair.
type Item struct {
	BasePath   string        `json:"base_path"`
	DiffPath   string        `json:"diff_path"`
	OutputPath string        `json:"output_path,omitempty"`
	Status     Status        `json:"status"`
	Reason     string        `json:"reason,omitempty"`
	Detail     string        `json:"detail,omitempty"`
	DX         int           `json:"dx"`
	DY         int           `json:"dy"`
	FitPercent float64       `json:"fit_percent"`
	Elapsed    time.Duration `json:"elapsed_ns"`
}

// Report collects items for one run.
type Report struct {
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Items      []Item    `json:"items"`
}

func New() *Report {
	return &Report{StartedAt: time.Now()}
}

// Add appends item. Safe to call only from the collector goroutine.
func (r *Report) Add(item Item) {
	r.Items = append(r.Items, item)
}

// Finish stamps the end time and sorts items for stable output.
func (r *Report) Finish() {
	r.FinishedAt = time.Now()
	sort.Slice(r.Items, func(i, j int) bool {
		if r.Items[i].DiffPath != r.Items[j].DiffPath {
			return r.Items[i].DiffPath < r.Items[j].DiffPath
		}
		return r.Items[i].BasePath < r.Items[j].BasePath
	})
}

// Counts tallies items by status.
func (r *Report) Counts() (success, failed, skipped int) {
	for _, it := range r.Items {
		switch it.Status {
		case StatusSuccess:
			success++
		case StatusFailed:
			failed++
		case StatusSkipped:
			skipped++
		}
	}
	return
}

// FitStats summarizes alignment fit over successful items.
type FitStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Fit computes fit-percentage statistics over successful items.
func (r *Report) Fit() FitStats {
	var fits []float64
	for _, it := range r.Items {
		if it.Status == StatusSuccess {
			fits = append(fits, it.FitPercent)
		}
	}
	if len(fits) == 0 {
		return FitStats{}
	}
	s := FitStats{Count: len(fits), Min: fits[0], Max: fits[0]}
	for _, f := range fits {
		if f < s.Min {
			s.Min = f
		}
		if f > s.Max {
			s.Max = f
		}
	}
	s.Mean, s.StdDev = stat.MeanStdDev(fits, nil)
	if len(fits) == 1 {
		s.StdDev = 0
	}
	return s
}

// WriteJSON emits the full report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		*Report
		Fit FitStats `json:"fit"`
	}{r, r.Fit()})
}

// Summary renders a human-readable run summary.
func (r *Report) Summary() string {
	success, failed, skipped := r.Counts()
	var b strings.Builder
	fmt.Fprintf(&b, "processed %d pairs in %s: %d succeeded, %d failed, %d skipped\n",
		len(r.Items), r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond), success, failed, skipped)
	if fs := r.Fit(); fs.Count > 0 {
		fmt.Fprintf(&b, "alignment fit: mean %.2f%% stddev %.2f min %.2f max %.2f\n",
			fs.Mean, fs.StdDev, fs.Min, fs.Max)
	}
	for _, it := range r.Items {
		if it.Status == StatusSuccess {
			continue
		}
		fmt.Fprintf(&b, "  %s %s: %s", it.Status, it.DiffPath, it.Reason)
		if it.Detail != "" {
			fmt.Fprintf(&b, " (%s)", it.Detail)
		}
		b.WriteByte('\n')
	}
	return b.String()
}
