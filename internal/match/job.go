// Package match pairs base (backdrop) images with their diff overlays, either
// automatically from filename structure plus pixel features, or from
// user-supplied glob rules.
package match

import "cgmatch/internal/raster"

// Mode selects the pairing strategy.
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeRule Mode = "rule"
)

// Status is the outcome of a pairing decision. Ambiguity is surfaced as a
// status, never resolved by an arbitrary pick.
type Status string

const (
	StatusMatched   Status = "matched"
	StatusAmbiguous Status = "ambiguous"
	StatusUnmatched Status = "unmatched"
)

// PairJob is one candidate or confirmed base/diff pairing. Jobs live for a
// single batch run.
type PairJob struct {
	BasePath      string
	DiffPath      string
	OutputRelPath string
	GroupKey      string
	DiffIndex     int
	Status        Status
	// Reason explains an ambiguous or unmatched status.
	Reason string
	// Score is the background-likeness score of the chosen base, when one
	// was chosen by feature evidence.
	Score  float64
	Source Mode
}

// Candidate is one scanned image presented to the auto classifier: its path,
// precomputed pixel features, and parsed filename key.
type Candidate struct {
	// Path is the path handed back in PairJobs (usually absolute).
	Path string
	// RelPath is the path relative to the scan root, used for grouping and
	// output placement.
	RelPath  string
	Features raster.ImageFeatures
	Key      FilenameKey
}
