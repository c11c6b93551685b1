// Package scan walks an input tree, extracts pixel features and turns the
// images into base/diff pair jobs.
package scan

import (
	"log/slog"
	"path/filepath"
	"sort"

	"cgmatch/internal/imageio"
	"cgmatch/internal/match"
	"cgmatch/internal/raster"
)

// Result captures the scanned candidates and the jobs derived from them.
type Result struct {
	Candidates []match.Candidate
	Jobs       []match.PairJob
	// Unreadable lists files that could not be decoded, keyed by path.
	Unreadable map[string]error
}

// Options controls a scan.
type Options struct {
	Recursive  bool
	Thresholds match.Thresholds
	// Cache may be shared with the pipeline so bases are decoded once.
	Cache *imageio.Cache
	Log   *slog.Logger
}

// Run scans root and classifies the images it finds into pair jobs.
func Run(root string, opts Options) (Result, error) {
	if opts.Cache == nil {
		opts.Cache = imageio.NewCache()
	}
	files, err := imageio.ListImages(root, opts.Recursive)
	if err != nil {
		return Result{}, err
	}

	res := Result{Unreadable: make(map[string]error)}
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		buf, err := opts.Cache.Load(path)
		if err != nil {
			res.Unreadable[path] = err
			if opts.Log != nil {
				opts.Log.Warn("skipping unreadable image", "path", path, "error", err)
			}
			continue
		}
		feats, err := raster.Extract(buf)
		if err != nil {
			res.Unreadable[path] = err
			continue
		}
		res.Candidates = append(res.Candidates, match.Candidate{
			Path:     path,
			RelPath:  rel,
			Features: feats,
			Key:      match.ParseFilename(rel),
		})
	}

	sort.Slice(res.Candidates, func(i, j int) bool {
		return res.Candidates[i].RelPath < res.Candidates[j].RelPath
	})
	res.Jobs = match.ClassifyGroups(res.Candidates, opts.Thresholds)
	return res, nil
}

// RunRule scans root and pairs the images against the given glob patterns
// instead of the automatic classifier.
func RunRule(root string, basePattern, diffPattern match.Pattern, opts Options) (Result, error) {
	files, err := imageio.ListImages(root, opts.Recursive)
	if err != nil {
		return Result{}, err
	}
	paths := make(map[string]string, len(files))
	for _, path := range files {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		paths[path] = rel
	}
	jobs, err := match.MatchRule(paths, basePattern, diffPattern)
	if err != nil {
		return Result{}, err
	}
	return Result{Jobs: jobs}, nil
}
