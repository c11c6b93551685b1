package match

import (
	"path"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/text/width"
)

// FilenameKey is the filename-derived metadata of one image. It is parsed
// from the path relative to the scan root so directory structure takes part
// in grouping.
type FilenameKey struct {
	// GroupKey is the normalized stem shared by related files: full-width
	// digits folded to ASCII, full-width solidus folded to "/", and for diff
	// files the part before the diff token.
	GroupKey string
	// DiffIndex is the N of a trailing diffN / 差分N token.
	DiffIndex int
	// HasIndex reports whether DiffIndex was present.
	HasIndex bool
	// LooksLikeDiff reports whether a diff token was found at all.
	LooksLikeDiff bool
}

// Trailing "diff N" or "差分 N" token, optionally separated from the prefix.
var diffTokenRe = regexp.MustCompile(`(?i)^(.*?)[ _\-]*(?:diff|差分)\s*([0-9]+)\s*$`)

// ParseFilename parses a slash- or backslash-separated relative path into a
// FilenameKey. It is a pure string function; the caller decides what the path
// is relative to.
func ParseFilename(rel string) FilenameKey {
	s := strings.ReplaceAll(rel, `\`, "/")
	s = width.Fold.String(s) // full-width digits and ／ become ASCII
	s = strings.TrimSuffix(s, path.Ext(s))
	s = strings.TrimSpace(s)

	if m := diffTokenRe.FindStringSubmatch(s); m != nil {
		idx, err := strconv.Atoi(m[2])
		if err == nil {
			prefix := strings.TrimRight(m[1], " /")
			return FilenameKey{
				GroupKey:      prefix,
				DiffIndex:     idx,
				HasIndex:      true,
				LooksLikeDiff: true,
			}
		}
	}

	lower := strings.ToLower(s)
	return FilenameKey{
		GroupKey:      s,
		LooksLikeDiff: strings.Contains(lower, "diff") || strings.Contains(lower, "差分"),
	}
}

// groupMatches reports whether a base image with groupKey baseKey belongs to
// the diff group diffKey: the keys are equal, or the base key extends the
// diff key into a subdirectory (e.g. base "scene/bg" under diff group
// "scene"). The check is segment-aware so group "img1" never claims a base
// from group "img10". A root-level diff with an empty group key matches only
// bases whose key is also empty.
func groupMatches(diffKey, baseKey string) bool {
	if diffKey == baseKey {
		return true
	}
	if diffKey == "" {
		return false
	}
	return strings.HasPrefix(baseKey, diffKey+"/")
}
