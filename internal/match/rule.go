package match

import (
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
)

// Pattern is a compiled glob-style filename rule. Globs match slash-separated
// relative paths segment by segment (`*` and `?` never cross a separator) and
// may contain a single `{name}` placeholder that captures or substitutes the
// shared pair name.
type Pattern struct {
	raw     string
	re      *regexp.Regexp
	hasName bool
}

// CompilePattern validates and compiles a rule pattern. Invalid patterns are
// configuration errors and fatal before any job runs.
func CompilePattern(glob string) (Pattern, error) {
	if strings.Count(glob, "{name}") > 1 {
		return Pattern{}, fmt.Errorf("pattern %q: at most one {name} placeholder", glob)
	}
	var sb strings.Builder
	sb.WriteString("^")
	hasName := false
	for i := 0; i < len(glob); i++ {
		switch {
		case strings.HasPrefix(glob[i:], "{name}"):
			sb.WriteString(`([^/]+)`)
			hasName = true
			i += len("{name}") - 1
		case glob[i] == '*':
			sb.WriteString(`[^/]*`)
		case glob[i] == '?':
			sb.WriteString(`[^/]`)
		default:
			sb.WriteString(regexp.QuoteMeta(string(glob[i])))
		}
	}
	sb.WriteString("$")
	re, err := regexp.Compile(sb.String())
	if err != nil {
		return Pattern{}, fmt.Errorf("pattern %q: %w", glob, err)
	}
	return Pattern{raw: glob, re: re, hasName: hasName}, nil
}

// Match reports whether rel matches, and the captured name. Without a {name}
// placeholder the name defaults to the file stem.
func (p Pattern) Match(rel string) (string, bool) {
	m := p.re.FindStringSubmatch(rel)
	if m == nil {
		return "", false
	}
	if p.hasName {
		return m[1], true
	}
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base)), true
}

// substitute returns the pattern with {name} replaced by a literal name.
func (p Pattern) substitute(name string) (Pattern, error) {
	if !p.hasName {
		return p, nil
	}
	return CompilePattern(strings.Replace(p.raw, "{name}", name, 1))
}

// ruleFile is one scanned file presented to the rule matcher.
type ruleFile struct {
	path string // path reported in jobs
	rel  string // slash-separated path relative to the scan root
}

// MatchRule pairs files purely by the two glob patterns; no pixel features
// are computed. Every diff pairing to exactly one base is matched; a diff
// matching several bases is ambiguous; a diff matching none is unmatched.
func MatchRule(paths map[string]string, basePattern, diffPattern Pattern) ([]PairJob, error) {
	files := make([]ruleFile, 0, len(paths))
	for p, rel := range paths {
		files = append(files, ruleFile{path: p, rel: filepathToSlash(rel)})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })

	type baseEntry struct {
		file ruleFile
		name string
	}
	var bases []baseEntry
	for _, f := range files {
		if ParseFilename(f.rel).LooksLikeDiff {
			continue
		}
		if name, ok := basePattern.Match(f.rel); ok {
			bases = append(bases, baseEntry{file: f, name: name})
		}
	}

	var jobs []PairJob
	for _, f := range files {
		if _, ok := diffPattern.Match(f.rel); !ok {
			continue
		}
		key := ParseFilename(f.rel)

		var owners []baseEntry
		for _, b := range bases {
			if b.file.path == f.path {
				continue
			}
			sub, err := diffPattern.substitute(b.name)
			if err != nil {
				return nil, err
			}
			if _, ok := sub.Match(f.rel); ok {
				owners = append(owners, b)
			}
		}

		switch len(owners) {
		case 1:
			jobs = append(jobs, PairJob{
				BasePath:      owners[0].file.path,
				DiffPath:      f.path,
				OutputRelPath: f.rel,
				GroupKey:      owners[0].name,
				DiffIndex:     key.DiffIndex,
				Status:        StatusMatched,
				Source:        ModeRule,
			})
		case 0:
			jobs = append(jobs, PairJob{
				DiffPath:      f.path,
				OutputRelPath: f.rel,
				GroupKey:      key.GroupKey,
				DiffIndex:     key.DiffIndex,
				Status:        StatusUnmatched,
				Reason:        "no base matched pattern " + basePattern.raw,
				Source:        ModeRule,
			})
		default:
			names := make([]string, len(owners))
			for i, o := range owners {
				names[i] = o.file.rel
			}
			jobs = append(jobs, PairJob{
				DiffPath:      f.path,
				OutputRelPath: f.rel,
				GroupKey:      key.GroupKey,
				DiffIndex:     key.DiffIndex,
				Status:        StatusAmbiguous,
				Reason:        "multiple bases match: " + strings.Join(names, ", "),
				Source:        ModeRule,
			})
		}
	}

	sortJobs(jobs)
	return jobs, nil
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, `\`, "/")
}
