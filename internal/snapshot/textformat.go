package snapshot

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/ivoronin/dupenukem/internal/errs"
	"github.com/ivoronin/dupenukem/internal/pathutil"
)

// rfc2822Layout is used for both rendering and parsing the "Generated at"
// metadata line. It matches Go's time.RFC1123Z layout, which (abbreviated
// weekday and month names, numeric zone) is RFC 2822's date-time format.
const rfc2822Layout = time.RFC1123Z

const (
	metaRootDirKey  = "Root Directory"
	metaGeneratedAt = "Generated at"
)

var helpBlock = []string{
	"# Each group below lists files with identical content, keyed by a",
	"# content checksum. Edit the operation at the start of each line:",
	"#   keep <path>              - leave the file as is",
	"#   symlink <path>           - replace with a symlink to the group's keeper",
	"#   symlink <path> -> <src>  - replace with a symlink to an explicit source",
	"#   delete <path>            - remove the file",
	"# Every group must retain at least one `keep` entry (unless you pass",
	"# --allow-full-deletion and mark every entry in the group `delete`).",
}

// Render renders a snapshot to its stable line-oriented text form. An
// empty snapshot (no duplicate groups) renders as an empty sequence.
func Render(s *Snapshot) []string {
	if len(s.Duplicates) == 0 {
		return nil
	}

	lines := []string{
		fmt.Sprintf("#! %s: %s", metaRootDirKey, s.RootDir),
		fmt.Sprintf("#! %s: %s", metaGeneratedAt, s.GeneratedAt.Format(rfc2822Layout)),
		"",
	}

	for _, group := range orderedGroups(s) {
		lines = append(lines, fmt.Sprintf("[%s]", group.checksum.String()))
		for _, fp := range group.paths {
			lines = append(lines, renderPathInfo(s.RootDir, fp))
		}
		lines = append(lines, "")
	}

	lines = append(lines, helpBlock...)
	return lines
}

type renderGroup struct {
	checksum Checksum
	paths    []*FilePath
	size     int64
}

// orderedGroups returns the snapshot's groups sorted by descending size of
// the group's keeper (the first Keep entry in file order; if a group has
// no Keep entry, its first entry stands in for sizing purposes). Ties
// retain the order groups were produced by map iteration, which Go does
// not guarantee to be stable across runs — exactly as the underlying
// mapping's iteration order is unspecified in the spec this follows.
func orderedGroups(s *Snapshot) []renderGroup {
	groups := make([]renderGroup, 0, len(s.Duplicates))
	for cs, paths := range s.Duplicates {
		groups = append(groups, renderGroup{checksum: cs, paths: paths, size: keeperSize(paths)})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		return groups[i].size > groups[j].size
	})
	return groups
}

func keeperSize(paths []*FilePath) int64 {
	var rep *FilePath
	for _, fp := range paths {
		if fp.Op.Kind == OpKeep {
			rep = fp
			break
		}
	}
	if rep == nil && len(paths) > 0 {
		rep = paths[0]
	}
	if rep == nil {
		return 0
	}
	size, err := rep.Size()
	if err != nil {
		return 0
	}
	return size
}

func renderPathInfo(root string, fp *FilePath) string {
	rel, err := pathutil.NormalizePath(fp.AbsPath, true, root)
	if err != nil {
		rel = fp.AbsPath
	}

	switch fp.Op.Kind {
	case OpKeep:
		return "keep " + rel
	case OpDelete:
		return "delete " + rel
	case OpSymlink:
		if fp.Op.Source != nil {
			return "symlink " + rel + " -> " + *fp.Op.Source
		}
		return "symlink " + rel + " -> "
	default:
		return "keep " + rel
	}
}

// --- Parsing ---------------------------------------------------------------

var (
	metadataRe = regexp.MustCompile(`^#!\s*([^:]+):\s*(.+)$`)
	commentRe  = regexp.MustCompile(`^#\s(.+)$`)
	checksumRe = regexp.MustCompile(`^\[([^\]]+)\]$`)
	pathInfoRe = regexp.MustCompile(`^(keep|symlink|delete)\s(.+)$`)
)

// Parse parses snapshot text (as produced by Render, possibly edited by a
// user) back into a Snapshot.
func Parse(lines []string) (*Snapshot, error) {
	s := &Snapshot{Duplicates: map[Checksum][]*FilePath{}}

	var haveRoot, haveTimestamp bool
	var currentChecksum Checksum
	var inGroup bool

	for _, raw := range lines {
		// Only \r\n and leading indentation are stripped — trailing
		// spaces are part of a symlink PathInfo's " -> " marker and must
		// survive into the regexes below.
		line := strings.TrimLeft(strings.TrimRight(raw, "\r\n"), " \t")

		switch {
		case strings.TrimSpace(line) == "":
			continue

		case strings.HasPrefix(line, "#"):
			if strings.HasPrefix(line, "#!") {
				m := metadataRe.FindStringSubmatch(line)
				if m == nil {
					return nil, errs.Newf(errs.SnapshotParsing, "malformed metadata line: %q", line)
				}
				key, value := strings.TrimSpace(m[1]), m[2]
				switch key {
				case metaRootDirKey:
					if !haveRoot {
						s.RootDir = value
						haveRoot = true
					}
				case metaGeneratedAt:
					if !haveTimestamp {
						ts, err := time.Parse(rfc2822Layout, value)
						if err != nil {
							return nil, errs.Newf(errs.SnapshotParsing, "malformed timestamp %q: %v", value, err)
						}
						s.GeneratedAt = ts
						haveTimestamp = true
					}
				}
				continue
			}
			if commentRe.MatchString(line) {
				continue
			}
			return nil, errs.Newf(errs.SnapshotParsing, "malformed comment line: %q", line)

		case line[0] == '[':
			m := checksumRe.FindStringSubmatch(line)
			if m == nil {
				return nil, errs.Newf(errs.SnapshotParsing, "malformed checksum line: %q", line)
			}
			cs, err := ParseChecksum(m[1])
			if err != nil {
				return nil, err
			}
			currentChecksum = cs
			inGroup = true
			if _, ok := s.Duplicates[cs]; !ok {
				s.Duplicates[cs] = nil
			}

		default:
			if !haveRoot || !haveTimestamp {
				return nil, errs.New(errs.SnapshotParsing, "missing Root Directory or Generated at metadata")
			}
			if !inGroup {
				return nil, errs.Newf(errs.SnapshotParsing, "path entry before any checksum group: %q", line)
			}
			fp, err := parsePathInfo(line, s.RootDir)
			if err != nil {
				return nil, err
			}
			s.Duplicates[currentChecksum] = append(s.Duplicates[currentChecksum], fp)
		}
	}

	if !haveRoot {
		return nil, errs.New(errs.SnapshotParsing, "missing Root Directory metadata")
	}
	if !haveTimestamp {
		return nil, errs.New(errs.SnapshotParsing, "missing Generated at metadata")
	}

	return s, nil
}

func parsePathInfo(line, root string) (*FilePath, error) {
	m := pathInfoRe.FindStringSubmatch(line)
	if m == nil {
		return nil, errs.Newf(errs.SnapshotParsing, "malformed path entry: %q", line)
	}
	op, rest := m[1], m[2]

	switch op {
	case "keep":
		absPath, err := pathutil.NormalizePath(rest, false, root)
		if err != nil {
			return nil, errs.WrapPath(errs.SnapshotParsing, rest, err)
		}
		return &FilePath{AbsPath: absPath, Op: Keep()}, nil
	case "delete":
		absPath, err := pathutil.NormalizePath(rest, false, root)
		if err != nil {
			return nil, errs.WrapPath(errs.SnapshotParsing, rest, err)
		}
		return &FilePath{AbsPath: absPath, Op: Delete()}, nil
	case "symlink":
		target, source, err := splitSymlinkTarget(rest)
		if err != nil {
			return nil, err
		}
		absPath, err := pathutil.NormalizePath(target, false, root)
		if err != nil {
			return nil, errs.WrapPath(errs.SnapshotParsing, target, err)
		}
		return &FilePath{AbsPath: absPath, Op: Symlink(source)}, nil
	default:
		return nil, errs.Newf(errs.SnapshotParsing, "unknown operation %q", op)
	}
}

// splitSymlinkTarget splits a symlink PathInfo's remainder on the literal
// " -> " separator. Zero occurrences means the remainder is target-only
// (source = nil). One occurrence splits into target and source (an empty
// source string, from a trailing " -> " with nothing after it, is treated
// the same as nil — "no source specified"). More than one occurrence is a
// parse error.
func splitSymlinkTarget(rest string) (target string, source *string, err error) {
	const sep = " -> "
	count := strings.Count(rest, sep)

	switch count {
	case 0:
		return rest, nil, nil
	case 1:
		parts := strings.SplitN(rest, sep, 2)
		if parts[1] == "" {
			return parts[0], nil, nil
		}
		src := parts[1]
		return parts[0], &src, nil
	default:
		return "", nil, errs.Newf(errs.SnapshotParsing, "malformed symlink entry: %q", rest)
	}
}
