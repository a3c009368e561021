package builder

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// locateOne resolves a single candidate. Directories are tried in the order
// given and the first one containing the candidate wins; ties are not reported.
func locateOne(candidate string, dirs []string) (string, bool) {
	if filepath.IsAbs(candidate) {
		if exists(candidate) {
			return filepath.Clean(candidate), true
		}
		return "", false
	}
	for _, dir := range dirs {
		path := filepath.Join(dir, candidate)
		if exists(path) {
			if abs, err := filepath.Abs(path); err == nil {
				return abs, true
			}
			return path, true
		}
	}
	return "", false
}

// Locate resolves candidates against dirs, returning the resolved absolute paths
// (deduplicated, in candidate order) and the candidates no directory contained.
func Locate(candidates, dirs []string) (found, missing []string) {
	for _, candidate := range candidates {
		path, ok := locateOne(candidate, dirs)
		if !ok {
			missing = append(missing, candidate)
			continue
		}
		if !slices.Contains(found, path) {
			found = append(found, path)
		}
	}
	return found, missing
}

// LocateStrict is Locate for paths the user declared: any miss is a ConfigError.
func LocateStrict(op string, candidates, dirs []string) ([]string, error) {
	found, missing := Locate(candidates, dirs)
	if len(missing) > 0 {
		return nil, &ConfigError{
			Op:   op,
			Path: strings.Join(missing, ", "),
			Err:  fmt.Errorf("%w in %s", ErrNotFound, strings.Join(dirs, ", ")),
		}
	}
	return found, nil
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}

// expandGlobs replaces every glob pattern by the files it matches under the first
// directory that yields any match. Plain paths pass through untouched. A
// pattern matching nothing anywhere is passed through too, so that the strict
// lookup that follows reports it.
func expandGlobs(patterns, dirs []string) ([]string, error) {
	var out []string
	for _, pat := range patterns {
		if !isGlob(pat) {
			out = append(out, pat)
			continue
		}

		if filepath.IsAbs(pat) {
			matches, err := doublestar.FilepathGlob(pat, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("while globbing %s: %w", pat, err)
			}
			if len(matches) == 0 {
				out = append(out, pat)
			}
			out = append(out, matches...)
			continue
		}

		var matched bool
		for _, dir := range dirs {
			matches, err := doublestar.Glob(os.DirFS(dir), filepath.ToSlash(pat), doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("while globbing %s in %s: %w", pat, dir, err)
			}
			if len(matches) == 0 {
				continue
			}
			slices.Sort(matches)
			for _, match := range matches {
				out = append(out, filepath.Join(dir, filepath.FromSlash(match)))
			}
			matched = true
			break
		}
		if !matched {
			out = append(out, pat)
		}
	}
	return out, nil
}
