package fileutils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"time"
)

var nameDateRe = regexp.MustCompile(`(\d{4})[-_.]?(\d{2})[-_.]?(\d{2})`)

// Artifact is an input file matched in a directory.
type Artifact struct {
	Path    string
	ModTime time.Time
	// NameDate is the date embedded in the file name, if any.
	NameDate time.Time
}

func (a Artifact) sortTime() time.Time {
	if !a.NameDate.IsZero() {
		return a.NameDate
	}
	return a.ModTime
}

// MatchingArtifacts lists regular files in dir whose name matches the glob pattern, oldest
// first. Files with a YYYY-MM-DD date in their name are ordered by it; others by mtime.
func MatchingArtifacts(dir, pattern string) ([]Artifact, error) {
	if dir == "" {
		return nil, errors.New("MatchingArtifacts: dir is empty")
	}
	if pattern == "" {
		pattern = "*"
	}
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("MatchingArtifacts: bad pattern %q: %w", pattern, err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("MatchingArtifacts: read dir: %w", err)
	}
	var out []Artifact
	for _, e := range entries {
		if e.IsDir() || !e.Type().IsRegular() {
			continue
		}
		if ok, _ := filepath.Match(pattern, e.Name()); !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("MatchingArtifacts: stat %s: %w", e.Name(), err)
		}
		a := Artifact{Path: filepath.Join(dir, e.Name()), ModTime: info.ModTime()}
		if m := nameDateRe.FindStringSubmatch(e.Name()); m != nil {
			if t, err := time.Parse("20060102", m[1]+m[2]+m[3]); err == nil {
				a.NameDate = t
			}
		}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, tj := out[i].sortTime(), out[j].sortTime()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// LatestArtifact returns the newest matching file, or fs.ErrNotExist when none match.
func LatestArtifact(dir, pattern string) (Artifact, error) {
	all, err := MatchingArtifacts(dir, pattern)
	if err != nil {
		return Artifact{}, err
	}
	if len(all) == 0 {
		return Artifact{}, fmt.Errorf("LatestArtifact: no %q in %s: %w", pattern, dir, fs.ErrNotExist)
	}
	return all[len(all)-1], nil
}

// ErrLocked is returned when another run holds the lock file.
var ErrLocked = errors.New("lock held by another run")

// AcquireLock creates path exclusively and returns a release func that removes it.
func AcquireLock(path string) (func() error, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, fmt.Errorf("AcquireLock %s: %w", path, ErrLocked)
		}
		return nil, err
	}
	_, _ = fmt.Fprintf(f, "%d %s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, err
	}
	return func() error { return os.Remove(path) }, nil
}
