package pulse

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/theimaginaryfoundation/guest-pulse/pulse/fileutils"
)

// AspectTerm is one aspect label seen in annotated reviews.
type AspectTerm struct {
	Term      string `json:"term"`
	Hint      string `json:"hint,omitempty"`
	Count     int    `json:"count"`
	FirstSeen string `json:"first_seen,omitempty"`
	LastSeen  string `json:"last_seen,omitempty"`
}

// AspectVocabulary keeps model-produced aspect labels stable across runs: known terms are fed
// back into the prompt so the model reuses them.
type AspectVocabulary struct {
	Version int          `json:"version"`
	Entries []AspectTerm `json:"entries"`
}

// LoadVocabulary reads a vocabulary JSON file. A missing file yields an empty vocabulary.
func LoadVocabulary(path string) (AspectVocabulary, error) {
	if path == "" {
		return AspectVocabulary{}, errors.New("LoadVocabulary: path is empty")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return AspectVocabulary{Version: 1, Entries: []AspectTerm{}}, nil
		}
		return AspectVocabulary{}, fmt.Errorf("LoadVocabulary: read file: %w", err)
	}
	var v AspectVocabulary
	if err := json.Unmarshal(b, &v); err != nil {
		return AspectVocabulary{}, fmt.Errorf("LoadVocabulary: unmarshal: %w", err)
	}
	if v.Version == 0 {
		v.Version = 1
	}
	if v.Entries == nil {
		v.Entries = []AspectTerm{}
	}
	return v, nil
}

// SaveVocabulary writes the vocabulary atomically.
func SaveVocabulary(path string, v AspectVocabulary) error {
	if path == "" {
		return errors.New("SaveVocabulary: path is empty")
	}
	if err := fileutils.WriteJSONFileAtomic(path, v, true); err != nil {
		return fmt.Errorf("SaveVocabulary: %w", err)
	}
	return nil
}

// MergeVocabulary counts one sighting per distinct term per call and returns the touched terms.
func MergeVocabulary(v *AspectVocabulary, terms []string, weekKey string) []string {
	if v == nil {
		return nil
	}
	if v.Version == 0 {
		v.Version = 1
	}

	index := make(map[string]int, len(v.Entries))
	for i := range v.Entries {
		if key := labelKey(v.Entries[i].Term); key != "" {
			index[key] = i
		}
	}

	touched := DedupeLabels(terms)
	for _, key := range touched {
		if i, ok := index[key]; ok {
			e := &v.Entries[i]
			e.Count++
			if e.FirstSeen == "" {
				e.FirstSeen = weekKey
			}
			if weekKey > e.LastSeen {
				e.LastSeen = weekKey
			}
			continue
		}
		v.Entries = append(v.Entries, AspectTerm{Term: key, Count: 1, FirstSeen: weekKey, LastSeen: weekKey})
		index[key] = len(v.Entries) - 1
	}

	sort.SliceStable(v.Entries, func(i, j int) bool {
		if v.Entries[i].Count != v.Entries[j].Count {
			return v.Entries[i].Count > v.Entries[j].Count
		}
		return v.Entries[i].Term < v.Entries[j].Term
	})

	sort.Strings(touched)
	return touched
}

// CullVocabulary drops terms seen fewer than minCount times.
func CullVocabulary(v *AspectVocabulary, minCount int) {
	if v == nil || minCount <= 1 {
		return
	}
	out := v.Entries[:0]
	for _, e := range v.Entries {
		if e.Count >= minCount {
			out = append(out, e)
		}
	}
	v.Entries = out
}

// Terms returns up to limit of the most frequent terms; limit <= 0 returns all.
func (v AspectVocabulary) Terms(limit int) []string {
	n := len(v.Entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, 0, n)
	for _, e := range v.Entries[:n] {
		out = append(out, e.Term)
	}
	return out
}

// PromptBlock renders the terms as a bullet list for model instructions.
func (v AspectVocabulary) PromptBlock(limit int) string {
	terms := v.Terms(limit)
	if len(terms) == 0 {
		return ""
	}
	var b strings.Builder
	for _, t := range terms {
		b.WriteString("- ")
		b.WriteString(t)
		b.WriteByte('\n')
	}
	return b.String()
}
