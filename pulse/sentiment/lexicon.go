package sentiment

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/theimaginaryfoundation/guest-pulse/pulse"
)

// Sentence-level sentiment groups, strongest first within each polarity.
const (
	PositiveStrong = "positive_strong"
	PositiveSoft   = "positive_soft"
	NegativeSoft   = "negative_soft"
	NegativeStrong = "negative_strong"
	NeutralGroup   = "neutral"
	Mixed          = "mixed"
)

var groupWeight = map[string]float64{
	PositiveStrong: 1,
	PositiveSoft:   0.5,
	NeutralGroup:   0,
	Mixed:          0,
	NegativeSoft:   -0.5,
	NegativeStrong: -1,
}

//go:embed default_lexicon.yaml
var defaultLexicon []byte

// LexiconFile is the YAML form of a lexicon.
type LexiconFile struct {
	Version      string                         `yaml:"version"`
	FallbackLang string                         `yaml:"fallback_lang"`
	Sentiment    map[string]map[string][]string `yaml:"sentiment"`
	Aspects      []AspectRule                   `yaml:"aspects"`
}

// AspectRule describes one aspect code and the phrases that mention it.
type AspectRule struct {
	Code     string              `yaml:"code"`
	Display  string              `yaml:"display"`
	Topic    string              `yaml:"topic"`
	Polarity string              `yaml:"polarity"`
	Terms    map[string][]string `yaml:"terms"`
}

// Lexicon is a compiled LexiconFile.
type Lexicon struct {
	Version      string
	FallbackLang string

	groups  map[string]map[string]*regexp.Regexp
	aspects []compiledAspect
}

type compiledAspect struct {
	AspectRule
	byLang map[string]*regexp.Regexp
}

// DefaultLexicon returns the built-in English and Russian lexicon.
func DefaultLexicon() (*Lexicon, error) {
	return ParseLexicon(defaultLexicon)
}

// LoadLexicon reads a lexicon YAML file; an empty path yields the built-in lexicon.
func LoadLexicon(path string) (*Lexicon, error) {
	if path == "" {
		return DefaultLexicon()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("LoadLexicon: read file: %w", err)
	}
	lx, err := ParseLexicon(b)
	if err != nil {
		return nil, fmt.Errorf("LoadLexicon: %s: %w", path, err)
	}
	return lx, nil
}

// ParseLexicon decodes and compiles a lexicon.
func ParseLexicon(b []byte) (*Lexicon, error) {
	var f LexiconFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unmarshal lexicon: %w", err)
	}
	lx := &Lexicon{
		Version:      f.Version,
		FallbackLang: f.FallbackLang,
		groups:       map[string]map[string]*regexp.Regexp{},
	}
	if lx.FallbackLang == "" {
		lx.FallbackLang = "en"
	}
	for group, byLang := range f.Sentiment {
		if _, ok := groupWeight[group]; !ok || group == Mixed {
			return nil, fmt.Errorf("unknown sentiment group %q", group)
		}
		lx.groups[group] = map[string]*regexp.Regexp{}
		for lang, terms := range byLang {
			re, err := compileTerms(terms)
			if err != nil {
				return nil, fmt.Errorf("group %s/%s: %w", group, lang, err)
			}
			if re != nil {
				lx.groups[group][lang] = re
			}
		}
	}
	seen := map[string]bool{}
	for _, a := range f.Aspects {
		if a.Code == "" {
			return nil, fmt.Errorf("aspect without code")
		}
		if seen[a.Code] {
			return nil, fmt.Errorf("duplicate aspect %q", a.Code)
		}
		seen[a.Code] = true
		ca := compiledAspect{AspectRule: a, byLang: map[string]*regexp.Regexp{}}
		for lang, terms := range a.Terms {
			re, err := compileTerms(terms)
			if err != nil {
				return nil, fmt.Errorf("aspect %s/%s: %w", a.Code, lang, err)
			}
			if re != nil {
				ca.byLang[lang] = re
			}
		}
		lx.aspects = append(lx.aspects, ca)
	}
	return lx, nil
}

const (
	wordStart = `(?:^|[^\p{L}\p{N}])`
	wordEnd   = `(?:$|[^\p{L}\p{N}])`
)

// compileTerms joins terms into one case-insensitive alternation. Longer terms come first so
// "not good" wins over "good" at the same position.
func compileTerms(terms []string) (*regexp.Regexp, error) {
	var parts []string
	sorted := append([]string(nil), terms...)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })
	for _, t := range sorted {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || t == "*" {
			continue
		}
		stem := strings.HasSuffix(t, "*")
		t = strings.TrimSuffix(t, "*")
		q := strings.ReplaceAll(regexp.QuoteMeta(t), " ", `\s+`)
		switch {
		case hasHan(t):
			parts = append(parts, q)
		case stem:
			parts = append(parts, wordStart+q)
		default:
			parts = append(parts, wordStart+q+wordEnd)
		}
	}
	if len(parts) == 0 {
		return nil, nil
	}
	return regexp.Compile(`(?i)(?:` + strings.Join(parts, "|") + `)`)
}

func hasHan(s string) bool {
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			return true
		}
	}
	return false
}

func (lx *Lexicon) langFor(m map[string]*regexp.Regexp, lang string) *regexp.Regexp {
	if re, ok := m[lang]; ok {
		return re
	}
	return m[lx.FallbackLang]
}

// SentenceGroup classifies one sentence. Negative phrases are matched first and blanked out so
// that "not good" does not also count as "good". A sentence with both polarities is mixed; one
// with no signal returns "".
func (lx *Lexicon) SentenceGroup(sentence, lang string) string {
	s := strings.ToLower(sentence)
	neg := ""
	for _, g := range []string{NegativeStrong, NegativeSoft} {
		re := lx.langFor(lx.groups[g], lang)
		if re == nil || !re.MatchString(s) {
			continue
		}
		if neg == "" {
			neg = g
		}
		s = re.ReplaceAllStringFunc(s, func(m string) string { return strings.Repeat(" ", len(m)) })
	}
	pos := ""
	for _, g := range []string{PositiveStrong, PositiveSoft} {
		if re := lx.langFor(lx.groups[g], lang); re != nil && re.MatchString(s) {
			pos = g
			break
		}
	}
	switch {
	case neg != "" && pos != "":
		return Mixed
	case neg != "":
		return neg
	case pos != "":
		return pos
	}
	if re := lx.langFor(lx.groups[NeutralGroup], lang); re != nil && re.MatchString(s) {
		return NeutralGroup
	}
	return ""
}

// Aspects returns the rules whose phrases occur in sentence.
func (lx *Lexicon) Aspects(sentence, lang string) []AspectRule {
	var out []AspectRule
	for _, a := range lx.aspects {
		if re := lx.langFor(a.byLang, lang); re != nil && re.MatchString(sentence) {
			out = append(out, a.AspectRule)
		}
	}
	return out
}

// Aspect looks a rule up by code.
func (lx *Lexicon) Aspect(code string) (AspectRule, bool) {
	for _, a := range lx.aspects {
		if a.Code == code {
			return a.AspectRule, true
		}
	}
	return AspectRule{}, false
}

// AspectCodes lists every known aspect code.
func (lx *Lexicon) AspectCodes() []string {
	out := make([]string, len(lx.aspects))
	for i, a := range lx.aspects {
		out[i] = a.Code
	}
	return out
}

// hintWeight turns an aspect's polarity hint into a soft score.
func hintWeight(polarity string) float64 {
	switch pulse.ParseSentiment(polarity) {
	case pulse.Positive:
		return groupWeight[PositiveSoft]
	case pulse.Negative:
		return groupWeight[NegativeSoft]
	}
	return 0
}
