package lexicon

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// DefaultTerms are the filler words counted when no lexicon file is given.
var DefaultTerms = []string{
	"um", "umm", "uh", "uhh", "er", "erm", "ah", "hmm",
	"like", "you know", "i mean", "basically", "literally",
}

type term interface {
	pattern() string
	String() string
}

// TermParser parses one lexicon line into a term.
type TermParser interface {
	CanParse(line string) bool
	Parse(line string) (term, error)
}

// Lexicon counts filler-word occurrences case-insensitively on word
// boundaries. Matches never overlap.
type Lexicon struct {
	terms []string
	re    *regexp.Regexp
}

// New builds a lexicon from the default terms plus extra words.
func New(extra []string) (*Lexicon, error) {
	return Load("", extra)
}

// Load reads a lexicon file on top of the defaults. A missing file leaves
// only the defaults and extra words.
func Load(path string, extra []string) (*Lexicon, error) {
	return LoadWithParsers(path, extra, defaultTermParsers())
}

// LoadWithParsers allows parser extension without matcher changes.
func LoadWithParsers(path string, extra []string, parsers []TermParser) (*Lexicon, error) {
	if len(parsers) == 0 {
		parsers = defaultTermParsers()
	}

	var terms []term
	for _, word := range normalizeWords(append(append([]string(nil), DefaultTerms...), extra...)) {
		terms = append(terms, literalTerm(word))
	}

	if strings.TrimSpace(path) != "" {
		contents, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read lexicon file %q: %w", path, err)
		default:
			fileTerms, err := parseTerms(string(contents), parsers)
			if err != nil {
				return nil, fmt.Errorf("failed to parse lexicon file %q: %w", path, err)
			}
			terms = append(terms, fileTerms...)
		}
	}

	return compile(terms)
}

// Count returns the number of filler matches in text.
func (l *Lexicon) Count(text string) int {
	if l == nil || l.re == nil || strings.TrimSpace(text) == "" {
		return 0
	}
	return len(l.re.FindAllStringIndex(text, -1))
}

// Terms lists the compiled terms in match priority order.
func (l *Lexicon) Terms() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.terms...)
}

func compile(terms []term) (*Lexicon, error) {
	terms = lo.UniqBy(terms, func(t term) string { return t.String() })
	if len(terms) == 0 {
		return &Lexicon{}, nil
	}

	// Longer literals first so "you know" wins over a bare "you".
	sort.SliceStable(terms, func(i, j int) bool {
		_, li := terms[i].(literalTerm)
		_, lj := terms[j].(literalTerm)
		if li && lj {
			return len(terms[i].String()) > len(terms[j].String())
		}
		return li && !lj
	})

	patterns := lo.Map(terms, func(t term, _ int) string { return t.pattern() })
	re, err := regexp.Compile("(?i)(?:" + strings.Join(patterns, "|") + ")")
	if err != nil {
		return nil, fmt.Errorf("invalid lexicon: %w", err)
	}
	return &Lexicon{
		terms: lo.Map(terms, func(t term, _ int) string { return t.String() }),
		re:    re,
	}, nil
}

func parseTerms(contents string, parsers []TermParser) ([]term, error) {
	lines := strings.Split(contents, "\n")
	terms := make([]term, 0, len(lines))

	for index, raw := range lines {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parsed := false
		for _, parser := range parsers {
			if !parser.CanParse(line) {
				continue
			}
			t, err := parser.Parse(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", index+1, err)
			}
			terms = append(terms, t)
			parsed = true
			break
		}

		if !parsed {
			return nil, fmt.Errorf("line %d: unsupported lexicon entry", index+1)
		}
	}

	return terms, nil
}

func defaultTermParsers() []TermParser {
	return []TermParser{regexTermParser{}, literalTermParser{}}
}

func normalizeWords(words []string) []string {
	normalized := lo.Map(words, func(w string, _ int) string {
		return strings.Join(strings.Fields(strings.ToLower(w)), " ")
	})
	return lo.Uniq(lo.Compact(normalized))
}

type literalTermParser struct{}

func (literalTermParser) CanParse(line string) bool {
	return !strings.HasPrefix(line, "re:")
}

func (literalTermParser) Parse(line string) (term, error) {
	words := normalizeWords([]string{line})
	if len(words) == 0 {
		return nil, errors.New("empty term")
	}
	return literalTerm(words[0]), nil
}

type regexTermParser struct{}

func (regexTermParser) CanParse(line string) bool {
	return strings.HasPrefix(line, "re:")
}

func (regexTermParser) Parse(line string) (term, error) {
	pattern := strings.TrimSpace(strings.TrimPrefix(line, "re:"))
	if pattern == "" {
		return nil, errors.New("empty regex term")
	}
	if _, err := regexp.Compile(pattern); err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexTerm(pattern), nil
}

// literalTerm matches whole words; inner whitespace matches any run.
type literalTerm string

func (t literalTerm) pattern() string {
	words := lo.Map(strings.Fields(string(t)), func(w string, _ int) string {
		return regexp.QuoteMeta(w)
	})
	return `\b` + strings.Join(words, `\s+`) + `\b`
}

func (t literalTerm) String() string {
	return string(t)
}

// regexTerm is used verbatim; the author controls its boundaries.
type regexTerm string

func (t regexTerm) pattern() string {
	return "(?:" + string(t) + ")"
}

func (t regexTerm) String() string {
	return "re:" + string(t)
}
