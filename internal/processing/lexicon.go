package processing

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed lexicon.yaml
var defaultLexicon []byte

// Lexicon holds every word table the heuristics read. It is immutable after
// loading and safe for concurrent use.
type Lexicon struct {
	Version              int                `yaml:"version"`
	Stopwords            []string           `yaml:"stopwords"`
	Sentiment            SentimentLists     `yaml:"sentiment"`
	ImportanceIndicators []string           `yaml:"importance_indicators"`
	Topics               []Topic            `yaml:"topics"`
	Categories           []CategoryKeywords `yaml:"categories"`
	Reliability          ReliabilityRules   `yaml:"reliability"`

	stopwords   map[string]struct{}
	sensational []*regexp.Regexp
	phrases     [][]*regexp.Regexp
}

// SentimentLists are the polarity word lists.
type SentimentLists struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// Topic maps a topic name to associated terms.
type Topic struct {
	Name  string   `yaml:"name"`
	Terms []string `yaml:"terms"`
}

// CategoryKeywords is one row of the classifier dictionary.
type CategoryKeywords struct {
	Name     string   `yaml:"name"`
	Weight   float64  `yaml:"weight"`
	Keywords []string `yaml:"keywords"`
}

// ReliabilityRules feed the fake-news scorer.
type ReliabilityRules struct {
	TrustedDomains      []string `yaml:"trusted_domains"`
	SuspiciousTLDs      []string `yaml:"suspicious_tlds"`
	SensationalPatterns []string `yaml:"sensational_patterns"`
}

// DefaultLexicon returns the lexicon compiled into the binary.
func DefaultLexicon() *Lexicon {
	lex, err := ParseLexicon(defaultLexicon)
	if err != nil {
		panic(fmt.Sprintf("embedded lexicon: %v", err))
	}
	return lex
}

// LoadLexicon reads a lexicon file. An empty path yields the embedded default.
func LoadLexicon(path string) (*Lexicon, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultLexicon(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read lexicon: %w", err)
	}
	return ParseLexicon(data)
}

// ParseLexicon decodes and compiles a YAML lexicon.
func ParseLexicon(data []byte) (*Lexicon, error) {
	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("decode lexicon: %w", err)
	}
	if err := lex.compile(); err != nil {
		return nil, err
	}
	return &lex, nil
}

func (l *Lexicon) compile() error {
	l.stopwords = make(map[string]struct{}, len(l.Stopwords))
	for _, w := range l.Stopwords {
		l.stopwords[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}

	l.sensational = make([]*regexp.Regexp, 0, len(l.Reliability.SensationalPatterns))
	for _, p := range l.Reliability.SensationalPatterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return fmt.Errorf("compile sensational pattern %q: %w", p, err)
		}
		l.sensational = append(l.sensational, re)
	}

	l.phrases = make([][]*regexp.Regexp, len(l.Categories))
	for i, cat := range l.Categories {
		if cat.Name == "" {
			return fmt.Errorf("category %d has no name", i)
		}
		if cat.Weight == 0 {
			l.Categories[i].Weight = 1
		}
		for _, kw := range cat.Keywords {
			l.phrases[i] = append(l.phrases[i], wholeWordPattern(kw))
		}
	}
	return nil
}

func (l *Lexicon) isStopword(token string) bool {
	_, ok := l.stopwords[token]
	return ok
}
