package detect

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Default patterns removed before hashing. Dates without a time component
// are kept because publication dates are meaningful content.
const (
	isoTimestampPattern = `\b\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}(?::\d{2}(?:\.\d+)?)?(?:Z|[+-]\d{2}:?\d{2})?`
	rfcTimestampPattern = `\b(?:Mon|Tue|Wed|Thu|Fri|Sat|Sun), \d{1,2} (?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec) \d{4} \d{2}:\d{2}:\d{2} (?:GMT|UTC|[+-]\d{4})`
	sessionParamPattern = `(?i)[?&;](?:jsessionid|phpsessid|sid|sessionid|session_id|token|auth_token|csrf_token|_csrf)=[^&\s"'#<>]*`
	cacheBusterPattern  = `(?i)[?&](?:_|cb|cachebuster|cache_bust|v|ver|t|ts|_t|timestamp)=\d+`
)

// Rules controls normalization. Patterns are applied in order: lines matching
// DropLinesMatching are removed first, then StripPatterns matches are deleted,
// then whitespace is collapsed.
type Rules struct {
	CollapseWhitespace bool
	StripPatterns      []*regexp.Regexp
	DropLinesMatching  []*regexp.Regexp
}

// DefaultRules strips timestamps, session tokens and cache-buster parameters
// and collapses whitespace.
func DefaultRules() Rules {
	return Rules{
		CollapseWhitespace: true,
		StripPatterns: []*regexp.Regexp{
			regexp.MustCompile(isoTimestampPattern),
			regexp.MustCompile(rfcTimestampPattern),
			regexp.MustCompile(sessionParamPattern),
			regexp.MustCompile(cacheBusterPattern),
		},
	}
}

// rulesFile is the YAML shape of a NORMALIZER_RULES_FILE file.
type rulesFile struct {
	// Defaults keeps DefaultRules' patterns and appends the file's own.
	Defaults           *bool    `yaml:"defaults"`
	CollapseWhitespace *bool    `yaml:"collapse_whitespace"`
	StripPatterns      []string `yaml:"strip_patterns"`
	DropLinesMatching  []string `yaml:"drop_lines_matching"`
}

// ParseRules decodes YAML rules. Unknown keys are rejected.
//
//	defaults: true
//	collapse_whitespace: true
//	strip_patterns:
//	  - 'Page generated in \d+ms'
//	drop_lines_matching:
//	  - '^Last updated:'
func ParseRules(data []byte) (Rules, error) {
	var f rulesFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return Rules{}, fmt.Errorf("decode normalization rules: %w", err)
	}

	rules := Rules{CollapseWhitespace: true}
	if f.Defaults == nil || *f.Defaults {
		rules = DefaultRules()
	}
	if f.CollapseWhitespace != nil {
		rules.CollapseWhitespace = *f.CollapseWhitespace
	}
	for _, p := range f.StripPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return Rules{}, fmt.Errorf("strip pattern %q: %w", p, err)
		}
		rules.StripPatterns = append(rules.StripPatterns, re)
	}
	for _, p := range f.DropLinesMatching {
		re, err := regexp.Compile(p)
		if err != nil {
			return Rules{}, fmt.Errorf("drop pattern %q: %w", p, err)
		}
		rules.DropLinesMatching = append(rules.DropLinesMatching, re)
	}
	return rules, nil
}

// LoadRulesFile reads rules from path. An empty path yields DefaultRules.
func LoadRulesFile(path string) (Rules, error) {
	if path == "" {
		return DefaultRules(), nil
	}
	data, err := os.ReadFile(path) // #nosec G304 -- operator supplied config path
	if err != nil {
		return Rules{}, fmt.Errorf("read normalization rules: %w", err)
	}
	return ParseRules(data)
}

// Normalizer applies Rules to fetched text. It is safe for concurrent use.
type Normalizer struct {
	rules Rules
}

// NewNormalizer returns a Normalizer for rules.
func NewNormalizer(rules Rules) *Normalizer {
	return &Normalizer{rules: rules}
}

// Normalize returns the canonical form of text that gets fingerprinted.
func (n *Normalizer) Normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if n.dropped(line) {
			continue
		}
		for _, re := range n.rules.StripPatterns {
			line = re.ReplaceAllString(line, "")
		}
		if n.rules.CollapseWhitespace {
			line = strings.Join(strings.Fields(line), " ")
			if line == "" {
				continue
			}
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func (n *Normalizer) dropped(line string) bool {
	for _, re := range n.rules.DropLinesMatching {
		if re.MatchString(line) {
			return true
		}
	}
	return false
}
