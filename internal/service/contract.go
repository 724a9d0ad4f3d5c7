package service

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"unicode"

	"github.com/timmy/sprintreport/internal/domain"
	"gopkg.in/yaml.v3"
)

// Contract is the structural contract a synthesized report must satisfy.
type Contract struct {
	RequiredSections []string `yaml:"required_sections"`
	MinWords         int      `yaml:"min_words"`
	ForbiddenMarkers []string `yaml:"forbidden_markers"`

	markerPatterns []*regexp.Regexp
}

// DefaultContract returns the built-in sprint report contract.
func DefaultContract() *Contract {
	c := &Contract{
		RequiredSections: []string{
			"Sprint Overview",
			"Completed Work",
			"In Progress",
			"Blockers and Risks",
			"Metrics",
			"Next Sprint Plan",
		},
		MinWords:         150,
		ForbiddenMarkers: []string{"TODO", "TBD", "{{", "[INSERT"},
	}
	c.compile()
	return c
}

// LoadContract reads a YAML contract; an empty path returns DefaultContract.
// Fields missing from the file keep their default values.
func LoadContract(path string) (*Contract, error) {
	if path == "" {
		return DefaultContract(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report contract: %w", err)
	}

	c := DefaultContract()
	var fromFile Contract
	if err := yaml.Unmarshal(data, &fromFile); err != nil {
		return nil, fmt.Errorf("parse report contract %s: %w", path, err)
	}
	if len(fromFile.RequiredSections) > 0 {
		c.RequiredSections = fromFile.RequiredSections
	}
	if fromFile.MinWords > 0 {
		c.MinWords = fromFile.MinWords
	}
	if fromFile.ForbiddenMarkers != nil {
		c.ForbiddenMarkers = fromFile.ForbiddenMarkers
	}
	c.compile()
	return c, nil
}

func (c *Contract) compile() {
	c.markerPatterns = compileMarkers(c.ForbiddenMarkers)
}

func compileMarkers(markers []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(markers))
	for i, marker := range markers {
		expr := regexp.QuoteMeta(marker)
		if isWord(marker) {
			expr = `\b` + expr + `\b`
		}
		out[i] = regexp.MustCompile(expr)
	}
	return out
}

// patterns returns the compiled markers. A contract built without
// DefaultContract or LoadContract compiles them per call; the contract is
// shared by concurrent jobs and is never written after construction.
func (c *Contract) patterns() []*regexp.Regexp {
	if len(c.markerPatterns) == len(c.ForbiddenMarkers) {
		return c.markerPatterns
	}
	return compileMarkers(c.ForbiddenMarkers)
}

// Validate checks text against the contract.
// Parameters:
//   - text: Markdown report.
//
// Returns:
//   - domain.ValidationReport: outcome with missing sections, leftover markers and word count.
func (c *Contract) Validate(text string) domain.ValidationReport {
	report := domain.ValidationReport{
		MissingSections: []string{},
		WordCount:       len(strings.Fields(text)),
	}

	headings := extractHeadings(text)
	for _, section := range c.RequiredSections {
		want := strings.ToLower(section)
		found := false
		for _, h := range headings {
			if strings.Contains(h, want) {
				found = true
				break
			}
		}
		if found {
			report.FoundSections = append(report.FoundSections, section)
		} else {
			report.MissingSections = append(report.MissingSections, section)
		}
	}

	for i, re := range c.patterns() {
		if re.MatchString(text) {
			report.Placeholders = append(report.Placeholders, c.ForbiddenMarkers[i])
		}
	}

	if report.WordCount < c.MinWords {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("report has %d words, minimum is %d", report.WordCount, c.MinWords))
	}

	report.Valid = len(report.MissingSections) == 0 &&
		len(report.Placeholders) == 0 &&
		report.WordCount >= c.MinWords
	return report
}

// extractHeadings returns normalized Markdown headings and bold-only lines.
func extractHeadings(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#"):
			line = strings.TrimLeft(line, "#")
		case strings.HasPrefix(line, "**") && strings.HasSuffix(line, "**") && len(line) > 4:
			line = strings.Trim(line, "*")
		default:
			continue
		}
		line = strings.TrimLeftFunc(line, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsDigit(r) || r == '.' || r == ')'
		})
		line = strings.TrimRight(strings.TrimSpace(line), ":")
		out = append(out, strings.ToLower(line))
	}
	return out
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
