package engine

import (
	"math"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/k8s-ai-assistant/expert-engine/internal/catalog"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

const (
	// DefaultTopN bounds the number of matches returned by Match.
	DefaultTopN = 5

	maxEvidence       = 5
	maxEvidenceLength = 160
)

// Matcher scores observation text against catalog patterns. It holds no
// mutable state and is safe for concurrent use.
type Matcher struct {
	catalog *catalog.Catalog
	topN    int
}

// NewMatcher constructs a matcher over c. topN <= 0 selects DefaultTopN.
func NewMatcher(c *catalog.Catalog, topN int) *Matcher {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Matcher{catalog: c, topN: topN}
}

// Match returns patterns matching text ordered by confidence (desc), then
// severity (desc), then id (asc). An empty domain matches every domain.
// Patterns with zero confidence are omitted.
func (m *Matcher) Match(text string, domain models.Domain) []models.Match {
	if m == nil || m.catalog == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	lowered := strings.ToLower(text)

	matches := make([]models.Match, 0)
	for _, entry := range m.catalog.Entries() {
		if domain != "" && entry.Pattern.Domain != domain {
			continue
		}
		confidence, evidence := score(entry, text, lowered)
		if confidence <= 0 {
			continue
		}
		matches = append(matches, models.Match{
			Pattern:    entry.Pattern,
			Confidence: confidence,
			Evidence:   evidence,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if ra, rb := a.Pattern.Severity.Rank(), b.Pattern.Severity.Rank(); ra != rb {
			return ra > rb
		}
		return a.Pattern.ID < b.Pattern.ID
	})

	if len(matches) > m.topN {
		matches = matches[:m.topN]
	}
	return matches
}

// Best returns the top match, if any.
func (m *Matcher) Best(text string, domain models.Domain) (models.Match, bool) {
	matches := m.Match(text, domain)
	if len(matches) == 0 {
		return models.Match{}, false
	}
	return matches[0], true
}

func score(entry catalog.Entry, text, lowered string) (float64, []string) {
	if entry.TotalWeight <= 0 {
		return 0, nil
	}
	matched := 0.0
	evidence := make([]string, 0, maxEvidence)
	for _, rule := range entry.Rules {
		if rule.Regex != nil {
			if loc := rule.Regex.FindStringIndex(text); loc != nil {
				matched += rule.Weight
				evidence = appendEvidence(evidence, text[loc[0]:loc[1]])
			}
			continue
		}
		for _, kw := range rule.Keywords {
			if strings.Contains(lowered, kw) {
				matched += rule.Weight
				evidence = appendEvidence(evidence, kw)
				break
			}
		}
	}
	return clampUnit(matched / entry.TotalWeight), evidence
}

func appendEvidence(evidence []string, fragment string) []string {
	if len(evidence) >= maxEvidence || fragment == "" {
		return evidence
	}
	if len(fragment) > maxEvidenceLength {
		cut := maxEvidenceLength
		for cut > 0 && !utf8.RuneStart(fragment[cut]) {
			cut--
		}
		fragment = fragment[:cut]
	}
	return append(evidence, fragment)
}

func clampUnit(value float64) float64 {
	if math.IsNaN(value) || value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
