// Package catalog holds the static knowledge base of issue signatures.
package catalog

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

//go:embed default.yaml
var defaultCatalog []byte

// ErrPatternNotFound is returned by Get for unknown pattern ids.
var ErrPatternNotFound = errors.New("pattern not found")

// ConfigError reports a malformed catalog. It is fatal at startup.
type ConfigError struct {
	PatternID string
	Msg       string
}

func (e *ConfigError) Error() string {
	if e.PatternID == "" {
		return "catalog: " + e.Msg
	}
	return fmt.Sprintf("catalog: pattern %q: %s", e.PatternID, e.Msg)
}

// File is the YAML root structure of a catalog.
type File struct {
	Patterns []models.IssuePattern `yaml:"patterns"`
}

// CompiledRule is a MatchRule prepared for matching.
type CompiledRule struct {
	Regex    *regexp.Regexp
	Keywords []string
	Weight   float64
}

// Entry is a validated pattern together with its compiled rules.
type Entry struct {
	Pattern     models.IssuePattern
	Rules       []CompiledRule
	TotalWeight float64
}

// Catalog is the immutable set of issue patterns. It is safe for concurrent use.
type Catalog struct {
	entries []Entry
	index   map[string]int
}

// Load reads a catalog from path. An empty path loads the embedded default.
func Load(path string, logger *slog.Logger) (*Catalog, error) {
	if logger == nil {
		logger = slog.Default()
	}
	data := defaultCatalog
	source := "embedded"
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", path, err)
		}
		data = raw
		source = path
	}
	c, err := Parse(data)
	if err != nil {
		return nil, err
	}
	logger.Info("issue catalog loaded", slog.String("source", source), slog.Int("patterns", c.Len()))
	return c, nil
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes and validates a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var file File
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("parse: %v", err)}
	}
	return New(file.Patterns)
}

// New validates patterns and builds a catalog from them.
func New(patterns []models.IssuePattern) (*Catalog, error) {
	if len(patterns) == 0 {
		return nil, &ConfigError{Msg: "no patterns defined"}
	}
	c := &Catalog{
		entries: make([]Entry, 0, len(patterns)),
		index:   make(map[string]int, len(patterns)),
	}
	for _, p := range patterns {
		entry, err := compile(p)
		if err != nil {
			return nil, err
		}
		if _, dup := c.index[entry.Pattern.ID]; dup {
			return nil, &ConfigError{PatternID: entry.Pattern.ID, Msg: "duplicate id"}
		}
		c.index[entry.Pattern.ID] = len(c.entries)
		c.entries = append(c.entries, entry)
	}
	return c, nil
}

func compile(p models.IssuePattern) (Entry, error) {
	p.ID = strings.TrimSpace(p.ID)
	if p.ID == "" {
		return Entry{}, &ConfigError{Msg: "pattern with empty id"}
	}
	if !p.Domain.Valid() {
		return Entry{}, &ConfigError{PatternID: p.ID, Msg: fmt.Sprintf("unknown domain %q", p.Domain)}
	}
	if p.Severity.Rank() == 0 {
		return Entry{}, &ConfigError{PatternID: p.ID, Msg: fmt.Sprintf("unknown severity %q", p.Severity)}
	}
	if len(p.Rules) == 0 {
		return Entry{}, &ConfigError{PatternID: p.ID, Msg: "empty match rules"}
	}
	if p.Name == "" {
		p.Name = p.ID
	}

	entry := Entry{Rules: make([]CompiledRule, 0, len(p.Rules))}
	for i, rule := range p.Rules {
		if rule.Weight <= 0 {
			return Entry{}, &ConfigError{PatternID: p.ID, Msg: fmt.Sprintf("rule %d: weight must be positive", i)}
		}
		hasRegex := rule.Regex != ""
		hasKeywords := len(rule.Keywords) > 0
		if hasRegex == hasKeywords {
			return Entry{}, &ConfigError{PatternID: p.ID, Msg: fmt.Sprintf("rule %d: exactly one of regex or keywords is required", i)}
		}
		compiled := CompiledRule{Weight: rule.Weight}
		if hasRegex {
			re, err := regexp.Compile("(?i)" + rule.Regex)
			if err != nil {
				return Entry{}, &ConfigError{PatternID: p.ID, Msg: fmt.Sprintf("rule %d: %v", i, err)}
			}
			compiled.Regex = re
		} else {
			for _, kw := range rule.Keywords {
				kw = strings.ToLower(strings.TrimSpace(kw))
				if kw == "" {
					return Entry{}, &ConfigError{PatternID: p.ID, Msg: fmt.Sprintf("rule %d: empty keyword", i)}
				}
				compiled.Keywords = append(compiled.Keywords, kw)
			}
		}
		entry.Rules = append(entry.Rules, compiled)
		entry.TotalWeight += rule.Weight
	}

	steps := make([]models.RemediationStep, 0, len(p.Remediation))
	for i, step := range p.Remediation {
		if strings.TrimSpace(step.Description) == "" {
			return Entry{}, &ConfigError{PatternID: p.ID, Msg: fmt.Sprintf("remediation step %d: empty description", i)}
		}
		if step.Risk != "" && step.Risk.Rank() == 0 {
			return Entry{}, &ConfigError{PatternID: p.ID, Msg: fmt.Sprintf("remediation step %d: unknown risk %q", i, step.Risk)}
		}
		classified := ClassifyCommand(step.CommandTemplate)
		if step.Risk == "" {
			step.Risk = classified
		} else {
			step.Risk = models.MaxRisk(step.Risk, classified)
		}
		steps = append(steps, step)
	}
	p.Remediation = steps
	p.Rules = append([]models.MatchRule(nil), p.Rules...)
	p.CommonCauses = append([]string(nil), p.CommonCauses...)
	p.Diagnostics = append([]string(nil), p.Diagnostics...)
	entry.Pattern = p
	return entry, nil
}

// All returns every pattern in catalog order.
func (c *Catalog) All() []models.IssuePattern {
	out := make([]models.IssuePattern, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.Pattern)
	}
	return out
}

// ByDomain returns the patterns of a single domain; an empty domain returns all.
func (c *Catalog) ByDomain(domain models.Domain) []models.IssuePattern {
	if domain == "" {
		return c.All()
	}
	out := make([]models.IssuePattern, 0)
	for _, e := range c.entries {
		if e.Pattern.Domain == domain {
			out = append(out, e.Pattern)
		}
	}
	return out
}

// Get returns the pattern with the given id.
func (c *Catalog) Get(id string) (models.IssuePattern, error) {
	i, ok := c.index[id]
	if !ok {
		return models.IssuePattern{}, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	return c.entries[i].Pattern, nil
}

// Has reports whether id names a catalog pattern.
func (c *Catalog) Has(id string) bool {
	_, ok := c.index[id]
	return ok
}

// Entries exposes compiled entries to the matcher. The returned slice must
// not be modified.
func (c *Catalog) Entries() []Entry {
	return c.entries
}

// Len returns the number of patterns.
func (c *Catalog) Len() int {
	return len(c.entries)
}
