package models

// Domain groups issue patterns by the layer they describe.
type Domain string

const (
	DomainOS         Domain = "os"
	DomainKubernetes Domain = "kubernetes"
	DomainStorage    Domain = "storage"
)

// Valid reports whether d is one of the known domains.
func (d Domain) Valid() bool {
	switch d {
	case DomainOS, DomainKubernetes, DomainStorage:
		return true
	}
	return false
}

// Severity captures impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; higher is more severe. Unknown values rank zero.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Risk classifies how much harm a remediation step can do.
type Risk string

const (
	RiskSafe   Risk = "safe"
	RiskMedium Risk = "medium"
	RiskHigh   Risk = "high"
)

// Rank orders risks; unknown values rank zero.
func (r Risk) Rank() int {
	switch r {
	case RiskSafe:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	}
	return 0
}

// MaxRisk returns the riskier of a and b.
func MaxRisk(a, b Risk) Risk {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// MatchRule is one weighted signal of a pattern. Exactly one of Regex or
// Keywords is set; a keyword rule matches when any keyword occurs.
type MatchRule struct {
	Regex    string   `yaml:"regex,omitempty" json:"regex,omitempty"`
	Keywords []string `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Weight   float64  `yaml:"weight" json:"weight"`
}

// RemediationStep is a templated action. CommandTemplate may contain <name>
// placeholders filled at planning time.
type RemediationStep struct {
	Description     string `yaml:"description" json:"description"`
	CommandTemplate string `yaml:"command,omitempty" json:"command,omitempty"`
	Risk            Risk   `yaml:"risk,omitempty" json:"risk,omitempty"`
	Verification    string `yaml:"verification,omitempty" json:"verification,omitempty"`
}

// IssuePattern is a named failure signature from the catalog.
type IssuePattern struct {
	ID           string            `yaml:"id" json:"id"`
	Name         string            `yaml:"name" json:"name"`
	Description  string            `yaml:"description,omitempty" json:"description,omitempty"`
	Domain       Domain            `yaml:"domain" json:"domain"`
	Severity     Severity          `yaml:"severity" json:"severity"`
	Rules        []MatchRule       `yaml:"rules" json:"rules"`
	CommonCauses []string          `yaml:"causes,omitempty" json:"causes,omitempty"`
	Diagnostics  []string          `yaml:"diagnostics,omitempty" json:"diagnostics,omitempty"`
	Remediation  []RemediationStep `yaml:"remediation" json:"remediation"`
}

// PrimaryCause returns the first listed common cause, or "unknown".
func (p IssuePattern) PrimaryCause() string {
	for _, c := range p.CommonCauses {
		if c != "" {
			return c
		}
	}
	return "unknown"
}

// Match pairs a pattern with the confidence an observation matched it.
type Match struct {
	Pattern    IssuePattern
	Confidence float64
	Evidence   []string
}
