package catalog

import (
	"regexp"

	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

var (
	highRiskCommand = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\brm\s+-[a-z]*r[a-z]*f`),
		regexp.MustCompile(`(?i)\brm\s+-[a-z]*f[a-z]*r`),
		regexp.MustCompile(`(?i)\bdelete\b.*--force`),
		regexp.MustCompile(`(?i)--grace-period=0`),
		regexp.MustCompile(`(?i)\bkill\s+-(9|kill)\b`),
		regexp.MustCompile(`(?i)\b(shutdown|reboot|poweroff|halt)\b`),
		regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),
		regexp.MustCompile(`(?i)\bdd\s+if=`),
		regexp.MustCompile(`>\s*/dev/(sd|hd|vd|xvd|nvme)`),
		regexp.MustCompile(`(?i)\breplace-brick\b`),
		regexp.MustCompile(`(?i)\bvolume\s+\S+\s+stop\b|\bvolume\s+stop\b`),
		regexp.MustCompile(`(?i)\bdrain\b`),
	}
	mediumRiskCommand = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(restart|stop|start|kill|pkill|delete|remove|purge|prune|autoremove|clean)\b`),
		regexp.MustCompile(`(?i)\b(scale|cordon|uncordon|rollout|patch|apply|edit)\b`),
		regexp.MustCompile(`(?i)--vacuum-`),
		regexp.MustCompile(`(?i)\bheal\s+\S+(\s+full)?$`),
		regexp.MustCompile(`(?i)\b(limit-usage|disable|reset-failed|daemon-reload|swapoff)\b|\bswapon\s+-a\b`),
	}
)

// ClassifyCommand estimates the risk of a command line from its text.
// Unknown commands default to safe; callers combine this with declared risk
// through models.MaxRisk so a classification can only escalate.
func ClassifyCommand(command string) models.Risk {
	if command == "" {
		return models.RiskSafe
	}
	for _, re := range highRiskCommand {
		if re.MatchString(command) {
			return models.RiskHigh
		}
	}
	for _, re := range mediumRiskCommand {
		if re.MatchString(command) {
			return models.RiskMedium
		}
	}
	return models.RiskSafe
}
