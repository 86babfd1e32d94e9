package history

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"

	"github.com/k8s-ai-assistant/expert-engine/internal/models"
	"github.com/k8s-ai-assistant/expert-engine/internal/utils"
)

// persistedOccurrence is the on-disk form of an occurrence. The issue type
// is the enclosing map key.
type persistedOccurrence struct {
	ID                string               `json:"id"`
	Timestamp         string               `json:"timestamp"`
	MatchedConfidence float64              `json:"matched_confidence"`
	PredictedCause    string               `json:"predicted_cause"`
	ActionTaken       string               `json:"action_taken"`
	Outcome           models.Outcome       `json:"outcome"`
	Detail            string               `json:"detail,omitempty"`
	Evidence          []string             `json:"evidence,omitempty"`
	Steps             []models.StepOutcome `json:"steps,omitempty"`
}

func encodeSnapshot(records map[string][]models.IssueOccurrence) ([]byte, error) {
	doc := make(map[string][]persistedOccurrence, len(records))
	for issueType, occs := range records {
		out := make([]persistedOccurrence, 0, len(occs))
		for _, occ := range occs {
			out = append(out, persistedOccurrence{
				ID:                occ.ID,
				Timestamp:         utils.FormatTimestamp(occ.Timestamp),
				MatchedConfidence: occ.MatchedConfidence,
				PredictedCause:    occ.PredictedCause,
				ActionTaken:       occ.ActionTaken,
				Outcome:           occ.Outcome,
				Detail:            occ.Detail,
				Evidence:          occ.Evidence,
				Steps:             occ.Steps,
			})
		}
		doc[issueType] = out
	}
	return json.MarshalIndent(doc, "", "  ")
}

// decodeSnapshot parses a persisted document. A document that is not a
// mapping at all is an error; an issue type whose value is not a list, and
// individual bad entries, are skipped. Entries keep their stored order.
func decodeSnapshot(data []byte, validate func(models.IssueOccurrence) error, logger *slog.Logger) (map[string][]models.IssueOccurrence, int, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, utils.CorruptError("history.load", "snapshot is not an issue-type mapping", err)
	}

	types := make([]string, 0, len(raw))
	for issueType := range raw {
		types = append(types, issueType)
	}
	sort.Strings(types)

	out := make(map[string][]models.IssueOccurrence, len(raw))
	skipped := 0
	for _, issueType := range types {
		var entries []json.RawMessage
		if err := json.Unmarshal(raw[issueType], &entries); err != nil {
			skipped++
			logger.Warn("skipping corrupt history type", "issue_type", issueType, "error", err)
			continue
		}
		for i, entry := range entries {
			occ, err := decodeOccurrence(issueType, entry)
			if err == nil {
				err = validate(occ)
			}
			if err != nil {
				skipped++
				logger.Warn("skipping corrupt history entry", "issue_type", issueType, "index", i, "error", err)
				continue
			}
			out[issueType] = append(out[issueType], occ)
		}
	}
	return out, skipped, nil
}

func decodeOccurrence(issueType string, entry json.RawMessage) (models.IssueOccurrence, error) {
	var p persistedOccurrence
	if err := json.Unmarshal(entry, &p); err != nil {
		return models.IssueOccurrence{}, fmt.Errorf("%w: %v", ErrInvalidOccurrence, err)
	}
	ts, err := utils.ParseTimestamp(p.Timestamp)
	if err != nil {
		return models.IssueOccurrence{}, fmt.Errorf("%w: %v", ErrInvalidOccurrence, err)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Outcome == "" {
		p.Outcome = models.OutcomeUnknown
	}
	return models.IssueOccurrence{
		ID:                p.ID,
		IssueType:         issueType,
		Timestamp:         ts,
		MatchedConfidence: p.MatchedConfidence,
		PredictedCause:    p.PredictedCause,
		ActionTaken:       p.ActionTaken,
		Outcome:           p.Outcome,
		Detail:            p.Detail,
		Evidence:          p.Evidence,
		Steps:             p.Steps,
	}, nil
}
