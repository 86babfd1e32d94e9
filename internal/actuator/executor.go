package actuator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/k8s-ai-assistant/expert-engine/internal/metrics"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

// DefaultStepTimeout bounds a single command.
const DefaultStepTimeout = 30 * time.Second

var (
	ErrPlanBlocked          = errors.New("plan is blocked")
	ErrConfirmationRequired = errors.New("plan requires confirmation")
	ErrUnresolvedPlan       = errors.New("plan has unresolved placeholders")
)

// Recorder stores the occurrence produced by an execution.
type Recorder interface {
	Record(ctx context.Context, occ models.IssueOccurrence) (models.IssueOccurrence, error)
}

// ExecutorConfig tunes an Executor.
type ExecutorConfig struct {
	StepTimeout   time.Duration
	Preconditions []Precondition
	Logger        *slog.Logger
}

// ExecuteOptions carries per-call choices.
type ExecuteOptions struct {
	// Confirmed marks operator approval for require_confirmation plans.
	Confirmed      bool
	PredictedCause string
}

// Executor runs approved plans step by step and records the result.
type Executor struct {
	actuator Actuator
	recorder Recorder
	timeout  time.Duration
	checks   []Precondition
	logger   *slog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(a Actuator, r Recorder, cfg ExecutorConfig) *Executor {
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = DefaultStepTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Executor{
		actuator: a,
		recorder: r,
		timeout:  cfg.StepTimeout,
		checks:   cfg.Preconditions,
		logger:   cfg.Logger,
	}
}

// Execute runs plan in order, stopping at the first failed step. Steps
// without a command are manual and are reported as not_attempted. The
// returned occurrence carries the per-step audit trail; command failures are
// part of the outcome, not the error.
func (e *Executor) Execute(ctx context.Context, plan models.RemediationPlan, opts ExecuteOptions) (models.IssueOccurrence, error) {
	switch plan.Decision {
	case models.DecisionBlocked:
		return models.IssueOccurrence{}, fmt.Errorf("%w: %s", ErrPlanBlocked, plan.Reason)
	case models.DecisionRequireConfirmation:
		if !opts.Confirmed {
			return models.IssueOccurrence{}, fmt.Errorf("%w: %s", ErrConfirmationRequired, plan.Reason)
		}
	case models.DecisionAutoExecute:
	default:
		return models.IssueOccurrence{}, fmt.Errorf("%w: unknown decision %q", ErrPlanBlocked, plan.Decision)
	}
	for _, step := range plan.Steps {
		if step.IsUnresolved() {
			return models.IssueOccurrence{}, fmt.Errorf("%w: %v", ErrUnresolvedPlan, step.Unresolved)
		}
	}

	if err := checkPreconditions(ctx, e.checks); err != nil {
		return models.IssueOccurrence{}, err
	}

	steps, outcome, detail := e.runSteps(ctx, plan.Steps)

	cause := opts.PredictedCause
	if cause == "" {
		cause = plan.Pattern.PrimaryCause()
	}
	occ := models.IssueOccurrence{
		IssueType:         plan.Pattern.ID,
		MatchedConfidence: plan.Confidence,
		PredictedCause:    cause,
		ActionTaken:       plan.ActionLabel(),
		Outcome:           outcome,
		Detail:            detail,
		Steps:             steps,
	}
	recorded, err := e.recorder.Record(context.WithoutCancel(ctx), occ)
	if err != nil {
		return occ, fmt.Errorf("record remediation: %w", err)
	}
	metrics.ObserveOccurrences(metrics.SourceRemediation, 1)

	e.logger.Info("remediation finished",
		"issue_type", plan.Pattern.ID,
		"outcome", outcome,
		"steps", len(steps),
		"occurrence_id", recorded.ID,
	)
	return recorded, nil
}

func (e *Executor) runSteps(ctx context.Context, planned []models.PlannedStep) ([]models.StepOutcome, models.Outcome, string) {
	steps := make([]models.StepOutcome, len(planned))
	for i, step := range planned {
		steps[i] = models.StepOutcome{Description: step.Description, Command: step.Command, Outcome: models.OutcomeNotAttempted}
	}

	executed := 0
	for i, step := range planned {
		if ctx.Err() != nil {
			return steps, models.OutcomeUnknown, "cancelled"
		}
		if step.Command == "" {
			steps[i].Detail = "manual step"
			continue
		}

		detail, err := e.runOne(ctx, step.Command)
		if err == nil && step.Verification != "" {
			var verifyDetail string
			verifyDetail, err = e.runOne(ctx, step.Verification)
			if err != nil {
				detail = "verification failed: " + verifyDetail
			}
		}
		executed++
		if err != nil {
			steps[i].Outcome = models.OutcomeFailure
			steps[i].Detail = detail
			metrics.ObserveStep(string(models.OutcomeFailure))
			if ctx.Err() != nil {
				return steps, models.OutcomeUnknown, "cancelled"
			}
			return steps, models.OutcomeFailure, fmt.Sprintf("step %d (%s): %s", i+1, step.Description, detail)
		}
		steps[i].Outcome = models.OutcomeSuccess
		steps[i].Detail = detail
		metrics.ObserveStep(string(models.OutcomeSuccess))
	}

	if executed == 0 {
		return steps, models.OutcomeUnknown, "no executable steps"
	}
	return steps, models.OutcomeSuccess, ""
}

// runOne runs command under the step timeout. On failure the returned
// detail is the error text, or "timeout" when the step deadline fired.
func (e *Executor) runOne(ctx context.Context, command string) (string, error) {
	stepCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.actuator.Run(stepCtx, command)
	if err != nil {
		if errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "timeout", err
		}
		return err.Error(), err
	}
	return truncate(out, 512), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
