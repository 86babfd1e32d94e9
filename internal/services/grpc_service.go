package services

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/k8s-ai-assistant/expert-engine/internal/actuator"
	"github.com/k8s-ai-assistant/expert-engine/internal/api"
	"github.com/k8s-ai-assistant/expert-engine/internal/grpc/expertv1"
	"github.com/k8s-ai-assistant/expert-engine/internal/history"
	"github.com/k8s-ai-assistant/expert-engine/internal/models"
)

// GRPCService implements the expert.v1.ExpertEngine service on top of
// ExpertService.
type GRPCService struct {
	expertv1.UnimplementedExpertEngineServer

	expert *ExpertService
	logger *slog.Logger
}

// NewGRPCService wraps the facade for the gRPC transport.
func NewGRPCService(expert *ExpertService, logger *slog.Logger) *GRPCService {
	if logger == nil {
		logger = slog.Default()
	}
	return &GRPCService{expert: expert, logger: logger}
}

// Analyze diagnoses an observation and returns the safety-gated plan.
func (s *GRPCService) Analyze(ctx context.Context, req *expertv1.AnalyzeRequest) (*expertv1.AnalyzeResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	domainReq, err := api.FromProtoAnalyzeRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	analysis, err := s.expert.Analyze(ctx, domainReq)
	if err != nil {
		return nil, s.toStatus("analyze", err)
	}
	return api.ToProtoAnalyzeResponse(analysis), nil
}

// Remediate plans and executes remediation for an observation.
func (s *GRPCService) Remediate(ctx context.Context, req *expertv1.RemediateRequest) (*expertv1.RemediateResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	domainReq, err := api.FromProtoRemediateRequest(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	result, err := s.expert.Remediate(ctx, domainReq)
	if err != nil {
		return nil, s.toStatus("remediate", err)
	}
	return &expertv1.RemediateResponse{
		Analysis:   api.ToProtoAnalyzeResponse(result.Analysis),
		Occurrence: api.ToProtoOccurrence(result.Occurrence),
	}, nil
}

// RecordOutcome settles the outcome of a remediation run by an external actuator.
func (s *GRPCService) RecordOutcome(ctx context.Context, req *expertv1.RecordOutcomeRequest) (*expertv1.RecordOutcomeResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	if req.IssueType == "" || req.OccurrenceID == "" {
		return nil, status.Error(codes.InvalidArgument, "issue_type and occurrence_id are required")
	}
	outcome, err := api.FromProtoOutcome(req.Outcome)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	occ, err := s.expert.RecordOutcome(ctx, req.IssueType, req.OccurrenceID, outcome, req.Detail)
	if err != nil {
		return nil, s.toStatus("record outcome", err)
	}
	return &expertv1.RecordOutcomeResponse{Occurrence: api.ToProtoOccurrence(occ)}, nil
}

// GetHistory returns retained occurrences and per-type frequencies.
func (s *GRPCService) GetHistory(ctx context.Context, req *expertv1.GetHistoryRequest) (*expertv1.GetHistoryResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	within, err := api.FromProtoWithin(req.WithinSeconds)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	return &expertv1.GetHistoryResponse{
		Occurrences: api.ToProtoOccurrences(s.expert.History(req.IssueType, within)),
		Frequency:   api.ToProtoFrequency(s.expert.Frequency()),
	}, nil
}

// ListPatterns returns the issue catalog.
func (s *GRPCService) ListPatterns(ctx context.Context, req *expertv1.ListPatternsRequest) (*expertv1.ListPatternsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	patterns, err := s.expert.Patterns(models.Domain(req.Domain))
	if err != nil {
		return nil, s.toStatus("list patterns", err)
	}
	return api.ToProtoPatterns(patterns), nil
}

// Scan feeds log text through the learning scanner. Partial failures are
// reported alongside the occurrences that were recorded.
func (s *GRPCService) Scan(ctx context.Context, req *expertv1.ScanRequest) (*expertv1.ScanResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	occs, err := s.expert.Scan(ctx, req.Sources)
	if errors.Is(err, ErrNotConfigured) {
		return nil, status.Error(codes.FailedPrecondition, err.Error())
	}
	resp := &expertv1.ScanResponse{Occurrences: api.ToProtoOccurrences(occs)}
	if err != nil {
		s.logger.Warn("scan incomplete", slog.Any("error", err))
		resp.Errors = unwrapJoined(err)
	}
	return resp, nil
}

// GetTrends summarises retained history.
func (s *GRPCService) GetTrends(ctx context.Context, req *expertv1.GetTrendsRequest) (*expertv1.GetTrendsResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	return &expertv1.GetTrendsResponse{Trend: api.ToProtoTrend(s.expert.Trends(req.IssueType))}, nil
}

// GetLearningReport returns learned keywords, accuracy and trends.
func (s *GRPCService) GetLearningReport(ctx context.Context, req *expertv1.GetLearningReportRequest) (*expertv1.GetLearningReportResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request cannot be nil")
	}
	return api.ToProtoLearningReport(s.expert.LearningReport()), nil
}

func (s *GRPCService) toStatus(op string, err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, ErrEmptyObservation),
		errors.Is(err, ErrInvalidDomain),
		errors.Is(err, ErrInvalidOutcome),
		errors.Is(err, ErrUnknownIssueType),
		errors.Is(err, history.ErrInvalidOccurrence):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, history.ErrOccurrenceNotFound), errors.Is(err, ErrNoMatchingPattern):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, history.ErrOutcomeAlreadySet):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, actuator.ErrPlanBlocked),
		errors.Is(err, actuator.ErrConfirmationRequired),
		errors.Is(err, actuator.ErrUnresolvedPlan),
		errors.Is(err, actuator.ErrPreconditionFailed),
		errors.Is(err, ErrNotConfigured):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		s.logger.Error(op+" failed", slog.Any("error", err))
		return status.Error(codes.Internal, op+" failed")
	}
}

func unwrapJoined(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		out := make([]string, 0, len(joined.Unwrap()))
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
