package expertv1

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "expert.v1.ExpertEngine"

// ExpertEngineServer is the server API for the ExpertEngine service.
type ExpertEngineServer interface {
	Analyze(context.Context, *AnalyzeRequest) (*AnalyzeResponse, error)
	Remediate(context.Context, *RemediateRequest) (*RemediateResponse, error)
	RecordOutcome(context.Context, *RecordOutcomeRequest) (*RecordOutcomeResponse, error)
	GetHistory(context.Context, *GetHistoryRequest) (*GetHistoryResponse, error)
	ListPatterns(context.Context, *ListPatternsRequest) (*ListPatternsResponse, error)
	Scan(context.Context, *ScanRequest) (*ScanResponse, error)
	GetTrends(context.Context, *GetTrendsRequest) (*GetTrendsResponse, error)
	GetLearningReport(context.Context, *GetLearningReportRequest) (*GetLearningReportResponse, error)
}

// UnimplementedExpertEngineServer can be embedded for forward compatibility.
type UnimplementedExpertEngineServer struct{}

func (UnimplementedExpertEngineServer) Analyze(context.Context, *AnalyzeRequest) (*AnalyzeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Analyze not implemented")
}

func (UnimplementedExpertEngineServer) Remediate(context.Context, *RemediateRequest) (*RemediateResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Remediate not implemented")
}

func (UnimplementedExpertEngineServer) RecordOutcome(context.Context, *RecordOutcomeRequest) (*RecordOutcomeResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RecordOutcome not implemented")
}

func (UnimplementedExpertEngineServer) GetHistory(context.Context, *GetHistoryRequest) (*GetHistoryResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetHistory not implemented")
}

func (UnimplementedExpertEngineServer) ListPatterns(context.Context, *ListPatternsRequest) (*ListPatternsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method ListPatterns not implemented")
}

func (UnimplementedExpertEngineServer) Scan(context.Context, *ScanRequest) (*ScanResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Scan not implemented")
}

func (UnimplementedExpertEngineServer) GetTrends(context.Context, *GetTrendsRequest) (*GetTrendsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetTrends not implemented")
}

func (UnimplementedExpertEngineServer) GetLearningReport(context.Context, *GetLearningReportRequest) (*GetLearningReportResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetLearningReport not implemented")
}

// FullMethod returns the RPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unary[Req any, Resp any](method string, call func(ExpertEngineServer, context.Context, *Req) (*Resp, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ExpertEngineServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ExpertEngineServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// ServiceDesc describes the ExpertEngine service for grpc.Server.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ExpertEngineServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Analyze", Handler: unary("Analyze", ExpertEngineServer.Analyze)},
		{MethodName: "Remediate", Handler: unary("Remediate", ExpertEngineServer.Remediate)},
		{MethodName: "RecordOutcome", Handler: unary("RecordOutcome", ExpertEngineServer.RecordOutcome)},
		{MethodName: "GetHistory", Handler: unary("GetHistory", ExpertEngineServer.GetHistory)},
		{MethodName: "ListPatterns", Handler: unary("ListPatterns", ExpertEngineServer.ListPatterns)},
		{MethodName: "Scan", Handler: unary("Scan", ExpertEngineServer.Scan)},
		{MethodName: "GetTrends", Handler: unary("GetTrends", ExpertEngineServer.GetTrends)},
		{MethodName: "GetLearningReport", Handler: unary("GetLearningReport", ExpertEngineServer.GetLearningReport)},
	},
	Streams: []grpc.StreamDesc{},
}

// RegisterExpertEngineServer registers srv with s.
func RegisterExpertEngineServer(s grpc.ServiceRegistrar, srv ExpertEngineServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ExpertEngineClient calls the ExpertEngine service using the JSON codec.
type ExpertEngineClient struct {
	cc grpc.ClientConnInterface
}

// NewExpertEngineClient wraps an established connection.
func NewExpertEngineClient(cc grpc.ClientConnInterface) *ExpertEngineClient {
	return &ExpertEngineClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ExpertEngineClient) Analyze(ctx context.Context, in *AnalyzeRequest, opts ...grpc.CallOption) (*AnalyzeResponse, error) {
	return invoke[AnalyzeResponse](ctx, c.cc, "Analyze", in, opts)
}

func (c *ExpertEngineClient) Remediate(ctx context.Context, in *RemediateRequest, opts ...grpc.CallOption) (*RemediateResponse, error) {
	return invoke[RemediateResponse](ctx, c.cc, "Remediate", in, opts)
}

func (c *ExpertEngineClient) RecordOutcome(ctx context.Context, in *RecordOutcomeRequest, opts ...grpc.CallOption) (*RecordOutcomeResponse, error) {
	return invoke[RecordOutcomeResponse](ctx, c.cc, "RecordOutcome", in, opts)
}

func (c *ExpertEngineClient) GetHistory(ctx context.Context, in *GetHistoryRequest, opts ...grpc.CallOption) (*GetHistoryResponse, error) {
	return invoke[GetHistoryResponse](ctx, c.cc, "GetHistory", in, opts)
}

func (c *ExpertEngineClient) ListPatterns(ctx context.Context, in *ListPatternsRequest, opts ...grpc.CallOption) (*ListPatternsResponse, error) {
	return invoke[ListPatternsResponse](ctx, c.cc, "ListPatterns", in, opts)
}

func (c *ExpertEngineClient) Scan(ctx context.Context, in *ScanRequest, opts ...grpc.CallOption) (*ScanResponse, error) {
	return invoke[ScanResponse](ctx, c.cc, "Scan", in, opts)
}

func (c *ExpertEngineClient) GetTrends(ctx context.Context, in *GetTrendsRequest, opts ...grpc.CallOption) (*GetTrendsResponse, error) {
	return invoke[GetTrendsResponse](ctx, c.cc, "GetTrends", in, opts)
}

func (c *ExpertEngineClient) GetLearningReport(ctx context.Context, in *GetLearningReportRequest, opts ...grpc.CallOption) (*GetLearningReportResponse, error) {
	return invoke[GetLearningReportResponse](ctx, c.cc, "GetLearningReport", in, opts)
}
