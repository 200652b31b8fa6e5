package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// StartSweepSpan starts the root span of one benchmark sweep.
func StartSweepSpan(ctx context.Context, tracer trace.Tracer, benchmark, distribution string, ranks int) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "collbench "+benchmark,
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	span.SetAttributes(
		attribute.String("collbench.benchmark", benchmark),
		attribute.Int("collbench.ranks", ranks),
	)
	if distribution != "" {
		span.SetAttributes(attribute.String("collbench.distribution", distribution))
	}
	return ctx, span
}

// StartSizeSpan starts the span of one message size.
func StartSizeSpan(ctx context.Context, tracer trace.Tracer, size, iterations, skip int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "measure size",
		trace.WithAttributes(
			attribute.Int("collbench.size", size),
			attribute.Int("collbench.iterations", iterations),
			attribute.Int("collbench.skip", skip),
		),
	)
}

// LatencyAttributes describes a finished size in microseconds.
func LatencyAttributes(avg, min, max float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Float64("collbench.latency.avg_us", avg),
		attribute.Float64("collbench.latency.min_us", min),
		attribute.Float64("collbench.latency.max_us", max),
	}
}

// EndSpan finishes a span, recording error status if applicable.
func EndSpan(span trace.Span, err error, attrs ...attribute.KeyValue) {
	if len(attrs) > 0 {
		span.SetAttributes(attrs...)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// grpcMetadataCarrier adapts grpc metadata.MD to the OTel TextMapCarrier interface.
type grpcMetadataCarrier metadata.MD

func (c grpcMetadataCarrier) Get(key string) string {
	vals := metadata.MD(c).Get(key)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func (c grpcMetadataCarrier) Set(key, value string) {
	metadata.MD(c).Set(key, value)
}

func (c grpcMetadataCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

// InjectGRPCMetadata injects W3C trace context into gRPC metadata.
func InjectGRPCMetadata(ctx context.Context, md metadata.MD) {
	otel.GetTextMapPropagator().Inject(ctx, grpcMetadataCarrier(md))
}

// ExtractGRPCMetadata returns ctx carrying the remote span context found in md.
func ExtractGRPCMetadata(ctx context.Context, md metadata.MD) context.Context {
	return otel.GetTextMapPropagator().Extract(ctx, grpcMetadataCarrier(md))
}

// UnaryClientInterceptor propagates the caller's trace context to the
// coordinator.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		md, ok := metadata.FromOutgoingContext(ctx)
		if ok {
			md = md.Copy()
		} else {
			md = metadata.New(nil)
		}
		InjectGRPCMetadata(ctx, md)
		return invoker(metadata.NewOutgoingContext(ctx, md), method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor records a server span per coordinator call, parented
// to the caller's propagated context.
func UnaryServerInterceptor(tracer trace.Tracer) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			ctx = ExtractGRPCMetadata(ctx, md)
		}
		ctx, span := tracer.Start(ctx, info.FullMethod,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(attribute.String("rpc.system", "grpc")),
		)
		resp, err := handler(ctx, req)
		EndSpan(span, err)
		return resp, err
	}
}

// defaultPropagator is installed by Init.
func defaultPropagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}
