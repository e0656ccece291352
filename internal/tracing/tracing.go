// Package tracing wraps OpenTelemetry span creation for turn-level
// observability: one root span per conversation turn, child spans per
// model call and per tool call, following the teacher's
// internal/agent/loop_tracing.go shape (root span + emitLLMSpan/
// emitToolSpan) but built directly on go.opentelemetry.io/otel rather than
// the teacher's bespoke store.SpanData collector, since this module has no
// span-storage table of its own.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/nextlevelbuilder/goclaw/internal/supervisor"

func tracer() trace.Tracer { return otel.Tracer(instrumentationName) }

// StartTurn opens the root span for one conversation turn.
func StartTurn(ctx context.Context, sessionID, agentID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "turn",
		trace.WithAttributes(
			attribute.String("session_id", sessionID),
			attribute.String("agent_id", agentID),
		),
	)
}

// StartModelCall opens a child span around one request/response exchange
// with the model agent.
func StartModelCall(ctx context.Context, model string, iteration int) (context.Context, trace.Span) {
	return tracer().Start(ctx, "model_call",
		trace.WithAttributes(
			attribute.String("model", model),
			attribute.Int("iteration", iteration),
		),
	)
}

// StartToolCall opens a child span around one tool invocation.
func StartToolCall(ctx context.Context, toolName, toolUseID string) (context.Context, trace.Span) {
	return tracer().Start(ctx, "tool_call",
		trace.WithAttributes(
			attribute.String("tool_name", toolName),
			attribute.String("tool_use_id", toolUseID),
		),
	)
}

// End closes span, recording err as its terminal status when non-nil —
// matching the teacher's Status{Completed,Error} vocabulary.
func End(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
