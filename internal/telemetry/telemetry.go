// Package telemetry provides OpenTelemetry span and metric helpers, the
// way the teacher's storage/dolt package instruments SQL calls.
// commitengine's Commit, Merge and Transplant open and end their own
// spans through these helpers, passing context explicitly; refs,
// readpath and gc are not instrumented.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/newffy/nessie")

var metrics struct {
	commits       metric.Int64Counter
	commitRetries metric.Int64Counter
	mergeConflicts metric.Int64Counter
}

func init() {
	m := otel.Meter("github.com/newffy/nessie")
	metrics.commits, _ = m.Int64Counter("nessie.commits",
		metric.WithDescription("Successful commits written"),
		metric.WithUnit("{commit}"),
	)
	metrics.commitRetries, _ = m.Int64Counter("nessie.commit_retries",
		metric.WithDescription("CAS attempts that lost the race on the global pointer"),
		metric.WithUnit("{retry}"),
	)
	metrics.mergeConflicts, _ = m.Int64Counter("nessie.merge_conflicts",
		metric.WithDescription("Conflicting keys detected during merges"),
		metric.WithUnit("{key}"),
	)
}

// EndSpan records err (if non-nil) and ends span, mirroring the
// teacher's endSpan helper.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartOperation starts a span named "nessie.<op>" tagged with
// refName, for wrapping a single commitengine/refs/readpath call.
func StartOperation(ctx context.Context, op, refName string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "nessie."+op, trace.WithAttributes(
		attribute.String("nessie.reference", refName),
	))
}

// RecordCommit increments the commit counter.
func RecordCommit(ctx context.Context) {
	metrics.commits.Add(ctx, 1)
}

// RecordCommitRetry increments the CAS-retry counter.
func RecordCommitRetry(ctx context.Context) {
	metrics.commitRetries.Add(ctx, 1)
}

// RecordMergeConflicts increments the merge-conflict counter by n.
func RecordMergeConflicts(ctx context.Context, n int) {
	if n <= 0 {
		return
	}
	metrics.mergeConflicts.Add(ctx, int64(n))
}
