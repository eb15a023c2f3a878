// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package apply

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for the applicator.
var (
	tracer = otel.Tracer("diffapply.apply")
	meter  = otel.Meter("diffapply.apply")
)

// correlationIDKeyType is an unexported context-key type so the
// correlation ID this package stashes on ctx can never collide with a
// key another package puts there.
type correlationIDKeyType struct{}

var correlationIDKey correlationIDKeyType

// withCorrelationID attaches id to ctx for the duration of a single
// Apply call, so every stage span and slog line it reaches can be
// joined back to the same call.
func withCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// correlationIDFromContext returns the correlation ID withCorrelationID
// attached to ctx, or "" if none was set.
func correlationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// Metrics for the three-stage applicator.
var (
	applyLatency   metric.Float64Histogram
	applyTotal     metric.Int64Counter
	stageTotal     metric.Int64Counter
	confidenceHist metric.Float64Histogram

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the package metrics. Safe to call multiple times;
// only the first call does any work.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		applyLatency, err = meter.Float64Histogram(
			"diffapply_apply_duration_seconds",
			metric.WithDescription("Duration of a single Apply call"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		applyTotal, err = meter.Int64Counter(
			"diffapply_apply_total",
			metric.WithDescription("Total number of Apply calls by terminal status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		stageTotal, err = meter.Int64Counter(
			"diffapply_stage_total",
			metric.WithDescription("Total number of hunks resolved by each pipeline stage"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		confidenceHist, err = meter.Float64Histogram(
			"diffapply_fuzzy_confidence",
			metric.WithDescription("Fuzzy locator confidence for Stage C hunk resolutions"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// startApplySpan starts the top-level span for an Apply call, tagging it
// with the call's correlation ID so it can be joined with the stage-level
// slog lines the same call produces.
func startApplySpan(ctx context.Context, correlationID, targetPath string, hunkCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "apply.Apply",
		trace.WithAttributes(
			attribute.String("diffapply.correlation_id", correlationID),
			attribute.String("diffapply.target_path", targetPath),
			attribute.Int("diffapply.hunk_count", hunkCount),
		),
	)
}

// startStageSpan starts a span for a single pipeline stage attempt.
func startStageSpan(ctx context.Context, stage string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "apply."+stage)
}

// recordApplyMetrics records the terminal outcome of a single Apply call.
func recordApplyMetrics(ctx context.Context, status string, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("status", status))
	applyLatency.Record(ctx, duration.Seconds(), attrs)
	applyTotal.Add(ctx, 1, attrs)
}

// recordStageOutcome records that a stage resolved a hunk with the given
// outcome ("succeeded", "failed", "already_applied").
func recordStageOutcome(ctx context.Context, stage, outcome string) {
	if err := initMetrics(); err != nil {
		return
	}
	stageTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("stage", stage),
		attribute.String("outcome", outcome),
	))
}

// recordConfidence records a Stage C fuzzy-locate confidence value.
func recordConfidence(ctx context.Context, confidence float64) {
	if err := initMetrics(); err != nil {
		return
	}
	confidenceHist.Record(ctx, confidence)
}
