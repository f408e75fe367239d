// Copyright 2025 The Linux Foundation. All rights reserved.
// Use of this source code is governed by an Apache-2.0-style
// license that can be found in the LICENSE file.

// Package metrics holds the submitter's OpenTelemetry instruments.
// Without a configured meter provider the instruments are no-ops, so
// the CLI can record unconditionally.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	ometric "go.opentelemetry.io/otel/metric"
)

// Metrics are the counters recorded over a submission run.
type Metrics struct {
	slog *slog.Logger

	runs     ometric.Int64Counter
	pushes   ometric.Int64Counter
	retries  ometric.Int64Counter
	comments ometric.Int64Counter
}

// New creates the instruments on the global meter provider.
// It panics if an instrument cannot be created.
func New(lg *slog.Logger) *Metrics {
	m := &Metrics{slog: lg}
	meter := otel.Meter("github2gerrit")
	m.runs = newCounter(lg, meter, "runs", "number of submission pipeline runs")
	m.pushes = newCounter(lg, meter, "pushes", "number of pushes to Gerrit")
	m.retries = newCounter(lg, meter, "retries", "number of retried external commands")
	m.comments = newCounter(lg, meter, "comments", "number of comments posted back to GitHub")
	return m
}

// newCounter creates an integer counter instrument.
// It panics if the counter cannot be created.
func newCounter(lg *slog.Logger, meter ometric.Meter, name, description string) ometric.Int64Counter {
	c, err := meter.Int64Counter("github2gerrit/"+name, ometric.WithDescription(description))
	if err != nil {
		lg.Error("counter creation failed", "name", name)
		panic(err)
	}
	return c
}

// Run records the start of a pipeline run with its outcome mode.
func (m *Metrics) Run(ctx context.Context, mode string) {
	m.runs.Add(ctx, 1, ometric.WithAttributes(attribute.String("mode", mode)))
}

// Push records a completed push of n changes.
func (m *Metrics) Push(ctx context.Context, n int) {
	m.pushes.Add(ctx, 1, ometric.WithAttributes(attribute.Int("changes", n)))
}

// Retry records a retried external command.
func (m *Metrics) Retry(ctx context.Context) {
	m.retries.Add(ctx, 1)
}

// Comment records a comment posted back to the pull request.
func (m *Metrics) Comment(ctx context.Context) {
	m.comments.Add(ctx, 1)
}
