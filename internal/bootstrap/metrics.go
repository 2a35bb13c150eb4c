// Copyright 2026 The Marketbase Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package bootstrap

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// metrics holds the bootstrap instruments. All methods are nil-safe so
// unmetered Bootstrappers (tests, CLIs) pay nothing.
type metrics struct {
	retries  metric.Int64Counter
	outcomes metric.Int64Counter
	duration metric.Float64Histogram
}

// RegisterMetrics installs OpenTelemetry instruments on the
// Bootstrapper. Call before Run.
func (b *Bootstrapper) RegisterMetrics(meter metric.Meter) error {
	retries, err := meter.Int64Counter(
		"bootstrap_fetch_retries_total",
		metric.WithDescription("Retries performed during session bootstrap fetches"),
	)
	if err != nil {
		return fmt.Errorf("failed to create retry counter: %w", err)
	}

	outcomes, err := meter.Int64Counter(
		"bootstrap_outcomes_total",
		metric.WithDescription("Terminal session bootstrap outcomes by status and error class"),
	)
	if err != nil {
		return fmt.Errorf("failed to create outcome counter: %w", err)
	}

	duration, err := meter.Float64Histogram(
		"bootstrap_duration_seconds",
		metric.WithDescription("Wall-clock duration of the session bootstrap sequence"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return fmt.Errorf("failed to create duration histogram: %w", err)
	}

	b.metrics = &metrics{retries: retries, outcomes: outcomes, duration: duration}
	return nil
}

func (m *metrics) countRetry(ctx context.Context, what string) {
	if m == nil {
		return
	}
	m.retries.Add(ctx, 1, metric.WithAttributes(attribute.String("fetch", what)))
}

func (m *metrics) countOutcome(ctx context.Context, outcome, class string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("outcome", outcome)}
	if class != "" {
		attrs = append(attrs, attribute.String("error_class", class))
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.duration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attrs...))
}
