// Copyright 2021 Upbound Inc
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package opentelemetry

import (
	"context"
	"log"
	"time"

	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/upbound/livequery/internal/livequery"
)

var (
	runsStarted        metric.Int64Counter
	runsCompleted      metric.Int64Counter
	runDuration        metric.Float64Histogram
	invalidationsTotal metric.Int64Counter
	activeRecordsGauge metric.Int64UpDownCounter
)

func init() {
	exporter, err := prometheus.New()
	if err != nil {
		log.Fatal(err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter("upbound.io/livequery")

	runsStarted, err = meter.Int64Counter("livequery.runs.started",
		metric.WithDescription("Total number of scheduler runs started"),
		metric.WithUnit("1"))
	if err != nil {
		panic(err)
	}

	runsCompleted, err = meter.Int64Counter("livequery.runs.completed",
		metric.WithDescription("Total number of scheduler runs completed"),
		metric.WithUnit("1"))
	if err != nil {
		panic(err)
	}

	runDuration, err = meter.Float64Histogram("livequery.run.duration",
		metric.WithDescription("Time taken to execute and re-index one scheduler run"),
		metric.WithUnit("ms"))
	if err != nil {
		panic(err)
	}

	invalidationsTotal, err = meter.Int64Counter("livequery.invalidations.total",
		metric.WithDescription("Total number of identifiers passed to Invalidate"),
		metric.WithUnit("1"))
	if err != nil {
		panic(err)
	}

	activeRecordsGauge, err = meter.Int64UpDownCounter("livequery.active_records",
		metric.WithDescription("Number of live query records currently tracked by the store"),
		metric.WithUnit("1"))
	if err != nil {
		panic(err)
	}
}

// StoreInstrumentation implements livequery.Instrumentation, emitting both
// OpenTelemetry traces and Prometheus-backed metrics for every run the
// scheduler performs and every record the dispatcher creates or
// terminates.
type StoreInstrumentation struct{}

var _ livequery.Instrumentation = StoreInstrumentation{}

// RecordCreated increments the active record gauge.
func (StoreInstrumentation) RecordCreated() {
	activeRecordsGauge.Add(context.Background(), 1)
}

// RecordTerminated decrements the active record gauge.
func (StoreInstrumentation) RecordTerminated() {
	activeRecordsGauge.Add(context.Background(), -1)
}

// Invalidated records the number of identifiers an Invalidate call carried.
func (StoreInstrumentation) Invalidated(ids []string) {
	invalidationsTotal.Add(context.Background(), int64(len(ids)))
}

// RunStarted opens a span and starts a timer for one scheduler run.
func (StoreInstrumentation) RunStarted(operationName string) livequery.RunHandle {
	runsStarted.Add(context.Background(), 1, metric.WithAttributes(operation.String(operationName)))
	span := tracing{}.runStarted(operationName)
	return &instrumentedRun{span: span, operationName: operationName, started: time.Now()}
}

type instrumentedRun struct {
	span          *runSpan
	operationName string
	started       time.Time
}

// Complete records completion metrics and closes the run's span.
func (r *instrumentedRun) Complete(identifierCountN int, failed bool) {
	ms := time.Since(r.started).Milliseconds()
	attrs := metric.WithAttributes(operation.String(r.operationName), success.Bool(!failed))
	runsCompleted.Add(context.Background(), 1, attrs)
	runDuration.Record(context.Background(), float64(ms), attrs)
	r.span.Complete(identifierCountN, failed)
}
