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

// Package opentelemetry instruments a *livequery.Store with OpenTelemetry
// traces and metrics. Unlike a gqlgen-generated handler, this store hand-
// rolls its own scheduler and dispatcher, so instrumentation attaches
// directly to livequery.Instrumentation rather than to a chain of
// graphql.HandlerExtension interceptors.
package opentelemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.GetTracerProvider().Tracer("upbound.io/livequery")

// runSpan is a livequery.RunHandle backed by an open span, started when a
// scheduler run begins and closed when StoreInstrumentation.RunStarted's
// caller calls Complete.
type runSpan struct {
	span trace.Span
}

func (r *runSpan) Complete(count int, failed bool) {
	r.span.SetAttributes(isLive.Bool(true), identifierCount.Int(count))
	if failed {
		r.span.SetStatus(codes.Error, "run completed with errors")
	}
	r.span.End()
}

// tracing implements the tracing half of StoreInstrumentation.
type tracing struct{}

func (tracing) runStarted(operationName string) *runSpan {
	_, span := tracer.Start(context.Background(), operationName, trace.WithAttributes(operation.String(operationName)))
	return &runSpan{span: span}
}
