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

package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	google "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/jaeger"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/crossplane/crossplane-runtime/pkg/errors"
	"github.com/crossplane/crossplane-runtime/pkg/logging"

	"github.com/upbound/livequery/internal"
	"github.com/upbound/livequery/internal/demo"
	"github.com/upbound/livequery/internal/livequery"
	"github.com/upbound/livequery/internal/opentelemetry"
	hprobe "github.com/upbound/livequery/internal/server/health"
	"github.com/upbound/livequery/internal/transport"
	"github.com/upbound/livequery/internal/version"
)

func main() { //nolint:gocyclo
	var (
		app          = kingpin.New(filepath.Base(os.Args[0]), "An in-process live-query GraphQL store.").DefaultEnvars()
		debug        = app.Flag("debug", "Enable debug logging.").Short('d').Bool()
		port         = app.Flag("listen-port", "Port for the live-query HTTP and WebSocket transport.").Default("8080").Int()
		health       = app.Flag("health", "Enable health endpoints.").Default("true").Bool()
		healthPort   = app.Flag("health-port", "Port used for readyz and livez requests.").Default("8088").Int()
		metricsPort  = app.Flag("metrics-port", "Port used to serve Prometheus metrics.").Default("8089").Int()
		tracerName   = app.Flag("tracer-name", "Tracer backend to use.").Default("").Enum("", "jaeger", "gcp")
		otelEndpoint = app.Flag("otel-endpoint", "Address of the tracing agent or collector.").String()
		otelInsecure = app.Flag("otel-insecure", "Disable TLS when dialing the tracing exporter.").Default("true").Bool()
		demoSchema   = app.Flag("demo-schema", "Serve the bundled demo counter schema instead of an operator-supplied one.").Default("true").Bool()
		includeIDs   = app.Flag("include-identifier-extension", "Include extensions.liveResourceIdentifier on every live result.").Bool()
		idFieldName  = app.Flag("id-field-name", "Field name the object-identifier rule looks for on each type.").Default("id").String()
	)
	app.Version(version.Version)
	kingpin.MustParse(app.Parse(os.Args[1:]))

	zcfg := zap.NewProductionConfig()
	if *debug {
		zcfg = zap.NewDevelopmentConfig()
	}
	zl, err := zcfg.Build()
	kingpin.FatalIfError(err, "cannot build zap logger")
	log := logging.NewLogrLogger(zapr.NewLogger(zl).WithName("livequery"))

	res := resource.NewSchemaless(attribute.String("service.name", "upbound.io/livequery"))

	switch *tracerName {
	case "jaeger":
		log.Debug("Enabling Jaeger tracer", "endpoint", *otelEndpoint)
		exp, err := jaeger.New(jaeger.WithAgentEndpoint(jaeger.WithAgentHost(*otelEndpoint)))
		kingpin.FatalIfError(err, "cannot create OpenTelemetry Jaeger exporter")
		tp := trace.NewTracerProvider(trace.WithResource(res), trace.WithBatcher(exp))
		defer func() {
			kingpin.FatalIfError(tp.Shutdown(context.Background()), "cannot shutdown Jaeger exporter")
		}()
		otel.SetTracerProvider(tp)
	case "gcp":
		log.Debug("Enabling GCP tracer")
		exp, err := google.New()
		kingpin.FatalIfError(err, "cannot create OpenTelemetry GCP exporter")
		tp := trace.NewTracerProvider(trace.WithResource(res), trace.WithBatcher(exp))
		defer func() {
			kingpin.FatalIfError(tp.Shutdown(context.Background()), "cannot shutdown GCP exporter")
		}()
		otel.SetTracerProvider(tp)
	}
	_ = otelInsecure // reserved for exporters that grow a WithInsecure dial option

	storeOpts := []livequery.Option{
		livequery.WithIncludeIdentifierExtension(*includeIDs),
		livequery.WithIDFieldName(*idFieldName),
		livequery.WithInstrumentation(opentelemetry.StoreInstrumentation{}),
	}
	store := livequery.New(storeOpts...)

	var sch = demo.Schema(&demo.Counter{})
	if !*demoSchema {
		kingpin.Fatalf("no operator-supplied schema wiring is configured; pass --demo-schema")
	}

	mainSrv := transport.Server(transport.Options{Port: *port}, store, sch, log)
	metricsSrv := &http.Server{
		Addr:              ":" + strconv.Itoa(*metricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	var healthSrv *http.Server
	if *health {
		var err error
		healthSrv, err = hprobe.Server(internal.HealthOptions{Health: *health, HealthPort: *healthPort}, log)
		kingpin.FatalIfError(err, "cannot build health server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	serve(g, gctx, log, "live-query", mainSrv)
	serve(g, gctx, log, "metrics", metricsSrv)
	if healthSrv != nil {
		serve(g, gctx, log, "health", healthSrv)
	}

	<-gctx.Done()
	log.Debug("Shutting down")
	kingpin.FatalIfError(g.Wait(), "server exited unexpectedly")
}

// serve runs srv in its own goroutine within g, and arranges for it to shut
// down gracefully once ctx is done (the process received SIGINT/SIGTERM, or
// a sibling server in the group failed).
func serve(g *errgroup.Group, ctx context.Context, log logging.Logger, name string, srv *http.Server) {
	g.Go(func() error {
		log.Debug("Listening for connections", "server", name, "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrapf(err, "%s server stopped unexpectedly", name)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}
