// Package telemetry provides observability instrumentation for mangasync.
//
// The package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing behind a single
// Telemetry handle that library components accept as an option. Components
// built without one fall back to Nop, which discards everything.
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = version
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("presenter")
//	logger = logger.WithEngineID(id).WithMangaID(mangaID)
//	logger.WithError(err).Warn("chapter sync failed")
//
// # Tracing
//
// Interactors run inside StartOperation, which opens an "interactor.<name>"
// span and returns a logger carrying the trace and span ids. Remote source
// calls go through RecordSourceOperation:
//
//	err := tel.RecordSourceOperation(ctx, source.Name(), "fetch_chapters", func(ctx context.Context) error {
//	    chapters, err = source.FetchChapterList(ctx, info)
//	    return err
//	})
//
// Supported exporters: "otlp" (gRPC), "stdout" (written to stderr) and "none".
//
// # Metrics
//
// Key metrics exposed under the configured namespace:
//
//   - reductions_total{engine}
//   - effect_runs_total{effect,result}
//   - effect_duration_seconds{effect}
//   - engines_active, engine_subscribers
//   - upserts_total{result}, deletes_total{result}
//   - chapter_changes_total{kind}
//   - install_steps_total{step}
//   - source_calls_total{source,operation}, source_errors_total{source,operation}
//   - errors_by_class_total{class}
//
// A disabled or nil *Metrics accepts every call and records nothing.
//
// # Events
//
// Failures on best-effort paths (side effects, swallowed deletes) are
// published as events rather than returned:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Message)
//	}, telemetry.FilterByLevel(telemetry.EventLevelWarning))
//
// Async publishers batch events and flush on MaxBatchSize or FlushInterval,
// whichever comes first. Shutdown delivers whatever is still buffered.
package telemetry
