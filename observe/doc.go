// Package observe provides telemetry for outbound service calls: traced
// spans, call metrics including resilience outcomes, and structured
// logging with credential redaction.
//
// An Observer owns the OpenTelemetry providers; Middleware instruments
// one call:
//
//	obs, err := observe.NewObserver(ctx, observe.Config{
//	    ServiceName: "vocablens",
//	    Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
//	    Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
//	})
//	mw, err := observe.MiddlewareFromObserver(obs)
//
//	result, err := mw.Do(ctx, observe.CallMeta{Service: "images", Operation: "search"},
//	    func(ctx context.Context) (any, error) {
//	        return searchImages(ctx, query)
//	    })
//
// Spans are named call.exec.<service>.<operation>. Metrics cover call
// totals, errors, and duration, plus cache hits and misses, rate-limit
// and breaker rejections, and retry attempts recorded by the layer that
// composes the call pipeline.
package observe
