package observability

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/KoushikPanda1729/client-ui/internal/platform/requestctx"
)

const instrumentationName = "github.com/KoushikPanda1729/client-ui/internal/platform/observability"

var (
	tracer     = otel.Tracer(instrumentationName)
	propagator = propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
)

// TraceMiddleware continues an incoming W3C trace, starts a server span and records trace ids on the context.
func TraceMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, r.Method+" "+sanitizeString(r.URL.Path, 120), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()

		span.SetAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", sanitizeString(r.URL.Path, 180)),
			attribute.String("user_agent.original", sanitizeString(r.UserAgent(), 200)),
		)

		sc := span.SpanContext()
		ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{
			TraceID: sc.TraceID().String(),
			SpanID:  sc.SpanID().String(),
			Sampled: sc.IsSampled(),
		})
		propagator.Inject(ctx, propagation.HeaderCarrier(w.Header()))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
