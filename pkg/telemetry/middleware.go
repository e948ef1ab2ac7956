package telemetry

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const (
	AttrTileKey    = attribute.Key("tile.key")
	AttrTileSource = attribute.Key("tile.source")
)

type middlewareConfig struct {
	provider trace.TracerProvider
	skip     map[string]bool
}

type Option func(*middlewareConfig)

// WithTracerProvider overrides the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *middlewareConfig) {
		c.provider = tp
	}
}

// WithSkipRoutes disables tracing for the given gin route patterns.
func WithSkipRoutes(routes ...string) Option {
	return func(c *middlewareConfig) {
		for _, r := range routes {
			c.skip[r] = true
		}
	}
}

// GinMiddleware starts a server span per request, named after the matched
// route. Tile requests also carry the tile key and whether the bytes came
// from the cache or the network.
func GinMiddleware(serviceName string, opts ...Option) gin.HandlerFunc {
	cfg := middlewareConfig{skip: map[string]bool{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.provider == nil {
		cfg.provider = otel.GetTracerProvider()
	}
	tracer := cfg.provider.Tracer(tracerName)

	return func(c *gin.Context) {
		route := c.FullPath()
		if cfg.skip[route] {
			c.Next()
			return
		}
		if route == "" {
			route = "unmatched"
		}

		propagator := otel.GetTextMapPropagator()
		ctx := propagator.Extract(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))

		ctx, span := tracer.Start(ctx, c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.ServiceName(serviceName),
				semconv.HTTPRequestMethodKey.String(c.Request.Method),
				semconv.HTTPRoute(route),
				semconv.URLPath(c.Request.URL.Path),
				semconv.ClientAddress(c.ClientIP()),
			),
		)
		defer span.End()

		c.Request = c.Request.WithContext(ctx)
		propagator.Inject(ctx, propagation.HeaderCarrier(c.Writer.Header()))

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(
			semconv.HTTPResponseStatusCode(status),
			attribute.Int("http.response.size", c.Writer.Size()),
		)
		if z := c.Param("z"); z != "" {
			span.SetAttributes(AttrTileKey.String(z + "/" + c.Param("x") + "/" + c.Param("y")))
		}
		if source := c.Writer.Header().Get("X-Tile-Source"); source != "" {
			span.SetAttributes(AttrTileSource.String(source))
		}

		for _, err := range c.Errors {
			span.RecordError(err.Err)
		}
		if status >= 500 {
			span.SetStatus(codes.Error, c.Errors.String())
		}
	}
}
