package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"

	"conceptdeck-engine/internal/application/ports"
	"conceptdeck-engine/internal/domain/category"
	"conceptdeck-engine/internal/domain/concept"
)

// TracerProvider wraps OpenTelemetry tracer provider
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// InitTracing initializes distributed tracing
func InitTracing(serviceName, environment, endpoint string) (*TracerProvider, error) {
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithEndpoint(endpoint),
			otlptracegrpc.WithInsecure(), // Use TLS in production
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create exporter: %w", err)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(serviceName),
			semconv.DeploymentEnvironment(environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()), // Adjust sampling in production
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &TracerProvider{
		provider: tp,
		tracer:   tp.Tracer(serviceName),
	}, nil
}

// Shutdown gracefully shuts down the tracer provider
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	return tp.provider.Shutdown(ctx)
}

// StartSpan starts a new span
func (tp *TracerProvider) StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return tp.tracer.Start(ctx, name, opts...)
}

// TraceStore wraps a persistence store with per-call spans.
func TraceStore(store ports.PersistenceAPI, tracer trace.Tracer) ports.PersistenceAPI {
	return &tracedStore{
		inner:  store,
		tracer: tracer,
	}
}

type tracedStore struct {
	inner  ports.PersistenceAPI
	tracer trace.Tracer
}

func (s *tracedStore) FetchConceptsByCategory(ctx context.Context) (map[string][]*concept.Concept, error) {
	ctx, span := s.tracer.Start(ctx, "store.FetchConceptsByCategory")
	defer span.End()

	mapping, err := s.inner.FetchConceptsByCategory(ctx)
	if err != nil {
		span.RecordError(err)
	}

	return mapping, err
}

func (s *tracedStore) RenameCategory(ctx context.Context, categoryPath []string, newName string) error {
	ctx, span := s.tracer.Start(ctx, "store.RenameCategory",
		trace.WithAttributes(
			attribute.String("category.path", category.Join(categoryPath)),
			attribute.String("category.new_name", newName),
		),
	)
	defer span.End()

	err := s.inner.RenameCategory(ctx, categoryPath, newName)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

func (s *tracedStore) MoveCategory(ctx context.Context, categoryPath, newParentPath []string) error {
	ctx, span := s.tracer.Start(ctx, "store.MoveCategory",
		trace.WithAttributes(
			attribute.String("category.path", category.Join(categoryPath)),
			attribute.String("category.new_parent", category.Join(newParentPath)),
		),
	)
	defer span.End()

	err := s.inner.MoveCategory(ctx, categoryPath, newParentPath)
	if err != nil {
		span.RecordError(err)
	}

	return err
}

func (s *tracedStore) CreateConcept(ctx context.Context, c *concept.Concept) (*concept.Concept, error) {
	ctx, span := s.tracer.Start(ctx, "store.CreateConcept",
		trace.WithAttributes(
			attribute.String("concept.category", c.Category),
		),
	)
	defer span.End()

	created, err := s.inner.CreateConcept(ctx, c)
	if err != nil {
		span.RecordError(err)
	}

	return created, err
}

func (s *tracedStore) UpdateConceptCategory(ctx context.Context, conceptID, newCategory string) error {
	ctx, span := s.tracer.Start(ctx, "store.UpdateConceptCategory",
		trace.WithAttributes(
			attribute.String("concept.id", conceptID),
			attribute.String("concept.category", newCategory),
		),
	)
	defer span.End()

	err := s.inner.UpdateConceptCategory(ctx, conceptID, newCategory)
	if err != nil {
		span.RecordError(err)
	}

	return err
}
