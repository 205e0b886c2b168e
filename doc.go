// Package backend provides the Pulsefeed trend computation engine.

// This package contains the main application entry point. The actual
// documentation is organized into subpackages:

// - internal/trends: the engine core (signal ingestion, minute-bucket
//   aggregation, scoring, snapshot publishing, refresh job, query service)
// - internal/handlers: HTTP request handlers for the trending API
// - internal/models: Data models and database schemas
// - internal/database: Database connection and migrations
// - internal/config: Engine configuration from environment variables
// - internal/cache: Redis response caching
// - internal/metrics: Prometheus instrumentation
// - internal/telemetry: OpenTelemetry tracing
// - internal/middleware: HTTP middleware (request ids, request logging)
// - internal/seed: Development data seeding

// Entry points live under cmd/: the API server, the admin CLI, and the
// seeder.
package backend
