// Package main hosts the crawl service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes crawl submission, session state,
//     history, health, and metrics endpoints. Requests are validated, registered
//     in the SessionStore, and handed to a bounded background pool.
//   - Queue worker: when an AMQP URL is configured, internal/queue.Worker
//     consumes crawl requests one at a time (prefetch 1), drives the same
//     orchestrator, and publishes progress and result messages back through the
//     topic exchange.
//   - Crawl pipeline: internal/crawl.Orchestrator opens one browser tab per
//     session, collects article links from the listing page with scroll retries,
//     then extracts each article through prioritized selector chains. The tab is
//     closed on every exit path.
//   - Persistence: finished session snapshots go to the configured archive
//     backend (filesystem JSON, Postgres via pgx, or Redis with TTL). The
//     Postgres backend also serves the read-only /history endpoints.
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus collectors are fed from the crawl
//     progress-event stream and exported at /metrics.
//
// Operational notes:
//   - Concurrency model: bounded submit backlog + fixed pool for API-initiated
//     sessions; the queue worker is strictly serial. Shutdown is coordinated via
//     context cancellation from main.
//   - Run locally: go run ./cmd/crawlerd -config config.yaml (or rely on
//     CRAWLER_* env overrides).
package main
