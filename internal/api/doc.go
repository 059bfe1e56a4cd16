// Package api hosts the HTTP server, middleware, and REST handlers for
// operator access. Notable routes:
//   - POST /crawl to start a crawl session in the background.
//   - GET /sessions and /sessions/{id} for live session state.
//   - DELETE /sessions/{id} to drop a finished session.
//   - GET /history... for archived sessions via the HistoryReader interface.
//   - GET /health for liveness plus backend/broker connectivity.
//   - GET /metrics for Prometheus scraping.
package api
