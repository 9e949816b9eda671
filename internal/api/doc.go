// Package api hosts the HTTP server, middleware, and REST handlers. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/v1/earthquakes/latest for the newest catalog events.
//   - POST /api/v1/backfill/runs to start a backfill and GET to follow it.
package api
