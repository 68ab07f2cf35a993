// Package api hosts the HTTP server, middleware, and REST handlers. Notable
// routes:
//   - GET /healthz and /readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/scrapes to submit a run; ?wait=true runs it inline and returns
//     the result table.
//   - GET /v1/scrapes and /v1/scrapes/{run_id} for run status and results.
package api
