/*
Package httpserver runs the worker's operational HTTP surface.

Endpoints:

  - GET /livez: always 200 while the process runs
  - GET /readyz: 200 once the worker registered with the job source, 503 before
    and after shutdown began
  - GET /status: JSON snapshot of the job loop (busy flag, current stage, last
    job and outcome, counters)
  - /debug/pprof/*: when pprof is enabled

Prometheus metrics are served by a second listener on MetricsAddr so that the
status port can stay private while metrics are scraped.

Additional routes can be mounted at construction time; the development job
source server uses this to expose its API next to the health endpoints.
*/
package httpserver
