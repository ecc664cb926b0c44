/*
Package api defines the HTTP/JSON protocol between the provisioning worker
and its remote job source.

The jobsource subpackage holds both sides of it: the Client used by the
worker and a Handler implementing the server side with an in-memory queue,
used for local development and tests.

# Endpoints

All requests carry "Authorization: Bearer <token>".

  - POST /api/v1/worker/register            body RegisterWorkerRequest; 409 if known
  - GET  /api/v1/worker/{worker_id}/job     200 interfaces.Job, 204 if none pending
  - POST /api/v1/worker/{worker_id}/job/{job_id}/status  body JobStatusRequest

Any non-2xx response carries a plain-text error message in its body.
*/
package api
