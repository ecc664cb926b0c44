// Package main (cmd/jobsource-server) runs an in-memory job source for
// development and end-to-end testing of the provisioning worker.
//
// It serves the worker-facing API (register, poll, report) plus two operator
// endpoints:
//
//	POST /api/v1/jobs                   enqueue {"first_name","last_name","email"}
//	GET  /api/v1/jobs/{job_id}/status   fetch the reported outcome
//
// All requests must carry "Authorization: Bearer <token>". Jobs live in
// memory only and are lost on restart.
//
// Example:
//
//	jobsource-server --token dev-token --listen-addr 127.0.0.1:50055 &
//	curl -H 'Authorization: Bearer dev-token' -d '{"first_name":"Ada","last_name":"Lovelace","email":"ada@example.com"}' \
//	  http://127.0.0.1:50055/api/v1/jobs
//	smartcard-provisioning-worker --token dev-token --url http://127.0.0.1:50055
package main
