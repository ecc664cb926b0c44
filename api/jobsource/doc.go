// Package jobsource implements both sides of the worker's job-source
// protocol.
//
// Client is what the worker uses in production. Handler is an in-memory job
// source serving the same endpoints, plus two operator endpoints to enqueue
// jobs and read back their outcomes; it backs the jobsource-server command
// and the client tests.
package jobsource
