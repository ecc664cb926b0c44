// Package main (cmd/worker) runs the smartcard provisioning worker.
//
// The worker registers with a job source, polls it for provisioning jobs and,
// for each job, generates an OpenPGP key in a throwaway keyring, moves the
// subkeys onto the single attached hardware token and reports the public key,
// SSH key and token serial back. Only one job is processed at a time.
//
// Every flag can be given on the command line, through its environment
// variable or in a TOML file passed with --config:
//
//	worker-id = "YubiBridge"
//	url = "https://defguard.example.com"
//	token = "..."
//	ca-file = "/etc/defguard/ca.pem"
//	job-interval = "2s"
//	smartcard-retries = 3
//	smartcard-retry-interval = "15s"
//	archive-uri = ["file:///var/lib/provisioning"]
//	status-addr = "127.0.0.1:8080"
//	metrics-addr = "127.0.0.1:8090"
//
// Startup fails on invalid configuration or when ykman, gpg (or gpg2),
// gpg-agent or gpgconf cannot be found. SIGINT and SIGTERM stop the job loop;
// a job in progress is aborted but its keyring is still torn down and its
// outcome reported.
package main
