// Package storage archives the public artifacts of successful provisioning
// runs behind pluggable backends.
//
// Backends are selected by URI:
//
//	file:///var/lib/smartcard-provisioning/archive
//	s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=eu-central-1&endpoint=http://minio:9000
//	vault://vault.example.com:8200/secret/provisioning?tls=true&ca_cert=/etc/vault/ca.pem
//
// Each job produces three entries under "<job_id>/": the armored public key
// (public.asc), the SSH authentication key (ssh.pub) and a small JSON
// document with the token serial and key fingerprint (metadata.json).
// Private key material never reaches this package; it only exists on the
// token.
//
// Several URIs can be combined with CreateMultiBackend, which writes to every
// available backend and succeeds if at least one accepted the artifact.
package storage
