// Package provisioner implements the provisioning pipeline: a fixed sequence
// of stages that turns a Job and an attached token into a ProvisioningResult.
//
//	AwaitToken → SessionOpen → FactoryReset → GenerateKey →
//	ExportArtifacts → TransferToCard → SessionClose → Done
//
// Stages run in order without skipping or re-entry. Only AwaitToken retries,
// and only on interfaces.ErrNoTokenFound. Once SessionOpen succeeds the
// session is closed on every exit path; a teardown failure is joined to the
// primary error and never replaces it.
package provisioner
