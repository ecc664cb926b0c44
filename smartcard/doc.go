// Package smartcard talks to OpenPGP hardware tokens through the ykman
// token-management utility.
//
// Detector enumerates attached tokens and classifies the result:
//
//   - no token attached: interfaces.ErrNoTokenFound, the only retryable outcome
//   - more than one token: interfaces.ErrMultipleTokensPresent, never guessed
//   - one token without a "Serial:" field: interfaces.ErrSerialNotFound
//
// FactoryReset wipes the token's OpenPGP application so provisioning always
// starts from a known state.
package smartcard
