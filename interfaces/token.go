package interfaces

import "context"

// TokenDetector finds the single attached hardware token and resets it.
type TokenDetector interface {
	// Detect returns the serial of the only attached token. Returns
	// ErrNoTokenFound, ErrMultipleTokensPresent or ErrSerialNotFound when the
	// listing does not name exactly one token.
	Detect(ctx context.Context) (Serial, error)

	// FactoryReset restores the token's OpenPGP application to its initial
	// state. Failures match ErrTokenReset.
	FactoryReset(ctx context.Context) error
}
